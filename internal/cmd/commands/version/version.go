package version

import (
	"fmt"

	"github.com/hashicorp-forge/rdocs/internal/cmd/base"
	"github.com/hashicorp-forge/rdocs/internal/version"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Print the rdocs version"
}

func (c *Command) Help() string {
	return `Usage: rdocs version

  Print the version of rdocs.`
}

func (c *Command) Run(args []string) int {
	c.UI.Output(fmt.Sprintf("rdocs v%s", version.Version))
	return 0
}
