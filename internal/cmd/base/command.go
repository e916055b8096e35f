package base

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
)

// Command holds the dependencies shared by every rdocs subcommand.
type Command struct {
	Log hclog.Logger
	UI  cli.Ui
}

// NewCommand returns a Command using log and ui. A nil logger is replaced
// with a null logger.
func NewCommand(log hclog.Logger, ui cli.Ui) *Command {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Command{
		Log: log,
		UI:  ui,
	}
}
