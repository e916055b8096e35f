package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/rdocs/internal/version"
)

// defaultCommand runs when rdocs is started without a subcommand.
const defaultCommand = "server"

// Main runs rdocs with os-style arguments, args[0] being the program name,
// and returns the exit code.
func Main(args []string) int {
	name := "rdocs"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}

	ui := &cli.BasicUi{
		Reader:      bufio.NewReader(os.Stdin),
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}
	initCommands(hclog.New(&hclog.LoggerOptions{Name: name, Output: os.Stderr}), ui)

	c := &cli.CLI{
		Name:     name,
		Args:     commandArgs(rest),
		Version:  version.Version,
		Commands: Commands,
	}

	code, err := c.Run()
	if err != nil {
		ui.Error(fmt.Sprintf("error running %s: %v", name, err))
		return 1
	}
	return code
}

// commandArgs resolves the subcommand line. A bare -v or -version prints the
// version; no arguments, or only flags, run the server with those flags.
func commandArgs(args []string) []string {
	if len(args) == 0 {
		return []string{defaultCommand}
	}
	if len(args) == 1 {
		switch args[0] {
		case "-v", "-version", "--version":
			return []string{"version"}
		}
	}
	if strings.HasPrefix(args[0], "-") && !isHelpFlag(args[0]) {
		return append([]string{defaultCommand}, args...)
	}
	return args
}

func isHelpFlag(arg string) bool {
	switch arg {
	case "-h", "-help", "--help":
		return true
	}
	return false
}
