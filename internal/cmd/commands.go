package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/hashicorp-forge/rdocs/internal/cmd/base"
	"github.com/hashicorp-forge/rdocs/internal/cmd/commands/listen"
	"github.com/hashicorp-forge/rdocs/internal/cmd/commands/server"
	"github.com/hashicorp-forge/rdocs/internal/cmd/commands/version"
)

// Commands is the mapping of all available rdocs commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := base.NewCommand(log, ui)

	Commands = map[string]cli.CommandFactory{
		"listen": func() (cli.Command, error) {
			return &listen.Command{Command: b}, nil
		},
		"server": func() (cli.Command, error) {
			return &server.Command{Command: b}, nil
		},
		"version": func() (cli.Command, error) {
			return &version.Command{Command: b}, nil
		},
	}
}
