package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/config"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "board configuration",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:  "show",
			Usage: "print the effective configuration",
			Action: func(c *cli.Context) error {
				return printYAML(settings(c))
			},
		},
		&cli.Command{
			Name:  "defaults",
			Usage: "print the built-in defaults",
			Action: func(c *cli.Context) error {
				return printYAML(config.Default())
			},
		},
		&cli.Command{
			Name:  "check",
			Usage: "validate the effective configuration",
			Action: func(c *cli.Context) error {
				if err := settings(c).Validate(); err != nil {
					return console.Fail("invalid configuration", err)
				}
				console.PInfof(console.PictoFinish, "configuration is valid")
				return nil
			},
		},
	},
}
