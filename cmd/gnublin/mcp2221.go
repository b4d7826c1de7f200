package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gnublin/adapter"
	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/trace"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 USB bridge maintenance",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Aliases: []string{"i"}, Usage: "bridge index as listed by usb detect"},
	},
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221GPIOCmd,
	},
}

func withBridge(c *cli.Context, fn func(ctx context.Context, a *adapter.MCP2221) error) error {
	ctx := trace.With(c.Context, c.Bool("trace"))
	a := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
	if err := a.Init(ctx); err != nil {
		return console.Fail("adapter initialization error", err)
	}
	return fn(ctx, a)
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(console.Writer())
	defer func() { _ = enc.Close() }()
	if err := enc.Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "show the I2C engine state",
	Action: func(c *cli.Context) error {
		return withBridge(c, func(ctx context.Context, a *adapter.MCP2221) error {
			status, err := a.Status(ctx)
			if err != nil {
				return console.Fail("adapter communication error", err)
			}
			return printYAML(status)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current I2C transfer and free the bus",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.YesOrNo("cancel the pending transfer?")
			if err != nil || !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		return withBridge(c, func(ctx context.Context, a *adapter.MCP2221) error {
			status, err := a.ReleaseBus(ctx)
			if err != nil {
				return console.Fail("adapter communication error", err)
			}
			return printYAML(status)
		})
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "show GP0-GP3 designations and levels",
	Action: func(c *cli.Context) error {
		return withBridge(c, func(ctx context.Context, a *adapter.MCP2221) error {
			params, err := a.GetGPIOParameters(ctx)
			if err != nil {
				return console.Fail("could not read gpio parameters", err)
			}
			values, err := a.ReadGPIO(ctx)
			if err != nil {
				return console.Fail("could not read gpio values", err)
			}
			for i := range values.Values {
				console.PInfof(console.PictoPin, "GP%d %-6s designation %d level %s",
					i, values.Modes[i], params.Designations[i], levelOrNone(values.Modes[i], values.Values[i]))
			}
			return nil
		})
	},
}

func levelOrNone(mode adapter.GPIOMode, value byte) string {
	if mode == adapter.GPIOModeNoOperation {
		return "-"
	}
	return fmt.Sprint(console.Level(value != 0))
}
