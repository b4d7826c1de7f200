package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gnublin"
	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/gpio"
)

var expanderCmd = cli.Command{
	Name:    "expander",
	Aliases: []string{"mcp"},
	Usage:   "MCP23017/MCP23009 I/O expander",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:  "init",
			Usage: "write IOCON and disable all interrupts",
			Action: func(c *cli.Context) error {
				return withExpander(c, func(ctx context.Context, m *gpio.MCP230xx) error {
					iocon := settings(c).Expander.IOCON
					if err := m.Init(ctx, iocon); err != nil {
						return console.Fail("could not initialize expander", err)
					}
					console.PInfof(console.PictoPlug, "%s initialized with IOCON %s", m.Variant().Name, console.Hex(iocon))
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "mode",
			Usage:     "set pin direction, or whole port direction with --port",
			ArgsUsage: "<pin|port> <in|out>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "port", Usage: "first argument is a port number"},
				&cli.BoolFlag{Name: "pullup", Usage: "enable pull-up on inputs"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
				}
				n, err := strconv.Atoi(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "invalid pin or port: %v", err)
				}
				dir, err := gnublin.ParseDirection(c.Args().Get(1))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				return withExpander(c, func(ctx context.Context, m *gpio.MCP230xx) error {
					if c.Bool("port") {
						err = m.PortMode(ctx, n, dir)
						if err == nil && dir == gnublin.Input {
							err = m.PortPullUp(ctx, n, c.Bool("pullup"))
						}
					} else {
						err = m.PinMode(ctx, n, dir)
						if err == nil && dir == gnublin.Input {
							err = m.PinPullUp(ctx, n, c.Bool("pullup"))
						}
					}
					if err != nil {
						return console.Fail("could not set mode", err)
					}
					console.PInfof(console.PictoPin, "%d is now %s", n, console.White(dir))
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "write",
			Usage:     "drive a pin, or a whole port with --port",
			ArgsUsage: "<pin|port> <level|value>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "port", Usage: "write a port value, e.g. 0xA5"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 2 {
					return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
				}
				n, err := strconv.Atoi(c.Args().Get(0))
				if err != nil {
					return console.Exit(1, "invalid pin or port: %v", err)
				}
				return withExpander(c, func(ctx context.Context, m *gpio.MCP230xx) error {
					if c.Bool("port") {
						value, err := strconv.ParseUint(c.Args().Get(1), 0, 8)
						if err != nil {
							return console.Exit(1, "invalid port value: %v", err)
						}
						if err := m.WritePort(ctx, n, byte(value)); err != nil {
							return console.Fail("could not write port", err)
						}
						return nil
					}
					high, err := parseBool(c.Args().Get(1))
					if err != nil {
						return console.Exit(1, "%v", err)
					}
					if err := m.DigitalWrite(ctx, n, high); err != nil {
						return console.Fail("could not write pin", err)
					}
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "read",
			Usage:     "read a pin, or every port when no pin is given",
			ArgsUsage: "[pin]",
			Action: func(c *cli.Context) error {
				return withExpander(c, func(ctx context.Context, m *gpio.MCP230xx) error {
					if c.NArg() == 0 {
						for port := 0; port < m.Variant().Ports; port++ {
							value, err := m.ReadPort(ctx, port)
							if err != nil {
								return console.Fail(fmt.Sprintf("could not read port %d", port), err)
							}
							console.PInfof(console.PictoPin, "port %c: %s (%08b)", 'A'+port, console.Hex(value), value)
						}
						return nil
					}
					pin, err := strconv.Atoi(c.Args().Get(0))
					if err != nil {
						return console.Exit(1, "invalid pin: %v", err)
					}
					high, err := m.DigitalRead(ctx, pin)
					if err != nil {
						return console.Fail("could not read pin", err)
					}
					console.PInfof(console.PictoPin, "pin %d: %s", pin, console.Level(high))
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "poll",
			Usage:     "arm interrupts on the given pins and report them until interrupted",
			ArgsUsage: "<pin>...",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "mode", Value: "change", Usage: "change, high or low"},
				&cli.DurationFlag{Name: "interval", Value: 20 * time.Millisecond},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() == 0 {
					return console.Exit(1, "at least one pin is required")
				}
				mode, err := gpio.ParseIntMode(c.String("mode"))
				if err != nil {
					return console.Exit(1, "%v", err)
				}
				pins := make([]int, 0, c.NArg())
				for _, arg := range c.Args().Slice() {
					pin, err := strconv.Atoi(arg)
					if err != nil {
						return console.Exit(1, "invalid pin %q", arg)
					}
					pins = append(pins, pin)
				}
				return withExpander(c, func(ctx context.Context, m *gpio.MCP230xx) error {
					for _, pin := range pins {
						if err := m.PinMode(ctx, pin, gnublin.Input); err != nil {
							return console.Fail("could not set pin mode", err)
						}
						if err := m.PinIntMode(ctx, pin, mode); err != nil {
							return console.Fail("could not arm interrupt", err)
						}
					}
					m.OnInterrupt(func(port, pin int, high bool) {
						console.PInfof(console.PictoBell, "port %c pin %d -> %s", 'A'+port, pin, console.Level(high))
					})
					console.Infof("polling %d pins on %s, interrupt to stop", len(pins), mode)
					return pollLoop(ctx, c.Duration("interval"), m.PollInt)
				})
			},
		},
		&cli.Command{
			Name:      "settings",
			Usage:     "read IOCON, or write it when a value is given",
			ArgsUsage: "[value]",
			Action: func(c *cli.Context) error {
				return withExpander(c, func(ctx context.Context, m *gpio.MCP230xx) error {
					if c.NArg() > 0 {
						value, err := strconv.ParseUint(c.Args().Get(0), 0, 8)
						if err != nil {
							return console.Exit(1, "invalid settings value: %v", err)
						}
						if err := m.WriteSettings(ctx, byte(value)); err != nil {
							return console.Fail("could not write settings", err)
						}
					}
					iocon, err := m.ReadSettings(ctx)
					if err != nil {
						return console.Fail("could not read settings", err)
					}
					console.PInfof(console.PictoPin, "IOCON: %s (%08b)", console.Hex(iocon), iocon)
					return nil
				})
			},
		},
	},
}

func withExpander(c *cli.Context, fn func(ctx context.Context, m *gpio.MCP230xx) error) error {
	return withBoard(c, func(ctx context.Context, b *board) error {
		m, err := b.expander()
		if err != nil {
			return console.Fail("invalid expander configuration", err)
		}
		return fn(ctx, m)
	})
}
