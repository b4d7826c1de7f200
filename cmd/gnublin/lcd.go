package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/host/v3"

	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/display"
	"github.com/mklimuk/gnublin/environment"
)

var lcdCmd = cli.Command{
	Name:  "lcd",
	Usage: "HD44780 character display",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:  "init",
			Usage: "configure the transport lines and initialize the controller",
			Action: func(c *cli.Context) error {
				return withLCD(c, func(ctx context.Context, l *display.LCD) error {
					console.PInfof(console.PictoScreen, "%dx%d display ready", l.Rows(), l.Cols())
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "print",
			Usage:     "print text on a row, optionally starting at a column",
			ArgsUsage: "<text>",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "row", Aliases: []string{"r"}, Value: 1, Usage: "row, starting at 1"},
				&cli.IntFlag{Name: "col", Usage: "column, starting at 0"},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return console.Exit(1, "expected 1 argument, got %d", c.NArg())
				}
				return withLCD(c, func(ctx context.Context, l *display.LCD) error {
					err := l.PrintAt(ctx, c.Args().Get(0), c.Int("row"), c.Int("col"))
					if err != nil {
						return console.Fail("could not print", err)
					}
					return nil
				})
			},
		},
		&cli.Command{
			Name: "clear",
			Action: func(c *cli.Context) error {
				return withLCD(c, func(ctx context.Context, l *display.LCD) error {
					if err := l.Clear(ctx); err != nil {
						return console.Fail("could not clear display", err)
					}
					return nil
				})
			},
		},
		&cli.Command{
			Name: "home",
			Action: func(c *cli.Context) error {
				return withLCD(c, func(ctx context.Context, l *display.LCD) error {
					if err := l.ReturnHome(ctx); err != nil {
						return console.Fail("could not return home", err)
					}
					return nil
				})
			},
		},
		&cli.Command{
			Name:  "control",
			Usage: "switch display power, cursor and blinking",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "power", Value: true},
				&cli.BoolFlag{Name: "cursor"},
				&cli.BoolFlag{Name: "blink"},
			},
			Action: func(c *cli.Context) error {
				return withLCD(c, func(ctx context.Context, l *display.LCD) error {
					err := l.ControlDisplay(ctx, c.Bool("power"), c.Bool("cursor"), c.Bool("blink"))
					if err != nil {
						return console.Fail("could not set display control", err)
					}
					return nil
				})
			},
		},
		&lcdThermoCmd,
	},
}

var lcdThermoCmd = cli.Command{
	Name:  "thermo",
	Usage: "show SHT2x readings on the display until interrupted",
	Flags: []cli.Flag{
		&cli.DurationFlag{Name: "interval", Value: 2 * time.Second},
		&cli.BoolFlag{Name: "mock", Usage: "use a simulated sensor"},
		&cli.BoolFlag{Name: "fahrenheit", Aliases: []string{"f"}},
	},
	Action: func(c *cli.Context) error {
		return withBoard(c, func(ctx context.Context, b *board) error {
			l, err := b.lcd(ctx)
			if err != nil {
				return console.Fail("could not set up display", err)
			}
			var sensor environment.TempHumSensor = b.sht2x()
			if c.Bool("mock") {
				sensor = environment.NewMockSHT2x(
					environment.Oscillating(21, 3, time.Minute),
					environment.Oscillating(45, 10, 3*time.Minute),
				)
			}
			ticker := time.NewTicker(c.Duration("interval"))
			defer ticker.Stop()
			for {
				if err := showReading(ctx, l, sensor, c.Bool("fahrenheit")); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					console.Errorf("%v", err)
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	},
}

func showReading(ctx context.Context, l *display.LCD, sensor environment.TempHumSensor, fahrenheit bool) error {
	temp, hum, err := sensor.GetTempAndHum(ctx)
	if err != nil {
		return fmt.Errorf("could not read sensor: %w", err)
	}
	unit := "C"
	if fahrenheit {
		temp, unit = environment.CelsiusToFahrenheit(temp), "F"
	}
	if err := l.PrintRow(ctx, fmt.Sprintf("T: %.1f %s", temp, unit), 1); err != nil {
		return err
	}
	if l.Rows() < 2 {
		return nil
	}
	return l.PrintRow(ctx, fmt.Sprintf("RH: %.1f %%", hum), 2)
}

func withLCD(c *cli.Context, fn func(ctx context.Context, l *display.LCD) error) error {
	return withBoard(c, func(ctx context.Context, b *board) error {
		l, err := b.lcd(ctx)
		if err != nil {
			return console.Fail("could not set up display", err)
		}
		return fn(ctx, l)
	})
}

// lcd builds the configured transport, prepares its lines and initializes the
// controller.
func (b *board) lcd(ctx context.Context) (*display.LCD, error) {
	cfg := b.cfg.LCD
	pinMap := display.DefaultPinMap
	if len(cfg.Pins) == 6 {
		pinMap = display.PinMap{RS: cfg.Pins[0], EN: cfg.Pins[1], D4: cfg.Pins[2], D5: cfg.Pins[3], D6: cfg.Pins[4], D7: cfg.Pins[5]}
	}
	var pins display.PinWriter
	switch strings.ToLower(cfg.Transport) {
	case "gpio":
		if _, err := host.Init(); err != nil {
			return nil, fmt.Errorf("could not init host: %w", err)
		}
		p, err := display.GPIOPinsByName(cfg.PinNames...)
		if err != nil {
			return nil, err
		}
		pins, pinMap = p, display.DefaultPinMap
	case "cdev":
		p, err := display.NewCdevPins(cfg.Chip, cfg.Pins...)
		if err != nil {
			return nil, err
		}
		b.onClose(p.Close)
		pins, pinMap = p, display.DefaultPinMap
	case "expander":
		m, err := b.expander()
		if err != nil {
			return nil, err
		}
		pins = m
	case "uart":
		d, err := b.uart()
		if err != nil {
			return nil, err
		}
		if err := d.InitIO(ctx, 0); err != nil {
			return nil, err
		}
		pins = d
	case "shiftreg":
		sr, err := b.shiftRegister()
		if err != nil {
			return nil, err
		}
		pins = sr
	default:
		return nil, fmt.Errorf("unknown lcd transport %q", cfg.Transport)
	}
	transport := display.NewPinTransport(pins, pinMap)
	if err := transport.Setup(ctx); err != nil {
		return nil, err
	}
	l := display.NewLCD(transport, display.WithGeometry(cfg.Rows, cfg.Cols))
	if err := l.Init(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (b *board) shiftRegister() (*display.ShiftRegister, error) {
	npi := b.npi
	if npi == nil {
		npi = nanopi.NewNeoAdaptor()
		if err := npi.Connect(); err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		b.npi = npi
		b.onClose(npi.Finalize)
	}
	connector, ok := any(npi).(spi.Connector)
	if !ok {
		return nil, fmt.Errorf("adaptor %s has no spi support", npi.Name())
	}
	sr := display.NewShiftRegister(connector,
		spi.WithBusNumber(b.cfg.LCD.SPIBus),
		spi.WithChipNumber(b.cfg.LCD.SPIChip),
	)
	if err := sr.Start(); err != nil {
		return nil, fmt.Errorf("could not start spi driver: %w", err)
	}
	b.onClose(sr.Halt)
	return sr, nil
}
