package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/environment"
)

var sht2xCmd = cli.Command{
	Name:  "sht2x",
	Usage: "SHT2x temperature and humidity sensor",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:  "read",
			Usage: "measure temperature and relative humidity",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "fahrenheit", Aliases: []string{"f"}},
			},
			Action: func(c *cli.Context) error {
				return withBoard(c, func(ctx context.Context, b *board) error {
					temp, hum, err := b.sht2x().GetTempAndHum(ctx)
					if err != nil {
						return console.Fail("measurement failed", err)
					}
					unit := "°C"
					if c.Bool("fahrenheit") {
						temp, unit = environment.CelsiusToFahrenheit(temp), "°F"
					}
					console.PInfof(console.PictoThermometer, "temperature: %s %s", console.White(fmt.Sprintf("%.2f", temp)), unit)
					console.PInfof(console.PictoHumidity, "humidity: %s %%", console.White(fmt.Sprintf("%.2f", hum)))
					return nil
				})
			},
		},
		&cli.Command{
			Name:  "reset",
			Usage: "soft reset the sensor",
			Action: func(c *cli.Context) error {
				return withBoard(c, func(ctx context.Context, b *board) error {
					if err := b.sht2x().SoftReset(ctx); err != nil {
						return console.Fail("reset failed", err)
					}
					console.PInfof(console.PictoFinish, "sensor reset")
					return nil
				})
			},
		},
		&cli.Command{
			Name:      "resolution",
			Usage:     "show the user register, or set the measurement resolution",
			ArgsUsage: "[rh12t14|rh8t12|rh10t13|rh11t11]",
			Action: func(c *cli.Context) error {
				var res environment.Resolution
				if c.NArg() > 0 {
					var ok bool
					res, ok = resolutions[strings.ToLower(c.Args().Get(0))]
					if !ok {
						return console.Exit(1, "unknown resolution %q", c.Args().Get(0))
					}
				}
				return withBoard(c, func(ctx context.Context, b *board) error {
					s := b.sht2x()
					if c.NArg() > 0 {
						if err := s.SetResolution(ctx, res); err != nil {
							return console.Fail("could not set resolution", err)
						}
					}
					reg, err := s.UserRegister(ctx)
					if err != nil {
						return console.Fail("could not read user register", err)
					}
					console.PInfof(console.PictoThermometer, "user register: %s (%08b)", console.Hex(reg), reg)
					return nil
				})
			},
		},
	},
}

var resolutions = map[string]environment.Resolution{
	"rh12t14": environment.ResolutionRH12T14,
	"rh8t12":  environment.ResolutionRH8T12,
	"rh10t13": environment.ResolutionRH10T13,
	"rh11t11": environment.ResolutionRH11T11,
}
