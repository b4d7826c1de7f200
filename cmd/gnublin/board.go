package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/gnublin"
	"github.com/mklimuk/gnublin/adapter"
	"github.com/mklimuk/gnublin/cmd/gnublin/console"
	"github.com/mklimuk/gnublin/config"
	"github.com/mklimuk/gnublin/environment"
	"github.com/mklimuk/gnublin/gpio"
	"github.com/mklimuk/gnublin/i2c"
	"github.com/mklimuk/gnublin/trace"
	"github.com/mklimuk/gnublin/uart"
)

const metaConfig = "config"

// board holds the bus selected by the global flags and builds drivers on it.
type board struct {
	cfg     config.Config
	adapter string
	bus     gnublin.I2CBus
	npi     *nanopi.Adaptor
	closers []func() error
}

func settings(c *cli.Context) config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(config.Config); ok {
		return cfg
	}
	return config.Default()
}

// withBoard opens the bus, runs fn and releases everything afterwards.
func withBoard(c *cli.Context, fn func(ctx context.Context, b *board) error) error {
	ctx := trace.With(c.Context, c.Bool("trace"))
	b, err := openBoard(ctx, settings(c))
	if err != nil {
		return console.Fail("could not open bus", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Warn("could not close bus", "error", err)
		}
	}()
	if c.Bool("trace") {
		b.bus = trace.NewBus(b.bus, slog.Default())
	}
	return fn(ctx, b)
}

func openBoard(ctx context.Context, cfg config.Config) (*board, error) {
	b := &board{cfg: cfg, adapter: cfg.Adapter}
	switch cfg.Adapter {
	case config.AdapterPeriph:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, err
		}
		b.bus = bus
		b.closers = append(b.closers, bus.Close)
	case config.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		err := npi.Connect()
		if err != nil {
			return nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		bus := i2c.NewGobotBus(npi, cfg.Bus)
		b.npi = npi
		b.bus = bus
		b.closers = append(b.closers, npi.Finalize, bus.Close)
	case config.AdapterMCP2221:
		bridge := adapter.NewMCP2221()
		err := bridge.Init(ctx)
		if err != nil {
			return nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		b.bus = bridge
	default:
		return nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
	return b, nil
}

func (b *board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

func (b *board) uart(opts ...uart.SC16IS7x0Opt) (*uart.SC16IS7x0, error) {
	cfg := b.cfg.UART
	variant, err := uart.VariantByName(cfg.Variant)
	if err != nil {
		return nil, err
	}
	format, err := uart.ParseDataFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	flow, err := uart.ParseFlowControl(cfg.FlowControl)
	if err != nil {
		return nil, err
	}
	mask, err := uart.ParseInterruptMask(cfg.Interrupts)
	if err != nil {
		return nil, err
	}
	base := []uart.SC16IS7x0Opt{
		uart.WithAddress(cfg.Address),
		uart.WithCrystal(cfg.Crystal),
		uart.WithBaudRate(cfg.BaudRate),
		uart.WithDataFormat(format),
		uart.WithFlowControl(flow),
		uart.WithInterruptMask(mask),
		uart.WithFIFO(cfg.FIFO),
	}
	if b.adapter == config.AdapterMCP2221 {
		base = append(base, uart.WithMaxTransfer(adapter.MaxPayload))
	}
	return uart.New(b.bus, variant, append(base, opts...)...), nil
}

func (b *board) expander() (*gpio.MCP230xx, error) {
	cfg := b.cfg.Expander
	variant, err := gpio.VariantByName(cfg.Variant)
	if err != nil {
		return nil, err
	}
	return gpio.New(b.bus, variant, gpio.WithAddress(cfg.Address), gpio.WithRetryLimit(cfg.RetryLimit)), nil
}

func (b *board) sht2x() *environment.SHT2x {
	return environment.NewSHT2x(b.bus, environment.WithAddress(b.cfg.SHT2x.Address))
}

func (b *board) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

// parseBool accepts 1/0, on/off, high/low and true/false.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "on", "high", "true":
		return true, nil
	case "0", "off", "low", "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid level %q", s)
}
