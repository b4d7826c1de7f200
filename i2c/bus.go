// Package i2c provides host I2C transports implementing gnublin.I2CBus.
package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/gnublin"
)

var (
	_ gnublin.I2CBus         = &GenericBus{}
	_ gnublin.RegisterReader = &GenericBus{}
)

// GenericBus is an I2C bus opened through periph.io, typically /dev/i2c-N.
type GenericBus struct {
	bus i2c.BusCloser
}

// NewGenericBus initializes the periph host drivers and opens the named bus.
// An empty name opens the first bus found.
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %q: %w", dev, err)
	}
	return NewGenericBusFrom(bus), nil
}

// NewGenericBusFrom wraps an already opened periph bus.
func NewGenericBusFrom(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

// ReadFromReg addresses reg and reads it back with a repeated start.
func (b *GenericBus) ReadFromReg(ctx context.Context, address byte, reg byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), []byte{reg}, buffer)
	if err != nil {
		return fmt.Errorf("could not read register %x from i2c bus %x: %w", reg, address, err)
	}
	return nil
}

// SetSpeed changes the bus clock.
func (b *GenericBus) SetSpeed(f physic.Frequency) error {
	return b.bus.SetSpeed(f)
}

func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}

func (b *GenericBus) String() string {
	return b.bus.String()
}
