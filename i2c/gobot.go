package i2c

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/gnublin"
)

var _ gnublin.I2CBus = &GobotBus{}

// gobotDevice is the part of a gobot I2C driver used by GobotBus.
type gobotDevice interface {
	Start() error
	Halt() error
	Read(data []byte) error
	Write(data []byte) error
}

// GobotBus exposes a gobot I2C connector, e.g. a NanoPi adaptor, as a bus.
// One generic driver is started lazily per target address.
type GobotBus struct {
	mx      sync.Mutex
	bus     int
	devices map[byte]gobotDevice
	open    func(address byte) gobotDevice
}

// NewGobotBus binds the numbered bus of the given connector.
func NewGobotBus(connector i2c.Connector, bus int) *GobotBus {
	return &GobotBus{
		bus:     bus,
		devices: make(map[byte]gobotDevice),
		open: func(address byte) gobotDevice {
			return i2c.NewGenericDriver(connector, fmt.Sprintf("i2c-%d-%#02x", bus, address), int(address), func(c i2c.Config) {
				c.SetBus(bus)
			})
		},
	}
}

func (b *GobotBus) device(address byte) (gobotDevice, error) {
	if dev, ok := b.devices[address]; ok {
		return dev, nil
	}
	dev := b.open(address)
	if err := dev.Start(); err != nil {
		return nil, fmt.Errorf("start error for %x on bus %d: %w", address, b.bus, err)
	}
	slog.Debug("gobot i2c device started", "bus", b.bus, "addr", address)
	b.devices[address] = dev
	return dev, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	if err := dev.Read(buffer); err != nil {
		return fmt.Errorf("could not read from i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	dev, err := b.device(address)
	if err != nil {
		return err
	}
	if err := dev.Write(buffer); err != nil {
		return fmt.Errorf("could not write to i2c bus %x: %w", address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close halts every started driver.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for address, dev := range b.devices {
		if err := dev.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %x: %w", address, err))
		}
		delete(b.devices, address)
	}
	return errors.Join(errs...)
}
