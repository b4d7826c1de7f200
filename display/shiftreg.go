package display

import (
	"context"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/spi"
)

type byteWriter interface {
	WriteBytes(data []byte) error
}

// ShiftRegister drives the outputs of a 74HC595 on a gobot SPI connection.
// Every pin change shifts out the whole shadowed output byte.
type ShiftRegister struct {
	*spi.Driver
	mx    sync.Mutex
	state byte
	conn  func() (byteWriter, error)
}

// NewShiftRegister binds the register to an SPI adaptor. Bus and chip select
// are given as driver options, e.g. spi.WithBusNumber(0), spi.WithChipNumber(1).
func NewShiftRegister(adaptor spi.Connector, opts ...func(spi.Config)) *ShiftRegister {
	d := spi.NewDriver(adaptor, "74HC595", opts...)
	d.SetMode(0)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(1_000_000)
	}
	s := &ShiftRegister{Driver: d}
	s.conn = func() (byteWriter, error) {
		w, ok := s.Driver.Connection().(byteWriter)
		if !ok {
			return nil, fmt.Errorf("74hc595: spi connection does not support writes")
		}
		return w, nil
	}
	return s
}

func (s *ShiftRegister) DigitalWrite(_ context.Context, pin int, high bool) error {
	if pin < 0 || pin > 7 {
		return fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	state := s.state &^ (1 << pin)
	if high {
		state |= 1 << pin
	}
	return s.write(state)
}

// WritePort replaces all eight outputs at once.
func (s *ShiftRegister) WritePort(_ context.Context, value byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.write(value)
}

func (s *ShiftRegister) State() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

func (s *ShiftRegister) write(state byte) error {
	w, err := s.conn()
	if err != nil {
		return err
	}
	if err := w.WriteBytes([]byte{state}); err != nil {
		return fmt.Errorf("74hc595: could not shift out: %w", err)
	}
	s.state = state
	return nil
}
