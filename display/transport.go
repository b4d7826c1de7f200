package display

import (
	"context"
	"fmt"
	"time"

	"github.com/mklimuk/gnublin"
)

// Mode is the level of the register select line while a byte is written.
type Mode int

const (
	Command Mode = iota
	Data
)

// Transport moves one byte to the controller.
type Transport interface {
	Send(ctx context.Context, b byte, mode Mode) error
}

// PinWriter drives a single output line. *gpio.MCP230xx and *uart.SC16IS7x0
// implement it directly.
type PinWriter interface {
	DigitalWrite(ctx context.Context, pin int, high bool) error
}

// PinModer is implemented by pin writers whose lines must be configured as
// outputs before use.
type PinModer interface {
	PinMode(ctx context.Context, pin int, dir gnublin.Direction) error
}

// PinMap assigns controller lines to pins of the writer.
type PinMap struct {
	RS, EN, D4, D5, D6, D7 int
}

// DefaultPinMap is the wiring of the expander based boards.
var DefaultPinMap = PinMap{RS: 0, EN: 1, D4: 2, D5: 3, D6: 4, D7: 5}

const (
	pulseWidth = 50 * time.Microsecond
	pulseDelay = 50 * time.Microsecond
)

// PinTransport implements the 4-bit interface on top of six output lines.
type PinTransport struct {
	pins   PinWriter
	pinMap PinMap
	pulse  time.Duration
	delay  time.Duration
}

func NewPinTransport(pins PinWriter, pinMap PinMap) *PinTransport {
	return &PinTransport{pins: pins, pinMap: pinMap, pulse: pulseWidth, delay: pulseDelay}
}

// Setup configures all six lines as outputs when the writer supports it.
func (t *PinTransport) Setup(ctx context.Context) error {
	moder, ok := t.pins.(PinModer)
	if !ok {
		return nil
	}
	for _, pin := range t.pinMap.lines() {
		err := moder.PinMode(ctx, pin, gnublin.Output)
		if err != nil {
			return fmt.Errorf("hd44780: could not configure pin %d: %w", pin, err)
		}
	}
	return nil
}

func (t *PinTransport) Send(ctx context.Context, b byte, mode Mode) error {
	err := t.pins.DigitalWrite(ctx, t.pinMap.RS, mode == Data)
	if err != nil {
		return fmt.Errorf("hd44780: could not set register select: %w", err)
	}
	err = t.writeNibble(ctx, b>>4)
	if err != nil {
		return err
	}
	return t.writeNibble(ctx, b&0x0F)
}

func (t *PinTransport) writeNibble(ctx context.Context, nibble byte) error {
	data := []int{t.pinMap.D4, t.pinMap.D5, t.pinMap.D6, t.pinMap.D7}
	for i, pin := range data {
		err := t.pins.DigitalWrite(ctx, pin, nibble&(1<<i) != 0)
		if err != nil {
			return fmt.Errorf("hd44780: could not write data pin %d: %w", pin, err)
		}
	}
	return t.strobe(ctx)
}

func (t *PinTransport) strobe(ctx context.Context) error {
	if err := gnublin.Sleep(ctx, t.delay); err != nil {
		return err
	}
	if err := t.pins.DigitalWrite(ctx, t.pinMap.EN, true); err != nil {
		return fmt.Errorf("hd44780: could not raise enable: %w", err)
	}
	if err := gnublin.Sleep(ctx, t.pulse); err != nil {
		return err
	}
	if err := t.pins.DigitalWrite(ctx, t.pinMap.EN, false); err != nil {
		return fmt.Errorf("hd44780: could not lower enable: %w", err)
	}
	return gnublin.Sleep(ctx, t.delay)
}

func (p PinMap) lines() []int {
	return []int{p.RS, p.EN, p.D4, p.D5, p.D6, p.D7}
}
