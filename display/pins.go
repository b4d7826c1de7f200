package display

import (
	"context"
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/mklimuk/gnublin"
)

var ErrUnknownPin = errors.New("display: unknown pin")

// GPIOPins exposes host GPIO lines registered in periph.io as numbered pins.
// Pin n of the PinMap is the n-th line given to the constructor.
type GPIOPins struct {
	pins []gpio.PinIO
}

func NewGPIOPins(pins ...gpio.PinIO) *GPIOPins {
	return &GPIOPins{pins: pins}
}

// GPIOPinsByName looks the lines up in the periph.io registry. The host
// drivers must be initialized first.
func GPIOPinsByName(names ...string) (*GPIOPins, error) {
	pins := make([]gpio.PinIO, 0, len(names))
	for _, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPin, name)
		}
		pins = append(pins, p)
	}
	return NewGPIOPins(pins...), nil
}

func (g *GPIOPins) DigitalWrite(_ context.Context, pin int, high bool) error {
	p, err := g.pin(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(high))
}

func (g *GPIOPins) PinMode(_ context.Context, pin int, dir gnublin.Direction) error {
	p, err := g.pin(pin)
	if err != nil {
		return err
	}
	if dir == gnublin.Output {
		return p.Out(gpio.Low)
	}
	return p.In(gpio.PullNoChange, gpio.NoEdge)
}

func (g *GPIOPins) pin(pin int) (gpio.PinIO, error) {
	if pin < 0 || pin >= len(g.pins) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	return g.pins[pin], nil
}

type cdevLine interface {
	SetValue(value int) error
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

// CdevPins drives lines of a gpiochip through the character device API.
// Pin n of the PinMap is the n-th requested offset.
type CdevPins struct {
	lines []cdevLine
}

// NewCdevPins requests the given offsets of chip (e.g. "gpiochip0") as outputs
// driven low.
func NewCdevPins(chip string, offsets ...int) (*CdevPins, error) {
	c := &CdevPins{}
	for _, offset := range offsets {
		line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("gnublin-lcd"))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("display: could not request %s line %d: %w", chip, offset, err), c.Close())
		}
		c.lines = append(c.lines, line)
	}
	return c, nil
}

func (c *CdevPins) DigitalWrite(_ context.Context, pin int, high bool) error {
	line, err := c.line(pin)
	if err != nil {
		return err
	}
	value := 0
	if high {
		value = 1
	}
	return line.SetValue(value)
}

func (c *CdevPins) PinMode(_ context.Context, pin int, dir gnublin.Direction) error {
	line, err := c.line(pin)
	if err != nil {
		return err
	}
	if dir == gnublin.Output {
		return line.Reconfigure(gpiocdev.AsOutput(0))
	}
	return line.Reconfigure(gpiocdev.AsInput)
}

// Close releases every requested line.
func (c *CdevPins) Close() error {
	var errs []error
	for _, line := range c.lines {
		errs = append(errs, line.Close())
	}
	c.lines = nil
	return errors.Join(errs...)
}

func (c *CdevPins) line(pin int) (cdevLine, error) {
	if pin < 0 || pin >= len(c.lines) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPin, pin)
	}
	return c.lines[pin], nil
}
