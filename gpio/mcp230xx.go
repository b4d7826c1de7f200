// Package gpio drives the Microchip MCP230xx family of I2C port expanders.
package gpio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mklimuk/gnublin"
)

type registry byte

const DefaultMCP230xxAddress = 0x20

// Register addresses of port A with IOCON.BANK = 0. Port B lives at the next
// address. Single port variants divide them by two.
const (
	IODIRA   registry = 0x00
	IOPOLA   registry = 0x02
	GPINTENA registry = 0x04
	DEFVALA  registry = 0x06
	INTCONA  registry = 0x08
	IOCON    registry = 0x0A
	GPPUA    registry = 0x0C
	INTFA    registry = 0x0E
	INTCAPA  registry = 0x10
	GPIOA    registry = 0x12
	OLATA    registry = 0x14
)

// IOCON bits.
const (
	ConfIntLow    byte = 0x00
	ConfIntHigh   byte = 0x02
	ConfSeqOp     byte = 0x20
	ConfIntMirror byte = 0x40
)

var (
	ErrInvalidPin  = errors.New("mcp230xx: invalid pin")
	ErrInvalidPort = errors.New("mcp230xx: invalid port")
	ErrInvalidMode = errors.New("mcp230xx: invalid interrupt mode")
	ErrBitShift    = errors.New("mcp230xx: bit shift failed")
)

// Variant describes one member of the family.
type Variant struct {
	Name  string
	Ports int
	Pins  int
	// RegisterShift divides the register addresses of the two port layout.
	RegisterShift int
}

var (
	MCP23017 = Variant{Name: "MCP23017", Ports: 2, Pins: 16, RegisterShift: 0}
	MCP23009 = Variant{Name: "MCP23009", Ports: 1, Pins: 8, RegisterShift: 1}
)

func VariantByName(name string) (Variant, error) {
	for _, v := range []Variant{MCP23017, MCP23009} {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("mcp230xx: unknown variant %q", name)
}

// IntMode selects the condition raising a pin interrupt.
type IntMode int

const (
	IntNone IntMode = iota
	IntChange
	IntHigh
	IntLow
)

var intModeNames = map[IntMode]string{
	IntNone:   "none",
	IntChange: "change",
	IntHigh:   "high",
	IntLow:    "low",
}

func (m IntMode) String() string {
	if name, ok := intModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("intmode(%d)", int(m))
}

func ParseIntMode(s string) (IntMode, error) {
	for mode, name := range intModeNames {
		if strings.EqualFold(name, s) {
			return mode, nil
		}
	}
	return IntNone, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

type MCP230xxOpts struct {
	Address    byte
	RetryLimit int
	Logger     *slog.Logger
}

type MCP230xxOpt func(*MCP230xxOpts)

func WithAddress(address byte) MCP230xxOpt {
	return func(o *MCP230xxOpts) {
		o.Address = address
	}
}

// WithRetryLimit sets how many times an operation is attempted while the bus
// reports it is busy.
func WithRetryLimit(limit int) MCP230xxOpt {
	return func(o *MCP230xxOpts) {
		o.RetryLimit = limit
	}
}

func WithLogger(logger *slog.Logger) MCP230xxOpt {
	return func(o *MCP230xxOpts) {
		o.Logger = logger
	}
}

type MCP230xx struct {
	mx         sync.Mutex
	transport  gnublin.I2CBus
	variant    Variant
	address    byte
	retryLimit int
	log        *slog.Logger

	isr     func(port, pin int, high bool)
	portIsr map[int]func(pin int, high bool)
	pinIsr  map[int]func(high bool)
}

func New(bus gnublin.I2CBus, variant Variant, opts ...MCP230xxOpt) *MCP230xx {
	config := MCP230xxOpts{
		Address:    DefaultMCP230xxAddress,
		RetryLimit: 3,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.RetryLimit < 1 {
		config.RetryLimit = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MCP230xx{
		transport:  bus,
		variant:    variant,
		address:    config.Address,
		retryLimit: config.RetryLimit,
		log:        logger.With("chip", variant.Name, "addr", config.Address),
		portIsr:    make(map[int]func(int, bool)),
		pinIsr:     make(map[int]func(bool)),
	}
}

func NewMCP23017(bus gnublin.I2CBus, opts ...MCP230xxOpt) *MCP230xx {
	return New(bus, MCP23017, opts...)
}

func NewMCP23009(bus gnublin.I2CBus, opts ...MCP230xxOpt) *MCP230xx {
	return New(bus, MCP23009, opts...)
}

func (m *MCP230xx) Variant() Variant {
	return m.variant
}

// Init writes IOCON (sequential operation is always enabled) and disables
// interrupts on every port.
func (m *MCP230xx) Init(ctx context.Context, iocon byte) error {
	err := m.WriteSettings(ctx, iocon|ConfSeqOp)
	if err != nil {
		return fmt.Errorf("mcp230xx: could not initialize: %w", err)
	}
	for port := 0; port < m.variant.Ports; port++ {
		err = m.PortIntMode(ctx, port, IntNone)
		if err != nil {
			return fmt.Errorf("mcp230xx: could not disable interrupts: %w", err)
		}
	}
	return nil
}

// ReadSettings reads contents of IOCON registry
func (m *MCP230xx) ReadSettings(ctx context.Context) (byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.read(ctx, "read settings", m.reg(IOCON, 0))
}

// WriteSettings writes IOCON registry
func (m *MCP230xx) WriteSettings(ctx context.Context, settings byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.write(ctx, "write settings", m.reg(IOCON, 0), settings)
}

func (m *MCP230xx) PinMode(ctx context.Context, pin int, dir gnublin.Direction) error {
	// IODIR bits set mean input
	return m.updatePin(ctx, "pin mode", IODIRA, pin, dir == gnublin.Input)
}

func (m *MCP230xx) PortMode(ctx context.Context, port int, dir gnublin.Direction) error {
	var value byte
	if dir == gnublin.Input {
		value = 0xFF
	}
	return m.writePort(ctx, "port mode", IODIRA, port, value)
}

// DigitalWrite sets the output latch of a single pin.
func (m *MCP230xx) DigitalWrite(ctx context.Context, pin int, high bool) error {
	return m.updatePin(ctx, "digital write", OLATA, pin, high)
}

func (m *MCP230xx) DigitalRead(ctx context.Context, pin int) (bool, error) {
	return m.readPin(ctx, "digital read", GPIOA, pin)
}

func (m *MCP230xx) WritePort(ctx context.Context, port int, value byte) error {
	return m.writePort(ctx, "write port", OLATA, port, value)
}

func (m *MCP230xx) ReadPort(ctx context.Context, port int) (byte, error) {
	return m.readPort(ctx, "read port", GPIOA, port)
}

func (m *MCP230xx) PinPullUp(ctx context.Context, pin int, enabled bool) error {
	return m.updatePin(ctx, "pin pull-up", GPPUA, pin, enabled)
}

func (m *MCP230xx) PortPullUp(ctx context.Context, port int, enabled bool) error {
	return m.writePort(ctx, "port pull-up", GPPUA, port, fill(enabled))
}

// PinPolarity inverts the logic level reported for an input pin.
func (m *MCP230xx) PinPolarity(ctx context.Context, pin int, inverted bool) error {
	return m.updatePin(ctx, "pin polarity", IOPOLA, pin, inverted)
}

func (m *MCP230xx) PortPolarity(ctx context.Context, port int, inverted bool) error {
	return m.writePort(ctx, "port polarity", IOPOLA, port, fill(inverted))
}

// PinIntMode programs DEFVAL, INTCON and GPINTEN for a single pin.
func (m *MCP230xx) PinIntMode(ctx context.Context, pin int, mode IntMode) error {
	port, bit, err := m.locate(pin)
	if err != nil {
		return err
	}
	return m.intMode(ctx, port, 1<<bit, mode)
}

func (m *MCP230xx) PortIntMode(ctx context.Context, port int, mode IntMode) error {
	if err := m.checkPort(port); err != nil {
		return err
	}
	return m.intMode(ctx, port, 0xFF, mode)
}

func (m *MCP230xx) intMode(ctx context.Context, port int, mask byte, mode IntMode) error {
	var defval, intcon, enabled bool
	switch mode {
	case IntChange:
		enabled = true
	case IntHigh:
		intcon, enabled = true, true
	case IntLow:
		defval, intcon, enabled = true, true, true
	case IntNone:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	steps := []struct {
		reg registry
		set bool
	}{
		{DEFVALA, defval},
		{INTCONA, intcon},
		{GPINTENA, enabled},
	}
	for _, step := range steps {
		err := m.modify(ctx, "interrupt mode", m.reg(step.reg, port), mask, step.set)
		if err != nil {
			return err
		}
	}
	m.log.Debug("interrupt mode set", "port", port, "mask", mask, "mode", mode)
	return nil
}

// DigitalIntRead returns the level of a pin captured when the interrupt
// occurred. Reading clears the interrupt of its port.
func (m *MCP230xx) DigitalIntRead(ctx context.Context, pin int) (bool, error) {
	return m.readPin(ctx, "interrupt read", INTCAPA, pin)
}

func (m *MCP230xx) ReadIntPort(ctx context.Context, port int) (byte, error) {
	return m.readPort(ctx, "read interrupt port", INTCAPA, port)
}

// ReadIntFlagPort returns the pins of a port that raised an interrupt.
func (m *MCP230xx) ReadIntFlagPort(ctx context.Context, port int) (byte, error) {
	return m.readPort(ctx, "read interrupt flags", INTFA, port)
}

// OnInterrupt registers a callback invoked for every pin interrupt on any port.
func (m *MCP230xx) OnInterrupt(isr func(port, pin int, high bool)) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.isr = isr
}

func (m *MCP230xx) OnPortInterrupt(port int, isr func(pin int, high bool)) error {
	if err := m.checkPort(port); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.portIsr[port] = isr
	return nil
}

func (m *MCP230xx) OnPinInterrupt(pin int, isr func(high bool)) error {
	if _, _, err := m.locate(pin); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	m.pinIsr[pin] = isr
	return nil
}

// PollInt checks the interrupt flags of every port and dispatches one call per
// flagged pin to the global, port and pin callbacks, in that order. It returns
// the number of pin interrupts found.
func (m *MCP230xx) PollInt(ctx context.Context) (int, error) {
	calls, count, err := m.pollInt(ctx)
	for _, call := range calls {
		call()
	}
	return count, err
}

func (m *MCP230xx) pollInt(ctx context.Context) ([]func(), int, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	var calls []func()
	count := 0
	for port := 0; port < m.variant.Ports; port++ {
		flags, err := m.read(ctx, "read interrupt flags", m.reg(INTFA, port))
		if err != nil {
			return calls, count, err
		}
		if flags == 0 {
			continue
		}
		captured, err := m.read(ctx, "read interrupt capture", m.reg(INTCAPA, port))
		if err != nil {
			return calls, count, err
		}
		m.log.Debug("interrupt", "port", port, "flags", flags, "captured", captured)
		for bit := 0; bit < 8; bit++ {
			if flags&(1<<bit) == 0 {
				continue
			}
			count++
			calls = append(calls, m.dispatch(port, bit, captured&(1<<bit) != 0)...)
		}
	}
	return calls, count, nil
}

func (m *MCP230xx) dispatch(port, bit int, high bool) []func() {
	var calls []func()
	if isr := m.isr; isr != nil {
		calls = append(calls, func() { isr(port, bit, high) })
	}
	if isr := m.portIsr[port]; isr != nil {
		calls = append(calls, func() { isr(bit, high) })
	}
	if isr := m.pinIsr[port*8+bit]; isr != nil {
		calls = append(calls, func() { isr(high) })
	}
	return calls
}

func (m *MCP230xx) updatePin(ctx context.Context, op string, base registry, pin int, set bool) error {
	port, bit, err := m.locate(pin)
	if err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.modify(ctx, op, m.reg(base, port), 1<<bit, set)
}

func (m *MCP230xx) readPin(ctx context.Context, op string, base registry, pin int) (bool, error) {
	port, bit, err := m.locate(pin)
	if err != nil {
		return false, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	value, err := m.read(ctx, op, m.reg(base, port))
	if err != nil {
		return false, err
	}
	// move the pin to the MSB and keep only that bit
	switch (value << (7 - bit)) & 0x80 {
	case 0x00:
		return false, nil
	case 0x80:
		return true, nil
	default:
		return false, ErrBitShift
	}
}

func (m *MCP230xx) writePort(ctx context.Context, op string, base registry, port int, value byte) error {
	if err := m.checkPort(port); err != nil {
		return err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.write(ctx, op, m.reg(base, port), value)
}

func (m *MCP230xx) readPort(ctx context.Context, op string, base registry, port int) (byte, error) {
	if err := m.checkPort(port); err != nil {
		return 0, err
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.read(ctx, op, m.reg(base, port))
}

// modify is a read-modify-write of the mask bits. Callers hold the lock.
func (m *MCP230xx) modify(ctx context.Context, op string, reg byte, mask byte, set bool) error {
	value, err := m.read(ctx, op, reg)
	if err != nil {
		return err
	}
	if set {
		value |= mask
	} else {
		value &^= mask
	}
	return m.write(ctx, op, reg, value)
}

func (m *MCP230xx) read(ctx context.Context, op string, reg byte) (byte, error) {
	buf := make([]byte, 1)
	err := m.retry(ctx, op, func() error {
		return gnublin.ReadRegister(ctx, m.transport, m.address, reg, buf)
	})
	return buf[0], err
}

func (m *MCP230xx) write(ctx context.Context, op string, reg byte, value byte) error {
	return m.retry(ctx, op, func() error {
		return gnublin.WriteRegister(ctx, m.transport, m.address, reg, value)
	})
}

func (m *MCP230xx) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, gnublin.ErrBusBusy) {
			return fmt.Errorf("mcp230xx: could not %s: %w", op, err)
		}
		m.log.Debug("bus busy, releasing", "op", op)
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("mcp230xx: could not %s (retry limit reached): %w", op, err)
}

// reg maps a port A register to the address used by this variant.
func (m *MCP230xx) reg(base registry, port int) byte {
	return byte(base)>>m.variant.RegisterShift + byte(port)
}

func (m *MCP230xx) locate(pin int) (port, bit int, err error) {
	if pin < 0 || pin >= m.variant.Pins {
		return 0, 0, fmt.Errorf("%w: %d is not between 0 and %d", ErrInvalidPin, pin, m.variant.Pins-1)
	}
	return pin / 8, pin % 8, nil
}

func (m *MCP230xx) checkPort(port int) error {
	if port < 0 || port >= m.variant.Ports {
		return fmt.Errorf("%w: %d is not between 0 and %d", ErrInvalidPort, port, m.variant.Ports-1)
	}
	return nil
}

func fill(set bool) byte {
	if set {
		return 0xFF
	}
	return 0x00
}
