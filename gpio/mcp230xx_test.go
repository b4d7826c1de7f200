package gpio

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gnublin"
)

// regBus emulates the register file of an expander with sequential
// addressing: the first written byte selects the register.
type regBus struct {
	mu      sync.Mutex
	regs    [0x20]byte
	pointer byte
	writes  [][]byte
	// busy makes the next n transactions fail with gnublin.ErrBusBusy
	busy     int
	releases int
}

func (b *regBus) WriteToAddr(_ context.Context, _ byte, buffer []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.busy > 0 {
		b.busy--
		return gnublin.ErrBusBusy
	}
	b.writes = append(b.writes, append([]byte(nil), buffer...))
	b.pointer = buffer[0]
	for i, v := range buffer[1:] {
		b.regs[int(b.pointer)+i] = v
	}
	return nil
}

func (b *regBus) ReadFromAddr(_ context.Context, _ byte, buffer []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range buffer {
		buffer[i] = b.regs[int(b.pointer)+i]
	}
	return nil
}

func (b *regBus) Release(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases++
	return nil
}

type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestMCP230xx_RegisterAddresses(t *testing.T) {
	tests := []struct {
		variant  Variant
		base     registry
		port     int
		expected byte
	}{
		{MCP23017, IODIRA, 0, 0x00},
		{MCP23017, IODIRA, 1, 0x01},
		{MCP23017, GPIOA, 1, 0x13},
		{MCP23017, OLATA, 1, 0x15},
		{MCP23009, IODIRA, 0, 0x00},
		{MCP23009, IOCON, 0, 0x05},
		{MCP23009, GPIOA, 0, 0x09},
		{MCP23009, OLATA, 0, 0x0A},
	}
	for _, test := range tests {
		t.Run(test.variant.Name+"_"+hex.EncodeToString([]byte{byte(test.base), byte(test.port)}), func(t *testing.T) {
			m := New(&regBus{}, test.variant)
			assert.Equal(t, test.expected, m.reg(test.base, test.port))
		})
	}
}

func TestMCP230xx_Init(t *testing.T) {
	ctx := context.Background()
	bus := &regBus{}
	bus.regs[0x04], bus.regs[0x05] = 0xFF, 0x0F
	m := NewMCP23017(bus)

	require.NoError(t, m.Init(ctx, ConfIntMirror))
	assert.Equal(t, []byte{0x0A, ConfIntMirror | ConfSeqOp}, bus.writes[0])
	assert.Zero(t, bus.regs[0x04])
	assert.Zero(t, bus.regs[0x05])
	settings, err := m.ReadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), settings)
}

func TestMCP230xx_PinIO(t *testing.T) {
	ctx := context.Background()
	bus := &regBus{}
	bus.regs[0x00], bus.regs[0x01] = 0xFF, 0xFF
	m := NewMCP23017(bus)

	require.NoError(t, m.PinMode(ctx, 9, gnublin.Output))
	assert.Equal(t, byte(0xFD), bus.regs[0x01])
	require.NoError(t, m.DigitalWrite(ctx, 9, true))
	assert.Equal(t, byte(0x02), bus.regs[0x15])
	require.NoError(t, m.DigitalWrite(ctx, 9, false))
	assert.Zero(t, bus.regs[0x15])

	bus.regs[0x12] = 0x80
	high, err := m.DigitalRead(ctx, 7)
	require.NoError(t, err)
	assert.True(t, high)
	high, err = m.DigitalRead(ctx, 6)
	require.NoError(t, err)
	assert.False(t, high)

	require.NoError(t, m.PortMode(ctx, 0, gnublin.Output))
	assert.Zero(t, bus.regs[0x00])
	require.NoError(t, m.WritePort(ctx, 0, 0xA5))
	assert.Equal(t, byte(0xA5), bus.regs[0x14])
	port, err := m.ReadPort(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), port)

	require.NoError(t, m.PinPullUp(ctx, 3, true))
	require.NoError(t, m.PortPullUp(ctx, 1, true))
	assert.Equal(t, byte(0x08), bus.regs[0x0C])
	assert.Equal(t, byte(0xFF), bus.regs[0x0D])
	require.NoError(t, m.PinPolarity(ctx, 15, true))
	assert.Equal(t, byte(0x80), bus.regs[0x03])
	require.NoError(t, m.PortPolarity(ctx, 1, false))
	assert.Zero(t, bus.regs[0x03])
}

func TestMCP230xx_IntMode(t *testing.T) {
	tests := []struct {
		mode                    IntMode
		defval, intcon, enabled byte
	}{
		{IntChange, 0x00, 0x00, 0x04},
		{IntHigh, 0x00, 0x04, 0x04},
		{IntLow, 0x04, 0x04, 0x04},
		{IntNone, 0x00, 0x00, 0x00},
	}
	for _, test := range tests {
		t.Run(test.mode.String(), func(t *testing.T) {
			bus := &regBus{}
			m := NewMCP23009(bus)
			require.NoError(t, m.PinIntMode(context.Background(), 2, IntLow))
			require.NoError(t, m.PinIntMode(context.Background(), 2, test.mode))
			assert.Equal(t, test.defval, bus.regs[0x03])
			assert.Equal(t, test.intcon, bus.regs[0x04])
			assert.Equal(t, test.enabled, bus.regs[0x02])
		})
	}
	_, err := ParseIntMode("rising")
	assert.ErrorIs(t, err, ErrInvalidMode)
	mode, err := ParseIntMode("Change")
	require.NoError(t, err)
	assert.Equal(t, IntChange, mode)
}

func TestMCP230xx_PollInt(t *testing.T) {
	ctx := context.Background()
	bus := &regBus{}
	m := NewMCP23017(bus)
	// port A pin 1 low, port B pin 4 high
	bus.regs[0x0E], bus.regs[0x10] = 0x02, 0x00
	bus.regs[0x0F], bus.regs[0x11] = 0x10, 0x10

	type call struct {
		kind      string
		port, pin int
		high      bool
	}
	var calls []call
	m.OnInterrupt(func(port, pin int, high bool) {
		calls = append(calls, call{"global", port, pin, high})
	})
	require.NoError(t, m.OnPortInterrupt(1, func(pin int, high bool) {
		calls = append(calls, call{"port", 1, pin, high})
	}))
	require.NoError(t, m.OnPinInterrupt(1, func(high bool) {
		calls = append(calls, call{"pin", 0, 1, high})
	}))

	n, err := m.PollInt(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []call{
		{"global", 0, 1, false},
		{"pin", 0, 1, false},
		{"global", 1, 4, true},
		{"port", 1, 4, true},
	}, calls)

	bus.regs[0x0E], bus.regs[0x0F] = 0, 0
	n, err = m.PollInt(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMCP230xx_InterruptRegisters(t *testing.T) {
	ctx := context.Background()
	bus := &regBus{}
	m := NewMCP23017(bus)
	bus.regs[0x0F], bus.regs[0x11] = 0x21, 0x20

	flags, err := m.ReadIntFlagPort(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x21), flags)
	captured, err := m.ReadIntPort(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0x20), captured)
	high, err := m.DigitalIntRead(ctx, 13)
	require.NoError(t, err)
	assert.True(t, high)
}

func TestMCP230xx_Arguments(t *testing.T) {
	ctx := context.Background()
	m := NewMCP23009(&regBus{})
	assert.ErrorIs(t, m.PinMode(ctx, 8, gnublin.Input), ErrInvalidPin)
	assert.ErrorIs(t, m.DigitalWrite(ctx, -1, true), ErrInvalidPin)
	assert.ErrorIs(t, m.WritePort(ctx, 1, 0x00), ErrInvalidPort)
	assert.ErrorIs(t, m.OnPortInterrupt(1, nil), ErrInvalidPort)
	assert.ErrorIs(t, m.OnPinInterrupt(8, nil), ErrInvalidPin)
	assert.ErrorIs(t, m.PortIntMode(ctx, 0, IntMode(9)), ErrInvalidMode)
}

func TestMCP230xx_RetryOnBusyBus(t *testing.T) {
	ctx := context.Background()
	bus := &regBus{busy: 2}
	m := NewMCP23017(bus, WithRetryLimit(3))
	require.NoError(t, m.WriteSettings(ctx, 0x20))
	assert.Equal(t, 2, bus.releases)

	bus.busy = 5
	err := m.WriteSettings(ctx, 0x20)
	assert.ErrorIs(t, err, gnublin.ErrBusBusy)
	assert.ErrorContains(t, err, "retry limit reached")
}

func TestMCP230xx_TransportError(t *testing.T) {
	ctx := context.Background()
	bus := &MockI2CBus{}
	failure := errors.New("nack")
	bus.On("WriteToAddr", ctx, byte(0x27), []byte{0x12}).Return(failure).Once()
	m := NewMCP23017(bus, WithAddress(0x27))

	_, err := m.ReadPort(ctx, 0)
	assert.ErrorIs(t, err, failure)
	bus.AssertNotCalled(t, "Release", ctx)
	bus.AssertExpectations(t)
}
