package uart

import (
	"context"
	"testing"

	"github.com/mklimuk/gnublin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSC16IS7x0_ChangeDetection(t *testing.T) {
	ctx := context.Background()
	d, sim := newTestDevice(t, SC16IS750)
	sim.setInput(0x00)
	require.NoError(t, d.InitIO(ctx, IOControlDefault))

	require.NoError(t, d.PinIntEnable(ctx, 3, true))
	sim.setInput(0x08)
	changed, err := d.ReadIntFlagPort(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x08), changed)

	changed, err = d.ReadIntFlagPort(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	// pin 4 has no interrupt enabled
	sim.setInput(0x18)
	changed, err = d.ReadIntFlagPort(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	require.NoError(t, d.PinIntEnable(ctx, 3, false))
	assert.Zero(t, sim.iointen)
}

func TestSC16IS7x0_ChangeDetectionIgnoresOutputs(t *testing.T) {
	ctx := context.Background()
	d, sim := newTestDevice(t, SC16IS750)
	require.NoError(t, d.InitIO(ctx, IOControlDefault))
	require.NoError(t, d.PortIntEnable(ctx, 0xFF))
	// the low nibble becomes output and reads back high
	require.NoError(t, d.PortMode(ctx, 0x0F))
	sim.setInput(0xF0)

	changed, err := d.ReadIntFlagPort(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF0), changed)
}

func TestSC16IS7x0_PinIO(t *testing.T) {
	ctx := context.Background()
	d, sim := newTestDevice(t, SC16IS760)

	require.NoError(t, d.PinMode(ctx, 2, gnublin.Output))
	assert.Equal(t, byte(0x04), sim.iodir)
	require.NoError(t, d.DigitalWrite(ctx, 2, false))
	high, err := d.DigitalRead(ctx, 2)
	require.NoError(t, err)
	assert.False(t, high)
	require.NoError(t, d.DigitalWrite(ctx, 2, true))
	high, err = d.DigitalRead(ctx, 2)
	require.NoError(t, err)
	assert.True(t, high)

	sim.setInput(0x20)
	high, err = d.DigitalRead(ctx, 5)
	require.NoError(t, err)
	assert.True(t, high)
	port, err := d.ReadPort(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x24), port)

	require.NoError(t, d.PinMode(ctx, 2, gnublin.Input))
	assert.Zero(t, sim.iodir)
}

func TestSC16IS7x0_GPIOArguments(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		variant Variant
		op      func(d *SC16IS7x0) error
		err     error
	}{
		{"740 pin mode", SC16IS740, func(d *SC16IS7x0) error { return d.PinMode(ctx, 0, gnublin.Output) }, ErrNoGPIO},
		{"740 port mode", SC16IS740, func(d *SC16IS7x0) error { return d.PortMode(ctx, 0xFF) }, ErrNoGPIO},
		{"740 read port", SC16IS740, func(d *SC16IS7x0) error { _, err := d.ReadPort(ctx); return err }, ErrNoGPIO},
		{"740 flags", SC16IS740, func(d *SC16IS7x0) error { _, err := d.ReadIntFlagPort(ctx); return err }, ErrNoGPIO},
		{"740 init io", SC16IS740, func(d *SC16IS7x0) error { return d.InitIO(ctx, IOControlLatch) }, ErrNoGPIO},
		{"negative pin", SC16IS750, func(d *SC16IS7x0) error { return d.DigitalWrite(ctx, -1, true) }, ErrInvalidPin},
		{"pin 8", SC16IS750, func(d *SC16IS7x0) error { _, err := d.DigitalRead(ctx, 8); return err }, ErrInvalidPin},
		{"pin 9 interrupt", SC16IS760, func(d *SC16IS7x0) error { return d.PinIntEnable(ctx, 9, true) }, ErrInvalidPin},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, sim := newTestDevice(t, test.variant)
			err := test.op(d)
			assert.ErrorIs(t, err, test.err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Empty(t, sim.log)
			assert.Equal(t, err, d.LastError())
		})
	}
}
