package i2c

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/mklimuk/gnublin"
)

func TestGenericBus_Transactions(t *testing.T) {
	ctx := context.Background()
	playback := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x4D, W: []byte{0x18, 0x03}},
			{Addr: 0x4D, W: []byte{0x48}, R: []byte{0x40}},
			{Addr: 0x40, R: []byte{0x66, 0x5C, 0x9F}},
		},
	}
	bus := NewGenericBusFrom(playback)

	require.NoError(t, bus.WriteToAddr(ctx, 0x4D, []byte{0x18, 0x03}))
	buf := make([]byte, 1)
	require.NoError(t, gnublin.ReadRegister(ctx, bus, 0x4D, 0x48, buf))
	assert.Equal(t, byte(0x40), buf[0])
	frame := make([]byte, 3)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x40, frame))
	assert.Equal(t, []byte{0x66, 0x5C, 0x9F}, frame)
	require.NoError(t, bus.Release(ctx))
	require.NoError(t, bus.Close())
}

func TestGenericBus_Error(t *testing.T) {
	playback := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: 0x20, W: []byte{0x00}}},
		DontPanic: true,
	}
	bus := NewGenericBusFrom(playback)
	err := bus.WriteToAddr(context.Background(), 0x21, []byte{0x00})
	assert.Error(t, err)
}
