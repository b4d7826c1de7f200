package uart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gnublin"
)

func TestSC16IS7x0_Init(t *testing.T) {
	ctx := context.Background()
	d, sim := newTestDevice(t, SC16IS750,
		WithBaudRate(115200),
		WithDataFormat(Format8E1),
		WithFlowControl(FlowRTSCTS),
		WithInterruptMask(IntRHR|IntRLS),
		WithIOControl(IOControlLatch),
	)
	require.NoError(t, d.Init(ctx))

	assert.Equal(t, 1, sim.resets)
	assert.Equal(t, byte(Format8E1), sim.lcr)
	assert.Equal(t, byte(8), sim.dll)
	assert.Equal(t, byte(0), sim.dlh)
	assert.Equal(t, byte(FlowRTSCTS), sim.efr)
	assert.Equal(t, byte(0x6C), sim.tcr)
	assert.NotZero(t, sim.mcr&mcrTCRTLR)
	assert.Equal(t, byte(IntRHR|IntRLS), sim.ier)
	assert.Equal(t, byte(IOControlLatch), sim.ioctrl)
	assert.Equal(t, byte(fcrEnable), sim.lastFCR()&fcrEnable)
	assert.True(t, d.FifoEnabled())
	assert.NoError(t, d.LastError())
}

func TestSC16IS7x0_InitWithoutFifo(t *testing.T) {
	d, sim := newTestDevice(t, SC16IS740, WithFIFO(false))
	require.NoError(t, d.Init(context.Background()))

	assert.False(t, d.FifoEnabled())
	assert.Zero(t, sim.lastFCR()&fcrEnable)
	// soft reset only, no I/O control on the 740
	assert.Len(t, sim.writes("IOCTRL"), 1)
}

func TestSC16IS7x0_InitRejectsBadConfig(t *testing.T) {
	d, _ := newTestDevice(t, SC16IS750, WithBaudRate(50))
	err := d.Init(context.Background())
	assert.ErrorIs(t, err, ErrInvalidBaudRate)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, err, d.LastError())
}

func TestSC16IS7x0_EndToEnd(t *testing.T) {
	ctx := context.Background()
	d, sim := newTestDevice(t, SC16IS750)
	require.Equal(t, byte(0x4D), d.Address())

	require.NoError(t, d.Init(ctx))
	require.NoError(t, d.SetBaudRate(ctx, 9600))
	require.NoError(t, d.SetDataFormat(ctx, Format8N1))
	require.NoError(t, d.EnableFifo(ctx, true))
	sim.clearLog()

	n, err := d.Write(ctx, []byte("Hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, [][]byte{[]byte("Hello")}, sim.writes("THR"))

	require.NoError(t, d.EnableFifo(ctx, false))
	sim.clearLog()
	n, err = d.Write(ctx, []byte("Hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, [][]byte{{'H'}, {'e'}, {'l'}, {'l'}, {'o'}}, sim.writes("THR"))
	assert.Equal(t, []byte("HelloHello"), sim.tx)
}

func TestSC16IS7x0_Probe(t *testing.T) {
	ctx := context.Background()
	d, _ := newTestDevice(t, SC16IS750)
	assert.NoError(t, d.Probe(ctx))

	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(DefaultAddress), mock.Anything).Return([]byte{0x00}, nil)
	d = NewSC16IS750(bus)
	err := d.Probe(ctx)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestSC16IS7x0_TransportError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("nack")
	bus := &MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{regLCR << 3, byte(Format7O1)}).Return(boom).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{regLCR << 3}).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, byte(0x48), mock.Anything).Return([]byte{byte(Format7O1)}, nil)

	d := NewSC16IS740(bus, WithAddress(0x48))
	err := d.SetDataFormat(ctx, Format7O1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, err, d.LastError())

	format, err := d.DataFormat(ctx)
	require.NoError(t, err)
	assert.Equal(t, Format7O1, format)
	assert.NoError(t, d.LastError())
	bus.AssertExpectations(t)
}

func TestSC16IS7x0_ErrorPrefixedOnce(t *testing.T) {
	tests := []struct {
		name string
		reg  string
		op   string
		call func(ctx context.Context, d *SC16IS7x0) error
	}{
		{"write", "THR", "write", func(ctx context.Context, d *SC16IS7x0) error {
			_, err := d.Write(ctx, []byte("x"))
			return err
		}},
		{"read", "RHR", "read", func(ctx context.Context, d *SC16IS7x0) error {
			_, err := d.Read(ctx, make([]byte, 2))
			return err
		}},
		{"data format", "LCR", "set data format", func(ctx context.Context, d *SC16IS7x0) error {
			return d.SetDataFormat(ctx, Format8N1)
		}},
		{"pin mode", "IODIR", "pin 3 mode", func(ctx context.Context, d *SC16IS7x0) error {
			return d.PinMode(ctx, 3, gnublin.Output)
		}},
		{"poll", "IIR", "poll interrupt", func(ctx context.Context, d *SC16IS7x0) error {
			_, err := d.PollInt(ctx)
			return err
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d, sim := newTestDevice(t, SC16IS750)
			sim.setRx(1, 2)
			sim.fail = func(a simAccess) error {
				if a.Reg == test.reg {
					return errors.New("nack")
				}
				return nil
			}
			err := test.call(context.Background(), d)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.Equal(t, 1, strings.Count(err.Error(), "sc16is7x0:"), err.Error())
			assert.True(t, strings.HasPrefix(err.Error(), "sc16is7x0: "+test.op), err.Error())
		})
	}
}

func TestSC16IS7x0_SetAddress(t *testing.T) {
	ctx := context.Background()
	d, sim := newTestDevice(t, SC16IS750)
	d.SetAddress(0x49)
	assert.Error(t, d.Probe(ctx))
	assert.Equal(t, 1, sim.unknownAddressErrors)

	other := newSimChip()
	other.address = 0x49
	d.SetBus(other)
	assert.NoError(t, d.Probe(ctx))
}
