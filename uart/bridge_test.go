package uart

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/gnublin/adapter"
)

// hidBridge answers MCP2221 reports by command. Every read returns level
// bytes, so TXLVL and RXLVL both report a full FIFO.
type hidBridge struct {
	level   byte
	pending []byte
	readLen int
	writes  [][]byte
}

func (h *hidBridge) Write(b []byte) (int, error) {
	resp := make([]byte, 64)
	resp[0] = b[0]
	switch b[0] {
	case 0x90, 0x94:
		n := int(binary.LittleEndian.Uint16(b[1:3]))
		h.writes = append(h.writes, append([]byte(nil), b[4:4+n]...))
	case 0x91, 0x93:
		h.readLen = int(binary.LittleEndian.Uint16(b[1:3]))
	case 0x40:
		resp[3] = byte(h.readLen)
		for i := 0; i < h.readLen; i++ {
			resp[4+i] = h.level
		}
	}
	h.pending = resp
	return len(b), nil
}

func (h *hidBridge) Read(b []byte) (int, error) {
	return copy(b, h.pending), nil
}

func (h *hidBridge) Close() error {
	return nil
}

func newBridgedDevice(t *testing.T, hid *hidBridge) *SC16IS7x0 {
	t.Helper()
	bus := adapter.NewMCP2221(adapter.WithResponseWait(0), adapter.WithOpener(func(index int) (adapter.HIDDevice, error) {
		return hid, nil
	}))
	return New(bus, SC16IS750,
		WithResetDelay(0),
		WithMaxTransfer(adapter.MaxPayload),
	)
}

func TestSC16IS7x0_WriteThroughMCP2221(t *testing.T) {
	ctx := context.Background()
	hid := &hidBridge{level: 64}
	d := newBridgedDevice(t, hid)
	require.NoError(t, d.EnableFifo(ctx, true))
	hid.writes = nil

	n, err := d.Write(ctx, bytes.Repeat([]byte{'u'}, 64))
	require.NoError(t, err)
	assert.Equal(t, 64, n)

	var sent int
	for _, w := range hid.writes {
		require.LessOrEqual(t, len(w), adapter.MaxPayload)
		if len(w) > 1 && w[0] == regTHR<<3 {
			sent += len(w) - 1
		}
	}
	assert.Equal(t, 64, sent)
}

func TestSC16IS7x0_ReadThroughMCP2221(t *testing.T) {
	ctx := context.Background()
	d := newBridgedDevice(t, &hidBridge{level: 64})

	buf := make([]byte, 64)
	n, err := d.Read(ctx, buf)
	require.NoError(t, err)
	assert.Equal(t, 64, n)
	assert.Equal(t, bytes.Repeat([]byte{64}, 64), buf)
}
