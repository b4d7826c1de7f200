package display

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spiRecorder struct {
	frames [][]byte
	err    error
}

func (s *spiRecorder) WriteBytes(data []byte) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func newTestShiftRegister(w *spiRecorder) *ShiftRegister {
	return &ShiftRegister{conn: func() (byteWriter, error) { return w, nil }}
}

func TestShiftRegister_DigitalWrite(t *testing.T) {
	ctx := context.Background()
	w := &spiRecorder{}
	s := newTestShiftRegister(w)

	require.NoError(t, s.DigitalWrite(ctx, 0, true))
	require.NoError(t, s.DigitalWrite(ctx, 5, true))
	require.NoError(t, s.DigitalWrite(ctx, 0, false))
	assert.Equal(t, [][]byte{{0x01}, {0x21}, {0x20}}, w.frames)
	assert.Equal(t, byte(0x20), s.State())
	assert.ErrorIs(t, s.DigitalWrite(ctx, 8, true), ErrUnknownPin)
}

func TestShiftRegister_FailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	w := &spiRecorder{}
	s := newTestShiftRegister(w)
	require.NoError(t, s.WritePort(ctx, 0x0F))

	w.err = errors.New("spi closed")
	assert.ErrorContains(t, s.DigitalWrite(ctx, 7, true), "spi closed")
	assert.Equal(t, byte(0x0F), s.State())
}

func TestShiftRegister_DrivesLCD(t *testing.T) {
	w := &spiRecorder{}
	tr := newFastTransport(newTestShiftRegister(w), DefaultPinMap)
	require.NoError(t, tr.Send(context.Background(), 0x80, Command))
	// RS low, D7 high with EN pulse, then the low nibble pulse
	assert.Len(t, w.frames, 13)
	assert.Equal(t, byte(0x20), w.frames[4][0])
	assert.Equal(t, byte(0x22), w.frames[5][0])
	assert.Equal(t, byte(0x20), w.frames[6][0])
}
