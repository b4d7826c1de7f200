package display

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	b    byte
	mode Mode
}

type recorder struct {
	frames []frame
	err    error
}

func (r *recorder) Send(_ context.Context, b byte, mode Mode) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame{b, mode})
	return nil
}

func (r *recorder) commands() []byte {
	var res []byte
	for _, f := range r.frames {
		if f.mode == Command {
			res = append(res, f.b)
		}
	}
	return res
}

func (r *recorder) text() string {
	var res []byte
	for _, f := range r.frames {
		if f.mode == Data {
			res = append(res, f.b)
		}
	}
	return string(res)
}

func TestLCD_Init(t *testing.T) {
	rec := &recorder{}
	lcd := NewLCD(rec)
	require.NoError(t, lcd.Init(context.Background()))
	assert.Equal(t, []byte{0x33, 0x32, 0x28, 0x0C, 0x06, 0x01}, rec.commands())
	assert.Empty(t, rec.text())
	assert.Equal(t, 2, lcd.Rows())
	assert.Equal(t, 16, lcd.Cols())
}

func TestLCD_PrintRow(t *testing.T) {
	tests := []struct {
		row      int
		given    string
		address  byte
		expected string
	}{
		{1, "hello", 0x80, fmt.Sprintf("%-20s", "hello")},
		{2, "exactly twenty c", 0xC0, fmt.Sprintf("%-20s", "exactly twenty c")},
		{3, "this line is far too long", 0x94, "this line is far too"},
		{4, "", 0xD4, fmt.Sprintf("%20s", "")},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString([]byte{test.address}), func(t *testing.T) {
			rec := &recorder{}
			lcd := NewLCD(rec, WithGeometry(4, 20))
			require.NoError(t, lcd.PrintRow(context.Background(), test.given, test.row))
			assert.Equal(t, []byte{test.address}, rec.commands())
			assert.Equal(t, test.expected, rec.text())
		})
	}
}

func TestLCD_PrintAt(t *testing.T) {
	rec := &recorder{}
	lcd := NewLCD(rec)
	require.NoError(t, lcd.PrintAt(context.Background(), "23.5C", 2, 10))
	assert.Equal(t, []byte{0xC0}, rec.commands())
	assert.Equal(t, fmt.Sprintf("%10s%-6s", "", "23.5C"), rec.text())

	rec.frames = nil
	require.NoError(t, lcd.Print(context.Background(), "T"))
	assert.Equal(t, fmt.Sprintf("%-16s", "T"), rec.text())
}

func TestLCD_InvalidPosition(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	lcd := NewLCD(rec)
	assert.ErrorIs(t, lcd.PrintRow(ctx, "x", 0), ErrInvalidPosition)
	assert.ErrorIs(t, lcd.PrintRow(ctx, "x", 3), ErrInvalidPosition)
	assert.ErrorIs(t, lcd.PrintAt(ctx, "x", 1, 16), ErrInvalidPosition)
	assert.ErrorIs(t, lcd.Offset(ctx, -1), ErrInvalidPosition)
	assert.Empty(t, rec.frames)
}

func TestLCD_Control(t *testing.T) {
	tests := []struct {
		power, cursor, blink bool
		expected             byte
	}{
		{false, false, false, 0x08},
		{true, false, false, 0x0C},
		{true, true, false, 0x0E},
		{true, true, true, 0x0F},
		{false, false, true, 0x09},
	}
	for _, test := range tests {
		t.Run(hex.EncodeToString([]byte{test.expected}), func(t *testing.T) {
			rec := &recorder{}
			lcd := NewLCD(rec)
			require.NoError(t, lcd.ControlDisplay(context.Background(), test.power, test.cursor, test.blink))
			assert.Equal(t, []byte{test.expected}, rec.commands())
		})
	}
}

func TestLCD_ClearAndHome(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	lcd := NewLCD(rec)
	require.NoError(t, lcd.Offset(ctx, 3))
	assert.Equal(t, "   ", rec.text())
	require.NoError(t, lcd.Clear(ctx))
	require.NoError(t, lcd.ReturnHome(ctx))
	assert.Equal(t, []byte{0x01, 0x02}, rec.commands())

	rec.err = errors.New("bus gone")
	assert.ErrorContains(t, lcd.Clear(ctx), "bus gone")
}
