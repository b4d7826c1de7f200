// Package trace carries a per-call switch enabling frame dumps and a bus
// decorator that logs every I2C transaction when the switch is on.
package trace

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"

	"github.com/mklimuk/gnublin"
)

type ctxIndex int

const ctxIndexTrace ctxIndex = iota

// With returns a context with frame tracing switched on or off.
func With(ctx context.Context, enabled bool) context.Context {
	return context.WithValue(ctx, ctxIndexTrace, enabled)
}

// Enabled reports whether ctx asks for frame tracing.
func Enabled(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexTrace).(bool)
	return ok && val
}

// Dump logs a frame as a hex dump at debug level when tracing is enabled.
func Dump(ctx context.Context, log *slog.Logger, msg string, frame []byte) {
	if !Enabled(ctx) {
		return
	}
	log.DebugContext(ctx, msg, "len", len(frame), "frame", "\n"+hex.Dump(frame))
}

var (
	_ gnublin.I2CBus         = &Bus{}
	_ gnublin.RegisterReader = &Bus{}
)

// Bus wraps an I2C bus and logs each transaction.
type Bus struct {
	next gnublin.I2CBus
	log  *slog.Logger
}

func NewBus(next gnublin.I2CBus, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{next: next, log: log}
}

func (b *Bus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.next.WriteToAddr(ctx, address, buffer)
	if Enabled(ctx) {
		b.log.DebugContext(ctx, "i2c write", "addr", hexByte(address), "data", hex.EncodeToString(buffer), "error", err)
	}
	return err
}

func (b *Bus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	err := b.next.ReadFromAddr(ctx, address, buffer)
	if Enabled(ctx) {
		b.log.DebugContext(ctx, "i2c read", "addr", hexByte(address), "data", hex.EncodeToString(buffer), "error", err)
	}
	return err
}

// ReadFromReg uses a combined transaction when the wrapped bus offers one.
func (b *Bus) ReadFromReg(ctx context.Context, address byte, reg byte, buffer []byte) error {
	err := gnublin.ReadRegister(ctx, b.next, address, reg, buffer)
	if Enabled(ctx) {
		b.log.DebugContext(ctx, "i2c register read", "addr", hexByte(address), "reg", hexByte(reg), "data", hex.EncodeToString(buffer), "error", err)
	}
	return err
}

func (b *Bus) Release(ctx context.Context) error {
	if Enabled(ctx) {
		b.log.DebugContext(ctx, "i2c release")
	}
	return b.next.Release(ctx)
}

// Close closes the wrapped bus when it is closable.
func (b *Bus) Close() error {
	if c, ok := b.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func hexByte(b byte) string {
	return "0x" + hex.EncodeToString([]byte{b})
}
