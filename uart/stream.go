package uart

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mklimuk/gnublin"
)

// SendByte waits until the transmitter can take one more byte and writes it.
func (d *SC16IS7x0) SendByte(ctx context.Context, b byte) error {
	_, err := d.Write(ctx, []byte{b})
	return err
}

// Write transmits p, waiting for TX FIFO space as needed. The device lock is
// taken per chunk so other calls may run while the FIFO drains.
//
// When the deadline of ctx (or the write timeout option) expires the number
// of bytes already handed to the chip is returned together with an error
// matching ErrWriteTimeout.
func (d *SC16IS7x0) Write(ctx context.Context, p []byte) (int, error) {
	if d.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.WriteTimeout)
		defer cancel()
	}
	written := 0
	for written < len(p) {
		n, err := d.writeChunk(ctx, p[written:])
		written += n
		if err != nil {
			return written, d.setLastErr(err)
		}
		if n > 0 {
			continue
		}
		if err := gnublin.Sleep(ctx, d.config.PollInterval); err != nil {
			return written, d.setLastErr(waitErr(written, len(p), err))
		}
	}
	return written, d.setLastErr(nil)
}

// writeChunk writes as much of p as the transmitter accepts right now.
func (d *SC16IS7x0) writeChunk(ctx context.Context, p []byte) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	space, err := d.txSpace(ctx)
	if err != nil {
		return 0, wrapOp("write", err)
	}
	// the register sub-address travels in the same transaction as the data
	n := min(space, len(p), max(d.config.MaxTransfer-1, 1))
	if n <= 0 {
		return 0, nil
	}
	if d.fifoEnabled {
		if err := d.writeReg(ctx, regTHR, p[:n]...); err != nil {
			return 0, wrapOp("write", err)
		}
		return n, nil
	}
	for i := 0; i < n; i++ {
		if err := d.writeReg(ctx, regTHR, p[i]); err != nil {
			return i, wrapOp("write", err)
		}
	}
	return n, nil
}

// txSpace is TXLVL with the FIFO enabled and the THR empty flag otherwise.
func (d *SC16IS7x0) txSpace(ctx context.Context) (int, error) {
	if d.fifoEnabled {
		return d.txLevel(ctx)
	}
	lsr, err := d.readReg(ctx, regLSR)
	if err != nil {
		return 0, err
	}
	if lsr&lsrTHREmpty != 0 {
		return 1, nil
	}
	return 0, nil
}

func waitErr(written, total int, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("sc16is7x0: %w after %d of %d bytes: %w", ErrWriteTimeout, written, total, err)
	}
	return fmt.Errorf("sc16is7x0: %w: write interrupted after %d of %d bytes: %w", ErrTransport, written, total, err)
}

func (d *SC16IS7x0) setLastErr(err error) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(err)
}

// ReceiveByte returns the next received byte. ok is false when the RX FIFO is
// empty, which is not an error.
func (d *SC16IS7x0) ReceiveByte(ctx context.Context) (b byte, ok bool, err error) {
	buf := []byte{0}
	n, err := d.Read(ctx, buf)
	if err != nil || n == 0 {
		return 0, false, err
	}
	return buf[0], true, nil
}

// Read copies up to len(p) received bytes into p without waiting. Fewer bytes
// than requested, zero included, is not an error.
func (d *SC16IS7x0) Read(ctx context.Context, p []byte) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	n, err := d.read(ctx, p)
	return n, d.record(err)
}

func (d *SC16IS7x0) read(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	avail, err := d.rxLevel(ctx)
	if err != nil {
		return 0, wrapOp("read", err)
	}
	n := min(avail, len(p))
	for off := 0; off < n; {
		chunk := min(n-off, d.config.MaxTransfer)
		if err := d.readRegs(ctx, regRHR, p[off:off+chunk]); err != nil {
			return off, wrapOp("read", err)
		}
		off += chunk
	}
	return n, nil
}

// Stream binds the device to ctx as an io.ReadWriter. Its Read blocks until
// at least one byte has been received.
func (d *SC16IS7x0) Stream(ctx context.Context) io.ReadWriter {
	return &stream{ctx: ctx, dev: d}
}

type stream struct {
	ctx context.Context
	dev *SC16IS7x0
}

func (s *stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := s.dev.Read(s.ctx, p)
		if err != nil || n > 0 {
			return n, err
		}
		if err := gnublin.Sleep(s.ctx, s.dev.config.PollInterval); err != nil {
			return 0, err
		}
	}
}

func (s *stream) Write(p []byte) (int, error) {
	return s.dev.Write(s.ctx, p)
}
