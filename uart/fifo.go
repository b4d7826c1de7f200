package uart

import (
	"context"
	"fmt"

	"github.com/mklimuk/gnublin"
)

var (
	legacyRxTriggers = map[int]byte{8: 0x00, 16: 0x40, 56: 0x80, 60: 0xC0}
	legacyTxTriggers = map[int]byte{8: 0x00, 16: 0x10, 32: 0x20, 56: 0x30}
)

// EnableFifo switches the RX and TX FIFOs on or off.
func (d *SC16IS7x0) EnableFifo(ctx context.Context, enabled bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.enableFifo(ctx, enabled))
}

func (d *SC16IS7x0) enableFifo(ctx context.Context, enabled bool) error {
	fcr := d.fcr &^ fcrEnable
	if enabled {
		fcr |= fcrEnable
	}
	if err := d.writeFCR(ctx, fcr); err != nil {
		return wrapOp(fmt.Sprintf("enable fifo %t", enabled), err)
	}
	d.fifoEnabled = enabled
	return nil
}

// FifoEnabled reports the FIFO state last programmed through the handle.
func (d *SC16IS7x0) FifoEnabled() bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.fifoEnabled
}

// ResetRxFifo clears the receive FIFO.
func (d *SC16IS7x0) ResetRxFifo(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.resetFifo(ctx, fcrRxReset))
}

// ResetTxFifo clears the transmit FIFO.
func (d *SC16IS7x0) ResetTxFifo(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.resetFifo(ctx, fcrTxReset))
}

func (d *SC16IS7x0) resetFifo(ctx context.Context, bit byte) error {
	// reset bits clear themselves and never enter the shadow
	if err := d.writeReg(ctx, regFCR, d.fcr|bit); err != nil {
		return wrapOp("reset fifo", err)
	}
	d.log.Debug("fifo reset", "fcr", d.fcr|bit)
	return gnublin.Sleep(ctx, d.config.SettleDelay)
}

func (d *SC16IS7x0) writeFCR(ctx context.Context, fcr byte) error {
	if err := d.writeReg(ctx, regFCR, fcr); err != nil {
		return err
	}
	d.fcr = fcr
	return nil
}

// SetRxTriggerLevel sets the RX FIFO level raising the receive interrupt.
func (d *SC16IS7x0) SetRxTriggerLevel(ctx context.Context, level int) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setTriggerLevel(ctx, level, true))
}

// SetTxTriggerLevel sets the TX FIFO free space raising the transmit interrupt.
func (d *SC16IS7x0) SetTxTriggerLevel(ctx context.Context, level int) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setTriggerLevel(ctx, level, false))
}

func (d *SC16IS7x0) setTriggerLevel(ctx context.Context, level int, rx bool) error {
	dir := "tx"
	if rx {
		dir = "rx"
	}
	var err error
	switch d.config.TriggerMode {
	case TriggerLegacy:
		err = d.setLegacyTrigger(ctx, level, rx)
	default:
		err = d.setEnhancedTrigger(ctx, level, rx)
	}
	if err != nil {
		return wrapOp(fmt.Sprintf("set %s trigger level %d", dir, level), err)
	}
	d.log.Debug("trigger level set", "dir", dir, "level", level)
	return nil
}

func (d *SC16IS7x0) setEnhancedTrigger(ctx context.Context, level int, rx bool) error {
	if !validLevel(level) {
		return fmt.Errorf("%w: %d not in 4..60 step 4", ErrInvalidTriggerLevel, level)
	}
	return d.withTriggerRegisters(ctx, func() error {
		tlr, err := d.readReg(ctx, regTLR)
		if err != nil {
			return err
		}
		if rx {
			tlr = tlr&0x0F | byte(level/4)<<4
		} else {
			tlr = tlr&0xF0 | byte(level/4)
		}
		if err := d.writeReg(ctx, regTLR, tlr); err != nil {
			return err
		}
		// TLR only takes effect with the FCR trigger bits cleared
		return d.writeFCR(ctx, d.fcr&^(fcrRxTriggerMask|fcrTxTriggerMask))
	})
}

func (d *SC16IS7x0) setLegacyTrigger(ctx context.Context, level int, rx bool) error {
	table, mask, tlrMask := legacyTxTriggers, fcrTxTriggerMask, byte(0xF0)
	if rx {
		table, mask, tlrMask = legacyRxTriggers, fcrRxTriggerMask, 0x0F
	}
	bits, ok := table[level]
	if !ok {
		return fmt.Errorf("%w: %d not supported in legacy mode", ErrInvalidTriggerLevel, level)
	}
	return d.withTriggerRegisters(ctx, func() error {
		tlr, err := d.readReg(ctx, regTLR)
		if err != nil {
			return err
		}
		if err := d.writeReg(ctx, regTLR, tlr&tlrMask); err != nil {
			return err
		}
		return d.writeFCR(ctx, d.fcr&^mask|bits)
	})
}

// AvailableRxBytes returns the number of bytes waiting in the RX FIFO.
func (d *SC16IS7x0) AvailableRxBytes(ctx context.Context) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	n, err := d.rxLevel(ctx)
	return n, d.record(err)
}

// AvailableTxSpace returns the free space in the TX FIFO.
func (d *SC16IS7x0) AvailableTxSpace(ctx context.Context) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	n, err := d.txLevel(ctx)
	return n, d.record(err)
}

func (d *SC16IS7x0) rxLevel(ctx context.Context) (int, error) {
	n, err := d.readReg(ctx, regRXLVL)
	return int(n), err
}

func (d *SC16IS7x0) txLevel(ctx context.Context) (int, error) {
	n, err := d.readReg(ctx, regTXLVL)
	return int(n), err
}

// EmptyRxFifo reads and discards everything waiting in the RX FIFO and
// returns the number of dropped bytes.
func (d *SC16IS7x0) EmptyRxFifo(ctx context.Context) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	data, err := d.drain(ctx)
	return len(data), d.record(err)
}

// drain reads all bytes currently reported by RXLVL.
func (d *SC16IS7x0) drain(ctx context.Context) ([]byte, error) {
	avail, err := d.rxLevel(ctx)
	if err != nil {
		return nil, err
	}
	data := make([]byte, avail)
	for off := 0; off < avail; {
		n := min(avail-off, d.config.MaxTransfer)
		if err := d.readRegs(ctx, regRHR, data[off:off+n]); err != nil {
			return data[:off], err
		}
		off += n
	}
	return data, nil
}
