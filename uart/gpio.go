package uart

import (
	"context"
	"fmt"

	"github.com/mklimuk/gnublin"
)

func (d *SC16IS7x0) checkGPIO() error {
	if !d.variant.HasGPIO() {
		return fmt.Errorf("sc16is7x0: %s: %w", d.variant.Name, ErrNoGPIO)
	}
	return nil
}

func (d *SC16IS7x0) checkPin(pin int) error {
	if err := d.checkGPIO(); err != nil {
		return err
	}
	if pin < 0 || pin >= d.variant.GPIOPins {
		return fmt.Errorf("sc16is7x0: %w: %d not in [0, %d)", ErrInvalidPin, pin, d.variant.GPIOPins)
	}
	return nil
}

// updateBit is a read-modify-write of one bit of a general register.
func (d *SC16IS7x0) updateBit(ctx context.Context, reg byte, pin int, set bool) error {
	val, err := d.readReg(ctx, reg)
	if err != nil {
		return err
	}
	if set {
		val |= 1 << pin
	} else {
		val &^= 1 << pin
	}
	return d.writeReg(ctx, reg, val)
}

// InitIO writes the I/O control register and seeds the interrupt latch with
// the current pin state.
func (d *SC16IS7x0) InitIO(ctx context.Context, ctrl IOControl) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.initIO(ctx, ctrl))
}

func (d *SC16IS7x0) initIO(ctx context.Context, ctrl IOControl) error {
	if err := d.checkGPIO(); err != nil {
		return err
	}
	if err := d.writeReg(ctx, regIOCTRL, byte(ctrl)); err != nil {
		return wrapOp("init io", err)
	}
	state, err := d.readReg(ctx, regIOSTATE)
	if err != nil {
		return wrapOp("init io", err)
	}
	d.ioLatch = state
	return nil
}

// PinMode sets the direction of a single GPIO pin.
func (d *SC16IS7x0) PinMode(ctx context.Context, pin int, dir gnublin.Direction) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkPin(pin); err != nil {
		return d.record(err)
	}
	if err := d.updateBit(ctx, regIODIR, pin, dir == gnublin.Output); err != nil {
		return d.record(wrapOp(fmt.Sprintf("pin %d mode %s", pin, dir), err))
	}
	return d.record(nil)
}

// PortMode sets the direction of all pins at once, bit set meaning output.
func (d *SC16IS7x0) PortMode(ctx context.Context, outputs byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkGPIO(); err != nil {
		return d.record(err)
	}
	return d.record(d.writeReg(ctx, regIODIR, outputs))
}

// DigitalWrite drives an output pin.
func (d *SC16IS7x0) DigitalWrite(ctx context.Context, pin int, high bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkPin(pin); err != nil {
		return d.record(err)
	}
	if err := d.updateBit(ctx, regIOSTATE, pin, high); err != nil {
		return d.record(wrapOp(fmt.Sprintf("write pin %d", pin), err))
	}
	return d.record(nil)
}

func (d *SC16IS7x0) WritePort(ctx context.Context, value byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkGPIO(); err != nil {
		return d.record(err)
	}
	return d.record(d.writeReg(ctx, regIOSTATE, value))
}

// DigitalRead returns the level of a pin.
func (d *SC16IS7x0) DigitalRead(ctx context.Context, pin int) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkPin(pin); err != nil {
		return false, d.record(err)
	}
	state, err := d.readReg(ctx, regIOSTATE)
	if err != nil {
		return false, d.record(wrapOp(fmt.Sprintf("read pin %d", pin), err))
	}
	switch (state >> pin) & 0x01 {
	case 0:
		return false, d.record(nil)
	case 1:
		return true, d.record(nil)
	default:
		return false, d.record(fmt.Errorf("sc16is7x0: %w: pin %d state %#02x", ErrProtocol, pin, state))
	}
}

func (d *SC16IS7x0) ReadPort(ctx context.Context) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkGPIO(); err != nil {
		return 0, d.record(err)
	}
	state, err := d.readReg(ctx, regIOSTATE)
	return state, d.record(err)
}

// PinIntEnable enables or disables the change interrupt of one pin.
func (d *SC16IS7x0) PinIntEnable(ctx context.Context, pin int, enabled bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkPin(pin); err != nil {
		return d.record(err)
	}
	if err := d.updateBit(ctx, regIOINTEN, pin, enabled); err != nil {
		return d.record(wrapOp(fmt.Sprintf("pin %d interrupt", pin), err))
	}
	return d.record(nil)
}

func (d *SC16IS7x0) PortIntEnable(ctx context.Context, mask byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkGPIO(); err != nil {
		return d.record(err)
	}
	return d.record(d.writeReg(ctx, regIOINTEN, mask))
}

// ReadIntFlagPort returns the input pins with interrupts enabled whose state
// differs from the latch, then moves the latch to the current state.
func (d *SC16IS7x0) ReadIntFlagPort(ctx context.Context) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.checkGPIO(); err != nil {
		return 0, d.record(err)
	}
	changed, _, err := d.readIntFlags(ctx)
	return changed, d.record(err)
}

func (d *SC16IS7x0) readIntFlags(ctx context.Context) (changed, state byte, err error) {
	regs := make([]byte, 3)
	for i, reg := range []byte{regIODIR, regIOSTATE, regIOINTEN} {
		if regs[i], err = d.readReg(ctx, reg); err != nil {
			return 0, 0, wrapOp("read interrupt flags", err)
		}
	}
	dir, state, inten := regs[0], regs[1], regs[2]
	changed = (state ^ d.ioLatch) &^ dir & inten
	d.ioLatch = state
	return changed, state, nil
}
