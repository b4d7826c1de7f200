package uart

import (
	"context"
	"fmt"
)

// InterruptCause is the decoded source reported by the interrupt
// identification register.
type InterruptCause int

const (
	NoInterrupt InterruptCause = iota
	ReceiverLineStatusError
	ReceiverTimeout
	ReceiveDataAvailable
	TransmitSpaceAvailable
	ModemStatusChanged
	GpioPinChanged
	XoffReceived
	CtsRtsChanged
)

var causeNames = map[InterruptCause]string{
	NoInterrupt:             "none",
	ReceiverLineStatusError: "receiver-line-status",
	ReceiverTimeout:         "receiver-timeout",
	ReceiveDataAvailable:    "rhr",
	TransmitSpaceAvailable:  "thr",
	ModemStatusChanged:      "modem-status",
	GpioPinChanged:          "gpio",
	XoffReceived:            "xoff",
	CtsRtsChanged:           "cts-rts",
}

func (c InterruptCause) String() string {
	if name, ok := causeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("cause(%d)", int(c))
}

// causeFromIIR decodes the IIR value in priority order as reported by the chip.
func causeFromIIR(iir byte) (InterruptCause, error) {
	if iir&iirNoInterrupt != 0 {
		return NoInterrupt, nil
	}
	switch iir & iirSourceMask {
	case 0x06:
		return ReceiverLineStatusError, nil
	case 0x0C:
		return ReceiverTimeout, nil
	case 0x04:
		return ReceiveDataAvailable, nil
	case 0x02:
		return TransmitSpaceAvailable, nil
	case 0x00:
		return ModemStatusChanged, nil
	case 0x30:
		return GpioPinChanged, nil
	case 0x10:
		return XoffReceived, nil
	case 0x20:
		return CtsRtsChanged, nil
	}
	return NoInterrupt, fmt.Errorf("sc16is7x0: %w: unknown interrupt source in IIR %#02x", ErrProtocol, iir)
}

// IsIntPending reports whether the chip signals an interrupt.
func (d *SC16IS7x0) IsIntPending(ctx context.Context) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	iir, err := d.readReg(ctx, regIIR)
	if err != nil {
		return false, d.record(err)
	}
	return iir&iirNoInterrupt == 0, d.record(nil)
}

// WhichInt reads IIR and decodes the highest priority pending source.
// Reading IIR clears the THR, Xoff and CTS/RTS sources.
func (d *SC16IS7x0) WhichInt(ctx context.Context) (InterruptCause, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	cause, err := d.whichInt(ctx)
	return cause, d.record(err)
}

func (d *SC16IS7x0) whichInt(ctx context.Context) (InterruptCause, error) {
	iir, err := d.readReg(ctx, regIIR)
	if err != nil {
		return NoInterrupt, err
	}
	return causeFromIIR(iir)
}

// OnDataReceived registers the receiver of bytes drained by PollInt. A nil
// function unregisters it.
func (d *SC16IS7x0) OnDataReceived(fn func(data []byte)) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.onData = fn
}

// OnSpaceAvailable is called by PollInt with the TX FIFO free space.
func (d *SC16IS7x0) OnSpaceAvailable(fn func(space int)) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.onSpace = fn
}

// OnIOChanged is called by PollInt once per changed input pin.
func (d *SC16IS7x0) OnIOChanged(fn func(pin int, high bool)) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.onIO = fn
}

func (d *SC16IS7x0) OnLineStatus(fn func(status LineStatus)) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.onLine = fn
}

func (d *SC16IS7x0) OnModemStatus(fn func(status ModemStatus)) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.onModem = fn
}

// PollInt services the pending interrupt, if any, and returns the number of
// events handled. Callbacks run after the device lock is released and may
// call back into the device.
func (d *SC16IS7x0) PollInt(ctx context.Context) (int, error) {
	d.mx.Lock()
	events, err := d.pollInt(ctx)
	d.record(err)
	d.mx.Unlock()
	if err != nil {
		return 0, err
	}
	for _, fire := range events {
		fire()
	}
	return len(events), nil
}

// pollInt collects one closure per handled event. A source without a
// registered callback still counts as handled.
func (d *SC16IS7x0) pollInt(ctx context.Context) ([]func(), error) {
	cause, err := d.whichInt(ctx)
	if err != nil {
		return nil, wrapOp("poll interrupt", err)
	}
	if cause != NoInterrupt {
		d.log.Debug("interrupt", "cause", cause)
	}
	nop := func() {}
	switch cause {
	case NoInterrupt:
		return nil, nil
	case ReceiverLineStatusError:
		lsr, err := d.readReg(ctx, regLSR)
		if err != nil {
			return nil, wrapOp("poll interrupt", err)
		}
		if fn := d.onLine; fn != nil {
			return []func(){func() { fn(LineStatus(lsr)) }}, nil
		}
		return []func(){nop}, nil
	case ReceiverTimeout, ReceiveDataAvailable:
		// without a receiver the bytes stay in the FIFO for Read
		fn := d.onData
		if fn == nil {
			return []func(){nop}, nil
		}
		data, err := d.drain(ctx)
		if err != nil {
			return nil, wrapOp("poll interrupt", err)
		}
		if len(data) > 0 {
			return []func(){func() { fn(data) }}, nil
		}
		return []func(){nop}, nil
	case TransmitSpaceAvailable:
		fn := d.onSpace
		if fn == nil {
			return []func(){nop}, nil
		}
		space, err := d.txLevel(ctx)
		if err != nil {
			return nil, wrapOp("poll interrupt", err)
		}
		return []func(){func() { fn(space) }}, nil
	case ModemStatusChanged:
		msr, err := d.readReg(ctx, regMSR)
		if err != nil {
			return nil, wrapOp("poll interrupt", err)
		}
		if fn := d.onModem; fn != nil {
			return []func(){func() { fn(ModemStatus(msr)) }}, nil
		}
		return []func(){nop}, nil
	case GpioPinChanged:
		if !d.variant.HasGPIO() {
			return nil, fmt.Errorf("sc16is7x0: %w: gpio interrupt on %s", ErrProtocol, d.variant.Name)
		}
		changed, state, err := d.readIntFlags(ctx)
		if err != nil {
			return nil, wrapOp("poll interrupt", err)
		}
		var events []func()
		fn := d.onIO
		for pin := 0; pin < d.variant.GPIOPins; pin++ {
			if changed&(1<<pin) == 0 {
				continue
			}
			if fn == nil {
				events = append(events, nop)
				continue
			}
			pin, high := pin, state&(1<<pin) != 0
			events = append(events, func() { fn(pin, high) })
		}
		return events, nil
	case XoffReceived, CtsRtsChanged:
		// cleared by the IIR read
		return []func(){nop}, nil
	}
	return nil, fmt.Errorf("sc16is7x0: %w: unhandled interrupt cause %s", ErrProtocol, cause)
}
