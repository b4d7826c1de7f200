package uart

import (
	"context"
	"fmt"
)

const (
	MinBaudRate = 300
	MaxBaudRate = 230400
)

// SupportedBaudRates lists the standard rates reachable with the default
// crystal without a divisor error.
var SupportedBaudRates = []uint32{300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 28800, 38400, 57600, 115200, 230400}

// Divisor returns the baud generator divisor for the given crystal.
func Divisor(crystal, baud uint32) uint16 {
	if baud == 0 {
		return 0
	}
	return uint16(crystal / (baud * 16))
}

// SetBaudRate programs the divisor latch for baud.
func (d *SC16IS7x0) SetBaudRate(ctx context.Context, baud uint32) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setBaudRate(ctx, baud))
}

func (d *SC16IS7x0) setBaudRate(ctx context.Context, baud uint32) error {
	if baud < MinBaudRate || baud > MaxBaudRate || baud > d.variant.MaxBaudRate {
		return fmt.Errorf("sc16is7x0: %w: %d outside [%d, %d]", ErrInvalidBaudRate, baud, MinBaudRate, MaxBaudRate)
	}
	divisor := Divisor(d.config.Crystal, baud)
	if divisor == 0 {
		return fmt.Errorf("sc16is7x0: %w: %d too fast for a %d Hz crystal", ErrInvalidBaudRate, baud, d.config.Crystal)
	}
	err := d.withBank(ctx, BankDivisorLatch, func() error {
		if err := d.writeReg(ctx, regDLL, byte(divisor)); err != nil {
			return err
		}
		return d.writeReg(ctx, regDLH, byte(divisor>>8))
	})
	if err != nil {
		return wrapOp(fmt.Sprintf("set baud rate %d", baud), err)
	}
	d.log.Debug("baud rate set", "baud", baud, "divisor", divisor)
	return nil
}

// BaudDivisor reads the divisor latch back.
func (d *SC16IS7x0) BaudDivisor(ctx context.Context) (uint16, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	divisor, err := d.baudDivisor(ctx)
	return divisor, d.record(err)
}

func (d *SC16IS7x0) baudDivisor(ctx context.Context) (uint16, error) {
	var dll, dlh byte
	err := d.withBank(ctx, BankDivisorLatch, func() error {
		var err error
		if dll, err = d.readReg(ctx, regDLL); err != nil {
			return err
		}
		dlh, err = d.readReg(ctx, regDLH)
		return err
	})
	if err != nil {
		return 0, wrapOp("read divisor", err)
	}
	return uint16(dlh)<<8 | uint16(dll), nil
}

// BaudRate computes the current baud rate from the divisor latch.
func (d *SC16IS7x0) BaudRate(ctx context.Context) (uint32, error) {
	divisor, err := d.BaudDivisor(ctx)
	if err != nil {
		return 0, err
	}
	if divisor == 0 {
		return 0, nil
	}
	return d.config.Crystal / (uint32(divisor) * 16), nil
}

// SetDataFormat writes word length, parity and stop bits to LCR.
func (d *SC16IS7x0) SetDataFormat(ctx context.Context, format DataFormat) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setDataFormat(ctx, format))
}

func (d *SC16IS7x0) setDataFormat(ctx context.Context, format DataFormat) error {
	if err := d.writeReg(ctx, regLCR, byte(format)&lcrFormatMask); err != nil {
		return wrapOp(fmt.Sprintf("set data format %s", format), err)
	}
	return nil
}

// DataFormat reads the data format bits of LCR.
func (d *SC16IS7x0) DataFormat(ctx context.Context) (DataFormat, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	lcr, err := d.readReg(ctx, regLCR)
	if err != nil {
		return 0, d.record(err)
	}
	return DataFormat(lcr & lcrFormatMask), d.record(nil)
}

// SetModemControl enables the TCR/TLR registers (MCR[2]) so flow control
// and trigger levels can be tuned.
func (d *SC16IS7x0) SetModemControl(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setModemControl(ctx))
}

func (d *SC16IS7x0) setModemControl(ctx context.Context) error {
	err := d.withEnhancedFunctions(ctx, func() error {
		mcr, err := d.readReg(ctx, regMCR)
		if err != nil {
			return err
		}
		return d.writeReg(ctx, regMCR, mcr|mcrTCRTLR)
	})
	if err != nil {
		return wrapOp("set modem control", err)
	}
	return nil
}

// SetFlowControl enables automatic RTS and/or CTS flow control. Software
// (XON/XOFF) flow control is not supported.
func (d *SC16IS7x0) SetFlowControl(ctx context.Context, flow FlowControl) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setFlowControl(ctx, flow))
}

func (d *SC16IS7x0) setFlowControl(ctx context.Context, flow FlowControl) error {
	if byte(flow)&^byte(FlowRTSCTS) != 0 {
		return fmt.Errorf("sc16is7x0: %w: flow control %#02x, only auto RTS/CTS is supported", ErrInvalidArgument, byte(flow))
	}
	err := d.withBank(ctx, BankEnhanced, func() error {
		efr, err := d.readReg(ctx, regEFR)
		if err != nil {
			return err
		}
		efr = efr&^(byte(FlowRTSCTS)|efrSoftwareFlow) | byte(flow)
		return d.writeReg(ctx, regEFR, efr)
	})
	if err != nil {
		return wrapOp(fmt.Sprintf("set flow control %s", flow), err)
	}
	return nil
}

// SetFlowTriggers sets the RX FIFO levels at which auto RTS resumes and
// halts the remote transmitter. Both are in [4, 60] in steps of 4 and resume
// must not exceed halt.
func (d *SC16IS7x0) SetFlowTriggers(ctx context.Context, resume, halt int) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setFlowTriggers(ctx, resume, halt))
}

func (d *SC16IS7x0) setFlowTriggers(ctx context.Context, resume, halt int) error {
	if !validLevel(resume) || !validLevel(halt) {
		return fmt.Errorf("sc16is7x0: %w: flow triggers resume %d halt %d", ErrInvalidTriggerLevel, resume, halt)
	}
	if resume > halt {
		return fmt.Errorf("sc16is7x0: %w: resume level %d above halt level %d", ErrInvalidTriggerLevel, resume, halt)
	}
	tcr := byte(resume/4)<<4 | byte(halt/4)
	err := d.withTriggerRegisters(ctx, func() error {
		return d.writeReg(ctx, regTCR, tcr)
	})
	if err != nil {
		return wrapOp("set flow triggers", err)
	}
	return nil
}

// SetInterruptMask enables the given interrupt sources and disables the rest.
func (d *SC16IS7x0) SetInterruptMask(ctx context.Context, mask InterruptMask) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.setInterruptMask(ctx, mask))
}

func (d *SC16IS7x0) setInterruptMask(ctx context.Context, mask InterruptMask) error {
	// IER[7:4] only take writes while EFR[4] is set
	err := d.withEnhancedFunctions(ctx, func() error {
		return d.writeReg(ctx, regIER, byte(mask)&ierUpperMask)
	})
	if err == nil {
		err = d.writeReg(ctx, regIER, byte(mask))
	}
	if err != nil {
		return wrapOp(fmt.Sprintf("set interrupt mask %s", mask), err)
	}
	return nil
}

// InterruptMask reads IER back.
func (d *SC16IS7x0) InterruptMask(ctx context.Context) (InterruptMask, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	ier, err := d.readReg(ctx, regIER)
	return InterruptMask(ier), d.record(err)
}

// EnableLoopback routes TX back to RX internally.
func (d *SC16IS7x0) EnableLoopback(ctx context.Context, enabled bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	mcr, err := d.readReg(ctx, regMCR)
	if err != nil {
		return d.record(err)
	}
	if enabled {
		mcr |= mcrLoopback
	} else {
		mcr &^= mcrLoopback
	}
	return d.record(d.writeReg(ctx, regMCR, mcr))
}

// LineStatus reads LSR. Reading clears the error bits.
func (d *SC16IS7x0) LineStatus(ctx context.Context) (LineStatus, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	lsr, err := d.readReg(ctx, regLSR)
	return LineStatus(lsr), d.record(err)
}

// ModemStatus reads MSR. Reading clears the delta bits.
func (d *SC16IS7x0) ModemStatus(ctx context.Context) (ModemStatus, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	msr, err := d.readReg(ctx, regMSR)
	return ModemStatus(msr), d.record(err)
}

func validLevel(level int) bool {
	return level >= 4 && level <= 60 && level%4 == 0
}
