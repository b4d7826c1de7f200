package uart

import (
	"context"
	"errors"
	"fmt"
)

// Bank is one of the overlapping register sets selected through LCR.
type Bank int

const (
	BankGeneral Bank = iota
	// BankDivisorLatch exposes DLL/DLH, selected by LCR[7].
	BankDivisorLatch
	// BankEnhanced exposes EFR and the XON/XOFF registers, selected by LCR = 0xBF.
	BankEnhanced
)

func (b Bank) String() string {
	switch b {
	case BankGeneral:
		return "general"
	case BankDivisorLatch:
		return "divisor-latch"
	case BankEnhanced:
		return "enhanced"
	}
	return fmt.Sprintf("bank(%d)", int(b))
}

// withBank runs op with the requested register set selected. LCR is restored
// to the value it had on entry on every return path; a failed restoration is
// joined to the error of op.
func (d *SC16IS7x0) withBank(ctx context.Context, bank Bank, op func() error) (err error) {
	lcr, err := d.readReg(ctx, regLCR)
	if err != nil {
		return err
	}
	var sel byte
	switch bank {
	case BankGeneral:
		if lcr&lcrDivisorLatch == 0 {
			return op()
		}
		sel = lcr &^ lcrDivisorLatch
	case BankDivisorLatch:
		sel = lcr | lcrDivisorLatch
	case BankEnhanced:
		sel = lcrEnhanced
	default:
		return fmt.Errorf("sc16is7x0: %w: register bank %d", ErrInvalidArgument, bank)
	}
	defer func() {
		if rerr := d.writeReg(ctx, regLCR, lcr); rerr != nil {
			err = errors.Join(err, wrapOp(fmt.Sprintf("restore LCR %#02x", lcr), rerr))
		}
	}()
	if err = d.writeReg(ctx, regLCR, sel); err != nil {
		return err
	}
	return op()
}

// withEnhancedFunctions runs op in the general register set with EFR[4]
// set, which unlocks IER[7:4], FCR[5:4], MCR[7:5] and, together with MCR[2],
// the TCR and TLR registers. EFR and LCR are restored on every return path.
func (d *SC16IS7x0) withEnhancedFunctions(ctx context.Context, op func() error) error {
	var efr byte
	err := d.withBank(ctx, BankEnhanced, func() error {
		var err error
		efr, err = d.readReg(ctx, regEFR)
		if err != nil {
			return err
		}
		return d.writeReg(ctx, regEFR, efr|efrEnhancedFunctions)
	})
	if err != nil {
		return err
	}
	opErr := d.withBank(ctx, BankGeneral, op)
	if efr&efrEnhancedFunctions != 0 {
		return opErr
	}
	restoreErr := d.withBank(ctx, BankEnhanced, func() error {
		return d.writeReg(ctx, regEFR, efr)
	})
	if restoreErr != nil {
		restoreErr = wrapOp(fmt.Sprintf("restore EFR %#02x", efr), restoreErr)
	}
	return errors.Join(opErr, restoreErr)
}

// withTriggerRegisters runs op with TCR and TLR mapped at their addresses.
// MCR[2] is set for the duration of op when it was clear.
func (d *SC16IS7x0) withTriggerRegisters(ctx context.Context, op func() error) error {
	return d.withEnhancedFunctions(ctx, func() error {
		mcr, err := d.readReg(ctx, regMCR)
		if err != nil {
			return err
		}
		if mcr&mcrTCRTLR != 0 {
			return op()
		}
		if err := d.writeReg(ctx, regMCR, mcr|mcrTCRTLR); err != nil {
			return err
		}
		opErr := op()
		if err := d.writeReg(ctx, regMCR, mcr); err != nil {
			return errors.Join(opErr, wrapOp(fmt.Sprintf("restore MCR %#02x", mcr), err))
		}
		return opErr
	})
}
