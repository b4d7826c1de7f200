package uart

import (
	"fmt"
	"strings"
)

// General register set (LCR[7] = 0).
const (
	regRHR     byte = 0x00 // receive holding (read)
	regTHR     byte = 0x00 // transmit holding (write)
	regIER     byte = 0x01
	regIIR     byte = 0x02 // interrupt identification (read)
	regFCR     byte = 0x02 // FIFO control (write)
	regLCR     byte = 0x03
	regMCR     byte = 0x04
	regLSR     byte = 0x05
	regMSR     byte = 0x06
	regSPR     byte = 0x07
	regTCR     byte = 0x06 // EFR[4] = 1 and MCR[2] = 1
	regTLR     byte = 0x07 // EFR[4] = 1 and MCR[2] = 1
	regTXLVL   byte = 0x08
	regRXLVL   byte = 0x09
	regIODIR   byte = 0x0A
	regIOSTATE byte = 0x0B
	regIOINTEN byte = 0x0C
	regIOCTRL  byte = 0x0E
	regEFCR    byte = 0x0F
)

// Special register set (LCR[7] = 1, LCR != 0xBF).
const (
	regDLL byte = 0x00
	regDLH byte = 0x01
)

// Enhanced register set (LCR = 0xBF).
const (
	regEFR   byte = 0x02
	regXON1  byte = 0x04
	regXON2  byte = 0x05
	regXOFF1 byte = 0x06
	regXOFF2 byte = 0x07
)

const (
	lcrDivisorLatch byte = 0x80
	lcrEnhanced     byte = 0xBF
	lcrFormatMask   byte = 0x3F

	efrSoftwareFlow      byte = 0x0F
	efrEnhancedFunctions byte = 0x10

	mcrTCRTLR    byte = 0x04
	mcrLoopback  byte = 0x10
	ierUpperMask byte = 0xF0

	fcrEnable        byte = 0x01
	fcrRxReset       byte = 0x02
	fcrTxReset       byte = 0x04
	fcrTxTriggerMask byte = 0x30
	fcrRxTriggerMask byte = 0xC0

	lsrTHREmpty byte = 0x20

	iirNoInterrupt byte = 0x01
	iirSourceMask  byte = 0x3E

	ioctrlSoftReset byte = 0x08
)

// DataFormat is the pre-encoded word length, parity and stop bits value
// written to the low bits of LCR.
type DataFormat byte

const (
	Format5N1 DataFormat = 0x00
	Format6N1 DataFormat = 0x01
	Format7N1 DataFormat = 0x02
	Format8N1 DataFormat = 0x03
	Format5N2 DataFormat = 0x04
	Format6N2 DataFormat = 0x05
	Format7N2 DataFormat = 0x06
	Format8N2 DataFormat = 0x07
	Format5O1 DataFormat = 0x08
	Format6O1 DataFormat = 0x09
	Format7O1 DataFormat = 0x0A
	Format8O1 DataFormat = 0x0B
	Format5O2 DataFormat = 0x0C
	Format6O2 DataFormat = 0x0D
	Format7O2 DataFormat = 0x0E
	Format8O2 DataFormat = 0x0F
	Format5E1 DataFormat = 0x18
	Format6E1 DataFormat = 0x19
	Format7E1 DataFormat = 0x1A
	Format8E1 DataFormat = 0x1B
	Format5E2 DataFormat = 0x1C
	Format6E2 DataFormat = 0x1D
	Format7E2 DataFormat = 0x1E
	Format8E2 DataFormat = 0x1F
)

// WordLength returns the number of data bits (5 to 8).
func (f DataFormat) WordLength() int {
	return int(f&0x03) + 5
}

// StopBits returns 1 or 2. For 5 bit words the second stop bit is 1.5 bit long.
func (f DataFormat) StopBits() int {
	if f&0x04 != 0 {
		return 2
	}
	return 1
}

// Parity returns 'N', 'O' or 'E'; 'S' for forced (stick) parity.
func (f DataFormat) Parity() byte {
	switch {
	case f&0x08 == 0:
		return 'N'
	case f&0x20 != 0:
		return 'S'
	case f&0x10 != 0:
		return 'E'
	default:
		return 'O'
	}
}

func (f DataFormat) String() string {
	return fmt.Sprintf("%d%c%d", f.WordLength(), f.Parity(), f.StopBits())
}

// ParseDataFormat decodes notations like "8N1" or "7E2".
func ParseDataFormat(s string) (DataFormat, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return 0, fmt.Errorf("%w: data format %q", ErrInvalidArgument, s)
	}
	var f DataFormat
	switch s[0] {
	case '5', '6', '7', '8':
		f = DataFormat(s[0] - '5')
	default:
		return 0, fmt.Errorf("%w: word length in %q", ErrInvalidArgument, s)
	}
	switch s[1] {
	case 'N':
	case 'O':
		f |= 0x08
	case 'E':
		f |= 0x18
	default:
		return 0, fmt.Errorf("%w: parity in %q", ErrInvalidArgument, s)
	}
	switch s[2] {
	case '1':
	case '2':
		f |= 0x04
	default:
		return 0, fmt.Errorf("%w: stop bits in %q", ErrInvalidArgument, s)
	}
	return f, nil
}

// FlowControl is the hardware auto flow control mask written to EFR.
type FlowControl byte

const (
	FlowDisabled FlowControl = 0x00
	FlowAutoRTS  FlowControl = 0x40
	FlowAutoCTS  FlowControl = 0x80
	FlowRTSCTS   FlowControl = FlowAutoRTS | FlowAutoCTS
)

func (f FlowControl) String() string {
	switch f {
	case FlowDisabled:
		return "none"
	case FlowAutoRTS:
		return "rts"
	case FlowAutoCTS:
		return "cts"
	case FlowRTSCTS:
		return "rtscts"
	}
	return fmt.Sprintf("flow(%#02x)", byte(f))
}

// ParseFlowControl accepts none, rts, cts and rtscts.
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return FlowDisabled, nil
	case "rts":
		return FlowAutoRTS, nil
	case "cts":
		return FlowAutoCTS, nil
	case "rtscts", "hardware":
		return FlowRTSCTS, nil
	}
	return FlowDisabled, fmt.Errorf("%w: flow control %q", ErrInvalidArgument, s)
}

// InterruptMask selects the interrupt sources enabled in IER.
type InterruptMask byte

const (
	IntNone  InterruptMask = 0x00
	IntRHR   InterruptMask = 0x01
	IntTHR   InterruptMask = 0x02
	IntRLS   InterruptMask = 0x04
	IntModem InterruptMask = 0x08
	IntSleep InterruptMask = 0x10
	IntXoff  InterruptMask = 0x20
	IntRTS   InterruptMask = 0x40
	IntCTS   InterruptMask = 0x80
)

var interruptMaskNames = []struct {
	bit  InterruptMask
	name string
}{
	{IntRHR, "rhr"},
	{IntTHR, "thr"},
	{IntRLS, "rls"},
	{IntModem, "modem"},
	{IntSleep, "sleep"},
	{IntXoff, "xoff"},
	{IntRTS, "rts"},
	{IntCTS, "cts"},
}

func (m InterruptMask) String() string {
	if m == IntNone {
		return "none"
	}
	var names []string
	for _, n := range interruptMaskNames {
		if m&n.bit != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseInterruptMask decodes a list of interrupt source names.
func ParseInterruptMask(names []string) (InterruptMask, error) {
	var m InterruptMask
	for _, name := range names {
		found := false
		for _, n := range interruptMaskNames {
			if strings.EqualFold(name, n.name) {
				m |= n.bit
				found = true
				break
			}
		}
		if !found && name != "none" {
			return IntNone, fmt.Errorf("%w: interrupt %q", ErrInvalidArgument, name)
		}
	}
	return m, nil
}

// IOControl is the value written to the IOControl register by InitIO.
type IOControl byte

const (
	IOControlDefault IOControl = 0x00
	IOControlLatch   IOControl = 0x01
)

// LineStatus is a snapshot of the line status register.
type LineStatus byte

func (s LineStatus) DataReady() bool      { return s&0x01 != 0 }
func (s LineStatus) OverrunError() bool   { return s&0x02 != 0 }
func (s LineStatus) ParityError() bool    { return s&0x04 != 0 }
func (s LineStatus) FramingError() bool   { return s&0x08 != 0 }
func (s LineStatus) BreakInterrupt() bool { return s&0x10 != 0 }
func (s LineStatus) THREmpty() bool       { return s&0x20 != 0 }
func (s LineStatus) THRTSREmpty() bool    { return s&0x40 != 0 }
func (s LineStatus) FIFOError() bool      { return s&0x80 != 0 }

// HasError reports overrun, parity, framing, break or FIFO data errors.
func (s LineStatus) HasError() bool {
	return s&0x9E != 0
}

// ModemStatus is a snapshot of the modem status register.
type ModemStatus byte

func (s ModemStatus) DeltaCTS() bool { return s&0x01 != 0 }
func (s ModemStatus) DeltaDSR() bool { return s&0x02 != 0 }
func (s ModemStatus) CTS() bool      { return s&0x10 != 0 }
func (s ModemStatus) DSR() bool      { return s&0x20 != 0 }
func (s ModemStatus) RI() bool       { return s&0x40 != 0 }
func (s ModemStatus) CD() bool       { return s&0x80 != 0 }
