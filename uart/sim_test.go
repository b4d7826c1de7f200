package uart

import (
	"context"
	"fmt"
	"sync"
)

// simAccess is one register access seen by the simulated chip, with the
// register resolved against the bank selected at that time.
type simAccess struct {
	Write bool
	Reg   string
	Data  []byte
}

// simChip is a register level model of an SC16IS7x0 behind an I2C bus. It
// models the LCR selected register banks, EFR[4] and MCR[2] gating, the
// write-only FCR, FIFO levels and the I/O registers.
type simChip struct {
	mu      sync.Mutex
	address byte
	pointer byte

	lcr, efr, dll, dlh   byte
	xon1, xon2           byte
	xoff1, xoff2         byte
	ier, mcr, spr        byte
	tcr, tlr             byte
	iir, lsrErr, msr     byte
	iodir, ioout, ioin   byte
	iointen, ioctrl      byte
	efcr                 byte
	fcrWrites            []byte
	rx, tx               []byte
	txFree               int
	resets               int
	log                  []simAccess
	fail                 func(a simAccess) error
	thrEmpty             bool
	unknownAddressErrors int
}

func newSimChip() *simChip {
	s := &simChip{address: DefaultAddress}
	s.reset()
	return s
}

// reset restores the power-on register values. Bus side state such as the
// access log and the external input levels survives.
func (s *simChip) reset() {
	s.lcr, s.efr, s.dll, s.dlh = 0x1D, 0, 0, 0
	s.xon1, s.xon2, s.xoff1, s.xoff2 = 0, 0, 0, 0
	s.ier, s.mcr, s.spr, s.tcr, s.tlr = 0, 0, 0xFF, 0, 0
	s.iir, s.lsrErr, s.msr = iirNoInterrupt, 0, 0
	s.iodir, s.ioout, s.iointen, s.ioctrl, s.efcr = 0, 0xFF, 0, 0, 0
	s.rx, s.tx = nil, nil
	s.txFree = 64
	s.thrEmpty = true
}

func (s *simChip) enhanced() bool { return s.efr&efrEnhancedFunctions != 0 }

func (s *simChip) triggerRegs() bool { return s.enhanced() && s.mcr&mcrTCRTLR != 0 }

// name resolves a register number against the current bank.
func (s *simChip) name(reg byte, write bool) string {
	if s.lcr == lcrEnhanced {
		switch reg {
		case 2:
			return "EFR"
		case 4:
			return "XON1"
		case 5:
			return "XON2"
		case 6:
			return "XOFF1"
		case 7:
			return "XOFF2"
		}
	}
	if s.lcr&lcrDivisorLatch != 0 {
		switch reg {
		case 0:
			return "DLL"
		case 1:
			return "DLH"
		}
	}
	switch reg {
	case 0:
		if write {
			return "THR"
		}
		return "RHR"
	case 1:
		return "IER"
	case 2:
		if write {
			return "FCR"
		}
		return "IIR"
	case 3:
		return "LCR"
	case 4:
		return "MCR"
	case 5:
		return "LSR"
	case 6:
		if s.triggerRegs() {
			return "TCR"
		}
		return "MSR"
	case 7:
		if s.triggerRegs() {
			return "TLR"
		}
		return "SPR"
	case 8:
		return "TXLVL"
	case 9:
		return "RXLVL"
	case 0xA:
		return "IODIR"
	case 0xB:
		return "IOSTATE"
	case 0xC:
		return "IOINTEN"
	case 0xE:
		return "IOCTRL"
	case 0xF:
		return "EFCR"
	}
	return fmt.Sprintf("REG%X", reg)
}

func (s *simChip) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address != s.address {
		s.unknownAddressErrors++
		return fmt.Errorf("no device at %#02x", address)
	}
	if len(buffer) == 0 {
		return nil
	}
	s.pointer = buffer[0] >> 3
	if len(buffer) == 1 {
		return nil
	}
	a := simAccess{Write: true, Reg: s.name(s.pointer, true), Data: append([]byte(nil), buffer[1:]...)}
	if s.fail != nil {
		if err := s.fail(a); err != nil {
			return err
		}
	}
	s.log = append(s.log, a)
	for _, b := range buffer[1:] {
		s.write(a.Reg, b)
	}
	return nil
}

func (s *simChip) write(reg string, b byte) {
	switch reg {
	case "THR":
		s.tx = append(s.tx, b)
		if s.txFree > 0 {
			s.txFree--
		}
	case "IER":
		if s.enhanced() {
			s.ier = b
		} else {
			s.ier = s.ier&0xF0 | b&0x0F
		}
	case "FCR":
		if !s.enhanced() {
			b = b&^fcrTxTriggerMask | s.lastFCR()&fcrTxTriggerMask
		}
		if b&fcrRxReset != 0 {
			s.rx = nil
		}
		if b&fcrTxReset != 0 {
			s.tx = nil
		}
		s.fcrWrites = append(s.fcrWrites, b)
	case "LCR":
		s.lcr = b
	case "MCR":
		if s.enhanced() {
			s.mcr = b
		} else {
			s.mcr = s.mcr&0xE4 | b&^0xE4
		}
	case "SPR":
		s.spr = b
	case "TCR":
		s.tcr = b
	case "TLR":
		s.tlr = b
	case "DLL":
		s.dll = b
	case "DLH":
		s.dlh = b
	case "EFR":
		s.efr = b
	case "XON1":
		s.xon1 = b
	case "XON2":
		s.xon2 = b
	case "XOFF1":
		s.xoff1 = b
	case "XOFF2":
		s.xoff2 = b
	case "IODIR":
		s.iodir = b
	case "IOSTATE":
		s.ioout = b
	case "IOINTEN":
		s.iointen = b
	case "IOCTRL":
		if b&ioctrlSoftReset != 0 {
			s.resets++
			s.reset()
			return
		}
		s.ioctrl = b
	case "EFCR":
		s.efcr = b
	}
}

func (s *simChip) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address != s.address {
		s.unknownAddressErrors++
		return fmt.Errorf("no device at %#02x", address)
	}
	a := simAccess{Reg: s.name(s.pointer, false)}
	if s.fail != nil {
		if err := s.fail(a); err != nil {
			return err
		}
	}
	for i := range buffer {
		buffer[i] = s.read(a.Reg)
	}
	a.Data = append([]byte(nil), buffer...)
	s.log = append(s.log, a)
	return nil
}

func (s *simChip) read(reg string) byte {
	switch reg {
	case "RHR":
		if len(s.rx) == 0 {
			return 0
		}
		b := s.rx[0]
		s.rx = s.rx[1:]
		if len(s.rx) == 0 && (s.iir&iirSourceMask == 0x04 || s.iir&iirSourceMask == 0x0C) {
			s.iir = iirNoInterrupt
		}
		return b
	case "IER":
		return s.ier
	case "IIR":
		iir := s.iir
		switch iir & iirSourceMask {
		case 0x02, 0x10, 0x20:
			s.iir = iirNoInterrupt
		}
		return iir
	case "LCR":
		return s.lcr
	case "MCR":
		return s.mcr
	case "LSR":
		var lsr byte
		if len(s.rx) > 0 {
			lsr |= 0x01
		}
		if s.thrEmpty {
			lsr |= lsrTHREmpty
		}
		lsr |= s.lsrErr
		s.lsrErr = 0
		if s.iir&iirSourceMask == 0x06 {
			s.iir = iirNoInterrupt
		}
		return lsr
	case "MSR":
		msr := s.msr
		s.msr &^= 0x0F
		if s.iir&iirSourceMask == 0x00 && s.iir&iirNoInterrupt == 0 {
			s.iir = iirNoInterrupt
		}
		return msr
	case "SPR":
		return s.spr
	case "TCR":
		return s.tcr
	case "TLR":
		return s.tlr
	case "TXLVL":
		return byte(s.txFree)
	case "RXLVL":
		return byte(len(s.rx))
	case "DLL":
		return s.dll
	case "DLH":
		return s.dlh
	case "EFR":
		return s.efr
	case "XON1":
		return s.xon1
	case "XON2":
		return s.xon2
	case "XOFF1":
		return s.xoff1
	case "XOFF2":
		return s.xoff2
	case "IODIR":
		return s.iodir
	case "IOSTATE":
		if s.iir&iirSourceMask == 0x30 {
			s.iir = iirNoInterrupt
		}
		return s.ioout&s.iodir | s.ioin&^s.iodir
	case "IOINTEN":
		return s.iointen
	case "IOCTRL":
		return s.ioctrl
	case "EFCR":
		return s.efcr
	}
	return 0
}

func (s *simChip) Release(ctx context.Context) error {
	return nil
}

func (s *simChip) lastFCR() byte {
	if len(s.fcrWrites) == 0 {
		return 0
	}
	return s.fcrWrites[len(s.fcrWrites)-1]
}

// writes returns the data written to the named register, one entry per
// transaction.
func (s *simChip) writes(reg string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, a := range s.log {
		if a.Write && a.Reg == reg {
			out = append(out, a.Data)
		}
	}
	return out
}

// reads returns the data read from the named register, one entry per
// transaction.
func (s *simChip) reads(reg string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [][]byte
	for _, a := range s.log {
		if !a.Write && a.Reg == reg {
			out = append(out, a.Data)
		}
	}
	return out
}

func (s *simChip) clearLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.fcrWrites = nil
}

func (s *simChip) setRx(data ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append([]byte(nil), data...)
}

func (s *simChip) setIIR(iir byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iir = iir
}

func (s *simChip) setInput(v byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ioin = v
}
