// Package uart drives the NXP SC16IS7x0 family of I2C UART bridges.
//
// The SC16IS740 is a plain UART, the SC16IS750 and SC16IS760 add eight
// general purpose I/O lines. All members share one register protocol which is
// implemented once and parameterized by a Variant descriptor.
//
// Typical usage:
//
//	d := uart.NewSC16IS750(bus, uart.WithBaudRate(115200))
//	if err := d.Init(ctx); err != nil {
//		return err
//	}
//	n, err := d.Write(ctx, []byte("hello"))
package uart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mklimuk/gnublin"
)

// SC16IS7x0 is a handle to one bridge chip. Every exported method is safe for
// concurrent use; multi-register sequences are serialized by the handle.
type SC16IS7x0 struct {
	mx        sync.Mutex
	transport gnublin.I2CBus
	variant   Variant
	address   byte
	config    SC16IS7x0Opts
	log       *slog.Logger

	fifoEnabled bool
	// fcr is the last value written to the write-only FIFO control register,
	// without the self clearing reset bits.
	fcr byte
	// ioLatch is the I/O state seen by the last interrupt flag read.
	ioLatch byte

	onData  func(data []byte)
	onSpace func(space int)
	onIO    func(pin int, high bool)
	onLine  func(status LineStatus)
	onModem func(status ModemStatus)

	lastErr error
}

// New creates a handle for the given family member.
func New(transport gnublin.I2CBus, variant Variant, opts ...SC16IS7x0Opt) *SC16IS7x0 {
	config := defaultOpts()
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxTransfer <= 0 {
		config.MaxTransfer = variant.FIFOSize
	}
	return &SC16IS7x0{
		transport: transport,
		variant:   variant,
		address:   config.Address,
		config:    config,
		log:       logger.With("chip", variant.Name, "addr", config.Address),
	}
}

func NewSC16IS740(transport gnublin.I2CBus, opts ...SC16IS7x0Opt) *SC16IS7x0 {
	return New(transport, SC16IS740, opts...)
}

func NewSC16IS750(transport gnublin.I2CBus, opts ...SC16IS7x0Opt) *SC16IS7x0 {
	return New(transport, SC16IS750, opts...)
}

func NewSC16IS760(transport gnublin.I2CBus, opts ...SC16IS7x0Opt) *SC16IS7x0 {
	return New(transport, SC16IS760, opts...)
}

func (d *SC16IS7x0) Variant() Variant {
	return d.variant
}

func (d *SC16IS7x0) Address() byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.address
}

// SetAddress points the handle at another chip on the same bus.
func (d *SC16IS7x0) SetAddress(address byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.address = address
}

// SetBus moves the handle to another bus.
func (d *SC16IS7x0) SetBus(transport gnublin.I2CBus) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.transport = transport
}

// LastError returns the outcome of the most recent operation, nil when it
// succeeded.
func (d *SC16IS7x0) LastError() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.lastErr
}

func (d *SC16IS7x0) record(err error) error {
	d.lastErr = err
	return err
}

// Init resets the chip and programs the configuration given by the options:
// baud rate, data format, cleared FIFOs, flow control, flow triggers, modem
// control and interrupt mask. GPIO variants also get their I/O control set up.
func (d *SC16IS7x0) Init(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.init(ctx))
}

func (d *SC16IS7x0) init(ctx context.Context) error {
	// the chip may reset before acknowledging the write
	if err := d.softReset(ctx); err != nil {
		d.log.Warn("soft reset not acknowledged", "error", err)
	}
	if err := gnublin.Sleep(ctx, d.config.ResetDelay); err != nil {
		return err
	}
	if err := d.initUART(ctx); err != nil {
		return err
	}
	if d.variant.HasGPIO() {
		if err := d.initIO(ctx, d.config.IOControl); err != nil {
			return err
		}
	}
	if d.config.FIFO {
		if err := d.enableFifo(ctx, true); err != nil {
			return err
		}
	}
	d.log.Debug("bridge initialized", "baud", d.config.BaudRate, "format", d.config.DataFormat, "fifo", d.config.FIFO)
	return nil
}

func (d *SC16IS7x0) initUART(ctx context.Context) error {
	if err := d.setBaudRate(ctx, d.config.BaudRate); err != nil {
		return err
	}
	if err := d.setDataFormat(ctx, d.config.DataFormat); err != nil {
		return err
	}
	if err := d.resetFifo(ctx, fcrRxReset); err != nil {
		return err
	}
	if err := d.resetFifo(ctx, fcrTxReset); err != nil {
		return err
	}
	if err := d.enableFifo(ctx, false); err != nil {
		return err
	}
	if err := d.setFlowControl(ctx, d.config.FlowControl); err != nil {
		return err
	}
	if err := d.setFlowTriggers(ctx, d.config.FlowResume, d.config.FlowHalt); err != nil {
		return err
	}
	if err := d.setModemControl(ctx); err != nil {
		return err
	}
	return d.setInterruptMask(ctx, d.config.InterruptMask)
}

// SoftReset sets the software reset bit of the I/O control register. All
// registers, FIFOs included, return to their reset values.
func (d *SC16IS7x0) SoftReset(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.softReset(ctx))
}

func (d *SC16IS7x0) softReset(ctx context.Context) error {
	ctrl, err := d.readReg(ctx, regIOCTRL)
	if err != nil {
		return err
	}
	d.fifoEnabled = false
	d.fcr = 0
	d.ioLatch = 0
	return d.writeReg(ctx, regIOCTRL, ctrl|ioctrlSoftReset)
}

// Probe checks that a chip answers at the configured address by writing and
// reading back the scratchpad register.
func (d *SC16IS7x0) Probe(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.record(d.probe(ctx))
}

func (d *SC16IS7x0) probe(ctx context.Context) error {
	for _, pattern := range []byte{0x55, 0xAA} {
		if err := d.writeReg(ctx, regSPR, pattern); err != nil {
			return err
		}
		got, err := d.readReg(ctx, regSPR)
		if err != nil {
			return err
		}
		if got != pattern {
			return fmt.Errorf("sc16is7x0: %w: scratchpad read back %#02x, expected %#02x", ErrProtocol, got, pattern)
		}
	}
	return nil
}

func (d *SC16IS7x0) readReg(ctx context.Context, reg byte) (byte, error) {
	buf := []byte{0}
	if err := d.readRegs(ctx, reg, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *SC16IS7x0) readRegs(ctx context.Context, reg byte, buf []byte) error {
	err := gnublin.ReadRegister(ctx, d.transport, d.address, d.variant.subAddress(reg), buf)
	if err != nil {
		return transportErr("read", reg, err)
	}
	return nil
}

func (d *SC16IS7x0) writeReg(ctx context.Context, reg byte, data ...byte) error {
	err := gnublin.WriteRegister(ctx, d.transport, d.address, d.variant.subAddress(reg), data...)
	if err != nil {
		return transportErr("write", reg, err)
	}
	return nil
}
