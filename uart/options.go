package uart

import (
	"log/slog"
	"time"
)

// TriggerMode selects how FIFO trigger levels are programmed.
type TriggerMode int

const (
	// TriggerEnhanced uses the trigger level register, levels 4..60 in steps of 4.
	TriggerEnhanced TriggerMode = iota
	// TriggerLegacy uses the FCR trigger bits: RX 8/16/56/60, TX 8/16/32/56.
	TriggerLegacy
)

type SC16IS7x0Opts struct {
	Address       byte
	Crystal       uint32
	BaudRate      uint32
	DataFormat    DataFormat
	FlowControl   FlowControl
	FlowResume    int
	FlowHalt      int
	InterruptMask InterruptMask
	IOControl     IOControl
	FIFO          bool
	TriggerMode   TriggerMode
	PollInterval  time.Duration
	WriteTimeout  time.Duration
	ResetDelay    time.Duration
	SettleDelay   time.Duration
	MaxTransfer   int
	Logger        *slog.Logger
}

type SC16IS7x0Opt func(*SC16IS7x0Opts)

func defaultOpts() SC16IS7x0Opts {
	return SC16IS7x0Opts{
		Address:      DefaultAddress,
		Crystal:      DefaultCrystal,
		BaudRate:     9600,
		DataFormat:   Format8N1,
		FlowControl:  FlowDisabled,
		FlowResume:   24,
		FlowHalt:     48,
		FIFO:         true,
		TriggerMode:  TriggerEnhanced,
		PollInterval: 10 * time.Microsecond,
		ResetDelay:   10 * time.Millisecond,
		SettleDelay:  10 * time.Microsecond,
		MaxTransfer:  65,
	}
}

func WithAddress(address byte) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.Address = address
	}
}

// WithCrystal sets the crystal frequency used for the baud divisor.
func WithCrystal(hz uint32) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.Crystal = hz
	}
}

// WithBaudRate sets the baud rate programmed by Init.
func WithBaudRate(baud uint32) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.BaudRate = baud
	}
}

// WithDataFormat sets the data format programmed by Init.
func WithDataFormat(format DataFormat) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.DataFormat = format
	}
}

func WithFlowControl(flow FlowControl) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.FlowControl = flow
	}
}

// WithFlowTriggers sets the RX FIFO levels at which RTS is released (resume)
// and asserted (halt) under hardware flow control.
func WithFlowTriggers(resume, halt int) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.FlowResume = resume
		o.FlowHalt = halt
	}
}

func WithInterruptMask(mask InterruptMask) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.InterruptMask = mask
	}
}

func WithIOControl(ctrl IOControl) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.IOControl = ctrl
	}
}

// WithFIFO decides whether Init leaves the FIFOs enabled.
func WithFIFO(enabled bool) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.FIFO = enabled
	}
}

func WithTriggerMode(mode TriggerMode) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.TriggerMode = mode
	}
}

// WithPollInterval sets the pause between FIFO level checks while waiting.
func WithPollInterval(interval time.Duration) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.PollInterval = interval
	}
}

// WithWriteTimeout bounds every Write and SendByte call. Zero means the
// context deadline alone applies.
func WithWriteTimeout(timeout time.Duration) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.WriteTimeout = timeout
	}
}

func WithResetDelay(delay time.Duration) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.ResetDelay = delay
	}
}

// WithMaxTransfer caps the number of bytes moved in one bus transaction.
// Writes count the register sub-address, so a cap of 60 (the MCP2221 report
// payload) moves at most 59 data bytes per THR write.
func WithMaxTransfer(n int) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.MaxTransfer = n
	}
}

func WithLogger(logger *slog.Logger) SC16IS7x0Opt {
	return func(o *SC16IS7x0Opts) {
		o.Logger = logger
	}
}
