// Package display drives HD44780 compatible character LCDs in 4-bit mode.
//
// The controller is reached through a Transport. PinTransport covers every
// wiring where six output lines are available: host GPIO (GPIOPins,
// CdevPins), an MCP230xx expander, the SC16IS750 I/O port or a 74HC595 shift
// register.
package display

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var ErrInvalidPosition = errors.New("hd44780: invalid position")

const (
	cmdClear   byte = 0x01
	cmdHome    byte = 0x02
	cmdControl byte = 0x08
	ctrlPower  byte = 0x0C
	ctrlCursor byte = 0x0A
	ctrlBlink  byte = 0x09
)

var (
	rowAddress = []byte{0x80, 0xC0, 0x94, 0xD4}
	// 4-bit interface, two lines, display on, cursor moving right, clear
	initSequence = []byte{0x33, 0x32, 0x28, 0x0C, 0x06, cmdClear}
)

type LCDOpts struct {
	Rows   int
	Cols   int
	Logger *slog.Logger
}

type LCDOpt func(*LCDOpts)

// WithGeometry sets the number of rows (1 to 4) and columns.
func WithGeometry(rows, cols int) LCDOpt {
	return func(o *LCDOpts) {
		o.Rows = rows
		o.Cols = cols
	}
}

func WithLogger(logger *slog.Logger) LCDOpt {
	return func(o *LCDOpts) {
		o.Logger = logger
	}
}

type LCD struct {
	mx        sync.Mutex
	transport Transport
	rows      int
	cols      int
	col       int
	log       *slog.Logger
}

func NewLCD(transport Transport, opts ...LCDOpt) *LCD {
	config := LCDOpts{Rows: 2, Cols: 16}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Rows < 1 || config.Rows > len(rowAddress) {
		config.Rows = 2
	}
	if config.Cols < 1 {
		config.Cols = 16
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LCD{
		transport: transport,
		rows:      config.Rows,
		cols:      config.Cols,
		log:       logger.With("display", "hd44780"),
	}
}

func (l *LCD) Rows() int {
	return l.rows
}

func (l *LCD) Cols() int {
	return l.cols
}

// Init switches the controller to 4-bit mode, turns the display on and
// clears it.
func (l *LCD) Init(ctx context.Context) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	for _, b := range initSequence {
		if err := l.command(ctx, b); err != nil {
			return fmt.Errorf("hd44780: init failed: %w", err)
		}
	}
	l.col = 0
	l.log.Debug("display initialized", "rows", l.rows, "cols", l.cols)
	return nil
}

// Print writes s on the first row.
func (l *LCD) Print(ctx context.Context, s string) error {
	return l.PrintRow(ctx, s, 1)
}

// PrintRow writes s at the start of row (1-based), truncated to the row and
// padded with spaces.
func (l *LCD) PrintRow(ctx context.Context, s string, row int) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.setRow(ctx, row); err != nil {
		return err
	}
	l.col = 0
	return l.print(ctx, s)
}

// PrintAt writes s on row (1-based) starting at col (0-based).
func (l *LCD) PrintAt(ctx context.Context, s string, row, col int) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.checkCol(col); err != nil {
		return err
	}
	if err := l.setRow(ctx, row); err != nil {
		return err
	}
	if err := l.offset(ctx, col); err != nil {
		return err
	}
	return l.print(ctx, s)
}

// Offset moves the cursor col positions to the right by writing spaces.
func (l *LCD) Offset(ctx context.Context, col int) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.checkCol(col); err != nil {
		return err
	}
	return l.offset(ctx, col)
}

func (l *LCD) Clear(ctx context.Context) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.command(ctx, cmdClear); err != nil {
		return fmt.Errorf("hd44780: could not clear: %w", err)
	}
	l.col = 0
	return nil
}

func (l *LCD) ReturnHome(ctx context.Context) error {
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.command(ctx, cmdHome); err != nil {
		return fmt.Errorf("hd44780: could not return home: %w", err)
	}
	l.col = 0
	return nil
}

func (l *LCD) ControlDisplay(ctx context.Context, power, cursor, blink bool) error {
	ctrl := cmdControl
	if power {
		ctrl |= ctrlPower
	}
	if cursor {
		ctrl |= ctrlCursor
	}
	if blink {
		ctrl |= ctrlBlink
	}
	l.mx.Lock()
	defer l.mx.Unlock()
	if err := l.command(ctx, ctrl); err != nil {
		return fmt.Errorf("hd44780: could not set display control: %w", err)
	}
	return nil
}

func (l *LCD) setRow(ctx context.Context, row int) error {
	if row < 1 || row > l.rows {
		return fmt.Errorf("%w: row %d is not between 1 and %d", ErrInvalidPosition, row, l.rows)
	}
	if err := l.command(ctx, rowAddress[row-1]); err != nil {
		return fmt.Errorf("hd44780: could not select row %d: %w", row, err)
	}
	return nil
}

func (l *LCD) checkCol(col int) error {
	if col < 0 || col >= l.cols {
		return fmt.Errorf("%w: column %d is not between 0 and %d", ErrInvalidPosition, col, l.cols-1)
	}
	return nil
}

func (l *LCD) offset(ctx context.Context, col int) error {
	l.col = 0
	for i := 0; i < col; i++ {
		if err := l.data(ctx, ' '); err != nil {
			return err
		}
	}
	l.col = col
	return nil
}

func (l *LCD) print(ctx context.Context, s string) error {
	width := l.cols - l.col
	text := []byte(s)
	if len(text) > width {
		text = text[:width]
	}
	text = append(text, strings.Repeat(" ", width-len(text))...)
	for _, b := range text {
		if err := l.data(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (l *LCD) command(ctx context.Context, b byte) error {
	return l.transport.Send(ctx, b, Command)
}

func (l *LCD) data(ctx context.Context, b byte) error {
	if err := l.transport.Send(ctx, b, Data); err != nil {
		return fmt.Errorf("hd44780: could not write data: %w", err)
	}
	return nil
}
