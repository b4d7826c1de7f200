package uart

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by the driver matches exactly one of
// them with errors.Is.
var (
	ErrTransport       = errors.New("transport error")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrProtocol        = errors.New("protocol invariant violation")
)

var (
	ErrInvalidBaudRate     = fmt.Errorf("%w: baud rate", ErrInvalidArgument)
	ErrInvalidTriggerLevel = fmt.Errorf("%w: trigger level", ErrInvalidArgument)
	ErrInvalidPin          = fmt.Errorf("%w: pin", ErrInvalidArgument)
	ErrNoGPIO              = fmt.Errorf("%w: variant has no GPIO", ErrInvalidArgument)
	ErrWriteTimeout        = fmt.Errorf("%w: write timed out", ErrTransport)
)

func transportErr(op string, reg byte, err error) error {
	return fmt.Errorf("sc16is7x0: %s register %#02x: %w: %w", op, reg, ErrTransport, err)
}

const errPrefix = "sc16is7x0: "

// opError names the failed operation on top of an error that may already
// carry the driver prefix.
type opError struct {
	op  string
	err error
}

func wrapOp(op string, err error) error {
	return &opError{op: op, err: err}
}

func (e *opError) Error() string {
	return errPrefix + e.op + ": " + strings.TrimPrefix(e.err.Error(), errPrefix)
}

func (e *opError) Unwrap() error {
	return e.err
}
