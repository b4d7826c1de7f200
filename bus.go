package gnublin

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// RegisterReader is implemented by buses able to address a register and read
// it back within a single transaction (repeated start). Drivers fall back to a
// write of the register address followed by a separate read otherwise.
type RegisterReader interface {
	ReadFromReg(ctx context.Context, address byte, reg byte, buffer []byte) error
}

type I2CDevice interface {
	BusReader
	BusWriter
}

// ReadRegister reads len(buffer) bytes starting at reg.
func ReadRegister(ctx context.Context, bus I2CBus, address, reg byte, buffer []byte) error {
	if rr, ok := bus.(RegisterReader); ok {
		return rr.ReadFromReg(ctx, address, reg, buffer)
	}
	err := bus.WriteToAddr(ctx, address, []byte{reg})
	if err != nil {
		return fmt.Errorf("could not set registry address %#x: %w", reg, err)
	}
	err = bus.ReadFromAddr(ctx, address, buffer)
	if err != nil {
		return fmt.Errorf("could not read registry %#x: %w", reg, err)
	}
	return nil
}

// WriteRegister writes data starting at reg.
func WriteRegister(ctx context.Context, bus I2CBus, address, reg byte, data ...byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	return bus.WriteToAddr(ctx, address, buf)
}

// Direction of a general purpose I/O line.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "in"/"input" and "out"/"output".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "in", "input":
		return Input, nil
	case "out", "output":
		return Output, nil
	}
	return Input, fmt.Errorf("unknown direction %q", s)
}
