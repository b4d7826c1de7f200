package uart

import (
	"fmt"
	"strings"
)

// DefaultAddress is the bridge address with A1 and A0 tied low.
//
//	A1 | A0 | address
//	 0 |  0 | 0x4D
//	 0 |  1 | 0x4C
//	 1 |  0 | 0x49
//	 1 |  1 | 0x48
const DefaultAddress = 0x4D

// DefaultCrystal is the 14.7456 MHz crystal fitted on most breakout boards.
const DefaultCrystal = 14745600

// Variant describes a member of the SC16IS7x0 family. Members differ only by
// these numbers, the register protocol is shared.
type Variant struct {
	Name     string
	GPIOPins int
	FIFOSize int
	// RegisterShift is the left shift applied to a register number to build
	// the I2C sub-address byte.
	RegisterShift uint
	MaxBaudRate   uint32
}

var (
	SC16IS740 = Variant{Name: "SC16IS740", GPIOPins: 0, FIFOSize: 64, RegisterShift: 3, MaxBaudRate: 230400}
	SC16IS750 = Variant{Name: "SC16IS750", GPIOPins: 8, FIFOSize: 64, RegisterShift: 3, MaxBaudRate: 230400}
	SC16IS760 = Variant{Name: "SC16IS760", GPIOPins: 8, FIFOSize: 64, RegisterShift: 3, MaxBaudRate: 230400}
)

var variants = []Variant{SC16IS740, SC16IS750, SC16IS760}

// VariantByName looks a family member up by its part number, case insensitive.
func VariantByName(name string) (Variant, error) {
	for _, v := range variants {
		if strings.EqualFold(v.Name, name) {
			return v, nil
		}
	}
	return Variant{}, fmt.Errorf("%w: unknown variant %q", ErrInvalidArgument, name)
}

func (v Variant) HasGPIO() bool {
	return v.GPIOPins > 0
}

func (v Variant) subAddress(reg byte) byte {
	return reg << v.RegisterShift
}

func (v Variant) String() string {
	return v.Name
}
