// Package config holds the board description used by the gnublin CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Version is injected at build time.
var Version = "dev"

var ErrInvalid = errors.New("invalid configuration")

// Adapter names selecting the I2C host transport.
const (
	AdapterPeriph  = "periph"
	AdapterGobot   = "gobot"
	AdapterMCP2221 = "mcp2221"
)

type Config struct {
	Adapter  string         `yaml:"adapter"`
	Device   string         `yaml:"device"`
	Bus      int            `yaml:"bus"`
	UART     UARTConfig     `yaml:"uart"`
	Expander ExpanderConfig `yaml:"expander"`
	LCD      LCDConfig      `yaml:"lcd"`
	SHT2x    SHT2xConfig    `yaml:"sht2x"`
}

type UARTConfig struct {
	Variant     string   `yaml:"variant"`
	Address     byte     `yaml:"address"`
	Crystal     uint32   `yaml:"crystal"`
	BaudRate    uint32   `yaml:"baud"`
	Format      string   `yaml:"format"`
	FlowControl string   `yaml:"flow"`
	FIFO        bool     `yaml:"fifo"`
	Interrupts  []string `yaml:"interrupts"`
}

type ExpanderConfig struct {
	Variant    string `yaml:"variant"`
	Address    byte   `yaml:"address"`
	IOCON      byte   `yaml:"iocon"`
	RetryLimit int    `yaml:"retry"`
}

type LCDConfig struct {
	// Transport is one of gpio, cdev, expander, uart or shiftreg.
	Transport string   `yaml:"transport"`
	Rows      int      `yaml:"rows"`
	Cols      int      `yaml:"cols"`
	Pins      []int    `yaml:"pins"`
	PinNames  []string `yaml:"pin_names"`
	Chip      string   `yaml:"chip"`
	SPIBus    int      `yaml:"spi_bus"`
	SPIChip   int      `yaml:"spi_chip"`
}

type SHT2xConfig struct {
	Address byte `yaml:"address"`
}

func Default() Config {
	return Config{
		Adapter: AdapterPeriph,
		Device:  "/dev/i2c-1",
		Bus:     1,
		UART: UARTConfig{
			Variant:     "SC16IS750",
			Address:     0x48,
			Crystal:     14745600,
			BaudRate:    9600,
			Format:      "8N1",
			FlowControl: "disabled",
			FIFO:        true,
		},
		Expander: ExpanderConfig{
			Variant:    "MCP23017",
			Address:    0x20,
			RetryLimit: 3,
		},
		LCD: LCDConfig{
			Transport: "expander",
			Rows:      2,
			Cols:      16,
			Pins:      []int{0, 1, 2, 3, 4, 5},
			Chip:      "gpiochip0",
		},
		SHT2x: SHT2xConfig{Address: 0x40},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("could not read config file: %w", err)
	}
	err = yaml.Unmarshal(data, &c)
	if err != nil {
		return c, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch c.Adapter {
	case AdapterPeriph, AdapterGobot, AdapterMCP2221:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown adapter %q", ErrInvalid, c.Adapter))
	}
	if c.UART.Address < 0x08 || c.UART.Address > 0x77 {
		errs = append(errs, fmt.Errorf("%w: uart address %#02x", ErrInvalid, c.UART.Address))
	}
	if c.Expander.Address < 0x08 || c.Expander.Address > 0x77 {
		errs = append(errs, fmt.Errorf("%w: expander address %#02x", ErrInvalid, c.Expander.Address))
	}
	if c.LCD.Rows < 1 || c.LCD.Rows > 4 || c.LCD.Cols < 1 {
		errs = append(errs, fmt.Errorf("%w: lcd geometry %dx%d", ErrInvalid, c.LCD.Rows, c.LCD.Cols))
	}
	switch strings.ToLower(c.LCD.Transport) {
	case "gpio":
		if len(c.LCD.PinNames) != 6 {
			errs = append(errs, fmt.Errorf("%w: lcd gpio transport needs 6 pin names", ErrInvalid))
		}
	case "cdev", "expander", "uart", "shiftreg":
		if len(c.LCD.Pins) != 6 {
			errs = append(errs, fmt.Errorf("%w: lcd needs 6 pins (rs, en, d4-d7)", ErrInvalid))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown lcd transport %q", ErrInvalid, c.LCD.Transport))
	}
	return errors.Join(errs...)
}
