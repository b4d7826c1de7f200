package environment

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sigurn/crc8"

	"github.com/mklimuk/gnublin"
)

// SHT2x I2C address (7-bit)
const DefaultSHT2xAddress = 0x40

// Commands, no hold master mode
const (
	sht2xCmdMeasureT  byte = 0xF3
	sht2xCmdMeasureRH byte = 0xF5
	sht2xCmdWriteUser byte = 0xE6
	sht2xCmdReadUser  byte = 0xE7
	sht2xCmdReset     byte = 0xFE
)

// user register resolution bits (7 and 0)
const sht2xResolutionMask byte = 0x81

var ErrCRCMismatch = errors.New("sht2x: CRC mismatch")

// P(x) = x^8 + x^5 + x^4 + 1
var sht2xCRC = crc8.MakeTable(crc8.Params{Poly: 0x31, Init: 0x00, Name: "CRC-8/SHT2X"})

// Resolution of the RH and T measurements.
type Resolution byte

const (
	ResolutionRH12T14 Resolution = 0x00
	ResolutionRH8T12  Resolution = 0x01
	ResolutionRH10T13 Resolution = 0x80
	ResolutionRH11T11 Resolution = 0x81
)

// TempHumSensor is implemented by SHT2x and the behaviour driven mock.
type TempHumSensor interface {
	GetTemperature(ctx context.Context) (float32, error)
	GetHumidity(ctx context.Context) (float32, error)
	GetTempAndHum(ctx context.Context) (float32, float32, error)
}

type SHT2xOpts struct {
	Address      byte
	MeasureDelay time.Duration
	Logger       *slog.Logger
}

type SHT2xOpt func(*SHT2xOpts)

func WithAddress(address byte) SHT2xOpt {
	return func(o *SHT2xOpts) {
		o.Address = address
	}
}

// WithMeasureDelay sets the wait between triggering a measurement and
// reading it back. The datasheet maximum for 14 bit temperature is 85ms.
func WithMeasureDelay(delay time.Duration) SHT2xOpt {
	return func(o *SHT2xOpts) {
		o.MeasureDelay = delay
	}
}

func WithLogger(logger *slog.Logger) SHT2xOpt {
	return func(o *SHT2xOpts) {
		o.Logger = logger
	}
}

// SHT2x represents Sensirion SHT20/SHT21/SHT25 Temperature/Humidity sensor
// Typical usage:
//
//	s := NewSHT2x(bus)
//	t, h, err := s.GetTempAndHum(ctx)
type SHT2x struct {
	mx        sync.Mutex
	transport gnublin.I2CBus
	address   byte
	delay     time.Duration
	log       *slog.Logger
}

func NewSHT2x(trans gnublin.I2CBus, opts ...SHT2xOpt) *SHT2x {
	config := SHT2xOpts{
		Address:      DefaultSHT2xAddress,
		MeasureDelay: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SHT2x{
		transport: trans,
		address:   config.Address,
		delay:     config.MeasureDelay,
		log:       logger.With("sensor", "sht2x"),
	}
}

// GetTemperature performs a single measurement and returns temperature in Celsius.
func (s *SHT2x) GetTemperature(ctx context.Context) (float32, error) {
	raw, err := s.measure(ctx, sht2xCmdMeasureT)
	if err != nil {
		return 0, fmt.Errorf("sht2x: temperature: %w", err)
	}
	return convertTemperature(raw), nil
}

// GetHumidity performs a single measurement and returns relative humidity in %RH.
func (s *SHT2x) GetHumidity(ctx context.Context) (float32, error) {
	raw, err := s.measure(ctx, sht2xCmdMeasureRH)
	if err != nil {
		return 0, fmt.Errorf("sht2x: humidity: %w", err)
	}
	return convertHumidity(raw), nil
}

// GetTempAndHum performs two measurements and returns temperature and humidity.
func (s *SHT2x) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	temp, err := s.GetTemperature(ctx)
	if err != nil {
		return 0, 0, err
	}
	hum, err := s.GetHumidity(ctx)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

// SoftReset reboots the sensor and restores the default user register.
func (s *SHT2x) SoftReset(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.transport.WriteToAddr(ctx, s.address, []byte{sht2xCmdReset}); err != nil {
		return fmt.Errorf("sht2x: soft reset failed: %w", err)
	}
	// reset takes less than 15ms
	return gnublin.Sleep(ctx, 15*time.Millisecond)
}

func (s *SHT2x) UserRegister(ctx context.Context) (byte, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.userRegister(ctx)
}

// SetResolution changes the measurement resolution keeping the other user
// register bits.
func (s *SHT2x) SetResolution(ctx context.Context, res Resolution) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	reg, err := s.userRegister(ctx)
	if err != nil {
		return err
	}
	reg = reg&^sht2xResolutionMask | byte(res)&sht2xResolutionMask
	err = gnublin.WriteRegister(ctx, s.transport, s.address, sht2xCmdWriteUser, reg)
	if err != nil {
		return fmt.Errorf("sht2x: could not write user register: %w", err)
	}
	s.log.Debug("resolution set", "user", reg)
	return nil
}

func (s *SHT2x) userRegister(ctx context.Context) (byte, error) {
	buf := make([]byte, 1)
	err := gnublin.ReadRegister(ctx, s.transport, s.address, sht2xCmdReadUser, buf)
	if err != nil {
		return 0, fmt.Errorf("sht2x: could not read user register: %w", err)
	}
	return buf[0], nil
}

func (s *SHT2x) measure(ctx context.Context, cmd byte) (uint16, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.transport.WriteToAddr(ctx, s.address, []byte{cmd}); err != nil {
		return 0, fmt.Errorf("measure command failed: %w", err)
	}
	if err := gnublin.Sleep(ctx, s.delay); err != nil {
		return 0, err
	}
	// MSB, LSB, CRC
	buf := make([]byte, 3)
	if err := s.transport.ReadFromAddr(ctx, s.address, buf); err != nil {
		return 0, fmt.Errorf("read failed: %w", err)
	}
	if crc := crc8.Checksum(buf[:2], sht2xCRC); crc != buf[2] {
		return 0, fmt.Errorf("%w: got %#02x, computed %#02x", ErrCRCMismatch, buf[2], crc)
	}
	raw := binary.BigEndian.Uint16(buf[:2])
	s.log.Debug("measured", "cmd", cmd, "raw", raw)
	return raw, nil
}

// the two status bits are not part of the measurement
func convertTemperature(raw uint16) float32 {
	return float32(-46.85 + 175.72*float64(raw&0xFFFC)/65536.0)
}

func convertHumidity(raw uint16) float32 {
	return float32(-6.0 + 125.0*float64(raw&0xFFFC)/65536.0)
}

func CelsiusToFahrenheit(c float32) float32 {
	return c*9/5 + 32
}
