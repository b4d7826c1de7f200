// Package adapter drives the Microchip MCP2221 USB to I2C/UART bridge over
// HID so drivers can run on a development host without an embedded board.
package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/gnublin"
	"github.com/mklimuk/gnublin/trace"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// MaxPayload is the largest I2C payload carried by one HID report.
const MaxPayload = 60

// ClockHz is the reference clock of the I2C speed divider.
const ClockHz = 12000000

const reportSize = 64

const (
	cmdStatus          byte = 0x10
	cmdI2CWrite        byte = 0x90
	cmdI2CRead         byte = 0x91
	cmdI2CReadRepStart byte = 0x93
	cmdI2CWriteNoStop  byte = 0x94
	cmdI2CGetData      byte = 0x40
	cmdGPIOGet         byte = 0x51
	cmdFlashRead       byte = 0xB0
	cmdFlashWrite      byte = 0xB1
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", MaxPayload)
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var (
	_ gnublin.I2CBus         = &MCP2221{}
	_ gnublin.RegisterReader = &MCP2221{}
)

// HIDDevice is the part of an open HID device used by the adapter.
type HIDDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

// Opener opens the HID device with the given enumeration index.
type Opener func(index int) (HIDDevice, error)

// OpenHID enumerates attached MCP2221 bridges and opens the one at index.
func OpenHID(index int) (HIDDevice, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, ErrDeviceNotFound
	}
	if index < 0 || index >= len(devs) {
		return nil, fmt.Errorf("no device with id %d (%d attached)", index, len(devs))
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

// Attached lists the bridges found on the USB bus.
func Attached() []hid.DeviceInfo {
	return hid.Enumerate(VendorID, ProductID)
}

type MCP2221Opts struct {
	Index        int
	ResponseWait time.Duration
	Open         Opener
	Logger       *slog.Logger
}

type MCP2221Opt func(*MCP2221Opts)

// WithDeviceIndex selects a bridge when several are attached.
func WithDeviceIndex(index int) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Index = index
	}
}

func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.ResponseWait = wait
	}
}

func WithOpener(open Opener) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Open = open
	}
}

func WithLogger(logger *slog.Logger) MCP2221Opt {
	return func(o *MCP2221Opts) {
		o.Logger = logger
	}
}

type MCP2221 struct {
	mx       sync.Mutex
	request  []byte
	response []byte
	config   MCP2221Opts
	log      *slog.Logger
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

const (
	GPIOOperation GPIODesignation = 0b00000000
	// This is alternate function of GPIO0
	GPIO0LedUartRx GPIODesignation = 0b00000001
	// This is the dedicated function operation of GPIO0
	GPIO0SSPND GPIODesignation = 0b00000010
	// This is the dedicated function of GPIO1
	GPIO1ClockOutput GPIODesignation = 0b00000001
	// This is the alternate function 0 of GPIO1
	GPIO1ADC1 GPIODesignation = 0b00000010
	// This is the alternate function 1 of GPIO1
	GPIO1LedUartTx GPIODesignation = 0b00000011
	// This is the alternate function 2 of GPIO1
	GPIO1InterruptDetection GPIODesignation = 0b00000100
)

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

// MCP2221GPIOValues holds the pin levels and directions; a NOOP mode marks a
// pin not configured for GPIO operation.
type MCP2221GPIOValues struct {
	Modes  [4]GPIOMode `yaml:"modes"`
	Values [4]byte     `yaml:"values"`
}

type MCP2221GPIOParameters struct {
	Modes        [4]GPIOMode        `yaml:"modes"`
	Designations [4]GPIODesignation `yaml:"designations"`
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	config := MCP2221Opts{
		ResponseWait: 50 * time.Millisecond,
		Open:         OpenHID,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MCP2221{
		request:  make([]byte, reportSize),
		response: make([]byte, reportSize),
		config:   config,
		log:      logger.With("adapter", "mcp2221", "index", config.Index),
	}
}

// Init checks that the bridge answers a status request.
func (d *MCP2221) Init(ctx context.Context) error {
	status, err := d.Status(ctx)
	if err != nil {
		return fmt.Errorf("mcp2221: init: %w", err)
	}
	d.log.Debug("adapter ready", "speed_divider", status.I2CSpeedDivider, "address", status.CurrentAddress)
	return nil
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.write(ctx, cmdI2CWrite, address, buffer)
}

func (d *MCP2221) write(ctx context.Context, cmd, address byte, buffer []byte) error {
	if len(buffer) > MaxPayload {
		return fmt.Errorf("write to %x: %w", address, ErrPayloadTooLarge)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	// the I2C engine did not take the command
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy", "addr", address)
		return gnublin.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.read(ctx, cmdI2CRead, address, buffer)
}

// ReadFromReg writes reg without a stop condition and reads the register
// back after a repeated start.
func (d *MCP2221) ReadFromReg(ctx context.Context, address byte, reg byte, buffer []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.write(ctx, cmdI2CWriteNoStop, address, []byte{reg}); err != nil {
		return err
	}
	return d.read(ctx, cmdI2CReadRepStart, address, buffer)
}

func (d *MCP2221) read(ctx context.Context, cmd, address byte, buffer []byte) error {
	if len(buffer) > MaxPayload {
		return fmt.Errorf("read from %x: %w", address, ErrPayloadTooLarge)
	}
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		d.log.Debug("adapter busy", "addr", address)
		return gnublin.ErrBusBusy
	}
	d.resetBuffers()
	d.request[0] = cmdI2CGetData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// SetSpeed programs the I2C clock divider for the given bus frequency.
func (d *MCP2221) SetSpeed(ctx context.Context, hz uint32) error {
	if hz < ClockHz/258 || hz > ClockHz/3 {
		return fmt.Errorf("mcp2221: invalid i2c speed %d Hz", hz)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[3] = 0x20
	d.request[4] = byte(ClockHz/hz - 3)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set speed failed: %w", err)
	}
	// speed change refused while a transfer is in progress
	if d.response[3] == 0x21 {
		return gnublin.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdFlashWrite
	d.request[1] = 0x01
	for i := range params.Modes {
		d.request[2+i] = byte(params.Designations[i]) | byte(params.Modes[i])
	}
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdFlashRead
	d.request[1] = 0x01
	var params MCP2221GPIOParameters
	if err := d.send(ctx); err != nil {
		return params, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return params, ErrCommandUnsupported
	}
	for i := range params.Modes {
		params.Modes[i] = GPIOMode(d.response[4+i] & gpioModeMask)
		params.Designations[i] = GPIODesignation(d.response[4+i] & gpioOperationMask)
	}
	return params, nil
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGPIOGet
	var res MCP2221GPIOValues
	if err := d.send(ctx); err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return res, ErrCommandFailed
	}
	for i := range res.Values {
		res.Values[i] = d.response[2+2*i]
		res.Modes[i] = GPIOModeNoOperation
		if dir := d.response[3+2*i]; dir != byte(GPIOModeNoOperation) {
			res.Modes[i] = GPIOMode(dir << 3)
		}
	}
	return res, nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

// Release cancels the current I2C transfer and frees the bus.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	d.request[2] = 0x10
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// send writes the request report and reads the response report.
func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.config.Open(d.config.Index)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			d.log.Warn("could not close device", "error", err)
		}
	}()
	trace.Dump(ctx, d.log, "sending message to adapter", d.request)
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if err := gnublin.Sleep(ctx, d.config.ResponseWait); err != nil {
		return err
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	trace.Dump(ctx, d.log, "read message from adapter", d.response)
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
