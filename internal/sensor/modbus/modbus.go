// Package modbus provides sensor readers backed by Modbus registers on an
// RTU serial line or a TCP gateway.
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/goburrow/modbus"

	"github.com/ocfu/espconsole/internal/infrastructure/config"
)

// Errors returned by the bus.
var (
	// ErrBackoff is returned while the bus waits before reconnecting.
	ErrBackoff = errors.New("modbus: reconnect backoff")

	// ErrShortResponse is returned when fewer bytes than requested arrive.
	ErrShortResponse = errors.New("modbus: short response")

	// ErrMode is returned for a mode other than rtu or tcp.
	ErrMode = errors.New("modbus: invalid mode")
)

const (
	backoffMin = time.Second
	backoffMax = time.Minute
)

// Kind selects the register table.
type Kind int

// Register tables.
const (
	Holding Kind = iota
	Input
)

// ParseKind parses "holding" or "input".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", "holding", "h":
		return Holding, nil
	case "input", "i":
		return Input, nil
	}
	return Holding, fmt.Errorf("modbus: invalid register kind %q", s)
}

// Config selects and parameterises the transport.
type Config struct {
	Mode    string // rtu or tcp
	Address string // host:port for tcp
	Device  string // serial device for rtu
	Baud    int
	Timeout time.Duration
}

// ConfigFrom converts the modbus section of the host configuration.
func ConfigFrom(cfg config.ModbusConfig) Config {
	return Config{
		Mode:    cfg.Mode,
		Address: net.JoinHostPort(cfg.TCPHost, strconv.Itoa(cfg.TCPPort)),
		Device:  cfg.RTUDevice,
		Baud:    cfg.RTUBaud,
		Timeout: time.Duration(cfg.Timeout) * time.Millisecond,
	}
}

// client is the part of modbus.Client the bus uses.
type client interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

type closer interface {
	Close() error
}

// Bus is a lazily connected Modbus master. Failed connects back off
// exponentially without blocking the caller.
type Bus struct {
	cfg Config
	now func() time.Time

	rtu    *modbus.RTUClientHandler
	tcp    *modbus.TCPClientHandler
	conn   closer
	client client

	backoff time.Duration
	nextTry time.Time
	lastErr error
}

// NewBus creates a bus; nothing is opened until the first read.
func NewBus(cfg Config, now func() time.Time) *Bus {
	return &Bus{cfg: cfg, now: now}
}

// newBusWithClient creates a bus over an existing client, for tests.
func newBusWithClient(c client, now func() time.Time) *Bus {
	return &Bus{now: now, client: c}
}

func (b *Bus) connect() error {
	if b.client != nil {
		return nil
	}
	if !b.nextTry.IsZero() && b.now().Before(b.nextTry) {
		return fmt.Errorf("%w: last error: %v", ErrBackoff, b.lastErr)
	}
	switch strings.ToLower(b.cfg.Mode) {
	case "rtu":
		h := modbus.NewRTUClientHandler(b.cfg.Device)
		h.BaudRate = b.cfg.Baud
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.Timeout = b.cfg.Timeout
		if err := h.Connect(); err != nil {
			return b.fail(err)
		}
		b.rtu, b.conn = h, h
		b.client = modbus.NewClient(h)
	case "tcp":
		h := modbus.NewTCPClientHandler(b.cfg.Address)
		h.Timeout = b.cfg.Timeout
		if err := h.Connect(); err != nil {
			return b.fail(err)
		}
		b.tcp, b.conn = h, h
		b.client = modbus.NewClient(h)
	default:
		return fmt.Errorf("%w: %q", ErrMode, b.cfg.Mode)
	}
	b.backoff = 0
	b.nextTry = time.Time{}
	b.lastErr = nil
	return nil
}

func (b *Bus) fail(err error) error {
	b.lastErr = err
	if b.backoff == 0 {
		b.backoff = backoffMin
	} else {
		b.backoff = min(b.backoff*2, backoffMax)
	}
	b.nextTry = b.now().Add(b.backoff)
	return fmt.Errorf("modbus: connect: %w", err)
}

func (b *Bus) setSlave(id byte) {
	if b.rtu != nil {
		b.rtu.SlaveId = id
	}
	if b.tcp != nil {
		b.tcp.SlaveId = id
	}
}

// Close drops the connection. The next read reconnects.
func (b *Bus) Close() error {
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.rtu, b.tcp, b.conn, b.client = nil, nil, nil, nil
	return err
}

// ReadRegisters reads quantity 16-bit registers from slave.
func (b *Bus) ReadRegisters(slave byte, kind Kind, address, quantity uint16) ([]byte, error) {
	if err := b.connect(); err != nil {
		return nil, err
	}
	b.setSlave(slave)
	var (
		data []byte
		err  error
	)
	if kind == Input {
		data, err = b.client.ReadInputRegisters(address, quantity)
	} else {
		data, err = b.client.ReadHoldingRegisters(address, quantity)
	}
	if err != nil {
		if b.conn != nil && isTransient(err) {
			_ = b.Close()
			_ = b.fail(err)
		}
		return nil, fmt.Errorf("modbus: read %d@%d: %w", quantity, address, err)
	}
	if len(data) < int(quantity)*2 {
		return nil, fmt.Errorf("%w: %d bytes for %d registers", ErrShortResponse, len(data), quantity)
	}
	return data, nil
}

func isTransient(err error) bool {
	s := strings.ToLower(err.Error())
	for _, frag := range []string{"connection", "broken pipe", "reset", "closed", "i/o", "timeout", "eof"} {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}

// Register reads one value of one or two words from a slave.
type Register struct {
	Bus     *Bus
	Slave   byte
	Kind    Kind
	Address uint16
	Words   int // 1 or 2, high word first
	Signed  bool
	Scale   float64 // multiplier, 0 means 1
}

// Read implements sensor.Reader.
func (r Register) Read() (float64, error) {
	words := r.Words
	if words != 2 {
		words = 1
	}
	data, err := r.Bus.ReadRegisters(r.Slave, r.Kind, r.Address, uint16(words))
	if err != nil {
		return 0, err
	}
	var v float64
	if words == 1 {
		u := binary.BigEndian.Uint16(data)
		if r.Signed {
			v = float64(int16(u))
		} else {
			v = float64(u)
		}
	} else {
		u := binary.BigEndian.Uint32(data)
		if r.Signed {
			v = float64(int32(u))
		} else {
			v = float64(u)
		}
	}
	scale := r.Scale
	if scale == 0 {
		scale = 1
	}
	return v * scale, nil
}
