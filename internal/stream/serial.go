package stream

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// SerialConfig describes a UART.
type SerialConfig struct {
	Port     string
	Baud     int
	DataBits int
	Parity   string // N, E or O
	StopBits int    // 1 or 2
}

// serialMode maps a SerialConfig onto go.bug.st/serial settings.
func serialMode(cfg SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: cfg.Baud, DataBits: cfg.DataBits}
	if mode.BaudRate == 0 {
		mode.BaudRate = 115200
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToUpper(cfg.Parity) {
	case "", "N":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q (use N,E,O)", cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stopbits %d (use 1 or 2)", cfg.StopBits)
	}
	return mode, nil
}

// OpenSerial opens the port and wraps it in a Pump.
func OpenSerial(cfg SerialConfig) (*Pump, error) {
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	return NewPump(port), nil
}

// SerialPorts lists the serial ports present on the host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
