package modbus

import (
	"errors"
	"testing"
	"time"

	"github.com/ocfu/espconsole/internal/infrastructure/config"
)

type fakeClient struct {
	holding map[uint16][]byte
	input   map[uint16][]byte
	err     error
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.holding[address], nil
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.input[address], nil
}

func TestRegisterRead(t *testing.T) {
	fc := &fakeClient{
		holding: map[uint16][]byte{
			10: {0x00, 0xfa},             // 250
			11: {0xff, 0x38},             // -200 signed
			20: {0x00, 0x01, 0x00, 0x00}, // 65536
		},
		input: map[uint16][]byte{5: {0x01, 0x00}},
	}
	bus := newBusWithClient(fc, time.Now)

	tests := []struct {
		name string
		reg  Register
		want float64
	}{
		{"unsigned scaled", Register{Bus: bus, Address: 10, Scale: 0.1}, 25},
		{"signed", Register{Bus: bus, Address: 11, Signed: true}, -200},
		{"unsigned word", Register{Bus: bus, Address: 11}, 65336},
		{"two words", Register{Bus: bus, Address: 20, Words: 2}, 65536},
		{"input table", Register{Bus: bus, Kind: Input, Address: 5}, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.reg.Read()
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Read() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegisterShortResponse(t *testing.T) {
	bus := newBusWithClient(&fakeClient{holding: map[uint16][]byte{1: {0x01}}}, time.Now)
	if _, err := (Register{Bus: bus, Address: 1}).Read(); !errors.Is(err, ErrShortResponse) {
		t.Errorf("Read() error = %v, want ErrShortResponse", err)
	}
}

func TestBusInvalidMode(t *testing.T) {
	bus := NewBus(Config{Mode: "carrier-pigeon"}, time.Now)
	if _, err := bus.ReadRegisters(1, Holding, 0, 1); !errors.Is(err, ErrMode) {
		t.Errorf("ReadRegisters() error = %v, want ErrMode", err)
	}
}

func TestBusBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bus := NewBus(Config{Mode: "tcp", Address: "127.0.0.1:1", Timeout: 50 * time.Millisecond}, func() time.Time { return now })

	if _, err := bus.ReadRegisters(1, Holding, 0, 1); err == nil || errors.Is(err, ErrBackoff) {
		t.Fatalf("first ReadRegisters() error = %v, want a connect error", err)
	}
	if _, err := bus.ReadRegisters(1, Holding, 0, 1); !errors.Is(err, ErrBackoff) {
		t.Errorf("second ReadRegisters() error = %v, want ErrBackoff", err)
	}
	now = now.Add(backoffMin)
	if _, err := bus.ReadRegisters(1, Holding, 0, 1); errors.Is(err, ErrBackoff) {
		t.Errorf("ReadRegisters() after backoff still backing off: %v", err)
	}
	if bus.backoff != 2*backoffMin {
		t.Errorf("backoff = %v, want %v", bus.backoff, 2*backoffMin)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", Holding, false},
		{"input", Input, false},
		{"coil", Holding, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestConfigFrom(t *testing.T) {
	got := ConfigFrom(config.ModbusConfig{Mode: "tcp", TCPHost: "10.0.0.5", TCPPort: 502, Timeout: 250})
	if got.Address != "10.0.0.5:502" || got.Timeout != 250*time.Millisecond {
		t.Errorf("ConfigFrom() = %+v", got)
	}
}
