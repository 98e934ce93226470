package platform

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

// Mode is the electrical configuration of a physical pin.
type Mode int

// Pin modes understood by PinIO.
const (
	ModeInput Mode = iota
	ModeOutput
	ModeInputPullUp
	ModeInputPullDown
	ModeOpenDrain
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeInput:
		return "input"
	case ModeOutput:
		return "output"
	case ModeInputPullUp:
		return "input_pullup"
	case ModeInputPullDown:
		return "input_pulldown"
	case ModeOpenDrain:
		return "open_drain"
	default:
		return "unknown"
	}
}

// AnalogMax is the largest raw value returned by AnalogRead (10 bit).
const AnalogMax = 1023

// PinIO is raw pin access. Levels are physical (no inversion).
type PinIO interface {
	SetMode(pin int, mode Mode) error
	Write(pin int, high bool) error
	Read(pin int) (bool, error)
	AnalogRead(pin int) (int, error)
	// PWM sets the duty cycle in the range 0..AnalogMax.
	PWM(pin int, duty int) error
	// AttachInterrupt registers fn to run on every edge of pin.
	AttachInterrupt(pin int, fn func(high bool)) error
	DetachInterrupt(pin int) error
}

// WiFiMode is the network state reported by the platform.
type WiFiMode int

// Network states.
const (
	WiFiDisconnected WiFiMode = iota
	WiFiStation
	WiFiAccessPoint
)

// String returns the mode name.
func (m WiFiMode) String() string {
	switch m {
	case WiFiStation:
		return "station"
	case WiFiAccessPoint:
		return "ap"
	default:
		return "disconnected"
	}
}

// WiFiStatus describes the current network connection.
type WiFiStatus struct {
	Mode WiFiMode
	SSID string
	IP   string
	RSSI int
}

// Platform is everything the runtime needs from the board.
type Platform interface {
	Now() time.Time
	Sleep(d time.Duration)
	// Random returns a value in [0, n).
	Random(n int) int

	Pins() PinIO
	// PinCount is the number of physical pins, numbered 0..PinCount-1.
	PinCount() int

	FS() afero.Fs
	// FSCapacity is the size of the filesystem in bytes.
	FSCapacity() int64

	FreeHeap() uint64
	ChipID() uint32
	ResetReason() string

	WiFi() WiFiStatus
	SyncTime(server string) error

	// Reboot restarts the device. The host implementation hands control
	// back to its owner; it returns so the caller can unwind.
	Reboot(force bool)
}

// DiskUsage sums the size of every regular file in fsys.
func DiskUsage(fsys afero.Fs) (int64, error) {
	var used int64
	err := afero.Walk(fsys, "/", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			used += info.Size()
		}
		return nil
	})
	return used, err
}

// FreeSpace returns the bytes left on the platform filesystem.
func FreeSpace(p Platform) int64 {
	used, err := DiskUsage(p.FS())
	if err != nil {
		return 0
	}
	free := p.FSCapacity() - used
	if free < 0 {
		return 0
	}
	return free
}
