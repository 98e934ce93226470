package platform

import (
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// HostOptions configures a Host platform.
type HostOptions struct {
	// Root is the directory backing the device filesystem.
	Root string
	// Capacity is the advertised filesystem size in bytes.
	Capacity int64
	PinCount int
	ChipID   uint32
	// Pins overrides the in-memory pin bank, for example with linuxgpio.
	Pins PinIO
	// OnReboot is called by Reboot. Nil ignores reboots.
	OnReboot func(force bool)
}

// Host is the desktop implementation of Platform.
type Host struct {
	opts HostOptions
	fs   afero.Fs
	pins PinIO

	mu     sync.Mutex
	ntp    string
	synced time.Time
}

// NewHost creates the root directory and returns a host platform.
func NewHost(opts HostOptions) (*Host, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("platform: filesystem root is required")
	}
	if err := os.MkdirAll(opts.Root, 0o750); err != nil {
		return nil, fmt.Errorf("creating filesystem root: %w", err)
	}
	pins := opts.Pins
	if pins == nil {
		pins = NewMemoryPins(opts.PinCount)
	}
	return &Host{
		opts: opts,
		fs:   afero.NewBasePathFs(afero.NewOsFs(), opts.Root),
		pins: pins,
	}, nil
}

// Now implements Platform.
func (h *Host) Now() time.Time { return time.Now() }

// Sleep implements Platform.
func (h *Host) Sleep(d time.Duration) { time.Sleep(d) }

// Random implements Platform.
func (h *Host) Random(n int) int {
	if n <= 0 {
		return 0
	}
	return rand.IntN(n) //nolint:gosec // not used for security
}

// Pins implements Platform.
func (h *Host) Pins() PinIO { return h.pins }

// PinCount implements Platform.
func (h *Host) PinCount() int { return h.opts.PinCount }

// FS implements Platform.
func (h *Host) FS() afero.Fs { return h.fs }

// FSCapacity implements Platform.
func (h *Host) FSCapacity() int64 { return h.opts.Capacity }

// FreeHeap reports heap memory the Go runtime holds but does not use.
func (h *Host) FreeHeap() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapIdle - ms.HeapReleased
}

// ChipID implements Platform.
func (h *Host) ChipID() uint32 { return h.opts.ChipID }

// ResetReason implements Platform.
func (h *Host) ResetReason() string { return "power-on" }

// WiFi reports station mode with the first non-loopback IPv4 address.
func (h *Host) WiFi() WiFiStatus {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return WiFiStatus{Mode: WiFiDisconnected}
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
			continue
		}
		return WiFiStatus{Mode: WiFiStation, SSID: "host", IP: ipnet.IP.String()}
	}
	return WiFiStatus{Mode: WiFiDisconnected}
}

// SyncTime records the server; the host clock is kept by the OS.
func (h *Host) SyncTime(server string) error {
	if server == "" {
		return fmt.Errorf("platform: no time server")
	}
	h.mu.Lock()
	h.ntp = server
	h.synced = time.Now()
	h.mu.Unlock()
	return nil
}

// Reboot implements Platform.
func (h *Host) Reboot(force bool) {
	if h.opts.OnReboot != nil {
		h.opts.OnReboot(force)
	}
}
