package platform

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Sim is a deterministic Platform for tests.
type Sim struct {
	mu       sync.Mutex
	now      time.Time
	heap     uint64
	chipID   uint32
	wifi     WiFiStatus
	reboots  []bool
	ntp      string
	capacity int64
	rng      *rand.Rand

	pins *MemoryPins
	fs   afero.Fs
}

// NewSim returns a simulator with 40 pins, a 1 MiB in-memory filesystem,
// station Wi-Fi and a clock starting at 2026-01-01 00:00 UTC.
func NewSim() *Sim {
	return &Sim{
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		heap:     200_000,
		chipID:   0xc0ffee,
		wifi:     WiFiStatus{Mode: WiFiStation, SSID: "sim", IP: "192.168.4.2", RSSI: -50},
		capacity: 1 << 20,
		rng:      rand.New(rand.NewPCG(1, 2)), //nolint:gosec // deterministic by intent
		pins:     NewMemoryPins(40),
		fs:       afero.NewMemMapFs(),
	}
}

// Now implements Platform.
func (s *Sim) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Sleep advances the clock by d.
func (s *Sim) Sleep(d time.Duration) { s.Advance(d) }

// Advance moves the clock forward.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

// Random implements Platform.
func (s *Sim) Random(n int) int {
	if n <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Pins implements Platform.
func (s *Sim) Pins() PinIO { return s.pins }

// MemoryPins exposes the simulated pin bank for driving inputs.
func (s *Sim) MemoryPins() *MemoryPins { return s.pins }

// PinCount implements Platform.
func (s *Sim) PinCount() int { return s.pins.count }

// FS implements Platform.
func (s *Sim) FS() afero.Fs { return s.fs }

// FSCapacity implements Platform.
func (s *Sim) FSCapacity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// SetFSCapacity changes the advertised filesystem size.
func (s *Sim) SetFSCapacity(n int64) {
	s.mu.Lock()
	s.capacity = n
	s.mu.Unlock()
}

// FreeHeap implements Platform.
func (s *Sim) FreeHeap() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap
}

// SetFreeHeap sets the value FreeHeap returns.
func (s *Sim) SetFreeHeap(n uint64) {
	s.mu.Lock()
	s.heap = n
	s.mu.Unlock()
}

// ChipID implements Platform.
func (s *Sim) ChipID() uint32 { return s.chipID }

// ResetReason implements Platform.
func (s *Sim) ResetReason() string { return "sim" }

// WiFi implements Platform.
func (s *Sim) WiFi() WiFiStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wifi
}

// SetWiFi changes the reported network state.
func (s *Sim) SetWiFi(st WiFiStatus) {
	s.mu.Lock()
	s.wifi = st
	s.mu.Unlock()
}

// SyncTime implements Platform.
func (s *Sim) SyncTime(server string) error {
	s.mu.Lock()
	s.ntp = server
	s.mu.Unlock()
	return nil
}

// TimeServer returns the last server passed to SyncTime.
func (s *Sim) TimeServer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ntp
}

// Reboot records the request.
func (s *Sim) Reboot(force bool) {
	s.mu.Lock()
	s.reboots = append(s.reboots, force)
	s.mu.Unlock()
}

// Reboots returns the force flag of every Reboot call so far.
func (s *Sim) Reboots() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.reboots...)
}
