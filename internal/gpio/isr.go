package gpio

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ISRSlots is the number of interrupt counters.
const ISRSlots = 3

type isrSlot struct {
	pin      atomic.Int32 // -1 when detached
	count    atomic.Uint32
	last     atomic.Int64 // unix nanos of the last counted edge
	debounce atomic.Int64 // nanoseconds
}

// ISR counts rising logical edges on up to ISRSlots pins. The interrupt
// handler is the only writer of a slot's counters and the loop only reads
// them, so no lock is taken.
type ISR struct {
	tracker *Tracker
	now     func() time.Time
	slots   [ISRSlots]isrSlot
}

// NewISR creates the counter bank for tracker.
func NewISR(tracker *Tracker, now func() time.Time) *ISR {
	isr := &ISR{tracker: tracker, now: now}
	for i := range isr.slots {
		isr.slots[i].pin.Store(-1)
	}
	return isr
}

// Attach binds slot id to pin. Edges closer together than debounce are
// ignored.
func (isr *ISR) Attach(id, pin int, debounce time.Duration) error {
	if id < 0 || id >= ISRSlots {
		return fmt.Errorf("%w: %d", ErrISRInvalid, id)
	}
	if IsVirtual(pin) || !isr.tracker.Valid(pin) {
		return fmt.Errorf("%w: %d", ErrPinInvalid, pin)
	}
	s := &isr.slots[id]
	if old := int(s.pin.Load()); old >= 0 && old != pin {
		_ = isr.tracker.io.DetachInterrupt(old)
	}
	rec, err := isr.tracker.record(pin)
	if err != nil {
		return err
	}
	if !rec.Mode.isInput() {
		if err := isr.tracker.SetMode(pin, ModeInput); err != nil {
			return err
		}
	}
	s.debounce.Store(int64(debounce))
	s.count.Store(0)
	s.last.Store(0)
	s.pin.Store(int32(pin))
	inverted := rec.Inverted
	return isr.tracker.io.AttachInterrupt(pin, func(high bool) {
		if high == inverted {
			return
		}
		now := isr.now().UnixNano()
		if last := s.last.Load(); last != 0 && now-last < s.debounce.Load() {
			return
		}
		s.last.Store(now)
		s.count.Add(1)
	})
}

// Detach releases slot id.
func (isr *ISR) Detach(id int) error {
	if id < 0 || id >= ISRSlots {
		return fmt.Errorf("%w: %d", ErrISRInvalid, id)
	}
	s := &isr.slots[id]
	pin := int(s.pin.Swap(-1))
	if pin < 0 {
		return nil
	}
	return isr.tracker.io.DetachInterrupt(pin)
}

// Count returns the edges counted in slot id.
func (isr *ISR) Count(id int) uint32 {
	if id < 0 || id >= ISRSlots {
		return 0
	}
	return isr.slots[id].count.Load()
}

// Reset clears the counter of slot id.
func (isr *ISR) Reset(id int) {
	if id >= 0 && id < ISRSlots {
		isr.slots[id].count.Store(0)
	}
}

// Pin returns the pin bound to slot id, or -1.
func (isr *ISR) Pin(id int) int {
	if id < 0 || id >= ISRSlots {
		return -1
	}
	return int(isr.slots[id].pin.Load())
}

// Debounce returns the debounce of slot id.
func (isr *ISR) Debounce(id int) time.Duration {
	if id < 0 || id >= ISRSlots {
		return 0
	}
	return time.Duration(isr.slots[id].debounce.Load())
}
