package gpio

import (
	"fmt"
	"time"
)

type contactState int

const (
	contactOpen contactState = iota
	contactClosing
	contactClosed
	contactOpening
)

var contactStateNames = []string{"open", "closing", "closed", "opening"}

// Contact debounces a level into close and open events. A counter is a
// contact that also counts closes.
type Contact struct {
	Base
	state contactState
	since time.Time
	count int
}

func newContact(b Base) *Contact {
	c := &Contact{Base: b}
	if c.read() {
		c.state = contactClosed
	}
	return c
}

// Canonical implements Device.
func (c *Contact) Canonical() []Event {
	if c.typ == TypeCounter {
		return []Event{EventClose}
	}
	return []Event{EventClose, EventOpen}
}

// State reports whether the contact is closed.
func (c *Contact) State() bool {
	return c.state == contactClosed || c.state == contactOpening
}

// Value returns the close count for counters and the state for contacts.
func (c *Contact) Value() int {
	if c.typ == TypeCounter {
		return c.count
	}
	return boolInt(c.State())
}

// Count returns the number of closes seen.
func (c *Contact) Count() int { return c.count }

// ResetCount sets the close count to zero.
func (c *Contact) ResetCount() { c.count = 0 }

// Status implements Device.
func (c *Contact) Status() string {
	if c.typ == TypeCounter {
		return fmt.Sprintf("%s count=%d", contactStateNames[c.state], c.count)
	}
	return contactStateNames[c.state]
}

// Tick implements Device.
func (c *Contact) Tick(now time.Time) {
	high := c.read()
	switch c.state {
	case contactOpen:
		if high {
			c.state = contactClosing
			c.since = now
		}
	case contactClosing:
		switch {
		case !high:
			c.state = contactOpen
		case now.Sub(c.since) >= c.debounce:
			c.state = contactClosed
			if c.typ == TypeCounter {
				c.count++
			}
			c.emit(EventClose)
		}
	case contactClosed:
		if !high {
			c.state = contactOpening
			c.since = now
		}
	case contactOpening:
		switch {
		case high:
			c.state = contactClosed
		case now.Sub(c.since) >= c.debounce:
			c.state = contactOpen
			c.emit(EventOpen)
		}
	}
}
