// Package linuxgpio implements platform.PinIO on the Linux GPIO character
// device, for running the console on a single-board computer.
//
// Pin numbers are line offsets on one chip. Analog input and hardware PWM
// are not available through the character device; PWM falls back to a
// plain on/off level.
package linuxgpio

import (
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"

	"github.com/ocfu/espconsole/internal/platform"
)

type line struct {
	l    *gpiod.Line
	mode platform.Mode
	isr  func(bool)
}

// Pins is a PinIO backed by one GPIO chip.
type Pins struct {
	mu    sync.Mutex
	chip  *gpiod.Chip
	lines map[int]*line
}

// Open opens the named chip, for example "gpiochip0".
func Open(chipName string) (*Pins, error) {
	chip, err := gpiod.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", chipName, err)
	}
	return &Pins{chip: chip, lines: make(map[int]*line)}, nil
}

// Lines returns the number of lines on the chip.
func (p *Pins) Lines() int {
	return p.chip.Lines()
}

// Close releases every requested line and the chip.
func (p *Pins) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for off, ln := range p.lines {
		if err := ln.l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", off, err))
		}
	}
	p.lines = make(map[int]*line)
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		p.chip = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}

func options(mode platform.Mode, level int, isr func(bool)) []gpiod.LineReqOption {
	var opts []gpiod.LineReqOption
	switch mode {
	case platform.ModeOutput:
		opts = append(opts, gpiod.AsOutput(level))
	case platform.ModeOpenDrain:
		opts = append(opts, gpiod.AsOutput(level), gpiod.AsOpenDrain)
	case platform.ModeInputPullUp:
		opts = append(opts, gpiod.AsInput, gpiod.WithPullUp)
	case platform.ModeInputPullDown:
		opts = append(opts, gpiod.AsInput, gpiod.WithPullDown)
	default:
		opts = append(opts, gpiod.AsInput)
	}
	if isr != nil && mode != platform.ModeOutput && mode != platform.ModeOpenDrain {
		opts = append(opts,
			gpiod.WithBothEdges,
			gpiod.WithEventHandler(func(evt gpiod.LineEvent) {
				isr(evt.Type == gpiod.LineEventRisingEdge)
			}))
	}
	return opts
}

// request (re)requests a line with the given configuration. Caller holds mu.
func (p *Pins) request(pin int, mode platform.Mode, level int, isr func(bool)) (*line, error) {
	if p.chip == nil {
		return nil, fmt.Errorf("chip not opened")
	}
	if pin < 0 || pin >= p.chip.Lines() {
		return nil, fmt.Errorf("%w: %d", platform.ErrPinInvalid, pin)
	}
	if old, ok := p.lines[pin]; ok {
		old.l.Close() //nolint:errcheck // replaced below
		delete(p.lines, pin)
	}
	l, err := p.chip.RequestLine(pin, options(mode, level, isr)...)
	if err != nil {
		return nil, fmt.Errorf("request pin %d: %w", pin, err)
	}
	ln := &line{l: l, mode: mode, isr: isr}
	p.lines[pin] = ln
	return ln, nil
}

// SetMode implements platform.PinIO.
func (p *Pins) SetMode(pin int, mode platform.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var isr func(bool)
	if ln, ok := p.lines[pin]; ok {
		isr = ln.isr
	}
	_, err := p.request(pin, mode, 0, isr)
	return err
}

// Write implements platform.PinIO. An input line is switched to output.
func (p *Pins) Write(pin int, high bool) error {
	v := 0
	if high {
		v = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ln, ok := p.lines[pin]
	if !ok || (ln.mode != platform.ModeOutput && ln.mode != platform.ModeOpenDrain) {
		_, err := p.request(pin, platform.ModeOutput, v, nil)
		return err
	}
	if err := ln.l.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", pin, err)
	}
	return nil
}

// Read implements platform.PinIO.
func (p *Pins) Read(pin int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ln, ok := p.lines[pin]
	if !ok {
		var err error
		if ln, err = p.request(pin, platform.ModeInput, 0, nil); err != nil {
			return false, err
		}
	}
	v, err := ln.l.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// AnalogRead implements platform.PinIO.
func (p *Pins) AnalogRead(int) (int, error) {
	return 0, platform.ErrUnsupported
}

// PWM drives the line fully on for any non-zero duty.
func (p *Pins) PWM(pin int, duty int) error {
	return p.Write(pin, duty > 0)
}

// AttachInterrupt implements platform.PinIO.
func (p *Pins) AttachInterrupt(pin int, fn func(bool)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	mode := platform.ModeInput
	if ln, ok := p.lines[pin]; ok {
		mode = ln.mode
	}
	_, err := p.request(pin, mode, 0, fn)
	return err
}

// DetachInterrupt implements platform.PinIO.
func (p *Pins) DetachInterrupt(pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ln, ok := p.lines[pin]
	if !ok || ln.isr == nil {
		return nil
	}
	_, err := p.request(pin, ln.mode, 0, nil)
	return err
}

var _ platform.PinIO = (*Pins)(nil)
