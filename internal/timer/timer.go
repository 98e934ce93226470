// Package timer runs command lines after a period, repeatedly or on a cron
// schedule. Timers are polled from the cooperative loop.
package timer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ocfu/espconsole/internal/command"
)

// Period limits.
const (
	MinPeriod = 100 * time.Millisecond
	MaxPeriod = 7 * 24 * time.Hour
)

// Mode is what happens after a timer fires.
type Mode int

// Timer modes. Replace is only an add-time instruction; stored timers are
// Once or Repeat.
const (
	Once Mode = iota
	Repeat
	Replace
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Once:
		return "once"
	case Repeat:
		return "repeat"
	case Replace:
		return "replace"
	default:
		return "unknown"
	}
}

// ParseMode parses once, repeat or replace.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "once":
		return Once, nil
	case "repeat":
		return Repeat, nil
	case "replace":
		return Replace, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Timer is one scheduled command.
type Timer struct {
	ID      string
	Spec    string
	Period  time.Duration // zero for cron timers
	Mode    Mode
	Cmd     string
	Running bool
	Next    time.Time
	Fired   uint64

	schedule cron.Schedule
}

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler owns the timers.
type Scheduler struct {
	exec   command.Executor
	now    func() time.Time
	timers map[string]*Timer
	logger Logger
}

// New creates a scheduler dispatching through exec with the given clock.
func New(exec command.Executor, now func() time.Time) *Scheduler {
	return &Scheduler{
		exec:   exec,
		now:    now,
		timers: make(map[string]*Timer),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// parseSpec accepts a period in milliseconds or a five-field cron line.
func parseSpec(spec string) (time.Duration, cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if strings.ContainsAny(spec, " \t") {
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, err)
		}
		return 0, sched, nil
	}
	ms, err := strconv.ParseInt(spec, 0, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, spec)
	}
	d := time.Duration(ms) * time.Millisecond
	if d < MinPeriod || d > MaxPeriod {
		return 0, nil, fmt.Errorf("%w: %v outside %v..%v", ErrInvalidPeriod, d, MinPeriod, MaxPeriod)
	}
	return d, nil, nil
}

// Add creates or replaces a timer.
//
// Without an id a fresh one is generated and the default mode is once; with
// an id the default is repeat. Replace keeps the mode of the timer it
// replaces and creates a repeat timer when the id is new.
//
// Parameters:
//   - spec: Period in milliseconds, or a five-field cron expression
//   - cmd: Command line dispatched on expiry
//   - id: Timer id, may be empty
//   - mode: "", "once", "repeat" or "replace"
func (s *Scheduler) Add(spec, cmd, id, mode string) (*Timer, error) {
	if strings.TrimSpace(cmd) == "" {
		return nil, ErrEmptyCommand
	}
	period, sched, err := parseSpec(spec)
	if err != nil {
		return nil, err
	}

	m := Once
	if id != "" {
		m = Repeat
	}
	if mode != "" {
		if m, err = ParseMode(mode); err != nil {
			return nil, err
		}
	}
	if id == "" {
		id = "t" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}

	if old, ok := s.timers[id]; ok {
		if m != Replace {
			return nil, fmt.Errorf("%w: %s", ErrTimerExists, id)
		}
		m = old.Mode
	} else if m == Replace {
		m = Repeat
	}

	t := &Timer{
		ID:       id,
		Spec:     strings.TrimSpace(spec),
		Period:   period,
		Mode:     m,
		Cmd:      cmd,
		Running:  true,
		schedule: sched,
	}
	t.Next = s.next(t, s.now())
	s.timers[id] = t
	s.logger.Debug("timer added", "id", id, "spec", t.Spec, "mode", m.String())
	return t, nil
}

func (s *Scheduler) next(t *Timer, from time.Time) time.Time {
	if t.schedule != nil {
		return t.schedule.Next(from)
	}
	return from.Add(t.Period)
}

// Del removes a timer.
func (s *Scheduler) Del(id string) error {
	if _, ok := s.timers[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}
	delete(s.timers, id)
	return nil
}

// Stop pauses a timer without removing it.
func (s *Scheduler) Stop(id string) error {
	t, ok := s.timers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}
	t.Running = false
	return nil
}

// Start restarts a timer; the period counts from now.
func (s *Scheduler) Start(id string) error {
	t, ok := s.timers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimerNotFound, id)
	}
	t.Running = true
	t.Next = s.next(t, s.now())
	return nil
}

// Get returns a copy of the timer with id.
func (s *Scheduler) Get(id string) (Timer, bool) {
	t, ok := s.timers[id]
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

// List returns copies of all timers sorted by id.
func (s *Scheduler) List() []Timer {
	out := make([]Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of timers.
func (s *Scheduler) Len() int { return len(s.timers) }

// Poll fires every due timer. It works on a snapshot of the ids so callbacks
// may add, replace or delete timers. Once timers are removed before their
// command runs.
func (s *Scheduler) Poll() {
	if len(s.timers) == 0 {
		return
	}
	now := s.now()
	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t, ok := s.timers[id]
		if !ok || !t.Running || now.Before(t.Next) {
			continue
		}
		if t.Mode == Once {
			delete(s.timers, id)
		} else {
			t.Next = s.next(t, t.Next)
			if !t.Next.After(now) {
				t.Next = s.next(t, now)
			}
		}
		t.Fired++
		s.logger.Debug("timer fired", "id", id, "cmd", t.Cmd)
		s.exec.Exec(t.Cmd, nil)
	}
}
