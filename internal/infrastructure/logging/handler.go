package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// timeLayout is the timestamp printed after the severity prefix.
const timeLayout = "2006-01-02 15:04:05"

// Prefix returns the console tag for a level: [E], [W], [I], [D] or [X].
func Prefix(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "[E]"
	case l >= slog.LevelWarn:
		return "[W]"
	case l >= slog.LevelInfo:
		return "[I]"
	case l >= slog.LevelDebug:
		return "[D]"
	default:
		return "[X]"
	}
}

// ConsoleHandler renders records as single lines for a terminal:
//
//	[I] 2026-01-02 15:04:05 capability loaded name=gpio
type ConsoleHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	attrs  []byte
	prefix string
}

// NewConsoleHandler creates a handler writing to w at the given level.
func NewConsoleHandler(w io.Writer, level slog.Leveler) *ConsoleHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &ConsoleHandler{mu: &sync.Mutex{}, w: w, level: level}
}

// Enabled implements slog.Handler.
func (h *ConsoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(Prefix(r.Level))
	buf.WriteByte(' ')
	if !r.Time.IsZero() {
		buf.WriteString(r.Time.Format(timeLayout))
		buf.WriteByte(' ')
	}
	buf.WriteString(r.Message)
	buf.Write(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs implements slog.Handler.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer
	buf.Write(h.attrs)
	for _, a := range attrs {
		appendAttr(&buf, h.prefix, a)
	}
	clone := *h
	clone.attrs = buf.Bytes()
	return &clone
}

// WithGroup implements slog.Handler.
func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(buf, p, ga)
		}
		return
	}
	fmt.Fprintf(buf, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

type namedSink struct {
	name    string
	handler slog.Handler
}

// sinkSet is shared by a logger and every logger derived from it with With.
type sinkSet struct {
	mu    sync.RWMutex
	sinks []namedSink
}

func (s *sinkSet) add(name string, h slog.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = slices.DeleteFunc(s.sinks, func(n namedSink) bool { return n.name == name })
	s.sinks = append(s.sinks, namedSink{name: name, handler: h})
}

func (s *sinkSet) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = slices.DeleteFunc(s.sinks, func(n namedSink) bool { return n.name == name })
}

func (s *sinkSet) snapshot() []namedSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sinks)
}

// fanoutHandler forwards records to the primary handler and to every sink.
// Attributes and groups added with With are replayed onto sinks at Handle time
// because sinks may be attached after the child logger was created.
type fanoutHandler struct {
	primary slog.Handler
	sinks   *sinkSet
	ops     []func(slog.Handler) slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, l slog.Level) bool {
	if f.primary.Enabled(ctx, l) {
		return true
	}
	for _, s := range f.sinks.snapshot() {
		if s.handler.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	if f.primary.Enabled(ctx, r.Level) {
		first = f.primary.Handle(ctx, r.Clone())
	}
	for _, s := range f.sinks.snapshot() {
		h := s.handler
		for _, op := range f.ops {
			h = op(h)
		}
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{
		primary: f.primary.WithAttrs(attrs),
		sinks:   f.sinks,
		ops:     append(slices.Clone(f.ops), func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) }),
	}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{
		primary: f.primary.WithGroup(name),
		sinks:   f.sinks,
		ops:     append(slices.Clone(f.ops), func(h slog.Handler) slog.Handler { return h.WithGroup(name) }),
	}
}
