package capability

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/ocfu/espconsole/internal/command"
)

// LowHeap is the free-heap level below which a load is reported as a
// warning on the next command.
const LowHeap = 8 * 1024

// Logger defines the logging interface used by the Registry.
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

// instance is a loaded capability with its accounting.
type instance struct {
	cap      Capability
	memDelta int64
	commands int
	loops    uint64
	loopTime time.Duration
	loadedAt time.Time
}

// Info describes one registered capability for listing.
type Info struct {
	Name     string
	Loaded   bool
	Locked   bool
	MemDelta int64
	Commands int
	Loops    uint64
	LoopTime time.Duration
}

// Registry binds names to constructors and holds the loaded instances.
type Registry struct {
	ctx     *Context
	ctors   map[string]Constructor
	order   []string
	loaded  map[string]*instance
	pending []string
	logger  Logger
}

// NewRegistry creates an empty registry for ctx and sets ctx.Caps.
func NewRegistry(ctx *Context) *Registry {
	r := &Registry{
		ctx:    ctx,
		ctors:  make(map[string]Constructor),
		loaded: make(map[string]*instance),
		logger: noopLogger{},
	}
	ctx.Caps = r
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register binds name to ctor.
func (r *Registry) Register(name string, ctor Constructor) error {
	if _, ok := r.ctors[name]; ok {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	r.ctors[name] = ctor
	r.order = append(r.order, name)
	return nil
}

// Registered reports whether name has a constructor.
func (r *Registry) Registered(name string) bool {
	_, ok := r.ctors[name]
	return ok
}

// Load constructs, wires and sets up the named capability.
func (r *Registry) Load(name string) error {
	ctor, ok := r.ctors[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknown, name)
	}
	if _, ok := r.loaded[name]; ok {
		return fmt.Errorf("%w: %s", ErrLoaded, name)
	}

	before := r.ctx.Platform.FreeHeap()
	c := ctor()
	after := r.ctx.Platform.FreeHeap()
	if c == nil {
		r.warnLater(fmt.Sprintf("cap %s: out of memory (free heap %d)", name, after))
		r.logger.Error("capability construction failed", "name", name, "free_heap", after)
		return fmt.Errorf("%w: %s", ErrOutOfMemory, name)
	}

	if o, ok := c.(Outputter); ok {
		o.SetOutput(r.ctx.Out())
	}
	if err := c.Setup(r.ctx); err != nil {
		if t, ok := c.(Teardowner); ok {
			t.Teardown(r.ctx)
		}
		return fmt.Errorf("setting up %s: %w", name, err)
	}

	inst := &instance{
		cap:      c,
		memDelta: int64(before) - int64(after), //nolint:gosec // heap sizes fit in int64
		commands: len(c.Commands()),
		loadedAt: r.ctx.Platform.Now(),
	}
	r.loaded[name] = inst
	if after < LowHeap {
		r.warnLater(fmt.Sprintf("cap %s: low memory after load (free heap %d)", name, after))
	}
	r.logger.Info("capability loaded", "name", name, "mem", inst.memDelta, "commands", inst.commands)
	return nil
}

func (r *Registry) warnLater(msg string) {
	r.pending = append(r.pending, msg)
}

// Unload tears down and removes the named instance.
func (r *Registry) Unload(name string) error {
	inst, ok := r.loaded[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	if l, ok := inst.cap.(Locker); ok && l.Locked() {
		return fmt.Errorf("%w: %s", ErrLocked, name)
	}
	if t, ok := inst.cap.(Teardowner); ok {
		t.Teardown(r.ctx)
	}
	delete(r.loaded, name)
	r.logger.Info("capability unloaded", "name", name)
	return nil
}

// Shutdown tears down the named instance even when it is locked. It is used
// when the whole runtime stops.
func (r *Registry) Shutdown(name string) error {
	inst, ok := r.loaded[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotLoaded, name)
	}
	if t, ok := inst.cap.(Teardowner); ok {
		t.Teardown(r.ctx)
	}
	delete(r.loaded, name)
	return nil
}

// Loaded reports whether name has a live instance.
func (r *Registry) Loaded(name string) bool {
	_, ok := r.loaded[name]
	return ok
}

// Get returns the live instance of name.
func (r *Registry) Get(name string) (Capability, bool) {
	inst, ok := r.loaded[name]
	if !ok {
		return nil, false
	}
	return inst.cap, true
}

// List describes every registered capability in registration order.
func (r *Registry) List() []Info {
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		info := Info{Name: name}
		if inst, ok := r.loaded[name]; ok {
			info.Loaded = true
			if l, ok := inst.cap.(Locker); ok {
				info.Locked = l.Locked()
			}
			info.MemDelta = inst.memDelta
			info.Commands = inst.commands
			info.Loops = inst.loops
			info.LoopTime = inst.loopTime
		}
		out = append(out, info)
	}
	return out
}

// Loop runs every loaded capability's Loop hook in registration order.
func (r *Registry) Loop() {
	for _, name := range r.order {
		inst, ok := r.loaded[name]
		if !ok {
			continue
		}
		start := time.Now()
		inst.cap.Loop(r.ctx)
		inst.loopTime += time.Since(start)
		inst.loops++
	}
}

// Report writes and clears deferred warnings. It is installed as a
// dispatcher hook so warnings appear on the next command.
func (r *Registry) Report(out io.Writer) {
	for _, msg := range r.pending {
		fmt.Fprintf(out, "[W] %s\n", msg)
	}
	r.pending = nil
}

// Name implements command.Source.
func (r *Registry) Name() string { return "cap" }

// Verbs implements command.Source.
func (r *Registry) Verbs() []string {
	var out []string
	for _, g := range r.Groups() {
		out = append(out, g.Verbs...)
	}
	return out
}

// Groups implements command.Grouped.
func (r *Registry) Groups() []command.Group {
	var out []command.Group
	for _, name := range r.order {
		if inst, ok := r.loaded[name]; ok {
			out = append(out, command.Group{Name: name, Verbs: inst.cap.Commands()})
		}
	}
	return out
}

// Usage implements command.Describer.
func (r *Registry) Usage(verb string) (string, bool) {
	for _, name := range r.order {
		inst, ok := r.loaded[name]
		if !ok {
			continue
		}
		if u, ok := inst.cap.(Usager); ok {
			if s, ok := u.Usage(verb); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Execute implements command.Source. The capability writes to the
// request's stream for the duration of the call.
func (r *Registry) Execute(req *command.Request) command.Exit {
	verb := req.Line.Verb()
	for _, name := range r.order {
		inst, ok := r.loaded[name]
		if !ok || !slices.Contains(inst.cap.Commands(), verb) {
			continue
		}
		o, swap := inst.cap.(Outputter)
		if swap {
			o.SetOutput(req.Out)
		}
		rc := inst.cap.Execute(r.ctx, req)
		if swap {
			o.SetOutput(r.ctx.Out())
		}
		if rc != command.NotHandled {
			return rc
		}
	}
	return command.NotHandled
}

// Entry returns the built-in "cap" verb.
func (r *Registry) Entry() command.Entry {
	return command.Entry{
		Verb:    "cap",
		Usage:   "cap load|unload <name> | cap list",
		Handler: r.handle,
	}
}

func (r *Registry) handle(req *command.Request) command.Exit {
	sub, name := req.Line.Arg(1), req.Line.Arg(2)
	switch sub {
	case "", "list":
		req.Printf("%-10s %-7s %-6s %8s %5s %8s\n", "name", "state", "locked", "mem", "cmds", "loops")
		for _, info := range r.List() {
			state, locked := "-", ""
			if info.Loaded {
				state = "loaded"
			}
			if info.Locked {
				locked = "yes"
			}
			req.Printf("%-10s %-7s %-6s %8d %5d %8d\n", info.Name, state, locked, info.MemDelta, info.Commands, info.Loops)
		}
		return command.Success
	case "load":
		if name == "" {
			return req.Usage("cap load <name>")
		}
		if err := r.Load(name); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "unload":
		if name == "" {
			return req.Usage("cap unload <name>")
		}
		if err := r.Unload(name); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	}
	return req.Usage("cap load|unload <name> | cap list")
}
