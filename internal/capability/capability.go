package capability

import (
	"io"

	"github.com/ocfu/espconsole/internal/command"
)

// Capability is a loadable command module.
type Capability interface {
	Name() string
	// Commands lists the verbs the capability answers.
	Commands() []string
	// Setup runs once after construction.
	Setup(ctx *Context) error
	// Loop runs on every cooperative tick.
	Loop(ctx *Context)
	// Execute runs one of the capability's verbs or returns
	// command.NotHandled.
	Execute(ctx *Context, req *command.Request) command.Exit
}

// Constructor builds a capability. A nil result means the allocation failed.
type Constructor func() Capability

// Locker is implemented by capabilities that must never be unloaded.
type Locker interface {
	Locked() bool
}

// Teardowner is implemented by capabilities that release resources on
// unload.
type Teardowner interface {
	Teardown(ctx *Context)
}

// Outputter is implemented by capabilities that write outside Execute (from
// Setup and Loop). The registry sets the console stream, swapping in the
// request's stream for the duration of Execute.
type Outputter interface {
	SetOutput(w io.Writer)
}

// Usager is implemented by capabilities that describe their verbs.
type Usager interface {
	Usage(verb string) (string, bool)
}

// Base provides the output plumbing; embed it in a capability.
type Base struct {
	out io.Writer
}

// SetOutput implements Outputter.
func (b *Base) SetOutput(w io.Writer) { b.out = w }

// Out returns the current output, never nil.
func (b *Base) Out() io.Writer {
	if b.out == nil {
		return io.Discard
	}
	return b.out
}
