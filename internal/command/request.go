package command

import (
	"fmt"
	"io"
)

// Request is one command invocation.
type Request struct {
	Line Line
	// Out is the stream the command writes to: the local console, a remote
	// session or a capture buffer.
	Out io.Writer
	// Client is 0 for the local console and the session id for remote ones.
	Client int
	// Locals are batch locals and device event values.
	Locals map[string]string

	d *Dispatcher
}

// Printf writes to the request's output.
func (r *Request) Printf(format string, args ...any) {
	fmt.Fprintf(r.Out, format, args...)
}

// Println writes args followed by a newline.
func (r *Request) Println(args ...any) {
	fmt.Fprintln(r.Out, args...)
}

// Fail prints a one-line reason and returns Failure.
func (r *Request) Fail(format string, args ...any) Exit {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(r.Out, msg)
	if r.d != nil && r.Client != 0 {
		r.d.logger.Error("command failed", "verb", r.Line.Verb(), "client", r.Client, "error", msg)
	}
	return Failure
}

// Usage prints the usage line for the verb and returns Failure.
func (r *Request) Usage(usage string) Exit {
	return r.Fail("usage: %s", usage)
}

// Dispatch runs a nested command line with this request's output and client.
func (r *Request) Dispatch(line string, locals map[string]string) Exit {
	if r.d == nil {
		return NotHandled
	}
	return r.d.Dispatch(line, r.Out, r.Client, locals)
}

// Dispatcher returns the dispatcher handling the request, or nil.
func (r *Request) Dispatcher() *Dispatcher {
	return r.d
}

// SetOutput records the scalar result of the command in the > variable.
func (r *Request) SetOutput(v string) {
	if r.d != nil && r.d.vars != nil {
		r.d.vars.SetOutput(v)
	}
}

// NewRequest builds a standalone request, for sources tested without a
// dispatcher.
func NewRequest(line string, out io.Writer) *Request {
	return &Request{Line: Parse(line), Out: out}
}
