// Package webcap serves the console over HTTP and websocket. Requests are
// queued and executed on the console loop, so they see the same state as
// the serial console.
package webcap

import (
	"bytes"
	"time"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/vars"
)

// Name is the capability name used by cap load.
const Name = "web"

// jobsPerLoop bounds the requests served in one loop iteration.
const jobsPerLoop = 4

const usage = "web [status] | web start [<addr>] | web stop"

// Capability implements the web verb.
type Capability struct {
	capability.Base
	srv *Server
	run *runner
}

// New constructs the capability.
func New() capability.Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return []string{"web"} }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	return usage, verb == "web"
}

// Setup creates the server and starts it when a listen address is configured.
func (c *Capability) Setup(ctx *capability.Context) error {
	maxMsg, timeout := 0, time.Duration(0)
	addr := ""
	if ctx.Config != nil {
		maxMsg = ctx.Config.Web.MaxMessageSize
		timeout = time.Duration(ctx.Config.Web.CommandTimeout) * time.Second
		addr = ctx.Config.Web.Listen
	}
	c.srv = NewServer(ctx.Logger.With("component", "web"), maxMsg, timeout)
	c.run = &runner{ctx: ctx}
	if addr == "" {
		return nil
	}
	return c.srv.Start(addr)
}

// Loop serves queued requests.
func (c *Capability) Loop(*capability.Context) {
	if c.srv != nil {
		c.srv.Serve(c.run, jobsPerLoop)
	}
}

// Teardown stops the server.
func (c *Capability) Teardown(ctx *capability.Context) {
	if c.srv == nil {
		return
	}
	if err := c.srv.Close(); err != nil {
		ctx.Logger.Warn("stopping web server", "error", err)
	}
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	if req.Line.Verb() != "web" {
		return command.NotHandled
	}
	l := req.Line
	switch l.Arg(1) {
	case "", "status":
		if !c.srv.Running() {
			req.Println("web stopped")
			req.SetOutput("0")
			return command.Success
		}
		req.Printf("web listening on %s, %d ws clients\n", c.srv.Addr(), c.srv.Clients())
		req.SetOutput("1")
		return command.Success
	case "start":
		addr := l.Arg(2)
		if addr == "" && ctx.Config != nil {
			addr = ctx.Config.Web.Listen
		}
		if addr == "" {
			return req.Usage("web start <addr>")
		}
		if err := c.srv.Start(addr); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "stop":
		if err := c.srv.Close(); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	}
	return req.Usage(usage)
}

// runner executes requests against the context on the loop goroutine.
type runner struct {
	ctx *capability.Context
}

func (r *runner) Command(line string) Result {
	var out bytes.Buffer
	rc := r.ctx.Dispatcher.Dispatch(line, &out, 0, nil)
	return Result{Line: line, Exit: int(rc), Output: out.String()}
}

func (r *runner) Health() Health {
	return Health{
		Status:   "ok",
		Hostname: r.ctx.Vars.Value(vars.Hostname),
		Uptime:   int64(r.ctx.Uptime().Seconds()),
		FreeHeap: r.ctx.Platform.FreeHeap(),
	}
}

func (r *runner) Vars() map[string]string {
	return r.ctx.Vars.Snapshot()
}
