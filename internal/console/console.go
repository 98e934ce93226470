// Package console turns a byte stream into command lines: line editing with
// backspace, history recall with the arrow keys, yes/no confirmations and
// the prompt.
package console

import (
	"bytes"
	"io"
	"strings"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/stream"
	"github.com/ocfu/espconsole/internal/vars"
)

// Line length limits applied to the BUF variable.
const (
	MinLineLength     = 64
	MaxLineLength     = 1024
	DefaultLineLength = 64
)

// readChunk is the size of one TryRead.
const readChunk = 128

type escState int

const (
	escNone escState = iota
	escStart
	escCSI
)

type confirmation struct {
	prompt string
	cb     func(bool)
}

// Options configures a console.
type Options struct {
	// Client is 0 for the local console and the session id otherwise.
	Client int
	// Mode is evaluated whenever the prompt is printed.
	Mode func() Mode
	// ANSI enables colour sequences in the prompt.
	ANSI bool
	// EchoInput writes typed characters back to the stream.
	EchoInput bool
	// HistoryDepth is the number of remembered lines.
	HistoryDepth int
}

// Console is a line editor bound to one stream.
type Console struct {
	s      stream.Stream
	d      *command.Dispatcher
	vars   *vars.Store
	prompt *Prompt
	opts   Options
	hist   *History

	buf     []byte
	esc     escState
	lastCR  bool
	confirm *confirmation
	quiet   bool
}

// New creates a console reading from s and dispatching through d.
func New(s stream.Stream, d *command.Dispatcher, p *Prompt, opts Options) *Console {
	if opts.Mode == nil {
		mode := ModeLocal
		if opts.Client != 0 {
			mode = ModeClient
		}
		opts.Mode = func() Mode { return mode }
	}
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = 10
	}
	return &Console{
		s:      s,
		d:      d,
		vars:   d.Vars(),
		prompt: p,
		opts:   opts,
		hist:   NewHistory(opts.HistoryDepth),
	}
}

// Stream returns the console's stream.
func (c *Console) Stream() stream.Stream { return c.s }

// Client returns the client id used for dispatch.
func (c *Console) Client() int { return c.opts.Client }

// History returns the console's history.
func (c *Console) History() *History { return c.hist }

// Write writes to the console stream.
func (c *Console) Write(p []byte) (int, error) { return c.s.Write(p) }

// Closed reports whether the stream has ended.
func (c *Console) Closed() bool { return c.s.Closed() }

// SetQuiet suppresses the prompt, for one-shot sessions.
func (c *Console) SetQuiet(q bool) { c.quiet = q }

// MaxLength is the current line limit taken from BUF and clamped to
// MinLineLength..MaxLineLength.
func (c *Console) MaxLength() int {
	n := c.vars.Int(vars.BUF, DefaultLineLength)
	return max(MinLineLength, min(n, MaxLineLength))
}

// Prompt prints the prompt for the current mode.
func (c *Console) Prompt() {
	if c.quiet || c.prompt == nil {
		return
	}
	if p := c.prompt.Render(c.opts.Mode(), c.vars, c.opts.ANSI); p != "" {
		io.WriteString(c.s, p) //nolint:errcheck // console output is best effort
	}
}

// Confirm asks a yes/no question. The next y or n typed invokes cb; any other
// byte prints the question again.
func (c *Console) Confirm(prompt string, cb func(bool)) {
	c.confirm = &confirmation{prompt: prompt, cb: cb}
	io.WriteString(c.s, prompt) //nolint:errcheck // console output is best effort
}

// Poll consumes the bytes available now and runs every completed line.
// It never blocks.
func (c *Console) Poll() {
	var chunk [readChunk]byte
	for !c.s.Closed() {
		n := c.s.TryRead(chunk[:])
		if n == 0 {
			return
		}
		for i := 0; i < n; i++ {
			c.feed(chunk[i])
		}
	}
}

func (c *Console) echo(s string) {
	if c.opts.EchoInput {
		io.WriteString(c.s, s) //nolint:errcheck // console output is best effort
	}
}

func (c *Console) feed(b byte) {
	if c.confirm != nil {
		c.answer(b)
		return
	}

	switch c.esc {
	case escStart:
		if b == '[' {
			c.esc = escCSI
		} else {
			c.esc = escNone
		}
		return
	case escCSI:
		if b >= 0x40 && b <= 0x7e {
			c.esc = escNone
			c.arrow(b)
		}
		return
	}

	wasCR := c.lastCR
	c.lastCR = b == '\r'

	switch {
	case b == 0x1b:
		c.esc = escStart
	case b == '\r':
		c.submit()
	case b == '\n':
		if !wasCR {
			c.submit()
		}
	case b == 8 || b == 127:
		if len(c.buf) > 0 {
			c.buf = c.buf[:len(c.buf)-1]
			c.echo("\b \b")
		}
	case b < 0x20:
		// other control bytes are ignored
	default:
		if len(c.buf) < c.MaxLength() {
			c.buf = append(c.buf, b)
			c.echo(string(b))
		}
	}
}

func (c *Console) answer(b byte) {
	conf := c.confirm
	switch b {
	case 'y', 'Y', 'n', 'N':
		c.confirm = nil
		c.echo(string(b) + "\r\n")
		conf.cb(b == 'y' || b == 'Y')
		c.Prompt()
	default:
		io.WriteString(c.s, "\r\n"+conf.prompt) //nolint:errcheck // console output is best effort
	}
}

func (c *Console) arrow(final byte) {
	var (
		line string
		ok   bool
	)
	switch final {
	case 'A':
		line, ok = c.hist.Older()
		if !ok {
			return
		}
	case 'B':
		line, _ = c.hist.Newer()
	default:
		return
	}
	c.echo(strings.Repeat("\b \b", len(c.buf)))
	if len(line) > c.MaxLength() {
		line = line[:c.MaxLength()]
	}
	c.buf = append(c.buf[:0], line...)
	c.echo(line)
}

func (c *Console) submit() {
	line := string(bytes.TrimSpace(c.buf))
	c.buf = c.buf[:0]
	c.echo("\r\n")
	c.hist.Add(line)
	if line != "" {
		c.d.Dispatch(line, c.s, c.opts.Client, nil)
	}
	// A pending confirmation owns the line until it is answered.
	if c.confirm == nil && !c.s.Closed() {
		c.Prompt()
	}
}

// CRLFWriter converts bare \n to \r\n, for terminals in raw mode.
type CRLFWriter struct {
	W io.Writer
}

// Write implements io.Writer.
func (w CRLFWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, '\n') < 0 {
		return w.W.Write(p)
	}
	out := make([]byte, 0, len(p)+8)
	for i, b := range p {
		if b == '\n' && (i == 0 || p[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, b)
	}
	if _, err := w.W.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
