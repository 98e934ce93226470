package command

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ocfu/espconsole/internal/vars"
)

// MaxDepth bounds nested dispatch (batch files calling themselves, event
// commands triggering events).
const MaxDepth = 32

// ErrTooDeep is reported when MaxDepth is exceeded.
var ErrTooDeep = errors.New("command: nesting too deep")

// Logger defines the logging interface used by the Dispatcher.
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

// Executor runs a command line with the default output. Timers and device
// callbacks depend on this instead of the whole dispatcher.
type Executor interface {
	Exec(line string, locals map[string]string) Exit
}

// Dispatcher resolves and runs command lines.
type Dispatcher struct {
	vars    *vars.Store
	sources []Source
	out     io.Writer
	logger  Logger

	echo     bool
	depth    int
	maxDepth int

	hooks  []func(out io.Writer)
	onExit func(client int) bool
}

var specialVerbs = []string{"?", "help", "commands", "exit", "@echo", "set", "echo"}

var specialUsage = map[string]string{
	"?":        "? [<verb>]",
	"help":     "help [<verb>]",
	"commands": "commands",
	"exit":     "exit",
	"@echo":    "@echo [on|off]",
	"set":      "set [<var>[/<prec>] [=] <value|expr>]",
	"echo":     "echo [-n] <text>",
}

// New creates a dispatcher over store with echo on.
func New(store *vars.Store) *Dispatcher {
	return &Dispatcher{
		vars:   store,
		out:    io.Discard,
		logger: noopLogger{},
		echo:   true,
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// AddSource appends a verb source. Sources are searched in the order added.
func (d *Dispatcher) AddSource(src Source) {
	d.sources = append(d.sources, src)
}

// Sources returns the registered sources in search order.
func (d *Dispatcher) Sources() []Source {
	return append([]Source(nil), d.sources...)
}

// Vars returns the variable store.
func (d *Dispatcher) Vars() *vars.Store { return d.vars }

// SetOutput sets the default output used by Exec.
func (d *Dispatcher) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	d.out = w
}

// Output returns the default output.
func (d *Dispatcher) Output() io.Writer { return d.out }

// Echo reports whether batch lines are echoed.
func (d *Dispatcher) Echo() bool { return d.echo }

// SetEcho changes the batch echo state.
func (d *Dispatcher) SetEcho(on bool) { d.echo = on }

// Depth returns the current nesting depth; 0 outside any command.
func (d *Dispatcher) Depth() int { return d.depth }

// MaxDepthReached returns the deepest nesting seen so far.
func (d *Dispatcher) MaxDepthReached() int { return d.maxDepth }

// AddHook registers fn to run before every top-level command. The
// capability registry uses it to report deferred allocation failures.
func (d *Dispatcher) AddHook(fn func(out io.Writer)) {
	d.hooks = append(d.hooks, fn)
}

// OnExit sets the handler for the exit verb. It returns false when the
// client has no session to close.
func (d *Dispatcher) OnExit(fn func(client int) bool) {
	d.onExit = fn
}

// Exec implements Executor using the default output and the local client.
func (d *Dispatcher) Exec(line string, locals map[string]string) Exit {
	return d.Dispatch(line, d.out, 0, locals)
}

// Dispatch substitutes, tokenises and runs one line, then stores the exit
// value in the ? variable.
func (d *Dispatcher) Dispatch(line string, out io.Writer, client int, locals map[string]string) Exit {
	if out == nil {
		out = d.out
	}
	if d.depth >= MaxDepth {
		fmt.Fprintln(out, ErrTooDeep)
		d.logger.Warn("dispatch refused", "error", ErrTooDeep, "line", line)
		return Failure
	}
	d.depth++
	d.maxDepth = max(d.maxDepth, d.depth)
	defer func() { d.depth-- }()

	if d.depth == 1 {
		for _, h := range d.hooks {
			h(out)
		}
	}

	text := strings.TrimSpace(d.vars.Substitute(line, locals))
	if text == "" {
		return Success
	}
	req := &Request{Line: Parse(text), Out: out, Client: client, Locals: locals, d: d}

	rc := d.special(req)
	if rc == NotHandled {
		for _, src := range d.sources {
			if rc = src.Execute(req); rc != NotHandled {
				break
			}
		}
	}
	if rc == NotHandled {
		fmt.Fprintf(out, "unknown command '%s'\n", req.Line.Verb())
		rc = Failure
	}

	d.logger.Debug("command", "line", text, "exit", int(rc), "depth", d.depth)
	d.vars.SetExit(int(rc))
	return rc
}

// Resolve returns the name of the owner that handles verb: "shell" for the
// dispatcher's own verbs, a group name for grouped sources, otherwise the
// source name.
func (d *Dispatcher) Resolve(verb string) (string, bool) {
	for _, v := range specialVerbs {
		if v == verb {
			return "shell", true
		}
	}
	for _, src := range d.sources {
		if g, ok := src.(Grouped); ok {
			for _, grp := range g.Groups() {
				if contains(grp.Verbs, verb) {
					return grp.Name, true
				}
			}
			continue
		}
		if contains(src.Verbs(), verb) {
			return src.Name(), true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (d *Dispatcher) special(req *Request) Exit {
	switch req.Line.Verb() {
	case "?", "help":
		return d.help(req)
	case "commands":
		d.listCommands(req)
		return Success
	case "exit":
		if d.onExit != nil && d.onExit(req.Client) {
			return Success
		}
		return req.Fail("exit: no remote session")
	case "@echo":
		return d.echoState(req)
	case "set":
		return d.set(req)
	case "echo":
		return d.echoText(req)
	}
	return NotHandled
}

func (d *Dispatcher) help(req *Request) Exit {
	verb := req.Line.Arg(1)
	if verb == "" {
		req.Println("type 'commands' for a list of verbs, 'help <verb>' for usage, 'man <topic>' for manuals")
		return Success
	}
	if u, ok := specialUsage[verb]; ok {
		req.Println("usage:", u)
		return Success
	}
	for _, src := range d.sources {
		if ds, ok := src.(Describer); ok {
			if u, ok := ds.Usage(verb); ok {
				if u == "" {
					u = verb
				}
				req.Println("usage:", u)
				return Success
			}
		}
	}
	return req.Fail("help: no usage for '%s'", verb)
}

func (d *Dispatcher) listCommands(req *Request) {
	req.Printf("%-10s %s\n", "shell:", strings.Join(specialVerbs, " "))
	for _, src := range d.sources {
		if g, ok := src.(Grouped); ok {
			for _, grp := range g.Groups() {
				req.Printf("%-10s %s\n", grp.Name+":", strings.Join(grp.Verbs, " "))
			}
			continue
		}
		if verbs := src.Verbs(); len(verbs) > 0 {
			req.Printf("%-10s %s\n", src.Name()+":", strings.Join(verbs, " "))
		}
	}
}

func (d *Dispatcher) echoState(req *Request) Exit {
	switch strings.ToLower(req.Line.Arg(1)) {
	case "":
		if d.echo {
			req.Println("echo is on")
		} else {
			req.Println("echo is off")
		}
	case "on", "1":
		d.echo = true
	case "off", "0":
		d.echo = false
	default:
		return req.Usage(specialUsage["@echo"])
	}
	return Success
}

func (d *Dispatcher) echoText(req *Request) Exit {
	l := req.Line
	newline := true
	text := l.After(0)
	if l.Arg(1) == "-n" {
		newline = false
		text = l.After(1)
	}
	text = Unescape(Unquote(text))
	if newline {
		req.Println(text)
	} else {
		req.Printf("%s", text)
	}
	return Success
}

// Unescape interprets \e, \033, \xHH, \n, \r, \t and \\ in s.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch c := s[i+1]; {
		case c == 'e':
			b.WriteByte(0x1b)
			i++
		case c == 'n':
			b.WriteByte('\n')
			i++
		case c == 'r':
			b.WriteByte('\r')
			i++
		case c == 't':
			b.WriteByte('\t')
			i++
		case c == '\\':
			b.WriteByte('\\')
			i++
		case c == '0' && strings.HasPrefix(s[i+1:], "033"):
			b.WriteByte(0x1b)
			i += 3
		case c == 'x' && i+3 < len(s) && isHex(s[i+2]) && isHex(s[i+3]):
			b.WriteByte(hexVal(s[i+2])<<4 | hexVal(s[i+3]))
			i += 3
		default:
			b.WriteByte('\\')
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	default:
		return c - '0'
	}
}
