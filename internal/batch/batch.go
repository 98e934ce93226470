package batch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/command"
)

// ManFile holds the manual sections used by man.
const ManFile = "/man.man"

// Logger defines the logging interface used by the Interpreter.
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

// Interpreter executes batch files through a dispatcher.
type Interpreter struct {
	fs     afero.Fs
	d      *command.Dispatcher
	logger Logger

	depth    int
	maxDepth int
	breakReq bool
	breakOn  bool
}

// New creates an interpreter reading files from fs.
func New(fs afero.Fs, d *command.Dispatcher) *Interpreter {
	return &Interpreter{fs: fs, d: d, logger: noopLogger{}}
}

// SetLogger sets the logger for the interpreter.
func (in *Interpreter) SetLogger(logger Logger) {
	in.logger = logger
}

// Depth returns the current batch nesting depth.
func (in *Interpreter) Depth() int { return in.depth }

// MaxDepth returns the deepest nesting reached.
func (in *Interpreter) MaxDepth() int { return in.maxDepth }

// Resolve maps a batch argument to a file path: .bat is appended unless the
// name ends in .bat or .man, and relative names are rooted at /.
func Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNoFile
	}
	if !strings.HasSuffix(name, ".bat") && !strings.HasSuffix(name, ".man") {
		name += ".bat"
	}
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name, nil
}

// Run executes a batch file. args holds the space separated positional
// arguments.
func (in *Interpreter) Run(out io.Writer, client int, file, label, args string) command.Exit {
	p, err := Resolve(file)
	if err != nil {
		fmt.Fprintln(out, "exec: no file given")
		return command.Failure
	}
	if in.depth >= command.MaxDepth {
		fmt.Fprintf(out, "exec: %v\n", ErrTooDeep)
		in.logger.Warn("batch refused", "file", p, "error", ErrTooDeep)
		return command.Failure
	}
	lines, err := in.readLines(p)
	if err != nil {
		fmt.Fprintf(out, "exec: %v\n", err)
		in.logger.Error("batch open failed", "file", p, "error", err)
		return command.Failure
	}

	in.depth++
	in.maxDepth = max(in.maxDepth, in.depth)
	defer func() {
		in.depth--
		if in.depth == 0 {
			in.d.SetEcho(true)
			in.breakOn = false
			in.breakReq = false
		}
	}()

	locals := map[string]string{"0": label, "LABEL": label}
	for i, a := range command.Parse(args).Args(0) {
		locals[strconv.Itoa(i+1)] = a
	}
	in.logger.Debug("batch start", "file", p, "label", label, "depth", in.depth)
	return in.execute(out, client, lines, label, locals)
}

func (in *Interpreter) readLines(p string) ([]string, error) {
	f, err := in.fs.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()
	if st, err := f.Stat(); err == nil && st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, p)
	}
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return lines, nil
}

func (in *Interpreter) execute(out io.Writer, client int, lines []string, label string, locals map[string]string) command.Exit {
	store := in.d.Vars()
	rc := command.Success
	active := true
	for _, raw := range lines {
		line := StripComment(strings.TrimSpace(strings.TrimRight(raw, "\r\n")))
		if line == "" {
			continue
		}
		if name, ok := labelName(line); ok {
			active = name == "all" || label == "all" || name == label
			continue
		}
		if !active {
			continue
		}
		if name, value, ok := assignment(line); ok {
			locals[name] = command.Unquote(store.Substitute(value, locals))
			continue
		}

		quiet := false
		if strings.HasPrefix(line, "@") {
			quiet = true
			if !isEchoState(command.Parse(line)) {
				line = strings.TrimSpace(line[1:])
			}
		}
		if in.d.Echo() && !quiet {
			fmt.Fprintln(out, line)
		}

		l := command.Parse(store.Substitute(line, locals))
		if l.Verb() == "exec" {
			rc = in.Run(out, client, l.Arg(1), l.Arg(2), l.After(2))
			store.SetExit(int(rc))
		} else {
			rc = in.d.Dispatch(line, out, client, locals)
		}

		if in.breakReq {
			in.breakReq = false
			in.logger.Debug("batch break", "depth", in.depth)
			return rc
		}
		if rc == command.Failure && in.breakOn {
			in.logger.Debug("batch stopped on failure", "line", line, "depth", in.depth)
			return rc
		}
	}
	return rc
}

// isEchoState reports whether l is "@echo", "@echo on" or "@echo off"
// rather than an echo of text with its own line echo suppressed.
func isEchoState(l command.Line) bool {
	if l.Verb() != "@echo" || l.Len() > 2 {
		return false
	}
	switch strings.ToLower(l.Arg(1)) {
	case "", "on", "off", "1", "0":
		return true
	}
	return false
}

// StripComment removes a # comment. A # directly after $ or $( is a
// variable reference and a # inside double quotes is literal.
func StripComment(line string) string {
	quoted := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			quoted = !quoted
		case '#':
			if quoted {
				continue
			}
			if i > 0 && line[i-1] == '$' {
				continue
			}
			if i > 1 && line[i-1] == '(' && line[i-2] == '$' {
				continue
			}
			return strings.TrimSpace(line[:i])
		}
	}
	return line
}

func labelName(line string) (string, bool) {
	name, ok := strings.CutSuffix(line, ":")
	if !ok || name == "" {
		return "", false
	}
	for i := 0; i < len(name); i++ {
		if !isIdent(name[i]) {
			return "", false
		}
	}
	return name, true
}

func assignment(line string) (string, string, bool) {
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return "", "", false
	}
	for j := 0; j < i; j++ {
		if !isIdent(line[j]) {
			return "", "", false
		}
	}
	return line[:i], strings.TrimSpace(line[i+1:]), true
}

func isIdent(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
