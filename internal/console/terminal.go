package console

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// Clear is the sequence written by cls.
const Clear = "\x1b[2J\x1b[H"

// DetectANSI resolves an "auto|on|off" setting for the given output.
func DetectANSI(setting string, f *os.File) bool {
	switch strings.ToLower(setting) {
	case "on", "1", "true":
		return true
	case "off", "0", "false":
		return false
	}
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// MakeRaw switches f to raw mode when it is a terminal so that the line
// editor sees every byte. The returned function restores the previous state.
func MakeRaw(f *os.File) (restore func(), err error) {
	fd := int(f.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { term.Restore(fd, state) }, nil //nolint:errcheck // best effort on exit
}
