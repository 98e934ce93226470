// Package vars holds the process-wide variable store and implements
// $NAME / $(NAME) substitution.
package vars

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Reserved variable names.
const (
	Exit     = "?" // exit value of the last command
	Output   = ">" // scalar result of the last successful command
	TZ       = "TZ"
	NTP      = "NTP"
	BUF      = "BUF"
	Hostname = "HOSTNAME"
	User     = "USER"
	URL      = "URL"
)

// ErrInvalidName is returned for names with characters outside [A-Za-z0-9_].
var ErrInvalidName = errors.New("vars: invalid name")

// Store maps variable names to string values.
//
// The store is safe for concurrent use, although the runtime only touches it
// from the cooperative loop.
type Store struct {
	mu sync.RWMutex
	m  map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{m: make(map[string]string)}
}

// ValidName reports whether name is usable as a variable name. The special
// names ? and > are valid.
func ValidName(name string) bool {
	if name == Exit || name == Output {
		return true
	}
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isNameByte(name[i]) {
			return false
		}
	}
	return true
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Set assigns value to name.
func (s *Store) Set(name, value string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	s.mu.Lock()
	s.m[name] = value
	s.mu.Unlock()
	return nil
}

// Get returns the value of name and whether it exists.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[name]
	return v, ok
}

// Value returns the value of name or "".
func (s *Store) Value(name string) string {
	v, _ := s.Get(name)
	return v
}

// Int parses name as an integer with auto base, returning def on failure.
func (s *Store) Int(name string, def int) int {
	v, ok := s.Get(name)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
	if err != nil {
		return def
	}
	return int(n)
}

// Unset removes name. It reports whether the variable existed.
func (s *Store) Unset(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[name]
	delete(s.m, name)
	return ok
}

// Names returns all variable names sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.m))
	for k := range s.m {
		names = append(names, k)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the store contents.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// SetExit records a command's exit value.
func (s *Store) SetExit(code int) {
	s.Set(Exit, strconv.Itoa(code)) //nolint:errcheck // reserved name is valid
}

// SetOutput records a command's scalar result.
func (s *Store) SetOutput(v string) {
	s.Set(Output, v) //nolint:errcheck // reserved name is valid
}

// Lookup resolves name in locals first, then in the store.
func (s *Store) Lookup(name string, locals map[string]string) (string, bool) {
	if v, ok := locals[name]; ok {
		return v, true
	}
	if s == nil {
		return "", false
	}
	return s.Get(name)
}

// Substitute replaces $NAME and $(NAME) references in line. Locals are
// consulted before the store. Unknown references are left as written and
// substituted text is not scanned again.
func (s *Store) Substitute(line string, locals map[string]string) string {
	if strings.IndexByte(line, '$') < 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); {
		c := line[i]
		if c != '$' || i+1 >= len(line) {
			b.WriteByte(c)
			i++
			continue
		}

		name, end := reference(line, i)
		if name == "" {
			b.WriteByte(c)
			i++
			continue
		}
		if v, ok := s.Lookup(name, locals); ok {
			b.WriteString(v)
		} else {
			b.WriteString(line[i:end])
		}
		i = end
	}
	return b.String()
}

// reference parses the variable reference starting at line[i] == '$' and
// returns the name and the index after the reference.
func reference(line string, i int) (string, int) {
	next := line[i+1]
	switch {
	case next == '(':
		closing := strings.IndexByte(line[i+2:], ')')
		if closing < 0 {
			return "", i
		}
		name := line[i+2 : i+2+closing]
		if !ValidName(name) {
			return "", i
		}
		return name, i + 3 + closing
	case next == '?' || next == '>':
		return string(next), i + 2
	case isNameByte(next):
		j := i + 1
		for j < len(line) && isNameByte(line[j]) {
			j++
		}
		return line[i+1 : j], j
	}
	return "", i
}
