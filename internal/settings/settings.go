// Package settings persists key/value pairs in a single JSON document.
//
// Keys live either at the document root (empty group) or in one level of
// nested objects. Reads never fail: a missing file, a malformed document or
// a missing key all return the caller's default. Writes rewrite the whole
// document.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strconv"

	"github.com/spf13/afero"
)

// DefaultPath is the document location on the device filesystem.
const DefaultPath = "/settings.json"

// ErrNotFound is returned when deleting a missing key.
var ErrNotFound = errors.New("settings: key not found")

// Store reads and writes the settings document.
type Store struct {
	fs   afero.Fs
	path string
}

// New creates a store for the document at p on fs.
func New(fs afero.Fs, p string) *Store {
	if p == "" {
		p = DefaultPath
	}
	return &Store{fs: fs, path: p}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

func (s *Store) read() map[string]any {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return map[string]any{}
	}
	doc := map[string]any{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}

func (s *Store) write(doc map[string]any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if dir := path.Dir(s.path); dir != "/" && dir != "." {
		if err := s.fs.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}

func group(doc map[string]any, name string) map[string]any {
	if name == "" {
		return doc
	}
	g, _ := doc[name].(map[string]any)
	return g
}

// Load returns the value of key in group, or def.
func (s *Store) Load(grp, key, def string) string {
	g := group(s.read(), grp)
	if g == nil {
		return def
	}
	if v, ok := scalar(g[key]); ok {
		return v
	}
	return def
}

// LoadInt is Load for integers.
func (s *Store) LoadInt(grp, key string, def int) int {
	v := s.Load(grp, key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Save stores value under key in group. A malformed document is replaced.
func (s *Store) Save(grp, key, value string) error {
	doc := s.read()
	g := group(doc, grp)
	if g == nil {
		g = map[string]any{}
		doc[grp] = g
	}
	g[key] = value
	return s.write(doc)
}

// Delete removes key from group. An emptied group is removed as well.
func (s *Store) Delete(grp, key string) error {
	doc := s.read()
	g := group(doc, grp)
	if g == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if _, ok := g[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(g, key)
	if grp != "" && len(g) == 0 {
		delete(doc, grp)
	}
	return s.write(doc)
}

// Keys returns the scalar keys of group, sorted.
func (s *Store) Keys(grp string) []string {
	g := group(s.read(), grp)
	var out []string
	for k, v := range g {
		if _, ok := scalar(v); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Groups returns the names of the nested groups, sorted.
func (s *Store) Groups() []string {
	var out []string
	for k, v := range s.read() {
		if _, ok := v.(map[string]any); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Remove deletes the whole document.
func (s *Store) Remove() error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing settings: %w", err)
	}
	return nil
}
