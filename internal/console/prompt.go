package console

import (
	"strings"
	"sync"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/vars"
)

// Mode selects the prompt format.
type Mode int

// Prompt modes.
const (
	ModeLocal Mode = iota
	ModeClient
	ModeDisconnected
	ModeAP
)

// Scope is the console family a prompt setting applies to.
type Scope int

// Prompt scopes. The local scope covers the local, disconnected and
// access-point modes.
const (
	ScopeLocal Scope = iota
	ScopeClient
)

// ScopeOf maps a mode to its scope.
func ScopeOf(m Mode) Scope {
	if m == ModeClient {
		return ScopeClient
	}
	return ScopeLocal
}

// Default prompt formats. Variables are substituted and escapes such as \e
// interpreted when rendering.
const (
	DefaultLocalFormat        = `\e[1;32m$USER@$HOSTNAME\e[0m:\e[1;34m$\e[0m `
	DefaultClientFormat       = `\e[1;36m$USER@$HOSTNAME\e[0m:\e[1;34m#\e[0m `
	DefaultDisconnectedFormat = `\e[1;31m$USER@$HOSTNAME\e[0m:\e[1;34m$\e[0m `
	DefaultAPFormat           = `\e[1;33m$USER@$HOSTNAME (ap)\e[0m:\e[1;34m$\e[0m `
)

// Prompt holds the prompt formats and the per-scope enable flags. It is
// shared by all consoles.
type Prompt struct {
	mu      sync.Mutex
	formats map[Mode]string
	enabled [2]bool
}

// NewPrompt returns the default prompt configuration, enabled for both
// scopes. Empty formats keep the defaults.
func NewPrompt(local, client string) *Prompt {
	p := &Prompt{
		formats: map[Mode]string{
			ModeLocal:        DefaultLocalFormat,
			ModeClient:       DefaultClientFormat,
			ModeDisconnected: DefaultDisconnectedFormat,
			ModeAP:           DefaultAPFormat,
		},
		enabled: [2]bool{true, true},
	}
	if local != "" {
		p.formats[ModeLocal] = local
	}
	if client != "" {
		p.formats[ModeClient] = client
	}
	return p
}

// SetEnabled switches prompting for a scope.
func (p *Prompt) SetEnabled(s Scope, on bool) {
	p.mu.Lock()
	p.enabled[s] = on
	p.mu.Unlock()
}

// Enabled reports whether prompting is on for a scope.
func (p *Prompt) Enabled(s Scope) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[s]
}

// SetFormat sets the format of the scope's primary mode.
func (p *Prompt) SetFormat(s Scope, format string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s == ScopeClient {
		p.formats[ModeClient] = format
	} else {
		p.formats[ModeLocal] = format
	}
}

// Format returns the raw format for a mode.
func (p *Prompt) Format(m Mode) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.formats[m]
}

// Render expands the mode's format. It returns "" when the scope is
// disabled.
func (p *Prompt) Render(m Mode, store *vars.Store, ansi bool) string {
	if !p.Enabled(ScopeOf(m)) {
		return ""
	}
	s := command.Unescape(store.Substitute(p.Format(m), nil))
	if !ansi {
		s = StripANSI(s)
	}
	return s
}

// StripANSI removes CSI escape sequences (ESC [ params final).
func StripANSI(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != 0x1b {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && (s[j] < 0x40 || s[j] > 0x7e) {
				j++
			}
			i = j
			continue
		}
		i++ // two-byte escape
	}
	return b.String()
}
