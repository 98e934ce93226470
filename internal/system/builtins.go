package system

import (
	"fmt"
	"strings"
	"time"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/console"
	"github.com/ocfu/espconsole/internal/platform"
)

const clearScreen = "\x1b[2J\x1b[H"

// builtins is the first table the dispatcher searches.
func (s *System) builtins() *command.Table {
	t := command.NewTable("system",
		command.Entry{Verb: "reboot", Usage: "reboot [-f]", Handler: s.handleReboot},
		command.Entry{Verb: "cls", Usage: "cls", Handler: s.handleCls},
		command.Entry{Verb: "prompt", Usage: "prompt [-CL] [-OFF|-ON] [<fmt>]", Handler: s.handlePrompt},
		command.Entry{Verb: "info", Usage: "info [reason|last|up]", Handler: s.handleInfo},
		command.Entry{Verb: "uptime", Usage: "uptime", Handler: s.handleUptime},
	)
	for _, e := range s.batch.Entries() {
		t.Add(e)
	}
	t.Add(s.ctx.Caps.Entry())
	t.Add(s.ctx.Timers.Entry())
	return t
}

func (s *System) handleReboot(req *command.Request) command.Exit {
	if req.Line.Arg(1) == "-f" {
		s.Reboot(true)
		return command.Success
	}
	if req.Client != 0 || len(s.consoles) == 0 {
		return req.Fail("reboot: confirmation needs the local console, use reboot -f")
	}
	s.consoles[0].Confirm("reboot? (y/n) ", func(yes bool) {
		if yes {
			s.Reboot(false)
		}
	})
	return command.Success
}

func (s *System) handleCls(req *command.Request) command.Exit {
	req.Printf("%s", clearScreen)
	return command.Success
}

// handlePrompt parses flags first, then the on/off switch, then the format.
func (s *System) handlePrompt(req *command.Request) command.Exit {
	l := req.Line
	scope := console.ScopeLocal
	i := 1
	if strings.EqualFold(l.Arg(i), "-CL") {
		scope = console.ScopeClient
		i++
	}
	switched := true
	switch strings.ToUpper(l.Arg(i)) {
	case "-OFF":
		s.prompt.SetEnabled(scope, false)
		i++
	case "-ON":
		s.prompt.SetEnabled(scope, true)
		i++
	default:
		switched = false
	}
	if l.Has(i) {
		s.prompt.SetFormat(scope, command.Unquote(l.After(i-1)))
		return command.Success
	}
	if switched {
		return command.Success
	}
	for _, sc := range []struct {
		name  string
		scope console.Scope
		mode  console.Mode
	}{
		{"local", console.ScopeLocal, console.ModeLocal},
		{"client", console.ScopeClient, console.ModeClient},
	} {
		state := "off"
		if s.prompt.Enabled(sc.scope) {
			state = "on"
		}
		req.Printf("%-6s %-3s %s\n", sc.name, state, s.prompt.Format(sc.mode))
	}
	return command.Success
}

func (s *System) handleInfo(req *command.Request) command.Exit {
	plat := s.ctx.Platform
	switch req.Line.Arg(1) {
	case "reason", "last":
		reason := plat.ResetReason()
		req.Println(reason)
		req.SetOutput(reason)
		return command.Success
	case "up":
		return s.handleUptime(req)
	case "":
	default:
		return req.Usage("info [reason|last|up]")
	}

	used, _ := platform.DiskUsage(plat.FS())
	wifi := plat.WiFi()
	rows := []struct{ k, v string }{
		{"hostname", s.ctx.Vars.Value("HOSTNAME")},
		{"version", s.version},
		{"chip id", fmt.Sprintf("%x", chipID(s.ctx.Config, plat))},
		{"reset", plat.ResetReason()},
		{"uptime", formatUptime(s.ctx.Uptime())},
		{"free heap", fmt.Sprintf("%d", plat.FreeHeap())},
		{"fs", fmt.Sprintf("%d/%d bytes", used, plat.FSCapacity())},
		{"wifi", fmt.Sprintf("%s %s %s", wifi.Mode, wifi.SSID, wifi.IP)},
		{"loops", fmt.Sprintf("%d", s.loops)},
		{"stack", fmt.Sprintf("%d commands, %d batches", s.ctx.Dispatcher.MaxDepthReached(), s.batch.MaxDepth())},
		{"caps", fmt.Sprintf("%d", len(s.ctx.Caps.Groups()))},
		{"devices", fmt.Sprintf("%d", s.ctx.Devices.Len())},
		{"sensors", fmt.Sprintf("%d", s.ctx.Sensors.Len())},
		{"timers", fmt.Sprintf("%d", s.ctx.Timers.Len())},
	}
	for _, r := range rows {
		req.Printf("%-10s: %s\n", r.k, r.v)
	}
	return command.Success
}

func (s *System) handleUptime(req *command.Request) command.Exit {
	up := s.ctx.Uptime()
	req.Println(formatUptime(up))
	req.SetOutput(isoDuration(up))
	return command.Success
}

// formatUptime renders d as "3d 04:05:06".
func formatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	secs %= 86400
	return fmt.Sprintf("%dd %02d:%02d:%02d", days, secs/3600, secs%3600/60, secs%60)
}

// isoDuration renders d as an ISO 8601 duration such as P1DT2H3M4S.
func isoDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	days := secs / 86400
	h := secs % 86400 / 3600
	m := secs % 3600 / 60
	sec := secs % 60

	var b strings.Builder
	b.WriteByte('P')
	if days > 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if h > 0 || m > 0 || sec > 0 || days == 0 {
		b.WriteByte('T')
		if h > 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if m > 0 {
			fmt.Fprintf(&b, "%dM", m)
		}
		if sec > 0 || (h == 0 && m == 0) {
			fmt.Fprintf(&b, "%dS", sec)
		}
	}
	return b.String()
}
