package system

import (
	"context"
	"strconv"
	"time"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/infrastructure/logging"
	"github.com/ocfu/espconsole/internal/vars"
)

// DefaultNTP is used when neither the ntp argument nor NTP is set.
const DefaultNTP = "pool.ntp.org"

// extended is the network and housekeeping table searched after the
// built-ins.
func (s *System) extended() *command.Table {
	return command.NewTable("extended",
		command.Entry{Verb: "date", Usage: "date", Handler: s.handleDate},
		command.Entry{Verb: "ntp", Usage: "ntp [<server>]", Handler: s.handleNTP},
		command.Entry{Verb: "wifi", Usage: "wifi", Handler: s.handleWiFi},
		command.Entry{Verb: "hostname", Usage: "hostname [<name>]", Handler: s.handleHostname},
		command.Entry{Verb: "heap", Usage: "heap", Handler: s.handleHeap},
		command.Entry{Verb: "log", Usage: "log [level [<level>]] | log <level> <text>", Handler: s.handleLog},
		command.Entry{Verb: "unset", Usage: "unset <var>", Handler: s.handleUnset},
		command.Entry{Verb: "history", Usage: "history [-c]", Handler: s.handleHistory},
	)
}

// Location returns the zone named by TZ, or UTC when TZ is empty or unknown.
func (s *System) Location() *time.Location {
	tz := s.ctx.Vars.Value(vars.TZ)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.ctx.Logger.Debug("unknown time zone", "tz", tz, "error", err)
		return time.UTC
	}
	return loc
}

func (s *System) handleDate(req *command.Request) command.Exit {
	now := s.ctx.Now().In(s.Location())
	req.Println(now.Format("Mon Jan _2 15:04:05 MST 2006"))
	req.SetOutput(now.Format(time.RFC3339))
	return command.Success
}

func (s *System) handleNTP(req *command.Request) command.Exit {
	server := req.Line.Arg(1)
	if server != "" {
		_ = s.ctx.Vars.Set(vars.NTP, server)
	} else {
		server = s.ctx.Vars.Value(vars.NTP)
	}
	if server == "" {
		server = DefaultNTP
	}
	if err := s.ctx.Platform.SyncTime(server); err != nil {
		return req.Fail("ntp: %v", err)
	}
	s.ctx.Logger.Info("time synchronised", "server", server)
	return command.Success
}

func (s *System) handleWiFi(req *command.Request) command.Exit {
	st := s.ctx.Platform.WiFi()
	req.Printf("mode : %s\n", st.Mode)
	req.Printf("ssid : %s\n", st.SSID)
	req.Printf("ip   : %s\n", st.IP)
	req.Printf("rssi : %d dBm\n", st.RSSI)
	req.SetOutput(st.IP)
	return command.Success
}

func (s *System) handleHostname(req *command.Request) command.Exit {
	name := req.Line.Arg(1)
	if name == "" {
		h := s.ctx.Vars.Value(vars.Hostname)
		req.Println(h)
		req.SetOutput(h)
		return command.Success
	}
	if err := s.ctx.Vars.Set(vars.Hostname, name); err != nil {
		return req.Fail("hostname: %v", err)
	}
	if err := s.ctx.Settings.Save("", vars.Hostname, name); err != nil {
		s.ctx.Logger.Warn("hostname not saved", "error", err)
	}
	return command.Success
}

func (s *System) handleHeap(req *command.Request) command.Exit {
	free := strconv.FormatUint(s.ctx.Platform.FreeHeap(), 10)
	req.Printf("free heap: %s bytes\n", free)
	req.SetOutput(free)
	return command.Success
}

func (s *System) handleLog(req *command.Request) command.Exit {
	l := req.Line
	logger := s.ctx.Logger
	switch sub := l.Arg(1); sub {
	case "":
		req.Println(logging.LevelName(logger.Level()))
		return command.Success
	case "level":
		if !l.Has(2) {
			req.Println(logging.LevelName(logger.Level()))
			return command.Success
		}
		if !logging.ValidLevel(l.Arg(2)) {
			return req.Fail("log: unknown level %q", l.Arg(2))
		}
		logger.SetLevel(l.Arg(2))
		return command.Success
	default:
		if !logging.ValidLevel(sub) || !l.Has(2) {
			return req.Usage("log [level [<level>]] | log <level> <text>")
		}
		msg := l.After(1)
		switch sub {
		case "error", "e":
			logger.Error(msg)
		case "warn", "warning", "w":
			logger.Warn(msg)
		case "debug", "d":
			logger.Debug(msg)
		case "trace", "x":
			logger.Log(context.Background(), logging.LevelTrace, msg)
		default:
			logger.Info(msg)
		}
		return command.Success
	}
}

func (s *System) handleUnset(req *command.Request) command.Exit {
	name := req.Line.Arg(1)
	if name == "" {
		return req.Usage("unset <var>")
	}
	if !s.ctx.Vars.Unset(name) {
		return req.Fail("unset: %s not set", name)
	}
	return command.Success
}

func (s *System) handleHistory(req *command.Request) command.Exit {
	if len(s.consoles) == 0 {
		return req.Fail("history: no local console")
	}
	h := s.consoles[0].History()
	if req.Line.Arg(1) == "-c" {
		h.Clear()
		return command.Success
	}
	for i, line := range h.Lines() {
		req.Printf("%3d  %s\n", i+1, line)
	}
	return command.Success
}
