package timer

import (
	"time"

	"github.com/ocfu/espconsole/internal/command"
)

const usage = "timer add <period|cron> <cmd> [<id> [once|repeat|replace]] | timer del|stop|start <id> | timer list"

// Entry returns the built-in "timer" verb.
func (s *Scheduler) Entry() command.Entry {
	return command.Entry{Verb: "timer", Usage: usage, Handler: s.handle}
}

func (s *Scheduler) handle(req *command.Request) command.Exit {
	l := req.Line
	switch l.Arg(1) {
	case "add":
		if l.Len() < 4 {
			return req.Usage("timer add <period|cron> <cmd> [<id> [once|repeat|replace]]")
		}
		t, err := s.Add(l.Arg(2), l.Arg(3), l.Arg(4), l.Arg(5))
		if err != nil {
			return req.Fail("%v", err)
		}
		req.SetOutput(t.ID)
		return command.Success
	case "del", "stop", "start":
		id := l.Arg(2)
		if id == "" {
			return req.Usage("timer " + l.Arg(1) + " <id>")
		}
		var err error
		switch l.Arg(1) {
		case "del":
			err = s.Del(id)
		case "stop":
			err = s.Stop(id)
		default:
			err = s.Start(id)
		}
		if err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "", "list":
		now := s.now()
		req.Printf("%-12s %-7s %-16s %10s %-3s %s\n", "id", "mode", "period", "next", "run", "command")
		for _, t := range s.List() {
			run := "no"
			if t.Running {
				run = "yes"
			}
			period := t.Spec
			if t.Period > 0 {
				period = t.Period.String()
			}
			next := t.Next.Sub(now).Truncate(time.Millisecond)
			req.Printf("%-12s %-7s %-16s %10s %-3s %s\n", t.ID, t.Mode, period, next, run, t.Cmd)
		}
		return command.Success
	}
	return req.Usage(usage)
}
