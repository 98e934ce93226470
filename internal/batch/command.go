package batch

import (
	"strings"

	"github.com/ocfu/espconsole/internal/command"
)

// Entries returns the exec, test, break and man verbs.
func (in *Interpreter) Entries() []command.Entry {
	return []command.Entry{
		{Verb: "exec", Usage: "exec <file> [<label>] [<args>]", Handler: in.handleExec},
		{Verb: "test", Usage: "test <expr>", Handler: in.handleTest},
		{Verb: "break", Usage: "break [on <0|1>]", Handler: in.handleBreak},
		{Verb: "man", Usage: "man <topic>", Handler: in.handleMan},
	}
}

func (in *Interpreter) handleExec(req *command.Request) command.Exit {
	l := req.Line
	if l.Arg(1) == "" {
		return req.Usage("exec <file> [<label>] [<args>]")
	}
	return in.Run(req.Out, req.Client, l.Arg(1), l.Arg(2), l.After(2))
}

func (in *Interpreter) handleTest(req *command.Request) command.Exit {
	ok, err := Test(in.fs, req.Line.Args(1))
	if err != nil {
		in.logger.Debug("test failed", "line", req.Line.Raw(), "error", err)
		return command.Failure
	}
	return command.ExitOf(ok)
}

func (in *Interpreter) handleBreak(req *command.Request) command.Exit {
	l := req.Line
	if strings.EqualFold(l.Arg(1), "on") {
		if !l.Has(2) {
			return req.Usage("break [on <0|1>]")
		}
		in.breakOn = l.Int(2, 0) != 0
		return command.Success
	}
	if in.depth > 0 {
		in.breakReq = true
	}
	return command.Success
}

func (in *Interpreter) handleMan(req *command.Request) command.Exit {
	topic := req.Line.Arg(1)
	if topic == "" {
		topic = "man"
	}
	return in.Run(req.Out, req.Client, ManFile, topic, req.Line.After(1))
}
