package command

import (
	"strconv"
	"strings"

	"github.com/ocfu/espconsole/internal/expr"
	"github.com/ocfu/espconsole/internal/vars"
)

// set implements:
//
//	set                 list all variables
//	set V               print V
//	set V <text>        assign text
//	set V = <expr>      assign the evaluated expression
//	set V/p = <expr>    same, rounded to p decimals
func (d *Dispatcher) set(req *Request) Exit {
	l := req.Line
	if l.Len() == 1 {
		for _, name := range d.vars.Names() {
			req.Printf("%s=%s\n", name, d.vars.Value(name))
		}
		return Success
	}

	name, prec := l.Arg(1), -1
	if i := strings.IndexByte(name, '/'); i > 0 {
		p, err := strconv.Atoi(name[i+1:])
		if err != nil || p < 0 || p > 15 {
			return req.Fail("set: invalid precision '%s'", name[i+1:])
		}
		name, prec = name[:i], p
	}
	if !vars.ValidName(name) {
		return req.Fail("set: invalid variable name '%s'", name)
	}

	if l.Len() == 2 {
		v, ok := d.vars.Get(name)
		if !ok {
			return req.Fail("set: %s not set", name)
		}
		req.Printf("%s=%s\n", name, v)
		req.SetOutput(v)
		return Success
	}

	if l.Arg(2) == "=" {
		src := l.After(2)
		if src == "" {
			return req.Usage(specialUsage["set"])
		}
		v, err := expr.Eval(src)
		if err != nil {
			d.vars.Set(name, "nan") //nolint:errcheck // name validated above
			return req.Fail("set: %v", err)
		}
		s := expr.Format(v, prec)
		d.vars.Set(name, s) //nolint:errcheck // name validated above
		req.SetOutput(s)
		return Success
	}

	value := Unquote(l.After(1))
	d.vars.Set(name, value) //nolint:errcheck // name validated above
	return Success
}
