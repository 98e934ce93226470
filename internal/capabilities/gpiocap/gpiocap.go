// Package gpiocap provides the gpio, led and relay verbs over the device
// manager of the runtime context.
package gpiocap

import (
	"strconv"
	"strings"
	"time"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/gpio"
)

// Name is the capability name used by cap load.
const Name = "gpio"

var usages = map[string]string{
	"gpio": "gpio add <pin> <type> <name> [<inverted>] [<cmd>] [<extra>] | gpio del <name> | gpio list | gpio state | " +
		"gpio get <pin> | gpio set <pin> <mode|value> | gpio name <pin> <name> | gpio fn <pin> <friendly> | " +
		"gpio deb <pin> <ms> | gpio isr [<pin> <id> [<debounce>]] | gpio let <a> = <b> [<op> <c>]",
	"led":   "led <name> on|off|toggle | led <name> blink|flash <pattern> | led <name> blink <period> <duty> | led <name> flash <period> <duty> <count>",
	"relay": "relay <name> on|off|toggle | relay <name> offtimer <ms> | relay <name> default 0|1",
}

// Capability implements the device verbs.
type Capability struct {
	capability.Base
}

// New constructs the capability.
func New() capability.Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return []string{"gpio", "led", "relay"} }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	u, ok := usages[verb]
	return u, ok
}

// Setup implements capability.Capability.
func (c *Capability) Setup(*capability.Context) error { return nil }

// Loop implements capability.Capability. Devices are ticked by the runtime.
func (c *Capability) Loop(*capability.Context) {}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	switch req.Line.Verb() {
	case "gpio":
		return c.gpio(ctx, req)
	case "led":
		return c.led(ctx, req)
	case "relay":
		return c.relay(ctx, req)
	}
	return command.NotHandled
}

func (c *Capability) gpio(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	m := ctx.Devices
	switch l.Arg(1) {
	case "add":
		return c.add(ctx, req)
	case "del":
		if !l.Has(2) {
			return req.Usage("gpio del <name>")
		}
		if err := m.Delete(l.Arg(2)); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "", "list":
		req.Printf("%-4s %-8s %-12s %-3s %-20s %s\n", "pin", "type", "name", "inv", "state", "friendly")
		for _, d := range m.List() {
			inv := "0"
			if d.Inverted() {
				inv = "1"
			}
			req.Printf("%-4d %-8s %-12s %-3s %-20s %s\n", d.Pin(), d.Type(), d.Name(), inv, d.Status(), d.Friendly())
		}
		return command.Success
	case "state":
		req.Printf("%-4s %-15s %-5s %-3s %s\n", "pin", "mode", "state", "inv", "pwm")
		for _, p := range m.Tracker().Pins() {
			pwm := "-"
			if p.PWM {
				pwm = strconv.Itoa(p.Duty)
			}
			req.Printf("%-4d %-15s %-5d %-3d %s\n", p.Num, p.Mode, boolInt(p.State), boolInt(p.Inverted), pwm)
		}
		return command.Success
	case "get":
		pin, ok := pinArg(req, 2, "gpio get <pin>")
		if !ok {
			return command.Failure
		}
		v, err := m.Tracker().Level(pin)
		if err != nil {
			return req.Fail("%v", err)
		}
		s := strconv.Itoa(boolInt(v))
		req.Println(s)
		req.SetOutput(s)
		return command.Success
	case "set":
		return c.set(ctx, req)
	case "name":
		pin, ok := pinArg(req, 2, "gpio name <pin> <name>")
		if !ok {
			return command.Failure
		}
		if err := m.Rename(pin, l.Arg(3)); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "fn":
		pin, ok := pinArg(req, 2, "gpio fn <pin> <friendly>")
		if !ok {
			return command.Failure
		}
		if err := m.SetFriendly(pin, command.Unquote(l.After(2))); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "deb":
		pin, ok := pinArg(req, 2, "gpio deb <pin> <ms>")
		if !ok {
			return command.Failure
		}
		ms := l.Int(3, -1)
		if ms < 0 {
			return req.Usage("gpio deb <pin> <ms>")
		}
		if err := m.SetDebounce(pin, time.Duration(ms)*time.Millisecond); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "isr":
		return c.isr(ctx, req)
	case "let":
		// gpio let <a> = <b> [<op> <c>]
		args := l.Args(2)
		if len(args) < 3 || args[1] != "=" {
			return req.Usage("gpio let <a> = <b> [<op> <c>]")
		}
		v, err := m.Let(args[0], args[2:])
		if err != nil {
			return req.Fail("%v", err)
		}
		req.SetOutput(strconv.Itoa(boolInt(v)))
		return command.Success
	}
	return req.Usage(usages["gpio"])
}

func (c *Capability) add(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if l.Len() < 5 {
		return req.Usage("gpio add <pin> <type> <name> [<inverted>] [<cmd>] [<extra>]")
	}
	pin, err := strconv.Atoi(l.Arg(2))
	if err != nil {
		return req.Fail("gpio: invalid pin %q", l.Arg(2))
	}
	typ, err := gpio.ParseType(l.Arg(3))
	if err != nil {
		return req.Fail("%v", err)
	}
	d, err := ctx.Devices.Create(gpio.Spec{
		Pin:      pin,
		Type:     typ,
		Name:     l.Arg(4),
		Inverted: l.Int(5, 0) != 0,
		Cmd:      l.Arg(6),
		Extra:    l.Arg(7),
	})
	if err != nil {
		return req.Fail("%v", err)
	}
	req.SetOutput(d.Name())
	return command.Success
}

// set accepts a mode name, 0|1|on|off, or a PWM duty above 1.
func (c *Capability) set(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	pin, ok := pinArg(req, 2, "gpio set <pin> <mode|value>")
	if !ok {
		return command.Failure
	}
	arg := l.Arg(3)
	if arg == "" {
		return req.Usage("gpio set <pin> <mode|value>")
	}
	m := ctx.Devices
	if state, ok := parseState(arg); ok {
		if err := m.Drive(pin, state); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	}
	if duty, err := strconv.Atoi(arg); err == nil {
		if err := m.Tracker().SetPWM(pin, duty); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	}
	mode, err := gpio.ParseMode(arg)
	if err != nil {
		return req.Fail("%v", err)
	}
	if err := m.Tracker().SetMode(pin, mode); err != nil {
		return req.Fail("%v", err)
	}
	return command.Success
}

func (c *Capability) isr(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	isr := ctx.Devices.ISR()
	if !l.Has(2) {
		req.Printf("%-3s %-4s %-8s %s\n", "id", "pin", "debounce", "count")
		for id := 0; id < gpio.ISRSlots; id++ {
			if isr.Pin(id) < 0 {
				continue
			}
			req.Printf("%-3d %-4d %-8s %d\n", id, isr.Pin(id), isr.Debounce(id), isr.Count(id))
		}
		return command.Success
	}
	pin, ok := pinArg(req, 2, "gpio isr <pin> <id> [<debounce>]")
	if !ok {
		return command.Failure
	}
	id := l.Int(3, -1)
	deb := time.Duration(l.Int(4, 0)) * time.Millisecond
	if err := isr.Attach(id, pin, deb); err != nil {
		return req.Fail("%v", err)
	}
	return command.Success
}

func (c *Capability) led(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if !l.Has(2) {
		return req.Usage(usages["led"])
	}
	led, err := ctx.Devices.LED(l.Arg(1))
	if err != nil {
		return req.Fail("%v", err)
	}
	now := ctx.Now()
	switch op := l.Arg(2); op {
	case "on":
		led.On()
	case "off":
		led.Off()
	case "toggle":
		led.Toggle()
	case "blink", "flash":
		if !l.Has(3) {
			return req.Usage(usages["led"])
		}
		if _, err := strconv.Atoi(l.Arg(3)); err != nil {
			if op == "blink" {
				err = led.BlinkPattern(l.Arg(3), now)
			} else {
				err = led.FlashPattern(l.Arg(3), now)
			}
			if err != nil {
				return req.Fail("%v", err)
			}
			return command.Success
		}
		period := time.Duration(l.Int(3, 0)) * time.Millisecond
		duty := l.Int(4, 50)
		if op == "blink" {
			err = led.Blink(period, duty, now)
		} else {
			err = led.Flash(period, duty, l.Int(5, 1), now)
		}
		if err != nil {
			return req.Fail("%v", err)
		}
	default:
		return req.Usage(usages["led"])
	}
	return command.Success
}

func (c *Capability) relay(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if !l.Has(1) {
		return req.Usage(usages["relay"])
	}
	r, err := ctx.Devices.Relay(l.Arg(1))
	if err != nil {
		return req.Fail("%v", err)
	}
	switch l.Arg(2) {
	case "":
		req.Println(r.Status())
		req.SetOutput(strconv.Itoa(r.Value()))
	case "on":
		r.On()
	case "off":
		r.Off()
	case "toggle":
		r.Toggle()
	case "offtimer":
		ms := l.Int(3, -1)
		if ms < 0 {
			return req.Usage("relay <name> offtimer <ms>")
		}
		r.SetOffTimer(time.Duration(ms) * time.Millisecond)
	case "default":
		state, ok := parseState(l.Arg(3))
		if !ok {
			return req.Usage("relay <name> default 0|1")
		}
		r.SetDefault(state)
	default:
		return req.Usage(usages["relay"])
	}
	return command.Success
}

func pinArg(req *command.Request, i int, usage string) (int, bool) {
	pin, err := strconv.Atoi(req.Line.Arg(i))
	if err != nil {
		req.Usage(usage)
		return 0, false
	}
	return pin, true
}

func parseState(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "1", "on", "high", "true":
		return true, true
	case "0", "off", "low", "false":
		return false, true
	}
	return false, false
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
