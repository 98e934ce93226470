package mqttcap

import (
	"strconv"
	"strings"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/ha"
	"github.com/ocfu/espconsole/internal/sensor"
)

func (c *Capability) haVerb(ctx *capability.Context, req *command.Request) command.Exit {
	dev := ctx.HA
	if dev == nil {
		return req.Fail("ha: no device")
	}
	l := req.Line
	switch l.Arg(1) {
	case "", "list":
		req.Printf("device %s (%s) discovery %s enabled %d\n",
			dev.Info().Name, dev.Info().ID(), dev.DiscoveryRoot(), boolInt(dev.Enabled()))
		req.Printf("%-16s %-10s %-6s %-5s %-4s %s\n", "name", "type", "state", "avail", "reg", "source")
		for _, e := range dev.List() {
			req.Printf("%-16s %-10s %-6s %-5d %-4d %s\n",
				e.Name, e.Type, e.State(), boolInt(e.Available()), boolInt(e.Registered()), e.Source)
		}
		return command.Success
	case "on", "off":
		if err := dev.RegItems(l.Arg(1) == "on"); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "add":
		return c.addEntity(ctx, req)
	case "del":
		if !l.Has(2) {
			return req.Usage("ha del <name>")
		}
		if err := dev.Remove(ha.Sanitize(l.Arg(2))); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "state":
		if l.Len() < 4 {
			return req.Usage("ha state <name> <value>")
		}
		if err := dev.SetState(ha.Sanitize(l.Arg(2)), command.Unquote(l.After(2))); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "avail":
		v := l.Arg(3)
		if v != "0" && v != "1" {
			return req.Usage("ha avail <name> 0|1")
		}
		if err := dev.SetAvailable(ha.Sanitize(l.Arg(2)), v == "1"); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	}
	return req.Usage(usages["ha"])
}

// addEntity binds an entity to a device, sensor or variable. Sensor-backed
// entities take their unit and device class from the sensor.
func (c *Capability) addEntity(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if l.Len() < 5 {
		return req.Usage("ha add <type> <name> <source> [<friendly>]")
	}
	typ, err := ha.ParseType(l.Arg(2))
	if err != nil {
		return req.Fail("%v", err)
	}
	e, err := ha.NewEntity(typ, l.Arg(3), command.Unquote(l.After(4)), l.Arg(4))
	if err != nil {
		return req.Fail("%v", err)
	}
	if ctx.Sensors != nil {
		if s, ok := ctx.Sensors.ByName(e.Source); ok {
			e.Unit = s.Unit
			e.StateClass = ha.StateClassMeasurement
			if s.Type != sensor.TypeOther {
				e.DeviceClass = s.Type.String()
			}
		}
	}
	if err := ctx.HA.Add(e); err != nil {
		return req.Fail("%v", err)
	}
	req.SetOutput(e.Name)
	return command.Success
}

// lookup returns the raw value behind an entity source: a device state as
// 0 or 1, a sensor reading, or a variable.
func lookup(ctx *capability.Context, source string) (string, bool) {
	if ctx.Devices != nil {
		if d, ok := ctx.Devices.Get(source); ok {
			return strconv.Itoa(boolInt(d.State())), true
		}
	}
	if ctx.Sensors != nil {
		if s, ok := ctx.Sensors.ByName(source); ok {
			return s.Format(), true
		}
	}
	return ctx.Vars.Get(source)
}

// entityCommand applies a command received for an entity to its source.
// Devices are switched; any other source is stored as a variable.
func (c *Capability) entityCommand(ctx *capability.Context, e *ha.Entity, payload string) {
	if e.Source == "" {
		if err := ctx.HA.SetState(e.Name, payload); err != nil {
			ctx.Logger.Warn("entity command", "name", e.Name, "error", err)
		}
		return
	}
	if ctx.Devices != nil {
		if d, ok := ctx.Devices.Get(e.Source); ok {
			on := e.FormatState(payload) == "ON"
			if !e.Type.Binary() {
				on = isOn(payload)
			}
			if err := ctx.Devices.Drive(d.Pin(), on); err != nil {
				ctx.Logger.Warn("entity command", "name", e.Name, "error", err)
			}
			return
		}
	}
	if err := ctx.Vars.Set(e.Source, payload); err != nil {
		ctx.Logger.Warn("entity command", "name", e.Name, "error", err)
	}
}

func isOn(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true", "yes", "press":
		return true
	}
	return false
}
