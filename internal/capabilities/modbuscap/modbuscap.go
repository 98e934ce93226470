// Package modbuscap provides the modbus verb, which registers sensors read
// from Modbus registers on the configured bus.
package modbuscap

import (
	"strconv"
	"strings"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/sensor"
	"github.com/ocfu/espconsole/internal/sensor/modbus"
)

// Name is the capability name used by cap load.
const Name = "modbus"

const usage = "modbus [list] | modbus status | " +
	"modbus add <name> <type> <unit> <slave> <register> [<scale>] [input] [signed] [long] | modbus del <name>"

// Capability implements the modbus verb.
type Capability struct {
	capability.Base
	bus *modbus.Bus
	cfg modbus.Config
	// sensors are the names registered through this capability, in order.
	sensors []string
	regs    map[string]modbus.Register
}

// New constructs the capability.
func New() capability.Capability {
	return &Capability{regs: make(map[string]modbus.Register)}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return []string{"modbus"} }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	return usage, verb == "modbus"
}

// Setup creates the bus. The connection opens on the first read.
func (c *Capability) Setup(ctx *capability.Context) error {
	if ctx.Config != nil {
		c.cfg = modbus.ConfigFrom(ctx.Config.Modbus)
	}
	c.bus = modbus.NewBus(c.cfg, ctx.Now)
	return nil
}

// Loop implements capability.Capability. Reads happen in the sensor update.
func (c *Capability) Loop(*capability.Context) {}

// Teardown removes the sensors of the bus and closes it.
func (c *Capability) Teardown(ctx *capability.Context) {
	for _, name := range c.sensors {
		_ = ctx.Sensors.Remove(name)
	}
	c.sensors = nil
	if err := c.bus.Close(); err != nil && ctx.Logger != nil {
		ctx.Logger.Warn("closing modbus bus", "error", err)
	}
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	if req.Line.Verb() != "modbus" {
		return command.NotHandled
	}
	l := req.Line
	switch l.Arg(1) {
	case "", "list":
		req.Printf("%-12s %-5s %-5s %-8s %-6s %s\n", "name", "slave", "reg", "kind", "scale", "value")
		for _, name := range c.sensors {
			r := c.regs[name]
			v := "-"
			if s, ok := ctx.Sensors.ByName(name); ok {
				v = s.Format()
			}
			kind := "holding"
			if r.Kind == modbus.Input {
				kind = "input"
			}
			req.Printf("%-12s %-5d %-5d %-8s %-6g %s\n", name, r.Slave, r.Address, kind, scaleOf(r), v)
		}
		return command.Success
	case "status":
		switch strings.ToLower(c.cfg.Mode) {
		case "tcp":
			req.Printf("mode tcp %s\n", c.cfg.Address)
		case "rtu":
			req.Printf("mode rtu %s %d baud\n", c.cfg.Device, c.cfg.Baud)
		default:
			req.Printf("mode %q\n", c.cfg.Mode)
		}
		req.Printf("timeout %s, %d sensors\n", c.cfg.Timeout, len(c.sensors))
		return command.Success
	case "add":
		return c.add(ctx, req)
	case "del":
		name := l.Arg(2)
		i := indexOf(c.sensors, name)
		if i < 0 {
			return req.Fail("modbus: no sensor %s", name)
		}
		if err := ctx.Sensors.Remove(name); err != nil {
			return req.Fail("%v", err)
		}
		c.sensors = append(c.sensors[:i], c.sensors[i+1:]...)
		delete(c.regs, name)
		return command.Success
	}
	return req.Usage(usage)
}

func (c *Capability) add(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if l.Len() < 7 {
		return req.Usage("modbus add <name> <type> <unit> <slave> <register> [<scale>] [input] [signed] [long]")
	}
	typ, err := sensor.ParseType(l.Arg(3))
	if err != nil {
		return req.Fail("%v", err)
	}
	slave, err := strconv.ParseUint(l.Arg(5), 10, 8)
	if err != nil || slave == 0 || slave > 247 {
		return req.Fail("modbus: invalid slave %q", l.Arg(5))
	}
	addr, err := strconv.ParseUint(l.Arg(6), 0, 16)
	if err != nil {
		return req.Fail("modbus: invalid register %q", l.Arg(6))
	}
	r := modbus.Register{Bus: c.bus, Slave: byte(slave), Address: uint16(addr)}
	for _, opt := range l.Args(7) {
		switch strings.ToLower(opt) {
		case "input", "i":
			r.Kind = modbus.Input
		case "holding", "h":
			r.Kind = modbus.Holding
		case "signed":
			r.Signed = true
		case "long":
			r.Words = 2
		default:
			scale, err := strconv.ParseFloat(opt, 64)
			if err != nil {
				return req.Fail("modbus: invalid option %q", opt)
			}
			r.Scale = scale
		}
	}
	name := l.Arg(2)
	id, err := ctx.Sensors.Add(&sensor.Sensor{
		Name:   name,
		Type:   typ,
		Unit:   l.Arg(4),
		Model:  "modbus",
		Reader: r,
	})
	if err != nil {
		return req.Fail("%v", err)
	}
	c.sensors = append(c.sensors, name)
	c.regs[name] = r
	req.SetOutput(strconv.Itoa(id))
	return command.Success
}

func scaleOf(r modbus.Register) float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
