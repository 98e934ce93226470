// Package influxcap exports sensor readings and runtime statistics to
// InfluxDB at a fixed interval.
package influxcap

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/influxdb"
	"github.com/ocfu/espconsole/internal/vars"
)

// Name is the capability name used by cap load.
const Name = "influx"

// DefaultInterval is used when the configuration has no interval.
const DefaultInterval = time.Minute

const usage = "influx [status] | influx on | influx off | influx interval <s>"

// Writer is the part of the InfluxDB client the capability uses.
// *influxdb.Client implements it.
type Writer interface {
	WriteSensor(name, typ, unit string, value float64, valid bool, ts time.Time)
	WriteSystem(freeHeap uint64, uptime time.Duration, loopsPerSecond float64, ts time.Time)
	SetOnError(func(err error))
	Flush()
	Close() error
	IsConnected() bool
	URL() string
}

// Connector opens a writer.
type Connector func(ctx context.Context, cfg config.InfluxDBConfig, host string) (Writer, error)

func connectClient(ctx context.Context, cfg config.InfluxDBConfig, host string) (Writer, error) {
	return influxdb.Connect(ctx, cfg, host)
}

// Capability implements the influx verb.
type Capability struct {
	capability.Base

	connect  Connector
	w        Writer
	interval time.Duration
	last     time.Time
	loops    int
	points   int
	errs     atomic.Int64
}

// New constructs the capability.
func New() capability.Capability {
	return NewWithConnector(connectClient)()
}

// NewWithConnector returns a constructor that exports through connect.
func NewWithConnector(connect Connector) capability.Constructor {
	return func() capability.Capability {
		return &Capability{connect: connect, interval: DefaultInterval}
	}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return []string{"influx"} }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	return usage, verb == "influx"
}

// Setup connects when InfluxDB is enabled in the configuration.
func (c *Capability) Setup(ctx *capability.Context) error {
	if ctx.Config == nil {
		return nil
	}
	if s := ctx.Config.InfluxDB.Interval; s > 0 {
		c.interval = time.Duration(s) * time.Second
	}
	if !ctx.Config.InfluxDB.Enabled {
		return nil
	}
	if err := c.open(ctx); err != nil {
		ctx.Logger.Warn("influxdb connect failed", "error", err)
	}
	return nil
}

// Loop exports every sampled sensor once the interval has elapsed.
func (c *Capability) Loop(ctx *capability.Context) {
	c.loops++
	if c.w == nil || !c.w.IsConnected() {
		return
	}
	now := ctx.Now()
	if c.last.IsZero() {
		c.last = now
		c.loops = 0
		return
	}
	elapsed := now.Sub(c.last)
	if elapsed < c.interval {
		return
	}
	c.export(ctx, now, float64(c.loops)/elapsed.Seconds())
	c.last = now
	c.loops = 0
}

// Teardown flushes and closes the client.
func (c *Capability) Teardown(ctx *capability.Context) {
	c.close(ctx)
}

func (c *Capability) open(ctx *capability.Context) error {
	if c.w != nil {
		return nil
	}
	cfg := ctx.Config.InfluxDB
	cfg.Enabled = true
	host := ctx.Vars.Value(vars.Hostname)
	if host == "" {
		host = ctx.Config.Device.Hostname
	}
	w, err := c.connect(context.Background(), cfg, host)
	if err != nil {
		return err
	}
	w.SetOnError(func(err error) {
		c.errs.Add(1)
		ctx.Logger.Warn("influxdb write failed", "error", err)
	})
	c.w = w
	c.last = time.Time{}
	ctx.Logger.Info("influxdb export started", "url", w.URL(), "interval", c.interval)
	return nil
}

func (c *Capability) close(ctx *capability.Context) {
	if c.w == nil {
		return
	}
	if err := c.w.Close(); err != nil && ctx.Logger != nil {
		ctx.Logger.Warn("closing influxdb client", "error", err)
	}
	c.w = nil
}

func (c *Capability) export(ctx *capability.Context, now time.Time, loopRate float64) {
	for _, s := range ctx.Sensors.List() {
		if s.Updated.IsZero() {
			continue
		}
		c.w.WriteSensor(s.Name, s.Type.String(), s.Unit, s.Value, s.Valid, now)
		c.points++
	}
	c.w.WriteSystem(ctx.Platform.FreeHeap(), ctx.Uptime(), loopRate, now)
	c.points++
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	if req.Line.Verb() != "influx" {
		return command.NotHandled
	}
	l := req.Line
	switch l.Arg(1) {
	case "", "status":
		if c.w == nil {
			req.Println("influx off")
		} else {
			state := "disconnected"
			if c.w.IsConnected() {
				state = "connected"
			}
			req.Printf("influx %s %s\n", state, c.w.URL())
		}
		req.Printf("interval %s, %d points, %d errors\n", c.interval, c.points, c.errs.Load())
		req.SetOutput(strconv.Itoa(c.points))
		return command.Success
	case "on":
		if ctx.Config == nil {
			return req.Fail("influx: no configuration")
		}
		if err := c.open(ctx); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "off":
		if c.w != nil {
			c.w.Flush()
		}
		c.close(ctx)
		return command.Success
	case "interval":
		s := l.Int(2, 0)
		if s <= 0 {
			return req.Usage("influx interval <s>")
		}
		c.interval = time.Duration(s) * time.Second
		return command.Success
	}
	return req.Usage(usage)
}
