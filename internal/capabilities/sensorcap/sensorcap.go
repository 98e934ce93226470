// Package sensorcap provides the sensor verb and records sensor values
// into the history database.
package sensorcap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/history"
	"github.com/ocfu/espconsole/internal/infrastructure/database"
	"github.com/ocfu/espconsole/internal/sensor"
	"github.com/ocfu/espconsole/migrations"
)

// Name is the capability name used by cap load.
const Name = "sensor"

const usage = "sensor list | sensor name <id> <name> | sensor get <id> | " +
	"sensor add <name> <type> <unit> <variable> [<friendly>] | sensor del <name> | sensor hist <name> [<n>]"

// Capability implements the sensor verb.
type Capability struct {
	capability.Base
	db  *database.DB
	rec *history.Recorder
}

// New constructs the capability.
func New() capability.Capability {
	return &Capability{}
}

// Name implements capability.Capability.
func (c *Capability) Name() string { return Name }

// Commands implements capability.Capability.
func (c *Capability) Commands() []string { return []string{"sensor"} }

// Usage implements capability.Usager.
func (c *Capability) Usage(verb string) (string, bool) {
	return usage, verb == "sensor"
}

// Setup opens the history database. The verb works without it; only
// sensor hist is unavailable then.
func (c *Capability) Setup(ctx *capability.Context) error {
	if ctx.Config == nil || ctx.Config.Database.Path == "" {
		return nil
	}
	cfg := ctx.Config.Database
	bg := context.Background()
	db, err := database.Open(bg, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		ctx.Logger.Warn("sensor history disabled", "error", err)
		return nil
	}
	if _, err := db.Migrate(bg, migrations.FS); err != nil {
		_ = db.Close()
		ctx.Logger.Warn("sensor history disabled", "error", err)
		return nil
	}
	c.db = db
	c.rec = history.NewRecorder(history.NewRepository(db.DB),
		time.Duration(cfg.SampleInterval)*time.Second, cfg.Retention)
	c.rec.SetLogger(ctx.Logger.With("component", "history"))
	return nil
}

// Loop records the sensors when the sample interval has elapsed.
func (c *Capability) Loop(ctx *capability.Context) {
	if c.rec != nil {
		c.rec.Tick(context.Background(), ctx.Now(), ctx.Sensors.List())
	}
}

// Teardown closes the history database.
func (c *Capability) Teardown(ctx *capability.Context) {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		ctx.Logger.Warn("closing history database", "error", err)
	}
	c.db, c.rec = nil, nil
}

// Execute implements capability.Capability.
func (c *Capability) Execute(ctx *capability.Context, req *command.Request) command.Exit {
	if req.Line.Verb() != "sensor" {
		return command.NotHandled
	}
	l := req.Line
	reg := ctx.Sensors
	switch l.Arg(1) {
	case "", "list":
		req.Printf("%-3s %-12s %-12s %10s %-6s %s\n", "id", "name", "type", "value", "unit", "friendly")
		for _, s := range reg.List() {
			req.Printf("%-3d %-12s %-12s %10s %-6s %s\n", s.ID, s.Name, s.Type, s.Format(), s.Unit, s.Display())
		}
		return command.Success
	case "name":
		id, err := strconv.Atoi(l.Arg(2))
		if err != nil || !l.Has(3) {
			return req.Usage("sensor name <id> <name>")
		}
		if err := reg.Rename(id, l.Arg(3)); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "get":
		if !l.Has(2) {
			return req.Usage("sensor get <id>")
		}
		s, err := reg.Read(l.Arg(2), ctx.Now())
		if err != nil {
			return req.Fail("%v", err)
		}
		v := s.Format()
		req.Println(v)
		req.SetOutput(v)
		return command.Success
	case "add":
		return c.add(ctx, req)
	case "del":
		if !l.Has(2) {
			return req.Usage("sensor del <name>")
		}
		if err := reg.Remove(l.Arg(2)); err != nil {
			return req.Fail("%v", err)
		}
		return command.Success
	case "hist":
		return c.hist(ctx, req)
	}
	return req.Usage(usage)
}

func (c *Capability) add(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if l.Len() < 6 {
		return req.Usage("sensor add <name> <type> <unit> <variable> [<friendly>]")
	}
	typ, err := sensor.ParseType(l.Arg(3))
	if err != nil {
		return req.Fail("%v", err)
	}
	s := &sensor.Sensor{
		Name:     l.Arg(2),
		Type:     typ,
		Unit:     l.Arg(4),
		Model:    "variable",
		Friendly: command.Unquote(l.After(5)),
		Reader:   sensor.VarReader{Store: ctx.Vars, Var: l.Arg(5)},
	}
	id, err := ctx.Sensors.Add(s)
	if err != nil {
		return req.Fail("%v", err)
	}
	req.SetOutput(strconv.Itoa(id))
	return command.Success
}

func (c *Capability) hist(ctx *capability.Context, req *command.Request) command.Exit {
	l := req.Line
	if !l.Has(2) {
		return req.Usage("sensor hist <name> [<n>]")
	}
	if c.rec == nil {
		return req.Fail("sensor: no history database")
	}
	samples, err := c.rec.Repository().Recent(context.Background(), l.Arg(2), l.Int(3, 0))
	if err != nil {
		return req.Fail("sensor: %v", err)
	}
	for _, s := range samples {
		v := "nan"
		if s.Valid {
			v = strconv.FormatFloat(s.Value, 'f', -1, 64)
		}
		req.Printf("%s %s\n", s.Time.Format(time.DateTime), v)
	}
	req.SetOutput(fmt.Sprintf("%d", len(samples)))
	return command.Success
}
