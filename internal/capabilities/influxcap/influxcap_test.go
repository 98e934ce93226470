package influxcap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/influxdb"
	"github.com/ocfu/espconsole/internal/infrastructure/logging"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/sensor"
	"github.com/ocfu/espconsole/internal/vars"
)

type point struct {
	Name  string
	Type  string
	Unit  string
	Value float64
	Valid bool
}

type fakeWriter struct {
	host    string
	sensors []point
	systems int
	onError func(error)
	flushed int
	closed  bool
}

func (f *fakeWriter) WriteSensor(name, typ, unit string, value float64, valid bool, _ time.Time) {
	f.sensors = append(f.sensors, point{name, typ, unit, value, valid})
}

func (f *fakeWriter) WriteSystem(uint64, time.Duration, float64, time.Time) { f.systems++ }
func (f *fakeWriter) SetOnError(fn func(error))                              { f.onError = fn }
func (f *fakeWriter) Flush()                                                 { f.flushed++ }
func (f *fakeWriter) IsConnected() bool                                      { return !f.closed }
func (f *fakeWriter) URL() string                                            { return "http://influx:8086" }

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

type harness struct {
	sim *platform.Sim
	ctx *capability.Context
	reg *capability.Registry
	d   *command.Dispatcher
	w   *fakeWriter
	err error
}

func newHarness(t *testing.T, enabled bool) *harness {
	t.Helper()
	sim := platform.NewSim()
	store := vars.New()
	_ = store.Set(vars.Hostname, "esp01")
	d := command.New(store)
	d.SetOutput(&bytes.Buffer{})
	cfg := config.Default()
	cfg.InfluxDB.Enabled = enabled
	cfg.InfluxDB.Interval = 60
	ctx := &capability.Context{
		Platform:   sim,
		Config:     cfg,
		Logger:     logging.Discard(),
		Vars:       store,
		Dispatcher: d,
		Sensors:    sensor.NewRegistry(),
		Started:    sim.Now(),
	}
	h := &harness{sim: sim, ctx: ctx, d: d}
	connect := func(_ context.Context, _ config.InfluxDBConfig, host string) (Writer, error) {
		if h.err != nil {
			return nil, h.err
		}
		h.w = &fakeWriter{host: host}
		return h.w, nil
	}
	h.reg = capability.NewRegistry(ctx)
	d.AddSource(h.reg)
	if err := h.reg.Register(Name, NewWithConnector(connect)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := h.reg.Load(Name); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return h
}

func (h *harness) run(line string) (command.Exit, string) {
	var out bytes.Buffer
	rc := h.d.Dispatch(line, &out, 0, nil)
	return rc, out.String()
}

func (h *harness) must(t *testing.T, line string) string {
	t.Helper()
	rc, out := h.run(line)
	if rc != command.Success {
		t.Fatalf("%q exit = %v, output %q", line, rc, out)
	}
	return out
}

func (h *harness) step(d time.Duration) {
	h.sim.Advance(d)
	h.ctx.Sensors.Update(h.sim.Now())
	h.reg.Loop()
}

func TestExportInterval(t *testing.T) {
	h := newHarness(t, true)
	if h.w == nil || h.w.host != "esp01" {
		t.Fatalf("writer = %+v, want one connected for esp01", h.w)
	}
	_, err := h.ctx.Sensors.Add(&sensor.Sensor{
		Name:   "t1",
		Type:   sensor.TypeTemperature,
		Unit:   "C",
		Reader: sensor.VarReader{Store: h.ctx.Vars, Var: "T"},
	})
	if err != nil {
		t.Fatal(err)
	}
	h.must(t, "set T 19")

	h.step(0)
	h.step(30 * time.Second)
	if len(h.w.sensors) != 0 {
		t.Fatalf("exported before the interval: %v", h.w.sensors)
	}
	h.step(30 * time.Second)

	want := []point{{Name: "t1", Type: "temperature", Unit: "C", Value: 19, Valid: true}}
	if diff := cmp.Diff(want, h.w.sensors); diff != "" {
		t.Errorf("sensor points mismatch (-want +got):\n%s", diff)
	}
	if h.w.systems != 1 {
		t.Errorf("system points = %d, want 1", h.w.systems)
	}
}

func TestVerbs(t *testing.T) {
	h := newHarness(t, false)
	if h.w != nil {
		t.Fatal("connected although disabled")
	}
	if out := h.must(t, "influx"); !strings.Contains(out, "influx off") {
		t.Errorf("influx status = %q", out)
	}

	h.must(t, "influx interval 5")
	h.must(t, "influx on")
	out := h.must(t, "influx status")
	for _, want := range []string{"connected", "http://influx:8086", "interval 5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("influx status = %q, missing %q", out, want)
		}
	}

	h.w.onError(errors.New("bucket not found"))
	if out := h.must(t, "influx"); !strings.Contains(out, "1 errors") {
		t.Errorf("influx status = %q, want 1 errors", out)
	}

	w := h.w
	h.must(t, "influx off")
	if !w.closed || w.flushed != 1 {
		t.Errorf("off: closed %v flushed %d", w.closed, w.flushed)
	}
	if rc, _ := h.run("influx interval 0"); rc != command.Failure {
		t.Errorf("interval 0 exit = %v, want Failure", rc)
	}
}

func TestConnectFailure(t *testing.T) {
	h := newHarness(t, false)
	h.err = influxdb.ErrConnectionFailed
	rc, out := h.run("influx on")
	if rc != command.Failure || !strings.Contains(out, "connection failed") {
		t.Errorf("influx on = %v %q", rc, out)
	}
}
