package system

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/stream"
	"github.com/ocfu/espconsole/internal/vars"
)

type harness struct {
	sim *platform.Sim
	sys *System
	buf *stream.Buffer
}

func newHarness(t *testing.T, files map[string]string) *harness {
	t.Helper()
	sim := platform.NewSim()
	for name, body := range files {
		if err := afero.WriteFile(sim.FS(), name, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config.Default()
	cfg.Shell.Enabled = false
	cfg.Database.Path = ":memory:"
	cfg.Console.Banner = false

	sys, err := New(Options{Platform: sim, Config: cfg, Version: "1.0.0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	buf := stream.NewBuffer()
	sys.AddConsole(buf, false)
	if err := sys.Boot(); err != nil {
		t.Fatalf("Boot() error = %v", err)
	}
	t.Cleanup(func() {
		if err := sys.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return &harness{sim: sim, sys: sys, buf: buf}
}

func (h *harness) run(line string) (command.Exit, string) {
	var out bytes.Buffer
	rc := h.sys.Dispatcher().Dispatch(line, &out, 0, nil)
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
	h.sys.Loop()
}

func (h *harness) value(name string) string {
	return h.sys.Context().Vars.Value(name)
}

func TestBootLoadsCapabilitiesAndRunsAutostart(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/autostart.bat": "@echo off\nset BOOTED yes\n",
	})
	if got := h.value("BOOTED"); got != "yes" {
		t.Errorf("BOOTED = %q, want yes", got)
	}
	for _, name := range config.Default().Capabilities.Autoload {
		if !h.sys.Context().Caps.Loaded(name) {
			t.Errorf("capability %s not loaded", name)
		}
	}
	if !strings.Contains(h.buf.Output(), "esp@espconsole") {
		t.Errorf("console output = %q, want the prompt", h.buf.Output())
	}
}

func TestConsoleLine(t *testing.T) {
	h := newHarness(t, nil)
	h.buf.TakeOutput()
	h.buf.Feed("set V hello\necho $V\n")
	h.step(0)

	if got := h.value("V"); got != "hello" {
		t.Errorf("V = %q, want hello", got)
	}
	if out := h.buf.Output(); !strings.Contains(out, "hello\r\n") && !strings.Contains(out, "hello\n") {
		t.Errorf("console output = %q, want hello", out)
	}
}

func TestBatchLabels(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/test.bat": "X=hello\ndefault:\n  echo $X $1\ngreet:\n  echo hi $1\n",
	})
	if out := h.must(t, "exec /test.bat greet world"); !strings.HasSuffix(out, "hi world\n") {
		t.Errorf("greet output = %q", out)
	}
	if out := h.must(t, "exec /test.bat default world"); !strings.HasSuffix(out, "hello world\n") {
		t.Errorf("default output = %q", out)
	}
}

func TestNestedEchoRestored(t *testing.T) {
	h := newHarness(t, map[string]string{
		"/outer.bat": "@echo off\nexec inner\necho done\n",
		"/inner.bat": "set I 1\n",
	})
	out := h.must(t, "exec outer")
	if out != "done\n" {
		t.Errorf("output = %q, want %q", out, "done\n")
	}
	if !h.sys.Dispatcher().Echo() {
		t.Error("echo not restored")
	}
}

func TestTimerOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.must(t, `timer add 200 "set T fired" t1 once`)
	h.step(100 * time.Millisecond)
	if _, ok := h.sys.Context().Vars.Get("T"); ok {
		t.Fatal("timer fired early")
	}
	h.step(200 * time.Millisecond)

	if got := h.value("T"); got != "fired" {
		t.Errorf("T = %q, want fired", got)
	}
	if out := h.must(t, "timer list"); strings.Contains(out, "t1") {
		t.Errorf("timer list = %q, want t1 removed", out)
	}
}

func TestButtonSinglePress(t *testing.T) {
	h := newHarness(t, nil)
	h.must(t, `gpio add 2 button btn1 0 "set B pressed"`)
	pins := h.sim.MemoryPins()
	h.step(0)

	pins.SetLevel(2, true)
	h.step(0)
	pins.SetLevel(2, false)
	h.step(150 * time.Millisecond)
	h.step(250 * time.Millisecond)
	h.step(2 * time.Second)

	if got := h.value("B"); got != "pressed" {
		t.Errorf("B = %q, want pressed", got)
	}
}

func TestRelayOffTimer(t *testing.T) {
	h := newHarness(t, nil)
	h.must(t, "gpio add 12 relay r1 0")
	h.must(t, "relay r1 offtimer 500")
	h.must(t, "relay r1 on")
	h.step(0)

	pins := h.sim.MemoryPins()
	if !pins.Level(12) {
		t.Fatal("relay pin low after on")
	}
	h.step(600 * time.Millisecond)
	if pins.Level(12) {
		t.Error("relay pin high after the off-timer")
	}
}

func TestTestVerb(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		line string
		want command.Exit
	}{
		{"test ! -e /nope", command.Success},
		{"test 3 -lt 4", command.Success},
		{"test foo = foo", command.Success},
		{"test 3 -eq foo", command.Failure},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if rc, _ := h.run(tt.line); rc != tt.want {
				t.Errorf("%q exit = %v, want %v", tt.line, rc, tt.want)
			}
		})
	}
}

func TestUptime(t *testing.T) {
	h := newHarness(t, nil)
	h.sim.Advance(26*time.Hour + 3*time.Minute + 4*time.Second)
	out := h.must(t, "uptime")
	if out != "1d 02:03:04\n" {
		t.Errorf("uptime = %q", out)
	}
	if got := h.value(vars.Output); got != "P1DT2H3M4S" {
		t.Errorf("> = %q, want P1DT2H3M4S", got)
	}
}

func TestIsoDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "PT0S"},
		{59 * time.Second, "PT59S"},
		{time.Hour, "PT1H"},
		{24 * time.Hour, "P1D"},
		{25*time.Hour + 30*time.Second, "P1DT1H30S"},
	}
	for _, tt := range tests {
		if got := isoDuration(tt.d); got != tt.want {
			t.Errorf("isoDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestInfo(t *testing.T) {
	h := newHarness(t, nil)
	out := h.must(t, "info")
	for _, want := range []string{"hostname  : espconsole", "version   : 1.0.0", "chip id   : c0ffee", "free heap : 200000"} {
		if !strings.Contains(out, want) {
			t.Errorf("info = %q, missing %q", out, want)
		}
	}
	if out := h.must(t, "info reason"); out != "sim\n" {
		t.Errorf("info reason = %q", out)
	}
	if rc, _ := h.run("info bogus"); rc != command.Failure {
		t.Errorf("info bogus exit = %v, want Failure", rc)
	}
}

func TestPrompt(t *testing.T) {
	h := newHarness(t, nil)
	h.must(t, `prompt "$HOSTNAME# "`)
	h.buf.TakeOutput()
	h.buf.Feed("\n")
	h.step(0)
	if out := h.buf.Output(); !strings.Contains(out, "espconsole# ") {
		t.Errorf("console output = %q, want the new prompt", out)
	}

	h.must(t, "prompt -OFF")
	out := h.must(t, "prompt")
	if !strings.Contains(out, "local  off") {
		t.Errorf("prompt = %q, want local off", out)
	}
}

func TestRebootForce(t *testing.T) {
	h := newHarness(t, nil)
	var hooks int
	h.sys.OnReboot(func() { hooks++ })
	h.must(t, "reboot -f")

	if diff := cmp.Diff([]bool{true}, h.sim.Reboots()); diff != "" {
		t.Errorf("reboots mismatch (-want +got):\n%s", diff)
	}
	if hooks != 1 {
		t.Errorf("reboot hooks ran %d times, want 1", hooks)
	}
	if err := h.sys.Run(context.Background()); !errors.Is(err, ErrReboot) {
		t.Errorf("Run() error = %v, want ErrReboot", err)
	}
}

func TestRebootConfirm(t *testing.T) {
	h := newHarness(t, nil)
	h.buf.Feed("reboot\n")
	h.step(0)
	if len(h.sim.Reboots()) != 0 {
		t.Fatal("rebooted without confirmation")
	}
	h.buf.Feed("y")
	h.step(0)
	if diff := cmp.Diff([]bool{false}, h.sim.Reboots()); diff != "" {
		t.Errorf("reboots mismatch (-want +got):\n%s", diff)
	}

	if rc := h.sys.Dispatcher().Dispatch("reboot", &bytes.Buffer{}, 1, nil); rc != command.Failure {
		t.Errorf("reboot from a client exit = %v, want Failure", rc)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.sys.Run(ctx); err != nil {
		t.Errorf("Run() error = %v, want nil", err)
	}
	if h.sys.Loops() == 0 {
		t.Error("Run() did not loop")
	}
}

func TestExtendedVerbs(t *testing.T) {
	h := newHarness(t, nil)

	h.must(t, "hostname node7")
	if got := h.must(t, "hostname"); got != "node7\n" {
		t.Errorf("hostname = %q", got)
	}
	if v := h.sys.Context().Settings.Load("", vars.Hostname, ""); v != "node7" {
		t.Errorf("saved hostname = %q, want node7", v)
	}

	if out := h.must(t, "heap"); out != "free heap: 200000 bytes\n" {
		t.Errorf("heap = %q", out)
	}

	h.must(t, "set U 1")
	h.must(t, "unset U")
	if rc, _ := h.run("unset U"); rc != command.Failure {
		t.Errorf("second unset exit = %v, want Failure", rc)
	}

	h.must(t, "log level debug")
	if out := h.must(t, "log"); out != "debug\n" {
		t.Errorf("log = %q, want debug", out)
	}
	if rc, _ := h.run("log level loud"); rc != command.Failure {
		t.Errorf("log level loud exit = %v, want Failure", rc)
	}

	h.must(t, "set TZ Europe/Berlin")
	h.must(t, "date")
	if got := h.value(vars.Output); got != "2026-01-01T01:00:00+01:00" {
		t.Errorf("date > = %q", got)
	}

	h.must(t, "ntp time.example")
	if got := h.value(vars.NTP); got != "time.example" {
		t.Errorf("NTP = %q", got)
	}
}

func TestCapabilityReload(t *testing.T) {
	h := newHarness(t, nil)
	d := h.sys.Dispatcher()
	before, ok := d.Resolve("sensor")
	if !ok {
		t.Fatal("sensor verb not resolved")
	}
	h.must(t, "cap unload sensor")
	if _, ok := d.Resolve("sensor"); ok {
		t.Error("sensor verb resolved after unload")
	}
	h.must(t, "cap load sensor")
	after, ok := d.Resolve("sensor")
	if !ok || after != before {
		t.Errorf("Resolve(sensor) after reload = %q %v, want %q", after, ok, before)
	}

	if rc, _ := h.run("cap unload fs"); rc != command.Failure {
		t.Errorf("unloading the locked fs capability exit = %v, want Failure", rc)
	}
}
