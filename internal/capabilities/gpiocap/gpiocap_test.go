package gpiocap

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/gpio"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/vars"
)

type harness struct {
	sim *platform.Sim
	ctx *capability.Context
	d   *command.Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sim := platform.NewSim()
	store := vars.New()
	d := command.New(store)
	d.SetOutput(&bytes.Buffer{})
	tracker := gpio.NewTracker(sim.Pins(), sim.PinCount())
	ctx := &capability.Context{
		Platform:   sim,
		Vars:       store,
		Dispatcher: d,
		Pins:       tracker,
		Devices:    gpio.NewManager(tracker, d, store, sim.Now),
		Started:    sim.Now(),
	}
	reg := capability.NewRegistry(ctx)
	d.AddSource(reg)
	if err := reg.Register(Name, New); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Load(Name); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return &harness{sim: sim, ctx: ctx, d: d}
}

func (h *harness) run(t *testing.T, line string) (command.Exit, string) {
	t.Helper()
	var out bytes.Buffer
	rc := h.d.Dispatch(line, &out, 0, nil)
	return rc, out.String()
}

func (h *harness) must(t *testing.T, line string) string {
	t.Helper()
	rc, out := h.run(t, line)
	if rc != command.Success {
		t.Fatalf("%q exit = %v, output %q", line, rc, out)
	}
	return out
}

func (h *harness) step(d time.Duration) {
	h.sim.Advance(d)
	h.ctx.Devices.Loop(h.sim.Now())
}

func TestAddListDelete(t *testing.T) {
	h := newHarness(t)
	h.must(t, "gpio add 5 led status 0")
	h.must(t, `gpio add 12 relay r1 0 "set R $STATE"`)

	out := h.must(t, "gpio list")
	for _, want := range []string{"status", "r1", "relay", "led"} {
		if !strings.Contains(out, want) {
			t.Errorf("gpio list = %q, missing %q", out, want)
		}
	}

	if rc, _ := h.run(t, "gpio add 5 button b1"); rc != command.Failure {
		t.Errorf("adding on a used pin exit = %v, want Failure", rc)
	}
	h.must(t, "gpio del status")
	h.must(t, "gpio add 5 led status 0")
	if h.ctx.Devices.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.ctx.Devices.Len())
	}
	if rc, _ := h.run(t, "gpio del nope"); rc != command.Failure {
		t.Errorf("gpio del nope exit = %v, want Failure", rc)
	}
}

func TestRelayVerbs(t *testing.T) {
	h := newHarness(t)
	h.must(t, "gpio add 12 relay r1 0")
	h.must(t, "relay r1 offtimer 500")
	h.must(t, "relay r1 on")
	if !h.sim.MemoryPins().Level(12) {
		t.Fatal("relay on did not drive pin 12")
	}
	h.step(600 * time.Millisecond)
	if h.sim.MemoryPins().Level(12) {
		t.Error("relay still on after the off timer")
	}

	h.must(t, "relay r1 toggle")
	h.must(t, "relay r1")
	if got := h.ctx.Vars.Value(vars.Output); got != "1" {
		t.Errorf("relay r1 > = %q, want 1", got)
	}
	if rc, _ := h.run(t, "relay r1 default maybe"); rc != command.Failure {
		t.Errorf("relay default maybe exit = %v, want Failure", rc)
	}
	if rc, _ := h.run(t, "relay nope on"); rc != command.Failure {
		t.Errorf("relay nope exit = %v, want Failure", rc)
	}
}

func TestLEDVerbs(t *testing.T) {
	h := newHarness(t)
	h.must(t, "gpio add 4 led l1 0")

	tests := []struct {
		line string
		want command.Exit
	}{
		{"led l1 on", command.Success},
		{"led l1 toggle", command.Success},
		{"led l1 blink ok", command.Success},
		{"led l1 flash error", command.Success},
		{"led l1 blink 500 20", command.Success},
		{"led l1 flash 200 50 3", command.Success},
		{"led l1 blink sparkle", command.Failure},
		{"led l1 dance", command.Failure},
		{"led nope on", command.Failure},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if rc, out := h.run(t, tt.line); rc != tt.want {
				t.Errorf("%q exit = %v, want %v (output %q)", tt.line, rc, tt.want, out)
			}
		})
	}
}

func TestSetGetAndLet(t *testing.T) {
	h := newHarness(t)
	pins := h.sim.MemoryPins()

	h.must(t, "gpio set 6 1")
	if !pins.Level(6) {
		t.Error("gpio set 6 1 did not drive the pin")
	}
	h.must(t, "gpio set 7 input")
	pins.SetLevel(7, true)
	if out := h.must(t, "gpio get 7"); out != "1\n" {
		t.Errorf("gpio get 7 = %q, want 1", out)
	}

	h.must(t, "gpio add 101 virtual v1")
	h.must(t, "gpio let v1 = 7 & 6")
	if got := h.ctx.Vars.Value(vars.Output); got != "1" {
		t.Errorf("let > = %q, want 1", got)
	}
	h.must(t, "gpio let v1 = !7")
	if got := h.ctx.Vars.Value(vars.Output); got != "0" {
		t.Errorf("let > = %q, want 0", got)
	}
	if rc, _ := h.run(t, "gpio let v1 7"); rc != command.Failure {
		t.Errorf("let without = exit = %v, want Failure", rc)
	}
}

func TestRenameAndFriendly(t *testing.T) {
	h := newHarness(t)
	h.must(t, "gpio add 3 contact door")
	h.must(t, "gpio name 3 frontdoor")
	h.must(t, `gpio fn 3 "Front door"`)
	h.must(t, "gpio deb 3 80")

	d, ok := h.ctx.Devices.Get("frontdoor")
	if !ok {
		t.Fatal("renamed device not found")
	}
	if d.Friendly() != "Front door" {
		t.Errorf("Friendly() = %q, want %q", d.Friendly(), "Front door")
	}
	if d.Debounce() != 80*time.Millisecond {
		t.Errorf("Debounce() = %v, want 80ms", d.Debounce())
	}
}

func TestButtonCommand(t *testing.T) {
	h := newHarness(t)
	h.must(t, `gpio add 2 button btn1 0 "set B pressed"`)
	pins := h.sim.MemoryPins()
	h.step(0)

	pins.SetLevel(2, true)
	h.step(0)
	pins.SetLevel(2, false)
	h.step(150 * time.Millisecond)
	h.step(250 * time.Millisecond)
	h.step(2 * time.Second)

	if got := h.ctx.Vars.Value("B"); got != "pressed" {
		t.Errorf("B = %q, want pressed", got)
	}
}
