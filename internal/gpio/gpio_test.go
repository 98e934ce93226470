package gpio

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/vars"
)

type recorder struct {
	lines  []string
	locals []map[string]string
}

func (r *recorder) Exec(line string, locals map[string]string) command.Exit {
	r.lines = append(r.lines, line)
	r.locals = append(r.locals, locals)
	return command.Success
}

type harness struct {
	sim   *platform.Sim
	pins  *platform.MemoryPins
	mgr   *Manager
	exec  *recorder
	store *vars.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sim := platform.NewSim()
	rec := &recorder{}
	store := vars.New()
	tracker := NewTracker(sim.Pins(), sim.PinCount())
	return &harness{
		sim:   sim,
		pins:  sim.MemoryPins(),
		mgr:   NewManager(tracker, rec, store, sim.Now),
		exec:  rec,
		store: store,
	}
}

// step advances the clock and ticks the devices once.
func (h *harness) step(d time.Duration) {
	h.sim.Advance(d)
	h.mgr.Loop(h.sim.Now())
}

func (h *harness) create(t *testing.T, spec Spec) Device {
	t.Helper()
	d, err := h.mgr.Create(spec)
	if err != nil {
		t.Fatalf("Create(%+v) error = %v", spec, err)
	}
	return d
}

func watch(d Device) *[]string {
	var evs []string
	d.AddCallback(func(_ Device, ev Event, _ string) { evs = append(evs, ev.String()) })
	return &evs
}

func TestTrackerModes(t *testing.T) {
	sim := platform.NewSim()
	tr := NewTracker(sim.Pins(), sim.PinCount())

	if err := tr.SetMode(40, ModeInput); !errors.Is(err, ErrPinInvalid) {
		t.Errorf("SetMode(40) error = %v, want ErrPinInvalid", err)
	}
	if err := tr.SetMode(3, ModeVirtual); !errors.Is(err, ErrModeInvalid) {
		t.Errorf("SetMode(3, virtual) error = %v, want ErrModeInvalid", err)
	}
	if err := tr.SetMode(120, ModeOutput); err != nil {
		t.Fatalf("SetMode(120) error = %v", err)
	}
	if p, _ := tr.Get(120); p.Mode != ModeVirtual {
		t.Errorf("virtual pin mode = %v, want virtual", p.Mode)
	}

	if err := tr.SetMode(4, ModeInput); err != nil {
		t.Fatalf("SetMode(4) error = %v", err)
	}
	if err := tr.Write(4, true); err != nil {
		t.Fatalf("Write(4) error = %v", err)
	}
	if p, _ := tr.Get(4); p.Mode != ModeOutput || !p.State {
		t.Errorf("after Write pin 4 = %+v, want output high", p)
	}
	if _, err := tr.Read(4); err != nil {
		t.Fatalf("Read(4) error = %v", err)
	}
	if p, _ := tr.Get(4); p.Mode != ModeInput {
		t.Errorf("after Read pin 4 mode = %v, want input", p.Mode)
	}
}

func TestTrackerInversion(t *testing.T) {
	sim := platform.NewSim()
	tr := NewTracker(sim.Pins(), sim.PinCount())
	if err := tr.SetInverted(6, true); err != nil {
		t.Fatal(err)
	}
	if err := tr.Write(6, true); err != nil {
		t.Fatal(err)
	}
	if sim.MemoryPins().Level(6) {
		t.Error("inverted logical high drove the pin high")
	}
	if p, _ := tr.Get(6); !p.State {
		t.Error("stored state is not the logical state")
	}

	if err := tr.SetMode(6, ModeInput); err != nil {
		t.Fatal(err)
	}
	sim.MemoryPins().SetLevel(6, false)
	got, err := tr.Read(6)
	if err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("Read() of inverted low = false, want true")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"in", ModeInput, false},
		{"OUT", ModeOutput, false},
		{"pullup", ModeInputPullUp, false},
		{"od", ModeOpenDrain, false},
		{"sideways", ModeUnset, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSection(t *testing.T) {
	canonical := []Event{EventSingle}
	cmd := "set B $VALUE #long led l1 on #reset reboot -f"
	tests := []struct {
		ev   Event
		want string
	}{
		{EventSingle, "set B $VALUE"},
		{EventLong, "led l1 on"},
		{EventReset, "reboot -f"},
		{EventDouble, ""},
	}
	for _, tt := range tests {
		t.Run(tt.ev.String(), func(t *testing.T) {
			if got := Section(cmd, tt.ev, canonical); got != tt.want {
				t.Errorf("Section(%v) = %q, want %q", tt.ev, got, tt.want)
			}
		})
	}

	if got := Section("echo a#b", EventSingle, canonical); got != "echo a#b" {
		t.Errorf("embedded # split the command: %q", got)
	}
	if got := Section("echo #nope", EventSingle, canonical); got != "echo #nope" {
		t.Errorf("unknown marker split the command: %q", got)
	}
}

func TestButtonSinglePress(t *testing.T) {
	h := newHarness(t)
	h.create(t, Spec{Pin: 2, Type: TypeButton, Name: "btn1", Cmd: "set B pressed"})
	h.step(0)

	h.pins.SetLevel(2, true)
	h.step(0)
	h.pins.SetLevel(2, false)
	h.step(150 * time.Millisecond)
	h.step(100 * time.Millisecond)
	if len(h.exec.lines) != 0 {
		t.Fatalf("command ran inside the multi-press window: %v", h.exec.lines)
	}
	h.step(150 * time.Millisecond)
	h.step(2 * time.Second)

	if diff := cmp.Diff([]string{"set B pressed"}, h.exec.lines); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if got := h.exec.locals[0]["VALUE"]; got != "1" {
		t.Errorf("VALUE = %q, want 1", got)
	}
}

func pulse(h *harness, pin int, high, low time.Duration) {
	h.pins.SetLevel(pin, true)
	h.step(0)
	h.step(high)
	h.pins.SetLevel(pin, false)
	h.step(0)
	h.step(low)
}

func TestButtonCounting(t *testing.T) {
	tests := []struct {
		name    string
		presses int
		want    []string
	}{
		{"single", 1, []string{"pressed", "single", "cleared"}},
		{"double", 2, []string{"pressed", "pressed", "double", "cleared"}},
		{"triple", 3, []string{"pressed", "pressed", "pressed", "multi", "cleared"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			d := h.create(t, Spec{Pin: 2, Type: TypeButton, Name: "b"})
			evs := watch(d)
			h.step(0)
			for i := 0; i < tt.presses; i++ {
				pulse(h, 2, 150*time.Millisecond, 120*time.Millisecond)
			}
			h.step(300 * time.Millisecond)
			h.step(2 * time.Second)
			if diff := cmp.Diff(tt.want, *evs); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestButtonGlitchIgnored(t *testing.T) {
	h := newHarness(t)
	d := h.create(t, Spec{Pin: 2, Type: TypeButton, Name: "b"})
	evs := watch(d)
	h.step(0)
	pulse(h, 2, 50*time.Millisecond, 0)
	h.step(3 * time.Second)
	if diff := cmp.Diff([]string{"pressed"}, *evs); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if d.Value() != 0 {
		t.Errorf("Value() = %d, want 0", d.Value())
	}
}

func TestButtonLongPressAndReset(t *testing.T) {
	h := newHarness(t)
	var reboots []bool
	h.mgr.SetReboot(func(force bool) { reboots = append(reboots, force) })
	d := h.create(t, Spec{Pin: 0, Type: TypeReset, Name: "rst", Extra: "3000"})
	evs := watch(d)
	h.step(0)

	h.pins.SetLevel(0, true)
	h.step(0)
	h.step(3 * time.Second)
	h.pins.SetLevel(0, false)
	h.step(10 * time.Millisecond)

	if diff := cmp.Diff([]string{"pressed", "long", "reset"}, *evs); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]bool{true}, reboots); diff != "" {
		t.Errorf("reboots mismatch (-want +got):\n%s", diff)
	}
}

func TestDegradedSuppressesCallbacks(t *testing.T) {
	h := newHarness(t)
	h.mgr.SetDegraded(func() bool { return true })
	var reboots int
	h.mgr.SetReboot(func(bool) { reboots++ })
	btn := h.create(t, Spec{Pin: 2, Type: TypeButton, Name: "b", Cmd: "set B 1"})
	rst := h.create(t, Spec{Pin: 3, Type: TypeReset, Name: "r", Extra: "1000"})
	btnEvs, rstEvs := watch(btn), watch(rst)
	h.step(0)

	pulse(h, 2, 150*time.Millisecond, 300*time.Millisecond)
	h.pins.SetLevel(3, true)
	h.step(0)
	h.step(time.Second)
	h.pins.SetLevel(3, false)
	h.step(0)

	if len(*btnEvs) != 0 || len(h.exec.lines) != 0 {
		t.Errorf("button callbacks ran in degraded mode: %v %v", *btnEvs, h.exec.lines)
	}
	if diff := cmp.Diff([]string{"reset"}, *rstEvs); diff != "" {
		t.Errorf("reset events mismatch (-want +got):\n%s", diff)
	}
	if reboots != 1 {
		t.Errorf("reboots = %d, want 1", reboots)
	}
}

func TestContactDebounce(t *testing.T) {
	h := newHarness(t)
	d := h.create(t, Spec{Pin: 5, Type: TypeContact, Name: "door", Cmd: "set D $STATE", Extra: "100"})
	evs := watch(d)
	h.step(0)

	h.pins.SetLevel(5, true)
	h.step(0)
	h.step(150 * time.Millisecond)
	// bounce shorter than the debounce
	h.pins.SetLevel(5, false)
	h.step(0)
	h.step(50 * time.Millisecond)
	h.pins.SetLevel(5, true)
	h.step(0)
	h.step(200 * time.Millisecond)
	h.pins.SetLevel(5, false)
	h.step(0)
	h.step(150 * time.Millisecond)

	if diff := cmp.Diff([]string{"close", "open"}, *evs); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"set D $STATE", "set D $STATE"}, h.exec.lines); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if h.exec.locals[0]["STATE"] != "1" || h.exec.locals[1]["STATE"] != "0" {
		t.Errorf("STATE locals = %q, %q, want 1, 0", h.exec.locals[0]["STATE"], h.exec.locals[1]["STATE"])
	}
}

func TestCounterCounts(t *testing.T) {
	h := newHarness(t)
	d := h.create(t, Spec{Pin: 7, Type: TypeCounter, Name: "flow", Cmd: "set C $COUNTER", Extra: "0"})
	h.step(0)
	for i := 0; i < 3; i++ {
		h.pins.SetLevel(7, true)
		h.step(time.Millisecond)
		h.step(time.Millisecond)
		h.pins.SetLevel(7, false)
		h.step(time.Millisecond)
		h.step(time.Millisecond)
	}
	if d.Value() != 3 {
		t.Errorf("Value() = %d, want 3", d.Value())
	}
	if len(h.exec.lines) != 3 {
		t.Fatalf("commands = %v, want 3 close commands", h.exec.lines)
	}
	if got := h.exec.locals[2]["COUNTER"]; got != "3" {
		t.Errorf("COUNTER = %q, want 3", got)
	}
}

func TestRelayOffTimer(t *testing.T) {
	h := newHarness(t)
	h.create(t, Spec{Pin: 12, Type: TypeRelay, Name: "r1"})
	r, err := h.mgr.Relay("r1")
	if err != nil {
		t.Fatal(err)
	}
	evs := watch(r)
	r.SetOffTimer(500 * time.Millisecond)
	r.On()
	if !h.pins.Level(12) {
		t.Fatal("relay on did not drive the pin")
	}
	h.step(400 * time.Millisecond)
	if !r.State() {
		t.Fatal("relay switched off before the off timer")
	}
	h.step(200 * time.Millisecond)
	if r.State() || h.pins.Level(12) {
		t.Error("relay still on after the off timer")
	}
	if diff := cmp.Diff([]string{"on", "off"}, *evs); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestRelayDefaultOn(t *testing.T) {
	h := newHarness(t)
	h.create(t, Spec{Pin: 13, Type: TypeRelay, Name: "r2", Extra: "1"})
	r, _ := h.mgr.Relay("r2")
	if !r.State() || !r.Default() {
		t.Errorf("State() = %v, Default() = %v, want both true", r.State(), r.Default())
	}
	if _, err := h.mgr.LED("r2"); !errors.Is(err, ErrWrongType) {
		t.Errorf("LED(relay) error = %v, want ErrWrongType", err)
	}
}

func TestLEDBlinkAndFlash(t *testing.T) {
	h := newHarness(t)
	h.create(t, Spec{Pin: 15, Type: TypeLED, Name: "l1"})
	l, _ := h.mgr.LED("l1")

	if err := l.Blink(100*time.Millisecond, 50, h.sim.Now()); err != nil {
		t.Fatal(err)
	}
	var got []bool
	for i := 0; i < 4; i++ {
		got = append(got, h.pins.Level(15))
		h.step(50 * time.Millisecond)
	}
	if diff := cmp.Diff([]bool{true, false, true, false}, got); diff != "" {
		t.Errorf("blink levels mismatch (-want +got):\n%s", diff)
	}

	l.On()
	if err := l.FlashPattern("busy", h.sim.Now()); err != nil {
		t.Fatal(err)
	}
	h.step(125 * time.Millisecond)
	if l.Lit() {
		t.Error("LED lit in the off phase of a flash")
	}
	h.step(750 * time.Millisecond)
	if !l.Lit() || !l.State() {
		t.Error("flash did not restore the on state")
	}

	if err := l.BlinkPattern("disco", h.sim.Now()); !errors.Is(err, ErrModeInvalid) {
		t.Errorf("BlinkPattern(disco) error = %v, want ErrModeInvalid", err)
	}
}

func TestAnalogSampling(t *testing.T) {
	h := newHarness(t)
	h.pins.SetAnalog(34, 512)
	d := h.create(t, Spec{Pin: 34, Type: TypeAnalog, Name: "light", Cmd: "set L $VALUE", Extra: "200"})
	h.step(0)
	if got := h.store.Value("light"); got != "512" {
		t.Errorf("light = %q, want 512", got)
	}

	h.pins.SetAnalog(34, 600)
	h.step(100 * time.Millisecond)
	if d.Value() != 512 {
		t.Errorf("sampled before the period: %d", d.Value())
	}
	h.step(100 * time.Millisecond)
	if d.Value() != 600 {
		t.Errorf("Value() = %d, want 600", d.Value())
	}
	if len(h.exec.lines) != 2 {
		t.Errorf("commands = %v, want two value events", h.exec.lines)
	}

	a := d.(*Analog)
	a.SetPeriod(10 * time.Millisecond)
	if a.Period() != MinAnalogPeriod {
		t.Errorf("Period() = %v, want %v", a.Period(), MinAnalogPeriod)
	}
}

func TestVirtualAndLet(t *testing.T) {
	h := newHarness(t)
	v := h.create(t, Spec{Pin: 101, Type: TypeVirtual, Name: "v1", Cmd: "set V $STATE"})
	h.step(0)

	if err := h.mgr.Tracker().Write(100, true); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		expr []string
		want bool
	}{
		{[]string{"100"}, true},
		{[]string{"!100"}, false},
		{[]string{"!", "100"}, false},
		{[]string{"100", "&", "102"}, false},
		{[]string{"100", "|", "102"}, true},
		{[]string{"100", "^", "v1"}, true},
	}
	for _, tt := range tests {
		got, err := h.mgr.Let("103", tt.expr)
		if err != nil {
			t.Fatalf("Let(%v) error = %v", tt.expr, err)
		}
		if got != tt.want {
			t.Errorf("Let(%v) = %v, want %v", tt.expr, got, tt.want)
		}
	}

	if _, err := h.mgr.Let("v1", []string{"100"}); err != nil {
		t.Fatal(err)
	}
	h.step(time.Millisecond)
	if !v.State() {
		t.Error("virtual device did not follow its pin")
	}
	if diff := cmp.Diff([]string{"set V $STATE"}, h.exec.lines); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	if _, err := h.mgr.Let("103", []string{"100", "%", "101"}); !errors.Is(err, ErrModeInvalid) {
		t.Errorf("Let(bad op) error = %v, want ErrModeInvalid", err)
	}
}

func TestCreateErrors(t *testing.T) {
	h := newHarness(t)
	h.create(t, Spec{Pin: 5, Type: TypeLED, Name: "led1"})
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{"duplicate name", Spec{Pin: 6, Type: TypeLED, Name: "led1"}, ErrDeviceExists},
		{"pin in use", Spec{Pin: 5, Type: TypeRelay, Name: "r"}, ErrPinInUse},
		{"invalid pin", Spec{Pin: 60, Type: TypeRelay, Name: "r"}, ErrPinInvalid},
		{"invalid name", Spec{Pin: 6, Type: TypeRelay, Name: "a-b"}, ErrNameInvalid},
		{"analog on virtual", Spec{Pin: 110, Type: TypeAnalog, Name: "a"}, ErrPinInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.mgr.Create(tt.spec); !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAddDeleteAddRoundTrip(t *testing.T) {
	fresh := newHarness(t)
	fresh.create(t, Spec{Pin: 5, Type: TypeLED, Name: "name1"})
	wantPin, _ := fresh.mgr.Tracker().Get(5)

	h := newHarness(t)
	d := h.create(t, Spec{Pin: 5, Type: TypeLED, Name: "name1"})
	d.(*LED).On()
	if err := h.mgr.Delete("name1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.mgr.Get("name1"); ok {
		t.Fatal("device still present after Delete")
	}
	if err := h.mgr.Delete("name1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
	again := h.create(t, Spec{Pin: 5, Type: TypeLED, Name: "name1"})

	gotPin, _ := h.mgr.Tracker().Get(5)
	if diff := cmp.Diff(wantPin, gotPin); diff != "" {
		t.Errorf("pin record mismatch (-want +got):\n%s", diff)
	}
	if again.Status() != "off" || h.mgr.Len() != 1 {
		t.Errorf("re-created device Status() = %q, Len() = %d", again.Status(), h.mgr.Len())
	}
}

func TestDeleteDuringLoop(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, Spec{Pin: 101, Type: TypeVirtual, Name: "a"})
	h.create(t, Spec{Pin: 102, Type: TypeVirtual, Name: "b"})
	a.AddCallback(func(Device, Event, string) {
		if err := h.mgr.Delete("b"); err != nil {
			t.Errorf("Delete(b) error = %v", err)
		}
	})
	_ = h.mgr.Tracker().Write(101, true)
	_ = h.mgr.Tracker().Write(102, true)
	h.step(0)
	if _, ok := h.mgr.Get("b"); ok {
		t.Error("b survived deletion from a callback")
	}
}

func TestISRCounts(t *testing.T) {
	h := newHarness(t)
	isr := h.mgr.ISR()
	if err := isr.Attach(3, 4, 0); !errors.Is(err, ErrISRInvalid) {
		t.Errorf("Attach(3) error = %v, want ErrISRInvalid", err)
	}
	if err := isr.Attach(0, 4, 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	h.pins.SetLevel(4, true)
	h.pins.SetLevel(4, false)
	h.pins.SetLevel(4, true) // inside the debounce
	h.sim.Advance(60 * time.Millisecond)
	h.pins.SetLevel(4, false)
	h.pins.SetLevel(4, true)

	if got := isr.Count(0); got != 2 {
		t.Errorf("Count(0) = %d, want 2", got)
	}
	isr.Reset(0)
	if got := isr.Count(0); got != 0 {
		t.Errorf("Count(0) after Reset = %d, want 0", got)
	}
	if err := isr.Detach(0); err != nil {
		t.Fatal(err)
	}
	if isr.Pin(0) != -1 {
		t.Errorf("Pin(0) after Detach = %d, want -1", isr.Pin(0))
	}
}
