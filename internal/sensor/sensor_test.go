package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ocfu/espconsole/internal/vars"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func varSensor(store *vars.Store, name, v string) *Sensor {
	return &Sensor{Name: name, Type: TypeTemperature, Unit: "C", Reader: VarReader{Store: store, Var: v}}
}

func TestAddAllocatesDenseIDs(t *testing.T) {
	store := vars.New()
	r := NewRegistry()
	for _, n := range []string{"a", "b", "c"} {
		if _, err := r.Add(varSensor(store, n, "X")); err != nil {
			t.Fatalf("Add(%s) error = %v", n, err)
		}
	}
	if err := r.Remove("b"); err != nil {
		t.Fatal(err)
	}
	id, err := r.Add(varSensor(store, "d", "X"))
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("Add() id = %d, want reused id 1", id)
	}

	var names []string
	for _, s := range r.List() {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"a", "d", "c"}, names); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestAddErrors(t *testing.T) {
	store := vars.New()
	r := NewRegistry()
	if _, err := r.Add(varSensor(store, "t1", "T")); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		s    *Sensor
		want error
	}{
		{"duplicate", varSensor(store, "t1", "T"), ErrSensorExists},
		{"bad name", varSensor(store, "t 2", "T"), ErrNameInvalid},
		{"no reader", &Sensor{Name: "t3"}, ErrNoReader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Add(tt.s); !errors.Is(err, tt.want) {
				t.Errorf("Add() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUpdateRespectsInterval(t *testing.T) {
	store := vars.New()
	r := NewRegistry()
	s := varSensor(store, "temp", "T")
	s.Interval = 2 * time.Second
	s.Resolution = 0.5
	if _, err := r.Add(s); err != nil {
		t.Fatal(err)
	}

	_ = store.Set("T", "21.3")
	r.Update(t0)
	if !s.Valid || s.Value != 21.5 || s.Int != 22 {
		t.Fatalf("after first Update: valid=%v value=%v int=%v", s.Valid, s.Value, s.Int)
	}

	_ = store.Set("T", "25")
	r.Update(t0.Add(time.Second))
	if s.Value != 21.5 {
		t.Errorf("sensor re-read before its interval: %v", s.Value)
	}
	r.Update(t0.Add(2 * time.Second))
	if s.Value != 25 {
		t.Errorf("Value = %v, want 25", s.Value)
	}

	_ = store.Set("T", "warm")
	r.Update(t0.Add(4 * time.Second))
	if s.Valid || !errors.Is(s.Err, ErrNoValue) {
		t.Errorf("unparseable variable: valid=%v err=%v", s.Valid, s.Err)
	}
	if s.Format() != "nan" {
		t.Errorf("Format() = %q, want nan", s.Format())
	}
}

func TestRangeMarksInvalid(t *testing.T) {
	r := NewRegistry()
	s := &Sensor{Name: "hum", Min: 0, Max: 100, Reader: ReaderFunc(func() (float64, error) { return 130, nil })}
	if _, err := r.Add(s); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Read("hum", t0); !errors.Is(err, ErrNoValue) {
		t.Errorf("Read() error = %v, want ErrNoValue", err)
	}
}

func TestReadAndLookup(t *testing.T) {
	store := vars.New()
	_ = store.Set("P", "1013.25")
	r := NewRegistry()
	if _, err := r.Add(varSensor(store, "press", "P")); err != nil {
		t.Fatal(err)
	}
	s, err := r.Read("0", t0)
	if err != nil {
		t.Fatalf("Read(0) error = %v", err)
	}
	if s.Format() != "1013.25" {
		t.Errorf("Format() = %q, want 1013.25", s.Format())
	}
	if _, err := r.Read("nope", t0); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Read(nope) error = %v, want ErrSensorNotFound", err)
	}

	if err := r.Rename(0, "pressure"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.ByName("pressure"); !ok {
		t.Error("renamed sensor not found by its new name")
	}
	if err := r.Rename(9, "x"); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Rename(9) error = %v, want ErrSensorNotFound", err)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
		ok   bool
	}{
		{"temperature", TypeTemperature, true},
		{"temp", TypeTemperature, true},
		{"HUM", TypeHumidity, true},
		{"flow", TypeFlow, true},
		{"colour", TypeOther, false},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseType(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}
