package sensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ocfu/espconsole/internal/vars"
)

// Type is the physical quantity a sensor measures.
type Type int

// Sensor types.
const (
	TypeOther Type = iota
	TypeTemperature
	TypeHumidity
	TypePressure
	TypeFlow
)

var typeNames = []string{"other", "temperature", "humidity", "pressure", "flow"}

// String returns the type name.
func (t Type) String() string {
	if int(t) >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "other"
}

// ParseType parses a type name; "temp" and "hum" are accepted as short forms.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "temp":
		return TypeTemperature, nil
	case "hum":
		return TypeHumidity, nil
	}
	for i, n := range typeNames {
		if strings.EqualFold(s, n) {
			return Type(i), nil
		}
	}
	return TypeOther, fmt.Errorf("%w: %q", ErrTypeInvalid, s)
}

// DefaultInterval is the conversion time used when a sensor sets none.
const DefaultInterval = time.Second

// Reader produces one measurement.
type Reader interface {
	Read() (float64, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func() (float64, error)

// Read implements Reader.
func (f ReaderFunc) Read() (float64, error) { return f() }

// Sensor is one registered measurement source.
type Sensor struct {
	ID       int
	Name     string
	Friendly string
	Model    string
	Unit     string
	Type     Type

	Value   float64
	Int     int64
	Valid   bool
	Updated time.Time
	Err     error

	// Min and Max bound plausible readings when Max > Min; values outside
	// are marked invalid.
	Min, Max float64
	// Resolution rounds readings to a multiple of itself when > 0.
	Resolution float64
	// Interval is the conversion time between reads.
	Interval time.Duration

	Reader Reader
}

// Display returns the friendly name, defaulting to the name.
func (s *Sensor) Display() string {
	if s.Friendly != "" {
		return s.Friendly
	}
	return s.Name
}

// Format renders the current value, or "nan" when invalid.
func (s *Sensor) Format() string {
	if !s.Valid {
		return "nan"
	}
	return strconv.FormatFloat(s.Value, 'f', -1, 64)
}

func (s *Sensor) due(now time.Time) bool {
	if s.Updated.IsZero() {
		return true
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return now.Sub(s.Updated) >= interval
}

func (s *Sensor) sample(now time.Time) {
	s.Updated = now
	v, err := s.Reader.Read()
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = ErrNoValue
	}
	if err == nil && s.Max > s.Min && (v < s.Min || v > s.Max) {
		err = fmt.Errorf("%w: %v outside %v..%v", ErrNoValue, v, s.Min, s.Max)
	}
	if err != nil {
		s.Valid = false
		s.Err = err
		return
	}
	if s.Resolution > 0 {
		v = math.Round(v/s.Resolution) * s.Resolution
	}
	s.Value = v
	s.Int = int64(math.Round(v))
	s.Valid = true
	s.Err = nil
}

// VarReader reads a float from a shell variable.
type VarReader struct {
	Store *vars.Store
	Var   string
}

// Read implements Reader.
func (r VarReader) Read() (float64, error) {
	raw, ok := r.Store.Get(r.Var)
	if !ok {
		return 0, fmt.Errorf("%w: variable %s not set", ErrNoValue, r.Var)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: variable %s = %q", ErrNoValue, r.Var, raw)
	}
	return v, nil
}
