package sensor

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ocfu/espconsole/internal/vars"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps ids to sensors.
type Registry struct {
	sensors map[int]*Sensor
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sensors: make(map[int]*Sensor), logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add registers s under the lowest free id and returns the id.
func (r *Registry) Add(s *Sensor) (int, error) {
	if !vars.ValidName(s.Name) {
		return 0, fmt.Errorf("%w: %q", ErrNameInvalid, s.Name)
	}
	if s.Reader == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoReader, s.Name)
	}
	if _, ok := r.ByName(s.Name); ok {
		return 0, fmt.Errorf("%w: %s", ErrSensorExists, s.Name)
	}
	id := 0
	for {
		if _, taken := r.sensors[id]; !taken {
			break
		}
		id++
	}
	s.ID = id
	r.sensors[id] = s
	r.logger.Info("sensor added", "id", id, "name", s.Name, "type", s.Type.String())
	return id, nil
}

// Remove unregisters the named sensor.
func (r *Registry) Remove(name string) error {
	s, ok := r.ByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSensorNotFound, name)
	}
	delete(r.sensors, s.ID)
	r.logger.Info("sensor removed", "id", s.ID, "name", name)
	return nil
}

// Get returns the sensor with id.
func (r *Registry) Get(id int) (*Sensor, bool) {
	s, ok := r.sensors[id]
	return s, ok
}

// ByName returns the named sensor.
func (r *Registry) ByName(name string) (*Sensor, bool) {
	for _, s := range r.sensors {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Lookup accepts an id or a name.
func (r *Registry) Lookup(ref string) (*Sensor, bool) {
	if s, ok := r.ByName(ref); ok {
		return s, true
	}
	if id, err := strconv.Atoi(ref); err == nil {
		return r.Get(id)
	}
	return nil, false
}

// Rename changes the name of sensor id.
func (r *Registry) Rename(id int, name string) error {
	s, ok := r.sensors[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrSensorNotFound, id)
	}
	if !vars.ValidName(name) {
		return fmt.Errorf("%w: %q", ErrNameInvalid, name)
	}
	if other, ok := r.ByName(name); ok && other != s {
		return fmt.Errorf("%w: %s", ErrSensorExists, name)
	}
	s.Name = name
	return nil
}

// List returns the sensors ordered by id.
func (r *Registry) List() []*Sensor {
	out := make([]*Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of sensors.
func (r *Registry) Len() int { return len(r.sensors) }

// Update reads every sensor whose conversion interval has elapsed.
func (r *Registry) Update(now time.Time) {
	for _, s := range r.List() {
		if !s.due(now) {
			continue
		}
		wasValid := s.Valid
		s.sample(now)
		if wasValid && !s.Valid {
			r.logger.Warn("sensor read failed", "name", s.Name, "error", s.Err)
		}
	}
}

// Read returns the current value of the referenced sensor, sampling it
// first if it was never read.
func (r *Registry) Read(ref string, now time.Time) (*Sensor, error) {
	s, ok := r.Lookup(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, ref)
	}
	if s.Updated.IsZero() {
		s.sample(now)
	}
	if !s.Valid {
		if s.Err != nil {
			return s, s.Err
		}
		return s, fmt.Errorf("%w: %s", ErrNoValue, ref)
	}
	return s, nil
}
