// Package history stores sensor samples in SQLite so they survive a
// reboot and can be listed with sensor hist.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ocfu/espconsole/internal/sensor"
)

const (
	defaultLimit = 10
	maxLimit     = 500
)

// Sample is one recorded sensor value.
type Sample struct {
	Sensor string
	Value  float64
	Valid  bool
	Time   time.Time
}

// Repository reads and writes the history tables.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repository over a migrated database.
//
// Parameters:
//   - db: Open SQLite connection with the sensor_samples table
//
// Returns:
//   - *Repository: Repository ready for use
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record inserts one sample.
func (r *Repository) Record(ctx context.Context, s Sample) error {
	if s.Sensor == "" {
		return fmt.Errorf("sensor name is required")
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sensor_samples (sensor, value, valid, ts) VALUES (?, ?, ?, ?)",
		s.Sensor, s.Value, s.Valid, s.Time.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting sample: %w", err)
	}
	return nil
}

// Recent returns the latest samples of a sensor, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - name: Sensor name
//   - limit: Maximum samples to return (default 10, max 500)
//
// Returns:
//   - []Sample: Samples ordered by time descending
//   - error: nil on success, otherwise the underlying query error
func (r *Repository) Recent(ctx context.Context, name string, limit int) ([]Sample, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT sensor, value, valid, ts
		 FROM sensor_samples
		 WHERE sensor = ?
		 ORDER BY ts DESC, rowid DESC
		 LIMIT ?`,
		name, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	out := make([]Sample, 0, limit)
	for rows.Next() {
		var s Sample
		var ts int64
		if err := rows.Scan(&s.Sensor, &s.Value, &s.Valid, &ts); err != nil {
			return nil, fmt.Errorf("scanning sample: %w", err)
		}
		s.Time = time.UnixMilli(ts).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating samples: %w", err)
	}
	return out, nil
}

// Prune keeps the newest keep samples of a sensor and deletes the rest.
func (r *Repository) Prune(ctx context.Context, name string, keep int) (int64, error) {
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive")
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM sensor_samples
		 WHERE sensor = ? AND rowid NOT IN (
		   SELECT rowid FROM sensor_samples WHERE sensor = ?
		   ORDER BY ts DESC, rowid DESC LIMIT ?)`,
		name, name, keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Logger defines the logging interface used by the Recorder.
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

// Recorder samples every sensor into the repository at a fixed interval.
type Recorder struct {
	repo      *Repository
	interval  time.Duration
	retention int
	last      time.Time
	logger    Logger
}

// NewRecorder creates a recorder. retention is the number of samples kept
// per sensor; 0 keeps everything.
func NewRecorder(repo *Repository, interval time.Duration, retention int) *Recorder {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Recorder{repo: repo, interval: interval, retention: retention, logger: noopLogger{}}
}

// SetLogger sets the logger for the recorder.
func (rc *Recorder) SetLogger(logger Logger) {
	rc.logger = logger
}

// Repository returns the underlying repository.
func (rc *Recorder) Repository() *Repository { return rc.repo }

// Tick records the sensors once the interval has elapsed. It returns the
// number of samples written.
func (rc *Recorder) Tick(ctx context.Context, now time.Time, sensors []*sensor.Sensor) int {
	if !rc.last.IsZero() && now.Sub(rc.last) < rc.interval {
		return 0
	}
	rc.last = now
	n := 0
	for _, s := range sensors {
		if s.Updated.IsZero() {
			continue
		}
		err := rc.repo.Record(ctx, Sample{Sensor: s.Name, Value: s.Value, Valid: s.Valid, Time: now})
		if err != nil {
			rc.logger.Error("recording sample failed", "sensor", s.Name, "error", err)
			continue
		}
		n++
		if rc.retention > 0 {
			if _, err := rc.repo.Prune(ctx, s.Name, rc.retention); err != nil {
				rc.logger.Warn("pruning samples failed", "sensor", s.Name, "error", err)
			}
		}
	}
	return n
}
