package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ocfu/espconsole/internal/infrastructure/database"
	"github.com/ocfu/espconsole/internal/sensor"
	"github.com/ocfu/espconsole/migrations"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func openRepo(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewRepository(db.DB)
}

func TestRecordAndRecent(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	for i := 0; i < 5; i++ {
		s := Sample{Sensor: "temp", Value: float64(20 + i), Valid: true, Time: t0.Add(time.Duration(i) * time.Minute)}
		if err := repo.Record(ctx, s); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := repo.Record(ctx, Sample{Sensor: "hum", Value: 50, Time: t0}); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Recent(ctx, "temp", 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	want := []Sample{
		{Sensor: "temp", Value: 24, Valid: true, Time: t0.Add(4 * time.Minute)},
		{Sensor: "temp", Value: 23, Valid: true, Time: t0.Add(3 * time.Minute)},
		{Sensor: "temp", Value: 22, Valid: true, Time: t0.Add(2 * time.Minute)},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}

	if err := repo.Record(ctx, Sample{}); err == nil {
		t.Error("Record() without a sensor name succeeded")
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	for i := 0; i < 6; i++ {
		_ = repo.Record(ctx, Sample{Sensor: "flow", Value: float64(i), Valid: true, Time: t0.Add(time.Duration(i) * time.Second)})
	}
	n, err := repo.Prune(ctx, "flow", 2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Prune() = %d, want 4", n)
	}
	got, _ := repo.Recent(ctx, "flow", 10)
	if len(got) != 2 || got[0].Value != 5 {
		t.Errorf("after Prune() Recent() = %+v", got)
	}
	if _, err := repo.Prune(ctx, "flow", 0); err == nil {
		t.Error("Prune(0) succeeded")
	}
}

func TestRecorderInterval(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	rc := NewRecorder(repo, time.Minute, 3)
	sensors := []*sensor.Sensor{
		{Name: "temp", Value: 21, Valid: true, Updated: t0},
		{Name: "never"},
	}
	if n := rc.Tick(ctx, t0, sensors); n != 1 {
		t.Errorf("Tick() = %d, want 1", n)
	}
	if n := rc.Tick(ctx, t0.Add(30*time.Second), sensors); n != 0 {
		t.Errorf("Tick() inside the interval = %d, want 0", n)
	}
	for i := 1; i <= 4; i++ {
		rc.Tick(ctx, t0.Add(time.Duration(i)*time.Minute), sensors)
	}
	got, _ := repo.Recent(ctx, "temp", 10)
	if len(got) != 3 {
		t.Errorf("retention kept %d samples, want 3", len(got))
	}
}
