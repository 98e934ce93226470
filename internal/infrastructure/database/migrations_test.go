package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"0001_samples.up.sql":   {Data: []byte("CREATE TABLE samples (v REAL);")},
		"0001_samples.down.sql": {Data: []byte("DROP TABLE samples;")},
		"0002_extra.up.sql":     {Data: []byte("CREATE TABLE extra (id INTEGER); CREATE INDEX idx_extra ON extra (id);")},
		"0002_extra.down.sql":   {Data: []byte("DROP TABLE extra;")},
		"README.md":             {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	n, err := db.Migrate(ctx, testMigrations())
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied = %d, want 2", n)
	}
	if !tableExists(t, db, "samples") || !tableExists(t, db, "extra") {
		t.Error("migrated tables missing")
	}

	n, err = db.Migrate(ctx, testMigrations())
	if err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second Migrate() applied = %d, want 0", n)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	fsys := fstest.MapFS{
		"0001_ok.up.sql":  {Data: []byte("CREATE TABLE ok (x INTEGER);")},
		"0002_bad.up.sql": {Data: []byte("CREATE TABLE bad (x INTEGER); NOT SQL;")},
	}
	n, err := db.Migrate(ctx, fsys)
	if err == nil {
		t.Fatal("Migrate() expected error")
	}
	if n != 1 {
		t.Errorf("Migrate() applied = %d, want 1", n)
	}
	if tableExists(t, db, "bad") {
		t.Error("failed migration left table behind")
	}
}

func TestMigrateDown(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if _, err := db.Migrate(ctx, testMigrations()); err != nil {
		t.Fatal(err)
	}

	if err := db.MigrateDown(ctx, testMigrations()); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "extra") {
		t.Error("extra should be dropped")
	}
	if !tableExists(t, db, "samples") {
		t.Error("samples should remain")
	}

	n, err := db.Migrate(ctx, testMigrations())
	if err != nil || n != 1 {
		t.Errorf("re-Migrate() = %d, %v, want 1, nil", n, err)
	}
}

func TestLoadMigrations(t *testing.T) {
	got, err := LoadMigrations(testMigrations())
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(got) != 2 || got[0].Version != "0001" || got[1].Name != "extra" {
		t.Errorf("LoadMigrations() = %+v", got)
	}

	_, err = LoadMigrations(fstest.MapFS{"0003_orphan.down.sql": {Data: []byte("x")}})
	if err == nil {
		t.Error("LoadMigrations() with only a down file should fail")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file    string
		version string
		name    string
		up      bool
		ok      bool
	}{
		{"0001_sensor_history.up.sql", "0001", "sensor_history", true, true},
		{"0001_sensor_history.down.sql", "0001", "sensor_history", false, true},
		{"0001.up.sql", "", "", false, false},
		{"abc_x.up.sql", "", "", false, false},
		{"0001_x.sql", "", "", false, false},
		{"0001_x.up.txt", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			v, n, up, ok := parseMigrationFilename(tt.file)
			if v != tt.version || n != tt.name || up != tt.up || ok != tt.ok {
				t.Errorf("parseMigrationFilename(%q) = %q, %q, %v, %v, want %q, %q, %v, %v",
					tt.file, v, n, up, ok, tt.version, tt.name, tt.up, tt.ok)
			}
		})
	}
}
