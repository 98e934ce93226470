// Package database provides SQLite storage for the console runtime.
//
// It holds the sensor history (see internal/history) and manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations read from an fs.FS (normally migrations.FS)
//   - Health checks and lifecycle management
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named NNNN_description.up.sql and
// NNNN_description.down.sql and are applied in version order.
package database
