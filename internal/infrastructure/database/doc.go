// Package database provides SQLite connectivity for the telemetry core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations loaded from an fs.FS (embedded by the migrations package)
//   - Connection pool and lifecycle management
//
// SQLite holds the device registry, catalog stock records, the stock
// movement ledger and, by default, readings. Stock mutations rely on
// single-statement UPDATEs, which SQLite executes atomically.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
