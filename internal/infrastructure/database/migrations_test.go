package database

import (
	"context"
	"embed"
	"io/fs"
	"testing"
	"testing/fstest"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

func testMigrations(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(testMigrationsFS, "testdata")
	if err != nil {
		t.Fatalf("fs.Sub: %v", err)
	}
	return sub
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations(t)

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "sample_counters") {
		t.Fatal("sample_counters not created")
	}

	status, err := db.Status(ctx, fsys)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status.Applied) != 1 || len(status.Pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 1 and 0", len(status.Applied), len(status.Pending))
	}
	if status.Current() != "20260101_000000" {
		t.Errorf("Current() = %q", status.Current())
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations(t)

	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() on empty schema error = %v", err)
	}
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "sample_counters") {
		t.Error("sample_counters still exists after MigrateDown()")
	}

	status, err := db.Status(ctx, fsys)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Current() != "" || len(status.Pending) != 1 {
		t.Errorf("status after rollback = %+v", status)
	}
}

func TestMigrateDownWithoutDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260101_000000_only_up.up.sql": {Data: []byte("CREATE TABLE only_up (id INTEGER);")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err == nil {
		t.Fatal("MigrateDown() should fail without down SQL")
	}
}

func TestMigrateEmptyFS(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(context.Background(), fstest.MapFS{}); err != nil {
		t.Fatalf("Migrate() with no migrations error = %v", err)
	}
}

func TestMigrateBrokenSQL(t *testing.T) {
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLEX nope;")},
	}

	if err := db.Migrate(context.Background(), fsys); err == nil {
		t.Fatal("Migrate() expected error for broken SQL")
	}

	status, err := db.Status(context.Background(), fsys)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status.Applied) != 1 || len(status.Pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1 and 1", len(status.Applied), len(status.Pending))
	}
	if status.Pending[0].Name != "broken" {
		t.Errorf("pending = %q, want broken", status.Pending[0].Name)
	}
}

func TestParseMigrationFile(t *testing.T) {
	tests := []struct {
		filename string
		want     migrationFile
		wantOK   bool
	}{
		{"20260301_090000_devices.up.sql", migrationFile{"20260301_090000", "devices", true}, true},
		{"20260301_090100_catalog_stock.down.sql", migrationFile{"20260301_090100", "catalog_stock", false}, true},
		{"20260301_090000.up.sql", migrationFile{"20260301_090000", "20260301_090000", true}, true},
		{"20260301_090000_devices.sql", migrationFile{}, false},
		{"readme.md", migrationFile{}, false},
		{"nounderscore.up.sql", migrationFile{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := parseMigrationFile(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseMigrationFile(%q) = %+v, want %+v", tt.filename, got, tt.want)
			}
		})
	}
}
