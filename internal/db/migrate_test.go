package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func setupUnmigratedDB(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "markers.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}

func TestLatestMigrationVersion(t *testing.T) {
	v, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion: %v", err)
	}
	if v != 2 {
		t.Errorf("latest = %d, want 2", v)
	}
}

func TestMigrateUpDown(t *testing.T) {
	db, _ := setupUnmigratedDB(t)

	st, err := db.GetMigrationStatus()
	if err != nil {
		t.Fatalf("GetMigrationStatus: %v", err)
	}
	if st.Current != 0 || !st.Pending() || st.Dirty {
		t.Fatalf("fresh status = %+v", st)
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	// A second run is a no-op.
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp again: %v", err)
	}
	for _, table := range []string{"sessions", "edits", "reports", "report_rows"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %s missing after up", table)
		}
	}

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	if v, dirty, err := db.MigrateVersion(); err != nil || v != 1 || dirty {
		t.Fatalf("version after down = %d dirty=%v err=%v, want 1", v, dirty, err)
	}
	if tableExists(t, db, "reports") {
		t.Error("reports table survived down")
	}
	if !tableExists(t, db, "sessions") {
		t.Error("sessions table dropped by down")
	}

	if err := db.MigrateTo(2); err != nil {
		t.Fatalf("MigrateTo(2): %v", err)
	}
	if !tableExists(t, db, "report_rows") {
		t.Error("report_rows missing after MigrateTo(2)")
	}
}

func TestMigrateForce(t *testing.T) {
	db, _ := setupUnmigratedDB(t)
	if err := db.MigrateForce(1); err != nil {
		t.Fatalf("MigrateForce: %v", err)
	}
	v, dirty, err := db.MigrateVersion()
	if err != nil || v != 1 || dirty {
		t.Fatalf("version = %d dirty=%v err=%v, want 1 clean", v, dirty, err)
	}
	if tableExists(t, db, "sessions") {
		t.Error("force must not run migrations")
	}
}

func TestRunMigrateCommand(t *testing.T) {
	_, path := setupUnmigratedDB(t)

	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{args: []string{"status"}, want: "2 migration(s) pending"},
		{args: []string{"up"}, want: "All migrations applied"},
		{args: []string{"status"}, want: "up to date"},
		{args: []string{"version", "1"}, want: "Migrated to version 1"},
		{args: []string{"down"}, want: "Rolled back one migration"},
		{args: []string{"force", "2"}, want: "Forced version to 2"},
		{args: []string{"help"}, want: "Usage: marker-tool migrate"},
		{args: []string{"version"}, wantErr: true},
		{args: []string{"force", "x"}, wantErr: true},
		{args: []string{"sideways"}, want: "Usage:", wantErr: true},
		{args: nil, want: "Usage:", wantErr: true},
	}
	for _, tc := range tests {
		var out bytes.Buffer
		err := RunMigrateCommand(&out, tc.args, path)
		if (err != nil) != tc.wantErr {
			t.Fatalf("migrate %v: err = %v, wantErr %v", tc.args, err, tc.wantErr)
		}
		if !strings.Contains(out.String(), tc.want) {
			t.Errorf("migrate %v output %q does not contain %q", tc.args, out.String(), tc.want)
		}
	}
}
