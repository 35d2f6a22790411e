package storage

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func countTables(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	row := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('aggregates', 'items', 'tags', 'item_tags')`)
	if err := row.Scan(&n); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	return n
}

func TestMigrateUpAndDown(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "trackd-test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if got := countTables(t, db); got != 4 {
		t.Fatalf("expected 4 tables after up, got %d", got)
	}

	// Up is idempotent so a second run is a no-op.
	if err := MigrateUp(db); err != nil {
		t.Fatalf("second migrate up: %v", err)
	}

	if err := MigrateDown(db); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	if got := countTables(t, db); got != 0 {
		t.Fatalf("expected 0 tables after down, got %d", got)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up after down: %v", err)
	}
	if got := countTables(t, db); got != 4 {
		t.Fatalf("expected 4 tables after re-up, got %d", got)
	}
}
