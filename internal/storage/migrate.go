package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrateUp runs every embedded .up.sql script in lexical order.
func MigrateUp(db *sql.DB) error {
	scripts, err := migrationScripts(".up.sql")
	if err != nil {
		return err
	}
	return runScripts(db, scripts)
}

// MigrateDown runs the .down.sql scripts newest-first, unwinding the schema
// in the reverse of the order it was built.
func MigrateDown(db *sql.DB) error {
	scripts, err := migrationScripts(".down.sql")
	if err != nil {
		return err
	}
	for i, j := 0, len(scripts)-1; i < j; i, j = i+1, j-1 {
		scripts[i], scripts[j] = scripts[j], scripts[i]
	}
	return runScripts(db, scripts)
}

func migrationScripts(suffix string) ([]string, error) {
	scripts, err := fs.Glob(migrationFS, "migrations/*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(scripts)
	return scripts, nil
}

func runScripts(db *sql.DB, scripts []string) error {
	for _, script := range scripts {
		contents, err := migrationFS.ReadFile(script)
		if err != nil {
			return fmt.Errorf("read %s: %w", script, err)
		}
		if _, err := db.Exec(string(contents)); err != nil {
			return fmt.Errorf("run %s: %w", script, err)
		}
	}
	return nil
}
