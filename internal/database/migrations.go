package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

// Migration is one embedded schema file. Version is the file name.
type Migration struct {
	Version string
	SQL     string
}

// PendingMigrations returns the .sql files of dir that are not in applied,
// ordered by version.
func PendingMigrations(fsys fs.FS, dir string, applied []string) ([]Migration, error) {
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	var pending []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") || done[e.Name()] {
			continue
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		pending = append(pending, Migration{Version: e.Name(), SQL: string(content)})
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })
	return pending, nil
}

// ScanVersions reads a result set of a single version column.
func ScanVersions(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}

// MigrationLogger is the logger of the migration runners, tagged with the backend name.
func MigrationLogger(backend string) *slog.Logger {
	return slog.With("component", "migrations", "backend", backend)
}
