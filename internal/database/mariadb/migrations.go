package mariadb

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// splitStatements splits a migration file into single statements. The driver
// runs one statement per Exec unless multiStatements is enabled in the DSN.
func splitStatements(content string) []string {
	var stmts []string
	for _, part := range strings.Split(content, ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Migrate applies pending migrations. DDL in MariaDB commits implicitly, so
// each file is recorded only after all its statements succeeded.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	log := database.MigrationLogger("mariadb")
	applied, err := p.MigrationsApplied(ctx)
	if err != nil {
		return err
	}
	pending, err := database.PendingMigrations(migrationsFS, "migrations", applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Debug("schema up to date", "applied", len(applied))
		return nil
	}

	for _, m := range pending {
		for _, stmt := range splitStatements(m.SQL) {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute migration %s: %w", m.Version, err)
			}
		}
		if _, err := p.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.Version, err)
		}
		log.Info("applied migration", "version", m.Version)
	}
	return nil
}

// MigrationsApplied returns the applied migration versions in order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	return database.ScanVersions(rows)
}
