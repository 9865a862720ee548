package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/database"
)

// MySQL server error numbers.
const (
	erDupEntry     = 1062
	erBadDB        = 1049
	erAccessDenied = 1045
)

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// normalizeDSN forces time parsing in UTC so DATE and DATETIME columns scan into time.Time.
func normalizeDSN(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse MariaDB DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// NewPool creates a new MariaDB connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsnCfg, err := normalizeDSN(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Initialize opens the MariaDB pool, applies migrations and registers the
// store as the active backend.
func Initialize(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create MariaDB pool: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store := NewStore(pool)
	database.RegisterBackend("mariadb", store)
	return store, nil
}

// PingResult describes the outcome of EnsureDatabase.
type PingResult struct {
	Database string
	Created  bool
}

// ErrAccessDenied is returned when the server rejects the credentials.
var ErrAccessDenied = errors.New("access denied: wrong username or password")

// EnsureDatabase connects to the configured database and creates it when the
// server reports that it does not exist.
func EnsureDatabase(ctx context.Context, dsn string) (PingResult, error) {
	cfg, err := normalizeDSN(dsn)
	if err != nil {
		return PingResult{}, err
	}
	result := PingResult{Database: cfg.DBName}

	err = ping(ctx, cfg.FormatDSN())
	if err == nil {
		return result, nil
	}

	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return result, err
	}
	switch myErr.Number {
	case erAccessDenied:
		return result, ErrAccessDenied
	case erBadDB:
	default:
		return result, err
	}

	if cfg.DBName == "" {
		return result, errors.New("DSN does not name a database")
	}

	serverCfg := cfg.Clone()
	serverCfg.DBName = ""
	db, err := sql.Open("mysql", serverCfg.FormatDSN())
	if err != nil {
		return result, fmt.Errorf("failed to open MariaDB: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE DATABASE `"+cfg.DBName+"`"); err != nil {
		return result, fmt.Errorf("create database %s: %w", cfg.DBName, err)
	}
	result.Created = true
	return result, nil
}

func ping(ctx context.Context, dsn string) error {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MariaDB: %w", err)
	}
	defer db.Close()
	return db.PingContext(ctx) //nolint:wrapcheck // caller inspects *mysql.MySQLError
}

func isMySQLError(err error, number uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == number
}
