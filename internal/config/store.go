package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store is the credential store. It persists users, API keys, usage records
// and their running aggregates, and optionally shared rate-limit windows.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewStore opens a SQLite store under dataDir. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(DatabaseConfig{Driver: string(DialectSQLite), DataDir: dataDir})
}

// Open connects to the configured database and applies migrations.
func Open(cfg DatabaseConfig) (*Store, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn, err := buildDSN(dialect, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{db: db, dialect: dialect}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", dialect, err)
	}
	return s, nil
}

func buildDSN(d Dialect, cfg DatabaseConfig) (string, error) {
	switch d {
	case DialectSQLite:
		if cfg.DSN != "" {
			return cfg.DSN, nil
		}
		if cfg.DataDir == "" {
			return ":memory:?_journal_mode=WAL", nil
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return "", fmt.Errorf("create data dir: %w", err)
		}
		return filepath.Join(cfg.DataDir, "toolnest.db") + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case DialectMySQL:
		if cfg.DSN == "" {
			return "", errors.New("mysql requires database.dsn")
		}
		// Timestamps are scanned into time.Time, which needs parseTime.
		mc, err := mysql.ParseDSN(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc.ParseTime = true
		mc.Loc = time.UTC
		// Report matched rather than changed rows so no-op updates are not
		// mistaken for missing ones.
		mc.ClientFoundRows = true
		return mc.FormatDSN(), nil
	default:
		if cfg.DSN == "" {
			return "", fmt.Errorf("%s requires database.dsn", d)
		}
		return cfg.DSN, nil
	}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the SQL backend the store is connected to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// insert runs a named INSERT and returns the generated id. Postgres has no
// LastInsertId, so it goes through RETURNING instead.
func (s *Store) insert(ctx context.Context, ext sqlx.ExtContext, q string, arg interface{}) (int64, error) {
	if s.dialect == DialectPostgres {
		rows, err := sqlx.NamedQueryContext(ctx, ext, q+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var id int64
		if rows.Next() {
			if err := rows.Scan(&id); err != nil {
				return 0, err
			}
		}
		return id, rows.Err()
	}

	result, err := sqlx.NamedExecContext(ctx, ext, q, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashAPIKey returns the hex-encoded SHA-256 hash of a raw API key string.
func HashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
