// Package store persists agents and their executions in PostgreSQL
// (lib/pq) or SQLite (modernc.org/sqlite) through database/sql.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alghanim/agentpulse/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Dialects understood by Store.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// Store wraps a *sql.DB and rewrites queries for the configured dialect.
type Store struct {
	db      *sql.DB
	dialect string
	logger  *zap.Logger
	now     func() time.Time
}

// Open connects using cfg, waits for the server to answer and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open(cfg.Driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := New(db, cfg.Driver, logger)
	switch cfg.Driver {
	case DialectSQLite:
		// one connection: in-memory databases are per-connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	default:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	// Retry connection (postgres may still be starting)
	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		logger.Warn("waiting for database", zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("connected to database", zap.String("driver", cfg.Driver))

	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database. The caller owns schema setup.
func New(db *sql.DB, dialect string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, dialect: dialect, logger: logger, now: time.Now}
}

// Migrate applies the embedded schema for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	s.logger.Info("database schema applied")
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// rebind turns $1..$n placeholders into ? for SQLite. Queries must use each
// placeholder exactly once and in order.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectSQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}
