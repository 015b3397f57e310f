// Package postgres implements the lookup log on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/jamef_tracker/internal/storage"
	"github.com/R3E-Network/jamef_tracker/internal/storage/migrations"
)

const maxRecent = 500

// Store implements storage.LookupStore backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.LookupStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, applies migrations and returns a Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := migrations.Apply(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Record(ctx context.Context, l storage.Lookup) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO tracking_lookups
			(id, nf, cnpj, success, cached, error_code, error, duration_ms, trace_id, created_at)
		VALUES
			(:id, :nf, :cnpj, :success, :cached, :error_code, :error, :duration_ms, :trace_id, :created_at)
	`, l)
	if err != nil {
		return fmt.Errorf("insert lookup: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, oldest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]storage.Lookup, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}

	var rows []storage.Lookup
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, nf, cnpj, success, cached, error_code, error, duration_ms, trace_id, created_at
		FROM tracking_lookups
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list lookups: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if rows == nil {
		rows = []storage.Lookup{}
	}
	return rows, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
