// Package storage persists the log of tracking lookups.
package storage

import (
	"context"
	"sync"
	"time"
)

// Lookup records one tracking request and how it was served.
type Lookup struct {
	ID         string    `json:"id" db:"id"`
	NF         string    `json:"nf" db:"nf"`
	CNPJ       string    `json:"cnpj" db:"cnpj"`
	Success    bool      `json:"success" db:"success"`
	Cached     bool      `json:"cached" db:"cached"`
	ErrorCode  string    `json:"error_code,omitempty" db:"error_code"`
	Error      string    `json:"error,omitempty" db:"error"`
	DurationMS int64     `json:"duration_ms" db:"duration_ms"`
	TraceID    string    `json:"trace_id,omitempty" db:"trace_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// LookupStore records and lists lookups.
type LookupStore interface {
	Record(ctx context.Context, l Lookup) error
	Recent(ctx context.Context, limit int) ([]Lookup, error)
	HealthCheck(ctx context.Context) error
}

// MemoryStore keeps the most recent lookups in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Lookup
	max     int
}

var _ LookupStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store bounded to max entries (default 200).
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 200
	}
	return &MemoryStore{max: max}
}

func (s *MemoryStore) Record(_ context.Context, l Lookup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, l)
	if len(s.entries) > s.max {
		s.entries = s.entries[len(s.entries)-s.max:]
	}
	return nil
}

// Recent returns up to limit entries, oldest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Lookup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > s.max {
		limit = s.max
	}
	start := 0
	if len(s.entries) > limit {
		start = len(s.entries) - limit
	}
	out := make([]Lookup, len(s.entries)-start)
	copy(out, s.entries[start:])
	return out, nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}
