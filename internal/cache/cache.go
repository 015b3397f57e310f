// Package cache stores tracking results for a short time so repeated
// lookups of the same shipment do not start a new browser session.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/jamef_tracker/internal/tracking"
)

// Memory is an in-process TTL cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	result    *tracking.Result
	expiresAt time.Time
}

var _ tracking.Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (*tracking.Result, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !m.now().Before(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.result.Clone(), true, nil
}

func (m *Memory) Set(_ context.Context, key string, result *tracking.Result, ttl time.Duration) error {
	if ttl <= 0 || result == nil {
		return nil
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{result: result.Clone(), expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) HealthCheck(context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
