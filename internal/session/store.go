// Package session keeps one wizard controller per learner session and saves
// its state through a pluggable store.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/p-n-ai/learnpath/internal/wizard"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store saves wizard state snapshots keyed by session ID.
type Store interface {
	Load(ctx context.Context, id string) (wizard.State, error)
	Save(ctx context.Context, id string, st wizard.State) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	state     wizard.State
	expiresAt time.Time
}

// MemoryStore is an in-memory Store with the same expiry rules as RedisStore.
type MemoryStore struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
	mu      sync.RWMutex
}

// NewMemoryStore creates an in-memory store. A zero ttl never expires.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (wizard.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		return wizard.State{}, ErrNotFound
	}
	return e.state.Clone(), nil
}

// Save stores st and refreshes the expiry.
func (s *MemoryStore) Save(_ context.Context, id string, st wizard.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{state: st.Clone()}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[id] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}
