// Package memory provides an in-memory auth.UserStore for static
// configuration and tests. Users are lost when the process restarts.
package memory

import (
	"context"
	"sync"

	"github.com/rhuss/securest/pkg/auth"
	"github.com/rhuss/securest/pkg/observability"
	"github.com/rhuss/securest/pkg/userstore"
)

// Store is a map-backed user store, safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	users map[string]userstore.Record
}

var _ auth.UserStore = (*Store)(nil)

// New creates a store holding users. Users without a username are skipped.
func New(users ...*auth.RegisteredUser) *Store {
	s := &Store{users: make(map[string]userstore.Record, len(users))}
	for _, u := range users {
		s.Put(u)
	}
	return s
}

// Put adds or replaces a user.
func (s *Store) Put(u *auth.RegisteredUser) error {
	rec := userstore.FromUser(u)
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[rec.Username] = rec
	return nil
}

// GetUser returns a copy of the stored user, or (nil, nil) when unknown.
func (s *Store) GetUser(_ context.Context, subjectID string) (auth.User, error) {
	s.mu.RLock()
	rec, ok := s.users[subjectID]
	s.mu.RUnlock()

	if !ok {
		observability.UserLookupsTotal.WithLabelValues("memory", "miss").Inc()
		return nil, nil
	}
	observability.UserLookupsTotal.WithLabelValues("memory", "hit").Inc()
	return rec.User(), nil
}
