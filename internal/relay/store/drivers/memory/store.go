// Package memory keeps sessions in process memory. It suits the long-lived
// server mode where the housekeeping reaper runs Sweep periodically; it is
// useless for one-request-per-process CGI deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/cryptox"
)

type Store struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	ttl      time.Duration

	Now      func() time.Time
	NewToken func() (string, error)
}

var _ store.Sessions = (*Store)(nil)

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	return &Store{
		sessions: make(map[string]domain.Session),
		ttl:      ttl,
		Now:      time.Now,
		NewToken: cryptox.NewSessionToken,
	}
}

func (s *Store) Create(_ context.Context, params domain.LaunchParams) (domain.Session, error) {
	token, err := s.NewToken()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}

	sess := domain.NewSession(token, params, s.Now(), s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[token]; exists {
		return domain.Session{}, fmt.Errorf("%w: token collision", domain.ErrSessionPersist)
	}
	s.sessions[token] = sess
	return sess, nil
}

func (s *Store) Lookup(_ context.Context, token string) (domain.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	if sess.Expired(s.Now()) {
		return domain.Session{}, store.ErrExpired
	}
	return sess, nil
}

// Sweep drops every session past its expiry.
func (s *Store) Sweep(_ context.Context) (int, error) {
	now := s.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

// Len is the number of sessions currently held, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.sessions)
	return nil
}
