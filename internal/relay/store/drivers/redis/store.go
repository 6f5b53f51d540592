// Package redis stores sessions as JSON strings with a native key expiry,
// letting several server replicas share launches.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/cryptox"
	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces session keys.
const KeyPrefix = "ltirelay:session:"

type Store struct {
	client *goredis.Client
	ttl    time.Duration

	Now      func() time.Time
	NewToken func() (string, error)
}

var _ store.Sessions = (*Store)(nil)

// NewStore connects using a redis:// URL and verifies the connection.
func NewStore(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}

	return NewStoreWithClient(client, ttl), nil
}

// NewStoreWithClient wraps an existing client. The store takes ownership
// and closes it on Close.
func NewStoreWithClient(client *goredis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	return &Store{
		client:   client,
		ttl:      ttl,
		Now:      time.Now,
		NewToken: cryptox.NewSessionToken,
	}
}

func key(token string) string { return KeyPrefix + token }

// Create writes the session with SET NX so a token collision can never
// overwrite another launch.
func (s *Store) Create(ctx context.Context, params domain.LaunchParams) (domain.Session, error) {
	token, err := s.NewToken()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}

	sess := domain.NewSession(token, params, s.Now(), s.ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: encode: %w", domain.ErrSessionPersist, err)
	}

	ok, err := s.client.SetNX(ctx, key(token), data, s.ttl).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}
	if !ok {
		return domain.Session{}, fmt.Errorf("%w: token collision", domain.ErrSessionPersist)
	}

	return sess, nil
}

func (s *Store) Lookup(ctx context.Context, token string) (domain.Session, error) {
	if token == "" {
		return domain.Session{}, store.ErrNotFound
	}

	data, err := s.client.Get(ctx, key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Session{}, store.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("redis store: get: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, store.ErrNotFound
	}
	sess.Token = token

	if sess.Expired(s.Now()) {
		return domain.Session{}, store.ErrExpired
	}
	return sess, nil
}

// Sweep is a no-op: Redis expires keys on its own.
func (s *Store) Sweep(context.Context) (int, error) { return 0, nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error { return s.client.Close() }
