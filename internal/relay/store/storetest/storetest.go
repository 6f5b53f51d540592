// Package storetest holds the behavioural contract every session store
// driver must satisfy. Driver tests call Run with a factory.
package storetest

import (
	"net/url"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/stretchr/testify/require"
)

// Clock is a settable time source shared between a test and a driver.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Factory builds a driver whose expiry decisions use clock and whose TTL
// is ttl.
type Factory func(t *testing.T, clock *Clock, ttl time.Duration) store.Sessions

var tokenShape = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)

// Epoch is the creation time used by the contract tests.
var Epoch = time.Unix(1700000000, 0)

// ValidParams is a launch that can report outcomes.
func ValidParams() domain.LaunchParams {
	return domain.NewLaunchParams(url.Values{
		domain.ParamOutcomeServiceURL: {"https://lms.example.edu/outcomes"},
		domain.ParamResultSourcedID:   {"course-1:user-7"},
		domain.ParamConsumerKey:       {"moodle_key"},
		"roles":                       {"Learner", "Member"},
	})
}

// Run executes the contract suite against the driver built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("create then lookup", func(t *testing.T) {
		clock := NewClock(Epoch)
		s := newStore(t, clock, time.Hour)
		ctx := t.Context()

		created, err := s.Create(ctx, ValidParams())
		require.NoError(t, err)
		require.Regexp(t, tokenShape, created.Token)
		require.Equal(t, Epoch.Unix(), created.CreatedAt)
		require.Equal(t, Epoch.Add(time.Hour).Unix(), created.ExpiresAt)

		got, err := s.Lookup(ctx, created.Token)
		require.NoError(t, err)
		require.Equal(t, created.Token, got.Token)
		require.Equal(t, ValidParams(), got.Params)
		require.Equal(t, created.ExpiresAt, got.ExpiresAt)
	})

	t.Run("expiry boundary", func(t *testing.T) {
		clock := NewClock(Epoch)
		s := newStore(t, clock, time.Hour)
		ctx := t.Context()

		created, err := s.Create(ctx, ValidParams())
		require.NoError(t, err)

		clock.Set(Epoch.Add(3599 * time.Second))
		_, err = s.Lookup(ctx, created.Token)
		require.NoError(t, err)

		clock.Set(Epoch.Add(3601 * time.Second))
		_, err = s.Lookup(ctx, created.Token)
		require.ErrorIs(t, err, domain.ErrSessionExpired)
	})

	t.Run("unknown token", func(t *testing.T) {
		s := newStore(t, NewClock(Epoch), time.Hour)

		for _, token := range []string{"", "doesnotexist00000000000000000000", "../etc/passwd", "/etc/passwd", "a/b"} {
			_, err := s.Lookup(t.Context(), token)
			require.ErrorIs(t, err, store.ErrNotFound, "token %q", token)
			require.ErrorIs(t, err, domain.ErrSessionNotFound, "token %q", token)
		}
	})

	t.Run("tokens are unique", func(t *testing.T) {
		s := newStore(t, NewClock(Epoch), time.Hour)

		seen := make(map[string]struct{})
		for range 50 {
			sess, err := s.Create(t.Context(), domain.LaunchParams{})
			require.NoError(t, err)
			require.NotContains(t, seen, sess.Token)
			seen[sess.Token] = struct{}{}
		}
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t, NewClock(Epoch), time.Hour)
		require.NoError(t, s.Ping(t.Context()))
	})
}
