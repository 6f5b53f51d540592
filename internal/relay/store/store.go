package store

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
)

var (
	ErrNotFound = fmt.Errorf("store: %w", domain.ErrSessionNotFound)
	ErrExpired  = fmt.Errorf("store: %w", domain.ErrSessionExpired)
)

// Sessions is the launch session store. Concrete drivers (file, memory,
// sqlite, redis) implement this. Sessions are write-once: there is no
// update, and deletion only happens through expiry.
type Sessions interface {
	// Create generates a fresh token, persists params under it and returns
	// the stored session. Failures wrap domain.ErrSessionPersist.
	Create(ctx context.Context, params domain.LaunchParams) (domain.Session, error)

	// Lookup returns the session for token. It returns ErrNotFound for
	// unknown or unreadable entries and ErrExpired once past expiry.
	Lookup(ctx context.Context, token string) (domain.Session, error)

	// Sweep removes expired sessions and reports how many were deleted.
	// It is safe to run concurrently with other sweeps and lookups.
	Sweep(ctx context.Context) (int, error)

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases any underlying resources.
	Close() error
}
