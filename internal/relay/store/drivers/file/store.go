// Package file stores one JSON document per session in a directory:
// {dir}/{token}.json, readable only by the service user. Multiple processes
// may share the directory; the filesystem is the only coordination.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/cryptox"
	"github.com/aussiebroadwan/ltirelay/pkg/slogx"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
	ext      = ".json"
)

type Store struct {
	dir string
	ttl time.Duration

	// Now is the clock used for expiry and sweeping.
	Now func() time.Time
	// NewToken generates session tokens.
	NewToken func() (string, error)
}

var _ store.Sessions = (*Store)(nil)

// NewStore resolves dir to an absolute path. The directory itself is created
// by the first Create, so an unusable directory degrades launches instead of
// failing startup.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if dir == "" {
		return nil, errors.New("file store: session directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("file store: resolve %q: %w", dir, err)
	}
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}

	return &Store{
		dir:      abs,
		ttl:      ttl,
		Now:      time.Now,
		NewToken: cryptox.NewSessionToken,
	}, nil
}

// Dir is the canonical session directory.
func (s *Store) Dir() string { return s.dir }

// Create sweeps expired files, then writes the new session through a temp
// file and rename so readers never observe a partial document.
func (s *Store) Create(ctx context.Context, params domain.LaunchParams) (domain.Session, error) {
	log := slogx.FromContext(ctx)

	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return domain.Session{}, fmt.Errorf("%w: create %q: %w", domain.ErrSessionPersist, s.dir, err)
	}

	if n, err := s.Sweep(ctx); err != nil {
		log.Warn("session sweep failed", slog.Any("error", err))
	} else if n > 0 {
		log.Debug("swept expired sessions", slog.Int("deleted", n))
	}

	token, err := s.NewToken()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}

	sess := domain.NewSession(token, params, s.Now(), s.ttl)
	data, err := json.Marshal(sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: encode: %w", domain.ErrSessionPersist, err)
	}

	if err := s.writeAtomic(token+ext, data); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}

	return sess, nil
}

func (s *Store) writeAtomic(name string, data []byte) error {
	// CreateTemp opens with 0600.
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}

// Lookup resolves the token to a file strictly inside the session
// directory. Tokens outside the session alphabet are reported as not found.
func (s *Store) Lookup(ctx context.Context, token string) (domain.Session, error) {
	path, ok := s.resolve(token)
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Missing, unreadable, or removed by a concurrent sweep.
		return domain.Session{}, store.ErrNotFound
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		slogx.FromContext(ctx).Warn("undecodable session file",
			slog.String("session", cryptox.ShortFingerprint(token)),
			slog.Any("error", err),
		)
		return domain.Session{}, store.ErrNotFound
	}
	sess.Token = token

	if sess.Expired(s.Now()) {
		return domain.Session{}, store.ErrExpired
	}
	return sess, nil
}

func (s *Store) resolve(token string) (string, bool) {
	if !isToken(token) {
		return "", false
	}
	path, err := filepath.Abs(filepath.Join(s.dir, token+ext))
	if err != nil {
		return "", false
	}
	if filepath.Dir(path) != s.dir {
		return "", false
	}
	return path, true
}

// isToken reports whether token is non-empty and made only of ASCII letters
// and digits, so it can never name a path component other than itself.
func isToken(token string) bool {
	if token == "" {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// Sweep deletes every regular file whose modification time is older than
// the TTL. Files that disappear mid-scan are skipped silently.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		// Nothing has been created yet.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("file store: scan %q: %w", s.dir, err)
	}

	cutoff := s.Now().Add(-s.ttl)
	deleted := 0
	var errs []error

	for _, entry := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		deleted++
	}

	return deleted, errors.Join(errs...)
}

// Ping reports whether the session directory exists or can be created.
func (s *Store) Ping(_ context.Context) error {
	if err := os.MkdirAll(s.dir, dirMode); err != nil {
		return fmt.Errorf("file store: %q unusable: %w", s.dir, err)
	}
	return nil
}

func (s *Store) Close() error { return nil }
