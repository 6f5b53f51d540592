package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/ltirelay/internal/relay/domain"
	"github.com/aussiebroadwan/ltirelay/internal/relay/store"
	"github.com/aussiebroadwan/ltirelay/pkg/cryptox"
	_ "modernc.org/sqlite"
)

const (
	insertSession = `INSERT INTO sessions (token, lti_params, created_at, expires_at) VALUES (?, ?, ?, ?)`
	selectSession = `SELECT lti_params, created_at, expires_at FROM sessions WHERE token = ?`
	deleteExpired = `DELETE FROM sessions WHERE expires_at < ?`
)

type Store struct {
	db  *sql.DB
	dsn string
	ttl time.Duration

	Now      func() time.Time
	NewToken func() (string, error)
}

var _ store.Sessions = (*Store)(nil)

// DSN builds the connection string for a database file with the pragmas
// the relay relies on for concurrent CGI processes.
func DSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}

func NewStore(dsn string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}

	return &Store{
		db:       db,
		dsn:      dsn,
		ttl:      ttl,
		Now:      time.Now,
		NewToken: cryptox.NewSessionToken,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts the session and clears out expired rows in the same
// transaction.
func (s *Store) Create(ctx context.Context, params domain.LaunchParams) (domain.Session, error) {
	token, err := s.NewToken()
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}

	now := s.Now()
	sess := domain.NewSession(token, params, now, s.ttl)
	encoded, err := json.Marshal(sess.Params)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: encode: %w", domain.ErrSessionPersist, err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteExpired, now.Unix()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, insertSession, sess.Token, string(encoded), sess.CreatedAt, sess.ExpiresAt)
		return err
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", domain.ErrSessionPersist, err)
	}

	return sess, nil
}

func (s *Store) Lookup(ctx context.Context, token string) (domain.Session, error) {
	var (
		encoded string
		sess    = domain.Session{Token: token}
	)

	row := s.db.QueryRowContext(ctx, selectSession, token)
	if err := row.Scan(&encoded, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	if err := json.Unmarshal([]byte(encoded), &sess.Params); err != nil {
		return domain.Session{}, store.ErrNotFound
	}

	if sess.Expired(s.Now()) {
		return domain.Session{}, store.ErrExpired
	}
	return sess, nil
}

func (s *Store) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, deleteExpired, s.Now().Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// withTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
