package domain

import "time"

// DefaultSessionTTL bounds how long a launch can be used to report a grade.
const DefaultSessionTTL = time.Hour

// Session is a persisted launch. The token is both the lookup key and the
// capability a grading request presents; sessions are never updated.
type Session struct {
	Token     string       `json:"-"`
	Params    LaunchParams `json:"lti_params"`
	CreatedAt int64        `json:"created_at"`
	ExpiresAt int64        `json:"expires_at"`
}

// NewSession stamps params with creation and expiry times.
func NewSession(token string, params LaunchParams, now time.Time, ttl time.Duration) Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return Session{
		Token:     token,
		Params:    params,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return now.Unix() > s.ExpiresAt
}

// TTL is the remaining lifetime at now, zero once expired.
func (s Session) TTL(now time.Time) time.Duration {
	if s.Expired(now) {
		return 0
	}
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}
