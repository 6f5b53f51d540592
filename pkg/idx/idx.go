// Package idx issues request identifiers. Generated IDs are ULIDs, so they
// sort by creation time in log queries.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MaxHeaderLen caps a request ID accepted from an upstream proxy.
const MaxHeaderLen = 64

// RequestID correlates the log lines of one request.
type RequestID string

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh RequestID stamped with the current time.
func New() RequestID {
	return NewAt(time.Now())
}

// NewAt returns a RequestID stamped with t. IDs minted within the same
// millisecond still increase.
func NewAt(t time.Time) RequestID {
	mu.Lock()
	defer mu.Unlock()
	return RequestID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// FromHeader accepts an ID supplied by a proxy when it is short and made
// only of letters, digits, '-', '_' and '.'. Anything else is refused so a
// client cannot inject arbitrary text into the logs.
func FromHeader(v string) (RequestID, bool) {
	if v == "" || len(v) > MaxHeaderLen {
		return "", false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return "", false
		}
	}
	return RequestID(v), true
}

func (id RequestID) String() string { return string(id) }

// Time returns the creation time of a generated ID. ok is false for IDs
// that came from a proxy and are not ULIDs.
func (id RequestID) Time() (t time.Time, ok bool) {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(u.Time()), true
}
