package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/ltirelay/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := idx.New()
	require.Len(t, id.String(), 26)

	created, ok := id.Time()
	require.True(t, ok)
	require.WithinDuration(t, time.Now(), created, time.Second)
}

func TestNewAt_Sorts(t *testing.T) {
	a := idx.NewAt(time.Unix(1, 0))
	b := idx.NewAt(time.Unix(2, 0))
	c := idx.NewAt(time.Unix(2, 0))

	require.Less(t, a.String(), b.String())
	require.Less(t, b.String(), c.String(), "same millisecond stays monotonic")
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"abc-123", true},
		{"01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZX", true},
		{"trace.id_42", true},
		{"", false},
		{"has space", false},
		{"line\nbreak", false},
		{`quote"d`, false},
		{strings.Repeat("a", idx.MaxHeaderLen), true},
		{strings.Repeat("a", idx.MaxHeaderLen+1), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, ok := idx.FromHeader(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.in, id.String())
			}
		})
	}
}

func TestTime_ProxyID(t *testing.T) {
	id, ok := idx.FromHeader("abc-123")
	require.True(t, ok)

	_, ok = id.Time()
	require.False(t, ok)
}
