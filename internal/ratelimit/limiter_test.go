package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_PerKeyBurst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(1, 2, time.Minute)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow(1))
	require.True(t, l.Allow(1))
	require.False(t, l.Allow(1))

	// another user is unaffected
	require.True(t, l.Allow(2))

	now = now.Add(time.Second)
	require.True(t, l.Allow(1))
}

func TestLimiter_Sweep(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(1, 1, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow(1)
	now = now.Add(30 * time.Second)
	l.Allow(2)
	now = now.Add(45 * time.Second)

	require.Equal(t, 1, l.Sweep())
	require.Equal(t, 1, l.Len())
}
