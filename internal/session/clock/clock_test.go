package clock

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/huddleworks/livesession/internal/session/model"
)

func TestHostTickPersistsAndIncrements(t *testing.T) {
	cache := NewMemoryCache()
	c := New("s1", model.RoleHost, cache, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, ok := c.Tick()
		require.True(t, ok)
	}
	require.Equal(t, int64(3), c.Duration())

	cached, ok, err := cache.Get("s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(3), cached)
}

func TestPausedClockIgnoresTicks(t *testing.T) {
	c := New("s1", model.RoleHost, nil, zerolog.Nop())
	c.Pause()
	_, ok := c.Tick()
	require.False(t, ok)
	require.Equal(t, int64(0), c.Duration())

	c.Resume()
	_, ok = c.Tick()
	require.True(t, ok)
}

func TestParticipantNeverSelfIncrements(t *testing.T) {
	c := New("s1", model.RoleParticipant, nil, zerolog.Nop())
	_, ok := c.Tick()
	require.False(t, ok)
	require.Equal(t, int64(0), c.Duration())
}

func TestObserveIsMonotonic(t *testing.T) {
	c := New("s1", model.RoleParticipant, nil, zerolog.Nop())

	// Last-write-wins over a monotonic source: re-ordered stale syncs must
	// not move the mirror backwards.
	for _, d := range []int64{5, 9, 7, 12, 12, 3} {
		c.Observe(d)
	}
	require.Equal(t, int64(12), c.Duration())
}

func TestFreezeStopsBillingMutation(t *testing.T) {
	c := New("s1", model.RoleHost, nil, zerolog.Nop())
	for i := 0; i < 125; i++ {
		c.Tick()
	}

	frozen := c.Freeze()
	require.Equal(t, int64(125), frozen)
	require.Equal(t, model.ClockPaused, c.State())

	_, ok := c.Tick()
	require.False(t, ok)
	require.Equal(t, frozen, c.Duration())

	// Declined end request: resume lifts the freeze and billing time
	// continues from the pre-pause value.
	c.Resume()
	_, ok = c.Tick()
	require.True(t, ok)
	require.Equal(t, int64(126), c.Duration())
}

func TestRestoreFromCacheOnReload(t *testing.T) {
	cache := NewMemoryCache()
	require.NoError(t, cache.Put("s1", 340))

	c := New("s1", model.RoleParticipant, cache, zerolog.Nop())
	require.Equal(t, int64(340), c.Restore())

	// The next sync overwrites the painted value.
	c.Observe(355)
	require.Equal(t, int64(355), c.Duration())
}

func TestBadgerCacheRoundTrip(t *testing.T) {
	cache, err := OpenBadgerCache(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = cache.Close() }()

	_, ok, err := cache.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.Put("s1", 340))
	got, ok, err := cache.Get("s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(340), got)

	require.NoError(t, cache.Put("s1", 341))
	got, _, err = cache.Get("s1")
	require.NoError(t, err)
	require.Equal(t, int64(341), got)
}
