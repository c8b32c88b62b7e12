package settings

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestServerURLRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	url, err := s.ServerURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, url)

	require.NoError(t, s.SetServerURL(ctx, "http://nvr.local:5000"))
	url, err = s.ServerURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://nvr.local:5000", url)
}

func TestSelectedReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetSelected(ctx, KeyLabels, []string{"person", "dog"}))
	got, err := s.Selected(ctx, KeyLabels)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"person", "dog"}, got)

	// Replacement, not union.
	require.NoError(t, s.SetSelected(ctx, KeyLabels, []string{"cat"}))
	got, err = s.Selected(ctx, KeyLabels)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, got)

	// Clearing a selection leaves an empty set.
	require.NoError(t, s.SetSelected(ctx, KeyLabels, nil))
	got, err = s.Selected(ctx, KeyLabels)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAvailableGrowsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddAvailable(ctx, KeyZones, "porch"))
	require.NoError(t, s.AddAvailable(ctx, KeyZones, "driveway", "porch"))

	got, err := s.Available(ctx, KeyZones)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"porch", "driveway"}, got)

	require.NoError(t, s.AddAvailable(ctx, KeyZones))
}

func TestFirstLaunchFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.FirstLaunch(ctx)
	require.NoError(t, err)
	assert.True(t, first)

	require.NoError(t, s.MarkLaunched(ctx))
	first, err = s.FirstLaunch(ctx)
	require.NoError(t, err)
	assert.False(t, first)
}
