package facets

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-eventfeed/internal/settings"
)

func settingsStore(t *testing.T) *settings.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return settings.NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}
