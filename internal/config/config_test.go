package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadYaml(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9090"
server_url: "http://10.0.0.5:5000"
feed:
  completed_interval_ms: 10000
  in_progress_interval_ms: 1000
  limit: 25
refresh:
  rate: 3
  window: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "http://10.0.0.5:5000", cfg.ServerURL)
	assert.Equal(t, 10*time.Second, cfg.CompletedInterval())
	assert.Equal(t, time.Second, cfg.InProgressInterval())
	assert.Equal(t, 25, cfg.Feed.Limit)
	assert.Equal(t, 3, cfg.Refresh.Rate)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Window)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.CompletedInterval())
	assert.Equal(t, 2*time.Second, cfg.InProgressInterval())
	assert.Equal(t, 256, cfg.Media.ThumbnailCacheSize)
}

func TestEnvOverridesYaml(t *testing.T) {
	path := writeConfig(t, `server_url: "http://old:5000"`)
	t.Setenv("SERVER_URL", "http://new:5000")
	t.Setenv("REDIS_ADDR", "10.1.1.1:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://new:5000", cfg.ServerURL)
	assert.Equal(t, "10.1.1.1:6379", cfg.RedisAddr)
}

func TestLoadRejectsBadYaml(t *testing.T) {
	path := writeConfig(t, "listen_addr: [broken")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, `server_url: "http://old:5000"`)

	changes := make(chan *Config, 1)
	w := NewWatcher(path, func(cfg *Config) {
		select {
		case changes <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`server_url: "http://new:5000"`), 0o644))

	select {
	case cfg := <-changes:
		assert.Equal(t, "http://new:5000", cfg.ServerURL)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
