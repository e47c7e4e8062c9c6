package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/config"
	"github.com/roach88/streamcore/internal/streamid"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	cfg, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Chain.BlockInterval.Std())
	assert.Equal(t, int64(3600), cfg.MaxGenerations())
	assert.Equal(t, 30*time.Second, cfg.EphemeralTimeout())
}

func TestLoad_Formats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"yaml", "streamcore.yaml", "chain:\n  block_interval: 1s\nstore:\n  driver: sqlite\n  path: /tmp/s.db\n"},
		{"toml", "streamcore.toml", "[chain]\nblock_interval = \"1s\"\n[store]\ndriver = \"sqlite\"\npath = \"/tmp/s.db\"\n"},
		{"json", "streamcore.json", `{"chain":{"block_interval":"1s"},"store":{"driver":"sqlite","path":"/tmp/s.db"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(write(t, tt.file, tt.body))
			require.NoError(t, err)
			assert.Equal(t, time.Second, cfg.Chain.BlockInterval.Std())
			assert.Equal(t, "sqlite", cfg.Store.Driver)
			assert.Equal(t, "/tmp/s.db", cfg.Store.Path)
			// Derived values follow the block interval.
			assert.Equal(t, int64(7200), cfg.MaxGenerations())
			assert.Equal(t, 15*time.Second, cfg.EphemeralTimeout())
			// Untouched sections keep their defaults.
			assert.Equal(t, 4*time.Hour, cfg.Scrub.EligibleDuration.Std())
		})
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "store:\n  driver: postgres\n"},
		{"sqlite without path", "store:\n  driver: sqlite\n"},
		{"bad duration", "chain:\n  block_interval: soon\n"},
		{"zero block interval", "chain:\n  block_interval: 0s\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"unknown kind", "snapshot:\n  per_kind:\n    galaxy: 5\n"},
		{"zero workers", "scrub:\n  workers: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(write(t, "streamcore.yaml", tt.body))
			assert.Error(t, err)
		})
	}

	_, err := config.Load(write(t, "streamcore.ini", "x=1"))
	assert.ErrorContains(t, err, "unsupported extension")
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("STREAMCORE_STORE_DRIVER", "sqlite")
	t.Setenv("STREAMCORE_STORE_PATH", "/var/lib/streamcore.db")
	t.Setenv("STREAMCORE_BLOCK_INTERVAL", "4s")
	t.Setenv("STREAMCORE_LOG_LEVEL", "debug")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/streamcore.db", cfg.Store.Path)
	assert.Equal(t, int64(1800), cfg.MaxGenerations())
	assert.Equal(t, "debug", cfg.Logging.Level)

	t.Setenv("STREAMCORE_BLOCK_INTERVAL", "later")
	_, err = config.Load("")
	assert.ErrorContains(t, err, "STREAMCORE_BLOCK_INTERVAL")
}

func TestConfig_Overrides(t *testing.T) {
	cfg, err := config.Load(write(t, "streamcore.yaml",
		"keys:\n  ephemeral_timeout: 5s\nsnapshot:\n  max_generations: 10\n  per_kind:\n    channel: 7\n"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.EphemeralTimeout())
	assert.Equal(t, int64(10), cfg.MaxGenerations())

	policy, err := cfg.SnapshotPolicy()
	require.NoError(t, err)
	assert.Equal(t, int64(100), policy.Default)
	assert.Equal(t, map[streamid.Prefix]int64{streamid.PrefixChannel: 7}, policy.PerKind)
}

func TestWatcher_Reloads(t *testing.T) {
	path := write(t, "streamcore.yaml", "logging:\n  level: info\n")
	w, err := config.NewWatcher(path, config.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()
	assert.Equal(t, "info", w.Config().Logging.Level)

	changed := make(chan *config.Config, 4)
	w.OnChange(func(c *config.Config) { changed <- c })

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))
	select {
	case c := <-changed:
		assert.Equal(t, "debug", c.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
	assert.Equal(t, "debug", w.Config().Logging.Level)
}

func TestWatcher_KeepsConfigOnBadReload(t *testing.T) {
	path := write(t, "streamcore.yaml", "logging:\n  level: warn\n")
	w, err := config.NewWatcher(path, config.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))
	select {
	case err := <-w.Errors():
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload error")
	}
	assert.Equal(t, "warn", w.Config().Logging.Level)
}
