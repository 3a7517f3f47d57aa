package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2, cfg.Suggest.MinQueryLen)
	assert.Equal(t, 300, cfg.Suggest.DebounceMs)
	assert.Equal(t, 5, cfg.Suggest.LocalLimit)
	assert.Equal(t, 10, cfg.Suggest.MergedLimit)
	assert.True(t, cfg.Remote.Enabled)
	assert.Equal(t, 0, cfg.Cache.MaxEntries)

	opts := cfg.SuggestOptions()
	assert.Equal(t, 300*time.Millisecond, opts.Debounce)

	fda := cfg.OpenFDA()
	assert.Equal(t, "https://api.fda.gov/drug/label.json", fda.BaseURL)
	assert.Equal(t, 10, fda.Limit)
	assert.Equal(t, 30*time.Second, fda.BreakerCooldown)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[suggest]
debounce_ms = 150
merged_limit = 8

[remote]
enabled = false
rate_per_second = 1.5

[cache]
max_entries = 500

[dict]
path = "data/names.txt"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.Suggest.DebounceMs)
	assert.Equal(t, 8, cfg.Suggest.MergedLimit)
	assert.Equal(t, 2, cfg.Suggest.MinQueryLen, "missing keys keep defaults")
	assert.False(t, cfg.Remote.Enabled)
	assert.Equal(t, 1.5, cfg.Remote.RatePerSecond)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)
	assert.Equal(t, "data/names.txt", cfg.Dict.Path)
}

func TestLoadConfigPartialRecovery(t *testing.T) {
	path := writeConfig(t, `
[suggest]
debounce_ms = "fast"
local_limit = 3

[remote]
rate_per_second = 2

[server]
max_query_len = 32
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Suggest.DebounceMs, "bad value falls back to default")
	assert.Equal(t, 3, cfg.Suggest.LocalLimit)
	assert.Equal(t, 2.0, cfg.Remote.RatePerSecond)
	assert.Equal(t, 32, cfg.Server.MaxQueryLen)
}

func TestLoadConfigUnparseable(t *testing.T) {
	path := writeConfig(t, "[suggest\nthis is not toml")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestInitConfigCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, err := InitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.FileExists(t, path)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigWithPriority(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	custom := writeConfig(t, "[cli]\ntype_delay_ms = 40\n")
	cfg, used, err := LoadConfigWithPriority(custom)
	require.NoError(t, err)
	assert.Equal(t, custom, used)
	assert.Equal(t, 40, cfg.CLI.TypeDelayMs)

	cfg, used, err = LoadConfigWithPriority(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.CLI.TypeDelayMs)
	assert.Equal(t, "config.toml", filepath.Base(used))
}
