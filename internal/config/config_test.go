package config

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, []string{"allanime", "hianime", "consumet"}, cfg.Providers)
	assert.Equal(t, 8*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 20*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "sequential", cfg.Strategy)
	assert.Equal(t, "mpv", cfg.Player)
	assert.True(t, cfg.History)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"invalid player", func(c *Config) { c.Player = "notepad" }, true},
		{"unknown provider", func(c *Config) { c.Providers = []string{"animepahe"} }, true},
		{"no providers", func(c *Config) { c.Providers = nil }, true},
		{"duplicate provider", func(c *Config) { c.Providers = []string{"hianime", "hianime"} }, true},
		{"invalid quality", func(c *Config) { c.Quality = "4k" }, true},
		{"invalid mode", func(c *Config) { c.Mode = "raw" }, true},
		{"invalid strategy", func(c *Config) { c.Strategy = "random" }, true},
		{"timeout too short", func(c *Config) { c.ProviderTimeout = 10 * time.Millisecond }, true},
		{"ttl too long", func(c *Config) { c.CacheTTL = 48 * time.Hour }, true},
		{"plain http consumet", func(c *Config) { c.ConsumetURL = "http://localhost:3000" }, true},
		{"empty history file", func(c *Config) { c.HistoryFile = "" }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"valid vlc", func(c *Config) { c.Player = "vlc" }, false},
		{"valid race", func(c *Config) { c.Strategy = "race" }, false},
		{"valid 720", func(c *Config) { c.Quality = "720" }, false},
		{"single provider", func(c *Config) { c.Providers = []string{"consumet"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "/cfg/config.toml")
	require.NoError(t, err)
	assert.Equal(t, Default().Providers, cfg.Providers)
	assert.Equal(t, "best", cfg.Quality)
}

func TestLoadFromTOML(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := `
providers = ["HiAnime", "allanime"]
provider_timeout = "3s"
player = "vlc"
quality = "720"
history = false

[log]
level = "debug"
`
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.toml", []byte(content), 0o644))

	cfg, err := Load(fsys, "/cfg/config.toml")
	require.NoError(t, err)

	assert.Equal(t, []string{"hianime", "allanime"}, cfg.Providers)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, "vlc", cfg.Player)
	assert.Equal(t, "720", cfg.Quality)
	assert.False(t, cfg.History)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, 20*time.Minute, cfg.CacheTTL)
	assert.Equal(t, "sub", cfg.Mode)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.toml", []byte(`player = "vlc"`), 0o644))

	t.Setenv("ANI_TUI_PLAYER", "iina")
	t.Setenv("ANI_TUI_STRATEGY", "race")
	t.Setenv("ANI_TUI_LOG_LEVEL", "warn")

	cfg, err := Load(fsys, "/cfg/config.toml")
	require.NoError(t, err)
	assert.Equal(t, "iina", cfg.Player)
	assert.Equal(t, "race", cfg.Strategy)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.toml", []byte(`player = "notepad"`), 0o644))

	_, err := Load(fsys, "/cfg/config.toml")
	assert.ErrorContains(t, err, "unsupported player")
}

func TestLoadRejectsMalformed(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cfg/config.toml", []byte(`player = `), 0o644))

	_, err := Load(fsys, "/cfg/config.toml")
	assert.ErrorContains(t, err, "reading config")
}

func TestWriteDefaultRoundTrips(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, WriteDefault(fsys, "/cfg/config.toml", false))

	data, err := afero.ReadFile(fsys, "/cfg/config.toml")
	require.NoError(t, err)
	var doc fileDocument
	_, err = toml.Decode(string(data), &doc)
	require.NoError(t, err)
	assert.Equal(t, "8s", doc.ProviderTimeout)

	cfg, err := Load(fsys, "/cfg/config.toml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	err = WriteDefault(fsys, "/cfg/config.toml", false)
	assert.ErrorContains(t, err, "already exists")
	assert.NoError(t, WriteDefault(fsys, "/cfg/config.toml", true))
}

func TestEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Default().Encode(&buf))
	assert.Contains(t, buf.String(), `cache_ttl = "20m0s"`)
	assert.Contains(t, buf.String(), "[log]")
}

func TestPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(dir, "state"))

	p, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config", "ani-tui", "config.toml"), p)

	p, err = DefaultHistoryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data", "ani-tui", "history.json"), p)

	p, err = DefaultLogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "state", "ani-tui", "ani-tui.log"), p)
}

func TestExpandDownloadDir(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	cfg := Default()
	dir, err := cfg.ExpandDownloadDir()
	require.NoError(t, err)
	assert.Equal(t, "/home/tester/Videos/ani-tui", dir)
}
