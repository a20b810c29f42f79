// Package config loads settings from defaults, the TOML config file and
// ANI_TUI_* environment variables, in increasing priority. Command-line
// flags are applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"ani-tui/internal/player"
	"ani-tui/internal/provider"
	"ani-tui/internal/stream"
)

const (
	appName   = "ani-tui"
	envPrefix = "ANI_TUI"
)

// Config holds all application configuration.
type Config struct {
	Providers       []string      `mapstructure:"providers"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	Strategy        string        `mapstructure:"strategy"`
	Player          string        `mapstructure:"player"`
	Quality         string        `mapstructure:"quality"`
	Mode            string        `mapstructure:"mode"`
	SubsLanguage    string        `mapstructure:"subs_language"`
	Subtitles       bool          `mapstructure:"subtitles"`
	Preview         bool          `mapstructure:"preview"`
	History         bool          `mapstructure:"history"`
	HistoryFile     string        `mapstructure:"history_file"`
	DownloadDir     string        `mapstructure:"download_dir"`
	ConsumetURL     string        `mapstructure:"consumet_url"`
	ConsumetSource  string        `mapstructure:"consumet_source"`
	Log             LogConfig     `mapstructure:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Providers:       []string{"allanime", "hianime", "consumet"},
		ProviderTimeout: 8 * time.Second,
		CacheTTL:        20 * time.Minute,
		Strategy:        string(stream.Sequential),
		Player:          "mpv",
		Quality:         "best",
		Mode:            "sub",
		SubsLanguage:    "english",
		Subtitles:       true,
		Preview:         true,
		History:         true,
		HistoryFile:     orEmpty(DefaultHistoryPath()),
		DownloadDir:     "~/Videos/ani-tui",
		ConsumetURL:     "https://api.consumet.org",
		ConsumetSource:  "gogoanime",
		Log: LogConfig{
			Level: "info",
			Path:  orEmpty(DefaultLogPath()),
		},
	}
}

// Load reads path (the default location when empty) from fsys. A missing
// file is not an error.
func Load(fsys afero.Fs, path string) (*Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetFs(fsys)
	setDefaults(v, Default())

	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("providers", d.Providers)
	v.SetDefault("provider_timeout", d.ProviderTimeout)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("strategy", d.Strategy)
	v.SetDefault("player", d.Player)
	v.SetDefault("quality", d.Quality)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("subs_language", d.SubsLanguage)
	v.SetDefault("subtitles", d.Subtitles)
	v.SetDefault("preview", d.Preview)
	v.SetDefault("history", d.History)
	v.SetDefault("history_file", d.HistoryFile)
	v.SetDefault("download_dir", d.DownloadDir)
	v.SetDefault("consumet_url", d.ConsumetURL)
	v.SetDefault("consumet_source", d.ConsumetSource)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.path", d.Log.Path)
}

// Normalize lower-cases names so values from any layer compare equal.
func (c *Config) Normalize() {
	for i, p := range c.Providers {
		c.Providers[i] = strings.ToLower(strings.TrimSpace(p))
	}
	c.Player = strings.ToLower(c.Player)
	c.Quality = strings.ToLower(c.Quality)
	c.Mode = strings.ToLower(c.Mode)
	c.Strategy = strings.ToLower(c.Strategy)
}

var (
	validQualities = []string{"best", "worst", "1080", "720", "480", "360"}
	validModes     = []string{"sub", "dub"}
	validStrategy  = []string{string(stream.Sequential), string(stream.Race)}
	validLevels    = []string{"trace", "debug", "info", "warn", "error"}
)

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required (valid: %s)", strings.Join(provider.Names(), ", "))
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if !slices.Contains(provider.Names(), p) {
			return fmt.Errorf("unsupported provider %q (valid: %s)", p, strings.Join(provider.Names(), ", "))
		}
		if seen[p] {
			return fmt.Errorf("provider %q listed twice", p)
		}
		seen[p] = true
	}

	if c.ProviderTimeout < time.Second || c.ProviderTimeout > 2*time.Minute {
		return fmt.Errorf("provider_timeout %s out of range (1s to 2m)", c.ProviderTimeout)
	}
	if c.CacheTTL < time.Minute || c.CacheTTL > 24*time.Hour {
		return fmt.Errorf("cache_ttl %s out of range (1m to 24h)", c.CacheTTL)
	}
	if !slices.Contains(validStrategy, c.Strategy) {
		return fmt.Errorf("unsupported strategy %q (valid: %s)", c.Strategy, strings.Join(validStrategy, ", "))
	}
	if !slices.Contains(player.Names(), c.Player) {
		return fmt.Errorf("unsupported player %q (valid: %s)", c.Player, strings.Join(player.Names(), ", "))
	}
	if !slices.Contains(validQualities, c.Quality) {
		return fmt.Errorf("unsupported quality %q (valid: %s)", c.Quality, strings.Join(validQualities, ", "))
	}
	if !slices.Contains(validModes, c.Mode) {
		return fmt.Errorf("unsupported mode %q (valid: sub, dub)", c.Mode)
	}
	if !slices.Contains(validLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("unsupported log level %q (valid: %s)", c.Log.Level, strings.Join(validLevels, ", "))
	}
	if c.HistoryFile == "" {
		return fmt.Errorf("history_file cannot be empty")
	}
	if !strings.HasPrefix(c.ConsumetURL, "https://") {
		return fmt.Errorf("consumet_url must be an https URL")
	}
	if c.ConsumetSource == "" {
		return fmt.Errorf("consumet_source cannot be empty")
	}
	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	return expandHome(c.DownloadDir)
}

// ExpandHistoryFile resolves ~ in the history file path.
func (c *Config) ExpandHistoryFile() (string, error) {
	return expandHome(c.HistoryFile)
}

func expandHome(p string) (string, error) {
	if strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		p = filepath.Join(home, p[2:])
	}
	return filepath.Abs(p)
}

// fileDocument is the on-disk shape written by WriteDefault.
type fileDocument struct {
	Providers       []string `toml:"providers"`
	ProviderTimeout string   `toml:"provider_timeout"`
	CacheTTL        string   `toml:"cache_ttl"`
	Strategy        string   `toml:"strategy"`
	Player          string   `toml:"player"`
	Quality         string   `toml:"quality"`
	Mode            string   `toml:"mode"`
	SubsLanguage    string   `toml:"subs_language"`
	Subtitles       bool     `toml:"subtitles"`
	Preview         bool     `toml:"preview"`
	History         bool     `toml:"history"`
	HistoryFile     string   `toml:"history_file"`
	DownloadDir     string   `toml:"download_dir"`
	ConsumetURL     string   `toml:"consumet_url"`
	ConsumetSource  string   `toml:"consumet_source"`
	Log             struct {
		Level string `toml:"level"`
		Path  string `toml:"path"`
	} `toml:"log"`
}

func documentOf(c *Config) fileDocument {
	doc := fileDocument{
		Providers:       c.Providers,
		ProviderTimeout: c.ProviderTimeout.String(),
		CacheTTL:        c.CacheTTL.String(),
		Strategy:        c.Strategy,
		Player:          c.Player,
		Quality:         c.Quality,
		Mode:            c.Mode,
		SubsLanguage:    c.SubsLanguage,
		Subtitles:       c.Subtitles,
		Preview:         c.Preview,
		History:         c.History,
		HistoryFile:     c.HistoryFile,
		DownloadDir:     c.DownloadDir,
		ConsumetURL:     c.ConsumetURL,
		ConsumetSource:  c.ConsumetSource,
	}
	doc.Log.Level = c.Log.Level
	doc.Log.Path = c.Log.Path
	return doc
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(documentOf(c)); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// WriteDefault creates a config file holding the defaults at path. An
// existing file is left alone unless force is set.
func WriteDefault(fsys afero.Fs, path string, force bool) error {
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if exists && !force {
		return fmt.Errorf("%s already exists", path)
	}

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating config: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte("# ani-tui configuration\n\n")); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return Default().Encode(f)
}

func orEmpty(s string, err error) string {
	if err != nil {
		return ""
	}
	return s
}
