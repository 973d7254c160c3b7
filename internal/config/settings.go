package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

const (
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 4

	envLogLevel    = "I18N_APP_LOG_LEVEL"
	envConcurrency = "I18N_APP_CONCURRENCY"
)

// Settings holds per-user preferences read from config.toml.
type Settings struct {
	Log  LogSettings  `toml:"log"`
	HTTP HTTPSettings `toml:"http"`
	Sync SyncSettings `toml:"sync"`
}

// LogSettings selects the log level and output format ("console" or "json").
type LogSettings struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// HTTPSettings tunes the backend client. A zero RequestsPerSecond disables
// rate limiting.
type HTTPSettings struct {
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// SyncSettings bounds the number of languages processed at once.
type SyncSettings struct {
	Concurrency int `toml:"concurrency"`
}

// Duration wraps time.Duration for TOML parsing
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		Log:  LogSettings{Level: defaultLogLevel, Format: defaultLogFormat},
		HTTP: HTTPSettings{Timeout: Duration{defaultTimeout}},
		Sync: SyncSettings{Concurrency: defaultConcurrency},
	}
}

// SettingsPath returns $XDG_CONFIG_HOME/i18n-app/config.toml, falling back
// to ~/.config/i18n-app/config.toml.
func SettingsPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "i18n-app", "config.toml")
}

// LoadSettings reads the settings file at path. A missing file yields the
// defaults. Environment overrides are applied last.
func LoadSettings(fs afero.Fs, path string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := afero.ReadFile(fs, path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return s, fmt.Errorf("%w: reading %s: %w", apperr.ErrLocalIO, path, err)
		default:
			if _, err := toml.Decode(string(data), &s); err != nil {
				return s, fmt.Errorf("%w: parsing %s: %w", apperr.ErrInvalidFormat, path, err)
			}
		}
	}

	if err := s.applyEnv(os.LookupEnv); err != nil {
		return s, err
	}
	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envLogLevel); ok && v != "" {
		s.Log.Level = v
	}
	if v, ok := lookup(envConcurrency); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("%s=%q: must be a positive integer", envConcurrency, v)
		}
		s.Sync.Concurrency = n
	}
	return nil
}

func (s *Settings) applyDefaults() {
	if s.Log.Level == "" {
		s.Log.Level = defaultLogLevel
	}
	if s.Log.Format == "" {
		s.Log.Format = defaultLogFormat
	}
	if s.HTTP.Timeout.Duration <= 0 {
		s.HTTP.Timeout = Duration{defaultTimeout}
	}
	if s.HTTP.RequestsPerSecond < 0 {
		s.HTTP.RequestsPerSecond = 0
	}
	if s.Sync.Concurrency < 1 {
		s.Sync.Concurrency = defaultConcurrency
	}
}
