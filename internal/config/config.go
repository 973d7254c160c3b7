// Package config loads the project configuration file (.i18n-app.json) and
// the optional per-user settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
)

// FileName is the name of the project configuration file.
const FileName = ".i18n-app.json"

const defaultPreviewMode = "1"

var (
	// ErrExists is returned by Init when a configuration file is already present.
	ErrExists = errors.New("configuration file already exists")

	// ErrCreated is returned when a default configuration had to be written
	// and the user must edit it before running again.
	ErrCreated = errors.New("default configuration created, please update the configuration file")

	errInvalidConfig = errors.New("invalid configuration")
)

// Config is the project configuration shared by every command.
type Config struct {
	Host          string   `json:"host"`
	SubSystemName string   `json:"subSystemName"`
	ProductCode   string   `json:"productCode"`
	ProductID     int      `json:"productId"`
	VersionNo     string   `json:"versionNo"`
	BaseLanguage  string   `json:"baseLanguage"`
	PreviewMode   string   `json:"previewMode,omitempty"`
	Include       []string `json:"include"`
	Exclude       []string `json:"exclude"`

	// FillMissing uploads keys present in the base language but absent from
	// another language, using the base language text.
	FillMissing bool `json:"fillMissing,omitempty"`
}

// Default returns the configuration written by init.
func Default() Config {
	return Config{
		Host:          "https://backoffice.devactstrade.com",
		SubSystemName: "app",
		ProductCode:   "bos",
		ProductID:     1,
		VersionNo:     "1.0.0",
		BaseLanguage:  "en-US",
		PreviewMode:   defaultPreviewMode,
		Include:       []string{},
		Exclude:       []string{},
	}
}

// Preview returns the value sent in the "preview" request header.
func (c Config) Preview() string {
	if c.PreviewMode == "" {
		return defaultPreviewMode
	}
	return c.PreviewMode
}

// Validate reports every missing or malformed required field at once.
func (c Config) Validate() error {
	var problems []string

	if c.Host == "" {
		problems = append(problems, "host is required")
	} else if u, err := url.Parse(c.Host); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, fmt.Sprintf("host %q must be an absolute http(s) URL", c.Host))
	}
	if c.SubSystemName == "" {
		problems = append(problems, "subSystemName is required")
	}
	if c.ProductCode == "" {
		problems = append(problems, "productCode is required")
	}
	if c.VersionNo == "" {
		problems = append(problems, "versionNo is required")
	}
	if c.BaseLanguage == "" {
		problems = append(problems, "baseLanguage is required")
	} else if _, err := language.Parse(c.BaseLanguage); err != nil {
		problems = append(problems, fmt.Sprintf("baseLanguage %q is not a language tag", c.BaseLanguage))
	}
	if len(c.Include) == 0 {
		problems = append(problems, "include must list at least one pattern")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Load reads and validates the configuration file at path.
func Load(fs afero.Fs, path string) (Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading %s: %w", apperr.ErrLocalIO, path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing %s: %w", apperr.ErrInvalidFormat, path, err)
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Init writes the default configuration into dir and returns its path.
// An existing file is never overwritten.
func Init(fs afero.Fs, dir string) (string, error) {
	path := filepath.Join(dir, FileName)
	if ok, err := afero.Exists(fs, path); err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrLocalIO, err)
	} else if ok {
		return path, fmt.Errorf("%w: %s", ErrExists, path)
	}

	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return "", err
	}
	data = append(data, '\n')

	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return path, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return "", fmt.Errorf("%w: creating %s: %w", apperr.ErrLocalIO, path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: writing %s: %w", apperr.ErrLocalIO, path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: writing %s: %w", apperr.ErrLocalIO, path, err)
	}
	return path, nil
}
