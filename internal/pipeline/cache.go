package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/tidwall/pretty"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
	"github.com/lexiaoyao20/i18n-app/internal/langfile"
)

// ScratchCache stages downloaded remote files for the duration of one push
// or pull. Each language owns the file <dir>/<code>.json.
type ScratchCache struct {
	fs  afero.Fs
	dir string
}

// NewScratchCache returns a cache rooted at dir. Nothing is created until
// Prepare.
func NewScratchCache(fs afero.Fs, dir string) *ScratchCache {
	return &ScratchCache{fs: fs, dir: dir}
}

// Dir returns the cache directory.
func (c *ScratchCache) Dir() string {
	return c.dir
}

// Prepare deletes any previous content and recreates the directory empty.
func (c *ScratchCache) Prepare() error {
	return resetDir(c.fs, c.dir)
}

// Path returns the cache file of a language.
func (c *ScratchCache) Path(code string) string {
	return filepath.Join(c.dir, code+".json")
}

// Write stores a translation document for a language, pretty printed.
func (c *ScratchCache) Write(code string, doc []byte) error {
	path := c.Path(code)
	if err := afero.WriteFile(c.fs, path, pretty.Pretty(doc), 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", apperr.ErrLocalIO, path, err)
	}
	return nil
}

// Read returns the raw document cached for a language.
func (c *ScratchCache) Read(code string) ([]byte, error) {
	data, err := afero.ReadFile(c.fs, c.Path(code))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", apperr.ErrLocalIO, c.Path(code), err)
	}
	return data, nil
}

// Load returns the cached map of a language. A missing or unreadable file
// counts as an empty remote state.
func (c *ScratchCache) Load(ctx context.Context, code string) *flat.Map {
	path := c.Path(code)
	m, err := langfile.LoadFile(c.fs, path)
	if err != nil {
		if ok, _ := afero.Exists(c.fs, path); ok {
			zerolog.Ctx(ctx).Warn().Err(err).Str("language", code).Msg("Ignoring unreadable cached remote file")
		}
		return flat.New()
	}
	return m
}

// Remove deletes the cache directory. Failures are logged only.
func (c *ScratchCache) Remove(ctx context.Context) {
	if err := c.fs.RemoveAll(c.dir); err != nil && !os.IsNotExist(err) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", c.dir).Msg("Failed to remove scratch cache")
		return
	}
	zerolog.Ctx(ctx).Debug().Str("path", c.dir).Msg("Removed scratch cache")
}
