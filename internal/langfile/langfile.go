// Package langfile enumerates and loads the translation files of a project.
//
// A translation file is a JSON or YAML document named after its language
// code, such as "en-US.json" or "locales/zh-CN.yaml".
package langfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/text/language"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
)

// Format is the on-disk encoding of a translation file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// skipDirs are never descended into while listing.
var skipDirs = map[string]bool{
	".git":         true,
	".i18n-app":    true,
	"node_modules": true,
}

// FormatOf returns the format implied by the file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// LanguageOf derives the language code from a file name by dropping the
// extension. The stem must be a well-formed BCP 47 tag without extension or
// private-use subtags; the stem itself is returned unchanged.
func LanguageOf(path string) (string, bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return "", false
	}
	tag, err := language.Parse(stem)
	if err != nil || len(tag.Extensions()) > 0 {
		return "", false
	}
	return stem, true
}

// Entry is one translation file found by a Repository.
type Entry struct {
	Language string
	Path     string // path on the repository filesystem
	RelPath  string // slash-separated, relative to the repository root
	Format   Format

	fs      afero.Fs
	content *flat.Map
}

// Load reads and flattens the file. The result is cached on the entry.
func (e *Entry) Load() (*flat.Map, error) {
	if e.content != nil {
		return e.content, nil
	}
	m, err := LoadFile(e.fs, e.Path)
	if err != nil {
		return nil, err
	}
	e.content = m
	return m, nil
}

// Overwrite replaces the file content with a downloaded JSON translation
// document. JSON files receive the document as given; YAML files receive it
// converted to nested YAML.
func (e *Entry) Overwrite(doc []byte) error {
	data := doc
	if e.Format == FormatYAML {
		m, err := flat.Flatten(doc)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := flat.WriteNestedYAML(&buf, m); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	if err := afero.WriteFile(e.fs, e.Path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", apperr.ErrLocalIO, e.Path, err)
	}
	e.content = nil
	return nil
}

// LoadFile reads and flattens a translation file, choosing the parser from
// its extension (JSON when unknown).
func LoadFile(fs afero.Fs, path string) (*flat.Map, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", apperr.ErrLocalIO, path, err)
	}
	var m *flat.Map
	if format, _ := FormatOf(path); format == FormatYAML {
		m, err = flat.FlattenYAML(data)
	} else {
		m, err = flat.Flatten(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// Repository lists the translation files under a root directory that match
// any include glob and no exclude glob. Globs are matched against the
// slash-separated path relative to the root and may use "**".
type Repository struct {
	fs      afero.Fs
	root    string
	include []string
	exclude []string
}

// New returns a Repository rooted at root.
func New(fs afero.Fs, root string, include, exclude []string) *Repository {
	return &Repository{
		fs:      fs,
		root:    filepath.Clean(root),
		include: cleanPatterns(include),
		exclude: cleanPatterns(exclude),
	}
}

// List walks the root and returns the matching entries sorted by language
// code, then path. Files with an unsupported extension or a name that is not
// a language tag are skipped with a warning.
func (r *Repository) List(ctx context.Context) ([]*Entry, error) {
	logger := zerolog.Ctx(ctx)
	for _, p := range append(append([]string{}, r.include...), r.exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}

	var entries []*Entry
	err := afero.Walk(r.fs, r.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if path != r.root && skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !r.matches(rel) {
			return nil
		}

		format, ok := FormatOf(rel)
		if !ok {
			logger.Warn().Str("path", rel).Msg("Skipping file with unsupported extension")
			return nil
		}
		lang, ok := LanguageOf(rel)
		if !ok {
			logger.Warn().Str("path", rel).Msg("Skipping file whose name is not a language code")
			return nil
		}
		entries = append(entries, &Entry{
			Language: lang,
			Path:     path,
			RelPath:  rel,
			Format:   format,
			fs:       r.fs,
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: listing %s: %w", apperr.ErrLocalIO, r.root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Language != entries[j].Language {
			return entries[i].Language < entries[j].Language
		}
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}

func (r *Repository) matches(rel string) bool {
	if !matchAny(r.include, rel) {
		return false
	}
	return !matchAny(r.exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func cleanPatterns(patterns []string) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(p)), "./")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
