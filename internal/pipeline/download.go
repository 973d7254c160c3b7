package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/tidwall/pretty"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
	"github.com/lexiaoyao20/i18n-app/internal/langfile"
)

// DownloadOptions controls a download.
type DownloadOptions struct {
	// Dir receives one file per language. Empty means the project's
	// preview directory.
	Dir string

	// Format of the written files; JSON when empty.
	Format langfile.Format
}

// Download writes the newest published file of every language into a
// freshly cleared directory.
func (p *Pipeline) Download(ctx context.Context, opts DownloadOptions) (report *Report, err error) {
	logger := zerolog.Ctx(ctx)
	r := newRun(ctx, "download")
	defer func() { r.finish(ctx, err) }()

	dir := opts.Dir
	if dir == "" {
		dir = p.project.PreviewDir()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if contains(dir, p.project.Root) {
		return nil, fmt.Errorf("refusing to clear %s: it contains the project root %s", dir, p.project.Root)
	}
	format := opts.Format
	switch format {
	case "":
		format = langfile.FormatJSON
	case langfile.FormatJSON, langfile.FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported download format %q", format)
	}

	r.to(ctx, StateFetchingManifest)
	manifest, err := p.remote.FetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	groups, outcomes := publishedGroups(manifest)

	logger.Info().Str("dir", dir).Msg("Cleaning target directory")
	if err := resetDir(p.fs, dir); err != nil {
		return nil, err
	}

	r.to(ctx, StateDownloadingRemote)
	results := p.fetchGroups(ctx, groups, func(code string, doc []byte) error {
		return writeDocument(p.fs, outputPath(dir, code, format), doc, format)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, g := range groups {
		path := outputPath(dir, g.LanguageCode, format)
		if results[i].err != nil {
			outcomes = append(outcomes, failed(g.LanguageCode, path, results[i].err))
			continue
		}
		outcomes = append(outcomes, Outcome{Language: g.LanguageCode, Path: path, Status: StatusOK, Keys: results[i].keys})
	}

	report = newReport("download", outcomes)
	logger.Info().
		Int("succeeded", report.Count(StatusOK)).
		Int("failed", report.Count(StatusFailed)).
		Int("total", len(groups)).
		Msg("Download completed")
	return report, report.Err()
}

// contains reports whether path is dir or lies below it.
func contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func outputPath(dir, code string, format langfile.Format) string {
	return filepath.Join(dir, code+"."+string(format))
}

// writeDocument stores a translation document as pretty JSON or nested YAML.
func writeDocument(fs afero.Fs, path string, doc []byte, format langfile.Format) error {
	data := pretty.Pretty(doc)
	if format == langfile.FormatYAML {
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
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %w", apperr.ErrLocalIO, path, err)
	}
	return nil
}

func resetDir(fs afero.Fs, dir string) error {
	if err := fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("%w: clearing %s: %w", apperr.ErrLocalIO, dir, err)
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", apperr.ErrLocalIO, dir, err)
	}
	return nil
}
