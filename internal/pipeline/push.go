package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/lexiaoyao20/i18n-app/internal/flat"
	"github.com/lexiaoyao20/i18n-app/internal/langfile"
	"github.com/lexiaoyao20/i18n-app/internal/remote"
)

// PushOptions controls a push.
type PushOptions struct {
	// Root is the directory scanned for translation files. Empty means the
	// project root.
	Root string

	// DryRun computes changesets without uploading them.
	DryRun bool
}

// detailFullUpload marks a language uploaded in full because its published
// file could not be downloaded.
const detailFullUpload = "remote unavailable, full upload"

type changeset struct {
	entry   *langfile.Entry
	changes *flat.Map
	detail  string
}

// Push uploads every local key that is new or changed compared with the
// backend. When the backend has nothing published yet, or cannot be asked,
// every local key is uploaded.
func (p *Pipeline) Push(ctx context.Context, opts PushOptions) (report *Report, err error) {
	logger := zerolog.Ctx(ctx)
	cfg := p.project.Config
	r := newRun(ctx, "push")
	defer func() { r.finish(ctx, err) }()

	root := opts.Root
	if root == "" {
		root = p.project.Root
	}

	entries, err := langfile.New(p.fs, root, cfg.Include, cfg.Exclude).List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, err := e.Load(); err != nil {
			return nil, err
		}
	}
	if len(entries) == 0 {
		logger.Warn().Strs("include", cfg.Include).Msg("No translation files found")
		return newReport("push"), nil
	}
	logger.Info().Int("files", len(entries)).Msg("Found local translation files")

	var base *flat.Map
	if cfg.FillMissing {
		if base, err = baseMap(entries, cfg.BaseLanguage); err != nil {
			return nil, err
		}
	}

	cache := NewScratchCache(p.fs, p.project.CacheDir())
	defer func() {
		r.to(ctx, StateCleaningUp)
		cache.Remove(ctx)
	}()

	r.to(ctx, StateFetchingManifest)
	fullUpload := false
	manifest, merr := p.remote.FetchManifest(ctx)
	switch {
	case merr != nil:
		logger.Warn().Err(merr).Msg("Could not fetch manifest, uploading every key")
		fullUpload = true
	case len(manifest.FileGroups) == 0:
		logger.Warn().Msg("Backend has no published files yet, uploading every key")
		fullUpload = true
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	unavailable := map[string]bool{}
	if !fullUpload {
		r.to(ctx, StateDownloadingRemote)
		if err := cache.Prepare(); err != nil {
			return nil, err
		}
		languages := lo.Uniq(lo.Map(entries, func(e *langfile.Entry, _ int) string { return e.Language }))
		groups := lo.FilterMap(languages, func(code string, _ int) (remote.FileGroup, bool) {
			g, ok := manifest.Group(code)
			return g, ok && len(g.FileNames) > 0 && validLanguageCode(g.LanguageCode)
		})
		// Failed languages keep no cache file and diff against an empty map.
		results := p.fetchGroups(ctx, groups, cache.Write)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, g := range groups {
			if results[i].err != nil {
				unavailable[g.LanguageCode] = true
			}
		}
	}

	r.to(ctx, StateDiffing)
	sets := make([]changeset, 0, len(entries))
	for _, e := range entries {
		local, _ := e.Load()
		remoteMap := flat.New()
		if !fullUpload {
			remoteMap = cache.Load(ctx, e.Language)
		}
		changes := flat.Diff(local, remoteMap)
		if base != nil && e.Language != cfg.BaseLanguage {
			if n := changes.Merge(flat.Missing(base, local)); n > 0 {
				logger.Info().Str("language", e.Language).Int("keys", n).Msg("Filling keys missing from base language")
			}
		}
		set := changeset{entry: e, changes: changes}
		if unavailable[e.Language] {
			set.detail = detailFullUpload
		}
		sets = append(sets, set)
	}

	r.to(ctx, StateUploading)
	outcomes := p.upload(ctx, sets, opts.DryRun)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report = newReport("push", outcomes)
	report.DryRun = opts.DryRun
	return report, report.Err()
}

func (p *Pipeline) upload(ctx context.Context, sets []changeset, dryRun bool) []Outcome {
	outcomes := make([]Outcome, len(sets))
	p.fanOut(ctx, len(sets), "uploading", func(ctx context.Context, i int) {
		o := p.uploadOne(ctx, sets[i], dryRun)
		if note := sets[i].detail; note != "" && o.Status != StatusFailed {
			o.Detail = strings.TrimPrefix(o.Detail+"; "+note, "; ")
		}
		outcomes[i] = o
	}, func(i int, err error) {
		outcomes[i] = failed(sets[i].entry.Language, sets[i].entry.RelPath, err)
	})
	return outcomes
}

func (p *Pipeline) uploadOne(ctx context.Context, set changeset, dryRun bool) Outcome {
	e := set.entry
	logger := zerolog.Ctx(ctx).With().Str("language", e.Language).Str("path", e.RelPath).Logger()

	if set.changes.Len() == 0 {
		logger.Info().Msg("No changes")
		return Outcome{Language: e.Language, Path: e.RelPath, Status: StatusUnchanged}
	}

	logger.Info().Int("keys", set.changes.Len()).Msg("Uploading changed keys")
	level := zerolog.DebugLevel
	if dryRun {
		level = zerolog.InfoLevel
	}
	for k, v := range set.changes.All() {
		logger.WithLevel(level).Str("key", k).Str("value", v).Msg("Changed")
	}

	if dryRun {
		return Outcome{Language: e.Language, Path: e.RelPath, Status: StatusSkipped, Keys: set.changes.Len(), Detail: "dry run"}
	}

	res, err := p.remote.Upload(ctx, remote.NewUploadRequest(p.project.Config, e.Language, e.RelPath, set.changes))
	if err != nil {
		logger.Error().Err(err).Msg("Upload failed")
		return failed(e.Language, e.RelPath, err)
	}
	logger.Info().Msg("Upload succeeded")
	return Outcome{
		Language:   e.Language,
		Path:       e.RelPath,
		Status:     StatusOK,
		Keys:       set.changes.Len(),
		Validation: res.Data,
	}
}

// baseMap merges every local file of the base language.
func baseMap(entries []*langfile.Entry, code string) (*flat.Map, error) {
	bases := lo.Filter(entries, func(e *langfile.Entry, _ int) bool { return e.Language == code })
	if len(bases) == 0 {
		return nil, fmt.Errorf("base language %s not found in local translations", code)
	}
	m := flat.New()
	for _, e := range bases {
		local, err := e.Load()
		if err != nil {
			return nil, err
		}
		m.Merge(local)
	}
	return m, nil
}
