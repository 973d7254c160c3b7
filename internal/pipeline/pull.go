package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiaoyao20/i18n-app/internal/langfile"
)

// Pull downloads every published language into the scratch cache and
// replaces the content of each tracked local file of that language.
func (p *Pipeline) Pull(ctx context.Context) (report *Report, err error) {
	logger := zerolog.Ctx(ctx)
	cfg := p.project.Config
	r := newRun(ctx, "pull")
	defer func() { r.finish(ctx, err) }()

	cache := NewScratchCache(p.fs, p.project.CacheDir())
	defer func() {
		r.to(ctx, StateCleaningUp)
		cache.Remove(ctx)
	}()

	r.to(ctx, StateFetchingManifest)
	manifest, err := p.remote.FetchManifest(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest: %w", err)
	}
	groups, outcomes := publishedGroups(manifest)

	r.to(ctx, StateDownloadingRemote)
	if err := cache.Prepare(); err != nil {
		return nil, err
	}
	results := p.fetchGroups(ctx, groups, cache.Write)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := map[string]int{}
	for i, g := range groups {
		if results[i].err != nil {
			outcomes = append(outcomes, failed(g.LanguageCode, "", fmt.Errorf("download: %w", results[i].err)))
			continue
		}
		keys[g.LanguageCode] = results[i].keys
	}

	r.to(ctx, StateSplicing)
	entries, err := langfile.New(p.fs, p.project.Root, cfg.Include, cfg.Exclude).List(ctx)
	if err != nil {
		return nil, err
	}
	spliced := make([]Outcome, len(entries))
	p.fanOut(ctx, len(entries), "updating", func(ctx context.Context, i int) {
		spliced[i] = splice(ctx, cache, entries[i], keys)
	}, func(i int, err error) {
		spliced[i] = failed(entries[i].Language, entries[i].RelPath, err)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report = newReport("pull", outcomes, spliced)
	logger.Info().
		Int("updated", report.Count(StatusOK)).
		Int("skipped", report.Count(StatusSkipped)).
		Int("failed", report.Count(StatusFailed)).
		Msg("Pull completed")
	return report, report.Err()
}

func splice(ctx context.Context, cache *ScratchCache, e *langfile.Entry, keys map[string]int) Outcome {
	logger := zerolog.Ctx(ctx).With().Str("language", e.Language).Str("path", e.RelPath).Logger()

	n, ok := keys[e.Language]
	if !ok {
		logger.Warn().Msg("No downloaded translation for tracked file")
		return skipped(e.Language, e.RelPath, "no remote translation")
	}
	doc, err := cache.Read(e.Language)
	if err == nil {
		err = e.Overwrite(doc)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Updating tracked file failed")
		return failed(e.Language, e.RelPath, err)
	}
	logger.Info().Msg("Updated")
	return Outcome{Language: e.Language, Path: e.RelPath, Status: StatusOK, Keys: n}
}
