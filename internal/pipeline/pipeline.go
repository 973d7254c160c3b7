// Package pipeline implements push, download and pull on top of the local
// translation files and the backend client.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
	"github.com/lexiaoyao20/i18n-app/internal/config"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
	"github.com/lexiaoyao20/i18n-app/internal/langfile"
	"github.com/lexiaoyao20/i18n-app/internal/progress"
	"github.com/lexiaoyao20/i18n-app/internal/remote"
)

const defaultConcurrency = 4

// Remote is the subset of the backend client the pipeline needs.
type Remote interface {
	FetchManifest(ctx context.Context) (*remote.Manifest, error)
	Download(ctx context.Context, group remote.FileGroup) ([]byte, error)
	Upload(ctx context.Context, req remote.UploadRequest) (remote.UploadResult, error)
}

// State is a step of an operation.
type State string

const (
	StateIdle              State = "idle"
	StateFetchingManifest  State = "fetching-manifest"
	StateDownloadingRemote State = "downloading-remote"
	StateDiffing           State = "diffing"
	StateUploading         State = "uploading"
	StateSplicing          State = "splicing"
	StateCleaningUp        State = "cleaning-up"
	StateDone              State = "done"
	StateAborted           State = "aborted"
)

// Pipeline runs sync operations for one project.
type Pipeline struct {
	fs          afero.Fs
	project     config.Project
	remote      Remote
	concurrency int

	progressOut  io.Writer
	showProgress bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConcurrency bounds the number of languages processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithProgress draws progress bars on w when enabled.
func WithProgress(w io.Writer, enabled bool) Option {
	return func(p *Pipeline) {
		p.progressOut = w
		p.showProgress = enabled && w != nil
	}
}

// New returns a pipeline for project using fs for local files.
func New(fs afero.Fs, project config.Project, r Remote, opts ...Option) *Pipeline {
	p := &Pipeline{
		fs:          fs,
		project:     project,
		remote:      r,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run tracks the state of one operation.
type run struct {
	op    string
	state State
}

func newRun(ctx context.Context, op string) *run {
	r := &run{op: op, state: StateIdle}
	zerolog.Ctx(ctx).Debug().Str("op", op).Str("state", string(r.state)).Msg("Starting")
	return r
}

func (r *run) to(ctx context.Context, s State) {
	zerolog.Ctx(ctx).Debug().
		Str("op", r.op).
		Str("from", string(r.state)).
		Str("to", string(s)).
		Msg("State transition")
	r.state = s
}

// finish moves the run to its terminal state.
func (r *run) finish(ctx context.Context, err error) {
	if err != nil {
		r.to(ctx, StateAborted)
		return
	}
	r.to(ctx, StateDone)
}

// fanOut calls fn for every index in [0, n) with at most p.concurrency calls
// in flight. fn reports its own failures; once ctx is done the remaining
// indexes receive the context error through cancelled.
func (p *Pipeline) fanOut(ctx context.Context, n int, description string, fn func(ctx context.Context, i int), cancelled func(i int, err error)) {
	bar := progress.New(p.progressOut, n, description, p.showProgress)
	defer bar.Done()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range n {
		g.Go(func() error {
			defer bar.Step()
			if err := gctx.Err(); err != nil {
				cancelled(i, err)
				return nil
			}
			fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// fetched is the result of downloading one file group.
type fetched struct {
	keys int
	err  error
}

// fetchGroups downloads the newest file of every group and hands each
// unwrapped translation document to store. Results are indexed like groups.
func (p *Pipeline) fetchGroups(ctx context.Context, groups []remote.FileGroup, store func(code string, doc []byte) error) []fetched {
	results := make([]fetched, len(groups))
	p.fanOut(ctx, len(groups), "downloading", func(ctx context.Context, i int) {
		results[i] = p.fetchGroup(ctx, groups[i], store)
	}, func(i int, err error) {
		results[i] = fetched{err: err}
	})
	return results
}

func (p *Pipeline) fetchGroup(ctx context.Context, g remote.FileGroup, store func(code string, doc []byte) error) fetched {
	logger := zerolog.Ctx(ctx).With().Str("language", g.LanguageCode).Logger()

	body, err := p.remote.Download(ctx, g)
	if err != nil {
		logger.Warn().Err(err).Msg("Download failed")
		return fetched{err: err}
	}
	doc, err := remote.UnwrapLanguage(body, g.LanguageCode)
	if err != nil {
		logger.Warn().Err(err).Msg("Downloaded file has no translation content")
		return fetched{err: err}
	}
	m, err := flat.Flatten(doc)
	if err != nil {
		logger.Warn().Err(err).Msg("Downloaded file is malformed")
		return fetched{err: err}
	}
	if err := store(g.LanguageCode, doc); err != nil {
		logger.Error().Err(err).Msg("Storing download failed")
		return fetched{err: err}
	}
	logger.Debug().Int("keys", m.Len()).Msg("Downloaded")
	return fetched{keys: m.Len()}
}

// publishedGroups splits the manifest groups into those with at least one
// file, one per language, and outcomes for the rest. Groups whose language
// code cannot name a file fail.
func publishedGroups(m *remote.Manifest) ([]remote.FileGroup, []Outcome) {
	var (
		groups []remote.FileGroup
		others []Outcome
	)
	for _, g := range lo.UniqBy(m.FileGroups, func(g remote.FileGroup) string { return g.LanguageCode }) {
		switch {
		case !validLanguageCode(g.LanguageCode):
			others = append(others, failed(g.LanguageCode, "", fmt.Errorf("%w: invalid language code %q", apperr.ErrInvalidFormat, g.LanguageCode)))
		case len(g.FileNames) == 0:
			others = append(others, skipped(g.LanguageCode, "", "no published files"))
		default:
			groups = append(groups, g)
		}
	}
	return groups, others
}

// validLanguageCode reports whether a backend language code is a plain
// language tag, usable as a file name inside the target directory.
func validLanguageCode(code string) bool {
	lang, ok := langfile.LanguageOf(code + ".json")
	return ok && lang == code && filepath.Base(code) == code
}
