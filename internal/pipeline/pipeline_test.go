package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiaoyao20/i18n-app/internal/apperr"
	"github.com/lexiaoyao20/i18n-app/internal/config"
	"github.com/lexiaoyao20/i18n-app/internal/flat"
	"github.com/lexiaoyao20/i18n-app/internal/langfile"
	"github.com/lexiaoyao20/i18n-app/internal/remote"
)

const root = "/proj"

// fakeRemote is an in-memory backend. files maps a language code to the
// body served for its newest file.
type fakeRemote struct {
	mu          sync.Mutex
	manifest    *remote.Manifest
	manifestErr error
	files       map[string]string
	downloadErr map[string]error
	uploadErr   map[string]error
	delay       map[string]time.Duration
	onDownload  func(code string)

	manifestCalls int
	downloads     []string
	uploads       []remote.UploadRequest
}

func (f *fakeRemote) FetchManifest(context.Context) (*remote.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifestCalls++
	if f.manifestErr != nil {
		return nil, f.manifestErr
	}
	if f.manifest == nil {
		return &remote.Manifest{}, nil
	}
	return f.manifest, nil
}

func (f *fakeRemote) Download(_ context.Context, g remote.FileGroup) ([]byte, error) {
	if f.onDownload != nil {
		f.onDownload(g.LanguageCode)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, g.LanguageCode)
	if err := f.downloadErr[g.LanguageCode]; err != nil {
		return nil, err
	}
	return []byte(f.files[g.LanguageCode]), nil
}

func (f *fakeRemote) Upload(_ context.Context, req remote.UploadRequest) (remote.UploadResult, error) {
	if d := f.delay[req.LanguageCode]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, req)
	if err := f.uploadErr[req.LanguageCode]; err != nil {
		return remote.UploadResult{}, err
	}
	return remote.UploadResult{Success: true, Data: []byte(`{"success":true}`)}, nil
}

func (f *fakeRemote) upload(t *testing.T, code string) remote.UploadRequest {
	t.Helper()
	for _, u := range f.uploads {
		if u.LanguageCode == code {
			return u
		}
	}
	t.Fatalf("no upload for %s", code)
	return remote.UploadRequest{}
}

func manifestOf(codes ...string) *remote.Manifest {
	m := &remote.Manifest{TaskHash: "hash"}
	for _, c := range codes {
		m.FileGroups = append(m.FileGroups, remote.FileGroup{
			LanguageCode: c,
			PathPrefix:   "/files",
			FileNames:    []string{c + "-old.json", c + ".json"},
		})
	}
	return m
}

func testProject(include ...string) config.Project {
	cfg := config.Default()
	cfg.Host = "https://example.com"
	if len(include) == 0 {
		include = []string{"*.json"}
	}
	cfg.Include = include
	return config.Project{Root: root, Config: cfg}
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, filepath.Join(root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func assertNoScratchCache(t *testing.T, fs afero.Fs, p config.Project) {
	t.Helper()
	ok, err := afero.DirExists(fs, p.CacheDir())
	require.NoError(t, err)
	assert.False(t, ok, "scratch cache must not outlive the operation")
}

func keysOf(m *flat.Map) [][2]string {
	var out [][2]string
	for k, v := range m.All() {
		out = append(out, [2]string{k, v})
	}
	return out
}

func TestPushUploadsChangedKeys(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"key1":"Value1","Key2":"Value2","detail":{"label_date":"Date","label_time":"Time"}}`,
	})
	fake := &fakeRemote{
		manifest: manifestOf("en-US"),
		files:    map[string]string{"en-US": `{"languages/en-US.json":{"key1":"aaaa","detail":{"label_date":"Date"}}}`},
	}
	project := testProject()

	report, err := New(fs, project, fake).Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	require.Len(t, fake.uploads, 1)
	up := fake.uploads[0]
	assert.Equal(t, "/json/en-US.json", up.Path)
	assert.Equal(t, [][2]string{
		{"key1", "Value1"},
		{"Key2", "Value2"},
		{"detail.label_time", "Time"},
	}, keysOf(up.TermAndText))

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatusOK, report.Outcomes[0].Status)
	assert.Equal(t, 3, report.Outcomes[0].Keys)
	assert.JSONEq(t, `{"success":true}`, string(report.Outcomes[0].Validation))
	assertNoScratchCache(t, fs, project)
}

func TestPushWithEmptyManifestUploadsEverything(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"a":"1","b":{"c":"2"}}`,
		"zh-CN.json": `{"a":"一"}`,
	})
	fake := &fakeRemote{manifest: &remote.Manifest{}}

	report, err := New(fs, testProject(), fake).Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	assert.Empty(t, fake.downloads, "no download without published files")
	assert.Equal(t, [][2]string{{"a", "1"}, {"b.c", "2"}}, keysOf(fake.upload(t, "en-US").TermAndText))
	assert.Equal(t, [][2]string{{"a", "一"}}, keysOf(fake.upload(t, "zh-CN").TermAndText))
	assert.Equal(t, 2, report.Count(StatusOK))
}

func TestPushFallsBackWhenManifestFails(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"en-US.json": `{"a":"1"}`})
	fake := &fakeRemote{manifestErr: apperr.ErrUnreachable}
	project := testProject()

	_, err := New(fs, project, fake).Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	assert.Empty(t, fake.downloads)
	assert.Len(t, fake.uploads, 1)
	assertNoScratchCache(t, fs, project)
}

func TestPushAbortsOnMalformedLocalFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"a":"1"}`,
		"fr.json":    `{"a":`,
	})
	fake := &fakeRemote{manifest: manifestOf("en-US")}

	_, err := New(fs, testProject(), fake).Push(context.Background(), PushOptions{})
	require.ErrorIs(t, err, apperr.ErrInvalidFormat)
	assert.Zero(t, fake.manifestCalls, "no network call before local files are valid")
	assert.Empty(t, fake.uploads)
}

func TestPushDownloadFailureDegradesToFullUpload(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"a":"1","b":"2"}`,
		"fr.json":    `{"a":"un","b":"deux"}`,
	})
	fake := &fakeRemote{
		manifest: manifestOf("en-US", "fr"),
		files: map[string]string{
			"en-US": `{"languages/en-US.json":{"a":"1","b":"2"}}`,
			"fr":    `not json`,
		},
	}

	report, err := New(fs, testProject(), fake).Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"en-US", "fr"}, fake.downloads)
	require.Len(t, fake.uploads, 1)
	assert.Equal(t, [][2]string{{"a", "un"}, {"b", "deux"}}, keysOf(fake.upload(t, "fr").TermAndText))
	assert.Equal(t, []Status{StatusUnchanged, StatusOK}, []Status{report.Outcomes[0].Status, report.Outcomes[1].Status})
	assert.Empty(t, report.Outcomes[0].Detail)
	assert.Equal(t, "remote unavailable, full upload", report.Outcomes[1].Detail)
}

func TestPushAbortsOnNonUTF8LocalFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"a":"1"}`,
		"fr.json":    "{\"a\":\"caf\xe9\"}",
	})
	fake := &fakeRemote{manifest: manifestOf("en-US", "fr")}

	_, err := New(fs, testProject(), fake).Push(context.Background(), PushOptions{})
	require.ErrorIs(t, err, apperr.ErrInvalidFormat)
	assert.Zero(t, fake.manifestCalls)
	assert.Empty(t, fake.uploads)
}

func TestPushPartialFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"a":"1"}`,
		"fr.json":    `{"a":"un"}`,
		"de.json":    `{"a":"eins"}`,
	})
	rejected := &remote.APIError{StatusCode: 200, Code: 500, Message: "term too long", Err: apperr.ErrRemoteFailure}
	fake := &fakeRemote{
		manifest:  manifestOf("en-US"),
		files:     map[string]string{"en-US": `{"languages/en-US.json":{}}`},
		uploadErr: map[string]error{"fr": rejected},
	}
	project := testProject()

	report, err := New(fs, project, fake).Push(context.Background(), PushOptions{})
	require.ErrorIs(t, err, apperr.ErrPartialFailure)

	var pf *apperr.PartialFailure
	require.True(t, errors.As(err, &pf))
	assert.Equal(t, []string{"fr"}, pf.Languages())
	assert.Contains(t, err.Error(), "term too long")

	require.NotNil(t, report)
	assert.Len(t, fake.uploads, 3, "a failure never stops sibling languages")
	assert.Equal(t, StatusFailed, report.Outcomes[2].Status)
	assertNoScratchCache(t, fs, project)
}

func TestPushDryRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"en-US.json": `{"a":"1"}`})
	fake := &fakeRemote{manifest: &remote.Manifest{}}

	report, err := New(fs, testProject(), fake).Push(context.Background(), PushOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, fake.uploads)
	assert.True(t, report.DryRun)
	assert.Equal(t, StatusSkipped, report.Outcomes[0].Status)
	assert.Equal(t, 1, report.Outcomes[0].Keys)
}

func TestPushFillMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json": `{"a":"A","b":"B"}`,
		"fr.json":    `{"a":"un"}`,
	})
	fake := &fakeRemote{manifest: &remote.Manifest{}}
	project := testProject()
	project.Config.FillMissing = true

	_, err := New(fs, project, fake).Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"a", "un"}, {"b", "B"}}, keysOf(fake.upload(t, "fr").TermAndText))
	assert.Equal(t, [][2]string{{"a", "A"}, {"b", "B"}}, keysOf(fake.upload(t, "en-US").TermAndText))
}

func TestPushFillMissingNeedsBaseLanguage(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"fr.json": `{"a":"un"}`})
	fake := &fakeRemote{}
	project := testProject()
	project.Config.FillMissing = true

	_, err := New(fs, project, fake).Push(context.Background(), PushOptions{})
	require.ErrorContains(t, err, "base language en-US not found")
	assert.Zero(t, fake.manifestCalls)
}

func TestPushCleansUpWhenInterrupted(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"en-US.json": `{"a":"1"}`})
	project := testProject()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &fakeRemote{
		manifest:   manifestOf("en-US"),
		files:      map[string]string{"en-US": `{"languages/en-US.json":{"a":"0"}}`},
		onDownload: func(string) { cancel() },
	}

	report, err := New(fs, project, fake).Push(ctx, PushOptions{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
	assert.Empty(t, fake.uploads)
	assertNoScratchCache(t, fs, project)
}

func TestPushRemovesStaleScratchCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json":                  `{"a":"1"}`,
		".i18n-app/cache/en-US.json": `{"a":"1"}`,
	})
	fake := &fakeRemote{manifest: manifestOf("en-US"), downloadErr: map[string]error{"en-US": apperr.ErrUnreachable}}
	project := testProject()

	_, err := New(fs, project, fake).Push(context.Background(), PushOptions{})
	require.NoError(t, err)
	require.Len(t, fake.uploads, 1, "stale cache content must not hide local keys")
	assertNoScratchCache(t, fs, project)
}

func TestReportOrderIsDeterministic(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"zh-CN.json": `{"a":"1"}`,
		"de.json":    `{"a":"1"}`,
		"en-US.json": `{"a":"1"}`,
		"fr.json":    `{"a":"1"}`,
	})
	fake := &fakeRemote{
		manifest: &remote.Manifest{},
		delay:    map[string]time.Duration{"de": 30 * time.Millisecond, "en-US": 10 * time.Millisecond},
	}

	report, err := New(fs, testProject(), fake, WithConcurrency(4)).Push(context.Background(), PushOptions{})
	require.NoError(t, err)

	var got []string
	for _, o := range report.Outcomes {
		got = append(got, o.Language)
	}
	assert.Equal(t, []string{"de", "en-US", "fr", "zh-CN"}, got)
}

func TestDownload(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{".i18n-app/preview/stale.json": `{}`})
	fake := &fakeRemote{
		manifest: manifestOf("en-US", "fr"),
		files: map[string]string{
			"en-US": `{"languages/en-US.json":{"a":{"b":"x"}}}`,
			"fr":    `{"languages/fr.json":{"a":{"b":"y"}}}`,
		},
	}
	fake.manifest.FileGroups = append(fake.manifest.FileGroups, remote.FileGroup{LanguageCode: "ja"})
	project := testProject()

	report, err := New(fs, project, fake).Download(context.Background(), DownloadOptions{})
	require.NoError(t, err)

	assert.JSONEq(t, `{"a":{"b":"x"}}`, readFile(t, fs, ".i18n-app/preview/en-US.json"))
	assert.Equal(t, "{\n  \"a\": {\n    \"b\": \"y\"\n  }\n}\n", readFile(t, fs, ".i18n-app/preview/fr.json"))
	ok, err := afero.Exists(fs, filepath.Join(project.PreviewDir(), "stale.json"))
	require.NoError(t, err)
	assert.False(t, ok, "target directory is cleared first")

	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, Outcome{Language: "ja", Status: StatusSkipped, Detail: "no published files"}, report.Outcomes[2])
	assert.Equal(t, 1, report.Outcomes[0].Keys)
}

func TestDownloadYAMLToDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	fake := &fakeRemote{
		manifest: manifestOf("en-US"),
		files:    map[string]string{"en-US": `{"languages/en-US.json":{"a":{"b":"x","n":"1"}}}`},
	}

	_, err := New(fs, testProject(), fake).Download(context.Background(), DownloadOptions{Dir: "/out", Format: langfile.FormatYAML})
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/out/en-US.yaml")
	require.NoError(t, err)
	assert.Equal(t, "a:\n  b: x\n  n: \"1\"\n", string(data))
}

func TestDownloadFailures(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := New(fs, testProject(), &fakeRemote{manifestErr: apperr.ErrUnreachable}).
		Download(context.Background(), DownloadOptions{})
	require.ErrorIs(t, err, apperr.ErrUnreachable)

	fake := &fakeRemote{
		manifest:    manifestOf("en-US", "fr"),
		files:       map[string]string{"en-US": `{"languages/en-US.json":{"a":"x"}}`},
		downloadErr: map[string]error{"fr": apperr.ErrRemoteFailure},
	}
	report, err := New(fs, testProject(), fake).Download(context.Background(), DownloadOptions{})
	require.ErrorIs(t, err, apperr.ErrPartialFailure)
	assert.Equal(t, 1, report.Count(StatusOK))
	assert.Equal(t, 1, report.Count(StatusFailed))

	_, err = New(fs, testProject(), fake).Download(context.Background(), DownloadOptions{Format: "xml"})
	assert.Error(t, err)
}

func TestPull(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"en-US.json":      `{"old":"x"}`,
		"locales/fr.yaml": "old: x\n",
		"de.json":         `{"k":"v"}`,
	})
	fake := &fakeRemote{
		manifest: manifestOf("en-US", "fr"),
		files: map[string]string{
			"en-US": `{"languages/en-US.json":{"new":{"a":"1"}}}`,
			"fr":    `{"languages/fr.json":{"hello":"bonjour"}}`,
		},
	}
	fake.manifest.FileGroups = append(fake.manifest.FileGroups, remote.FileGroup{LanguageCode: "ja"})
	project := testProject("*.json", "locales/*.yaml")

	report, err := New(fs, project, fake).Pull(context.Background())
	require.NoError(t, err)

	assert.JSONEq(t, `{"new":{"a":"1"}}`, readFile(t, fs, "en-US.json"))
	assert.Equal(t, "hello: bonjour\n", readFile(t, fs, "locales/fr.yaml"))
	assert.JSONEq(t, `{"k":"v"}`, readFile(t, fs, "de.json"))

	var got [][2]string
	for _, o := range report.Outcomes {
		got = append(got, [2]string{o.Language, string(o.Status)})
	}
	assert.Equal(t, [][2]string{
		{"de", "skipped"},
		{"en-US", "ok"},
		{"fr", "ok"},
		{"ja", "skipped"},
	}, got)
	assertNoScratchCache(t, fs, project)
}

func TestPullReportsDownloadFailureAndCleansUp(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"en-US.json": `{"old":"x"}`})
	fake := &fakeRemote{
		manifest:    manifestOf("en-US"),
		downloadErr: map[string]error{"en-US": apperr.ErrUnreachable},
	}
	project := testProject()

	report, err := New(fs, project, fake).Pull(context.Background())
	require.ErrorIs(t, err, apperr.ErrPartialFailure)
	assert.Equal(t, 1, report.Count(StatusFailed))
	assert.Equal(t, 1, report.Count(StatusSkipped))
	assert.JSONEq(t, `{"old":"x"}`, readFile(t, fs, "en-US.json"))
	assertNoScratchCache(t, fs, project)
}

func TestPullManifestFailureIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	project := testProject()

	_, err := New(fs, project, &fakeRemote{manifestErr: apperr.ErrRemoteFailure}).Pull(context.Background())
	require.ErrorIs(t, err, apperr.ErrRemoteFailure)
	assertNoScratchCache(t, fs, project)
}

func TestUnsafeLanguageCodesNeverReachTheFilesystem(t *testing.T) {
	const bad = "../../en-US"
	newFake := func() *fakeRemote {
		return &fakeRemote{
			manifest: &remote.Manifest{FileGroups: []remote.FileGroup{
				{LanguageCode: bad, PathPrefix: "/files", FileNames: []string{"x.json"}},
				{LanguageCode: "fr/../../x", PathPrefix: "/files", FileNames: []string{"y.json"}},
			}},
			files: map[string]string{
				bad:          `{"evil":"yes"}`,
				"fr/../../x": `{"evil":"yes"}`,
			},
		}
	}

	t.Run("download", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFiles(t, fs, map[string]string{"en-US.json": `{"a":"1"}`})
		fake := newFake()

		report, err := New(fs, testProject(), fake).Download(context.Background(), DownloadOptions{})
		require.ErrorIs(t, err, apperr.ErrPartialFailure)
		assert.Empty(t, fake.downloads)
		assert.Equal(t, 2, report.Count(StatusFailed))
		for _, o := range report.Outcomes {
			assert.ErrorIs(t, o.Err, apperr.ErrInvalidFormat)
		}
		assert.JSONEq(t, `{"a":"1"}`, readFile(t, fs, "en-US.json"))
	})

	t.Run("pull", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFiles(t, fs, map[string]string{"en-US.json": `{"a":"1"}`})
		fake := newFake()
		project := testProject()

		report, err := New(fs, project, fake).Pull(context.Background())
		require.ErrorIs(t, err, apperr.ErrPartialFailure)
		assert.Empty(t, fake.downloads)
		assert.Equal(t, 2, report.Count(StatusFailed))
		assert.Equal(t, 1, report.Count(StatusSkipped))
		assert.JSONEq(t, `{"a":"1"}`, readFile(t, fs, "en-US.json"))
		assertNoScratchCache(t, fs, project)
	})
}

func TestDownloadRefusesToClearProject(t *testing.T) {
	for _, dir := range []string{root, "/", root + "/"} {
		t.Run(dir, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, map[string]string{"en-US.json": `{"a":"1"}`})
			fake := &fakeRemote{manifest: manifestOf("en-US")}

			_, err := New(fs, testProject(), fake).Download(context.Background(), DownloadOptions{Dir: dir})
			require.ErrorContains(t, err, "contains the project root")
			assert.Zero(t, fake.manifestCalls)
			assert.JSONEq(t, `{"a":"1"}`, readFile(t, fs, "en-US.json"))
		})
	}
}
