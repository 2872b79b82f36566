package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/database"
	"github.com/glefebvre/vodharvest/internal/downloader"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/external/vod"
	"github.com/glefebvre/vodharvest/internal/metrics"
	"github.com/glefebvre/vodharvest/internal/models"
	testhelpers "github.com/glefebvre/vodharvest/internal/testing"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream serves canned pages and records the calls it receives
type fakeUpstream struct {
	mu       sync.Mutex
	calls    []string
	loginErr error

	showPages    []string
	episodePages map[string][]string
	streams      map[string]string
}

func (f *fakeUpstream) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeUpstream) Module() string { return "antena-play" }

func (f *fakeUpstream) Login(ctx context.Context) error {
	f.record("login")
	return f.loginErr
}

func (f *fakeUpstream) RefreshChannels(ctx context.Context) error {
	f.record("updatechannels")
	return nil
}

func (f *fakeUpstream) ShowsPage(ctx context.Context, page int, search string) (json.RawMessage, error) {
	f.record(fmt.Sprintf("vod?page=%d", page))
	if page > len(f.showPages) {
		return nil, errors.TransportFailure("vod", http.StatusNotFound, nil)
	}
	return json.RawMessage(f.showPages[page-1]), nil
}

func (f *fakeUpstream) EpisodesPage(ctx context.Context, showID string, page int) (json.RawMessage, error) {
	f.record(fmt.Sprintf("vod/%s?page=%d", showID, page))
	pages := f.episodePages[showID]
	if page > len(pages) {
		return json.RawMessage(`{"status":"SUCCESS","data":{"data":[]}}`), nil
	}
	return json.RawMessage(pages[page-1]), nil
}

func (f *fakeUpstream) EpisodeStream(ctx context.Context, showID, episodeID string) (json.RawMessage, error) {
	f.record(fmt.Sprintf("vod/%s/%s", showID, episodeID))
	url, ok := f.streams[catalog.StreamKey(showID, episodeID)]
	if !ok {
		return json.RawMessage(`{"status":"ERROR"}`), nil
	}
	return json.RawMessage(fmt.Sprintf(`{"status":"SUCCESS","data":{"stream":%q}}`, url)), nil
}

func (f *fakeUpstream) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func listPage(current, total int, items ...string) string {
	return fmt.Sprintf(`{"status":"SUCCESS","data":{"data":[%s],"pagination":{"current_page":%d,"total_pages":%d}}}`,
		strings.Join(items, ","), current, total)
}

// newCatalog is a two page catalog: a serial with two episodes, a film with one,
// a duplicate of the serial and an item without id
func newCatalog() *fakeUpstream {
	return &fakeUpstream{
		showPages: []string{
			listPage(1, 2,
				`{"id":1,"name":"Old Name","category":"Seriale"}`,
				`{"id":"2","name":"Film","category":"Filme"}`),
			listPage(2, 2,
				`{"id":1,"name":"Serial","category":"Seriale"}`,
				`{"name":"no id"}`),
		},
		episodePages: map[string][]string{
			"1": {listPage(1, 1,
				`{"id":11,"name":"Serial S01E01","date":"2024-01-01"}`,
				`{"id":12,"name":"Serial S01E02","date":"2024-01-08"}`)},
			"2": {listPage(1, 1, `{"id":21,"name":"Film"}`)},
		},
		streams: map[string]string{
			"1:11": "http://cdn/1-11.m3u8",
			"1:12": "http://cdn/1-12.m3u8",
			"2:21": "http://cdn/2-21.m3u8",
		},
	}
}

// fakeRemuxer writes a small file instead of running ffmpeg
type fakeRemuxer struct {
	mu    sync.Mutex
	calls []string
}

func (r *fakeRemuxer) Remux(ctx context.Context, streamURL, outputPath string) error {
	r.mu.Lock()
	r.calls = append(r.calls, streamURL)
	r.mu.Unlock()
	return os.WriteFile(outputPath, []byte("mp4"), 0644)
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func baseOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		BaseURL: "http://127.0.0.1:8090",
		OutDir:  t.TempDir(),
		Workers: 1,
	}
}

func readJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func artifactNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	return names
}

func TestRun_ShowsOnly(t *testing.T) {
	up := newCatalog()
	opts := baseOptions(t)

	res, err := New(up, opts, WithClock(fixedClock)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"login", "updatechannels", "vod?page=1", "vod?page=2"}, up.calls)

	require.Len(t, res.Shows, 2)
	assert.Equal(t, "2", res.Shows[0].ID, "Filme sorts before Seriale")
	assert.Equal(t, "Serial", res.Shows[1].Name, "later duplicate wins")
	assert.Empty(t, res.EpisodesByShow)
	assert.Empty(t, res.Streams)
	assert.Nil(t, res.Downloads)
	assert.NotEmpty(t, res.RunID)

	assert.Equal(t, []string{
		"antena-play_vod_by_category.json",
		"antena-play_vod_library.json",
		"antena-play_vod_shows.csv",
		"antena-play_vod_shows.json",
	}, artifactNames(res.Artifacts))

	var lib struct {
		GeneratedAt string                     `json:"generatedAt"`
		Categories  map[string]json.RawMessage `json:"categories"`
	}
	readJSON(t, filepath.Join(opts.OutDir, "antena-play_vod_library.json"), &lib)
	assert.Equal(t, "2024-05-01T12:00:00Z", lib.GeneratedAt)
	assert.Len(t, lib.Categories, 2)

	// the lock is released after the run
	fl := flock.New(filepath.Join(opts.OutDir, LockFile))
	ok, err := fl.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	fl.Unlock()
}

func TestRun_WithEpisodes(t *testing.T) {
	up := newCatalog()
	opts := baseOptions(t)
	opts.WithEpisodes = true

	res, err := New(up, opts).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.EpisodesByShow, 2)
	assert.Len(t, res.EpisodesByShow["1"], 2)
	assert.Len(t, res.EpisodesByShow["2"], 1)
	assert.Empty(t, res.Streams, "streams are not resolved without --with-streams")
	assert.Zero(t, up.count("vod/1/"))

	var byShow map[string]struct {
		Episodes []map[string]interface{} `json:"episodes"`
	}
	readJSON(t, filepath.Join(opts.OutDir, "antena-play_vod_episodes_by_show.json"), &byShow)
	assert.Len(t, byShow["1"].Episodes, 2)

	st := res.Library.Stats()
	assert.Equal(t, 1, st.Films)
	assert.Equal(t, 1, st.Serials)
	assert.Equal(t, 3, st.Episodes)
}

func TestRun_EpisodeWalkStopsOnNonObjectData(t *testing.T) {
	up := newCatalog()
	up.episodePages["1"] = []string{
		listPage(1, 3, `{"id":11,"name":"E1"}`),
		`{"status":"SUCCESS","data":[]}`,
		listPage(3, 3, `{"id":13,"name":"E3"}`),
	}
	opts := baseOptions(t)
	opts.WithEpisodes = true

	res, err := New(up, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.EpisodesByShow["1"], 1)
	assert.Equal(t, 2, up.count("vod/1?"))
}

func TestRun_EpisodesMaxPages(t *testing.T) {
	up := newCatalog()
	up.episodePages["1"] = []string{
		listPage(1, 2, `{"id":11,"name":"E1"}`),
		listPage(2, 2, `{"id":12,"name":"E2"}`),
	}
	opts := baseOptions(t)
	opts.WithEpisodes = true
	opts.EpisodesMaxPages = 1

	res, err := New(up, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.EpisodesByShow["1"], 1)
	assert.Equal(t, 1, up.count("vod/1?"))
}

func TestRun_StreamsAndDownloads(t *testing.T) {
	up := newCatalog()
	db := testhelpers.TestDB(t)
	store := database.NewStore(db)
	remuxer := &fakeRemuxer{}
	m := metrics.New()

	opts := baseOptions(t)
	opts.WithStreams = true
	opts.Download = true
	opts.Downloads = downloader.Options{MediaDir: filepath.Join(opts.OutDir, "media")}
	opts.MetricsTextfile = filepath.Join(opts.OutDir, "vodharvest.prom")

	res, err := New(up, opts, WithStore(store), WithRemuxer(remuxer), WithMetrics(m)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"1:11": "http://cdn/1-11.m3u8",
		"1:12": "http://cdn/1-12.m3u8",
		"2:21": "http://cdn/2-21.m3u8",
	}, res.Streams)
	assert.Len(t, res.Artifacts, 6)

	require.NotNil(t, res.Downloads)
	assert.Equal(t, 3, res.Downloads.Downloaded)
	assert.Equal(t, []string{"http://cdn/2-21.m3u8", "http://cdn/1-11.m3u8", "http://cdn/1-12.m3u8"}, remuxer.calls,
		"downloads follow export order")
	assert.FileExists(t, filepath.Join(opts.Downloads.MediaDir, "Serial - Serial S01E01.mp4"))

	assert.Equal(t, float64(3), testutil.ToFloat64(m.StreamsResolved))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Pages.WithLabelValues("shows")))
	assert.FileExists(t, opts.MetricsTextfile)

	var run models.HarvestRun
	require.NoError(t, db.Where("run_id = ?", res.RunID).First(&run).Error)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.ShowCount)
	assert.Equal(t, 3, run.EpisodeCount)
	assert.Equal(t, 3, run.StreamCount)
	testhelpers.AssertCount(t, db, &models.DownloadRecord{}, 3, "download records")

	// a second run skips the existing files
	res, err = New(up, opts, WithStore(store), WithRemuxer(remuxer)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Downloads.Downloaded)
	assert.Equal(t, 3, res.Downloads.Skipped)
	assert.Len(t, remuxer.calls, 3)
}

func TestRun_DownloadRequiresStreams(t *testing.T) {
	up := newCatalog()
	up.episodePages = map[string][]string{}
	opts := baseOptions(t)
	opts.Download = true
	opts.Downloads = downloader.Options{MediaDir: filepath.Join(opts.OutDir, "media")}

	res, err := New(up, opts, WithRemuxer(&fakeRemuxer{})).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodePreconditionViolation, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "--download-mp4 requires --with-streams")

	// artifacts written before the check are kept
	assert.Len(t, res.Artifacts, 6)
}

func TestRun_StreamFailureIsFatal(t *testing.T) {
	up := newCatalog()
	delete(up.streams, "2:21")
	opts := baseOptions(t)
	opts.WithStreams = true

	_, err := New(up, opts).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeStreamUnavailable, errors.GetErrorCode(err))
}

func TestRun_LoginFailureMarksRunFailed(t *testing.T) {
	up := newCatalog()
	up.loginErr = errors.AuthenticationFailure("Login failed", []byte(`{"status":"ERROR"}`))
	db := testhelpers.TestDB(t)

	res, err := New(up, baseOptions(t), WithStore(database.NewStore(db))).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthenticationFailure, errors.GetErrorCode(err))
	assert.Empty(t, res.Artifacts)
	assert.Equal(t, 0, up.count("vod"))

	var run models.HarvestRun
	require.NoError(t, db.Where("run_id = ?", res.RunID).First(&run).Error)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "Login failed")
}

func TestRun_MalformedShowsPage(t *testing.T) {
	up := newCatalog()
	up.showPages = []string{`{"status":"SUCCESS","data":{"data":{"oops":1}}}`}

	_, err := New(up, baseOptions(t)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeMalformedResponse, errors.GetErrorCode(err))
}

func TestRun_OutputDirLocked(t *testing.T) {
	opts := baseOptions(t)
	held := flock.New(filepath.Join(opts.OutDir, LockFile))
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Unlock()

	up := newCatalog()
	_, err = New(up, opts).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodePreconditionViolation, errors.GetErrorCode(err))
	assert.Empty(t, up.calls)
}

func TestRun_Filters(t *testing.T) {
	filters, err := catalog.NewFilterSet(config.FilterConfig{
		Category: config.FilterDef{ExcludePatterns: []string{"^Seriale$"}},
	})
	require.NoError(t, err)

	up := newCatalog()
	opts := baseOptions(t)
	opts.WithEpisodes = true

	res, err := New(up, opts, WithFilters(filters)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Shows, 1)
	assert.Equal(t, "2", res.Shows[0].ID)
	assert.Zero(t, up.count("vod/1?"), "filtered shows are not walked")
}

func TestRun_WorkersMatchSequential(t *testing.T) {
	sequential := baseOptions(t)
	sequential.WithStreams = true
	seqRes, err := New(newCatalog(), sequential, WithClock(fixedClock)).Run(context.Background())
	require.NoError(t, err)

	parallel := baseOptions(t)
	parallel.WithStreams = true
	parallel.Workers = 4
	parallel.Delay = time.Millisecond
	parRes, err := New(newCatalog(), parallel, WithClock(fixedClock)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, seqRes.Streams, parRes.Streams)
	assert.Equal(t, seqRes.Library, parRes.Library)

	for _, name := range []string{"antena-play_vod_library.json", "antena-play_vod_streams_by_episode.json"} {
		a, err := os.ReadFile(filepath.Join(sequential.OutDir, name))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(parallel.OutDir, name))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), name)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	up := newCatalog()
	opts := baseOptions(t)
	opts.Delay = time.Hour

	_, err := New(up, opts).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResultSummary(t *testing.T) {
	res := &Result{
		Shows:     make([]catalog.Show, 3),
		Streams:   map[string]string{"1:1": "u"},
		Artifacts: []string{"out/a.json"},
		Downloads: &downloader.Stats{Downloaded: 2, Skipped: 1, Bytes: 2048},
	}

	s := res.Summary("antena-play", "out", "out/media")
	assert.Equal(t, 3, s.Shows)
	assert.Equal(t, 1, s.Streams)
	assert.Equal(t, "out/media", s.MediaDir)
	assert.Equal(t, 2, s.Downloaded)
	assert.Equal(t, int64(2048), s.Bytes)

	s = (&Result{}).Summary("antena-play", "out", "out/media")
	assert.Empty(t, s.MediaDir, "media dir is only reported when downloads ran")
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{BaseURL: "http://iptv:8090"},
		Harvest: config.HarvestConfig{
			OutDir:       "out",
			DelaySeconds: 0.25,
			Workers:      3,
			WithEpisodes: true,
		},
		Downloads: config.DownloadsConfig{
			Enabled:                true,
			FFmpeg:                 "/usr/bin/ffmpeg",
			MediaDir:               "out/media",
			MaxConsecutiveFailures: 2,
		},
		Metrics: config.MetricsConfig{Textfile: "out/vodharvest.prom"},
	}

	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 250*time.Millisecond, opts.Delay)
	assert.Equal(t, 250*time.Millisecond, opts.Downloads.Delay)
	assert.Equal(t, "out/media", opts.Downloads.MediaDir)
	assert.Equal(t, "/usr/bin/ffmpeg", opts.FFmpeg)
	assert.True(t, opts.NeedsEpisodes())
	assert.True(t, opts.NeedsStreams(), "downloads imply streams")
	assert.False(t, opts.WithStreams)
}

// TestRun_AgainstHTTPUpstream drives the pipeline through the real client
func TestRun_AgainstHTTPUpstream(t *testing.T) {
	up := newCatalog()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		ctx := r.Context()

		var (
			body json.RawMessage
			err  error
		)
		switch {
		case len(parts) == 2 && parts[1] == "login":
			body = json.RawMessage(`{"status":"SUCCESS","data":["token"]}`)
		case len(parts) == 2 && parts[1] == "updatechannels":
			body = json.RawMessage(`{"status":"SUCCESS"}`)
		case len(parts) == 2 && parts[1] == "vod":
			body, err = up.ShowsPage(ctx, page, r.URL.Query().Get("search"))
		case len(parts) == 3:
			body, err = up.EpisodesPage(ctx, parts[2], page)
		case len(parts) == 4:
			body, err = up.EpisodeStream(ctx, parts[2], parts[3])
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(body)
	}))
	defer server.Close()

	client, err := vod.New(vod.Config{BaseURL: server.URL, Module: "antena-play", Timeout: 5 * time.Second})
	require.NoError(t, err)

	opts := baseOptions(t)
	opts.WithStreams = true

	res, err := New(client, opts).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Shows, 2)
	assert.Len(t, res.Streams, 3)
	assert.Equal(t, "http://cdn/1-12.m3u8", res.Streams["1:12"])
}
