package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  map[string]int
	bodies map[string]string
	delay  time.Duration
	total  int32
}

func newFakeFetcher(bodies map[string]string) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), bodies: bodies}
}

func (f *fakeFetcher) EpisodeStream(ctx context.Context, showID, episodeID string) (json.RawMessage, error) {
	atomic.AddInt32(&f.total, 1)
	key := catalog.StreamKey(showID, episodeID)

	f.mu.Lock()
	f.calls[key]++
	body, ok := f.bodies[key]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if !ok {
		return nil, errors.TransportFailure("http://x/"+key, 404, nil)
	}
	return json.RawMessage(body), nil
}

func streamBody(url string) string {
	return fmt.Sprintf(`{"status":"SUCCESS","data":{"stream":%q}}`, url)
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"direct", `{"status":"SUCCESS","data":{"stream":"http://a.m3u8"}}`, "http://a.m3u8"},
		{"nested", `{"status":"SUCCESS","data":{"data":{"stream":"http://b.m3u8"}}}`, "http://b.m3u8"},
		{"direct wins", `{"status":"SUCCESS","data":{"stream":"http://a","data":{"stream":"http://b"}}}`, "http://a"},
		{"empty direct falls back", `{"status":"SUCCESS","data":{"stream":"","data":{"stream":"http://b"}}}`, "http://b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(json.RawMessage(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtract_Unavailable(t *testing.T) {
	for _, body := range []string{
		`{"status":"ERROR","data":{"stream":"http://a"}}`,
		`{"status":"SUCCESS","data":{}}`,
		`{"status":"SUCCESS","data":{"stream":42}}`,
		`{"status":"SUCCESS","data":{"data":{"stream":""}}}`,
		`{"status":"SUCCESS","data":"http://a"}`,
		`{"status":"SUCCESS"}`,
	} {
		_, err := Extract(json.RawMessage(body))
		require.Error(t, err, body)
		assert.Equal(t, errors.CodeStreamUnavailable, errors.GetErrorCode(err), body)
		assert.NotEmpty(t, errors.GetPayload(err), body)
	}
}

func TestResolve_Memoized(t *testing.T) {
	f := newFakeFetcher(map[string]string{"s:e": streamBody("http://s/e.m3u8")})
	r := NewResolver(f, nil)

	for i := 0; i < 3; i++ {
		url, err := r.Resolve(context.Background(), "s", "e")
		require.NoError(t, err)
		assert.Equal(t, "http://s/e.m3u8", url)
	}
	assert.Equal(t, 1, f.calls["s:e"])
}

func TestResolve_ConcurrentCallsCollapse(t *testing.T) {
	f := newFakeFetcher(map[string]string{"s:e": streamBody("http://s/e.m3u8")})
	f.delay = 20 * time.Millisecond
	r := NewResolver(f, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Resolve(context.Background(), "s", "e")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.total))
}

func TestResolve_FailureNotMemoized(t *testing.T) {
	f := newFakeFetcher(map[string]string{"s:e": `{"status":"SUCCESS","data":{}}`})
	r := NewResolver(f, nil)

	_, err := r.Resolve(context.Background(), "s", "e")
	require.Error(t, err)
	_, err = r.Resolve(context.Background(), "s", "e")
	require.Error(t, err)
	assert.Equal(t, 2, f.calls["s:e"])
	assert.Empty(t, r.Resolved())
}

func TestResolveAll(t *testing.T) {
	bodies := map[string]string{}
	episodes := map[string][]catalog.Episode{}
	for s := 0; s < 4; s++ {
		showID := fmt.Sprintf("show%d", s)
		for e := 0; e < 5; e++ {
			epID := fmt.Sprintf("ep%d", e)
			bodies[catalog.StreamKey(showID, epID)] = streamBody("http://" + showID + "/" + epID)
			episodes[showID] = append(episodes[showID], catalog.Episode{ID: epID})
		}
	}
	// episodes without id are skipped, duplicates resolved once
	episodes["show0"] = append(episodes["show0"], catalog.Episode{}, catalog.Episode{ID: "ep0"})

	f := newFakeFetcher(bodies)
	r := NewResolver(f, nil)

	got, err := r.ResolveAll(context.Background(), episodes, Options{Workers: 4})
	require.NoError(t, err)
	assert.Len(t, got, 20)
	assert.Equal(t, "http://show2/ep3", got["show2:ep3"])
	assert.Equal(t, int32(20), atomic.LoadInt32(&f.total))
}

func TestResolveAll_FirstErrorWins(t *testing.T) {
	episodes := map[string][]catalog.Episode{
		"a": {{ID: "1"}, {ID: "2"}},
	}
	f := newFakeFetcher(map[string]string{"a:1": streamBody("http://a/1")})
	r := NewResolver(f, nil)

	_, err := r.ResolveAll(context.Background(), episodes, Options{Workers: 1})
	require.Error(t, err)
	assert.Equal(t, errors.CodeTransportFailure, errors.GetErrorCode(err))
}

func TestResolveAll_Empty(t *testing.T) {
	r := NewResolver(newFakeFetcher(nil), nil)
	got, err := r.ResolveAll(context.Background(), nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveAll_RespectsDelay(t *testing.T) {
	episodes := map[string][]catalog.Episode{"a": {{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	f := newFakeFetcher(map[string]string{
		"a:1": streamBody("u1"),
		"a:2": streamBody("u2"),
		"a:3": streamBody("u3"),
	})
	r := NewResolver(f, nil)

	start := time.Now()
	_, err := r.ResolveAll(context.Background(), episodes, Options{Workers: 3, Delay: 30 * time.Millisecond})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}
