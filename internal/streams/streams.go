// Package streams resolves playable stream URLs for episodes.
package streams

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/external/vod"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/glefebvre/vodharvest/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Fetcher is the upstream call behind a lookup; *vod.Client implements it
type Fetcher interface {
	EpisodeStream(ctx context.Context, showID, episodeID string) (json.RawMessage, error)
}

// strategy pulls a stream URL out of a decoded envelope data block
type strategy struct {
	name    string
	extract func(data map[string]json.RawMessage) (string, bool)
}

// The upstream wraps the stream either directly in data or one level deeper.
// Both shapes are accepted, in this order.
var strategies = []strategy{
	{"data.stream", func(data map[string]json.RawMessage) (string, bool) {
		return nonEmptyString(data["stream"])
	}},
	{"data.data.stream", func(data map[string]json.RawMessage) (string, bool) {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(data["data"], &inner); err != nil || inner == nil {
			return "", false
		}
		return nonEmptyString(inner["stream"])
	}},
}

// Extract returns the stream URL of a lookup response.
// The response must have status SUCCESS and carry the URL in one of the
// accepted shapes; otherwise the error is StreamUnavailable.
func Extract(body json.RawMessage) (string, error) {
	env := vod.DecodeEnvelope(body)
	if !env.Succeeded() {
		return "", errors.StreamUnavailable("Episode stream fetch failed", body)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &data); err != nil || data == nil {
		return "", errors.StreamUnavailable("Episode stream missing in response", body)
	}

	for _, s := range strategies {
		if url, ok := s.extract(data); ok {
			return url, nil
		}
	}
	return "", errors.StreamUnavailable("Episode stream missing in response", body)
}

func nonEmptyString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// Resolver memoizes stream lookups for the lifetime of one run
type Resolver struct {
	fetcher Fetcher
	metrics *metrics.Metrics
	logger  *logger.Logger

	mu    sync.RWMutex
	memo  map[string]string
	group singleflight.Group
}

// NewResolver creates a resolver over fetcher
func NewResolver(fetcher Fetcher, m *metrics.Metrics) *Resolver {
	return &Resolver{
		fetcher: fetcher,
		metrics: m,
		logger:  logger.AppLogger(),
		memo:    make(map[string]string),
	}
}

// Resolve returns the stream URL of one episode. Repeated and concurrent
// lookups of the same pair hit the upstream at most once per run.
func (r *Resolver) Resolve(ctx context.Context, showID, episodeID string) (string, error) {
	key := catalog.StreamKey(showID, episodeID)

	r.mu.RLock()
	url, ok := r.memo[key]
	r.mu.RUnlock()
	if ok {
		return url, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		body, err := r.fetcher.EpisodeStream(ctx, showID, episodeID)
		if err != nil {
			return "", err
		}
		url, err := Extract(body)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.memo[key] = url
		r.mu.Unlock()

		r.metrics.ObserveStream()
		return url, nil
	})
	if err != nil {
		r.logger.WithFields(map[string]interface{}{
			"show_id":    showID,
			"episode_id": episodeID,
			"error":      err.Error(),
		}).Debug("stream lookup failed")
		return "", err
	}
	return v.(string), nil
}

// Resolved returns a copy of the memo
func (r *Resolver) Resolved() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.memo))
	for k, v := range r.memo {
		out[k] = v
	}
	return out
}
