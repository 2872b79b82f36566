package streams

import (
	"context"
	"sort"
	"time"

	"github.com/glefebvre/vodharvest/internal/catalog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Options bounds ResolveAll
type Options struct {
	// Workers is the number of concurrent lookups; values below 1 mean 1
	Workers int
	// Delay spaces consecutive lookups; with several workers it becomes a shared rate
	Delay time.Duration
}

type job struct {
	showID    string
	episodeID string
}

// ResolveAll resolves every episode with a non-empty id and returns the
// "{showId}:{episodeId}" -> url map. Shows are visited in id order so runs
// issue requests in a stable order; the result does not depend on it.
// The first failure cancels the remaining lookups and is returned.
func (r *Resolver) ResolveAll(ctx context.Context, episodesByShow map[string][]catalog.Episode, opts Options) (map[string]string, error) {
	jobs := plan(episodesByShow)
	if len(jobs) == 0 {
		return map[string]string{}, nil
	}

	workers := max(opts.Workers, 1)
	limiter := newLimiter(opts.Delay)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			if _, err := r.Resolve(gctx, j.showID, j.episodeID); err != nil {
				return err
			}
			if (i+1)%100 == 0 {
				r.logger.WithFields(map[string]interface{}{
					"resolved": i + 1,
					"total":    len(jobs),
				}).Info("resolving streams")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return r.Resolved(), nil
}

func plan(episodesByShow map[string][]catalog.Episode) []job {
	showIDs := make([]string, 0, len(episodesByShow))
	for id := range episodesByShow {
		showIDs = append(showIDs, id)
	}
	sort.Strings(showIDs)

	seen := make(map[string]bool)
	var jobs []job
	for _, showID := range showIDs {
		for _, ep := range episodesByShow[showID] {
			if ep.ID == "" {
				continue
			}
			key := catalog.StreamKey(showID, ep.ID)
			if seen[key] {
				continue
			}
			seen[key] = true
			jobs = append(jobs, job{showID: showID, episodeID: ep.ID})
		}
	}
	return jobs
}

// newLimiter turns the politeness delay into a token bucket; zero means unlimited
func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
