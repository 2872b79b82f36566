// Package paginate walks the page-numbered list endpoints of the upstream API.
package paginate

import (
	"context"
	"encoding/json"
	"iter"
	"time"
)

// FetchFunc fetches one page (1-based) and returns its raw envelope
type FetchFunc func(ctx context.Context, page int) (json.RawMessage, error)

// Options bounds a walk
type Options struct {
	// MaxPages stops the walk after this many pages; 0 means no limit
	MaxPages int
	// Delay is slept between consecutive page fetches
	Delay time.Duration
}

// Descriptor is the pagination block embedded in list responses
type Descriptor struct {
	CurrentPage *int
	TotalPages  *int
}

type listData struct {
	Pagination map[string]json.RawMessage `json:"pagination"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Walk yields page envelopes starting at page 1 until the pagination
// descriptor says the list is exhausted, MaxPages is reached, or the
// envelope carries no usable metadata. Missing or inconsistent metadata
// ends the walk rather than looping. A fetch error is yielded once and
// ends the sequence; a cancelled context during the delay does the same.
func Walk(ctx context.Context, fetch FetchFunc, opts Options) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		for page := 1; ; page++ {
			body, err := fetch(ctx, page)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(body, nil) {
				return
			}

			if !hasNext(body, page, opts.MaxPages) {
				return
			}

			if opts.Delay > 0 {
				if err := sleep(ctx, opts.Delay); err != nil {
					yield(nil, err)
					return
				}
			}
		}
	}
}

// hasNext applies the termination checks in order
func hasNext(body json.RawMessage, page, maxPages int) bool {
	if maxPages > 0 && page >= maxPages {
		return false
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	var data listData
	if !isObject(env.Data) || json.Unmarshal(env.Data, &data) != nil {
		return false
	}

	desc := parseDescriptor(data.Pagination)
	if desc.CurrentPage != nil && desc.TotalPages != nil && *desc.CurrentPage >= *desc.TotalPages {
		return false
	}

	return len(data.Pagination) > 0
}

// parseDescriptor keeps only integer-valued page numbers
func parseDescriptor(p map[string]json.RawMessage) Descriptor {
	return Descriptor{
		CurrentPage: intField(p, "current_page"),
		TotalPages:  intField(p, "total_pages"),
	}
}

func intField(p map[string]json.RawMessage, key string) *int {
	raw, ok := p[key]
	if !ok {
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	return &n
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
