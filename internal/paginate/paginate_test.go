package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pages serves bodies[page-1] and records every requested page
func pages(bodies ...string) (FetchFunc, *[]int) {
	var requested []int
	return func(ctx context.Context, page int) (json.RawMessage, error) {
		requested = append(requested, page)
		if page > len(bodies) {
			return nil, fmt.Errorf("unexpected page %d", page)
		}
		return json.RawMessage(bodies[page-1]), nil
	}, &requested
}

func collect(t *testing.T, fetch FetchFunc, opts Options) ([]json.RawMessage, error) {
	t.Helper()
	var out []json.RawMessage
	for body, err := range Walk(context.Background(), fetch, opts) {
		if err != nil {
			return out, err
		}
		out = append(out, body)
	}
	return out, nil
}

func paged(current, total int) string {
	return fmt.Sprintf(`{"status":"SUCCESS","data":{"data":[],"pagination":{"current_page":%d,"total_pages":%d}}}`, current, total)
}

func TestWalk_StopsAtTotalPages(t *testing.T) {
	fetch, requested := pages(paged(1, 3), paged(2, 3), paged(3, 3), paged(4, 3))

	got, err := collect(t, fetch, Options{})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, *requested)
}

func TestWalk_NoPaginationMeansSinglePage(t *testing.T) {
	fetch, requested := pages(`{"status":"SUCCESS","data":{"data":[{"id":1}]}}`, paged(2, 2))

	got, err := collect(t, fetch, Options{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, []int{1}, *requested)
}

func TestWalk_EmptyOrNullPagination(t *testing.T) {
	for _, body := range []string{
		`{"data":{"data":[],"pagination":{}}}`,
		`{"data":{"data":[],"pagination":null}}`,
	} {
		fetch, _ := pages(body, paged(2, 2))
		got, err := collect(t, fetch, Options{})
		require.NoError(t, err)
		assert.Len(t, got, 1, body)
	}
}

func TestWalk_DataNotObject(t *testing.T) {
	for _, body := range []string{
		`{"status":"SUCCESS","data":[1,2]}`,
		`{"status":"ERROR","data":null}`,
		`{"status":"ERROR"}`,
		`[1,2,3]`,
	} {
		fetch, _ := pages(body, paged(2, 2))
		got, err := collect(t, fetch, Options{})
		require.NoError(t, err)
		assert.Len(t, got, 1, body)
	}
}

func TestWalk_MaxPages(t *testing.T) {
	fetch, requested := pages(paged(1, 10), paged(2, 10), paged(3, 10))

	got, err := collect(t, fetch, Options{MaxPages: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{1, 2}, *requested)
}

func TestWalk_NonIntegerPageNumbersKeepGoingWhilePaginationPresent(t *testing.T) {
	fetch, requested := pages(
		`{"data":{"pagination":{"current_page":"1","total_pages":"2"}}}`,
		`{"data":{"data":[]}}`,
	)

	got, err := collect(t, fetch, Options{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{1, 2}, *requested)
}

func TestWalk_FetchErrorEndsSequence(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	fetch := func(ctx context.Context, page int) (json.RawMessage, error) {
		calls++
		if page == 2 {
			return nil, boom
		}
		return json.RawMessage(paged(page, 5)), nil
	}

	got, err := collect(t, fetch, Options{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, calls)
}

func TestWalk_ConsumerCanStopEarly(t *testing.T) {
	fetch, requested := pages(paged(1, 5), paged(2, 5), paged(3, 5))

	for range Walk(context.Background(), fetch, Options{}) {
		break
	}
	assert.Equal(t, []int{1}, *requested)
}

func TestWalk_CancelledDuringDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context, page int) (json.RawMessage, error) {
		cancel()
		return json.RawMessage(paged(page, 5)), nil
	}

	var errs []error
	count := 0
	for _, err := range Walk(ctx, fetch, Options{Delay: time.Hour}) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}

	assert.Equal(t, 1, count)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
}

func TestWalk_Restartable(t *testing.T) {
	fetch, requested := pages(paged(1, 2), paged(2, 2))
	seq := Walk(context.Background(), fetch, Options{})

	for range seq {
	}
	for range seq {
	}
	assert.Equal(t, []int{1, 2, 1, 2}, *requested)
}
