package crm

import (
	"context"
	"time"
)

// PageFunc fetches one page of items for the given cursor. An empty cursor
// requests the first page. It returns the page's items and the cursor for
// the next page; an empty next cursor means the upstream signalled no
// further pages.
type PageFunc[T any] func(ctx context.Context, cursor string) (items []T, next string, err error)

// FetchAllPages drives cursor pagination to exhaustion, accumulating all
// items. It terminates on an empty batch, an empty next cursor, or a
// cursor that did not advance - the last guards against upstreams that
// never signal end-of-pagination. The delay is inserted between every
// consecutive page request to respect upstream rate limits.
func FetchAllPages[T any](ctx context.Context, fetch PageFunc[T], delay time.Duration) ([]T, error) {
	var all []T
	cursor := ""

	for {
		items, next, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return all, nil
		}

		all = append(all, items...)

		if next == "" || next == cursor {
			return all, nil
		}
		cursor = next

		if err := sleepContext(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// sleepContext pauses for d, returning early with the context error if the
// context is cancelled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
