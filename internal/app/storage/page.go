package storage

import "context"

const (
	// DefaultPageSize is the page size bulk fetch loops use.
	DefaultPageSize = 100

	// MaxFetch caps how many records any single aggregation may pull from a
	// store. It bounds the cost of "fetch all" style rollups; tenants larger
	// than this see truncated aggregates rather than unbounded queries.
	MaxFetch = 10000
)

// Normalize clamps a page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page addresses one window of a paginated fetch.
type Page struct {
	Offset int
	Limit  int
}

// PageFunc fetches one page of records and reports the total record count.
type PageFunc[T any] func(ctx context.Context, page Page) ([]T, int, error)

// CollectPages drains a paginated fetch into a slice, page by page, stopping
// at exhaustion or once max records have been accumulated. max <= 0 means
// MaxFetch. The cap is a contract: callers aggregating "all" records must go
// through this bound.
func CollectPages[T any](ctx context.Context, fetch PageFunc[T], pageSize, max int) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if max <= 0 {
		max = MaxFetch
	}

	var out []T
	for offset := 0; offset < max; offset += pageSize {
		limit := pageSize
		if remaining := max - offset; remaining < limit {
			limit = remaining
		}
		items, _, err := fetch(ctx, Page{Offset: offset, Limit: limit})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if len(items) < limit {
			break
		}
	}
	return out, nil
}
