package storage

import (
	"context"
	"testing"
)

func TestNormalize(t *testing.T) {
	p := Page{Offset: -5, Limit: 0}.Normalize()
	if p.Offset != 0 || p.Limit != DefaultPageSize {
		t.Fatalf("unexpected normalized page %+v", p)
	}

	p = Page{Offset: 10, Limit: 25}.Normalize()
	if p.Offset != 10 || p.Limit != 25 {
		t.Fatalf("valid page mutated: %+v", p)
	}
}

func TestCollectPagesDrains(t *testing.T) {
	data := make([]int, 250)
	for i := range data {
		data[i] = i
	}
	fetch := func(ctx context.Context, page Page) ([]int, int, error) {
		if page.Offset >= len(data) {
			return nil, len(data), nil
		}
		end := page.Offset + page.Limit
		if end > len(data) {
			end = len(data)
		}
		return data[page.Offset:end], len(data), nil
	}

	out, err := CollectPages(context.Background(), fetch, 100, 0)
	if err != nil {
		t.Fatalf("CollectPages: %v", err)
	}
	if len(out) != 250 {
		t.Fatalf("expected 250 records, got %d", len(out))
	}
	if out[0] != 0 || out[249] != 249 {
		t.Fatalf("records out of order: first=%d last=%d", out[0], out[249])
	}
}

func TestCollectPagesHonorsCap(t *testing.T) {
	fetch := func(ctx context.Context, page Page) ([]int, int, error) {
		out := make([]int, page.Limit)
		return out, 1 << 30, nil
	}

	out, err := CollectPages(context.Background(), fetch, 100, 350)
	if err != nil {
		t.Fatalf("CollectPages: %v", err)
	}
	if len(out) != 350 {
		t.Fatalf("expected cap at 350, got %d", len(out))
	}
}
