package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/testutil"
	"github.com/franz/media-janitor/internal/util"
)

func seed(n int) *testutil.MemStore {
	store := testutil.NewMemStore()
	for i := 0; i < n; i++ {
		store.Add(asset.Asset{Path: "/lib/f.jpg"})
	}
	return store
}

func quickRetry(attempts int) *util.RetryConfig {
	return &util.RetryConfig{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
}

func TestIteratorPages(t *testing.T) {
	it := NewIterator(seed(7), 3, Cursor{}, quickRetry(1))
	ctx := context.Background()

	var pages [][]asset.ID
	for !it.Cursor().Done {
		ids, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if len(ids) > 0 {
			pages = append(pages, ids)
		}
	}

	if len(pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d: %v", len(pages), pages)
	}
	if len(pages[0]) != 3 || len(pages[2]) != 1 {
		t.Errorf("Unexpected page sizes: %v", pages)
	}
	if pages[0][0] != 1 || pages[2][0] != 7 {
		t.Errorf("Expected ascending ids, got %v", pages)
	}

	ids, err := it.Next(ctx)
	if ids != nil || err != nil {
		t.Errorf("Expected exhausted iterator, got %v, %v", ids, err)
	}
}

func TestIteratorResumesFromCursor(t *testing.T) {
	it := NewIterator(seed(5), 2, Cursor{Offset: 4}, quickRetry(1))

	ids, err := it.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Errorf("Expected [5], got %v", ids)
	}
	if !it.Cursor().Done {
		t.Error("Expected cursor to be done")
	}
}

func TestIteratorRetriesFailedBatch(t *testing.T) {
	store := seed(4)
	store.FailEnumerate(2, 2)
	it := NewIterator(store, 2, Cursor{}, quickRetry(3))
	ctx := context.Background()

	if _, err := it.Next(ctx); err != nil {
		t.Fatalf("First page failed: %v", err)
	}
	ids, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 ids, got %v", ids)
	}
}

func TestIteratorExhaustedRetriesIsStorageUnavailable(t *testing.T) {
	store := seed(4)
	store.FailEnumerate(0, 10)
	it := NewIterator(store, 2, Cursor{}, quickRetry(2))

	_, err := it.Next(context.Background())
	if !errors.Is(err, util.ErrStorageUnavailable) {
		t.Errorf("Expected ErrStorageUnavailable, got %v", err)
	}
	if !errors.Is(err, util.ErrBatchUnavailable) {
		t.Errorf("Expected batch sentinel in chain, got %v", err)
	}
	if it.Cursor().Offset != 0 || it.Cursor().Done {
		t.Errorf("Cursor must not advance on failure: %+v", it.Cursor())
	}
}
