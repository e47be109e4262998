// Package batch pages through the asset id space in bounded chunks so that
// long scans never hold the whole corpus in memory.
package batch

import (
	"context"
	"fmt"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/util"
)

// DefaultSize is the page size used when none is configured
const DefaultSize = 50

// Enumerator is the slice of asset.Store the iterator needs
type Enumerator interface {
	EnumerateIDs(ctx context.Context, batchSize, offset int) ([]asset.ID, bool, error)
}

// Cursor is a restartable position in the enumeration
type Cursor struct {
	Offset int
	Done   bool
}

// Iterator lazily yields pages of ids. It is not safe for concurrent use.
type Iterator struct {
	src    Enumerator
	size   int
	cursor Cursor
	retry  *util.RetryConfig
}

// NewIterator starts an iterator at the given cursor
func NewIterator(src Enumerator, size int, from Cursor, retry *util.RetryConfig) *Iterator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Iterator{
		src:    src,
		size:   size,
		cursor: from,
		retry:  retry,
	}
}

// Cursor returns the position of the next page
func (it *Iterator) Cursor() Cursor {
	return it.cursor
}

// Next returns the next page. It returns (nil, nil) once the enumeration is
// exhausted. A failed page is retried per the retry config; the cursor only
// advances on success, so a caller may resume from Cursor() after an error.
func (it *Iterator) Next(ctx context.Context) ([]asset.ID, error) {
	if it.cursor.Done {
		return nil, nil
	}

	type page struct {
		ids     []asset.ID
		hasMore bool
	}

	offset := it.cursor.Offset
	p, err := util.RetryWithBackoff(ctx, it.retry, func() (page, error) {
		ids, hasMore, err := it.src.EnumerateIDs(ctx, it.size, offset)
		if err != nil {
			return page{}, fmt.Errorf("enumerate offset %d: %w: %w", offset, util.ErrBatchUnavailable, err)
		}
		return page{ids: ids, hasMore: hasMore}, nil
	}, fmt.Sprintf("enumerate(offset=%d)", offset))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}

	it.cursor.Offset += len(p.ids)
	if !p.hasMore || len(p.ids) == 0 {
		it.cursor.Done = true
	}
	return p.ids, nil
}
