package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sourcegraph/conc/pool"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/batch"
	"github.com/franz/media-janitor/internal/util"
)

// DefaultChunkSize is the read buffer used per file while hashing
const DefaultChunkSize = 64 * 1024

// HashStrategy groups assets by a SHA-256 digest of their file content.
// Files are read in fixed-size chunks, so memory per worker is one chunk.
type HashStrategy struct {
	chunkSize  int
	workers    int
	ix         index
	unreadable int
}

// NewHashStrategy creates a hash strategy. workers bounds how many files of a
// batch are hashed at once.
func NewHashStrategy(chunkSize, workers int) *HashStrategy {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if workers <= 0 {
		workers = 1
	}
	return &HashStrategy{
		chunkSize: chunkSize,
		workers:   workers,
		ix:        make(index),
	}
}

// HashFile computes the hex SHA-256 of a file. Missing or unreadable files
// yield util.ErrUnreadableAsset.
func (h *HashStrategy) HashFile(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", util.ErrUnreadableAsset, path, err)
	}
	defer f.Close()

	digest := sha256.New()
	buf := make([]byte, h.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			digest.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("%w: %s: %w", util.ErrUnreadableAsset, path, rerr)
		}
	}

	return hex.EncodeToString(digest.Sum(nil)), nil
}

// hashResult is the outcome of hashing one asset
type hashResult struct {
	id     asset.ID
	digest string
	err    error
}

// hashBatch hashes a batch with at most h.workers files open at once.
// Results keep the batch order.
func (h *HashStrategy) hashBatch(ctx context.Context, assets []*asset.Asset) []hashResult {
	results := make([]hashResult, len(assets))
	p := pool.New().WithMaxGoroutines(h.workers)
	for i, a := range assets {
		p.Go(func() {
			digest, err := h.HashFile(ctx, a.Path)
			results[i] = hashResult{id: a.ID, digest: digest, err: err}
		})
	}
	p.Wait()
	return results
}

// commit records hashed results. Unreadable assets are skipped and counted.
func (h *HashStrategy) commit(results []hashResult) {
	for _, r := range results {
		if r.err != nil {
			if errors.Is(r.err, util.ErrUnreadableAsset) {
				h.unreadable++
				util.DebugLog("Skipping unreadable asset %d: %v", r.id, r.err)
			}
			continue
		}
		h.ix.add(r.digest, r.id)
	}
}

// Unreadable returns how many assets could not be hashed
func (h *HashStrategy) Unreadable() int {
	return h.unreadable
}

// Groups returns digests shared by at least two assets
func (h *HashStrategy) Groups() Groups {
	return h.ix.groups()
}

// GroupByHash hashes the given ids in pages of batchSize, resolving each id
// through store. Unknown ids and unreadable files are skipped.
func (h *HashStrategy) GroupByHash(ctx context.Context, store asset.Store, ids []asset.ID, batchSize int) (Groups, error) {
	if batchSize <= 0 {
		batchSize = batch.DefaultSize
	}

	for start := 0; start < len(ids); start += batchSize {
		end := min(start+batchSize, len(ids))

		page := make([]*asset.Asset, 0, end-start)
		for _, id := range ids[start:end] {
			path, ok, err := store.Path(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("%w: resolve asset %d: %w", util.ErrStorageUnavailable, id, err)
			}
			if !ok {
				continue
			}
			page = append(page, &asset.Asset{ID: id, Path: path})
		}

		results := h.hashBatch(ctx, page)
		if err := ctx.Err(); err != nil {
			return h.Groups(), err
		}
		h.commit(results)
	}

	return h.Groups(), nil
}
