package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/detect"
	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/util"
)

// buildDuplicateReport resolves the members of each group to their catalog
// records. Members removed since the scan are left out.
func buildDuplicateReport(ctx context.Context, db *store.Store, rep *detect.Report, groups []detect.DuplicateGroup) (*report.DuplicateReport, error) {
	out := &report.DuplicateReport{
		GeneratedAt:   time.Now(),
		Duration:      rep.Duration,
		AssetsScanned: rep.Scanned,
		Excluded:      rep.Excluded,
		Unreadable:    rep.Unreadable,
		Partial:       rep.Partial,
	}
	if rep.StopReason != nil {
		out.StopReason = rep.StopReason.Error()
	}

	for _, g := range groups {
		original, ok, err := lookupFile(ctx, db, g.OriginalID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		set := report.DuplicateSet{Key: g.Key, Original: original}
		for _, id := range g.CopyIDs {
			c, ok, err := lookupFile(ctx, db, id)
			if err != nil {
				return nil, err
			}
			if ok {
				set.Copies = append(set.Copies, c)
			}
		}
		if len(set.Copies) == 0 {
			continue
		}

		out.Sets = append(out.Sets, set)
		out.ReclaimableBytes += set.Reclaimable()
	}
	return out, nil
}

func lookupFile(ctx context.Context, db *store.Store, id asset.ID) (report.DuplicateFile, bool, error) {
	a, err := db.Metadata(ctx, id)
	if errors.Is(err, util.ErrNotFound) {
		return report.DuplicateFile{}, false, nil
	}
	if err != nil {
		return report.DuplicateFile{}, false, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}
	return report.DuplicateFile{
		AssetID:   int64(a.ID),
		Path:      a.Path,
		SizeBytes: a.SizeBytes,
		CreatedAt: a.CreatedAt,
	}, true, nil
}
