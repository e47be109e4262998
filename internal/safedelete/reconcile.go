package safedelete

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/media-janitor/internal/util"
)

// DefaultStaleAfter is how old a pending or claimed entry must be before
// Reconcile treats it as abandoned by a crashed process
const DefaultStaleAfter = 10 * time.Minute

// Reconcile actions
const (
	ActionPromoted       = "promoted"        // pending, file in trash: finished the quarantine
	ActionDropped        = "dropped"         // pending, file never moved: removed the row
	ActionReleased       = "released"        // stale restoring/purging claim handed back
	ActionCompletedPurge = "completed-purge" // purging, file already gone: marked purged
	ActionRecordRemoved  = "record-removed"  // quarantined but still cataloged: removed the record
)

// ReconcileOptions control a reconcile pass
type ReconcileOptions struct {
	DryRun     bool
	StaleAfter time.Duration
}

// Repair is one action Reconcile took (or would take on a dry run)
type Repair struct {
	DeletionID int64
	Action     string
	Err        error
}

// ReconcileResult lists repairs and the entries that need manual attention
type ReconcileResult struct {
	Repairs   []Repair
	Corrupted []ItemError
}

// Reconcile repairs the inconsistencies an interrupted quarantine, restore
// or purge can leave behind. Entries whose trash file is missing and cannot
// be explained are reported as util.ErrTrashCorrupted and left untouched.
func (l *Lifecycle) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileResult, error) {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}

	entries, err := l.ledger.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list ledger: %w", util.ErrStorageUnavailable, err)
	}

	result := &ReconcileResult{}
	cutoff := l.now().Add(-opts.StaleAfter)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		inTrash, err := util.PathExists(e.TrashPath)
		if err != nil {
			result.Corrupted = append(result.Corrupted, ItemError{AssetID: e.AssetID, DeletionID: e.DeletionID, Err: err})
			continue
		}

		if e.State != StateQuarantined && e.UpdatedAt.After(cutoff) {
			// possibly still owned by a live process
			continue
		}

		switch e.State {
		case StatePending:
			atSource, err := util.PathExists(e.OriginalPath)
			if err != nil {
				result.Corrupted = append(result.Corrupted, ItemError{AssetID: e.AssetID, DeletionID: e.DeletionID, Err: err})
				continue
			}
			switch {
			case atSource:
				l.repair(ctx, result, e, ActionDropped, opts.DryRun, func() error {
					if inTrash {
						// an unfinished cross-device copy
						if err := l.files.remove(ctx, e.TrashPath); err != nil && !errors.Is(err, os.ErrNotExist) {
							return err
						}
					}
					os.Remove(e.TrashPath + ".part")
					_, err := l.ledger.Delete(ctx, e.DeletionID, StatePending)
					l.files.pruneDir(filepath.Dir(e.TrashPath))
					return err
				})
			case inTrash:
				l.repair(ctx, result, e, ActionPromoted, opts.DryRun, func() error {
					if _, err := l.ledger.Transition(ctx, e.DeletionID, StatePending, StateQuarantined, l.now()); err != nil {
						return err
					}
					return l.removeRecord(ctx, e)
				})
			default:
				result.Corrupted = append(result.Corrupted, ItemError{AssetID: e.AssetID, DeletionID: e.DeletionID,
					Err: fmt.Errorf("%w: pending entry with no file at %s or %s", util.ErrTrashCorrupted, e.OriginalPath, e.TrashPath)})
			}

		case StateRestoring:
			if inTrash {
				l.repair(ctx, result, e, ActionReleased, opts.DryRun, func() error {
					_, err := l.ledger.Transition(ctx, e.DeletionID, StateRestoring, StateQuarantined, l.now())
					return err
				})
				continue
			}
			result.Corrupted = append(result.Corrupted, ItemError{AssetID: e.AssetID, DeletionID: e.DeletionID,
				Err: fmt.Errorf("%w: interrupted restore, check %s", util.ErrTrashCorrupted, e.OriginalPath)})

		case StatePurging:
			if inTrash {
				l.repair(ctx, result, e, ActionReleased, opts.DryRun, func() error {
					_, err := l.ledger.Transition(ctx, e.DeletionID, StatePurging, StateQuarantined, l.now())
					return err
				})
				continue
			}
			l.repair(ctx, result, e, ActionCompletedPurge, opts.DryRun, func() error {
				_, err := l.ledger.Transition(ctx, e.DeletionID, StatePurging, StatePurged, l.now())
				l.files.pruneDir(filepath.Dir(e.TrashPath))
				return err
			})

		case StateQuarantined:
			if !inTrash {
				result.Corrupted = append(result.Corrupted, ItemError{AssetID: e.AssetID, DeletionID: e.DeletionID,
					Err: fmt.Errorf("%w: %s missing", util.ErrTrashCorrupted, e.TrashPath)})
				continue
			}
			if a, err := l.store.Metadata(ctx, e.AssetID); err == nil && a.Path == e.OriginalPath {
				l.repair(ctx, result, e, ActionRecordRemoved, opts.DryRun, func() error {
					return l.removeRecord(ctx, e)
				})
			}
		}
	}

	return result, nil
}

func (l *Lifecycle) repair(ctx context.Context, result *ReconcileResult, e *Entry, action string, dryRun bool, fn func() error) {
	var err error
	if !dryRun {
		err = fn()
	}
	if err != nil {
		util.WarnLog("Reconcile %s (%s) failed: %v", e, action, err)
	} else if !dryRun {
		util.InfoLog("Reconciled %s: %s", e, action)
	}
	if !dryRun {
		l.logger.LogReconcile(e.DeletionID, action, err)
	}
	result.Repairs = append(result.Repairs, Repair{DeletionID: e.DeletionID, Action: action, Err: err})
}

func (l *Lifecycle) removeRecord(ctx context.Context, e *Entry) error {
	if err := l.store.RemoveRecord(ctx, e.AssetID); err != nil && !errors.Is(err, util.ErrNotFound) {
		return err
	}
	return nil
}
