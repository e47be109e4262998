package safedelete

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/util"
)

// DefaultRetention is how long a quarantined file waits before auto purge
const DefaultRetention = 30 * 24 * time.Hour

// Options configure a Lifecycle
type Options struct {
	TrashDir  string
	Retention time.Duration
	// Now is the time source; nil means time.Now
	Now    func() time.Time
	Retry  *util.RetryConfig
	Logger *report.EventLogger
}

// Lifecycle drives assets through quarantine, restore and purge
type Lifecycle struct {
	store     asset.Store
	policy    asset.ExclusionPolicy
	ledger    Ledger
	trashDir  string
	retention time.Duration
	now       func() time.Time
	files     *mover
	logger    *report.EventLogger
}

// New creates a lifecycle. policy may be nil when nothing is pinned.
func New(store asset.Store, policy asset.ExclusionPolicy, ledger Ledger, opts Options) (*Lifecycle, error) {
	if store == nil || ledger == nil {
		return nil, fmt.Errorf("%w: asset store and ledger are required", util.ErrInvalidConfig)
	}
	if opts.TrashDir == "" {
		return nil, fmt.Errorf("%w: trash directory is required", util.ErrInvalidConfig)
	}
	trashDir, err := filepath.Abs(opts.TrashDir)
	if err != nil {
		return nil, fmt.Errorf("%w: trash directory: %w", util.ErrInvalidConfig, err)
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry == nil {
		opts.Retry = util.DefaultRetryConfig()
	}

	return &Lifecycle{
		store:     store,
		policy:    policy,
		ledger:    ledger,
		trashDir:  trashDir,
		retention: opts.Retention,
		now:       opts.Now,
		files:     &mover{retry: opts.Retry},
		logger:    opts.Logger,
	}, nil
}

// TrashDir returns the absolute trash root
func (l *Lifecycle) TrashDir() string {
	return l.trashDir
}

// trashPathFor lays out <trash>/<deletion_id>/<basename>
func (l *Lifecycle) trashPathFor(originalPath string) func(int64) string {
	return func(deletionID int64) string {
		return filepath.Join(l.trashDir, strconv.FormatInt(deletionID, 10), filepath.Base(originalPath))
	}
}

// ItemError is a per-item failure inside a bulk operation
type ItemError struct {
	AssetID    asset.ID
	DeletionID int64
	Err        error
}

func (e ItemError) Error() string {
	if e.DeletionID != 0 {
		return fmt.Sprintf("deletion %d: %v", e.DeletionID, e.Err)
	}
	return fmt.Sprintf("asset %d: %v", e.AssetID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// Prepared describes one successfully quarantined asset
type Prepared struct {
	AssetID    asset.ID
	DeletionID int64
	TrashPath  string
	SizeBytes  int64
	ExpiresAt  time.Time
}

// QuarantineResult accounts for every requested id exactly once
type QuarantineResult struct {
	Prepared []Prepared
	Excluded []asset.ID
	Errors   []ItemError
}

// RestoreResult is the outcome of a restore
type RestoreResult struct {
	Success    bool
	NewAssetID asset.ID
	Path       string
}

// PurgeResult is the outcome of a purge. AlreadyPurged marks the idempotent
// no-op case.
type PurgeResult struct {
	Success       bool
	AlreadyPurged bool
}

// SweepResult is the outcome of an expiry sweep
type SweepResult struct {
	PurgedCount int
	Failed      []ItemError
}

// Quarantine moves each asset's file into the trash and removes it from the
// active corpus. Items fail independently; excluded ids are reported apart
// and never touched. Only a ledger outage aborts the batch.
func (l *Lifecycle) Quarantine(ctx context.Context, ids []asset.ID) (*QuarantineResult, error) {
	result := &QuarantineResult{}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if l.policy != nil {
			excluded, err := l.policy.IsExcluded(ctx, id)
			if err != nil {
				err = fmt.Errorf("%w: exclusion policy: %w", util.ErrStorageUnavailable, err)
				result.Errors = append(result.Errors, ItemError{AssetID: id, Err: err})
				return result, err
			}
			if excluded {
				util.DebugLog("Asset %d is pinned, not quarantining", id)
				result.Excluded = append(result.Excluded, id)
				continue
			}
		}

		prepared, err := l.quarantineOne(ctx, id)
		if err != nil {
			l.logger.LogQuarantine(int64(id), 0, "", "", err)
			result.Errors = append(result.Errors, ItemError{AssetID: id, Err: err})
			if errors.Is(err, util.ErrStorageUnavailable) {
				return result, err
			}
			continue
		}
		result.Prepared = append(result.Prepared, *prepared)
	}

	return result, nil
}

func (l *Lifecycle) quarantineOne(ctx context.Context, id asset.ID) (*Prepared, error) {
	a, err := l.store.Metadata(ctx, id)
	if errors.Is(err, util.ErrNotFound) {
		if live, lerr := l.ledger.FindLive(ctx, id); lerr == nil {
			return nil, fmt.Errorf("%w: %s", util.ErrAlreadyQuarantined, live)
		}
		return nil, fmt.Errorf("asset %d: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load asset %d: %w", util.ErrStorageUnavailable, id, err)
	}

	// A file missing from its expected location was most likely taken by a
	// concurrent quarantine
	if exists, err := util.PathExists(a.Path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", util.ErrUnreadableAsset, a.Path, err)
	} else if !exists {
		return nil, fmt.Errorf("%w: %s is no longer in place", util.ErrAlreadyQuarantined, a.Path)
	}

	now := l.now()
	entry := &Entry{
		AssetID:      id,
		OriginalPath: a.Path,
		Snapshot:     asset.SnapshotOf(a),
		SizeBytes:    a.SizeBytes,
		State:        StatePending,
		EnqueuedAt:   now,
		ExpiresAt:    now.Add(l.retention),
		UpdatedAt:    now,
	}
	if err := l.ledger.InsertPending(ctx, entry, l.trashPathFor(a.Path)); err != nil {
		if errors.Is(err, util.ErrAlreadyQuarantined) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: write ledger entry: %w", util.ErrStorageUnavailable, err)
	}

	size, err := l.files.move(ctx, a.Path, entry.TrashPath)
	if err != nil {
		l.dropPending(ctx, entry)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s vanished before it could be moved", util.ErrAlreadyQuarantined, a.Path)
		}
		return nil, fmt.Errorf("move to trash: %w", err)
	}
	if size > 0 {
		entry.SizeBytes = size
	}

	ok, err := l.ledger.Transition(ctx, entry.DeletionID, StatePending, StateQuarantined, l.now())
	if err != nil || !ok {
		// The file is in the trash under a pending row; Reconcile finishes it
		if err == nil {
			err = fmt.Errorf("%w: pending entry changed underneath", util.ErrConflict)
		}
		return nil, fmt.Errorf("%w: promote %s: %w", util.ErrStorageUnavailable, entry, err)
	}

	if err := l.store.RemoveRecord(ctx, id); err != nil && !errors.Is(err, util.ErrNotFound) {
		util.WarnLog("Quarantined %s but could not remove its catalog record: %v", entry, err)
	}

	l.logger.LogQuarantine(int64(id), entry.DeletionID, a.Path, entry.TrashPath, nil)
	util.DebugLog("Quarantined asset %d: %s -> %s", id, a.Path, entry.TrashPath)

	return &Prepared{
		AssetID:    id,
		DeletionID: entry.DeletionID,
		TrashPath:  entry.TrashPath,
		SizeBytes:  entry.SizeBytes,
		ExpiresAt:  entry.ExpiresAt,
	}, nil
}

// dropPending rolls back a pending row whose move did not happen
func (l *Lifecycle) dropPending(ctx context.Context, entry *Entry) {
	if _, err := l.ledger.Delete(ctx, entry.DeletionID, StatePending); err != nil {
		util.WarnLog("Could not drop pending %s: %v", entry, err)
	}
	l.files.pruneDir(filepath.Dir(entry.TrashPath))
}

// Restore moves a quarantined file back and recreates its catalog record.
// The ledger row is deleted, so a second restore reports util.ErrNotFound.
func (l *Lifecycle) Restore(ctx context.Context, deletionID int64) (*RestoreResult, error) {
	res, err := l.restore(ctx, deletionID)
	var path string
	var newID asset.ID
	if res != nil {
		path, newID = res.Path, res.NewAssetID
	}
	l.logger.LogRestore(deletionID, int64(newID), path, err)
	if err != nil {
		return &RestoreResult{}, err
	}
	return res, nil
}

func (l *Lifecycle) restore(ctx context.Context, deletionID int64) (*RestoreResult, error) {
	entry, err := l.get(ctx, deletionID)
	if err != nil {
		return nil, err
	}
	switch entry.State {
	case StatePurged:
		return nil, fmt.Errorf("%s: %w", entry, util.ErrAlreadyPurged)
	case StateQuarantined:
	default:
		return nil, fmt.Errorf("%s: %w: transition in progress", entry, util.ErrConflict)
	}

	// Claim the entry; a concurrent purge can win this instead
	won, err := l.ledger.Transition(ctx, deletionID, StateQuarantined, StateRestoring, l.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}
	if !won {
		return nil, l.lostClaim(ctx, deletionID)
	}

	if exists, err := util.PathExists(entry.TrashPath); err != nil || !exists {
		l.release(ctx, entry, StateRestoring)
		if err == nil {
			err = fmt.Errorf("%s missing", entry.TrashPath)
		}
		return nil, fmt.Errorf("%s: %w: %w", entry, util.ErrTrashCorrupted, err)
	}

	if _, err := l.files.move(ctx, entry.TrashPath, entry.OriginalPath); err != nil {
		l.release(ctx, entry, StateRestoring)
		return nil, fmt.Errorf("%s: restore file: %w", entry, err)
	}

	newID, err := l.store.RecreateRecord(ctx, entry.Snapshot)
	if err != nil {
		// put the file back so the entry stays consistent
		if _, merr := l.files.move(ctx, entry.OriginalPath, entry.TrashPath); merr != nil {
			util.ErrorLog("Could not return %s to trash after failed restore: %v", entry.OriginalPath, merr)
		}
		l.release(ctx, entry, StateRestoring)
		return nil, fmt.Errorf("%w: recreate asset for %s: %w", util.ErrStorageUnavailable, entry, err)
	}

	if _, err := l.ledger.Delete(ctx, deletionID, StateRestoring); err != nil {
		util.WarnLog("Restored %s but could not delete its ledger row: %v", entry, err)
	}
	l.files.pruneDir(filepath.Dir(entry.TrashPath))

	util.DebugLog("Restored %s to %s as asset %d", entry, entry.OriginalPath, newID)
	return &RestoreResult{Success: true, NewAssetID: newID, Path: entry.OriginalPath}, nil
}

// get loads an entry, separating unknown ids from ledger failures
func (l *Lifecycle) get(ctx context.Context, deletionID int64) (*Entry, error) {
	entry, err := l.ledger.Get(ctx, deletionID)
	if errors.Is(err, util.ErrNotFound) {
		return nil, fmt.Errorf("deletion %d: %w", deletionID, util.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: deletion %d: %w", util.ErrStorageUnavailable, deletionID, err)
	}
	return entry, nil
}

// lostClaim explains why a conditional transition out of quarantined failed
func (l *Lifecycle) lostClaim(ctx context.Context, deletionID int64) error {
	current, err := l.get(ctx, deletionID)
	if err != nil {
		return err
	}
	if current.State == StatePurged {
		return fmt.Errorf("%s: %w", current, util.ErrAlreadyPurged)
	}
	return fmt.Errorf("%s: %w: transition in progress", current, util.ErrConflict)
}

// release hands a claimed entry back to quarantined
func (l *Lifecycle) release(ctx context.Context, entry *Entry, from State) {
	if _, err := l.ledger.Transition(ctx, entry.DeletionID, from, StateQuarantined, l.now()); err != nil {
		util.WarnLog("Could not release %s: %v", entry, err)
	}
}

// Purge permanently deletes a quarantined file. Purging an entry that is
// already purged succeeds without doing anything.
func (l *Lifecycle) Purge(ctx context.Context, deletionID int64) (*PurgeResult, error) {
	res, trashPath, err := l.purge(ctx, deletionID)
	if res == nil || !res.AlreadyPurged {
		l.logger.LogPurge(deletionID, trashPath, err)
	}
	if err != nil {
		return &PurgeResult{}, err
	}
	return res, nil
}

func (l *Lifecycle) purge(ctx context.Context, deletionID int64) (*PurgeResult, string, error) {
	entry, err := l.get(ctx, deletionID)
	if err != nil {
		return nil, "", err
	}
	if entry.State == StatePurged {
		return &PurgeResult{Success: true, AlreadyPurged: true}, entry.TrashPath, nil
	}

	won, err := l.ledger.Transition(ctx, deletionID, StateQuarantined, StatePurging, l.now())
	if err != nil {
		return nil, entry.TrashPath, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}
	if !won {
		err := l.lostClaim(ctx, deletionID)
		if errors.Is(err, util.ErrAlreadyPurged) {
			return &PurgeResult{Success: true, AlreadyPurged: true}, entry.TrashPath, nil
		}
		return nil, entry.TrashPath, err
	}

	if err := l.files.remove(ctx, entry.TrashPath); err != nil {
		l.release(ctx, entry, StatePurging)
		if errors.Is(err, os.ErrNotExist) {
			return nil, entry.TrashPath, fmt.Errorf("%s: %w: %s missing", entry, util.ErrTrashCorrupted, entry.TrashPath)
		}
		return nil, entry.TrashPath, fmt.Errorf("%s: delete trash file: %w", entry, err)
	}

	if _, err := l.ledger.Transition(ctx, deletionID, StatePurging, StatePurged, l.now()); err != nil {
		return nil, entry.TrashPath, fmt.Errorf("%w: mark %s purged: %w", util.ErrStorageUnavailable, entry, err)
	}
	l.files.pruneDir(filepath.Dir(entry.TrashPath))

	util.DebugLog("Purged %s", entry)
	return &PurgeResult{Success: true}, entry.TrashPath, nil
}

// AutoPurgeExpired purges every quarantined entry whose retention has
// elapsed. Failures are collected and the entries stay quarantined for the
// next sweep. Entries claimed by a concurrent restore or sweep are skipped.
func (l *Lifecycle) AutoPurgeExpired(ctx context.Context) (*SweepResult, error) {
	expired, err := l.ledger.ListExpired(ctx, l.now())
	if err != nil {
		return nil, fmt.Errorf("%w: list expired: %w", util.ErrStorageUnavailable, err)
	}

	result := &SweepResult{}
	for _, entry := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := l.Purge(ctx, entry.DeletionID)
		switch {
		case err == nil && !res.AlreadyPurged:
			result.PurgedCount++
		case err == nil:
			// purged by a concurrent sweep
		case errors.Is(err, util.ErrConflict), errors.Is(err, util.ErrNotFound):
			util.DebugLog("Sweep skipping %s: %v", entry, err)
		default:
			util.WarnLog("Sweep could not purge %s: %v", entry, err)
			result.Failed = append(result.Failed, ItemError{AssetID: entry.AssetID, DeletionID: entry.DeletionID, Err: err})
		}
	}

	l.logger.LogSweep(result.PurgedCount, len(result.Failed))
	return result, nil
}

// ListQueue returns entries that still hold a trash file
func (l *Lifecycle) ListQueue(ctx context.Context) ([]*Entry, error) {
	entries, err := l.ledger.ListLive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}
	return entries, nil
}

// ListHistory returns the most recent ledger entries of any state
func (l *Lifecycle) ListHistory(ctx context.Context, limit int) ([]*Entry, error) {
	entries, err := l.ledger.ListHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}
	return entries, nil
}
