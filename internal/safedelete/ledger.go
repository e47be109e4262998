// Package safedelete moves duplicate copies into a trash area instead of
// deleting them outright. Every trashed file has exactly one ledger entry
// that records where it came from, when it expires and what its catalog
// record looked like, so it can be restored until it is purged.
package safedelete

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/media-janitor/internal/asset"
)

// State is the sub-state of a ledger entry
type State string

const (
	// StatePending is written before the file moves; a crash leaves it behind
	// for Reconcile
	StatePending State = "pending"
	// StateQuarantined means the file sits in the trash and can be restored
	StateQuarantined State = "quarantined"
	// StateRestoring and StatePurging are short-lived claims held by the
	// caller that won the transition
	StateRestoring State = "restoring"
	StatePurging   State = "purging"
	// StatePurged is terminal; the row stays as history
	StatePurged State = "purged"
)

// Live reports whether the entry still holds a trash file
func (s State) Live() bool {
	return s != StatePurged
}

// Entry is one row of the quarantine ledger
type Entry struct {
	DeletionID   int64
	AssetID      asset.ID
	OriginalPath string
	TrashPath    string
	Snapshot     asset.Snapshot
	SizeBytes    int64
	State        State
	EnqueuedAt   time.Time
	ExpiresAt    time.Time
	PurgedAt     *time.Time
	UpdatedAt    time.Time
}

func (e *Entry) String() string {
	return fmt.Sprintf("deletion %d (asset %d, %s)", e.DeletionID, e.AssetID, e.State)
}

// Ledger persists quarantine entries. Every state change goes through
// Transition, a conditional update that at most one caller can win.
type Ledger interface {
	// InsertPending durably records a pending entry and fills in its
	// DeletionID and TrashPath, the latter computed by layout from the new
	// id. A second live entry for the same asset fails with
	// util.ErrAlreadyQuarantined.
	InsertPending(ctx context.Context, e *Entry, layout func(deletionID int64) string) error

	// Get returns util.ErrNotFound for unknown (or restored) ids
	Get(ctx context.Context, deletionID int64) (*Entry, error)

	// FindLive returns the live entry of an asset or util.ErrNotFound
	FindLive(ctx context.Context, assetID asset.ID) (*Entry, error)

	// Transition moves an entry from one state to another if and only if it
	// is currently in from. Entering StatePurged stamps purged_at with at.
	Transition(ctx context.Context, deletionID int64, from, to State, at time.Time) (bool, error)

	// Delete removes the entry if it is currently in state
	Delete(ctx context.Context, deletionID int64, state State) (bool, error)

	// ListExpired returns quarantined entries with expires_at <= now
	ListExpired(ctx context.Context, now time.Time) ([]*Entry, error)

	// ListLive returns all non-purged entries, soonest expiry first
	ListLive(ctx context.Context) ([]*Entry, error)

	// ListHistory returns up to limit entries of any state, newest first.
	// A limit <= 0 returns everything.
	ListHistory(ctx context.Context, limit int) ([]*Entry, error)
}
