package safedelete_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/util"
)

// pending writes a pending ledger row for id the way an interrupted
// quarantine leaves it, without touching the file
func (f *fixture) pending(t *testing.T, id asset.ID) *safedelete.Entry {
	t.Helper()

	ctx := context.Background()
	a, err := f.store.Metadata(ctx, id)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	now := f.clock.Now()
	e := &safedelete.Entry{
		AssetID:      id,
		OriginalPath: a.Path,
		Snapshot:     asset.SnapshotOf(a),
		SizeBytes:    a.SizeBytes,
		EnqueuedAt:   now,
		ExpiresAt:    now.Add(time.Hour),
		UpdatedAt:    now,
	}
	err = f.store.InsertPending(ctx, e, func(deletionID int64) string {
		return filepath.Join(f.lc.TrashDir(), strconv.FormatInt(deletionID, 10), filepath.Base(a.Path))
	})
	if err != nil {
		t.Fatalf("InsertPending failed: %v", err)
	}
	return e
}

func moveToTrash(t *testing.T, e *safedelete.Entry) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(e.TrashPath), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.Rename(e.OriginalPath, e.TrashPath); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
}

func (f *fixture) advance(t *testing.T, e *safedelete.Entry, states ...safedelete.State) {
	t.Helper()

	from := e.State
	for _, to := range states {
		ok, err := f.store.Transition(context.Background(), e.DeletionID, from, to, f.clock.Now())
		if err != nil || !ok {
			t.Fatalf("Transition %s -> %s failed: %v", from, to, err)
		}
		from = to
	}
	e.State = from
}

func repairsByID(res *safedelete.ReconcileResult) map[int64]string {
	m := make(map[int64]string)
	for _, r := range res.Repairs {
		m[r.DeletionID] = r.Action
	}
	return m
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	// crashed before the move
	neverMoved := f.pending(t, f.addFile(t, "never.jpg", []byte("n")))

	// crashed after the move, before promotion
	moved := f.pending(t, f.addFile(t, "moved.jpg", []byte("m")))
	moveToTrash(t, moved)

	// crashed after deleting the trash file
	purging := f.pending(t, f.addFile(t, "purging.jpg", []byte("p")))
	moveToTrash(t, purging)
	f.advance(t, purging, safedelete.StateQuarantined, safedelete.StatePurging)
	f.store.RemoveRecord(ctx, purging.AssetID)
	os.Remove(purging.TrashPath)

	// crashed after claiming a restore
	restoring := f.pending(t, f.addFile(t, "restoring.jpg", []byte("r")))
	moveToTrash(t, restoring)
	f.advance(t, restoring, safedelete.StateQuarantined, safedelete.StateRestoring)
	f.store.RemoveRecord(ctx, restoring.AssetID)

	// quarantined with its trash file gone
	lost := f.quarantineOne(t, f.addFile(t, "lost.jpg", []byte("l")))
	os.Remove(lost.TrashPath)

	f.clock.Advance(time.Hour)

	// a fresh pending row may still belong to a running process
	fresh := f.pending(t, f.addFile(t, "fresh.jpg", []byte("f")))

	dry, err := f.lc.Reconcile(ctx, safedelete.ReconcileOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Reconcile (dry run) failed: %v", err)
	}
	if len(dry.Repairs) != 4 {
		t.Errorf("expected 4 planned repairs, got %+v", dry.Repairs)
	}
	if e, _ := f.store.Get(ctx, neverMoved.DeletionID); e == nil || e.State != safedelete.StatePending {
		t.Error("dry run must not change the ledger")
	}

	res, err := f.lc.Reconcile(ctx, safedelete.ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	actions := repairsByID(res)
	want := map[int64]string{
		neverMoved.DeletionID: safedelete.ActionDropped,
		moved.DeletionID:      safedelete.ActionPromoted,
		purging.DeletionID:    safedelete.ActionCompletedPurge,
		restoring.DeletionID:  safedelete.ActionReleased,
	}
	for id, action := range want {
		if actions[id] != action {
			t.Errorf("deletion %d: action %q, want %q", id, actions[id], action)
		}
	}
	if _, ok := actions[fresh.DeletionID]; ok {
		t.Error("fresh pending entry must be left alone")
	}
	for _, r := range res.Repairs {
		if r.Err != nil {
			t.Errorf("repair %d (%s) failed: %v", r.DeletionID, r.Action, r.Err)
		}
	}

	if len(res.Corrupted) != 1 || res.Corrupted[0].DeletionID != lost.DeletionID ||
		!errors.Is(res.Corrupted[0], util.ErrTrashCorrupted) {
		t.Errorf("expected lost entry reported corrupted, got %v", res.Corrupted)
	}

	if _, err := f.store.Get(ctx, neverMoved.DeletionID); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected never-moved row dropped, got %v", err)
	}
	if _, err := f.store.Metadata(ctx, neverMoved.AssetID); err != nil {
		t.Errorf("never-moved asset must stay cataloged: %v", err)
	}

	if e, _ := f.store.Get(ctx, moved.DeletionID); e.State != safedelete.StateQuarantined {
		t.Errorf("expected moved entry promoted, got %s", e.State)
	}
	if _, err := f.store.Metadata(ctx, moved.AssetID); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected promoted asset removed from corpus, got %v", err)
	}

	if e, _ := f.store.Get(ctx, purging.DeletionID); e.State != safedelete.StatePurged || e.PurgedAt == nil {
		t.Errorf("expected purge completed, got %+v", e)
	}
	if e, _ := f.store.Get(ctx, restoring.DeletionID); e.State != safedelete.StateQuarantined {
		t.Errorf("expected restore claim released, got %s", e.State)
	}

	// a second pass finds nothing left to repair
	again, _ := f.lc.Reconcile(ctx, safedelete.ReconcileOptions{})
	if len(again.Repairs) != 0 {
		t.Errorf("expected reconcile to converge, got %+v", again.Repairs)
	}
}

func TestReconcileRemovesLingeringRecord(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	id := f.addFile(t, "a.jpg", []byte("a"))
	e := f.pending(t, id)
	moveToTrash(t, e)
	f.advance(t, e, safedelete.StateQuarantined)

	res, err := f.lc.Reconcile(ctx, safedelete.ReconcileOptions{})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(res.Repairs) != 1 || res.Repairs[0].Action != safedelete.ActionRecordRemoved {
		t.Fatalf("expected record removal, got %+v", res.Repairs)
	}
	if _, err := f.store.Metadata(ctx, id); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected asset removed, got %v", err)
	}
}
