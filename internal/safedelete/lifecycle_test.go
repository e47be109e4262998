package safedelete_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/testutil"
	"github.com/franz/media-janitor/internal/util"
)

type fixture struct {
	store    *store.Store
	lc       *safedelete.Lifecycle
	clock    *testutil.Clock
	libDir   string
	trashDir string
}

func newFixture(t *testing.T, retention time.Duration) *fixture {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:    st,
		clock:    testutil.NewClock(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		libDir:   filepath.Join(dir, "library"),
		trashDir: filepath.Join(dir, "trash"),
	}
	f.lc, err = safedelete.New(st, st, st, safedelete.Options{
		TrashDir:  f.trashDir,
		Retention: retention,
		Now:       f.clock.Now,
		Retry:     &util.RetryConfig{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("failed to create lifecycle: %v", err)
	}
	return f
}

// addFile writes a library file and catalogs it
func (f *fixture) addFile(t *testing.T, name string, content []byte) asset.ID {
	t.Helper()

	path := testutil.WriteFile(t, f.libDir, name, content)
	rec := &store.AssetRecord{Asset: asset.Asset{
		Path:       path,
		Title:      name,
		SizeBytes:  int64(len(content)),
		MimeType:   "image/jpeg",
		CreatedAt:  f.clock.Now().Add(-48 * time.Hour),
		Dimensions: &asset.Dimensions{Width: 10, Height: 20},
	}}
	if err := f.store.UpsertAsset(context.Background(), rec); err != nil {
		t.Fatalf("failed to catalog %s: %v", name, err)
	}
	return rec.ID
}

func (f *fixture) quarantineOne(t *testing.T, id asset.ID) safedelete.Prepared {
	t.Helper()

	res, err := f.lc.Quarantine(context.Background(), []asset.ID{id})
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if len(res.Prepared) != 1 {
		t.Fatalf("expected asset %d quarantined, got %+v", id, res)
	}
	return res.Prepared[0]
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNewRequiresTrashDir(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	if _, err := safedelete.New(st, st, st, safedelete.Options{}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := safedelete.New(nil, nil, st, safedelete.Options{TrashDir: "trash"}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for missing store, got %v", err)
	}
}

func TestQuarantineRestoreRoundTrip(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()
	content := []byte("sunset pixels")

	id := f.addFile(t, "sunset.jpg", content)
	before, _ := f.store.Metadata(ctx, id)

	p := f.quarantineOne(t, id)

	wantTrash := filepath.Join(f.lc.TrashDir(), strconv.FormatInt(p.DeletionID, 10), "sunset.jpg")
	if p.TrashPath != wantTrash {
		t.Errorf("trash path = %s, want %s", p.TrashPath, wantTrash)
	}
	if fileExists(before.Path) || !fileExists(p.TrashPath) {
		t.Fatal("expected file moved into the trash")
	}
	if _, err := f.store.Metadata(ctx, id); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected asset removed from corpus, got %v", err)
	}
	if !p.ExpiresAt.Equal(f.clock.Now().Add(safedelete.DefaultRetention)) {
		t.Errorf("unexpected expiry %v", p.ExpiresAt)
	}

	res, err := f.lc.Restore(ctx, p.DeletionID)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !res.Success || res.Path != before.Path {
		t.Fatalf("unexpected restore result: %+v", res)
	}

	data, err := os.ReadFile(before.Path)
	if err != nil || !bytes.Equal(data, content) {
		t.Errorf("restored file content mismatch: %q, %v", data, err)
	}
	if fileExists(p.TrashPath) || fileExists(filepath.Dir(p.TrashPath)) {
		t.Error("expected trash entry cleaned up")
	}

	after, err := f.store.Metadata(ctx, res.NewAssetID)
	if err != nil {
		t.Fatalf("restored asset missing: %v", err)
	}
	if after.Path != before.Path || after.Title != before.Title || after.SizeBytes != before.SizeBytes ||
		!after.CreatedAt.Equal(before.CreatedAt) || after.Dimensions.Key() != before.Dimensions.Key() {
		t.Errorf("restored metadata %+v does not match %+v", after, before)
	}

	if _, err := f.lc.Restore(ctx, p.DeletionID); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second restore, got %v", err)
	}
}

func TestPurgeIsTerminal(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	id := f.addFile(t, "a.jpg", []byte("aaaa"))
	p := f.quarantineOne(t, id)

	res, err := f.lc.Purge(ctx, p.DeletionID)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if !res.Success || res.AlreadyPurged {
		t.Errorf("unexpected purge result: %+v", res)
	}
	if fileExists(p.TrashPath) {
		t.Error("expected trash file deleted")
	}

	entry, err := f.store.Get(ctx, p.DeletionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.State != safedelete.StatePurged || entry.PurgedAt == nil {
		t.Errorf("expected purged entry with timestamp, got %+v", entry)
	}

	again, err := f.lc.Purge(ctx, p.DeletionID)
	if err != nil || !again.AlreadyPurged {
		t.Errorf("expected idempotent purge, got %+v, %v", again, err)
	}

	if _, err := f.lc.Restore(ctx, p.DeletionID); !errors.Is(err, util.ErrAlreadyPurged) {
		t.Errorf("expected ErrAlreadyPurged, got %v", err)
	}
	if _, err := f.lc.Purge(ctx, 999); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown deletion, got %v", err)
	}
}

func TestAutoPurgeExpired(t *testing.T) {
	retention := 30 * 24 * time.Hour
	f := newFixture(t, retention)
	ctx := context.Background()

	id := f.addFile(t, "big.jpg", bytes.Repeat([]byte{0xff}, 500000))
	p := f.quarantineOne(t, id)

	entry, _ := f.store.Get(ctx, p.DeletionID)
	if entry.SizeBytes != 500000 || !entry.ExpiresAt.Equal(entry.EnqueuedAt.Add(retention)) {
		t.Errorf("unexpected ledger entry: %+v", entry)
	}

	res, err := f.lc.AutoPurgeExpired(ctx)
	if err != nil {
		t.Fatalf("AutoPurgeExpired failed: %v", err)
	}
	if res.PurgedCount != 0 || !fileExists(p.TrashPath) {
		t.Fatalf("expected immediate sweep to be a no-op, got %+v", res)
	}

	f.clock.Advance(retention)
	res, err = f.lc.AutoPurgeExpired(ctx)
	if err != nil {
		t.Fatalf("AutoPurgeExpired failed: %v", err)
	}
	if res.PurgedCount != 1 || len(res.Failed) != 0 {
		t.Errorf("expected one purge, got %+v", res)
	}
	if fileExists(p.TrashPath) {
		t.Error("expected trash file deleted")
	}

	if res, _ := f.lc.AutoPurgeExpired(ctx); res.PurgedCount != 0 {
		t.Errorf("expected nothing left to sweep, got %d", res.PurgedCount)
	}
}

func TestAutoPurgeContinuesPastFailures(t *testing.T) {
	f := newFixture(t, time.Hour)
	ctx := context.Background()

	broken := f.quarantineOne(t, f.addFile(t, "broken.jpg", []byte("b")))
	healthy := f.quarantineOne(t, f.addFile(t, "healthy.jpg", []byte("h")))
	os.Remove(broken.TrashPath)

	f.clock.Advance(2 * time.Hour)
	res, err := f.lc.AutoPurgeExpired(ctx)
	if err != nil {
		t.Fatalf("AutoPurgeExpired failed: %v", err)
	}
	if res.PurgedCount != 1 || len(res.Failed) != 1 {
		t.Fatalf("expected one purge and one failure, got %+v", res)
	}
	if res.Failed[0].DeletionID != broken.DeletionID || !errors.Is(res.Failed[0], util.ErrTrashCorrupted) {
		t.Errorf("unexpected failure: %v", res.Failed[0])
	}

	// the failed entry stays quarantined for the next sweep
	if e, _ := f.store.Get(ctx, broken.DeletionID); e.State != safedelete.StateQuarantined {
		t.Errorf("expected broken entry still quarantined, got %s", e.State)
	}
	if e, _ := f.store.Get(ctx, healthy.DeletionID); e.State != safedelete.StatePurged {
		t.Errorf("expected healthy entry purged, got %s", e.State)
	}
}

func TestQuarantineBatchAccounting(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	good := f.addFile(t, "good.jpg", []byte("g"))
	pinned := f.addFile(t, "pinned.jpg", []byte("p"))
	vanished := f.addFile(t, "vanished.jpg", []byte("v"))
	if err := f.store.Pin(ctx, "keep", pinned); err != nil {
		t.Fatalf("Pin failed: %v", err)
	}
	vanishedAsset, _ := f.store.Metadata(ctx, vanished)
	os.Remove(vanishedAsset.Path)

	res, err := f.lc.Quarantine(ctx, []asset.ID{good, pinned, vanished, 999})
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}

	if len(res.Prepared) != 1 || res.Prepared[0].AssetID != good {
		t.Errorf("expected only %d prepared, got %+v", good, res.Prepared)
	}
	if len(res.Excluded) != 1 || res.Excluded[0] != pinned {
		t.Errorf("expected %d excluded, got %v", pinned, res.Excluded)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", res.Errors)
	}
	if res.Errors[0].AssetID != vanished || !errors.Is(res.Errors[0], util.ErrAlreadyQuarantined) {
		t.Errorf("unexpected error for vanished file: %v", res.Errors[0])
	}
	if res.Errors[1].AssetID != 999 || !errors.Is(res.Errors[1], util.ErrNotFound) {
		t.Errorf("unexpected error for unknown id: %v", res.Errors[1])
	}

	pinnedAsset, _ := f.store.Metadata(ctx, pinned)
	if pinnedAsset == nil || !fileExists(pinnedAsset.Path) {
		t.Error("pinned asset must be untouched")
	}
	if _, err := f.store.FindLive(ctx, vanished); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected no ledger entry for failed item, got %v", err)
	}
}

func TestQuarantineTwice(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	id := f.addFile(t, "a.jpg", []byte("a"))
	p := f.quarantineOne(t, id)

	res, err := f.lc.Quarantine(ctx, []asset.ID{id})
	if err != nil {
		t.Fatalf("Quarantine failed: %v", err)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], util.ErrAlreadyQuarantined) {
		t.Errorf("expected ErrAlreadyQuarantined, got %+v", res)
	}

	queue, _ := f.lc.ListQueue(ctx)
	if len(queue) != 1 || queue[0].DeletionID != p.DeletionID {
		t.Errorf("expected a single queued entry, got %d", len(queue))
	}
}

func TestMissingTrashFileIsReported(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	p := f.quarantineOne(t, f.addFile(t, "a.jpg", []byte("a")))
	os.Remove(p.TrashPath)

	if _, err := f.lc.Restore(ctx, p.DeletionID); !errors.Is(err, util.ErrTrashCorrupted) {
		t.Errorf("expected ErrTrashCorrupted from restore, got %v", err)
	}
	if _, err := f.lc.Purge(ctx, p.DeletionID); !errors.Is(err, util.ErrTrashCorrupted) {
		t.Errorf("expected ErrTrashCorrupted from purge, got %v", err)
	}

	e, _ := f.store.Get(ctx, p.DeletionID)
	if e.State != safedelete.StateQuarantined {
		t.Errorf("expected entry released back to quarantined, got %s", e.State)
	}
}

func TestRestoreOntoOccupiedPath(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	id := f.addFile(t, "a.jpg", []byte("old"))
	a, _ := f.store.Metadata(ctx, id)
	p := f.quarantineOne(t, id)

	testutil.WriteFile(t, f.libDir, "a.jpg", []byte("new"))

	if _, err := f.lc.Restore(ctx, p.DeletionID); !errors.Is(err, util.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if data, _ := os.ReadFile(a.Path); string(data) != "new" {
		t.Error("occupying file must not be overwritten")
	}
	if !fileExists(p.TrashPath) {
		t.Error("expected quarantined file kept in trash")
	}
	if e, _ := f.store.Get(ctx, p.DeletionID); e.State != safedelete.StateQuarantined {
		t.Errorf("expected entry still quarantined, got %s", e.State)
	}
}

func TestRestoreRacesPurge(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := f.addFile(t, "race-"+strconv.Itoa(i)+".jpg", []byte("race"))
		a, _ := f.store.Metadata(ctx, id)
		p := f.quarantineOne(t, id)

		var (
			wg         sync.WaitGroup
			restored   bool
			purged     bool
			restoreErr error
			purgeErr   error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := f.lc.Restore(ctx, p.DeletionID)
			restored, restoreErr = res.Success, err
		}()
		go func() {
			defer wg.Done()
			res, err := f.lc.Purge(ctx, p.DeletionID)
			purged, purgeErr = res.Success && !res.AlreadyPurged, err
		}()
		wg.Wait()

		if restored == purged {
			t.Fatalf("round %d: expected exactly one winner, restore=%v (%v) purge=%v (%v)",
				i, restored, restoreErr, purged, purgeErr)
		}
		if restored && !fileExists(a.Path) {
			t.Errorf("round %d: restore won but file is missing", i)
		}
		if purged && (fileExists(a.Path) || fileExists(p.TrashPath)) {
			t.Errorf("round %d: purge won but a file survived", i)
		}
	}
}

func TestListHistory(t *testing.T) {
	f := newFixture(t, safedelete.DefaultRetention)
	ctx := context.Background()

	first := f.quarantineOne(t, f.addFile(t, "one.jpg", []byte("1")))
	f.clock.Advance(time.Minute)
	second := f.quarantineOne(t, f.addFile(t, "two.jpg", []byte("2")))
	if _, err := f.lc.Purge(ctx, first.DeletionID); err != nil {
		t.Fatalf("Purge failed: %v", err)
	}

	history, err := f.lc.ListHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].DeletionID != second.DeletionID {
		t.Errorf("expected newest first, got %v", history)
	}

	queue, _ := f.lc.ListQueue(ctx)
	if len(queue) != 1 || queue[0].DeletionID != second.DeletionID {
		t.Errorf("expected purged entry to leave the queue, got %v", queue)
	}
}
