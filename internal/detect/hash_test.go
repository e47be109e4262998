package detect

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/testutil"
	"github.com/franz/media-janitor/internal/util"
)

func TestHashFile_ChunkSizeIndependent(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 10_000)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := testutil.WriteFile(t, dir, "a.bin", content)

	small, err := NewHashStrategy(7, 1).HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	large, err := NewHashStrategy(0, 1).HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if small != large {
		t.Errorf("Digest depends on chunk size: %s vs %s", small, large)
	}
	if len(small) != 64 {
		t.Errorf("Expected hex SHA-256, got %q", small)
	}
}

func TestHashFile_Missing(t *testing.T) {
	_, err := NewHashStrategy(0, 1).HashFile(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"))
	if !errors.Is(err, util.ErrUnreadableAsset) {
		t.Errorf("Expected ErrUnreadableAsset, got %v", err)
	}
}

func TestGroupByHash(t *testing.T) {
	dir := t.TempDir()
	store := testutil.NewMemStore()
	a := store.Add(asset.Asset{Path: testutil.WriteFile(t, dir, "a.jpg", []byte("same"))})
	b := store.Add(asset.Asset{Path: testutil.WriteFile(t, dir, "b.jpg", []byte("same"))})
	store.Add(asset.Asset{Path: testutil.WriteFile(t, dir, "c.jpg", []byte("other"))})
	d := store.Add(asset.Asset{Path: testutil.WriteFile(t, dir, "sub/d.jpg", []byte("same"))})
	store.Add(asset.Asset{Path: filepath.Join(dir, "missing.jpg")})

	h := NewHashStrategy(2, 3)
	groups, err := h.GroupByHash(context.Background(), store, []asset.ID{1, 2, 3, 4, 5, 99}, 2)
	if err != nil {
		t.Fatalf("GroupByHash failed: %v", err)
	}

	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d: %v", len(groups), groups)
	}
	for _, ids := range groups {
		if !reflect.DeepEqual(ids, []asset.ID{a, b, d}) {
			t.Errorf("Group members = %v, want %v", ids, []asset.ID{a, b, d})
		}
	}
	if h.Unreadable() != 1 {
		t.Errorf("Unreadable = %d, want 1", h.Unreadable())
	}
}
