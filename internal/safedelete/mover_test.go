package safedelete

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/media-janitor/internal/util"
)

func testMover() *mover {
	return &mover{retry: &util.RetryConfig{MaxAttempts: 1}}
}

func TestMoverMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	os.WriteFile(src, []byte("hello"), 0644)
	dest := filepath.Join(dir, "trash", "1", "a.jpg")

	size, err := testMover().move(context.Background(), src, dest)
	if err != nil {
		t.Fatalf("move failed: %v", err)
	}
	if size != 5 {
		t.Errorf("size = %d, want 5", size)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("expected source gone")
	}
}

func TestMoverMoveRefusesExistingDest(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.jpg")
	dest := filepath.Join(dir, "b.jpg")
	os.WriteFile(src, []byte("src"), 0644)
	os.WriteFile(dest, []byte("dest"), 0644)

	if _, err := testMover().move(context.Background(), src, dest); !errors.Is(err, util.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "dest" {
		t.Error("destination must not be overwritten")
	}
}

func TestMoverMoveMissingSource(t *testing.T) {
	dir := t.TempDir()

	_, err := testMover().move(context.Background(), filepath.Join(dir, "gone.jpg"), filepath.Join(dir, "t", "gone.jpg"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestMoverCopy(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("x"), 3*copyBufferSize+7)
	src := filepath.Join(dir, "src.bin")
	dest := filepath.Join(dir, "dest.bin")
	os.WriteFile(src, content, 0644)

	written, err := testMover().copy(context.Background(), src, dest)
	if err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if written != int64(len(content)) {
		t.Errorf("written = %d, want %d", written, len(content))
	}
	if data, _ := os.ReadFile(dest); !bytes.Equal(data, content) {
		t.Error("copied content mismatch")
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("expected no .part file left behind")
	}
}

func TestCopyWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := copyWithContext(ctx, &out, strings.NewReader("data"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if out.Len() != 0 {
		t.Error("expected nothing written")
	}
}

func TestMoverPruneDir(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	os.MkdirAll(empty, 0755)
	os.MkdirAll(full, 0755)
	os.WriteFile(filepath.Join(full, "f"), nil, 0644)

	m := testMover()
	m.pruneDir(empty)
	m.pruneDir(full)

	if _, err := os.Stat(empty); !os.IsNotExist(err) {
		t.Error("expected empty dir removed")
	}
	if _, err := os.Stat(full); err != nil {
		t.Error("expected non-empty dir kept")
	}
}
