package safedelete

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/franz/media-janitor/internal/util"
)

const copyBufferSize = 128 * 1024

// mover relocates files between the library and the trash
type mover struct {
	retry *util.RetryConfig
}

// move renames src to dest, falling back to copy and remove when the two are
// on different filesystems. dest must not exist.
func (m *mover) move(ctx context.Context, src, dest string) (int64, error) {
	if err := util.RetryableMkdirAll(ctx, filepath.Dir(dest), 0755, m.retry); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	if exists, err := util.PathExists(dest); err != nil {
		return 0, err
	} else if exists {
		return 0, fmt.Errorf("%w: destination %s already exists", util.ErrConflict, dest)
	}

	err := util.RetryableRename(ctx, src, dest, m.retry)
	if err == nil {
		stat, err := util.RetryableStat(ctx, dest, m.retry)
		if err != nil {
			return 0, nil
		}
		return stat.Size(), nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return 0, err
	}

	// Different filesystem: copy, verify, then drop the source
	srcStat, err := util.RetryableStat(ctx, src, m.retry)
	if err != nil {
		return 0, err
	}
	written, err := m.copy(ctx, src, dest)
	if err != nil {
		return 0, err
	}
	if written != srcStat.Size() {
		util.RetryableRemove(ctx, dest, m.retry)
		return 0, fmt.Errorf("verification failed: copied %d of %d bytes", written, srcStat.Size())
	}

	if err := util.RetryableRemove(ctx, src, m.retry); err != nil {
		// keep exactly one copy
		util.RetryableRemove(ctx, dest, m.retry)
		return 0, fmt.Errorf("failed to remove source after copy: %w", err)
	}

	util.DebugLog("Moved across filesystems: %s -> %s (%s)", src, dest, util.FormatBytes(written))
	return written, nil
}

// copy writes src to dest through a .part file renamed into place
func (m *mover) copy(ctx context.Context, src, dest string) (int64, error) {
	in, err := util.RetryableOpen(ctx, src, m.retry)
	if err != nil {
		return 0, fmt.Errorf("failed to open source: %w", err)
	}
	defer in.Close()

	tempPath := dest + ".part"
	out, err := util.RetryableCreateExclusive(ctx, tempPath, m.retry)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	written, err := copyWithContext(ctx, out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		util.RetryableRemove(ctx, tempPath, m.retry)
		return 0, fmt.Errorf("failed to copy: %w", err)
	}

	if err := util.RetryableRename(ctx, tempPath, dest, m.retry); err != nil {
		util.RetryableRemove(ctx, tempPath, m.retry)
		return 0, fmt.Errorf("failed to rename: %w", err)
	}
	return written, nil
}

// remove deletes a trash file. A file that is already gone is reported as
// os.ErrNotExist so callers can tell it apart from I/O failures.
func (m *mover) remove(ctx context.Context, path string) error {
	return util.RetryableRemove(ctx, path, m.retry)
}

// pruneDir removes dir if it is empty
func (m *mover) pruneDir(dir string) {
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		util.DebugLog("Leaving trash directory %s: %v", dir, err)
	}
}

// copyWithContext copies data with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if ew == nil {
					ew = fmt.Errorf("invalid write result")
				}
			}
			written += int64(nw)
			if ew != nil {
				return written, ew
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if er != nil {
			if er != io.EOF {
				return written, er
			}
			break
		}
	}
	return written, nil
}
