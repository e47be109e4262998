package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/util"
)

// MediaExtensions are the file types cataloged by default
var MediaExtensions = []string{
	// images
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp", ".heic", ".heif", ".svg",
	// video
	".mp4", ".m4v", ".mov", ".avi", ".mkv", ".webm",
	// audio
	".mp3", ".flac", ".m4a", ".ogg", ".opus", ".wav", ".aac",
	// documents
	".pdf",
}

// Scanner catalogs media files in a directory tree
type Scanner struct {
	store       *store.Store
	extensions  map[string]bool
	skipDirs    map[string]bool
	concurrency int
	batchSize   int
	logger      *report.EventLogger
}

// Config holds scanner configuration
type Config struct {
	Store          *store.Store
	AdditionalExts []string
	// SkipDirs are never descended into (trash, artifacts)
	SkipDirs    []string
	Concurrency int
	BatchSize   int
	Logger      *report.EventLogger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}

	extMap := make(map[string]bool)
	for _, ext := range MediaExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}

	skip := make(map[string]bool)
	for _, dir := range cfg.SkipDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			skip[abs] = true
		}
	}

	return &Scanner{
		store:       cfg.Store,
		extensions:  extMap,
		skipDirs:    skip,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		logger:      cfg.Logger,
	}
}

// Result represents a scan result
type Result struct {
	FilesCataloged    int
	FilesFailed       int
	DerivativesLinked int64
	Errors            []error
}

type errorList struct {
	mu   sync.Mutex
	errs []error
}

func (l *errorList) add(err error) {
	l.mu.Lock()
	l.errs = append(l.errs, err)
	l.mu.Unlock()
}

// Scan walks root and upserts every media file it finds. Rescanning is
// idempotent: records are keyed by path.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library path: %w", err)
	}
	util.InfoLog("Starting scan of: %s", root)

	var errs errorList
	paths := make(chan string, 100)
	records := make(chan *store.AssetRecord, s.batchSize)

	var found, processed, cataloged, failed atomic.Int64

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()

	bar := util.NewProgressBar(-1, "Scanning", "files")
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-progressCtx.Done():
				return
			case <-ticker.C:
				n := found.Load()
				if n == 0 {
					continue
				}
				if bar != nil {
					bar.Describe(fmt.Sprintf("Scanning | %d found | %d cataloged | %d failed",
						n, cataloged.Load(), failed.Load()))
					bar.Set64(processed.Load())
				} else {
					util.InfoLog("Progress: found %d media files, processed %d (cataloged: %d, failed: %d)",
						n, processed.Load(), cataloged.Load(), failed.Load())
				}
			}
		}
	}()

	// Batch writer
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := make([]*store.AssetRecord, 0, s.batchSize)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		flush := func() {
			if len(batch) == 0 {
				return
			}
			// the batch is written even after cancellation so probed work is kept
			if err := s.store.UpsertAssets(context.WithoutCancel(ctx), batch); err != nil {
				util.ErrorLog("Failed to write %d assets: %v", len(batch), err)
				errs.add(err)
				failed.Add(int64(len(batch)))
			} else {
				cataloged.Add(int64(len(batch)))
				for _, rec := range batch {
					s.logger.LogScan(int64(rec.ID), rec.Path, rec.MimeType, rec.SizeBytes)
				}
			}
			batch = batch[:0]
		}

		for {
			select {
			case rec, ok := <-records:
				if !ok {
					flush()
					return
				}
				batch = append(batch, rec)
				if len(batch) >= s.batchSize {
					flush()
				}
			case <-ticker.C:
				flush()
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				if ctx.Err() != nil {
					return
				}

				rec, err := Probe(path)
				processed.Add(1)
				if err != nil {
					util.WarnLog("Failed to probe %s: %v", path, err)
					s.logger.LogError(report.EventScan, path, err)
					errs.add(err)
					failed.Add(1)
					continue
				}
				records <- rec
			}
		}()
	}

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			errs.add(fmt.Errorf("access error: %s: %w", path, err))
			return nil
		}

		if d.IsDir() {
			if s.skipDirs[path] {
				util.DebugLog("Skipping %s", path)
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.isMediaFile(path) {
			return nil
		}

		found.Add(1)
		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	close(paths)
	wg.Wait()
	close(records)
	writerWg.Wait()
	cancelProgress()

	if bar != nil {
		bar.Finish()
	}

	result := &Result{
		FilesCataloged: int(cataloged.Load()),
		FilesFailed:    int(failed.Load()),
		Errors:         errs.errs,
	}

	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return result, walkErr
		}
		return result, fmt.Errorf("walk error: %w", walkErr)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	linked, err := s.store.LinkDerivatives(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to link derivatives: %w", err)
	}
	result.DerivativesLinked = linked

	util.SuccessLog("Scan complete: %d files cataloged, %d failed, %d thumbnails linked",
		result.FilesCataloged, result.FilesFailed, result.DerivativesLinked)

	return result, nil
}

// isMediaFile checks if a file has a supported media extension
func (s *Scanner) isMediaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return s.extensions[ext]
}

// SupportedExtensions returns the list of supported extensions
func (s *Scanner) SupportedExtensions() []string {
	exts := make([]string, 0, len(s.extensions))
	for ext := range s.extensions {
		exts = append(exts, ext)
	}
	return exts
}
