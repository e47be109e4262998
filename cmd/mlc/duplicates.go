package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/media-janitor/internal/batch"
	"github.com/franz/media-janitor/internal/config"
	"github.com/franz/media-janitor/internal/detect"
	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/util"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find duplicate media files",
	Long: `Find groups of duplicate files in the catalog.

Methods:
  hash      identical file content (SHA-256)
  filename  the same name once copy suffixes are stripped (img-1.jpg, img-scaled.jpg)
  both      hash groups first, then filename groups over the remaining files

With --dimensions, images that share exact pixel dimensions are grouped as a
last resort. In every group the oldest file is the original and the rest are
copies; pinned files never appear.

A scan that is interrupted or runs low on memory prints the groups found so
far. Run again with --resume to continue from where it stopped.`,
	RunE: runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)

	duplicatesCmd.Flags().String("method", config.DefaultMethod, "detection method: hash, filename or both")
	duplicatesCmd.Flags().Bool("exclude-thumbnails", true, "leave generated thumbnails out of detection")
	duplicatesCmd.Flags().Bool("dimensions", false, "also group images by pixel dimensions")
	duplicatesCmd.Flags().Bool("resume", false, "continue an interrupted scan")
	duplicatesCmd.Flags().Bool("json", false, "print groups as JSON")
	duplicatesCmd.Flags().Int("offset", 0, "skip this many groups in the output")
	duplicatesCmd.Flags().Int("limit", 0, "print at most this many groups (0 = all)")
	duplicatesCmd.Flags().Bool("report", false, "write a markdown report to the artifacts directory")
	duplicatesCmd.Flags().Int("top", 50, "groups listed in the markdown report")

	viper.BindPFlag("detect.method", duplicatesCmd.Flags().Lookup("method"))
	viper.BindPFlag("detect.exclude_thumbnails", duplicatesCmd.Flags().Lookup("exclude-thumbnails"))
	viper.BindPFlag("detect.dimensions", duplicatesCmd.Flags().Lookup("dimensions"))
}

// newEngine builds a detection engine from the configuration
func newEngine(cfg *config.Config, db *store.Store, logger *report.EventLogger, bar *progressbar.ProgressBar) *detect.Engine {
	return detect.NewEngine(detect.Config{
		Store:          db,
		Policy:         db,
		BatchSize:      cfg.Detect.BatchSize,
		ChunkSize:      int(cfg.Detect.ChunkSize),
		HashWorkers:    cfg.Detect.HashWorkers,
		MemoryHeadroom: uint64(cfg.Detect.MemoryHeadroom),
		Retry:          cfg.RetryPolicy(),
		Logger:         logger,
		OnBatch: func(scanned int) {
			if bar != nil {
				bar.Set(scanned)
			}
		},
	})
}

// detectOptions turns the configuration into per-run detection options
func detectOptions(cfg *config.Config) (detect.Options, error) {
	method, err := detect.ParseMethod(cfg.Detect.Method)
	if err != nil {
		return detect.Options{}, err
	}
	return detect.Options{
		Method:            method,
		ExcludeThumbnails: cfg.Detect.ExcludeThumbnails,
		Dimensions:        cfg.Detect.Dimensions,
	}, nil
}

// findDuplicates runs detection with a progress bar
func findDuplicates(ctx context.Context, cfg *config.Config, db *store.Store, logger *report.EventLogger, opts detect.Options) (*detect.Report, error) {
	total, err := db.CountAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", util.ErrStorageUnavailable, err)
	}

	bar := util.NewProgressBar(int64(total-opts.From.Offset), "Detecting", "assets")
	rep, err := newEngine(cfg, db, logger, bar).FindDuplicates(ctx, opts)
	if bar != nil {
		bar.Finish()
	}
	return rep, err
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := detectOptions(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger(cfg)
	defer logger.Close()

	resume, _ := cmd.Flags().GetBool("resume")
	if resume {
		progress, err := db.GetDetectProgress(ctx)
		if err != nil {
			return fmt.Errorf("failed to load detection progress: %w", err)
		}
		switch {
		case progress == nil || progress.Done:
			util.InfoLog("Nothing to resume; scanning from the start")
			resume = false
		case progress.Method != string(opts.Method):
			return fmt.Errorf("%w: interrupted scan used method %q, not %q",
				util.ErrInvalidConfig, progress.Method, opts.Method)
		default:
			opts.From = batch.Cursor{Offset: progress.NextOffset}
			util.InfoLog("Resuming at asset %d (%d groups found before)", progress.NextOffset, progress.GroupsFound)
			util.WarnLog("Duplicates spanning the resume point are only found by a full scan")
		}
	}
	if !resume {
		if err := db.ClearDetectProgress(ctx); err != nil {
			return fmt.Errorf("failed to reset detection progress: %w", err)
		}
	}

	util.InfoLog("Method: %s", opts.Method)
	startedAt := time.Now()

	rep, err := findDuplicates(ctx, cfg, db, logger, opts)
	if err != nil {
		return fmt.Errorf("duplicate detection failed: %w", err)
	}
	groups := rep.DuplicateGroups()

	progress := &store.DetectProgress{
		Method:        string(opts.Method),
		NextOffset:    rep.Cursor.Offset,
		Done:          !rep.Partial,
		AssetsScanned: rep.Scanned,
		GroupsFound:   len(groups),
		StartedAt:     startedAt,
	}
	if rep.StopReason != nil {
		progress.StopReason = rep.StopReason.Error()
	}
	if err := db.SaveDetectProgress(context.WithoutCancel(ctx), progress); err != nil {
		util.WarnLog("Could not save detection progress: %v", err)
	}

	summary, err := buildDuplicateReport(context.WithoutCancel(ctx), db, rep, groups)
	if err != nil {
		return err
	}
	summary.Method = string(opts.Method)
	summary.DatabasePath = cfg.DB
	summary.EventLogPath = logger.Path()

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")
		if err := printDuplicatesJSON(summary, offset, limit); err != nil {
			return err
		}
	} else {
		limit, _ := cmd.Flags().GetInt("limit")
		printDuplicates(summary, limit)
	}

	if writeReport, _ := cmd.Flags().GetBool("report"); writeReport {
		top, _ := cmd.Flags().GetInt("top")
		outputPath := filepath.Join(cfg.Artifacts, "reports", startedAt.Format("20060102-150405"), "duplicates.md")
		if err := report.WriteMarkdownReport(summary, outputPath, top); err != nil {
			return err
		}
		util.SuccessLog("Report saved to: %s", outputPath)
	}

	if rep.Partial {
		if errors.Is(rep.StopReason, util.ErrMemoryPressure) {
			util.WarnLog("Stopped early: available memory fell below %s", cfg.Detect.MemoryHeadroom)
		} else {
			util.WarnLog("Stopped early: %v", rep.StopReason)
		}
		util.WarnLog("Scanned %d assets; run 'mlc duplicates --resume' to continue", rep.Scanned)
	}
	return nil
}

// duplicatesPage is the JSON document printed by --json
type duplicatesPage struct {
	Method           string                `json:"method"`
	Partial          bool                  `json:"partial"`
	StopReason       string                `json:"stop_reason,omitempty"`
	AssetsScanned    int                   `json:"assets_scanned"`
	TotalGroups      int                   `json:"total_groups"`
	ReclaimableBytes int64                 `json:"reclaimable_bytes"`
	Offset           int                   `json:"offset"`
	Groups           []report.DuplicateSet `json:"groups"`
}

func printDuplicatesJSON(summary *report.DuplicateReport, offset, limit int) error {
	sets := summary.Sets
	if offset > len(sets) {
		offset = len(sets)
	}
	sets = sets[offset:]
	if limit > 0 && len(sets) > limit {
		sets = sets[:limit]
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(duplicatesPage{
		Method:           summary.Method,
		Partial:          summary.Partial,
		StopReason:       summary.StopReason,
		AssetsScanned:    summary.AssetsScanned,
		TotalGroups:      len(summary.Sets),
		ReclaimableBytes: summary.ReclaimableBytes,
		Offset:           offset,
		Groups:           sets,
	})
}

func printDuplicates(summary *report.DuplicateReport, limit int) {
	width := util.GetTerminalWidth() - 20
	if width < 40 {
		width = 40
	}

	sets := summary.Sets
	if limit > 0 && len(sets) > limit {
		sets = sets[:limit]
	}
	for _, set := range sets {
		fmt.Printf("%s  (%s reclaimable)\n", set.Key, util.FormatBytes(set.Reclaimable()))
		fmt.Printf("  keep  #%-8d %s\n", set.Original.AssetID, shortenPath(set.Original.Path, width))
		for _, c := range set.Copies {
			fmt.Printf("  copy  #%-8d %s\n", c.AssetID, shortenPath(c.Path, width))
		}
	}
	if len(sets) < len(summary.Sets) {
		fmt.Printf("... %d more groups\n", len(summary.Sets)-len(sets))
	}

	util.InfoLog("")
	util.SuccessLog("=== Duplicate Summary ===")
	util.InfoLog("Assets scanned: %d (excluded: %d, unreadable: %d)",
		summary.AssetsScanned, summary.Excluded, summary.Unreadable)
	util.InfoLog("Duplicate groups: %d", len(summary.Sets))
	util.InfoLog("Reclaimable: %s", util.FormatBytes(summary.ReclaimableBytes))
	if len(summary.Sets) > 0 {
		util.InfoLog("")
		util.InfoLog("Next step: mlc quarantine --from-groups")
	}
}

// shortenPath keeps the end of a path, which carries the filename
func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
