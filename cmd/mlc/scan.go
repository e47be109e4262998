package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/media-janitor/internal/scan"
	"github.com/franz/media-janitor/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Catalog the media files of a library",
	Long: `Walk the library and record every media file in the database.

For each file the scan records its size, MIME type, modification time, pixel
dimensions for raster images and the title tag for audio. Generated
thumbnails (photo-150x150.jpg) are linked to the file they were made from.

Rescanning is safe: records are keyed by path and updated in place.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("concurrency", 8, "number of files probed in parallel")
	scanCmd.Flags().StringSlice("ext", nil, "additional file extensions to catalog")
	viper.BindPFlag("scan.concurrency", scanCmd.Flags().Lookup("concurrency"))
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Library == "" {
		return fmt.Errorf("%w: library directory is required (use --library or set in config)", util.ErrInvalidConfig)
	}
	if _, err := os.Stat(cfg.Library); err != nil {
		return fmt.Errorf("library directory is not accessible: %w", err)
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

	exts, _ := cmd.Flags().GetStringSlice("ext")
	scanner := scan.New(&scan.Config{
		Store:          db,
		AdditionalExts: exts,
		SkipDirs:       []string{cfg.Trash.Dir, cfg.Artifacts},
		Concurrency:    viper.GetInt("scan.concurrency"),
		Logger:         logger,
	})

	util.InfoLog("Library: %s", cfg.Library)
	start := time.Now()

	result, err := scanner.Scan(ctx, cfg.Library)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	total, _ := db.CountAssets(ctx)
	util.InfoLog("")
	util.SuccessLog("=== Scan Summary ===")
	util.InfoLog("Time: %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("Files cataloged: %d", result.FilesCataloged)
	util.InfoLog("Thumbnails linked: %d", result.DerivativesLinked)
	util.InfoLog("Assets in catalog: %d", total)
	if len(result.Errors) > 0 {
		util.WarnLog("Errors: %d (see %s)", len(result.Errors), logger.Path())
	}
	util.InfoLog("")
	util.InfoLog("Next step: mlc duplicates")

	return nil
}
