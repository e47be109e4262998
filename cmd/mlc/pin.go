package main

import (
	"context"
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/util"
)

var pinCmd = &cobra.Command{
	Use:   "pin [asset-id...]",
	Short: "Protect assets from duplicate detection and deletion",
	Long: `Pin assets so they never appear in duplicate groups and can never be
quarantined. With --pattern, every asset whose path matches the GLOB pattern
is protected, including files cataloged later. Without arguments, lists the
current pins and patterns.`,
	RunE: runPin,
}

var unpinCmd = &cobra.Command{
	Use:   "unpin [asset-id...]",
	Short: "Remove pins or pin patterns",
	RunE:  runUnpin,
}

func init() {
	rootCmd.AddCommand(pinCmd, unpinCmd)

	pinCmd.Flags().String("pattern", "", "GLOB pattern matched against asset paths")
	pinCmd.Flags().String("reason", "", "note stored with the pin")
	unpinCmd.Flags().String("pattern", "", "pattern to remove")
}

func runPin(cmd *cobra.Command, args []string) error {
	pattern, _ := cmd.Flags().GetString("pattern")
	reason, _ := cmd.Flags().GetString("reason")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if pattern != "" {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("%w: bad pattern %q: %w", util.ErrInvalidConfig, pattern, err)
		}
		if err := db.AddPattern(ctx, pattern); err != nil {
			return err
		}
		util.SuccessLog("Pinned pattern %s", pattern)
	}

	if len(args) == 0 {
		if pattern != "" {
			return nil
		}
		pinned, err := db.Pinned(ctx)
		if err != nil {
			return err
		}
		patterns, err := db.Patterns(ctx)
		if err != nil {
			return err
		}
		for _, id := range pinned {
			fmt.Printf("asset   #%d\n", id)
		}
		for _, p := range patterns {
			fmt.Printf("pattern %s\n", p)
		}
		return nil
	}

	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	assetIDs := make([]asset.ID, len(ids))
	for i, id := range ids {
		assetIDs[i] = asset.ID(id)
	}
	if err := db.Pin(ctx, reason, assetIDs...); err != nil {
		return err
	}
	util.SuccessLog("Pinned %d assets", len(assetIDs))
	return nil
}

func runUnpin(cmd *cobra.Command, args []string) error {
	pattern, _ := cmd.Flags().GetString("pattern")
	if pattern == "" && len(args) == 0 {
		return fmt.Errorf("%w: pass asset ids or --pattern", util.ErrInvalidConfig)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if pattern != "" {
		removed, err := db.RemovePattern(ctx, pattern)
		if err != nil {
			return err
		}
		if !removed {
			util.WarnLog("Pattern %s was not pinned", pattern)
		}
	}

	if len(args) > 0 {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		assetIDs := make([]asset.ID, len(ids))
		for i, id := range ids {
			assetIDs[i] = asset.ID(id)
		}
		n, err := db.Unpin(ctx, assetIDs...)
		if err != nil {
			return err
		}
		util.SuccessLog("Unpinned %d assets", n)
	}
	return nil
}
