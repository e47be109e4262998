package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franz/media-janitor/internal/asset"
	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/util"
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine [asset-id...]",
	Short: "Move assets into the trash",
	Long: `Move files into the trash and remove them from the catalog.

Quarantined files stay recoverable with 'mlc restore' until their retention
window expires. Pass asset ids, or --from-groups to quarantine every copy the
duplicate detector finds (the oldest file of each group is kept). Pinned
assets are never touched.`,
	RunE: runQuarantine,
}

var restoreCmd = &cobra.Command{
	Use:   "restore <deletion-id...>",
	Short: "Return quarantined files to their original location",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRestore,
}

var purgeCmd = &cobra.Command{
	Use:   "purge <deletion-id...>",
	Short: "Permanently delete quarantined files",
	Long: `Permanently delete quarantined files from the trash. This cannot be undone.
Purging an entry that is already purged does nothing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPurge,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge every quarantined file whose retention window has expired",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(quarantineCmd, restoreCmd, purgeCmd, sweepCmd)

	quarantineCmd.Flags().Bool("from-groups", false, "quarantine the copies of every duplicate group")
	quarantineCmd.Flags().Bool("dry-run", false, "list what would be quarantined")
	purgeCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: invalid id %q", util.ErrInvalidConfig, arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// confirm asks a yes/no question on the terminal
func confirm(question string) bool {
	if !util.IsTerminal(os.Stdin.Fd()) {
		return false
	}
	fmt.Printf("%s [y/N] ", question)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runQuarantine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fromGroups, _ := cmd.Flags().GetBool("from-groups")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if fromGroups == (len(args) > 0) {
		return fmt.Errorf("%w: pass asset ids or --from-groups", util.ErrInvalidConfig)
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

	var ids []asset.ID
	if fromGroups {
		opts, err := detectOptions(cfg)
		if err != nil {
			return err
		}
		rep, err := findDuplicates(ctx, cfg, db, logger, opts)
		if err != nil {
			return fmt.Errorf("duplicate detection failed: %w", err)
		}
		if rep.Partial {
			util.WarnLog("Detection stopped early (%v); only groups found so far are used", rep.StopReason)
		}
		for _, g := range rep.DuplicateGroups() {
			ids = append(ids, g.CopyIDs...)
		}
		util.InfoLog("Copies to quarantine: %d (%s)", len(ids), util.FormatBytes(rep.PotentialSavings().Bytes))
	} else {
		raw, err := parseIDs(args)
		if err != nil {
			return err
		}
		for _, id := range raw {
			ids = append(ids, asset.ID(id))
		}
	}

	if dryRun {
		for _, id := range ids {
			if path, ok, _ := db.Path(ctx, id); ok {
				fmt.Printf("would quarantine #%d %s\n", id, path)
			}
		}
		return nil
	}

	lc, err := newLifecycle(cfg, db, logger)
	if err != nil {
		return err
	}

	res, err := lc.Quarantine(ctx, ids)
	if res != nil {
		var bytes int64
		for _, p := range res.Prepared {
			bytes += p.SizeBytes
			fmt.Printf("quarantined #%d -> deletion %d (expires %s)\n",
				p.AssetID, p.DeletionID, p.ExpiresAt.Local().Format("2006-01-02"))
		}
		for _, id := range res.Excluded {
			util.InfoLog("Skipped pinned asset #%d", id)
		}
		for _, e := range res.Errors {
			util.ErrorLog("%v", e)
		}
		util.SuccessLog("Quarantined %d assets (%s) into %s", len(res.Prepared), util.FormatBytes(bytes), lc.TrashDir())
		if len(res.Errors) > 0 && err == nil {
			err = fmt.Errorf("%d of %d assets could not be quarantined", len(res.Errors), len(ids))
		}
	}
	return err
}

func runRestore(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	return withLifecycle(func(ctx context.Context, lc *safedelete.Lifecycle) error {
		failed := 0
		for _, id := range ids {
			res, err := lc.Restore(ctx, id)
			if err != nil {
				util.ErrorLog("Restore of deletion %d failed: %v", id, err)
				failed++
				if errors.Is(err, util.ErrStorageUnavailable) {
					return err
				}
				continue
			}
			fmt.Printf("restored deletion %d -> #%d %s\n", id, res.NewAssetID, res.Path)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d restores failed", failed, len(ids))
		}
		return nil
	})
}

func runPurge(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && !confirm(fmt.Sprintf("Permanently delete %d quarantined file(s)?", len(ids))) {
		return fmt.Errorf("purge not confirmed (use --yes)")
	}

	return withLifecycle(func(ctx context.Context, lc *safedelete.Lifecycle) error {
		failed := 0
		for _, id := range ids {
			res, err := lc.Purge(ctx, id)
			switch {
			case err != nil:
				util.ErrorLog("Purge of deletion %d failed: %v", id, err)
				failed++
				if errors.Is(err, util.ErrStorageUnavailable) {
					return err
				}
			case res.AlreadyPurged:
				fmt.Printf("deletion %d was already purged\n", id)
			default:
				fmt.Printf("purged deletion %d\n", id)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d purges failed", failed, len(ids))
		}
		return nil
	})
}

func runSweep(cmd *cobra.Command, args []string) error {
	return withLifecycle(func(ctx context.Context, lc *safedelete.Lifecycle) error {
		res, err := lc.AutoPurgeExpired(ctx)
		if err != nil {
			return err
		}
		for _, f := range res.Failed {
			util.ErrorLog("%v", f)
		}
		util.SuccessLog("Purged %d expired entries", res.PurgedCount)
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d expired entries could not be purged and stay quarantined", len(res.Failed))
		}
		return nil
	})
}
