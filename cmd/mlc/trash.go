package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/util"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Inspect and repair the quarantine ledger",
}

var trashQueueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List quarantined files that can still be restored",
	RunE:  runTrashQueue,
}

var trashHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent ledger entries, purged ones included",
	RunE:  runTrashHistory,
}

var trashReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Repair ledger entries left behind by an interrupted run",
	Long: `Compare the ledger with the trash directory and repair what an interrupted
quarantine, restore or purge left behind. Entries whose trash file is missing
without explanation are reported and left for manual review.`,
	RunE: runTrashReconcile,
}

func init() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.AddCommand(trashQueueCmd, trashHistoryCmd, trashReconcileCmd)

	trashHistoryCmd.Flags().Int("limit", 50, "number of entries to show (0 = all)")
	trashReconcileCmd.Flags().Bool("dry-run", false, "report repairs without making them")
	trashReconcileCmd.Flags().Duration("stale-after", safedelete.DefaultStaleAfter,
		"age after which an unfinished transition is considered abandoned")
}

// withLifecycle opens the database and runs fn against a lifecycle
func withLifecycle(fn func(ctx context.Context, lc *safedelete.Lifecycle) error) error {
	cfg, err := loadConfig()
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

	lc, err := newLifecycle(cfg, db, logger)
	if err != nil {
		return err
	}
	return fn(ctx, lc)
}

func printEntries(entries []*safedelete.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DELETION\tASSET\tSTATE\tSIZE\tQUARANTINED\tEXPIRES\tPATH")
	for _, e := range entries {
		expires := humanize.Time(e.ExpiresAt)
		if e.PurgedAt != nil {
			expires = "purged " + e.PurgedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			e.DeletionID, e.AssetID, e.State, util.FormatBytes(e.SizeBytes),
			e.EnqueuedAt.Local().Format("2006-01-02 15:04"), expires, e.OriginalPath)
	}
	w.Flush()
}

func runTrashQueue(cmd *cobra.Command, args []string) error {
	return withLifecycle(func(ctx context.Context, lc *safedelete.Lifecycle) error {
		entries, err := lc.ListQueue(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			util.InfoLog("Trash is empty")
			return nil
		}

		printEntries(entries)
		var total int64
		due := 0
		for _, e := range entries {
			total += e.SizeBytes
			if !e.ExpiresAt.After(time.Now()) {
				due++
			}
		}
		util.InfoLog("%d entries, %s in trash", len(entries), util.FormatBytes(total))
		if due > 0 {
			util.InfoLog("%d entries are past retention; run 'mlc sweep' to purge them", due)
		}
		return nil
	})
}

func runTrashHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return withLifecycle(func(ctx context.Context, lc *safedelete.Lifecycle) error {
		entries, err := lc.ListHistory(ctx, limit)
		if err != nil {
			return err
		}
		printEntries(entries)
		return nil
	})
}

func runTrashReconcile(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	staleAfter, _ := cmd.Flags().GetDuration("stale-after")

	return withLifecycle(func(ctx context.Context, lc *safedelete.Lifecycle) error {
		res, err := lc.Reconcile(ctx, safedelete.ReconcileOptions{DryRun: dryRun, StaleAfter: staleAfter})
		if err != nil {
			return err
		}

		verb := "repaired"
		if dryRun {
			verb = "would repair"
		}
		failed := 0
		for _, r := range res.Repairs {
			if r.Err != nil {
				failed++
				util.ErrorLog("deletion %d: %s failed: %v", r.DeletionID, r.Action, r.Err)
				continue
			}
			fmt.Printf("%s deletion %d: %s\n", verb, r.DeletionID, r.Action)
		}
		for _, c := range res.Corrupted {
			util.WarnLog("needs manual review: %v", c)
		}

		if len(res.Repairs) == 0 && len(res.Corrupted) == 0 {
			util.SuccessLog("Ledger and trash are consistent")
		}
		if failed > 0 {
			return fmt.Errorf("%d repairs failed", failed)
		}
		return nil
	})
}
