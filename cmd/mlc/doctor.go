package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/franz/media-janitor/internal/config"
	"github.com/franz/media-janitor/internal/detect"
	"github.com/franz/media-janitor/internal/report"
	"github.com/franz/media-janitor/internal/safedelete"
	"github.com/franz/media-janitor/internal/store"
	"github.com/franz/media-janitor/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure mlc can operate correctly.

This command checks:
- SQLite version, database integrity and schema version
- Library readability and trash writability
- Network filesystems and whether trash moves are cheap renames
- Available memory against the detection headroom
- Disk space
- Ledger consistency (a reconcile dry run)`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	util.InfoLog("=== MLC Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{
		checkSQLite(),
		checkDatabase(cfg.DB),
	}

	if cfg.Library != "" {
		results = append(results, checkLibraryDirectory(cfg.Library))
		results = append(results, checkNetwork(cfg.Library, "library"))
		results = append(results, checkDiskSpace(cfg.Library, "library"))
	}
	results = append(results, checkTrashDirectory(cfg.Trash.Dir))
	results = append(results, checkNetwork(cfg.Trash.Dir, "trash"))
	if cfg.Library != "" {
		results = append(results, checkTrashPlacement(cfg.Library, cfg.Trash.Dir))
	}
	results = append(results, checkMemory(detect.SystemMemory{}, uint64(cfg.Detect.MemoryHeadroom)))
	results = append(results, checkLedger(cfg))

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running mlc.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready for mlc operations.")
	}

	return nil
}

// checkSQLite verifies the embedded SQLite reports a version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	ctx := context.Background()
	version, _ := db.SchemaVersion()
	assets, _ := db.CountAssets(ctx)
	msg := fmt.Sprintf("%s (%s, schema v%d, %d assets", dbPath, util.FormatBytes(info.Size()), version, assets)
	if stats, err := db.LedgerStats(ctx); err == nil {
		msg += fmt.Sprintf(", %d in trash", stats.Live)
	}

	return checkResult{
		name:    "Database",
		message: msg + ")",
	}
}

// checkLibraryDirectory verifies the library is readable
func checkLibraryDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Library directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Library directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Library directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	return checkResult{
		name:    "Library directory",
		message: fmt.Sprintf("%s (%d entries)", path, len(entries)),
	}
}

// checkTrashDirectory verifies the trash is writable, creating it if needed
func checkTrashDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Trash directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Trash directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Trash directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Trash directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".mlc_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Trash directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Trash directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkNetwork reports network mounts, which get longer retries
func checkNetwork(path, label string) checkResult {
	name := fmt.Sprintf("Filesystem (%s)", label)
	info, err := util.DetectNetworkFilesystem(path)
	if err != nil {
		return checkResult{name: name, warning: true, message: fmt.Sprintf("cannot detect: %v", err)}
	}
	if info.IsNetwork {
		return checkResult{name: name, warning: true,
			message: fmt.Sprintf("network mount (%s at %s), NAS retry policy applies", info.Protocol, info.MountPath)}
	}
	return checkResult{name: name, message: "local"}
}

// checkTrashPlacement warns when quarantine has to copy instead of rename
func checkTrashPlacement(library, trash string) checkResult {
	same, err := util.IsSameFilesystem(library, trash)
	if err != nil {
		return checkResult{name: "Trash placement", warning: true, message: err.Error()}
	}
	if !same {
		return checkResult{name: "Trash placement", warning: true,
			message: "library and trash are on different filesystems; quarantine will copy and verify each file"}
	}
	return checkResult{name: "Trash placement", message: "same filesystem as library (moves are renames)"}
}

// checkMemory compares available memory with the detection headroom
func checkMemory(probe detect.MemoryProbe, headroom uint64) checkResult {
	avail, err := probe.Available()
	if err != nil {
		return checkResult{name: "Memory", warning: true, message: fmt.Sprintf("cannot read available memory: %v", err)}
	}
	msg := fmt.Sprintf("%s available, headroom %s", util.FormatBytes(int64(avail)), config.ByteSize(headroom))
	if headroom > 0 && avail < 2*headroom {
		return checkResult{name: "Memory", warning: true, message: msg + " (duplicate scans may stop early)"}
	}
	return checkResult{name: "Memory", message: msg}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	availGB := float64(availBytes) / (1024 * 1024 * 1024)
	usedPercent := 0.0
	if totalBytes > 0 {
		usedPercent = float64(usedBytes) / float64(totalBytes) * 100
	}

	// Warn if less than 10GB available or >90% used
	warning := false
	warningMsg := ""
	if availGB < 10 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 90 {
		warning = true
		warningMsg = " (>90% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%.1f GB available%s", availGB, warningMsg),
	}
}

// checkLedger runs a reconcile dry run
func checkLedger(cfg *config.Config) checkResult {
	if _, err := os.Stat(cfg.DB); err != nil {
		return checkResult{name: "Ledger", message: "no database yet"}
	}

	db, err := store.Open(cfg.DB)
	if err != nil {
		return checkResult{name: "Ledger", error: true, message: err.Error()}
	}
	defer db.Close()

	lc, err := newLifecycle(cfg, db, report.NullLogger())
	if err != nil {
		return checkResult{name: "Ledger", error: true, message: err.Error()}
	}
	res, err := lc.Reconcile(context.Background(), safedelete.ReconcileOptions{DryRun: true})
	if err != nil {
		return checkResult{name: "Ledger", error: true, message: err.Error()}
	}

	switch {
	case len(res.Corrupted) > 0:
		return checkResult{name: "Ledger", error: true,
			message: fmt.Sprintf("%d entries have lost their trash file (see 'mlc trash reconcile')", len(res.Corrupted))}
	case len(res.Repairs) > 0:
		return checkResult{name: "Ledger", warning: true,
			message: fmt.Sprintf("%d entries need repair (run 'mlc trash reconcile')", len(res.Repairs))}
	}
	return checkResult{name: "Ledger", message: "consistent"}
}
