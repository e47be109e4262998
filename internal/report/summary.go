package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/media-janitor/internal/util"
)

// DuplicateReport summarizes one detection run
type DuplicateReport struct {
	GeneratedAt time.Time
	Duration    time.Duration

	AssetsScanned int
	Excluded      int
	Unreadable    int
	Partial       bool
	StopReason    string

	ReclaimableBytes int64
	Sets             []DuplicateSet

	Method       string
	DatabasePath string
	EventLogPath string
}

// DuplicateSet is one group with its kept original and removable copies
type DuplicateSet struct {
	Key      string          `json:"key"`
	Original DuplicateFile   `json:"original"`
	Copies   []DuplicateFile `json:"copies"`
}

// DuplicateFile is one member of a duplicate set
type DuplicateFile struct {
	AssetID   int64     `json:"asset_id"`
	Path      string    `json:"path"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// Reclaimable returns the bytes freed by removing the set's copies
func (s DuplicateSet) Reclaimable() int64 {
	var total int64
	for _, c := range s.Copies {
		total += c.SizeBytes
	}
	return total
}

// WriteMarkdownReport renders the report to outputPath. At most topN sets are
// listed, largest reclaimable first; topN <= 0 lists all of them.
func WriteMarkdownReport(report *DuplicateReport, outputPath string, topN int) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Media Library Cleaner - Duplicate Report\n\n")
	fmt.Fprintf(&md, "**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))
	if report.DatabasePath != "" {
		fmt.Fprintf(&md, "**Database:** `%s`\n\n", report.DatabasePath)
	}
	if report.EventLogPath != "" {
		fmt.Fprintf(&md, "**Event Log:** `%s`\n\n", report.EventLogPath)
	}
	if report.Partial {
		fmt.Fprintf(&md, "> **Partial result:** the scan stopped early (%s). Groups below are complete but the corpus was not fully covered.\n\n", report.StopReason)
	}

	md.WriteString("---\n\n")
	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	if report.Method != "" {
		fmt.Fprintf(&md, "| Method | %s |\n", report.Method)
	}
	fmt.Fprintf(&md, "| Assets Scanned | %d |\n", report.AssetsScanned)
	fmt.Fprintf(&md, "| Excluded | %d |\n", report.Excluded)
	if report.Unreadable > 0 {
		fmt.Fprintf(&md, "| Unreadable | %d |\n", report.Unreadable)
	}
	fmt.Fprintf(&md, "| Duplicate Groups | %d |\n", len(report.Sets))
	fmt.Fprintf(&md, "| Reclaimable | %s |\n", util.FormatBytes(report.ReclaimableBytes))
	if report.Duration > 0 {
		fmt.Fprintf(&md, "| Scan Time | %s |\n", report.Duration.Round(time.Millisecond))
	}
	md.WriteString("\n")

	sets := append([]DuplicateSet(nil), report.Sets...)
	sort.SliceStable(sets, func(i, j int) bool {
		return sets[i].Reclaimable() > sets[j].Reclaimable()
	})
	if topN > 0 && len(sets) > topN {
		sets = sets[:topN]
	}

	if len(sets) > 0 {
		fmt.Fprintf(&md, "## Duplicate Groups (top %d by reclaimable size)\n\n", len(sets))
		for i, set := range sets {
			fmt.Fprintf(&md, "### %d. `%s`\n\n", i+1, truncatePath(set.Key, 60))
			fmt.Fprintf(&md, "**Keep** #%d `%s` (%s, %s)\n\n",
				set.Original.AssetID, truncatePath(set.Original.Path, 80),
				util.FormatBytes(set.Original.SizeBytes), set.Original.CreatedAt.Format("2006-01-02"))

			md.WriteString("**Copies:**\n\n")
			for _, c := range set.Copies {
				fmt.Fprintf(&md, "- #%d `%s` (%s)\n", c.AssetID, truncatePath(c.Path, 80), util.FormatBytes(c.SizeBytes))
			}
			md.WriteString("\n")
		}
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by mlc - Media Library Cleaner*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncatePath truncates a path to maxLen, keeping start and end
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
