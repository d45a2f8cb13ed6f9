package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/flwopt/internal/store"
)

var (
	reportsDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage saved run reports",
	Long: `Manage the run reports and traces written by "run --out-dir" and by the
server, including listing and cleaning old runs.`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved run reports",
	Long:  `Display all run reports with run ID, timestamp, objective, generations, best fitness and size on disk.`,
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old run reports",
	Long: `Delete old run reports based on retention policy.
You can keep only the newest N runs or delete runs older than N days.`,
	RunE: runCleanReports,
}

func init() {
	// Add reports command to root
	rootCmd.AddCommand(reportsCmd)

	// Add subcommands
	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(cleanReportsCmd)

	// Global flags for reports command
	reportsCmd.PersistentFlags().StringVar(&reportsDataDir, "data-dir", "./data", "Base directory for run reports")

	// Clean command flags
	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

// shortID truncates a run ID for table display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func outWriter(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func runListReports(cmd *cobra.Command, args []string) error {
	out := outWriter(cmd)

	// Create store
	reportStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	// List all reports
	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	// Display reports in a table
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tOBJECTIVE\tSTATUS\tGENERATIONS\tBEST\tSIZE")
	fmt.Fprintln(w, "------\t---------\t---------\t------\t-----------\t----\t----")

	for _, info := range infos {
		// Get run directory size
		runDir := filepath.Join(reportsDataDir, "runs", info.ID)
		size, err := getDirSize(runDir)
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.6g\t%s\n",
			shortID(info.ID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%s/%dD", info.Objective, info.Dimension),
			info.Status,
			info.Generations,
			info.BestFitness,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

func runShowReport(cmd *cobra.Command, args []string) error {
	out := outWriter(cmd)

	reportStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	report, err := reportStore.LoadReport(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Run: %s\n", report.ID)
	fmt.Fprintf(out, "Status: %s\n", report.Status)
	fmt.Fprintf(out, "Objective: %s (%dD, seed %d)\n", report.Config.Objective, report.Config.Optimizer.Dimension, report.Config.Seed)
	fmt.Fprintf(out, "Generations: %d (%d evaluations)\n", report.Generations, report.Evaluations)
	fmt.Fprintf(out, "Best: %.6g at %v\n", report.BestFitness, report.Best)
	fmt.Fprintf(out, "Elapsed: %s\n", report.Elapsed.Round(time.Millisecond))
	if report.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", report.Error)
	}

	// The trace is optional
	reader, err := store.NewTraceReader(reportsDataDir, report.ID)
	if err != nil {
		return nil
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		slog.Warn("Failed to read trace", "run_id", report.ID, "error", err)
		return nil
	}
	if len(entries) > 0 {
		first, last := entries[0], entries[len(entries)-1]
		fmt.Fprintf(out, "Trace: %d generations, best %.6g -> %.6g\n", len(entries), first.Best, last.Best)
	}
	return nil
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	out := outWriter(cmd)

	// Validate flags
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	// Create store
	reportStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	// List all reports
	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports to clean.")
		return nil
	}

	// Determine which reports to delete
	toDelete := selectReportsForDeletion(infos, keepLast, olderThanDays, time.Now())

	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	// Show what will be deleted
	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %d generations, %s)\n",
			shortID(info.ID),
			info.Objective,
			info.Generations,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	// Delete reports
	deleted := 0
	failed := 0
	for _, info := range toDelete {
		err := reportStore.DeleteReport(info.ID)
		if err != nil {
			slog.Error("Failed to delete report", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted report", "run_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

// selectReportsForDeletion applies the retention policy: runs older than
// olderThanDays and runs beyond the newest keepLast are selected. Each run is
// returned once, oldest first.
func selectReportsForDeletion(infos []store.RunReportInfo, keepLast, olderThanDays int, now time.Time) []store.RunReportInfo {
	sorted := make([]store.RunReportInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, k int) bool {
		return sorted[i].Timestamp.Before(sorted[k].Timestamp)
	})

	var cutoff time.Time
	if olderThanDays > 0 {
		cutoff = now.AddDate(0, 0, -olderThanDays)
	}
	excess := 0
	if keepLast > 0 && len(sorted) > keepLast {
		excess = len(sorted) - keepLast
	}

	var toDelete []store.RunReportInfo
	for i, info := range sorted {
		tooOld := olderThanDays > 0 && info.Timestamp.Before(cutoff)
		if tooOld || i < excess {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
