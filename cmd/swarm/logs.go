package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/sandbox"
	"github.com/ShayCichocki/swarm/internal/state"
)

var (
	logsTask string

	cleanupOlderThan time.Duration
	cleanupDryRun    bool
	cleanupRuns      bool
)

var logsCmd = &cobra.Command{
	Use:   "logs [sandbox-id]",
	Short: "List retained sandboxes or print one execution log",
	Long: `Without arguments, lists the sandbox directories still on disk.
With a sandbox id, prints its execution log. With --task, lists the
recorded runs of a task.

Sandboxes are removed after each run unless sandbox.retain is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove old sandbox directories and run records",
	Long: `Remove sandbox directories not modified within --older-than.
Running sandboxes are never removed.

Examples:
  swarm cleanup                    # Sandboxes older than 24h
  swarm cleanup --older-than 1h    # Sandboxes older than an hour
  swarm cleanup --dry-run          # Show what would be removed
  swarm cleanup --runs             # Also purge old run records`,
	RunE: runCleanup,
}

func init() {
	logsCmd.Flags().StringVar(&logsTask, "task", "", "List the runs of this task id")

	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 24*time.Hour, "Minimum age of removed sandboxes")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be removed without removing")
	cleanupCmd.Flags().BoolVar(&cleanupRuns, "runs", false, "Also purge run records older than --older-than")
}

func runLogs(cmd *cobra.Command, args []string) error {
	root := cfg.SandboxRoot()

	if logsTask != "" {
		return printRuns(logsTask)
	}

	if len(args) == 1 {
		logs, err := sandbox.ReadLogs(root, args[0])
		if err != nil {
			return err
		}
		if logs == "" {
			fmt.Println("(empty log)")
			return nil
		}
		fmt.Print(logs)
		return nil
	}

	entries, err := sandbox.OnDisk(root)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No sandboxes under %s.\n", root)
		return nil
	}
	for _, e := range entries {
		report := " "
		if e.HasReport {
			report = "✓"
		}
		title := ""
		if e.Context != nil {
			title = e.Context.Task.Title
		}
		fmt.Printf("%s %-36s %s  %s\n", report, e.ID, e.ModTime.Local().Format("01-02 15:04"), title)
	}
	return nil
}

func printRuns(taskID string) error {
	if !cfg.State.Enabled {
		return fmt.Errorf("run records need state.enabled")
	}
	db, err := state.OpenAndMigrate(cfg.StatePath())
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(taskID)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Printf("No runs for %s.\n", taskID)
		return nil
	}
	for _, r := range runs {
		symbol, attr := "✓", color.FgGreen
		if !r.Success {
			symbol, attr = "✗", color.FgRed
		}
		line := fmt.Sprintf("%s %s [%s] exit %d %s", r.StartedAt.Local().Format(time.DateTime),
			r.SandboxID, r.AgentID, r.ExitCode, formatDuration(r.Duration()))
		if r.Error != "" {
			line += ": " + r.Error
		}
		printStatus(symbol, line, attr)
		if r.LogsPath != "" {
			fmt.Printf("  logs: %s\n", r.LogsPath)
		}
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	root := cfg.SandboxRoot()

	if cleanupDryRun {
		entries, err := sandbox.OnDisk(root)
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-cleanupOlderThan)
		n := 0
		for _, e := range entries {
			if e.ModTime.Before(cutoff) {
				fmt.Printf("would remove %s\n", e.ID)
				n++
			}
		}
		fmt.Printf("%d of %d sandboxes would be removed\n", n, len(entries))
		return nil
	}

	logger, err := logging.New(cfg.LogPath())
	if err != nil {
		logger = logging.Nop()
	}
	defer logger.Close()

	mgr := sandbox.NewManager(sandbox.Config{Root: root, Shell: cfg.Sandbox.Shell}, sandbox.WithLogger(logger))
	removed, err := mgr.Prune(cleanupOlderThan)
	if err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("removed %d sandboxes", removed), color.FgGreen)

	if cleanupRuns {
		if !cfg.State.Enabled {
			warn("state is disabled; no run records to purge")
			return nil
		}
		db, err := state.OpenAndMigrate(cfg.StatePath())
		if err != nil {
			return err
		}
		defer db.Close()
		purged, err := db.PurgeOldRuns(cleanupOlderThan)
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("purged %d run records", purged), color.FgGreen)
	}
	return nil
}
