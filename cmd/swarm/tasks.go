package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarm/internal/config"
	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/pkg/models"
)

var (
	tasksNote    string
	tasksStatus  string
	tasksBlocked bool

	statusRuns int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List registered tasks",
	RunE:  runTasks,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show task counts by status",
	RunE:  runQueue,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show success rate, durations and store totals",
	RunE:  runStats,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue, running tasks, recent runs and store totals",
	RunE:  runStatus,
}

func init() {
	tasksCmd.Flags().StringVarP(&tasksNote, "note", "n", "", "Only tasks of this note")
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "Only tasks with this status")
	tasksCmd.Flags().BoolVar(&tasksBlocked, "blocked", false, "Only tasks stuck behind a failed dependency")

	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "Number of recent sandbox runs to show")
}

// readOnlyApp opens the workspace without taking ownership of its tasks.
func readOnlyApp() (*app, error) {
	a, err := newApp(cfg, appOptions{})
	if err != nil {
		return nil, err
	}
	if a.db == nil {
		warn("state is disabled; tasks only live inside the process that created them")
	}
	return a, nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	a, err := readOnlyApp()
	if err != nil {
		return err
	}
	defer a.close()

	if tasksBlocked {
		blocked := a.engine.Blocked()
		if len(blocked) == 0 {
			fmt.Println("No blocked tasks.")
			return nil
		}
		for _, b := range blocked {
			fmt.Printf("%-9s %-8s %-50s after failed %s\n", engine.ShortID(b.Task.ID), b.Task.Phase, b.Task.Title, engine.ShortID(b.FailedID))
		}
		return nil
	}

	tasks := a.engine.All()
	if tasksNote != "" {
		tasks = a.engine.TasksForNote(tasksNote)
	}
	status := models.TaskStatus(tasksStatus)
	if tasksStatus != "" && !status.Valid() {
		return fmt.Errorf("invalid status %q", tasksStatus)
	}

	shown := 0
	for _, t := range tasks {
		if tasksStatus != "" && t.Status != status {
			continue
		}
		printTask(t)
		shown++
	}
	if shown == 0 {
		fmt.Println("No tasks.")
	}
	return nil
}

func printTask(t *models.Task) {
	symbol, attr := statusSymbol(t.Status)
	c := color.New(attr)
	line := fmt.Sprintf("%-24s %-9s %-8s %-6s %s", t.ID, t.Status, t.Phase, t.Priority, t.Title)
	if t.AssignedAgent != "" {
		line += " [" + t.AssignedAgent + "]"
	}
	if t.Status == models.TaskStatusFailed && t.Output != nil && t.Output.Error != "" {
		line += ": " + t.Output.Error
	}
	fmt.Printf("%s %s\n", c.Sprint(symbol), line)
}

func statusSymbol(s models.TaskStatus) (string, color.Attribute) {
	switch s {
	case models.TaskStatusCompleted:
		return "✓", color.FgGreen
	case models.TaskStatusFailed:
		return "✗", color.FgRed
	case models.TaskStatusInProgress:
		return "▸", color.FgCyan
	default:
		return "·", color.FgWhite
	}
}

func runQueue(cmd *cobra.Command, args []string) error {
	a, err := readOnlyApp()
	if err != nil {
		return err
	}
	defer a.close()

	printQueue(a.engine.QueueStatus())
	return nil
}

func printQueue(q engine.QueueStatus) {
	fmt.Printf("Pending:     %d (%d ready, %d blocked)\n", q.Pending, q.Ready, q.Blocked)
	fmt.Printf("In progress: %d\n", q.InProgress)
	fmt.Printf("Completed:   %d\n", q.Completed)
	fmt.Printf("Failed:      %d\n", q.Failed)
	fmt.Printf("Total:       %d\n", q.Total)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := readOnlyApp()
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println("Queue")
	printQueue(a.engine.QueueStatus())

	stats := a.engine.Stats()
	if stats.Finished > 0 {
		fmt.Printf("Success:     %.0f%% over %d finished, avg %s\n",
			stats.SuccessRate*100, stats.Finished, formatDuration(stats.AvgDuration))
	}

	active := a.engine.Active()
	fmt.Printf("\nRunning (%d)\n", len(active))
	for _, t := range active {
		elapsed := time.Duration(0)
		if t.StartedAt != nil {
			elapsed = time.Since(*t.StartedAt)
		}
		fmt.Printf("  %-9s %-8s %-40s %s %s\n", engine.ShortID(t.ID), t.Phase, t.Title, t.AssignedAgent, formatDuration(elapsed))
	}

	if a.db != nil && statusRuns > 0 {
		runs, err := a.db.RecentRuns(statusRuns)
		if err != nil {
			return err
		}
		fmt.Printf("\nRecent runs (%d)\n", len(runs))
		for _, r := range runs {
			symbol, attr := "✓", color.FgGreen
			if !r.Success {
				symbol, attr = "✗", color.FgRed
			}
			line := fmt.Sprintf("%s %-9s %-8s %-10s %s", r.StartedAt.Local().Format("01-02 15:04"),
				engine.ShortID(r.TaskID), r.AgentID, r.Status, formatDuration(r.Duration()))
			if r.Error != "" {
				line += " " + r.Error
			}
			fmt.Printf("  %s %s\n", color.New(attr).Sprint(symbol), line)
		}
	}

	kb, err := a.store.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("\nKnowledge store %s\n", a.store.Root())
	fmt.Printf("  %d notes (%d pending, %d completed), %d projects, %d stored agents\n",
		kb.Notes, kb.Pending, kb.Completed, kb.Projects, kb.Agents)

	if cfg.Classifier.Mode == "llm" {
		fmt.Printf("  classifier: llm (key: %s)\n", config.GetAPIKeySource(cfg))
	} else {
		fmt.Println("  classifier: keyword")
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := readOnlyApp()
	if err != nil {
		return err
	}
	defer a.close()

	s := a.engine.Stats()
	fmt.Printf("Finished:     %d (%d completed, %d failed)\n", s.Finished, s.Completed, s.Failed)
	fmt.Printf("Success rate: %.1f%%\n", s.SuccessRate*100)
	fmt.Printf("Avg duration: %s\n", formatDuration(s.AvgDuration))

	byPhase := map[models.Phase][2]int{}
	for _, t := range a.engine.All() {
		c := byPhase[t.Phase]
		switch t.Status {
		case models.TaskStatusCompleted:
			c[0]++
		case models.TaskStatusFailed:
			c[1]++
		}
		byPhase[t.Phase] = c
	}
	for _, p := range []models.Phase{models.PhaseResearch, models.PhasePlan, models.PhaseExecute, models.PhaseReview} {
		c := byPhase[p]
		fmt.Printf("  %-8s ✓%d ✗%d\n", p, c[0], c[1])
	}

	kb, err := a.store.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("Notes:        %d (%d pending, %d completed)\n", kb.Notes, kb.Pending, kb.Completed)
	fmt.Printf("Projects:     %d\n", kb.Projects)
	fmt.Printf("Agents:       %d configured, %d stored\n", len(a.agents.All()), kb.Agents)
	return nil
}
