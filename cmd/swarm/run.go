package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/internal/server"
	"github.com/ShayCichocki/swarm/internal/tui"
	"github.com/ShayCichocki/swarm/internal/version"
	"github.com/ShayCichocki/swarm/pkg/models"
)

var (
	orchestrateAll         bool
	orchestrateInteractive bool

	serveDecompose bool

	mcpAuto bool
)

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run the next ready task",
	Long: `Run the next ready task in a fresh sandbox and wait for it.

The agent is picked by capability. With --interactive a picker is shown
whenever more than one agent matches. With --all, tasks are run one after
another until nothing is ready.`,
	RunE: runOrchestrate,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Dispatch ready tasks until interrupted",
	Long: `Run the scheduling loop in auto mode until interrupted.

With --decompose (or orchestrator.auto_decompose), pending notes without a
task chain are decomposed at startup and whenever a note file is written.`,
	RunE: runServe,
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive queue dashboard",
	RunE:  runDashboard,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve swarm as MCP tools over stdio",
	RunE:  runMCP,
}

func init() {
	orchestrateCmd.Flags().BoolVarP(&orchestrateAll, "all", "a", false, "Keep running until nothing is ready")
	orchestrateCmd.Flags().BoolVarP(&orchestrateInteractive, "interactive", "i", false, "Pick the agent when several match")

	serveCmd.Flags().BoolVar(&serveDecompose, "decompose", false, "Decompose new notes automatically")

	mcpCmd.Flags().BoolVar(&mcpAuto, "auto", false, "Also dispatch ready tasks in the background")
}

// signalContext is cancelled on interrupt or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func runOrchestrate(cmd *cobra.Command, args []string) error {
	opts := appOptions{owner: true}
	if orchestrateInteractive {
		opts.chooser = tui.NewPickerChooser(os.Stdin, os.Stderr)
	}
	a, err := newApp(cfg, opts)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	for {
		out, err := a.orch.OrchestrateNext(ctx)
		if errors.Is(err, tui.ErrPickCancelled) {
			printStatus("·", "cancelled; task left pending", color.FgYellow)
			return nil
		}
		if err != nil {
			return err
		}
		printOutcome(out)
		if out.Kind == orchestrator.OutcomeIdle || !orchestrateAll || ctx.Err() != nil {
			return nil
		}
	}
}

func printOutcome(out *orchestrator.Outcome) {
	switch out.Kind {
	case orchestrator.OutcomeIdle:
		msg := "nothing ready"
		if len(out.Blocked) > 0 {
			msg = fmt.Sprintf("nothing ready, %d blocked behind failed tasks", len(out.Blocked))
		}
		printStatus("·", msg, color.FgWhite)
		return
	case orchestrator.OutcomeCompleted:
		printStatus("✓", taskLine(out), color.FgGreen)
	case orchestrator.OutcomeFailed:
		line := taskLine(out)
		if out.Result != nil && out.Result.Output.Error != "" {
			line += ": " + out.Result.Output.Error
		}
		printStatus("✗", line, color.FgRed)
		for _, b := range out.Blocked {
			printStatus(" ", "blocked "+engine.ShortID(b.Task.ID)+" "+b.Task.Title, color.FgYellow)
		}
	}
	if out.Result != nil && out.Result.LogsPath != "" {
		fmt.Printf("  logs: %s\n", out.Result.LogsPath)
	}
	switch {
	case out.NoteErr != nil:
		warn("note %s finished but could not be marked completed: %v", out.Task.NoteID, out.NoteErr)
	case out.NoteCompleted:
		printStatus("★", "note "+out.Task.NoteID+" completed", color.FgGreen)
	}
}

func taskLine(out *orchestrator.Outcome) string {
	line := fmt.Sprintf("%s %s [%s]", engine.ShortID(out.Task.ID), out.Task.Title, out.Selection.Agent.ID)
	if out.Selection.Fallback {
		line += " (fallback)"
	}
	if out.Result != nil {
		line += " " + formatDuration(out.Result.Duration)
	}
	return line
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, appOptions{owner: true})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	if serveDecompose || cfg.Orchestrator.AutoDecompose {
		ids, err := noteFeed(ctx, a.store)
		if err != nil {
			return err
		}
		go a.orch.AutoDecompose(ctx, ids)
	}

	a.orch.SetAutoMode(true)
	printStatus("▸", fmt.Sprintf("serving %s (max %d concurrent); ctrl+c to stop",
		cfg.Workspace.Dir, cfg.Orchestrator.MaxConcurrent), color.FgCyan)

	err = a.orch.Run(ctx)
	a.orch.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printQueue(a.engine.QueueStatus())
	return nil
}

// noteFeed yields the ids of pending notes already on disk, then the ids
// of note files written while ctx is live.
func noteFeed(ctx context.Context, store *knowledge.FileStore) (<-chan string, error) {
	pending, err := store.ListNotes(knowledge.NoteFilter{Status: models.NoteStatusPending})
	if err != nil {
		return nil, err
	}
	w, err := store.Watch()
	if err != nil {
		return nil, err
	}

	ids := make(chan string)
	go func() {
		defer close(ids)
		defer w.Close()
		for _, n := range pending {
			select {
			case ids <- n.ID:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case id, ok := <-w.Notes():
				if !ok {
					return
				}
				select {
				case ids <- id:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ids, nil
}

func runDashboard(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, appOptions{owner: true, eventBuffer: 256})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	loopCtx, cancelLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := a.orch.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Log("run loop: %v", err)
		}
	}()

	backend := &tui.OrchestratorBackend{Orch: a.orch, Notes: a.store}
	err = tui.RunDashboard(ctx, backend, a.orch.Events(), version.Get())

	cancelLoop()
	<-loopDone
	a.orch.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, appOptions{owner: true})
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd)
	defer stop()

	if mcpAuto {
		a.orch.SetAutoMode(true)
		go func() {
			if err := a.orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Log("run loop: %v", err)
			}
		}()
	}

	err = server.New(a.orch, a.store, version.Get(), a.logger).Run(ctx)
	stop()
	a.orch.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
