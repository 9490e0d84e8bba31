// Package tui provides the terminal interfaces of swarm.
//
// The dashboard is a live view of the task queue. It shows queue counts,
// running tasks and a log of orchestrator events, and lets the user toggle
// auto mode, orchestrate the next task by hand, or add a note inline.
//
// The agent picker asks the user which agent takes a task when several
// agents match it. It is used as an orchestrator.Chooser:
//
//	chooser := tui.NewPickerChooser(os.Stdin, os.Stderr)
//	orch := orchestrator.New(eng, sandboxes, store, agents, orchestrator.WithChooser(chooser))
//
// Both run as bubbletea programs.
package tui
