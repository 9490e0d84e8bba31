// Package orchestrator drives the task engine: it picks the next ready
// task, selects a capable agent, runs the task in a sandbox, records the
// outcome and propagates note completion to the knowledge store.
//
// The orchestrator provides:
//   - Agent selection: capability matching with a default-agent fallback
//     and a pluggable chooser for ambiguous matches
//   - Single steps: OrchestrateNext runs exactly one ready task
//   - Auto mode: Run fires OrchestrateNext on a fixed interval while
//     auto mode is on, up to a concurrency limit
//
// Example usage:
//
//	orch := orchestrator.New(eng, sandboxes, store, agents,
//		orchestrator.WithPollInterval(30*time.Second))
//	outcome, err := orch.OrchestrateNext(ctx)
package orchestrator
