package main

import (
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"

	"github.com/ShayCichocki/swarm/internal/api"
	"github.com/ShayCichocki/swarm/internal/classify"
	"github.com/ShayCichocki/swarm/internal/config"
	"github.com/ShayCichocki/swarm/internal/decompose"
	"github.com/ShayCichocki/swarm/internal/engine"
	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/internal/sandbox"
	"github.com/ShayCichocki/swarm/internal/state"
)

// app holds the components wired from the loaded config.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	store     *knowledge.FileStore
	db        *state.DB
	engine    *engine.Engine
	sandboxes *sandbox.Manager
	agents    *orchestrator.AgentRegistry
	orch      *orchestrator.Orchestrator
}

// appOptions tune newApp for a command.
type appOptions struct {
	// owner marks the process that dispatches tasks. Only an owner journals
	// transitions and fails tasks left in_progress by a previous run.
	owner       bool
	chooser     orchestrator.Chooser
	eventBuffer int
}

// newApp wires the knowledge store, journal, engine, sandboxes and
// orchestrator from cfg.
func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	logger, err := logging.New(cfg.LogPath())
	if err != nil {
		warn("logging disabled: %v", err)
		logger = logging.Nop()
	}

	a := &app{cfg: cfg, logger: logger}

	a.store, err = knowledge.Open(cfg.KnowledgeRoot(), knowledge.WithLogger(logger))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	if cfg.State.Enabled {
		a.db, err = state.OpenAndMigrate(cfg.StatePath())
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open state: %w", err)
		}
	}

	classifier, err := newClassifier(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if a.db != nil && opts.owner {
		engineOpts = append(engineOpts, engine.WithJournal(a.db))
	}
	a.engine = engine.New(decompose.New(classifier), engineOpts...)

	if a.db != nil {
		tasks, err := a.db.ListTasks()
		if err != nil {
			a.close()
			return nil, fmt.Errorf("load tasks: %w", err)
		}
		load := a.engine.Load
		if opts.owner {
			load = a.engine.Restore
		}
		if err := load(tasks); err != nil {
			a.close()
			return nil, fmt.Errorf("restore tasks: %w", err)
		}
	}

	a.sandboxes = sandbox.NewManager(sandbox.Config{
		Root:          cfg.SandboxRoot(),
		TimeoutBuffer: cfg.Sandbox.TimeoutBuffer,
		Shell:         cfg.Sandbox.Shell,
		Retain:        cfg.Sandbox.Retain,
	}, sandbox.WithLogger(logger))

	a.agents = orchestrator.NewAgentRegistry(cfg.Orchestrator.DefaultAgent, cfg.AgentProfiles(), logger)
	if err := a.agents.LoadFrom(a.store); err != nil {
		logger.Log("load stored agent profiles: %v", err)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithPollInterval(cfg.Orchestrator.PollInterval),
		orchestrator.WithMaxConcurrent(cfg.Orchestrator.MaxConcurrent),
		orchestrator.WithLogger(logger),
		orchestrator.WithAutoMode(cfg.Orchestrator.AutoMode),
	}
	if a.db != nil {
		orchOpts = append(orchOpts, orchestrator.WithRunStore(a.db))
	}
	if opts.chooser != nil {
		orchOpts = append(orchOpts, orchestrator.WithChooser(opts.chooser))
	}
	if opts.eventBuffer > 0 {
		orchOpts = append(orchOpts, orchestrator.WithEvents(opts.eventBuffer))
	}
	a.orch = orchestrator.New(a.engine, a.sandboxes, a.store, a.agents, orchOpts...)

	return a, nil
}

// newClassifier returns nil for keyword mode, which the decomposer treats
// as the keyword classifier.
func newClassifier(cfg *config.Config, logger *logging.Logger) (classify.Classifier, error) {
	if cfg.Classifier.Mode != "llm" {
		return nil, nil
	}

	clientCfg := api.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	if !cfg.Anthropic.UseBedrock {
		key, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("llm classifier: %w", err)
		}
		clientCfg.APIKey = key
	}

	client, err := api.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("llm classifier: %w", err)
	}
	return classify.NewLLMClassifier(api.NewRunner(client, api.WithLogger(logger)), logger), nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Log("close state: %v", err)
		}
	}
	a.logger.Close()
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// warn prints a yellow warning to stderr.
func warn(format string, args ...any) {
	c := color.New(color.FgYellow)
	fmt.Fprintf(os.Stderr, "%s %s\n", c.Sprint("!"), fmt.Sprintf(format, args...))
}

// formatDuration renders d the way the status views show it.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
