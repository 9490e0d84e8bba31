package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/swarm/internal/knowledge"
	"github.com/ShayCichocki/swarm/internal/logging"
	"github.com/ShayCichocki/swarm/internal/orchestrator"
	"github.com/ShayCichocki/swarm/pkg/models"
)

var (
	agentType         string
	agentCapabilities []string
	agentCommand      string
	agentInstructions string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and store agent profiles",
	Long: `Agent profiles come from the agents section of the config and from
YAML files in the knowledge store's agents directory. Stored profiles win
over configured ones with the same id.`,
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known agents",
	RunE:  runAgentsList,
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one agent profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsShow,
}

var agentsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print every agent profile as YAML",
	RunE:  runAgentsExport,
}

var agentsSaveCmd = &cobra.Command{
	Use:   "save <id>",
	Short: "Store an agent profile in the knowledge store",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentsSave,
}

func init() {
	agentsSaveCmd.Flags().StringVar(&agentType, "type", "", "Agent family")
	agentsSaveCmd.Flags().StringSliceVar(&agentCapabilities, "capabilities", nil, "Phases or task types the agent accepts (default: all)")
	agentsSaveCmd.Flags().StringVar(&agentCommand, "command", "", "Shell command that launches the agent")
	agentsSaveCmd.Flags().StringVar(&agentInstructions, "instructions", "", "Standing instructions prepended to every task")

	agentsCmd.AddCommand(agentsListCmd, agentsShowCmd, agentsExportCmd, agentsSaveCmd)
}

// loadAgents builds the registry without opening the task state.
func loadAgents() (*orchestrator.AgentRegistry, *knowledge.FileStore, error) {
	store, err := knowledge.Open(cfg.KnowledgeRoot())
	if err != nil {
		return nil, nil, err
	}
	reg := orchestrator.NewAgentRegistry(cfg.Orchestrator.DefaultAgent, cfg.AgentProfiles(), logging.Nop())
	if err := reg.LoadFrom(store); err != nil {
		return nil, nil, fmt.Errorf("load stored agents: %w", err)
	}
	return reg, store, nil
}

func runAgentsList(cmd *cobra.Command, args []string) error {
	reg, store, err := loadAgents()
	if err != nil {
		return err
	}
	for _, p := range reg.All() {
		marker := " "
		if p.ID == reg.DefaultID() {
			marker = "*"
		}
		source := "config"
		if store.HasAgentProfile(p.ID) {
			source = "store"
		}
		fmt.Printf("%s %-12s %-7s %-30s %s\n", marker, p.ID, source, strings.Join(p.Capabilities, ","), p.Command)
	}
	return nil
}

func runAgentsShow(cmd *cobra.Command, args []string) error {
	reg, _, err := loadAgents()
	if err != nil {
		return err
	}
	p, ok := reg.Get(args[0])
	if !ok {
		return fmt.Errorf("agent %q not found", args[0])
	}
	return yaml.NewEncoder(os.Stdout).Encode(p)
}

func runAgentsExport(cmd *cobra.Command, args []string) error {
	reg, _, err := loadAgents()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(map[string][]models.AgentProfile{"agents": reg.All()})
}

func runAgentsSave(cmd *cobra.Command, args []string) error {
	reg, store, err := loadAgents()
	if err != nil {
		return err
	}

	p, ok := reg.Get(args[0])
	if !ok {
		p = knowledge.DefaultAgentProfile(args[0])
	}
	if agentType != "" {
		p.Type = agentType
	}
	if len(agentCapabilities) > 0 {
		p.Capabilities = agentCapabilities
	}
	if agentCommand != "" {
		p.Command = agentCommand
	}
	if agentInstructions != "" {
		p.Instructions = agentInstructions
	}

	if err := store.SaveAgentProfile(p); err != nil {
		return err
	}
	printStatus("✓", fmt.Sprintf("saved agent %s (%s)", p.ID, strings.Join(p.Capabilities, ", ")), color.FgGreen)
	return nil
}
