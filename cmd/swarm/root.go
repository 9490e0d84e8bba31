package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/swarm/internal/config"
)

var (
	configPath string
	envFile    string

	// cfg is loaded before every subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Note-driven task scheduler for agent CLIs",
	Long: `Swarm turns notes from a flat-file knowledge store into chains of
research, plan, execute and review tasks, and runs each ready task through
an external agent CLI inside its own sandbox directory.

Typical flow:
  swarm add-note "Investigate slow startup #perf" --decompose
  swarm orchestrate --all
  swarm notes --status completed

Run "swarm serve" to keep dispatching in the background, or
"swarm dashboard" for an interactive view.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadEnv(envFile); err != nil {
			return err
		}
		var err error
		if configPath != "" {
			cfg, err = config.LoadFromPath(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// loadEnv reads a dotenv file. The default .env is optional.
func loadEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config plus .swarm.yaml overrides)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Dotenv file to load (default: ./.env when present)")

	rootCmd.AddCommand(addNoteCmd)
	rootCmd.AddCommand(notesCmd)
	rootCmd.AddCommand(decomposeCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}
