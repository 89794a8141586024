// cmd/warden/main.go
//
// Entry point for the warden CLI. `warden run` drives the task orchestrator
// against the world adapter and shows the status board; `validate` checks
// task definitions without running them; `init` creates .warden/.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagProjectDir string
	flagLogLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "Run prioritized, condition-driven tasks against a live world",
		Long: `Warden selects one task at a time from YAML or Go task definitions,
prepares its requirements, runs its logic and stops it when its stop
conditions hold, escalating to a hard stop only when the task allows it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&flagProjectDir, "dir", "", "Project directory (defaults to the working directory)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log_level from .warden/config.yaml")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(initCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func projectDir() (string, error) {
	if flagProjectDir != "" {
		return flagProjectDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}
