package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/warden/internal/config"
)

const exampleDefinition = `# Task definitions. Every *.yaml file in this directory is loaded; Go files
# exposing TaskDefinitions() are evaluated too.
defaults:
  priority: 1
  allow_hard_stop: false

tasks:
  - name: idle
    description: Fallback while nothing else is due
    default: true
    trigger:
      kind: manual
    logic:
      id: idle
    stop:
      - timer: 5m
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create .warden/ with a default config and an example task",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir()
			if err != nil {
				return err
			}
			if err := config.InitDir(dir); err != nil {
				return err
			}
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			defsDir := cfg.DefinitionsDir()
			if err := os.MkdirAll(defsDir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", defsDir, err)
			}
			example := filepath.Join(defsDir, "idle.yaml")
			if _, err := os.Stat(example); os.IsNotExist(err) {
				if err := os.WriteFile(example, []byte(exampleDefinition), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", example, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", cfg.WardenProjectDir)
			return nil
		},
	}
}
