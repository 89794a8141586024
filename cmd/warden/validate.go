package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/warden/internal/task"
	"github.com/kingrea/warden/internal/workflow"
	"github.com/kingrea/warden/plugins"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and build every task definition without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(dir)
			if err != nil {
				return err
			}
			logics := task.NewRegistry()
			if err := task.RegisterBuiltins(logics); err != nil {
				return err
			}
			files, err := plugins.LoadAll(cfg.DefinitionsDir())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, file := range files {
				built, err := workflow.Build(file.Definition, logics)
				if err != nil {
					return fmt.Errorf("%s: %w", file.Path, err)
				}
				fmt.Fprintf(out, "ok  %-24s %s (%d requirements)\n", built.Name, file.Path, built.Requirements.Snapshot().Len())
			}
			fmt.Fprintf(out, "%d task definitions valid\n", len(files))
			return nil
		},
	}
}
