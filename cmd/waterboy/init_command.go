package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/waterboy/internal/config"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init [directory]",
		Short: "Create a default project configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			absolute, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", dir, err)
			}
			if err := os.MkdirAll(absolute, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", absolute, err)
			}
			path, err := config.Init(absolute)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Project configuration at %s\n", path)
			return nil
		},
	}
}
