package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var projectFlag string
	var logLevelFlag string

	ctx := newCommandContext(&projectFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "waterboy",
		Short:         "Run commands of declaratively configured models",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project file or directory (defaults to searching upward from the model file)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "Console log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCommandsCommand(ctx))
	rootCmd.AddCommand(newPathsCommand(ctx))
	rootCmd.AddCommand(newInitCommand())

	return rootCmd
}
