package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/waterboy/internal/commands"
)

func newCommandsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "commands <model-config>",
		Short: "List the commands a model configuration defines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.load(cmd, args[0], 0, "")
			if err != nil {
				return err
			}
			defer run.close()

			names := run.model.CommandNames()
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s defines no commands\n", run.model.Name())
				return nil
			}
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				descriptor, _ := run.model.Command(name)
				typeName := commandType(descriptor)
				if typeName == "" {
					typeName = "-"
				}
				rows = append(rows, []string{name, typeName})
			}
			fmt.Fprintln(cmd.OutOrStdout(), commands.RenderTable(commands.Columns("Command", "Type"), rows))
			return nil
		},
	}
}

func newPathsCommand(ctx *commandContext) *cobra.Command {
	var runNumber int
	cmd := &cobra.Command{
		Use:   "paths <model-config>",
		Short: "Show where a run reads data and writes outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.load(cmd, args[0], runNumber, "")
			if err != nil {
				return err
			}
			defer run.close()

			rows := [][]string{
				{"Run", run.model.RunName()},
				{"Project", run.project.ConfigPath()},
				{"Data", run.model.DataDir()},
				{"Output", run.model.OutputDir()},
				{"Checkpoints", run.model.CheckpointDir()},
			}
			fmt.Fprintln(cmd.OutOrStdout(), commands.RenderTable(commands.Columns("What", "Path"), rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&runNumber, "run-number", "r", 0, "Run number used to namespace checkpoints and outputs")
	return cmd
}
