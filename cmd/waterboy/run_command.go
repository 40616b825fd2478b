package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/waterboy/internal/modelconfig"
	"github.com/kingrea/waterboy/internal/tui"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var runNumber int
	var device string

	cmd := &cobra.Command{
		Use:   "run <model-config> [command] [args...]",
		Short: "Run a command defined in a model configuration",
		Long: "Loads the model configuration, merges it with the project configuration and " +
			"runs the named command. Arguments after the command name are passed to it unchanged. " +
			"Without a command name an interactive picker is shown when attached to a terminal.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := ctx.load(cmd, args[0], runNumber, device)
			if err != nil {
				return err
			}
			defer run.close()

			var commandName string
			var commandArgs []string
			if len(args) > 1 {
				commandName = args[1]
				commandArgs = args[2:]
			} else {
				commandName, err = pickCommand(run.model)
				if err != nil {
					return err
				}
			}

			logger := run.logger.With(zap.String("run", run.model.RunName()), zap.String("command", commandName))
			logger.Info("running command", zap.Strings("args", commandArgs))
			run.model.Banner(commandName)
			result, err := run.model.RunCommand(cmd.Context(), commandName, commandArgs)
			if err != nil {
				logger.Error("command failed", zap.Error(err))
				return err
			}
			if result != nil {
				logger.Debug("command finished", zap.Any("result", result))
			}
			run.model.QuitBanner()
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().IntVarP(&runNumber, "run-number", "r", 0, "Run number used to namespace checkpoints and outputs")
	cmd.Flags().StringVarP(&device, "device", "d", modelconfig.DefaultDevice, "Compute device for the run")
	return cmd
}

func pickCommand(model *modelconfig.ModelConfig) (string, error) {
	names := model.CommandNames()
	if len(names) == 0 {
		return "", fmt.Errorf("model %s defines no commands", model.Name())
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) || !isatty.IsTerminal(os.Stdout.Fd()) {
		return "", fmt.Errorf("a command name is required (available: %v)", names)
	}
	options := make([]tui.CommandOption, 0, len(names))
	for _, name := range names {
		descriptor, _ := model.Command(name)
		options = append(options, tui.CommandOption{Name: name, Type: commandType(descriptor)})
	}
	return tui.Pick(fmt.Sprintf("Commands for %s", model.RunName()), options)
}
