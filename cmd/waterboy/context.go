package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kingrea/waterboy/internal/commands"
	"github.com/kingrea/waterboy/internal/config"
	"github.com/kingrea/waterboy/internal/logging"
	"github.com/kingrea/waterboy/internal/modelconfig"
	"github.com/kingrea/waterboy/internal/presets"
	"github.com/kingrea/waterboy/internal/provider"
)

type commandContext struct {
	projectFlag  *string
	logLevelFlag *string
}

func newCommandContext(projectFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		projectFlag:  projectFlag,
		logLevelFlag: logLevelFlag,
	}
}

// registry returns the built-in commands plus the project's presets.
func (c *commandContext) registry(project *config.ProjectConfig) (*provider.Registry, error) {
	reg := provider.NewRegistry()
	commands.RegisterBuiltins(reg)
	defs, err := presets.LoadDefinitionDir(project.PresetsDir())
	if err != nil {
		return nil, err
	}
	if err := presets.Register(reg, defs); err != nil {
		return nil, err
	}
	return reg, nil
}

// loadedRun bundles everything a subcommand needs for one model file.
type loadedRun struct {
	project *config.ProjectConfig
	model   *modelconfig.ModelConfig
	logger  *zap.Logger

	closeLog func() error
}

// close flushes the logger and releases the log file.
func (r *loadedRun) close() {
	if r.closeLog != nil {
		_ = r.closeLog()
	}
}

func (c *commandContext) projectPath(modelPath string) (string, error) {
	if c.projectFlag != nil {
		if flag := strings.TrimSpace(*c.projectFlag); flag != "" {
			info, err := os.Stat(flag)
			if err != nil {
				return "", fmt.Errorf("project %s: %w", flag, err)
			}
			if info.IsDir() {
				return filepath.Join(flag, config.ProjectFileName), nil
			}
			return flag, nil
		}
	}
	return config.Discover(filepath.Dir(modelPath))
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return *c.logLevelFlag
}

// load resolves the project, opens the log file under the project's output
// directory and builds the model configuration.
func (c *commandContext) load(cmd *cobra.Command, modelPath string, runNumber int, device string) (*loadedRun, error) {
	projectPath, err := c.projectPath(modelPath)
	if err != nil {
		return nil, err
	}
	project, err := config.Load(projectPath)
	if err != nil {
		return nil, err
	}
	reg, err := c.registry(project)
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(c.logLevel())
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := logging.New(project.ProjectOutputDir("logs"), level)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("invocation", uuid.NewString()))
	model, err := modelconfig.Load(modelPath, runNumber, project,
		modelconfig.WithDevice(device),
		modelconfig.WithRegistry(reg),
		modelconfig.WithLogger(logger),
		modelconfig.WithOutput(cmd.OutOrStdout()),
	)
	if err != nil {
		logger.Error("load model configuration", zap.String("path", modelPath), zap.Error(err))
		_ = closeLog()
		return nil, err
	}
	logger.Debug("loaded model configuration",
		zap.String("path", modelPath),
		zap.String("project", project.ConfigPath()),
		zap.String("run", model.RunName()),
		zap.String("device", model.Device()))
	return &loadedRun{project: project, model: model, logger: logger, closeLog: closeLog}, nil
}

func commandType(descriptor any) string {
	data, ok := descriptor.(map[string]any)
	if !ok {
		return ""
	}
	name, _ := data[provider.TypeKey].(string)
	return name
}
