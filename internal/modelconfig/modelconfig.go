// Package modelconfig loads the description of a single model run and
// dispatches its commands.
//
// A run file is a YAML (or TOML) mapping with a required name, an optional
// commands table and any number of extra keys. Loading it produces an
// immutable ModelConfig whose environment layers the project contents, the
// run file's keys and the run number, later layers winning.
package modelconfig

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/kingrea/waterboy/internal/provider"
	"github.com/kingrea/waterboy/internal/source"
	"go.uber.org/zap"
)

const (
	// DefaultDevice is used when no device option is given.
	DefaultDevice = "cuda"

	// ModelConfigInstance names the ModelConfig in the provider side channel.
	ModelConfigInstance = "model_config"
	// ProjectConfigInstance names the project in the provider side channel.
	ProjectConfigInstance = "project_config"

	nameKey      = "name"
	commandsKey  = "commands"
	runNumberKey = "run_number"

	missingNameMessage = "Model configuration must have a 'name' key"
)

// Project is the project-level configuration a run is resolved against.
type Project interface {
	Contents() map[string]any
	ProjectOutputDir(segments ...string) string
	ProjectDataDir(segments ...string) string
}

// Option customizes Load and New.
type Option func(*options)

type options struct {
	device   string
	registry *provider.Registry
	logger   *zap.Logger
	out      io.Writer
	now      func() time.Time
}

// WithDevice sets the compute device. Empty values keep DefaultDevice.
func WithDevice(device string) Option {
	return func(o *options) {
		if d := strings.TrimSpace(device); d != "" {
			o.device = d
		}
	}
}

// WithRegistry sets the factories commands are instantiated from.
func WithRegistry(registry *provider.Registry) Option {
	return func(o *options) {
		if registry != nil {
			o.registry = registry
		}
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOutput sets where banners and command output are written.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.out = w
		}
	}
}

// WithClock overrides the banner timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// ModelConfig is a loaded model run. It is immutable after construction.
type ModelConfig struct {
	filename    string
	name        string
	runNumber   int
	device      string
	project     Project
	contents    map[string]any
	commands    map[string]any
	environment map[string]any
	provider    *provider.Provider
	logger      *zap.Logger
	out         io.Writer
	now         func() time.Time
}

// Load parses filename and builds the run configuration from it.
func Load(filename string, runNumber int, project Project, opts ...Option) (*ModelConfig, error) {
	contents, err := source.ParseFile(filename)
	if err != nil {
		return nil, err
	}
	return New(filename, contents, runNumber, project, opts...)
}

// New builds the run configuration from already-parsed contents. The
// contents map is not retained or modified. project must be non-nil.
func New(filename string, contents map[string]any, runNumber int, project Project, opts ...Option) (*ModelConfig, error) {
	if isNil(project) {
		return nil, fmt.Errorf("modelconfig: project configuration is required")
	}
	o := options{
		device:   DefaultDevice,
		registry: provider.NewRegistry(),
		logger:   zap.NewNop(),
		out:      os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	rawName, ok := contents[nameKey]
	if !ok {
		return nil, &ValidationError{Path: filename, Message: missingNameMessage}
	}
	name, ok := rawName.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Path: filename, Message: fmt.Sprintf("Model configuration 'name' must be a non-empty string, got %v", rawName)}
	}
	if runNumber < 0 {
		return nil, &ValidationError{Path: filename, Message: fmt.Sprintf("run number must be non-negative, got %d", runNumber)}
	}

	commands := map[string]any{}
	if raw, ok := contents[commandsKey]; ok && raw != nil {
		table, ok := raw.(map[string]any)
		if !ok {
			return nil, &ValidationError{Path: filename, Message: fmt.Sprintf("Model configuration 'commands' must be a mapping, got %T", raw)}
		}
		for cmd, descriptor := range table {
			commands[cmd] = descriptor
		}
	}
	runContents := make(map[string]any, len(contents))
	for key, value := range contents {
		if key == commandsKey {
			continue
		}
		runContents[key] = value
	}

	m := &ModelConfig{
		filename:  filename,
		name:      name,
		runNumber: runNumber,
		device:    o.device,
		project:   project,
		contents:  runContents,
		commands:  commands,
		logger:    o.logger,
		out:       o.out,
		now:       o.now,
	}
	m.environment = prepareEnvironment(project.Contents(), runContents, runNumber)
	m.provider = provider.New(o.registry, m.environment, map[string]any{
		ModelConfigInstance:   m,
		ProjectConfigInstance: project,
	})
	return m, nil
}

// prepareEnvironment layers project contents, run contents and the run
// number. Later layers replace earlier ones key for key.
func prepareEnvironment(projectContents, runContents map[string]any, runNumber int) map[string]any {
	env := make(map[string]any, len(projectContents)+len(runContents)+1)
	for key, value := range projectContents {
		env[key] = value
	}
	for key, value := range runContents {
		env[key] = value
	}
	env[runNumberKey] = runNumber
	return env
}

// RunCommand instantiates the named command and runs it with args. Errors
// from instantiation and from the command itself are returned unchanged.
func (m *ModelConfig) RunCommand(ctx context.Context, commandName string, args []string) (any, error) {
	descriptor, ok := m.commands[commandName]
	if !ok {
		return nil, &CommandNotFoundError{Command: commandName, Available: m.CommandNames()}
	}
	cmd, err := m.provider.Instantiate(descriptor)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("dispatching command",
		zap.String("run", m.RunName()),
		zap.String("command", commandName),
		zap.Strings("args", args))
	return cmd.Run(ctx, args...)
}

// Filename returns the path the run was loaded from.
func (m *ModelConfig) Filename() string {
	return m.filename
}

// Name returns the model name.
func (m *ModelConfig) Name() string {
	return m.name
}

// RunNumber returns the caller-supplied run number.
func (m *ModelConfig) RunNumber() int {
	return m.runNumber
}

// Device returns the compute device for the run.
func (m *ModelConfig) Device() string {
	return m.device
}

// Project returns the project configuration the run was built against.
func (m *ModelConfig) Project() Project {
	return m.project
}

// Output returns the writer banners and built-in commands print to.
func (m *ModelConfig) Output() io.Writer {
	return m.out
}

// RunName identifies the run as "{name}/{run_number}".
func (m *ModelConfig) RunName() string {
	return fmt.Sprintf("%s/%d", m.name, m.runNumber)
}

// Contents returns a copy of the run file's keys without the commands table.
func (m *ModelConfig) Contents() map[string]any {
	return copyMap(m.contents)
}

// Environment returns a copy of the merged environment.
func (m *ModelConfig) Environment() map[string]any {
	return copyMap(m.environment)
}

// CommandNames returns the configured command names, sorted.
func (m *ModelConfig) CommandNames() []string {
	names := make([]string, 0, len(m.commands))
	for name := range m.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Command returns the raw descriptor for a command.
func (m *ModelConfig) Command(commandName string) (any, bool) {
	descriptor, ok := m.commands[commandName]
	return descriptor, ok
}

// CheckpointDir returns the directory holding this run's checkpoints.
func (m *ModelConfig) CheckpointDir() string {
	return m.project.ProjectOutputDir("checkpoints", m.RunName())
}

// DataDir resolves segments under the project data directory.
func (m *ModelConfig) DataDir(segments ...string) string {
	return m.project.ProjectDataDir(segments...)
}

// OutputDir resolves segments under the project output directory.
func (m *ModelConfig) OutputDir(segments ...string) string {
	return m.project.ProjectOutputDir(segments...)
}

// CheckpointFilename returns the checkpoint path for epoch.
func (m *ModelConfig) CheckpointFilename(epoch int) string {
	return m.checkpointFile("checkpoint", epoch)
}

// CheckpointBestFilename returns the best-so-far checkpoint path for epoch.
func (m *ModelConfig) CheckpointBestFilename(epoch int) string {
	return m.checkpointFile("checkpoint_best", epoch)
}

// CheckpointOptFilename returns the optimizer state path for epoch.
func (m *ModelConfig) CheckpointOptFilename(epoch int) string {
	return m.checkpointFile("checkpoint_opt", epoch)
}

// The eight digit epoch padding is part of the on-disk layout.
func (m *ModelConfig) checkpointFile(prefix string, epoch int) string {
	return m.project.ProjectOutputDir("checkpoints", m.RunName(), fmt.Sprintf("%s_%08d.npy", prefix, epoch))
}

// isNil also catches a nil pointer stored in the interface.
func isNil(project Project) bool {
	if project == nil {
		return true
	}
	v := reflect.ValueOf(project)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
