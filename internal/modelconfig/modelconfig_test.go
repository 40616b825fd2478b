package modelconfig

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/waterboy/internal/config"
	"github.com/kingrea/waterboy/internal/provider"
	"github.com/kingrea/waterboy/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCommand struct {
	model  *ModelConfig
	factor int
}

func (c *recordingCommand) Run(_ context.Context, args ...string) (any, error) {
	return map[string]any{"args": args, "factor": c.factor, "run": c.model.RunName()}, nil
}

type countingRegistry struct {
	*provider.Registry
	calls int
}

func newCountingRegistry(t *testing.T) *countingRegistry {
	t.Helper()
	reg := &countingRegistry{Registry: provider.NewRegistry()}
	reg.MustRegister("recorder", func(a *provider.Args) (any, error) {
		reg.calls++
		instance, err := a.Instance(ModelConfigInstance)
		if err != nil {
			return nil, err
		}
		factor, err := a.IntOr("factor", 1)
		if err != nil {
			return nil, err
		}
		return &recordingCommand{model: instance.(*ModelConfig), factor: factor}, nil
	})
	reg.MustRegister("failing", func(*provider.Args) (any, error) {
		return nil, errFactory
	})
	return reg
}

var errFactory = errors.New("factory exploded")

func newProject(t *testing.T, contents map[string]any) *config.ProjectConfig {
	t.Helper()
	project, err := config.New(t.TempDir(), contents)
	require.NoError(t, err)
	return project
}

func writeRunFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o644))
	return path
}

const resnetYAML = `
name: resnet
batch_size: 128
seed: 7
commands:
  train:
    name: recorder
    factor: 3
  eval:
    name: recorder
`

func TestLoadBuildsRunIdentity(t *testing.T) {
	project := newProject(t, nil)
	m, err := Load(writeRunFile(t, resnetYAML), 3, project)
	require.NoError(t, err)
	assert.Equal(t, "resnet/3", m.RunName())
	assert.Equal(t, "resnet", m.Name())
	assert.Equal(t, 3, m.RunNumber())
	assert.Equal(t, DefaultDevice, m.Device())
	assert.Equal(t, []string{"eval", "train"}, m.CommandNames())
}

func TestLoadRequiresName(t *testing.T) {
	project := newProject(t, nil)
	_, err := Load(writeRunFile(t, "commands: {}\n"), 0, project)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Model configuration must have a 'name' key", verr.Error())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLoadRejectsInvalidInput(t *testing.T) {
	project := newProject(t, nil)
	cases := map[string]struct {
		body string
		run  int
	}{
		"non-string name":  {body: "name: [a, b]", run: 0},
		"empty name":       {body: "name: ''", run: 0},
		"negative run":     {body: "name: resnet", run: -1},
		"commands as list": {body: "name: resnet\ncommands: [train]", run: 0},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := Load(writeRunFile(t, tc.body), tc.run, project)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewRequiresProject(t *testing.T) {
	contents := map[string]any{"name": "resnet"}
	_, err := New("inline", contents, 0, nil)
	require.Error(t, err)

	var missing *config.ProjectConfig
	_, err = New("inline", contents, 0, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project configuration is required")
}

func TestLoadPropagatesParseErrors(t *testing.T) {
	project := newProject(t, nil)
	var perr *source.ParseError

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), 0, project)
	require.ErrorAs(t, err, &perr)

	_, err = Load(writeRunFile(t, "name: [broken"), 0, project)
	require.ErrorAs(t, err, &perr)
}

func TestEnvironmentLayering(t *testing.T) {
	project := newProject(t, map[string]any{
		"seed":       1,
		"batch_size": 32,
		"run_number": 99,
		"dataset":    "cifar10",
	})
	m, err := Load(writeRunFile(t, resnetYAML+"run_number: 55\n"), 4, project)
	require.NoError(t, err)
	env := m.Environment()
	assert.Equal(t, 7, env["seed"], "run file overrides project")
	assert.Equal(t, 128, env["batch_size"])
	assert.Equal(t, "cifar10", env["dataset"], "project keys pass through")
	assert.Equal(t, 4, env["run_number"], "run number overrides both layers")
	assert.Equal(t, "resnet", env["name"])
	_, hasCommands := env["commands"]
	assert.False(t, hasCommands)
	_, hasCommands = m.Contents()["commands"]
	assert.False(t, hasCommands)
}

func TestEnvironmentDoesNotDeepMerge(t *testing.T) {
	project := newProject(t, map[string]any{
		"optimizer": map[string]any{"lr": 0.1, "momentum": 0.9},
	})
	m, err := Load(writeRunFile(t, "name: resnet\noptimizer:\n  lr: 0.01\n"), 0, project)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lr": 0.01}, m.Environment()["optimizer"])
}

func TestEnvironmentIsImmutableFromOutside(t *testing.T) {
	contents := map[string]any{"name": "resnet", "seed": 1}
	m, err := New("inline", contents, 0, newProject(t, nil))
	require.NoError(t, err)
	contents["seed"] = 2
	env := m.Environment()
	env["seed"] = 3
	assert.Equal(t, 1, m.Environment()["seed"])
}

func TestInstancesAreIndependent(t *testing.T) {
	project := newProject(t, map[string]any{"seed": 1})
	a, err := Load(writeRunFile(t, "name: alpha\nseed: 10"), 1, project)
	require.NoError(t, err)
	b, err := Load(writeRunFile(t, "name: beta\nlr: 0.3"), 2, project)
	require.NoError(t, err)

	assert.Equal(t, 10, a.Environment()["seed"])
	assert.Equal(t, 1, b.Environment()["seed"])
	_, leaked := a.Environment()["lr"]
	assert.False(t, leaked)
	assert.Equal(t, "alpha/1", a.RunName())
	assert.Equal(t, "beta/2", b.RunName())
	assert.Equal(t, 1, project.Contents()["seed"])
}

func TestCheckpointPaths(t *testing.T) {
	project := newProject(t, nil)
	m, err := Load(writeRunFile(t, resnetYAML), 3, project)
	require.NoError(t, err)

	root := project.ProjectOutputDir()
	assert.Equal(t, filepath.Join(root, "checkpoints", "resnet", "3"), m.CheckpointDir())
	assert.True(t, strings.HasSuffix(m.CheckpointFilename(5), filepath.Join("checkpoints", "resnet", "3", "checkpoint_00000005.npy")))
	assert.Equal(t, filepath.Join(m.CheckpointDir(), "checkpoint_00000007.npy"), m.CheckpointFilename(7))
	assert.Equal(t, filepath.Join(m.CheckpointDir(), "checkpoint_best_00000012.npy"), m.CheckpointBestFilename(12))
	assert.Equal(t, filepath.Join(m.CheckpointDir(), "checkpoint_opt_12345678.npy"), m.CheckpointOptFilename(12345678))
	assert.Equal(t, m.CheckpointFilename(5), m.CheckpointFilename(5))

	assert.Equal(t, project.ProjectDataDir("mnist", "train"), m.DataDir("mnist", "train"))
	assert.Equal(t, project.ProjectOutputDir("plots"), m.OutputDir("plots"))
}

func TestRunCommandDispatches(t *testing.T) {
	reg := newCountingRegistry(t)
	m, err := Load(writeRunFile(t, resnetYAML), 3, newProject(t, nil), WithRegistry(reg.Registry))
	require.NoError(t, err)

	out, err := m.RunCommand(context.Background(), "train", []string{"--fast", "1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"args": []string{"--fast", "1"}, "factor": 3, "run": "resnet/3"}, out)

	out, err = m.RunCommand(context.Background(), "eval", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.(map[string]any)["factor"])
	assert.Equal(t, 2, reg.calls)
}

func TestRunCommandNotFoundSkipsProvider(t *testing.T) {
	reg := newCountingRegistry(t)
	m, err := Load(writeRunFile(t, resnetYAML), 3, newProject(t, nil), WithRegistry(reg.Registry))
	require.NoError(t, err)

	_, err = m.RunCommand(context.Background(), "deploy", nil)
	var nf *CommandNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "deploy", nf.Command)
	assert.Equal(t, []string{"eval", "train"}, nf.Available)
	assert.ErrorIs(t, err, ErrCommandNotFound)
	assert.Zero(t, reg.calls)
}

func TestMissingCommandsTableFailsOnDispatch(t *testing.T) {
	m, err := Load(writeRunFile(t, "name: resnet"), 0, newProject(t, nil))
	require.NoError(t, err)
	assert.Empty(t, m.CommandNames())
	_, err = m.RunCommand(context.Background(), "train", nil)
	assert.ErrorIs(t, err, ErrCommandNotFound)
}

func TestRunCommandPropagatesProviderErrors(t *testing.T) {
	reg := newCountingRegistry(t)
	body := "name: resnet\ncommands:\n  boom:\n    name: failing\n  ghost:\n    name: unregistered\n"
	m, err := Load(writeRunFile(t, body), 0, newProject(t, nil), WithRegistry(reg.Registry))
	require.NoError(t, err)

	_, err = m.RunCommand(context.Background(), "boom", nil)
	assert.Same(t, errFactory, err)

	_, err = m.RunCommand(context.Background(), "ghost", nil)
	var unknown *provider.UnknownTypeError
	assert.ErrorAs(t, err, &unknown)
}

func TestProjectConfigIsInjected(t *testing.T) {
	project := newProject(t, nil)
	reg := provider.NewRegistry()
	var injected any
	reg.MustRegister("inspect", func(a *provider.Args) (any, error) {
		var err error
		injected, err = a.Instance(ProjectConfigInstance)
		if err != nil {
			return nil, err
		}
		model, err := a.Instance(ModelConfigInstance)
		if err != nil {
			return nil, err
		}
		return &recordingCommand{model: model.(*ModelConfig)}, nil
	})
	m, err := New("inline", map[string]any{
		"name":     "resnet",
		"commands": map[string]any{"inspect": map[string]any{"name": "inspect"}},
	}, 0, project, WithRegistry(reg))
	require.NoError(t, err)
	_, ok := m.Command("inspect")
	require.True(t, ok)
	_, err = m.RunCommand(context.Background(), "inspect", nil)
	require.NoError(t, err)
	assert.Same(t, project, injected)
}

func TestBanners(t *testing.T) {
	var buf bytes.Buffer
	fixed := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	m, err := Load(writeRunFile(t, resnetYAML), 3, newProject(t, nil),
		WithDevice("cpu"), WithOutput(&buf), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	m.Banner("train")
	out := buf.String()
	assert.Contains(t, out, strings.Repeat("=", 80))
	assert.Contains(t, out, "Running model resnet, run 3 -- command train -- device cpu")
	assert.Contains(t, out, "2024/03/09 - 14:05:06")

	buf.Reset()
	m.QuitBanner()
	assert.Contains(t, buf.String(), "Done.")
}
