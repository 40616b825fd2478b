package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kingrea/waterboy/internal/config"
	"github.com/kingrea/waterboy/internal/modelconfig"
	"github.com/kingrea/waterboy/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newModel(t *testing.T, contents map[string]any) *modelconfig.ModelConfig {
	t.Helper()
	project, err := config.New(t.TempDir(), map[string]any{"seed": 1, "dataset": "mnist"})
	require.NoError(t, err)
	reg := provider.NewRegistry()
	RegisterBuiltins(reg)
	m, err := modelconfig.New("inline", contents, 3, project, modelconfig.WithRegistry(reg))
	require.NoError(t, err)
	return m
}

func TestSummaryPrintsEnvironment(t *testing.T) {
	m := newModel(t, map[string]any{"name": "resnet", "seed": 7, "token": provider.EnvVar{Name: "TOKEN"}})
	var buf bytes.Buffer
	out, err := NewSummary(m, nil, &buf).Run(context.Background())
	require.NoError(t, err)

	shown := out.(map[string]any)
	assert.Equal(t, 7, shown["seed"])
	assert.Equal(t, 3, shown["run_number"])
	assert.Equal(t, "mnist", shown["dataset"])
	text := buf.String()
	assert.Contains(t, text, "Environment for resnet/3")
	assert.Contains(t, text, "!env TOKEN")
	assert.Contains(t, text, "run_number")
}

func TestSummaryFiltersKeys(t *testing.T) {
	m := newModel(t, map[string]any{"name": "resnet"})
	var buf bytes.Buffer
	out, err := NewSummary(m, []string{"seed", "missing"}, &buf).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seed": 1}, out)
	assert.NotContains(t, buf.String(), "dataset")
}

func TestSummaryDispatchedThroughRegistry(t *testing.T) {
	m := newModel(t, map[string]any{
		"name": "resnet",
		"commands": map[string]any{
			"summary": map[string]any{"name": SummaryType, "keys": []any{"name"}},
		},
	})
	out, err := m.RunCommand(context.Background(), "summary", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "resnet"}, out)
}

func TestCheckpointsListsFiles(t *testing.T) {
	m := newModel(t, map[string]any{"name": "resnet"})
	dir := m.CheckpointDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, path := range []string{
		m.CheckpointFilename(2),
		m.CheckpointOptFilename(2),
		m.CheckpointBestFilename(1),
		m.CheckpointFilename(1),
		filepath.Join(dir, "notes.txt"),
	} {
		require.NoError(t, os.WriteFile(path, []byte("weights"), 0o644))
	}

	var buf bytes.Buffer
	out, err := NewCheckpoints(m, &buf).Run(context.Background())
	require.NoError(t, err)
	files := out.([]CheckpointFile)
	require.Len(t, files, 4)
	assert.Equal(t, 1, files[0].Epoch)
	assert.Equal(t, "best", files[0].Kind)
	assert.Equal(t, "checkpoint", files[1].Kind)
	assert.Equal(t, 2, files[3].Epoch)
	assert.Equal(t, "optimizer", files[3].Kind)
	assert.Equal(t, int64(7), files[0].Size)
	assert.Contains(t, buf.String(), "checkpoint_00000002.npy")
	assert.Contains(t, buf.String(), "7 B")
}

func TestCheckpointsMissingDirectory(t *testing.T) {
	m := newModel(t, map[string]any{"name": "resnet"})
	var buf bytes.Buffer
	out, err := NewCheckpoints(m, &buf).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, buf.String(), "No checkpoints for resnet/3")
}

func TestSummaryCutsLongValues(t *testing.T) {
	long := strings.Repeat("layer-", 40)
	m := newModel(t, map[string]any{"name": "resnet", "layers": long})
	var buf bytes.Buffer
	_, err := NewSummary(m, []string{"layers"}, &buf).Run(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), long)
	assert.Contains(t, buf.String(), "…")
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := RenderTable([]Column{{Header: "Epoch", Align: AlignRight}, {Header: "Kind"}}, [][]string{{"12"}})
	assert.Contains(t, out, "Epoch")
	assert.Contains(t, out, "12")
	assert.Empty(t, RenderTable(nil, nil))
}

func TestRegisterBuiltins(t *testing.T) {
	reg := provider.NewRegistry()
	RegisterBuiltins(reg)
	assert.Equal(t, []string{CheckpointsType, SummaryType}, reg.Names())
	RegisterBuiltins(nil)
}
