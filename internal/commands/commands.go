// Package commands holds the commands that ship with waterboy. Model runs
// reference them from their commands table by type name.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/kingrea/waterboy/internal/modelconfig"
	"github.com/kingrea/waterboy/internal/provider"
)

const (
	// SummaryType prints the merged environment of a run.
	SummaryType = "waterboy.commands.summary"
	// CheckpointsType lists the checkpoint files of a run.
	CheckpointsType = "waterboy.commands.checkpoints"
)

// RegisterBuiltins installs the built-in command factories into reg.
func RegisterBuiltins(reg *provider.Registry) {
	if reg == nil {
		return
	}
	reg.MustRegister(SummaryType, newSummaryFromArgs)
	reg.MustRegister(CheckpointsType, newCheckpointsFromArgs)
}

// modelFromArgs fetches the injected run configuration.
func modelFromArgs(a *provider.Args) (*modelconfig.ModelConfig, error) {
	instance, err := a.Instance(modelconfig.ModelConfigInstance)
	if err != nil {
		return nil, err
	}
	model, ok := instance.(*modelconfig.ModelConfig)
	if !ok {
		return nil, fmt.Errorf("commands: %s: %s has type %T", a.Type(), modelconfig.ModelConfigInstance, instance)
	}
	return model, nil
}

func outputOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
