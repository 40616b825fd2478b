package commands

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/kingrea/waterboy/internal/modelconfig"
	"github.com/kingrea/waterboy/internal/provider"
)

// Summary prints the environment a run's commands are built from.
type Summary struct {
	model *modelconfig.ModelConfig
	keys  []string
	out   io.Writer
}

// NewSummary returns a Summary over model. An empty keys list shows every key.
func NewSummary(model *modelconfig.ModelConfig, keys []string, out io.Writer) *Summary {
	return &Summary{model: model, keys: keys, out: outputOrStdout(out)}
}

func newSummaryFromArgs(a *provider.Args) (any, error) {
	model, err := modelFromArgs(a)
	if err != nil {
		return nil, err
	}
	keys, err := a.StringSlice("keys")
	if err != nil {
		return nil, err
	}
	return NewSummary(model, keys, model.Output()), nil
}

// Run renders the table and returns the rows it printed, keyed by name.
func (s *Summary) Run(_ context.Context, _ ...string) (any, error) {
	env := s.model.Environment()
	keys := append([]string(nil), s.keys...)
	if len(keys) == 0 {
		keys = make([]string, 0, len(env))
		for key := range env {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	shown := make(map[string]any, len(keys))
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		value, ok := env[key]
		if !ok {
			continue
		}
		shown[key] = value
		rows = append(rows, []string{key, formatValue(value)})
	}
	fmt.Fprintf(s.out, "Environment for %s\n", s.model.RunName())
	fmt.Fprintln(s.out, RenderTable([]Column{
		{Header: "Key"},
		{Header: "Value", MaxWidth: summaryValueWidth},
	}, rows))
	return shown, nil
}

// Long lists and nested mappings are cut to keep one line per key.
const summaryValueWidth = 72

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "~"
	case provider.EnvVar:
		return "!env " + v.Name
	case string:
		return v
	}
	return fmt.Sprint(value)
}
