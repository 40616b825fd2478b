package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kingrea/waterboy/internal/modelconfig"
	"github.com/kingrea/waterboy/internal/provider"
)

var checkpointPattern = regexp.MustCompile(`^checkpoint(_best|_opt)?_(\d{8})\.npy$`)

// CheckpointFile describes one checkpoint on disk.
type CheckpointFile struct {
	Path     string
	Kind     string
	Epoch    int
	Size     int64
	Modified time.Time
}

// Checkpoints lists the checkpoint files stored for a run.
type Checkpoints struct {
	model *modelconfig.ModelConfig
	out   io.Writer
}

// NewCheckpoints returns a Checkpoints command over model.
func NewCheckpoints(model *modelconfig.ModelConfig, out io.Writer) *Checkpoints {
	return &Checkpoints{model: model, out: outputOrStdout(out)}
}

func newCheckpointsFromArgs(a *provider.Args) (any, error) {
	model, err := modelFromArgs(a)
	if err != nil {
		return nil, err
	}
	return NewCheckpoints(model, model.Output()), nil
}

// Run prints the checkpoint table and returns the files, ordered by epoch.
func (c *Checkpoints) Run(_ context.Context, _ ...string) (any, error) {
	files, err := ScanCheckpoints(c.model.CheckpointDir())
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		fmt.Fprintf(c.out, "No checkpoints for %s\n", c.model.RunName())
		return files, nil
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{
			strconv.Itoa(f.Epoch),
			f.Kind,
			filepath.Base(f.Path),
			humanize.Bytes(uint64(f.Size)),
			humanize.Time(f.Modified),
		})
	}
	fmt.Fprintf(c.out, "Checkpoints for %s\n", c.model.RunName())
	fmt.Fprintln(c.out, RenderTable([]Column{
		{Header: "Epoch", Align: AlignRight},
		{Header: "Kind"},
		{Header: "File"},
		{Header: "Size", Align: AlignRight},
		{Header: "Modified"},
	}, rows))
	return files, nil
}

// ScanCheckpoints reads dir for files following the checkpoint naming
// scheme. A missing directory has no checkpoints.
func ScanCheckpoints(dir string) ([]CheckpointFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("commands: read %s: %w", dir, err)
	}
	var files []CheckpointFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := checkpointPattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("commands: stat %s: %w", entry.Name(), err)
		}
		epoch, _ := strconv.Atoi(match[2])
		kind := "checkpoint"
		switch match[1] {
		case "_best":
			kind = "best"
		case "_opt":
			kind = "optimizer"
		}
		files = append(files, CheckpointFile{
			Path:     filepath.Join(dir, entry.Name()),
			Kind:     kind,
			Epoch:    epoch,
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Epoch != files[j].Epoch {
			return files[i].Epoch < files[j].Epoch
		}
		return files[i].Kind < files[j].Kind
	})
	return files, nil
}
