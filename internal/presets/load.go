package presets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kingrea/waterboy/internal/source"
)

// DefinitionFile pairs a parsed preset with the file it came from.
type DefinitionFile struct {
	Definition Definition
	Path       string
}

var presetKeys = map[string]bool{"id": true, "base": true, "description": true, "params": true}

// ParseDefinitionYAML decodes and validates a preset written as YAML.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	contents, err := source.ParseYAML(data)
	if err != nil {
		return Definition{}, fmt.Errorf("preset: %w", err)
	}
	return definitionFromContents(contents)
}

// LoadDefinitionFile reads a YAML or TOML preset. Files are parsed the same
// way as model files, so !env references work in YAML params.
func LoadDefinitionFile(path string) (DefinitionFile, error) {
	contents, err := source.ParseFile(path)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("preset: %w", err)
	}
	def, err := definitionFromContents(contents)
	if err != nil {
		return DefinitionFile{}, fmt.Errorf("%w (%s)", err, path)
	}
	return DefinitionFile{Definition: def, Path: filepath.Clean(path)}, nil
}

// LoadDefinitionDir loads every preset file directly inside dir, ordered by
// file name. An empty or missing directory means no presets.
func LoadDefinitionDir(dir string) ([]DefinitionFile, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("preset: read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && isPresetFile(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	var defs []DefinitionFile
	for _, name := range names {
		def, err := LoadDefinitionFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func definitionFromContents(contents map[string]any) (Definition, error) {
	for key := range contents {
		if !presetKeys[key] {
			return Definition{}, fmt.Errorf("preset: unknown key %q", key)
		}
	}
	var def Definition
	var err error
	if def.ID, err = textField(contents, "id"); err != nil {
		return Definition{}, err
	}
	if def.Base, err = textField(contents, "base"); err != nil {
		return Definition{}, err
	}
	if def.Description, err = textField(contents, "description"); err != nil {
		return Definition{}, err
	}
	switch params := contents["params"].(type) {
	case nil:
	case map[string]any:
		def.Params = params
	default:
		return Definition{}, fmt.Errorf("preset %s: params must be a mapping, got %T", def.ID, params)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def.Normalized(), nil
}

func textField(contents map[string]any, key string) (string, error) {
	switch v := contents[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("preset: %s must be a string, got %T", key, v)
	}
}

func isPresetFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".toml":
		return true
	}
	return false
}
