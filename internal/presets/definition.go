// Package presets loads named command presets from YAML or TOML files.
//
// A preset registers a new type name that builds an existing type with a set
// of default parameters, so model files can say `name: train-small` instead
// of repeating the same block of hyperparameters.
package presets

import (
	"fmt"
	"strings"

	"github.com/kingrea/waterboy/internal/provider"
)

// Definition describes a preset file: its new type name, the type it
// builds, and the parameters it supplies as defaults.
type Definition struct {
	ID          string
	Base        string
	Description string
	Params      map[string]any
}

// Normalized returns a trimmed, copy-on-write variant of the definition.
func (def Definition) Normalized() Definition {
	clone := Definition{
		ID:          strings.TrimSpace(def.ID),
		Base:        strings.TrimSpace(def.Base),
		Description: strings.TrimSpace(def.Description),
	}
	if len(def.Params) > 0 {
		clone.Params = make(map[string]any, len(def.Params))
		for key, value := range def.Params {
			trimmed := strings.TrimSpace(key)
			if trimmed == "" {
				continue
			}
			clone.Params[trimmed] = value
		}
	}
	return clone
}

// Validate ensures the definition is well-formed.
func (def Definition) Validate() error {
	normalized := def.Normalized()
	if normalized.ID == "" {
		return fmt.Errorf("preset: id is required")
	}
	if normalized.Base == "" {
		return fmt.Errorf("preset %s: base is required", normalized.ID)
	}
	if normalized.Base == normalized.ID {
		return fmt.Errorf("preset %s: base must differ from id", normalized.ID)
	}
	if _, ok := normalized.Params[provider.TypeKey]; ok {
		return fmt.Errorf("preset %s: params must not set %q", normalized.ID, provider.TypeKey)
	}
	return nil
}

// Factory returns a provider factory building Base with Params as defaults.
func (def Definition) Factory() provider.Factory {
	normalized := def.Normalized()
	return func(a *provider.Args) (any, error) {
		return a.Delegate(normalized.Base, normalized.Params)
	}
}

// Register installs every definition into reg. A preset may build on
// another preset regardless of file order; bases are registered first and
// cycles are rejected.
func Register(reg *provider.Registry, defs []DefinitionFile) error {
	ordered, err := order(defs)
	if err != nil {
		return err
	}
	for _, file := range ordered {
		def := file.Definition.Normalized()
		if _, ok := reg.Lookup(def.Base); !ok {
			return fmt.Errorf("preset %s (%s): base %s is not registered", def.ID, file.Path, def.Base)
		}
		if err := reg.Register(def.ID, def.Factory()); err != nil {
			return fmt.Errorf("preset %s (%s): %w", def.ID, file.Path, err)
		}
	}
	return nil
}

// order sorts defs so every preset follows the preset it is based on.
func order(defs []DefinitionFile) ([]DefinitionFile, error) {
	byID := make(map[string]DefinitionFile, len(defs))
	for _, file := range defs {
		id := file.Definition.Normalized().ID
		if prev, ok := byID[id]; ok {
			return nil, fmt.Errorf("preset %s defined in both %s and %s", id, prev.Path, file.Path)
		}
		byID[id] = file
	}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(defs))
	out := make([]DefinitionFile, 0, len(defs))
	var visit func(id string, chain []string) error
	visit = func(id string, chain []string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("preset cycle: %s", strings.Join(append(chain, id), " -> "))
		}
		state[id] = visiting
		file := byID[id]
		if base := file.Definition.Normalized().Base; base != "" {
			if _, ok := byID[base]; ok {
				if err := visit(base, append(chain, id)); err != nil {
					return err
				}
			}
		}
		state[id] = done
		out = append(out, file)
		return nil
	}
	for _, file := range defs {
		if err := visit(file.Definition.Normalized().ID, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}
