// Package source parses run and project configuration files into plain
// mappings.
package source

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kingrea/waterboy/internal/provider"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvTag marks a YAML scalar as a reference to a process environment variable.
const EnvTag = "!env"

// ParseError is returned when a file cannot be read or decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("source: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseFile reads path and decodes it according to its extension. Files
// ending in .toml are TOML; everything else is YAML.
func ParseFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	var contents map[string]any
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		contents, err = ParseTOML(data)
	} else {
		contents, err = ParseYAML(data)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return contents, nil
}

// ParseTOML decodes a TOML document into a mapping.
func ParseTOML(data []byte) (map[string]any, error) {
	contents := map[string]any{}
	if err := toml.Unmarshal(data, &contents); err != nil {
		return nil, err
	}
	return contents, nil
}

// ParseYAML decodes a YAML document into a mapping. Scalars tagged !env
// become provider.EnvVar values. An empty document yields an empty mapping.
func ParseYAML(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return map[string]any{}, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return map[string]any{}, nil
	}
	value, err := convertNode(root)
	if err != nil {
		return nil, err
	}
	contents, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}
	return contents, nil
}

// DecodeNode converts a YAML node into plain Go values the same way
// ParseYAML does, including !env references.
func DecodeNode(node *yaml.Node) (any, error) {
	if node == nil || node.Kind == 0 {
		return nil, nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return nil, nil
		}
		node = node.Content[0]
	}
	return convertNode(node)
}

func convertNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return convertNode(node.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Tag == "!!merge" {
				if err := mergeInto(out, value); err != nil {
					return nil, err
				}
				continue
			}
			converted, err := convertNode(value)
			if err != nil {
				return nil, err
			}
			out[key.Value] = converted
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, item := range node.Content {
			converted, err := convertNode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case yaml.ScalarNode:
		if node.Tag == EnvTag {
			name := strings.TrimSpace(node.Value)
			if name == "" {
				return nil, fmt.Errorf("line %d: %s requires a variable name", node.Line, EnvTag)
			}
			return provider.EnvVar{Name: name}, nil
		}
		var value any
		if err := node.Decode(&value); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return value, nil
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", node.Line)
}

// mergeInto applies a YAML merge key. Keys already present are kept.
func mergeInto(out map[string]any, node *yaml.Node) error {
	sources := []*yaml.Node{node}
	if node.Kind == yaml.SequenceNode {
		sources = node.Content
	}
	for _, src := range sources {
		converted, err := convertNode(src)
		if err != nil {
			return err
		}
		merged, ok := converted.(map[string]any)
		if !ok {
			return fmt.Errorf("line %d: merge value must be a mapping", src.Line)
		}
		for key, value := range merged {
			if _, exists := out[key]; !exists {
				out[key] = value
			}
		}
	}
	return nil
}
