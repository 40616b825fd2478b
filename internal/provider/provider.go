// Package provider builds objects from declarative descriptors.
//
// A descriptor is a mapping whose "name" key selects a registered Factory.
// The remaining keys are explicit parameters. When a factory asks for a
// parameter the Provider looks it up in the descriptor first, then among
// the named instances it was built with, then in the environment mapping.
// Nested descriptors are instantiated recursively.
package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
)

// TypeKey is the descriptor key naming the factory to use.
const TypeKey = "name"

// maxDepth bounds how deeply descriptors may build one another.
const maxDepth = 64

// Command is implemented by every dispatchable object.
type Command interface {
	Run(ctx context.Context, args ...string) (any, error)
}

// EnvVar references a process environment variable. YAML sources produce it
// from scalars tagged !env.
type EnvVar struct {
	Name string
}

var (
	// ErrMissingName is returned for descriptors without a type name.
	ErrMissingName = errors.New("provider: descriptor has no name")
	// ErrMissingEnvVar is returned when an EnvVar is not set.
	ErrMissingEnvVar = errors.New("provider: environment variable is not set")
	// ErrNotCommand is returned when an instantiated object cannot be run.
	ErrNotCommand = errors.New("provider: object does not implement Run")
	// ErrCycle is returned when building a descriptor requires itself.
	ErrCycle = errors.New("provider: descriptor cycle")
)

// UnknownTypeError reports a descriptor naming an unregistered factory.
type UnknownTypeError struct {
	Name string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("provider: unknown type %s", e.Name)
}

// ParameterError reports a parameter a factory could not obtain.
type ParameterError struct {
	Type   string
	Key    string
	Reason string
	Err    error
}

func (e *ParameterError) Error() string {
	msg := fmt.Sprintf("provider: %s: parameter %s: %s", e.Type, e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParameterError) Unwrap() error { return e.Err }

// Provider instantiates descriptors against a fixed environment.
type Provider struct {
	registry    *Registry
	environment map[string]any
	instances   map[string]any
}

// New returns a Provider. The environment and instance maps are copied.
func New(registry *Registry, environment, instances map[string]any) *Provider {
	return &Provider{
		registry:    registry,
		environment: copyMap(environment),
		instances:   copyMap(instances),
	}
}

// Environment returns a copy of the binding environment.
func (p *Provider) Environment() map[string]any {
	return copyMap(p.environment)
}

// InstantiateFromData builds the object described by descriptor.
func (p *Provider) InstantiateFromData(descriptor any) (any, error) {
	return p.instantiate(descriptor, nil)
}

// instantiate builds descriptor. chain holds the identities of the
// descriptors currently being built further up the call stack.
func (p *Provider) instantiate(descriptor any, chain []uintptr) (any, error) {
	data, ok := asMapping(descriptor)
	if !ok {
		return nil, fmt.Errorf("provider: descriptor must be a mapping, got %T", descriptor)
	}
	typeName, ok := data[TypeKey].(string)
	typeName = strings.TrimSpace(typeName)
	if !ok || typeName == "" {
		return nil, ErrMissingName
	}
	factory, ok := p.registry.Lookup(typeName)
	if !ok {
		return nil, &UnknownTypeError{Name: typeName}
	}
	if len(chain) >= maxDepth {
		return nil, fmt.Errorf("%w: %s nested deeper than %d", ErrCycle, typeName, maxDepth)
	}
	id := identity(descriptor)
	if id != 0 && slices.Contains(chain, id) {
		return nil, fmt.Errorf("%w: %s", ErrCycle, typeName)
	}
	params := make(map[string]any, len(data))
	for key, value := range data {
		if key == TypeKey {
			continue
		}
		params[key] = value
	}
	return factory(&Args{
		provider: p,
		typeName: typeName,
		params:   params,
		chain:    append(slices.Clip(chain), id),
	})
}

// Instantiate builds descriptor and asserts the result is a Command.
func (p *Provider) Instantiate(descriptor any) (Command, error) {
	obj, err := p.InstantiateFromData(descriptor)
	if err != nil {
		return nil, err
	}
	cmd, ok := obj.(Command)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotCommand, obj)
	}
	return cmd, nil
}

// resolve replaces EnvVar references and nested descriptors in value.
func (p *Provider) resolve(value any, chain []uintptr) (any, error) {
	switch v := value.(type) {
	case EnvVar:
		resolved, ok := os.LookupEnv(v.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingEnvVar, v.Name)
		}
		return resolved, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := p.resolve(item, chain)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	}
	data, ok := asMapping(value)
	if !ok {
		return value, nil
	}
	if p.isDescriptor(data) {
		return p.instantiate(value, chain)
	}
	out := make(map[string]any, len(data))
	for key, item := range data {
		resolved, err := p.resolve(item, chain)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = resolved
	}
	return out, nil
}

func (p *Provider) isDescriptor(data map[string]any) bool {
	typeName, ok := data[TypeKey].(string)
	if !ok {
		return false
	}
	_, registered := p.registry.Lookup(strings.TrimSpace(typeName))
	return registered
}

// identity returns the address of a descriptor mapping, or 0.
func identity(descriptor any) uintptr {
	v := reflect.ValueOf(descriptor)
	if v.Kind() != reflect.Map || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

func asMapping(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = item
		}
		return out, true
	}
	return nil, false
}

func copyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
