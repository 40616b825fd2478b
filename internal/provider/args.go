package provider

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// Args exposes the parameters available to a Factory.
type Args struct {
	provider *Provider
	typeName string
	params   map[string]any
	chain    []uintptr
}

// Type returns the type name being instantiated.
func (a *Args) Type() string {
	return a.typeName
}

// Has reports whether key can be resolved from any layer.
func (a *Args) Has(key string) bool {
	if _, ok := a.params[key]; ok {
		return true
	}
	if _, ok := a.provider.instances[key]; ok {
		return true
	}
	_, ok := a.provider.environment[key]
	return ok
}

// Lookup resolves key: the descriptor first, then named instances, then the
// environment. The boolean is false when no layer has the key.
func (a *Args) Lookup(key string) (any, bool, error) {
	if raw, ok := a.params[key]; ok {
		value, err := a.resolve(key, raw)
		return value, true, err
	}
	if instance, ok := a.provider.instances[key]; ok {
		return instance, true, nil
	}
	if raw, ok := a.provider.environment[key]; ok {
		value, err := a.resolve(key, raw)
		return value, true, err
	}
	return nil, false, nil
}

func (a *Args) resolve(key string, raw any) (any, error) {
	value, err := a.provider.resolve(raw, a.chain)
	if err != nil {
		return nil, &ParameterError{Type: a.typeName, Key: key, Reason: "resolve", Err: err}
	}
	return value, nil
}

// Value returns the resolved value of a required parameter.
func (a *Args) Value(key string) (any, error) {
	value, ok, err := a.Lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, a.missing(key)
	}
	return value, nil
}

// Instance returns a named instance such as model_config.
func (a *Args) Instance(key string) (any, error) {
	instance, ok := a.provider.instances[key]
	if !ok {
		return nil, a.missing(key)
	}
	return instance, nil
}

// String returns a required string parameter.
func (a *Args) String(key string) (string, error) {
	value, err := a.Value(key)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", a.wrongType(key, "string", value)
	}
	return s, nil
}

// StringOr returns a string parameter or fallback when absent.
func (a *Args) StringOr(key, fallback string) (string, error) {
	if !a.Has(key) {
		return fallback, nil
	}
	return a.String(key)
}

// Int returns a required integer parameter.
func (a *Args) Int(key string) (int, error) {
	value, err := a.Value(key)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		if v < math.MinInt || v > math.MaxInt {
			return 0, a.outOfRange(key, value)
		}
		return int(v), nil
	case uint64:
		if v > math.MaxInt {
			return 0, a.outOfRange(key, value)
		}
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			break
		}
		// -MinInt is the first float above MaxInt.
		if v < float64(math.MinInt) || v >= -float64(math.MinInt) {
			return 0, a.outOfRange(key, value)
		}
		return int(v), nil
	}
	return 0, a.wrongType(key, "integer", value)
}

// IntOr returns an integer parameter or fallback when absent.
func (a *Args) IntOr(key string, fallback int) (int, error) {
	if !a.Has(key) {
		return fallback, nil
	}
	return a.Int(key)
}

// Float returns a required floating point parameter.
func (a *Args) Float(key string) (float64, error) {
	value, err := a.Value(key)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, a.wrongType(key, "number", value)
}

// BoolOr returns a boolean parameter or fallback when absent.
func (a *Args) BoolOr(key string, fallback bool) (bool, error) {
	if !a.Has(key) {
		return fallback, nil
	}
	value, err := a.Value(key)
	if err != nil {
		return false, err
	}
	b, ok := value.(bool)
	if !ok {
		return false, a.wrongType(key, "boolean", value)
	}
	return b, nil
}

// StringSlice returns a list of strings, or nil when absent.
func (a *Args) StringSlice(key string) ([]string, error) {
	if !a.Has(key) {
		return nil, nil
	}
	value, err := a.Value(key)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, a.wrongType(key, "list", value)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, a.wrongType(key, "list of strings", value)
		}
		out = append(out, s)
	}
	return out, nil
}

// Decode fills the struct target points to, using yaml field tags. Only
// the keys the struct declares are resolved, each from the descriptor first
// and then the environment. A key naming an instance is left to Instance.
func (a *Args) Decode(target any) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("provider: %s: decode target must be a pointer to a struct, got %T", a.typeName, target)
	}
	keys, rest := yamlKeys(v.Elem().Type())
	if rest {
		for key := range a.params {
			keys = append(keys, key)
		}
	}
	data := make(map[string]any, len(keys))
	for _, key := range keys {
		raw, ok := a.params[key]
		if !ok {
			if _, shadowed := a.provider.instances[key]; shadowed {
				continue
			}
			if raw, ok = a.provider.environment[key]; !ok {
				continue
			}
		}
		value, err := a.resolve(key, raw)
		if err != nil {
			return err
		}
		data[key] = value
	}
	encoded, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("provider: %s: encode parameters: %w", a.typeName, err)
	}
	if err := yaml.Unmarshal(encoded, target); err != nil {
		return fmt.Errorf("provider: %s: decode parameters: %w", a.typeName, err)
	}
	return nil
}

// yamlKeys lists the mapping keys yaml.v3 would fill in t. rest is true
// when an inline map collects the descriptor's remaining keys.
func yamlKeys(t reflect.Type) (keys []string, rest bool) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "-" {
			continue
		}
		if strings.Contains(opts, "inline") {
			inner := field.Type
			if inner.Kind() == reflect.Pointer {
				inner = inner.Elem()
			}
			switch inner.Kind() {
			case reflect.Struct:
				innerKeys, innerRest := yamlKeys(inner)
				keys = append(keys, innerKeys...)
				rest = rest || innerRest
			case reflect.Map:
				rest = true
			}
			continue
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		keys = append(keys, name)
	}
	return keys, rest
}

// Delegate instantiates typeName with defaults overlaid by this descriptor's
// explicit parameters. Aliases and presets are built on it.
func (a *Args) Delegate(typeName string, defaults map[string]any) (any, error) {
	descriptor := make(map[string]any, len(defaults)+len(a.params)+1)
	for key, value := range defaults {
		descriptor[key] = value
	}
	for key, value := range a.params {
		descriptor[key] = value
	}
	descriptor[TypeKey] = typeName
	return a.provider.instantiate(descriptor, a.chain)
}

func (a *Args) missing(key string) error {
	return &ParameterError{Type: a.typeName, Key: key, Reason: "not provided"}
}

func (a *Args) outOfRange(key string, got any) error {
	return &ParameterError{Type: a.typeName, Key: key, Reason: fmt.Sprintf("%v is out of range for an integer", got)}
}

func (a *Args) wrongType(key, want string, got any) error {
	return &ParameterError{Type: a.typeName, Key: key, Reason: fmt.Sprintf("expected %s, got %T", want, got)}
}
