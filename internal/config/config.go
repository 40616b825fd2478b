// internal/config/config.go
//
// This package handles the project-level configuration. Every project that
// uses waterboy has a .waterboy.yaml file in its root; model run files live
// anywhere underneath it.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kingrea/waterboy/internal/source"
)

const (
	// ProjectFileName marks the root of a waterboy project.
	ProjectFileName = ".waterboy.yaml"

	// EnvFileName is loaded from the project root when present.
	EnvFileName = ".env"

	defaultOutputDirectory  = "output"
	defaultDataDirectory    = "data"
	defaultPresetsDirectory = "presets"
)

const defaultProjectConfigYAML = `# waterboy project configuration

# Where checkpoints, logs and other run outputs are written.
output_directory: output

# Where datasets are read from.
data_directory: data

# YAML command presets registered for every model run.
presets_directory: presets

# Any other keys are visible to every model run as environment defaults.
# seed: 42
`

// ErrProjectNotFound is returned when no project file exists above a path.
var ErrProjectNotFound = errors.New("config: no " + ProjectFileName + " found")

// Settings are the typed keys waterboy itself reads from the project file.
type Settings struct {
	ProjectDir       string `yaml:"-" validate:"required,dir"`
	OutputDirectory  string `yaml:"output_directory" validate:"required"`
	DataDirectory    string `yaml:"data_directory" validate:"required"`
	PresetsDirectory string `yaml:"presets_directory"`
}

// ProjectConfig models .waterboy.yaml.
type ProjectConfig struct {
	configPath string
	settings   Settings
	contents   map[string]any
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// Init writes a default project file into projectDir unless one exists.
func Init(projectDir string) (string, error) {
	path := filepath.Join(projectDir, ProjectFileName)
	if err := ensureProjectConfig(path); err != nil {
		return "", fmt.Errorf("config: init %s: %w", path, err)
	}
	return path, nil
}

// Discover walks upward from start and returns the first project file found.
func Discover(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", start, err)
	}
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w (searched from %s)", ErrProjectNotFound, start)
		}
		dir = parent
	}
}

// Load reads a project file. A .env file beside it is loaded into the
// process environment first; variables that are already set win.
func Load(path string) (*ProjectConfig, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	projectDir := filepath.Dir(absolute)
	if err := loadDotEnv(filepath.Join(projectDir, EnvFileName)); err != nil {
		return nil, err
	}
	contents, err := source.ParseFile(absolute)
	if err != nil {
		return nil, err
	}
	cfg, err := New(projectDir, contents)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", absolute, err)
	}
	cfg.configPath = absolute
	return cfg, nil
}

// New builds a project configuration from already-parsed contents.
func New(projectDir string, contents map[string]any) (*ProjectConfig, error) {
	settings := Settings{
		ProjectDir:       filepath.Clean(projectDir),
		OutputDirectory:  defaultOutputDirectory,
		DataDirectory:    defaultDataDirectory,
		PresetsDirectory: defaultPresetsDirectory,
	}
	var err error
	if settings.OutputDirectory, err = stringSetting(contents, "output_directory", settings.OutputDirectory); err != nil {
		return nil, err
	}
	if settings.DataDirectory, err = stringSetting(contents, "data_directory", settings.DataDirectory); err != nil {
		return nil, err
	}
	if settings.PresetsDirectory, err = stringSetting(contents, "presets_directory", settings.PresetsDirectory); err != nil {
		return nil, err
	}
	if err := settings.validate(); err != nil {
		return nil, err
	}
	cfg := &ProjectConfig{
		settings: settings,
		contents: make(map[string]any, len(contents)),
	}
	for key, value := range contents {
		cfg.contents[key] = value
	}
	return cfg, nil
}

// Contents returns a copy of every top-level key in the project file.
func (c *ProjectConfig) Contents() map[string]any {
	out := make(map[string]any, len(c.contents))
	for key, value := range c.contents {
		out[key] = value
	}
	return out
}

// ProjectDir returns the directory containing the project file.
func (c *ProjectConfig) ProjectDir() string {
	return c.settings.ProjectDir
}

// ConfigPath returns the on-disk location of the project file, if any.
func (c *ProjectConfig) ConfigPath() string {
	return c.configPath
}

// Settings returns the typed project settings.
func (c *ProjectConfig) Settings() Settings {
	return c.settings
}

// ProjectOutputDir joins segments onto the output root.
func (c *ProjectConfig) ProjectOutputDir(segments ...string) string {
	root := resolvePath(c.settings.ProjectDir, c.settings.OutputDirectory)
	return filepath.Join(append([]string{root}, segments...)...)
}

// ProjectDataDir joins segments onto the data root.
func (c *ProjectConfig) ProjectDataDir(segments ...string) string {
	root := resolvePath(c.settings.ProjectDir, c.settings.DataDirectory)
	return filepath.Join(append([]string{root}, segments...)...)
}

// PresetsDir returns the directory command presets are loaded from, or ""
// when presets are disabled.
func (c *ProjectConfig) PresetsDir() string {
	if c.settings.PresetsDirectory == "" {
		return ""
	}
	return resolvePath(c.settings.ProjectDir, c.settings.PresetsDirectory)
}

func (s Settings) validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "dir":
			msgs = append(msgs, fmt.Sprintf("%s %v is not a directory", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func stringSetting(contents map[string]any, key, fallback string) (string, error) {
	raw, ok := contents[key]
	if !ok || raw == nil {
		return fallback, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, raw)
	}
	return strings.TrimSpace(value), nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
