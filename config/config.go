// Package config loads the deployment configuration: the set of named
// deployment types the launcher can run and the metadata shown by the UI.
//
// The file is YAML (JSON documents are accepted as-is). Every top-level key is
// a deployment type except "_meta", and file order is preserved so that the
// first declared type can act as the default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultWorkingDir = "."
	defaultEnvVar     = "NGC_API_KEY"
	defaultNamespace  = "default"
	defaultHeading    = "Deploy"

	defaultProjectName  = "Interlude"
	defaultLauncherPath = "/interlude"

	metaKey = "_meta"
)

// ErrNoDeployments is returned when a config file declares no deployment types.
var ErrNoDeployments = errors.New("no deployment types configured")

// Config is the parsed deployment configuration.
type Config struct {
	Meta        Meta
	Deployments []*Deployment
}

// Meta holds launcher-wide presentation settings.
type Meta struct {
	ProjectName  string `yaml:"project_name" json:"project_name"`
	LauncherPath string `yaml:"launcher_path" json:"launcher_path"`
}

// Deployment describes one way of deploying the application.
type Deployment struct {
	// Name is the top-level key the deployment was declared under.
	Name string `yaml:"-" json:"name"`

	Command           string       `yaml:"command" json:"command"`
	WorkingDir        string       `yaml:"working_dir" json:"working_dir"`
	EnvVar            string       `yaml:"env_var" json:"env_var"`
	PreCommands       []string     `yaml:"pre_commands" json:"pre_commands"`
	PostCommands      []string     `yaml:"post_commands" json:"post_commands"`
	UninstallCommands []string     `yaml:"uninstall_commands" json:"uninstall_commands"`
	InputFields       []InputField `yaml:"input_fields" json:"input_fields"`
	Services          []Service    `yaml:"services" json:"services"`
	Namespace         string       `yaml:"namespace" json:"namespace"`
	DefaultVersion    string       `yaml:"default_version" json:"default_version"`
	Versions          []string     `yaml:"versions" json:"versions"`
	Description       string       `yaml:"description" json:"description"`
	Heading           string       `yaml:"heading" json:"heading"`
}

// InputField is a value collected from the user and exported to the
// deployment commands as an environment variable.
type InputField struct {
	ID          string `yaml:"id" json:"id"`
	EnvVar      string `yaml:"env_var" json:"env_var"`
	Label       string `yaml:"label" json:"label"`
	Type        string `yaml:"type" json:"type"`
	Placeholder string `yaml:"placeholder" json:"placeholder"`
	Required    bool   `yaml:"required" json:"required"`
}

// Service is a link shown once a deployment succeeds. URL may contain the
// placeholders ${HOST_IP} and ${BASE_DOMAIN}.
type Service struct {
	Name        string `yaml:"name" json:"name"`
	URL         string `yaml:"url" json:"url"`
	Description string `yaml:"description" json:"description"`
}

// HasUninstall reports whether the deployment declares uninstall commands.
func (d *Deployment) HasUninstall() bool {
	return len(d.UninstallCommands) > 0
}

// SetDefaults fills in optional fields.
func (d *Deployment) SetDefaults() {
	if d.WorkingDir == "" {
		d.WorkingDir = defaultWorkingDir
	}
	if d.EnvVar == "" {
		d.EnvVar = defaultEnvVar
	}
	if d.Namespace == "" {
		d.Namespace = defaultNamespace
	}
	if d.Heading == "" {
		d.Heading = defaultHeading
	}
}

// Validate checks that the deployment can be run.
func (d *Deployment) Validate() error {
	if strings.TrimSpace(d.Command) == "" {
		return fmt.Errorf("deployment %q: command is required", d.Name)
	}
	seen := make(map[string]bool, len(d.InputFields))
	for i, f := range d.InputFields {
		if f.ID == "" {
			return fmt.Errorf("deployment %q: input_fields[%d]: id is required", d.Name, i)
		}
		if f.EnvVar == "" {
			return fmt.Errorf("deployment %q: input field %q: env_var is required", d.Name, f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("deployment %q: duplicate input field %q", d.Name, f.ID)
		}
		seen[f.ID] = true
	}
	for i, s := range d.Services {
		if s.URL == "" {
			return fmt.Errorf("deployment %q: services[%d]: url is required", d.Name, i)
		}
	}
	return nil
}

// SetDefaults fills in optional metadata.
func (m *Meta) SetDefaults() {
	if m.ProjectName == "" {
		m.ProjectName = defaultProjectName
	}
	if m.LauncherPath == "" {
		m.LauncherPath = defaultLauncherPath
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if len(c.Deployments) == 0 {
		return ErrNoDeployments
	}
	for _, d := range c.Deployments {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the deployment declared under name.
func (c *Config) Get(name string) (*Deployment, bool) {
	for _, d := range c.Deployments {
		if d.Name == name {
			return d, true
		}
	}
	return nil, false
}

// Names returns the deployment type names in file order.
func (c *Config) Names() []string {
	names := make([]string, len(c.Deployments))
	for i, d := range c.Deployments {
		names[i] = d.Name
	}
	return names
}

// Active returns the deployment selected by override, or the first declared
// deployment when override is empty. It returns false when override names a
// deployment that does not exist.
func (c *Config) Active(override string) (*Deployment, bool) {
	if override != "" {
		return c.Get(override)
	}
	if len(c.Deployments) == 0 {
		return nil, false
	}
	return c.Deployments[0], true
}

// LoadConfig reads and validates the deployment config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("deployment config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a deployment config document, applies defaults and validates
// the result.
func Parse(data []byte) (*Config, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode deployment config: %w", err)
	}

	cfg := &Config{}
	if len(doc.Content) > 0 {
		root := doc.Content[0]
		if root.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("deployment config must be a mapping, line %d", root.Line)
		}
		// Mapping node content alternates key, value.
		for i := 0; i+1 < len(root.Content); i += 2 {
			key, value := root.Content[i], root.Content[i+1]
			if key.Value == metaKey {
				if err := value.Decode(&cfg.Meta); err != nil {
					return nil, fmt.Errorf("failed to decode %s: %w", metaKey, err)
				}
				continue
			}
			if strings.HasPrefix(key.Value, "_") {
				continue
			}
			d := &Deployment{}
			if err := value.Decode(d); err != nil {
				return nil, fmt.Errorf("failed to decode deployment %q: %w", key.Value, err)
			}
			d.Name = key.Value
			d.SetDefaults()
			cfg.Deployments = append(cfg.Deployments, d)
		}
	}
	cfg.Meta.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
