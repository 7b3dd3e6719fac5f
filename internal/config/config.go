package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models callsheet.yml.
type Config struct {
	Roster struct {
		Path    string `yaml:"path" json:"path"`
		IDField string `yaml:"id_field,omitempty" json:"id_field,omitempty"`
	} `yaml:"roster" json:"roster"`
	Report struct {
		NameFields []NameFieldPair `yaml:"name_fields,omitempty" json:"name_fields,omitempty"`
	} `yaml:"report" json:"report"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// NameFieldPair is one candidate pair of roster fields holding a
// contact's name; Last may be empty for single-field candidates.
type NameFieldPair struct {
	First string `yaml:"first" json:"first"`
	Last  string `yaml:"last,omitempty" json:"last,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cs config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Roster.Path != "" {
		ext := strings.ToLower(filepath.Ext(c.Roster.Path))
		if ext != ".csv" && ext != ".json" {
			return fmt.Errorf("config.roster.path must point to a .csv or .json file, got %q", c.Roster.Path)
		}
	}
	for i, pair := range c.Report.NameFields {
		if strings.TrimSpace(pair.First) == "" {
			return fmt.Errorf("config.report.name_fields[%d].first is required", i)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "callsheet.yml")
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		// the shipped template always parses
		panic(err)
	}
	return cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `roster:
  path: roster.csv
  id_field: id

report:
  name_fields:
    - first: first_name
      last: last_name
    - first: firstName
      last: lastName
    - first: full_name
    - first: name
`
