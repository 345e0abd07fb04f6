package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"regdesk/internal/workflow"
)

// Config models regdesk.yml. It is imported into the DB per project, so the
// active workflows travel with the database, not the checkout.
type Config struct {
	Project struct {
		ID       string `yaml:"id" json:"id"`
		Promoter string `yaml:"promoter" json:"promoter"`
	} `yaml:"project" json:"project"`
	// Workflows overrides or extends the built-in per-type status lists.
	// Adding an assignment type is a data change here, not a code change.
	Workflows map[string][]string `yaml:"workflows" json:"workflows"`
}

// Default returns a config with no workflow overrides.
func Default(projectID string) *Config {
	cfg := &Config{}
	cfg.Project.ID = projectID
	return cfg
}

// FromYAML parses and validates a config document.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads regdesk.yml from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; import with rd config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "regdesk.yml")
}

// Validate enforces the workflow invariants on every override: non-empty,
// begins with "new", terminates with "close", no duplicate codes.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	for assignmentType, codes := range c.Workflows {
		if strings.TrimSpace(assignmentType) == "" {
			return fmt.Errorf("config.workflows contains empty assignment type")
		}
		if len(codes) == 0 {
			return fmt.Errorf("workflow for %s is empty", assignmentType)
		}
		if codes[0] != workflow.StatusNew {
			return fmt.Errorf("workflow for %s must begin with %q", assignmentType, workflow.StatusNew)
		}
		if codes[len(codes)-1] != workflow.StatusClose {
			return fmt.Errorf("workflow for %s must end with %q", assignmentType, workflow.StatusClose)
		}
		seen := map[string]bool{}
		for _, code := range codes {
			if strings.TrimSpace(code) == "" {
				return fmt.Errorf("workflow for %s contains empty status code", assignmentType)
			}
			lower := strings.ToLower(code)
			if seen[lower] {
				return fmt.Errorf("workflow for %s repeats status %q", assignmentType, code)
			}
			seen[lower] = true
		}
	}
	return nil
}

// Registry builds the status registry with this config's overrides applied.
func (c *Config) Registry() workflow.Registry {
	return workflow.NewRegistry(c.Workflows)
}
