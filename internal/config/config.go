package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"auditline/internal/domain"
)

// Config models auditline.yml: the per-category validation rule catalog.
// It is read once at startup and treated as immutable afterwards.
type Config struct {
	Workspace struct {
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Categories map[string]CategoryRule `yaml:"categories"`
}

// CategoryRule describes one category's expectations.
type CategoryRule struct {
	Sequence             SequenceRule  `yaml:"sequence"`
	MinSteps             int           `yaml:"min_steps"`
	RequireOwnerNotes    bool          `yaml:"require_owner_notes"`
	RequireOwnerNotesFor []string      `yaml:"require_owner_notes_for"`
	Pairings             []PairingRule `yaml:"pairings"`
}

// SequenceRule describes which statuses open and close a lifecycle and their
// allowed order.
type SequenceRule struct {
	StartStatuses []string `yaml:"start_statuses"`
	EndStatuses   []string `yaml:"end_statuses"`
	StatusOrder   []string `yaml:"status_order"`
}

// PairingRule expects start-type actions to be followed by an end-type
// action from the same owner.
type PairingRule struct {
	StartActions []string `yaml:"start_actions"`
	EndActions   []string `yaml:"end_actions"`
	Description  string   `yaml:"description"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "auditline.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with al config init", Path(workspace))
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Resolve returns the workspace config, falling back to the built-in default
// catalog when no auditline.yml exists.
func Resolve(workspace string) (*Config, error) {
	cfg, err := LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return Default(), nil
	}
	return cfg, nil
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

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in rule catalog.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Validate ensures the catalog covers every category with well-formed rules.
func (c *Config) Validate() error {
	if c.Categories == nil {
		return fmt.Errorf("config.categories is required")
	}
	for _, cat := range domain.Categories {
		rule, ok := c.Categories[string(cat)]
		if !ok {
			return fmt.Errorf("config.categories.%s is required", cat)
		}
		if err := rule.validate(string(cat)); err != nil {
			return err
		}
	}
	for name := range c.Categories {
		if !domain.ValidCategory(name) {
			return fmt.Errorf("config.categories contains unknown category %s", name)
		}
	}
	return nil
}

func (r CategoryRule) validate(name string) error {
	if len(r.Sequence.StartStatuses) == 0 {
		return fmt.Errorf("category %s has no start statuses", name)
	}
	if len(r.Sequence.EndStatuses) == 0 {
		return fmt.Errorf("category %s has no end statuses", name)
	}
	if len(r.Sequence.StatusOrder) == 0 {
		return fmt.Errorf("category %s has no status order", name)
	}
	for _, group := range [][]string{r.Sequence.StartStatuses, r.Sequence.EndStatuses, r.Sequence.StatusOrder, r.RequireOwnerNotesFor} {
		for _, s := range group {
			if !domain.ValidStatus(s) {
				return fmt.Errorf("category %s references unknown status %s", name, s)
			}
		}
	}
	if r.MinSteps < 0 {
		return fmt.Errorf("category %s has negative min_steps", name)
	}
	for i, p := range r.Pairings {
		if len(p.StartActions) == 0 || len(p.EndActions) == 0 {
			return fmt.Errorf("category %s pairing %d needs start and end actions", name, i+1)
		}
		if p.Description == "" {
			return fmt.Errorf("category %s pairing %d needs a description", name, i+1)
		}
	}
	return nil
}

const defaultTemplate = `workspace:
  name: auditline

categories:
  quality:
    sequence:
      start_statuses: [pending, in_review]
      end_statuses: [approved, rejected]
      status_order: [pending, in_review, approved]
    min_steps: 2
    require_owner_notes_for: [rejected]
    pairings:
      - start_actions: [TRAINING_SESSION]
        end_actions: [TRAINING_COMPLETION]
        description: "Training sessions should conclude with a completion record"
      - start_actions: [QA_INSPECTION, QUALITY_CHECK]
        end_actions: [QA_DEVIATION_REVIEW, QUALITY_IMPROVEMENT]
        description: "Quality checks should be followed by a review or improvement action"

  compliance:
    sequence:
      start_statuses: [pending, in_review]
      end_statuses: [approved, rejected]
      status_order: [pending, in_review, approved]
    min_steps: 3
    require_owner_notes: true
    pairings:
      - start_actions: [COMPLIANCE_AUDIT]
        end_actions: [AUDIT_RESPONSE]
        description: "Compliance audits must capture a corresponding response entry"
      - start_actions: [POLICY_UPDATE, SOP_UPDATE]
        end_actions: [COMPLIANCE_REVIEW, SOP_REVIEW]
        description: "Policy and SOP updates should be reviewed for compliance"

  safety:
    sequence:
      start_statuses: [pending, in_review]
      end_statuses: [approved, rejected]
      status_order: [pending, in_review, approved]
    min_steps: 2
    require_owner_notes: true
    pairings:
      - start_actions: [SAFETY_DRILL, SAFETY_INSPECTION]
        end_actions: [SAFETY_ALERT, INCIDENT_REVIEW, INCIDENT_REPORT]
        description: "Safety activities should log the resulting alert or incident review"
      - start_actions: [RISK_ASSESSMENT]
        end_actions: [SAFETY_ALERT, INCIDENT_REVIEW, INCIDENT_REPORT]
        description: "Risk assessments should link to the follow-up safety communication"

  efficiency:
    sequence:
      start_statuses: [pending, in_review]
      end_statuses: [approved, rejected]
      status_order: [pending, in_review, approved]
    min_steps: 1
    require_owner_notes_for: [rejected]
    pairings:
      - start_actions: [MAINTENANCE_SCHEDULE]
        end_actions: [MAINTENANCE_CHECK]
        description: "Maintenance schedules require a matching maintenance check entry"
      - start_actions: [WORKFLOW_OPTIMIZATION, WORKFLOW_UPDATE, PROCESS_UPDATE]
        end_actions: [PROCESS_IMPROVEMENT, EFFICIENCY_REVIEW]
        description: "Workflow changes should be assessed with a follow-up review"
`
