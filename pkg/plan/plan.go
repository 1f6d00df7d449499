// Package plan defines the structured project specification produced by the planning agent.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Column is one database column.
type Column struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Constraints string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Table is one database table.
type Table struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// Endpoint is one HTTP API endpoint.
type Endpoint struct {
	Path   string `json:"path" yaml:"path"`
	Method string `json:"method" yaml:"method"`
}

// Interaction is a user workflow used to verify a feature end to end.
type Interaction struct {
	Feature  string   `json:"feature" yaml:"feature"`
	Workflow []string `json:"workflow" yaml:"workflow"`
}

// Task is one implementation phase with ordered steps.
type Task struct {
	Name  string   `json:"task_name" yaml:"task_name"`
	Steps []string `json:"implementation_steps" yaml:"implementation_steps"`
}

// Plan is the complete project specification.
// DatabaseSchema, APIEndpoints, UILayout and DesignSystem are optional.
type Plan struct {
	Overview            string        `json:"overview" yaml:"overview"`
	TechnologyStack     string        `json:"technology_stack" yaml:"technology_stack"`
	Prerequisites       []string      `json:"prerequisites" yaml:"prerequisites"`
	CoreFeatures        []string      `json:"core_features" yaml:"core_features"`
	DatabaseSchema      []Table       `json:"database_schema,omitempty" yaml:"database_schema,omitempty"`
	APIEndpoints        []Endpoint    `json:"api_endpoints_summary,omitempty" yaml:"api_endpoints_summary,omitempty"`
	UILayout            []string      `json:"ui_layout,omitempty" yaml:"ui_layout,omitempty"`
	DesignSystem        []string      `json:"design_system,omitempty" yaml:"design_system,omitempty"`
	KeyInteractions     []Interaction `json:"key_interactions" yaml:"key_interactions"`
	ImplementationSteps []Task        `json:"implementation_steps" yaml:"implementation_steps"`
	SuccessCriteria     []string      `json:"success_criteria" yaml:"success_criteria"`
}

// FromArgs decodes tool-call arguments into a Plan.
// A "plan" key wrapping the object is accepted as well.
func FromArgs(args map[string]any) (*Plan, error) {
	if inner, ok := args["plan"].(map[string]any); ok && len(args) == 1 {
		args = inner
	}

	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan arguments: %w", err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &p, nil
}

// Validate reports every missing required field and malformed record.
func (p *Plan) Validate() error {
	var errs []error
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}

	required("overview", p.Overview)
	required("technology_stack", p.TechnologyStack)
	if len(p.CoreFeatures) == 0 {
		errs = append(errs, errors.New("core_features must list at least one feature"))
	}
	if len(p.ImplementationSteps) == 0 {
		errs = append(errs, errors.New("implementation_steps must list at least one task"))
	}
	if len(p.SuccessCriteria) == 0 {
		errs = append(errs, errors.New("success_criteria must list at least one criterion"))
	}

	for i, table := range p.DatabaseSchema {
		required(fmt.Sprintf("database_schema[%d].name", i), table.Name)
		for j, col := range table.Columns {
			required(fmt.Sprintf("database_schema[%d].columns[%d].name", i, j), col.Name)
			required(fmt.Sprintf("database_schema[%d].columns[%d].type", i, j), col.Type)
		}
	}
	for i, ep := range p.APIEndpoints {
		required(fmt.Sprintf("api_endpoints_summary[%d].path", i), ep.Path)
		required(fmt.Sprintf("api_endpoints_summary[%d].method", i), ep.Method)
	}
	for i, in := range p.KeyInteractions {
		required(fmt.Sprintf("key_interactions[%d].feature", i), in.Feature)
	}
	for i, task := range p.ImplementationSteps {
		required(fmt.Sprintf("implementation_steps[%d].task_name", i), task.Name)
		if len(task.Steps) == 0 {
			errs = append(errs, fmt.Errorf("implementation_steps[%d].implementation_steps must not be empty", i))
		}
	}

	return errors.Join(errs...)
}

// JSON returns the indented JSON form.
func (p *Plan) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	return data, nil
}

// YAML returns the YAML form.
func (p *Plan) YAML() ([]byte, error) {
	data, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan as yaml: %w", err)
	}
	return data, nil
}

// Save writes the plan as JSON to path, creating parent directories.
func (p *Plan) Save(path string) error {
	data, err := p.JSON()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create plan directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}

// Load reads a plan stored as JSON, or YAML when path ends in .yaml/.yml.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	var p Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	return &p, nil
}
