package plan

import (
	"path/filepath"
	"strings"
	"testing"
)

func samplePlan() *Plan {
	return &Plan{
		Overview:        "A todo app.",
		TechnologyStack: "Go, SQLite",
		Prerequisites:   []string{"Go 1.24+"},
		CoreFeatures:    []string{"Create todos"},
		DatabaseSchema: []Table{{
			Name:    "todos",
			Columns: []Column{{Name: "id", Type: "INTEGER", Constraints: "PRIMARY KEY"}, {Name: "title", Type: "TEXT"}},
		}},
		KeyInteractions:     []Interaction{{Feature: "Add todo", Workflow: []string{"Open /", "Type title"}}},
		ImplementationSteps: []Task{{Name: "Setup", Steps: []string{"go mod init"}}},
		SuccessCriteria:     []string{"Todos persist"},
	}
}

func TestFromArgs(t *testing.T) {
	args := map[string]any{
		"overview":         "A todo app.",
		"technology_stack": "Go",
		"core_features":    []any{"Create todos"},
		"api_endpoints_summary": []any{
			map[string]any{"path": "/api/todos", "method": "GET"},
		},
		"implementation_steps": []any{
			map[string]any{"task_name": "Setup", "implementation_steps": []any{"init"}},
		},
		"success_criteria": []any{"works"},
	}

	p, err := FromArgs(args)
	if err != nil {
		t.Fatalf("FromArgs failed: %v", err)
	}
	if len(p.APIEndpoints) != 1 || p.APIEndpoints[0].Method != "GET" {
		t.Errorf("Unexpected endpoints: %+v", p.APIEndpoints)
	}
	if p.ImplementationSteps[0].Name != "Setup" {
		t.Errorf("Unexpected task name %q", p.ImplementationSteps[0].Name)
	}
	if p.DatabaseSchema != nil {
		t.Error("Expected absent database schema to stay nil")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Expected valid plan, got %v", err)
	}
}

func TestFromArgsUnwrapsPlanKey(t *testing.T) {
	p, err := FromArgs(map[string]any{"plan": map[string]any{"overview": "wrapped"}})
	if err != nil {
		t.Fatalf("FromArgs failed: %v", err)
	}
	if p.Overview != "wrapped" {
		t.Errorf("Expected wrapped overview, got %q", p.Overview)
	}
}

func TestFromArgsRejectsWrongTypes(t *testing.T) {
	if _, err := FromArgs(map[string]any{"core_features": "not a list"}); err == nil {
		t.Fatal("Expected decode error")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	p := &Plan{
		DatabaseSchema:      []Table{{Name: "users", Columns: []Column{{Name: "id"}}}},
		ImplementationSteps: []Task{{Name: "Setup"}},
	}

	err := p.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{
		"overview is required",
		"technology_stack is required",
		"core_features",
		"success_criteria",
		"database_schema[0].columns[0].type is required",
		"implementation_steps[0].implementation_steps must not be empty",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	p := samplePlan()

	path := filepath.Join(dir, "nested", "app_spec.json")
	if err := p.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DatabaseSchema[0].Columns[0].Constraints != "PRIMARY KEY" {
		t.Errorf("Constraints lost: %+v", loaded.DatabaseSchema)
	}
	if loaded.UILayout != nil {
		t.Error("Expected absent UI layout to stay absent")
	}
}

func TestYAMLExport(t *testing.T) {
	data, err := samplePlan().YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "task_name: Setup") {
		t.Errorf("Expected task_name in yaml, got:\n%s", out)
	}
	if strings.Contains(out, "ui_layout") {
		t.Errorf("Expected optional ui_layout to be omitted, got:\n%s", out)
	}
}
