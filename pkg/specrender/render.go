// Package specrender converts a plan into the markdown project specification and reads
// implementation tasks back out of that document.
package specrender

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"forgeloop/pkg/plan"
)

// Section headings, in document order.
const (
	Title                     = "Project Specification"
	HeadingOverview           = "Overview"
	HeadingTechStack          = "Tech Stack"
	HeadingPrerequisites      = "Prerequisites"
	HeadingCoreFeatures       = "Core Features"
	HeadingDatabaseSchema     = "Database Schema"
	HeadingAPIEndpoints       = "API Endpoints"
	HeadingUILayout           = "UI Layout"
	HeadingDesignSystem       = "Design System"
	HeadingKeyInteractions    = "Key Interactions"
	HeadingImplementationStep = "Implementation Steps"
	HeadingSuccessCriteria    = "Success Criteria"
)

type doc struct {
	sb       strings.Builder
	sections int
}

func (d *doc) section(heading string) {
	if d.sections > 0 {
		d.sb.WriteString("\n")
	}
	d.sections++
	fmt.Fprintf(&d.sb, "## %s\n", heading)
}

func (d *doc) text(heading, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	d.section(heading)
	d.sb.WriteString(strings.TrimSpace(body))
	d.sb.WriteString("\n")
}

func (d *doc) bullets(items []string) {
	for _, item := range items {
		fmt.Fprintf(&d.sb, "- %s\n", item)
	}
}

func (d *doc) list(heading string, items []string) {
	if len(items) == 0 {
		return
	}
	d.section(heading)
	d.bullets(items)
}

// subsection writes "### name" plus bullets, separating consecutive subsections with a blank line.
func (d *doc) subsection(first bool, name string, items []string) {
	if !first {
		d.sb.WriteString("\n")
	}
	fmt.Fprintf(&d.sb, "### %s\n", name)
	d.bullets(items)
}

// Render produces the markdown document for p. Empty or absent sections are omitted entirely.
func Render(p *plan.Plan) string {
	d := &doc{}
	d.sb.WriteString("# " + Title + "\n\n")

	d.text(HeadingOverview, p.Overview)
	d.text(HeadingTechStack, p.TechnologyStack)
	d.list(HeadingPrerequisites, p.Prerequisites)
	d.list(HeadingCoreFeatures, p.CoreFeatures)

	if len(p.DatabaseSchema) > 0 {
		d.section(HeadingDatabaseSchema)
		for i, table := range p.DatabaseSchema {
			cols := make([]string, 0, len(table.Columns))
			for _, col := range table.Columns {
				line := fmt.Sprintf("**%s**: %s", col.Name, col.Type)
				if col.Constraints != "" {
					line += fmt.Sprintf(" (%s)", col.Constraints)
				}
				cols = append(cols, line)
			}
			d.subsection(i == 0, table.Name, cols)
		}
	}

	if len(p.APIEndpoints) > 0 {
		endpoints := make([]string, 0, len(p.APIEndpoints))
		for _, ep := range p.APIEndpoints {
			endpoints = append(endpoints, fmt.Sprintf("`%s %s`", strings.ToUpper(ep.Method), ep.Path))
		}
		d.list(HeadingAPIEndpoints, endpoints)
	}

	d.list(HeadingUILayout, p.UILayout)
	d.list(HeadingDesignSystem, p.DesignSystem)

	if len(p.KeyInteractions) > 0 {
		d.section(HeadingKeyInteractions)
		for i, in := range p.KeyInteractions {
			d.subsection(i == 0, in.Feature, in.Workflow)
		}
	}

	if len(p.ImplementationSteps) > 0 {
		d.section(HeadingImplementationStep)
		for i, task := range p.ImplementationSteps {
			d.subsection(i == 0, task.Name, task.Steps)
		}
	}

	d.list(HeadingSuccessCriteria, p.SuccessCriteria)

	return d.sb.String()
}

// WriteFile renders p and writes it as UTF-8 to path, creating parent directories.
func WriteFile(path string, p *plan.Plan) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create spec directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(Render(p)), 0644); err != nil {
		return fmt.Errorf("failed to write spec %s: %w", path, err)
	}
	return nil
}
