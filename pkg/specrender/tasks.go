package specrender

import (
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"forgeloop/pkg/plan"
)

// ParseTasks extracts the implementation tasks from a rendered specification: every "###"
// heading under "## Implementation Steps" and the bullets that follow it.
func ParseTasks(source []byte) []plan.Task {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var (
		tasks   []plan.Task
		inSteps bool
		current *plan.Task
	)

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		switch n := node.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(sourceText(n, source))
			switch {
			case n.Level <= 2:
				inSteps = n.Level == 2 && strings.EqualFold(title, HeadingImplementationStep)
				current = nil
			case n.Level == 3 && inSteps:
				tasks = append(tasks, plan.Task{Name: title})
				current = &tasks[len(tasks)-1]
			}
		case *ast.List:
			if current == nil {
				continue
			}
			for item := n.FirstChild(); item != nil; item = item.NextSibling() {
				if step := strings.TrimSpace(sourceText(item, source)); step != "" {
					current.Steps = append(current.Steps, step)
				}
			}
		}
	}

	return tasks
}

// ParseTasksFile reads path and extracts its implementation tasks.
func ParseTasksFile(path string) ([]plan.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec %s: %w", path, err)
	}
	return ParseTasks(data), nil
}

// sourceText returns the raw markdown of every block under node, one space between lines, so
// inline markup such as code spans or HTML reaches the coding agent unchanged.
func sourceText(node ast.Node, source []byte) string {
	var parts []string
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		if n.Type() == ast.TypeBlock {
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				if line := strings.TrimSpace(string(seg.Value(source))); line != "" {
					parts = append(parts, line)
				}
			}
		}
		for child := n.FirstChild(); child != nil; child = child.NextSibling() {
			walk(child)
		}
	}
	walk(node)
	return strings.Join(parts, " ")
}
