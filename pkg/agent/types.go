package agent

import (
	"fmt"

	"forgeloop/pkg/templates"
	"forgeloop/pkg/tools"
)

// Role identifies which of the forgeloop agents a conversation belongs to.
type Role string

const (
	// RolePlanner interviews the user and submits the structured plan.
	RolePlanner Role = "planner"

	// RoleInitializer bootstraps the project skeleton from the rendered plan.
	RoleInitializer Role = "initializer"

	// RoleCoder implements one implementation task per session.
	RoleCoder Role = "coder"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	return r == RolePlanner || r == RoleInitializer || r == RoleCoder
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole parses a string into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid agent role: %s (must be 'planner', 'initializer' or 'coder')", s)
	}
	return r, nil
}

// ToolNames returns the role's allow-list, terminal tool included.
func (r Role) ToolNames() []string {
	switch r {
	case RolePlanner:
		return tools.PlanningTools
	case RoleInitializer:
		return tools.InitializerTools
	case RoleCoder:
		return tools.CodingTools
	default:
		return nil
	}
}

// SystemTemplate returns the role's system prompt template.
func (r Role) SystemTemplate() templates.StateTemplate {
	switch r {
	case RolePlanner:
		return templates.PlanningSystemTemplate
	case RoleInitializer:
		return templates.InitializerSystemTemplate
	default:
		return templates.CodingSystemTemplate
	}
}
