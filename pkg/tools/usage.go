package tools

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var claudeVersion = regexp.MustCompile(`claude-\w+-(\d+)-(\d+)`)

// ShouldIncludeUsage reports whether tool results should carry a token-usage warning for model.
// Claude 4.5 and later track their own context budget, so they are excluded.
func ShouldIncludeUsage(model string) bool {
	name := strings.ToLower(model)
	if !strings.Contains(name, "claude") {
		return true
	}
	m := claudeVersion.FindStringSubmatch(name)
	if m == nil {
		return true
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	return !(major > 4 || (major == 4 && minor >= 5))
}

// UsageWarning is the prefix placed before a tool result.
func UsageWarning(totalTokens int) string {
	return fmt.Sprintf("<system_warning>Token usage: %d total tokens</system_warning>\n", totalTokens)
}
