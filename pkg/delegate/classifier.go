package delegate

import (
	"strings"

	"github.com/perch-systems/offload/pkg/task"
)

// classRule maps keyword patterns to a complexity class. Rules are
// an ordered list: the first rule with a matching pattern wins, so
// more specific classes come before broader ones.
type classRule struct {
	class    task.Complexity
	patterns []string
}

// classRules is checked in order against the task type and
// description. Strategic before creative so "architecture design"
// lands strategic, mechanical before analytical so "file search"
// stays mechanical.
var classRules = []classRule{
	{task.Strategic, []string{
		"architect", "architecture", "system design", "design", "roadmap",
		"strategy", "planning", "migration plan",
	}},
	{task.Creative, []string{
		"create", "generate", "write", "compose", "draft", "brainstorm",
		"invent", "novel",
	}},
	{task.Mechanical, []string{
		"search", "list", "format", "rename", "count", "find", "grep",
		"sort", "lint", "extract", "file_",
	}},
	{task.Analytical, []string{
		"analysis", "analyze", "analyse", "review", "debug", "audit",
		"scan", "investigate", "profile", "trace", "inspect",
	}},
}

// Classify assigns a complexity class to a task. It is a fallback,
// not an override: a pre-assigned class is returned unchanged. The
// keyword-derived class escalates one step when the token estimate
// exceeds escalationTokens, since large-context reasoning is rarely
// purely mechanical. Unrecognized types default to analytical.
func Classify(req *task.Request, escalationTokens int) task.Complexity {
	if req.Complexity != task.ComplexityUnknown {
		return req.Complexity
	}

	text := strings.ToLower(req.Type + " " + req.Description)

	class := task.Analytical
	for _, rule := range classRules {
		if matchesAny(text, rule.patterns) {
			class = rule.class
			break
		}
	}

	if escalationTokens > 0 && req.EstimatedTokens >= escalationTokens {
		class = class.Escalate()
	}
	return class
}

func matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
