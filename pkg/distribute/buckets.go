package distribute

import "strings"

// bucketRule maps keyword patterns to a coarse task-type bucket.
// Rules are an ordered list: first match wins, so high-stakes
// buckets (security) come before broad ones.
type bucketRule struct {
	bucket   string
	patterns []string
}

var bucketRules = []bucketRule{
	{"security", []string{"security", "vulnerability", "cve", "exploit", "injection", "sanitize"}},
	{"optimization", []string{"optimize", "optimization", "performance", "speed up", "profil"}},
	{"documentation", []string{"document", "docs", "readme", "changelog", "docstring", "comment"}},
	{"formatting", []string{"format", "indent", "lint", "style", "whitespace", "prettify"}},
	{"data_transformation", []string{"convert", "transform", "parse", "migrate data", "serialize", "csv", "json to"}},
	{"simple_analysis", []string{"analyze", "analysis", "summarize", "count", "statistics", "metrics"}},
}

// baseImportance is the fixed per-bucket importance table. Buckets
// absent from the table score as general work.
var baseImportance = map[string]float64{
	"security":            0.9,
	"optimization":        0.7,
	"general":             0.5,
	"simple_analysis":     0.4,
	"data_transformation": 0.3,
	"documentation":       0.2,
	"formatting":          0.2,
}

// classifyBucket assigns a task-type bucket from the task text.
// Unmatched text is general.
func classifyBucket(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range bucketRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.bucket
			}
		}
	}
	return "general"
}
