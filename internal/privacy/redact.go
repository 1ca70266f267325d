// Package privacy masks configured patterns before post text is sent to a
// summarization service.
package privacy

import (
	"fmt"
	"regexp"

	"github.com/samber/lo"
)

const redactedPlaceholder = "[REDACTED]"

// DefaultPatterns cover secrets that occasionally get pasted into posts.
var DefaultPatterns = []string{
	`(?i)\b(?:api[_-]?key|token|secret|password)\s*[:=]\s*\S+`,
	`\bsk-[A-Za-z0-9_-]{20,}\b`,
	`\bgh[pousr]_[A-Za-z0-9]{36}\b`,
	`\bAKIA[0-9A-Z]{16}\b`,
}

// Redactor replaces matches of its patterns with [REDACTED]. A nil
// Redactor leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor compiles patterns; empty entries are ignored.
func NewRedactor(patterns []string) (*Redactor, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range lo.Compact(patterns) {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Redactor{patterns: compiled}, nil
}

// Apply returns text with every match replaced.
func (r *Redactor) Apply(text string) string {
	if r == nil {
		return text
	}
	for _, re := range r.patterns {
		text = re.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// Len reports how many patterns are active.
func (r *Redactor) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}
