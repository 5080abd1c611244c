package domain

import (
	"fmt"
	"strings"
	"time"
)

// BlockRule is a single blocking pattern. A query name is blocked by the
// rule when it contains Pattern as a literal, case-insensitive substring;
// the pattern is not anchored to label boundaries.
//
// Notes:
// - Pattern is stored lowercased and trimmed.
// - Source identifies where the rule came from (embedded list name, file path).
// - AddedAt records when the rule was ingested.
type BlockRule struct {
	Pattern string
	Source  string
	AddedAt time.Time
}

// NewBlockRule constructs a BlockRule and validates its fields.
func NewBlockRule(pattern, source string, addedAt time.Time) (BlockRule, error) {
	r := BlockRule{
		Pattern: strings.ToLower(strings.TrimSpace(pattern)),
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return BlockRule{}, err
	}
	return r, nil
}

// Validate checks the BlockRule for required fields.
func (r BlockRule) Validate() error {
	if r.Pattern == "" {
		return fmt.Errorf("rule pattern must not be empty")
	}
	if strings.ContainsAny(r.Pattern, " \t\r\n") {
		return fmt.Errorf("rule pattern %q must not contain whitespace", r.Pattern)
	}
	if r.Pattern != strings.ToLower(r.Pattern) {
		return fmt.Errorf("rule pattern %q must be lowercase", r.Pattern)
	}
	if r.Source == "" {
		return fmt.Errorf("rule source must not be empty")
	}
	if r.AddedAt.IsZero() {
		return fmt.Errorf("rule addedAt must be set")
	}
	return nil
}
