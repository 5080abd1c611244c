// Package parsers turns blocklist sources into domain.BlockRule values.
package parsers

import (
	"bufio"
	"io"
	"time"

	logpkg "github.com/haukened/rr-shield/internal/dns/common/log"
	"github.com/haukened/rr-shield/internal/dns/domain"
)

// ParsePatternList parses a newline-delimited list of substring patterns.
//
// Behavior:
// - Supports comments starting with '#' (inline or whole-line)
// - Lowercases patterns and drops a leading "*." marker
// - Skips empty lines and patterns shorter than three bytes
// - De-duplicates while preserving first-seen order
// - Each rule is attributed to source and timestamped with now
func ParsePatternList(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	scanner := bufio.NewScanner(r)

	seen := make(map[string]struct{})
	out := make([]domain.BlockRule, 0, 32)
	logger.Debug(map[string]any{"source": source}, "parse_pattern_list_start")
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		s := stripComment(scanner.Text())
		if s == "" {
			continue
		}

		p := normalizePattern(s)
		if !isValidPattern(p) {
			logger.Debug(map[string]any{"line": lineNum, "raw": s}, "skip_invalid_pattern")
			continue
		}
		if _, ok := seen[p]; ok {
			logger.Debug(map[string]any{"line": lineNum, "pattern": p}, "skip_duplicate")
			continue
		}

		rule, err := domain.NewBlockRule(p, source, now)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "pattern": p, "error": err.Error()}, "skip_constructor_error")
			continue
		}
		out = append(out, rule)
		seen[p] = struct{}{}
	}

	if err := scanner.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "error": err.Error()}, "parse_pattern_list_scan_error")
		return nil, err
	}
	logger.Debug(map[string]any{"source": source, "count": len(out)}, "parse_pattern_list_done")
	return out, nil
}
