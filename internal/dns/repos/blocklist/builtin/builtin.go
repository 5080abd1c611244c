// Package builtin carries the blocklist compiled into the binary.
package builtin

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/haukened/rr-shield/internal/dns/common/log"
	"github.com/haukened/rr-shield/internal/dns/domain"
	"github.com/haukened/rr-shield/internal/dns/repos/blocklist/parsers"
)

// Source is the provenance recorded on every built-in rule.
const Source = "builtin"

//go:embed default.list
var defaultList string

// Rules parses the embedded list.
func Rules(logger log.Logger, now time.Time) ([]domain.BlockRule, error) {
	rules, err := parsers.ParsePatternList(strings.NewReader(defaultList), Source, logger, now)
	if err != nil {
		return nil, fmt.Errorf("parse built-in blocklist: %w", err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("built-in blocklist is empty")
	}
	return rules, nil
}
