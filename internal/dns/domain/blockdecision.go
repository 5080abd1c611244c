package domain

import "fmt"

// Verdict is what the interception loop does with a packet.
type Verdict uint8

const (
	// Forward writes the packet back to the virtual interface unchanged.
	Forward Verdict = iota
	// Drop discards the packet without a reply.
	Drop
)

// String returns a stable lowercase representation, suitable as a metric label.
func (v Verdict) String() string {
	switch v {
	case Forward:
		return "forward"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("Verdict(%d)", v)
	}
}

// BlockDecision represents the outcome of evaluating a query name against
// the blocklist. Pure value type.
type BlockDecision struct {
	Blocked     bool   // true if any rule matched
	MatchedRule string // the pattern that matched
	Source      string // provenance of the matched rule
}

// IsBlocked is a convenience accessor.
func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// Verdict maps the decision onto a packet verdict.
func (d BlockDecision) Verdict() Verdict {
	if d.Blocked {
		return Drop
	}
	return Forward
}

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() BlockDecision { return BlockDecision{} }

// MatchDecision returns a blocked decision attributed to rule.
func MatchDecision(rule BlockRule) BlockDecision {
	return BlockDecision{Blocked: true, MatchedRule: rule.Pattern, Source: rule.Source}
}
