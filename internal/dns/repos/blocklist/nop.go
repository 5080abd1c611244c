package blocklist

import "github.com/haukened/rr-shield/internal/dns/domain"

// NoopBlocklist never blocks anything. It lets the interception loop run as
// a pure pass-through.
type NoopBlocklist struct{}

func (NoopBlocklist) IsBlocked(string) bool { return false }

func (NoopBlocklist) Decide(string) domain.BlockDecision { return domain.EmptyDecision() }

func (NoopBlocklist) Patterns() []string { return nil }

var _ Blocklist = NoopBlocklist{}
