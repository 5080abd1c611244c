package blocklist

import "github.com/haukened/rr-shield/internal/dns/domain"

// BloomFilter is the minimal interface the repository needs from a Bloom
// filter. Add is only called while the repository is being built.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds a BloomFilter sized for capacity keys at fpRate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache memoizes block decisions by lowercased query name.
// Implementations must be safe for concurrent use.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() CacheStats
}

// Blocklist is the read-only membership test consumed by the interception
// loop.
type Blocklist interface {
	// IsBlocked reports whether name contains any blocked pattern,
	// ignoring case. The empty name is never blocked.
	IsBlocked(name string) bool
	// Decide is IsBlocked with the matched rule attached.
	Decide(name string) domain.BlockDecision
	// Patterns lists the active patterns in load order.
	Patterns() []string
}
