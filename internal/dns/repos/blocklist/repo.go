package blocklist

import (
	"slices"
	"strings"

	"github.com/haukened/rr-shield/internal/dns/domain"
)

// Repository implements Blocklist with literal substring semantics.
//
// Lookups lowercase the name, then slide a window of every distinct pattern
// length across it. Each window is first tested against a Bloom filter
// holding all patterns and only confirmed against the exact rule map on a
// maybe-positive. Final decisions are memoized in the DecisionCache.
//
// Everything except the cache is immutable after NewRepository returns, so
// lookups take no locks.
type Repository struct {
	rules   map[string]domain.BlockRule
	order   []string
	lengths []int
	bloom   BloomFilter
	cache   DecisionCache
}

// NewRepository builds a Blocklist from rules. Duplicate patterns keep the
// first rule seen. fpRate is the target false-positive rate for the Bloom
// filter.
func NewRepository(rules []domain.BlockRule, cache DecisionCache, factory BloomFactory, fpRate float64) *Repository {
	r := &Repository{
		rules: make(map[string]domain.BlockRule, len(rules)),
		cache: cache,
	}
	for _, ru := range rules {
		if ru.Pattern == "" {
			continue
		}
		if _, dup := r.rules[ru.Pattern]; dup {
			continue
		}
		r.rules[ru.Pattern] = ru
		r.order = append(r.order, ru.Pattern)
		if !slices.Contains(r.lengths, len(ru.Pattern)) {
			r.lengths = append(r.lengths, len(ru.Pattern))
		}
	}
	slices.Sort(r.lengths)

	if factory != nil {
		bf := factory.New(uint64(len(r.order)), fpRate)
		for _, p := range r.order {
			bf.Add([]byte(p))
		}
		r.bloom = bf
	}
	return r
}

// IsBlocked reports whether name contains any configured pattern.
func (r *Repository) IsBlocked(name string) bool {
	return r.Decide(name).Blocked
}

// Decide returns a BlockDecision for name.
func (r *Repository) Decide(name string) domain.BlockDecision {
	if name == "" || len(r.order) == 0 {
		return domain.EmptyDecision()
	}
	key := strings.ToLower(name)
	if r.cache != nil {
		if d, ok := r.cache.Get(key); ok {
			return d
		}
	}
	dec := r.scan(key)
	if r.cache != nil {
		r.cache.Put(key, dec)
	}
	return dec
}

// Patterns returns a copy of the active patterns in load order.
func (r *Repository) Patterns() []string {
	return slices.Clone(r.order)
}

// Stats reports repository shape and cache metrics.
func (r *Repository) Stats() RepoStats {
	st := RepoStats{Patterns: len(r.order), Lengths: len(r.lengths)}
	if r.cache != nil {
		st.Cache = r.cache.Stats()
	}
	return st
}

// scan finds the first window of key that is a configured pattern, trying
// shorter patterns first.
func (r *Repository) scan(key string) domain.BlockDecision {
	for _, n := range r.lengths {
		if n > len(key) {
			break
		}
		for i := 0; i+n <= len(key); i++ {
			w := key[i : i+n]
			if r.bloom != nil && !r.bloom.MightContain([]byte(w)) {
				continue
			}
			if rule, ok := r.rules[w]; ok {
				return domain.MatchDecision(rule)
			}
		}
	}
	return domain.EmptyDecision()
}

var _ Blocklist = (*Repository)(nil)
