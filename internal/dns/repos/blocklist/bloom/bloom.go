// Package bloom adapts bits-and-blooms Bloom filters to the blocklist
// repository's prefilter interface.
package bloom

import (
	bitsbloom "github.com/bits-and-blooms/bloom/v3"

	"github.com/haukened/rr-shield/internal/dns/repos/blocklist"
)

// defaultFPRate applies when the requested rate is outside (0, 1).
const defaultFPRate = 0.01

type factory struct{}

// NewFactory returns a BloomFactory that sizes filters with
// bits-and-blooms' own estimates.
func NewFactory() blocklist.BloomFactory { return factory{} }

// New constructs a BloomFilter for capacity keys at fpRate. A zero capacity
// is treated as one key.
func (factory) New(capacity uint64, fpRate float64) blocklist.BloomFilter {
	if capacity == 0 {
		capacity = 1
	}
	if !(fpRate > 0 && fpRate < 1) {
		fpRate = defaultFPRate
	}
	return &filter{bf: bitsbloom.NewWithEstimates(uint(capacity), fpRate)}
}

// filter carries no lock: keys are only added before the repository
// publishes it.
type filter struct {
	bf *bitsbloom.BloomFilter
}

func (f *filter) Add(key []byte)               { f.bf.Add(key) }
func (f *filter) MightContain(key []byte) bool { return f.bf.Test(key) }
