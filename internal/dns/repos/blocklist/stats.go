package blocklist

// CacheStats reports lightweight cache metrics.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // total cache hits since construction
	Misses    uint64 // total cache misses since construction
	Evictions uint64 // total evictions since construction
}

// RepoStats reports the shape of a built repository.
type RepoStats struct {
	Patterns int        // number of distinct patterns
	Lengths  int        // number of distinct pattern lengths probed per lookup
	Cache    CacheStats // decision cache metrics
}
