// Package state defines the persisted preferences shared between the
// interception core and the host glue.
package state

import "time"

// Prefs is a snapshot of every persisted preference. The zero value is what
// a fresh install reports: disabled, nothing blocked.
type Prefs struct {
	ServiceEnabled bool
	BlockedCount   uint64
	Updated        time.Time // zero until the first write
}

// Store persists preferences across process restarts. Implementations must
// tolerate missing data and report zero values for it.
type Store interface {
	Load() (Prefs, error)
	SetServiceEnabled(enabled bool) error
	SetBlockedCount(count uint64) error
	Close() error
}
