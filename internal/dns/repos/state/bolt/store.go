// Package bolt implements state.Store on a bbolt file.
package bolt

import (
	"encoding/binary"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-shield/internal/dns/common/clock"
	"github.com/haukened/rr-shield/internal/dns/repos/state"
)

var (
	bucketPrefs = []byte("prefs")

	keyEnabled = []byte("service_enabled")
	keyBlocked = []byte("blocked_count")
	keyUpdated = []byte("updated")
)

// boltStore implements state.Store using bbolt.
type boltStore struct {
	db    *bbolt.DB
	clock clock.Clock
}

// New opens (or creates) a Bolt database at path and ensures the prefs
// bucket exists. clk stamps every write; nil means wall-clock time.
func New(path string, clk clock.Clock) (state.Store, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPrefs)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init state db %s: %w", path, err)
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// Load reads all preferences. Missing or malformed values read as zero.
func (s *boltStore) Load() (state.Prefs, error) {
	var p state.Prefs
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPrefs)
		if b == nil {
			return nil
		}
		if v := b.Get(keyEnabled); len(v) == 1 {
			p.ServiceEnabled = v[0] == 1
		}
		if v := b.Get(keyBlocked); len(v) == 8 {
			p.BlockedCount = binary.BigEndian.Uint64(v)
		}
		if v := b.Get(keyUpdated); len(v) == 8 {
			p.Updated = time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		}
		return nil
	})
	return p, err
}

func (s *boltStore) SetServiceEnabled(enabled bool) error {
	v := []byte{0}
	if enabled {
		v[0] = 1
	}
	return s.put(keyEnabled, v)
}

func (s *boltStore) SetBlockedCount(count uint64) error {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, count)
	return s.put(keyBlocked, v)
}

// put writes key and refreshes the updated timestamp in one transaction.
func (s *boltStore) put(key, value []byte) error {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(s.clock.Now().Unix()))
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketPrefs)
		if err != nil {
			return err
		}
		if err := b.Put(key, value); err != nil {
			return err
		}
		return b.Put(keyUpdated, ts)
	})
}

var _ state.Store = (*boltStore)(nil)
