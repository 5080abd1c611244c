package bolt

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-shield/internal/dns/common/clock"
	"github.com/haukened/rr-shield/internal/dns/repos/state"
)

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.db")
}

func TestBoltStore_DefaultsWhenEmpty(t *testing.T) {
	st, err := New(tempDB(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p, err := st.Load()
	require.NoError(t, err)
	assert.Equal(t, state.Prefs{}, p)
}

func TestBoltStore_RoundTripAndPersistence(t *testing.T) {
	path := tempDB(t)
	clk := clock.NewMockClock(time.Unix(1723550000, 0))

	st, err := New(path, clk)
	require.NoError(t, err)
	require.NoError(t, st.SetServiceEnabled(true))
	clk.Advance(time.Minute)
	require.NoError(t, st.SetBlockedCount(42))
	require.NoError(t, st.Close())

	reopened, err := New(path, clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	p, err := reopened.Load()
	require.NoError(t, err)
	assert.True(t, p.ServiceEnabled)
	assert.Equal(t, uint64(42), p.BlockedCount)
	assert.Equal(t, time.Unix(1723550060, 0), p.Updated)

	require.NoError(t, reopened.SetServiceEnabled(false))
	p, err = reopened.Load()
	require.NoError(t, err)
	assert.False(t, p.ServiceEnabled)
	assert.Equal(t, uint64(42), p.BlockedCount)
}

func TestBoltStore_MalformedValuesReadAsZero(t *testing.T) {
	path := tempDB(t)
	db, err := bbolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	require.NoError(t, db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketPrefs)
		if err != nil {
			return err
		}
		if err := b.Put(keyEnabled, []byte("yes")); err != nil {
			return err
		}
		return b.Put(keyBlocked, []byte{1, 2, 3})
	}))
	require.NoError(t, db.Close())

	st, err := New(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	p, err := st.Load()
	require.NoError(t, err)
	assert.False(t, p.ServiceEnabled)
	assert.Zero(t, p.BlockedCount)
}

func TestBoltStore_OpenError(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "dir", "state.db"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open state db")
}
