package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStoreRoundTrip(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	store, err := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "meters.db"))
	require.NoError(err)
	defer store.Close()

	// missing key
	payload, err := store.Load("energy_daily")
	require.NoError(err)
	assert.Nil(payload)

	// save and load
	require.NoError(store.Save("energy_daily", []byte(`{"native_value":"1"}`)))
	payload, err = store.Load("energy_daily")
	require.NoError(err)
	assert.Equal(`{"native_value":"1"}`, string(payload))

	// overwrite
	require.NoError(store.Save("energy_daily", []byte(`{"native_value":"2"}`)))
	payload, err = store.Load("energy_daily")
	require.NoError(err)
	assert.Equal(`{"native_value":"2"}`, string(payload))
}

func TestSnapshotStoreIsolatesKeys(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	store, err := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "meters.db"))
	require.NoError(err)
	defer store.Close()

	require.NoError(store.Save("a", []byte("one")))
	require.NoError(store.Save("a/select", []byte("peak")))

	payload, err := store.Load("a")
	require.NoError(err)
	assert.Equal("one", string(payload))

	payload, err = store.Load("a/select")
	require.NoError(err)
	assert.Equal("peak", string(payload))
}

func TestSnapshotStoreReopen(t *testing.T) {

	assert := assert.New(t)
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "meters.db")

	store, err := NewSQLiteSnapshotStore(path)
	require.NoError(err)
	require.NoError(store.Save("a", []byte("persisted")))
	require.NoError(store.Close())

	store, err = NewSQLiteSnapshotStore(path)
	require.NoError(err)
	defer store.Close()

	payload, err := store.Load("a")
	require.NoError(err)
	assert.Equal("persisted", string(payload))
}
