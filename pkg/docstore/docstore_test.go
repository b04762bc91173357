package docstore

import (
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestProbeLeavesNoKeys(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Probe(db))

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(ProbePrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProbeOnClosedStoreFails(t *testing.T) {
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.Error(t, Probe(db))
}

func TestOpenOnDisk(t *testing.T) {
	db, err := Open(Config{Path: t.TempDir()})
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, Probe(db))
}
