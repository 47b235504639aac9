package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tetrago/pkg/store"
)

func TestGetSetDelete(t *testing.T) {
	s, err := NewBadgerStorage(t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.Set(store.TableMeta, []byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())

	read, err := s.Begin(false)
	require.NoError(t, err)
	defer func() { _ = read.Rollback() }()

	value, err := read.Get(store.TableMeta, []byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	_, err = read.Get(store.TableMeta, []byte("missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	del, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, del.Delete(store.TableMeta, []byte("k")))
	require.NoError(t, del.Commit())
}

func TestTablesAreIsolated(t *testing.T) {
	s, err := NewMemoryStorage(nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	txn, err := s.Begin(true)
	require.NoError(t, err)
	require.NoError(t, txn.Set(store.TableDSPO, []byte("key"), nil))
	require.NoError(t, txn.Set(store.TableSPOG, []byte("key"), []byte("other")))
	require.NoError(t, txn.Commit())

	read, err := s.Begin(false)
	require.NoError(t, err)
	defer func() { _ = read.Rollback() }()

	it, err := read.Scan(store.TableDSPO, nil, nil)
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	count := 0
	for it.Next() {
		assert.Equal(t, []byte("key"), it.Key())
		count++
	}
	assert.Equal(t, 1, count, "scan must not cross table prefixes")
}

func TestScanRangeAndOrder(t *testing.T) {
	s, err := NewMemoryStorage(nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	txn, err := s.Begin(true)
	require.NoError(t, err)
	for _, key := range []string{"b", "a", "c"} {
		require.NoError(t, txn.Set(store.TableMeta, []byte(key), nil))
	}
	require.NoError(t, txn.Commit())

	read, err := s.Begin(false)
	require.NoError(t, err)
	defer func() { _ = read.Rollback() }()

	it, err := read.Scan(store.TableMeta, nil, []byte("c"))
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	assert.Equal(t, []string{"a", "b"}, keys, "keys stream in order, end exclusive")
}

func TestReadOnlyTransactionRejectsWrites(t *testing.T) {
	s, err := NewMemoryStorage(nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	txn, err := s.Begin(false)
	require.NoError(t, err)
	defer func() { _ = txn.Rollback() }()

	assert.ErrorIs(t, txn.Set(store.TableMeta, []byte("k"), nil), store.ErrTransactionRO)
	assert.ErrorIs(t, txn.Delete(store.TableMeta, []byte("k")), store.ErrTransactionRO)
}

func TestBulkWriter(t *testing.T) {
	s, err := NewBadgerStorage(t.TempDir(), nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	writer, err := s.BulkWriter()
	require.NoError(t, err)
	for i := byte(0); i < 10; i++ {
		require.NoError(t, writer.Set(store.TableDSPO, []byte{i}, nil))
	}
	require.NoError(t, writer.Flush())

	read, err := s.Begin(false)
	require.NoError(t, err)
	defer func() { _ = read.Rollback() }()

	it, err := read.Scan(store.TableDSPO, nil, nil)
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	count := 0
	for it.Next() {
		count++
	}
	assert.Equal(t, 10, count)
}
