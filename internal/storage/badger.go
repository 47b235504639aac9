// Package storage adapts BadgerDB to the store.Storage contract: logical
// tables as key prefixes over one keyspace, MVCC transactions as
// snapshots, and Badger's WriteBatch as the bulk-load ingest path.
package storage

import (
	"bytes"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// BadgerStorage implements store.Storage using BadgerDB
type BadgerStorage struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStorage opens (or creates) an on-disk store at path.
func NewBadgerStorage(path string, logger *slog.Logger) (*BadgerStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	logger.Debug("opened badger storage", slog.String("path", path))
	return &BadgerStorage{db: db, logger: logger}, nil
}

// NewMemoryStorage opens a fully in-memory store.
func NewMemoryStorage(logger *slog.Logger) (*BadgerStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}
	return &BadgerStorage{db: db, logger: logger}, nil
}

// Begin starts a new transaction
func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	txn := s.db.NewTransaction(writable)
	return &BadgerTransaction{
		txn:      txn,
		writable: writable,
	}, nil
}

// BulkWriter returns a Badger write batch. Writes bypass conflict
// detection and become visible in chunks, so callers restrict bulk loads
// to empty stores or monotonic imports.
func (s *BadgerStorage) BulkWriter() (store.BulkWriter, error) {
	return &badgerBulkWriter{wb: s.db.NewWriteBatch()}, nil
}

// Close closes the storage
func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk
func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

// RunValueLogGC triggers one round of Badger value-log garbage collection.
func (s *BadgerStorage) RunValueLogGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite || err == badger.ErrInvalidRequest {
		return nil
	}
	return err
}

// BadgerTransaction implements store.Transaction using BadgerDB
type BadgerTransaction struct {
	txn      *badger.Txn
	writable bool
}

// Get retrieves a value by key
func (t *BadgerTransaction) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

// Set stores a key-value pair
func (t *BadgerTransaction) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Set(store.PrefixKey(table, key), value)
}

// Delete removes a key
func (t *BadgerTransaction) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Delete(store.PrefixKey(table, key))
}

// Scan iterates over the table's keys that begin with start (all keys when
// start is nil), stopping before end
func (t *BadgerTransaction) Scan(table store.Table, start, end []byte) (store.Iterator, error) {
	opts := badger.DefaultIteratorOptions
	tablePrefix := store.TablePrefix(table)

	var seekKey, scanPrefix []byte
	if start != nil {
		seekKey = store.PrefixKey(table, start)
		scanPrefix = seekKey
	} else {
		seekKey = tablePrefix
		scanPrefix = tablePrefix
	}
	opts.Prefix = scanPrefix

	var endKey []byte
	if end != nil {
		endKey = store.PrefixKey(table, end)
	}

	return &BadgerIterator{
		it:      t.txn.NewIterator(opts),
		prefix:  tablePrefix,
		endKey:  endKey,
		seekKey: seekKey,
	}, nil
}

// Commit commits the transaction
func (t *BadgerTransaction) Commit() error {
	err := t.txn.Commit()
	if err == badger.ErrConflict {
		return store.ErrConflict
	}
	return err
}

// Rollback rolls back the transaction
func (t *BadgerTransaction) Rollback() error {
	t.txn.Discard()
	return nil
}

// BadgerIterator implements store.Iterator using BadgerDB
type BadgerIterator struct {
	it       *badger.Iterator
	prefix   []byte // table prefix stripped from keys
	endKey   []byte
	seekKey  []byte
	started  bool
	hasValue bool
}

// Next advances to the next item
func (i *BadgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else if i.hasValue {
		i.it.Next()
	}

	if !i.it.Valid() {
		i.hasValue = false
		return false
	}
	if i.endKey != nil && bytes.Compare(i.it.Item().Key(), i.endKey) >= 0 {
		i.hasValue = false
		return false
	}
	i.hasValue = true
	return true
}

// Key returns the current key without the table prefix
func (i *BadgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}
	key := i.it.Item().Key()
	if len(key) > len(i.prefix) {
		return key[len(i.prefix):]
	}
	return nil
}

// Value returns the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, store.ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	return nil
}

type badgerBulkWriter struct {
	wb *badger.WriteBatch
}

func (b *badgerBulkWriter) Set(table store.Table, key, value []byte) error {
	return b.wb.Set(store.PrefixKey(table, key), value)
}

func (b *badgerBulkWriter) Flush() error {
	return b.wb.Flush()
}

func (b *badgerBulkWriter) Cancel() {
	b.wb.Cancel()
}
