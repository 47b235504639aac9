package store

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")

	// ErrConflict is returned by Commit when a concurrent transaction wrote
	// a key this transaction read. Callers retry.
	ErrConflict = errors.New("transaction conflict")
)

// Storage is the interface for the underlying ordered key-value store.
type Storage interface {
	// Begin starts a new transaction. Read-only transactions are snapshots:
	// they observe the state at Begin time regardless of later commits.
	Begin(writable bool) (Transaction, error)

	// BulkWriter returns a writer that streams key-value pairs into the
	// store without transactional conflict detection. Valid only while the
	// written key range does not overlap live writers.
	BulkWriter() (BulkWriter, error)

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Transaction represents a database transaction with snapshot isolation
type Transaction interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates in key order over the keys of the table that begin
	// with start, stopping before end.
	// If start is nil, every key of the table is visited.
	// If end is nil, scans until the last matching key.
	Scan(table Table, start, end []byte) (Iterator, error)

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// BulkWriter streams sorted or unsorted writes into the store outside of
// transaction conflict detection.
type BulkWriter interface {
	Set(table Table, key, value []byte) error
	Flush() error
	Cancel()
}

// Iterator iterates over key-value pairs
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical column family in the storage
type Table byte

const (
	// Dictionary: term hash -> refcount + canonical serialization
	TableID2Str Table = iota

	// Default graph indexes (3 permutations, graph component stripped)
	TableDSPO
	TableDPOS
	TableDOSP

	// Named graph indexes (6 permutations)
	TableSPOG
	TablePOSG
	TableOSPG
	TableGSPO
	TableGPOS
	TableGOSP

	// Graph names explicitly present, including empty graphs
	TableGraphs

	// Store metadata (format version, hash secret)
	TableMeta

	// Total number of tables
	TableCount
)

func (t Table) String() string {
	switch t {
	case TableID2Str:
		return "id2str"
	case TableDSPO:
		return "dspo"
	case TableDPOS:
		return "dpos"
	case TableDOSP:
		return "dosp"
	case TableSPOG:
		return "spog"
	case TablePOSG:
		return "posg"
	case TableOSPG:
		return "ospg"
	case TableGSPO:
		return "gspo"
	case TableGPOS:
		return "gpos"
	case TableGOSP:
		return "gosp"
	case TableGraphs:
		return "graphs"
	case TableMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// TablePrefix returns the byte prefix namespacing a table's keys.
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey adds a table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	prefix := TablePrefix(table)
	result := make([]byte, len(prefix)+len(key))
	copy(result, prefix)
	copy(result[len(prefix):], key)
	return result
}
