// Package store implements the embeddable RDF quad store: a term
// dictionary and six covering quad indexes over an ordered key-value
// engine, with snapshot reads and atomic write batches.
package store

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aleksaelezovic/tetrago/internal/encoding"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

var (
	// ErrHashCollision is returned when two distinct terms hash to the
	// same dictionary key.
	ErrHashCollision = encoding.ErrHashCollision

	// ErrCorruptedTerm is returned when a hashed EID has no dictionary
	// row.
	ErrCorruptedTerm = encoding.ErrCorruptedTerm
)

var (
	metaKeySecret  = []byte("secret")
	metaKeyVersion = []byte("version")
)

const formatVersion = 1

// Store is an RDF quad store with snapshot reads and atomic writes.
// It is safe for concurrent use; writers serialize at commit time.
type Store struct {
	storage Storage
	encoder *encoding.Encoder
	decoder *encoding.Decoder
	logger  *slog.Logger
}

// NewStore wires a Store over an opened Storage backend, minting the
// per-store hash secret on first use.
func NewStore(storage Storage, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret, err := loadOrCreateSecret(storage)
	if err != nil {
		return nil, err
	}
	return &Store{
		storage: storage,
		encoder: encoding.NewEncoder(secret),
		decoder: encoding.NewDecoder(),
		logger:  logger,
	}, nil
}

// loadOrCreateSecret reads the per-store hash key from the meta table, or
// mints one from crypto/rand on first open.
func loadOrCreateSecret(storage Storage) (uint64, error) {
	txn, err := storage.Begin(true)
	if err != nil {
		return 0, err
	}
	defer func() { _ = txn.Rollback() }()

	existing, err := txn.Get(TableMeta, metaKeySecret)
	if err == nil {
		if len(existing) != 8 {
			return 0, fmt.Errorf("corrupted store metadata: secret has %d bytes", len(existing))
		}
		return binary.BigEndian.Uint64(existing), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to generate store secret: %w", err)
	}
	if err := txn.Set(TableMeta, metaKeySecret, buf[:]); err != nil {
		return 0, err
	}
	var version [8]byte
	binary.BigEndian.PutUint64(version[:], formatVersion)
	if err := txn.Set(TableMeta, metaKeyVersion, version[:]); err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Close closes the store and its storage.
func (s *Store) Close() error {
	return s.storage.Close()
}

// Encoder exposes the term encoder keyed with this store's secret.
func (s *Store) Encoder() *encoding.Encoder {
	return s.encoder
}

// Snapshot returns a read-only view of the store at the current point in
// time. The caller must Close it to release the underlying transaction.
func (s *Store) Snapshot() (*Snapshot, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		store:    s,
		txn:      txn,
		strCache: make(map[[16]byte][]byte),
	}, nil
}

// Transaction runs fn inside one atomic write batch. Reads through
// Txn.Snapshot observe the state at transaction start, never the batch's
// own writes; that is what SPARQL update semantics require. The batch commits
// when fn returns nil and is discarded otherwise.
func (s *Store) Transaction(fn func(*Txn) error) error {
	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}
	defer snapshot.Close()

	write, err := s.storage.Begin(true)
	if err != nil {
		return err
	}

	txn := &Txn{store: s, snapshot: snapshot, write: write}
	if err := fn(txn); err != nil {
		_ = write.Rollback()
		return err
	}
	return write.Commit()
}

// Insert adds a quad. It returns true when the quad was not present
// before (set semantics: duplicate inserts are no-ops).
func (s *Store) Insert(quad *rdf.Quad) (bool, error) {
	var inserted bool
	err := s.Transaction(func(txn *Txn) error {
		var err error
		inserted, err = txn.Insert(quad)
		return err
	})
	return inserted, err
}

// Remove deletes a quad. It returns true when the quad was present.
func (s *Store) Remove(quad *rdf.Quad) (bool, error) {
	var removed bool
	err := s.Transaction(func(txn *Txn) error {
		var err error
		removed, err = txn.Remove(quad)
		return err
	})
	return removed, err
}

// Contains reports whether the quad is in the store.
func (s *Store) Contains(quad *rdf.Quad) (bool, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return false, err
	}
	defer snapshot.Close()
	return snapshot.Contains(quad)
}

// Len returns the number of quads in the store.
func (s *Store) Len() (int, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return 0, err
	}
	defer snapshot.Close()
	return snapshot.Len()
}

// IsEmpty reports whether the store holds no quads.
func (s *Store) IsEmpty() (bool, error) {
	n, err := s.Len()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// QuadsForPattern matches a pattern against a fresh snapshot. The
// returned iterator owns the snapshot and releases it on Close.
func (s *Store) QuadsForPattern(pattern *Pattern) (QuadIterator, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	it, err := snapshot.QuadsForPattern(pattern)
	if err != nil {
		snapshot.Close()
		return nil, err
	}
	return &snapshotOwningIterator{QuadIterator: it, snapshot: snapshot}, nil
}

// Iter iterates over every quad in the store.
func (s *Store) Iter() (QuadIterator, error) {
	return s.QuadsForPattern(&Pattern{})
}

// NamedGraphs lists the named graphs present in the store, including
// empty graphs created explicitly.
func (s *Store) NamedGraphs() ([]rdf.Term, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	defer snapshot.Close()
	return snapshot.NamedGraphs()
}

// ContainsNamedGraph reports whether the graph name is present.
func (s *Store) ContainsNamedGraph(graph rdf.Term) (bool, error) {
	snapshot, err := s.Snapshot()
	if err != nil {
		return false, err
	}
	defer snapshot.Close()
	return snapshot.ContainsNamedGraph(graph)
}

// InsertNamedGraph creates an empty named graph. Returns true when the
// graph did not exist before.
func (s *Store) InsertNamedGraph(graph rdf.Term) (bool, error) {
	var created bool
	err := s.Transaction(func(txn *Txn) error {
		var err error
		created, err = txn.CreateGraph(graph)
		return err
	})
	return created, err
}

// ClearGraph removes all quads in a graph but keeps the graph name.
func (s *Store) ClearGraph(graph rdf.Term) error {
	return s.Transaction(func(txn *Txn) error {
		return txn.ClearGraph(graph)
	})
}

// RemoveNamedGraph drops a named graph: its quads and its name. Returns
// true when the graph existed.
func (s *Store) RemoveNamedGraph(graph rdf.Term) (bool, error) {
	var existed bool
	err := s.Transaction(func(txn *Txn) error {
		var err error
		existed, err = txn.DropGraph(graph)
		return err
	})
	return existed, err
}

// Clear removes every quad and every named graph.
func (s *Store) Clear() error {
	return s.Transaction(func(txn *Txn) error {
		return txn.ClearAll()
	})
}

// BulkLoad streams quads through the storage engine's batched ingest
// path, bypassing transaction conflict detection. Valid for loading into
// an empty store or for monotonic imports with no concurrent writers;
// otherwise use Transaction.
func (s *Store) BulkLoad(quads []*rdf.Quad) error {
	writer, err := s.storage.BulkWriter()
	if err != nil {
		return err
	}

	// Dictionary refcounts are accumulated in memory and written once
	refcounts := make(map[[16]byte]uint64)
	payloads := make(map[[16]byte][]byte)
	graphsSeen := make(map[encoding.EncodedTerm]bool)

	for i, quad := range quads {
		if err := quad.Validate(); err != nil {
			writer.Cancel()
			return err
		}
		eids, entries, err := s.encodeQuad(quad)
		if err != nil {
			writer.Cancel()
			return err
		}
		for _, entry := range entries {
			var key [16]byte
			copy(key[:], entry.EID.DictKey())
			refcounts[key]++
			payloads[key] = entry.Payload
		}
		if err := writeIndexRows(writer.Set, eids); err != nil {
			writer.Cancel()
			return err
		}
		if eids[3].Tag() != encoding.TagDefaultGraph && !graphsSeen[eids[3]] {
			graphsSeen[eids[3]] = true
			if err := writer.Set(TableGraphs, eids[3][:], nil); err != nil {
				writer.Cancel()
				return err
			}
		}
		if (i+1)%100000 == 0 {
			s.logger.Info("bulk load progress", slog.Int("quads", i+1))
		}
	}

	for key, count := range refcounts {
		value := encoding.EncodeDictValue(count, payloads[key])
		if err := writer.Set(TableID2Str, key[:], value); err != nil {
			writer.Cancel()
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("bulk load flush failed: %w", err)
	}
	s.logger.Info("bulk load complete", slog.Int("quads", len(quads)))
	return nil
}

// CompactDictionary removes dictionary rows whose refcount dropped to
// zero and triggers a round of value-log garbage collection when the
// backend supports it.
func (s *Store) CompactDictionary() (int, error) {
	var keys [][]byte
	snapshot, err := s.Snapshot()
	if err != nil {
		return 0, err
	}
	it, err := snapshot.txn.Scan(TableID2Str, nil, nil)
	if err != nil {
		snapshot.Close()
		return 0, err
	}
	for it.Next() {
		value, err := it.Value()
		if err != nil {
			_ = it.Close()
			snapshot.Close()
			return 0, err
		}
		count, _, err := encoding.DecodeDictValue(value)
		if err != nil {
			_ = it.Close()
			snapshot.Close()
			return 0, err
		}
		if count == 0 {
			keys = append(keys, append([]byte(nil), it.Key()...))
		}
	}
	_ = it.Close()
	snapshot.Close()

	if len(keys) > 0 {
		txn, err := s.storage.Begin(true)
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			if err := txn.Delete(TableID2Str, key); err != nil {
				_ = txn.Rollback()
				return 0, err
			}
		}
		if err := txn.Commit(); err != nil {
			return 0, err
		}
	}

	if gc, ok := s.storage.(interface{ RunValueLogGC() error }); ok {
		if err := gc.RunValueLogGC(); err != nil {
			return len(keys), err
		}
	}
	s.logger.Debug("dictionary compaction complete", slog.Int("removed", len(keys)))
	return len(keys), nil
}

// encodeQuad encodes the four positions of a quad. eids is in SPOG order.
func (s *Store) encodeQuad(quad *rdf.Quad) ([4]encoding.EncodedTerm, []encoding.DictEntry, error) {
	var eids [4]encoding.EncodedTerm
	var entries []encoding.DictEntry

	for i, term := range []rdf.Term{quad.Subject, quad.Predicate, quad.Object, quad.Graph} {
		enc, termEntries, err := s.encoder.EncodeTerm(term)
		if err != nil {
			return eids, nil, fmt.Errorf("failed to encode quad position %d: %w", i, err)
		}
		eids[i] = enc
		entries = append(entries, termEntries...)
	}
	return eids, entries, nil
}

// writeIndexRows writes one row per covering index for the quad. Default
// graph quads live in the three d-indexes; named graph quads in the six
// g-indexes.
func writeIndexRows(set func(Table, []byte, []byte) error, eids [4]encoding.EncodedTerm) error {
	subj, pred, obj, graph := eids[0], eids[1], eids[2], eids[3]
	if graph.Tag() == encoding.TagDefaultGraph {
		if err := set(TableDSPO, encoding.EncodeQuadKey(subj, pred, obj), nil); err != nil {
			return err
		}
		if err := set(TableDPOS, encoding.EncodeQuadKey(pred, obj, subj), nil); err != nil {
			return err
		}
		return set(TableDOSP, encoding.EncodeQuadKey(obj, subj, pred), nil)
	}
	if err := set(TableSPOG, encoding.EncodeQuadKey(subj, pred, obj, graph), nil); err != nil {
		return err
	}
	if err := set(TablePOSG, encoding.EncodeQuadKey(pred, obj, subj, graph), nil); err != nil {
		return err
	}
	if err := set(TableOSPG, encoding.EncodeQuadKey(obj, subj, pred, graph), nil); err != nil {
		return err
	}
	if err := set(TableGSPO, encoding.EncodeQuadKey(graph, subj, pred, obj), nil); err != nil {
		return err
	}
	if err := set(TableGPOS, encoding.EncodeQuadKey(graph, pred, obj, subj), nil); err != nil {
		return err
	}
	return set(TableGOSP, encoding.EncodeQuadKey(graph, obj, subj, pred), nil)
}

// deleteIndexRows removes the index rows of a quad.
func deleteIndexRows(txn Transaction, eids [4]encoding.EncodedTerm) error {
	subj, pred, obj, graph := eids[0], eids[1], eids[2], eids[3]
	if graph.Tag() == encoding.TagDefaultGraph {
		if err := txn.Delete(TableDSPO, encoding.EncodeQuadKey(subj, pred, obj)); err != nil {
			return err
		}
		if err := txn.Delete(TableDPOS, encoding.EncodeQuadKey(pred, obj, subj)); err != nil {
			return err
		}
		return txn.Delete(TableDOSP, encoding.EncodeQuadKey(obj, subj, pred))
	}
	if err := txn.Delete(TableSPOG, encoding.EncodeQuadKey(subj, pred, obj, graph)); err != nil {
		return err
	}
	if err := txn.Delete(TablePOSG, encoding.EncodeQuadKey(pred, obj, subj, graph)); err != nil {
		return err
	}
	if err := txn.Delete(TableOSPG, encoding.EncodeQuadKey(obj, subj, pred, graph)); err != nil {
		return err
	}
	if err := txn.Delete(TableGSPO, encoding.EncodeQuadKey(graph, subj, pred, obj)); err != nil {
		return err
	}
	if err := txn.Delete(TableGPOS, encoding.EncodeQuadKey(graph, pred, obj, subj)); err != nil {
		return err
	}
	return txn.Delete(TableGOSP, encoding.EncodeQuadKey(graph, obj, subj, pred))
}

type snapshotOwningIterator struct {
	QuadIterator
	snapshot *Snapshot
}

func (it *snapshotOwningIterator) Close() error {
	err := it.QuadIterator.Close()
	it.snapshot.Close()
	return err
}
