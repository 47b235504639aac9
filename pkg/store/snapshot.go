package store

import (
	"errors"
	"fmt"

	"github.com/aleksaelezovic/tetrago/internal/encoding"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// Snapshot is a read-only view of the store at one point in time.
// Readers proceed against snapshots unblocked by writers; a snapshot
// never observes commits made after its creation.
type Snapshot struct {
	store    *Store
	txn      Transaction
	strCache map[[16]byte][]byte
	closed   bool
}

// Close releases the snapshot's underlying transaction. Safe to call more
// than once.
func (sn *Snapshot) Close() {
	if sn.closed {
		return
	}
	sn.closed = true
	_ = sn.txn.Rollback()
}

// LookupString resolves a dictionary key to its canonical term payload,
// implementing encoding.StrLookup.
func (sn *Snapshot) LookupString(key []byte) ([]byte, error) {
	var cacheKey [16]byte
	copy(cacheKey[:], key)
	if cached, ok := sn.strCache[cacheKey]; ok {
		return cached, nil
	}

	value, err := sn.txn.Get(TableID2Str, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w", encoding.ErrCorruptedTerm)
		}
		return nil, err
	}
	_, payload, err := encoding.DecodeDictValue(value)
	if err != nil {
		return nil, err
	}
	sn.strCache[cacheKey] = payload
	return payload, nil
}

// DecodeTerm decodes an EID through this snapshot's dictionary view.
func (sn *Snapshot) DecodeTerm(enc encoding.EncodedTerm) (rdf.Term, error) {
	return sn.store.decoder.DecodeTerm(enc, sn)
}

// Contains reports whether the quad is visible in this snapshot.
func (sn *Snapshot) Contains(quad *rdf.Quad) (bool, error) {
	eids, _, err := sn.store.encodeQuad(quad)
	if err != nil {
		return false, err
	}
	return containsEncoded(sn.txn, eids)
}

func containsEncoded(txn Transaction, eids [4]encoding.EncodedTerm) (bool, error) {
	var table Table
	var key []byte
	if eids[3].Tag() == encoding.TagDefaultGraph {
		table = TableDSPO
		key = encoding.EncodeQuadKey(eids[0], eids[1], eids[2])
	} else {
		table = TableSPOG
		key = encoding.EncodeQuadKey(eids[0], eids[1], eids[2], eids[3])
	}
	_, err := txn.Get(table, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Len counts the quads visible in this snapshot.
func (sn *Snapshot) Len() (int, error) {
	count := 0
	for _, table := range []Table{TableDSPO, TableSPOG} {
		it, err := sn.txn.Scan(table, nil, nil)
		if err != nil {
			return 0, err
		}
		for it.Next() {
			count++
		}
		if err := it.Close(); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// NamedGraphs lists the named graph terms present in this snapshot.
func (sn *Snapshot) NamedGraphs() ([]rdf.Term, error) {
	it, err := sn.txn.Scan(TableGraphs, nil, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var graphs []rdf.Term
	for it.Next() {
		enc, err := encoding.SplitQuadKey(it.Key(), 1)
		if err != nil {
			return nil, err
		}
		term, err := sn.DecodeTerm(enc[0])
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, term)
	}
	return graphs, nil
}

// ContainsNamedGraph reports whether the graph name is present in this
// snapshot.
func (sn *Snapshot) ContainsNamedGraph(graph rdf.Term) (bool, error) {
	enc, _, err := sn.store.encoder.EncodeTerm(graph)
	if err != nil {
		return false, err
	}
	_, err = sn.txn.Get(TableGraphs, enc[:])
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
