package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/aleksaelezovic/tetrago/internal/encoding"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// Txn is one atomic write batch over the store. Mutations accumulate in
// the batch and become visible only at commit; reads through Snapshot()
// observe the state at transaction start. Existence checks for set
// semantics consult the batch itself so repeated mutations inside one
// transaction compose correctly.
type Txn struct {
	store    *Store
	snapshot *Snapshot
	write    Transaction
}

// Snapshot returns the read view taken when the transaction started. It
// never observes this transaction's own writes.
func (t *Txn) Snapshot() *Snapshot {
	return t.snapshot
}

// Insert adds a quad to the batch. Returns true when the quad was not
// already present (in the pre-state plus earlier writes of this batch).
func (t *Txn) Insert(quad *rdf.Quad) (bool, error) {
	if err := quad.Validate(); err != nil {
		return false, err
	}
	eids, entries, err := t.store.encodeQuad(quad)
	if err != nil {
		return false, err
	}

	exists, err := containsEncoded(t.write, eids)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := t.addDictEntries(entries); err != nil {
		return false, err
	}
	if err := writeIndexRows(t.write.Set, eids); err != nil {
		return false, err
	}
	if eids[3].Tag() != encoding.TagDefaultGraph {
		if err := t.ensureGraphRow(eids[3]); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Remove deletes a quad from the batch. Returns true when the quad was
// present.
func (t *Txn) Remove(quad *rdf.Quad) (bool, error) {
	eids, _, err := t.store.encodeQuad(quad)
	if err != nil {
		return false, err
	}
	exists, err := containsEncoded(t.write, eids)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := deleteIndexRows(t.write, eids); err != nil {
		return false, err
	}
	for _, enc := range eids {
		if err := t.releaseEIDRef(enc); err != nil {
			return false, err
		}
	}
	return true, nil
}

// CreateGraph registers an empty named graph. Returns true when the graph
// was not present.
func (t *Txn) CreateGraph(graph rdf.Term) (bool, error) {
	switch graph.(type) {
	case *rdf.NamedNode, *rdf.BlankNode:
	default:
		return false, fmt.Errorf("graph name must be an IRI or blank node, got %T", graph)
	}
	enc, entries, err := t.store.encoder.EncodeTerm(graph)
	if err != nil {
		return false, err
	}
	_, err = t.write.Get(TableGraphs, enc[:])
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err := t.addDictEntries(entries); err != nil {
		return false, err
	}
	if err := t.write.Set(TableGraphs, enc[:], nil); err != nil {
		return false, err
	}
	return true, nil
}

// DropGraph removes a named graph: its quads and its name. Returns true
// when the graph existed.
func (t *Txn) DropGraph(graph rdf.Term) (bool, error) {
	enc, _, err := t.store.encoder.EncodeTerm(graph)
	if err != nil {
		return false, err
	}
	_, err = t.write.Get(TableGraphs, enc[:])
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := t.clearNamedGraphQuads(enc); err != nil {
		return false, err
	}
	if err := t.write.Delete(TableGraphs, enc[:]); err != nil {
		return false, err
	}
	if err := t.releaseEIDRef(enc); err != nil {
		return false, err
	}
	return true, nil
}

// ClearGraph removes the quads of a graph but keeps its name. Passing the
// default graph marker clears the default graph.
func (t *Txn) ClearGraph(graph rdf.Term) error {
	if graph == nil || graph.Type() == rdf.TermTypeDefaultGraph {
		return t.ClearDefault()
	}
	enc, _, err := t.store.encoder.EncodeTerm(graph)
	if err != nil {
		return err
	}
	return t.clearNamedGraphQuads(enc)
}

// ClearDefault removes every quad from the default graph.
func (t *Txn) ClearDefault() error {
	keys, err := t.collectKeys(TableDSPO, nil)
	if err != nil {
		return err
	}
	for _, key := range keys {
		terms, err := encoding.SplitQuadKey(key, 3)
		if err != nil {
			return err
		}
		eids := [4]encoding.EncodedTerm{terms[0], terms[1], terms[2], {}}
		if err := deleteIndexRows(t.write, eids); err != nil {
			return err
		}
		for _, enc := range eids {
			if err := t.releaseEIDRef(enc); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearAllNamed removes the quads of every named graph but keeps the
// graph names.
func (t *Txn) ClearAllNamed() error {
	graphKeys, err := t.collectKeys(TableGraphs, nil)
	if err != nil {
		return err
	}
	for _, key := range graphKeys {
		terms, err := encoding.SplitQuadKey(key, 1)
		if err != nil {
			return err
		}
		if err := t.clearNamedGraphQuads(terms[0]); err != nil {
			return err
		}
	}
	return nil
}

// ClearAll removes every quad and every named graph.
func (t *Txn) ClearAll() error {
	if err := t.ClearDefault(); err != nil {
		return err
	}
	graphKeys, err := t.collectKeys(TableGraphs, nil)
	if err != nil {
		return err
	}
	for _, key := range graphKeys {
		terms, err := encoding.SplitQuadKey(key, 1)
		if err != nil {
			return err
		}
		if err := t.clearNamedGraphQuads(terms[0]); err != nil {
			return err
		}
		if err := t.write.Delete(TableGraphs, key); err != nil {
			return err
		}
		if err := t.releaseEIDRef(terms[0]); err != nil {
			return err
		}
	}
	return nil
}

// clearNamedGraphQuads deletes every quad of one named graph.
func (t *Txn) clearNamedGraphQuads(graph encoding.EncodedTerm) error {
	keys, err := t.collectKeys(TableGSPO, graph[:])
	if err != nil {
		return err
	}
	for _, key := range keys {
		terms, err := encoding.SplitQuadKey(key, 4)
		if err != nil {
			return err
		}
		// gspo key order: G S P O
		eids := [4]encoding.EncodedTerm{terms[1], terms[2], terms[3], terms[0]}
		if err := deleteIndexRows(t.write, eids); err != nil {
			return err
		}
		for _, enc := range eids {
			if err := t.releaseEIDRef(enc); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectKeys materializes the keys of a prefix scan so deletion does not
// race the iterator.
func (t *Txn) collectKeys(table Table, prefix []byte) ([][]byte, error) {
	var start []byte
	if len(prefix) > 0 {
		start = prefix
	}
	it, err := t.write.Scan(table, start, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	return keys, nil
}

// addDictEntries upserts dictionary rows, incrementing refcounts. A row
// whose stored payload differs from the entry's payload is a keyed hash
// collision and fails the transaction.
func (t *Txn) addDictEntries(entries []encoding.DictEntry) error {
	for _, entry := range entries {
		key := entry.EID.DictKey()
		existing, err := t.write.Get(TableID2Str, key)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				return err
			}
			if err := t.write.Set(TableID2Str, key, encoding.EncodeDictValue(1, entry.Payload)); err != nil {
				return err
			}
			continue
		}
		count, payload, err := encoding.DecodeDictValue(existing)
		if err != nil {
			return err
		}
		if !bytes.Equal(payload, entry.Payload) {
			return fmt.Errorf("%w: dictionary key collides for two distinct terms", ErrHashCollision)
		}
		if err := t.write.Set(TableID2Str, key, encoding.EncodeDictValue(count+1, payload)); err != nil {
			return err
		}
	}
	return nil
}

// releaseEIDRef decrements the refcount behind a hashed EID, recursing
// into quoted triple components. Rows reaching zero stay behind for the
// compaction sweep. Inline EIDs are no-ops.
func (t *Txn) releaseEIDRef(enc encoding.EncodedTerm) error {
	if enc.IsInline() {
		return nil
	}
	key := enc.DictKey()
	existing, err := t.write.Get(TableID2Str, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Row already swept; nothing to release
			return nil
		}
		return err
	}
	count, payload, err := encoding.DecodeDictValue(existing)
	if err != nil {
		return err
	}

	if enc.Tag() == encoding.TagTriple && len(payload) == 1+3*encoding.EncodedTermSize {
		inner, err := encoding.SplitQuadKey(payload[1:], 3)
		if err != nil {
			return err
		}
		for _, innerEnc := range inner {
			if err := t.releaseEIDRef(innerEnc); err != nil {
				return err
			}
		}
	}

	if count > 0 {
		count--
	}
	return t.write.Set(TableID2Str, key, encoding.EncodeDictValue(count, payload))
}

// ensureGraphRow registers a named graph on first quad insert, retaining
// one extra dictionary reference for the graphs row itself.
func (t *Txn) ensureGraphRow(graph encoding.EncodedTerm) error {
	_, err := t.write.Get(TableGraphs, graph[:])
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := t.write.Set(TableGraphs, graph[:], nil); err != nil {
		return err
	}
	return t.retainEIDRef(graph)
}

// GraphNames lists the named graphs as this batch sees them: the
// pre-state plus the batch's own creations and drops.
func (t *Txn) GraphNames() ([]rdf.Term, error) {
	keys, err := t.collectKeys(TableGraphs, nil)
	if err != nil {
		return nil, err
	}
	var graphs []rdf.Term
	for _, key := range keys {
		terms, err := encoding.SplitQuadKey(key, 1)
		if err != nil {
			return nil, err
		}
		term, err := t.store.decoder.DecodeTerm(terms[0], txnLookup{t.write})
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, term)
	}
	return graphs, nil
}

// txnLookup resolves dictionary rows through a write transaction so
// decoding sees the batch's own dictionary inserts.
type txnLookup struct {
	txn Transaction
}

func (l txnLookup) LookupString(key []byte) ([]byte, error) {
	value, err := l.txn.Get(TableID2Str, key)
	if err != nil {
		return nil, err
	}
	_, payload, err := encoding.DecodeDictValue(value)
	return payload, err
}

// retainEIDRef increments the refcount behind a hashed EID whose row
// already exists in this transaction.
func (t *Txn) retainEIDRef(enc encoding.EncodedTerm) error {
	if enc.IsInline() {
		return nil
	}
	key := enc.DictKey()
	existing, err := t.write.Get(TableID2Str, key)
	if err != nil {
		return err
	}
	count, payload, err := encoding.DecodeDictValue(existing)
	if err != nil {
		return err
	}
	return t.write.Set(TableID2Str, key, encoding.EncodeDictValue(count+1, payload))
}
