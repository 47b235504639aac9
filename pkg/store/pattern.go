package store

import (
	"fmt"

	"github.com/aleksaelezovic/tetrago/internal/encoding"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// GraphMode selects which graphs a pattern ranges over.
type GraphMode int

const (
	// GraphModeAll matches the default graph and every named graph.
	GraphModeAll GraphMode = iota
	// GraphModeDefault matches only the default graph.
	GraphModeDefault
	// GraphModeAnyNamed matches every named graph but not the default.
	GraphModeAnyNamed
	// GraphModeNamed matches one specific named graph.
	GraphModeNamed
)

// GraphSelector picks the graph dimension of a pattern. The zero value
// matches all graphs.
type GraphSelector struct {
	Mode GraphMode
	Term rdf.Term // set when Mode is GraphModeNamed
}

func GraphAll() GraphSelector      { return GraphSelector{Mode: GraphModeAll} }
func GraphDefault() GraphSelector  { return GraphSelector{Mode: GraphModeDefault} }
func GraphAnyNamed() GraphSelector { return GraphSelector{Mode: GraphModeAnyNamed} }
func GraphNamed(t rdf.Term) GraphSelector {
	if t == nil || t.Type() == rdf.TermTypeDefaultGraph {
		return GraphDefault()
	}
	return GraphSelector{Mode: GraphModeNamed, Term: t}
}

// Pattern is a quad pattern. Nil term slots are wildcards.
type Pattern struct {
	Subject   rdf.Term
	Predicate rdf.Term
	Object    rdf.Term
	Graph     GraphSelector
}

// QuadIterator is a pull iterator over matching quads. Callers check Err
// after Next returns false and must Close the iterator to release its
// resources.
type QuadIterator interface {
	Next() bool
	Quad() (*rdf.Quad, error)
	Err() error
	Close() error
}

// indexChoice is one range scan: a table, the mapping from key position to
// SPOG position, and the scan prefix.
type indexChoice struct {
	table      Table
	keyPattern []int // key position -> quad position (0=S 1=P 2=O 3=G)
	prefix     []byte
	fixedGraph *encoding.EncodedTerm // for default-graph tables
}

// QuadsForPattern matches a pattern against the snapshot. Results stream
// in the chosen index's key order; when the pattern spans both the
// default graph and named graphs, the default graph scan comes first.
func (sn *Snapshot) QuadsForPattern(pattern *Pattern) (QuadIterator, error) {
	choices, err := sn.planPattern(pattern)
	if err != nil {
		return nil, err
	}
	return &quadIterator{snapshot: sn, choices: choices}, nil
}

// planPattern picks one covering index per graph family so every bound
// set resolves to a single contiguous range scan.
func (sn *Snapshot) planPattern(pattern *Pattern) ([]indexChoice, error) {
	var bound [4]*encoding.EncodedTerm
	for i, term := range []rdf.Term{pattern.Subject, pattern.Predicate, pattern.Object} {
		if term == nil {
			continue
		}
		enc, _, err := sn.store.encoder.EncodeTerm(term)
		if err != nil {
			return nil, err
		}
		e := enc
		bound[i] = &e
	}

	var choices []indexChoice
	switch pattern.Graph.Mode {
	case GraphModeDefault:
		choices = append(choices, defaultGraphChoice(bound))
	case GraphModeNamed:
		enc, _, err := sn.store.encoder.EncodeTerm(pattern.Graph.Term)
		if err != nil {
			return nil, err
		}
		bound[3] = &enc
		choices = append(choices, namedGraphChoice(bound))
	case GraphModeAnyNamed:
		choices = append(choices, namedGraphChoice(bound))
	case GraphModeAll:
		choices = append(choices, defaultGraphChoice(bound), namedGraphChoice(bound))
	}
	return choices, nil
}

// defaultGraphChoice selects among dspo/dpos/dosp.
func defaultGraphChoice(bound [4]*encoding.EncodedTerm) indexChoice {
	s, p, o := bound[0] != nil, bound[1] != nil, bound[2] != nil

	var table Table
	var keyPattern []int
	switch {
	case p && o && !s: // {p,o}: prefix p‖o
		table, keyPattern = TableDPOS, []int{1, 2, 0}
	case o && !(s && p): // {o}, {s,o}
		table, keyPattern = TableDOSP, []int{2, 0, 1}
	case p && !s: // {p}
		table, keyPattern = TableDPOS, []int{1, 2, 0}
	default: // {}, {s}, {s,p}, {s,p,o}
		table, keyPattern = TableDSPO, []int{0, 1, 2}
	}

	var defaultEnc encoding.EncodedTerm
	return indexChoice{
		table:      table,
		keyPattern: keyPattern,
		prefix:     scanPrefix(bound, keyPattern),
		fixedGraph: &defaultEnc,
	}
}

// namedGraphChoice selects among the six named graph indexes per the bound
// set.
func namedGraphChoice(bound [4]*encoding.EncodedTerm) indexChoice {
	s, p, o, g := bound[0] != nil, bound[1] != nil, bound[2] != nil, bound[3] != nil

	var table Table
	var keyPattern []int
	switch {
	case g:
		switch {
		case p && o && !s: // {p,o,g}
			table, keyPattern = TableGPOS, []int{3, 1, 2, 0}
		case o: // {o,g}, {s,o,g}
			if s && p {
				table, keyPattern = TableGSPO, []int{3, 0, 1, 2}
			} else {
				table, keyPattern = TableGOSP, []int{3, 2, 0, 1}
			}
		case p && !s: // {p,g}
			table, keyPattern = TableGPOS, []int{3, 1, 2, 0}
		default: // {g}, {s,g}, {s,p,g}, all
			table, keyPattern = TableGSPO, []int{3, 0, 1, 2}
		}
	case p && o && !s: // {p,o}: prefix p‖o
		table, keyPattern = TablePOSG, []int{1, 2, 0, 3}
	case o && !(s && p): // {o}, {s,o}
		table, keyPattern = TableOSPG, []int{2, 0, 1, 3}
	case p && !s: // {p}
		table, keyPattern = TablePOSG, []int{1, 2, 0, 3}
	default: // {}, {s}, {s,p}, {s,p,o}
		table, keyPattern = TableSPOG, []int{0, 1, 2, 3}
	}

	return indexChoice{
		table:      table,
		keyPattern: keyPattern,
		prefix:     scanPrefix(bound, keyPattern),
	}
}

// scanPrefix concatenates bound EIDs in key order up to the first unbound
// slot.
func scanPrefix(bound [4]*encoding.EncodedTerm, keyPattern []int) []byte {
	var prefix []byte
	for _, pos := range keyPattern {
		if bound[pos] == nil {
			break
		}
		prefix = append(prefix, bound[pos][:]...)
	}
	return prefix
}

// quadIterator runs the planned scans sequentially and decodes matching
// keys back into quads.
type quadIterator struct {
	snapshot *Snapshot
	choices  []indexChoice
	idx      int
	it       Iterator
	err      error
	closed   bool
}

func (qi *quadIterator) Next() bool {
	if qi.closed || qi.err != nil {
		return false
	}
	for {
		if qi.it == nil {
			if qi.idx >= len(qi.choices) {
				return false
			}
			choice := qi.choices[qi.idx]
			var start []byte
			if len(choice.prefix) > 0 {
				start = choice.prefix
			}
			it, err := qi.snapshot.txn.Scan(choice.table, start, nil)
			if err != nil {
				qi.err = err
				return false
			}
			qi.it = it
		}
		if qi.it.Next() {
			return true
		}
		if err := qi.it.Close(); err != nil {
			qi.err = err
			return false
		}
		qi.it = nil
		qi.idx++
	}
}

func (qi *quadIterator) Quad() (*rdf.Quad, error) {
	if qi.it == nil {
		return nil, fmt.Errorf("no current quad")
	}
	choice := qi.choices[qi.idx]

	terms, err := encoding.SplitQuadKey(qi.it.Key(), len(choice.keyPattern))
	if err != nil {
		return nil, err
	}

	var positions [4]encoding.EncodedTerm
	for i, pos := range choice.keyPattern {
		positions[pos] = terms[i]
	}
	if choice.fixedGraph != nil {
		positions[3] = *choice.fixedGraph
	}

	subject, err := qi.snapshot.DecodeTerm(positions[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode subject: %w", err)
	}
	predicate, err := qi.snapshot.DecodeTerm(positions[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode predicate: %w", err)
	}
	object, err := qi.snapshot.DecodeTerm(positions[2])
	if err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	graph, err := qi.snapshot.DecodeTerm(positions[3])
	if err != nil {
		return nil, fmt.Errorf("failed to decode graph: %w", err)
	}

	return rdf.NewQuad(subject, predicate, object, graph), nil
}

func (qi *quadIterator) Err() error {
	return qi.err
}

func (qi *quadIterator) Close() error {
	if qi.closed {
		return nil
	}
	qi.closed = true
	if qi.it != nil {
		return qi.it.Close()
	}
	return nil
}
