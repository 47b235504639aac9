package store

import (
	"fmt"
	"io"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// LoadGraph parses a graph document (N-Triples, Turtle, or RDF/XML) and
// inserts its triples into targetGraph (default graph when nil) in one
// atomic transaction.
func (s *Store) LoadGraph(r io.Reader, format rdf.Format, baseIRI string, targetGraph rdf.Term) error {
	if format.SupportsDatasets() {
		return fmt.Errorf("%v is a dataset format; use LoadDataset", format)
	}
	quads, err := rdf.Parse(r, format, baseIRI)
	if err != nil {
		return err
	}
	if targetGraph == nil {
		targetGraph = rdf.NewDefaultGraph()
	}
	return s.Transaction(func(txn *Txn) error {
		for _, quad := range quads {
			q := rdf.NewQuad(quad.Subject, quad.Predicate, quad.Object, targetGraph)
			if _, err := txn.Insert(q); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadDataset parses a dataset document (N-Quads or TriG) and inserts its
// quads in one atomic transaction.
func (s *Store) LoadDataset(r io.Reader, format rdf.Format, baseIRI string) error {
	quads, err := rdf.Parse(r, format, baseIRI)
	if err != nil {
		return err
	}
	return s.Transaction(func(txn *Txn) error {
		for _, quad := range quads {
			if _, err := txn.Insert(quad); err != nil {
				return err
			}
		}
		return nil
	})
}

// DumpGraph serializes one graph (default graph when graph is nil) in a
// graph format.
func (s *Store) DumpGraph(w io.Writer, format rdf.Format, graph rdf.Term) error {
	if format.SupportsDatasets() {
		return fmt.Errorf("%v is a dataset format; use DumpDataset", format)
	}
	pattern := &Pattern{Graph: GraphDefault()}
	if graph != nil && graph.Type() != rdf.TermTypeDefaultGraph {
		pattern.Graph = GraphNamed(graph)
	}
	quads, err := s.collectQuads(pattern)
	if err != nil {
		return err
	}
	return rdf.Serialize(w, quads, format)
}

// DumpDataset serializes the whole dataset in a dataset format.
func (s *Store) DumpDataset(w io.Writer, format rdf.Format) error {
	if !format.SupportsDatasets() {
		return fmt.Errorf("%v cannot carry named graphs; use DumpGraph", format)
	}
	quads, err := s.collectQuads(&Pattern{})
	if err != nil {
		return err
	}
	return rdf.Serialize(w, quads, format)
}

func (s *Store) collectQuads(pattern *Pattern) ([]*rdf.Quad, error) {
	it, err := s.QuadsForPattern(pattern)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var quads []*rdf.Quad
	for it.Next() {
		quad, err := it.Quad()
		if err != nil {
			return nil, err
		}
		quads = append(quads, quad)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return quads, nil
}
