package rdf

import (
	"fmt"
	"io"
	"sort"
)

// TriGParser parses TriG documents: the Turtle grammar plus GRAPH blocks.
type TriGParser struct {
	inner *TurtleParser
}

func NewTriGParser(input, baseIRI string) *TriGParser {
	p := NewTurtleParser(input, baseIRI)
	p.allowGraphs = true
	return &TriGParser{inner: p}
}

// Parse parses the document and returns its quads across all graphs.
func (p *TriGParser) Parse() ([]*Quad, error) {
	return p.inner.Parse()
}

// TriGSerializer writes a dataset in TriG syntax: default-graph triples
// first, then one GRAPH block per named graph.
type TriGSerializer struct {
	turtle *TurtleSerializer
}

func NewTriGSerializer() *TriGSerializer {
	return &TriGSerializer{turtle: NewTurtleSerializer()}
}

func (s *TriGSerializer) Serialize(w io.Writer, quads []*Quad) error {
	if err := s.turtle.writePrologue(w); err != nil {
		return err
	}

	var defaultGraph []*Quad
	named := make(map[string][]*Quad)
	var graphOrder []string
	graphTerms := make(map[string]Term)

	for _, q := range quads {
		if q.Graph.Type() == TermTypeDefaultGraph {
			defaultGraph = append(defaultGraph, q)
			continue
		}
		key := q.Graph.String()
		if _, seen := named[key]; !seen {
			graphOrder = append(graphOrder, key)
			graphTerms[key] = q.Graph
		}
		named[key] = append(named[key], q)
	}
	sort.Strings(graphOrder)

	if len(defaultGraph) > 0 {
		if err := s.turtle.writeTriples(w, defaultGraph, ""); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}

	for _, key := range graphOrder {
		if _, err := fmt.Fprintf(w, "GRAPH %s {\n", s.turtle.term(graphTerms[key])); err != nil {
			return err
		}
		if err := s.turtle.writeTriples(w, named[key], "    "); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "}\n"); err != nil {
			return err
		}
	}
	return nil
}
