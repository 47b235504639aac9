package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
)

func tp(s, p, o algebra.TermOrVar) *algebra.TriplePattern {
	return &algebra.TriplePattern{Subject: s, Predicate: p, Object: o}
}

func TestOrderPatternsPrefersSelective(t *testing.T) {
	ground := algebra.Term(rdf.NewNamedNode("http://example.org/p"))

	selective := tp(algebra.Term(rdf.NewNamedNode("http://example.org/s")), ground, algebra.Var("v"))
	open := tp(algebra.Var("a"), algebra.Var("b"), algebra.Var("c"))

	ordered := orderPatterns([]*algebra.TriplePattern{open, selective}, nil)
	assert.Same(t, selective, ordered[0], "the more selective pattern runs first")
}

func TestOrderPatternsPropagatesBindings(t *testing.T) {
	knows := algebra.Term(rdf.NewNamedNode("http://example.org/knows"))
	name := algebra.Term(rdf.NewNamedNode("http://example.org/name"))

	first := tp(algebra.Term(rdf.NewNamedNode("http://example.org/a")), knows, algebra.Var("b"))
	second := tp(algebra.Var("b"), name, algebra.Var("n"))
	third := tp(algebra.Var("x"), name, algebra.Var("y"))

	ordered := orderPatterns([]*algebra.TriplePattern{third, second, first}, nil)
	assert.Same(t, first, ordered[0])
	// After the first pattern binds ?b, the connected pattern wins over
	// the disconnected one
	assert.Same(t, second, ordered[1])
	assert.Same(t, third, ordered[2])
}

func TestPatternScore(t *testing.T) {
	ground := algebra.Term(rdf.NewNamedNode("http://example.org/p"))

	full := tp(ground, ground, ground)
	twoBound := tp(ground, ground, algebra.Var("o"))
	none := tp(algebra.Var("s"), algebra.Var("p"), algebra.Var("o"))

	assert.Less(t, patternScore(full, nil), patternScore(twoBound, nil))
	assert.Less(t, patternScore(twoBound, nil), patternScore(none, nil))

	// A bound variable counts as a bound slot
	bound := map[string]bool{"s": true}
	assert.Less(t, patternScore(tp(algebra.Var("s"), ground, algebra.Var("o")), bound),
		patternScore(tp(algebra.Var("z"), ground, algebra.Var("o")), nil))
}
