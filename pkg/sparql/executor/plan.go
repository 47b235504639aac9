package executor

import (
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// orderPatterns reorders a BGP greedily: at each step pick the pattern
// with the smallest estimated result size given the variables bound so
// far, preferring patterns connected to what was already chosen. Any
// order yields the same multiset; this one keeps scans selective.
func orderPatterns(patterns []*algebra.TriplePattern, bound map[string]bool) []*algebra.TriplePattern {
	remaining := make([]*algebra.TriplePattern, len(patterns))
	copy(remaining, patterns)
	boundVars := make(map[string]bool, len(bound))
	for v := range bound {
		boundVars[v] = true
	}

	ordered := make([]*algebra.TriplePattern, 0, len(patterns))
	for len(remaining) > 0 {
		bestIdx := 0
		bestScore := patternScore(remaining[0], boundVars)
		for i := 1; i < len(remaining); i++ {
			if score := patternScore(remaining[i], boundVars); score < bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		chosen := remaining[bestIdx]
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
		ordered = append(ordered, chosen)
		for _, tv := range []algebra.TermOrVar{chosen.Subject, chosen.Predicate, chosen.Object} {
			if tv.IsVar() {
				boundVars[tv.Var] = true
			}
		}
	}
	return ordered
}

// patternScore is a coarse cardinality estimate: ground or already-bound
// slots shrink it, and connectivity to the bound set halves it.
func patternScore(tp *algebra.TriplePattern, boundVars map[string]bool) int {
	boundSlots := 0
	connected := false
	for _, tv := range []algebra.TermOrVar{tp.Subject, tp.Predicate, tp.Object} {
		if !tv.IsVar() {
			boundSlots++
			continue
		}
		if boundVars[tv.Var] {
			boundSlots++
			connected = true
		}
	}
	var score int
	switch boundSlots {
	case 3:
		score = 1
	case 2:
		score = 10
	case 1:
		score = 1000
	default:
		score = 100000
	}
	if connected && score > 1 {
		score /= 2
	}
	return score
}

// bgpIterator evaluates an ordered BGP as a chain of dependent index
// scans with backtracking.
type bgpIterator struct {
	e        *Executor
	g        graphCtx
	patterns []*algebra.TriplePattern
	input    *store.Binding

	levels []*bgpLevel
	depth  int
	cur    *store.Binding
	err    error
	done   bool
}

type bgpLevel struct {
	it      store.QuadIterator
	binding *store.Binding // binding the level was opened with
}

func (e *Executor) newBGPIterator(bgp *algebra.BGP, input *store.Binding, g graphCtx) *bgpIterator {
	bound := make(map[string]bool, len(input.Vars))
	for v := range input.Vars {
		bound[v] = true
	}
	return &bgpIterator{
		e:        e,
		g:        g,
		patterns: orderPatterns(bgp.Patterns, bound),
		input:    input,
		levels:   make([]*bgpLevel, len(bgp.Patterns)),
	}
}

func (it *bgpIterator) Next() bool {
	if it.err != nil || it.done {
		return false
	}
	if it.depth == 0 && it.levels[0] == nil {
		if !it.openLevel(0, it.input) {
			return false
		}
	}

	for {
		if err := it.e.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		level := it.levels[it.depth]
		advanced := false
		for level.it.Next() {
			quad, err := level.it.Quad()
			if err != nil {
				it.err = err
				return false
			}
			next, ok := it.bindQuad(it.patterns[it.depth], quad, level.binding)
			if !ok {
				continue
			}
			if it.depth == len(it.patterns)-1 {
				it.cur = next
				return true
			}
			it.depth++
			if !it.openLevel(it.depth, next) {
				return false
			}
			advanced = true
			break
		}
		if advanced {
			continue
		}
		if err := level.it.Err(); err != nil {
			it.err = err
			return false
		}
		_ = level.it.Close()
		it.levels[it.depth] = nil
		if it.depth == 0 {
			it.done = true
			return false
		}
		it.depth--
	}
}

func (it *bgpIterator) openLevel(depth int, binding *store.Binding) bool {
	pattern := it.resolvePattern(it.patterns[depth], binding)
	qi, err := it.e.snapshot.QuadsForPattern(pattern)
	if err != nil {
		it.err = err
		return false
	}
	it.levels[depth] = &bgpLevel{it: qi, binding: binding}
	return true
}

// resolvePattern turns a triple pattern into a store pattern given the
// current bindings and graph context.
func (it *bgpIterator) resolvePattern(tp *algebra.TriplePattern, binding *store.Binding) *store.Pattern {
	resolve := func(tv algebra.TermOrVar) rdf.Term {
		if !tv.IsVar() {
			return tv.Term
		}
		return binding.Get(tv.Var)
	}
	return &store.Pattern{
		Subject:   resolve(tp.Subject),
		Predicate: resolve(tp.Predicate),
		Object:    resolve(tp.Object),
		Graph:     it.g.patternSelector(binding),
	}
}

// bindQuad extends a binding with the quad's terms. Repeated variables
// within one pattern must agree, and constant slots are re-checked so an
// over-broad scan can never leak non-matching quads.
func (it *bgpIterator) bindQuad(tp *algebra.TriplePattern, quad *rdf.Quad, binding *store.Binding) (*store.Binding, bool) {
	next := binding.Clone()
	assign := func(tv algebra.TermOrVar, term rdf.Term) bool {
		if !tv.IsVar() {
			return tv.Term.Equals(term)
		}
		if existing, ok := next.Vars[tv.Var]; ok {
			return existing.Equals(term)
		}
		next.Set(tv.Var, term)
		return true
	}
	if !assign(tp.Subject, quad.Subject) ||
		!assign(tp.Predicate, quad.Predicate) ||
		!assign(tp.Object, quad.Object) {
		return nil, false
	}
	if it.g.variable != "" {
		if existing, ok := next.Vars[it.g.variable]; ok {
			if !existing.Equals(quad.Graph) {
				return nil, false
			}
		} else {
			next.Set(it.g.variable, quad.Graph)
		}
	}
	return next, true
}

func (it *bgpIterator) Binding() *store.Binding { return it.cur }
func (it *bgpIterator) Err() error              { return it.err }

func (it *bgpIterator) Close() error {
	for _, level := range it.levels {
		if level != nil {
			_ = level.it.Close()
		}
	}
	return nil
}
