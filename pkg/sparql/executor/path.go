package executor

import (
	"fmt"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// buildPath evaluates a property path pattern. Simple steps compile to
// index scans; closures run a breadth-first expansion with a visited
// set.
func (e *Executor) buildPath(node *algebra.PathPattern, input *store.Binding, g graphCtx) (BindingIterator, error) {
	switch path := node.Path.(type) {
	case *algebra.PredicatePath:
		bgp := &algebra.BGP{Patterns: []*algebra.TriplePattern{{
			Subject:   node.Subject,
			Predicate: algebra.Term(path.Predicate),
			Object:    node.Object,
		}}}
		return e.build(bgp, input, g)

	case *algebra.InversePath:
		return e.buildPath(&algebra.PathPattern{
			Subject: node.Object,
			Path:    path.Inner,
			Object:  node.Subject,
		}, input, g)

	case *algebra.SequencePath:
		mid := e.freshPathVar()
		first := &algebra.PathPattern{Subject: node.Subject, Path: path.Left, Object: mid}
		second := &algebra.PathPattern{Subject: mid, Path: path.Right, Object: node.Object}
		left, err := e.buildPath(first, input, g)
		if err != nil {
			return nil, err
		}
		return &joinIterator{
			e:    e,
			left: left,
			buildRight: func(b *store.Binding) (BindingIterator, error) {
				return e.buildPath(second, b, g)
			},
		}, nil

	case *algebra.AlternativePath:
		left, err := e.buildPath(&algebra.PathPattern{Subject: node.Subject, Path: path.Left, Object: node.Object}, input, g)
		if err != nil {
			return nil, err
		}
		return &unionIterator{
			e:     e,
			first: left,
			buildSecond: func() (BindingIterator, error) {
				return e.buildPath(&algebra.PathPattern{Subject: node.Subject, Path: path.Right, Object: node.Object}, input, g)
			},
		}, nil

	case *algebra.ZeroOrMorePath:
		return e.buildClosure(node, path.Inner, input, g, true)

	case *algebra.OneOrMorePath:
		return e.buildClosure(node, path.Inner, input, g, false)

	case *algebra.ZeroOrOnePath:
		inner, err := e.buildPath(&algebra.PathPattern{Subject: node.Subject, Path: path.Inner, Object: node.Object}, input, g)
		if err != nil {
			return nil, err
		}
		zero, err := e.zeroLengthRows(node, input, g)
		if err != nil {
			_ = inner.Close()
			return nil, err
		}
		return &unionIterator{
			e:     e,
			first: &sliceIterator{rows: zero},
			buildSecond: func() (BindingIterator, error) {
				return &dedupAgainst{inner: inner, exclude: zero}, nil
			},
		}, nil

	case *algebra.NegatedPropertySet:
		return e.buildNegated(node, path, input, g)

	default:
		return nil, fmt.Errorf("unsupported path type %T", node.Path)
	}
}

func (e *Executor) freshPathVar() algebra.TermOrVar {
	e.pathSeq++
	return algebra.Var(fmt.Sprintf("_anon_path%d", e.pathSeq))
}

// resolveEndpoint maps an endpoint slot through the current binding.
func resolveEndpoint(tv algebra.TermOrVar, binding *store.Binding) rdf.Term {
	if !tv.IsVar() {
		return tv.Term
	}
	return binding.Get(tv.Var)
}

// buildClosure evaluates p* and p+ via breadth-first expansion keyed on
// the reached endpoint.
func (e *Executor) buildClosure(node *algebra.PathPattern, inner algebra.PathExpr, input *store.Binding, g graphCtx, includeZero bool) (BindingIterator, error) {
	subject := resolveEndpoint(node.Subject, input)
	object := resolveEndpoint(node.Object, input)

	switch {
	case subject != nil:
		reached, err := e.expandFrom(subject, inner, input, g, false)
		if err != nil {
			return nil, err
		}
		return e.closureRows(node, input, subject, reached, object, includeZero, false)

	case object != nil:
		// Walk backwards from the object
		reached, err := e.expandFrom(object, inner, input, g, true)
		if err != nil {
			return nil, err
		}
		return e.closureRows(node, input, object, reached, subject, includeZero, true)

	default:
		// Both ends unbound: expand from every graph node
		nodes, err := e.graphNodes(input, g)
		if err != nil {
			return nil, err
		}
		var rows []*store.Binding
		for _, start := range nodes {
			reached, err := e.expandFrom(start, inner, input, g, false)
			if err != nil {
				return nil, err
			}
			it, err := e.closureRows(node, input, start, reached, nil, includeZero, false)
			if err != nil {
				return nil, err
			}
			for it.Next() {
				rows = append(rows, it.Binding())
			}
			if err := it.Err(); err != nil {
				return nil, err
			}
		}
		return &sliceIterator{rows: rows}, nil
	}
}

// expandFrom runs the BFS from one start node. reverse walks the inner
// path backwards.
func (e *Executor) expandFrom(start rdf.Term, inner algebra.PathExpr, input *store.Binding, g graphCtx, reverse bool) ([]rdf.Term, error) {
	visited := map[string]bool{start.String(): true}
	queue := []rdf.Term{start}
	var reached []rdf.Term

	for len(queue) > 0 {
		if err := e.ctx.Err(); err != nil {
			return nil, err
		}
		current := queue[0]
		queue = queue[1:]

		successors, err := e.pathStep(current, inner, input, g, reverse)
		if err != nil {
			return nil, err
		}
		for _, next := range successors {
			key := next.String()
			if visited[key] {
				continue
			}
			visited[key] = true
			reached = append(reached, next)
			queue = append(queue, next)
		}
	}
	return reached, nil
}

// pathStep finds the one-step successors of a node along the inner path.
func (e *Executor) pathStep(from rdf.Term, inner algebra.PathExpr, input *store.Binding, g graphCtx, reverse bool) ([]rdf.Term, error) {
	stepVar := e.freshPathVar()
	pattern := &algebra.PathPattern{Subject: algebra.Term(from), Path: inner, Object: stepVar}
	if reverse {
		pattern = &algebra.PathPattern{Subject: stepVar, Path: inner, Object: algebra.Term(from)}
	}

	it, err := e.buildPath(pattern, input, g)
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var out []rdf.Term
	seen := make(map[string]bool)
	for it.Next() {
		term := it.Binding().Get(stepVar.Var)
		if term == nil {
			continue
		}
		if key := term.String(); !seen[key] {
			seen[key] = true
			out = append(out, term)
		}
	}
	return out, it.Err()
}

// closureRows assembles the result rows of a closure evaluation rooted
// at start. fixedOther constrains the far endpoint when it was bound.
func (e *Executor) closureRows(node *algebra.PathPattern, input *store.Binding, start rdf.Term, reached []rdf.Term, fixedOther rdf.Term, includeZero, reverse bool) (BindingIterator, error) {
	endpoints := reached
	if includeZero {
		endpoints = append([]rdf.Term{start}, reached...)
	}

	farSlot := node.Object
	if reverse {
		farSlot = node.Subject
	}

	var rows []*store.Binding
	for _, endpoint := range endpoints {
		if fixedOther != nil {
			if endpoint.Equals(fixedOther) {
				rows = append(rows, input.Clone())
			}
			continue
		}
		if farSlot.IsVar() {
			row := input.Clone()
			if existing, ok := row.Vars[farSlot.Var]; ok {
				if !existing.Equals(endpoint) {
					continue
				}
			} else {
				row.Set(farSlot.Var, endpoint)
			}
			rows = append(rows, row)
		} else if farSlot.Term.Equals(endpoint) {
			rows = append(rows, input.Clone())
		}
	}
	return &sliceIterator{rows: rows}, nil
}

// zeroLengthRows produces the zero-length matches of p?: both ends equal
// within the node domain of the query.
func (e *Executor) zeroLengthRows(node *algebra.PathPattern, input *store.Binding, g graphCtx) ([]*store.Binding, error) {
	subject := resolveEndpoint(node.Subject, input)
	object := resolveEndpoint(node.Object, input)

	switch {
	case subject != nil && object != nil:
		if subject.Equals(object) {
			return []*store.Binding{input.Clone()}, nil
		}
		return nil, nil
	case subject != nil:
		row := input.Clone()
		row.Set(node.Object.Var, subject)
		return []*store.Binding{row}, nil
	case object != nil:
		row := input.Clone()
		row.Set(node.Subject.Var, object)
		return []*store.Binding{row}, nil
	default:
		nodes, err := e.graphNodes(input, g)
		if err != nil {
			return nil, err
		}
		var rows []*store.Binding
		for _, n := range nodes {
			row := input.Clone()
			row.Set(node.Subject.Var, n)
			row.Set(node.Object.Var, n)
			rows = append(rows, row)
		}
		return rows, nil
	}
}

// graphNodes lists the distinct subjects and objects of the graph
// context.
func (e *Executor) graphNodes(input *store.Binding, g graphCtx) ([]rdf.Term, error) {
	it, err := e.snapshot.QuadsForPattern(&store.Pattern{Graph: g.patternSelector(input)})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	seen := make(map[string]bool)
	var nodes []rdf.Term
	for it.Next() {
		quad, err := it.Quad()
		if err != nil {
			return nil, err
		}
		for _, term := range []rdf.Term{quad.Subject, quad.Object} {
			if key := term.String(); !seen[key] {
				seen[key] = true
				nodes = append(nodes, term)
			}
		}
	}
	return nodes, it.Err()
}

// buildNegated evaluates a negated property set by scanning candidate
// edges and excluding the listed predicates.
func (e *Executor) buildNegated(node *algebra.PathPattern, nps *algebra.NegatedPropertySet, input *store.Binding, g graphCtx) (BindingIterator, error) {
	var rows []*store.Binding

	collect := func(subjSlot, objSlot algebra.TermOrVar, excluded []*rdf.NamedNode) error {
		pattern := &store.Pattern{
			Subject: resolveEndpoint(subjSlot, input),
			Object:  resolveEndpoint(objSlot, input),
			Graph:   g.patternSelector(input),
		}
		it, err := e.snapshot.QuadsForPattern(pattern)
		if err != nil {
			return err
		}
		defer func() { _ = it.Close() }()

		for it.Next() {
			quad, err := it.Quad()
			if err != nil {
				return err
			}
			skip := false
			for _, p := range excluded {
				if quad.Predicate.Equals(p) {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			row := input.Clone()
			ok := true
			for _, pair := range []struct {
				slot algebra.TermOrVar
				term rdf.Term
			}{{subjSlot, quad.Subject}, {objSlot, quad.Object}} {
				if !pair.slot.IsVar() {
					continue
				}
				if existing, bound := row.Vars[pair.slot.Var]; bound {
					if !existing.Equals(pair.term) {
						ok = false
						break
					}
				} else {
					row.Set(pair.slot.Var, pair.term)
				}
			}
			if ok {
				rows = append(rows, row)
			}
		}
		return it.Err()
	}

	// Forward part: edges whose predicate is outside the forward set
	if len(nps.Forward) > 0 || len(nps.Inverse) == 0 {
		if err := collect(node.Subject, node.Object, nps.Forward); err != nil {
			return nil, err
		}
	}
	// Inverse part: reversed edges whose predicate is outside the
	// inverse set
	if len(nps.Inverse) > 0 {
		if err := collect(node.Object, node.Subject, nps.Inverse); err != nil {
			return nil, err
		}
	}
	return &sliceIterator{rows: rows}, nil
}

// dedupAgainst suppresses rows already emitted by the zero-length
// branch of p?.
type dedupAgainst struct {
	inner   BindingIterator
	exclude []*store.Binding
}

func (it *dedupAgainst) Next() bool {
	for it.inner.Next() {
		row := it.inner.Binding()
		dup := false
		for _, ex := range it.exclude {
			if row.Signature(nil) == ex.Signature(nil) {
				dup = true
				break
			}
		}
		if !dup {
			return true
		}
	}
	return false
}

func (it *dedupAgainst) Binding() *store.Binding { return it.inner.Binding() }
func (it *dedupAgainst) Err() error              { return it.inner.Err() }
func (it *dedupAgainst) Close() error            { return it.inner.Close() }
