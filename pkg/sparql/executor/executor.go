// Package executor turns SPARQL algebra trees into pull-based iterator
// trees over a store snapshot (the Volcano model). Joins are dependent
// index nested loops: each node builds its iterators with the bindings
// accumulated upstream so BGP scans stay prefix scans.
package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/evaluator"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// ErrServiceUnsupported is returned when a query uses SERVICE; federated
// evaluation is not implemented.
var ErrServiceUnsupported = errors.New("SERVICE evaluation is not supported")

// Executor evaluates one query against one snapshot.
type Executor struct {
	ctx      context.Context
	snapshot *store.Snapshot
	eval     *evaluator.Evaluator
	pathSeq  int
}

// NewExecutor creates an executor over a snapshot. The context cancels
// long-running evaluation between rows.
func NewExecutor(ctx context.Context, snapshot *store.Snapshot) *Executor {
	if ctx == nil {
		ctx = context.Background()
	}
	ex := &Executor{ctx: ctx, snapshot: snapshot, eval: evaluator.NewEvaluator()}
	ex.eval.Exists = ex.evalExists
	return ex
}

// QueryResult is the result of a query: *SelectResult, *AskResult, or
// *GraphResult.
type QueryResult interface {
	resultType()
}

// SelectResult carries the projected variables and a lazy binding
// stream.
type SelectResult struct {
	Variables []string
	Iterator  BindingIterator
}

// AskResult is a boolean.
type AskResult struct {
	Result bool
}

// GraphResult is the quad stream of CONSTRUCT and DESCRIBE.
type GraphResult struct {
	Quads []*rdf.Quad
}

func (*SelectResult) resultType() {}
func (*AskResult) resultType()    {}
func (*GraphResult) resultType()  {}

// BindingIterator streams solution mappings.
type BindingIterator interface {
	Next() bool
	Binding() *store.Binding
	Err() error
	Close() error
}

// BuildPattern builds the iterator tree for a bare graph pattern. The
// update processor uses it to evaluate WHERE clauses.
func (e *Executor) BuildPattern(pattern algebra.GraphPattern) (BindingIterator, error) {
	return e.build(pattern, store.NewBinding(), graphCtx{})
}

// Execute evaluates a parsed query.
func (e *Executor) Execute(query *algebra.Query) (QueryResult, error) {
	switch query.Type {
	case algebra.QueryTypeSelect:
		return e.executeSelect(query)
	case algebra.QueryTypeAsk:
		return e.executeAsk(query)
	case algebra.QueryTypeConstruct:
		return e.executeConstruct(query)
	case algebra.QueryTypeDescribe:
		return e.executeDescribe(query)
	default:
		return nil, fmt.Errorf("unsupported query type")
	}
}

func (e *Executor) executeSelect(query *algebra.Query) (*SelectResult, error) {
	it, err := e.build(query.Pattern, store.NewBinding(), graphCtx{})
	if err != nil {
		return nil, err
	}
	return &SelectResult{
		Variables: projectionVars(query.Pattern),
		Iterator:  it,
	}, nil
}

// projectionVars finds the projection list of the root modifier chain.
func projectionVars(node algebra.GraphPattern) []string {
	switch n := node.(type) {
	case *algebra.Project:
		return n.Vars
	case *algebra.Distinct:
		return projectionVars(n.Inner)
	case *algebra.Reduced:
		return projectionVars(n.Inner)
	case *algebra.Slice:
		return projectionVars(n.Inner)
	default:
		return nil
	}
}

func (e *Executor) executeAsk(query *algebra.Query) (*AskResult, error) {
	it, err := e.build(query.Pattern, store.NewBinding(), graphCtx{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	found := it.Next()
	if err := it.Err(); err != nil {
		return nil, err
	}
	return &AskResult{Result: found}, nil
}

// executeConstruct instantiates the template once per row. Blank node
// labels in the template are scoped per row.
func (e *Executor) executeConstruct(query *algebra.Query) (*GraphResult, error) {
	it, err := e.build(query.Pattern, store.NewBinding(), graphCtx{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var quads []*rdf.Quad
	seen := make(map[string]bool)
	row := 0
	for it.Next() {
		row++
		binding := it.Binding()
		bnodes := make(map[string]*rdf.BlankNode)
		for _, tp := range query.Template {
			subject := e.instantiate(tp.Subject, binding, bnodes, row)
			predicate := e.instantiate(tp.Predicate, binding, bnodes, row)
			object := e.instantiate(tp.Object, binding, bnodes, row)
			if subject == nil || predicate == nil || object == nil {
				continue
			}
			quad := rdf.NewQuad(subject, predicate, object, nil)
			if quad.Validate() != nil {
				continue
			}
			key := quad.String()
			if !seen[key] {
				seen[key] = true
				quads = append(quads, quad)
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return &GraphResult{Quads: quads}, nil
}

// instantiate resolves one template slot for a row. Template blank nodes
// (parsed as _anon variables) get a fresh blank node per row per label.
func (e *Executor) instantiate(tv algebra.TermOrVar, binding *store.Binding, bnodes map[string]*rdf.BlankNode, row int) rdf.Term {
	if !tv.IsVar() {
		return tv.Term
	}
	if isAnonVar(tv.Var) {
		if b, ok := bnodes[tv.Var]; ok {
			return b
		}
		b := rdf.NewBlankNode(fmt.Sprintf("c%db%d", row, len(bnodes)+1))
		bnodes[tv.Var] = b
		return b
	}
	return binding.Get(tv.Var)
}

func isAnonVar(name string) bool {
	return len(name) >= 5 && name[:5] == "_anon"
}

// executeDescribe returns the concise bounded description of each
// target: its quads plus, recursively, the quads of blank nodes reached
// in object position.
func (e *Executor) executeDescribe(query *algebra.Query) (*GraphResult, error) {
	resources := make(map[string]rdf.Term)
	var order []string
	addResource := func(t rdf.Term) {
		switch t.(type) {
		case *rdf.NamedNode, *rdf.BlankNode:
			key := t.String()
			if _, ok := resources[key]; !ok {
				resources[key] = t
				order = append(order, key)
			}
		}
	}

	var groundTargets []rdf.Term
	var varTargets []string
	for _, target := range query.Describe {
		if target.IsVar() {
			varTargets = append(varTargets, target.Var)
		} else {
			groundTargets = append(groundTargets, target.Term)
		}
	}
	for _, t := range groundTargets {
		addResource(t)
	}

	if len(varTargets) > 0 {
		it, err := e.build(query.Pattern, store.NewBinding(), graphCtx{})
		if err != nil {
			return nil, err
		}
		for it.Next() {
			binding := it.Binding()
			for _, v := range varTargets {
				if term := binding.Get(v); term != nil {
					addResource(term)
				}
			}
		}
		err = it.Err()
		_ = it.Close()
		if err != nil {
			return nil, err
		}
	}

	var quads []*rdf.Quad
	described := make(map[string]bool)
	for i := 0; i < len(order); i++ {
		key := order[i]
		if described[key] {
			continue
		}
		described[key] = true
		subject := resources[key]

		it, err := e.snapshot.QuadsForPattern(&store.Pattern{Subject: subject})
		if err != nil {
			return nil, err
		}
		for it.Next() {
			quad, err := it.Quad()
			if err != nil {
				_ = it.Close()
				return nil, err
			}
			quads = append(quads, quad)
			// Blank objects extend the description
			if blank, ok := quad.Object.(*rdf.BlankNode); ok {
				bkey := blank.String()
				if !described[bkey] {
					if _, present := resources[bkey]; !present {
						resources[bkey] = blank
						order = append(order, bkey)
					}
				}
			}
		}
		err = it.Err()
		_ = it.Close()
		if err != nil {
			return nil, err
		}
	}
	return &GraphResult{Quads: quads}, nil
}

// evalExists tests an EXISTS sub-pattern by evaluating it with the
// current row's bindings pushed down as the initial binding; an inline
// VALUES at the root therefore joins against the row exactly as the
// substitution semantics require.
func (e *Executor) evalExists(pattern algebra.GraphPattern, binding *store.Binding) (bool, error) {
	it, err := e.build(pattern, binding, graphCtx{})
	if err != nil {
		return false, err
	}
	defer func() { _ = it.Close() }()

	found := it.Next()
	if err := it.Err(); err != nil {
		return false, err
	}
	return found, nil
}

// graphCtx is the graph context a pattern evaluates in: the default
// graph, a fixed named graph, or a variable ranging over named graphs.
type graphCtx struct {
	selector store.GraphSelector // zero value: default graph for BGPs
	variable string
}

func (g graphCtx) patternSelector(binding *store.Binding) store.GraphSelector {
	if g.variable != "" {
		if bound := binding.Get(g.variable); bound != nil {
			return store.GraphNamed(bound)
		}
		return store.GraphAnyNamed()
	}
	if g.variable == "" && g.selector.Mode == store.GraphModeAll {
		// BGPs outside GRAPH match the default graph only
		return store.GraphDefault()
	}
	return g.selector
}
