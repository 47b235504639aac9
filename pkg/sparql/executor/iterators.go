package executor

import (
	"fmt"
	"sort"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/evaluator"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// build constructs the iterator for a node. input carries the bindings
// accumulated upstream; every produced binding is a superset of it.
func (e *Executor) build(node algebra.GraphPattern, input *store.Binding, g graphCtx) (BindingIterator, error) {
	switch n := node.(type) {
	case *algebra.BGP:
		if len(n.Patterns) == 0 {
			return &sliceIterator{rows: []*store.Binding{input}}, nil
		}
		return e.newBGPIterator(n, input, g), nil

	case *algebra.PathPattern:
		return e.buildPath(n, input, g)

	case *algebra.Join:
		left, err := e.build(n.Left, input, g)
		if err != nil {
			return nil, err
		}
		return &joinIterator{
			e:    e,
			left: left,
			buildRight: func(b *store.Binding) (BindingIterator, error) {
				return e.build(n.Right, b, g)
			},
		}, nil

	case *algebra.LeftJoin:
		left, err := e.build(n.Left, input, g)
		if err != nil {
			return nil, err
		}
		return &leftJoinIterator{
			e:    e,
			left: left,
			expr: n.Expr,
			buildRight: func(b *store.Binding) (BindingIterator, error) {
				return e.build(n.Right, b, g)
			},
		}, nil

	case *algebra.Filter:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return &filterIterator{e: e, inner: inner, expr: n.Expr}, nil

	case *algebra.Union:
		left, err := e.build(n.Left, input, g)
		if err != nil {
			return nil, err
		}
		return &unionIterator{
			e:     e,
			first: left,
			buildSecond: func() (BindingIterator, error) {
				return e.build(n.Right, input, g)
			},
		}, nil

	case *algebra.Graph:
		ctx := graphCtx{}
		if n.Name.IsVar() {
			ctx.variable = n.Name.Var
		} else {
			ctx.selector = store.GraphNamed(n.Name.Term)
		}
		return e.build(n.Inner, input, ctx)

	case *algebra.Extend:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return &extendIterator{e: e, inner: inner, varName: n.Var, expr: n.Expr}, nil

	case *algebra.Minus:
		left, err := e.build(n.Left, input, g)
		if err != nil {
			return nil, err
		}
		return &minusIterator{
			e:    e,
			left: left,
			buildRight: func() (BindingIterator, error) {
				return e.build(n.Right, input, g)
			},
		}, nil

	case *algebra.Values:
		return &valuesIterator{values: n, input: input}, nil

	case *algebra.Service:
		if n.Silent {
			// A silent unreachable service contributes the identity
			return &sliceIterator{rows: []*store.Binding{input}}, nil
		}
		return nil, ErrServiceUnsupported

	case *algebra.Group:
		return e.buildGroup(n, input, g)

	case *algebra.OrderBy:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return e.orderMaterialized(inner, n.Conditions)

	case *algebra.Project:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return &projectIterator{inner: inner, vars: n.Vars, input: input}, nil

	case *algebra.Distinct:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return &distinctIterator{inner: inner, seen: make(map[string]bool)}, nil

	case *algebra.Reduced:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return &reducedIterator{inner: inner}, nil

	case *algebra.Slice:
		inner, err := e.build(n.Inner, input, g)
		if err != nil {
			return nil, err
		}
		return &sliceLimitIterator{inner: inner, offset: n.Offset, limit: n.Limit}, nil

	default:
		return nil, fmt.Errorf("unsupported algebra node %T", node)
	}
}

// sliceIterator replays a materialized list of bindings.
type sliceIterator struct {
	rows []*store.Binding
	idx  int
	cur  *store.Binding
}

func (it *sliceIterator) Next() bool {
	if it.idx >= len(it.rows) {
		return false
	}
	it.cur = it.rows[it.idx]
	it.idx++
	return true
}

func (it *sliceIterator) Binding() *store.Binding { return it.cur }
func (it *sliceIterator) Err() error              { return nil }
func (it *sliceIterator) Close() error            { return nil }

// joinIterator is a dependent nested-loop join: the right side is
// rebuilt for every left row with that row's bindings pushed down.
type joinIterator struct {
	e          *Executor
	left       BindingIterator
	buildRight func(*store.Binding) (BindingIterator, error)
	right      BindingIterator
	cur        *store.Binding
	err        error
}

func (it *joinIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if err := it.e.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if it.right != nil {
			if it.right.Next() {
				it.cur = it.right.Binding()
				return true
			}
			if err := it.right.Err(); err != nil {
				it.err = err
				return false
			}
			_ = it.right.Close()
			it.right = nil
		}
		if !it.left.Next() {
			it.err = it.left.Err()
			return false
		}
		right, err := it.buildRight(it.left.Binding())
		if err != nil {
			it.err = err
			return false
		}
		it.right = right
	}
}

func (it *joinIterator) Binding() *store.Binding { return it.cur }
func (it *joinIterator) Err() error              { return it.err }

func (it *joinIterator) Close() error {
	if it.right != nil {
		_ = it.right.Close()
	}
	return it.left.Close()
}

// leftJoinIterator implements OPTIONAL with its filter as part of the
// join: left rows with no qualifying right row pass through unextended.
type leftJoinIterator struct {
	e          *Executor
	left       BindingIterator
	buildRight func(*store.Binding) (BindingIterator, error)
	expr       algebra.Expression

	right    BindingIterator
	leftRow  *store.Binding
	matched  bool
	cur      *store.Binding
	err      error
}

func (it *leftJoinIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for {
		if err := it.e.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if it.right != nil {
			for it.right.Next() {
				candidate := it.right.Binding()
				if it.expr != nil {
					ok, err := it.e.eval.EvaluateEBV(it.expr, candidate)
					if err != nil && !evaluator.IsTypeError(err) {
						it.err = err
						return false
					}
					if err != nil || !ok {
						continue
					}
				}
				it.matched = true
				it.cur = candidate
				return true
			}
			if err := it.right.Err(); err != nil {
				it.err = err
				return false
			}
			_ = it.right.Close()
			it.right = nil
			if !it.matched {
				it.cur = it.leftRow
				return true
			}
		}
		if !it.left.Next() {
			it.err = it.left.Err()
			return false
		}
		it.leftRow = it.left.Binding()
		it.matched = false
		right, err := it.buildRight(it.leftRow)
		if err != nil {
			it.err = err
			return false
		}
		it.right = right
	}
}

func (it *leftJoinIterator) Binding() *store.Binding { return it.cur }
func (it *leftJoinIterator) Err() error              { return it.err }

func (it *leftJoinIterator) Close() error {
	if it.right != nil {
		_ = it.right.Close()
	}
	return it.left.Close()
}

// filterIterator keeps rows whose constraint is true; evaluation errors
// exclude the row.
type filterIterator struct {
	e     *Executor
	inner BindingIterator
	expr  algebra.Expression
	err   error
}

func (it *filterIterator) Next() bool {
	if it.err != nil {
		return false
	}
	for it.inner.Next() {
		if err := it.e.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		ok, err := it.e.eval.EvaluateEBV(it.expr, it.inner.Binding())
		if err != nil {
			if evaluator.IsTypeError(err) {
				continue
			}
			it.err = err
			return false
		}
		if ok {
			return true
		}
	}
	it.err = it.inner.Err()
	return false
}

func (it *filterIterator) Binding() *store.Binding { return it.inner.Binding() }
func (it *filterIterator) Err() error              { return it.err }
func (it *filterIterator) Close() error            { return it.inner.Close() }

// unionIterator concatenates both sides, preserving bag cardinality.
type unionIterator struct {
	e           *Executor
	first       BindingIterator
	buildSecond func() (BindingIterator, error)
	second      BindingIterator
	onSecond    bool
	err         error
}

func (it *unionIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.onSecond {
		if it.first.Next() {
			return true
		}
		if err := it.first.Err(); err != nil {
			it.err = err
			return false
		}
		it.onSecond = true
		second, err := it.buildSecond()
		if err != nil {
			it.err = err
			return false
		}
		it.second = second
	}
	if it.second.Next() {
		return true
	}
	it.err = it.second.Err()
	return false
}

func (it *unionIterator) Binding() *store.Binding {
	if it.onSecond {
		return it.second.Binding()
	}
	return it.first.Binding()
}

func (it *unionIterator) Err() error { return it.err }

func (it *unionIterator) Close() error {
	if it.second != nil {
		_ = it.second.Close()
	}
	return it.first.Close()
}

// extendIterator is BIND: errors leave the variable unbound.
type extendIterator struct {
	e       *Executor
	inner   BindingIterator
	varName string
	expr    algebra.Expression
	cur     *store.Binding
	err     error
}

func (it *extendIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.inner.Next() {
		it.err = it.inner.Err()
		return false
	}
	binding := it.inner.Binding()
	value, err := it.e.eval.Evaluate(it.expr, binding)
	if err != nil && !evaluator.IsTypeError(err) {
		it.err = err
		return false
	}
	if err == nil && value != nil {
		binding = binding.Clone()
		binding.Set(it.varName, value)
	}
	it.cur = binding
	return true
}

func (it *extendIterator) Binding() *store.Binding { return it.cur }
func (it *extendIterator) Err() error              { return it.err }
func (it *extendIterator) Close() error            { return it.inner.Close() }

// minusIterator removes left rows with a compatible right row sharing at
// least one variable; disjoint right rows remove nothing.
type minusIterator struct {
	e          *Executor
	left       BindingIterator
	buildRight func() (BindingIterator, error)
	rightRows  []*store.Binding
	loaded     bool
	err        error
}

func (it *minusIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.loaded {
		it.loaded = true
		right, err := it.buildRight()
		if err != nil {
			it.err = err
			return false
		}
		for right.Next() {
			it.rightRows = append(it.rightRows, right.Binding().Clone())
		}
		err = right.Err()
		_ = right.Close()
		if err != nil {
			it.err = err
			return false
		}
	}

	for it.left.Next() {
		if err := it.e.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		row := it.left.Binding()
		excluded := false
		for _, r := range it.rightRows {
			if row.SharesVariable(r) && row.Compatible(r) && r.Compatible(row) {
				excluded = true
				break
			}
		}
		if !excluded {
			return true
		}
	}
	it.err = it.left.Err()
	return false
}

func (it *minusIterator) Binding() *store.Binding { return it.left.Binding() }
func (it *minusIterator) Err() error              { return it.err }
func (it *minusIterator) Close() error            { return it.left.Close() }

// valuesIterator emits the inline data rows joined with the input
// binding.
type valuesIterator struct {
	values *algebra.Values
	input  *store.Binding
	idx    int
	cur    *store.Binding
}

func (it *valuesIterator) Next() bool {
	for it.idx < len(it.values.Rows) {
		row := it.values.Rows[it.idx]
		it.idx++

		binding := store.NewBinding()
		for i, v := range it.values.Vars {
			if i < len(row) && row[i] != nil {
				binding.Set(v, row[i])
			}
		}
		if binding.Compatible(it.input) && it.input.Compatible(binding) {
			it.cur = it.input.Merge(binding)
			return true
		}
	}
	return false
}

func (it *valuesIterator) Binding() *store.Binding { return it.cur }
func (it *valuesIterator) Err() error              { return nil }
func (it *valuesIterator) Close() error            { return nil }

// projectIterator restricts rows to the projected variables on top of
// the context bindings.
type projectIterator struct {
	inner BindingIterator
	vars  []string
	input *store.Binding
	cur   *store.Binding
}

func (it *projectIterator) Next() bool {
	if !it.inner.Next() {
		return false
	}
	row := it.inner.Binding()
	projected := it.input.Clone()
	for _, v := range it.vars {
		if term := row.Get(v); term != nil {
			projected.Set(v, term)
		}
	}
	it.cur = projected
	return true
}

func (it *projectIterator) Binding() *store.Binding { return it.cur }
func (it *projectIterator) Err() error              { return it.inner.Err() }
func (it *projectIterator) Close() error            { return it.inner.Close() }

// distinctIterator materializes a set of canonicalized rows.
type distinctIterator struct {
	inner BindingIterator
	seen  map[string]bool
}

func (it *distinctIterator) Next() bool {
	for it.inner.Next() {
		sig := it.inner.Binding().Signature(nil)
		if !it.seen[sig] {
			it.seen[sig] = true
			return true
		}
	}
	return false
}

func (it *distinctIterator) Binding() *store.Binding { return it.inner.Binding() }
func (it *distinctIterator) Err() error              { return it.inner.Err() }
func (it *distinctIterator) Close() error            { return it.inner.Close() }

// reducedIterator collapses adjacent duplicates only.
type reducedIterator struct {
	inner   BindingIterator
	last    string
	started bool
}

func (it *reducedIterator) Next() bool {
	for it.inner.Next() {
		sig := it.inner.Binding().Signature(nil)
		if it.started && sig == it.last {
			continue
		}
		it.started = true
		it.last = sig
		return true
	}
	return false
}

func (it *reducedIterator) Binding() *store.Binding { return it.inner.Binding() }
func (it *reducedIterator) Err() error              { return it.inner.Err() }
func (it *reducedIterator) Close() error            { return it.inner.Close() }

// sliceLimitIterator applies OFFSET and LIMIT.
type sliceLimitIterator struct {
	inner   BindingIterator
	offset  int
	limit   *int
	skipped int
	emitted int
}

func (it *sliceLimitIterator) Next() bool {
	if it.limit != nil && it.emitted >= *it.limit {
		return false
	}
	for it.inner.Next() {
		if it.skipped < it.offset {
			it.skipped++
			continue
		}
		it.emitted++
		return true
	}
	return false
}

func (it *sliceLimitIterator) Binding() *store.Binding { return it.inner.Binding() }
func (it *sliceLimitIterator) Err() error              { return it.inner.Err() }
func (it *sliceLimitIterator) Close() error            { return it.inner.Close() }

// orderMaterialized sorts the full input. Sort keys are evaluated once
// per row; evaluation errors order before any value.
func (e *Executor) orderMaterialized(inner BindingIterator, conditions []algebra.OrderCondition) (BindingIterator, error) {
	type sortRow struct {
		binding *store.Binding
		keys    []rdf.Term
	}
	var rows []sortRow
	for inner.Next() {
		binding := inner.Binding().Clone()
		keys := make([]rdf.Term, len(conditions))
		for i, cond := range conditions {
			value, err := e.eval.Evaluate(cond.Expr, binding)
			if err != nil {
				if !evaluator.IsTypeError(err) {
					_ = inner.Close()
					return nil, err
				}
				value = nil
			}
			keys[i] = value
		}
		rows = append(rows, sortRow{binding: binding, keys: keys})
	}
	err := inner.Err()
	_ = inner.Close()
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for k, cond := range conditions {
			cmp := evaluator.OrderCompare(rows[i].keys[k], rows[j].keys[k])
			if cmp == 0 {
				continue
			}
			if cond.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	out := make([]*store.Binding, len(rows))
	for i, row := range rows {
		out[i] = row.binding
	}
	return &sliceIterator{rows: out}, nil
}
