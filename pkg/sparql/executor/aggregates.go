package executor

import (
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/evaluator"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// buildGroup materializes the inner solutions, groups them by the key
// expressions, and folds each group through the aggregate accumulators.
func (e *Executor) buildGroup(node *algebra.Group, input *store.Binding, g graphCtx) (BindingIterator, error) {
	inner, err := e.build(node.Inner, input, g)
	if err != nil {
		return nil, err
	}

	type groupState struct {
		key  *store.Binding
		accs []*accumulator
	}
	groups := make(map[string]*groupState)
	var order []string

	newState := func(key *store.Binding) *groupState {
		state := &groupState{key: key}
		for _, ab := range node.Aggregates {
			state.accs = append(state.accs, newAccumulator(ab.Agg))
		}
		return state
	}

	rowCount := 0
	for inner.Next() {
		rowCount++
		row := inner.Binding()

		key := store.NewBinding()
		for _, gk := range node.Keys {
			value, err := e.eval.Evaluate(gk.Expr, row)
			if err != nil {
				if !evaluator.IsTypeError(err) {
					_ = inner.Close()
					return nil, err
				}
				continue
			}
			if gk.Var != "" {
				key.Set(gk.Var, value)
			}
		}
		sig := key.Signature(nil)

		state, ok := groups[sig]
		if !ok {
			state = newState(key)
			groups[sig] = state
			order = append(order, sig)
		}
		for i, ab := range node.Aggregates {
			var value rdf.Term
			if ab.Agg.Expr != nil {
				v, err := e.eval.Evaluate(ab.Agg.Expr, row)
				if err != nil {
					if !evaluator.IsTypeError(err) {
						_ = inner.Close()
						return nil, err
					}
					// Unbound and erroring rows are skipped by the
					// accumulators
					continue
				}
				value = v
			}
			state.accs[i].add(value)
		}
	}
	err = inner.Err()
	_ = inner.Close()
	if err != nil {
		return nil, err
	}

	// With no GROUP BY keys an empty input still yields one group
	if len(node.Keys) == 0 && rowCount == 0 {
		sig := store.NewBinding().Signature(nil)
		groups[sig] = newState(store.NewBinding())
		order = append(order, sig)
	}

	rows := make([]*store.Binding, 0, len(order))
	for _, sig := range order {
		state := groups[sig]
		out := input.Merge(state.key)
		for i, ab := range node.Aggregates {
			if value := state.accs[i].result(); value != nil {
				out.Set(ab.Var, value)
			}
		}
		rows = append(rows, out)
	}
	return &sliceIterator{rows: rows}, nil
}

// accumulator folds one aggregate over the rows of a group. Unbound
// values are skipped; numeric aggregates error out (yield unbound) on
// non-numeric input.
type accumulator struct {
	agg  *algebra.Aggregate
	seen map[string]bool

	count   int64
	sum     rdf.Term
	minTerm rdf.Term
	maxTerm rdf.Term
	sample  rdf.Term
	concat  []string
	failed  bool
}

func newAccumulator(agg *algebra.Aggregate) *accumulator {
	acc := &accumulator{agg: agg, sum: rdf.NewIntegerLiteral(0)}
	if agg.Distinct {
		acc.seen = make(map[string]bool)
	}
	return acc
}

func (a *accumulator) add(value rdf.Term) {
	if value == nil {
		// COUNT(*) counts rows regardless of bindings
		if a.agg.Expr == nil && a.agg.Func == "COUNT" {
			a.count++
		}
		return
	}
	if a.seen != nil {
		sig := value.String()
		if a.seen[sig] {
			return
		}
		a.seen[sig] = true
	}

	switch a.agg.Func {
	case "COUNT":
		a.count++
	case "SUM", "AVG":
		sum, err := evalArith("+", a.sum, value)
		if err != nil {
			a.failed = true
			return
		}
		a.sum = sum
		a.count++
	case "MIN":
		if a.minTerm == nil || evaluator.OrderCompare(value, a.minTerm) < 0 {
			a.minTerm = value
		}
	case "MAX":
		if a.maxTerm == nil || evaluator.OrderCompare(value, a.maxTerm) > 0 {
			a.maxTerm = value
		}
	case "SAMPLE":
		if a.sample == nil {
			a.sample = value
		}
	case "GROUP_CONCAT":
		if lit, ok := value.(*rdf.Literal); ok {
			a.concat = append(a.concat, lit.Value)
		} else if nn, ok := value.(*rdf.NamedNode); ok {
			a.concat = append(a.concat, nn.IRI)
		}
	}
}

func (a *accumulator) result() rdf.Term {
	if a.failed {
		return nil
	}
	switch a.agg.Func {
	case "COUNT":
		return rdf.NewIntegerLiteral(a.count)
	case "SUM":
		return a.sum
	case "AVG":
		if a.count == 0 {
			return rdf.NewIntegerLiteral(0)
		}
		avg, err := evalArith("/", a.sum, rdf.NewIntegerLiteral(a.count))
		if err != nil {
			return nil
		}
		return avg
	case "MIN":
		return a.minTerm
	case "MAX":
		return a.maxTerm
	case "SAMPLE":
		return a.sample
	case "GROUP_CONCAT":
		return rdf.NewLiteral(strings.Join(a.concat, a.agg.Separator))
	default:
		return nil
	}
}

// evalArith applies arithmetic through the expression evaluator's value
// semantics.
func evalArith(op string, left, right rdf.Term) (rdf.Term, error) {
	ev := evaluator.NewEvaluator()
	return ev.Evaluate(&algebra.ExprBinary{
		Op:    op,
		Left:  &algebra.ExprTerm{Term: left},
		Right: &algebra.ExprTerm{Term: right},
	}, store.NewBinding())
}
