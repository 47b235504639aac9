// Package evaluator implements SPARQL expression evaluation over
// solution mappings with SPARQL 1.1 value semantics: three-valued logic,
// numeric promotion, and per-row typed errors that the algebra evaluator
// interprets at each sink.
package evaluator

import (
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// errUnbound is the typed error raised when an expression references an
// unbound variable.
var errUnbound = &TypeError{Msg: "unbound variable"}

// ExistsFunc tests a (NOT) EXISTS sub-pattern against the current row.
// The executor provides it; evaluating EXISTS without one is an error.
type ExistsFunc func(pattern algebra.GraphPattern, binding *store.Binding) (bool, error)

// Evaluator evaluates SPARQL expressions against bindings. NOW() is
// fixed per query execution and RAND() draws from a per-execution
// source, so one Evaluator serves exactly one query run.
type Evaluator struct {
	Exists ExistsFunc

	now      time.Time
	rand     *rand.Rand
	bnodeSeq int
}

// NewEvaluator creates an evaluator for one query execution.
func NewEvaluator() *Evaluator {
	now := time.Now()
	return &Evaluator{
		now:  now,
		rand: rand.New(rand.NewSource(now.UnixNano())),
	}
}

// Evaluate evaluates an expression against a binding. It returns the
// resulting term, or an error: a *TypeError for per-row SPARQL errors,
// anything else for storage failures.
func (e *Evaluator) Evaluate(expr algebra.Expression, binding *store.Binding) (rdf.Term, error) {
	switch ex := expr.(type) {
	case *algebra.ExprTerm:
		return ex.Term, nil

	case *algebra.ExprVar:
		if term, ok := binding.Vars[ex.Name]; ok {
			return term, nil
		}
		return nil, errUnbound

	case *algebra.ExprUnary:
		return e.evaluateUnary(ex, binding)

	case *algebra.ExprBinary:
		return e.evaluateBinary(ex, binding)

	case *algebra.ExprIn:
		return e.evaluateIn(ex, binding)

	case *algebra.ExprExists:
		if e.Exists == nil {
			return nil, fmt.Errorf("EXISTS is not available in this context")
		}
		found, err := e.Exists(ex.Pattern, binding)
		if err != nil {
			return nil, err
		}
		if ex.Not {
			found = !found
		}
		return rdf.NewBooleanLiteral(found), nil

	case *algebra.ExprFunc:
		return e.evaluateCall(ex, binding)

	case *algebra.ExprAggregate:
		return nil, fmt.Errorf("aggregate call outside of a group context")

	default:
		return nil, fmt.Errorf("unsupported expression type %T", expr)
	}
}

// EffectiveBooleanValue computes the EBV of an expression result per the
// SPARQL operator mapping.
func (e *Evaluator) EffectiveBooleanValue(term rdf.Term) (bool, error) {
	lit, ok := term.(*rdf.Literal)
	if !ok {
		return false, typeErrf("EBV of a non-literal")
	}
	dt := lit.DatatypeIRI()
	switch {
	case dt == rdf.XSDBoolean.IRI:
		b, err := parseBoolean(lit.Value)
		if err != nil {
			return false, typeErrf("invalid boolean %q", lit.Value)
		}
		return b, nil
	case dt == rdf.XSDString.IRI || dt == rdf.RDFLangString.IRI:
		return lit.Value != "", nil
	default:
		if n, ok := parseNumeric(lit); ok {
			f := n.float()
			return f != 0 && f == f, nil
		}
		return false, typeErrf("EBV of datatype %s", dt)
	}
}

// EvaluateEBV evaluates an expression and reduces it to its effective
// boolean value.
func (e *Evaluator) EvaluateEBV(expr algebra.Expression, binding *store.Binding) (bool, error) {
	term, err := e.Evaluate(expr, binding)
	if err != nil {
		return false, err
	}
	return e.EffectiveBooleanValue(term)
}

func (e *Evaluator) evaluateUnary(ex *algebra.ExprUnary, binding *store.Binding) (rdf.Term, error) {
	switch ex.Op {
	case "!":
		ebv, err := e.EvaluateEBV(ex.X, binding)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!ebv), nil
	case "-", "+":
		term, err := e.Evaluate(ex.X, binding)
		if err != nil {
			return nil, err
		}
		n, ok := parseNumeric(term)
		if !ok {
			return nil, typeErrf("unary %q requires a numeric operand", ex.Op)
		}
		if ex.Op == "+" {
			return term, nil
		}
		if n.kind == kindInteger {
			return numericLiteral(kindInteger, -n.i, 0), nil
		}
		return numericLiteral(n.kind, 0, -n.f), nil
	default:
		return nil, fmt.Errorf("unknown unary operator %q", ex.Op)
	}
}

func (e *Evaluator) evaluateBinary(ex *algebra.ExprBinary, binding *store.Binding) (rdf.Term, error) {
	switch ex.Op {
	case "&&":
		// Three-valued AND: false dominates errors
		left, leftErr := e.EvaluateEBV(ex.Left, binding)
		if leftErr == nil && !left {
			return rdf.NewBooleanLiteral(false), nil
		}
		right, rightErr := e.EvaluateEBV(ex.Right, binding)
		if rightErr == nil && !right {
			return rdf.NewBooleanLiteral(false), nil
		}
		if leftErr != nil {
			return nil, leftErr
		}
		if rightErr != nil {
			return nil, rightErr
		}
		return rdf.NewBooleanLiteral(true), nil

	case "||":
		// Three-valued OR: true dominates errors
		left, leftErr := e.EvaluateEBV(ex.Left, binding)
		if leftErr == nil && left {
			return rdf.NewBooleanLiteral(true), nil
		}
		right, rightErr := e.EvaluateEBV(ex.Right, binding)
		if rightErr == nil && right {
			return rdf.NewBooleanLiteral(true), nil
		}
		if leftErr != nil {
			return nil, leftErr
		}
		if rightErr != nil {
			return nil, rightErr
		}
		return rdf.NewBooleanLiteral(false), nil
	}

	left, err := e.Evaluate(ex.Left, binding)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(ex.Right, binding)
	if err != nil {
		return nil, err
	}

	switch ex.Op {
	case "=":
		eq, err := equalTerms(left, right)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(eq), nil
	case "!=":
		eq, err := equalTerms(left, right)
		if err != nil {
			return nil, err
		}
		return rdf.NewBooleanLiteral(!eq), nil
	case "<", "<=", ">", ">=":
		cmp, err := compareTerms(left, right)
		if err != nil {
			return nil, err
		}
		var result bool
		switch ex.Op {
		case "<":
			result = cmp < 0
		case "<=":
			result = cmp <= 0
		case ">":
			result = cmp > 0
		case ">=":
			result = cmp >= 0
		}
		return rdf.NewBooleanLiteral(result), nil
	case "+", "-", "*", "/":
		return arith(ex.Op, left, right)
	default:
		return nil, fmt.Errorf("unknown binary operator %q", ex.Op)
	}
}

// evaluateIn implements (NOT) IN: equality against each list member,
// with errors deferred until a match is ruled out.
func (e *Evaluator) evaluateIn(ex *algebra.ExprIn, binding *store.Binding) (rdf.Term, error) {
	left, err := e.Evaluate(ex.X, binding)
	if err != nil {
		return nil, err
	}

	var deferred error
	found := false
	for _, item := range ex.List {
		right, err := e.Evaluate(item, binding)
		if err != nil {
			deferred = err
			continue
		}
		eq, err := equalTerms(left, right)
		if err != nil {
			deferred = err
			continue
		}
		if eq {
			found = true
			break
		}
	}
	if !found && deferred != nil {
		return nil, deferred
	}
	if ex.Not {
		found = !found
	}
	return rdf.NewBooleanLiteral(found), nil
}

// FreshBNode mints a query-scoped blank node. These never enter the
// dictionary.
func (e *Evaluator) FreshBNode() *rdf.BlankNode {
	e.bnodeSeq++
	return rdf.NewBlankNode("qb" + strconv.Itoa(e.bnodeSeq))
}
