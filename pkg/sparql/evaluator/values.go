package evaluator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// TypeError is a SPARQL expression evaluation error. It is local to the
// row being evaluated: filters exclude the row, BIND leaves the variable
// unbound, ORDER BY sorts it at one extreme.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string {
	return "evaluation type error: " + e.Msg
}

func typeErrf(format string, args ...any) error {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

// IsTypeError reports whether err is a per-row evaluation error rather
// than a storage failure.
func IsTypeError(err error) bool {
	_, ok := err.(*TypeError)
	return ok
}

// numericKind follows the SPARQL promotion hierarchy.
type numericKind int

const (
	kindInteger numericKind = iota
	kindDecimal
	kindFloat
	kindDouble
)

// numeric is a parsed numeric literal value.
type numeric struct {
	kind numericKind
	i    int64   // valid for kindInteger
	f    float64 // valid otherwise
}

func (n numeric) float() float64 {
	if n.kind == kindInteger {
		return float64(n.i)
	}
	return n.f
}

var integerDatatypes = map[string]bool{
	rdf.XSDInteger.IRI: true,
	"http://www.w3.org/2001/XMLSchema#int":                true,
	"http://www.w3.org/2001/XMLSchema#long":               true,
	"http://www.w3.org/2001/XMLSchema#short":              true,
	"http://www.w3.org/2001/XMLSchema#byte":               true,
	"http://www.w3.org/2001/XMLSchema#nonNegativeInteger": true,
	"http://www.w3.org/2001/XMLSchema#nonPositiveInteger": true,
	"http://www.w3.org/2001/XMLSchema#negativeInteger":    true,
	"http://www.w3.org/2001/XMLSchema#positiveInteger":    true,
	"http://www.w3.org/2001/XMLSchema#unsignedInt":        true,
	"http://www.w3.org/2001/XMLSchema#unsignedLong":       true,
	"http://www.w3.org/2001/XMLSchema#unsignedShort":      true,
	"http://www.w3.org/2001/XMLSchema#unsignedByte":       true,
}

// parseNumeric extracts the numeric value of a literal, reporting its
// position in the promotion hierarchy.
func parseNumeric(term rdf.Term) (numeric, bool) {
	lit, ok := term.(*rdf.Literal)
	if !ok || lit.Language != "" {
		return numeric{}, false
	}
	dt := lit.DatatypeIRI()
	switch {
	case integerDatatypes[dt]:
		i, err := strconv.ParseInt(strings.TrimSpace(lit.Value), 10, 64)
		if err != nil {
			return numeric{}, false
		}
		return numeric{kind: kindInteger, i: i}, true
	case dt == rdf.XSDDecimal.IRI:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
		if err != nil {
			return numeric{}, false
		}
		return numeric{kind: kindDecimal, f: f}, true
	case dt == rdf.XSDFloat.IRI:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
		if err != nil {
			return numeric{}, false
		}
		return numeric{kind: kindFloat, f: f}, true
	case dt == rdf.XSDDouble.IRI:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit.Value), 64)
		if err != nil {
			return numeric{}, false
		}
		return numeric{kind: kindDouble, f: f}, true
	default:
		return numeric{}, false
	}
}

// promote picks the wider of two numeric kinds.
func promote(a, b numericKind) numericKind {
	if a > b {
		return a
	}
	return b
}

// numericLiteral renders a numeric value at a given kind back into a
// literal.
func numericLiteral(kind numericKind, i int64, f float64) rdf.Term {
	switch kind {
	case kindInteger:
		return rdf.NewIntegerLiteral(i)
	case kindDecimal:
		return rdf.NewDecimalLiteral(formatDecimalValue(f))
	case kindFloat:
		return rdf.NewLiteralWithDatatype(rdf.FormatDouble(f), rdf.XSDFloat)
	default:
		return rdf.NewDoubleLiteral(f)
	}
}

func formatDecimalValue(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// arith applies one arithmetic operator with SPARQL numeric promotion.
// Integer division yields a decimal; division by integer zero is an
// error.
func arith(op string, left, right rdf.Term) (rdf.Term, error) {
	a, okA := parseNumeric(left)
	b, okB := parseNumeric(right)
	if !okA || !okB {
		return nil, typeErrf("%q requires numeric operands", op)
	}

	kind := promote(a.kind, b.kind)
	if op == "/" && kind == kindInteger {
		kind = kindDecimal
	}

	if kind == kindInteger {
		switch op {
		case "+":
			return numericLiteral(kindInteger, a.i+b.i, 0), nil
		case "-":
			return numericLiteral(kindInteger, a.i-b.i, 0), nil
		case "*":
			return numericLiteral(kindInteger, a.i*b.i, 0), nil
		}
	}

	af, bf := a.float(), b.float()
	var result float64
	switch op {
	case "+":
		result = af + bf
	case "-":
		result = af - bf
	case "*":
		result = af * bf
	case "/":
		if bf == 0 && kind != kindFloat && kind != kindDouble {
			return nil, typeErrf("division by zero")
		}
		result = af / bf
	default:
		return nil, typeErrf("unknown arithmetic operator %q", op)
	}
	return numericLiteral(kind, 0, result), nil
}

// compareTerms implements the SPARQL operator mapping for <, <=, >, >=:
// numerics by value, strings codepoint-wise, language-tagged strings only
// with identical tags, booleans, and date/times; anything else is a type
// error.
func compareTerms(left, right rdf.Term) (int, error) {
	if an, ok := parseNumeric(left); ok {
		if bn, ok := parseNumeric(right); ok {
			af, bf := an.float(), bn.float()
			if math.IsNaN(af) || math.IsNaN(bf) {
				return 0, typeErrf("NaN is not comparable")
			}
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	ll, okL := left.(*rdf.Literal)
	rl, okR := right.(*rdf.Literal)
	if !okL || !okR {
		return 0, typeErrf("cannot compare %T with %T", left, right)
	}

	ldt, rdt := ll.DatatypeIRI(), rl.DatatypeIRI()
	switch {
	case ldt == rdf.XSDString.IRI && rdt == rdf.XSDString.IRI:
		return strings.Compare(ll.Value, rl.Value), nil

	case ldt == rdf.RDFLangString.IRI && rdt == rdf.RDFLangString.IRI:
		if !strings.EqualFold(ll.Language, rl.Language) {
			return 0, typeErrf("language-tagged strings with different tags are not comparable")
		}
		return strings.Compare(ll.Value, rl.Value), nil

	case ldt == rdf.XSDBoolean.IRI && rdt == rdf.XSDBoolean.IRI:
		lb, errL := parseBoolean(ll.Value)
		rb, errR := parseBoolean(rl.Value)
		if errL != nil || errR != nil {
			return 0, typeErrf("invalid boolean lexical form")
		}
		switch {
		case lb == rb:
			return 0, nil
		case !lb:
			return -1, nil
		default:
			return 1, nil
		}

	case isDateTimeDatatype(ldt) && isDateTimeDatatype(rdt):
		lt, errL := parseDateTimeValue(ll)
		rt, errR := parseDateTimeValue(rl)
		if errL != nil || errR != nil {
			return 0, typeErrf("invalid dateTime lexical form")
		}
		switch {
		case lt.Before(rt):
			return -1, nil
		case lt.After(rt):
			return 1, nil
		default:
			return 0, nil
		}

	default:
		return 0, typeErrf("cannot compare %s with %s", ldt, rdt)
	}
}

func isDateTimeDatatype(dt string) bool {
	return dt == rdf.XSDDateTime.IRI || dt == rdf.XSDDate.IRI
}

func parseBoolean(lexical string) (bool, error) {
	switch strings.TrimSpace(lexical) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", lexical)
	}
}

var dateTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02Z07:00",
	"2006-01-02",
}

func parseDateTimeValue(lit *rdf.Literal) (time.Time, error) {
	value := strings.TrimSpace(lit.Value)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid dateTime %q", lit.Value)
}

// equalTerms implements the "=" operator: value equality for the
// supported datatypes, term equality otherwise. Comparing two distinct
// literals of unsupported datatypes is an error rather than false.
func equalTerms(left, right rdf.Term) (bool, error) {
	if left.Equals(right) {
		return true, nil
	}
	if cmp, err := compareTerms(left, right); err == nil {
		return cmp == 0, nil
	}

	ll, okL := left.(*rdf.Literal)
	rl, okR := right.(*rdf.Literal)
	if okL && okR {
		known := func(dt string) bool {
			return dt == rdf.XSDString.IRI || dt == rdf.RDFLangString.IRI ||
				dt == rdf.XSDBoolean.IRI || isDateTimeDatatype(dt) ||
				integerDatatypes[dt] || dt == rdf.XSDDecimal.IRI ||
				dt == rdf.XSDFloat.IRI || dt == rdf.XSDDouble.IRI
		}
		if !known(ll.DatatypeIRI()) || !known(rl.DatatypeIRI()) {
			return false, typeErrf("cannot test equality of unsupported datatypes")
		}
	}
	return false, nil
}

// OrderCompare is the total order used by ORDER BY: unbound < blank
// node < IRI < literal, with literal pairs ordered by value when
// comparable and by datatype and lexical form otherwise.
func OrderCompare(left, right rdf.Term) int {
	lr, rr := orderRank(left), orderRank(right)
	if lr != rr {
		return lr - rr
	}
	if left == nil {
		return 0
	}
	if cmp, err := compareTerms(left, right); err == nil {
		if cmp != 0 {
			return cmp
		}
		// Equal by value: fall back to the lexical rendering so ORDER BY
		// stays deterministic
	}
	return strings.Compare(left.String(), right.String())
}

func orderRank(term rdf.Term) int {
	switch term.(type) {
	case nil:
		return 0
	case *rdf.BlankNode:
		return 1
	case *rdf.NamedNode:
		return 2
	case *rdf.Literal:
		return 3
	default:
		return 4
	}
}
