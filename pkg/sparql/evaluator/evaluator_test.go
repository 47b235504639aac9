package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

func lit(term rdf.Term) algebra.Expression {
	return &algebra.ExprTerm{Term: term}
}

func evalExpr(t *testing.T, expr algebra.Expression, binding *store.Binding) rdf.Term {
	t.Helper()
	if binding == nil {
		binding = store.NewBinding()
	}
	result, err := NewEvaluator().Evaluate(expr, binding)
	require.NoError(t, err)
	return result
}

func TestArithmeticPromotion(t *testing.T) {
	tests := []struct {
		name string
		op   string
		l, r rdf.Term
		want rdf.Term
	}{
		{"int+int", "+", rdf.NewIntegerLiteral(2), rdf.NewIntegerLiteral(3), rdf.NewIntegerLiteral(5)},
		{"int*int", "*", rdf.NewIntegerLiteral(4), rdf.NewIntegerLiteral(5), rdf.NewIntegerLiteral(20)},
		{"int+decimal", "+", rdf.NewIntegerLiteral(1), rdf.NewDecimalLiteral("0.5"), rdf.NewDecimalLiteral("1.5")},
		{"int+double", "+", rdf.NewIntegerLiteral(1), rdf.NewDoubleLiteral(0.5), rdf.NewDoubleLiteral(1.5)},
		{"int/int is decimal", "/", rdf.NewIntegerLiteral(1), rdf.NewIntegerLiteral(2), rdf.NewDecimalLiteral("0.5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalExpr(t, &algebra.ExprBinary{Op: tt.op, Left: lit(tt.l), Right: lit(tt.r)}, nil)
			assert.True(t, tt.want.Equals(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	_, err := NewEvaluator().Evaluate(&algebra.ExprBinary{
		Op:   "/",
		Left: lit(rdf.NewIntegerLiteral(1)), Right: lit(rdf.NewIntegerLiteral(0)),
	}, store.NewBinding())
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestComparisonOperators(t *testing.T) {
	ev := NewEvaluator()
	b := store.NewBinding()

	lt, err := ev.Evaluate(&algebra.ExprBinary{
		Op:   "<",
		Left: lit(rdf.NewIntegerLiteral(1)), Right: lit(rdf.NewDoubleLiteral(1.5)),
	}, b)
	require.NoError(t, err)
	assert.True(t, lt.Equals(rdf.NewBooleanLiteral(true)))

	// Strings compare codepoint-wise
	cmp, err := ev.Evaluate(&algebra.ExprBinary{
		Op:   "<",
		Left: lit(rdf.NewLiteral("abc")), Right: lit(rdf.NewLiteral("abd")),
	}, b)
	require.NoError(t, err)
	assert.True(t, cmp.Equals(rdf.NewBooleanLiteral(true)))

	// IRIs are not order-comparable
	_, err = ev.Evaluate(&algebra.ExprBinary{
		Op:   "<",
		Left: lit(rdf.NewNamedNode("http://a")), Right: lit(rdf.NewNamedNode("http://b")),
	}, b)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestLangStringComparisonRules(t *testing.T) {
	ev := NewEvaluator()
	b := store.NewBinding()

	// Identical tags compare by lexical form
	result, err := ev.Evaluate(&algebra.ExprBinary{
		Op:   "<",
		Left: lit(rdf.NewLiteralWithLanguage("a", "en")), Right: lit(rdf.NewLiteralWithLanguage("b", "en")),
	}, b)
	require.NoError(t, err)
	assert.True(t, result.Equals(rdf.NewBooleanLiteral(true)))

	// Differing tags are a type error
	_, err = ev.Evaluate(&algebra.ExprBinary{
		Op:   "<",
		Left: lit(rdf.NewLiteralWithLanguage("a", "en")), Right: lit(rdf.NewLiteralWithLanguage("b", "fr")),
	}, b)
	require.Error(t, err)
	assert.True(t, IsTypeError(err))
}

func TestThreeValuedLogic(t *testing.T) {
	ev := NewEvaluator()
	b := store.NewBinding()
	errExpr := &algebra.ExprVar{Name: "unbound"}

	// false && error = false
	result, err := ev.Evaluate(&algebra.ExprBinary{
		Op: "&&", Left: lit(rdf.NewBooleanLiteral(false)), Right: errExpr,
	}, b)
	require.NoError(t, err)
	assert.True(t, result.Equals(rdf.NewBooleanLiteral(false)))

	// true || error = true, in either order
	result, err = ev.Evaluate(&algebra.ExprBinary{
		Op: "||", Left: errExpr, Right: lit(rdf.NewBooleanLiteral(true)),
	}, b)
	require.NoError(t, err)
	assert.True(t, result.Equals(rdf.NewBooleanLiteral(true)))

	// true && error = error
	_, err = ev.Evaluate(&algebra.ExprBinary{
		Op: "&&", Left: lit(rdf.NewBooleanLiteral(true)), Right: errExpr,
	}, b)
	assert.Error(t, err)
}

func TestStringFunctions(t *testing.T) {
	tests := []struct {
		name string
		expr algebra.Expression
		want rdf.Term
	}{
		{"STR of IRI", &algebra.ExprFunc{Name: "STR", Args: []algebra.Expression{lit(rdf.NewNamedNode("http://x"))}}, rdf.NewLiteral("http://x")},
		{"STRLEN", &algebra.ExprFunc{Name: "STRLEN", Args: []algebra.Expression{lit(rdf.NewLiteral("héllo"))}}, rdf.NewIntegerLiteral(5)},
		{"UCASE keeps lang", &algebra.ExprFunc{Name: "UCASE", Args: []algebra.Expression{lit(rdf.NewLiteralWithLanguage("ab", "en"))}}, rdf.NewLiteralWithLanguage("AB", "en")},
		{"CONTAINS", &algebra.ExprFunc{Name: "CONTAINS", Args: []algebra.Expression{lit(rdf.NewLiteral("foobar")), lit(rdf.NewLiteral("oba"))}}, rdf.NewBooleanLiteral(true)},
		{"STRBEFORE", &algebra.ExprFunc{Name: "STRBEFORE", Args: []algebra.Expression{lit(rdf.NewLiteral("abc")), lit(rdf.NewLiteral("b"))}}, rdf.NewLiteral("a")},
		{"STRAFTER", &algebra.ExprFunc{Name: "STRAFTER", Args: []algebra.Expression{lit(rdf.NewLiteral("abc")), lit(rdf.NewLiteral("b"))}}, rdf.NewLiteral("c")},
		{"CONCAT", &algebra.ExprFunc{Name: "CONCAT", Args: []algebra.Expression{lit(rdf.NewLiteral("a")), lit(rdf.NewLiteral("b"))}}, rdf.NewLiteral("ab")},
		{"ENCODE_FOR_URI", &algebra.ExprFunc{Name: "ENCODE_FOR_URI", Args: []algebra.Expression{lit(rdf.NewLiteral("a b/c"))}}, rdf.NewLiteral("a%20b%2Fc")},
		{"SUBSTR", &algebra.ExprFunc{Name: "SUBSTR", Args: []algebra.Expression{lit(rdf.NewLiteral("hello")), lit(rdf.NewIntegerLiteral(2)), lit(rdf.NewIntegerLiteral(3))}}, rdf.NewLiteral("ell")},
		{"REPLACE", &algebra.ExprFunc{Name: "REPLACE", Args: []algebra.Expression{lit(rdf.NewLiteral("abab")), lit(rdf.NewLiteral("a")), lit(rdf.NewLiteral("x"))}}, rdf.NewLiteral("xbxb")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evalExpr(t, tt.expr, nil)
			assert.True(t, tt.want.Equals(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRegexFlags(t *testing.T) {
	got := evalExpr(t, &algebra.ExprFunc{Name: "REGEX", Args: []algebra.Expression{
		lit(rdf.NewLiteral("Hello")), lit(rdf.NewLiteral("^hell")), lit(rdf.NewLiteral("i")),
	}}, nil)
	assert.True(t, got.Equals(rdf.NewBooleanLiteral(true)))
}

func TestHashFunctions(t *testing.T) {
	got := evalExpr(t, &algebra.ExprFunc{Name: "MD5", Args: []algebra.Expression{lit(rdf.NewLiteral("abc"))}}, nil)
	assert.True(t, got.Equals(rdf.NewLiteral("900150983cd24fb0d6963f7d28e17f72")))

	got = evalExpr(t, &algebra.ExprFunc{Name: "SHA256", Args: []algebra.Expression{lit(rdf.NewLiteral("abc"))}}, nil)
	assert.True(t, got.Equals(rdf.NewLiteral("ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")))
}

func TestDateTimeAccessors(t *testing.T) {
	dt := lit(rdf.NewLiteralWithDatatype("2024-06-01T12:30:45Z", rdf.XSDDateTime))

	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "YEAR", Args: []algebra.Expression{dt}}, nil).
		Equals(rdf.NewIntegerLiteral(2024)))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "MONTH", Args: []algebra.Expression{dt}}, nil).
		Equals(rdf.NewIntegerLiteral(6)))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "HOURS", Args: []algebra.Expression{dt}}, nil).
		Equals(rdf.NewIntegerLiteral(12)))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "TZ", Args: []algebra.Expression{dt}}, nil).
		Equals(rdf.NewLiteral("Z")))
}

func TestTypeTests(t *testing.T) {
	iri := lit(rdf.NewNamedNode("http://x"))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "ISIRI", Args: []algebra.Expression{iri}}, nil).
		Equals(rdf.NewBooleanLiteral(true)))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "ISLITERAL", Args: []algebra.Expression{iri}}, nil).
		Equals(rdf.NewBooleanLiteral(false)))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "ISNUMERIC", Args: []algebra.Expression{lit(rdf.NewIntegerLiteral(4))}}, nil).
		Equals(rdf.NewBooleanLiteral(true)))
}

func TestIfAndCoalesce(t *testing.T) {
	b := store.NewBinding()
	b.Set("x", rdf.NewIntegerLiteral(5))

	got := evalExpr(t, &algebra.ExprFunc{Name: "IF", Args: []algebra.Expression{
		&algebra.ExprBinary{Op: ">", Left: &algebra.ExprVar{Name: "x"}, Right: lit(rdf.NewIntegerLiteral(3))},
		lit(rdf.NewLiteral("big")),
		lit(rdf.NewLiteral("small")),
	}}, b)
	assert.True(t, got.Equals(rdf.NewLiteral("big")))

	got = evalExpr(t, &algebra.ExprFunc{Name: "COALESCE", Args: []algebra.Expression{
		&algebra.ExprVar{Name: "missing"},
		lit(rdf.NewLiteral("fallback")),
	}}, b)
	assert.True(t, got.Equals(rdf.NewLiteral("fallback")))
}

func TestBoundAndConstructors(t *testing.T) {
	b := store.NewBinding()
	b.Set("x", rdf.NewLiteral("v"))

	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "BOUND", Args: []algebra.Expression{&algebra.ExprVar{Name: "x"}}}, b).
		Equals(rdf.NewBooleanLiteral(true)))
	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "BOUND", Args: []algebra.Expression{&algebra.ExprVar{Name: "y"}}}, b).
		Equals(rdf.NewBooleanLiteral(false)))

	got := evalExpr(t, &algebra.ExprFunc{Name: "STRDT", Args: []algebra.Expression{
		lit(rdf.NewLiteral("5")), lit(rdf.XSDInteger),
	}}, b)
	assert.True(t, got.Equals(rdf.NewIntegerLiteral(5)))

	got = evalExpr(t, &algebra.ExprFunc{Name: "STRLANG", Args: []algebra.Expression{
		lit(rdf.NewLiteral("hi")), lit(rdf.NewLiteral("en")),
	}}, b)
	assert.True(t, got.Equals(rdf.NewLiteralWithLanguage("hi", "en")))

	got = evalExpr(t, &algebra.ExprFunc{Name: "IRI", Args: []algebra.Expression{lit(rdf.NewLiteral("http://x"))}}, b)
	assert.True(t, got.Equals(rdf.NewNamedNode("http://x")))
}

func TestCasts(t *testing.T) {
	got := evalExpr(t, &algebra.ExprFunc{
		Name: rdf.XSDInteger.String(),
		Args: []algebra.Expression{lit(rdf.NewLiteral("42"))},
	}, nil)
	assert.True(t, got.Equals(rdf.NewIntegerLiteral(42)))

	got = evalExpr(t, &algebra.ExprFunc{
		Name: rdf.XSDBoolean.String(),
		Args: []algebra.Expression{lit(rdf.NewLiteral("true"))},
	}, nil)
	assert.True(t, got.Equals(rdf.NewBooleanLiteral(true)))
}

func TestEffectiveBooleanValue(t *testing.T) {
	ev := NewEvaluator()

	tests := []struct {
		term rdf.Term
		want bool
	}{
		{rdf.NewBooleanLiteral(true), true},
		{rdf.NewBooleanLiteral(false), false},
		{rdf.NewLiteral(""), false},
		{rdf.NewLiteral("x"), true},
		{rdf.NewIntegerLiteral(0), false},
		{rdf.NewIntegerLiteral(-1), true},
		{rdf.NewDoubleLiteral(0), false},
	}
	for _, tt := range tests {
		got, err := ev.EffectiveBooleanValue(tt.term)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "EBV of %s", tt.term)
	}

	_, err := ev.EffectiveBooleanValue(rdf.NewNamedNode("http://x"))
	assert.Error(t, err)
}

func TestOrderCompareTotalOrder(t *testing.T) {
	// unbound < blank < IRI < literal
	assert.Negative(t, OrderCompare(nil, rdf.NewBlankNode("b")))
	assert.Negative(t, OrderCompare(rdf.NewBlankNode("b"), rdf.NewNamedNode("http://x")))
	assert.Negative(t, OrderCompare(rdf.NewNamedNode("http://x"), rdf.NewLiteral("a")))
	assert.Negative(t, OrderCompare(rdf.NewIntegerLiteral(1), rdf.NewIntegerLiteral(2)))
	assert.Zero(t, OrderCompare(rdf.NewIntegerLiteral(2), rdf.NewIntegerLiteral(2)))
}

func TestRDFStarFunctions(t *testing.T) {
	triple := rdf.NewTriple(rdf.NewNamedNode("http://s"), rdf.NewNamedNode("http://p"), rdf.NewLiteral("o"))

	got := evalExpr(t, &algebra.ExprFunc{Name: "TRIPLE", Args: []algebra.Expression{
		lit(rdf.NewNamedNode("http://s")), lit(rdf.NewNamedNode("http://p")), lit(rdf.NewLiteral("o")),
	}}, nil)
	assert.True(t, got.Equals(triple))

	assert.True(t, evalExpr(t, &algebra.ExprFunc{Name: "OBJECT", Args: []algebra.Expression{lit(triple)}}, nil).
		Equals(rdf.NewLiteral("o")))
}
