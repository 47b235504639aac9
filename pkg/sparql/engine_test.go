package sparql_test

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tetrago/internal/storage"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/executor"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

func newEngine(t *testing.T) (*sparql.Engine, *store.Store) {
	t.Helper()
	backend, err := storage.NewMemoryStorage(nil)
	require.NoError(t, err)
	st, err := store.NewStore(backend, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return sparql.NewEngine(st, nil, nil), st
}

func ex(local string) *rdf.NamedNode {
	return rdf.NewNamedNode("http://example.org/" + local)
}

func mustInsert(t *testing.T, st *store.Store, quads ...*rdf.Quad) {
	t.Helper()
	for _, q := range quads {
		_, err := st.Insert(q)
		require.NoError(t, err)
	}
}

// selectRows drains a SELECT result into maps keyed by variable name.
func selectRows(t *testing.T, engine *sparql.Engine, query string) []map[string]rdf.Term {
	t.Helper()
	result, err := engine.Query(context.Background(), query)
	require.NoError(t, err)
	sel, ok := result.(*executor.SelectResult)
	require.True(t, ok, "expected a SELECT result")
	defer func() { _ = sel.Iterator.Close() }()

	var rows []map[string]rdf.Term
	for sel.Iterator.Next() {
		binding := sel.Iterator.Binding()
		row := make(map[string]rdf.Term)
		for name, term := range binding.Vars {
			row[name] = term
		}
		rows = append(rows, row)
	}
	require.NoError(t, sel.Iterator.Err())
	return rows
}

func ask(t *testing.T, engine *sparql.Engine, query string) bool {
	t.Helper()
	result, err := engine.Query(context.Background(), query)
	require.NoError(t, err)
	res, ok := result.(*executor.AskResult)
	require.True(t, ok, "expected an ASK result")
	return res.Result
}

func TestAskSameVariableAllPositions(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("x"), ex("x"), ex("x"), nil))
	mustInsert(t, st, rdf.NewQuad(ex("a"), ex("b"), ex("c"), nil))

	assert.True(t, ask(t, engine, `ASK { ?s ?s ?s }`))

	// Only the reflexive quad qualifies
	rows := selectRows(t, engine, `SELECT ?s WHERE { ?s ?s ?s }`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["s"].Equals(ex("x")))
}

func TestSelectBasicJoin(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("alice"), ex("knows"), ex("bob"), nil),
		rdf.NewQuad(ex("bob"), ex("knows"), ex("carol"), nil),
		rdf.NewQuad(ex("alice"), ex("name"), rdf.NewLiteral("Alice"), nil),
		rdf.NewQuad(ex("bob"), ex("name"), rdf.NewLiteral("Bob"), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?n WHERE { ?a ex:knows ?b . ?b ex:name ?n }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["n"].Equals(rdf.NewLiteral("Bob")))
}

func TestOptionalKeepsUnmatchedRows(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("name"), rdf.NewLiteral("A"), nil),
		rdf.NewQuad(ex("b"), ex("name"), rdf.NewLiteral("B"), nil),
		rdf.NewQuad(ex("a"), ex("age"), rdf.NewIntegerLiteral(42), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?name ?age WHERE {
			?s ex:name ?name
			OPTIONAL { ?s ex:age ?age }
		}
	`)
	require.Len(t, rows, 2)

	byName := map[string]map[string]rdf.Term{}
	for _, row := range rows {
		byName[row["name"].(*rdf.Literal).Value] = row
	}
	assert.True(t, byName["A"]["age"].Equals(rdf.NewIntegerLiteral(42)))
	_, bound := byName["B"]["age"]
	assert.False(t, bound, "unmatched OPTIONAL leaves the variable unbound")
}

func TestOptionalFilterOnRightVariable(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("name"), rdf.NewLiteral("A"), nil),
		rdf.NewQuad(ex("a"), ex("age"), rdf.NewIntegerLiteral(10), nil),
	)

	// The filter references a right-only variable; a failing filter
	// must yield the bare left row, not drop it
	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?name ?age WHERE {
			?s ex:name ?name
			OPTIONAL { ?s ex:age ?age FILTER(?age > 18) }
		}
	`)
	require.Len(t, rows, 1)
	_, bound := rows[0]["age"]
	assert.False(t, bound)
}

func TestUnionPreservesCardinality(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("p"), rdf.NewLiteral("v"), nil))

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?o WHERE { { ex:s ex:p ?o } UNION { ex:s ex:p ?o } }
	`)
	assert.Len(t, rows, 2)
}

func TestMinusDomainDisjoint(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("p"), rdf.NewLiteral("v"), nil))

	// Disjoint domains: MINUS removes nothing
	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s WHERE { ?s ex:p ?v MINUS { ?x ex:q ?y } }
	`)
	assert.Len(t, rows, 1)

	// Shared variable with compatible bindings removes the row
	rows = selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s WHERE { ?s ex:p ?v MINUS { ?s ex:p ?y } }
	`)
	assert.Empty(t, rows)
}

func TestFilterNotExistsAgainstEmptyAndNonEmpty(t *testing.T) {
	engine, st := newEngine(t)

	// Empty store: the empty BGP yields the empty mapping, NOT EXISTS
	// holds
	rows := selectRows(t, engine, `SELECT * WHERE { FILTER NOT EXISTS { ?s ?p ?o } }`)
	assert.Len(t, rows, 1)

	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("p"), rdf.NewLiteral("v"), nil))
	rows = selectRows(t, engine, `SELECT * WHERE { FILTER NOT EXISTS { ?s ?p ?o } }`)
	assert.Empty(t, rows)
}

func TestValuesInFilterExists(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("p"), rdf.NewLiteral("v"), nil))

	// The inner VALUES ranges over its rows even though the outer row
	// does not bind ?x
	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s WHERE { ?s ex:p ?v FILTER EXISTS { VALUES ?x { 1 2 } } }
	`)
	assert.Len(t, rows, 1)
}

func TestGroupConcatSkipsUnbound(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("r1"), ex("v"), rdf.NewLiteral("a"), nil),
		rdf.NewQuad(ex("r1"), ex("kind"), rdf.NewLiteral("row"), nil),
		rdf.NewQuad(ex("r2"), ex("kind"), rdf.NewLiteral("row"), nil),
		rdf.NewQuad(ex("r3"), ex("v"), rdf.NewLiteral("b"), nil),
		rdf.NewQuad(ex("r3"), ex("kind"), rdf.NewLiteral("row"), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT (GROUP_CONCAT(?v; SEPARATOR=",") AS ?c) WHERE {
			?r ex:kind "row"
			OPTIONAL { ?r ex:v ?v }
		}
	`)
	require.Len(t, rows, 1)
	concat, ok := rows[0]["c"].(*rdf.Literal)
	require.True(t, ok)
	// Unbound rows contribute nothing; result order follows index order
	parts := strings.Split(concat.Value, ",")
	sort.Strings(parts)
	assert.Equal(t, []string{"a", "b"}, parts)
}

func TestAggregates(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("score"), rdf.NewIntegerLiteral(1), nil),
		rdf.NewQuad(ex("b"), ex("score"), rdf.NewIntegerLiteral(2), nil),
		rdf.NewQuad(ex("c"), ex("score"), rdf.NewIntegerLiteral(3), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT (COUNT(?s) AS ?n) (SUM(?v) AS ?sum) (MIN(?v) AS ?min) (MAX(?v) AS ?max) (AVG(?v) AS ?avg)
		WHERE { ?s ex:score ?v }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["n"].Equals(rdf.NewIntegerLiteral(3)))
	assert.True(t, rows[0]["sum"].Equals(rdf.NewIntegerLiteral(6)))
	assert.True(t, rows[0]["min"].Equals(rdf.NewIntegerLiteral(1)))
	assert.True(t, rows[0]["max"].Equals(rdf.NewIntegerLiteral(3)))
	assert.True(t, rows[0]["avg"].Equals(rdf.NewDecimalLiteral("2.0")), "got %v", rows[0]["avg"])
}

func TestGroupByKeys(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), rdf.RDFType, ex("T1"), nil),
		rdf.NewQuad(ex("b"), rdf.RDFType, ex("T1"), nil),
		rdf.NewQuad(ex("c"), rdf.RDFType, ex("T2"), nil),
	)

	rows := selectRows(t, engine, `
		SELECT ?type (COUNT(?s) AS ?n) WHERE { ?s a ?type } GROUP BY ?type
	`)
	require.Len(t, rows, 2)

	counts := map[string]int64{}
	for _, row := range rows {
		typeIRI := row["type"].(*rdf.NamedNode).IRI
		n := row["n"].(*rdf.Literal).Value
		if n == "2" {
			counts[typeIRI] = 2
		} else {
			counts[typeIRI] = 1
		}
	}
	assert.Equal(t, int64(2), counts["http://example.org/T1"])
	assert.Equal(t, int64(1), counts["http://example.org/T2"])
}

func TestOrderByAndSlice(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("v"), rdf.NewIntegerLiteral(3), nil),
		rdf.NewQuad(ex("b"), ex("v"), rdf.NewIntegerLiteral(1), nil),
		rdf.NewQuad(ex("c"), ex("v"), rdf.NewIntegerLiteral(2), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?n WHERE { ?s ex:v ?n } ORDER BY ?n
	`)
	require.Len(t, rows, 3)
	assert.True(t, rows[0]["n"].Equals(rdf.NewIntegerLiteral(1)))
	assert.True(t, rows[2]["n"].Equals(rdf.NewIntegerLiteral(3)))

	rows = selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?n WHERE { ?s ex:v ?n } ORDER BY DESC(?n) LIMIT 1 OFFSET 1
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["n"].Equals(rdf.NewIntegerLiteral(2)))
}

func TestDistinct(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("p"), rdf.NewLiteral("v"), nil),
		rdf.NewQuad(ex("b"), ex("p"), rdf.NewLiteral("v"), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT DISTINCT ?o WHERE { ?s ex:p ?o }
	`)
	assert.Len(t, rows, 1)
}

func TestBindAndExpressionErrors(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("v"), rdf.NewIntegerLiteral(2), nil),
		rdf.NewQuad(ex("b"), ex("v"), rdf.NewLiteral("not a number"), nil),
	)

	// BIND errors leave the variable unbound instead of aborting
	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s ?double WHERE { ?s ex:v ?n BIND(?n * 2 AS ?double) }
	`)
	require.Len(t, rows, 2)

	bound := 0
	for _, row := range rows {
		if _, ok := row["double"]; ok {
			bound++
		}
	}
	assert.Equal(t, 1, bound)
}

func TestLangStringComparison(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("label"), rdf.NewLiteralWithLanguage("apple", "en"), nil),
		rdf.NewQuad(ex("b"), ex("label"), rdf.NewLiteralWithLanguage("banana", "en"), nil),
		rdf.NewQuad(ex("c"), ex("label"), rdf.NewLiteralWithLanguage("cerise", "fr"), nil),
	)

	// Same tags compare by lexical form; mixed tags error and the row
	// is filtered out
	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s WHERE { ?s ex:label ?l FILTER(?l < "banana"@en) }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["s"].Equals(ex("a")))
}

func TestGraphVariable(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("p"), rdf.NewLiteral("default"), nil),
		rdf.NewQuad(ex("b"), ex("p"), rdf.NewLiteral("one"), ex("g1")),
		rdf.NewQuad(ex("c"), ex("p"), rdf.NewLiteral("two"), ex("g2")),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?g ?s WHERE { GRAPH ?g { ?s ex:p ?o } }
	`)
	require.Len(t, rows, 2)

	var graphs []string
	for _, row := range rows {
		graphs = append(graphs, row["g"].(*rdf.NamedNode).IRI)
	}
	sort.Strings(graphs)
	assert.Equal(t, []string{"http://example.org/g1", "http://example.org/g2"}, graphs)

	// A fixed graph restricts the match
	rows = selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s WHERE { GRAPH ex:g1 { ?s ex:p ?o } }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["s"].Equals(ex("b")))
}

func TestPropertyPaths(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("knows"), ex("b"), nil),
		rdf.NewQuad(ex("b"), ex("knows"), ex("c"), nil),
		rdf.NewQuad(ex("c"), ex("knows"), ex("d"), nil),
	)

	// One or more
	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?x WHERE { ex:a ex:knows+ ?x }
	`)
	require.Len(t, rows, 3)

	// Zero or more includes the start
	rows = selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?x WHERE { ex:a ex:knows* ?x }
	`)
	require.Len(t, rows, 4)

	// Inverse: x is bound to whoever knows b
	rows = selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?x WHERE { ex:b ^ex:knows ?x }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["x"].Equals(ex("a")))

	// Sequence
	rows = selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?x WHERE { ex:a ex:knows/ex:knows ?x }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["x"].Equals(ex("c")))
}

func TestNegatedPropertySet(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("p"), ex("b"), nil),
		rdf.NewQuad(ex("a"), ex("q"), ex("c"), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?x WHERE { ex:a !ex:p ?x }
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["x"].Equals(ex("c")))
}

func TestConstructScopesTemplateBlankNodesPerRow(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("name"), rdf.NewLiteral("A"), nil),
		rdf.NewQuad(ex("b"), ex("name"), rdf.NewLiteral("B"), nil),
	)

	result, err := engine.Query(context.Background(), `
		PREFIX ex: <http://example.org/>
		CONSTRUCT { ?s ex:card _:c . _:c ex:label ?n } WHERE { ?s ex:name ?n }
	`)
	require.NoError(t, err)
	graph, ok := result.(*executor.GraphResult)
	require.True(t, ok)
	require.Len(t, graph.Quads, 4)

	// Each row must get its own blank node
	labels := make(map[string]bool)
	for _, q := range graph.Quads {
		if blank, ok := q.Object.(*rdf.BlankNode); ok {
			labels[blank.ID] = true
		}
		if blank, ok := q.Subject.(*rdf.BlankNode); ok {
			labels[blank.ID] = true
		}
	}
	assert.Len(t, labels, 2)
}

func TestDescribeReturnsCBD(t *testing.T) {
	engine, st := newEngine(t)
	address := rdf.NewBlankNode("addr")
	mustInsert(t, st,
		rdf.NewQuad(ex("x"), ex("name"), rdf.NewLiteral("X"), nil),
		rdf.NewQuad(ex("x"), ex("address"), address, nil),
		rdf.NewQuad(address, ex("city"), rdf.NewLiteral("Springfield"), nil),
		rdf.NewQuad(ex("y"), ex("name"), rdf.NewLiteral("Y"), nil),
	)

	result, err := engine.Query(context.Background(), `DESCRIBE <http://example.org/x>`)
	require.NoError(t, err)
	graph, ok := result.(*executor.GraphResult)
	require.True(t, ok)

	// The CBD follows the blank node but stops at ex:y
	require.Len(t, graph.Quads, 3)
	for _, q := range graph.Quads {
		assert.False(t, q.Subject.Equals(ex("y")))
	}
}

func TestDescribeWithWhere(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("x"), ex("name"), rdf.NewLiteral("X"), nil),
		rdf.NewQuad(ex("y"), ex("other"), rdf.NewLiteral("Y"), nil),
	)

	result, err := engine.Query(context.Background(), `
		PREFIX ex: <http://example.org/>
		DESCRIBE ?s WHERE { ?s ex:name ?n }
	`)
	require.NoError(t, err)
	graph := result.(*executor.GraphResult)
	require.Len(t, graph.Quads, 1)
	assert.True(t, graph.Quads[0].Subject.Equals(ex("x")))
}

func TestSubqueryLimit(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st,
		rdf.NewQuad(ex("a"), ex("p"), rdf.NewIntegerLiteral(1), nil),
		rdf.NewQuad(ex("b"), ex("p"), rdf.NewIntegerLiteral(2), nil),
		rdf.NewQuad(ex("c"), ex("p"), rdf.NewIntegerLiteral(3), nil),
	)

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?s WHERE { { SELECT ?s WHERE { ?s ex:p ?v } ORDER BY ?v LIMIT 2 } }
	`)
	assert.Len(t, rows, 2)
}

func TestServiceUnsupported(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("p"), rdf.NewLiteral("v"), nil))

	_, err := engine.Query(context.Background(), `
		SELECT ?s WHERE { SERVICE <http://remote.example/sparql> { ?s ?p ?o } }
	`)
	require.Error(t, err)
	assert.ErrorIs(t, err, executor.ErrServiceUnsupported)
}

func TestQueryCancellation(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("p"), rdf.NewLiteral("v"), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Query(ctx, `SELECT ?s WHERE { ?s ?p ?o . ?s ?q ?r }`)
	if err == nil {
		sel := result.(*executor.SelectResult)
		for sel.Iterator.Next() {
		}
		err = sel.Iterator.Err()
		_ = sel.Iterator.Close()
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestBuiltinFunctions(t *testing.T) {
	engine, st := newEngine(t)
	mustInsert(t, st, rdf.NewQuad(ex("s"), ex("name"), rdf.NewLiteralWithLanguage("Hello World", "en"), nil))

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?up ?len ?lang ?sub WHERE {
			?s ex:name ?n
			BIND(UCASE(?n) AS ?up)
			BIND(STRLEN(?n) AS ?len)
			BIND(LANG(?n) AS ?lang)
			BIND(SUBSTR(?n, 1, 5) AS ?sub)
		}
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["up"].Equals(rdf.NewLiteralWithLanguage("HELLO WORLD", "en")))
	assert.True(t, rows[0]["len"].Equals(rdf.NewIntegerLiteral(11)))
	assert.True(t, rows[0]["lang"].Equals(rdf.NewLiteral("en")))
	assert.True(t, rows[0]["sub"].Equals(rdf.NewLiteralWithLanguage("Hello", "en")))
}

func TestRDFStarAccessors(t *testing.T) {
	engine, st := newEngine(t)
	quoted := rdf.NewTriple(ex("a"), ex("says"), rdf.NewLiteral("hi"))
	mustInsert(t, st, rdf.NewQuad(quoted, ex("certainty"), rdf.NewDecimalLiteral("0.9"), nil))

	rows := selectRows(t, engine, `
		PREFIX ex: <http://example.org/>
		SELECT ?subj ?isT WHERE {
			?t ex:certainty ?c
			BIND(SUBJECT(?t) AS ?subj)
			BIND(ISTRIPLE(?t) AS ?isT)
		}
	`)
	require.Len(t, rows, 1)
	assert.True(t, rows[0]["subj"].Equals(ex("a")))
	assert.True(t, rows[0]["isT"].Equals(rdf.NewBooleanLiteral(true)))
}
