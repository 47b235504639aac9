package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
)

func TestParseSimpleSelect(t *testing.T) {
	query, err := ParseQuery(`
		PREFIX foaf: <http://xmlns.com/foaf/0.1/>
		SELECT ?name WHERE { ?person foaf:name ?name . }
	`)
	require.NoError(t, err)
	assert.Equal(t, algebra.QueryTypeSelect, query.Type)

	project, ok := query.Pattern.(*algebra.Project)
	require.True(t, ok)
	assert.Equal(t, []string{"name"}, project.Vars)

	bgp, ok := project.Inner.(*algebra.BGP)
	require.True(t, ok)
	require.Len(t, bgp.Patterns, 1)
	assert.Equal(t, "person", bgp.Patterns[0].Subject.Var)
	assert.True(t, bgp.Patterns[0].Predicate.Term.Equals(rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")))
}

func TestParseSelectStar(t *testing.T) {
	query, err := ParseQuery(`SELECT * WHERE { ?s ?p ?o }`)
	require.NoError(t, err)

	project, ok := query.Pattern.(*algebra.Project)
	require.True(t, ok)
	assert.Equal(t, []string{"s", "p", "o"}, project.Vars)
}

func TestParseModifiers(t *testing.T) {
	query, err := ParseQuery(`
		SELECT DISTINCT ?s WHERE { ?s ?p ?o }
		ORDER BY DESC(?s)
		LIMIT 10 OFFSET 5
	`)
	require.NoError(t, err)

	slice, ok := query.Pattern.(*algebra.Slice)
	require.True(t, ok)
	assert.Equal(t, 5, slice.Offset)
	require.NotNil(t, slice.Limit)
	assert.Equal(t, 10, *slice.Limit)

	distinct, ok := slice.Inner.(*algebra.Distinct)
	require.True(t, ok)
	project, ok := distinct.Inner.(*algebra.Project)
	require.True(t, ok)
	orderBy, ok := project.Inner.(*algebra.OrderBy)
	require.True(t, ok)
	require.Len(t, orderBy.Conditions, 1)
	assert.True(t, orderBy.Conditions[0].Desc)
}

func TestParseOptionalWithFilter(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?s WHERE {
			?s <http://example.org/p> ?v .
			OPTIONAL { ?s <http://example.org/q> ?w . FILTER(?w > 5) }
		}
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	leftJoin, ok := project.Inner.(*algebra.LeftJoin)
	require.True(t, ok)
	assert.NotNil(t, leftJoin.Expr, "the OPTIONAL filter belongs to the left join")
}

func TestParseUnionAndMinus(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?s WHERE {
			{ ?s a <http://example.org/A> } UNION { ?s a <http://example.org/B> }
			MINUS { ?s <http://example.org/hidden> true }
		}
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	minus, ok := project.Inner.(*algebra.Minus)
	require.True(t, ok)
	_, ok = minus.Left.(*algebra.Union)
	assert.True(t, ok)
}

func TestParseGroupBy(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?type (COUNT(?s) AS ?n) WHERE { ?s a ?type }
		GROUP BY ?type
		HAVING (COUNT(?s) > 1)
	`)
	require.NoError(t, err)

	// Project(Extend(Filter(Group(...))))
	project := query.Pattern.(*algebra.Project)
	extend, ok := project.Inner.(*algebra.Extend)
	require.True(t, ok)
	assert.Equal(t, "n", extend.Var)

	filter, ok := extend.Inner.(*algebra.Filter)
	require.True(t, ok)
	group, ok := filter.Inner.(*algebra.Group)
	require.True(t, ok)
	require.Len(t, group.Keys, 1)
	require.Len(t, group.Aggregates, 2)
	assert.Equal(t, "COUNT", group.Aggregates[0].Agg.Func)
}

func TestParseGroupConcatSeparator(t *testing.T) {
	query, err := ParseQuery(`
		SELECT (GROUP_CONCAT(?v; SEPARATOR=",") AS ?c) WHERE { ?s ?p ?v }
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	extend := project.Inner.(*algebra.Extend)
	group := extend.Inner.(*algebra.Group)
	require.Len(t, group.Aggregates, 1)
	assert.Equal(t, "GROUP_CONCAT", group.Aggregates[0].Agg.Func)
	assert.Equal(t, ",", group.Aggregates[0].Agg.Separator)
}

func TestParseValues(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?x WHERE { VALUES ?x { 1 2 UNDEF } }
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	values, ok := project.Inner.(*algebra.Values)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, values.Vars)
	require.Len(t, values.Rows, 3)
	assert.Nil(t, values.Rows[2][0])
}

func TestParseFilterExists(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?s WHERE {
			?s ?p ?o
			FILTER NOT EXISTS { ?s <http://example.org/q> ?x }
		}
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	filter, ok := project.Inner.(*algebra.Filter)
	require.True(t, ok)
	exists, ok := filter.Expr.(*algebra.ExprExists)
	require.True(t, ok)
	assert.True(t, exists.Not)
}

func TestParsePropertyPaths(t *testing.T) {
	query, err := ParseQuery(`
		PREFIX ex: <http://example.org/>
		SELECT ?a ?b WHERE { ?a ex:knows+ ?b }
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	join, ok := project.Inner.(*algebra.Join)
	require.True(t, ok)
	path, ok := join.Right.(*algebra.PathPattern)
	require.True(t, ok)
	_, ok = path.Path.(*algebra.OneOrMorePath)
	assert.True(t, ok)
}

func TestParsePathOperators(t *testing.T) {
	query, err := ParseQuery(`
		PREFIX ex: <http://example.org/>
		SELECT ?a ?b WHERE { ?a (ex:p/^ex:q)|ex:r ?b }
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	join := project.Inner.(*algebra.Join)
	path := join.Right.(*algebra.PathPattern)
	alt, ok := path.Path.(*algebra.AlternativePath)
	require.True(t, ok)
	seq, ok := alt.Left.(*algebra.SequencePath)
	require.True(t, ok)
	_, ok = seq.Right.(*algebra.InversePath)
	assert.True(t, ok)
}

func TestParseGraphPattern(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?s WHERE { GRAPH ?g { ?s ?p ?o } }
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	graph, ok := project.Inner.(*algebra.Graph)
	require.True(t, ok)
	assert.Equal(t, "g", graph.Name.Var)
}

func TestParseAskConstructDescribe(t *testing.T) {
	ask, err := ParseQuery(`ASK { ?s ?s ?s }`)
	require.NoError(t, err)
	assert.Equal(t, algebra.QueryTypeAsk, ask.Type)

	construct, err := ParseQuery(`
		PREFIX ex: <http://example.org/>
		CONSTRUCT { ?s ex:named ?n } WHERE { ?s ex:name ?n }
	`)
	require.NoError(t, err)
	assert.Equal(t, algebra.QueryTypeConstruct, construct.Type)
	require.Len(t, construct.Template, 1)

	describe, err := ParseQuery(`DESCRIBE <http://example.org/x>`)
	require.NoError(t, err)
	assert.Equal(t, algebra.QueryTypeDescribe, describe.Type)
	require.Len(t, describe.Describe, 1)
}

func TestParseSubquery(t *testing.T) {
	query, err := ParseQuery(`
		SELECT ?s WHERE {
			{ SELECT ?s WHERE { ?s ?p ?o } LIMIT 2 }
		}
	`)
	require.NoError(t, err)

	project := query.Pattern.(*algebra.Project)
	_, ok := project.Inner.(*algebra.Slice)
	assert.True(t, ok)
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		``,
		`SELECT WHERE { ?s ?p ?o }`,
		`SELECT ?s { ?s ?p ?o `,
		`SELECT ?s WHERE { ?s ex:p ?o }`, // undefined prefix
		`ASK { ?s ?p }`,
	}
	for _, input := range bad {
		_, err := ParseQuery(input)
		assert.Error(t, err, "input: %s", input)
	}
}

func TestParseUpdateOperations(t *testing.T) {
	upd, err := ParseUpdate(`
		PREFIX ex: <http://example.org/>
		INSERT DATA { ex:a ex:p "v" . GRAPH ex:g { ex:b ex:q "w" } } ;
		DELETE DATA { ex:a ex:p "v" } ;
		CREATE GRAPH ex:new ;
		DROP SILENT GRAPH ex:old ;
		CLEAR DEFAULT ;
		COPY ex:g TO DEFAULT ;
		LOAD SILENT <http://example.org/data.nt> INTO GRAPH ex:g
	`)
	require.NoError(t, err)
	require.Len(t, upd.Operations, 7)

	insert, ok := upd.Operations[0].(*algebra.InsertData)
	require.True(t, ok)
	require.Len(t, insert.Quads, 2)
	assert.True(t, insert.Quads[1].Graph.Term.Equals(rdf.NewNamedNode("http://example.org/g")))

	_, ok = upd.Operations[1].(*algebra.DeleteData)
	assert.True(t, ok)

	create, ok := upd.Operations[2].(*algebra.Create)
	require.True(t, ok)
	assert.False(t, create.Silent)

	drop, ok := upd.Operations[3].(*algebra.Drop)
	require.True(t, ok)
	assert.True(t, drop.Silent)

	clear, ok := upd.Operations[4].(*algebra.Clear)
	require.True(t, ok)
	assert.Equal(t, algebra.TargetDefault, clear.Target)

	graphCopy, ok := upd.Operations[5].(*algebra.GraphCopy)
	require.True(t, ok)
	assert.Equal(t, "COPY", graphCopy.Op)
	assert.Nil(t, graphCopy.Dst)

	load, ok := upd.Operations[6].(*algebra.Load)
	require.True(t, ok)
	assert.True(t, load.Silent)
	assert.Equal(t, "http://example.org/data.nt", load.Source)
}

func TestParseDeleteInsertWhere(t *testing.T) {
	upd, err := ParseUpdate(`
		PREFIX ex: <http://example.org/>
		DELETE { ?s ex:old ?o } INSERT { ?s ex:new ?o } WHERE { ?s ex:old ?o }
	`)
	require.NoError(t, err)
	require.Len(t, upd.Operations, 1)

	modify, ok := upd.Operations[0].(*algebra.Modify)
	require.True(t, ok)
	require.Len(t, modify.Delete, 1)
	require.Len(t, modify.Insert, 1)
	require.NotNil(t, modify.Where)
}

func TestParseDeleteWhereShortcut(t *testing.T) {
	upd, err := ParseUpdate(`DELETE WHERE { ?s ?p ?o }`)
	require.NoError(t, err)

	modify, ok := upd.Operations[0].(*algebra.Modify)
	require.True(t, ok)
	require.Len(t, modify.Delete, 1)
	assert.Empty(t, modify.Insert)
	require.NotNil(t, modify.Where)
}

func TestParseRejectsVariablesInData(t *testing.T) {
	_, err := ParseUpdate(`INSERT DATA { ?s <http://example.org/p> "v" }`)
	assert.Error(t, err)
}
