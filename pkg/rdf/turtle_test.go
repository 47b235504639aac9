package rdf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurtleParseBasic(t *testing.T) {
	input := `
@prefix foaf: <http://xmlns.com/foaf/0.1/> .
@prefix ex: <http://example.org/> .

ex:alice a foaf:Person ;
    foaf:name "Alice" ;
    foaf:knows ex:bob, ex:carol .
`
	quads, err := NewTurtleParser(input, "").Parse()
	require.NoError(t, err)
	require.Len(t, quads, 4)

	assert.True(t, quads[0].Predicate.Equals(RDFType))
	assert.True(t, quads[0].Object.Equals(NewNamedNode("http://xmlns.com/foaf/0.1/Person")))
	assert.True(t, quads[2].Object.Equals(NewNamedNode("http://example.org/bob")))
	assert.True(t, quads[3].Object.Equals(NewNamedNode("http://example.org/carol")))
}

func TestTurtleParseLiterals(t *testing.T) {
	input := `
@prefix ex: <http://example.org/> .
ex:x ex:int 42 ;
    ex:dec 3.14 ;
    ex:dbl 1.0e3 ;
    ex:bool true ;
    ex:long """multi
line""" ;
    ex:lang "hola"@es .
`
	quads, err := NewTurtleParser(input, "").Parse()
	require.NoError(t, err)
	require.Len(t, quads, 6)

	assert.True(t, quads[0].Object.Equals(NewIntegerLiteral(42)))
	assert.True(t, quads[1].Object.Equals(NewDecimalLiteral("3.14")))
	assert.True(t, quads[2].Object.Equals(NewLiteralWithDatatype("1.0e3", XSDDouble)))
	assert.True(t, quads[3].Object.Equals(NewBooleanLiteral(true)))
	assert.True(t, quads[4].Object.Equals(NewLiteral("multi\nline")))
	assert.True(t, quads[5].Object.Equals(NewLiteralWithLanguage("hola", "es")))
}

func TestTurtleParseBlankNodePropertyList(t *testing.T) {
	input := `
@prefix ex: <http://example.org/> .
ex:alice ex:address [ ex:city "Springfield" ; ex:zip "12345" ] .
`
	quads, err := NewTurtleParser(input, "").Parse()
	require.NoError(t, err)
	require.Len(t, quads, 3)

	// The bnode links the subject to its properties
	addr := quads[len(quads)-1].Object
	blank, ok := addr.(*BlankNode)
	require.True(t, ok, "address should be a blank node")
	for _, q := range quads[:2] {
		assert.True(t, q.Subject.Equals(blank))
	}
}

func TestTurtleParseCollection(t *testing.T) {
	input := `
@prefix ex: <http://example.org/> .
ex:list ex:items ( ex:a ex:b ) .
`
	quads, err := NewTurtleParser(input, "").Parse()
	require.NoError(t, err)
	// 2 items × (first, rest) + the linking triple
	require.Len(t, quads, 5)

	firsts := 0
	for _, q := range quads {
		if q.Predicate.Equals(RDFFirst) {
			firsts++
		}
	}
	assert.Equal(t, 2, firsts)
}

func TestTurtleParseRelativeIRIs(t *testing.T) {
	input := `<s> <p> <#frag> .`
	quads, err := NewTurtleParser(input, "http://example.org/base/doc").Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)

	assert.True(t, quads[0].Subject.Equals(NewNamedNode("http://example.org/base/s")))
	assert.True(t, quads[0].Object.Equals(NewNamedNode("http://example.org/base/doc#frag")))
}

func TestTurtleParseQuotedTriple(t *testing.T) {
	input := `
@prefix ex: <http://example.org/> .
<< ex:a ex:b "c" >> ex:certainty 0.9 .
`
	quads, err := NewTurtleParser(input, "").Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)
	_, ok := quads[0].Subject.(*Triple)
	assert.True(t, ok)
}

func TestTurtleSerializeRoundTrip(t *testing.T) {
	original := []*Quad{
		NewQuad(NewNamedNode("http://example.org/a"), RDFType, NewNamedNode("http://example.org/T"), nil),
		NewQuad(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/p"), NewIntegerLiteral(5), nil),
		NewQuad(NewNamedNode("http://example.org/b"), NewNamedNode("http://example.org/p"), NewLiteralWithLanguage("x", "en"), nil),
	}

	var buf bytes.Buffer
	require.NoError(t, NewTurtleSerializer().Serialize(&buf, original))

	parsed, err := NewTurtleParser(buf.String(), "").Parse()
	require.NoError(t, err)
	assert.True(t, AreDatasetsIsomorphic(original, parsed), "round trip not isomorphic:\n%s", buf.String())
}

func TestTriGParseGraphBlocks(t *testing.T) {
	input := `
@prefix ex: <http://example.org/> .

ex:a ex:p "default" .

GRAPH ex:g1 {
    ex:b ex:p "one" .
    ex:c ex:p "two" .
}

ex:g2 {
    ex:d ex:p "three" .
}
`
	quads, err := NewTriGParser(input, "").Parse()
	require.NoError(t, err)
	require.Len(t, quads, 4)

	assert.Equal(t, TermTypeDefaultGraph, quads[0].Graph.Type())
	assert.True(t, quads[1].Graph.Equals(NewNamedNode("http://example.org/g1")))
	assert.True(t, quads[2].Graph.Equals(NewNamedNode("http://example.org/g1")))
	assert.True(t, quads[3].Graph.Equals(NewNamedNode("http://example.org/g2")))
}

func TestTriGRoundTrip(t *testing.T) {
	original := []*Quad{
		NewQuad(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/p"), NewLiteral("d"), nil),
		NewQuad(NewNamedNode("http://example.org/b"), NewNamedNode("http://example.org/p"), NewLiteral("n"), NewNamedNode("http://example.org/g")),
	}

	var buf bytes.Buffer
	require.NoError(t, NewTriGSerializer().Serialize(&buf, original))

	parsed, err := NewTriGParser(buf.String(), "").Parse()
	require.NoError(t, err)
	assert.True(t, AreDatasetsIsomorphic(original, parsed), "round trip not isomorphic:\n%s", buf.String())
}

func TestRDFXMLRoundTrip(t *testing.T) {
	original := []*Quad{
		NewQuad(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/ns/p"), NewLiteral("v"), nil),
		NewQuad(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/ns/q"), NewNamedNode("http://example.org/b"), nil),
		NewQuad(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/ns/r"), NewLiteralWithLanguage("bonjour", "fr"), nil),
	}

	var buf bytes.Buffer
	require.NoError(t, NewRDFXMLSerializer().Serialize(&buf, original))

	parsed, err := NewRDFXMLParser("").Parse(&buf)
	require.NoError(t, err)
	assert.True(t, AreDatasetsIsomorphic(original, parsed), "round trip not isomorphic")
}

func TestFormatDispatch(t *testing.T) {
	format, err := FormatFromMediaType("text/turtle; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, FormatTurtle, format)

	format, err = FormatFromExtension(".nq")
	require.NoError(t, err)
	assert.Equal(t, FormatNQuads, format)

	_, err = FormatFromMediaType("application/json")
	assert.Error(t, err)

	assert.True(t, FormatTriG.SupportsDatasets())
	assert.False(t, FormatTurtle.SupportsDatasets())
}
