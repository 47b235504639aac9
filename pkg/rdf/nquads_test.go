package rdf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNQuadsParseTriplesAndQuads(t *testing.T) {
	input := `
# a comment
<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .
<http://example.org/bob> <http://xmlns.com/foaf/0.1/name> "Bob"@en <http://example.org/g1> .
_:b1 <http://example.org/p> _:b2 .
`
	quads, err := NewNQuadsParser(input).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 4)

	assert.Equal(t, TermTypeDefaultGraph, quads[0].Graph.Type())
	assert.True(t, quads[1].Object.Equals(NewIntegerLiteral(30)))
	assert.True(t, quads[2].Graph.Equals(NewNamedNode("http://example.org/g1")))
	assert.True(t, quads[2].Object.Equals(NewLiteralWithLanguage("Bob", "en")))
	assert.True(t, quads[3].Subject.Equals(NewBlankNode("b1")))
}

func TestNQuadsParseEscapes(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> "line\nbreak é \"q\"" .`
	quads, err := NewNQuadsParser(input).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)

	lit := quads[0].Object.(*Literal)
	assert.Equal(t, "line\nbreak é \"q\"", lit.Value)
}

func TestNQuadsParseQuotedTriple(t *testing.T) {
	input := `<http://example.org/s> <http://example.org/p> << <http://example.org/a> <http://example.org/b> "c" >> .`
	quads, err := NewNQuadsParser(input).Parse()
	require.NoError(t, err)
	require.Len(t, quads, 1)

	triple, ok := quads[0].Object.(*Triple)
	require.True(t, ok)
	assert.True(t, triple.Subject.Equals(NewNamedNode("http://example.org/a")))
	assert.True(t, triple.Object.Equals(NewLiteral("c")))
}

func TestNQuadsParseErrorsCarryPosition(t *testing.T) {
	input := "<http://example.org/s> <http://example.org/p> \"unterminated\n"
	_, err := NewNQuadsParser(input).Parse()
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Greater(t, parseErr.Line, 0)
}

func TestNQuadsRejectsRelativeIRI(t *testing.T) {
	_, err := NewNQuadsParser(`<relative> <http://example.org/p> "o" .`).Parse()
	assert.Error(t, err)
}

func TestNQuadsRejectsLiteralSubject(t *testing.T) {
	_, err := NewNQuadsParser(`"s" <http://example.org/p> "o" .`).Parse()
	assert.Error(t, err)
}

func TestNQuadsRoundTrip(t *testing.T) {
	original := []*Quad{
		NewQuad(NewNamedNode("http://example.org/s"), NewNamedNode("http://example.org/p"), NewLiteral("plain"), nil),
		NewQuad(NewNamedNode("http://example.org/s"), NewNamedNode("http://example.org/p"), NewLiteralWithLanguage("hallo", "de"), NewNamedNode("http://example.org/g")),
		NewQuad(NewBlankNode("x"), NewNamedNode("http://example.org/p"), NewIntegerLiteral(42), nil),
		NewQuad(
			NewTriple(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/b"), NewLiteral("c")),
			NewNamedNode("http://example.org/said"),
			NewLiteral("v"),
			nil,
		),
	}

	var buf bytes.Buffer
	require.NoError(t, SerializeNQuads(&buf, original))

	parsed, err := NewNQuadsParser(buf.String()).Parse()
	require.NoError(t, err)
	assert.True(t, AreDatasetsIsomorphic(original, parsed), "round trip not isomorphic:\n%s", buf.String())
}
