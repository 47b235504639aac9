package encoding

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// mapLookup backs decoding in tests with the entries produced while
// encoding.
type mapLookup map[[16]byte][]byte

func (m mapLookup) LookupString(key []byte) ([]byte, error) {
	var k [16]byte
	copy(k[:], key)
	payload, ok := m[k]
	if !ok {
		return nil, fmt.Errorf("missing dictionary entry")
	}
	return payload, nil
}

func roundTrip(t *testing.T, enc *Encoder, term rdf.Term) rdf.Term {
	t.Helper()
	encoded, entries, err := enc.EncodeTerm(term)
	require.NoError(t, err)

	lookup := mapLookup{}
	for _, entry := range entries {
		var k [16]byte
		copy(k[:], entry.EID.DictKey())
		lookup[k] = entry.Payload
	}

	decoded, err := NewDecoder().DecodeTerm(encoded, lookup)
	require.NoError(t, err)
	return decoded
}

func TestEncodeDecodeBijection(t *testing.T) {
	enc := NewEncoder(0xdeadbeef)

	terms := []rdf.Term{
		rdf.NewNamedNode("http://example.org/resource"),
		rdf.NewNamedNode("http://www.w3.org/2001/XMLSchema#integer"),
		rdf.NewNamedNode("http://www.w3.org/1999/02/22-rdf-syntax-ns#type"),
		rdf.NewBlankNode("42"),
		rdf.NewBlankNode("abc"),
		rdf.NewBlankNode("a-very-long-blank-node-label-that-needs-hashing"),
		rdf.NewLiteral("short"),
		rdf.NewLiteral("a string literal that is far too long to inline"),
		rdf.NewLiteralWithLanguage("hi", "en"),
		rdf.NewLiteralWithLanguage("a somewhat longer greeting", "en-US"),
		rdf.NewBooleanLiteral(true),
		rdf.NewBooleanLiteral(false),
		rdf.NewIntegerLiteral(0),
		rdf.NewIntegerLiteral(-12345),
		rdf.NewIntegerLiteral(1<<62 - 1),
		rdf.NewDoubleLiteral(3.5),
		rdf.NewDecimalLiteral("3.14"),
		rdf.NewDecimalLiteral("-0.5"),
		rdf.NewLiteralWithDatatype("2024-06-01T12:30:00Z", rdf.XSDDateTime),
		rdf.NewLiteralWithDatatype("2024-06-01T12:30:00+02:00", rdf.XSDDateTime),
		rdf.NewLiteralWithDatatype("2024-06-01", rdf.XSDDate),
		rdf.NewLiteralWithDatatype("12:30:05", rdf.XSDTime),
		rdf.NewLiteralWithDatatype("anything", rdf.NewNamedNode("http://example.org/dt")),
		rdf.NewDefaultGraph(),
		rdf.NewTriple(
			rdf.NewNamedNode("http://example.org/s"),
			rdf.NewNamedNode("http://example.org/p"),
			rdf.NewLiteral("o"),
		),
		rdf.NewTriple(
			rdf.NewTriple(
				rdf.NewNamedNode("http://example.org/s"),
				rdf.NewNamedNode("http://example.org/p"),
				rdf.NewNamedNode("http://example.org/o"),
			),
			rdf.NewNamedNode("http://example.org/says"),
			rdf.NewLiteralWithLanguage("nested", "en"),
		),
	}

	for _, term := range terms {
		t.Run(term.String(), func(t *testing.T) {
			decoded := roundTrip(t, enc, term)
			assert.True(t, term.Equals(decoded), "expected %s, got %s", term, decoded)
		})
	}
}

func TestEncodeDeterministic(t *testing.T) {
	enc := NewEncoder(7)
	term := rdf.NewNamedNode("http://example.org/x")

	a, _, err := enc.EncodeTerm(term)
	require.NoError(t, err)
	b, _, err := enc.EncodeTerm(term)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEqualTermsEqualEIDs(t *testing.T) {
	enc := NewEncoder(7)

	a, _, err := enc.EncodeTerm(rdf.NewLiteralWithLanguage("hello", "en"))
	require.NoError(t, err)
	b, _, err := enc.EncodeTerm(rdf.NewLiteralWithLanguage("hello", "en"))
	require.NoError(t, err)
	c, _, err := enc.EncodeTerm(rdf.NewLiteralWithLanguage("hello", "fr"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestInlineTermsProduceNoDictionaryEntries(t *testing.T) {
	enc := NewEncoder(7)

	inline := []rdf.Term{
		rdf.NewBooleanLiteral(true),
		rdf.NewIntegerLiteral(99),
		rdf.NewDoubleLiteral(1.5),
		rdf.NewDecimalLiteral("2.25"),
		rdf.NewLiteral("tiny"),
		rdf.NewLiteralWithLanguage("hi", "en"),
		rdf.NewBlankNode("17"),
		rdf.NewBlankNode("short"),
		rdf.NewNamedNode("http://www.w3.org/2001/XMLSchema#string"),
		rdf.NewDefaultGraph(),
		rdf.NewLiteralWithDatatype("2024-06-01T00:00:00Z", rdf.XSDDateTime),
	}
	for _, term := range inline {
		encoded, entries, err := enc.EncodeTerm(term)
		require.NoError(t, err)
		assert.Empty(t, entries, "%s should inline", term)
		assert.True(t, encoded.IsInline(), "%s should inline", term)
	}

	hashed := []rdf.Term{
		rdf.NewNamedNode("http://example.org/resource"),
		rdf.NewLiteral("a string literal that is far too long to inline"),
	}
	for _, term := range hashed {
		encoded, entries, err := enc.EncodeTerm(term)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, "%s should hash", term)
		assert.False(t, encoded.IsInline())
	}
}

func TestNonCanonicalLexicalFormsKeepTheirForm(t *testing.T) {
	enc := NewEncoder(7)

	// "042" is a valid but non-canonical xsd:integer; inlining would
	// canonicalize it, so it must round-trip through the dictionary
	term := rdf.NewLiteralWithDatatype("042", rdf.XSDInteger)
	encoded, entries, err := enc.EncodeTerm(term)
	require.NoError(t, err)
	assert.False(t, encoded.IsInline())
	require.NotEmpty(t, entries)

	decoded := roundTrip(t, enc, term)
	lit, ok := decoded.(*rdf.Literal)
	require.True(t, ok)
	assert.Equal(t, "042", lit.Value)
}

func TestDifferentSecretsProduceDifferentHashes(t *testing.T) {
	term := rdf.NewNamedNode("http://example.org/resource")

	a, _, err := NewEncoder(1).EncodeTerm(term)
	require.NoError(t, err)
	b, _, err := NewEncoder(2).EncodeTerm(term)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDictValueRoundTrip(t *testing.T) {
	value := EncodeDictValue(42, []byte("payload"))
	count, payload, err := DecodeDictValue(value)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), count)
	assert.Equal(t, []byte("payload"), payload)
}

func TestQuadKeySplit(t *testing.T) {
	enc := NewEncoder(7)
	a, _, _ := enc.EncodeTerm(rdf.NewNamedNode("http://example.org/a"))
	b, _, _ := enc.EncodeTerm(rdf.NewIntegerLiteral(7))

	key := EncodeQuadKey(a, b)
	parts, err := SplitQuadKey(key, 2)
	require.NoError(t, err)
	assert.Equal(t, a, parts[0])
	assert.Equal(t, b, parts[1])

	_, err = SplitQuadKey(key, 3)
	assert.Error(t, err)
}
