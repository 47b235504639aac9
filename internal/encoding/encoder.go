// Package encoding implements the bijective codec between RDF terms and
// fixed-width encoded identifiers (EIDs).
//
// An EID is 17 bytes: one tag byte followed by 16 payload bytes. Small
// values (booleans, 64-bit integers, floats, canonical date/times, short
// strings, well-known-prefix IRIs) are inlined into the payload; everything
// else carries a keyed 128-bit xxh3 hash of its canonical serialization,
// resolvable through the id2str dictionary. Two terms are RDF-equal exactly
// when their EIDs are bytewise equal.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/zeebo/xxh3"
)

const (
	// EncodedTermSize is the width of an EID: tag byte + 16 payload bytes.
	EncodedTermSize = 17

	maxInlineString = 15
	maxInlineLang   = 4
	maxInlineLangValue = 11
)

// EncodedTerm is a fixed-width encoded identifier for an RDF term.
type EncodedTerm [EncodedTermSize]byte

// Tag values. The tag determines how the 16 payload bytes are interpreted
// and whether a dictionary row backs the EID.
const (
	TagDefaultGraph   byte = 0x00
	TagNamedNode      byte = 0x01 // hashed IRI
	TagPrefixedIRI    byte = 0x02 // well-known prefix code + inline suffix
	TagNumericalBlank byte = 0x03
	TagSmallBlank     byte = 0x04
	TagBigBlank       byte = 0x05
	TagSmallString    byte = 0x06
	TagBigString      byte = 0x07
	TagSmallLang      byte = 0x08
	TagBigLang        byte = 0x09
	TagTypedLiteral   byte = 0x0A // hashed datatype + lexical form
	TagBoolean        byte = 0x0B
	TagInteger        byte = 0x0C
	TagFloat          byte = 0x0D
	TagDouble         byte = 0x0E
	TagDecimal        byte = 0x0F
	TagDateTime       byte = 0x10
	TagDate           byte = 0x11
	TagTime           byte = 0x12
	TagTriple         byte = 0x13 // hashed concatenation of the inner EIDs
)

// Tag returns the tag byte of the EID.
func (e EncodedTerm) Tag() byte {
	return e[0]
}

// Payload returns the 16 payload bytes.
func (e EncodedTerm) Payload() []byte {
	return e[1:]
}

// IsInline reports whether the EID is self-contained, i.e. no dictionary
// row backs it.
func (e EncodedTerm) IsInline() bool {
	switch e.Tag() {
	case TagNamedNode, TagBigBlank, TagBigString, TagBigLang, TagTypedLiteral, TagTriple:
		return false
	default:
		return true
	}
}

// DictKey returns the 16-byte dictionary key for a hashed EID.
func (e EncodedTerm) DictKey() []byte {
	return e[1:]
}

// DictEntry is a dictionary row produced while encoding a term: the hashed
// EID it backs and the canonical payload to persist. Payload starts with
// the owning tag byte so dictionary rows decode without outside context.
type DictEntry struct {
	EID     EncodedTerm
	Payload []byte
}

// WellKnownPrefixes are IRI namespaces whose members inline as prefix code
// plus suffix. The order is part of the on-disk format and must not change.
var WellKnownPrefixes = []string{
	"http://www.w3.org/2001/XMLSchema#",
	"http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"http://www.w3.org/2000/01/rdf-schema#",
	"http://www.w3.org/2002/07/owl#",
}

// Encoder encodes RDF terms into EIDs. The hash is keyed with a per-store
// secret so term hashes are not predictable across stores.
type Encoder struct {
	secret uint64
}

// NewEncoder creates an encoder keyed with the store secret.
func NewEncoder(secret uint64) *Encoder {
	return &Encoder{secret: secret}
}

// Secret returns the hash key the encoder was created with.
func (e *Encoder) Secret() uint64 {
	return e.secret
}

// Hash128 computes the keyed 128-bit hash of data.
func (e *Encoder) Hash128(data []byte) [16]byte {
	h := xxh3.Hash128Seed(data, e.secret)
	var out [16]byte
	binary.BigEndian.PutUint64(out[0:8], h.Hi)
	binary.BigEndian.PutUint64(out[8:16], h.Lo)
	return out
}

// EncodeTerm encodes a term. Dictionary entries for the term and any
// nested quoted-triple components are returned alongside the EID; inline
// encodings return no entries.
func (e *Encoder) EncodeTerm(term rdf.Term) (EncodedTerm, []DictEntry, error) {
	var zero EncodedTerm
	switch t := term.(type) {
	case *rdf.NamedNode:
		enc, entry := e.encodeNamedNode(t)
		return enc, entry, nil
	case *rdf.BlankNode:
		enc, entry := e.encodeBlankNode(t)
		return enc, entry, nil
	case *rdf.Literal:
		enc, entry := e.encodeLiteral(t)
		return enc, entry, nil
	case *rdf.DefaultGraph:
		return EncodedTerm{}, nil, nil
	case *rdf.Triple:
		return e.encodeTriple(t)
	default:
		return zero, nil, fmt.Errorf("unknown term type: %T", term)
	}
}

func (e *Encoder) encodeNamedNode(node *rdf.NamedNode) (EncodedTerm, []DictEntry) {
	for code, prefix := range WellKnownPrefixes {
		if suffix, ok := strings.CutPrefix(node.IRI, prefix); ok &&
			len(suffix) <= maxInlineString && !strings.Contains(suffix, "\x00") {
			var enc EncodedTerm
			enc[0] = TagPrefixedIRI
			enc[1] = byte(code)
			copy(enc[2:], suffix)
			return enc, nil
		}
	}

	var enc EncodedTerm
	enc[0] = TagNamedNode
	hash := e.Hash128([]byte(node.IRI))
	copy(enc[1:], hash[:])
	return enc, []DictEntry{{EID: enc, Payload: dictPayload(TagNamedNode, []byte(node.IRI))}}
}

func (e *Encoder) encodeBlankNode(node *rdf.BlankNode) (EncodedTerm, []DictEntry) {
	// Numeric labels inline as a big-endian integer when the decimal form
	// is canonical
	if num, err := strconv.ParseUint(node.ID, 10, 64); err == nil &&
		strconv.FormatUint(num, 10) == node.ID {
		var enc EncodedTerm
		enc[0] = TagNumericalBlank
		binary.BigEndian.PutUint64(enc[1:9], num)
		return enc, nil
	}

	if len(node.ID) <= maxInlineString && !strings.Contains(node.ID, "\x00") {
		var enc EncodedTerm
		enc[0] = TagSmallBlank
		copy(enc[1:], node.ID)
		enc[16] = byte(len(node.ID))
		return enc, nil
	}

	var enc EncodedTerm
	enc[0] = TagBigBlank
	hash := e.Hash128([]byte(node.ID))
	copy(enc[1:], hash[:])
	return enc, []DictEntry{{EID: enc, Payload: dictPayload(TagBigBlank, []byte(node.ID))}}
}

func (e *Encoder) encodeLiteral(lit *rdf.Literal) (EncodedTerm, []DictEntry) {
	if lit.Language != "" {
		return e.encodeLangString(lit)
	}

	if lit.Datatype != nil {
		switch lit.Datatype.IRI {
		case rdf.XSDBoolean.IRI:
			if enc, ok := encodeBoolean(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDInteger.IRI:
			if enc, ok := encodeInteger(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDFloat.IRI:
			if enc, ok := encodeFloat(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDDouble.IRI:
			if enc, ok := encodeDouble(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDDecimal.IRI:
			if enc, ok := encodeDecimal(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDDateTime.IRI:
			if enc, ok := encodeDateTime(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDDate.IRI:
			if enc, ok := encodeDate(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDTime.IRI:
			if enc, ok := encodeTime(lit.Value); ok {
				return enc, nil
			}
		case rdf.XSDString.IRI, "":
			// Plain string handling below
		default:
			return e.encodeTypedLiteral(lit)
		}
		if lit.Datatype.IRI != rdf.XSDString.IRI && lit.Datatype.IRI != "" {
			// Non-canonical lexical form of an inline-eligible datatype:
			// keep the exact lexical form through the dictionary
			return e.encodeTypedLiteral(lit)
		}
	}

	// Simple string literal
	if len(lit.Value) <= maxInlineString {
		var enc EncodedTerm
		enc[0] = TagSmallString
		copy(enc[1:], lit.Value)
		enc[16] = byte(len(lit.Value))
		return enc, nil
	}
	var enc EncodedTerm
	enc[0] = TagBigString
	hash := e.Hash128([]byte(lit.Value))
	copy(enc[1:], hash[:])
	return enc, []DictEntry{{EID: enc, Payload: dictPayload(TagBigString, []byte(lit.Value))}}
}

func (e *Encoder) encodeLangString(lit *rdf.Literal) (EncodedTerm, []DictEntry) {
	lang := lit.Language
	if len(lang) <= maxInlineLang && len(lit.Value) <= maxInlineLangValue {
		var enc EncodedTerm
		enc[0] = TagSmallLang
		copy(enc[1:1+maxInlineLangValue], lit.Value)
		copy(enc[1+maxInlineLangValue:], lang)
		enc[16] = byte(len(lit.Value))<<4 | byte(len(lang))
		return enc, nil
	}

	canonical := langStringPayload(lang, lit.Value)
	var enc EncodedTerm
	enc[0] = TagBigLang
	hash := e.Hash128(canonical)
	copy(enc[1:], hash[:])
	return enc, []DictEntry{{EID: enc, Payload: dictPayload(TagBigLang, canonical)}}
}

func (e *Encoder) encodeTypedLiteral(lit *rdf.Literal) (EncodedTerm, []DictEntry) {
	canonical := typedLiteralPayload(lit.Datatype.IRI, lit.Value)
	var enc EncodedTerm
	enc[0] = TagTypedLiteral
	hash := e.Hash128(canonical)
	copy(enc[1:], hash[:])
	return enc, []DictEntry{{EID: enc, Payload: dictPayload(TagTypedLiteral, canonical)}}
}

// encodeTriple encodes a quoted triple: the EID hashes the concatenation
// of the three inner EIDs, and the dictionary row carries those 51 bytes so
// decoding can recurse. Inner hashed terms contribute their own entries.
func (e *Encoder) encodeTriple(t *rdf.Triple) (EncodedTerm, []DictEntry, error) {
	var zero EncodedTerm

	subj, subjEntries, err := e.EncodeTerm(t.Subject)
	if err != nil {
		return zero, nil, fmt.Errorf("failed to encode quoted triple subject: %w", err)
	}
	pred, predEntries, err := e.EncodeTerm(t.Predicate)
	if err != nil {
		return zero, nil, fmt.Errorf("failed to encode quoted triple predicate: %w", err)
	}
	obj, objEntries, err := e.EncodeTerm(t.Object)
	if err != nil {
		return zero, nil, fmt.Errorf("failed to encode quoted triple object: %w", err)
	}

	inner := make([]byte, 0, 3*EncodedTermSize)
	inner = append(inner, subj[:]...)
	inner = append(inner, pred[:]...)
	inner = append(inner, obj[:]...)

	var enc EncodedTerm
	enc[0] = TagTriple
	hash := e.Hash128(inner)
	copy(enc[1:], hash[:])

	entries := append(subjEntries, predEntries...)
	entries = append(entries, objEntries...)
	entries = append(entries, DictEntry{EID: enc, Payload: dictPayload(TagTriple, inner)})
	return enc, entries, nil
}

func dictPayload(tag byte, data []byte) []byte {
	out := make([]byte, 0, 1+len(data))
	out = append(out, tag)
	return append(out, data...)
}

// langStringPayload is the canonical serialization of a language-tagged
// string: tag, NUL, value. Language tags cannot contain NUL.
func langStringPayload(lang, value string) []byte {
	out := make([]byte, 0, len(lang)+1+len(value))
	out = append(out, lang...)
	out = append(out, 0)
	return append(out, value...)
}

// typedLiteralPayload is the canonical serialization of a typed literal:
// datatype IRI, NUL, lexical form.
func typedLiteralPayload(datatype, value string) []byte {
	out := make([]byte, 0, len(datatype)+1+len(value))
	out = append(out, datatype...)
	out = append(out, 0)
	return append(out, value...)
}

func splitNulPayload(data []byte) (string, string, error) {
	idx := bytes.IndexByte(data, 0)
	if idx < 0 {
		return "", "", errors.New("missing separator in dictionary payload")
	}
	return string(data[:idx]), string(data[idx+1:]), nil
}

func encodeBoolean(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	enc[0] = TagBoolean
	switch lexical {
	case "true":
		enc[1] = 1
	case "false":
		enc[1] = 0
	default:
		// "0"/"1" and whitespace variants keep their lexical form
		return enc, false
	}
	return enc, true
}

func encodeInteger(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	value, err := strconv.ParseInt(lexical, 10, 64)
	if err != nil || strconv.FormatInt(value, 10) != lexical {
		return enc, false
	}
	enc[0] = TagInteger
	binary.BigEndian.PutUint64(enc[1:9], uint64(value))
	return enc, true
}

func encodeFloat(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	value, err := strconv.ParseFloat(lexical, 32)
	if err != nil || formatFloat32(float32(value)) != lexical {
		return enc, false
	}
	enc[0] = TagFloat
	binary.BigEndian.PutUint32(enc[1:5], floatBits32(float32(value)))
	return enc, true
}

func encodeDouble(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	value, err := strconv.ParseFloat(lexical, 64)
	if err != nil || rdf.FormatDouble(value) != lexical {
		return enc, false
	}
	enc[0] = TagDouble
	binary.BigEndian.PutUint64(enc[1:9], floatBits64(value))
	return enc, true
}

// encodeDecimal inlines decimals as a scaled 64-bit integer plus a scale
// byte when the lexical form is canonical and fits.
func encodeDecimal(lexical string) (EncodedTerm, bool) {
	var enc EncodedTerm
	unscaled, scale, ok := parseDecimal(lexical)
	if !ok || formatDecimal(unscaled, scale) != lexical {
		return enc, false
	}
	enc[0] = TagDecimal
	binary.BigEndian.PutUint64(enc[1:9], uint64(unscaled))
	enc[9] = scale
	return enc, true
}

// parseDecimal parses a xsd:decimal lexical form into unscaled value and
// scale (digits after the point). Returns ok=false on overflow.
func parseDecimal(lexical string) (int64, uint8, bool) {
	s := lexical
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return 0, 0, false
	}
	if len(fracPart) > 18 {
		return 0, 0, false
	}
	digits := intPart + fracPart
	if digits == "" {
		return 0, 0, false
	}
	var unscaled int64
	for i := 0; i < len(digits); i++ {
		ch := digits[i]
		if ch < '0' || ch > '9' {
			return 0, 0, false
		}
		d := int64(ch - '0')
		if unscaled > (1<<62)/10 {
			return 0, 0, false
		}
		unscaled = unscaled*10 + d
	}
	if neg {
		unscaled = -unscaled
	}
	return unscaled, uint8(len(fracPart)), true
}

func formatDecimal(unscaled int64, scale uint8) string {
	digits := strconv.FormatInt(unscaled, 10)
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	for len(digits) <= int(scale) {
		digits = "0" + digits
	}
	var out string
	if scale == 0 {
		out = digits
	} else {
		out = digits[:len(digits)-int(scale)] + "." + digits[len(digits)-int(scale):]
	}
	if neg {
		out = "-" + out
	}
	return out
}

func floatBits32(f float32) uint32 {
	return math.Float32bits(f)
}

func floatBits64(f float64) uint64 {
	return math.Float64bits(f)
}

func formatFloat32(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "NaN") && !strings.Contains(s, "Inf") {
		s += ".0"
	}
	return s
}
