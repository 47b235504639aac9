package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

var (
	// ErrCorruptedTerm is returned when a hashed EID has no dictionary row
	// or its payload cannot be interpreted.
	ErrCorruptedTerm = errors.New("corrupted term: no dictionary entry")

	// ErrHashCollision is returned when two distinct terms produce the
	// same keyed hash.
	ErrHashCollision = errors.New("term hash collision")
)

// StrLookup resolves the dictionary payload backing a hashed EID.
// Implementations return ErrCorruptedTerm-compatible errors when the row
// is absent.
type StrLookup interface {
	LookupString(key []byte) ([]byte, error)
}

// Decoder turns EIDs back into RDF terms, resolving hashed EIDs through a
// dictionary lookup.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// DecodeTerm decodes an EID. lookup may be nil for EIDs known to be
// inline.
func (d *Decoder) DecodeTerm(enc EncodedTerm, lookup StrLookup) (rdf.Term, error) {
	payload := enc.Payload()
	switch enc.Tag() {
	case TagDefaultGraph:
		return rdf.NewDefaultGraph(), nil

	case TagPrefixedIRI:
		code := int(payload[0])
		if code >= len(WellKnownPrefixes) {
			return nil, fmt.Errorf("%w: unknown prefix code %d", ErrCorruptedTerm, code)
		}
		suffix := trimZeros(payload[1:])
		return rdf.NewNamedNode(WellKnownPrefixes[code] + string(suffix)), nil

	case TagNumericalBlank:
		num := binary.BigEndian.Uint64(payload[0:8])
		return rdf.NewBlankNode(strconv.FormatUint(num, 10)), nil

	case TagSmallBlank:
		n := int(payload[15])
		return rdf.NewBlankNode(string(payload[:n])), nil

	case TagSmallString:
		n := int(payload[15])
		return rdf.NewLiteral(string(payload[:n])), nil

	case TagSmallLang:
		valLen := int(payload[15] >> 4)
		langLen := int(payload[15] & 0x0F)
		value := string(payload[:valLen])
		lang := string(payload[maxInlineLangValue : maxInlineLangValue+langLen])
		return rdf.NewLiteralWithLanguage(value, lang), nil

	case TagBoolean:
		return rdf.NewBooleanLiteral(payload[0] == 1), nil

	case TagInteger:
		value := int64(binary.BigEndian.Uint64(payload[0:8]))
		return rdf.NewIntegerLiteral(value), nil

	case TagFloat:
		value := math.Float32frombits(binary.BigEndian.Uint32(payload[0:4]))
		return rdf.NewLiteralWithDatatype(formatFloat32(value), rdf.XSDFloat), nil

	case TagDouble:
		value := math.Float64frombits(binary.BigEndian.Uint64(payload[0:8]))
		return rdf.NewDoubleLiteral(value), nil

	case TagDecimal:
		unscaled := int64(binary.BigEndian.Uint64(payload[0:8]))
		scale := payload[8]
		return rdf.NewDecimalLiteral(formatDecimal(unscaled, scale)), nil

	case TagDateTime:
		return rdf.NewLiteralWithDatatype(decodeDateTime(payload), rdf.XSDDateTime), nil

	case TagDate:
		return rdf.NewLiteralWithDatatype(decodeDate(payload), rdf.XSDDate), nil

	case TagTime:
		return rdf.NewLiteralWithDatatype(decodeTime(payload), rdf.XSDTime), nil

	case TagNamedNode, TagBigBlank, TagBigString, TagBigLang, TagTypedLiteral, TagTriple:
		return d.decodeHashed(enc, lookup)

	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorruptedTerm, enc.Tag())
	}
}

func (d *Decoder) decodeHashed(enc EncodedTerm, lookup StrLookup) (rdf.Term, error) {
	if lookup == nil {
		return nil, fmt.Errorf("%w: no dictionary available", ErrCorruptedTerm)
	}
	raw, err := lookup.LookupString(enc.DictKey())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedTerm, err)
	}
	if len(raw) < 1 {
		return nil, fmt.Errorf("%w: empty dictionary payload", ErrCorruptedTerm)
	}
	tag, data := raw[0], raw[1:]
	if tag != enc.Tag() {
		return nil, fmt.Errorf("%w: dictionary payload tag 0x%02x does not match EID tag 0x%02x",
			ErrCorruptedTerm, tag, enc.Tag())
	}

	switch tag {
	case TagNamedNode:
		return rdf.NewNamedNode(string(data)), nil
	case TagBigBlank:
		return rdf.NewBlankNode(string(data)), nil
	case TagBigString:
		return rdf.NewLiteral(string(data)), nil
	case TagBigLang:
		lang, value, err := splitNulPayload(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedTerm, err)
		}
		return rdf.NewLiteralWithLanguage(value, lang), nil
	case TagTypedLiteral:
		datatype, value, err := splitNulPayload(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptedTerm, err)
		}
		return rdf.NewLiteralWithDatatype(value, rdf.NewNamedNode(datatype)), nil
	case TagTriple:
		return d.decodeQuotedTriple(data, lookup)
	default:
		return nil, fmt.Errorf("%w: unexpected dictionary tag 0x%02x", ErrCorruptedTerm, tag)
	}
}

// decodeQuotedTriple decodes the 51-byte concatenation of the inner EIDs.
// Recursion terminates because each inner EID hashes a strictly smaller
// serialization.
func (d *Decoder) decodeQuotedTriple(data []byte, lookup StrLookup) (rdf.Term, error) {
	if len(data) != 3*EncodedTermSize {
		return nil, fmt.Errorf("%w: quoted triple payload has %d bytes", ErrCorruptedTerm, len(data))
	}
	var parts [3]rdf.Term
	for i := 0; i < 3; i++ {
		var inner EncodedTerm
		copy(inner[:], data[i*EncodedTermSize:(i+1)*EncodedTermSize])
		term, err := d.DecodeTerm(inner, lookup)
		if err != nil {
			return nil, err
		}
		parts[i] = term
	}
	return rdf.NewTriple(parts[0], parts[1], parts[2]), nil
}

func trimZeros(data []byte) []byte {
	end := len(data)
	for end > 0 && data[end-1] == 0 {
		end--
	}
	return data[:end]
}

// Dictionary row values carry a 64-bit reference count before the term
// payload so refcount updates and payload reads share one row.

// EncodeDictValue builds a dictionary row value.
func EncodeDictValue(refcount uint64, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out[0:8], refcount)
	copy(out[8:], payload)
	return out
}

// DecodeDictValue splits a dictionary row value into refcount and payload.
func DecodeDictValue(value []byte) (uint64, []byte, error) {
	if len(value) < 8 {
		return 0, nil, fmt.Errorf("%w: dictionary value too short", ErrCorruptedTerm)
	}
	return binary.BigEndian.Uint64(value[0:8]), value[8:], nil
}

// EncodeQuadKey concatenates EIDs into an index key. Keys sort
// lexicographically, so a shared EID prefix yields a contiguous range.
func EncodeQuadKey(terms ...EncodedTerm) []byte {
	result := make([]byte, 0, len(terms)*EncodedTermSize)
	for _, term := range terms {
		result = append(result, term[:]...)
	}
	return result
}

// SplitQuadKey splits an index key back into n EIDs.
func SplitQuadKey(key []byte, n int) ([]EncodedTerm, error) {
	if len(key) != n*EncodedTermSize {
		return nil, fmt.Errorf("invalid quad key length %d, want %d", len(key), n*EncodedTermSize)
	}
	terms := make([]EncodedTerm, n)
	for i := 0; i < n; i++ {
		copy(terms[i][:], key[i*EncodedTermSize:(i+1)*EncodedTermSize])
	}
	return terms, nil
}
