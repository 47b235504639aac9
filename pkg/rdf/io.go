package rdf

import (
	"fmt"
	"io"
	"strings"
)

// Format identifies an RDF serialization format.
type Format int

const (
	FormatNTriples Format = iota
	FormatNQuads
	FormatTurtle
	FormatTriG
	FormatRDFXML
)

func (f Format) String() string {
	switch f {
	case FormatNTriples:
		return "N-Triples"
	case FormatNQuads:
		return "N-Quads"
	case FormatTurtle:
		return "Turtle"
	case FormatTriG:
		return "TriG"
	case FormatRDFXML:
		return "RDF/XML"
	default:
		return "unknown"
	}
}

// MediaType returns the canonical MIME type of the format.
func (f Format) MediaType() string {
	switch f {
	case FormatNTriples:
		return "application/n-triples"
	case FormatNQuads:
		return "application/n-quads"
	case FormatTurtle:
		return "text/turtle"
	case FormatTriG:
		return "application/trig"
	case FormatRDFXML:
		return "application/rdf+xml"
	default:
		return "application/octet-stream"
	}
}

// SupportsDatasets reports whether the format can carry named graphs.
func (f Format) SupportsDatasets() bool {
	return f == FormatNQuads || f == FormatTriG
}

// FormatFromMediaType resolves a MIME type (optionally with parameters) to
// a Format.
func FormatFromMediaType(mediaType string) (Format, error) {
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "application/n-triples", "text/plain":
		return FormatNTriples, nil
	case "application/n-quads":
		return FormatNQuads, nil
	case "text/turtle", "application/x-turtle":
		return FormatTurtle, nil
	case "application/trig":
		return FormatTriG, nil
	case "application/rdf+xml", "application/xml":
		return FormatRDFXML, nil
	default:
		return 0, fmt.Errorf("unsupported RDF media type %q", mediaType)
	}
}

// FormatFromExtension resolves a file extension (with or without the dot)
// to a Format.
func FormatFromExtension(ext string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "nt":
		return FormatNTriples, nil
	case "nq":
		return FormatNQuads, nil
	case "ttl":
		return FormatTurtle, nil
	case "trig":
		return FormatTriG, nil
	case "rdf", "xml":
		return FormatRDFXML, nil
	default:
		return 0, fmt.Errorf("unsupported RDF file extension %q", ext)
	}
}

// Parse reads an RDF document in the given format and returns its quads.
// baseIRI is used to resolve relative IRIs where the format allows them.
func Parse(r io.Reader, format Format, baseIRI string) ([]*Quad, error) {
	switch format {
	case FormatRDFXML:
		return NewRDFXMLParser(baseIRI).Parse(r)
	default:
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	input := string(data)

	switch format {
	case FormatNTriples, FormatNQuads:
		return NewNQuadsParser(input).Parse()
	case FormatTurtle:
		return NewTurtleParser(input, baseIRI).Parse()
	case FormatTriG:
		return NewTriGParser(input, baseIRI).Parse()
	default:
		return nil, fmt.Errorf("unsupported format %v", format)
	}
}

// Serialize writes quads in the given format. Graph names are dropped for
// triple formats; callers filter to a single graph beforehand.
func Serialize(w io.Writer, quads []*Quad, format Format) error {
	switch format {
	case FormatNTriples:
		return SerializeNTriples(w, quads)
	case FormatNQuads:
		return SerializeNQuads(w, quads)
	case FormatTurtle:
		return NewTurtleSerializer().Serialize(w, quads)
	case FormatTriG:
		return NewTriGSerializer().Serialize(w, quads)
	case FormatRDFXML:
		return NewRDFXMLSerializer().Serialize(w, quads)
	default:
		return fmt.Errorf("unsupported format %v", format)
	}
}
