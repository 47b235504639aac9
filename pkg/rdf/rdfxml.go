package rdf

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

const rdfNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// RDFXMLParser parses RDF/XML documents. It covers the common profile:
// rdf:Description and typed node elements, rdf:about / rdf:nodeID /
// rdf:resource, rdf:datatype and xml:lang, and nested node elements.
// Containers, rdf:parseType, and property attributes are not supported.
type RDFXMLParser struct {
	base     string
	bnodeSeq int
}

func NewRDFXMLParser(baseIRI string) *RDFXMLParser {
	return &RDFXMLParser{base: baseIRI}
}

// Parse reads the document and returns its triples as default-graph quads.
func (p *RDFXMLParser) Parse(reader io.Reader) ([]*Quad, error) {
	decoder := xml.NewDecoder(reader)
	var quads []*Quad

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("rdf/xml parse error: %w", err)
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space == rdfNS && start.Name.Local == "RDF" {
			continue
		}
		nodeQuads, _, err := p.parseNodeElement(decoder, start)
		if err != nil {
			return nil, err
		}
		quads = append(quads, nodeQuads...)
	}
	return quads, nil
}

// parseNodeElement parses a node element (rdf:Description or a typed node)
// and all its property elements, returning the produced quads and the
// subject term.
func (p *RDFXMLParser) parseNodeElement(decoder *xml.Decoder, start xml.StartElement) ([]*Quad, Term, error) {
	var quads []*Quad

	subject := p.subjectFromAttrs(start.Attr)

	// A typed node element asserts rdf:type
	if !(start.Name.Space == rdfNS && start.Name.Local == "Description") {
		typeIRI := start.Name.Space + start.Name.Local
		quads = append(quads, NewQuad(subject, RDFType, NewNamedNode(typeIRI), NewDefaultGraph()))
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("rdf/xml parse error: %w", err)
		}
		switch elem := token.(type) {
		case xml.StartElement:
			propQuads, err := p.parsePropertyElement(decoder, subject, elem)
			if err != nil {
				return nil, nil, err
			}
			quads = append(quads, propQuads...)
		case xml.EndElement:
			return quads, subject, nil
		}
	}
}

func (p *RDFXMLParser) subjectFromAttrs(attrs []xml.Attr) Term {
	if about := getAttr(attrs, rdfNS, "about"); about != "" {
		return NewNamedNode(p.resolve(about))
	}
	if id := getAttr(attrs, rdfNS, "ID"); id != "" {
		return NewNamedNode(p.resolve("#" + id))
	}
	if nodeID := getAttr(attrs, rdfNS, "nodeID"); nodeID != "" {
		return NewBlankNode(nodeID)
	}
	p.bnodeSeq++
	return NewBlankNode(fmt.Sprintf("xb%d", p.bnodeSeq))
}

// parsePropertyElement parses one property element of a node.
func (p *RDFXMLParser) parsePropertyElement(decoder *xml.Decoder, subject Term, elem xml.StartElement) ([]*Quad, error) {
	predicate := NewNamedNode(elem.Name.Space + elem.Name.Local)

	if resource := getAttr(elem.Attr, rdfNS, "resource"); resource != "" {
		if err := decoder.Skip(); err != nil {
			return nil, fmt.Errorf("rdf/xml parse error: %w", err)
		}
		return []*Quad{NewQuad(subject, predicate, NewNamedNode(p.resolve(resource)), NewDefaultGraph())}, nil
	}
	if nodeID := getAttr(elem.Attr, rdfNS, "nodeID"); nodeID != "" {
		if err := decoder.Skip(); err != nil {
			return nil, fmt.Errorf("rdf/xml parse error: %w", err)
		}
		return []*Quad{NewQuad(subject, predicate, NewBlankNode(nodeID), NewDefaultGraph())}, nil
	}

	datatype := getAttr(elem.Attr, rdfNS, "datatype")
	lang := getAttrAny(elem.Attr, "lang")

	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("rdf/xml parse error: %w", err)
		}
		switch t := token.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			// Nested node element: the object is the nested subject
			nestedQuads, nestedSubject, err := p.parseNodeElement(decoder, t)
			if err != nil {
				return nil, err
			}
			quads := []*Quad{NewQuad(subject, predicate, nestedSubject, NewDefaultGraph())}
			quads = append(quads, nestedQuads...)
			// Consume the property element's end tag
			if err := decoder.Skip(); err != nil {
				return nil, fmt.Errorf("rdf/xml parse error: %w", err)
			}
			return quads, nil
		case xml.EndElement:
			var object Term
			switch {
			case datatype != "":
				object = NewLiteralWithDatatype(text.String(), NewNamedNode(datatype))
			case lang != "":
				object = NewLiteralWithLanguage(text.String(), lang)
			default:
				object = NewLiteral(text.String())
			}
			return []*Quad{NewQuad(subject, predicate, object, NewDefaultGraph())}, nil
		}
	}
}

func (p *RDFXMLParser) resolve(iri string) string {
	if strings.Contains(iri, ":") || p.base == "" {
		return iri
	}
	if strings.HasPrefix(iri, "#") {
		return p.base + iri
	}
	if idx := strings.LastIndex(p.base, "/"); idx >= 0 {
		return p.base[:idx+1] + iri
	}
	return p.base + iri
}

func getAttr(attrs []xml.Attr, namespace, local string) string {
	for _, attr := range attrs {
		if attr.Name.Space == namespace && attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

func getAttrAny(attrs []xml.Attr, local string) string {
	for _, attr := range attrs {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// RDFXMLSerializer writes triples as RDF/XML, one rdf:Description per
// subject.
type RDFXMLSerializer struct{}

func NewRDFXMLSerializer() *RDFXMLSerializer {
	return &RDFXMLSerializer{}
}

func (s *RDFXMLSerializer) Serialize(w io.Writer, quads []*Quad) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "<rdf:RDF xmlns:rdf=\"%s\">\n", rdfNS); err != nil {
		return err
	}

	bySubject := make(map[string][]*Quad)
	var order []string
	for _, q := range quads {
		if _, ok := q.Subject.(*Triple); ok {
			return fmt.Errorf("quoted triples cannot be serialized as RDF/XML")
		}
		key := q.Subject.String()
		if _, seen := bySubject[key]; !seen {
			order = append(order, key)
		}
		bySubject[key] = append(bySubject[key], q)
	}
	sort.Strings(order)

	for _, key := range order {
		group := bySubject[key]
		if err := s.writeDescription(w, group); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, "</rdf:RDF>\n")
	return err
}

func (s *RDFXMLSerializer) writeDescription(w io.Writer, group []*Quad) error {
	switch subj := group[0].Subject.(type) {
	case *NamedNode:
		if _, err := fmt.Fprintf(w, "  <rdf:Description rdf:about=%q>\n", subj.IRI); err != nil {
			return err
		}
	case *BlankNode:
		if _, err := fmt.Fprintf(w, "  <rdf:Description rdf:nodeID=%q>\n", subj.ID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported subject type %T in RDF/XML", subj)
	}

	for _, q := range group {
		pred := q.Predicate.(*NamedNode).IRI
		ns, local := splitIRI(pred)
		open := fmt.Sprintf("<n:%s xmlns:n=%q", local, ns)
		switch obj := q.Object.(type) {
		case *NamedNode:
			if _, err := fmt.Fprintf(w, "    %s rdf:resource=%q/>\n", open, obj.IRI); err != nil {
				return err
			}
		case *BlankNode:
			if _, err := fmt.Fprintf(w, "    %s rdf:nodeID=%q/>\n", open, obj.ID); err != nil {
				return err
			}
		case *Literal:
			attr := ""
			if obj.Language != "" {
				attr = fmt.Sprintf(" xml:lang=%q", obj.Language)
			} else if obj.Datatype != nil && obj.Datatype.IRI != XSDString.IRI {
				attr = fmt.Sprintf(" rdf:datatype=%q", obj.Datatype.IRI)
			}
			var escaped strings.Builder
			if err := xml.EscapeText(&escaped, []byte(obj.Value)); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "    %s%s>%s</n:%s>\n", open, attr, escaped.String(), local); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported object type %T in RDF/XML", obj)
		}
	}

	_, err := io.WriteString(w, "  </rdf:Description>\n")
	return err
}

// splitIRI splits an IRI into namespace and local name at the last '#' or
// '/'.
func splitIRI(iri string) (string, string) {
	if idx := strings.LastIndex(iri, "#"); idx >= 0 {
		return iri[:idx+1], iri[idx+1:]
	}
	if idx := strings.LastIndex(iri, "/"); idx >= 0 {
		return iri[:idx+1], iri[idx+1:]
	}
	return iri, ""
}
