package results

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// SPARQL Query Results XML Format
// https://www.w3.org/TR/rdf-sparql-XMLres/

func formatSelectXML(set *SolutionSet) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<sparql xmlns="http://www.w3.org/2005/sparql-results#">` + "\n")

	buf.WriteString("  <head>\n")
	for _, v := range set.Variables {
		fmt.Fprintf(&buf, "    <variable name=%q/>\n", v)
	}
	buf.WriteString("  </head>\n")

	buf.WriteString("  <results>\n")
	for _, row := range set.Rows {
		buf.WriteString("    <result>\n")
		for _, v := range set.Variables {
			term, ok := row[v]
			if !ok {
				continue
			}
			fmt.Fprintf(&buf, "      <binding name=%q>", v)
			writeXMLTerm(&buf, term)
			buf.WriteString("</binding>\n")
		}
		buf.WriteString("    </result>\n")
	}
	buf.WriteString("  </results>\n")
	buf.WriteString("</sparql>\n")
	return buf.Bytes(), nil
}

func writeXMLTerm(buf *bytes.Buffer, term rdf.Term) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		buf.WriteString("<uri>")
		_ = xml.EscapeText(buf, []byte(t.IRI))
		buf.WriteString("</uri>")
	case *rdf.BlankNode:
		buf.WriteString("<bnode>")
		_ = xml.EscapeText(buf, []byte(t.ID))
		buf.WriteString("</bnode>")
	case *rdf.Literal:
		switch {
		case t.Language != "":
			fmt.Fprintf(buf, `<literal xml:lang=%q>`, t.Language)
		case t.Datatype != nil && t.Datatype.IRI != rdf.XSDString.IRI:
			fmt.Fprintf(buf, `<literal datatype=%q>`, t.Datatype.IRI)
		default:
			buf.WriteString("<literal>")
		}
		_ = xml.EscapeText(buf, []byte(t.Value))
		buf.WriteString("</literal>")
	default:
		buf.WriteString("<literal>")
		_ = xml.EscapeText(buf, []byte(term.String()))
		buf.WriteString("</literal>")
	}
}

func formatAskXML(value bool) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<sparql xmlns="http://www.w3.org/2005/sparql-results#">` + "\n")
	buf.WriteString("  <head/>\n")
	fmt.Fprintf(&buf, "  <boolean>%t</boolean>\n", value)
	buf.WriteString("</sparql>\n")
	return buf.Bytes(), nil
}
