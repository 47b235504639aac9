package results

import (
	"bytes"
	"encoding/csv"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// SPARQL 1.1 Query Results CSV and TSV Formats
// https://www.w3.org/TR/sparql11-results-csv-tsv/

func formatSelectCSV(set *SolutionSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(set.Variables); err != nil {
		return nil, err
	}
	for _, row := range set.Rows {
		record := make([]string, len(set.Variables))
		for i, v := range set.Variables {
			if term, ok := row[v]; ok {
				record[i] = csvTermValue(term)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// csvTermValue renders the plain value of a term per the CSV rules:
// no quoting or datatype decoration beyond what CSV itself requires.
func csvTermValue(term rdf.Term) string {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return t.IRI
	case *rdf.BlankNode:
		return "_:" + t.ID
	case *rdf.Literal:
		return t.Value
	default:
		return term.String()
	}
}

func formatSelectTSV(set *SolutionSet) ([]byte, error) {
	var buf bytes.Buffer

	headers := make([]string, len(set.Variables))
	for i, v := range set.Variables {
		headers[i] = "?" + v
	}
	buf.WriteString(strings.Join(headers, "\t") + "\n")

	for _, row := range set.Rows {
		record := make([]string, len(set.Variables))
		for i, v := range set.Variables {
			if term, ok := row[v]; ok {
				record[i] = tsvTermValue(term)
			}
		}
		buf.WriteString(strings.Join(record, "\t") + "\n")
	}
	return buf.Bytes(), nil
}

// tsvTermValue renders a term in full Turtle-ish syntax as TSV requires.
func tsvTermValue(term rdf.Term) string {
	return term.String()
}
