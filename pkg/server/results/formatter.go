// Package results formats SPARQL query results in the W3C interchange
// formats: JSON, XML, CSV, and TSV.
package results

import (
	"fmt"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/executor"
)

// Format identifies a results serialization.
type Format int

const (
	FormatJSON Format = iota
	FormatXML
	FormatCSV
	FormatTSV
)

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/sparql-results+json"
	case FormatXML:
		return "application/sparql-results+xml"
	case FormatCSV:
		return "text/csv"
	case FormatTSV:
		return "text/tab-separated-values"
	default:
		return "application/octet-stream"
	}
}

// SolutionSet is a drained SELECT result ready for formatting.
type SolutionSet struct {
	Variables []string
	Rows      []map[string]rdf.Term
}

// Drain materializes a lazy SELECT result and closes its iterator.
func Drain(result *executor.SelectResult) (*SolutionSet, error) {
	defer func() { _ = result.Iterator.Close() }()

	set := &SolutionSet{Variables: result.Variables}
	for result.Iterator.Next() {
		binding := result.Iterator.Binding()
		row := make(map[string]rdf.Term, len(binding.Vars))
		for name, term := range binding.Vars {
			row[name] = term
		}
		set.Rows = append(set.Rows, row)
	}
	if err := result.Iterator.Err(); err != nil {
		return nil, err
	}
	return set, nil
}

// FormatSelect renders a solution set in the requested format.
func FormatSelect(set *SolutionSet, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return formatSelectJSON(set)
	case FormatXML:
		return formatSelectXML(set)
	case FormatCSV:
		return formatSelectCSV(set)
	case FormatTSV:
		return formatSelectTSV(set)
	default:
		return nil, fmt.Errorf("unsupported results format")
	}
}

// FormatAsk renders a boolean result in the requested format.
func FormatAsk(value bool, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return formatAskJSON(value)
	case FormatXML:
		return formatAskXML(value)
	case FormatCSV, FormatTSV:
		if value {
			return []byte("true\n"), nil
		}
		return []byte("false\n"), nil
	default:
		return nil, fmt.Errorf("unsupported results format")
	}
}
