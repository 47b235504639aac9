package results

import (
	"encoding/json"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// SPARQL 1.1 Query Results JSON Format
// https://www.w3.org/TR/sparql11-results-json/

type sparqlResultsJSON struct {
	Head    resultHead      `json:"head"`
	Results *resultBindings `json:"results,omitempty"`
	Boolean *bool           `json:"boolean,omitempty"`
}

type resultHead struct {
	Vars []string `json:"vars"`
}

type resultBindings struct {
	Bindings []map[string]bindingValue `json:"bindings"`
}

type bindingValue struct {
	Type     string  `json:"type"`
	Value    string  `json:"value"`
	Datatype *string `json:"datatype,omitempty"`
	XMLLang  *string `json:"xml:lang,omitempty"`
}

func formatSelectJSON(set *SolutionSet) ([]byte, error) {
	bindings := make([]map[string]bindingValue, 0, len(set.Rows))
	for _, row := range set.Rows {
		jsonBinding := make(map[string]bindingValue, len(row))
		for name, term := range row {
			jsonBinding[name] = termToBindingValue(term)
		}
		bindings = append(bindings, jsonBinding)
	}

	doc := sparqlResultsJSON{
		Head:    resultHead{Vars: append([]string{}, set.Variables...)},
		Results: &resultBindings{Bindings: bindings},
	}
	return json.MarshalIndent(doc, "", "  ")
}

func formatAskJSON(value bool) ([]byte, error) {
	doc := sparqlResultsJSON{
		Head:    resultHead{Vars: []string{}},
		Boolean: &value,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func termToBindingValue(term rdf.Term) bindingValue {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return bindingValue{Type: "uri", Value: t.IRI}
	case *rdf.BlankNode:
		return bindingValue{Type: "bnode", Value: t.ID}
	case *rdf.Literal:
		bv := bindingValue{Type: "literal", Value: t.Value}
		if t.Language != "" {
			lang := t.Language
			bv.XMLLang = &lang
		} else if t.Datatype != nil && t.Datatype.IRI != rdf.XSDString.IRI {
			datatype := t.Datatype.IRI
			bv.Datatype = &datatype
		}
		return bv
	default:
		return bindingValue{Type: "literal", Value: term.String()}
	}
}
