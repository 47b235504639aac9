package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/server/results"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/executor"
)

// handleQuery implements the SPARQL 1.1 Protocol query operation.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) int {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return http.StatusOK
	}

	var queryString string
	switch r.Method {
	case http.MethodGet:
		queryString = r.URL.Query().Get("query")
	case http.MethodPost:
		contentType := r.Header.Get("Content-Type")
		switch {
		case strings.Contains(contentType, "application/sparql-query"):
			body, err := io.ReadAll(r.Body)
			if err != nil {
				return s.writeError(w, http.StatusBadRequest, "failed to read request body")
			}
			queryString = string(body)
		case strings.Contains(contentType, "application/x-www-form-urlencoded"):
			if err := r.ParseForm(); err != nil {
				return s.writeError(w, http.StatusBadRequest, "failed to parse form")
			}
			queryString = r.FormValue("query")
		default:
			body, err := io.ReadAll(r.Body)
			if err != nil {
				return s.writeError(w, http.StatusBadRequest, "failed to read request body")
			}
			queryString = string(body)
		}
	default:
		return s.writeError(w, http.StatusMethodNotAllowed, "use GET or POST")
	}

	if queryString == "" {
		return s.writeError(w, http.StatusBadRequest, "missing 'query' parameter")
	}

	result, err := s.engine.Query(r.Context(), queryString)
	if err != nil {
		return s.writeError(w, http.StatusBadRequest, fmt.Sprintf("query failed: %v", err))
	}

	switch res := result.(type) {
	case *executor.SelectResult:
		format := negotiateResultsFormat(r.Header.Get("Accept"))
		set, err := results.Drain(res)
		if err != nil {
			return s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("evaluation failed: %v", err))
		}
		payload, err := results.FormatSelect(set, format)
		if err != nil {
			return s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		w.Header().Set("Content-Type", format.ContentType())
		_, _ = w.Write(payload)
		return http.StatusOK

	case *executor.AskResult:
		format := negotiateResultsFormat(r.Header.Get("Accept"))
		payload, err := results.FormatAsk(res.Result, format)
		if err != nil {
			return s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		w.Header().Set("Content-Type", format.ContentType())
		_, _ = w.Write(payload)
		return http.StatusOK

	case *executor.GraphResult:
		format := negotiateGraphFormat(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", format.MediaType())
		if err := rdf.Serialize(w, res.Quads, format); err != nil {
			return http.StatusInternalServerError
		}
		return http.StatusOK

	default:
		return s.writeError(w, http.StatusInternalServerError, "unknown result type")
	}
}

// handleUpdate implements the SPARQL 1.1 Protocol update operation.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) int {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return http.StatusOK
	}
	if r.Method != http.MethodPost {
		return s.writeError(w, http.StatusMethodNotAllowed, "use POST")
	}
	if s.config.ReadOnly {
		return s.writeError(w, http.StatusForbidden, "endpoint is read-only")
	}

	var updateString string
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/sparql-update"):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return s.writeError(w, http.StatusBadRequest, "failed to read request body")
		}
		updateString = string(body)
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return s.writeError(w, http.StatusBadRequest, "failed to parse form")
		}
		updateString = r.FormValue("update")
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return s.writeError(w, http.StatusBadRequest, "failed to read request body")
		}
		updateString = string(body)
	}

	if updateString == "" {
		return s.writeError(w, http.StatusBadRequest, "missing 'update' parameter")
	}
	if err := s.engine.Update(r.Context(), updateString); err != nil {
		return s.writeError(w, http.StatusBadRequest, fmt.Sprintf("update failed: %v", err))
	}
	w.WriteHeader(http.StatusNoContent)
	return http.StatusNoContent
}

// handleGraphStore implements the Graph Store HTTP Protocol on /store:
// ?graph=<iri> or ?default targets a graph; GET reads, PUT replaces,
// POST merges, DELETE drops.
func (s *Server) handleGraphStore(w http.ResponseWriter, r *http.Request) int {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	var graph rdf.Term
	if g := r.URL.Query().Get("graph"); g != "" {
		graph = rdf.NewNamedNode(g)
	} else if !r.URL.Query().Has("default") && r.Method != http.MethodGet {
		return s.writeError(w, http.StatusBadRequest, "specify ?graph=<iri> or ?default")
	}

	switch r.Method {
	case http.MethodGet:
		format := negotiateGraphFormat(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", format.MediaType())
		var err error
		if graph == nil && !r.URL.Query().Has("default") && format.SupportsDatasets() {
			err = s.store.DumpDataset(w, format)
		} else {
			err = s.store.DumpGraph(w, format, graph)
		}
		if err != nil {
			return http.StatusInternalServerError
		}
		return http.StatusOK

	case http.MethodPut, http.MethodPost:
		if s.config.ReadOnly {
			return s.writeError(w, http.StatusForbidden, "endpoint is read-only")
		}
		format, err := rdf.FormatFromMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			return s.writeError(w, http.StatusUnsupportedMediaType, err.Error())
		}
		if r.Method == http.MethodPut {
			if graph != nil {
				if _, err := s.store.RemoveNamedGraph(graph); err != nil {
					return s.writeError(w, http.StatusInternalServerError, err.Error())
				}
			} else if err := s.store.ClearGraph(nil); err != nil {
				return s.writeError(w, http.StatusInternalServerError, err.Error())
			}
		}
		if format.SupportsDatasets() && graph == nil {
			err = s.store.LoadDataset(r.Body, format, "")
		} else {
			err = s.store.LoadGraph(r.Body, format, "", graph)
		}
		if err != nil {
			return s.writeError(w, http.StatusBadRequest, fmt.Sprintf("load failed: %v", err))
		}
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent

	case http.MethodDelete:
		if s.config.ReadOnly {
			return s.writeError(w, http.StatusForbidden, "endpoint is read-only")
		}
		if graph != nil {
			existed, err := s.store.RemoveNamedGraph(graph)
			if err != nil {
				return s.writeError(w, http.StatusInternalServerError, err.Error())
			}
			if !existed {
				return s.writeError(w, http.StatusNotFound, "graph not found")
			}
		} else if err := s.store.ClearGraph(nil); err != nil {
			return s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		w.WriteHeader(http.StatusNoContent)
		return http.StatusNoContent

	default:
		return s.writeError(w, http.StatusMethodNotAllowed, "unsupported method")
	}
}

// negotiateResultsFormat picks a SELECT/ASK results format from an
// Accept header, defaulting to JSON.
func negotiateResultsFormat(accept string) results.Format {
	switch {
	case strings.Contains(accept, "application/sparql-results+xml"), strings.Contains(accept, "application/xml"):
		return results.FormatXML
	case strings.Contains(accept, "text/csv"):
		return results.FormatCSV
	case strings.Contains(accept, "text/tab-separated-values"):
		return results.FormatTSV
	default:
		return results.FormatJSON
	}
}

// negotiateGraphFormat picks an RDF format for CONSTRUCT/DESCRIBE and
// graph store responses, defaulting to N-Quads.
func negotiateGraphFormat(accept string) rdf.Format {
	switch {
	case strings.Contains(accept, "text/turtle"):
		return rdf.FormatTurtle
	case strings.Contains(accept, "application/trig"):
		return rdf.FormatTriG
	case strings.Contains(accept, "application/rdf+xml"):
		return rdf.FormatRDFXML
	case strings.Contains(accept, "application/n-triples"):
		return rdf.FormatNTriples
	default:
		return rdf.FormatNQuads
	}
}
