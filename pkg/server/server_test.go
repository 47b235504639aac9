package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/tetrago/internal/storage"
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/server"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	backend, err := storage.NewMemoryStorage(nil)
	require.NoError(t, err)
	st, err := store.NewStore(backend, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(server.New(server.DefaultConfig(), st, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})
	return srv, st
}

func TestQueryEndpointJSON(t *testing.T) {
	srv, st := newTestServer(t)
	_, err := st.Insert(rdf.NewQuad(
		rdf.NewNamedNode("http://example.org/s"),
		rdf.NewNamedNode("http://example.org/p"),
		rdf.NewLiteral("v"),
		nil,
	))
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/sparql?query=" + escapeQuery("SELECT ?o WHERE { ?s ?p ?o }"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/sparql-results+json")

	var doc struct {
		Head struct {
			Vars []string `json:"vars"`
		} `json:"head"`
		Results struct {
			Bindings []map[string]struct {
				Type  string `json:"type"`
				Value string `json:"value"`
			} `json:"bindings"`
		} `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, []string{"o"}, doc.Head.Vars)
	require.Len(t, doc.Results.Bindings, 1)
	assert.Equal(t, "v", doc.Results.Bindings[0]["o"].Value)
}

func TestAskEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sparql?query=" + escapeQuery("ASK { ?s ?p ?o }"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var doc struct {
		Boolean *bool `json:"boolean"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.NotNil(t, doc.Boolean)
	assert.False(t, *doc.Boolean)
}

func TestUpdateEndpoint(t *testing.T) {
	srv, st := newTestServer(t)

	resp, err := http.Post(srv.URL+"/update", "application/sparql-update",
		strings.NewReader(`INSERT DATA { <http://example.org/a> <http://example.org/p> "v" }`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	contains, err := st.Contains(rdf.NewQuad(
		rdf.NewNamedNode("http://example.org/a"),
		rdf.NewNamedNode("http://example.org/p"),
		rdf.NewLiteral("v"),
		nil,
	))
	require.NoError(t, err)
	assert.True(t, contains)
}

func TestQueryEndpointRejectsBadQuery(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/sparql?query=" + escapeQuery("SELECT WHERE"))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGraphStoreRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	body := `<http://example.org/s> <http://example.org/p> "v" .`
	req, err := http.NewRequest(http.MethodPut,
		srv.URL+"/store?graph=http://example.org/g", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/n-triples")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	getReq, err := http.NewRequest(http.MethodGet, srv.URL+"/store?graph=http://example.org/g", nil)
	require.NoError(t, err)
	getReq.Header.Set("Accept", "application/n-triples")

	getResp, err := http.DefaultClient.Do(getReq)
	require.NoError(t, err)
	defer func() { _ = getResp.Body.Close() }()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	quads, err := rdf.Parse(getResp.Body, rdf.FormatNTriples, "")
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.True(t, quads[0].Object.Equals(rdf.NewLiteral("v")))

	delReq, err := http.NewRequest(http.MethodDelete, srv.URL+"/store?graph=http://example.org/g", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(delReq)
	require.NoError(t, err)
	_ = delResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, delResp.StatusCode)
}

func TestReadOnlyMode(t *testing.T) {
	backend, err := storage.NewMemoryStorage(nil)
	require.NoError(t, err)
	st, err := store.NewStore(backend, nil)
	require.NoError(t, err)

	cfg := server.DefaultConfig()
	cfg.ReadOnly = true
	srv := httptest.NewServer(server.New(cfg, st, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = st.Close()
	})

	resp, err := http.Post(srv.URL+"/update", "application/sparql-update",
		strings.NewReader(`INSERT DATA { <http://example.org/a> <http://example.org/p> "v" }`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func escapeQuery(q string) string {
	replacer := strings.NewReplacer(
		" ", "%20", "?", "%3F", "{", "%7B", "}", "%7D",
		"<", "%3C", ">", "%3E", "\"", "%22", "#", "%23", "\n", "%0A",
	)
	return replacer.Replace(q)
}
