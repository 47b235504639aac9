// Package sparql ties the SPARQL machinery together: it parses query
// and update strings and evaluates them against a store, holding one
// snapshot per query execution.
package sparql

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aleksaelezovic/tetrago/pkg/sparql/executor"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/parser"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/update"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// Engine evaluates SPARQL against one store. It is safe for concurrent
// use: each query runs over its own snapshot and updates serialize at
// commit.
type Engine struct {
	store   *store.Store
	updates *update.Processor
	logger  *slog.Logger
}

// NewEngine creates an engine. httpClient backs SPARQL LOAD and may be
// nil.
func NewEngine(st *store.Store, httpClient *http.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   st,
		updates: update.NewProcessor(st, httpClient, logger),
		logger:  logger,
	}
}

// Query parses and evaluates a SPARQL query. SELECT results stream
// lazily and hold a snapshot until their iterator is closed; ASK,
// CONSTRUCT, and DESCRIBE results are complete on return.
func (e *Engine) Query(ctx context.Context, text string) (executor.QueryResult, error) {
	query, err := parser.ParseQuery(text)
	if err != nil {
		return nil, err
	}

	snapshot, err := e.store.Snapshot()
	if err != nil {
		return nil, err
	}

	ex := executor.NewExecutor(ctx, snapshot)
	result, err := ex.Execute(query)
	if err != nil {
		snapshot.Close()
		return nil, err
	}

	if sel, ok := result.(*executor.SelectResult); ok {
		sel.Iterator = &snapshotBoundIterator{BindingIterator: sel.Iterator, snapshot: snapshot}
		return sel, nil
	}
	snapshot.Close()
	return result, nil
}

// Update parses and executes a SPARQL update request atomically.
func (e *Engine) Update(ctx context.Context, text string) error {
	upd, err := parser.ParseUpdate(text)
	if err != nil {
		return err
	}
	return e.updates.Execute(ctx, upd)
}

// snapshotBoundIterator releases the query's snapshot when the result
// iterator is closed.
type snapshotBoundIterator struct {
	executor.BindingIterator
	snapshot *store.Snapshot
}

func (it *snapshotBoundIterator) Close() error {
	err := it.BindingIterator.Close()
	it.snapshot.Close()
	return err
}
