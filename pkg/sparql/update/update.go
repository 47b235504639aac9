// Package update executes SPARQL update requests. A request's
// operations run in order inside one atomic write batch; every read
// within the request observes the snapshot taken at its start, never the
// request's own writes.
package update

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/executor"
	"github.com/aleksaelezovic/tetrago/pkg/store"
)

// Processor executes parsed updates against a store.
type Processor struct {
	store  *store.Store
	client *http.Client
	logger *slog.Logger

	bnodeSeq int
}

// NewProcessor creates an update processor. client is used by LOAD and
// defaults to http.DefaultClient.
func NewProcessor(st *store.Store, client *http.Client, logger *slog.Logger) *Processor {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: st, client: client, logger: logger}
}

// Execute runs all operations of the request atomically. Any error
// discards the whole batch.
func (p *Processor) Execute(ctx context.Context, upd *algebra.Update) error {
	return p.store.Transaction(func(txn *store.Txn) error {
		for _, op := range upd.Operations {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.executeOp(ctx, txn, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *Processor) executeOp(ctx context.Context, txn *store.Txn, op algebra.UpdateOperation) error {
	switch o := op.(type) {
	case *algebra.InsertData:
		return p.insertData(txn, o.Quads)
	case *algebra.DeleteData:
		return p.deleteData(txn, o.Quads)
	case *algebra.Modify:
		return p.modify(ctx, txn, o)
	case *algebra.Load:
		return p.load(ctx, txn, o)
	case *algebra.Clear:
		return p.clear(txn, o)
	case *algebra.Create:
		return p.create(txn, o)
	case *algebra.Drop:
		return p.drop(txn, o)
	case *algebra.GraphCopy:
		return p.graphCopy(txn, o)
	default:
		return fmt.Errorf("unsupported update operation %T", op)
	}
}

func (p *Processor) insertData(txn *store.Txn, templates []*algebra.QuadTemplate) error {
	bnodes := make(map[string]*rdf.BlankNode)
	for _, tpl := range templates {
		quad, ok := p.groundQuad(tpl, nil, bnodes, nil)
		if !ok {
			return fmt.Errorf("INSERT DATA requires ground quads")
		}
		if _, err := txn.Insert(quad); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) deleteData(txn *store.Txn, templates []*algebra.QuadTemplate) error {
	for _, tpl := range templates {
		quad, ok := p.groundQuad(tpl, nil, nil, nil)
		if !ok {
			return fmt.Errorf("DELETE DATA cannot contain blank nodes or variables")
		}
		if _, err := txn.Remove(quad); err != nil {
			return err
		}
	}
	return nil
}

// modify runs DELETE/INSERT WHERE. The WHERE clause and both templates
// see the pre-request snapshot: all bindings are materialized before any
// mutation applies, deletions happen before insertions.
func (p *Processor) modify(ctx context.Context, txn *store.Txn, o *algebra.Modify) error {
	where := o.Where
	var withGraph rdf.Term
	if o.With != nil {
		withGraph = o.With
		where = &algebra.Graph{Name: algebra.Term(o.With), Inner: where}
	}

	ex := executor.NewExecutor(ctx, txn.Snapshot())
	it, err := ex.BuildPattern(where)
	if err != nil {
		return err
	}
	var bindings []*store.Binding
	for it.Next() {
		bindings = append(bindings, it.Binding().Clone())
	}
	err = it.Err()
	_ = it.Close()
	if err != nil {
		return err
	}

	for _, binding := range bindings {
		for _, tpl := range o.Delete {
			quad, ok := p.groundQuad(tpl, binding, nil, withGraph)
			if !ok {
				continue
			}
			if _, err := txn.Remove(quad); err != nil {
				return err
			}
		}
	}
	for _, binding := range bindings {
		bnodes := make(map[string]*rdf.BlankNode)
		for _, tpl := range o.Insert {
			quad, ok := p.groundQuad(tpl, binding, bnodes, withGraph)
			if !ok {
				continue
			}
			if _, err := txn.Insert(quad); err != nil {
				return err
			}
		}
	}
	return nil
}

// groundQuad instantiates a template against a binding. Blank node
// labels mint fresh blank nodes when bnodes is non-nil and fail the
// grounding otherwise. Unbound variables drop the quad.
func (p *Processor) groundQuad(tpl *algebra.QuadTemplate, binding *store.Binding, bnodes map[string]*rdf.BlankNode, withGraph rdf.Term) (*rdf.Quad, bool) {
	resolve := func(tv algebra.TermOrVar) (rdf.Term, bool) {
		if !tv.IsVar() {
			return tv.Term, true
		}
		if strings.HasPrefix(tv.Var, "_anon") {
			if bnodes == nil {
				return nil, false
			}
			if b, ok := bnodes[tv.Var]; ok {
				return b, true
			}
			p.bnodeSeq++
			b := rdf.NewBlankNode(fmt.Sprintf("u%d", p.bnodeSeq))
			bnodes[tv.Var] = b
			return b, true
		}
		if binding == nil {
			return nil, false
		}
		term := binding.Get(tv.Var)
		return term, term != nil
	}

	subject, ok := resolve(tpl.Subject)
	if !ok {
		return nil, false
	}
	predicate, ok := resolve(tpl.Predicate)
	if !ok {
		return nil, false
	}
	object, ok := resolve(tpl.Object)
	if !ok {
		return nil, false
	}

	var graph rdf.Term
	switch {
	case tpl.Graph.IsVar():
		g, ok := resolve(tpl.Graph)
		if !ok {
			return nil, false
		}
		graph = g
	case tpl.Graph.Term != nil:
		graph = tpl.Graph.Term
	case withGraph != nil:
		graph = withGraph
	}

	quad := rdf.NewQuad(subject, predicate, object, graph)
	if quad.Validate() != nil {
		return nil, false
	}
	return quad, true
}

// load fetches a document and inserts its quads, into o.Graph when
// given.
func (p *Processor) load(ctx context.Context, txn *store.Txn, o *algebra.Load) error {
	err := p.loadInto(ctx, txn, o)
	if err != nil && o.Silent {
		p.logger.Warn("LOAD failed silently", slog.String("source", o.Source), slog.String("error", err.Error()))
		return nil
	}
	return err
}

func (p *Processor) loadInto(ctx context.Context, txn *store.Txn, o *algebra.Load) error {
	var data []byte
	var mediaType string

	switch {
	case strings.HasPrefix(o.Source, "http://") || strings.HasPrefix(o.Source, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.Source, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/n-quads, text/turtle, application/trig, application/rdf+xml")
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("LOAD %s: %w", o.Source, err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("LOAD %s: unexpected status %d", o.Source, resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		data = body
		mediaType = resp.Header.Get("Content-Type")

	case strings.HasPrefix(o.Source, "file://"):
		body, err := os.ReadFile(strings.TrimPrefix(o.Source, "file://"))
		if err != nil {
			return fmt.Errorf("LOAD %s: %w", o.Source, err)
		}
		data = body

	default:
		return fmt.Errorf("LOAD: unsupported source scheme in %q", o.Source)
	}

	format, err := detectFormat(mediaType, o.Source)
	if err != nil {
		return err
	}
	quads, err := rdf.Parse(strings.NewReader(string(data)), format, o.Source)
	if err != nil {
		return fmt.Errorf("LOAD %s: %w", o.Source, err)
	}

	for _, quad := range quads {
		target := quad
		if o.Graph != nil {
			target = rdf.NewQuad(quad.Subject, quad.Predicate, quad.Object, o.Graph)
		}
		if _, err := txn.Insert(target); err != nil {
			return err
		}
	}
	return nil
}

func detectFormat(mediaType, source string) (rdf.Format, error) {
	if mediaType != "" {
		if format, err := rdf.FormatFromMediaType(mediaType); err == nil {
			return format, nil
		}
	}
	if ext := filepath.Ext(source); ext != "" {
		if format, err := rdf.FormatFromExtension(ext); err == nil {
			return format, nil
		}
	}
	return rdf.FormatNTriples, nil
}

func (p *Processor) clear(txn *store.Txn, o *algebra.Clear) error {
	switch o.Target {
	case algebra.TargetDefault:
		return txn.ClearDefault()
	case algebra.TargetNamed:
		return txn.ClearAllNamed()
	case algebra.TargetAll:
		if err := txn.ClearDefault(); err != nil {
			return err
		}
		return txn.ClearAllNamed()
	default:
		exists, err := txn.Snapshot().ContainsNamedGraph(o.Graph)
		if err != nil {
			return err
		}
		if !exists && !o.Silent {
			return fmt.Errorf("CLEAR: graph %s does not exist", o.Graph)
		}
		return txn.ClearGraph(o.Graph)
	}
}

func (p *Processor) create(txn *store.Txn, o *algebra.Create) error {
	created, err := txn.CreateGraph(o.Graph)
	if err != nil {
		return err
	}
	if !created && !o.Silent {
		return fmt.Errorf("CREATE: graph %s already exists", o.Graph)
	}
	return nil
}

func (p *Processor) drop(txn *store.Txn, o *algebra.Drop) error {
	switch o.Target {
	case algebra.TargetDefault:
		return txn.ClearDefault()
	case algebra.TargetNamed, algebra.TargetAll:
		if o.Target == algebra.TargetAll {
			if err := txn.ClearDefault(); err != nil {
				return err
			}
		}
		graphs, err := txn.GraphNames()
		if err != nil {
			return err
		}
		for _, graph := range graphs {
			if _, err := txn.DropGraph(graph); err != nil {
				return err
			}
		}
		return nil
	default:
		existed, err := txn.DropGraph(o.Graph)
		if err != nil {
			return err
		}
		if !existed && !o.Silent {
			return fmt.Errorf("DROP: graph %s does not exist", o.Graph)
		}
		return nil
	}
}

// graphCopy implements COPY, MOVE, and ADD between graphs; data is read
// from the pre-request snapshot.
func (p *Processor) graphCopy(txn *store.Txn, o *algebra.GraphCopy) error {
	sameGraph := (o.Src == nil && o.Dst == nil) ||
		(o.Src != nil && o.Dst != nil && o.Src.Equals(o.Dst))
	if sameGraph {
		return nil
	}

	srcPattern := &store.Pattern{Graph: store.GraphDefault()}
	if o.Src != nil {
		exists, err := txn.Snapshot().ContainsNamedGraph(o.Src)
		if err != nil {
			return err
		}
		if !exists {
			if o.Silent {
				return nil
			}
			return fmt.Errorf("%s: graph %s does not exist", o.Op, o.Src)
		}
		srcPattern.Graph = store.GraphNamed(o.Src)
	}

	it, err := txn.Snapshot().QuadsForPattern(srcPattern)
	if err != nil {
		return err
	}
	var quads []*rdf.Quad
	for it.Next() {
		quad, err := it.Quad()
		if err != nil {
			_ = it.Close()
			return err
		}
		quads = append(quads, quad)
	}
	err = it.Err()
	_ = it.Close()
	if err != nil {
		return err
	}

	if o.Op == "COPY" || o.Op == "MOVE" {
		if o.Dst == nil {
			if err := txn.ClearDefault(); err != nil {
				return err
			}
		} else if err := txn.ClearGraph(o.Dst); err != nil {
			return err
		}
	}

	for _, quad := range quads {
		target := rdf.NewQuad(quad.Subject, quad.Predicate, quad.Object, o.Dst)
		if _, err := txn.Insert(target); err != nil {
			return err
		}
	}

	if o.Op == "MOVE" {
		if o.Src == nil {
			return txn.ClearDefault()
		}
		_, err := txn.DropGraph(o.Src)
		return err
	}
	return nil
}
