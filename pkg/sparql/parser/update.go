package parser

import (
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
)

// ParseUpdate parses a SPARQL update request: a semicolon-separated
// sequence of operations sharing one prologue scope.
func ParseUpdate(input string) (*algebra.Update, error) {
	p := newParser(input)
	update := &algebra.Update{}

	for {
		if err := p.parsePrologue(); err != nil {
			return nil, err
		}
		p.skipWS()
		if p.pos >= p.length {
			return update, nil
		}

		op, err := p.parseUpdateOperation()
		if err != nil {
			return nil, err
		}
		update.Operations = append(update.Operations, op)

		p.skipWS()
		if p.peek() == ';' {
			p.pos++
			continue
		}
		if p.pos >= p.length {
			return update, nil
		}
		return nil, p.errf("expected ';' between update operations")
	}
}

func (p *Parser) parseUpdateOperation() (algebra.UpdateOperation, error) {
	switch {
	case p.matchKeyword("INSERT"):
		p.consumeKeyword("INSERT")
		p.skipWS()
		if p.matchKeyword("DATA") {
			p.consumeKeyword("DATA")
			quads, err := p.parseQuadData(false)
			if err != nil {
				return nil, err
			}
			return &algebra.InsertData{Quads: quads}, nil
		}
		return p.parseModify(nil, false)

	case p.matchKeyword("DELETE"):
		p.consumeKeyword("DELETE")
		p.skipWS()
		if p.matchKeyword("DATA") {
			p.consumeKeyword("DATA")
			quads, err := p.parseQuadData(false)
			if err != nil {
				return nil, err
			}
			return &algebra.DeleteData{Quads: quads}, nil
		}
		if p.matchKeyword("WHERE") {
			p.consumeKeyword("WHERE")
			quads, err := p.parseQuadData(true)
			if err != nil {
				return nil, err
			}
			return &algebra.Modify{
				Delete: quads,
				Where:  patternFromTemplates(quads),
			}, nil
		}
		return p.parseModify(nil, true)

	case p.matchKeyword("WITH"):
		p.consumeKeyword("WITH")
		p.skipWS()
		graph, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		switch {
		case p.matchKeyword("DELETE"):
			p.consumeKeyword("DELETE")
			return p.parseModify(graph, true)
		case p.matchKeyword("INSERT"):
			p.consumeKeyword("INSERT")
			return p.parseModify(graph, false)
		default:
			return nil, p.errf("expected DELETE or INSERT after WITH")
		}

	case p.matchKeyword("LOAD"):
		p.consumeKeyword("LOAD")
		p.skipWS()
		silent := p.parseSilent()
		source, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		load := &algebra.Load{Source: source.(*rdf.NamedNode).IRI, Silent: silent}
		p.skipWS()
		if p.matchKeyword("INTO") {
			p.consumeKeyword("INTO")
			p.skipWS()
			if !p.matchKeyword("GRAPH") {
				return nil, p.errf("expected GRAPH after INTO")
			}
			p.consumeKeyword("GRAPH")
			p.skipWS()
			graph, err := p.parseIRIOrPrefixedName()
			if err != nil {
				return nil, err
			}
			load.Graph = graph
		}
		return load, nil

	case p.matchKeyword("CLEAR"):
		p.consumeKeyword("CLEAR")
		p.skipWS()
		silent := p.parseSilent()
		target, graph, err := p.parseGraphRef()
		if err != nil {
			return nil, err
		}
		return &algebra.Clear{Target: target, Graph: graph, Silent: silent}, nil

	case p.matchKeyword("DROP"):
		p.consumeKeyword("DROP")
		p.skipWS()
		silent := p.parseSilent()
		target, graph, err := p.parseGraphRef()
		if err != nil {
			return nil, err
		}
		return &algebra.Drop{Target: target, Graph: graph, Silent: silent}, nil

	case p.matchKeyword("CREATE"):
		p.consumeKeyword("CREATE")
		p.skipWS()
		silent := p.parseSilent()
		if !p.matchKeyword("GRAPH") {
			return nil, p.errf("expected GRAPH after CREATE")
		}
		p.consumeKeyword("GRAPH")
		p.skipWS()
		graph, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return &algebra.Create{Graph: graph, Silent: silent}, nil

	case p.matchKeyword("COPY"), p.matchKeyword("MOVE"), p.matchKeyword("ADD"):
		var op string
		switch {
		case p.matchKeyword("COPY"):
			op = "COPY"
		case p.matchKeyword("MOVE"):
			op = "MOVE"
		default:
			op = "ADD"
		}
		p.consumeKeyword(op)
		p.skipWS()
		silent := p.parseSilent()
		src, err := p.parseGraphOrDefault()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if !p.matchKeyword("TO") {
			return nil, p.errf("expected TO in %s", op)
		}
		p.consumeKeyword("TO")
		p.skipWS()
		dst, err := p.parseGraphOrDefault()
		if err != nil {
			return nil, err
		}
		return &algebra.GraphCopy{Op: op, Src: src, Dst: dst, Silent: silent}, nil

	default:
		return nil, p.errf("expected update operation")
	}
}

func (p *Parser) parseSilent() bool {
	if p.matchKeyword("SILENT") {
		p.consumeKeyword("SILENT")
		p.skipWS()
		return true
	}
	return false
}

// parseGraphRef parses GRAPH iri | DEFAULT | NAMED | ALL.
func (p *Parser) parseGraphRef() (algebra.GraphTarget, rdf.Term, error) {
	switch {
	case p.matchKeyword("GRAPH"):
		p.consumeKeyword("GRAPH")
		p.skipWS()
		graph, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return 0, nil, err
		}
		return algebra.TargetGraph, graph, nil
	case p.matchKeyword("DEFAULT"):
		p.consumeKeyword("DEFAULT")
		return algebra.TargetDefault, nil, nil
	case p.matchKeyword("NAMED"):
		p.consumeKeyword("NAMED")
		return algebra.TargetNamed, nil, nil
	case p.matchKeyword("ALL"):
		p.consumeKeyword("ALL")
		return algebra.TargetAll, nil, nil
	default:
		return 0, nil, p.errf("expected GRAPH, DEFAULT, NAMED, or ALL")
	}
}

// parseGraphOrDefault parses DEFAULT | GRAPH? iri; nil means the default
// graph.
func (p *Parser) parseGraphOrDefault() (rdf.Term, error) {
	if p.matchKeyword("DEFAULT") {
		p.consumeKeyword("DEFAULT")
		return nil, nil
	}
	if p.matchKeyword("GRAPH") {
		p.consumeKeyword("GRAPH")
		p.skipWS()
	}
	return p.parseIRIOrPrefixedName()
}

// parseModify parses the template and WHERE parts of DELETE/INSERT after
// the leading keyword was consumed. startedWithDelete tells which
// template comes first.
func (p *Parser) parseModify(with rdf.Term, startedWithDelete bool) (algebra.UpdateOperation, error) {
	modify := &algebra.Modify{With: with}

	if startedWithDelete {
		quads, err := p.parseQuadData(true)
		if err != nil {
			return nil, err
		}
		modify.Delete = quads
		p.skipWS()
		if p.matchKeyword("INSERT") {
			p.consumeKeyword("INSERT")
			insert, err := p.parseQuadData(true)
			if err != nil {
				return nil, err
			}
			modify.Insert = insert
		}
	} else {
		quads, err := p.parseQuadData(true)
		if err != nil {
			return nil, err
		}
		modify.Insert = quads
	}

	p.skipWS()
	if p.matchKeyword("USING") {
		return nil, p.errf("USING is not supported")
	}
	if !p.matchKeyword("WHERE") {
		return nil, p.errf("expected WHERE in DELETE/INSERT")
	}
	p.consumeKeyword("WHERE")
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	modify.Where = where
	return modify, nil
}

// parseQuadData parses '{' quads '}' with optional GRAPH sections.
// Variables are rejected unless allowVars.
func (p *Parser) parseQuadData(allowVars bool) ([]*algebra.QuadTemplate, error) {
	p.skipWS()
	if p.peek() != '{' {
		return nil, p.errf("expected '{' at start of quad block")
	}
	p.pos++

	var quads []*algebra.QuadTemplate
	for {
		p.skipWS()
		if p.pos >= p.length {
			return nil, p.errf("unclosed quad block")
		}
		if p.peek() == '}' {
			p.pos++
			break
		}

		if p.matchKeyword("GRAPH") {
			p.consumeKeyword("GRAPH")
			p.skipWS()
			graph, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			p.skipWS()
			if p.peek() != '{' {
				return nil, p.errf("expected '{' after GRAPH")
			}
			p.pos++
			for {
				p.skipWS()
				if p.peek() == '}' {
					p.pos++
					break
				}
				group := &patternGroup{}
				if err := p.parseTriplesSameSubject(group); err != nil {
					return nil, err
				}
				if len(group.paths) > 0 {
					return nil, p.errf("property paths are not allowed in quad data")
				}
				for _, t := range group.triples {
					quads = append(quads, &algebra.QuadTemplate{
						Subject: t.Subject, Predicate: t.Predicate, Object: t.Object, Graph: graph,
					})
				}
				p.skipWS()
				if p.peek() == '.' {
					p.pos++
				}
			}
			continue
		}

		group := &patternGroup{}
		if err := p.parseTriplesSameSubject(group); err != nil {
			return nil, err
		}
		if len(group.paths) > 0 {
			return nil, p.errf("property paths are not allowed in quad data")
		}
		for _, t := range group.triples {
			quads = append(quads, &algebra.QuadTemplate{
				Subject: t.Subject, Predicate: t.Predicate, Object: t.Object,
			})
		}
		p.skipWS()
		if p.peek() == '.' {
			p.pos++
		}
	}

	if !allowVars {
		for _, q := range quads {
			for _, tv := range []algebra.TermOrVar{q.Subject, q.Predicate, q.Object, q.Graph} {
				if tv.IsVar() && !isAnonVar(tv.Var) {
					return nil, p.errf("variables are not allowed in DATA blocks")
				}
			}
		}
	}
	return quads, nil
}

func isAnonVar(name string) bool {
	return len(name) >= 5 && name[:5] == "_anon"
}

// patternFromTemplates rebuilds a WHERE pattern from DELETE WHERE quad
// patterns: default-graph triples form a BGP, named sections GRAPH nodes.
func patternFromTemplates(quads []*algebra.QuadTemplate) algebra.GraphPattern {
	defaultBGP := &algebra.BGP{}
	graphGroups := make(map[string]*algebra.Graph)
	var order []string

	for _, q := range quads {
		tp := &algebra.TriplePattern{Subject: q.Subject, Predicate: q.Predicate, Object: q.Object}
		if !q.Graph.IsVar() && q.Graph.Term == nil {
			defaultBGP.Patterns = append(defaultBGP.Patterns, tp)
			continue
		}
		key := q.Graph.Var
		if q.Graph.Term != nil {
			key = q.Graph.Term.String()
		}
		node, ok := graphGroups[key]
		if !ok {
			node = &algebra.Graph{Name: q.Graph, Inner: &algebra.BGP{}}
			graphGroups[key] = node
			order = append(order, key)
		}
		node.Inner.(*algebra.BGP).Patterns = append(node.Inner.(*algebra.BGP).Patterns, tp)
	}

	var pattern algebra.GraphPattern = defaultBGP
	for _, key := range order {
		pattern = &algebra.Join{Left: pattern, Right: graphGroups[key]}
	}
	return pattern
}
