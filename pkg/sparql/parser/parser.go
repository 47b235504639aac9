// Package parser implements a recursive-descent SPARQL 1.1 parser
// producing the typed algebra of pkg/sparql/algebra. It covers the four
// query forms with solution modifiers, subqueries, property paths,
// aggregation, VALUES, FILTER (NOT) EXISTS, RDF-star quoted triple
// patterns, and the update grammar.
package parser

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
)

// ParseError reports a SPARQL syntax error with its position.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Parser holds the cursor state over one query or update string.
type Parser struct {
	input    string
	pos      int
	length   int
	line     int
	lineAt   int
	base     string
	prefixes map[string]string
	anonSeq  int
	aggSeq   int
}

func newParser(input string) *Parser {
	return &Parser{
		input:    input,
		length:   len(input),
		line:     1,
		prefixes: make(map[string]string),
	}
}

// ParseQuery parses a SPARQL query string.
func ParseQuery(input string) (*algebra.Query, error) {
	p := newParser(input)
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}
	query, err := p.parseQueryForm()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.pos < p.length {
		return nil, p.errf("unexpected input after query")
	}
	return query, nil
}

func (p *Parser) errf(format string, args ...any) error {
	return &ParseError{
		Line:    p.line,
		Column:  p.pos - p.lineAt + 1,
		Message: fmt.Sprintf(format, args...),
	}
}

func (p *Parser) parsePrologue() error {
	for {
		p.skipWS()
		switch {
		case p.matchKeyword("PREFIX"):
			p.consumeKeyword("PREFIX")
			p.skipWS()
			start := p.pos
			for p.pos < p.length && p.input[p.pos] != ':' {
				p.pos++
			}
			if p.pos >= p.length {
				return p.errf("expected ':' in PREFIX declaration")
			}
			name := strings.TrimSpace(p.input[start:p.pos])
			p.pos++
			p.skipWS()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.prefixes[name] = iri
		case p.matchKeyword("BASE"):
			p.consumeKeyword("BASE")
			p.skipWS()
			iri, err := p.parseIRIRef()
			if err != nil {
				return err
			}
			p.base = iri
		default:
			return nil
		}
	}
}

func (p *Parser) parseQueryForm() (*algebra.Query, error) {
	p.skipWS()
	switch {
	case p.matchKeyword("SELECT"):
		return p.parseSelect()
	case p.matchKeyword("ASK"):
		return p.parseAsk()
	case p.matchKeyword("CONSTRUCT"):
		return p.parseConstruct()
	case p.matchKeyword("DESCRIBE"):
		return p.parseDescribe()
	default:
		return nil, p.errf("expected SELECT, ASK, CONSTRUCT, or DESCRIBE")
	}
}

// selectClause is the parsed projection of a SELECT.
type selectClause struct {
	distinct bool
	reduced  bool
	star     bool
	items    []selectItem
}

type selectItem struct {
	varName string
	expr    algebra.Expression // nil for a plain variable
}

func (p *Parser) parseSelectClause() (*selectClause, error) {
	p.consumeKeyword("SELECT")
	clause := &selectClause{}

	p.skipWS()
	if p.matchKeyword("DISTINCT") {
		p.consumeKeyword("DISTINCT")
		clause.distinct = true
	} else if p.matchKeyword("REDUCED") {
		p.consumeKeyword("REDUCED")
		clause.reduced = true
	}

	for {
		p.skipWS()
		switch {
		case p.peek() == '*':
			p.pos++
			clause.star = true
			return clause, nil
		case p.peek() == '?' || p.peek() == '$':
			name, err := p.parseVarName()
			if err != nil {
				return nil, err
			}
			clause.items = append(clause.items, selectItem{varName: name})
		case p.peek() == '(':
			p.pos++
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			p.skipWS()
			if !p.matchKeyword("AS") {
				return nil, p.errf("expected AS in projection expression")
			}
			p.consumeKeyword("AS")
			p.skipWS()
			name, err := p.parseVarName()
			if err != nil {
				return nil, err
			}
			p.skipWS()
			if p.peek() != ')' {
				return nil, p.errf("expected ')' after projection expression")
			}
			p.pos++
			clause.items = append(clause.items, selectItem{varName: name, expr: expr})
		default:
			if len(clause.items) == 0 {
				return nil, p.errf("SELECT requires at least one variable or '*'")
			}
			return clause, nil
		}
	}
}

func (p *Parser) parseSelect() (*algebra.Query, error) {
	clause, err := p.parseSelectClause()
	if err != nil {
		return nil, err
	}

	p.skipWS()
	if p.matchKeyword("WHERE") {
		p.consumeKeyword("WHERE")
	}
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}

	pattern, err := p.parseSolutionModifiers(clause, where)
	if err != nil {
		return nil, err
	}
	return &algebra.Query{Type: algebra.QueryTypeSelect, Pattern: pattern}, nil
}

// parseSolutionModifiers parses GROUP BY, HAVING, ORDER BY, LIMIT/OFFSET,
// and trailing VALUES, then assembles the modifier tree over the WHERE
// pattern.
func (p *Parser) parseSolutionModifiers(clause *selectClause, where algebra.GraphPattern) (algebra.GraphPattern, error) {
	var groupKeys []algebra.GroupKey
	var having algebra.Expression
	var orderConds []algebra.OrderCondition
	var offset int
	var limit *int

	p.skipWS()
	if p.matchKeyword("GROUP") {
		p.consumeKeyword("GROUP")
		p.skipWS()
		if !p.matchKeyword("BY") {
			return nil, p.errf("expected BY after GROUP")
		}
		p.consumeKeyword("BY")
		for {
			p.skipWS()
			if p.peek() == '?' || p.peek() == '$' {
				name, err := p.parseVarName()
				if err != nil {
					return nil, err
				}
				groupKeys = append(groupKeys, algebra.GroupKey{Expr: &algebra.ExprVar{Name: name}, Var: name})
				continue
			}
			if p.peek() == '(' {
				p.pos++
				expr, err := p.parseExpression()
				if err != nil {
					return nil, err
				}
				p.skipWS()
				boundVar := ""
				if p.matchKeyword("AS") {
					p.consumeKeyword("AS")
					p.skipWS()
					name, err := p.parseVarName()
					if err != nil {
						return nil, err
					}
					boundVar = name
					p.skipWS()
				}
				if p.peek() != ')' {
					return nil, p.errf("expected ')' in GROUP BY expression")
				}
				p.pos++
				groupKeys = append(groupKeys, algebra.GroupKey{Expr: expr, Var: boundVar})
				continue
			}
			break
		}
		if len(groupKeys) == 0 {
			return nil, p.errf("GROUP BY requires at least one condition")
		}
	}

	p.skipWS()
	if p.matchKeyword("HAVING") {
		p.consumeKeyword("HAVING")
		p.skipWS()
		expr, err := p.parseBracketted()
		if err != nil {
			return nil, err
		}
		having = expr
	}

	p.skipWS()
	if p.matchKeyword("ORDER") {
		p.consumeKeyword("ORDER")
		p.skipWS()
		if !p.matchKeyword("BY") {
			return nil, p.errf("expected BY after ORDER")
		}
		p.consumeKeyword("BY")
		for {
			p.skipWS()
			cond, ok, err := p.parseOrderCondition()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			orderConds = append(orderConds, cond)
		}
		if len(orderConds) == 0 {
			return nil, p.errf("ORDER BY requires at least one condition")
		}
	}

	p.skipWS()
	for p.matchKeyword("LIMIT") || p.matchKeyword("OFFSET") {
		if p.matchKeyword("LIMIT") {
			p.consumeKeyword("LIMIT")
			n, err := p.parseNonNegativeInteger()
			if err != nil {
				return nil, err
			}
			limit = &n
		} else {
			p.consumeKeyword("OFFSET")
			n, err := p.parseNonNegativeInteger()
			if err != nil {
				return nil, err
			}
			offset = n
		}
		p.skipWS()
	}

	p.skipWS()
	if p.matchKeyword("VALUES") {
		values, err := p.parseValuesClause()
		if err != nil {
			return nil, err
		}
		where = &algebra.Join{Left: where, Right: values}
	}

	// Hoist aggregates out of projection, HAVING, and ORDER BY
	var aggregates []*algebra.AggregateBinding
	for i := range clause.items {
		if clause.items[i].expr != nil {
			clause.items[i].expr = p.liftAggregates(clause.items[i].expr, &aggregates)
		}
	}
	if having != nil {
		having = p.liftAggregates(having, &aggregates)
	}
	for i := range orderConds {
		orderConds[i].Expr = p.liftAggregates(orderConds[i].Expr, &aggregates)
	}

	pattern := where
	grouped := len(groupKeys) > 0 || len(aggregates) > 0
	if grouped {
		pattern = &algebra.Group{Inner: pattern, Keys: groupKeys, Aggregates: aggregates}
	}
	if having != nil {
		pattern = &algebra.Filter{Expr: having, Inner: pattern}
	}

	var projectVars []string
	if clause.star {
		if grouped {
			return nil, p.errf("SELECT * cannot be used with GROUP BY")
		}
		projectVars = collectPatternVars(where)
	} else {
		for _, item := range clause.items {
			projectVars = append(projectVars, item.varName)
			if item.expr != nil {
				pattern = &algebra.Extend{Inner: pattern, Var: item.varName, Expr: item.expr}
			}
		}
	}

	if len(orderConds) > 0 {
		pattern = &algebra.OrderBy{Inner: pattern, Conditions: orderConds}
	}
	pattern = &algebra.Project{Inner: pattern, Vars: projectVars}
	if clause.distinct {
		pattern = &algebra.Distinct{Inner: pattern}
	} else if clause.reduced {
		pattern = &algebra.Reduced{Inner: pattern}
	}
	if offset > 0 || limit != nil {
		pattern = &algebra.Slice{Inner: pattern, Offset: offset, Limit: limit}
	}
	return pattern, nil
}

func (p *Parser) parseOrderCondition() (algebra.OrderCondition, bool, error) {
	switch {
	case p.matchKeyword("ASC"):
		p.consumeKeyword("ASC")
		p.skipWS()
		expr, err := p.parseBracketted()
		if err != nil {
			return algebra.OrderCondition{}, false, err
		}
		return algebra.OrderCondition{Expr: expr}, true, nil
	case p.matchKeyword("DESC"):
		p.consumeKeyword("DESC")
		p.skipWS()
		expr, err := p.parseBracketted()
		if err != nil {
			return algebra.OrderCondition{}, false, err
		}
		return algebra.OrderCondition{Expr: expr, Desc: true}, true, nil
	case p.peek() == '?' || p.peek() == '$':
		name, err := p.parseVarName()
		if err != nil {
			return algebra.OrderCondition{}, false, err
		}
		return algebra.OrderCondition{Expr: &algebra.ExprVar{Name: name}}, true, nil
	case p.peek() == '(':
		expr, err := p.parseBracketted()
		if err != nil {
			return algebra.OrderCondition{}, false, err
		}
		return algebra.OrderCondition{Expr: expr}, true, nil
	case p.peekBuiltinCall():
		expr, err := p.parsePrimaryExpression()
		if err != nil {
			return algebra.OrderCondition{}, false, err
		}
		return algebra.OrderCondition{Expr: expr}, true, nil
	default:
		return algebra.OrderCondition{}, false, nil
	}
}

func (p *Parser) parseAsk() (*algebra.Query, error) {
	p.consumeKeyword("ASK")
	p.skipWS()
	if p.matchKeyword("WHERE") {
		p.consumeKeyword("WHERE")
	}
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	return &algebra.Query{Type: algebra.QueryTypeAsk, Pattern: where}, nil
}

func (p *Parser) parseConstruct() (*algebra.Query, error) {
	p.consumeKeyword("CONSTRUCT")
	p.skipWS()

	var template []*algebra.TriplePattern
	var where algebra.GraphPattern

	if p.peek() == '{' {
		var err error
		template, err = p.parseConstructTemplate()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if !p.matchKeyword("WHERE") {
			return nil, p.errf("expected WHERE after CONSTRUCT template")
		}
		p.consumeKeyword("WHERE")
		where, err = p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
	} else {
		// CONSTRUCT WHERE { bgp }: the pattern doubles as the template
		if !p.matchKeyword("WHERE") {
			return nil, p.errf("expected template or WHERE after CONSTRUCT")
		}
		p.consumeKeyword("WHERE")
		p.skipWS()
		bgp, err := p.parseConstructTemplate()
		if err != nil {
			return nil, err
		}
		template = bgp
		where = &algebra.BGP{Patterns: bgp}
	}

	clause := &selectClause{star: true}
	pattern, err := p.parseSolutionModifiers(clause, where)
	if err != nil {
		return nil, err
	}
	return &algebra.Query{Type: algebra.QueryTypeConstruct, Pattern: pattern, Template: template}, nil
}

func (p *Parser) parseConstructTemplate() ([]*algebra.TriplePattern, error) {
	p.skipWS()
	if p.peek() != '{' {
		return nil, p.errf("expected '{' at start of template")
	}
	p.pos++

	group := &patternGroup{}
	for {
		p.skipWS()
		if p.peek() == '}' {
			p.pos++
			break
		}
		if err := p.parseTriplesSameSubject(group); err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() == '.' {
			p.pos++
		}
	}
	if len(group.paths) > 0 {
		return nil, p.errf("property paths are not allowed in templates")
	}
	return group.triples, nil
}

func (p *Parser) parseDescribe() (*algebra.Query, error) {
	p.consumeKeyword("DESCRIBE")

	var targets []algebra.TermOrVar
	star := false
	for {
		p.skipWS()
		if p.peek() == '*' {
			p.pos++
			star = true
			break
		}
		if p.peek() == '?' || p.peek() == '$' {
			name, err := p.parseVarName()
			if err != nil {
				return nil, err
			}
			targets = append(targets, algebra.Var(name))
			continue
		}
		if p.peek() == '<' || p.peekPrefixedName() {
			term, err := p.parseIRIOrPrefixedName()
			if err != nil {
				return nil, err
			}
			targets = append(targets, algebra.Term(term))
			continue
		}
		break
	}
	if len(targets) == 0 && !star {
		return nil, p.errf("DESCRIBE requires '*' or at least one resource")
	}

	var where algebra.GraphPattern
	p.skipWS()
	if p.matchKeyword("WHERE") {
		p.consumeKeyword("WHERE")
		var err error
		where, err = p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
	} else if p.peek() == '{' {
		var err error
		where, err = p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
	}

	if star {
		if where == nil {
			return nil, p.errf("DESCRIBE * requires a WHERE clause")
		}
		for _, v := range collectPatternVars(where) {
			targets = append(targets, algebra.Var(v))
		}
	}
	if where == nil {
		where = &algebra.BGP{}
	}
	return &algebra.Query{Type: algebra.QueryTypeDescribe, Pattern: where, Describe: targets}, nil
}

// patternGroup accumulates the elements of one triples block.
type patternGroup struct {
	triples []*algebra.TriplePattern
	paths   []*algebra.PathPattern
}

func (g *patternGroup) pattern() algebra.GraphPattern {
	var node algebra.GraphPattern = &algebra.BGP{Patterns: g.triples}
	for _, path := range g.paths {
		node = &algebra.Join{Left: node, Right: path}
	}
	return node
}

// parseGroupGraphPattern parses '{' ... '}' and assembles the algebra
// for its triples blocks, filters, binds, and nested patterns.
func (p *Parser) parseGroupGraphPattern() (algebra.GraphPattern, error) {
	p.skipWS()
	if p.peek() != '{' {
		return nil, p.errf("expected '{'")
	}
	p.pos++

	p.skipWS()
	if p.matchKeyword("SELECT") {
		sub, err := p.parseSubSelect()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() != '}' {
			return nil, p.errf("expected '}' after subquery")
		}
		p.pos++
		return sub, nil
	}

	var current algebra.GraphPattern
	group := &patternGroup{}
	var filters []algebra.Expression

	flushTriples := func() {
		if len(group.triples) > 0 || len(group.paths) > 0 {
			node := group.pattern()
			if current == nil {
				current = node
			} else {
				current = &algebra.Join{Left: current, Right: node}
			}
			group = &patternGroup{}
		}
	}
	attach := func(node algebra.GraphPattern) {
		if current == nil {
			current = node
		} else {
			current = &algebra.Join{Left: current, Right: node}
		}
	}

	for {
		p.skipWS()
		if p.pos >= p.length {
			return nil, p.errf("unclosed group graph pattern")
		}
		if p.peek() == '}' {
			p.pos++
			break
		}

		switch {
		case p.matchKeyword("OPTIONAL"):
			p.consumeKeyword("OPTIONAL")
			flushTriples()
			right, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			left := current
			if left == nil {
				left = &algebra.BGP{}
			}
			// A filter directly inside the OPTIONAL group belongs to the
			// left join, not to a filter above it
			if f, ok := right.(*algebra.Filter); ok {
				current = &algebra.LeftJoin{Left: left, Right: f.Inner, Expr: f.Expr}
			} else {
				current = &algebra.LeftJoin{Left: left, Right: right}
			}

		case p.matchKeyword("MINUS"):
			p.consumeKeyword("MINUS")
			flushTriples()
			right, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			left := current
			if left == nil {
				left = &algebra.BGP{}
			}
			current = &algebra.Minus{Left: left, Right: right}

		case p.matchKeyword("GRAPH"):
			p.consumeKeyword("GRAPH")
			p.skipWS()
			name, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			flushTriples()
			attach(&algebra.Graph{Name: name, Inner: inner})

		case p.matchKeyword("SERVICE"):
			p.consumeKeyword("SERVICE")
			p.skipWS()
			silent := false
			if p.matchKeyword("SILENT") {
				p.consumeKeyword("SILENT")
				p.skipWS()
				silent = true
			}
			name, err := p.parseVarOrIRI()
			if err != nil {
				return nil, err
			}
			inner, err := p.parseGroupGraphPattern()
			if err != nil {
				return nil, err
			}
			flushTriples()
			attach(&algebra.Service{Name: name, Inner: inner, Silent: silent})

		case p.matchKeyword("FILTER"):
			p.consumeKeyword("FILTER")
			p.skipWS()
			expr, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			filters = append(filters, expr)

		case p.matchKeyword("BIND"):
			p.consumeKeyword("BIND")
			p.skipWS()
			if p.peek() != '(' {
				return nil, p.errf("expected '(' after BIND")
			}
			p.pos++
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			p.skipWS()
			if !p.matchKeyword("AS") {
				return nil, p.errf("expected AS in BIND")
			}
			p.consumeKeyword("AS")
			p.skipWS()
			name, err := p.parseVarName()
			if err != nil {
				return nil, err
			}
			p.skipWS()
			if p.peek() != ')' {
				return nil, p.errf("expected ')' after BIND")
			}
			p.pos++
			flushTriples()
			inner := current
			if inner == nil {
				inner = &algebra.BGP{}
			}
			current = &algebra.Extend{Inner: inner, Var: name, Expr: expr}

		case p.matchKeyword("VALUES"):
			values, err := p.parseValuesClause()
			if err != nil {
				return nil, err
			}
			flushTriples()
			attach(values)

		case p.peek() == '{':
			flushTriples()
			node, err := p.parseGroupOrUnion()
			if err != nil {
				return nil, err
			}
			attach(node)

		default:
			if err := p.parseTriplesSameSubject(group); err != nil {
				return nil, err
			}
		}

		p.skipWS()
		if p.peek() == '.' {
			p.pos++
		}
	}

	flushTriples()
	if current == nil {
		current = &algebra.BGP{}
	}
	for _, f := range filters {
		current = &algebra.Filter{Expr: f, Inner: current}
	}
	return current, nil
}

// parseGroupOrUnion parses '{' A '}' (UNION '{' B '}')*.
func (p *Parser) parseGroupOrUnion() (algebra.GraphPattern, error) {
	left, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if !p.matchKeyword("UNION") {
			return left, nil
		}
		p.consumeKeyword("UNION")
		right, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		left = &algebra.Union{Left: left, Right: right}
	}
}

// parseSubSelect parses a subquery starting at its SELECT keyword.
func (p *Parser) parseSubSelect() (algebra.GraphPattern, error) {
	clause, err := p.parseSelectClause()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.matchKeyword("WHERE") {
		p.consumeKeyword("WHERE")
	}
	where, err := p.parseGroupGraphPattern()
	if err != nil {
		return nil, err
	}
	return p.parseSolutionModifiers(clause, where)
}

func (p *Parser) parseVarOrIRI() (algebra.TermOrVar, error) {
	if p.peek() == '?' || p.peek() == '$' {
		name, err := p.parseVarName()
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.Var(name), nil
	}
	term, err := p.parseIRIOrPrefixedName()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	return algebra.Term(term), nil
}

// parseValuesClause parses VALUES with the single-variable and the
// full-row forms.
func (p *Parser) parseValuesClause() (*algebra.Values, error) {
	p.consumeKeyword("VALUES")
	p.skipWS()

	values := &algebra.Values{}
	switch {
	case p.peek() == '?' || p.peek() == '$':
		name, err := p.parseVarName()
		if err != nil {
			return nil, err
		}
		values.Vars = []string{name}
		p.skipWS()
		if p.peek() != '{' {
			return nil, p.errf("expected '{' in VALUES")
		}
		p.pos++
		for {
			p.skipWS()
			if p.peek() == '}' {
				p.pos++
				return values, nil
			}
			term, err := p.parseValuesTerm()
			if err != nil {
				return nil, err
			}
			values.Rows = append(values.Rows, []rdf.Term{term})
		}

	case p.peek() == '(':
		p.pos++
		for {
			p.skipWS()
			if p.peek() == ')' {
				p.pos++
				break
			}
			name, err := p.parseVarName()
			if err != nil {
				return nil, err
			}
			values.Vars = append(values.Vars, name)
		}
		p.skipWS()
		if p.peek() != '{' {
			return nil, p.errf("expected '{' in VALUES")
		}
		p.pos++
		for {
			p.skipWS()
			if p.peek() == '}' {
				p.pos++
				return values, nil
			}
			if p.peek() != '(' {
				return nil, p.errf("expected '(' in VALUES row")
			}
			p.pos++
			row := make([]rdf.Term, 0, len(values.Vars))
			for {
				p.skipWS()
				if p.peek() == ')' {
					p.pos++
					break
				}
				term, err := p.parseValuesTerm()
				if err != nil {
					return nil, err
				}
				row = append(row, term)
			}
			if len(row) != len(values.Vars) {
				return nil, p.errf("VALUES row has %d terms, want %d", len(row), len(values.Vars))
			}
			values.Rows = append(values.Rows, row)
		}

	default:
		return nil, p.errf("expected variable or '(' after VALUES")
	}
}

// parseValuesTerm parses one data term of a VALUES block; UNDEF yields
// nil.
func (p *Parser) parseValuesTerm() (rdf.Term, error) {
	if p.matchKeyword("UNDEF") {
		p.consumeKeyword("UNDEF")
		return nil, nil
	}
	tv, err := p.parseGraphTerm()
	if err != nil {
		return nil, err
	}
	if tv.IsVar() {
		return nil, p.errf("variables are not allowed in VALUES data")
	}
	return tv.Term, nil
}

// collectPatternVars lists the visible variables of a pattern in first
// occurrence order, skipping the parser's internal blank node variables.
func collectPatternVars(node algebra.GraphPattern) []string {
	var ordered []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !strings.HasPrefix(name, "_anon") && !seen[name] {
			seen[name] = true
			ordered = append(ordered, name)
		}
	}
	addTV := func(tv algebra.TermOrVar) {
		if tv.IsVar() {
			add(tv.Var)
		}
	}
	var walk func(algebra.GraphPattern)
	walk = func(node algebra.GraphPattern) {
		switch n := node.(type) {
		case *algebra.BGP:
			for _, t := range n.Patterns {
				addTV(t.Subject)
				addTV(t.Predicate)
				addTV(t.Object)
			}
		case *algebra.PathPattern:
			addTV(n.Subject)
			addTV(n.Object)
		case *algebra.Join:
			walk(n.Left)
			walk(n.Right)
		case *algebra.LeftJoin:
			walk(n.Left)
			walk(n.Right)
		case *algebra.Filter:
			walk(n.Inner)
		case *algebra.Union:
			walk(n.Left)
			walk(n.Right)
		case *algebra.Graph:
			addTV(n.Name)
			walk(n.Inner)
		case *algebra.Extend:
			walk(n.Inner)
			add(n.Var)
		case *algebra.Minus:
			walk(n.Left)
		case *algebra.Values:
			for _, v := range n.Vars {
				add(v)
			}
		case *algebra.Service:
			walk(n.Inner)
		case *algebra.Group:
			for _, k := range n.Keys {
				add(k.Var)
			}
			for _, a := range n.Aggregates {
				add(a.Var)
			}
		case *algebra.OrderBy:
			walk(n.Inner)
		case *algebra.Project:
			for _, v := range n.Vars {
				add(v)
			}
		case *algebra.Distinct:
			walk(n.Inner)
		case *algebra.Reduced:
			walk(n.Inner)
		case *algebra.Slice:
			walk(n.Inner)
		}
	}
	walk(node)
	return ordered
}
