package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
)

func (p *Parser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) rest() string {
	return p.input[p.pos:]
}

func (p *Parser) skipWS() {
	for p.pos < p.length {
		ch := p.input[p.pos]
		switch {
		case ch == '\n':
			p.pos++
			p.line++
			p.lineAt = p.pos
		case ch == ' ' || ch == '\t' || ch == '\r':
			p.pos++
		case ch == '#':
			for p.pos < p.length && p.input[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

// matchKeyword reports whether the case-insensitive keyword starts at the
// cursor with a word boundary after it.
func (p *Parser) matchKeyword(keyword string) bool {
	if p.pos+len(keyword) > p.length {
		return false
	}
	if !strings.EqualFold(p.input[p.pos:p.pos+len(keyword)], keyword) {
		return false
	}
	if p.pos+len(keyword) == p.length {
		return true
	}
	next := p.input[p.pos+len(keyword)]
	return !isNameChar(next) && next != ':'
}

func (p *Parser) consumeKeyword(keyword string) {
	p.pos += len(keyword)
}

func isNameChar(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') || ch == '_' || ch >= 0x80
}

func (p *Parser) parseVarName() (string, error) {
	if p.peek() != '?' && p.peek() != '$' {
		return "", p.errf("expected variable")
	}
	p.pos++
	start := p.pos
	for p.pos < p.length && isNameChar(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", p.errf("empty variable name")
	}
	return p.input[start:p.pos], nil
}

func (p *Parser) parseNonNegativeInteger() (int, error) {
	p.skipWS()
	start := p.pos
	for p.pos < p.length && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, p.errf("expected integer")
	}
	n, err := strconv.Atoi(p.input[start:p.pos])
	if err != nil {
		return 0, p.errf("invalid integer: %v", err)
	}
	return n, nil
}

func (p *Parser) parseIRIRef() (string, error) {
	if p.peek() != '<' {
		return "", p.errf("expected '<' at start of IRI")
	}
	p.pos++
	start := p.pos
	for p.pos < p.length && p.input[p.pos] != '>' {
		ch := p.input[p.pos]
		if ch == '\n' || ch == ' ' {
			return "", p.errf("invalid character in IRI")
		}
		p.pos++
	}
	if p.pos >= p.length {
		return "", p.errf("unclosed IRI")
	}
	iri := p.input[start:p.pos]
	p.pos++

	if !strings.Contains(iri, ":") {
		if p.base == "" {
			return "", p.errf("relative IRI %q without BASE", iri)
		}
		if idx := strings.LastIndex(p.base, "/"); idx >= 0 && !strings.HasPrefix(iri, "#") {
			return p.base[:idx+1] + iri, nil
		}
		return p.base + iri, nil
	}
	return iri, nil
}

func (p *Parser) peekPrefixedName() bool {
	i := p.pos
	for i < p.length && (isNameChar(p.input[i]) || p.input[i] == '.' || p.input[i] == '-') {
		i++
	}
	return i < p.length && p.input[i] == ':'
}

func (p *Parser) parseIRIOrPrefixedName() (rdf.Term, error) {
	if p.peek() == '<' {
		iri, err := p.parseIRIRef()
		if err != nil {
			return nil, err
		}
		return rdf.NewNamedNode(iri), nil
	}

	start := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' {
		ch := p.input[p.pos]
		if !isNameChar(ch) && ch != '.' && ch != '-' {
			return nil, p.errf("unexpected character %q in prefixed name", ch)
		}
		p.pos++
	}
	if p.pos >= p.length {
		return nil, p.errf("expected ':' in prefixed name")
	}
	prefix := p.input[start:p.pos]
	p.pos++

	localStart := p.pos
	for p.pos < p.length {
		ch := p.input[p.pos]
		if isNameChar(ch) || ch == '-' || ch == '%' ||
			(ch == '.' && p.pos+1 < p.length && (isNameChar(p.input[p.pos+1]) || p.input[p.pos+1] == '.')) {
			p.pos++
			continue
		}
		break
	}
	local := p.input[localStart:p.pos]

	ns, ok := p.prefixes[prefix]
	if !ok {
		return nil, p.errf("undefined prefix %q", prefix)
	}
	return rdf.NewNamedNode(ns + local), nil
}

// parseGraphTerm parses a term or variable usable in a triple pattern
// slot.
func (p *Parser) parseGraphTerm() (algebra.TermOrVar, error) {
	p.skipWS()
	ch := p.peek()
	switch {
	case ch == '?' || ch == '$':
		name, err := p.parseVarName()
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.Var(name), nil

	case strings.HasPrefix(p.rest(), "<<"):
		return p.parseQuotedTriplePattern()

	case ch == '<':
		iri, err := p.parseIRIRef()
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.Term(rdf.NewNamedNode(iri)), nil

	case strings.HasPrefix(p.rest(), "_:"):
		p.pos += 2
		start := p.pos
		for p.pos < p.length && (isNameChar(p.input[p.pos]) || p.input[p.pos] == '-') {
			p.pos++
		}
		if p.pos == start {
			return algebra.TermOrVar{}, p.errf("empty blank node label")
		}
		// Blank nodes in patterns behave as scoped variables
		return algebra.Var("_anon_" + p.input[start:p.pos]), nil

	case ch == '"' || ch == '\'':
		lit, err := p.parseRDFLiteral()
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.Term(lit), nil

	case ch == '+' || ch == '-' || (ch >= '0' && ch <= '9'):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		return algebra.Term(lit), nil

	case p.matchKeyword("true"):
		p.consumeKeyword("true")
		return algebra.Term(rdf.NewBooleanLiteral(true)), nil

	case p.matchKeyword("false"):
		p.consumeKeyword("false")
		return algebra.Term(rdf.NewBooleanLiteral(false)), nil

	default:
		if p.peekPrefixedName() {
			term, err := p.parseIRIOrPrefixedName()
			if err != nil {
				return algebra.TermOrVar{}, err
			}
			return algebra.Term(term), nil
		}
		return algebra.TermOrVar{}, p.errf("expected RDF term, got %q", ch)
	}
}

// parseQuotedTriplePattern parses an RDF-star quoted triple pattern. A
// fully ground quoted triple yields a term; one containing variables is
// rejected for now.
func (p *Parser) parseQuotedTriplePattern() (algebra.TermOrVar, error) {
	p.pos += 2
	subj, err := p.parseGraphTerm()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	p.skipWS()
	pred, err := p.parseVerb()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	obj, err := p.parseGraphTerm()
	if err != nil {
		return algebra.TermOrVar{}, err
	}
	p.skipWS()
	if !strings.HasPrefix(p.rest(), ">>") {
		return algebra.TermOrVar{}, p.errf("expected '>>' at end of quoted triple")
	}
	p.pos += 2

	if subj.IsVar() || pred.IsVar() || obj.IsVar() {
		return algebra.TermOrVar{}, p.errf("variables inside quoted triple patterns are not supported")
	}
	return algebra.Term(rdf.NewTriple(subj.Term, pred.Term, obj.Term)), nil
}

func (p *Parser) parseVerb() (algebra.TermOrVar, error) {
	p.skipWS()
	if p.matchKeyword("a") {
		p.consumeKeyword("a")
		return algebra.Term(rdf.RDFType), nil
	}
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

func (p *Parser) parseRDFLiteral() (rdf.Term, error) {
	value, err := p.parseStringBody()
	if err != nil {
		return nil, err
	}

	if p.peek() == '@' {
		p.pos++
		start := p.pos
		for p.pos < p.length {
			ch := p.input[p.pos]
			if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
				(ch >= '0' && ch <= '9') || ch == '-') {
				break
			}
			p.pos++
		}
		tag := p.input[start:p.pos]
		if tag == "" {
			return nil, p.errf("empty language tag")
		}
		return rdf.NewLiteralWithLanguage(value, tag), nil
	}
	if strings.HasPrefix(p.rest(), "^^") {
		p.pos += 2
		dt, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return rdf.NewLiteralWithDatatype(value, dt.(*rdf.NamedNode)), nil
	}
	return rdf.NewLiteral(value), nil
}

func (p *Parser) parseStringBody() (string, error) {
	quote := p.peek()
	if quote != '"' && quote != '\'' {
		return "", p.errf("expected string literal")
	}
	delim := string(quote)
	long := false
	if strings.HasPrefix(p.rest(), strings.Repeat(delim, 3)) {
		long = true
		p.pos += 3
	} else {
		p.pos++
	}

	var value strings.Builder
	for p.pos < p.length {
		if long {
			if strings.HasPrefix(p.rest(), strings.Repeat(delim, 3)) {
				p.pos += 3
				return value.String(), nil
			}
		} else if p.peek() == quote {
			p.pos++
			return value.String(), nil
		}
		ch := p.input[p.pos]
		if ch == '\\' {
			p.pos++
			if p.pos >= p.length {
				return "", p.errf("unterminated escape")
			}
			switch p.input[p.pos] {
			case 'n':
				value.WriteByte('\n')
			case 't':
				value.WriteByte('\t')
			case 'r':
				value.WriteByte('\r')
			case 'b':
				value.WriteByte('\b')
			case 'f':
				value.WriteByte('\f')
			case '"':
				value.WriteByte('"')
			case '\'':
				value.WriteByte('\'')
			case '\\':
				value.WriteByte('\\')
			case 'u', 'U':
				hexDigits := 4
				if p.input[p.pos] == 'U' {
					hexDigits = 8
				}
				p.pos++
				if p.pos+hexDigits > p.length {
					return "", p.errf("incomplete unicode escape")
				}
				cp, err := strconv.ParseUint(p.input[p.pos:p.pos+hexDigits], 16, 32)
				if err != nil {
					return "", p.errf("invalid unicode escape")
				}
				p.pos += hexDigits - 1
				value.WriteRune(rune(cp))
			default:
				return "", p.errf("invalid escape \\%c", p.input[p.pos])
			}
			p.pos++
			continue
		}
		if !long && (ch == '\n' || ch == '\r') {
			return "", p.errf("newline in string literal")
		}
		if ch == '\n' {
			p.line++
			p.lineAt = p.pos + 1
		}
		value.WriteByte(ch)
		p.pos++
	}
	return "", p.errf("unclosed string literal")
}

func (p *Parser) parseNumericLiteral() (rdf.Term, error) {
	start := p.pos
	if p.peek() == '+' || p.peek() == '-' {
		p.pos++
	}
	digits := false
	for p.pos < p.length && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
		digits = true
	}
	decimal := false
	if p.peek() == '.' && p.pos+1 < p.length && p.input[p.pos+1] >= '0' && p.input[p.pos+1] <= '9' {
		decimal = true
		p.pos++
		for p.pos < p.length && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
			digits = true
		}
	}
	exponent := false
	if ch := p.peek(); ch == 'e' || ch == 'E' {
		exponent = true
		p.pos++
		if ch := p.peek(); ch == '+' || ch == '-' {
			p.pos++
		}
		for p.pos < p.length && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
			p.pos++
		}
	}
	if !digits {
		return nil, p.errf("invalid numeric literal")
	}
	lexical := p.input[start:p.pos]
	switch {
	case exponent:
		return rdf.NewLiteralWithDatatype(lexical, rdf.XSDDouble), nil
	case decimal:
		return rdf.NewLiteralWithDatatype(lexical, rdf.XSDDecimal), nil
	default:
		return rdf.NewLiteralWithDatatype(lexical, rdf.XSDInteger), nil
	}
}

// parseTriplesSameSubject parses one subject with its predicate-object
// list into the group, expanding blank node property lists and
// collections.
func (p *Parser) parseTriplesSameSubject(group *patternGroup) error {
	p.skipWS()

	var subject algebra.TermOrVar
	var err error
	switch {
	case p.peek() == '[':
		subject, err = p.parseBlankNodePropertyList(group)
		if err != nil {
			return err
		}
		p.skipWS()
		// A bare property list can stand alone
		if ch := p.peek(); ch == '.' || ch == '}' {
			return nil
		}
	case p.peek() == '(':
		subject, err = p.parseCollection(group)
		if err != nil {
			return err
		}
	default:
		subject, err = p.parseGraphTerm()
		if err != nil {
			return err
		}
	}

	return p.parsePredicateObjectList(group, subject)
}

func (p *Parser) parsePredicateObjectList(group *patternGroup, subject algebra.TermOrVar) error {
	for {
		p.skipWS()

		// Predicate position: a verb or a property path
		var verb algebra.TermOrVar
		var path algebra.PathExpr
		if p.peek() == '?' || p.peek() == '$' {
			name, err := p.parseVarName()
			if err != nil {
				return err
			}
			verb = algebra.Var(name)
		} else {
			parsed, err := p.parsePath()
			if err != nil {
				return err
			}
			if pp, ok := parsed.(*algebra.PredicatePath); ok {
				verb = algebra.Term(pp.Predicate)
			} else {
				path = parsed
			}
		}

		for {
			p.skipWS()
			var object algebra.TermOrVar
			var err error
			switch {
			case p.peek() == '[':
				object, err = p.parseBlankNodePropertyList(group)
			case p.peek() == '(':
				object, err = p.parseCollection(group)
			default:
				object, err = p.parseGraphTerm()
			}
			if err != nil {
				return err
			}

			if path != nil {
				group.paths = append(group.paths, &algebra.PathPattern{
					Subject: subject, Path: path, Object: object,
				})
			} else {
				group.triples = append(group.triples, &algebra.TriplePattern{
					Subject: subject, Predicate: verb, Object: object,
				})
			}

			p.skipWS()
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}

		p.skipWS()
		if p.peek() == ';' {
			p.pos++
			p.skipWS()
			if ch := p.peek(); ch == '.' || ch == '}' || ch == ']' || ch == 0 {
				return nil
			}
			continue
		}
		return nil
	}
}

func (p *Parser) freshAnonVar() algebra.TermOrVar {
	p.anonSeq++
	return algebra.Var(fmt.Sprintf("_anon_b%d", p.anonSeq))
}

func (p *Parser) parseBlankNodePropertyList(group *patternGroup) (algebra.TermOrVar, error) {
	if p.peek() != '[' {
		return algebra.TermOrVar{}, p.errf("expected '['")
	}
	p.pos++
	node := p.freshAnonVar()

	p.skipWS()
	if p.peek() == ']' {
		p.pos++
		return node, nil
	}
	if err := p.parsePredicateObjectList(group, node); err != nil {
		return algebra.TermOrVar{}, err
	}
	p.skipWS()
	if p.peek() != ']' {
		return algebra.TermOrVar{}, p.errf("expected ']'")
	}
	p.pos++
	return node, nil
}

func (p *Parser) parseCollection(group *patternGroup) (algebra.TermOrVar, error) {
	if p.peek() != '(' {
		return algebra.TermOrVar{}, p.errf("expected '('")
	}
	p.pos++

	var items []algebra.TermOrVar
	for {
		p.skipWS()
		if p.pos >= p.length {
			return algebra.TermOrVar{}, p.errf("unclosed collection")
		}
		if p.peek() == ')' {
			p.pos++
			break
		}
		var item algebra.TermOrVar
		var err error
		switch {
		case p.peek() == '[':
			item, err = p.parseBlankNodePropertyList(group)
		case p.peek() == '(':
			item, err = p.parseCollection(group)
		default:
			item, err = p.parseGraphTerm()
		}
		if err != nil {
			return algebra.TermOrVar{}, err
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return algebra.Term(rdf.RDFNil), nil
	}
	head := p.freshAnonVar()
	cur := head
	for i, item := range items {
		group.triples = append(group.triples, &algebra.TriplePattern{
			Subject: cur, Predicate: algebra.Term(rdf.RDFFirst), Object: item,
		})
		if i == len(items)-1 {
			group.triples = append(group.triples, &algebra.TriplePattern{
				Subject: cur, Predicate: algebra.Term(rdf.RDFRest), Object: algebra.Term(rdf.RDFNil),
			})
		} else {
			next := p.freshAnonVar()
			group.triples = append(group.triples, &algebra.TriplePattern{
				Subject: cur, Predicate: algebra.Term(rdf.RDFRest), Object: next,
			})
			cur = next
		}
	}
	return head, nil
}

// parsePath parses a property path expression (lowest precedence:
// alternatives).
func (p *Parser) parsePath() (algebra.PathExpr, error) {
	left, err := p.parsePathSequence()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() != '|' {
			return left, nil
		}
		p.pos++
		right, err := p.parsePathSequence()
		if err != nil {
			return nil, err
		}
		left = &algebra.AlternativePath{Left: left, Right: right}
	}
}

func (p *Parser) parsePathSequence() (algebra.PathExpr, error) {
	left, err := p.parsePathEltOrInverse()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if p.peek() != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parsePathEltOrInverse()
		if err != nil {
			return nil, err
		}
		left = &algebra.SequencePath{Left: left, Right: right}
	}
}

func (p *Parser) parsePathEltOrInverse() (algebra.PathExpr, error) {
	p.skipWS()
	if p.peek() == '^' {
		p.pos++
		inner, err := p.parsePathElt()
		if err != nil {
			return nil, err
		}
		return &algebra.InversePath{Inner: inner}, nil
	}
	return p.parsePathElt()
}

func (p *Parser) parsePathElt() (algebra.PathExpr, error) {
	primary, err := p.parsePathPrimary()
	if err != nil {
		return nil, err
	}
	switch p.peek() {
	case '*':
		p.pos++
		return &algebra.ZeroOrMorePath{Inner: primary}, nil
	case '+':
		p.pos++
		return &algebra.OneOrMorePath{Inner: primary}, nil
	case '?':
		// Disambiguate from a following variable
		if p.pos+1 < p.length && isNameChar(p.input[p.pos+1]) {
			return primary, nil
		}
		p.pos++
		return &algebra.ZeroOrOnePath{Inner: primary}, nil
	default:
		return primary, nil
	}
}

func (p *Parser) parsePathPrimary() (algebra.PathExpr, error) {
	p.skipWS()
	switch {
	case p.peek() == '(':
		p.pos++
		inner, err := p.parsePath()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() != ')' {
			return nil, p.errf("expected ')' in path")
		}
		p.pos++
		return inner, nil

	case p.peek() == '!':
		p.pos++
		return p.parseNegatedPropertySet()

	case p.matchKeyword("a"):
		p.consumeKeyword("a")
		return &algebra.PredicatePath{Predicate: rdf.RDFType}, nil

	default:
		term, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		return &algebra.PredicatePath{Predicate: term.(*rdf.NamedNode)}, nil
	}
}

func (p *Parser) parseNegatedPropertySet() (algebra.PathExpr, error) {
	set := &algebra.NegatedPropertySet{}

	addOne := func() error {
		p.skipWS()
		inverse := false
		if p.peek() == '^' {
			p.pos++
			inverse = true
			p.skipWS()
		}
		var pred *rdf.NamedNode
		if p.matchKeyword("a") {
			p.consumeKeyword("a")
			pred = rdf.RDFType
		} else {
			term, err := p.parseIRIOrPrefixedName()
			if err != nil {
				return err
			}
			pred = term.(*rdf.NamedNode)
		}
		if inverse {
			set.Inverse = append(set.Inverse, pred)
		} else {
			set.Forward = append(set.Forward, pred)
		}
		return nil
	}

	p.skipWS()
	if p.peek() == '(' {
		p.pos++
		for {
			if err := addOne(); err != nil {
				return nil, err
			}
			p.skipWS()
			if p.peek() == '|' {
				p.pos++
				continue
			}
			if p.peek() == ')' {
				p.pos++
				return set, nil
			}
			return nil, p.errf("expected '|' or ')' in negated property set")
		}
	}
	if err := addOne(); err != nil {
		return nil, err
	}
	return set, nil
}
