package parser

import (
	"fmt"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
	"github.com/aleksaelezovic/tetrago/pkg/sparql/algebra"
)

var (
	boolTrue  = rdf.NewBooleanLiteral(true)
	boolFalse = rdf.NewBooleanLiteral(false)
)

// builtinNames are the builtin calls recognized in expressions, longest
// match first where one name prefixes another.
var builtinNames = []string{
	"GROUP_CONCAT", "ENCODE_FOR_URI", "STRLANG", "STRSTARTS", "STRENDS",
	"STRBEFORE", "STRAFTER", "STRLEN", "STRDT", "STRUUID", "STR",
	"LANGMATCHES", "LANG", "DATATYPE", "BOUND", "IRI", "URI", "BNODE",
	"RAND", "ABS", "CEIL", "FLOOR", "ROUND", "CONCAT", "SUBSTR", "REPLACE",
	"UCASE", "LCASE", "CONTAINS", "YEAR", "MONTH", "DAY", "HOURS",
	"MINUTES", "SECONDS", "TIMEZONE", "TZ", "NOW", "UUID", "MD5", "SHA1",
	"SHA256", "SHA384", "SHA512", "COALESCE", "IF", "SAMETERM", "ISIRI",
	"ISURI", "ISBLANK", "ISLITERAL", "ISNUMERIC", "ISTRIPLE", "TRIPLE",
	"SUBJECT", "PREDICATE", "OBJECT", "REGEX",
	"COUNT", "SUM", "MIN", "MAX", "AVG", "SAMPLE",
}

// aggregateNames are the subset of builtins that aggregate.
var aggregateNames = map[string]bool{
	"COUNT": true, "SUM": true, "MIN": true, "MAX": true,
	"AVG": true, "SAMPLE": true, "GROUP_CONCAT": true,
}

func (p *Parser) peekBuiltinCall() bool {
	for _, name := range builtinNames {
		if p.matchKeyword(name) {
			return true
		}
	}
	return p.matchKeyword("EXISTS") || p.matchKeyword("NOT")
}

// parseConstraint parses a FILTER constraint: a bracketted expression, a
// builtin call, or a function call.
func (p *Parser) parseConstraint() (algebra.Expression, error) {
	p.skipWS()
	if p.peek() == '(' {
		return p.parseBracketted()
	}
	return p.parsePrimaryExpression()
}

func (p *Parser) parseBracketted() (algebra.Expression, error) {
	p.skipWS()
	if p.peek() != '(' {
		return nil, p.errf("expected '('")
	}
	p.pos++
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipWS()
	if p.peek() != ')' {
		return nil, p.errf("expected ')'")
	}
	p.pos++
	return expr, nil
}

// parseExpression parses a full expression (|| level).
func (p *Parser) parseExpression() (algebra.Expression, error) {
	left, err := p.parseAndExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if !strings.HasPrefix(p.rest(), "||") {
			return left, nil
		}
		p.pos += 2
		right, err := p.parseAndExpression()
		if err != nil {
			return nil, err
		}
		left = &algebra.ExprBinary{Op: "||", Left: left, Right: right}
	}
}

func (p *Parser) parseAndExpression() (algebra.Expression, error) {
	left, err := p.parseRelationalExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		if !strings.HasPrefix(p.rest(), "&&") {
			return left, nil
		}
		p.pos += 2
		right, err := p.parseRelationalExpression()
		if err != nil {
			return nil, err
		}
		left = &algebra.ExprBinary{Op: "&&", Left: left, Right: right}
	}
}

func (p *Parser) parseRelationalExpression() (algebra.Expression, error) {
	left, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}

	p.skipWS()
	switch {
	case p.matchKeyword("NOT"):
		save := p.pos
		p.consumeKeyword("NOT")
		p.skipWS()
		if !p.matchKeyword("IN") {
			p.pos = save
			return left, nil
		}
		p.consumeKeyword("IN")
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprIn{X: left, List: list, Not: true}, nil

	case p.matchKeyword("IN"):
		p.consumeKeyword("IN")
		list, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprIn{X: left, List: list}, nil
	}

	var op string
	switch {
	case strings.HasPrefix(p.rest(), "!="):
		op = "!="
		p.pos += 2
	case strings.HasPrefix(p.rest(), "<="):
		op = "<="
		p.pos += 2
	case strings.HasPrefix(p.rest(), ">="):
		op = ">="
		p.pos += 2
	case p.peek() == '=':
		op = "="
		p.pos++
	case p.peek() == '<':
		op = "<"
		p.pos++
	case p.peek() == '>':
		op = ">"
		p.pos++
	default:
		return left, nil
	}

	right, err := p.parseAdditiveExpression()
	if err != nil {
		return nil, err
	}
	return &algebra.ExprBinary{Op: op, Left: left, Right: right}, nil
}

func (p *Parser) parseExpressionList() ([]algebra.Expression, error) {
	p.skipWS()
	if p.peek() != '(' {
		return nil, p.errf("expected '(' in expression list")
	}
	p.pos++
	var list []algebra.Expression
	p.skipWS()
	if p.peek() == ')' {
		p.pos++
		return list, nil
	}
	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		list = append(list, expr)
		p.skipWS()
		if p.peek() == ',' {
			p.pos++
			continue
		}
		if p.peek() == ')' {
			p.pos++
			return list, nil
		}
		return nil, p.errf("expected ',' or ')' in expression list")
	}
}

func (p *Parser) parseAdditiveExpression() (algebra.Expression, error) {
	left, err := p.parseMultiplicativeExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		ch := p.peek()
		if ch != '+' && ch != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplicativeExpression()
		if err != nil {
			return nil, err
		}
		left = &algebra.ExprBinary{Op: string(ch), Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicativeExpression() (algebra.Expression, error) {
	left, err := p.parseUnaryExpression()
	if err != nil {
		return nil, err
	}
	for {
		p.skipWS()
		ch := p.peek()
		if ch != '*' && ch != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		left = &algebra.ExprBinary{Op: string(ch), Left: left, Right: right}
	}
}

func (p *Parser) parseUnaryExpression() (algebra.Expression, error) {
	p.skipWS()
	switch p.peek() {
	case '!':
		if strings.HasPrefix(p.rest(), "!=") {
			break
		}
		p.pos++
		x, err := p.parseUnaryExpression()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprUnary{Op: "!", X: x}, nil
	case '-':
		// A minus followed by a digit is a numeric literal
		if p.pos+1 < p.length && (p.input[p.pos+1] < '0' || p.input[p.pos+1] > '9') {
			p.pos++
			x, err := p.parseUnaryExpression()
			if err != nil {
				return nil, err
			}
			return &algebra.ExprUnary{Op: "-", X: x}, nil
		}
	case '+':
		if p.pos+1 < p.length && (p.input[p.pos+1] < '0' || p.input[p.pos+1] > '9') {
			p.pos++
			x, err := p.parseUnaryExpression()
			if err != nil {
				return nil, err
			}
			return &algebra.ExprUnary{Op: "+", X: x}, nil
		}
	}
	return p.parsePrimaryExpression()
}

func (p *Parser) parsePrimaryExpression() (algebra.Expression, error) {
	p.skipWS()
	ch := p.peek()

	switch {
	case ch == '(':
		return p.parseBracketted()

	case ch == '?' || ch == '$':
		name, err := p.parseVarName()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprVar{Name: name}, nil

	case p.matchKeyword("EXISTS"):
		p.consumeKeyword("EXISTS")
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprExists{Pattern: pattern}, nil

	case p.matchKeyword("NOT"):
		p.consumeKeyword("NOT")
		p.skipWS()
		if !p.matchKeyword("EXISTS") {
			return nil, p.errf("expected EXISTS after NOT")
		}
		p.consumeKeyword("EXISTS")
		pattern, err := p.parseGroupGraphPattern()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprExists{Pattern: pattern, Not: true}, nil

	case ch == '"' || ch == '\'':
		lit, err := p.parseRDFLiteral()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprTerm{Term: lit}, nil

	case ch == '+' || ch == '-' || (ch >= '0' && ch <= '9'):
		lit, err := p.parseNumericLiteral()
		if err != nil {
			return nil, err
		}
		return &algebra.ExprTerm{Term: lit}, nil

	case p.matchKeyword("true"):
		p.consumeKeyword("true")
		return &algebra.ExprTerm{Term: boolTrue}, nil

	case p.matchKeyword("false"):
		p.consumeKeyword("false")
		return &algebra.ExprTerm{Term: boolFalse}, nil
	}

	// Builtin call
	for _, name := range builtinNames {
		if p.matchKeyword(name) {
			return p.parseBuiltinCall(name)
		}
	}

	// IRI, prefixed name, or cast/extension function call
	if ch == '<' || p.peekPrefixedName() {
		term, err := p.parseIRIOrPrefixedName()
		if err != nil {
			return nil, err
		}
		p.skipWS()
		if p.peek() == '(' {
			args, err := p.parseExpressionList()
			if err != nil {
				return nil, err
			}
			return &algebra.ExprFunc{Name: term.String(), Args: args}, nil
		}
		return &algebra.ExprTerm{Term: term}, nil
	}

	return nil, p.errf("expected expression, got %q", ch)
}

// parseBuiltinCall parses one builtin after its keyword was matched.
func (p *Parser) parseBuiltinCall(name string) (algebra.Expression, error) {
	p.consumeKeyword(name)
	upper := strings.ToUpper(name)
	p.skipWS()

	// Niladic builtins allow the bare form in ORDER BY but normally have
	// empty parens
	if upper == "NOW" || upper == "RAND" || upper == "UUID" || upper == "STRUUID" {
		if p.peek() == '(' {
			p.pos++
			p.skipWS()
			if p.peek() != ')' {
				return nil, p.errf("%s takes no arguments", upper)
			}
			p.pos++
		}
		return &algebra.ExprFunc{Name: upper}, nil
	}

	if aggregateNames[upper] {
		return p.parseAggregateCall(upper)
	}

	if p.peek() != '(' {
		return nil, p.errf("expected '(' after %s", upper)
	}
	args, err := p.parseExpressionList()
	if err != nil {
		return nil, err
	}
	return &algebra.ExprFunc{Name: upper, Args: args}, nil
}

// parseAggregateCall parses COUNT(...), SUM(...), ..., GROUP_CONCAT(...;
// SEPARATOR="..."). The result is an ExprFunc that liftAggregates later
// replaces with a variable reference.
func (p *Parser) parseAggregateCall(name string) (algebra.Expression, error) {
	p.skipWS()
	if p.peek() != '(' {
		return nil, p.errf("expected '(' after %s", name)
	}
	p.pos++
	p.skipWS()

	distinct := false
	if p.matchKeyword("DISTINCT") {
		p.consumeKeyword("DISTINCT")
		distinct = true
		p.skipWS()
	}

	agg := &algebra.ExprAggregate{Func: name, Distinct: distinct, Separator: " "}

	if name == "COUNT" && p.peek() == '*' {
		p.pos++
	} else {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		agg.Expr = expr
	}

	p.skipWS()
	if p.peek() == ';' {
		p.pos++
		p.skipWS()
		if !p.matchKeyword("SEPARATOR") {
			return nil, p.errf("expected SEPARATOR in %s", name)
		}
		p.consumeKeyword("SEPARATOR")
		p.skipWS()
		if p.peek() != '=' {
			return nil, p.errf("expected '=' after SEPARATOR")
		}
		p.pos++
		p.skipWS()
		sep, err := p.parseStringBody()
		if err != nil {
			return nil, err
		}
		agg.Separator = sep
		p.skipWS()
	}

	if p.peek() != ')' {
		return nil, p.errf("expected ')' after %s", name)
	}
	p.pos++
	return agg, nil
}

// liftAggregates replaces aggregate calls in an expression with
// references to internal aggregate variables, collecting the bindings.
func (p *Parser) liftAggregates(expr algebra.Expression, out *[]*algebra.AggregateBinding) algebra.Expression {
	switch e := expr.(type) {
	case *algebra.ExprAggregate:
		p.aggSeq++
		varName := fmt.Sprintf("_agg_%d", p.aggSeq)
		*out = append(*out, &algebra.AggregateBinding{
			Var: varName,
			Agg: &algebra.Aggregate{
				Func:      e.Func,
				Expr:      e.Expr,
				Distinct:  e.Distinct,
				Separator: e.Separator,
			},
		})
		return &algebra.ExprVar{Name: varName}
	case *algebra.ExprBinary:
		e.Left = p.liftAggregates(e.Left, out)
		e.Right = p.liftAggregates(e.Right, out)
		return e
	case *algebra.ExprUnary:
		e.X = p.liftAggregates(e.X, out)
		return e
	case *algebra.ExprFunc:
		for i := range e.Args {
			e.Args[i] = p.liftAggregates(e.Args[i], out)
		}
		return e
	case *algebra.ExprIn:
		e.X = p.liftAggregates(e.X, out)
		for i := range e.List {
			e.List[i] = p.liftAggregates(e.List[i], out)
		}
		return e
	default:
		return expr
	}
}
