// Package algebra defines the typed SPARQL algebra evaluated by the
// executor: graph pattern nodes, expressions, solution modifiers, and
// update operations. The parser produces these trees; the executor turns
// them into iterator trees.
package algebra

import (
	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// QueryType discriminates the four SPARQL query forms.
type QueryType int

const (
	QueryTypeSelect QueryType = iota
	QueryTypeAsk
	QueryTypeConstruct
	QueryTypeDescribe
)

// Query is a parsed SPARQL query. Pattern is the root of the algebra
// tree including solution modifiers (Project, Distinct, OrderBy, Slice).
type Query struct {
	Type     QueryType
	Pattern  GraphPattern
	Template []*TriplePattern // CONSTRUCT template
	Describe []TermOrVar      // DESCRIBE targets
}

// TermOrVar is one slot of a pattern: either a ground term or a variable.
type TermOrVar struct {
	Term rdf.Term
	Var  string
}

func Var(name string) TermOrVar     { return TermOrVar{Var: name} }
func Term(t rdf.Term) TermOrVar     { return TermOrVar{Term: t} }
func (tv TermOrVar) IsVar() bool    { return tv.Var != "" }
func (tv TermOrVar) IsGround() bool { return tv.Var == "" && tv.Term != nil }

// GraphPattern is a node of the algebra tree.
type GraphPattern interface {
	patternNode()
}

// TriplePattern is one triple pattern of a BGP.
type TriplePattern struct {
	Subject   TermOrVar
	Predicate TermOrVar
	Object    TermOrVar
}

// BGP is a basic graph pattern: a conjunction of triple patterns matched
// within the enclosing graph context.
type BGP struct {
	Patterns []*TriplePattern
}

// PathPattern matches a property path between two endpoints.
type PathPattern struct {
	Subject TermOrVar
	Path    PathExpr
	Object  TermOrVar
}

// Join is the inner join of two patterns.
type Join struct {
	Left, Right GraphPattern
}

// LeftJoin is OPTIONAL: left rows survive unmatched; Expr (may be nil)
// constrains the combined row and is part of the join, not a filter above
// it.
type LeftJoin struct {
	Left, Right GraphPattern
	Expr        Expression
}

// Filter keeps rows whose expression has an effective boolean value of
// true; errors exclude the row.
type Filter struct {
	Expr  Expression
	Inner GraphPattern
}

// Union concatenates the solutions of both sides, preserving bag
// cardinality.
type Union struct {
	Left, Right GraphPattern
}

// Graph evaluates Inner within a named graph context: a ground name, or a
// variable ranging over the named graphs.
type Graph struct {
	Name  TermOrVar
	Inner GraphPattern
}

// Extend is BIND: evaluates Expr per row and binds Var; evaluation errors
// leave Var unbound.
type Extend struct {
	Inner GraphPattern
	Var   string
	Expr  Expression
}

// Minus removes left rows for which a compatible right row sharing at
// least one variable exists.
type Minus struct {
	Left, Right GraphPattern
}

// Values is an inline solution sequence. A nil term means unbound.
type Values struct {
	Vars []string
	Rows [][]rdf.Term
}

// Service is a federated query fragment.
type Service struct {
	Name   TermOrVar
	Inner  GraphPattern
	Silent bool
}

// GroupKey is one GROUP BY dimension: an expression, optionally bound to
// a variable (GROUP BY (expr AS ?v)).
type GroupKey struct {
	Expr Expression
	Var  string
}

// Aggregate is one aggregate application.
type Aggregate struct {
	Func      string // COUNT, SUM, MIN, MAX, AVG, SAMPLE, GROUP_CONCAT
	Expr      Expression
	Distinct  bool
	Separator string // GROUP_CONCAT separator, defaults to one space
}

// AggregateBinding binds an aggregate result to an internal variable.
type AggregateBinding struct {
	Var string
	Agg *Aggregate
}

// Group computes grouped aggregates. With no keys the whole input is one
// group.
type Group struct {
	Inner      GraphPattern
	Keys       []GroupKey
	Aggregates []*AggregateBinding
}

// OrderCondition is one ORDER BY criterion.
type OrderCondition struct {
	Expr Expression
	Desc bool
}

// OrderBy sorts its input.
type OrderBy struct {
	Inner      GraphPattern
	Conditions []OrderCondition
}

// Project restricts rows to the given variables.
type Project struct {
	Inner GraphPattern
	Vars  []string
}

// Distinct removes duplicate rows.
type Distinct struct {
	Inner GraphPattern
}

// Reduced permits but does not require duplicate elimination.
type Reduced struct {
	Inner GraphPattern
}

// Slice applies OFFSET and LIMIT. Nil limit means unlimited.
type Slice struct {
	Inner  GraphPattern
	Offset int
	Limit  *int
}

func (*BGP) patternNode()         {}
func (*PathPattern) patternNode() {}
func (*Join) patternNode()        {}
func (*LeftJoin) patternNode()    {}
func (*Filter) patternNode()      {}
func (*Union) patternNode()       {}
func (*Graph) patternNode()       {}
func (*Extend) patternNode()      {}
func (*Minus) patternNode()       {}
func (*Values) patternNode()      {}
func (*Service) patternNode()     {}
func (*Group) patternNode()       {}
func (*OrderBy) patternNode()     {}
func (*Project) patternNode()     {}
func (*Distinct) patternNode()    {}
func (*Reduced) patternNode()     {}
func (*Slice) patternNode()       {}

// PathExpr is a property path expression.
type PathExpr interface {
	pathNode()
}

// PredicatePath is a single predicate IRI step.
type PredicatePath struct {
	Predicate *rdf.NamedNode
}

// InversePath reverses the direction of its inner path (^p).
type InversePath struct {
	Inner PathExpr
}

// SequencePath chains paths (p1/p2).
type SequencePath struct {
	Left, Right PathExpr
}

// AlternativePath unions paths (p1|p2).
type AlternativePath struct {
	Left, Right PathExpr
}

// ZeroOrMorePath is the reflexive transitive closure (p*).
type ZeroOrMorePath struct {
	Inner PathExpr
}

// OneOrMorePath is the transitive closure (p+).
type OneOrMorePath struct {
	Inner PathExpr
}

// ZeroOrOnePath is the reflexive closure (p?).
type ZeroOrOnePath struct {
	Inner PathExpr
}

// NegatedPropertySet matches any predicate outside the set (!(p1|...)),
// with inverse members handled separately.
type NegatedPropertySet struct {
	Forward []*rdf.NamedNode
	Inverse []*rdf.NamedNode
}

func (*PredicatePath) pathNode()      {}
func (*InversePath) pathNode()        {}
func (*SequencePath) pathNode()       {}
func (*AlternativePath) pathNode()    {}
func (*ZeroOrMorePath) pathNode()     {}
func (*OneOrMorePath) pathNode()      {}
func (*ZeroOrOnePath) pathNode()      {}
func (*NegatedPropertySet) pathNode() {}

// Expression is a SPARQL expression.
type Expression interface {
	expressionNode()
}

// ExprVar references a variable.
type ExprVar struct {
	Name string
}

// ExprTerm is a constant term.
type ExprTerm struct {
	Term rdf.Term
}

// ExprBinary applies a binary operator: "||", "&&", "=", "!=", "<",
// "<=", ">", ">=", "+", "-", "*", "/".
type ExprBinary struct {
	Op          string
	Left, Right Expression
}

// ExprUnary applies a unary operator: "!", "-", "+".
type ExprUnary struct {
	Op string
	X  Expression
}

// ExprFunc is a builtin or cast call by uppercase name.
type ExprFunc struct {
	Name string
	Args []Expression
}

// ExprExists is (NOT) EXISTS over a sub-pattern.
type ExprExists struct {
	Pattern GraphPattern
	Not     bool
}

// ExprIn is (NOT) IN.
type ExprIn struct {
	X    Expression
	List []Expression
	Not  bool
}

// ExprAggregate is an aggregate call as it appears in a projection,
// HAVING, or ORDER BY expression. The parser lifts these into Group
// bindings, so the evaluator never sees one.
type ExprAggregate struct {
	Func      string
	Expr      Expression
	Distinct  bool
	Separator string
}

func (*ExprVar) expressionNode()    {}
func (*ExprTerm) expressionNode()   {}
func (*ExprBinary) expressionNode() {}
func (*ExprUnary) expressionNode()  {}
func (*ExprFunc) expressionNode()   {}
func (*ExprExists) expressionNode()    {}
func (*ExprIn) expressionNode()        {}
func (*ExprAggregate) expressionNode() {}

// Update is a parsed SPARQL update request: operations executed in order
// within one atomic batch.
type Update struct {
	Operations []UpdateOperation
}

// UpdateOperation is one operation of an update request.
type UpdateOperation interface {
	updateNode()
}

// QuadTemplate is a quad pattern used in update data blocks and
// DELETE/INSERT templates. A zero Graph slot means the default graph.
type QuadTemplate struct {
	Subject   TermOrVar
	Predicate TermOrVar
	Object    TermOrVar
	Graph     TermOrVar
}

// InsertData adds ground quads.
type InsertData struct {
	Quads []*QuadTemplate
}

// DeleteData removes ground quads.
type DeleteData struct {
	Quads []*QuadTemplate
}

// Modify is DELETE/INSERT ... WHERE. Nil Delete or Insert slices skip
// that phase. With names the graph that both templates and WHERE default
// to.
type Modify struct {
	Delete []*QuadTemplate
	Insert []*QuadTemplate
	Where  GraphPattern
	With   rdf.Term
}

// Load fetches a document into a graph.
type Load struct {
	Source string
	Graph  rdf.Term // nil = default graph
	Silent bool
}

// GraphTarget selects the scope of CLEAR and DROP.
type GraphTarget int

const (
	TargetGraph GraphTarget = iota
	TargetDefault
	TargetNamed
	TargetAll
)

// Clear removes quads from the targeted graphs.
type Clear struct {
	Target GraphTarget
	Graph  rdf.Term
	Silent bool
}

// Create registers an empty named graph.
type Create struct {
	Graph  rdf.Term
	Silent bool
}

// Drop removes graphs entirely.
type Drop struct {
	Target GraphTarget
	Graph  rdf.Term
	Silent bool
}

// GraphCopy is COPY/MOVE/ADD between graphs. Nil terms mean the default
// graph.
type GraphCopy struct {
	Op     string // COPY, MOVE, ADD
	Src    rdf.Term
	Dst    rdf.Term
	Silent bool
}

func (*InsertData) updateNode() {}
func (*DeleteData) updateNode() {}
func (*Modify) updateNode()     {}
func (*Load) updateNode()       {}
func (*Clear) updateNode()      {}
func (*Create) updateNode()     {}
func (*Drop) updateNode()       {}
func (*GraphCopy) updateNode()  {}
