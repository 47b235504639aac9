package store

import (
	"sort"
	"strings"

	"github.com/aleksaelezovic/tetrago/pkg/rdf"
)

// Binding is a solution mapping: a partial assignment of variable names
// to RDF terms.
type Binding struct {
	Vars map[string]rdf.Term
}

// NewBinding creates an empty binding, the identity element for joins.
func NewBinding() *Binding {
	return &Binding{Vars: make(map[string]rdf.Term)}
}

// Clone creates a copy of the binding
func (b *Binding) Clone() *Binding {
	nb := &Binding{Vars: make(map[string]rdf.Term, len(b.Vars))}
	for k, v := range b.Vars {
		nb.Vars[k] = v
	}
	return nb
}

// Get returns the bound term for a variable, or nil.
func (b *Binding) Get(name string) rdf.Term {
	return b.Vars[name]
}

// Bound reports whether the variable is bound.
func (b *Binding) Bound(name string) bool {
	_, ok := b.Vars[name]
	return ok
}

// Set binds a variable.
func (b *Binding) Set(name string, term rdf.Term) {
	b.Vars[name] = term
}

// Compatible reports whether two bindings agree on every shared variable.
func (b *Binding) Compatible(other *Binding) bool {
	for name, term := range b.Vars {
		if otherTerm, ok := other.Vars[name]; ok && !term.Equals(otherTerm) {
			return false
		}
	}
	return true
}

// SharesVariable reports whether the bindings have at least one variable
// in common.
func (b *Binding) SharesVariable(other *Binding) bool {
	for name := range b.Vars {
		if _, ok := other.Vars[name]; ok {
			return true
		}
	}
	return false
}

// Merge returns the union of two compatible bindings.
func (b *Binding) Merge(other *Binding) *Binding {
	merged := b.Clone()
	for name, term := range other.Vars {
		merged.Vars[name] = term
	}
	return merged
}

// Signature renders a canonical fingerprint of the binding, restricted to
// vars when non-nil. Used for DISTINCT and grouping.
func (b *Binding) Signature(vars []string) string {
	var parts []string
	if vars == nil {
		for name, term := range b.Vars {
			parts = append(parts, name+"="+term.String())
		}
		sort.Strings(parts)
	} else {
		for _, name := range vars {
			if term, ok := b.Vars[name]; ok {
				parts = append(parts, name+"="+term.String())
			} else {
				parts = append(parts, name+"=")
			}
		}
	}
	return strings.Join(parts, ";")
}
