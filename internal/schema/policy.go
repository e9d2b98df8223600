package schema

import (
	"github.com/JAssertz/better-convex-sub001/internal/types"
)

// Actor is the explicit caller identity threaded through every
// policy-evaluating call. Never ambient state.
type Actor struct {
	Subject string
	Roles   []string
	Bypass  bool
}

func (a Actor) HasRole(name string) bool {
	for _, r := range a.Roles {
		if r == name {
			return true
		}
	}
	return false
}

type PolicyMode string

const (
	// PolicyPermissive predicates are OR-combined; at least one must pass.
	PolicyPermissive PolicyMode = "permissive"
	// PolicyRestrictive predicates are AND-combined on top of the permissive set.
	PolicyRestrictive PolicyMode = "restrictive"
)

type Predicate func(actor Actor, row Row) bool

// Policy gates row visibility and writability per operation and role.
type Policy struct {
	Name string
	Mode PolicyMode
	// operations the policy covers; empty covers all four
	For []types.Operation
	// roles the policy applies to; empty means Public
	To []Role

	// Using must hold for a row to be visible or affected.
	Using Predicate
	// WithCheck must hold for the row produced by a write.
	// Falls back to Using when absent.
	WithCheck Predicate
}

func (p *Policy) Covers(op types.Operation) bool {
	if len(p.For) == 0 {
		return true
	}
	for _, o := range p.For {
		if o == op {
			return true
		}
	}
	return false
}

func (p *Policy) AppliesTo(actor Actor) bool {
	if len(p.To) == 0 {
		return true
	}
	for _, role := range p.To {
		if role.Name == Public.Name || actor.HasRole(role.Name) {
			return true
		}
	}
	return false
}

func (p *Policy) CheckPredicate() Predicate {
	if p.WithCheck != nil {
		return p.WithCheck
	}
	return p.Using
}
