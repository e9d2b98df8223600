package rls

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/types"
)

// Evaluator turns a table's policies into the predicates the query and
// mutation engines consume. It never mutates policy state and holds no
// per-actor caches, so one evaluator serves every session.
type Evaluator struct {
	Schema *schema.Schema
}

func NewEvaluator(s *schema.Schema) *Evaluator {
	return &Evaluator{Schema: s}
}

// bypasses reports whether the actor skips policy evaluation outright,
// either by explicit flag or by holding a bypass role.
func (e *Evaluator) bypasses(actor schema.Actor) bool {
	if actor.Bypass {
		return true
	}
	for _, name := range actor.Roles {
		if role, ok := e.Schema.Roles[name]; ok && role.Bypass {
			return true
		}
	}
	return false
}

// rowPredicate builds the Using gate for one (table, actor, op) triple.
// nil means unrestricted. Permissive policies OR together; restrictive
// policies AND on top. A protected table with no applicable permissive
// policy admits nothing.
func (e *Evaluator) rowPredicate(table *schema.Table, actor schema.Actor, op types.Operation) func(schema.Row) bool {
	if !table.RLSEnabled || e.bypasses(actor) {
		return nil
	}

	permissive := []schema.Predicate{}
	restrictive := []schema.Predicate{}
	for _, policy := range table.Policies {
		if !policy.Covers(op) || !policy.AppliesTo(actor) {
			continue
		}
		if policy.Mode == schema.PolicyRestrictive {
			restrictive = append(restrictive, policy.Using)
		} else {
			permissive = append(permissive, policy.Using)
		}
	}

	return func(row schema.Row) bool {
		admitted := false
		for _, pred := range permissive {
			if pred(actor, row) {
				admitted = true
				break
			}
		}
		if !admitted {
			return false
		}
		for _, pred := range restrictive {
			if !pred(actor, row) {
				return false
			}
		}
		return true
	}
}

// checkPredicate is the write-side analogue of rowPredicate, combining
// WithCheck predicates (falling back to Using) the same way.
func (e *Evaluator) checkPredicate(table *schema.Table, actor schema.Actor, op types.Operation) func(schema.Row) bool {
	if !table.RLSEnabled || e.bypasses(actor) {
		return nil
	}

	permissive := []schema.Predicate{}
	restrictive := []schema.Predicate{}
	for _, policy := range table.Policies {
		if !policy.Covers(op) || !policy.AppliesTo(actor) {
			continue
		}
		if policy.Mode == schema.PolicyRestrictive {
			restrictive = append(restrictive, policy.CheckPredicate())
		} else {
			permissive = append(permissive, policy.CheckPredicate())
		}
	}

	return func(row schema.Row) bool {
		admitted := false
		for _, pred := range permissive {
			if pred(actor, row) {
				admitted = true
				break
			}
		}
		if !admitted {
			return false
		}
		for _, pred := range restrictive {
			if !pred(actor, row) {
				return false
			}
		}
		return true
	}
}

// Restrict builds the read-visibility hook for the query engine. Rows a
// select policy rejects are indistinguishable from rows that do not exist.
func (e *Evaluator) Restrict(actor schema.Actor) query.RestrictFn {
	if e.bypasses(actor) {
		return nil
	}
	return func(table *schema.Table) query.Predicate {
		return e.rowPredicate(table, actor, types.OpSelect)
	}
}

// Guard builds the mutation gates for one operation. The visibility gate
// uses the operation's own Using predicates, so an update policy controls
// which rows an update may touch independent of select visibility.
func (e *Evaluator) Guard(table *schema.Table, actor schema.Actor, op types.Operation) mutation.Guard {
	visible := e.rowPredicate(table, actor, op)
	check := e.checkPredicate(table, actor, op)

	guard := mutation.Guard{Visible: visible}
	if check != nil {
		guard.CheckWrite = func(row schema.Row) error {
			if !check(row) {
				return apperr.Authorization(
					"row violates row security policy for table %s", table.Name,
				)
			}
			return nil
		}
	}
	return guard
}
