package engine

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/rls"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
	"github.com/JAssertz/better-convex-sub001/internal/trigger"
)

// DB wires the schema, the row store, and the engines together. Callers
// never touch the engines directly; they go through an actor-bound Handle.
type DB struct {
	Schema   *schema.Schema
	Store    *store.Store
	Query    *query.Engine
	Mutation *mutation.Engine
	RLS      *rls.Evaluator
	Triggers *trigger.Dispatcher
}

// Open creates the store tables and indexes the schema declares. Data
// already on disk for a declared table is kept; its indexes are rebuilt.
func Open(s *schema.Schema, settings *store.WriteSettings) (*DB, error) {
	st, err := store.NewStore(settings)
	if err != nil {
		return nil, err
	}

	for _, name := range s.Tables.Sorted {
		table := s.Tables.Get(name)
		specs := make([]store.IndexSpec, 0, len(table.Indexes))
		for _, idx := range table.Indexes {
			specs = append(specs, store.IndexSpec{Name: idx.Name, Columns: idx.Columns})
		}
		st.CreateTable(name, specs...)
	}

	q := query.NewEngine(s)
	return &DB{
		Schema:   s,
		Store:    st,
		Query:    q,
		Mutation: mutation.NewEngine(s, q),
		RLS:      rls.NewEvaluator(s),
		Triggers: trigger.NewDispatcher(),
	}, nil
}

// With binds a handle to an actor. Every operation on the handle is
// evaluated under that actor's policies.
func (db *DB) With(actor schema.Actor) *Handle {
	return &Handle{db: db, actor: actor}
}

// SkipRules binds a handle that bypasses policy evaluation. For trusted
// internal callers only; the schema's structural rules still apply.
func (db *DB) SkipRules() *Handle {
	return &Handle{db: db, actor: schema.Actor{Subject: "system", Bypass: true}}
}

func (db *DB) table(name string) (*schema.Table, error) {
	table := db.Schema.Table(name)
	if table == nil {
		return nil, apperr.NotFound("no table %s", name)
	}
	return table, nil
}
