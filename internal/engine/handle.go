package engine

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/types"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// Handle is a DB view bound to one actor. Reads run on a snapshot; each
// mutation gets its own write transaction and is committed or rolled back
// as a unit, trigger cascade included.
type Handle struct {
	db    *DB
	actor schema.Actor
}

func (h *Handle) Actor() schema.Actor { return h.actor }

func (h *Handle) FindMany(table string, args query.FindArgs) ([]schema.Row, error) {
	t, err := h.db.table(table)
	if err != nil {
		return nil, err
	}
	tx := h.db.Store.BeginRead()
	defer tx.Rollback()
	return h.db.Query.FindMany(tx, t, args, h.db.RLS.Restrict(h.actor))
}

// FindOne returns the first match, or nil when nothing matches. A row a
// policy hides is reported exactly like a row that does not exist.
func (h *Handle) FindOne(table string, where query.Filter) (schema.Row, error) {
	t, err := h.db.table(table)
	if err != nil {
		return nil, err
	}
	tx := h.db.Store.BeginRead()
	defer tx.Rollback()
	return h.db.Query.FindOne(tx, t, where, h.db.RLS.Restrict(h.actor))
}

func (h *Handle) Count(table string, where query.Filter) (int, error) {
	t, err := h.db.table(table)
	if err != nil {
		return 0, err
	}
	tx := h.db.Store.BeginRead()
	defer tx.Rollback()
	return h.db.Query.Count(tx, t, where, h.db.RLS.Restrict(h.actor))
}

// runMutation owns the write transaction lifecycle: run the builder,
// drain the trigger queue, then commit. Any error rolls everything back,
// including writes triggers already made.
func (h *Handle) runMutation(run func(s *mutation.Session) ([]schema.Row, error)) ([]schema.Row, error) {
	tx := h.db.Store.BeginWrite()
	session := mutation.NewSession(tx, h.actor)

	rows, err := run(session)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := h.db.Triggers.Drain(session, h.db.Mutation); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return nil, err
	}
	return rows, nil
}

// InsertOp stages an insert. Terminal calls execute the whole operation,
// triggers included, in one transaction. An op runs exactly once; a second
// terminal call is an error.
type InsertOp struct {
	handle   *Handle
	table    string
	values   []schema.Row
	conflict func(b *mutation.InsertBuilder) *mutation.InsertBuilder
	executed bool
}

func (h *Handle) Insert(table string) *InsertOp {
	return &InsertOp{handle: h, table: table}
}

func (op *InsertOp) Values(rows ...schema.Row) *InsertOp {
	op.values = append(op.values, rows...)
	return op
}

func (op *InsertOp) OnConflictDoNothing(target string) *InsertOp {
	op.conflict = func(b *mutation.InsertBuilder) *mutation.InsertBuilder {
		return b.OnConflictDoNothing(target)
	}
	return op
}

func (op *InsertOp) OnConflictDoUpdate(target string, set schema.Row) *InsertOp {
	op.conflict = func(b *mutation.InsertBuilder) *mutation.InsertBuilder {
		return b.OnConflictDoUpdate(target, set)
	}
	return op
}

func (op *InsertOp) Returning(projection ...mutation.Projection) ([]schema.Row, error) {
	return op.run(projection)
}

func (op *InsertOp) Exec() error {
	_, err := op.run(nil)
	return err
}

func (op *InsertOp) run(projection []mutation.Projection) ([]schema.Row, error) {
	h := op.handle
	if op.executed {
		return nil, apperr.Validation("insert on table %s already executed", op.table)
	}
	op.executed = true
	t, err := h.db.table(op.table)
	if err != nil {
		return nil, err
	}
	guard := h.db.RLS.Guard(t, h.actor, types.OpInsert)
	update_guard := h.db.RLS.Guard(t, h.actor, types.OpUpdate)
	return h.runMutation(func(s *mutation.Session) ([]schema.Row, error) {
		b := h.db.Mutation.Insert(s, t, guard).ConflictGuard(update_guard).Values(op.values...)
		if op.conflict != nil {
			b = op.conflict(b)
		}
		return b.Returning(projection...)
	})
}

type UpdateOp struct {
	handle   *Handle
	table    string
	set      schema.Row
	where    query.Filter
	executed bool
}

func (h *Handle) Update(table string) *UpdateOp {
	return &UpdateOp{handle: h, table: table}
}

func (op *UpdateOp) Set(set schema.Row) *UpdateOp {
	op.set = set
	return op
}

func (op *UpdateOp) Where(where query.Filter) *UpdateOp {
	op.where = where
	return op
}

func (op *UpdateOp) Returning(projection ...mutation.Projection) ([]schema.Row, error) {
	return op.run(projection)
}

func (op *UpdateOp) Exec() error {
	_, err := op.run(nil)
	return err
}

func (op *UpdateOp) run(projection []mutation.Projection) ([]schema.Row, error) {
	h := op.handle
	if op.executed {
		return nil, apperr.Validation("update on table %s already executed", op.table)
	}
	op.executed = true
	t, err := h.db.table(op.table)
	if err != nil {
		return nil, err
	}
	guard := h.db.RLS.Guard(t, h.actor, types.OpUpdate)
	return h.runMutation(func(s *mutation.Session) ([]schema.Row, error) {
		return h.db.Mutation.Update(s, t, guard).Where(op.where).Set(op.set).Returning(projection...)
	})
}

type DeleteOp struct {
	handle   *Handle
	table    string
	where    query.Filter
	executed bool
}

func (h *Handle) Delete(table string) *DeleteOp {
	return &DeleteOp{handle: h, table: table}
}

func (op *DeleteOp) Where(where query.Filter) *DeleteOp {
	op.where = where
	return op
}

func (op *DeleteOp) Returning(projection ...mutation.Projection) ([]schema.Row, error) {
	return op.run(projection)
}

func (op *DeleteOp) Exec() error {
	_, err := op.run(nil)
	return err
}

func (op *DeleteOp) run(projection []mutation.Projection) ([]schema.Row, error) {
	h := op.handle
	if op.executed {
		return nil, apperr.Validation("delete on table %s already executed", op.table)
	}
	op.executed = true
	t, err := h.db.table(op.table)
	if err != nil {
		return nil, err
	}
	guard := h.db.RLS.Guard(t, h.actor, types.OpDelete)
	return h.runMutation(func(s *mutation.Session) ([]schema.Row, error) {
		return h.db.Mutation.Delete(s, t, guard).Where(op.where).Returning(projection...)
	})
}

// Stats reports per-table row counts on one snapshot.
func (h *Handle) Stats() pkg.Map[string, int] {
	tx := h.db.Store.BeginRead()
	defer tx.Rollback()
	stats := pkg.Map[string, int]{}
	for _, name := range h.db.Schema.Tables.Sorted {
		stats.Set(name, tx.Len(name))
	}
	return stats
}
