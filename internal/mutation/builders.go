package mutation

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/types"
)

// Projection maps result field names to column names for Returning.
type Projection map[string]string

type conflictAction string

const (
	conflictDoNothing conflictAction = "nothing"
	conflictDoUpdate  conflictAction = "update"
)

type conflictClause struct {
	target string // index name
	action conflictAction
	set    schema.Row
}

// InsertBuilder accumulates an insert until a terminal call executes it.
// A builder executes exactly once; a second terminal call is an error.
type InsertBuilder struct {
	engine      *Engine
	session     *Session
	table       *schema.Table
	guard       Guard
	updateGuard *Guard
	values      []schema.Row
	conflict    *conflictClause
	executed    bool
}

func (e *Engine) Insert(s *Session, table *schema.Table, guard Guard) *InsertBuilder {
	return &InsertBuilder{engine: e, session: s, table: table, guard: guard}
}

func (b *InsertBuilder) Values(rows ...schema.Row) *InsertBuilder {
	b.values = append(b.values, rows...)
	return b
}

// OnConflictDoNothing skips inputs that conflict on the named index.
// Other inputs in the batch proceed independently.
func (b *InsertBuilder) OnConflictDoNothing(target string) *InsertBuilder {
	b.conflict = &conflictClause{target: target, action: conflictDoNothing}
	return b
}

// OnConflictDoUpdate applies set to the conflicting row instead of inserting.
func (b *InsertBuilder) OnConflictDoUpdate(target string, set schema.Row) *InsertBuilder {
	b.conflict = &conflictClause{target: target, action: conflictDoUpdate, set: set}
	return b
}

// ConflictGuard sets the gates applied when OnConflictDoUpdate patches an
// existing row. The patch is an update, so it answers to the update gates,
// not the insert ones. Unset, the insert guard applies.
func (b *InsertBuilder) ConflictGuard(g Guard) *InsertBuilder {
	b.updateGuard = &g
	return b
}

func (b *InsertBuilder) Returning(projection ...Projection) ([]schema.Row, error) {
	rows, err := b.run()
	if err != nil {
		return nil, err
	}
	return project(b.table, rows, projection)
}

func (b *InsertBuilder) Exec() error {
	_, err := b.run()
	return err
}

func (b *InsertBuilder) run() ([]schema.Row, error) {
	if b.executed {
		return nil, apperr.Validation("insert on table %s already executed", b.table.Name)
	}
	b.executed = true

	if b.conflict != nil && b.table.Index(b.conflict.target) == nil {
		return nil, apperr.Validation(
			"conflict target %s is not an index on table %s", b.conflict.target, b.table.Name,
		)
	}

	results := []schema.Row{}
	for _, input := range b.values {
		row, err := b.engine.materializeInsert(b.table, input)
		if err != nil {
			return nil, err
		}
		if b.guard.CheckWrite != nil {
			if err := b.guard.CheckWrite(row); err != nil {
				return nil, err
			}
		}

		if b.conflict != nil {
			target := b.table.Index(b.conflict.target)
			if conflict_id, found := b.engine.probeIndex(b.session.Tx, b.table, target, row, 0); found {
				switch b.conflict.action {
				case conflictDoNothing:
					// skip this input, no row returned for it
					continue
				case conflictDoUpdate:
					cg := b.guard
					if b.updateGuard != nil {
						cg = *b.updateGuard
					}
					if cg.Visible != nil {
						existing, ok := b.session.Tx.Get(b.table.Name, conflict_id)
						if !ok || !cg.Visible(existing) {
							return nil, apperr.Authorization(
								"row violates row security policy for table %s", b.table.Name,
							)
						}
					}
					updated, err := b.engine.applyUpdate(b.session, b.table, conflict_id, b.conflict.set, cg)
					if err != nil {
						return nil, err
					}
					results = append(results, updated)
					continue
				}
			}
		}

		skip := ""
		if b.conflict != nil {
			skip = b.conflict.target
		}
		if _, index := b.engine.findConflict(b.session.Tx, b.table, row, 0, skip); index != nil {
			return nil, apperr.Uniqueness(
				"value for unique index %s already exists on table %s", index.Name, b.table.Name,
			)
		}

		id, err := b.session.Tx.Insert(b.table.Name, row)
		if err != nil {
			return nil, err
		}
		b.session.PushChange(Change{
			Op:    types.OpInsert,
			Table: b.table.Name,
			ID:    id,
			New:   schema.CopyRow(row),
		})
		results = append(results, row)
	}
	return results, nil
}

type UpdateBuilder struct {
	engine   *Engine
	session  *Session
	table    *schema.Table
	guard    Guard
	set      schema.Row
	where    query.Filter
	executed bool
}

func (e *Engine) Update(s *Session, table *schema.Table, guard Guard) *UpdateBuilder {
	return &UpdateBuilder{engine: e, session: s, table: table, guard: guard}
}

func (b *UpdateBuilder) Set(set schema.Row) *UpdateBuilder {
	b.set = set
	return b
}

func (b *UpdateBuilder) Where(where query.Filter) *UpdateBuilder {
	b.where = where
	return b
}

func (b *UpdateBuilder) Returning(projection ...Projection) ([]schema.Row, error) {
	rows, err := b.run()
	if err != nil {
		return nil, err
	}
	return project(b.table, rows, projection)
}

func (b *UpdateBuilder) Exec() error {
	_, err := b.run()
	return err
}

func (b *UpdateBuilder) run() ([]schema.Row, error) {
	if b.executed {
		return nil, apperr.Validation("update on table %s already executed", b.table.Name)
	}
	b.executed = true

	if b.set == nil {
		return nil, apperr.Validation("update on table %s has no set clause", b.table.Name)
	}

	// rows outside the visibility gate are excluded as if they did not exist
	eligible, err := b.engine.Query.FindMany(
		b.session.Tx, b.table, query.FindArgs{Where: b.where}, b.guard.restrictFn(b.table),
	)
	if err != nil {
		return nil, err
	}

	results := []schema.Row{}
	for _, row := range eligible {
		updated, err := b.engine.applyUpdate(b.session, b.table, schema.RowID(row), b.set, b.guard)
		if err != nil {
			return nil, err
		}
		results = append(results, updated)
	}
	return results, nil
}

type DeleteBuilder struct {
	engine   *Engine
	session  *Session
	table    *schema.Table
	guard    Guard
	where    query.Filter
	executed bool
}

func (e *Engine) Delete(s *Session, table *schema.Table, guard Guard) *DeleteBuilder {
	return &DeleteBuilder{engine: e, session: s, table: table, guard: guard}
}

// Where narrows the delete; omitting it deletes every visible row.
func (b *DeleteBuilder) Where(where query.Filter) *DeleteBuilder {
	b.where = where
	return b
}

func (b *DeleteBuilder) Returning(projection ...Projection) ([]schema.Row, error) {
	rows, err := b.run()
	if err != nil {
		return nil, err
	}
	return project(b.table, rows, projection)
}

func (b *DeleteBuilder) Exec() error {
	_, err := b.run()
	return err
}

func (b *DeleteBuilder) run() ([]schema.Row, error) {
	if b.executed {
		return nil, apperr.Validation("delete on table %s already executed", b.table.Name)
	}
	b.executed = true

	eligible, err := b.engine.Query.FindMany(
		b.session.Tx, b.table, query.FindArgs{Where: b.where}, b.guard.restrictFn(b.table),
	)
	if err != nil {
		return nil, err
	}

	results := []schema.Row{}
	for _, row := range eligible {
		old, err := b.engine.applyDelete(b.session, b.table, schema.RowID(row))
		if err != nil {
			return nil, err
		}
		results = append(results, old)
	}
	return results, nil
}

// project applies an optional Returning projection. With none, rows come
// back whole, including the store-assigned id and creation time.
func project(table *schema.Table, rows []schema.Row, projections []Projection) ([]schema.Row, error) {
	if len(projections) == 0 {
		out := make([]schema.Row, 0, len(rows))
		for _, row := range rows {
			out = append(out, schema.CopyRow(row))
		}
		return out, nil
	}

	projection := projections[0]
	for _, col := range projection {
		if table.Column(col) == nil {
			return nil, apperr.Validation("unknown column %s in returning projection on table %s", col, table.Name)
		}
	}

	out := make([]schema.Row, 0, len(rows))
	for _, row := range rows {
		projected := schema.Row{}
		for field, col := range projection {
			projected.Set(field, row.Get(col))
		}
		out = append(out, projected)
	}
	return out, nil
}
