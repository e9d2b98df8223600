package mutation

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
	"github.com/JAssertz/better-convex-sub001/internal/types"
)

// Guard carries the row-level gates the RLS layer wants applied to a
// mutation. The zero Guard is unrestricted; that is the skip-rules path.
type Guard struct {
	// Visible gates which existing rows an update/delete may touch.
	Visible func(row schema.Row) bool
	// CheckWrite gates the row a write would produce.
	CheckWrite func(row schema.Row) error
}

func (g Guard) restrictFn(table *schema.Table) query.RestrictFn {
	if g.Visible == nil {
		return nil
	}
	return func(t *schema.Table) query.Predicate {
		if t != table {
			return nil
		}
		return g.Visible
	}
}

type Engine struct {
	Schema *schema.Schema
	Query  *query.Engine
}

func NewEngine(s *schema.Schema, q *query.Engine) *Engine {
	return &Engine{Schema: s, Query: q}
}

// materializeInsert builds the full candidate row: explicit values are
// coerced, absent columns fall back to the default producer, then the
// on-update producer, then nil. Missing required columns fail here, before
// any write is attempted.
func (e *Engine) materializeInsert(table *schema.Table, input schema.Row) (schema.Row, error) {
	if err := checkKnownColumns(table, input); err != nil {
		return nil, err
	}

	row := schema.Row{}
	for _, col_name := range table.Columns.Sorted {
		col := table.Columns.Get(col_name)
		value, supplied := input[col_name]
		if !supplied || value == nil {
			switch {
			case col.HasDefault():
				value = col.DefaultValue()
			case col.HasOnUpdate():
				value = col.OnUpdateValue()
			default:
				value = nil
			}
		}
		coerced, err := col.ValidateValue(value)
		if err != nil {
			return nil, err
		}
		row.Set(col_name, coerced)
	}
	return row, nil
}

// materializePatch coerces an explicit set and fires on-update producers for
// every hooked column the set does not name.
func (e *Engine) materializePatch(table *schema.Table, set schema.Row) (schema.Row, error) {
	if err := checkKnownColumns(table, set); err != nil {
		return nil, err
	}

	patch := schema.Row{}
	for _, col_name := range table.Columns.Sorted {
		col := table.Columns.Get(col_name)
		if value, supplied := set[col_name]; supplied {
			coerced, err := col.ValidateValue(value)
			if err != nil {
				return nil, err
			}
			patch.Set(col_name, coerced)
		} else if col.HasOnUpdate() {
			coerced, err := col.ValidateValue(col.OnUpdateValue())
			if err != nil {
				return nil, err
			}
			patch.Set(col_name, coerced)
		}
	}
	return patch, nil
}

func checkKnownColumns(table *schema.Table, input schema.Row) error {
	for key := range input {
		if key == schema.SysFieldID || key == schema.SysFieldCreated {
			return apperr.Validation("column %s on table %s is store-assigned", key, table.Name)
		}
		if !table.Columns.Has(key) {
			return apperr.Validation("unknown column %s on table %s", key, table.Name)
		}
	}
	return nil
}

// probeIndex looks for a live row conflicting with the candidate under one
// index. excludeID ignores the row being updated. Candidates with a nil
// value in any indexed column never conflict.
func (e *Engine) probeIndex(tx *store.Tx, table *schema.Table, index *schema.UniqueIndex, candidate schema.Row, excludeID int) (int, bool) {
	spec := store.IndexSpec{Name: index.Name, Columns: index.Columns}
	key, ok := store.IndexKeyFor(spec, candidate)
	if !ok {
		return 0, false
	}
	id, found := tx.IndexGet(table.Name, index.Name, key)
	if !found || id == excludeID {
		return 0, false
	}
	return id, true
}

// findConflict probes every index except skip, returning the first conflict.
func (e *Engine) findConflict(tx *store.Tx, table *schema.Table, candidate schema.Row, excludeID int, skip string) (int, *schema.UniqueIndex) {
	for _, index := range table.Indexes {
		if index.Name == skip {
			continue
		}
		if id, found := e.probeIndex(tx, table, index, candidate, excludeID); found {
			return id, index
		}
	}
	return 0, nil
}

// indexesTouchedBy reports the indexes whose columns intersect the patch.
func indexesTouchedBy(table *schema.Table, patch schema.Row) []*schema.UniqueIndex {
	touched := []*schema.UniqueIndex{}
	for _, index := range table.Indexes {
		for _, col := range index.Columns {
			if patch.Has(col) {
				touched = append(touched, index)
				break
			}
		}
	}
	return touched
}

// applyUpdate runs the full update path for one row: hooks, coercion,
// uniqueness on touched indexes, write gate, then the patch itself.
func (e *Engine) applyUpdate(s *Session, table *schema.Table, id int, set schema.Row, guard Guard) (schema.Row, error) {
	old, ok := s.Tx.Get(table.Name, id)
	if !ok {
		return nil, apperr.NotFound("no row %d in table %s", id, table.Name)
	}

	patch, err := e.materializePatch(table, set)
	if err != nil {
		return nil, err
	}

	candidate := schema.CopyRow(old)
	for k, v := range patch {
		candidate.Set(k, v)
	}

	for _, index := range indexesTouchedBy(table, patch) {
		if _, found := e.probeIndex(s.Tx, table, index, candidate, id); found {
			return nil, apperr.Uniqueness(
				"value for unique index %s already exists on table %s", index.Name, table.Name,
			)
		}
	}

	if guard.CheckWrite != nil {
		if err := guard.CheckWrite(candidate); err != nil {
			return nil, err
		}
	}

	updated, err := s.Tx.Patch(table.Name, id, patch)
	if err != nil {
		return nil, err
	}
	s.PushChange(Change{
		Op:    types.OpUpdate,
		Table: table.Name,
		ID:    id,
		Old:   schema.CopyRow(old),
		New:   schema.CopyRow(updated),
	})
	return updated, nil
}

func (e *Engine) applyDelete(s *Session, table *schema.Table, id int) (schema.Row, error) {
	old, ok := s.Tx.Delete(table.Name, id)
	if !ok {
		return nil, apperr.NotFound("no row %d in table %s", id, table.Name)
	}
	s.PushChange(Change{
		Op:    types.OpDelete,
		Table: table.Name,
		ID:    id,
		Old:   schema.CopyRow(old),
	})
	return old, nil
}
