package query

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// eagerLoad attaches related rows under each requested relation name.
// One batched lookup per relation, never one per row. Restriction applies
// to the related table, so invisible related rows come back absent.
func (e *Engine) eagerLoad(tx *store.Tx, table *schema.Table, rows []schema.Row, include map[string]*FindArgs, restrict RestrictFn) error {
	for rel_name, nested := range include {
		edge := table.Edge(rel_name)
		if edge == nil {
			return apperr.Validation("unknown relation %s on table %s", rel_name, table.Name)
		}

		args := FindArgs{}
		if nested != nil {
			args.Where = nested.Where
			args.Include = nested.Include
		}

		var err error
		switch edge.Card {
		case schema.CardOne:
			err = e.loadOne(tx, edge, rows, args, restrict)
		case schema.CardMany:
			err = e.loadMany(tx, edge, rows, args, restrict)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// loadOne resolves fk column values on the source rows to target rows by id.
func (e *Engine) loadOne(tx *store.Tx, edge *schema.Edge, rows []schema.Row, args FindArgs, restrict RestrictFn) error {
	ids := distinctInts(rows, edge.Column)
	if len(ids) == 0 {
		for _, row := range rows {
			row.Set(edge.Name, nil)
		}
		return nil
	}

	where := Filter(In(schema.SysFieldID, ids...))
	if args.Where != nil {
		where = And(where, args.Where)
	}
	related, err := e.FindMany(tx, edge.Target, FindArgs{Where: where, Include: args.Include}, restrict)
	if err != nil {
		return err
	}

	by_id := pkg.Map[int, schema.Row]{}
	for _, rel := range related {
		by_id.Set(schema.RowID(rel), rel)
	}
	for _, row := range rows {
		fk := row.Get(edge.Column)
		if fk == nil {
			row.Set(edge.Name, nil)
			continue
		}
		if match := by_id.Get(pkg.NumToInt(fk)); match != nil {
			row.Set(edge.Name, match)
		} else {
			row.Set(edge.Name, nil)
		}
	}
	return nil
}

// loadMany finds target rows whose fk column points back at the source rows
// and groups them per source id.
func (e *Engine) loadMany(tx *store.Tx, edge *schema.Edge, rows []schema.Row, args FindArgs, restrict RestrictFn) error {
	source_ids := make([]any, 0, len(rows))
	for _, row := range rows {
		source_ids = append(source_ids, schema.RowID(row))
	}
	if len(source_ids) == 0 {
		return nil
	}

	where := Filter(In(edge.Column, source_ids...))
	if args.Where != nil {
		where = And(where, args.Where)
	}
	related, err := e.FindMany(tx, edge.Target, FindArgs{Where: where, Include: args.Include}, restrict)
	if err != nil {
		return err
	}

	grouped := pkg.Map[int, []schema.Row]{}
	for _, rel := range related {
		fk := pkg.NumToInt(rel.Get(edge.Column))
		grouped.Set(fk, append(grouped.Get(fk), rel))
	}
	for _, row := range rows {
		group := grouped.Get(schema.RowID(row))
		if group == nil {
			group = []schema.Row{}
		}
		row.Set(edge.Name, group)
	}
	return nil
}

func distinctInts(rows []schema.Row, column string) []any {
	seen := pkg.Map[int, bool]{}
	out := []any{}
	for _, row := range rows {
		v := row.Get(column)
		if v == nil {
			continue
		}
		id := pkg.NumToInt(v)
		if seen.Has(id) {
			continue
		}
		seen.Set(id, true)
		out = append(out, id)
	}
	return out
}
