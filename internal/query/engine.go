package query

import (
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
)

// Predicate is an opaque row gate conjoined with the caller's filter.
// The RLS layer supplies these; a nil predicate means unrestricted.
type Predicate func(row schema.Row) bool

// RestrictFn resolves the predicate for any table touched by a query,
// including eager-loaded relations.
type RestrictFn func(t *schema.Table) Predicate

type FindArgs struct {
	Where Filter
	// max rows to return; 0 means no limit
	Take int
	// row id of the last row of the previous page; 0 starts from the top
	Cursor int
	// relation name -> nested find args (nil args load the bare relation)
	Include map[string]*FindArgs
}

type Engine struct {
	Schema *schema.Schema
}

func NewEngine(s *schema.Schema) *Engine {
	return &Engine{Schema: s}
}

// FindMany returns rows matching args in id order. When the filter's
// equality conjuncts cover a unique index, the row is fetched through the
// index map instead of a scan; results are identical either way.
// Returned rows are copies and safe for the caller to mutate.
func (e *Engine) FindMany(tx *store.Tx, table *schema.Table, args FindArgs, restrict RestrictFn) ([]schema.Row, error) {
	if args.Where != nil {
		if err := args.Where.Validate(table); err != nil {
			return nil, err
		}
	}

	var visible Predicate
	if restrict != nil {
		visible = restrict(table)
	}

	found := e.collect(tx, table, args, visible)

	rows := make([]schema.Row, 0, len(found))
	for _, row := range found {
		rows = append(rows, schema.CopyRow(row))
	}

	if len(args.Include) > 0 {
		if err := e.eagerLoad(tx, table, rows, args.Include, restrict); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// FindOne returns the first matching row, or nil when absent.
func (e *Engine) FindOne(tx *store.Tx, table *schema.Table, where Filter, restrict RestrictFn) (schema.Row, error) {
	rows, err := e.FindMany(tx, table, FindArgs{Where: where, Take: 1}, restrict)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Count reports the number of visible matching rows.
func (e *Engine) Count(tx *store.Tx, table *schema.Table, where Filter, restrict RestrictFn) (int, error) {
	rows, err := e.FindMany(tx, table, FindArgs{Where: where}, restrict)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (e *Engine) collect(tx *store.Tx, table *schema.Table, args FindArgs, visible Predicate) []schema.Row {
	if args.Where != nil {
		if row, ok := e.probeIndexes(tx, table, args.Where); ok {
			if row == nil {
				return nil
			}
			if args.Cursor > 0 && schema.RowID(row) <= args.Cursor {
				return nil
			}
			if visible != nil && !visible(row) {
				return nil
			}
			return []schema.Row{row}
		}
	}

	found := []schema.Row{}
	for _, row := range tx.Scan(table.Name) {
		if args.Cursor > 0 && schema.RowID(row) <= args.Cursor {
			continue
		}
		if args.Where != nil && !args.Where.Match(table, row) {
			continue
		}
		if visible != nil && !visible(row) {
			continue
		}
		found = append(found, row)
		if args.Take > 0 && len(found) == args.Take {
			break
		}
	}
	return found
}

// probeIndexes answers a filter through a unique index when its equality
// conjuncts bind every indexed column. The second return is false when no
// index applies and the caller must scan. The candidate still runs through
// the full filter: the index narrows, it does not decide.
func (e *Engine) probeIndexes(tx *store.Tx, table *schema.Table, where Filter) (schema.Row, bool) {
	eq := eqConjuncts(where)
	if len(eq) == 0 {
		return nil, false
	}

	for _, index := range table.Indexes {
		values := make([]any, 0, len(index.Columns))
		covered := true
		for _, col_name := range index.Columns {
			input, ok := eq[col_name]
			if !ok {
				covered = false
				break
			}
			coerced, err := table.Column(col_name).ValidateValue(input)
			if err != nil || coerced == nil {
				covered = false
				break
			}
			values = append(values, coerced)
		}
		if !covered {
			continue
		}

		key, ok := store.IndexKeyForValues(values)
		if !ok {
			continue
		}
		id, found := tx.IndexGet(table.Name, index.Name, key)
		if !found {
			return nil, true
		}
		row, exists := tx.Get(table.Name, id)
		if !exists || !where.Match(table, row) {
			return nil, true
		}
		return row, true
	}
	return nil, false
}
