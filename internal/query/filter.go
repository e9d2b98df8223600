package query

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
)

// Filter is a declarative row predicate. Built from the comparison
// constructors below and combined with And/Or/Not. A filter is checked
// against the table's column kinds before any row is touched.
type Filter interface {
	Validate(t *schema.Table) error
	Match(t *schema.Table, row schema.Row) bool
}

type cmpOp string

const (
	opEq  cmpOp = "eq"
	opGt  cmpOp = "gt"
	opGte cmpOp = "gte"
	opLt  cmpOp = "lt"
	opLte cmpOp = "lte"
)

type cmpFilter struct {
	col   string
	op    cmpOp
	value any
}

func Eq(column string, value any) Filter  { return &cmpFilter{column, opEq, value} }
func Gt(column string, value any) Filter  { return &cmpFilter{column, opGt, value} }
func Gte(column string, value any) Filter { return &cmpFilter{column, opGte, value} }
func Lt(column string, value any) Filter  { return &cmpFilter{column, opLt, value} }
func Lte(column string, value any) Filter { return &cmpFilter{column, opLte, value} }

func (f *cmpFilter) Validate(t *schema.Table) error {
	col := t.Column(f.col)
	if col == nil {
		return apperr.Validation("unknown column %s in filter on table %s", f.col, t.Name)
	}
	if f.value == nil {
		return apperr.Validation("nil comparison value for column %s; use IsNull", f.col)
	}
	if _, err := col.ValidateValue(f.value); err != nil {
		return err
	}
	return nil
}

func (f *cmpFilter) Match(t *schema.Table, row schema.Row) bool {
	col := t.Column(f.col)
	if col == nil {
		return false
	}
	stored := row.Get(f.col)
	if f.op == opEq {
		return col.Equal(stored, f.value)
	}

	input, err := col.ValidateValue(f.value)
	if err != nil {
		return false
	}
	cmp, ok := col.OrderCompare(stored, input)
	if !ok {
		return false
	}
	switch f.op {
	case opGt:
		return cmp > 0
	case opGte:
		return cmp >= 0
	case opLt:
		return cmp < 0
	case opLte:
		return cmp <= 0
	}
	return false
}

type betweenFilter struct {
	col    string
	lo, hi any
	negate bool
}

func Between(column string, lo, hi any) Filter {
	return &betweenFilter{col: column, lo: lo, hi: hi}
}

func NotBetween(column string, lo, hi any) Filter {
	return &betweenFilter{col: column, lo: lo, hi: hi, negate: true}
}

func (f *betweenFilter) Validate(t *schema.Table) error {
	col := t.Column(f.col)
	if col == nil {
		return apperr.Validation("unknown column %s in filter on table %s", f.col, t.Name)
	}
	if f.lo == nil || f.hi == nil {
		return apperr.Validation("nil bound for between on column %s", f.col)
	}
	for _, v := range []any{f.lo, f.hi} {
		if _, err := col.ValidateValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (f *betweenFilter) Match(t *schema.Table, row schema.Row) bool {
	col := t.Column(f.col)
	if col == nil {
		return false
	}
	stored := row.Get(f.col)
	if stored == nil {
		return false
	}
	lo, err := col.ValidateValue(f.lo)
	if err != nil {
		return false
	}
	hi, err := col.ValidateValue(f.hi)
	if err != nil {
		return false
	}
	cmp_lo, ok := col.OrderCompare(stored, lo)
	if !ok {
		return false
	}
	cmp_hi, ok := col.OrderCompare(stored, hi)
	if !ok {
		return false
	}
	in_range := cmp_lo >= 0 && cmp_hi <= 0
	if f.negate {
		return !in_range
	}
	return in_range
}

type isNullFilter struct {
	col string
}

// IsNull matches rows whose column holds no value.
// Rejected at validation time for non-nullable columns.
func IsNull(column string) Filter { return &isNullFilter{column} }

func (f *isNullFilter) Validate(t *schema.Table) error {
	col := t.Column(f.col)
	if col == nil {
		return apperr.Validation("unknown column %s in filter on table %s", f.col, t.Name)
	}
	if col.NotNullable {
		return apperr.Validation("IsNull on non-nullable column %s", f.col)
	}
	return nil
}

func (f *isNullFilter) Match(t *schema.Table, row schema.Row) bool {
	return row.Get(f.col) == nil
}

type inFilter struct {
	col    string
	values []any
}

func In(column string, values ...any) Filter { return &inFilter{column, values} }

func (f *inFilter) Validate(t *schema.Table) error {
	col := t.Column(f.col)
	if col == nil {
		return apperr.Validation("unknown column %s in filter on table %s", f.col, t.Name)
	}
	for _, v := range f.values {
		if v == nil {
			return apperr.Validation("nil value in In list for column %s", f.col)
		}
		if _, err := col.ValidateValue(v); err != nil {
			return err
		}
	}
	return nil
}

func (f *inFilter) Match(t *schema.Table, row schema.Row) bool {
	col := t.Column(f.col)
	if col == nil {
		return false
	}
	stored := row.Get(f.col)
	for _, v := range f.values {
		if col.Equal(stored, v) {
			return true
		}
	}
	return false
}

type andFilter struct{ filters []Filter }
type orFilter struct{ filters []Filter }
type notFilter struct{ filter Filter }

func And(filters ...Filter) Filter { return &andFilter{filters} }
func Or(filters ...Filter) Filter  { return &orFilter{filters} }
func Not(filter Filter) Filter     { return &notFilter{filter} }

func (f *andFilter) Validate(t *schema.Table) error {
	for _, sub := range f.filters {
		if err := sub.Validate(t); err != nil {
			return err
		}
	}
	return nil
}

func (f *andFilter) Match(t *schema.Table, row schema.Row) bool {
	for _, sub := range f.filters {
		if !sub.Match(t, row) {
			return false
		}
	}
	return true
}

func (f *orFilter) Validate(t *schema.Table) error {
	for _, sub := range f.filters {
		if err := sub.Validate(t); err != nil {
			return err
		}
	}
	return nil
}

func (f *orFilter) Match(t *schema.Table, row schema.Row) bool {
	for _, sub := range f.filters {
		if sub.Match(t, row) {
			return true
		}
	}
	return false
}

func (f *notFilter) Validate(t *schema.Table) error {
	return f.filter.Validate(t)
}

func (f *notFilter) Match(t *schema.Table, row schema.Row) bool {
	return !f.filter.Match(t, row)
}

// eqConjuncts extracts the equality constraints reachable without passing
// through Or/Not: the part of the filter an index probe can answer.
func eqConjuncts(f Filter) map[string]any {
	out := map[string]any{}
	collectEq(f, out)
	return out
}

func collectEq(f Filter, out map[string]any) {
	switch f := f.(type) {
	case *cmpFilter:
		if f.op == opEq {
			out[f.col] = f.value
		}
	case *andFilter:
		for _, sub := range f.filters {
			collectEq(sub, out)
		}
	}
}
