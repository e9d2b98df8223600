package schema

import (
	"github.com/JAssertz/better-convex-sub001/pkg"
)

// UniqueIndex declares that the combined values of Columns must be distinct
// across live rows. Rows with a nil value in any indexed column are never
// entered in the index, so nulls never conflict with each other.
type UniqueIndex struct {
	Name    string
	Columns []string
}

type Table struct {
	Name    string
	Columns *pkg.InsertSortMap[string, *Column]
	Indexes []*UniqueIndex

	Policies   []*Policy
	RLSEnabled bool

	Relations []*Relation
	// relation name -> resolved edge; populated by schema build
	Edges pkg.Map[string, *Edge] `json:"-"`

	Schema *Schema `json:"-"`
}

func NewTable(name string, columns ...*Column) *Table {
	t := &Table{
		Name:    name,
		Columns: pkg.NewInsertSortMap[string, *Column](),
		Indexes: []*UniqueIndex{},
		Edges:   pkg.Map[string, *Edge]{},
	}
	for _, c := range columns {
		c.Table = t
		t.Columns.Push(c.Name, c)
	}
	return t
}

func (t *Table) Unique(name string, columns ...string) *Table {
	t.Indexes = append(t.Indexes, &UniqueIndex{Name: name, Columns: columns})
	return t
}

// EnableRLS turns on row-level security for the table and registers its
// policies. A table without this call skips policy evaluation entirely.
func (t *Table) EnableRLS(policies ...*Policy) *Table {
	t.RLSEnabled = true
	t.Policies = append(t.Policies, policies...)
	return t
}

func (t *Table) Relate(relations ...*Relation) *Table {
	t.Relations = append(t.Relations, relations...)
	return t
}

// Column also resolves the two system fields so filters can target them.
func (t *Table) Column(name string) *Column {
	if t.Columns.Has(name) {
		return t.Columns.Get(name)
	}
	if sysColumns.Has(name) {
		return sysColumns.Get(name)
	}
	return nil
}

func (t *Table) Index(name string) *UniqueIndex {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return nil
}

func (t *Table) Edge(relation string) *Edge {
	return t.Edges.Get(relation)
}
