package schema

type Cardinality string

const (
	CardOne  Cardinality = "one"
	CardMany Cardinality = "many"
)

// Relation is a declared association between two tables. Targets are
// referenced by value so self-referential and mutually-referential tables
// resolve without name lookups.
type Relation struct {
	Name    string
	Target  *Table
	Card    Cardinality
	Column  string // foreign-key column on the owning table; one-relations only
	Inverse string // name of the matching one-relation; optional disambiguation
}

// One declares the owning side: fkColumn on this table holds ids of target rows.
func One(name string, target *Table, fkColumn string) *Relation {
	return &Relation{Name: name, Target: target, Card: CardOne, Column: fkColumn}
}

// Many declares the inverse of a one-relation on the target table.
// The matching one-relation is located by target-table identity.
func Many(name string, target *Table) *Relation {
	return &Relation{Name: name, Target: target, Card: CardMany}
}

// ManyVia names the inverse one-relation explicitly, for targets that declare
// more than one relation back to this table.
func ManyVia(name string, target *Table, inverse string) *Relation {
	return &Relation{Name: name, Target: target, Card: CardMany, Inverse: inverse}
}

// Edge is a resolved relation: the join plan for one traversal direction.
// For one-edges Column lives on Source; for many-edges it lives on Target
// and holds Source row ids.
type Edge struct {
	Name   string
	Source *Table
	Target *Table
	Card   Cardinality
	Column string
}
