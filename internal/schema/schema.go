package schema

import (
	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/types"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

type Schema struct {
	Tables *pkg.InsertSortMap[string, *Table]
	Roles  pkg.Map[string, Role]
}

// New registers the tables, checks every declaration, and resolves relations
// into edges. All resolution failures surface here, at build time, never at
// first query.
func New(tables ...*Table) (*Schema, error) {
	schema := &Schema{
		Tables: pkg.NewInsertSortMap[string, *Table](),
		Roles:  pkg.Map[string, Role]{Public.Name: Public},
	}

	for _, table := range tables {
		if table.Name == "" {
			return nil, apperr.Schema("table name cannot be empty")
		}
		if schema.Tables.Has(table.Name) {
			return nil, apperr.Schema("duplicate table %s", table.Name)
		}
		table.Schema = schema
		schema.Tables.Push(table.Name, table)
	}

	for _, name := range schema.Tables.Sorted {
		table := schema.Tables.Get(name)
		if err := checkTableRules(schema, table); err != nil {
			return nil, err
		}
	}

	for _, name := range schema.Tables.Sorted {
		if err := resolveEdges(schema, schema.Tables.Get(name)); err != nil {
			return nil, err
		}
	}

	return schema, nil
}

func (s *Schema) Table(name string) *Table {
	return s.Tables.Get(name)
}

// DeclareRoles records roles referenced by policies but declared elsewhere.
func (s *Schema) DeclareRoles(roles ...Role) *Schema {
	for _, r := range roles {
		s.Roles.Set(r.Name, r)
	}
	return s
}

func checkTableRules(schema *Schema, table *Table) error {
	if table.Columns.Len() == 0 {
		return apperr.Schema("table %s must declare at least one column", table.Name)
	}

	for _, col_name := range table.Columns.Sorted {
		col := table.Columns.Get(col_name)
		if err := CheckColumnRules(col); err != nil {
			return err
		}
		if col.Kind == types.KindRef && !schema.Tables.Has(col.RefTable) {
			return apperr.Schema(
				"column(%s %s) on table %s references unknown table %s",
				col.Name, col.Kind, table.Name, col.RefTable,
			)
		}
	}

	seen_indexes := pkg.Map[string, bool]{}
	for _, index := range table.Indexes {
		if index.Name == "" {
			return apperr.Schema("table %s has an unnamed unique index", table.Name)
		}
		if seen_indexes.Has(index.Name) {
			return apperr.Schema("duplicate index %s on table %s", index.Name, table.Name)
		}
		seen_indexes.Set(index.Name, true)
		if len(index.Columns) == 0 {
			return apperr.Schema("index %s on table %s has no columns", index.Name, table.Name)
		}
		for _, col := range index.Columns {
			if !table.Columns.Has(col) {
				return apperr.Schema(
					"index %s on table %s references unknown column %s",
					index.Name, table.Name, col,
				)
			}
		}
	}

	for _, policy := range table.Policies {
		if policy.Name == "" {
			return apperr.Schema("table %s has an unnamed policy", table.Name)
		}
		if policy.Mode == "" {
			policy.Mode = PolicyPermissive
		}
		if policy.Mode != PolicyPermissive && policy.Mode != PolicyRestrictive {
			return apperr.Schema("policy %s on table %s has invalid mode %s", policy.Name, table.Name, policy.Mode)
		}
		for _, op := range policy.For {
			if !op.Valid() {
				return apperr.Schema("policy %s on table %s covers invalid operation %s", policy.Name, table.Name, op)
			}
		}
		if policy.Using == nil {
			return apperr.Schema("policy %s on table %s has no using predicate", policy.Name, table.Name)
		}
		for _, role := range policy.To {
			if !schema.Roles.Has(role.Name) {
				schema.Roles.Set(role.Name, role)
			}
		}
	}

	return nil
}

// resolveEdges turns declared relations into join plans. Edges are keyed by
// relation name, not table pair, so a table may declare several relations to
// the same target (including itself) without ambiguity.
func resolveEdges(schema *Schema, table *Table) error {
	for _, rel := range table.Relations {
		if rel.Name == "" {
			return apperr.Schema("table %s has an unnamed relation", table.Name)
		}
		if table.Edges.Has(rel.Name) {
			return apperr.Schema("duplicate relation %s on table %s", rel.Name, table.Name)
		}
		if rel.Target == nil || !schema.Tables.Has(rel.Target.Name) || schema.Tables.Get(rel.Target.Name) != rel.Target {
			return apperr.Schema("relation %s on table %s targets a table outside this schema", rel.Name, table.Name)
		}

		switch rel.Card {
		case CardOne:
			col := table.Columns.Get(rel.Column)
			if col == nil {
				return apperr.Schema(
					"relation %s on table %s names unknown foreign-key column %s",
					rel.Name, table.Name, rel.Column,
				)
			}
			if col.Kind == types.KindRef && col.RefTable != rel.Target.Name {
				return apperr.Schema(
					"relation %s on table %s: column %s references %s, not %s",
					rel.Name, table.Name, rel.Column, col.RefTable, rel.Target.Name,
				)
			}
			table.Edges.Set(rel.Name, &Edge{
				Name:   rel.Name,
				Source: table,
				Target: rel.Target,
				Card:   CardOne,
				Column: rel.Column,
			})
		case CardMany:
			inverse, err := findInverse(table, rel)
			if err != nil {
				return err
			}
			table.Edges.Set(rel.Name, &Edge{
				Name:   rel.Name,
				Source: table,
				Target: rel.Target,
				Card:   CardMany,
				Column: inverse.Column,
			})
		default:
			return apperr.Schema("relation %s on table %s has invalid cardinality %s", rel.Name, table.Name, rel.Card)
		}
	}
	return nil
}

// findInverse locates the one-relation on the target whose target is this
// table, matched by table identity. An explicit inverse name disambiguates
// when the target declares several.
func findInverse(table *Table, rel *Relation) (*Relation, error) {
	candidates := []*Relation{}
	for _, target_rel := range rel.Target.Relations {
		if target_rel.Card != CardOne || target_rel.Target != table {
			continue
		}
		if rel.Inverse != "" && target_rel.Name != rel.Inverse {
			continue
		}
		candidates = append(candidates, target_rel)
	}

	switch len(candidates) {
	case 0:
		return nil, apperr.Schema(
			"relation %s on table %s has no matching one-relation on table %s",
			rel.Name, table.Name, rel.Target.Name,
		)
	case 1:
		return candidates[0], nil
	}
	return nil, apperr.Schema(
		"relation %s on table %s is ambiguous: table %s declares %d one-relations back; use ManyVia",
		rel.Name, table.Name, rel.Target.Name, len(candidates),
	)
}
