package mutation_test

import (
	"testing"
	"time"

	"gotest.tools/assert"

	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
	"github.com/JAssertz/better-convex-sub001/internal/types"
)

type fixture struct {
	schema *schema.Schema
	store  *store.Store
	engine *mutation.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := schema.NewTable("users",
		schema.Text("name").NotNull(),
		schema.Text("email").NotNull(),
		schema.Enum("plan", "free", "pro").Default("free"),
		schema.Int("age"),
		schema.BigInt("updated_at").OnUpdateFn(func() any { return time.Now().UnixMilli() }),
	).Unique("users_email", "email")

	accounts := schema.NewTable("accounts",
		schema.Text("provider").NotNull(),
		schema.Text("external_id").NotNull(),
		schema.Text("note"),
	).Unique("accounts_identity", "provider", "external_id")

	s, err := schema.New(users, accounts)
	assert.NilError(t, err)

	settings, err := store.NewWriteSettings("", true, 1000)
	assert.NilError(t, err)
	st, err := store.NewStore(settings)
	assert.NilError(t, err)
	for _, name := range s.Tables.Sorted {
		table := s.Tables.Get(name)
		specs := make([]store.IndexSpec, 0, len(table.Indexes))
		for _, idx := range table.Indexes {
			specs = append(specs, store.IndexSpec{Name: idx.Name, Columns: idx.Columns})
		}
		st.CreateTable(name, specs...)
	}

	q := query.NewEngine(s)
	return &fixture{schema: s, store: st, engine: mutation.NewEngine(s, q)}
}

func (f *fixture) session() *mutation.Session {
	return mutation.NewSession(f.store.BeginWrite(), schema.Actor{Subject: "test"})
}

func TestInsert(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	t.Run("applies defaults and assigns sys fields", func(t *testing.T) {
		s := f.session()
		defer s.Tx.Rollback()

		rows, err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "tobs", "email": "tobs@example.com"}).
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, rows[0].Get("plan"), "free")
		assert.Assert(t, schema.RowID(rows[0]) > 0)
		assert.Assert(t, schema.RowCreatedAt(rows[0]) > 0)
		assert.Equal(t, s.PendingChanges(), 1)
	})

	t.Run("missing required column fails", func(t *testing.T) {
		s := f.session()
		defer s.Tx.Rollback()

		err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"email": "anon@example.com"}).
			Exec()
		assert.ErrorContains(t, err, "missing value for required column name")
		assert.Assert(t, apperr.IsKind(err, apperr.KindValidation))
	})

	t.Run("unknown and system columns are rejected", func(t *testing.T) {
		s := f.session()
		defer s.Tx.Rollback()

		err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "x", "email": "x@example.com", "nope": 1}).
			Exec()
		assert.ErrorContains(t, err, "unknown column nope")

		err = f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "x", "email": "x@example.com", "_id": 9}).
			Exec()
		assert.ErrorContains(t, err, "store-assigned")
	})

	t.Run("second terminal call fails", func(t *testing.T) {
		s := f.session()
		defer s.Tx.Rollback()

		b := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "once", "email": "once@example.com"})
		assert.NilError(t, b.Exec())
		assert.ErrorContains(t, b.Exec(), "already executed")
	})
}

func TestUniqueness(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")
	accounts := f.schema.Table("accounts")

	s := f.session()
	defer s.Tx.Rollback()

	assert.NilError(t, f.engine.Insert(s, users, mutation.Guard{}).
		Values(schema.Row{"name": "tobs", "email": "tobs@example.com"}).
		Exec())

	t.Run("duplicate insert fails", func(t *testing.T) {
		err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "other", "email": "tobs@example.com"}).
			Exec()
		assert.ErrorContains(t, err, "users_email")
		assert.Assert(t, apperr.IsKind(err, apperr.KindUniqueness))
	})

	t.Run("composite index conflicts on the full tuple only", func(t *testing.T) {
		assert.NilError(t, f.engine.Insert(s, accounts, mutation.Guard{}).
			Values(schema.Row{"provider": "github", "external_id": "1"}).
			Exec())

		// same provider, different external id
		assert.NilError(t, f.engine.Insert(s, accounts, mutation.Guard{}).
			Values(schema.Row{"provider": "github", "external_id": "2"}).
			Exec())

		err := f.engine.Insert(s, accounts, mutation.Guard{}).
			Values(schema.Row{"provider": "github", "external_id": "1"}).
			Exec()
		assert.ErrorContains(t, err, "accounts_identity")
	})

	t.Run("null columns never conflict", func(t *testing.T) {
		free := schema.NewTable("profiles",
			schema.Text("handle"),
		).Unique("profiles_handle", "handle")
		s2, err := schema.New(free)
		assert.NilError(t, err)

		settings, err := store.NewWriteSettings("", true, 1000)
		assert.NilError(t, err)
		st, err := store.NewStore(settings)
		assert.NilError(t, err)
		st.CreateTable("profiles", store.IndexSpec{Name: "profiles_handle", Columns: []string{"handle"}})

		eng := mutation.NewEngine(s2, query.NewEngine(s2))
		sess := mutation.NewSession(st.BeginWrite(), schema.Actor{})
		defer sess.Tx.Rollback()

		table := s2.Table("profiles")
		assert.NilError(t, eng.Insert(sess, table, mutation.Guard{}).
			Values(schema.Row{"handle": nil}, schema.Row{"handle": nil}).
			Exec())
	})
}

func TestOnConflict(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	s := f.session()
	defer s.Tx.Rollback()

	existing, err := f.engine.Insert(s, users, mutation.Guard{}).
		Values(schema.Row{"name": "tobs", "email": "tobs@example.com", "age": 20}).
		Returning()
	assert.NilError(t, err)
	existing_id := schema.RowID(existing[0])

	t.Run("do nothing skips the conflicting input", func(t *testing.T) {
		before := s.Tx.Len("users")
		rows, err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(
				schema.Row{"name": "dup", "email": "tobs@example.com"},
				schema.Row{"name": "fresh", "email": "fresh@example.com"},
			).
			OnConflictDoNothing("users_email").
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, rows[0].Get("name"), "fresh")
		assert.Equal(t, s.Tx.Len("users"), before+1)

		row, _ := s.Tx.Get("users", existing_id)
		assert.Equal(t, row.Get("name"), "tobs")
	})

	t.Run("do update patches the conflicting row", func(t *testing.T) {
		before := s.Tx.Len("users")
		rows, err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "ignored", "email": "tobs@example.com"}).
			OnConflictDoUpdate("users_email", schema.Row{"age": 21}).
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, schema.RowID(rows[0]), existing_id)
		assert.Equal(t, rows[0].Get("age"), 21)
		assert.Equal(t, rows[0].Get("name"), "tobs")
		assert.Equal(t, s.Tx.Len("users"), before)
	})

	t.Run("do update answers to the conflict guard", func(t *testing.T) {
		hidden := mutation.Guard{Visible: func(row schema.Row) bool { return false }}
		err := f.engine.Insert(s, users, mutation.Guard{}).
			ConflictGuard(hidden).
			Values(schema.Row{"name": "ignored", "email": "tobs@example.com"}).
			OnConflictDoUpdate("users_email", schema.Row{"age": 99}).
			Exec()
		assert.Assert(t, apperr.IsKind(err, apperr.KindAuthorization))

		row, _ := s.Tx.Get("users", existing_id)
		assert.Equal(t, row.Get("age"), 21)
	})

	t.Run("conflict guard gates the patched candidate", func(t *testing.T) {
		no_minors := mutation.Guard{CheckWrite: func(row schema.Row) error {
			if row.Get("age").(int) < 18 {
				return apperr.Authorization("minors not allowed on table %s", "users")
			}
			return nil
		}}
		err := f.engine.Insert(s, users, mutation.Guard{}).
			ConflictGuard(no_minors).
			Values(schema.Row{"name": "ignored", "email": "tobs@example.com"}).
			OnConflictDoUpdate("users_email", schema.Row{"age": 12}).
			Exec()
		assert.Assert(t, apperr.IsKind(err, apperr.KindAuthorization))

		row, _ := s.Tx.Get("users", existing_id)
		assert.Equal(t, row.Get("age"), 21)
	})

	t.Run("unknown conflict target fails", func(t *testing.T) {
		err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "x", "email": "x@example.com"}).
			OnConflictDoNothing("not_an_index").
			Exec()
		assert.ErrorContains(t, err, "not an index")
	})
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	s := f.session()
	defer s.Tx.Rollback()

	seed, err := f.engine.Insert(s, users, mutation.Guard{}).
		Values(
			schema.Row{"name": "ada", "email": "ada@example.com", "age": 36},
			schema.Row{"name": "grace", "email": "grace@example.com", "age": 45},
		).
		Returning()
	assert.NilError(t, err)

	t.Run("set merges into matching rows", func(t *testing.T) {
		rows, err := f.engine.Update(s, users, mutation.Guard{}).
			Where(query.Eq("name", "ada")).
			Set(schema.Row{"plan": "pro"}).
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, rows[0].Get("plan"), "pro")
		assert.Equal(t, rows[0].Get("age"), 36)
	})

	t.Run("on update hook fires when unset", func(t *testing.T) {
		rows, err := f.engine.Update(s, users, mutation.Guard{}).
			Where(query.Eq("name", "ada")).
			Set(schema.Row{"age": 37}).
			Returning()
		assert.NilError(t, err)
		assert.Assert(t, rows[0].Get("updated_at") != nil)
	})

	t.Run("nil where updates everything", func(t *testing.T) {
		rows, err := f.engine.Update(s, users, mutation.Guard{}).
			Set(schema.Row{"plan": "free"}).
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 2)
	})

	t.Run("uniqueness applies to updated values", func(t *testing.T) {
		err := f.engine.Update(s, users, mutation.Guard{}).
			Where(query.Eq("name", "grace")).
			Set(schema.Row{"email": "ada@example.com"}).
			Exec()
		assert.ErrorContains(t, err, "users_email")
	})

	t.Run("rewriting a row to its own unique value passes", func(t *testing.T) {
		err := f.engine.Update(s, users, mutation.Guard{}).
			Where(query.Eq("name", "grace")).
			Set(schema.Row{"email": "grace@example.com"}).
			Exec()
		assert.NilError(t, err)
	})

	t.Run("missing set clause fails", func(t *testing.T) {
		err := f.engine.Update(s, users, mutation.Guard{}).
			Where(query.Eq("name", "ada")).
			Exec()
		assert.ErrorContains(t, err, "no set clause")
	})

	_ = seed
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	s := f.session()
	defer s.Tx.Rollback()

	assert.NilError(t, f.engine.Insert(s, users, mutation.Guard{}).
		Values(
			schema.Row{"name": "ada", "email": "ada@example.com"},
			schema.Row{"name": "grace", "email": "grace@example.com"},
		).
		Exec())

	t.Run("where narrows the delete", func(t *testing.T) {
		rows, err := f.engine.Delete(s, users, mutation.Guard{}).
			Where(query.Eq("name", "ada")).
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, rows[0].Get("name"), "ada")
		assert.Equal(t, s.Tx.Len("users"), 1)
	})

	t.Run("deleted rows are unindexed", func(t *testing.T) {
		assert.NilError(t, f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "ada again", "email": "ada@example.com"}).
			Exec())
	})

	t.Run("no where deletes everything", func(t *testing.T) {
		assert.NilError(t, f.engine.Delete(s, users, mutation.Guard{}).Exec())
		assert.Equal(t, s.Tx.Len("users"), 0)
	})
}

func TestReturningProjection(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	s := f.session()
	defer s.Tx.Rollback()

	t.Run("projects named columns", func(t *testing.T) {
		rows, err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "tobs", "email": "tobs@example.com"}).
			Returning(mutation.Projection{"who": "name", "id": "_id"})
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, rows[0].Get("who"), "tobs")
		assert.Assert(t, rows[0].Get("id") != nil)
		assert.Assert(t, !rows[0].Has("email"))
	})

	t.Run("unknown projection column fails", func(t *testing.T) {
		_, err := f.engine.Insert(s, users, mutation.Guard{}).
			Values(schema.Row{"name": "x", "email": "x2@example.com"}).
			Returning(mutation.Projection{"y": "nope"})
		assert.ErrorContains(t, err, "unknown column nope")
	})
}

func TestGuards(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	deny_pro := mutation.Guard{
		CheckWrite: func(row schema.Row) error {
			if row.Get("plan") == "pro" {
				return apperr.Authorization("pro plan is gated")
			}
			return nil
		},
	}

	s := f.session()
	defer s.Tx.Rollback()

	t.Run("check write gates inserts", func(t *testing.T) {
		err := f.engine.Insert(s, users, deny_pro).
			Values(schema.Row{"name": "x", "email": "x@example.com", "plan": "pro"}).
			Exec()
		assert.ErrorContains(t, err, "pro plan is gated")
		assert.Assert(t, apperr.IsKind(err, apperr.KindAuthorization))
	})

	t.Run("visible gates which rows mutate", func(t *testing.T) {
		assert.NilError(t, f.engine.Insert(s, users, mutation.Guard{}).
			Values(
				schema.Row{"name": "mine", "email": "mine@example.com"},
				schema.Row{"name": "theirs", "email": "theirs@example.com"},
			).
			Exec())

		only_mine := mutation.Guard{
			Visible: func(row schema.Row) bool { return row.Get("name") == "mine" },
		}
		rows, err := f.engine.Update(s, users, only_mine).
			Set(schema.Row{"age": 1}).
			Returning()
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 1)
		assert.Equal(t, rows[0].Get("name"), "mine")
	})
}

func TestChangeQueue(t *testing.T) {
	f := newFixture(t)
	users := f.schema.Table("users")

	s := f.session()
	defer s.Tx.Rollback()

	assert.NilError(t, f.engine.Insert(s, users, mutation.Guard{}).
		Values(schema.Row{"name": "a", "email": "a@example.com"}).
		Exec())
	assert.NilError(t, f.engine.Update(s, users, mutation.Guard{}).
		Set(schema.Row{"age": 1}).
		Exec())
	assert.NilError(t, f.engine.Delete(s, users, mutation.Guard{}).Exec())

	first, ok := s.PopChange()
	assert.Assert(t, ok)
	assert.Equal(t, first.Op, types.OpInsert)
	assert.Assert(t, first.Old == nil)
	assert.Equal(t, first.New.Get("name"), "a")

	second, _ := s.PopChange()
	assert.Equal(t, second.Op, types.OpUpdate)
	assert.Equal(t, second.Old.Get("age"), nil)
	assert.Equal(t, second.New.Get("age"), 1)

	third, _ := s.PopChange()
	assert.Equal(t, third.Op, types.OpDelete)
	assert.Assert(t, third.New == nil)

	_, ok = s.PopChange()
	assert.Assert(t, !ok)
}
