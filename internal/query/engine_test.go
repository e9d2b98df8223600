package query_test

import (
	"testing"

	"gotest.tools/assert"

	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	users := schema.NewTable("users",
		schema.Text("name").NotNull(),
		schema.Text("email").NotNull(),
		schema.Int("age"),
		schema.Text("bio"),
	).Unique("users_email", "email")

	posts := schema.NewTable("posts",
		schema.Text("title").NotNull(),
		schema.Bool("published").Default(false),
		schema.Ref("author", "users"),
	)
	posts.Relate(schema.One("author", users, "author"))
	users.Relate(schema.ManyVia("posts", posts, "author"))

	s, err := schema.New(users, posts)
	assert.NilError(t, err)
	return s
}

func testStore(t *testing.T, s *schema.Schema) *store.Store {
	t.Helper()
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
	return st
}

func seedUsers(t *testing.T, tx *store.Tx) {
	t.Helper()
	rows := []schema.Row{
		{"name": "ada", "email": "ada@example.com", "age": 36, "bio": "analyst"},
		{"name": "grace", "email": "grace@example.com", "age": 45, "bio": nil},
		{"name": "alan", "email": "alan@example.com", "age": 41, "bio": "logician"},
		{"name": "edsger", "email": "edsger@example.com", "age": 28, "bio": nil},
	}
	for _, row := range rows {
		_, err := tx.Insert("users", row)
		assert.NilError(t, err)
	}
}

func names(rows []schema.Row) []string {
	out := []string{}
	for _, row := range rows {
		out = append(out, row.Get("name").(string))
	}
	return out
}

func TestFindMany(t *testing.T) {
	s := testSchema(t)
	st := testStore(t, s)
	eng := query.NewEngine(s)
	users := s.Table("users")

	tx := st.BeginWrite()
	seedUsers(t, tx)
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	t.Run("no filter returns everything in id order", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"ada", "grace", "alan", "edsger"})
	})

	t.Run("comparison operators", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{Where: query.Gt("age", 36)}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"grace", "alan"})

		rows, err = eng.FindMany(read, users, query.FindArgs{Where: query.Lte("age", 36)}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"ada", "edsger"})
	})

	t.Run("between is inclusive", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{Where: query.Between("age", 36, 41)}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"ada", "alan"})
	})

	t.Run("notBetween excludes nulls too", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{Where: query.NotBetween("bio", "a", "z")}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{})
	})

	t.Run("isNull", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{Where: query.IsNull("bio")}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"grace", "edsger"})
	})

	t.Run("isNull rejected on required columns", func(t *testing.T) {
		_, err := eng.FindMany(read, users, query.FindArgs{Where: query.IsNull("name")}, nil)
		assert.ErrorContains(t, err, "non-nullable")
	})

	t.Run("in array", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.In("name", "ada", "edsger", "nobody"),
		}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"ada", "edsger"})
	})

	t.Run("combinators", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.Or(
				query.And(query.Gte("age", 40), query.Not(query.IsNull("bio"))),
				query.Eq("name", "edsger"),
			),
		}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, names(rows), []string{"alan", "edsger"})
	})

	t.Run("unknown column fails validation", func(t *testing.T) {
		_, err := eng.FindMany(read, users, query.FindArgs{Where: query.Eq("nope", 1)}, nil)
		assert.ErrorContains(t, err, "unknown column nope")
	})

	t.Run("nil comparison value fails validation", func(t *testing.T) {
		_, err := eng.FindMany(read, users, query.FindArgs{Where: query.Eq("bio", nil)}, nil)
		assert.ErrorContains(t, err, "use IsNull")
	})

	t.Run("returned rows are copies", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{Where: query.Eq("name", "ada")}, nil)
		assert.NilError(t, err)
		rows[0].Set("name", "mangled")

		again, err := eng.FindOne(read, users, query.Eq("email", "ada@example.com"), nil)
		assert.NilError(t, err)
		assert.Equal(t, again.Get("name"), "ada")
	})
}

func TestIndexProbe(t *testing.T) {
	s := testSchema(t)
	st := testStore(t, s)
	eng := query.NewEngine(s)
	users := s.Table("users")

	tx := st.BeginWrite()
	seedUsers(t, tx)
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	t.Run("probe and scan agree", func(t *testing.T) {
		probed, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.Eq("email", "grace@example.com"),
		}, nil)
		assert.NilError(t, err)

		scanned, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.Or(query.Eq("email", "grace@example.com")),
		}, nil)
		assert.NilError(t, err)
		assert.DeepEqual(t, probed, scanned)
	})

	t.Run("probe respects extra conjuncts", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.And(query.Eq("email", "grace@example.com"), query.Lt("age", 40)),
		}, nil)
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 0)
	})

	t.Run("definitive miss", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.Eq("email", "absent@example.com"),
		}, nil)
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 0)
	})
}

func TestPagination(t *testing.T) {
	s := testSchema(t)
	st := testStore(t, s)
	eng := query.NewEngine(s)
	users := s.Table("users")

	tx := st.BeginWrite()
	seedUsers(t, tx)
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	page, err := eng.FindMany(read, users, query.FindArgs{Take: 2}, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, names(page), []string{"ada", "grace"})

	cursor := schema.RowID(page[len(page)-1])
	page, err = eng.FindMany(read, users, query.FindArgs{Take: 2, Cursor: cursor}, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, names(page), []string{"alan", "edsger"})

	cursor = schema.RowID(page[len(page)-1])
	page, err = eng.FindMany(read, users, query.FindArgs{Take: 2, Cursor: cursor}, nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, names(page), []string{})
}

func TestCountAndFindOne(t *testing.T) {
	s := testSchema(t)
	st := testStore(t, s)
	eng := query.NewEngine(s)
	users := s.Table("users")

	tx := st.BeginWrite()
	seedUsers(t, tx)
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	count, err := eng.Count(read, users, query.Gte("age", 36), nil)
	assert.NilError(t, err)
	assert.Equal(t, count, 3)

	row, err := eng.FindOne(read, users, query.Eq("name", "grace"), nil)
	assert.NilError(t, err)
	assert.Equal(t, row.Get("email"), "grace@example.com")

	row, err = eng.FindOne(read, users, query.Eq("name", "nobody"), nil)
	assert.NilError(t, err)
	assert.Assert(t, row == nil)
}

func TestRestrict(t *testing.T) {
	s := testSchema(t)
	st := testStore(t, s)
	eng := query.NewEngine(s)
	users := s.Table("users")

	tx := st.BeginWrite()
	seedUsers(t, tx)
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	only_young := func(table *schema.Table) query.Predicate {
		return func(row schema.Row) bool {
			age, _ := row.Get("age").(int)
			return age < 40
		}
	}

	rows, err := eng.FindMany(read, users, query.FindArgs{}, only_young)
	assert.NilError(t, err)
	assert.DeepEqual(t, names(rows), []string{"ada", "edsger"})

	t.Run("applies on the index probe path too", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.Eq("email", "grace@example.com"),
		}, only_young)
		assert.NilError(t, err)
		assert.Equal(t, len(rows), 0)
	})
}

func TestEagerLoad(t *testing.T) {
	s := testSchema(t)
	st := testStore(t, s)
	eng := query.NewEngine(s)
	users := s.Table("users")
	posts := s.Table("posts")

	tx := st.BeginWrite()
	seedUsers(t, tx)
	post_rows := []schema.Row{
		{"title": "on computable numbers", "published": true, "author": 3},
		{"title": "notes on the engine", "published": true, "author": 1},
		{"title": "drafts", "published": false, "author": 1},
		{"title": "orphaned", "published": true, "author": nil},
	}
	for _, row := range post_rows {
		_, err := tx.Insert("posts", row)
		assert.NilError(t, err)
	}
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	t.Run("one relation attaches the target row", func(t *testing.T) {
		rows, err := eng.FindMany(read, posts, query.FindArgs{
			Include: map[string]*query.FindArgs{"author": nil},
		}, nil)
		assert.NilError(t, err)

		author := rows[0].Get("author").(schema.Row)
		assert.Equal(t, author.Get("name"), "alan")

		t.Run("null fk loads as nil", func(t *testing.T) {
			assert.Assert(t, rows[3].Get("author") == nil)
		})
	})

	t.Run("many relation attaches slices", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Include: map[string]*query.FindArgs{"posts": nil},
		}, nil)
		assert.NilError(t, err)

		ada_posts := rows[0].Get("posts").([]schema.Row)
		assert.Equal(t, len(ada_posts), 2)
		assert.Equal(t, ada_posts[0].Get("title"), "notes on the engine")

		t.Run("no matches loads an empty slice", func(t *testing.T) {
			grace_posts := rows[1].Get("posts").([]schema.Row)
			assert.Equal(t, len(grace_posts), 0)
		})
	})

	t.Run("nested where filters the loaded side", func(t *testing.T) {
		rows, err := eng.FindMany(read, users, query.FindArgs{
			Where: query.Eq("name", "ada"),
			Include: map[string]*query.FindArgs{
				"posts": {Where: query.Eq("published", true)},
			},
		}, nil)
		assert.NilError(t, err)
		ada_posts := rows[0].Get("posts").([]schema.Row)
		assert.Equal(t, len(ada_posts), 1)
		assert.Equal(t, ada_posts[0].Get("title"), "notes on the engine")
	})

	t.Run("unknown relation fails", func(t *testing.T) {
		_, err := eng.FindMany(read, posts, query.FindArgs{
			Include: map[string]*query.FindArgs{"nope": nil},
		}, nil)
		assert.ErrorContains(t, err, "unknown relation")
	})
}

func TestSelfJoin(t *testing.T) {
	nodes := schema.NewTable("nodes",
		schema.Text("label").NotNull(),
		schema.Ref("parent_id", "nodes"),
	)
	nodes.Relate(
		schema.One("parent", nodes, "parent_id"),
		schema.ManyVia("children", nodes, "parent"),
	)
	s, err := schema.New(nodes)
	assert.NilError(t, err)

	st := testStore(t, s)
	eng := query.NewEngine(s)

	tx := st.BeginWrite()
	root_id, err := tx.Insert("nodes", schema.Row{"label": "root", "parent_id": nil})
	assert.NilError(t, err)
	for _, label := range []string{"left", "right"} {
		_, err := tx.Insert("nodes", schema.Row{"label": label, "parent_id": root_id})
		assert.NilError(t, err)
	}
	assert.NilError(t, tx.Commit())

	read := st.BeginRead()
	defer read.Rollback()

	rows, err := eng.FindMany(read, nodes, query.FindArgs{
		Include: map[string]*query.FindArgs{
			"parent":   nil,
			"children": nil,
		},
	}, nil)
	assert.NilError(t, err)

	root := rows[0]
	assert.Assert(t, root.Get("parent") == nil)
	assert.Equal(t, len(root.Get("children").([]schema.Row)), 2)

	left := rows[1]
	assert.Equal(t, left.Get("parent").(schema.Row).Get("label"), "root")
	assert.Equal(t, len(left.Get("children").([]schema.Row)), 0)
}
