package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JAssertz/better-convex-sub001/internal/config"
	"github.com/JAssertz/better-convex-sub001/internal/conn"
	"github.com/JAssertz/better-convex-sub001/internal/engine"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
	"github.com/JAssertz/better-convex-sub001/internal/store"
	"github.com/JAssertz/better-convex-sub001/internal/trigger"
	"github.com/JAssertz/better-convex-sub001/internal/types"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the database server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		pkg.SetupLogger(cfg.ParsedLogLevel())

		s, err := appSchema()
		if err != nil {
			return err
		}

		settings, err := store.NewWriteSettings(cfg.DataDir, cfg.InMem, cfg.WriteIntervalMs)
		if err != nil {
			return err
		}

		db, err := engine.Open(s, settings)
		if err != nil {
			return err
		}
		registerTriggers(db)

		server := conn.NewServer(db)
		if cfg.Root.Username == "" {
			return fmt.Errorf("a root user is required; set root in %s or BCDB_ROOT_USERNAME", configPath)
		}
		server.AddRootUser(cfg.Root.Username, cfg.Root.Password)

		server.Listen(cfg.Port)
		return nil
	},
}

// appSchema declares the tables this server instance exposes.
func appSchema() (*schema.Schema, error) {
	users := schema.NewTable("users",
		schema.Text("first_name").NotNull(),
		schema.Text("last_name").NotNull(),
		schema.Text("full_name"),
		schema.Text("email").NotNull(),
		schema.Enum("plan", "free", "pro").Default("free"),
	).Unique("users_email", "email")

	posts := schema.NewTable("posts",
		schema.Text("title").NotNull(),
		schema.Text("body"),
		schema.Bool("published").Default(false),
		schema.Text("owner").NotNull(),
		schema.Ref("author", "users"),
	).Relate(
		schema.One("author", users, "author"),
	).EnableRLS(
		&schema.Policy{
			Name: "posts_public_read",
			For:  []types.Operation{types.OpSelect},
			Using: func(actor schema.Actor, row schema.Row) bool {
				return row.Get("published") == true
			},
		},
		&schema.Policy{
			Name: "posts_owner_all",
			Using: func(actor schema.Actor, row schema.Row) bool {
				return row.Get("owner") == actor.Subject
			},
		},
		&schema.Policy{
			Name: "posts_editor_read",
			Mode: schema.PolicyRestrictive,
			For:  []types.Operation{types.OpDelete},
			To:   []schema.Role{schema.NewRole("editor")},
			Using: func(actor schema.Actor, row schema.Row) bool {
				return actor.HasRole("editor")
			},
		},
	)

	users.Relate(schema.ManyVia("posts", posts, "author"))

	return schema.New(users, posts)
}

// registerTriggers keeps users.full_name in sync with the name parts.
func registerTriggers(db *engine.DB) {
	db.Triggers.Register("users", func(ctx *trigger.Ctx, change mutation.Change) error {
		if change.Op == types.OpDelete {
			return nil
		}
		first, _ := change.New.Get("first_name").(string)
		last, _ := change.New.Get("last_name").(string)
		full := strings.TrimSpace(first + " " + last)
		if change.New.Get("full_name") == full {
			return nil
		}
		_, err := ctx.Update("users",
			query.Eq(schema.SysFieldID, change.ID),
			schema.Row{"full_name": full})
		return err
	})
}
