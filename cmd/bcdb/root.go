package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "bcdb",
	Short: "A constraint-aware document database server",
	Long: `bcdb serves typed tables, relational queries and policy-gated
mutations over websocket connections.

Examples:

  bcdb serve
  bcdb serve --config bcdb.yaml
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// .env is optional; env vars may come from anywhere
		godotenv.Load()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("❌", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bcdb.yaml", "path to config file")
	rootCmd.AddCommand(serveCmd)
}
