package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recall-chat/recall/db"
	"github.com/recall-chat/recall/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending database migrations",
	Long: `Applies all pending schema migrations to the configured PostgreSQL
database. The serve command also runs migrations on startup; this command
exists for deploy pipelines that migrate before rolling out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
