package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/db"
)

func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			conn, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(conn, cfg.DBDriver); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations done")
			return nil
		},
	}
}

func migrateDB(a *App) error {
	return db.Migrate(a.DB, a.Cfg.DBDriver)
}
