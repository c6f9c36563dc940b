package command

import (
	"github.com/spf13/cobra"

	"geminichat/database"
)

func newMigrateCmd(e *env) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(e.cfg, e.log)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := database.RunMigrations(sqlDB, e.log); err != nil {
				return err
			}
			okColor.Fprintln(cmd.OutOrStdout(), "✓ migrations applied")
			return nil
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(e.cfg, e.log)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := database.RollbackMigration(sqlDB, e.log); err != nil {
				return err
			}
			warnColor.Fprintln(cmd.OutOrStdout(), "✓ rolled back one migration")
			return nil
		},
	})

	return migrateCmd
}
