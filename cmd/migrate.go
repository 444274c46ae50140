package cmd

import (
	"fakturierung-recurring/database"
	"fakturierung-recurring/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.close()

		if err := database.Migrate(a.db); err != nil {
			return err
		}
		log := logger.WithComponent("migrate")
		log.Info().Msg("schema up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
