package cmd

import (
	"fmt"
	"os"

	"fakturierung-recurring/logger"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

// snowflakeNode overrides SNOWFLAKE_NODE when >= 0.
var snowflakeNode int64

var rootCmd = &cobra.Command{
	Use:   "fakturierung-recurring",
	Short: "Recurring invoice engine for the Fakturierung API",
	Long: `Recurring invoice engine for the Fakturierung API.

It serves the recurring definition API, generates invoices for due
definitions on a cron schedule and exposes the same batch as a one-shot
command for external schedulers.

Configuration is read from the environment (and a .env file if present).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Int64Var(&snowflakeNode, "snowflake-node", -1,
		"invoice number generator node (0-1023); every concurrently running process needs its own")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}
