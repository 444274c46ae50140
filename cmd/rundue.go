package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"fakturierung-recurring/logger"
	"fakturierung-recurring/recurring"
	"fakturierung-recurring/schedule"

	"github.com/spf13/cobra"
)

var runDueCmd = &cobra.Command{
	Use:   "run-due",
	Short: "Generate invoices for every due recurring definition once",
	Long: `Generate invoices for every recurring definition that is due and advance
its schedule. Each definition is committed on its own; failures are
reported and picked up again by the next run.

Results are printed as JSON. The command exits non-zero when any
definition failed.`,
	Example: `  # Process today's due set
  fakturierung-recurring run-due

  # Process the due set as of a given date
  fakturierung-recurring run-due --at 2025-06-30`,
	RunE: runDue,
}

func init() {
	rootCmd.AddCommand(runDueCmd)

	runDueCmd.Flags().String("at", "", "Run date (format: YYYY-MM-DD, default: today)")
}

func runDue(cmd *cobra.Command, args []string) error {
	atStr, _ := cmd.Flags().GetString("at")

	now := time.Now().UTC()
	if atStr != "" {
		at, err := schedule.ParseDate(atStr)
		if err != nil {
			return fmt.Errorf("invalid --at date. Use YYYY-MM-DD: %w", err)
		}
		now = at
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	defer a.close()

	log := logger.WithComponent("run-due")
	log.Info().Str("run_date", now.Format(time.DateOnly)).Msg("processing due recurring definitions")

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.RecurringBatchTimeout)
	defer cancel()

	results, err := a.processor.ProcessDue(ctx, now)
	if err != nil {
		return err
	}

	summary := recurring.Summarize(results)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{
		"run_date": now.Format(time.DateOnly),
		"summary":  summary,
		"results":  results,
	}); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d recurring definitions failed", summary.Failed, summary.Total)
	}
	return nil
}
