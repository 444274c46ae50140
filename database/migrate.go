package database

import (
	"fmt"

	"fakturierung-recurring/models"

	"gorm.io/gorm"
)

// Migrate applies the (idempotent) schema migrations:
// - AutoMigrate (tables/columns)
// - Partial index backing the due-set query
// - CHECK constraints mirroring the definition invariants
func Migrate(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(
			&models.Account{},
			&models.User{},
			&models.Client{},
			&models.RecurringDefinition{},
			&models.RecurringItemGroup{},
			&models.RecurringItem{},
			&models.Invoice{},
			&models.InvoiceItem{},
			&models.InvoiceEvent{},
			&models.IdempotencyKey{},
		); err != nil {
			return fmt.Errorf("automigrate failed: %w", err)
		}

		indexes := []string{
			`CREATE INDEX IF NOT EXISTS idx_recurring_due ON recurring_definitions (next_run_at, id) WHERE status = 'ACTIVE'`,
			`CREATE INDEX IF NOT EXISTS idx_invoices_account_issue_date ON invoices (account_id, issue_date DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice_position ON invoice_items (invoice_id, position)`,
		}
		for _, stmt := range indexes {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index migration failed on: %s - %w", stmt, err)
			}
		}

		checks := []struct {
			table, name, expr string
		}{
			{"recurring_definitions", "chk_recurring_status", `status IN ('ACTIVE','PAUSED','CANCELED')`},
			{"recurring_definitions", "chk_recurring_frequency", `frequency IN ('WEEKLY','BIWEEKLY','MONTHLY','QUARTERLY','YEARLY')`},
			{"recurring_definitions", "chk_recurring_due_days", `due_days > 0`},
			{"recurring_definitions", "chk_recurring_discount", `discount_value >= 0 AND (discount_type <> 'PERCENTAGE' OR discount_value <= 100)`},
			{"recurring_definitions", "chk_recurring_tax_rate", `tax_rate >= 0 AND tax_rate <= 100`},
			{"recurring_definitions", "chk_recurring_next_run", `next_run_at >= start_date`},
			{"recurring_definitions", "chk_recurring_end_date", `end_date IS NULL OR end_date >= start_date`},
			{"recurring_items", "chk_recurring_items_quantity", `quantity > 0`},
			{"recurring_items", "chk_recurring_items_unit_price", `unit_price >= 0`},
			{"invoices", "chk_invoices_status", `status IN ('DRAFT','SENT')`},
			{"invoices", "chk_invoices_sent_at", `(status = 'SENT') = (sent_at IS NOT NULL)`},
			{"invoices", "chk_invoices_total", `total = subtotal - discount_amount + tax_amount`},
		}
		for _, c := range checks {
			stmt := fmt.Sprintf(`
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_constraint
		WHERE conrelid = '%s'::regclass
		  AND conname  = '%s'
	) THEN
		ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);
	END IF;
END $$;`, c.table, c.name, c.table, c.name, c.expr)
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("check constraint %s failed: %w", c.name, err)
			}
		}
		return nil
	})
}
