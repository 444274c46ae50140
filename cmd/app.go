package cmd

import (
	"fmt"

	"fakturierung-recurring/config"
	"fakturierung-recurring/database"
	"fakturierung-recurring/logger"
	"fakturierung-recurring/recurring"
	"fakturierung-recurring/utils"

	"gorm.io/gorm"
)

// app holds the wiring shared by every command.
type app struct {
	cfg       *config.Config
	db        *gorm.DB
	generator *recurring.Generator
	processor *recurring.Processor
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := applyNodeOverride(cfg, snowflakeNode); err != nil {
		return nil, err
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return nil, fmt.Errorf("logger setup failed: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}

	numbers, err := utils.NewInvoiceNumbers(cfg.SnowflakeNode)
	if err != nil {
		return nil, err
	}
	generator := recurring.NewGenerator(numbers)
	processor := recurring.NewProcessor(
		database.NewRecurringStore(db),
		generator,
		recurring.WithWorkers(cfg.RecurringBatchWorkers),
		recurring.WithLogger(logger.WithComponent("recurring-batch")),
	)

	return &app{cfg: cfg, db: db, generator: generator, processor: processor}, nil
}

// applyNodeOverride replaces the configured snowflake node with the
// --snowflake-node flag. A negative flag keeps SNOWFLAKE_NODE.
func applyNodeOverride(cfg *config.Config, node int64) error {
	if node < 0 {
		return nil
	}
	if node > 1023 {
		return fmt.Errorf("--snowflake-node must be between 0 and 1023")
	}
	cfg.SnowflakeNode = node
	return nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
