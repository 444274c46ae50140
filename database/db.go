package database

import (
	"fmt"
	"time"

	"fakturierung-recurring/config"
	"fakturierung-recurring/logger"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect opens the postgres pool described by cfg and stores it in DB.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	log := logger.WithComponent("database")

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.New(gormWriter{log: log}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	log.Info().Int("max_open_conns", cfg.DBMaxOpenConns).Msg("database connected")
	DB = db
	return db, nil
}

// gormWriter routes gorm's slow-query and error lines into zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}
