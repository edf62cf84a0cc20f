package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mergington/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string
	DSN    string
	// Logger receives GORM's SQL log. Nil keeps GORM silent.
	Logger *zap.Logger
	// LogLevel filters what reaches Logger; zero means logger.Warn.
	LogLevel logger.LogLevel
}

// Open creates the process-wide database handle. Callers own it and pass it
// to whatever needs it; tests open their own ":memory:" handle the same way.
func Open(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(cfg.DSN)
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormLog := logger.Default.LogMode(logger.Silent)
	if cfg.Logger != nil {
		level := cfg.LogLevel
		if level == 0 {
			level = logger.Warn
		}
		gormLog = NewGormLogger(cfg.Logger, level, SlowQueryThreshold)
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialector.Name(), err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == DriverSQLite {
		// SQLite has a single writer, and an in-memory database lives only as
		// long as its one connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
	}

	return gdb, nil
}

// InitDB creates missing tables and seeds the activities once. Calling it
// again on a populated database is a no-op.
func InitDB(ctx context.Context, gdb *gorm.DB) error {
	tx := gdb.WithContext(ctx)
	if err := tx.AutoMigrate(&models.Activity{}, &models.Participant{}); err != nil {
		return fmt.Errorf("could not create tables: %w", err)
	}

	var n int64
	if err := tx.Model(&models.Activity{}).Count(&n).Error; err != nil {
		return fmt.Errorf("could not count activities: %w", err)
	}
	if n > 0 {
		return nil
	}

	seed := SeedActivities()
	if err := tx.Create(&seed).Error; err != nil {
		return fmt.Errorf("could not seed activities: %w", err)
	}
	return nil
}

// Close releases the pool behind gdb.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
