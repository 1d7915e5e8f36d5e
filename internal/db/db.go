// Package db opens the gorm connection for the configured driver and owns
// the schema migrations.
package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"actpath-backend/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database described by c and configures the pool.
func Open(c config.DBConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(c.Driver) {
	case DriverPostgres:
		dialector = postgres.Open(c.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(sqliteDSN(c.Path))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	if strings.EqualFold(c.Driver, DriverSQLite) {
		// SQLite has a single writer; one connection keeps transactions from
		// tripping over each other with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(c.Pool.MaxOpenConns)
		sqlDB.SetMaxIdleConns(c.Pool.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(c.Pool.ConnMaxLifetime) * time.Second)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return gdb, nil
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sqliteDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?_foreign_keys=on"
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
}
