// Package database opens gorm connections for the SQL essay store drivers.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	storeopts "github.com/kart-io/essay-qa/pkg/options/store"
)

// Open opens a gorm connection for opts.Driver and verifies it with a ping.
func Open(ctx context.Context, opts *storeopts.Options) (*gorm.DB, error) {
	if opts == nil {
		return nil, fmt.Errorf("store options cannot be nil")
	}

	dialector, err := Dialector(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(LogLevel(opts.LogLevel), 200*time.Millisecond),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", opts.Driver, err)
	}

	return db, nil
}

// Dialector returns the gorm dialector for a store driver.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case storeopts.DriverSQLite:
		return sqlite.Open(dsn), nil
	case storeopts.DriverMySQL:
		return mysql.Open(dsn), nil
	case storeopts.DriverPostgres:
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("driver %q is not a SQL driver", driver)
	}
}

// Close closes the underlying sql.DB.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LogLevel maps the numeric store.log-level option to a gorm log level.
func LogLevel(level int) gormlogger.LogLevel {
	switch level {
	case 2:
		return gormlogger.Error
	case 3:
		return gormlogger.Warn
	case 4:
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}
