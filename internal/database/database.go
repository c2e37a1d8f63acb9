package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/catalog/internal/config"
	"github.com/example/catalog/internal/models"
)

// Options configures Open.
type Options struct {
	Driver   string
	DSN      string
	LogLevel string
	Log      *logrus.Logger // nil silences gorm
}

// Connect opens the configured database and runs migrations.
func Connect(cfg *config.Config, log *logrus.Logger) (*gorm.DB, error) {
	db, err := Open(Options{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DatabaseURL,
		LogLevel: cfg.DBLogLevel,
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return db, nil
}

// Open returns a gorm handle for the driver without migrating.
func Open(opts Options) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         newGormLogger(opts.Log, opts.LogLevel),
		TranslateError: true,
	}

	switch opts.Driver {
	case config.DriverPostgres:
		if err := ensureDatabase(opts.DSN); err != nil {
			return nil, fmt.Errorf("failed to ensure database: %w", err)
		}
		conn, err := gorm.Open(postgres.Open(opts.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil && opts.Log != nil {
			opts.Log.Warnf("failed to ensure uuid-ossp extension: %v", err)
		}
		return conn, nil

	case config.DriverSQLite:
		conn, err := gorm.Open(sqlite.Open(opts.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// SQLite has a single writer; one connection keeps tree mutations
		// serialized and the foreign_keys pragma in effect.
		sqlDB.SetMaxOpenConns(1)
		if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
		return conn, nil
	}

	return nil, fmt.Errorf("unsupported driver %q", opts.Driver)
}

// Migrate creates or updates the catalog tables. Order matters: products
// reference both brands and categories.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.Category{},
		&models.Brand{},
		&models.Product{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	return nil
}

// Ping checks that the underlying connection is alive.
func Ping(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func newGormLogger(log *logrus.Logger, level string) logger.Interface {
	if log == nil {
		return logger.Default.LogMode(logger.Silent)
	}

	lvl := logger.Warn
	switch strings.ToLower(level) {
	case "silent":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "info":
		lvl = logger.Info
	}

	return logger.New(log.WithField("component", "gorm"), logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  lvl,
		IgnoreRecordNotFoundError: true,
	})
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}
