package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/promorang/internal/config"
	"github.com/MarkoPoloResearchLab/promorang/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/promorang/internal/store/migrations"
	"github.com/glebarez/sqlite"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

type database struct {
	gorm   *gorm.DB
	sql    *sql.DB
	driver string
}

func (db *database) close() error {
	return db.sql.Close()
}

// reader returns an sqlx handle sharing the GORM connection pool.
func (db *database) reader() *sqlx.DB {
	if db.driver == driverPostgres {
		return sqlx.NewDb(db.sql, "pgx")
	}
	return sqlx.NewDb(db.sql, "sqlite3")
}

func openDatabase(ctx context.Context, dsn string) (*database, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, err
	}

	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)}
	var db *gorm.DB
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), cfg)
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		// SQLite has a single writer; row locks are not available.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &database{gorm: db.WithContext(ctx), sql: sqlDB, driver: driver}, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "promorang.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// prepareSchema auto-migrates SQLite; Postgres uses the versioned migrations
// and only when asked to.
func prepareSchema(db *database, applyMigrations bool, logger *zap.Logger) error {
	switch db.driver {
	case driverSQLite:
		if err := db.gorm.AutoMigrate(gormstore.Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	case driverPostgres:
		if !applyMigrations {
			return nil
		}
		if err := migrations.Up(db.sql); err != nil {
			return err
		}
		version, dirty, err := migrations.Version(db.sql)
		if err != nil {
			return err
		}
		logger.Info("schema migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}

func runMigrations(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = db.close() }()
	return prepareSchema(db, true, logger)
}
