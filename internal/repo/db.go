// Package repo implements the data persistence layer for imported tweets,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and schema creation.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/twola/internal/domain"
)

// pragmas run on every new database handle. WAL lets the web pages read
// while an import commits; busy_timeout makes a second writer wait.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

const (
	maxOpenConns    = 4
	connMaxIdleTime = 5 * time.Minute
)

// OpenSQLite opens (or creates) the tweet database at path. The parent
// directory must exist. DSNs starting with "file:" and ":memory:" are passed
// through untouched.
func OpenSQLite(path string) (*gorm.DB, error) {
	if !isDSN(path) {
		if dir := filepath.Dir(path); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, err
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// Spans for every query; a no-op unless a tracer provider is installed.
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxOpenConns)
		sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	}

	return db, nil
}

// AutoMigrate creates the tweets table and its indexes if they are absent.
// It never drops or rewrites existing rows.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Tweet{})
}

func isDSN(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file:")
}
