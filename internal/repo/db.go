// Package repo implements the movie record stores and idempotency
// persistence on top of GORM and the pure-Go SQLite driver.
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

	"github.com/tbourn/go-movies-backend/internal/domain"
)

// DefaultDSN is a named, shared in-memory database: every pooled connection
// sees the same data and nothing survives a restart.
const DefaultDSN = "file:movies?mode=memory&cache=shared"

const maxOpenConns = 10

var (
	basePragmas = []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	// WAL needs a file on disk.
	filePragmas = []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
)

// OpenSQLite opens or creates the database at dsn (DefaultDSN when empty),
// installs the GORM tracing plugin, applies pragmas and sizes the pool.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	memory := isMemoryDSN(dsn)
	if !memory {
		// SQLite creates the file but not its directory.
		if dir := filepath.Dir(dsn); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, fmt.Errorf("database directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, fmt.Errorf("tracing plugin: %w", err)
	}

	pragmas := basePragmas
	if !memory {
		pragmas = append(append([]string{}, basePragmas...), filePragmas...)
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxOpenConns)
	if memory {
		// The shared in-memory database dies with its last connection.
		sqlDB.SetConnMaxIdleTime(0)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates the movies and idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Movie{}, &domain.Idempotency{})
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}
