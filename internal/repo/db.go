// Package repo provides the SQLite ledger backend, an alternate
// implementation of ledger.Store backed by GORM and the pure-Go sqlite
// driver. It exists so deployments that outgrow the flat file can swap the
// backing medium without touching callers; durability and cross-process
// serialization are delegated to SQLite (WAL journal, busy timeout) instead
// of the file store's lock and backup managers.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/rmedina/go-requisition-backend/internal/domain"
)

// OpenSQLite opens (or creates) the requisition database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if the parent directory does not exist, instead of an
	// opaque sqlite "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates the requisitions table and its dedup unique index.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Requisition{})
}
