// Package repo implements the gateway's local persistence, backed by GORM.
// The only table is the submission ledger; dashboard records themselves live
// upstream.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edulead/enquirydesk/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// ledgerPragmas are applied by the driver to every pooled connection. WAL
// lets the idempotency middleware read while a coordinator records an
// outcome.
const ledgerPragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"

// OpenSQLite opens (or creates) the ledger database at path. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("ledger dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?"+ledgerPragmas), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// one ledger row per submit
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// AutoMigrate creates or updates the ledger schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Idempotency{})
}
