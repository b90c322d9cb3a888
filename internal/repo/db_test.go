package repo

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edulead/enquirydesk/internal/domain"
)

func TestOpenSQLite_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no-such-dir", "ledger.db")

	db, err := OpenSQLite(path)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("db=%v err=%v; want fs.ErrNotExist", db, err)
	}
	if !strings.Contains(err.Error(), "ledger dir") {
		t.Fatalf("error should name the ledger dir: %v", err)
	}
}

func TestOpenSQLite_ConfiguresLedger(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	pragmas := []struct {
		name, want string
	}{
		{"journal_mode", "wal"},
		{"busy_timeout", "5000"},
		{"synchronous", "1"},
	}
	for _, p := range pragmas {
		var got string
		if err := db.Raw("PRAGMA " + p.name).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", p.name, err)
		}
		if strings.ToLower(got) != p.want {
			t.Fatalf("PRAGMA %s = %q; want %q", p.name, got, p.want)
		}
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 4 {
		t.Fatalf("MaxOpenConnections = %d", got)
	}
}

func TestAutoMigrate_CreatesLedgerTable(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	// migrating twice is a no-op
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&domain.Idempotency{}) {
		t.Fatalf("ledger table missing")
	}
	for _, col := range []string{"operator_id", "resource", "key", "state", "expires_at"} {
		if !m.HasColumn(&domain.Idempotency{}, col) {
			t.Fatalf("ledger column %s missing", col)
		}
	}
}
