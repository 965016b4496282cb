package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/config"
	"github.com/tbourn/legis-office-backend/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	db, err := Open(config.DBConfig{Driver: "oracle"})
	if err == nil || db != nil {
		t.Fatalf("expected error for unknown driver, got db=%v err=%v", db, err)
	}
}

func TestOpen_DefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legis.db")
	db, err := Open(config.DBConfig{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if db.Dialector.Name() != "sqlite" {
		t.Fatalf("expected sqlite dialector, got %q", db.Dialector.Name())
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var journalMode string
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{
		&domain.Invitation{}, &domain.Profile{}, &domain.Topic{},
		&domain.Expression{}, &domain.Petition{}, &domain.AuditRecord{}, &domain.Idempotency{},
	} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	inv := &domain.Invitation{
		ID: "i1", Email: "a@b.c", InvitationCode: "1234", GivenName: "Ana",
		Role: domain.RoleUser, CreatedBy: "u1", ExpiresAt: now.Add(time.Hour),
		Status: domain.InvitationPending,
	}
	if err := db.Create(inv).Error; err != nil {
		t.Fatalf("insert invitation: %v", err)
	}
	var got domain.Invitation
	if err := db.First(&got, "id = ?", "i1").Error; err != nil || got.Email != "a@b.c" {
		t.Fatalf("readback invitation failed: err=%v got=%+v", err, got)
	}

	// Migrating twice is a no-op.
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("second AutoMigrate: %v", err)
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	// Hold one connection so the query below runs on a second one.
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer conn.Close()

	var fk, busy int
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fk); err != nil || fk != 1 {
		t.Fatalf("foreign_keys = %d, err %v", fk, err)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busy); err != nil || busy != 5000 {
		t.Fatalf("busy_timeout = %d, err %v", busy, err)
	}
}

func TestSQLiteDSN(t *testing.T) {
	if got := sqliteDSN("app.db"); !strings.HasPrefix(got, "app.db?_pragma=") {
		t.Fatalf("dsn = %q", got)
	}
	if got := sqliteDSN("file:app.db?mode=rwc"); !strings.HasPrefix(got, "file:app.db?mode=rwc&_pragma=") {
		t.Fatalf("dsn = %q", got)
	}
	if n := strings.Count(sqliteDSN("x.db"), "_pragma="); n != len(sqlitePragmas) {
		t.Fatalf("want %d pragmas, got %d", len(sqlitePragmas), n)
	}
}

var _ func(string) (*gorm.DB, error) = OpenSQLite
