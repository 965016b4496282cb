package services

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/legis-office-backend/internal/config"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection serializes statements so concurrent tests exercise the
	// conditional writes rather than SQLite's table locking.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newInviteSvc(t *testing.T, db *gorm.DB, now time.Time) *InvitationService {
	t.Helper()
	s := NewInvitationService(db, config.InviteConfig{ExpirationDays: 7, CodeDigits: 4})
	s.Now = func() time.Time { return now }
	return s
}

func seedProfile(t *testing.T, db *gorm.DB, email string) *domain.Profile {
	t.Helper()
	p := &domain.Profile{ID: uuid.NewString(), Email: email, PasswordHash: "x", Role: domain.RoleUser}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	return p
}

func mustGetInvitation(t *testing.T, db *gorm.DB, email string) domain.Invitation {
	t.Helper()
	var inv domain.Invitation
	if err := db.Where("email = ?", email).First(&inv).Error; err != nil {
		t.Fatalf("load invitation %s: %v", email, err)
	}
	return inv
}
