package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_TableName(t *testing.T) {
	if got := (Idempotency{}).TableName(); got != "idempotency" {
		t.Fatalf("TableName() = %q; want idempotency", got)
	}
}

func TestIdempotency_Migration_UniqueKeyPerOperatorResource(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !db.Migrator().HasIndex(&Idempotency{}, "ux_operator_resource_key") {
		t.Fatalf("expected composite index ux_operator_resource_key")
	}

	now := time.Now().UTC()
	rec := func(id, resource string) *Idempotency {
		return &Idempotency{
			ID:         id,
			OperatorID: "op1",
			Resource:   resource,
			Key:        "k1",
			State:      SubmissionStarted,
			ExpiresAt:  now.Add(time.Hour),
		}
	}
	if err := db.Create(rec("a", "enquiries")).Error; err != nil {
		t.Fatalf("insert a: %v", err)
	}
	// same key on another resource is a different submission
	if err := db.Create(rec("b", "contacts")).Error; err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := db.Create(rec("c", "enquiries")).Error; err == nil {
		t.Fatalf("expected unique violation for duplicate (operator, resource, key)")
	}
}

func TestIdempotency_Expired(t *testing.T) {
	now := time.Now()
	if (Idempotency{ExpiresAt: now.Add(time.Second)}).Expired(now) {
		t.Fatalf("future expiry reported expired")
	}
	if !(Idempotency{ExpiresAt: now}).Expired(now) {
		t.Fatalf("expiry at now must count as expired")
	}
}
