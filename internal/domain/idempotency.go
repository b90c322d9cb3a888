package domain

import "time"

// Submission ledger states.
const (
	SubmissionStarted   = "started"
	SubmissionSucceeded = "succeeded"
	SubmissionFailed    = "failed"
)

// Idempotency records one create submission, keyed by (operator, resource,
// key). It lets a retried or double-clicked submit be answered with the record
// the first submission produced instead of creating a second one.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	OperatorID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_operator_resource_key,priority:1"`
	Resource   string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_operator_resource_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_operator_resource_key,priority:3"`
	RecordID   string    `gorm:"type:TEXT NOT NULL;default:''"`
	State      string    `gorm:"type:TEXT NOT NULL"`
	LastError  string    `gorm:"type:TEXT NOT NULL;default:''"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoUpdateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Expired reports whether the record is past its TTL at now.
func (i Idempotency) Expired(now time.Time) bool { return !now.Before(i.ExpiresAt) }
