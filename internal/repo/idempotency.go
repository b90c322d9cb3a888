// This file holds the submission ledger: one row per (operator, resource,
// key) recording whether a create submission is in flight, succeeded or
// failed. Rows expire after a TTL so keys can eventually be reused.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edulead/enquirydesk/internal/domain"
)

// ErrDuplicate indicates that a ledger row already exists for the given
// (operator, resource, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired ledger row or ErrNotFound.
func GetIdempotency(ctx context.Context, db *gorm.DB, operatorID, resource, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("operator_id = ? AND resource = ? AND key = ? AND expires_at > ?", operatorID, resource, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency inserts a started row and returns ErrDuplicate on unique
// violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, operatorID, resource, key string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		OperatorID: operatorID,
		Resource:   resource,
		Key:        key,
		State:      domain.SubmissionStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// MarkIdempotency moves row id from one of the from states to state. It
// returns ErrNotFound when no row matched, which callers treat as a lost
// race.
func MarkIdempotency(ctx context.Context, db *gorm.DB, id, state, recordID, lastError string, from ...string) error {
	q := db.WithContext(ctx).Model(&domain.Idempotency{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("state IN ?", from)
	}
	res := q.Updates(map[string]any{
		"state":      state,
		"record_id":  recordID,
		"last_error": lastError,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredIdempotency deletes rows whose TTL has passed at now.
func PurgeExpiredIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

func isUniqueViolation(err error) bool {
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

// Ledger is the gorm-backed submission ledger.
type Ledger struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewLedger returns a Ledger whose rows live for ttl.
func NewLedger(db *gorm.DB, ttl time.Duration) *Ledger {
	return &Ledger{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Claim reserves key for a new submission.
//
// fresh is true when the caller owns the submission and must later call
// Succeed or Fail. Otherwise rec is the existing row: a succeeded row carries
// the record id to replay, a started row means another submission is in
// flight. A failed row is reclaimed for a new attempt.
func (l *Ledger) Claim(ctx context.Context, operatorID, resource, key string) (rec *domain.Idempotency, fresh bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		rec, err = GetIdempotency(ctx, l.db, operatorID, resource, key, l.now())
		switch {
		case err == nil:
			if rec.State != domain.SubmissionFailed {
				return rec, false, nil
			}
			err = MarkIdempotency(ctx, l.db, rec.ID, domain.SubmissionStarted, "", "", domain.SubmissionFailed)
			if err == nil {
				rec.State = domain.SubmissionStarted
				rec.LastError = ""
				return rec, true, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return nil, false, err
			}
			// Someone else reclaimed it; look again.
			continue
		case errors.Is(err, ErrNotFound):
		default:
			return nil, false, err
		}

		// Expired rows still hold the unique slot.
		if err := l.db.WithContext(ctx).
			Where("operator_id = ? AND resource = ? AND key = ? AND expires_at <= ?", operatorID, resource, key, l.now()).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return nil, false, err
		}
		rec, err = CreateIdempotency(ctx, l.db, operatorID, resource, key, l.ttl)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, false, err
		}
	}
	rec, err = GetIdempotency(ctx, l.db, operatorID, resource, key, l.now())
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

// Succeed records the created record id for a claimed row.
func (l *Ledger) Succeed(ctx context.Context, id, recordID string) error {
	return MarkIdempotency(ctx, l.db, id, domain.SubmissionSucceeded, recordID, "", domain.SubmissionStarted)
}

// Fail marks a claimed row as failed so the key can be retried.
func (l *Ledger) Fail(ctx context.Context, id, cause string) error {
	return MarkIdempotency(ctx, l.db, id, domain.SubmissionFailed, "", cause, domain.SubmissionStarted)
}

// Purge deletes expired rows.
func (l *Ledger) Purge(ctx context.Context) (int64, error) {
	return PurgeExpiredIdempotency(ctx, l.db, l.now())
}
