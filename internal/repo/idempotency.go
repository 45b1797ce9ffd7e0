package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// ErrDuplicate means a live retry key already exists for the session.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns the live record for (sessionID, key), or ErrNotFound
// when there is none or it expired before now.
func GetIdempotency(ctx context.Context, db *gorm.DB, sessionID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("session_id = ? AND key = ? AND expires_at > ?", sessionID, key, now).
		Take(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &rec, nil
}

// CreateIdempotency binds key to messageID for ttl. An expired record under
// the same key is replaced; a live one yields ErrDuplicate.
func CreateIdempotency(ctx context.Context, db *gorm.DB, sessionID, key, messageID string, ttl time.Duration) (*domain.Idempotency, error) {
	return insertKey(ctx, db, &domain.Idempotency{SessionID: sessionID, Key: key, MessageID: messageID}, ttl)
}

// CreateClaimIdempotency binds key to a returning-user claim of name, a send
// that appended no record. Expiry and duplicates behave as in
// CreateIdempotency.
func CreateClaimIdempotency(ctx context.Context, db *gorm.DB, sessionID, key, name string, ttl time.Duration) (*domain.Idempotency, error) {
	return insertKey(ctx, db, &domain.Idempotency{SessionID: sessionID, Key: key, Claim: name}, ttl)
}

func insertKey(ctx context.Context, db *gorm.DB, rec *domain.Idempotency, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.ExpiresAt = now.Add(ttl)
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ? AND key = ? AND expires_at <= ?", rec.SessionID, rec.Key, now).
			Delete(&domain.Idempotency{}).Error; err != nil {
			return err
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}

// PurgeIdempotency deletes every record that expired before now and returns
// how many were removed.
func PurgeIdempotency(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.Idempotency{})
	return res.RowsAffected, res.Error
}

// isUniqueViolation recognizes unique index failures. The pure-Go driver
// reports them as plain text rather than gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "constraint failed: unique")
}
