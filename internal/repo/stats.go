package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// Fingerprint summarizes a set of records for weak ETags. Appends move
// Count and LastSeq, reactions move LastUpdated.
type Fingerprint struct {
	Count       int64
	LastSeq     int64
	LastUpdated time.Time // zero when Count is 0
}

// ViewFingerprint covers the records in the session's current view.
func ViewFingerprint(ctx context.Context, db *gorm.DB, s domain.Session) (Fingerprint, error) {
	return fingerprint(db.WithContext(ctx).Model(&domain.Message{}).Scopes(viewScope(s)))
}

// HistoryFingerprint covers the full session history.
func HistoryFingerprint(ctx context.Context, db *gorm.DB, sessionID string) (Fingerprint, error) {
	return fingerprint(db.WithContext(ctx).Model(&domain.Message{}).Where("session_id = ?", sessionID))
}

func fingerprint(q *gorm.DB) (Fingerprint, error) {
	var fp Fingerprint
	var agg struct {
		N   int64
		Max int64
	}
	if err := q.Session(&gorm.Session{}).Select("COUNT(*) AS n, COALESCE(MAX(seq), 0) AS max").Scan(&agg).Error; err != nil {
		return fp, err
	}
	fp.Count, fp.LastSeq = agg.N, agg.Max
	if fp.Count == 0 {
		return fp, nil
	}
	// MAX() over a DATETIME column comes back as TEXT in SQLite, so take the
	// newest row instead.
	var row struct{ UpdatedAt time.Time }
	if err := q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return fp, err
	}
	fp.LastUpdated = row.UpdatedAt
	return fp, nil
}
