package domain

import "time"

// Idempotency records the outcome of a previous send, keyed by
// (session_id, key). MessageID names the first record the send appended.
// Claim holds the name when the send re-identified a returning user and
// appended nothing; MessageID is then empty. A retried send with the same
// key replays that outcome instead of appending a duplicate and scheduling a
// second bot reply.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	SessionID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_session_key,priority:1"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_session_key,priority:2"`
	MessageID string    `gorm:"type:TEXT NOT NULL;default:''"`
	Claim     string    `gorm:"type:TEXT NOT NULL;default:''"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
