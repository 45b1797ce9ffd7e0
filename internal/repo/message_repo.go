// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: the append-only, per-session chat history and the views derived
// from it.
//
// Ordering is always by the per-session sequence number, which is assigned
// on append and never reused.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// AppendMessage assigns m the next sequence number of its session (and an ID
// when empty) and inserts it. Callers serialize appends per session; the
// unique (session_id, seq) index rejects a lost race.
func AppendMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	seq, err := LastSeq(ctx, db, m.SessionID)
	if err != nil {
		return err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Seq = seq + 1
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("Session").Create(m).Error
}

// LastSeq returns the highest sequence number in the session (0 when empty).
func LastSeq(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var last int64
	err := db.WithContext(ctx).
		Raw("SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = ?", sessionID).
		Scan(&last).Error
	return last, err
}

// ListHistory returns the full history of a session in insertion order.
func ListHistory(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// CountHistory uses a raw COUNT so a missing table surfaces as an error.
func CountHistory(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).
		Scan(&total).Error
	return total, err
}

// ListHistoryPage returns a page of the session history in insertion order.
func ListHistoryPage(ctx context.Context, db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// viewScope restricts a query to the records currently visible in s: those
// at or after the view cursor and, once a username is set, sent by or
// addressed to that user.
func viewScope(s domain.Session) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		q = q.Where("session_id = ? AND seq >= ?", s.ID, s.ViewSince)
		if s.Username != "" {
			q = q.Where("(sender = ? OR for_user = ?)", s.Username, s.Username)
		}
		return q
	}
}

// ListView returns the session's current message view in insertion order.
func ListView(ctx context.Context, db *gorm.DB, s domain.Session) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Scopes(viewScope(s)).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}

// CountView returns the number of records in the session's current view.
func CountView(ctx context.Context, db *gorm.DB, s domain.Session) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Scopes(viewScope(s)).
		Count(&total).Error
	return total, err
}

// ListViewPage returns a page of the session's current view.
func ListViewPage(ctx context.Context, db *gorm.DB, s domain.Session, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Scopes(viewScope(s)).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ViewAt returns the index-th record (0-based) of the session's view, or
// ErrNotFound when index is out of range.
func ViewAt(ctx context.Context, db *gorm.DB, s domain.Session, index int) (*domain.Message, error) {
	if index < 0 {
		return nil, ErrNotFound
	}
	var m domain.Message
	err := db.WithContext(ctx).
		Scopes(viewScope(s)).
		Order("seq ASC").
		Offset(index).
		Limit(1).
		Take(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListUserHistory returns every record of the session sent by or addressed
// to name, regardless of the view cursor.
func ListUserHistory(ctx context.Context, db *gorm.DB, sessionID, name string) ([]domain.Message, error) {
	return ListView(ctx, db, domain.Session{ID: sessionID, Username: name})
}

// ListSenders returns the distinct non-bot senders of the session in order
// of first appearance.
func ListSenders(ctx context.Context, db *gorm.DB, sessionID string) ([]string, error) {
	var rows []struct {
		Sender   string
		FirstSeq int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("sender, MIN(seq) AS first_seq").
		Where("session_id = ? AND sender <> ?", sessionID, domain.SenderBot).
		Group("sender").
		Order("first_seq ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Sender)
	}
	return out, nil
}

// SenderExists reports whether name has sent at least one record in the session.
func SenderExists(ctx context.Context, db *gorm.DB, sessionID, name string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ? AND sender = ? AND sender <> ?", sessionID, name, domain.SenderBot).
		Count(&n).Error
	return n > 0, err
}

// GetMessage fetches a record of the session by id.
func GetMessage(ctx context.Context, db *gorm.DB, sessionID, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("session_id = ? AND id = ?", sessionID, id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// SetReaction stores value as the reaction of the record id. The view is
// derived from history, so this single write updates both. Returns
// ErrNotFound when no row matched.
func SetReaction(ctx context.Context, db *gorm.DB, sessionID, id, value string) error {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("session_id = ? AND id = ?", sessionID, id).
		Updates(map[string]any{"reaction": value, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
