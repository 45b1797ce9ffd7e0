// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model, which holds the per-device slots (username, theme, view cursor).
//
// Functions are thin: they compose queries and return raw gorm errors.
// A missing session surfaces as ErrNotFound.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSession inserts a new session in the given mode with empty slots.
func CreateSession(ctx context.Context, db *gorm.DB, mode string) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by id, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSession writes every mutable slot of s (username, dark mode, view
// cursor, generation). Zero values are written too.
func SaveSession(ctx context.Context, db *gorm.DB, s *domain.Session) error {
	s.UpdatedAt = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", s.ID).
		Select("username", "dark_mode", "view_since", "generation", "updated_at").
		Updates(map[string]any{
			"username":   s.Username,
			"dark_mode":  s.DarkMode,
			"view_since": s.ViewSince,
			"generation": s.Generation,
			"updated_at": s.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
