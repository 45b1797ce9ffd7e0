package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// newTestDB opens a unique in-memory database per test to avoid schema
// leaking across tests.
func newTestDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func newSessionDB(t *testing.T) *gorm.DB {
	t.Helper()
	return newTestDB(t, &domain.Session{}, &domain.Message{}, &domain.Idempotency{})
}

func strp(s string) *string { return &s }

func mustSession(t *testing.T, db *gorm.DB, mode string) *domain.Session {
	t.Helper()
	s, err := CreateSession(context.Background(), db, mode)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func mustAppend(t *testing.T, db *gorm.DB, sessionID, sender, text string, forUser *string) *domain.Message {
	t.Helper()
	m := &domain.Message{SessionID: sessionID, Sender: sender, Text: text, Timestamp: "1:00:00 PM", ForUser: forUser}
	if err := AppendMessage(context.Background(), db, m); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	return m
}
