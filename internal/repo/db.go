// Package repo is the GORM persistence layer for sessions, their message
// history and send retry keys.
package repo

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

// Connection pragmas. They ride on the DSN so that every pooled connection
// gets them, not only the first one.
var pragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
}

// slowQuery is the duration above which a statement is logged at warn.
const slowQuery = 200 * time.Millisecond

// OpenSQLite opens or creates the session store at path. Statements are
// traced as child spans of the request that issued them and logged through
// zerolog.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing parent directory otherwise surfaces as "out of memory (14)".
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := gorm.Open(sqlite.Open(path+sep+q.Encode()), &gorm.Config{
		Logger: zerologGorm{level: logger.Warn},
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// AutoMigrate creates or updates the session, message and retry key tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Session{}, &domain.Message{}, &domain.Idempotency{})
}

// zerologGorm adapts gorm's logger to the process logger. Record-not-found
// is an expected outcome of lookups and is never logged.
type zerologGorm struct {
	level logger.LogLevel
}

func (l zerologGorm) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l zerologGorm) Info(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		log.Info().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l zerologGorm) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		log.Warn().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l zerologGorm) Error(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		log.Error().Str("component", "gorm").Msgf(msg, args...)
	}
}

func (l zerologGorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		ev = log.Error().Err(err)
	case elapsed > slowQuery && l.level >= logger.Warn:
		ev = log.Warn().Bool("slow", true)
	case l.level >= logger.Info:
		ev = log.Debug()
	default:
		return
	}
	sql, rows := fc()
	ev.Str("component", "gorm").Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
}
