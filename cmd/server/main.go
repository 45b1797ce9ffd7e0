// Command server runs the FAQ chatbot HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-faq-chatbot/internal/config"
	"github.com/tbourn/go-faq-chatbot/internal/faq"
	httpapi "github.com/tbourn/go-faq-chatbot/internal/http"
	"github.com/tbourn/go-faq-chatbot/internal/observability"
	"github.com/tbourn/go-faq-chatbot/internal/realtime"
	"github.com/tbourn/go-faq-chatbot/internal/repo"
	"github.com/tbourn/go-faq-chatbot/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version string

const (
	shutdownTimeout  = 10 * time.Second
	keyPurgeInterval = time.Hour
)

func main() {
	// A missing .env is fine; the process environment still applies.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	observability.SetupLogging(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName, os.Stderr)
	ver := buildVersion()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observability.SetupTracing(ctx, cfg.OTEL, ver)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	table, err := faq.LoadFile(cfg.FAQPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.FAQPath).Msg("load faq table")
	}
	log.Info().Int("rules", len(table.Rules)).Msg("faq table loaded")

	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := realtime.NewHub(256)
	go hub.Run(hubCtx)

	svc := services.NewConversationService(db, table)
	svc.ReplyDelay = cfg.ReplyDelay
	svc.DefaultMode = cfg.DefaultMode
	svc.Location = cfg.TimeLocation
	svc.MaxTextRunes = cfg.MaxTextRunes
	svc.IdempotencyTTL = cfg.IdempotencyTTL
	svc.Notifier = hub
	go svc.RunKeyJanitor(hubCtx, keyPurgeInterval)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, svc, hub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", ver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	svc.Shutdown()
	stopHub()
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}

// buildVersion prefers the linker-stamped version, then APP_VERSION.
func buildVersion() string {
	for _, v := range []string{version, os.Getenv("APP_VERSION")} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "dev"
}
