package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
	"github.com/tbourn/go-faq-chatbot/internal/repo"
)

// SendIdempotent is Send guarded by a client retry key. The first send under
// key records its first record, or the claimed name when a returning user
// was re-identified without appending anything. A retry within
// IdempotencyTTL replays that outcome and reports replayed=true without
// appending or scheduling anything. An empty key behaves as Send.
func (s *ConversationService) SendIdempotent(ctx context.Context, sessionID, key, text string) (res *SendResult, replayed bool, err error) {
	if key == "" {
		res, err = s.Send(ctx, sessionID, text)
		return res, false, err
	}

	ctx, span := tracer().Start(ctx, "SendIdempotent",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	unlock := s.lock(sessionID)
	defer unlock()

	prev, err := s.replay(ctx, sessionID, key)
	if err != nil {
		return nil, false, err
	}
	if prev != nil {
		span.SetAttributes(attribute.Bool("idempotency.replayed", true))
		return prev, true, nil
	}

	res, err = s.send(ctx, sessionID, text)
	if err != nil || res.Ignored {
		return res, false, err
	}
	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	switch {
	case len(res.Records) > 0:
		_, err = repo.CreateIdempotency(ctx, s.DB, sessionID, key, res.Records[0].ID, ttl)
	case res.Returning:
		_, err = repo.CreateClaimIdempotency(ctx, s.DB, sessionID, key, res.Username, ttl)
	}
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		// The send itself succeeded; a lost key only means a retry is not deduplicated.
		log.Warn().Ctx(ctx).Err(err).Str("session_id", sessionID).Msg("store idempotency key")
	}
	return res, false, nil
}

// replay returns the result recorded for key, or nil when there is none.
func (s *ConversationService) replay(ctx context.Context, sessionID, key string) (*SendResult, error) {
	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	rec, err := repo.GetIdempotency(ctx, s.DB, sessionID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.MessageID == "" {
		return &SendResult{Records: []domain.Message{}, Username: rec.Claim, Returning: true}, nil
	}
	m, err := repo.GetMessage(ctx, s.DB, sessionID, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &SendResult{Records: []domain.Message{*m}, Username: sess.Username}, nil
}

// RunKeyJanitor deletes expired retry keys every interval until ctx ends.
func (s *ConversationService) RunKeyJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.purgeKeys(ctx, now.UTC())
		}
	}
}

func (s *ConversationService) purgeKeys(ctx context.Context, now time.Time) int64 {
	n, err := repo.PurgeIdempotency(ctx, s.DB, now)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Msg("purge expired idempotency keys")
		}
		return 0
	}
	if n > 0 {
		log.Debug().Int64("removed", n).Msg("expired idempotency keys purged")
	}
	return n
}
