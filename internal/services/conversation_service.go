// Package services – ConversationService
//
// This file implements ConversationService, the controller of a device
// session's conversation. It appends user records, schedules the delayed bot
// reply produced by the FAQ matcher, and maintains the current view over the
// session history (clear, name claim, new user). In multi-user sessions it
// also gates the first send behind a name claim.
//
// Every mutation of a session runs under that session's lock and inside one
// database transaction. Bot replies carry the session generation observed at
// send time; Clear and NewUser bump it, so a reply that fires afterwards is
// discarded instead of landing in the reset view.
//
// Observability: public methods are OpenTelemetry-instrumented and reply
// outcomes are counted in Prometheus.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
	"github.com/tbourn/go-faq-chatbot/internal/faq"
	"github.com/tbourn/go-faq-chatbot/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Bot texts of the multi-user name workflow.
const (
	GreetingText = "Hi there! 👋 What's your name?"
	confirmFmt   = "Thanks, %s! You're now signed in."
	welcomeFmt   = "Welcome, %s! Ask me anything about weather, time, support, or our services."
)

// TimestampLayout is the display form of a record's creation time.
const TimestampLayout = "3:04:05 PM"

// maxReactionRunes bounds a reaction value.
const maxReactionRunes = 16

var errStaleReply = errors.New("stale reply")

// Notifier receives re-render signals for the presentation layer.
type Notifier interface {
	Publish(ev domain.Event)
}

// State is the full presentation state of a session.
type State struct {
	ID           string           `json:"id"`
	Mode         string           `json:"mode"`
	Username     string           `json:"username"`
	DarkMode     bool             `json:"dark_mode"`
	AwaitingName bool             `json:"awaiting_name"`
	Typing       bool             `json:"typing"`
	Users        []string         `json:"users"`
	Messages     []domain.Message `json:"messages"`
}

// SendResult describes the outcome of a send.
//
// Ignored is set for blank input, which changes nothing. Username is the
// active user after the send; Returning is set when the send claimed a name
// that already had history.
type SendResult struct {
	Records   []domain.Message `json:"records"`
	Username  string           `json:"username,omitempty"`
	Returning bool             `json:"returning,omitempty"`
	Ignored   bool             `json:"-"`
}

// pendingReply is the work captured at send time for a delayed bot reply.
type pendingReply struct {
	sessionID  string
	generation int64
	text       string
	forUser    *string
}

// ConversationService owns the conversation of device sessions.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// FAQ is the rule table consulted for bot replies.
	FAQ faq.Table
	// ReplyDelay is how long a bot reply waits after the user record.
	ReplyDelay time.Duration
	// DefaultMode applies when a session is created without a mode.
	DefaultMode string
	// Location renders record timestamps.
	Location *time.Location
	// MaxTextRunes caps a sent message; 0 disables the check.
	MaxTextRunes int
	// Notifier, when set, receives re-render signals.
	Notifier Notifier
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
	// IdempotencyTTL is how long a send's retry key is honored.
	IdempotencyTTL time.Duration

	replies *Replies
	locksMu sync.Mutex
	locks   map[string]*sessionLock
}

// sessionLock serializes mutations of one session. refs counts the holder
// and waiters; the entry is dropped when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewConversationService constructs a ConversationService with the widget's
// defaults: a one-second reply delay and single-user sessions.
func NewConversationService(db *gorm.DB, table faq.Table) *ConversationService {
	s := &ConversationService{
		DB:          db,
		FAQ:         table,
		ReplyDelay:  time.Second,
		DefaultMode: domain.ModeSingle,
		Location:    time.Local,
		Now:         time.Now,

		IdempotencyTTL: 24 * time.Hour,
		replies:        NewReplies(),
	}
	s.replies.OnIdle = func(sessionID string) { s.publishTyping(sessionID, false) }
	return s
}

// Shutdown stops every pending bot reply. Further sends still persist user
// records but schedule no reply.
func (s *ConversationService) Shutdown() {
	s.replies.Stop()
}

// CreateSession starts a session in mode ("single" or "multi"; empty selects
// DefaultMode). Multi-user sessions start awaiting a name with the greeting
// as their only visible record.
func (s *ConversationService) CreateSession(ctx context.Context, mode string) (*domain.Session, error) {
	ctx, span := tracer().Start(ctx, "CreateSession",
		trace.WithAttributes(attribute.String("session.mode", mode)),
	)
	defer span.End()

	mode, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}

	var out *domain.Session
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.CreateSession(ctx, tx, mode)
		if err != nil {
			return err
		}
		if mode == domain.ModeMulti {
			g, err := s.appendGreeting(ctx, tx, sess.ID)
			if err != nil {
				return err
			}
			sess.ViewSince = g.Seq
			if err := repo.SaveSession(ctx, tx, sess); err != nil {
				return err
			}
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Session returns the stored session or ErrSessionNotFound.
func (s *ConversationService) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.loadSession(ctx, s.DB, sessionID)
}

// State returns the presentation state of the session.
func (s *ConversationService) State(ctx context.Context, sessionID string) (*State, error) {
	ctx, span := tracer().Start(ctx, "State",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	view, err := repo.ListView(ctx, s.DB, *sess)
	if err != nil {
		return nil, err
	}
	users, err := repo.ListSenders(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Mode == domain.ModeSingle || users == nil {
		// Single-user sessions have no named users.
		users = []string{}
	}
	return &State{
		ID:           sess.ID,
		Mode:         sess.Mode,
		Username:     sess.Username,
		DarkMode:     sess.DarkMode,
		AwaitingName: sess.AwaitingName(),
		Typing:       s.replies.Pending(sessionID) > 0,
		Users:        users,
		Messages:     nonNil(view),
	}, nil
}

// Send handles text typed into the session.
//
// Blank text (after trimming) is a no-op. In a multi-user session awaiting a
// name, the trimmed text is a name claim: a new name synthesizes the echo,
// confirmation and welcome records and the view becomes exactly those three;
// an existing name selects that user's records across the whole history.
// Otherwise the text is appended verbatim as a user record and a bot reply is
// scheduled after ReplyDelay.
func (s *ConversationService) Send(ctx context.Context, sessionID, text string) (*SendResult, error) {
	ctx, span := tracer().Start(ctx, "Send",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	unlock := s.lock(sessionID)
	defer unlock()
	return s.send(ctx, sessionID, text)
}

// send is Send with the session lock held.
func (s *ConversationService) send(ctx context.Context, sessionID, text string) (*SendResult, error) {
	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return &SendResult{Ignored: true, Username: sess.Username}, nil
	}
	if s.MaxTextRunes > 0 && utf8.RuneCountInString(text) > s.MaxTextRunes {
		return nil, ErrTooLong
	}

	res := &SendResult{}
	var reply *pendingReply
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.AwaitingName() {
			return s.claimName(ctx, tx, sess, strings.TrimSpace(text), res)
		}

		sender := domain.SenderUser
		var forUser *string
		if sess.Mode == domain.ModeMulti {
			sender = sess.Username
			name := sess.Username
			forUser = &name
		}
		m := &domain.Message{
			SessionID: sessionID,
			Sender:    sender,
			Text:      text,
			Timestamp: s.stamp(),
		}
		if err := repo.AppendMessage(ctx, tx, m); err != nil {
			return err
		}
		res.Records = []domain.Message{*m}
		res.Username = sess.Username
		reply = &pendingReply{
			sessionID:  sessionID,
			generation: sess.Generation,
			text:       text,
			forUser:    forUser,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reply == nil && res.Username != "" {
		name := res.Username
		s.publish(domain.Event{Type: domain.EventUser, SessionID: sessionID, Username: &name})
	}
	for i := range res.Records {
		s.publishMessage(sessionID, res.Records[i])
	}
	if reply != nil {
		s.scheduleReply(*reply)
	}
	return res, nil
}

// claimName performs the AwaitingName → Identified transition inside tx.
func (s *ConversationService) claimName(ctx context.Context, tx *gorm.DB, sess *domain.Session, name string, res *SendResult) error {
	if name == domain.SenderBot {
		return ErrReservedName
	}
	exists, err := repo.SenderExists(ctx, tx, sess.ID, name)
	if err != nil {
		return err
	}
	sess.Username = name
	res.Username = name

	if exists {
		sess.ViewSince = 0
		res.Returning = true
		return repo.SaveSession(ctx, tx, sess)
	}

	ts := s.stamp()
	recipient := name
	records := []*domain.Message{
		{SessionID: sess.ID, Sender: name, Text: name, Timestamp: ts},
		{SessionID: sess.ID, Sender: domain.SenderBot, Text: fmt.Sprintf(confirmFmt, name), Timestamp: ts, ForUser: &recipient},
		{SessionID: sess.ID, Sender: domain.SenderBot, Text: fmt.Sprintf(welcomeFmt, name), Timestamp: ts, ForUser: &recipient},
	}
	for _, m := range records {
		if err := repo.AppendMessage(ctx, tx, m); err != nil {
			return err
		}
		res.Records = append(res.Records, *m)
	}
	sess.ViewSince = records[0].Seq
	return repo.SaveSession(ctx, tx, sess)
}

// scheduleReply registers the delayed bot reply and signals typing.
func (s *ConversationService) scheduleReply(p pendingReply) {
	if !s.replies.Schedule(p.sessionID, s.ReplyDelay, func() { s.deliver(p) }) {
		return
	}
	s.publishTyping(p.sessionID, true)
}

// deliver appends the bot reply for p unless the session moved to a newer
// generation in the meantime.
func (s *ConversationService) deliver(p pendingReply) {
	ctx, span := tracer().Start(context.Background(), "DeliverReply",
		trace.WithAttributes(
			attribute.String("session.id", p.sessionID),
			attribute.Int64("session.generation", p.generation),
		),
	)
	defer span.End()

	unlock := s.lock(p.sessionID)
	defer unlock()

	text := s.FAQ.Fallback
	category := "fallback"
	if rule, ok := faq.MatchRule(p.text, s.FAQ); ok {
		text = rule.Response
		category = rule.Category
	}
	text = faq.Expand(text, s.now())

	var m *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.loadSession(ctx, tx, p.sessionID)
		if err != nil {
			return err
		}
		if sess.Generation != p.generation {
			return errStaleReply
		}
		m = &domain.Message{
			SessionID: p.sessionID,
			Sender:    domain.SenderBot,
			Text:      text,
			Timestamp: s.stamp(),
			ForUser:   p.forUser,
		}
		return repo.AppendMessage(ctx, tx, m)
	})
	switch {
	case errors.Is(err, errStaleReply):
		botReplies.WithLabelValues("discarded").Inc()
		log.Debug().Ctx(ctx).Str("session_id", p.sessionID).Msg("discarding stale bot reply")
		return
	case err != nil:
		botReplies.WithLabelValues("failed").Inc()
		span.RecordError(err)
		log.Error().Ctx(ctx).Err(err).Str("session_id", p.sessionID).Msg("bot reply failed")
		return
	}

	botReplies.WithLabelValues("delivered").Inc()
	faqMatches.WithLabelValues(category).Inc()
	s.publishMessage(p.sessionID, *m)
}

// Clear empties the session's view. History is untouched and pending bot
// replies are canceled.
func (s *ConversationService) Clear(ctx context.Context, sessionID string) error {
	ctx, span := tracer().Start(ctx, "Clear",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	unlock := s.lock(sessionID)
	defer unlock()

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		last, err := repo.LastSeq(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		sess.ViewSince = last + 1
		sess.Generation++
		return repo.SaveSession(ctx, tx, sess)
	})
	if err != nil {
		return err
	}

	canceled := s.replies.Cancel(sessionID)
	s.publish(domain.Event{Type: domain.EventReset, SessionID: sessionID})
	if canceled > 0 {
		s.publishTyping(sessionID, false)
	}
	return nil
}

// NewUser returns a multi-user session to AwaitingName: the username is
// cleared, a greeting is appended and becomes the whole view, and pending
// bot replies are canceled.
func (s *ConversationService) NewUser(ctx context.Context, sessionID string) (*domain.Message, error) {
	ctx, span := tracer().Start(ctx, "NewUser",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	unlock := s.lock(sessionID)
	defer unlock()

	var greeting *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Mode != domain.ModeMulti {
			return ErrWrongMode
		}
		g, err := s.appendGreeting(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		sess.Username = ""
		sess.ViewSince = g.Seq
		sess.Generation++
		greeting = g
		return repo.SaveSession(ctx, tx, sess)
	})
	if err != nil {
		return nil, err
	}

	canceled := s.replies.Cancel(sessionID)
	s.publish(domain.Event{Type: domain.EventReset, SessionID: sessionID})
	s.publishMessage(sessionID, *greeting)
	if canceled > 0 {
		s.publishTyping(sessionID, false)
	}
	return greeting, nil
}

// AddReaction sets the reaction of the index-th record of the current view.
// The view is derived from history, so the history record changes with it.
func (s *ConversationService) AddReaction(ctx context.Context, sessionID string, index int, value string) (*domain.Message, error) {
	ctx, span := tracer().Start(ctx, "AddReaction",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("message.index", index),
		),
	)
	defer span.End()

	value, err := normalizeReaction(value)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(sessionID)
	defer unlock()

	var out *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		m, err := repo.ViewAt(ctx, tx, *sess, index)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if err := repo.SetReaction(ctx, tx, sessionID, m.ID, value); err != nil {
			return err
		}
		m.Reaction = &value
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(domain.Event{Type: domain.EventReaction, SessionID: sessionID, Message: out})
	return out, nil
}

// ReactByID sets the reaction of the history record with the given id.
func (s *ConversationService) ReactByID(ctx context.Context, sessionID, messageID, value string) (*domain.Message, error) {
	ctx, span := tracer().Start(ctx, "ReactByID",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("message.id", messageID),
		),
	)
	defer span.End()

	value, err := normalizeReaction(value)
	if err != nil {
		return nil, err
	}

	unlock := s.lock(sessionID)
	defer unlock()

	var out *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadSession(ctx, tx, sessionID); err != nil {
			return err
		}
		if err := repo.SetReaction(ctx, tx, sessionID, messageID, value); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		m, err := repo.GetMessage(ctx, tx, sessionID, messageID)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(domain.Event{Type: domain.EventReaction, SessionID: sessionID, Message: out})
	return out, nil
}

// ToggleTheme flips the session's dark mode flag and returns the new value.
func (s *ConversationService) ToggleTheme(ctx context.Context, sessionID string) (bool, error) {
	ctx, span := tracer().Start(ctx, "ToggleTheme",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	unlock := s.lock(sessionID)
	defer unlock()

	var dark bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := s.loadSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		sess.DarkMode = !sess.DarkMode
		dark = sess.DarkMode
		return repo.SaveSession(ctx, tx, sess)
	})
	if err != nil {
		return false, err
	}
	s.publish(domain.Event{Type: domain.EventTheme, SessionID: sessionID, DarkMode: &dark})
	return dark, nil
}

// ExportHistory renders the full history as a pretty-printed JSON array.
func (s *ConversationService) ExportHistory(ctx context.Context, sessionID string) ([]byte, error) {
	ctx, span := tracer().Start(ctx, "ExportHistory",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	if _, err := s.loadSession(ctx, s.DB, sessionID); err != nil {
		return nil, err
	}
	hist, err := repo.ListHistory(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(nonNil(hist), "", "  ")
}

// Users returns the names that have sent records in the session, in order
// of first appearance.
func (s *ConversationService) Users(ctx context.Context, sessionID string) ([]string, error) {
	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Mode != domain.ModeMulti {
		return nil, ErrWrongMode
	}
	users, err := repo.ListSenders(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []string{}
	}
	return users, nil
}

// LookupUser returns every record sent by or addressed to name without
// touching the session. Unknown names yield ErrUnknownUser.
func (s *ConversationService) LookupUser(ctx context.Context, sessionID, name string) ([]domain.Message, error) {
	ctx, span := tracer().Start(ctx, "LookupUser",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Mode != domain.ModeMulti {
		return nil, ErrWrongMode
	}
	name = strings.TrimSpace(name)
	ok, err := repo.SenderExists(ctx, s.DB, sessionID, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrUnknownUser
	}
	return repo.ListUserHistory(ctx, s.DB, sessionID, name)
}

// ViewPage returns a page of the current view and its total length.
func (s *ConversationService) ViewPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := tracer().Start(ctx, "ViewPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = clampPage(page, pageSize)
	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	total, err := repo.CountView(ctx, s.DB, *sess)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListViewPage(ctx, s.DB, *sess, (page-1)*pageSize, pageSize)
	return items, total, err
}

// HistoryPage returns a page of the full history and its total length.
func (s *ConversationService) HistoryPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	ctx, span := tracer().Start(ctx, "HistoryPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = clampPage(page, pageSize)
	if _, err := s.loadSession(ctx, s.DB, sessionID); err != nil {
		return nil, 0, err
	}
	total, err := repo.CountHistory(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListHistoryPage(ctx, s.DB, sessionID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// ViewETag returns a weak validator that changes whenever the rendered view
// would: new records, reactions, clears and user switches.
func (s *ConversationService) ViewETag(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.loadSession(ctx, s.DB, sessionID)
	if err != nil {
		return "", err
	}
	fp, err := repo.ViewFingerprint(ctx, s.DB, *sess)
	if err != nil {
		return "", err
	}
	return weakETag("view", sessionID, sess.ViewSince, fp), nil
}

// HistoryETag is ViewETag over the full history.
func (s *ConversationService) HistoryETag(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.loadSession(ctx, s.DB, sessionID); err != nil {
		return "", err
	}
	fp, err := repo.HistoryFingerprint(ctx, s.DB, sessionID)
	if err != nil {
		return "", err
	}
	return weakETag("history", sessionID, 0, fp), nil
}

func weakETag(kind, sessionID string, since int64, fp repo.Fingerprint) string {
	var ts int64
	if !fp.LastUpdated.IsZero() {
		ts = fp.LastUpdated.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d:%d:%d"`, kind, sessionID, since, fp.Count, fp.LastSeq, ts)
}

// Typing reports whether a bot reply is pending for the session.
func (s *ConversationService) Typing(sessionID string) bool {
	return s.replies.Pending(sessionID) > 0
}

//
// helpers
//

func tracer() trace.Tracer { return otel.Tracer("services/ConversationService") }

func (s *ConversationService) lock(sessionID string) func() {
	s.locksMu.Lock()
	if s.locks == nil {
		s.locks = make(map[string]*sessionLock)
	}
	l := s.locks[sessionID]
	if l == nil {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.locksMu.Unlock()
	}
}

func (s *ConversationService) loadSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, db, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

func (s *ConversationService) resolveMode(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = s.DefaultMode
	}
	if mode != domain.ModeSingle && mode != domain.ModeMulti {
		return "", ErrInvalidMode
	}
	return mode, nil
}

func (s *ConversationService) appendGreeting(ctx context.Context, tx *gorm.DB, sessionID string) (*domain.Message, error) {
	g := &domain.Message{
		SessionID: sessionID,
		Sender:    domain.SenderBot,
		Text:      GreetingText,
		Timestamp: s.stamp(),
	}
	if err := repo.AppendMessage(ctx, tx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *ConversationService) now() time.Time {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc)
}

func (s *ConversationService) stamp() string {
	return s.now().Format(TimestampLayout)
}

func (s *ConversationService) publish(ev domain.Event) {
	if s.Notifier != nil {
		s.Notifier.Publish(ev)
	}
}

func (s *ConversationService) publishMessage(sessionID string, m domain.Message) {
	s.publish(domain.Event{Type: domain.EventMessage, SessionID: sessionID, Message: &m})
}

func (s *ConversationService) publishTyping(sessionID string, typing bool) {
	s.publish(domain.Event{Type: domain.EventTyping, SessionID: sessionID, Typing: &typing})
}

func normalizeReaction(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" || utf8.RuneCountInString(v) > maxReactionRunes {
		return "", ErrInvalidReaction
	}
	return v, nil
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize
}

func nonNil(ms []domain.Message) []domain.Message {
	if ms == nil {
		return []domain.Message{}
	}
	return ms
}
