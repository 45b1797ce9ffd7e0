// Package services – snapshot import
//
// This file restores a session from the four key-value slots the browser
// widget kept in local storage: chatMessages, chatHistory, username and
// darkMode, each holding the JSON text stored under that key. A slot whose
// JSON cannot be decoded is the PersistedStateCorrupt condition: it is logged,
// discarded, and replaced by its empty default. Import never fails because of
// slot contents.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
	"github.com/tbourn/go-faq-chatbot/internal/repo"
)

// Local storage keys of the browser widget.
const (
	SlotMessages = "chatMessages"
	SlotHistory  = "chatHistory"
	SlotUsername = "username"
	SlotDarkMode = "darkMode"
)

// Snapshot is the raw local storage content of one device. Absent keys keep
// their defaults.
type Snapshot struct {
	// Mode selects the session variant; empty selects the service default.
	Mode string `json:"mode" example:"multi"`
	// Slots maps storage keys to the stored text.
	Slots map[string]string `json:"slots"`
}

// ImportResult reports the created session and the slots that were discarded.
type ImportResult struct {
	Session *domain.Session `json:"session"`
	Corrupt []string        `json:"corrupt_slots"`
}

// decodedSnapshot holds the slot values after decoding.
type decodedSnapshot struct {
	messages []domain.Message
	history  []domain.Message
	username string
	darkMode bool
	corrupt  []string
}

// decodeSnapshot decodes every slot, replacing corrupt ones by defaults.
func decodeSnapshot(snap Snapshot) decodedSnapshot {
	var d decodedSnapshot
	if err := decodeSlot(snap.Slots, SlotMessages, &d.messages); err != nil {
		d.messages = nil
		d.corrupt = append(d.corrupt, SlotMessages)
	}
	if err := decodeSlot(snap.Slots, SlotHistory, &d.history); err != nil {
		d.history = nil
		d.corrupt = append(d.corrupt, SlotHistory)
	}
	if err := decodeSlot(snap.Slots, SlotDarkMode, &d.darkMode); err != nil {
		d.darkMode = false
		d.corrupt = append(d.corrupt, SlotDarkMode)
	}
	// The widget stores the name as plain text; a JSON string is accepted too.
	if raw, ok := snap.Slots[SlotUsername]; ok {
		var name string
		if err := json.Unmarshal([]byte(raw), &name); err != nil {
			name = raw
		}
		d.username = strings.TrimSpace(name)
	}
	return d
}

// decodeSlot unmarshals slots[key] into dst. Missing or empty slots leave dst
// untouched. Decoding failures are logged and returned wrapped in
// ErrPersistedStateCorrupt.
func decodeSlot(slots map[string]string, key string, dst any) error {
	raw, ok := slots[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		corruptSlots.WithLabelValues(key).Inc()
		log.Warn().Err(err).Str("slot", key).Msg("discarding corrupt persisted slot")
		return fmt.Errorf("%w: %s: %v", ErrPersistedStateCorrupt, key, err)
	}
	return nil
}

// ImportSnapshot creates a new session holding the snapshot's state.
//
// History records are appended in order with fresh ids. Each view record is
// located in history by timestamp, sender and text, scanning forward; records
// missing from history are appended to it so the view stays a subset of
// history. The view then starts at the first located record, and a reaction
// present on a view record is applied to its history record. An empty view
// slot yields an empty view.
func (s *ConversationService) ImportSnapshot(ctx context.Context, snap Snapshot) (*ImportResult, error) {
	ctx, span := tracer().Start(ctx, "ImportSnapshot",
		trace.WithAttributes(attribute.String("session.mode", snap.Mode)),
	)
	defer span.End()

	mode, err := s.resolveMode(snap.Mode)
	if err != nil {
		return nil, err
	}
	d := decodeSnapshot(snap)
	span.SetAttributes(attribute.Int("snapshot.corrupt_slots", len(d.corrupt)))

	var out *domain.Session
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := repo.CreateSession(ctx, tx, mode)
		if err != nil {
			return err
		}

		stored := make([]*domain.Message, 0, len(d.history))
		for _, h := range d.history {
			m := importedRecord(sess.ID, h)
			if err := repo.AppendMessage(ctx, tx, m); err != nil {
				return err
			}
			stored = append(stored, m)
		}

		viewSince := int64(-1)
		next := 0
		for _, v := range d.messages {
			idx := -1
			for i := next; i < len(stored); i++ {
				if stored[i].SameRecord(v) {
					idx = i
					break
				}
			}
			var target *domain.Message
			if idx >= 0 {
				target = stored[idx]
				next = idx + 1
			} else {
				target = importedRecord(sess.ID, v)
				if err := repo.AppendMessage(ctx, tx, target); err != nil {
					return err
				}
				stored = append(stored, target)
				next = len(stored)
			}
			if viewSince < 0 {
				viewSince = target.Seq
			}
			if v.Reaction != nil && (target.Reaction == nil || *target.Reaction != *v.Reaction) {
				if err := repo.SetReaction(ctx, tx, sess.ID, target.ID, *v.Reaction); err != nil {
					return err
				}
			}
		}
		if viewSince < 0 {
			last, err := repo.LastSeq(ctx, tx, sess.ID)
			if err != nil {
				return err
			}
			viewSince = last + 1
		}

		sess.ViewSince = viewSince
		sess.DarkMode = d.darkMode
		if mode == domain.ModeMulti {
			sess.Username = d.username
		}
		if err := repo.SaveSession(ctx, tx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	corrupt := d.corrupt
	if corrupt == nil {
		corrupt = []string{}
	}
	log.Info().Ctx(ctx).
		Str("session_id", out.ID).
		Int("history", len(d.history)).
		Int("messages", len(d.messages)).
		Strs("corrupt_slots", corrupt).
		Msg("snapshot imported")
	return &ImportResult{Session: out, Corrupt: corrupt}, nil
}

// importedRecord copies the persisted fields of r into a new record of the
// session.
func importedRecord(sessionID string, r domain.Message) *domain.Message {
	return &domain.Message{
		SessionID: sessionID,
		Sender:    r.Sender,
		Text:      r.Text,
		Timestamp: r.Timestamp,
		Reaction:  r.Reaction,
		ForUser:   r.ForUser,
	}
}
