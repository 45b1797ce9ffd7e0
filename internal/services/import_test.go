package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
)

const (
	histJSON = `[
		{"sender":"user","text":"hi","timestamp":"10:00:00 AM","reaction":null},
		{"sender":"bot","text":"Hello! How can I help you today? 😊","timestamp":"10:00:01 AM","reaction":null},
		{"sender":"user","text":"weather","timestamp":"10:01:00 AM","reaction":null},
		{"sender":"bot","text":"Today's weather is sunny with mild temperatures!","timestamp":"10:01:01 AM","reaction":null}
	]`
	viewJSON = `[
		{"sender":"user","text":"weather","timestamp":"10:01:00 AM","reaction":null},
		{"sender":"bot","text":"Today's weather is sunny with mild temperatures!","timestamp":"10:01:01 AM","reaction":"👍"}
	]`
)

func TestDecodeSlot_CorruptIsWrapped(t *testing.T) {
	var v []domain.Message
	err := decodeSlot(map[string]string{SlotHistory: "[{"}, SlotHistory, &v)
	if !errors.Is(err, ErrPersistedStateCorrupt) {
		t.Fatalf("expected ErrPersistedStateCorrupt, got %v", err)
	}
	if err := decodeSlot(map[string]string{}, SlotHistory, &v); err != nil {
		t.Fatalf("absent slot is not corrupt: %v", err)
	}
	if err := decodeSlot(map[string]string{SlotHistory: "  "}, SlotHistory, &v); err != nil {
		t.Fatalf("empty slot is not corrupt: %v", err)
	}
}

func TestImportSnapshot_RestoresViewHistoryAndTheme(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.ImportSnapshot(ctx, Snapshot{
		Mode: domain.ModeSingle,
		Slots: map[string]string{
			SlotHistory:  histJSON,
			SlotMessages: viewJSON,
			SlotDarkMode: "true",
		},
	})
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if len(res.Corrupt) != 0 {
		t.Fatalf("corrupt = %v", res.Corrupt)
	}

	hist := historyOf(t, h, res.Session.ID)
	if len(hist) != 4 {
		t.Fatalf("history = %v", texts(hist))
	}
	if hist[3].Reaction == nil || *hist[3].Reaction != "👍" {
		t.Fatalf("view reaction must be applied to its history record")
	}

	st, _ := h.svc.State(ctx, res.Session.ID)
	if !st.DarkMode {
		t.Fatalf("dark mode not restored")
	}
	want := []string{"weather", "Today's weather is sunny with mild temperatures!"}
	if !reflect.DeepEqual(texts(st.Messages), want) {
		t.Fatalf("view = %v, want %v", texts(st.Messages), want)
	}
	if st.Messages[0].Timestamp != "10:01:00 AM" {
		t.Fatalf("timestamps must be kept: %q", st.Messages[0].Timestamp)
	}
}

func TestImportSnapshot_CorruptSlotsFallBackToDefaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.ImportSnapshot(ctx, Snapshot{
		Slots: map[string]string{
			SlotHistory:  histJSON,
			SlotMessages: `{"not":"a list"}`,
			SlotDarkMode: "maybe",
		},
	})
	if err != nil {
		t.Fatalf("corrupt slots must not fail the import: %v", err)
	}
	if !reflect.DeepEqual(res.Corrupt, []string{SlotMessages, SlotDarkMode}) {
		t.Fatalf("corrupt = %v", res.Corrupt)
	}
	st, _ := h.svc.State(ctx, res.Session.ID)
	if st.DarkMode || len(st.Messages) != 0 {
		t.Fatalf("defaults expected, got %+v", st)
	}
	if n := len(historyOf(t, h, res.Session.ID)); n != 4 {
		t.Fatalf("intact history slot must be kept; got %d", n)
	}
}

func TestImportSnapshot_ViewRecordMissingFromHistoryIsAppended(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res, err := h.svc.ImportSnapshot(ctx, Snapshot{
		Slots: map[string]string{
			SlotMessages: `[{"sender":"user","text":"orphan","timestamp":"9:00:00 AM","reaction":null}]`,
		},
	})
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	hist := historyOf(t, h, res.Session.ID)
	if !reflect.DeepEqual(texts(hist), []string{"orphan"}) {
		t.Fatalf("history = %v", texts(hist))
	}
	if got := texts(viewOf(t, h, res.Session.ID)); !reflect.DeepEqual(got, []string{"orphan"}) {
		t.Fatalf("view = %v", got)
	}
}

func TestImportSnapshot_MultiUsername(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hist := `[
		{"sender":"bot","text":"Hi there! 👋 What's your name?","timestamp":"9:00:00 AM","reaction":null},
		{"sender":"Ana","text":"Ana","timestamp":"9:00:05 AM","reaction":null},
		{"sender":"bot","text":"hello Ana","timestamp":"9:00:05 AM","reaction":null,"forUser":"Ana"}
	]`
	view := `[
		{"sender":"Ana","text":"Ana","timestamp":"9:00:05 AM","reaction":null},
		{"sender":"bot","text":"hello Ana","timestamp":"9:00:05 AM","reaction":null,"forUser":"Ana"}
	]`
	for _, name := range []string{"Ana", `"Ana"`} {
		res, err := h.svc.ImportSnapshot(ctx, Snapshot{
			Mode:  domain.ModeMulti,
			Slots: map[string]string{SlotHistory: hist, SlotMessages: view, SlotUsername: name},
		})
		if err != nil {
			t.Fatalf("ImportSnapshot(%s): %v", name, err)
		}
		st, _ := h.svc.State(ctx, res.Session.ID)
		if st.Username != "Ana" || st.AwaitingName || len(st.Messages) != 2 {
			t.Fatalf("state = %+v", st)
		}
		if !reflect.DeepEqual(st.Users, []string{"Ana"}) {
			t.Fatalf("users = %v", st.Users)
		}
	}
}

func TestImportSnapshot_InvalidMode(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ImportSnapshot(context.Background(), Snapshot{Mode: "team"})
	if !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	var n int64
	h.db.Model(&domain.Session{}).Count(&n)
	if n != 0 {
		t.Fatalf("no session may be created")
	}
}
