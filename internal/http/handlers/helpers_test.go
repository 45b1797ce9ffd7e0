package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
	"github.com/tbourn/go-faq-chatbot/internal/faq"
	"github.com/tbourn/go-faq-chatbot/internal/http/middleware"
	"github.com/tbourn/go-faq-chatbot/internal/realtime"
	"github.com/tbourn/go-faq-chatbot/internal/services"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.Session{}, &domain.Message{}, &domain.Idempotency{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testEnv struct {
	r   *gin.Engine
	svc *services.ConversationService
}

// newEnv wires the real service to a bare router. Bot replies are scheduled
// an hour out so no reply lands during a test.
func newEnv(t *testing.T, events EventStream) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := services.NewConversationService(newTestDB(t), faq.DefaultTable())
	svc.ReplyDelay = time.Hour
	svc.Location = time.UTC
	t.Cleanup(svc.Shutdown)

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	var up *websocket.Upgrader
	if events != nil {
		up = realtime.Upgrader(nil)
	}
	New(svc, events, up).Mount(r)
	return &testEnv{r: r, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	if er := decode[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code=%q want %q", er.Code, code)
	}
}

func (e *testEnv) createSession(t *testing.T, mode string) domain.Session {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions", CreateSessionRequest{Mode: mode})
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	return decode[domain.Session](t, w)
}

func (e *testEnv) send(t *testing.T, sid, text string) services.SendResult {
	t.Helper()
	w := e.do(t, http.MethodPost, "/sessions/"+sid+"/messages", PostMessageRequest{Text: text})
	if w.Code != http.StatusCreated {
		t.Fatalf("send %q: %d %s", text, w.Code, w.Body.String())
	}
	return decode[services.SendResult](t, w)
}
