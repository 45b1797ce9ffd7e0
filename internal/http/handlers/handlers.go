// Package handlers exposes the chatbot's device sessions over HTTP.
//
// Handlers are transport-thin: they parse path, query and body, call the
// conversation service, and translate results and service errors into the
// JSON envelopes defined in response.go.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
	"github.com/tbourn/go-faq-chatbot/internal/services"
)

//
// Service contracts (context-aware)
//

// ConversationService is the session and conversation API consumed by the
// handlers. *services.ConversationService implements it.
type ConversationService interface {
	CreateSession(ctx context.Context, mode string) (*domain.Session, error)
	ImportSnapshot(ctx context.Context, snap services.Snapshot) (*services.ImportResult, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	State(ctx context.Context, sessionID string) (*services.State, error)

	SendIdempotent(ctx context.Context, sessionID, key, text string) (*services.SendResult, bool, error)
	Clear(ctx context.Context, sessionID string) error
	AddReaction(ctx context.Context, sessionID string, index int, value string) (*domain.Message, error)
	ReactByID(ctx context.Context, sessionID, messageID, value string) (*domain.Message, error)
	ToggleTheme(ctx context.Context, sessionID string) (bool, error)

	ViewPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	HistoryPage(ctx context.Context, sessionID string, page, pageSize int) ([]domain.Message, int64, error)
	ViewETag(ctx context.Context, sessionID string) (string, error)
	HistoryETag(ctx context.Context, sessionID string) (string, error)
	ExportHistory(ctx context.Context, sessionID string) ([]byte, error)

	Users(ctx context.Context, sessionID string) ([]string, error)
	LookupUser(ctx context.Context, sessionID, name string) ([]domain.Message, error)
	NewUser(ctx context.Context, sessionID string) (*domain.Message, error)
}

// EventStream subscribes an upgraded connection to a session's events.
// *realtime.Hub implements it.
type EventStream interface {
	Serve(up *websocket.Upgrader, w http.ResponseWriter, r *http.Request, sessionID string) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the session API.
type Handlers struct {
	svc      ConversationService
	events   EventStream
	upgrader *websocket.Upgrader
}

// New constructs Handlers. events and upgrader may be nil, in which case the
// event stream endpoint answers 404.
func New(svc ConversationService, events EventStream, upgrader *websocket.Upgrader) *Handlers {
	return &Handlers{svc: svc, events: events, upgrader: upgrader}
}

// Mount registers every session endpoint on g.
func (h *Handlers) Mount(g gin.IRoutes) {
	// Sessions
	g.POST("/sessions", h.CreateSession)
	g.POST("/sessions/import", h.ImportSession)
	g.GET("/sessions/:id", h.GetSession)
	g.POST("/sessions/:id/theme", h.ToggleTheme)
	g.GET("/sessions/:id/events", h.Events)

	// View
	g.GET("/sessions/:id/messages", h.ListMessages)
	g.POST("/sessions/:id/messages", h.PostMessage)
	g.DELETE("/sessions/:id/messages", h.ClearMessages)
	g.PUT("/sessions/:id/messages/:index/reaction", h.ReactByIndex)

	// History
	g.GET("/sessions/:id/history", h.ListHistory)
	g.GET("/sessions/:id/history/export", h.ExportHistory)
	g.PUT("/sessions/:id/history/:msgId/reaction", h.ReactByID)

	// Users (multi-user sessions)
	g.GET("/sessions/:id/users", h.ListUsers)
	g.GET("/sessions/:id/users/:name/messages", h.UserMessages)
	g.POST("/sessions/:id/users/new", h.NewUser)
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}
