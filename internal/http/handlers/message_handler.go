// Message HTTP handlers.
//
// This file exposes the view and history endpoints of a session:
//   - GET    /sessions/{id}/messages                  (view, paginated, ETag)
//   - POST   /sessions/{id}/messages                  (send text)
//   - DELETE /sessions/{id}/messages                  (clear view)
//   - PUT    /sessions/{id}/messages/{index}/reaction (react by view index)
//   - GET    /sessions/{id}/history                   (history, paginated, ETag)
//   - GET    /sessions/{id}/history/export            (chat_history.json)
//   - PUT    /sessions/{id}/history/{msgId}/reaction  (react by record id)
//
// Idempotency:
// A send carrying an Idempotency-Key that was already used for the session
// returns the recorded user record with `Idempotency-Replayed: true` and
// schedules no second bot reply.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-faq-chatbot/internal/domain"
	"github.com/tbourn/go-faq-chatbot/internal/http/middleware"
	"github.com/tbourn/go-faq-chatbot/internal/utils"
)

// ExportFilename is the download name of the exported history.
const ExportFilename = "chat_history.json"

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending text. Blank text is
// accepted and ignored.
type PostMessageRequest struct {
	Text string `json:"text" example:"What time is it?"`
}

// ReactionRequest is the JSON payload for setting a reaction.
type ReactionRequest struct {
	// Reaction is a short emoji; blank values are rejected.
	Reaction string `json:"reaction" example:"👍"`
}

// ListMessagesResponse wraps a page of records and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// pageParams reads page and page_size from the query string.
func pageParams(c *gin.Context) (page, pageSize int) {
	return utils.PageParams(c.Query("page"), c.Query("page_size"))
}

func listResponse(items []domain.Message, total int64, page, pageSize int) ListMessagesResponse {
	totalPages := utils.TotalPages(total, pageSize)
	return ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
}

//
// Handlers
//

// ListMessages godoc
// @ID          listMessages
// @Summary     List the current view
// @Description Returns a page of the session's current view. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
//
// @Param       id             path    string  true  "Session ID (UUID)"           format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for the current view"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	sid := c.Param("id")

	etag, err := h.svc.ViewETag(ctx, sid)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	if notModified(c, etag) {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.svc.ViewPage(ctx, sid, page, pageSize)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, listResponse(items, total, page, pageSize))
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send text
// @Description Appends a user record and schedules the bot reply. In a multi-user session awaiting a name, the text claims that name.
// @Description Blank text changes nothing and returns 204. Supports Idempotency-Key for safe retries.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       id               path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PostMessageRequest  true  "Text payload"
//
// @Success     201  {object}  services.SendResult  "Records appended"
// @Success     200  {object}  services.SendResult  "Replayed result"
// @Success     204  {string}  string  "Blank text ignored"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / too long / reserved name"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	key, _ := middleware.GetIdempotencyKey(c)
	res, replayed, err := h.svc.SendIdempotent(c.Request.Context(), c.Param("id"), key, req.Text)
	if err != nil {
		failFor(c, err, ErrCodeSendFailed)
		return
	}
	switch {
	case replayed:
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, res)
	case res.Ignored:
		noContent(c)
	default:
		ok(c, http.StatusCreated, res)
	}
}

// ClearMessages godoc
// @ID          clearMessages
// @Summary     Clear the view
// @Description Empties the current view and cancels pending bot replies. History is kept.
// @Tags        Messages
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/messages [delete]
func (h *Handlers) ClearMessages(c *gin.Context) {
	if err := h.svc.Clear(c.Request.Context(), c.Param("id")); err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	noContent(c)
}

// ReactByIndex godoc
// @ID          reactByIndex
// @Summary     React to a view record
// @Description Sets the reaction of the index-th record (0-based) of the current view. Last write wins.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       id     path  string  true  "Session ID (UUID)"  format(uuid)
// @Param       index  path  int     true  "View index"         minimum(0)
// @Param       body   body  handlers.ReactionRequest  true  "Reaction"
//
// @Success     200  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / invalid reaction"
// @Failure     404  {object}  handlers.ErrorResponse  "Session or message not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/messages/{index}/reaction [put]
func (h *Handlers) ReactByIndex(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "index must be a non-negative integer")
		return
	}
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	m, err := h.svc.AddReaction(c.Request.Context(), c.Param("id"), index, req.Reaction)
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, m)
}

// ReactByID godoc
// @ID          reactByID
// @Summary     React to a history record
// @Description Sets the reaction of the history record with the given id. Last write wins.
// @Tags        History
// @Accept      json
// @Produce     json
//
// @Param       id     path  string  true  "Session ID (UUID)"  format(uuid)
// @Param       msgId  path  string  true  "Record ID (UUID)"   format(uuid)
// @Param       body   body  handlers.ReactionRequest  true  "Reaction"
//
// @Success     200  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / invalid reaction"
// @Failure     404  {object}  handlers.ErrorResponse  "Session or message not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/history/{msgId}/reaction [put]
func (h *Handlers) ReactByID(c *gin.Context) {
	var req ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	m, err := h.svc.ReactByID(c.Request.Context(), c.Param("id"), c.Param("msgId"), req.Reaction)
	if err != nil {
		failFor(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, m)
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List the full history
// @Description Returns a page of every record of the session, cleared ones included. Supports weak ETag via If-None-Match.
// @Tags        History
// @Produce     json
//
// @Param       id             path    string  true  "Session ID (UUID)"           format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListMessagesResponse
// @Header      200  {string}  ETag  "Weak ETag for the history"
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	ctx := c.Request.Context()
	sid := c.Param("id")

	etag, err := h.svc.HistoryETag(ctx, sid)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	if notModified(c, etag) {
		return
	}

	page, pageSize := pageParams(c)
	items, total, err := h.svc.HistoryPage(ctx, sid, page, pageSize)
	if err != nil {
		failFor(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, listResponse(items, total, page, pageSize))
}

// ExportHistory godoc
// @ID          exportHistory
// @Summary     Download the history
// @Description Returns the full history as a pretty-printed JSON attachment named chat_history.json.
// @Tags        History
// @Produce     json
//
// @Param       id  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {array}   domain.Message
// @Header      200  {string}  Content-Disposition  "attachment; filename=\"chat_history.json\""
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{id}/history/export [get]
func (h *Handlers) ExportHistory(c *gin.Context) {
	b, err := h.svc.ExportHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		failFor(c, err, ErrCodeExportFailed)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+ExportFilename+`"`)
	c.Data(http.StatusOK, "application/json", b)
}
