package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"composer/backend/internal/cache"
	"composer/backend/internal/collab"
	"composer/backend/internal/doc"
	"composer/backend/internal/ime"
	"composer/backend/internal/logger"
	"composer/backend/internal/ot/textx"
)

type DocumentHandler struct {
	svc collab.Service
	// presence is optional; without it carets are not remembered
	presence cache.PresenceCache
	caretTTL time.Duration
	log      *zap.Logger
}

func NewDocumentHandler(svc collab.Service, presence cache.PresenceCache, caretTTL time.Duration, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{svc: svc, presence: presence, caretTTL: caretTTL, log: logger.OrNop(log)}
}

// Register mounts the document routes on an authenticated group.
func (h *DocumentHandler) Register(g *gin.RouterGroup) {
	g.POST("/docs", h.CreateDocument)
	d := g.Group("/docs/:docID")
	d.GET("", h.GetDocument)
	d.GET("/mutations", h.MutationsSince)
	d.POST("/commands/insert-text", command(h, h.insertText))
	d.POST("/commands/delete", command(h, h.deleteText))
	d.POST("/commands/replace", command(h, h.replace))
	d.POST("/commands/add-range", command(h, h.addRange))
	d.POST("/commands/delete-range", command(h, h.deleteRange))
	d.POST("/ime/start", h.IMEStart)
	d.POST("/ime/input", command(h, h.imeInput))
	d.POST("/snapshot", h.SaveSnapshot)
}

var errBadRequest = errors.New("bad request")

type commandResponse struct {
	Revision   uint64          `json:"revision"`
	MutationID string          `json:"mutationId"`
	Actions    any             `json:"actions"`
	TextRanges []doc.TextRange `json:"textRanges,omitempty"`
	NoHistory  bool            `json:"noHistory"`
	Cursor     *int            `json:"cursor,omitempty"`
}

func origin(c *gin.Context) (collab.Origin, bool) {
	v, ok := c.Get("userId")
	if !ok {
		return collab.Origin{}, false
	}
	userID, ok := v.(uint64)
	return collab.Origin{AuthorID: userID}, ok
}

// writeError maps service errors onto status codes; a rejected command is a
// no-op for the client, not a server fault.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, collab.ErrDocumentNotFound), errors.Is(err, collab.ErrSegmentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, collab.ErrInvalidBody), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, collab.ErrCommandRejected):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, collab.ErrNoComposition):
		status = http.StatusConflict
	case errors.Is(err, collab.ErrStoreNotConfigured):
		status = http.StatusNotImplemented
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// command wraps the shared bind / authorize / respond steps.
func command[T any](h *DocumentHandler, run func(c *gin.Context, docID string, o collab.Origin, req T) (collab.Applied, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := origin(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		var req T
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		docID := c.Param("docID")
		a, err := run(c, docID, o, req)
		if err != nil {
			writeError(c, err)
			return
		}
		h.rememberCaret(c, docID, o.AuthorID, a)
		c.JSON(http.StatusOK, commandResponse{
			Revision:   a.Revision,
			MutationID: a.Mutation.ID,
			Actions:    a.Mutation.Actions,
			TextRanges: a.Mutation.TextRanges,
			NoHistory:  a.Mutation.NoHistory,
			Cursor:     a.Cursor,
		})
	}
}

func (h *DocumentHandler) rememberCaret(c *gin.Context, docID string, userID uint64, a collab.Applied) {
	if h.presence == nil || len(a.Mutation.TextRanges) == 0 {
		return
	}
	if err := h.presence.SetCaret(c.Request.Context(), docID, userID, a.Mutation.TextRanges[0], h.caretTTL); err != nil {
		logger.WithDoc(h.log, docID).Warn("caret not stored", zap.Error(err))
	}
}

type createRequest struct {
	Title string `json:"title" binding:"required"`
}

func (h *DocumentHandler) CreateDocument(c *gin.Context) {
	o, ok := origin(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	docID, err := h.svc.CreateDocument(c.Request.Context(), o.AuthorID, req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "ownerId": o.AuthorID, "title": req.Title, "createdAt": time.Now().Format(time.RFC3339)})
}

func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID := c.Param("docID")
	snap, err := h.svc.Load(c.Request.Context(), docID)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := gin.H{"id": docID, "revision": snap.Revision, "document": snap.Document}
	if h.presence != nil {
		if members, err := h.presence.GetAliveMembersWithNames(c.Request.Context(), docID); err == nil {
			resp["members"] = members
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DocumentHandler) MutationsSince(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	out, err := h.svc.MutationsSince(c.Request.Context(), c.Param("docID"), since, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mutations": out})
}

type insertTextRequest struct {
	Selection doc.TextRange `json:"selection"`
	Text      string        `json:"text" binding:"required"`
}

func (h *DocumentHandler) insertText(c *gin.Context, docID string, o collab.Origin, req insertTextRequest) (collab.Applied, error) {
	return h.svc.InsertText(c.Request.Context(), docID, o, req.Selection, req.Text)
}

type deleteRequest struct {
	Selection doc.TextRange `json:"selection"`
	// "left" (backspace, default) or "right" (forward delete)
	Direction string `json:"direction"`
}

func (h *DocumentHandler) deleteText(c *gin.Context, docID string, o collab.Origin, req deleteRequest) (collab.Applied, error) {
	dir, err := textx.ParseDirection(req.Direction)
	if err != nil {
		return collab.Applied{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return h.svc.Delete(c.Request.Context(), docID, o, req.Selection, dir)
}

type replaceRequest struct {
	Selection doc.TextRange `json:"selection"`
	Body      *doc.Body     `json:"body"`
}

func (h *DocumentHandler) replace(c *gin.Context, docID string, o collab.Origin, req replaceRequest) (collab.Applied, error) {
	return h.svc.Replace(c.Request.Context(), docID, o, req.Selection, req.Body)
}

func (h *DocumentHandler) addRange(c *gin.Context, docID string, o collab.Origin, req collab.AddRangeRequest) (collab.Applied, error) {
	return h.svc.AddRange(c.Request.Context(), docID, o, req)
}

func (h *DocumentHandler) deleteRange(c *gin.Context, docID string, o collab.Origin, req collab.DeleteRangeRequest) (collab.Applied, error) {
	return h.svc.DeleteRange(c.Request.Context(), docID, o, req)
}

type imeStartRequest struct {
	Selection doc.TextRange `json:"selection"`
}

func (h *DocumentHandler) IMEStart(c *gin.Context) {
	o, ok := origin(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req imeStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.svc.IMEStart(c.Request.Context(), c.Param("docID"), o, req.Selection); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": ime.Composing})
}

func (h *DocumentHandler) imeInput(c *gin.Context, docID string, o collab.Origin, req ime.InputParams) (collab.Applied, error) {
	return h.svc.IMEInput(c.Request.Context(), docID, o, req)
}

func (h *DocumentHandler) SaveSnapshot(c *gin.Context) {
	docID := c.Param("docID")
	if err := h.svc.SaveSnapshot(c.Request.Context(), docID); err != nil {
		h.log.Warn("save snapshot failed", zap.String("doc_id", docID), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"docId": docID, "saved": true})
}
