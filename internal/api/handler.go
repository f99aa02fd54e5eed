// Package api exposes the ledger's HTTP ingestion surface: event submission,
// chain verification, event listing, and chain-tip inspection, plus the
// middleware (API-key auth, rate limiting, metrics) that fronts it.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/ActionLedger/internal/ledger"
	"go.uber.org/zap"
)

// EventHandler serves the authenticated ledger endpoints.
type EventHandler struct {
	store       ledger.Store
	logger      *zap.Logger
	maxPageSize int
}

// NewEventHandler creates an EventHandler. maxPageSize bounds the page_size
// query parameter; zero means ledger.MaxPageSize.
func NewEventHandler(store ledger.Store, maxPageSize int, logger *zap.Logger) *EventHandler {
	if maxPageSize <= 0 || maxPageSize > ledger.MaxPageSize {
		maxPageSize = ledger.MaxPageSize
	}
	return &EventHandler{store: store, logger: logger, maxPageSize: maxPageSize}
}

// Register mounts the ledger routes on the given router group.
func (h *EventHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/events", h.Submit)
	rg.GET("/events", h.List)
	rg.GET("/verify", h.Verify)
	rg.GET("/agents", h.Agents)
	rg.GET("/agents/:agent_id/head", h.Head)
}

// Submit handles POST /events — appends one event to the caller's chain.
func (h *EventHandler) Submit(c *gin.Context) {
	var sub ledger.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}

	event, err := h.store.Append(c.Request.Context(), sub)
	if err != nil {
		h.renderAppendError(c, err)
		return
	}

	RecordAppend(event.ActionType)
	c.JSON(http.StatusCreated, event)
}

func (h *EventHandler) renderAppendError(c *gin.Context, err error) {
	switch {
	case ledger.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// Nothing was committed; the caller may retry safely.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "append timed out, retry"})
	default:
		h.logger.Error("append event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to append event"})
	}
}

// List handles GET /events — paginated events, optionally filtered by
// agent_id and action_type.
func (h *EventHandler) List(c *gin.Context) {
	f := ledger.Filter{
		AgentID:    c.Query("agent_id"),
		ActionType: c.Query("action_type"),
		Page:       intQuery(c, "page", 1),
		PageSize:   intQuery(c, "page_size", ledger.DefaultPageSize),
	}
	if f.Page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be >= 1"})
		return
	}
	if f.PageSize > h.maxPageSize {
		f.PageSize = h.maxPageSize
	}

	page, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list events"})
		return
	}
	c.JSON(http.StatusOK, page)
}

// Verify handles GET /verify?agent_id=X — replays the agent's chain and
// reports integrity. An unknown agent is trivially valid, not an error.
func (h *EventHandler) Verify(c *gin.Context) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent_id is required"})
		return
	}

	res, err := h.store.Verify(c.Request.Context(), agentID)
	if err != nil {
		h.logger.Error("verify chain", zap.String("agent_id", agentID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify chain"})
		return
	}

	RecordVerification(res.IsValid)
	if !res.IsValid {
		h.logger.Warn("chain integrity check failed",
			zap.String("agent_id", agentID),
			zap.Int64p("first_invalid_sequence", res.FirstInvalidSequence),
		)
	}
	c.JSON(http.StatusOK, res)
}

// Agents handles GET /agents — the distinct agent IDs present in the ledger.
func (h *EventHandler) Agents(c *gin.Context) {
	ids, err := h.store.Agents(c.Request.Context())
	if err != nil {
		h.logger.Error("list agents", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"agents": ids})
}

// Head handles GET /agents/:agent_id/head — the agent's chain tip.
func (h *EventHandler) Head(c *gin.Context) {
	head, err := h.store.Head(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		h.logger.Error("read chain head", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read chain head"})
		return
	}
	c.JSON(http.StatusOK, head)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
