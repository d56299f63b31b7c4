package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/compustore/backend/internal/models"
	"github.com/compustore/backend/internal/service"
	"github.com/compustore/backend/internal/store"
)

type Handler struct {
	Store      store.Store
	Reconciler *service.Reconciler
	Sessions   *service.Sessions
	Tasks      *service.Tasks
	Staff      *service.Staff
	Orders     *service.Orders
	Accounts   *service.Accounts
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type IngestEventRequest struct {
	UserID    string          `json:"user_id" validate:"required"`
	Timestamp string          `json:"timestamp" validate:"required"`
	Actor     string          `json:"actor" validate:"required"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// @Summary Ingest an inbound event
// @Description Appends one transport event to the event log for later reconciliation
// @Tags events
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Router /api/events [post]
func (h *Handler) IngestEvent(c *gin.Context) {
	var req IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	id, err := h.Store.AppendEvent(c.Request.Context(), models.Event{
		UserID:    req.UserID,
		Timestamp: req.Timestamp,
		Actor:     req.Actor,
		Payload:   string(req.Payload),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to append event", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "event_id": id})
}

// @Summary Reconcile events
// @Description Folds unprocessed events into session histories exactly once
// @Tags events
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/reconcile [post]
func (h *Handler) Reconcile(c *gin.Context) {
	buckets, err := h.Reconciler.ReconcileEvents(c.Request.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("reconcile failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Reconciliation failed", err.Error())
		return
	}
	counts := map[string]int{}
	for userID, ins := range buckets {
		counts[userID] = len(ins)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "merged": counts})
}

func (h *Handler) SessionGet(c *gin.Context) {
	state, err := h.Sessions.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

type MergeInteractionsRequest struct {
	Interactions []models.Interaction `json:"interactions" validate:"required,min=1"`
}

func (h *Handler) MergeInteractions(c *gin.Context) {
	var req MergeInteractionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if err := h.Sessions.MergeInteractions(c.Request.Context(), c.Param("user_id"), req.Interactions); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "appended": len(req.Interactions)})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps a service error onto the HTTP envelope. Anything
// without a business code is a transient storage failure.
func writeServiceError(c *gin.Context, err error) {
	var se *service.Error
	if !errors.As(err, &se) {
		writeError(c, http.StatusInternalServerError, service.CodeTransient, "Storage failure, safe to retry", err.Error())
		return
	}
	status := http.StatusConflict
	switch se.Code {
	case service.CodeNotFound:
		status = http.StatusNotFound
	case service.CodeUnauthorized:
		status = http.StatusUnauthorized
	case service.CodeMalformed:
		status = http.StatusBadRequest
	}
	writeError(c, status, se.Code, se.Message, nil)
}
