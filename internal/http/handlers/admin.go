package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Administrative read/repair endpoints. The router mounts all of these
// behind the admin key middleware.

func (h *Handler) UsersList(c *gin.Context) {
	ids, err := h.Sessions.ListUserIDs(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list users", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_ids": ids})
}

func (h *Handler) UserState(c *gin.Context) {
	state, err := h.Sessions.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "state": state})
}

func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.Sessions.ClearInteractionHistory(c.Request.Context(), c.Param("user_id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) OrderUpdateStatus(c *gin.Context) {
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if err := h.Orders.UpdateStatus(c.Request.Context(), c.Param("user_id"), c.Param("order_id"), req.Status); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
