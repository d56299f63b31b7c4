package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compustore/backend/internal/models"
)

// Tool endpoints invoked by the conversational layer on behalf of one user.
// All of them return the {"status":"ok"} envelope on success so the caller
// can phrase a reply from the structured result.

type AddTaskRequest struct {
	Description string            `json:"description" validate:"required"`
	TargetAgent string            `json:"target_agent" validate:"required"`
	Type        string            `json:"type" validate:"required"`
	Context     map[string]string `json:"context"`
}

func (h *Handler) TaskAdd(c *gin.Context) {
	var req AddTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	task := models.PendingTask{
		Description: req.Description,
		TargetAgent: req.TargetAgent,
		Type:        req.Type,
		Context:     req.Context,
	}
	if err := h.Tasks.Add(c.Request.Context(), c.Param("user_id"), task); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type RemoveTaskRequest struct {
	Type         string `json:"type" validate:"required"`
	ContextKey   string `json:"context_key" validate:"required"`
	ContextValue string `json:"context_value" validate:"required"`
}

func (h *Handler) TaskRemove(c *gin.Context) {
	var req RemoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	removed, err := h.Tasks.Remove(c.Request.Context(), c.Param("user_id"), req.Type, req.ContextKey, req.ContextValue)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "removed": removed})
}

func (h *Handler) TaskNext(c *gin.Context) {
	var types []string
	if taskType := c.Query("type"); taskType != "" {
		types = append(types, taskType)
	}
	task, found, err := h.Tasks.Next(c.Request.Context(), c.Param("user_id"), types...)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "task": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "task": task})
}

type PurchaseRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

func (h *Handler) Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	order, err := h.Orders.Purchase(c.Request.Context(), c.Param("user_id"), req.ProductID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "order": order})
}

func (h *Handler) OrderCancel(c *gin.Context) {
	if err := h.Orders.Cancel(c.Request.Context(), c.Param("user_id"), c.Param("order_id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) OrderReturn(c *gin.Context) {
	if err := h.Orders.ReturnOrExchange(c.Request.Context(), c.Param("user_id"), c.Param("order_id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type InitialCredentialsRequest struct {
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone_no" validate:"required"`
}

func (h *Handler) AccountSetup(c *gin.Context) {
	var req InitialCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if err := h.Accounts.SetInitialCredentials(c.Request.Context(), c.Param("user_id"), req.Password, req.Phone); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

func (h *Handler) AccountUpdatePassword(c *gin.Context) {
	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if err := h.Accounts.UpdatePassword(c.Request.Context(), c.Param("user_id"), req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type UpdatePhoneRequest struct {
	Password string `json:"password" validate:"required"`
	NewPhone string `json:"new_phone_no" validate:"required"`
}

func (h *Handler) AccountUpdatePhone(c *gin.Context) {
	var req UpdatePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	if err := h.Accounts.UpdatePhoneNumber(c.Request.Context(), c.Param("user_id"), req.Password, req.NewPhone); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
