package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary Assign a support specialist
// @Description Attaches a free specialist to the user's session, or queues a busy one
// @Tags staff
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/sessions/{user_id}/staff [post]
func (h *Handler) StaffAssign(c *gin.Context) {
	result, err := h.Staff.Assign(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if result.Skipped {
		c.JSON(http.StatusOK, gin.H{
			"status":     "skipped",
			"assignment": result.Assignment,
			"message":    "A specialist, " + result.Assignment.Name + ", is already assigned to this case.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "assignment": result.Assignment})
}

func (h *Handler) StaffList(c *gin.Context) {
	members, err := h.Staff.List(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list staff", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": members})
}

type AddStaffRequest struct {
	Name        string `json:"name" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
}

func (h *Handler) StaffAdd(c *gin.Context) {
	var req AddStaffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	member, err := h.Staff.Add(c.Request.Context(), req.Name, req.PhoneNumber)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "staff": member})
}

func (h *Handler) StaffDelete(c *gin.Context) {
	if err := h.Staff.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) StaffRelease(c *gin.Context) {
	result, err := h.Staff.Release(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if result.AlreadyFree {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Support staff '" + result.Staff.Name + "' is already free and not assigned to anyone.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "staff": result.Staff})
}
