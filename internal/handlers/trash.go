package handlers

import (
	"net/http"
	"strconv"

	"mission-control/board/internal/services"

	"github.com/gin-gonic/gin"
)

type TrashHandler struct {
	taskService    services.TaskService
	purgeAfterDays int
}

func NewTrashHandler(taskService services.TaskService, purgeAfterDays int) *TrashHandler {
	return &TrashHandler{taskService: taskService, purgeAfterDays: purgeAfterDays}
}

func (h *TrashHandler) GetTrash(c *gin.Context) {
	trashed, err := h.taskService.ListTrashed(c.Request.Context())
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": trashed, "total": len(trashed), "purgeAfterDays": h.purgeAfterDays})
}

// Cleanup purges trashed tasks older than ?days=, defaulting to the
// configured threshold.
func (h *TrashHandler) Cleanup(c *gin.Context) {
	days := h.purgeAfterDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = n
	}

	purged, err := h.taskService.CleanupOldDeletedTasks(c.Request.Context(), days)
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": purged, "days": days})
}
