package handlers

import (
	"net/http"

	"mission-control/board/internal/models"
	"mission-control/board/internal/services"

	"github.com/gin-gonic/gin"
)

type EpicHandler struct {
	epicService services.EpicService
}

func NewEpicHandler(epicService services.EpicService) *EpicHandler {
	return &EpicHandler{epicService: epicService}
}

func (h *EpicHandler) GetEpics(c *gin.Context) {
	epics, err := h.epicService.ListEpics(c.Request.Context())
	if err != nil {
		handleError(c, "epic", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epics": epics, "total": len(epics)})
}

func (h *EpicHandler) GetEpic(c *gin.Context) {
	epic, err := h.epicService.GetEpic(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, "epic", err)
		return
	}
	c.JSON(http.StatusOK, epic)
}

func (h *EpicHandler) CreateEpic(c *gin.Context) {
	var epic models.Epic
	if err := c.ShouldBindJSON(&epic); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.epicService.CreateEpic(c.Request.Context(), epic)
	if err != nil {
		handleError(c, "epic", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *EpicHandler) UpdateEpic(c *gin.Context) {
	var patch models.EpicPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := h.epicService.UpdateEpic(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		handleError(c, "epic", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteEpic removes the epic and reports how many tasks were detached.
func (h *EpicHandler) DeleteEpic(c *gin.Context) {
	detached, err := h.epicService.DeleteEpic(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, "epic", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "tasksDetached": detached})
}
