package handlers

import (
	"net/http"

	"mission-control/board/internal/models"
	"mission-control/board/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

func taskID(c *gin.Context) models.TaskID {
	return models.TaskID(c.Param("id"))
}

// GetTasks lists the board. Query parameters column, epicId, assignedTo,
// source and tag narrow the result.
func (h *TaskHandler) GetTasks(c *gin.Context) {
	filter := services.TaskFilter{
		Column:     models.Column(c.Query("column")),
		EpicID:     c.Query("epicId"),
		AssignedTo: c.Query("assignedTo"),
		Source:     models.Source(c.Query("source")),
		Tag:        c.Query("tag"),
	}
	tasks, err := h.taskService.ListTasks(c.Request.Context(), filter)
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.taskService.GetTask(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var task models.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		badRequest(c, err)
		return
	}
	created, err := h.taskService.CreateTask(c.Request.Context(), task)
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	var patch models.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := h.taskService.UpdateTask(c.Request.Context(), taskID(c), patch)
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *TaskHandler) CompleteTask(c *gin.Context) {
	task, err := h.taskService.CompleteTask(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ReopenTask(c *gin.Context) {
	task, err := h.taskService.ReopenTask(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// DeleteTask moves the task to the trash.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	task, err := h.taskService.SoftDelete(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) RestoreTask(c *gin.Context) {
	task, err := h.taskService.Restore(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "deleted task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) PermanentlyDeleteTask(c *gin.Context) {
	if err := h.taskService.HardDelete(c.Request.Context(), taskID(c)); err != nil {
		handleError(c, "task", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TaskHandler) GetBlockers(c *gin.Context) {
	blockers, err := h.taskService.Blockers(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": len(blockers) > 0, "blockers": blockers})
}

func (h *TaskHandler) GetDependents(c *gin.Context) {
	dependents, err := h.taskService.Dependents(c.Request.Context(), taskID(c))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	if dependents == nil {
		dependents = []models.TaskID{}
	}
	c.JSON(http.StatusOK, gin.H{"dependents": dependents})
}

type dependencyRequest struct {
	DependsOn models.TaskID `json:"dependsOn" binding:"required"`
}

func (h *TaskHandler) AddDependency(c *gin.Context) {
	var req dependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.taskService.AddDependency(c.Request.Context(), taskID(c), req.DependsOn)
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) RemoveDependency(c *gin.Context) {
	var req dependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	task, err := h.taskService.RemoveDependency(c.Request.Context(), taskID(c), req.DependsOn)
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CheckCycle(c *gin.Context) {
	candidate := c.Query("dependsOn")
	if candidate == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dependsOn query parameter is required"})
		return
	}
	cycle, err := h.taskService.WouldCreateCycle(c.Request.Context(), taskID(c), models.TaskID(candidate))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wouldCreateCycle": cycle})
}

func (h *TaskHandler) GetTasksByAssignee(c *gin.Context) {
	tasks, err := h.taskService.TasksByAssignee(c.Request.Context(), c.Param("name"))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}

func (h *TaskHandler) GetTasksByEpic(c *gin.Context) {
	tasks, err := h.taskService.TasksByEpic(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, "task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "total": len(tasks)})
}
