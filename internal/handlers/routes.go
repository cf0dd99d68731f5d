package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the board API under api.
func RegisterRoutes(api *gin.RouterGroup, tasks *TaskHandler, epics *EpicHandler, trash *TrashHandler) {
	t := api.Group("/tasks")
	{
		t.GET("", tasks.GetTasks)
		t.POST("", tasks.CreateTask)
		t.GET("/:id", tasks.GetTask)
		t.PATCH("/:id", tasks.UpdateTask)
		t.DELETE("/:id", tasks.DeleteTask)
		t.POST("/:id/restore", tasks.RestoreTask)
		t.DELETE("/:id/permanent", tasks.PermanentlyDeleteTask)
		t.POST("/:id/complete", tasks.CompleteTask)
		t.POST("/:id/reopen", tasks.ReopenTask)
		t.GET("/:id/blockers", tasks.GetBlockers)
		t.GET("/:id/dependents", tasks.GetDependents)
		t.POST("/:id/dependencies", tasks.AddDependency)
		t.DELETE("/:id/dependencies", tasks.RemoveDependency)
		t.GET("/:id/cycle-check", tasks.CheckCycle)
	}

	e := api.Group("/epics")
	{
		e.GET("", epics.GetEpics)
		e.POST("", epics.CreateEpic)
		e.GET("/:id", epics.GetEpic)
		e.PATCH("/:id", epics.UpdateEpic)
		e.DELETE("/:id", epics.DeleteEpic)
		e.GET("/:id/tasks", tasks.GetTasksByEpic)
	}

	api.GET("/assignees/:name/tasks", tasks.GetTasksByAssignee)

	api.GET("/trash", trash.GetTrash)
	api.POST("/trash/cleanup", trash.Cleanup)
}
