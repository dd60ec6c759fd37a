package router

import (
	"net/http"

	"favsync/internal/api/handler"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "favsync",
		})
	})

	taskHandler := handler.NewTaskHandler(deps)

	v1 := r.Group("/api/v1")
	{
		tasks := v1.Group("/tasks")
		{
			// POST /api/v1/tasks - Submit a task (idempotent)
			tasks.POST("", taskHandler.SubmitTask)

			// GET /api/v1/tasks - List tasks with pagination and status filter
			tasks.GET("", taskHandler.ListTasks)

			// GET /api/v1/tasks/stats - Aggregate counts per status
			tasks.GET("/stats", taskHandler.GetStats)

			// GET /api/v1/tasks/:id - Get task details
			tasks.GET("/:id", taskHandler.GetTask)

			// PUT /api/v1/tasks/:id/status - Administrative status override
			tasks.PUT("/:id/status", taskHandler.OverrideStatus)

			// DELETE /api/v1/tasks/:id - Delete a task
			tasks.DELETE("/:id", taskHandler.DeleteTask)
		}
	}

	return r
}
