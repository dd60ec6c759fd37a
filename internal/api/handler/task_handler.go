package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"favsync/internal/api/dto"
	"favsync/internal/config"
	"favsync/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// SubmitTask handles POST /api/v1/tasks
// Idempotent admission: a new pair gets a PENDING task, resubmitting a queued
// task updates its payload, and resubmitting a finished task re-queues it.
func (h *TaskHandler) SubmitTask(c *gin.Context) {
	var req dto.SubmitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.Favid == "" {
		req.Favid = config.SentinelFavid
	}

	payload, err := domain.TaskContext{
		Bvid:         req.Bvid,
		Favid:        req.Favid,
		NameTemplate: req.NameTemplate,
		Batch:        req.Batch,
	}.Encode()
	if err != nil {
		h.logger.Error("Failed to encode task payload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to encode task payload",
		})
		return
	}

	taskKey := domain.MakeTaskKey(req.Bvid, req.Favid)

	task, err := h.store.Create(c.Request.Context(), domain.TaskTypeMediaDownload, taskKey, payload)
	if err == nil {
		h.logger.Info("Task submitted",
			slog.String("task_key", taskKey),
			slog.Int64("id", task.ID),
		)
		c.JSON(http.StatusCreated, dto.SubmitTaskResponse{
			Message: "task created",
			Task:    dto.FromTask(task),
		})
		return
	}
	if !errors.Is(err, domain.ErrDuplicateTask) {
		h.logger.Error("Failed to create task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create task",
		})
		return
	}

	// The pair is already known. A finished task is re-queued with the new
	// payload, a queued one just gets its payload refreshed.
	existing, err := h.store.GetByKey(c.Request.Context(), taskKey)
	if err != nil {
		h.logger.Error("Failed to load existing task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load existing task",
		})
		return
	}

	reset := existing.Status == domain.TaskStatusCompleted || existing.Status == domain.TaskStatusFailed
	updated, err := h.store.UpdatePayload(c.Request.Context(), taskKey, payload, reset)
	if err != nil {
		h.logger.Error("Failed to update task payload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to update task payload",
		})
		return
	}

	message := "task already queued, payload updated"
	if reset {
		message = "task re-queued"
	}
	h.logger.Info("Task resubmitted",
		slog.String("task_key", taskKey),
		slog.Bool("reset", reset),
	)
	c.JSON(http.StatusOK, dto.SubmitTaskResponse{
		Message: message,
		Task:    dto.FromTask(updated),
	})
}

// GetStats handles GET /api/v1/tasks/stats
// Returns the task count per status, every status present.
func (h *TaskHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, dto.StatsResponse{Stats: stats})
}

// ListTasks handles GET /api/v1/tasks
// Lists tasks newest first with offset pagination and an optional status filter.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	var req dto.ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}
	if req.Status != "" && !domain.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
		})
		return
	}

	page, err := h.store.Paginate(c.Request.Context(), req.Page, req.PageSize, req.Status)
	if err != nil {
		h.logger.Error("Failed to list tasks", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list tasks",
		})
		return
	}

	tasks := make([]dto.TaskDTO, len(page.Items))
	for i := range page.Items {
		tasks[i] = dto.FromTask(&page.Items[i])
	}

	c.JSON(http.StatusOK, dto.ListTasksResponse{
		Tasks:    tasks,
		Total:    page.Total,
		Page:     page.Page,
		PageSize: page.PageSize,
	})
}

// GetTask handles GET /api/v1/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	task, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, domain.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Task not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task",
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromTask(task))
}

// OverrideStatus handles PUT /api/v1/tasks/:id/status
// Administrative status override; the completed_at/error_message bookkeeping
// applies the same as for automatic transitions. Setting FAILED requires a
// caller-supplied message.
func (h *TaskHandler) OverrideStatus(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	var req dto.OverrideStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if !domain.ValidStatus(req.Status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status: " + req.Status,
		})
		return
	}
	if req.Status == domain.TaskStatusFailed && req.ErrorMessage == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "error_message is required when setting status to " + domain.TaskStatusFailed,
		})
		return
	}

	task, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, domain.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Task not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task",
		})
		return
	}

	updated, err := h.store.UpdateStatus(c.Request.Context(), task.TaskKey, req.Status, req.ErrorMessage)
	if err != nil {
		h.logger.Error("Failed to override task status", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to override task status",
		})
		return
	}

	h.logger.Info("Task status overridden",
		slog.String("task_key", task.TaskKey),
		slog.String("old_status", task.Status),
		slog.String("new_status", req.Status),
	)
	c.JSON(http.StatusOK, dto.FromTask(updated))
}

// DeleteTask handles DELETE /api/v1/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}

	task, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, domain.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Task not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get task",
		})
		return
	}

	if _, err := h.store.Delete(c.Request.Context(), task.TaskKey); err != nil {
		h.logger.Error("Failed to delete task", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to delete task",
		})
		return
	}

	h.logger.Info("Task deleted", slog.String("task_key", task.TaskKey))
	c.Status(http.StatusNoContent)
}

// taskID parses and validates the :id path parameter.
func (h *TaskHandler) taskID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}
