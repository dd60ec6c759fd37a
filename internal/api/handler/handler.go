package handler

import (
	"log/slog"

	"favsync/internal/config"
	"favsync/internal/store"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger *slog.Logger
	Config *config.Config
	Store  store.Store
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	logger *slog.Logger
	cfg    *config.Config
	store  store.Store
}

// NewTaskHandler creates a new TaskHandler instance
func NewTaskHandler(deps *Dependencies) *TaskHandler {
	return &TaskHandler{
		logger: deps.Logger,
		cfg:    deps.Config,
		store:  deps.Store,
	}
}
