package dto

import (
	"time"

	"favsync/internal/domain"
)

type SubmitTaskRequest struct {
	Bvid         string `json:"bvid" binding:"required"`
	Favid        string `json:"favid"`
	NameTemplate string `json:"name_template"`
	Batch        bool   `json:"batch"`
}

type SubmitTaskResponse struct {
	Message string  `json:"message"`
	Task    TaskDTO `json:"task"`
}

type ListTasksRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
}

type ListTasksResponse struct {
	Tasks    []TaskDTO `json:"tasks"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

type StatsResponse struct {
	Stats map[string]int `json:"stats"`
}

type OverrideStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	ErrorMessage string `json:"error_message"`
}

type TaskDTO struct {
	ID           int64   `json:"id"`
	TaskType     string  `json:"task_type"`
	TaskKey      string  `json:"task_key"`
	Payload      string  `json:"payload"`
	Status       string  `json:"status"`
	RetryCount   int     `json:"retry_count"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

// FromTask converts a domain task into its wire representation.
func FromTask(t *domain.Task) TaskDTO {
	d := TaskDTO{
		ID:           t.ID,
		TaskType:     t.TaskType,
		TaskKey:      t.TaskKey,
		Payload:      t.Payload,
		Status:       t.Status,
		RetryCount:   t.RetryCount,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    t.UpdatedAt.Format(time.RFC3339),
		ErrorMessage: t.ErrorMessage,
	}
	if t.CompletedAt != nil {
		s := t.CompletedAt.Format(time.RFC3339)
		d.CompletedAt = &s
	}
	return d
}
