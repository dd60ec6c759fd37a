package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task type constants
const (
	TaskTypeMediaDownload = "media_download"
)

// Task status constants
const (
	TaskStatusPending   = "PENDING"
	TaskStatusExecuting = "EXECUTING"
	TaskStatusCompleted = "COMPLETED"
	TaskStatusFailed    = "FAILED"
)

// AllStatuses lists every valid task status, in lifecycle order.
var AllStatuses = []string{
	TaskStatusPending,
	TaskStatusExecuting,
	TaskStatusCompleted,
	TaskStatusFailed,
}

// ValidStatus reports whether s is one of the four task statuses.
func ValidStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusExecuting, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// Task is one durable unit of work: fetch item bvid into favorite list favid.
type Task struct {
	ID           int64      `db:"id"`
	TaskType     string     `db:"task_type"`
	TaskKey      string     `db:"task_key"`
	Payload      string     `db:"payload"`
	Status       string     `db:"status"`
	RetryCount   int        `db:"retry_count"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	ErrorMessage *string    `db:"error_message"`
}

// taskKey is the natural key of a media download task. Field order is fixed so
// that equal keys always serialize to the same string.
type taskKey struct {
	Bvid  string `json:"bvid"`
	Favid string `json:"favid"`
}

// MakeTaskKey builds the canonical task_key string for a (bvid, favid) pair.
func MakeTaskKey(bvid, favid string) string {
	b, _ := json.Marshal(taskKey{Bvid: bvid, Favid: favid})
	return string(b)
}

// ParseTaskKey splits a task_key string back into its (bvid, favid) pair.
func ParseTaskKey(key string) (bvid, favid string, err error) {
	var k taskKey
	if err := json.Unmarshal([]byte(key), &k); err != nil {
		return "", "", fmt.Errorf("invalid task key %q: %w", key, err)
	}
	return k.Bvid, k.Favid, nil
}

// TaskContext is the serialized payload of a media download task.
type TaskContext struct {
	Bvid  string `json:"bvid"`
	Favid string `json:"favid"`
	// NameTemplate overrides the per-list subpath template when set.
	NameTemplate string `json:"name_template,omitempty"`
	// Batch marks multi-part items that need the downloader's batch mode.
	Batch bool `json:"batch,omitempty"`
}

// Encode serializes the context to its payload string form.
func (c TaskContext) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode task context: %w", err)
	}
	return string(b), nil
}

// DecodeTaskContext parses a payload string produced by Encode.
func DecodeTaskContext(payload string) (TaskContext, error) {
	var c TaskContext
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return TaskContext{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return c, nil
}
