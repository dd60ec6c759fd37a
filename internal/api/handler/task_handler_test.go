package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"favsync/internal/api/dto"
	"favsync/internal/api/handler"
	"favsync/internal/api/router"
	"favsync/internal/config"
	"favsync/internal/domain"
	"favsync/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAPI(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore()
	cfg := &config.Config{
		FavoriteLists: map[string]config.FavoriteListConfig{
			config.SentinelFavid: {Fid: config.SentinelFavid, Path: "sync/"},
		},
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		Store:  st,
	})
	return r, st
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestSubmitTaskCreates(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"bvid": "BV1", "favid": "fav1"})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[dto.SubmitTaskResponse](t, w)
	assert.Equal(t, "task created", resp.Message)
	assert.Equal(t, domain.TaskStatusPending, resp.Task.Status)
	assert.Equal(t, domain.MakeTaskKey("BV1", "fav1"), resp.Task.TaskKey)
}

func TestSubmitTaskRequiresBvid(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"favid": "fav1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitTaskDefaultsToSentinelList(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"bvid": "BV1"})
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[dto.SubmitTaskResponse](t, w)
	assert.Equal(t, domain.MakeTaskKey("BV1", config.SentinelFavid), resp.Task.TaskKey)
}

func TestSubmitTaskIdempotentResubmission(t *testing.T) {
	r, st := setupAPI(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"bvid": "BV1", "favid": "fav1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"bvid": "BV1", "favid": "fav1", "name_template": "{title}"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.SubmitTaskResponse](t, w)
	assert.Equal(t, domain.TaskStatusPending, resp.Task.Status)
	assert.Contains(t, resp.Task.Payload, "{title}")

	// Still exactly one row for the pair.
	stats, err := st.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.TaskStatusPending])
}

func TestSubmitTaskRequeuesFinishedTask(t *testing.T) {
	r, st := setupAPI(t)
	ctx := context.Background()

	w := doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"bvid": "BV1", "favid": "fav1"})
	require.Equal(t, http.StatusCreated, w.Code)

	key := domain.MakeTaskKey("BV1", "fav1")
	_, err := st.UpdateStatus(ctx, key, domain.TaskStatusCompleted, "")
	require.NoError(t, err)

	w = doJSON(t, r, http.MethodPost, "/api/v1/tasks", gin.H{"bvid": "BV1", "favid": "fav1"})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.SubmitTaskResponse](t, w)
	assert.Equal(t, "task re-queued", resp.Message)
	assert.Equal(t, domain.TaskStatusPending, resp.Task.Status)
	assert.Nil(t, resp.Task.CompletedAt)
}

func TestGetStats(t *testing.T) {
	r, st := setupAPI(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		bvid := fmt.Sprintf("BV%d", i)
		_, err := st.Create(ctx, domain.TaskTypeMediaDownload, domain.MakeTaskKey(bvid, "fav1"), "{}")
		require.NoError(t, err)
	}
	_, err := st.UpdateStatus(ctx, domain.MakeTaskKey("BV0", "fav1"), domain.TaskStatusCompleted, "")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.StatsResponse](t, w)
	assert.Equal(t, 2, resp.Stats[domain.TaskStatusPending])
	assert.Equal(t, 1, resp.Stats[domain.TaskStatusCompleted])
	// Every status is present even at zero.
	for _, status := range domain.AllStatuses {
		_, ok := resp.Stats[status]
		assert.True(t, ok, "missing status %s", status)
	}
}

func TestListTasksPagination(t *testing.T) {
	r, st := setupAPI(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		bvid := fmt.Sprintf("BV%02d", i)
		_, err := st.Create(ctx, domain.TaskTypeMediaDownload, domain.MakeTaskKey(bvid, "fav1"), "{}")
		require.NoError(t, err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.ListTasksResponse](t, w)
	assert.Len(t, resp.Tasks, 10)
	assert.Equal(t, 25, resp.Total)
	assert.Equal(t, 1, resp.Page)

	w = doJSON(t, r, http.MethodGet, "/api/v1/tasks?page=3&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.ListTasksResponse](t, w)
	assert.Len(t, resp.Tasks, 5)
	assert.Equal(t, 25, resp.Total)
}

func TestListTasksStatusFilter(t *testing.T) {
	r, st := setupAPI(t)
	ctx := context.Background()

	_, err := st.Create(ctx, domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV1", "fav1"), "{}")
	require.NoError(t, err)
	_, err = st.Create(ctx, domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV2", "fav1"), "{}")
	require.NoError(t, err)
	_, err = st.UpdateStatus(ctx, domain.MakeTaskKey("BV2", "fav1"), domain.TaskStatusFailed, "boom")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks?status=FAILED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.ListTasksResponse](t, w)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, domain.TaskStatusFailed, resp.Tasks[0].Status)
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTask(t *testing.T) {
	r, st := setupAPI(t)

	task, err := st.Create(context.Background(), domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV1", "fav1"), "{}")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", task.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[dto.TaskDTO](t, w)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, task.TaskKey, got.TaskKey)
}

func TestGetTaskNotFound(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTaskInvalidID(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodGet, "/api/v1/tasks/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverrideStatus(t *testing.T) {
	r, st := setupAPI(t)

	task, err := st.Create(context.Background(), domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV1", "fav1"), "{}")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/status", task.ID),
		gin.H{"status": domain.TaskStatusCompleted})
	require.Equal(t, http.StatusOK, w.Code)

	got := decode[dto.TaskDTO](t, w)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestOverrideStatusFailedRequiresMessage(t *testing.T) {
	r, st := setupAPI(t)
	ctx := context.Background()

	task, err := st.Create(ctx, domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV1", "fav1"), "{}")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/status", task.ID),
		gin.H{"status": domain.TaskStatusFailed})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// No mutation happened.
	unchanged, err := st.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, unchanged.Status)
	assert.Nil(t, unchanged.ErrorMessage)
}

func TestOverrideStatusRejectsUnknownStatus(t *testing.T) {
	r, st := setupAPI(t)

	task, err := st.Create(context.Background(), domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV1", "fav1"), "{}")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/status", task.ID),
		gin.H{"status": "RUNNING"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOverrideStatusNotFound(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodPut, "/api/v1/tasks/999/status",
		gin.H{"status": domain.TaskStatusPending})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTask(t *testing.T) {
	r, st := setupAPI(t)

	task, err := st.Create(context.Background(), domain.TaskTypeMediaDownload, domain.MakeTaskKey("BV1", "fav1"), "{}")
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", task.ID), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", task.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteTaskNotFound(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodDelete, "/api/v1/tasks/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	r, _ := setupAPI(t)

	w := doJSON(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
