package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fyerfyer/study-buddy/api/model"
	"github.com/fyerfyer/study-buddy/pkg/taskqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessDocumentAsync(t *testing.T) {
	env := setupTestEnv(t, envOptions{withQueue: true})
	docID := env.uploadNotes(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/documents/"+docID+"/process/async", nil))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var enqueued model.EnqueueResponse
	decodeData(t, w, &enqueued)
	assert.NotEmpty(t, enqueued.TaskID)
	assert.Equal(t, docID, enqueued.DocumentID)
	assert.Equal(t, "pending", enqueued.Status)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/tasks/"+enqueued.TaskID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info model.TaskInfo
	decodeData(t, w, &info)
	assert.Equal(t, string(taskqueue.TaskDocumentProcess), info.Type)
	assert.Equal(t, docID, info.DocumentID)
	assert.Equal(t, string(taskqueue.StatusPending), info.Status)

	// 直接执行任务处理器，模拟后台worker
	ctx := context.Background()
	task, err := env.queue.GetTask(ctx, enqueued.TaskID)
	require.NoError(t, err)
	result, err := env.service.ProcessTaskHandler().ProcessTask(ctx, task, func(progress int, message string) {
		require.NoError(t, env.queue.UpdateProgress(ctx, task.ID, progress, message))
	})
	require.NoError(t, err)
	require.NoError(t, env.queue.UpdateTaskStatus(ctx, task.ID, taskqueue.StatusCompleted, result, ""))

	t.Run("events of finished task", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/tasks/"+enqueued.TaskID+"/events", nil))
		require.Equal(t, http.StatusOK, w.Code)
		events := parseEvents(t, w.Body.String())
		require.Len(t, events, 1)
		assert.Equal(t, float64(100), events[0]["progress"])
		assert.Equal(t, "completed", events[0]["status"])
		assert.Equal(t, true, events[0]["complete"])
	})

	t.Run("document tasks", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents/"+docID+"/tasks", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			DocumentID string           `json:"documentId"`
			Tasks      []model.TaskInfo `json:"tasks"`
		}
		decodeData(t, w, &resp)
		assert.Equal(t, docID, resp.DocumentID)
		require.Len(t, resp.Tasks, 1)
		assert.Equal(t, "completed", resp.Tasks[0].Status)
	})

	t.Run("document processed", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents/"+docID, nil))
		var doc model.DocumentInfo
		decodeData(t, w, &doc)
		assert.Equal(t, "completed", doc.Status)
		assert.Greater(t, doc.ChunkCount, 0)
	})

	t.Run("reprocess and unknown document", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, "/api/documents/"+docID+"/process/async", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
		w = env.do(httptest.NewRequest(http.MethodPost, "/api/documents/missing/process/async", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetTask_NotFound(t *testing.T) {
	env := setupTestEnv(t, envOptions{withQueue: true})

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/tasks/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", decodeResponse(t, w).Message)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/tasks/missing/events", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTaskEndpoints_AsyncDisabled(t *testing.T) {
	env := setupTestEnv(t, envOptions{})

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/tasks/any", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/documents/any/tasks", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
