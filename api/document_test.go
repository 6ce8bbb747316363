package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fyerfyer/study-buddy/api/middleware"
	"github.com/fyerfyer/study-buddy/api/model"
	"github.com/fyerfyer/study-buddy/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDocument(t *testing.T) {
	env := setupTestEnv(t, envOptions{maxFileSize: 1024})

	t.Run("text file", func(t *testing.T) {
		w := env.upload(t, "chemistry.txt", chemistryNotes, map[string]string{middleware.UserIDHeader: "student-1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result services.UploadResult
		decodeData(t, w, &result)
		assert.NotEmpty(t, result.DocumentID)
		assert.Equal(t, "chemistry", result.Title)
		assert.NotEmpty(t, result.FileURL)
	})

	t.Run("missing file", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader(""))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsupported type", func(t *testing.T) {
		w := env.upload(t, "slides.pptx", "binary", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Only PDF, Markdown and text files are allowed", decodeResponse(t, w).Message)
	})

	t.Run("too large", func(t *testing.T) {
		w := env.upload(t, "big.txt", strings.Repeat("a", 2048), nil)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestProcessDocument(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	docID := env.uploadNotes(t)

	events := env.process(t, docID)
	require.Len(t, events, 7)

	var progress []float64
	for _, event := range events {
		progress = append(progress, event["progress"].(float64))
	}
	assert.Equal(t, []float64{0, 10, 30, 40, 60, 80, 100}, progress)
	assert.Equal(t, "Starting PDF processing...", events[0]["message"])
	assert.True(t, strings.HasPrefix(events[2]["message"].(string), "Created "))
	assert.Equal(t, "Processing complete!", events[6]["message"])
	assert.Equal(t, true, events[6]["complete"])

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents/"+docID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var info model.DocumentInfo
	decodeData(t, w, &info)
	assert.Equal(t, "completed", info.Status)
	assert.True(t, info.IsProcessed)
	assert.Equal(t, 100, info.Progress)
	assert.Greater(t, info.ChunkCount, 0)

	t.Run("reprocess", func(t *testing.T) {
		events := env.process(t, docID)
		require.NotEmpty(t, events)
		assert.Equal(t, true, events[len(events)-1]["complete"])
	})

	t.Run("unknown document", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodPost, "/api/documents/missing/process", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	})
}

func TestProcessDocumentFailure(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	docID := env.uploadNotes(t)

	// 原始文件丢失后解析失败，错误以事件形式返回
	doc, err := env.service.Get(context.Background(), docID)
	require.NoError(t, err)
	require.NoError(t, env.store.Delete(context.Background(), doc.FileID))

	events := env.process(t, docID)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.NotEmpty(t, last["error"])
	assert.Nil(t, last["complete"])

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents/"+docID, nil))
	var info model.DocumentInfo
	decodeData(t, w, &info)
	assert.Equal(t, "failed", info.Status)
	assert.NotEmpty(t, info.Error)
}

func TestListDocuments(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	env.upload(t, "a.txt", chemistryNotes, map[string]string{middleware.UserIDHeader: "student-1"})
	env.upload(t, "b.md", "# Notes\n\nSome markdown content.", map[string]string{middleware.UserIDHeader: "student-1"})
	env.upload(t, "c.txt", chemistryNotes, map[string]string{middleware.UserIDHeader: "student-2"})

	t.Run("all", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents?page=1&page_size=2", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var list model.DocumentListResponse
		decodeData(t, w, &list)
		assert.Equal(t, int64(3), list.Total)
		assert.Equal(t, 2, list.PageSize)
		assert.Len(t, list.Documents, 2)
	})

	t.Run("by user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
		req.Header.Set(middleware.UserIDHeader, "student-1")
		w := env.do(req)
		require.Equal(t, http.StatusOK, w.Code)
		var list model.DocumentListResponse
		decodeData(t, w, &list)
		assert.Equal(t, int64(2), list.Total)
	})

	t.Run("by status", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents?status=completed", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var list model.DocumentListResponse
		decodeData(t, w, &list)
		assert.Zero(t, list.Total)
		assert.NotNil(t, list.Documents)
	})

	t.Run("invalid params", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents?status=archived", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = env.do(httptest.NewRequest(http.MethodGet, "/api/documents?page_size=500", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestChunksAndOutline(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	docID := env.uploadNotes(t)
	env.process(t, docID)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/documents/"+docID+"/chunks?page_size=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var chunks model.ChunkListResponse
	decodeData(t, w, &chunks)
	assert.Equal(t, docID, chunks.DocumentID)
	assert.Greater(t, chunks.Total, int64(1))
	require.Len(t, chunks.Chunks, 1)
	assert.Equal(t, 0, chunks.Chunks[0].Index)
	assert.Equal(t, docID+"-chunk-0", chunks.Chunks[0].EmbeddingID)
	assert.Equal(t, 1, chunks.Chunks[0].PageNumber)

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/documents/"+docID+"/outline", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var outline model.OutlineResponse
	decodeData(t, w, &outline)
	var titles []string
	for _, section := range outline.Sections {
		titles = append(titles, section.Title)
	}
	assert.Contains(t, strings.Join(titles, "|"), "Atoms")
	assert.Contains(t, strings.Join(titles, "|"), "Bonds")
}

func TestQueryChunks(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	docID := env.uploadNotes(t)
	env.process(t, docID)

	query := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/documents/"+docID+"/query", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return env.do(req)
	}

	t.Run("similar chunks", func(t *testing.T) {
		w := query(`{"query":"covalent ionic bonds metals","topK":1}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var resp model.QueryResponse
		decodeData(t, w, &resp)
		assert.Equal(t, docID, resp.DocumentID)
		require.Len(t, resp.Results, 1)
		assert.Contains(t, resp.Results[0].Content, "Covalent")
	})

	t.Run("default topK", func(t *testing.T) {
		w := query(`{"query":"atoms"}`)
		require.Equal(t, http.StatusOK, w.Code)
		var raw map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
		assert.Contains(t, string(raw["data"]), `"results"`)
	})

	t.Run("validation", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, query(`{"query":"atoms","topK":51}`).Code)
		assert.Equal(t, http.StatusBadRequest, query(`{"topK":3}`).Code)
		assert.Equal(t, http.StatusBadRequest, query(`{"query":"   "}`).Code)
		assert.Equal(t, http.StatusBadRequest, query(`not json`).Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/documents/missing/query", strings.NewReader(`{"query":"atoms"}`))
		req.Header.Set("Content-Type", "application/json")
		assert.Equal(t, http.StatusNotFound, env.do(req).Code)
	})
}

func TestDeleteDocument(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	docID := env.uploadNotes(t)
	env.process(t, docID)

	w := env.do(httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp model.DocumentDeleteResponse
	decodeData(t, w, &resp)
	assert.True(t, resp.Success)

	count, err := env.vectors.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	w = env.do(httptest.NewRequest(http.MethodDelete, "/api/documents/"+docID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProcessDocumentAsync_Disabled(t *testing.T) {
	env := setupTestEnv(t, envOptions{})
	docID := env.uploadNotes(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/api/documents/"+docID+"/process/async", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Async processing is not enabled", decodeResponse(t, w).Message)
}
