package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fyerfyer/study-buddy/api/middleware"
	"github.com/fyerfyer/study-buddy/api/model"
	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/fyerfyer/study-buddy/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	documentService *services.DocumentService // 文档服务
	logger          *logrus.Logger            // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("No file uploaded", err.Error()))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": req.File.Filename,
		}).Error("Failed to open uploaded file")
		middleware.HandleError(c, middleware.NewInternalError("Failed to read uploaded file"))
		return
	}
	defer file.Close()

	result, err := h.documentService.Upload(
		c.Request.Context(),
		file,
		req.File.Filename,
		req.File.Size,
		c.GetHeader(middleware.UserIDHeader),
	)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// ProcessDocument 同步处理文档，以SSE推送进度
// POST /api/documents/:id/process
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	// 文档不存在时直接返回JSON错误
	if _, err := h.documentService.Get(c.Request.Context(), docID); err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// 客户端断开后继续处理，写入失败会被忽略
	ctx := context.WithoutCancel(c.Request.Context())
	_, err := h.documentService.Process(ctx, docID, func(event services.ProgressEvent) {
		writeEvent(c, event)
	})
	if err != nil {
		h.logger.WithField("doc_id", docID).
			WithField(middleware.FieldTraceID, middleware.GetTraceID(c)).
			WithError(err).Error("Error processing document")
		writeEvent(c, gin.H{"error": err.Error()})
	}
}

// ProcessDocumentAsync 将文档处理加入任务队列
// POST /api/documents/:id/process/async
func (h *DocumentHandler) ProcessDocumentAsync(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	taskID, err := h.documentService.EnqueueProcessing(c.Request.Context(), docID)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.EnqueueResponse{
		TaskID:     taskID,
		DocumentID: docID,
		Status:     "pending",
	}))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query parameters", err.Error()))
		return
	}

	filters := req.Filters(c.GetHeader(middleware.UserIDHeader))
	docs, total, err := h.documentService.List(c.Request.Context(), req.Offset(), req.GetPageSize(), filters)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	items := make([]model.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		items = append(items, model.NewDocumentInfo(doc))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		PaginationResponse: req.Response(total),
		Documents:          items,
	}))
}

// GetDocument 获取文档详情
// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	doc, err := h.documentService.Get(c.Request.Context(), docID)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentInfo(doc)))
}

// ListChunks 分页获取文档分块
// GET /api/documents/:id/chunks
func (h *DocumentHandler) ListChunks(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	var req model.ChunkListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query parameters", err.Error()))
		return
	}

	chunks, total, err := h.documentService.Chunks(c.Request.Context(), docID, req.Offset(), req.GetPageSize())
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	items := make([]model.ChunkInfo, 0, len(chunks))
	for _, chunk := range chunks {
		items = append(items, model.NewChunkInfo(chunk))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.ChunkListResponse{
		PaginationResponse: req.Response(int64(total)),
		DocumentID:         docID,
		Chunks:             items,
	}))
}

// GetOutline 获取文档的章节结构
// GET /api/documents/:id/outline
func (h *DocumentHandler) GetOutline(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	sections, err := h.documentService.Outline(c.Request.Context(), docID)
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}
	if sections == nil {
		sections = []document.Section{}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.OutlineResponse{
		DocumentID: docID,
		Sections:   sections,
	}))
}

// QueryChunks 检索与查询最相似的分块
// POST /api/documents/:id/query
func (h *DocumentHandler) QueryChunks(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Invalid query request", err.Error()))
		return
	}

	results, err := h.documentService.QuerySimilarChunks(c.Request.Context(), docID, req.Query, req.GetTopK())
	if err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QueryResponse{
		DocumentID: docID,
		Query:      req.Query,
		Results:    results,
	}))
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	if err := h.documentService.Delete(c.Request.Context(), docID); err != nil {
		middleware.HandleError(c, toAppError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success:    true,
		DocumentID: docID,
	}))
}

// bindDocumentID 绑定路径中的文档ID
func bindDocumentID(c *gin.Context) (string, bool) {
	var req model.DocumentIDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("Document ID is required", err.Error()))
		return "", false
	}
	return req.ID, true
}

// writeEvent 写入一条SSE data事件并立即刷新
func writeEvent(c *gin.Context, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// toAppError 将服务层错误映射为API错误
func toAppError(err error) error {
	switch {
	case errors.Is(err, models.ErrDocumentNotFound):
		return middleware.NewNotFoundError("Document not found")
	case errors.Is(err, models.ErrInvalidDocumentStatus):
		return middleware.NewConflictError("Document state does not allow this operation", err.Error())
	case errors.Is(err, services.ErrFileTooLarge):
		return middleware.NewTooLargeError("File size exceeds the upload limit")
	case errors.Is(err, services.ErrUnsupportedFileType):
		return middleware.NewValidationError("Only PDF, Markdown and text files are allowed",
			"supported extensions: "+strings.Join(document.SupportedExtensions(), ", "))
	case errors.Is(err, services.ErrEmptyQuery):
		return middleware.NewValidationError("Query is required")
	case errors.Is(err, services.ErrAsyncDisabled):
		return middleware.NewBusinessError("Async processing is not enabled")
	default:
		return err
	}
}
