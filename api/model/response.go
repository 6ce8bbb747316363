package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/fyerfyer/study-buddy/internal/services"
	"github.com/fyerfyer/study-buddy/pkg/taskqueue"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	FileName    string          `json:"fileName"`
	FileType    string          `json:"fileType"`
	FileURL     string          `json:"fileUrl"`
	FileSize    int64           `json:"fileSize"`
	PageCount   int             `json:"pageCount"`
	Status      string          `json:"status"`
	IsProcessed bool            `json:"isProcessed"`
	Stage       string          `json:"stage,omitempty"`
	Progress    int             `json:"progress"`
	ChunkCount  int             `json:"chunkCount"`
	Error       string          `json:"error,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
}

// NewDocumentInfo 将文档模型转换为响应结构
func NewDocumentInfo(doc *models.Document) DocumentInfo {
	info := DocumentInfo{
		ID:          doc.ID,
		Title:       doc.Title,
		FileName:    doc.FileName,
		FileType:    doc.FileType,
		FileURL:     doc.FilePath,
		FileSize:    doc.FileSize,
		PageCount:   doc.PageCount,
		Status:      string(doc.Status),
		IsProcessed: doc.IsProcessed,
		Stage:       string(doc.CurrentStage),
		Progress:    doc.Progress,
		ChunkCount:  doc.ChunkCount,
		Error:       doc.Error,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		ProcessedAt: doc.ProcessedAt,
	}
	if len(doc.Metadata) > 0 {
		info.Metadata = json.RawMessage(doc.Metadata)
	}
	return info
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	PaginationResponse
	Documents []DocumentInfo `json:"documents"`
}

// ChunkInfo 文档分块信息
type ChunkInfo struct {
	Index       int    `json:"index"`
	Content     string `json:"content"`
	EmbeddingID string `json:"embeddingId"`
	PageNumber  int    `json:"pageNumber,omitempty"`
	Section     string `json:"section,omitempty"`
}

// NewChunkInfo 将分块模型转换为响应结构
func NewChunkInfo(chunk *models.DocumentChunk) ChunkInfo {
	info := ChunkInfo{
		Index:       chunk.ChunkIndex,
		Content:     chunk.Content,
		EmbeddingID: chunk.EmbeddingID,
	}
	var meta models.ChunkMeta
	if len(chunk.Metadata) > 0 && json.Unmarshal(chunk.Metadata, &meta) == nil {
		info.PageNumber = meta.PageNumber
		info.Section = meta.Section
	}
	return info
}

// ChunkListResponse 分块列表响应
type ChunkListResponse struct {
	PaginationResponse
	DocumentID string      `json:"documentId"`
	Chunks     []ChunkInfo `json:"chunks"`
}

// OutlineResponse 文档章节结构响应
type OutlineResponse struct {
	DocumentID string             `json:"documentId"`
	Sections   []document.Section `json:"sections"`
}

// QueryResponse 相似分块查询响应
type QueryResponse struct {
	DocumentID string                 `json:"documentId"`
	Query      string                 `json:"query"`
	Results    []services.ChunkResult `json:"results"`
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"documentId"`
}

// EnqueueResponse 异步处理任务创建响应
type EnqueueResponse struct {
	TaskID     string `json:"taskId"`
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
}

// TaskInfo 任务信息
type TaskInfo struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	DocumentID  string          `json:"documentId"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message,omitempty"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// NewTaskInfo 将队列任务转换为响应结构
func NewTaskInfo(task *taskqueue.Task) TaskInfo {
	return TaskInfo{
		ID:          task.ID,
		Type:        string(task.Type),
		DocumentID:  task.DocumentID,
		Status:      string(task.Status),
		Progress:    task.Progress,
		Message:     task.Message,
		Error:       task.Error,
		Result:      task.Result,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
		CompletedAt: task.CompletedAt,
	}
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int64 `json:"total"`    // 总记录数
	Page     int   `json:"page"`     // 当前页码
	PageSize int   `json:"pageSize"` // 每页大小
}
