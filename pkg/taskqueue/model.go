package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskDocumentProcess 文档处理任务：解析、分块、向量化、保存
	TaskDocumentProcess TaskType = "document:process"
	// TaskDocumentDelete 文档清理任务：删除向量和原始文件
	TaskDocumentDelete TaskType = "document:delete"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// IsFinal 判断任务是否已结束
func (s TaskStatus) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`                     // 任务唯一标识符
	Type        TaskType        `json:"type"`                   // 任务类型
	DocumentID  string          `json:"document_id"`            // 关联的文档ID
	Status      TaskStatus      `json:"status"`                 // 任务状态
	Progress    int             `json:"progress"`               // 处理进度（0-100）
	Message     string          `json:"message,omitempty"`      // 当前阶段描述
	Payload     json.RawMessage `json:"payload"`                // 任务载荷数据
	Result      json.RawMessage `json:"result,omitempty"`       // 任务结果数据
	Error       string          `json:"error,omitempty"`        // 错误信息
	CreatedAt   time.Time       `json:"created_at"`             // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`             // 更新时间
	StartedAt   *time.Time      `json:"started_at,omitempty"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at,omitempty"` // 完成时间
	MaxRetries  int             `json:"max_retries"`            // 最大重试次数
}

// DocumentProcessPayload 文档处理任务载荷
type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"` // 文档ID
	FileID     string `json:"file_id"`     // 存储中的文件ID
	FileName   string `json:"file_name"`   // 原始文件名
	FileType   string `json:"file_type"`   // 文件类型
}

// DocumentProcessResult 文档处理任务结果
type DocumentProcessResult struct {
	DocumentID string `json:"document_id"` // 文档ID
	PageCount  int    `json:"page_count"`  // 页数
	ChunkCount int    `json:"chunk_count"` // 分块数量
}

// DocumentDeletePayload 文档清理任务载荷
type DocumentDeletePayload struct {
	DocumentID string `json:"document_id"`
	FileID     string `json:"file_id"`
}

// TaskInfo 表示任务的元信息
// 用于传递给客户端的简化任务信息
type TaskInfo struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	DocumentID  string     `json:"document_id"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		DocumentID:  task.DocumentID,
		Status:      task.Status,
		Progress:    task.Progress,
		Message:     task.Message,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
	}
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout 任务超时错误
var ErrTaskTimeout = TaskError("task timed out")

// ErrInvalidPayload 无效的任务载荷错误
var ErrInvalidPayload = TaskError("invalid task payload")

// TaskError 任务错误类型
type TaskError string

// Error 实现error接口
func (e TaskError) Error() string {
	return string(e)
}

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	return json.Unmarshal(data, v)
}
