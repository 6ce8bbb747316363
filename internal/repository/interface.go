package repository

import (
	"context"

	"github.com/fyerfyer/study-buddy/internal/models"
)

// DocumentRepository 文档仓储接口
// 负责文档元数据、分块记录和处理任务的存储与检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档及其分块和任务记录
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress 更新文档处理进度和阶段
	UpdateProgress(id string, progress int, stage models.ProcessStage) error

	// MarkProcessed 标记文档处理完成并记录分块数量
	MarkProcessed(id string, chunkCount int) error

	// SaveChunks 批量保存文档分块
	SaveChunks(chunks []*models.DocumentChunk) error

	// GetChunks 获取文档的分块，按序号排序；limit<=0表示不限制
	GetChunks(docID string, offset, limit int) ([]*models.DocumentChunk, error)

	// CountChunks 统计文档的分块数量
	CountChunks(docID string) (int, error)

	// DeleteChunks 删除文档的所有分块
	DeleteChunks(docID string) error

	// CreateTask 创建处理任务记录
	CreateTask(task *models.ProcessingTask) error

	// UpdateTask 更新处理任务状态
	UpdateTask(taskID, status, errorMsg string) error

	// GetTasks 获取文档的处理任务，按创建时间倒序
	GetTasks(docID string) ([]*models.ProcessingTask, error)

	// WithContext 返回绑定上下文的仓储
	WithContext(ctx context.Context) DocumentRepository
}

// UserRepository 用户仓储接口
type UserRepository interface {
	// GetOrCreate 按外部ID获取用户，不存在时创建
	GetOrCreate(externalID, email string) (*models.User, error)

	// GetByExternalID 按外部ID获取用户
	GetByExternalID(externalID string) (*models.User, error)
}
