package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/study-buddy/internal/database"
	"github.com/fyerfyer/study-buddy/internal/models"
	"gorm.io/gorm"
)

// chunkBatchSize 批量插入分块的大小
const chunkBatchSize = 100

// docRepository 文档仓储实现
type docRepository struct {
	db *gorm.DB // 数据库连接
}

// NewDocumentRepository 使用全局数据库连接创建文档仓储实例
func NewDocumentRepository() DocumentRepository {
	return &docRepository{db: database.MustDB()}
}

// NewDocumentRepositoryWithDB 使用指定的数据库连接创建文档仓储实例
func NewDocumentRepositoryWithDB(db *gorm.DB) DocumentRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &docRepository{db: db}
}

// WithContext 创建带有上下文的仓储
func (r *docRepository) WithContext(ctx context.Context) DocumentRepository {
	return &docRepository{db: r.db.WithContext(ctx)}
}

// Create 创建文档记录
func (r *docRepository) Create(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Create(doc).Error
}

// Update 更新文档记录
func (r *docRepository) Update(doc *models.Document) error {
	if doc.ID == "" {
		return errors.New("document ID cannot be empty")
	}

	return r.db.Save(doc).Error
}

// GetByID 根据ID获取文档
func (r *docRepository) GetByID(id string) (*models.Document, error) {
	var doc models.Document
	err := r.db.Where("id = ?", id).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil, err
	}
	return &doc, nil
}

// List 列出文档列表，支持分页和筛选
// 支持的筛选条件：status、user_id、title（模糊匹配）、is_processed
func (r *docRepository) List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	var docs []*models.Document
	var total int64

	query := r.db.Model(&models.Document{})

	if status, ok := filters["status"]; ok {
		switch s := status.(type) {
		case models.DocumentStatus:
			query = query.Where("status = ?", string(s))
		case string:
			if s != "" {
				query = query.Where("status = ?", s)
			}
		}
	}

	if userID, ok := filters["user_id"].(string); ok && userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	if title, ok := filters["title"].(string); ok && title != "" {
		query = query.Where("title LIKE ?", "%"+title+"%")
	}

	if processed, ok := filters["is_processed"].(bool); ok {
		query = query.Where("is_processed = ?", processed)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// 应用排序、分页并执行查询
	err := query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}

	return docs, total, nil
}

// Delete 删除文档记录
func (r *docRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&models.DocumentChunk{}).Error; err != nil {
			return err
		}

		if err := tx.Where("document_id = ?", id).Delete(&models.ProcessingTask{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&models.Document{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrDocumentNotFound, id)
		}
		return nil
	})
}

// UpdateStatus 更新文档状态
func (r *docRepository) UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"error":      errorMsg,
		"updated_at": time.Now(),
	}

	// 如果状态是已完成或失败，设置处理完成时间
	if status == models.DocStatusCompleted || status == models.DocStatusFailed {
		now := time.Now()
		updates["processed_at"] = &now
	}
	if status != models.DocStatusCompleted {
		updates["is_processed"] = false
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateProgress 更新文档处理进度
func (r *docRepository) UpdateProgress(id string, progress int, stage models.ProcessStage) error {
	// 确保进度在0-100范围内
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	updates := map[string]interface{}{
		"progress":   progress,
		"updated_at": time.Now(),
	}
	if stage != "" {
		updates["current_stage"] = stage
	}

	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// MarkProcessed 标记文档处理完成
func (r *docRepository) MarkProcessed(id string, chunkCount int) error {
	now := time.Now()
	return r.db.Model(&models.Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.DocStatusCompleted,
			"is_processed":  true,
			"progress":      100,
			"current_stage": models.StageCompleted,
			"chunk_count":   chunkCount,
			"error":         "",
			"processed_at":  &now,
			"updated_at":    now,
		}).Error
}

// SaveChunks 批量保存分块
func (r *docRepository) SaveChunks(chunks []*models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(chunks, chunkBatchSize).Error
	})
}

// GetChunks 获取文档的分块
func (r *docRepository) GetChunks(docID string, offset, limit int) ([]*models.DocumentChunk, error) {
	var chunks []*models.DocumentChunk
	query := r.db.Where("document_id = ?", docID).Order("chunk_index ASC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&chunks).Error
	return chunks, err
}

// CountChunks 统计文档的分块数量
func (r *docRepository) CountChunks(docID string) (int, error) {
	var count int64
	err := r.db.Model(&models.DocumentChunk{}).
		Where("document_id = ?", docID).
		Count(&count).Error
	return int(count), err
}

// DeleteChunks 删除文档的所有分块
func (r *docRepository) DeleteChunks(docID string) error {
	return r.db.Where("document_id = ?", docID).
		Delete(&models.DocumentChunk{}).Error
}

// CreateTask 创建处理任务记录
func (r *docRepository) CreateTask(task *models.ProcessingTask) error {
	if task.ID == "" {
		return errors.New("task ID cannot be empty")
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	return r.db.Create(task).Error
}

// UpdateTask 更新处理任务状态
func (r *docRepository) UpdateTask(taskID, status, errorMsg string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":     status,
		"error":      errorMsg,
		"updated_at": now,
	}
	if status == "completed" || status == "failed" {
		updates["finished_at"] = &now
	}

	result := r.db.Model(&models.ProcessingTask{}).Where("id = ?", taskID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID)
	}
	return nil
}

// GetTasks 获取文档的处理任务
func (r *docRepository) GetTasks(docID string) ([]*models.ProcessingTask, error) {
	var tasks []*models.ProcessingTask
	err := r.db.Where("document_id = ?", docID).
		Order("created_at DESC").
		Find(&tasks).Error
	return tasks, err
}
