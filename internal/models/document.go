package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待处理
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 文档处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档处理完成
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage 文档处理阶段
type ProcessStage string

const (
	// StageExtracting 提取文本阶段
	StageExtracting ProcessStage = "extracting"
	// StageChunking 分块阶段
	StageChunking ProcessStage = "chunking"
	// StageEmbedding 生成向量阶段
	StageEmbedding ProcessStage = "embedding"
	// StageStoring 写入向量库阶段
	StageStoring ProcessStage = "storing"
	// StageSaving 保存分块记录阶段
	StageSaving ProcessStage = "saving"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Document 文档数据模型
// 保存上传的教材及其处理状态
type Document struct {
	ID           string         `gorm:"primaryKey;size:36"`     // 文档ID，主键
	UserID       string         `gorm:"size:36;index"`          // 上传用户ID
	Title        string         `gorm:"not null"`               // 标题，默认取文件名
	FileName     string         `gorm:"not null"`               // 原始文件名
	FileType     string         `gorm:"size:20"`                // 文件类型
	FileID       string         `gorm:"size:64;index"`          // 存储中的文件ID
	FilePath     string         `gorm:"not null"`               // 文件路径或URL
	FileSize     int64          `gorm:"not null"`               // 文件大小（字节）
	PageCount    int            `gorm:"default:0"`              // 页数
	Status       DocumentStatus `gorm:"not null;index"`         // 处理状态
	IsProcessed  bool           `gorm:"not null;default:false"` // 是否已完成处理
	CurrentStage ProcessStage   `gorm:"size:20"`                // 当前处理阶段
	Progress     int            `gorm:"not null;default:0"`     // 处理进度（0-100）
	Error        string         `gorm:"type:text"`              // 错误信息
	ChunkCount   int            `gorm:"not null;default:0"`     // 分块数量
	Metadata     datatypes.JSON `gorm:"type:json"`              // 元数据，JSON格式
	CreatedAt    time.Time      `gorm:"not null;index"`         // 上传时间
	UpdatedAt    time.Time      `gorm:"not null"`               // 更新时间
	ProcessedAt  *time.Time     `gorm:"index"`                  // 处理完成时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = DocStatusUploaded
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// ChunkMeta 分块记录的元数据
type ChunkMeta struct {
	PageNumber int    `json:"pageNumber,omitempty"`
	Section    string `json:"section,omitempty"`
}

// DocumentChunk 文档分块数据模型
type DocumentChunk struct {
	ID          uint           `gorm:"primaryKey;autoIncrement"`                   // 主键ID
	DocumentID  string         `gorm:"size:36;not null;uniqueIndex:idx_doc_chunk"` // 所属文档ID
	ChunkIndex  int            `gorm:"not null;uniqueIndex:idx_doc_chunk"`         // 分块序号
	Content     string         `gorm:"type:text;not null"`                         // 分块文本
	EmbeddingID string         `gorm:"size:100"`                                   // 向量库中的ID
	Metadata    datatypes.JSON `gorm:"type:json"`                                  // 页码、章节
	CreatedAt   time.Time      `gorm:"not null"`                                   // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (dc *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	if dc.CreatedAt.IsZero() {
		dc.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// ProcessingTask 文档处理任务记录
type ProcessingTask struct {
	ID         string    `gorm:"primaryKey;size:36"` // 任务ID
	DocumentID string    `gorm:"size:36;not null;index"`
	Status     string    `gorm:"size:20;not null"`
	Error      string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
	FinishedAt *time.Time
}

// TableName 明确指定表名
func (ProcessingTask) TableName() string {
	return "processing_tasks"
}
