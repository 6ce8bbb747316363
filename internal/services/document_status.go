package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/fyerfyer/study-buddy/internal/repository"
	"github.com/sirupsen/logrus"
)

// DocumentStatusManager 串行化文档状态变更，保证先检查后写入
type DocumentStatusManager struct {
	repo       repository.DocumentRepository
	logger     *logrus.Logger
	staleAfter time.Duration // 处理中文档超过该时长没有进度视为中断，0表示不判断
	mu         sync.Mutex
}

// NewDocumentStatusManager 创建文档状态管理器
func NewDocumentStatusManager(repo repository.DocumentRepository, logger *logrus.Logger) *DocumentStatusManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DocumentStatusManager{repo: repo, logger: logger}
}

// SetStaleAfter 设置处理中文档被视为中断的时长
func (m *DocumentStatusManager) SetStaleAfter(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleAfter = d
}

// isStale 处理中的文档长时间没有更新，说明处理进程已经退出
func (m *DocumentStatusManager) isStale(doc *models.Document) bool {
	return doc.Status == models.DocStatusProcessing &&
		m.staleAfter > 0 &&
		time.Since(doc.UpdatedAt) > m.staleAfter
}

// withDocument 在锁内加载文档并执行fn
func (m *DocumentStatusManager) withDocument(docID string, fn func(doc *models.Document) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}
	return fn(doc)
}

// MarkAsUploaded 保存新上传的文档记录
func (m *DocumentStatusManager) MarkAsUploaded(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc.Status = models.DocStatusUploaded
	doc.Progress = 0
	if doc.FileType == "" {
		doc.FileType = getFileType(doc.FileName)
	}

	m.logger.WithFields(logrus.Fields{
		"doc_id":    doc.ID,
		"filename":  doc.FileName,
		"file_type": doc.FileType,
	}).Info("Document uploaded")
	return m.repo.Create(doc)
}

// MarkAsProcessing 进入处理中并把进度归零
func (m *DocumentStatusManager) MarkAsProcessing(_ context.Context, docID string) error {
	return m.withDocument(docID, func(doc *models.Document) error {
		if m.isStale(doc) {
			m.logger.WithFields(logrus.Fields{
				"doc_id":     docID,
				"updated_at": doc.UpdatedAt,
			}).Warn("Reclaiming stale processing document")
		} else if err := doc.Status.CheckTransition(models.DocStatusProcessing); err != nil {
			return err
		}
		m.logger.WithFields(logrus.Fields{
			"doc_id": docID,
			"from":   doc.Status,
		}).Info("Document processing started")

		if err := m.repo.UpdateStatus(docID, models.DocStatusProcessing, ""); err != nil {
			return err
		}
		return m.repo.UpdateProgress(docID, 0, "")
	})
}

// MarkAsCompleted 记录分块数并标记完成
func (m *DocumentStatusManager) MarkAsCompleted(_ context.Context, docID string, chunkCount int) error {
	return m.withDocument(docID, func(doc *models.Document) error {
		if err := doc.Status.CheckTransition(models.DocStatusCompleted); err != nil {
			return err
		}
		m.logger.WithFields(logrus.Fields{
			"doc_id":      docID,
			"chunk_count": chunkCount,
		}).Info("Document processing completed")
		return m.repo.MarkProcessed(docID, chunkCount)
	})
}

// MarkAsFailed 记录失败原因，任何已存在的文档都可以被标记失败
func (m *DocumentStatusManager) MarkAsFailed(_ context.Context, docID string, errorMsg string) error {
	return m.withDocument(docID, func(doc *models.Document) error {
		m.logger.WithFields(logrus.Fields{
			"doc_id": docID,
			"from":   doc.Status,
			"error":  errorMsg,
		}).Error("Document processing failed")
		return m.repo.UpdateStatus(docID, models.DocStatusFailed, errorMsg)
	})
}

// UpdateProgress 只对处理中的文档生效
func (m *DocumentStatusManager) UpdateProgress(_ context.Context, docID string, progress int, stage models.ProcessStage) error {
	return m.withDocument(docID, func(doc *models.Document) error {
		if doc.Status != models.DocStatusProcessing {
			return fmt.Errorf("%w: document %s is %s, not processing", models.ErrInvalidDocumentStatus, docID, doc.Status)
		}
		m.logger.WithFields(logrus.Fields{
			"doc_id":   docID,
			"progress": progress,
			"stage":    stage,
		}).Debug("Document progress")
		return m.repo.UpdateProgress(docID, progress, stage)
	})
}

func (m *DocumentStatusManager) GetStatus(_ context.Context, docID string) (models.DocumentStatus, error) {
	doc, err := m.repo.GetByID(docID)
	if err != nil {
		return "", fmt.Errorf("failed to get document status: %w", err)
	}
	return doc.Status, nil
}

func (m *DocumentStatusManager) GetDocument(_ context.Context, docID string) (*models.Document, error) {
	return m.repo.GetByID(docID)
}

func (m *DocumentStatusManager) ListDocuments(_ context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	return m.repo.List(offset, limit, filters)
}

// DeleteDocument 删除文档及其分块、任务记录
// 正在处理的文档不能删除，中断的处理除外
func (m *DocumentStatusManager) DeleteDocument(_ context.Context, docID string) error {
	return m.withDocument(docID, func(doc *models.Document) error {
		if doc.Status == models.DocStatusProcessing && !m.isStale(doc) {
			return fmt.Errorf("%w: document %s is still processing", models.ErrInvalidDocumentStatus, docID)
		}
		m.logger.WithField("doc_id", docID).Info("Deleting document record")
		return m.repo.Delete(docID)
	})
}

// ValidateStateTransition 检查状态转换是否允许
func (m *DocumentStatusManager) ValidateStateTransition(from, to models.DocumentStatus) error {
	return from.CheckTransition(to)
}

func getFileType(fileName string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
}
