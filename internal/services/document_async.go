package services

import (
	"context"
	"fmt"

	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/fyerfyer/study-buddy/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// EnqueueProcessing 将文档处理任务加入队列，返回任务ID
func (s *DocumentService) EnqueueProcessing(ctx context.Context, docID string) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	if s.taskQueue == nil {
		return "", ErrAsyncDisabled
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return "", err
	}
	if err := s.statusManager.ValidateStateTransition(doc.Status, models.DocStatusProcessing); err != nil {
		return "", err
	}

	payload := taskqueue.DocumentProcessPayload{
		DocumentID: doc.ID,
		FileID:     doc.FileID,
		FileName:   doc.FileName,
		FileType:   doc.FileType,
	}
	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentProcess, doc.ID, payload)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue processing task: %w", err)
	}

	if err := s.repo.CreateTask(&models.ProcessingTask{
		ID:         taskID,
		DocumentID: doc.ID,
		Status:     string(taskqueue.StatusPending),
	}); err != nil {
		s.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to record processing task")
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":  doc.ID,
		"task_id": taskID,
	}).Info("Document processing task created successfully")

	return taskID, nil
}

// GetTask 获取队列中的任务
func (s *DocumentService) GetTask(ctx context.Context, taskID string) (*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, ErrAsyncDisabled
	}
	return s.taskQueue.GetTask(ctx, taskID)
}

// WatchTask 订阅任务的进度更新
func (s *DocumentService) WatchTask(ctx context.Context, taskID string) (<-chan *taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, ErrAsyncDisabled
	}
	return s.taskQueue.Watch(ctx, taskID)
}

// GetDocumentTasks 获取文档相关的任务
func (s *DocumentService) GetDocumentTasks(ctx context.Context, docID string) ([]*taskqueue.Task, error) {
	if s.taskQueue == nil {
		return nil, ErrAsyncDisabled
	}
	return s.taskQueue.GetTasksByDocument(ctx, docID)
}

// ProcessTaskHandler 返回处理文档任务的Handler
func (s *DocumentService) ProcessTaskHandler() taskqueue.Handler {
	return taskqueue.HandlerFunc(func(ctx context.Context, task *taskqueue.Task, progress taskqueue.ProgressFunc) (interface{}, error) {
		if err := s.Init(); err != nil {
			return nil, err
		}

		var payload taskqueue.DocumentProcessPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return nil, err
		}

		s.updateTaskRecord(task.ID, taskqueue.StatusProcessing, "")

		result, err := s.Process(ctx, payload.DocumentID, func(event ProgressEvent) {
			progress(event.Progress, event.Message)
		})
		if err != nil {
			s.updateTaskRecord(task.ID, taskqueue.StatusFailed, err.Error())
			return nil, err
		}

		s.updateTaskRecord(task.ID, taskqueue.StatusCompleted, "")
		return &taskqueue.DocumentProcessResult{
			DocumentID: result.DocumentID,
			PageCount:  result.PageCount,
			ChunkCount: result.ChunkCount,
		}, nil
	})
}

// CleanupTaskHandler 返回清理已删除文档数据的Handler
func (s *DocumentService) CleanupTaskHandler() taskqueue.Handler {
	return taskqueue.HandlerFunc(func(ctx context.Context, task *taskqueue.Task, progress taskqueue.ProgressFunc) (interface{}, error) {
		if err := s.Init(); err != nil {
			return nil, err
		}

		var payload taskqueue.DocumentDeletePayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return nil, err
		}

		progress(0, "Removing document data...")
		if err := s.cleanup(ctx, payload.DocumentID, payload.FileID); err != nil {
			return nil, err
		}
		progress(100, "Document data removed")
		return nil, nil
	})
}

// RegisterHandlers 向工作者注册文档相关的任务处理器
func (s *DocumentService) RegisterHandlers(worker taskqueue.Worker) {
	worker.RegisterHandler(taskqueue.TaskDocumentProcess, s.ProcessTaskHandler())
	worker.RegisterHandler(taskqueue.TaskDocumentDelete, s.CleanupTaskHandler())
}

// updateTaskRecord 同步数据库中的任务记录，文档删除后记录不存在时忽略
func (s *DocumentService) updateTaskRecord(taskID string, status taskqueue.TaskStatus, errorMsg string) {
	if err := s.repo.UpdateTask(taskID, string(status), errorMsg); err != nil {
		s.logger.WithError(err).WithField("task_id", taskID).Debug("Failed to update task record")
	}
}
