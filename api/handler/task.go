package handler

import (
	"errors"
	"net/http"

	"github.com/fyerfyer/study-buddy/api/middleware"
	"github.com/fyerfyer/study-buddy/api/model"
	"github.com/fyerfyer/study-buddy/internal/services"
	"github.com/fyerfyer/study-buddy/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理任务相关的API请求
type TaskHandler struct {
	documentService *services.DocumentService // 文档服务
	logger          *logrus.Logger            // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(documentService *services.DocumentService) *TaskHandler {
	return &TaskHandler{
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")

	task, err := h.documentService.GetTask(c.Request.Context(), taskID)
	if err != nil {
		middleware.HandleError(c, taskError(err))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewTaskInfo(task)))
}

// StreamTaskEvents 以SSE推送任务进度，任务结束后关闭连接
// GET /api/tasks/:id/events
func (h *TaskHandler) StreamTaskEvents(c *gin.Context) {
	taskID := c.Param("id")

	updates, err := h.documentService.WatchTask(c.Request.Context(), taskID)
	if err != nil {
		middleware.HandleError(c, taskError(err))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	for task := range updates {
		event := gin.H{
			"progress": task.Progress,
			"message":  task.Message,
			"status":   task.Status,
		}
		switch task.Status {
		case taskqueue.StatusCompleted:
			event["complete"] = true
		case taskqueue.StatusFailed:
			event["error"] = task.Error
		}
		writeEvent(c, event)
	}

	h.logger.WithField("task_id", taskID).Debug("Task event stream closed")
}

// GetDocumentTasks 获取文档相关的所有任务
// GET /api/documents/:id/tasks
func (h *TaskHandler) GetDocumentTasks(c *gin.Context) {
	docID, ok := bindDocumentID(c)
	if !ok {
		return
	}

	tasks, err := h.documentService.GetDocumentTasks(c.Request.Context(), docID)
	if err != nil {
		middleware.HandleError(c, taskError(err))
		return
	}

	items := make([]model.TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, model.NewTaskInfo(task))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"documentId": docID,
		"tasks":      items,
	}))
}

// taskError 将任务相关错误映射为API错误
func taskError(err error) error {
	if errors.Is(err, taskqueue.ErrTaskNotFound) {
		return middleware.NewNotFoundError("Task not found")
	}
	return toAppError(err)
}
