package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultQueueName = "default"

// Redis键布局：
//
//	task:<id>             任务JSON
//	document_tasks:<doc>  文档的任务ID集合
//	task_status:<id>      任务更新的发布频道
func taskKey(taskID string) string { return "task:" + taskID }

func documentTasksKey(docID string) string { return "document_tasks:" + docID }

func taskChannel(taskID string) string { return "task_status:" + taskID }

// RedisQueue asynq负责调度，任务记录和进度以JSON保存在Redis中
type RedisQueue struct {
	client      *asynq.Client
	inspector   *asynq.Inspector // 删除尚未执行的任务
	redisClient *redis.Client
	cfg         *Config
	logger      *logrus.Logger
}

// NewRedisQueue 创建Redis任务队列
func NewRedisQueue(cfg *Config) (*RedisQueue, error) {
	return NewRedisQueueWithLogger(cfg, nil)
}

// NewRedisQueueWithLogger 创建Redis任务队列并检查连接
func NewRedisQueueWithLogger(cfg *Config, logger *logrus.Logger) (*RedisQueue, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.TaskTTL <= 0 {
		cfg.TaskTTL = DefaultConfig().TaskTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	opt := redisOpt(cfg)
	return &RedisQueue{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		redisClient: redisClient,
		cfg:         cfg,
		logger:      logger,
	}, nil
}

func redisOpt(cfg *Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Enqueue 立即入队
func (q *RedisQueue) Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error) {
	return q.enqueue(ctx, taskType, documentID, payload)
}

// EnqueueIn 延迟delay后执行
func (q *RedisQueue) EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error) {
	return q.enqueue(ctx, taskType, documentID, payload, asynq.ProcessIn(delay))
}

func (q *RedisQueue) enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}, opts ...asynq.Option) (string, error) {
	raw, err := MarshalPayload(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now()
	task := &Task{
		ID:         uuid.NewString(),
		Type:       taskType,
		DocumentID: documentID,
		Status:     StatusPending,
		Payload:    raw,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: q.cfg.RetryLimit,
	}
	if _, err := q.saveTask(ctx, task); err != nil {
		return "", fmt.Errorf("failed to save task to redis: %w", err)
	}

	// asynq任务ID与任务记录ID相同，DeleteTask据此移除排队中的任务
	opts = append([]asynq.Option{
		asynq.TaskID(task.ID),
		asynq.Queue(defaultQueueName),
		asynq.MaxRetry(q.cfg.RetryLimit),
	}, opts...)
	if _, err := q.client.EnqueueContext(ctx, asynq.NewTask(string(taskType), []byte(task.ID)), opts...); err != nil {
		q.redisClient.Del(ctx, taskKey(task.ID))
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"task_id":     task.ID,
		"task_type":   taskType,
		"document_id": documentID,
	}).Info("Task enqueued")
	return task.ID, nil
}

// GetTask 读取任务记录
func (q *RedisQueue) GetTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := q.redisClient.Get(ctx, taskKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task from redis: %w", err)
	}
	return decodeTask(data)
}

func decodeTask(data []byte) (*Task, error) {
	task := new(Task)
	if err := json.Unmarshal(data, task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task data: %w", err)
	}
	return task, nil
}

// GetTasksByDocument 用MGET批量读取文档的任务
func (q *RedisQueue) GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error) {
	taskIDs, err := q.redisClient.SMembers(ctx, documentTasksKey(documentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document tasks: %w", err)
	}
	if len(taskIDs) == 0 {
		return []*Task{}, nil
	}

	keys := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		keys[i] = taskKey(id)
	}
	values, err := q.redisClient.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load document tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(values))
	for _, v := range values {
		// 已过期的任务在集合里残留，MGET返回nil
		raw, ok := v.(string)
		if !ok {
			continue
		}
		task, err := decodeTask([]byte(raw))
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// WaitForTask 阻塞到任务结束
func (q *RedisQueue) WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	updates, err := q.Watch(ctx, taskID)
	if err != nil {
		return nil, err
	}

	var last *Task
	for task := range updates {
		last = task
	}
	if last == nil || !last.Status.IsFinal() {
		return nil, ErrTaskTimeout
	}
	return last, nil
}

// Watch 先订阅再读取当前状态，两者之间的更新不会丢失
func (q *RedisQueue) Watch(ctx context.Context, taskID string) (<-chan *Task, error) {
	pubsub := q.redisClient.Subscribe(ctx, taskChannel(taskID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe task updates: %w", err)
	}

	current, err := q.GetTask(ctx, taskID)
	if err != nil {
		pubsub.Close()
		return nil, err
	}

	updates := make(chan *Task, 8)
	go func() {
		defer close(updates)
		defer pubsub.Close()

		// send 返回false表示应停止推送
		send := func(task *Task) bool {
			select {
			case updates <- task:
				return !task.Status.IsFinal()
			case <-ctx.Done():
				return false
			}
		}

		if !send(current) {
			return
		}

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				task, err := decodeTask([]byte(msg.Payload))
				if err != nil {
					q.logger.WithError(err).WithField("task_id", taskID).Warn("Invalid task update message")
					continue
				}
				if !send(task) {
					return
				}
			}
		}
	}()
	return updates, nil
}

// DeleteTask 删除任务记录，未结束的任务同时从asynq移除
func (q *RedisQueue) DeleteTask(ctx context.Context, taskID string) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if task.DocumentID != "" {
			pipe.SRem(ctx, documentTasksKey(task.DocumentID), taskID)
		}
		pipe.Del(ctx, taskKey(taskID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	// 正在执行的任务无法从asynq删除
	if !task.Status.IsFinal() {
		if err := q.inspector.DeleteTask(defaultQueueName, taskID); err != nil {
			q.logger.WithError(err).WithField("task_id", taskID).Debug("Task not deleted from asynq queue")
		}
	}
	return nil
}

// UpdateTaskStatus 更新任务状态，完成时进度置为100
func (q *RedisQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errMsg string) error {
	var resultBytes []byte
	if result != nil {
		var err error
		if resultBytes, err = MarshalPayload(result); err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	return q.mutate(ctx, taskID, func(task *Task, now time.Time) {
		task.Status = status
		switch {
		case status == StatusProcessing && task.StartedAt == nil:
			task.StartedAt = &now
		case status == StatusCompleted:
			task.Progress = 100
			task.Error = ""
			task.CompletedAt = &now
		case status.IsFinal():
			task.CompletedAt = &now
		}
		if resultBytes != nil {
			task.Result = resultBytes
		}
		if errMsg != "" {
			task.Error = errMsg
		}
	})
}

// UpdateProgress 更新任务进度和阶段描述
func (q *RedisQueue) UpdateProgress(ctx context.Context, taskID string, progress int, message string) error {
	return q.mutate(ctx, taskID, func(task *Task, _ time.Time) {
		task.Progress = progress
		task.Message = message
	})
}

// mutate 读取任务，修改后保存并发布更新
func (q *RedisQueue) mutate(ctx context.Context, taskID string, fn func(task *Task, now time.Time)) error {
	task, err := q.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	now := time.Now()
	fn(task, now)
	task.UpdatedAt = now

	data, err := q.saveTask(ctx, task)
	if err != nil {
		return err
	}
	if err := q.redisClient.Publish(ctx, taskChannel(taskID), data).Err(); err != nil {
		q.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to publish task update")
	}
	return nil
}

// saveTask 写入任务JSON并登记到文档的任务集合，返回写入的数据
func (q *RedisQueue) saveTask(ctx context.Context, task *Task) ([]byte, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = q.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, q.cfg.TaskTTL)
		if task.DocumentID != "" {
			pipe.SAdd(ctx, documentTasksKey(task.DocumentID), task.ID)
			pipe.Expire(ctx, documentTasksKey(task.DocumentID), q.cfg.TaskTTL)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save task data: %w", err)
	}
	return data, nil
}

// Close 关闭asynq客户端和Redis连接
func (q *RedisQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redisClient.Close())
}

func init() {
	RegisterQueueFactory("redis", func(cfg *Config) (Queue, error) {
		return NewRedisQueue(cfg)
	})
}
