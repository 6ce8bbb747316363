package taskqueue

import (
	"context"
	"fmt"
	"time"
)

// Publisher 提交任务
type Publisher interface {
	Enqueue(ctx context.Context, taskType TaskType, documentID string, payload interface{}) (string, error)
	EnqueueIn(ctx context.Context, taskType TaskType, documentID string, payload interface{}, delay time.Duration) (string, error)
}

// Tracker 读写任务记录并推送进度
type Tracker interface {
	GetTask(ctx context.Context, taskID string) (*Task, error)
	// GetTasksByDocument 按创建时间升序
	GetTasksByDocument(ctx context.Context, documentID string) ([]*Task, error)
	// WaitForTask timeout为0时只受ctx约束
	WaitForTask(ctx context.Context, taskID string, timeout time.Duration) (*Task, error)
	// Watch 先发送当前状态，任务结束或ctx取消后关闭通道
	Watch(ctx context.Context, taskID string) (<-chan *Task, error)
	DeleteTask(ctx context.Context, taskID string) error
	UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error
	UpdateProgress(ctx context.Context, taskID string, progress int, message string) error
}

// Queue 文档处理任务队列
type Queue interface {
	Publisher
	Tracker
	Close() error
}

// ProgressFunc 处理器上报进度的回调
type ProgressFunc func(progress int, message string)

// Handler 执行一种类型的任务，返回值作为任务结果保存
type Handler interface {
	ProcessTask(ctx context.Context, task *Task, progress ProgressFunc) (interface{}, error)
}

// HandlerFunc 函数形式的处理器
type HandlerFunc func(ctx context.Context, task *Task, progress ProgressFunc) (interface{}, error)

func (f HandlerFunc) ProcessTask(ctx context.Context, task *Task, progress ProgressFunc) (interface{}, error) {
	return f(ctx, task, progress)
}

// Worker 从队列取出任务并分发给Handler
type Worker interface {
	RegisterHandler(taskType TaskType, handler Handler)
	Start() error
	Stop()
}

// Config 队列配置
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int            // worker并发数
	RetryLimit    int            // asynq最大重试次数
	RetryDelay    time.Duration  // 两次重试的间隔
	TaskTTL       time.Duration  // 任务记录在Redis中的保留时间
	Queues        map[string]int // asynq队列权重
}

// DefaultConfig 本地Redis，保留任务记录一周
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:   "localhost:6379",
		Concurrency: 4,
		RetryLimit:  2,
		RetryDelay:  30 * time.Second,
		TaskTTL:     7 * 24 * time.Hour,
		Queues: map[string]int{
			"default": 3,
			"low":     1,
		},
	}
}

// Factory 按配置创建队列
type Factory func(cfg *Config) (Queue, error)

var queueFactories = map[string]Factory{}

// RegisterQueueFactory 注册队列实现
func RegisterQueueFactory(name string, factory Factory) {
	queueFactories[name] = factory
}

// NewQueue 按实现名创建队列，cfg为nil时使用DefaultConfig
func NewQueue(name string, cfg *Config) (Queue, error) {
	factory, ok := queueFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue implementation: %s", name)
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return factory(cfg)
}
