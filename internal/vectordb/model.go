package vectordb

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// 常用错误定义
var (
	ErrRecordNotFound   = errors.New("vector record not found")
	ErrEmptyVector      = errors.New("empty vector")
	ErrInvalidID        = errors.New("invalid record ID")
	ErrInvalidDimension = errors.New("vector dimension mismatch")
	ErrClosed           = errors.New("vector repository closed")
)

// DefaultTopK 相似度查询默认返回的结果数
const DefaultTopK = 5

// DefaultUpsertBatchSize 批量写入向量的默认批次大小
const DefaultUpsertBatchSize = 100

// Record 一个文档分块的向量及其元数据
type Record struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	ChunkIndex int       `json:"chunkIndex"`
	Content    string    `json:"content"`
	PageNumber int       `json:"pageNumber,omitempty"`
	Section    string    `json:"section,omitempty"`
	Vector     []float32 `json:"vector"`
	CreatedAt  time.Time `json:"createdAt"`
}

// VectorID 生成分块向量的ID，格式为 <documentId>-chunk-<index>
func VectorID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s-chunk-%d", documentID, chunkIndex)
}

// DistanceType 向量距离计算方法
type DistanceType string

const (
	// Cosine 余弦相似度
	Cosine DistanceType = "cosine"
	// DotProduct 点积
	DotProduct DistanceType = "dot"
	// Euclidean 欧几里得距离
	Euclidean DistanceType = "l2"
)

// SearchResult 搜索结果
type SearchResult struct {
	Record   Record  // 命中的向量记录
	Score    float32 // 相似度得分，越大越相似
	Distance float32 // 计算的距离
}

// SearchFilter 搜索过滤条件
type SearchFilter struct {
	DocumentID string  // 只在该文档内搜索，为空时搜索全部
	TopK       int     // 最大返回结果数
	MinScore   float32 // 最小相似度分数
}

// DefaultSearchFilter 返回默认的搜索过滤器
func DefaultSearchFilter() SearchFilter {
	return SearchFilter{
		MinScore: -1,
		TopK:     DefaultTopK,
	}
}

// Repository 向量数据库仓库接口
type Repository interface {
	// Upsert 写入或覆盖向量记录
	Upsert(ctx context.Context, records []Record) error

	// Get 获取单条记录
	Get(ctx context.Context, id string) (Record, error)

	// Search 相似度搜索，结果按得分降序
	Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error)

	// DeleteByDocument 删除文档的全部向量，返回删除条数
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Count 获取记录总数
	Count(ctx context.Context) (int, error)

	// Dimension 返回向量维数
	Dimension() int

	// Close 关闭数据库连接
	Close() error
}

// Config 向量数据库配置
type Config struct {
	Type         string       // 数据库类型："memory", "bolt"
	Path         string       // 数据库文件路径
	Dimension    int          // 向量维度
	DistanceType DistanceType // 距离计算类型
}

// Factory 向量数据库工厂函数类型
type Factory func(config Config) (Repository, error)

// RepositoryRegistry 注册可用的向量数据库实现
var RepositoryRegistry = map[string]Factory{}

// RegisterRepository 注册向量数据库工厂函数
func RegisterRepository(name string, factory Factory) {
	RepositoryRegistry[name] = factory
}

// NewRepository 根据配置创建向量数据库实例
func NewRepository(config Config) (Repository, error) {
	factory, ok := RepositoryRegistry[config.Type]
	if !ok {
		// 默认使用内存实现
		factory = NewMemoryRepository
	}
	return factory(config)
}

// UpsertInBatches 按批次写入记录，避免单次写入过大
func UpsertInBatches(ctx context.Context, repo Repository, records []Record, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := repo.Upsert(ctx, records[start:end]); err != nil {
			return fmt.Errorf("failed to upsert vectors %d-%d: %w", start, end, err)
		}
	}
	return nil
}
