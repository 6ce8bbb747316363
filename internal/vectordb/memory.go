package vectordb

import (
	"context"
	"sync"
)

// MemoryRepository 内存向量仓库实现
// 用于开发和测试环境，进程退出后数据丢失
type MemoryRepository struct {
	mu     sync.RWMutex
	index  *index
	closed bool
}

// NewMemoryRepository 创建内存向量仓库
func NewMemoryRepository(config Config) (Repository, error) {
	ix, err := newIndex(config.Dimension, config.DistanceType)
	if err != nil {
		return nil, err
	}
	return &MemoryRepository{index: ix}, nil
}

// Upsert 写入或覆盖记录，任一记录无效时整批不写入
func (r *MemoryRepository) Upsert(ctx context.Context, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	prepared := make([]Record, 0, len(records))
	for _, rec := range records {
		p, err := r.index.prepare(rec)
		if err != nil {
			return err
		}
		prepared = append(prepared, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	for _, rec := range prepared {
		r.index.put(rec)
	}
	return nil
}

// Get 获取单条记录
func (r *MemoryRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.index.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Search 相似度搜索
func (r *MemoryRepository) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	return r.index.search(ctx, vector, filter)
}

// DeleteByDocument 删除文档的全部向量
func (r *MemoryRepository) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrClosed
	}
	return len(r.index.removeDocument(documentID)), nil
}

// Count 获取记录总数
func (r *MemoryRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index.records), nil
}

// Dimension 返回向量维数
func (r *MemoryRepository) Dimension() int {
	return r.index.dimension
}

// Close 关闭仓库，之后的写入和搜索返回ErrClosed
func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// 在包初始化时注册内存仓库
func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
