package vectordb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketVectors   = []byte("vectors")
	bucketDocVector = []byte("doc_vectors")
	bucketMeta      = []byte("meta")
	keyDimension    = []byte("dimension")
)

// BoltRepository 基于bbolt持久化的向量仓库
// 启动时把全部向量加载到内存，搜索在内存中暴力计算
type BoltRepository struct {
	mu    sync.RWMutex
	db    *bbolt.DB
	index *index
}

// NewBoltRepository 打开或创建bbolt向量仓库
func NewBoltRepository(config Config) (Repository, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("bolt vector repository requires a path")
	}
	ix, err := newIndex(config.Dimension, config.DistanceType)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(config.Path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	repo := &BoltRepository{db: db, index: ix}
	if err := repo.init(); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// init 创建bucket，校验维度并加载已有向量
func (r *BoltRepository) init() error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketDocVector, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		if stored := meta.Get(keyDimension); stored != nil {
			var dim int
			if err := json.Unmarshal(stored, &dim); err == nil && dim != r.index.dimension {
				return fmt.Errorf("%w: store has %d, configured %d", ErrInvalidDimension, dim, r.index.dimension)
			}
		} else {
			data, _ := json.Marshal(r.index.dimension)
			if err := meta.Put(keyDimension, data); err != nil {
				return err
			}
		}

		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // 跳过损坏的记录
			}
			r.index.put(rec)
			return nil
		})
	})
}

// Upsert 在单个事务中写入记录，事务成功后再更新内存索引
func (r *BoltRepository) Upsert(ctx context.Context, records []Record) error {
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

	err := r.db.Update(func(tx *bbolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		docs := tx.Bucket(bucketDocVector)
		for _, rec := range prepared {
			if old, ok := r.index.records[rec.ID]; ok && old.DocumentID != rec.DocumentID {
				if b := docs.Bucket([]byte(old.DocumentID)); b != nil {
					if err := b.Delete([]byte(rec.ID)); err != nil {
						return err
					}
				}
			}

			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := vectors.Put([]byte(rec.ID), data); err != nil {
				return err
			}
			docBucket, err := docs.CreateBucketIfNotExists([]byte(rec.DocumentID))
			if err != nil {
				return err
			}
			if err := docBucket.Put([]byte(rec.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}

	for _, rec := range prepared {
		r.index.put(rec)
	}
	return nil
}

// Get 获取单条记录
func (r *BoltRepository) Get(_ context.Context, id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.index.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

// Search 相似度搜索
func (r *BoltRepository) Search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.search(ctx, vector, filter)
}

// DeleteByDocument 删除文档的全部向量
func (r *BoltRepository) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	err := r.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocVector)
		docBucket := docs.Bucket([]byte(documentID))
		if docBucket == nil {
			return nil
		}

		vectors := tx.Bucket(bucketVectors)
		if err := docBucket.ForEach(func(k, _ []byte) error {
			count++
			return vectors.Delete(k)
		}); err != nil {
			return err
		}
		return docs.DeleteBucket([]byte(documentID))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors of document %s: %w", documentID, err)
	}

	r.index.removeDocument(documentID)
	return count, nil
}

// Count 获取记录总数
func (r *BoltRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index.records), nil
}

// Dimension 返回向量维数
func (r *BoltRepository) Dimension() int {
	return r.index.dimension
}

// Close 关闭数据库文件
func (r *BoltRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}

func init() {
	RegisterRepository("bolt", NewBoltRepository)
}
