package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量文本按批次切分，并行调用嵌入客户端，结果顺序与输入一致
type BatchProcessor struct {
	client     Client // 嵌入客户端
	batchSize  int    // 每批处理的文本数量
	maxWorkers int    // 最大并行工作线程数
}

// ProgressFunc 每完成一批时回调，done为已完成的文本数
type ProgressFunc func(done, total int)

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 100 // 默认批量大小
	}

	if maxWorkers <= 0 {
		maxWorkers = 4 // 默认工作线程数
	}

	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 处理一批文本
// 空文本对应的位置返回nil
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	return p.ProcessWithProgress(ctx, texts, nil)
}

// ProcessWithProgress 处理一批文本并报告进度
func (p *BatchProcessor) ProcessWithProgress(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error) {
	results := make([][]float32, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	// 记录非空文本在原始切片中的位置
	var filtered []string
	var positions []int
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			filtered = append(filtered, text)
			positions = append(positions, i)
		}
	}
	if len(filtered) == 0 {
		return results, nil
	}

	batches := splitIntoBatches(filtered, p.batchSize)

	wp := workerpool.New(p.maxWorkers)
	var mu sync.Mutex
	var processingErr error
	var errOnce sync.Once
	done := 0

	for i, batch := range batches {
		i, batch := i, batch // 捕获循环变量
		wp.Submit(func() {
			if ctx.Err() != nil {
				errOnce.Do(func() {
					processingErr = ctx.Err()
				})
				return
			}

			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err == nil && len(vectors) != len(batch) {
				err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(vectors))
			}
			if err != nil {
				errOnce.Do(func() {
					processingErr = fmt.Errorf("batch %d processing error: %w", i, err)
				})
				return
			}

			// 每个批次写入互不重叠的位置
			offset := i * p.batchSize
			for j, vec := range vectors {
				results[positions[offset+j]] = vec
			}

			// 持锁回调，保证done单调递增
			mu.Lock()
			done += len(batch)
			if progress != nil {
				progress(done, len(filtered))
			}
			mu.Unlock()
		})
	}

	// 等待所有任务完成
	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}
	return results, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)

	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}

	return batches
}
