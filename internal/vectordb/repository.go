package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// index 内存向量索引
// 维护记录和文档到记录ID的映射，不负责加锁，由具体仓库实现保证并发安全
type index struct {
	dimension int                            // 向量维度
	distType  DistanceType                   // 距离计算类型
	records   map[string]Record              // 记录ID到记录的映射
	docToIDs  map[string]map[string]struct{} // 文档ID到记录ID集合的映射
}

func newIndex(dimension int, distType DistanceType) (*index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dimension)
	}
	// 确保距离类型有效
	if distType != Cosine && distType != DotProduct && distType != Euclidean {
		distType = Cosine
	}
	return &index{
		dimension: dimension,
		distType:  distType,
		records:   make(map[string]Record),
		docToIDs:  make(map[string]map[string]struct{}),
	}, nil
}

// prepare 校验记录并补全字段，返回可写入的副本
func (ix *index) prepare(rec Record) (Record, error) {
	if rec.ID == "" {
		return Record{}, ErrInvalidID
	}
	if rec.DocumentID == "" {
		return Record{}, fmt.Errorf("%w: record %s has no document ID", ErrInvalidID, rec.ID)
	}
	if err := ValidateVector(rec.Vector, ix.dimension); err != nil {
		return Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	// 对于余弦距离，先对向量进行归一化处理
	if ix.distType == Cosine {
		rec.Vector = normalizeVector(rec.Vector)
	} else {
		rec.Vector = append([]float32(nil), rec.Vector...)
	}
	return rec, nil
}

func (ix *index) put(rec Record) {
	// 同一ID换了文档时先解除旧的映射
	if old, ok := ix.records[rec.ID]; ok && old.DocumentID != rec.DocumentID {
		ix.unlink(old)
	}
	ix.records[rec.ID] = rec
	ids, ok := ix.docToIDs[rec.DocumentID]
	if !ok {
		ids = make(map[string]struct{})
		ix.docToIDs[rec.DocumentID] = ids
	}
	ids[rec.ID] = struct{}{}
}

func (ix *index) unlink(rec Record) {
	ids := ix.docToIDs[rec.DocumentID]
	delete(ids, rec.ID)
	if len(ids) == 0 {
		delete(ix.docToIDs, rec.DocumentID)
	}
}

// removeDocument 删除文档的全部记录，返回被删除的ID
func (ix *index) removeDocument(documentID string) []string {
	ids := ix.docToIDs[documentID]
	removed := make([]string, 0, len(ids))
	for id := range ids {
		delete(ix.records, id)
		removed = append(removed, id)
	}
	delete(ix.docToIDs, documentID)
	sort.Strings(removed)
	return removed
}

// search 暴力计算查询向量与候选记录的相似度
func (ix *index) search(ctx context.Context, vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, ix.dimension); err != nil {
		return nil, err
	}
	if ix.distType == Cosine {
		vector = normalizeVector(vector)
	}

	topK := filter.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	var candidates []Record
	if filter.DocumentID != "" {
		for id := range ix.docToIDs[filter.DocumentID] {
			candidates = append(candidates, ix.records[id])
		}
	} else {
		candidates = make([]Record, 0, len(ix.records))
		for _, rec := range ix.records {
			candidates = append(candidates, rec)
		}
	}

	results := make([]SearchResult, 0, len(candidates))
	for i, rec := range candidates {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		dist, err := ComputeDistance(vector, rec.Vector, ix.distType)
		if err != nil {
			return nil, err
		}
		score := DistanceToScore(dist, ix.distType)
		if score < filter.MinScore {
			continue
		}
		results = append(results, SearchResult{Record: rec, Score: score, Distance: dist})
	}

	SortSearchResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// ComputeDistance 计算两个向量间的距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		return cosineDistance(v1, v2), nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		return euclideanDistance(v1, v2), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// CosineSimilarity 计算两个向量的余弦相似度，任一为零向量时返回0
func CosineSimilarity(v1, v2 []float32) float32 {
	if len(v1) != len(v2) {
		return 0
	}
	norm1, norm2 := vectorNorm(v1), vectorNorm(v2)
	if norm1 == 0 || norm2 == 0 {
		return 0
	}
	return dotProduct(v1, v2) / (norm1 * norm2)
}

// cosineDistance 余弦距离 = 1 - 余弦相似度
func cosineDistance(v1, v2 []float32) float32 {
	if vectorNorm(v1) == 0 || vectorNorm(v2) == 0 {
		return 1.0 // 最大距离
	}
	similarity := CosineSimilarity(v1, v2)
	// 处理浮点精度问题
	if similarity > 1.0 {
		similarity = 1.0
	}
	return 1.0 - similarity
}

func dotProduct(v1, v2 []float32) float32 {
	var dot float32
	for i := 0; i < len(v1); i++ {
		dot += v1[i] * v2[i]
	}
	return dot
}

func euclideanDistance(v1, v2 []float32) float32 {
	var sum float32
	for i := 0; i < len(v1); i++ {
		d := v1[i] - v2[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

// vectorNorm 计算向量的L2范数
func vectorNorm(v []float32) float32 {
	var sum float32
	for _, val := range v {
		sum += val * val
	}
	return float32(math.Sqrt(float64(sum)))
}

// normalizeVector 返回归一化后的副本
func normalizeVector(v []float32) []float32 {
	result := make([]float32, len(v))
	norm := vectorNorm(v)
	if norm == 0 {
		copy(result, v) // 零向量无法归一化
		return result
	}
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}

// SortSearchResults 按得分降序排序，得分相同时按记录ID排序保证结果稳定
func SortSearchResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
}

// DistanceToScore 将距离转换为评分，评分越大越相似
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// 对于归一化向量，点积范围在[-1, 1]之间
		return (distance + 1) / 2
	case Euclidean:
		// 高斯衰减，距离越小分数越高
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// ValidateVector 验证向量维度和有效性
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if expectedDim > 0 && len(vector) != expectedDim {
		return fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, expectedDim, len(vector))
	}
	return nil
}
