package vectordb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRecord 创建用于测试的记录
func newRecord(docID string, index int, vector []float32) Record {
	return Record{
		ID:         VectorID(docID, index),
		DocumentID: docID,
		ChunkIndex: index,
		Content:    fmt.Sprintf("chunk %d of %s", index, docID),
		PageNumber: index/2 + 1,
		Section:    "Intro",
		Vector:     vector,
	}
}

func TestMemoryRepository(t *testing.T) {
	repo, err := NewRepository(Config{Type: "memory", Dimension: 3, DistanceType: Cosine})
	require.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}

func TestBoltRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	repo, err := NewRepository(Config{Type: "bolt", Path: path, Dimension: 3})
	require.NoError(t, err)
	defer repo.Close()

	testRepository(t, repo)
}

// testRepository 对任意实现执行相同的测试
func testRepository(t *testing.T, repo Repository) {
	ctx := context.Background()
	assert.Equal(t, 3, repo.Dimension())

	records := []Record{
		newRecord("doc-a", 0, []float32{1, 0, 0}),
		newRecord("doc-a", 1, []float32{0.9, 0.1, 0}),
		newRecord("doc-a", 2, []float32{0, 1, 0}),
		newRecord("doc-b", 0, []float32{1, 0, 0.1}),
	}

	t.Run("upsert", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, records))
		count, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		rec, err := repo.Get(ctx, "doc-a-chunk-1")
		require.NoError(t, err)
		assert.Equal(t, "doc-a", rec.DocumentID)
		assert.Equal(t, 1, rec.ChunkIndex)
		assert.Equal(t, "Intro", rec.Section)
		assert.False(t, rec.CreatedAt.IsZero())

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		updated := newRecord("doc-a", 2, []float32{0, 1, 0})
		updated.Content = "updated"
		require.NoError(t, repo.Upsert(ctx, []Record{updated}))

		count, _ := repo.Count(ctx)
		assert.Equal(t, 4, count)
		rec, err := repo.Get(ctx, "doc-a-chunk-2")
		require.NoError(t, err)
		assert.Equal(t, "updated", rec.Content)
	})

	t.Run("invalid records", func(t *testing.T) {
		err := repo.Upsert(ctx, []Record{newRecord("doc-c", 0, []float32{1, 0})})
		assert.ErrorIs(t, err, ErrInvalidDimension)

		err = repo.Upsert(ctx, []Record{newRecord("doc-c", 0, nil)})
		assert.ErrorIs(t, err, ErrEmptyVector)

		err = repo.Upsert(ctx, []Record{{DocumentID: "doc-c", Vector: []float32{1, 0, 0}}})
		assert.ErrorIs(t, err, ErrInvalidID)

		count, _ := repo.Count(ctx)
		assert.Equal(t, 4, count)
	})

	t.Run("search all", func(t *testing.T) {
		results, err := repo.Search(ctx, []float32{1, 0, 0}, DefaultSearchFilter())
		require.NoError(t, err)
		require.Len(t, results, 4)

		assert.Equal(t, "doc-a-chunk-0", results[0].Record.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-5)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
		assert.Equal(t, "doc-a-chunk-2", results[3].Record.ID)
	})

	t.Run("search within document", func(t *testing.T) {
		filter := DefaultSearchFilter()
		filter.DocumentID = "doc-b"
		results, err := repo.Search(ctx, []float32{1, 0, 0}, filter)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "doc-b", results[0].Record.DocumentID)
	})

	t.Run("top k and min score", func(t *testing.T) {
		results, err := repo.Search(ctx, []float32{1, 0, 0}, SearchFilter{TopK: 2, MinScore: -1})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = repo.Search(ctx, []float32{1, 0, 0}, SearchFilter{MinScore: 0.5})
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("search dimension mismatch", func(t *testing.T) {
		_, err := repo.Search(ctx, []float32{1, 0}, DefaultSearchFilter())
		assert.ErrorIs(t, err, ErrInvalidDimension)
	})

	t.Run("delete by document", func(t *testing.T) {
		deleted, err := repo.DeleteByDocument(ctx, "doc-a")
		require.NoError(t, err)
		assert.Equal(t, 3, deleted)

		count, _ := repo.Count(ctx)
		assert.Equal(t, 1, count)

		deleted, err = repo.DeleteByDocument(ctx, "doc-a")
		require.NoError(t, err)
		assert.Equal(t, 0, deleted)

		filter := DefaultSearchFilter()
		filter.DocumentID = "doc-a"
		results, err := repo.Search(ctx, []float32{1, 0, 0}, filter)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestBoltRepositoryPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.db")

	repo, err := NewBoltRepository(Config{Path: path, Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, repo.Upsert(ctx, []Record{
		newRecord("doc", 0, []float32{1, 0}),
		newRecord("doc", 1, []float32{0, 1}),
		newRecord("other", 0, []float32{1, 1}),
	}))
	_, err = repo.DeleteByDocument(ctx, "other")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := NewBoltRepository(Config{Path: path, Dimension: 2})
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := reopened.Search(ctx, []float32{0, 1}, DefaultSearchFilter())
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "doc-chunk-1", results[0].Record.ID)

	deleted, err := reopened.DeleteByDocument(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
}

func TestBoltRepositoryDimensionCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")

	repo, err := NewBoltRepository(Config{Path: path, Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = NewBoltRepository(Config{Path: path, Dimension: 3})
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = NewBoltRepository(Config{Dimension: 3})
	assert.Error(t, err)
}

func TestMemoryRepositoryClosed(t *testing.T) {
	repo, err := NewMemoryRepository(Config{Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	err = repo.Upsert(context.Background(), []Record{newRecord("doc", 0, []float32{1, 0})})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = NewMemoryRepository(Config{Dimension: 0})
	assert.Error(t, err)
}

// countingRepository 记录每次Upsert的批次大小
type countingRepository struct {
	Repository
	batches []int
}

func (r *countingRepository) Upsert(ctx context.Context, records []Record) error {
	r.batches = append(r.batches, len(records))
	return r.Repository.Upsert(ctx, records)
}

func TestUpsertInBatches(t *testing.T) {
	inner, err := NewMemoryRepository(Config{Dimension: 2})
	require.NoError(t, err)
	repo := &countingRepository{Repository: inner}

	records := make([]Record, 250)
	for i := range records {
		records[i] = newRecord("doc", i, []float32{float32(i + 1), 1})
	}

	require.NoError(t, UpsertInBatches(context.Background(), repo, records, 0))
	assert.Equal(t, []int{100, 100, 50}, repo.batches)

	count, _ := repo.Count(context.Background())
	assert.Equal(t, 250, count)
}

func TestVectorID(t *testing.T) {
	assert.Equal(t, "abc-chunk-0", VectorID("abc", 0))
	assert.Equal(t, "abc-chunk-12", VectorID("abc", 12))
}

func TestDistances(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 1}))

	d, err := ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)

	_, err = ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	assert.Equal(t, float32(1), DistanceToScore(0, Cosine))
}
