package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStorage 对任意存储实现执行相同的测试
func testStorage(t *testing.T, s Storage) {
	ctx := context.Background()
	content := "这是一个用于测试的样本文件"

	info, err := s.Save(ctx, strings.NewReader(content), "Notes.PDF")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "Notes.PDF", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "application/pdf", info.MimeType)
	assert.True(t, strings.HasSuffix(info.Path, info.ID+".pdf"))
	assert.NotEmpty(t, s.URL(info))

	t.Run("get", func(t *testing.T) {
		reader, err := s.Get(ctx, info.ID)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("list", func(t *testing.T) {
		files, err := s.List(ctx)
		require.NoError(t, err)

		found := false
		for _, file := range files {
			if file.ID == info.ID {
				found = true
				assert.Equal(t, info.Path, file.Path)
			}
		}
		assert.True(t, found, "保存的文件应当出现在列表中")
	})

	t.Run("exists", func(t *testing.T) {
		exists, err := s.Exists(ctx, info.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = s.Exists(ctx, "non-existent-id")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, info.ID))

		exists, err := s.Exists(ctx, info.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = s.Get(ctx, info.ID)
		assert.ErrorIs(t, err, ErrFileNotFound)

		err = s.Delete(ctx, info.ID)
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{Path: dir, BaseURL: "/files/"})
	require.NoError(t, err)

	testStorage(t, s)

	t.Run("file on disk", func(t *testing.T) {
		info, err := s.Save(context.Background(), strings.NewReader("hello"), "a.txt")
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(info.Path)))
		assert.NoError(t, err)
		assert.Equal(t, "/files/"+info.Path, s.URL(info))
	})

	t.Run("path traversal ids are rejected", func(t *testing.T) {
		_, err := s.Get(context.Background(), "../etc/passwd")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("cancelled save", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Save(ctx, strings.NewReader("x"), "x.txt")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// 需要可用的MinIO服务，通过MINIO_ENDPOINT指定，未设置时跳过
func TestMinioStorage(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_ENDPOINT not set, skipping MinIO tests")
	}

	s, err := NewMinioStorage(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "studybuddy-test",
	})
	require.NoError(t, err)

	testStorage(t, s)
}

func TestNew(t *testing.T) {
	s, err := New(Config{Type: "local", Local: LocalConfig{Path: t.TempDir()}})
	require.NoError(t, err)
	_, ok := s.(*LocalStorage)
	assert.True(t, ok)

	_, err = New(Config{Type: "ftp"})
	assert.Error(t, err)
}

func TestGetMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", getMimeType("a.PDF"))
	assert.Equal(t, "text/markdown", getMimeType("a.md"))
	assert.Equal(t, "text/plain", getMimeType("a.txt"))
	assert.Equal(t, "application/octet-stream", getMimeType("a.bin"))
}
