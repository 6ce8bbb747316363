package database

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSetup(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "nested", "study.db")
	require.NoError(t, Setup(cfg, log))
	t.Cleanup(func() { Close() })

	db := MustDB()
	assert.True(t, db.Migrator().HasTable(&models.Document{}))
	assert.True(t, db.Migrator().HasTable(&models.DocumentChunk{}))
	assert.True(t, db.Migrator().HasTable(&models.ProcessingTask{}))
	assert.True(t, db.Migrator().HasTable(&models.User{}))
	assert.FileExists(t, cfg.DSN)

	require.NoError(t, Close())
	assert.Panics(t, func() { MustDB() })
	assert.NoError(t, Close())
}

func TestOpen_Unsupported(t *testing.T) {
	_, err := Open(&Config{Type: "oracle", DSN: "x"}, nil)
	assert.Error(t, err)
}

func TestOpen_QuietRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.WarnLevel)

	db, err := Open(&Config{Type: "sqlite", DSN: ":memory:", MaxOpenConns: 1}, log)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	var doc models.Document
	err = db.First(&doc, "id = ?", "missing").Error
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	assert.NotContains(t, buf.String(), "record not found")

	// 其他查询错误仍然写入日志
	var rows []map[string]interface{}
	assert.Error(t, db.Raw("SELECT * FROM missing_table").Scan(&rows).Error)
	assert.Contains(t, buf.String(), "no such table")
}

func TestWithPragmas(t *testing.T) {
	assert.Equal(t, "data/a.db?_foreign_keys=on&_busy_timeout=5000", withPragmas("data/a.db"))
	assert.Equal(t, "a.db?cache=shared&_foreign_keys=on&_busy_timeout=5000", withPragmas("a.db?cache=shared"))
	assert.Equal(t, ":memory:", withPragmas(":memory:"))
	assert.Equal(t, "file:x?mode=memory&cache=shared", withPragmas("file:x?mode=memory&cache=shared"))
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, gormLogLevel(logrus.TraceLevel))
	assert.Equal(t, logger.Warn, gormLogLevel(logrus.InfoLevel))
	assert.Equal(t, logger.Error, gormLogLevel(logrus.ErrorLevel))
}
