package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/fyerfyer/study-buddy/internal/embedding"
	"github.com/fyerfyer/study-buddy/internal/models"
	"github.com/fyerfyer/study-buddy/internal/repository"
	"github.com/fyerfyer/study-buddy/internal/vectordb"
	"github.com/fyerfyer/study-buddy/pkg/storage"
	"github.com/fyerfyer/study-buddy/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// DefaultMaxFileSize 上传文件大小上限（50MB）
const DefaultMaxFileSize int64 = 50 << 20

var (
	// ErrFileTooLarge 文件超过大小上限
	ErrFileTooLarge = errors.New("file too large")
	// ErrUnsupportedFileType 不支持的文件类型
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrEmptyQuery 查询文本为空
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrAsyncDisabled 未配置任务队列
	ErrAsyncDisabled = errors.New("async processing not enabled")
)

// ChunkMode 分块模式
type ChunkMode string

const (
	// ChunkModeStructure 按章节结构分块，页码按字符数估算
	ChunkModeStructure ChunkMode = "structure"
	// ChunkModePages 按页分块，有真实页边界时使用真实页
	ChunkModePages ChunkMode = "pages"
)

// UploadResult 上传结果
type UploadResult struct {
	DocumentID string `json:"documentId"`
	FileURL    string `json:"fileUrl"`
	PageCount  int    `json:"pageCount"`
	Title      string `json:"title"`
}

// ProgressEvent 处理进度事件
type ProgressEvent struct {
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Complete bool   `json:"complete,omitempty"`
}

// ProgressFunc 处理进度回调
type ProgressFunc func(event ProgressEvent)

// ProcessResult 文档处理结果
type ProcessResult struct {
	DocumentID string `json:"documentId"`
	PageCount  int    `json:"pageCount"`
	ChunkCount int    `json:"chunkCount"`
}

// ChunkResult 相似分块查询结果
type ChunkResult struct {
	ID         string  `json:"id"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
	PageNumber int     `json:"pageNumber,omitempty"`
	Section    string  `json:"section,omitempty"`
}

// DocumentService 文档服务
// 负责协调文档上传、解析、分块、嵌入和存储
type DocumentService struct {
	storage       storage.Storage               // 文件存储服务
	chunker       *document.Chunker             // 文本分块器
	embedder      embedding.Client              // 嵌入模型客户端
	vectorDB      vectordb.Repository           // 向量数据库
	repo          repository.DocumentRepository // 文档元数据存储
	users         repository.UserRepository     // 用户存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	chunkMode     ChunkMode                     // 分块模式
	batchSize     int                           // 嵌入批处理大小
	workers       int                           // 并行嵌入的批次数
	maxFileSize   int64                         // 上传文件大小上限
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	store storage.Storage,
	chunker *document.Chunker,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...DocumentOption,
) *DocumentService {
	srv := &DocumentService{
		storage:     store,
		chunker:     chunker,
		embedder:    embedder,
		vectorDB:    vectorDB,
		chunkMode:   ChunkModeStructure, // 默认按章节结构分块
		batchSize:   100,                // 默认批处理大小
		workers:     4,                  // 默认并行数
		maxFileSize: DefaultMaxFileSize, // 默认50MB
		timeout:     time.Minute * 10,   // 默认超时时间
		logger:      logrus.New(),       // 默认日志记录器
	}

	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithBatchSize 设置嵌入批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithWorkers 设置并行嵌入的批次数
func WithWorkers(n int) DocumentOption {
	return func(s *DocumentService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithMaxFileSize 设置上传文件大小上限
func WithMaxFileSize(size int64) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.maxFileSize = size
		}
	}
}

// WithChunkMode 设置分块模式
func WithChunkMode(mode ChunkMode) DocumentOption {
	return func(s *DocumentService) {
		if mode != "" {
			s.chunkMode = mode
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithUserRepository 设置用户仓储
func WithUserRepository(users repository.UserRepository) DocumentOption {
	return func(s *DocumentService) {
		s.users = users
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
	}
}

// Init 初始化文档服务
// 确保必要的依赖都已设置
func (s *DocumentService) Init() error {
	if s.storage == nil || s.chunker == nil || s.embedder == nil || s.vectorDB == nil {
		return errors.New("document service is missing storage, chunker, embedder or vector store")
	}

	if s.repo == nil {
		s.repo = repository.NewDocumentRepository()
	}
	if s.users == nil {
		s.users = repository.NewUserRepository()
	}
	if s.statusManager == nil {
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}
	if s.timeout > 0 {
		s.statusManager.SetStaleAfter(s.timeout)
	}

	return nil
}

// AsyncEnabled 是否配置了任务队列
func (s *DocumentService) AsyncEnabled() bool {
	return s.taskQueue != nil
}

// Upload 保存上传的文件并创建文档记录
// 页数只对PDF读取，其他格式在处理完成后按估算页码回填
func (s *DocumentService) Upload(ctx context.Context, r io.Reader, filename string, size int64, userExternalID string) (*UploadResult, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	contentType := document.DetectContentType(filename)
	if contentType == document.Unknown {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, filename)
	}
	if size > s.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, s.maxFileSize)
	}

	var userID string
	if userExternalID != "" {
		user, err := s.users.GetOrCreate(userExternalID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user: %w", err)
		}
		userID = user.ID
	}

	// 多读一个字节用来判断是否超过上限
	info, err := s.storage.Save(ctx, io.LimitReader(r, s.maxFileSize+1), filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}
	if info.Size > s.maxFileSize {
		s.removeBlob(ctx, info.ID)
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrFileTooLarge, s.maxFileSize)
	}

	pageCount := 0
	if contentType == document.PDF {
		pageCount, err = s.countPages(ctx, info.ID)
		if err != nil {
			s.removeBlob(ctx, info.ID)
			return nil, err
		}
	}

	now := time.Now()
	metadata, err := json.Marshal(map[string]interface{}{
		"fileSize":   info.Size,
		"uploadedAt": now.Format(time.RFC3339),
		"info": map[string]interface{}{
			"mimeType":    info.MimeType,
			"contentType": contentType,
			"storagePath": info.Path,
		},
	})
	if err != nil {
		s.removeBlob(ctx, info.ID)
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	doc := &models.Document{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     document.TitleFromFilename(filename),
		FileName:  filename,
		FileType:  getFileType(filename),
		FileID:    info.ID,
		FilePath:  s.storage.URL(info),
		FileSize:  info.Size,
		PageCount: pageCount,
		Metadata:  datatypes.JSON(metadata),
		CreatedAt: now,
	}
	if err := s.statusManager.MarkAsUploaded(ctx, doc); err != nil {
		s.removeBlob(ctx, info.ID)
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":     doc.ID,
		"file_id":    info.ID,
		"filename":   filename,
		"page_count": pageCount,
	}).Info("Document uploaded")

	return &UploadResult{
		DocumentID: doc.ID,
		FileURL:    doc.FilePath,
		PageCount:  pageCount,
		Title:      doc.Title,
	}, nil
}

// Process 处理文档(解析、分块、向量化、入库)
// 重新处理时先清除旧的分块和向量。失败时文档标记为failed并返回错误
func (s *DocumentService) Process(ctx context.Context, docID string, progress ProgressFunc) (*ProcessResult, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(ProgressEvent) {}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}
	if err := s.statusManager.MarkAsProcessing(ctx, docID); err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"doc_id":  docID,
		"file_id": doc.FileID,
	})
	log.Info("Starting document processing")

	report := func(p int, message string, stage models.ProcessStage) {
		if err := s.statusManager.UpdateProgress(ctx, docID, p, stage); err != nil {
			log.WithError(err).Warn("Failed to update document progress")
		}
		progress(ProgressEvent{Progress: p, Message: message})
	}

	result, err := s.runPipeline(ctx, doc, report)
	if err != nil {
		log.WithError(err).Error("Document processing failed")
		s.failDocument(ctx, docID, err.Error())
		return nil, err
	}

	if err := s.statusManager.MarkAsCompleted(ctx, docID, result.ChunkCount); err != nil {
		s.failDocument(ctx, docID, err.Error())
		return nil, fmt.Errorf("failed to mark document as completed: %w", err)
	}
	if result.PageCount != doc.PageCount {
		s.updatePageCount(docID, result.PageCount)
	}

	log.WithFields(logrus.Fields{
		"chunk_count": result.ChunkCount,
		"page_count":  result.PageCount,
	}).Info("Document processing completed successfully")

	progress(ProgressEvent{Progress: 100, Message: "Processing complete!", Complete: true})
	return result, nil
}

// runPipeline 执行处理流水线的各个阶段
func (s *DocumentService) runPipeline(ctx context.Context, doc *models.Document, report func(int, string, models.ProcessStage)) (*ProcessResult, error) {
	report(0, "Starting PDF processing...", "")

	// 清除上一次处理留下的数据
	if _, err := s.vectorDB.DeleteByDocument(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("failed to clear old vectors: %w", err)
	}
	if err := s.repo.DeleteChunks(doc.ID); err != nil {
		return nil, fmt.Errorf("failed to clear old chunks: %w", err)
	}

	report(10, "Extracting text from PDF...", models.StageExtracting)
	parsed, err := s.parseDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunkDocument(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, document.ErrEmptyDocument
	}
	report(30, fmt.Sprintf("Created %d chunks", len(chunks)), models.StageChunking)

	report(40, "Generating embeddings...", models.StageEmbedding)
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	processor := embedding.NewBatchProcessor(s.embedder, s.batchSize, s.workers)
	vectors, err := processor.ProcessWithProgress(ctx, texts, func(done, total int) {
		s.logger.WithFields(logrus.Fields{
			"doc_id": doc.ID,
			"done":   done,
			"total":  total,
		}).Debug("Embedding progress")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	report(60, "Storing embeddings...", models.StageStoring)
	records := make([]vectordb.Record, 0, len(chunks))
	rows := make([]*models.DocumentChunk, 0, len(chunks))
	pageCount := doc.PageCount
	for i, chunk := range chunks {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("missing embedding for chunk %d", i)
		}
		id := vectordb.VectorID(doc.ID, i)
		records = append(records, vectordb.Record{
			ID:         id,
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    chunk.Content,
			PageNumber: chunk.Metadata.PageNumber,
			Section:    chunk.Metadata.Section,
			Vector:     vectors[i],
		})

		meta, err := json.Marshal(models.ChunkMeta{
			PageNumber: chunk.Metadata.PageNumber,
			Section:    chunk.Metadata.Section,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode chunk metadata: %w", err)
		}
		rows = append(rows, &models.DocumentChunk{
			DocumentID:  doc.ID,
			ChunkIndex:  i,
			Content:     chunk.Content,
			EmbeddingID: id,
			Metadata:    datatypes.JSON(meta),
		})

		// 非PDF文档没有真实页数，用估算的最大页码
		if doc.PageCount == 0 && chunk.Metadata.PageNumber > pageCount {
			pageCount = chunk.Metadata.PageNumber
		}
	}
	if err := vectordb.UpsertInBatches(ctx, s.vectorDB, records, vectordb.DefaultUpsertBatchSize); err != nil {
		return nil, fmt.Errorf("failed to store vectors: %w", err)
	}

	report(80, "Saving to database...", models.StageSaving)
	if err := s.repo.SaveChunks(rows); err != nil {
		return nil, fmt.Errorf("failed to save chunks: %w", err)
	}

	return &ProcessResult{
		DocumentID: doc.ID,
		PageCount:  pageCount,
		ChunkCount: len(chunks),
	}, nil
}

// parseDocument 从存储读取文件并解析
func (s *DocumentService) parseDocument(ctx context.Context, doc *models.Document) (*document.Document, error) {
	reader, err := s.storage.Get(ctx, doc.FileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	parser, err := document.ParserFactory(doc.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create parser: %w", err)
	}

	parsed, err := parser.ParseReader(reader, doc.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return parsed, nil
}

// chunkDocument 按配置的模式分块
func (s *DocumentService) chunkDocument(parsed *document.Document) ([]document.Chunk, error) {
	if s.chunkMode == ChunkModePages {
		if parsed.HasPages() {
			return s.chunker.ChunkPages(parsed.Pages)
		}
		return s.chunker.ChunkByPages(parsed.Content)
	}
	return s.chunker.Chunk(parsed.Content)
}

// countPages 读取已保存PDF的页数
func (s *DocumentService) countPages(ctx context.Context, fileID string) (int, error) {
	reader, err := s.storage.Get(ctx, fileID)
	if err != nil {
		return 0, fmt.Errorf("failed to get file from storage: %w", err)
	}
	defer reader.Close()

	count, err := document.CountPDFPagesReader(reader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
	}
	return count, nil
}

// QuerySimilarChunks 在文档的向量中检索与查询最相似的分块
func (s *DocumentService) QuerySimilarChunks(ctx context.Context, docID string, query string, topK int) ([]ChunkResult, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if _, err := s.repo.GetByID(docID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = vectordb.DefaultTopK
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter := vectordb.DefaultSearchFilter()
	filter.DocumentID = docID
	filter.TopK = topK
	results, err := s.vectorDB.Search(ctx, vector, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	chunks := make([]ChunkResult, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, ChunkResult{
			ID:         r.Record.ID,
			Score:      r.Score,
			Content:    r.Record.Content,
			PageNumber: r.Record.PageNumber,
			Section:    r.Record.Section,
		})
	}
	return chunks, nil
}

// Outline 返回文档的章节结构
func (s *DocumentService) Outline(ctx context.Context, docID string) ([]document.Section, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}
	parsed, err := s.parseDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	return s.chunker.Outline(parsed.Content)
}

// Get 获取文档
func (s *DocumentService) Get(ctx context.Context, docID string) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s.statusManager.GetDocument(ctx, docID)
}

// List 获取文档列表
func (s *DocumentService) List(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	// 按外部用户ID筛选时换成内部ID
	if externalID, ok := filters["user_external_id"].(string); ok {
		delete(filters, "user_external_id")
		if externalID != "" {
			user, err := s.users.GetByExternalID(externalID)
			if err != nil {
				return []*models.Document{}, 0, nil
			}
			filters["user_id"] = user.ID
		}
	}

	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// Chunks 分页获取文档的分块记录
func (s *DocumentService) Chunks(ctx context.Context, docID string, offset, limit int) ([]*models.DocumentChunk, int, error) {
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	if _, err := s.repo.GetByID(docID); err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountChunks(docID)
	if err != nil {
		return nil, 0, err
	}
	chunks, err := s.repo.GetChunks(docID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return chunks, total, nil
}

// Delete 删除文档及其相关数据
// 配置了任务队列时，向量和原始文件由后台任务清理
func (s *DocumentService) Delete(ctx context.Context, docID string) error {
	if err := s.Init(); err != nil {
		return err
	}

	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return err
	}

	s.logger.WithField("doc_id", docID).Info("Deleting document")

	if err := s.statusManager.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	if s.taskQueue != nil {
		payload := taskqueue.DocumentDeletePayload{DocumentID: docID, FileID: doc.FileID}
		taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentDelete, docID, payload)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"doc_id":  docID,
				"task_id": taskID,
			}).Info("Document cleanup task enqueued")
			return nil
		}
		s.logger.WithError(err).Warn("Failed to enqueue cleanup task, cleaning up inline")
	}

	return s.cleanup(ctx, docID, doc.FileID)
}

// cleanup 删除文档的向量和原始文件
func (s *DocumentService) cleanup(ctx context.Context, docID, fileID string) error {
	removed, err := s.vectorDB.DeleteByDocument(ctx, docID)
	if err != nil {
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	// 文件可能已被删除，记录错误但不中断流程
	if fileID != "" {
		if err := s.storage.Delete(ctx, fileID); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			s.logger.WithError(err).WithField("file_id", fileID).Warn("Failed to delete file from storage")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"doc_id":          docID,
		"vectors_removed": removed,
	}).Info("Document data cleaned up")
	return nil
}

// updatePageCount 回填处理后得到的页数
func (s *DocumentService) updatePageCount(docID string, pageCount int) {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to reload document for page count")
		return
	}
	doc.PageCount = pageCount
	if err := s.repo.Update(doc); err != nil {
		s.logger.WithError(err).Warn("Failed to update page count")
	}
}

// removeBlob 删除上传失败时留下的文件
func (s *DocumentService) removeBlob(ctx context.Context, fileID string) {
	if err := s.storage.Delete(ctx, fileID); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Warn("Failed to remove uploaded file")
	}
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, docID string, errorMsg string) {
	if err := s.statusManager.MarkAsFailed(ctx, docID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"doc_id": docID,
			"error":  err,
		}).Error("Failed to mark document as failed")
	}
}
