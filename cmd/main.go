package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fyerfyer/study-buddy/api"
	"github.com/fyerfyer/study-buddy/api/handler"
	"github.com/fyerfyer/study-buddy/api/middleware"
	appconfig "github.com/fyerfyer/study-buddy/config"
	"github.com/fyerfyer/study-buddy/internal/cache"
	"github.com/fyerfyer/study-buddy/internal/database"
	"github.com/fyerfyer/study-buddy/internal/document"
	"github.com/fyerfyer/study-buddy/internal/embedding"
	"github.com/fyerfyer/study-buddy/internal/repository"
	"github.com/fyerfyer/study-buddy/internal/services"
	"github.com/fyerfyer/study-buddy/internal/vectordb"
	"github.com/fyerfyer/study-buddy/pkg/storage"
	"github.com/fyerfyer/study-buddy/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 命令行参数，非空时覆盖配置文件
type flags struct {
	ConfigFile string // 配置文件路径
	Port       int    // 服务端口
	Mode       string // 运行模式 (debug/release)
	LogLevel   string // 日志级别
	Queue      bool   // 强制启用任务队列
}

func main() {
	opts := parseFlags()

	cfg, err := appconfig.Load(opts.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, opts)

	gin.SetMode(cfg.Server.Mode)

	middleware.ConfigureLogger(middleware.LogConfig{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})
	logger := middleware.GetLogger()
	logger.Info("Starting Study Buddy document service...")

	// 初始化数据库
	if err := database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	}, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	fileStorage, err := storage.New(storage.Config{
		Type: cfg.Storage.Type,
		Local: storage.LocalConfig{
			Path:    cfg.Storage.Path,
			BaseURL: cfg.Storage.BaseURL,
		},
		Minio: storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		},
	})
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	vectorDB, err := vectordb.NewRepository(vectordb.Config{
		Type:         cfg.VectorDB.Type,
		Path:         cfg.VectorDB.Path,
		Dimension:    cfg.Embed.Dimensions,
		DistanceType: vectordb.DistanceType(cfg.VectorDB.Distance),
	})
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	embeddingClient, err := setupEmbedding(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	chunker, err := document.NewChunker(document.ChunkerConfig{
		Splitter: document.SplitterConfig{
			ChunkSize:    cfg.Document.ChunkSize,
			ChunkOverlap: cfg.Document.ChunkOverlap,
		},
		CharsPerPage: cfg.Document.CharsPerPage,
		Policy:       document.ParseStructurePolicy(cfg.Document.StructurePolicy),
	})
	if err != nil {
		logger.Fatalf("Failed to initialize chunker: %v", err)
	}

	repo := repository.NewDocumentRepository()
	serviceOptions := []services.DocumentOption{
		services.WithDocumentRepository(repo),
		services.WithUserRepository(repository.NewUserRepository()),
		services.WithStatusManager(services.NewDocumentStatusManager(repo, logger)),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithWorkers(cfg.Embed.Workers),
		services.WithTimeout(cfg.Server.ProcessTimeout),
		services.WithMaxFileSize(cfg.Server.MaxUploadSize),
		services.WithChunkMode(services.ChunkMode(cfg.Document.ChunkMode)),
		services.WithLogger(logger),
	}

	// 初始化任务队列（如果启用）
	var queue *taskqueue.RedisQueue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		serviceOptions = append(serviceOptions, services.WithTaskQueue(queue))
	}

	documentService := services.NewDocumentService(fileStorage, chunker, embeddingClient, vectorDB, serviceOptions...)
	if err := documentService.Init(); err != nil {
		logger.Fatalf("Failed to initialize document service: %v", err)
	}

	var worker *taskqueue.RedisWorker
	if queue != nil {
		worker = taskqueue.NewRedisWorker(queue, nil)
		documentService.RegisterHandlers(worker)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task worker: %v", err)
		}
		logger.Info("Task worker started")
	}

	router := api.SetupRouter(
		handler.NewDocumentHandler(documentService),
		handler.NewTaskHandler(documentService),
	)
	if cfg.Storage.Type == "local" && cfg.Storage.BaseURL != "" {
		router.Static(cfg.Storage.BaseURL, cfg.Storage.Path)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if worker != nil {
		worker.Stop()
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	var opts flags
	flag.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&opts.Port, "port", 0, "Server port, overrides config")
	flag.StringVar(&opts.Mode, "mode", "", "Run mode (debug/release), overrides config")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug/info/warn/error), overrides config")
	flag.BoolVar(&opts.Queue, "queue", false, "Enable the task queue regardless of config")
	flag.Parse()
	return opts
}

// applyFlags 用显式设置的命令行参数覆盖配置
func applyFlags(cfg *appconfig.Config, opts flags) {
	if opts.Port > 0 {
		cfg.Server.Port = opts.Port
	}
	if opts.Mode != "" {
		cfg.Server.Mode = opts.Mode
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.Queue {
		cfg.Queue.Enable = true
	}
}

// setupEmbedding 创建嵌入客户端，启用缓存时用CachedClient包装
func setupEmbedding(cfg *appconfig.Config, logger *logrus.Logger) (embedding.Client, error) {
	client, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithBaseURL(cfg.Embed.Endpoint),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithDimensions(cfg.Embed.Dimensions),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
		embedding.WithTimeout(cfg.Embed.Timeout),
		embedding.WithMaxRetries(cfg.Embed.MaxRetries),
	)
	if err != nil {
		return nil, err
	}

	if !cfg.Cache.Enable {
		return client, nil
	}

	embedCache, err := cache.NewCache(cache.Config{
		Type:            cfg.Cache.Type,
		KeyPrefix:       "embed",
		RedisAddr:       cfg.Cache.Address,
		RedisPassword:   cfg.Cache.Password,
		RedisDB:         cfg.Cache.DB,
		DefaultTTL:      cfg.Cache.TTL,
		CleanupInterval: 10 * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding cache: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"provider": cfg.Embed.Provider,
		"cache":    cfg.Cache.Type,
	}).Info("Embedding client initialized with cache")
	return embedding.NewCachedClient(client, embedCache, cfg.Cache.TTL, logger), nil
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *appconfig.Config, logger *logrus.Logger) (*taskqueue.RedisQueue, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.Queue.RedisAddr
	queueConfig.RedisPassword = cfg.Queue.RedisPassword
	queueConfig.RedisDB = cfg.Queue.RedisDB
	queueConfig.Concurrency = cfg.Queue.Concurrency
	queueConfig.RetryLimit = cfg.Queue.RetryLimit
	queueConfig.RetryDelay = cfg.Queue.RetryDelay
	if cfg.Queue.TaskTTL > 0 {
		queueConfig.TaskTTL = cfg.Queue.TaskTTL
	}

	logger.WithFields(logrus.Fields{
		"redis_addr":  queueConfig.RedisAddr,
		"concurrency": queueConfig.Concurrency,
		"retry_limit": queueConfig.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewRedisQueueWithLogger(queueConfig, logger)
}
