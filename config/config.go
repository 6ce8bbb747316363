package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用程序配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Document DocumentConfig `mapstructure:"document"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`            // 服务器主机
	Port           int           `mapstructure:"port"`            // 服务器端口
	Mode           string        `mapstructure:"mode"`            // gin运行模式：debug, release, test
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`    // 读取超时
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`   // 写入超时，SSE处理需要足够长
	MaxUploadSize  int64         `mapstructure:"max_upload_size"` // 上传文件大小上限（字节）
	ProcessTimeout time.Duration `mapstructure:"process_timeout"` // 单个文档处理超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	File       string `mapstructure:"file"`        // 日志文件，为空时只输出到标准输出
	MaxSize    int    `mapstructure:"max_size"`    // 单个文件最大尺寸（MB）
	MaxBackups int    `mapstructure:"max_backups"` // 保留的旧文件数量
	MaxAge     int    `mapstructure:"max_age"`     // 旧文件保留天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// StorageConfig 存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"`     // 存储类型：local 或 minio
	Path      string `mapstructure:"path"`     // 本地存储路径
	BaseURL   string `mapstructure:"base_url"` // 本地文件访问URL前缀
	Bucket    string `mapstructure:"bucket"`   // MinIO桶名称
	Endpoint  string `mapstructure:"endpoint"` // MinIO端点
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"` // 是否使用SSL
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type         string        `mapstructure:"type"`           // 数据库类型，目前只支持sqlite
	DSN          string        `mapstructure:"dsn"`            // 数据源名称
	MaxOpenConns int           `mapstructure:"max_open_conns"` // 最大打开连接数
	MaxIdleConns int           `mapstructure:"max_idle_conns"` // 最大空闲连接数
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`   // 连接最大生命周期
}

// EmbedConfig 向量嵌入模型配置
type EmbedConfig struct {
	Provider   string        `mapstructure:"provider"`    // 提供商：openai 或 local
	Model      string        `mapstructure:"model"`       // 模型名称
	APIKey     string        `mapstructure:"api_key"`     // API密钥
	Endpoint   string        `mapstructure:"endpoint"`    // API端点
	BatchSize  int           `mapstructure:"batch_size"`  // 批处理大小
	Workers    int           `mapstructure:"workers"`     // 并发批次数
	Dimensions int           `mapstructure:"dimensions"`  // 向量维度
	Timeout    time.Duration `mapstructure:"timeout"`     // 请求超时
	MaxRetries int           `mapstructure:"max_retries"` // 最大重试次数
}

// CacheConfig 嵌入缓存配置
type CacheConfig struct {
	Enable   bool          `mapstructure:"enable"`   // 是否启用缓存
	Type     string        `mapstructure:"type"`     // 缓存类型：memory 或 redis
	Address  string        `mapstructure:"address"`  // Redis地址
	Password string        `mapstructure:"password"` // Redis密码
	DB       int           `mapstructure:"db"`       // Redis数据库
	TTL      time.Duration `mapstructure:"ttl"`      // 缓存过期时间
}

// VectorDBConfig 向量数据库配置
type VectorDBConfig struct {
	Type     string `mapstructure:"type"`     // 向量数据库类型：memory 或 bolt
	Path     string `mapstructure:"path"`     // bolt数据库文件路径
	Distance string `mapstructure:"distance"` // 距离度量方式：cosine, l2, dot
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`         // 是否启用任务队列
	RedisAddr     string        `mapstructure:"redis_addr"`     // Redis地址
	RedisPassword string        `mapstructure:"redis_password"` // Redis密码
	RedisDB       int           `mapstructure:"redis_db"`       // Redis数据库编号
	Concurrency   int           `mapstructure:"concurrency"`    // 任务处理并发数
	RetryLimit    int           `mapstructure:"retry_limit"`    // 任务最大重试次数
	RetryDelay    time.Duration `mapstructure:"retry_delay"`    // 重试延迟
	TaskTTL       time.Duration `mapstructure:"task_ttl"`       // 任务记录保留时间
}

// DocumentConfig 文档处理配置
type DocumentConfig struct {
	ChunkSize       int    `mapstructure:"chunk_size"`       // 分块大小（字符）
	ChunkOverlap    int    `mapstructure:"chunk_overlap"`    // 分块重叠大小
	CharsPerPage    int    `mapstructure:"chars_per_page"`   // 无真实分页时的每页字符数
	ChunkMode       string `mapstructure:"chunk_mode"`       // 分块方式：structure 或 pages
	StructurePolicy string `mapstructure:"structure_policy"` // 章节识别策略：first_match_wins 或 merge_all
}

// Load 从文件和环境变量加载配置
// 配置文件不存在时写入一份默认配置
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	// .env中的密钥先进入环境变量，供${VAR}展开和自动覆盖使用
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.WithError(err).Warn("Failed to load .env file")
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.WithField("path", configPath).Warn("Config file not found, writing defaults")
		if err := writeDefaults(v, configPath); err != nil {
			logrus.WithError(err).Warn("Could not write default config")
		}
	} else {
		logrus.WithField("path", v.ConfigFileUsed()).Info("Using config file")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expandEnvironment(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置取值
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	switch c.VectorDB.Type {
	case "memory", "bolt":
	default:
		return fmt.Errorf("unsupported vectordb type: %s", c.VectorDB.Type)
	}
	switch c.Document.ChunkMode {
	case "structure", "pages":
	default:
		return fmt.Errorf("unsupported chunk mode: %s", c.Document.ChunkMode)
	}
	if c.Embed.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.Embed.Provider == "openai" && c.Embed.APIKey == "" {
		return fmt.Errorf("embedding API key is required for provider openai")
	}
	return nil
}

// Addr 返回HTTP服务监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// writeDefaults 写入默认配置文件
func writeDefaults(v *viper.Viper, configPath string) error {
	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return v.WriteConfigAs(configPath)
}

// expandEnvironment 展开配置值中的${VAR}引用
func expandEnvironment(cfg *Config) {
	for _, field := range []*string{
		&cfg.Embed.APIKey,
		&cfg.Embed.Endpoint,
		&cfg.Storage.AccessKey,
		&cfg.Storage.SecretKey,
		&cfg.Storage.Endpoint,
		&cfg.Database.DSN,
		&cfg.Cache.Password,
		&cfg.Queue.RedisPassword,
	} {
		if strings.Contains(*field, "${") {
			*field = os.ExpandEnv(*field)
		}
	}
}

// setDefaults 设置配置的默认值
func setDefaults(v *viper.Viper) {
	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "15m")
	v.SetDefault("server.max_upload_size", 50<<20)
	v.SetDefault("server.process_timeout", "10m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	// 存储默认配置
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./data/uploads")
	v.SetDefault("storage.base_url", "/files")
	v.SetDefault("storage.bucket", "study-buddy")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "${MINIO_ACCESS_KEY}")
	v.SetDefault("storage.secret_key", "${MINIO_SECRET_KEY}")
	v.SetDefault("storage.use_ssl", false)

	// 数据库默认配置
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "./data/study-buddy.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "1h")

	// Embedding默认配置
	v.SetDefault("embed.provider", "openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("embed.endpoint", "https://api.openai.com/v1")
	v.SetDefault("embed.batch_size", 100)
	v.SetDefault("embed.workers", 4)
	v.SetDefault("embed.dimensions", 1536)
	v.SetDefault("embed.timeout", "30s")
	v.SetDefault("embed.max_retries", 3)

	// 缓存默认配置
	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "24h")

	// 向量数据库默认配置
	v.SetDefault("vectordb.type", "bolt")
	v.SetDefault("vectordb.path", "./data/vectors.db")
	v.SetDefault("vectordb.distance", "cosine")

	// 队列默认配置
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "1m")
	v.SetDefault("queue.task_ttl", "24h")

	// 文档处理默认配置
	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 200)
	v.SetDefault("document.chars_per_page", 2000)
	v.SetDefault("document.chunk_mode", "structure")
	v.SetDefault("document.structure_policy", "first_match_wins")
}
