package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用总配置
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Queue      QueueConfig      `mapstructure:"queue"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Segmenter  SegmenterConfig  `mapstructure:"segmenter"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Mapper     MapperConfig     `mapstructure:"mapper"`
	Dictionary DictionaryConfig `mapstructure:"dictionary"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Debug        bool          `mapstructure:"debug"`
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local或minio
	LocalPath string `mapstructure:"local_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type         string        `mapstructure:"type"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Type     string        `mapstructure:"type"` // memory或redis
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool          `mapstructure:"enable"`
	Type          string        `mapstructure:"type"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Concurrency   int           `mapstructure:"concurrency"`
	RetryLimit    int           `mapstructure:"retry_limit"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// LLMConfig 大模型配置
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// SegmenterConfig 分块器配置
type SegmenterConfig struct {
	MaxBlockChars int     `mapstructure:"max_block_chars"`
	YGapThreshold float64 `mapstructure:"y_gap_threshold"`
	XShiftIndent  float64 `mapstructure:"x_shift_indent"`
}

// ClassifierConfig 分类器配置
type ClassifierConfig struct {
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// AggregatorConfig 变体聚合配置
type AggregatorConfig struct {
	DefaultVariantID    string  `mapstructure:"default_variant_id"`
	MinHeaderConfidence float64 `mapstructure:"min_header_confidence"`
}

// MapperConfig 字典映射配置
type MapperConfig struct {
	TopK      int     `mapstructure:"top_k"`
	Threshold float64 `mapstructure:"threshold"`
}

// DictionaryConfig 服务字典配置
type DictionaryConfig struct {
	Path    string `mapstructure:"path"`
	Version string `mapstructure:"version"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json或text
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // 单位MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // 单位天
}

var globalConfig *Config

// Load 从指定路径加载配置文件，缺失时使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("SIWZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Warn("config file not found, using defaults")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	processEnvironmentVariables(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Get 获取已加载的全局配置
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load("")
		if err != nil {
			logrus.Fatalf("failed to load config: %v", err)
		}
		globalConfig = cfg
	}
	return globalConfig
}

func setDefaults(v *viper.Viper) {
	// 服务
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.debug", false)

	// 存储
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "data/files")
	v.SetDefault("storage.bucket", "siwz")
	v.SetDefault("storage.use_ssl", false)

	// 数据库
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/siwz.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_lifetime", "1h")

	// 缓存
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.address", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", "720h")

	// 任务队列
	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 1)
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", "30s")

	// 大模型
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.max_retries", 3)

	// 分块器
	v.SetDefault("segmenter.max_block_chars", 2500)
	v.SetDefault("segmenter.y_gap_threshold", 8.0)
	v.SetDefault("segmenter.x_shift_indent", 40.0)

	// 分类器
	v.SetDefault("classifier.cache_enabled", true)
	v.SetDefault("classifier.cache_ttl", "720h")
	v.SetDefault("classifier.batch_size", 20)

	// 聚合器
	v.SetDefault("aggregator.default_variant_id", "wariant_1")
	v.SetDefault("aggregator.min_header_confidence", 0.6)

	// 映射器
	v.SetDefault("mapper.top_k", 5)
	v.SetDefault("mapper.threshold", 0.5)

	// 服务字典
	v.SetDefault("dictionary.path", "")
	v.SetDefault("dictionary.version", "v1")

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
}

// processEnvironmentVariables 展开形如${VAR}的环境变量引用
func processEnvironmentVariables(cfg *Config) {
	cfg.LLM.APIKey = expandEnv(cfg.LLM.APIKey)
	cfg.Storage.AccessKey = expandEnv(cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = expandEnv(cfg.Storage.SecretKey)
	cfg.Cache.Password = expandEnv(cfg.Cache.Password)
	cfg.Queue.RedisPassword = expandEnv(cfg.Queue.RedisPassword)
}

func expandEnv(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envName := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		if envValue := os.Getenv(envName); envValue != "" {
			return envValue
		}
		return ""
	}
	return value
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Storage.Type != "local" && cfg.Storage.Type != "minio" {
		return fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "local" && cfg.Storage.LocalPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.LocalPath), 0755); err != nil {
			return fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	if cfg.Mapper.Threshold < 0 || cfg.Mapper.Threshold > 1 {
		return fmt.Errorf("mapper threshold must be within [0,1], got %f", cfg.Mapper.Threshold)
	}
	return nil
}
