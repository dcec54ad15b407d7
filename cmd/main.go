package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/siwz-mapper/api"
	"github.com/fyerfyer/siwz-mapper/api/handler"
	"github.com/fyerfyer/siwz-mapper/api/middleware"
	appconfig "github.com/fyerfyer/siwz-mapper/config"
	"github.com/fyerfyer/siwz-mapper/internal/aggregator"
	"github.com/fyerfyer/siwz-mapper/internal/cache"
	"github.com/fyerfyer/siwz-mapper/internal/classifier"
	"github.com/fyerfyer/siwz-mapper/internal/database"
	"github.com/fyerfyer/siwz-mapper/internal/dictionary"
	"github.com/fyerfyer/siwz-mapper/internal/llm"
	"github.com/fyerfyer/siwz-mapper/internal/mapper"
	"github.com/fyerfyer/siwz-mapper/internal/repository"
	"github.com/fyerfyer/siwz-mapper/internal/segmenter"
	"github.com/fyerfyer/siwz-mapper/internal/services"
	"github.com/fyerfyer/siwz-mapper/pkg/storage"
	"github.com/fyerfyer/siwz-mapper/pkg/taskqueue"
)

func main() {
	// 解析命令行参数
	configFile := flag.String("config", "", "Path to config file")
	mode := flag.String("mode", "release", "Run mode (debug/release)")
	flag.Parse()

	// 加载.env文件(如果存在)
	if err := godotenv.Load(); err == nil {
		logrus.Debug("loaded environment from .env file")
	}

	// 加载配置文件
	cfg, err := appconfig.Load(*configFile)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// 设置Gin模式
	if cfg.Server.Debug {
		*mode = "debug"
	}
	gin.SetMode(*mode)

	// 初始化日志
	logger := setupLogger(cfg.Log)
	logger.Info("Starting SIWZ mapping service...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 创建文件存储服务
	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建大语言模型客户端
	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 创建缓存服务
	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 创建分类器
	classifierOptions := []classifier.ClassifierOption{
		classifier.WithLogger(logger),
	}
	if cfg.Classifier.CacheEnabled {
		classifierOptions = append(classifierOptions,
			classifier.WithCache(cacheService, cfg.Classifier.CacheTTL))
	}
	blockClassifier := classifier.NewBlockClassifier(llmClient, classifierOptions...)

	// 创建语义分块器
	blockSegmenter := segmenter.NewBlockSegmenter(segmenter.Config{
		MaxCharsPerBlock: cfg.Segmenter.MaxBlockChars,
		YGapThreshold:    cfg.Segmenter.YGapThreshold,
		XShiftThreshold:  cfg.Segmenter.XShiftIndent,
	})

	// 创建方案聚合器
	variantAggregator := aggregator.NewVariantAggregator(
		aggregator.WithDefaultVariantID(cfg.Aggregator.DefaultVariantID),
		aggregator.WithMinHeaderConfidence(cfg.Aggregator.MinHeaderConfidence),
		aggregator.WithLogger(logger),
	)

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 初始化业务服务
	repo := repository.NewDocumentRepository()
	statusManager := services.NewDocumentStatusManager(repo, logger)

	pipelineOptions := []services.PipelineOption{
		services.WithSegmenter(blockSegmenter),
		services.WithAggregator(variantAggregator),
		services.WithDocumentRepository(repo),
		services.WithStatusManager(statusManager),
		services.WithLogger(logger),
	}

	// 加载服务字典并创建映射器(可选)
	if cfg.Dictionary.Path != "" {
		serviceMapper, version, err := setupMapper(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to load service dictionary: %v", err)
		}
		pipelineOptions = append(pipelineOptions, services.WithMapper(serviceMapper, version))
		logger.WithFields(logrus.Fields{
			"path":    cfg.Dictionary.Path,
			"version": version,
		}).Info("Service dictionary loaded")
	} else {
		logger.Warn("No service dictionary configured, code mapping will be skipped")
	}

	// 如果启用了队列，添加相关选项
	if queue != nil {
		pipelineOptions = append(pipelineOptions, services.WithTaskQueue(queue))
		logger.Info("Document processing will use async task queue")
	}

	pipelineService := services.NewPipelineService(fileStorage, blockClassifier, pipelineOptions...)

	// 启动任务队列工作器（如果启用）
	if queue != nil {
		worker := taskqueue.NewRedisWorker(queue.(*taskqueue.RedisQueue), queueConfig(cfg))
		taskHandler := services.NewPipelineTaskHandler(pipelineService, logger)
		for _, taskType := range taskHandler.GetTaskTypes() {
			worker.RegisterHandler(taskType, taskHandler)
		}
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task queue worker: %v", err)
		}
		defer worker.Stop()
	}

	// 初始化API处理器
	docHandler := handler.NewDocumentHandler(pipelineService, fileStorage)
	resultHandler := handler.NewResultHandler(pipelineService)

	// 设置路由
	r := api.SetupRouter(docHandler, resultHandler)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupLogger 设置日志系统
func setupLogger(cfg appconfig.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	switch cfg.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	// 配置了日志文件时使用滚动日志
	if cfg.File != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		})
	}

	return logger
}

// setupDatabase 设置数据库
func setupDatabase(cfg *appconfig.Config, logger *logrus.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %v", err)
	}

	return database.Setup(&database.Config{
		Type:         cfg.Database.Type,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	}, logger)
}

// setupStorage 设置文件存储服务
func setupStorage(cfg *appconfig.Config) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			Path: cfg.Storage.LocalPath,
		})
	}
}

// setupLLM 设置大语言模型客户端
func setupLLM(cfg *appconfig.Config) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required, set llm.api_key or OPENAI_API_KEY")
	}

	return llm.NewOpenAIClient(
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithBaseURL(cfg.LLM.Endpoint),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(float32(cfg.LLM.Temperature)),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithMaxRetries(cfg.LLM.MaxRetries),
	)
}

// setupCache 设置缓存服务
func setupCache(cfg *appconfig.Config) (cache.Cache, error) {
	cacheConfig := cache.Config{
		Type:            cfg.Cache.Type,
		DefaultTTL:      cfg.Cache.TTL,
		CleanupInterval: 10 * time.Minute,
	}

	if cfg.Cache.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Cache.Address
		cacheConfig.RedisPassword = cfg.Cache.Password
		cacheConfig.RedisDB = cfg.Cache.DB
	}

	return cache.NewCache(cacheConfig)
}

// setupMapper 加载服务字典并创建编码映射器
func setupMapper(cfg *appconfig.Config, logger *logrus.Logger) (*mapper.ServiceMapper, string, error) {
	loader := dictionary.NewLoader(dictionary.WithLogger(logger))
	entries, version, err := loader.Load(cfg.Dictionary.Path)
	if err != nil {
		return nil, "", err
	}
	if cfg.Dictionary.Version != "" {
		version = cfg.Dictionary.Version
	}

	m := mapper.NewServiceMapper(entries,
		mapper.WithTopK(cfg.Mapper.TopK),
		mapper.WithThreshold(cfg.Mapper.Threshold),
		mapper.WithLogger(logger),
	)
	return m, version, nil
}

// queueConfig 将应用配置转换为任务队列配置
func queueConfig(cfg *appconfig.Config) *taskqueue.Config {
	return &taskqueue.Config{
		RedisAddr:     cfg.Queue.RedisAddr,
		RedisPassword: cfg.Queue.RedisPassword,
		RedisDB:       cfg.Queue.RedisDB,
		Concurrency:   cfg.Queue.Concurrency,
		RetryLimit:    cfg.Queue.RetryLimit,
		RetryDelay:    cfg.Queue.RetryDelay,
	}
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg *appconfig.Config, logger *logrus.Logger) (taskqueue.Queue, error) {
	qc := queueConfig(cfg)

	logger.WithFields(logrus.Fields{
		"type":        cfg.Queue.Type,
		"redis_addr":  qc.RedisAddr,
		"concurrency": qc.Concurrency,
		"retry_limit": qc.RetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(cfg.Queue.Type, qc)
}
