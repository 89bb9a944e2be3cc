package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/config"
	"gopherai-docqa/internal/extract"
	"gopherai-docqa/internal/model"
	mysqlClient "gopherai-docqa/internal/platform/mysql"
	rabbitmqClient "gopherai-docqa/internal/platform/rabbitmq"
	redisClient "gopherai-docqa/internal/platform/redis"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/session"
	"gopherai-docqa/internal/worker"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *session.Registry
	Service  *app.DocQAService

	// Optional infrastructure, nil unless enabled in config.
	MySQL            *gorm.DB
	Redis            *redis.Client
	MQConn           *amqp.Connection
	TranscriptWorker *worker.TranscriptPersistWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := NewLogger(cfg.App)
	slog.SetDefault(logger)

	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}
	deps := app.DocQADeps{Logger: logger}

	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: time.Duration(cfg.Redis.DialTimeoutSeconds) * time.Second,
			IOTimeout:   time.Duration(cfg.Redis.IOTimeoutSeconds) * time.Second,
			PoolSize:    cfg.Redis.PoolSize,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		deps.History = cache.NewHistoryCache(
			a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}

	if cfg.Audit.Enabled {
		if err := a.startAudit(ctx, &deps); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	httpClient := ai.NewOpenAICompatibleClient(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second)
	chatModel := ai.NewChatModel(httpClient, ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
	})
	deps.Generator = chatModel
	deps.ModelOverride = func(name string) rag.Generator { return chatModel.WithModel(name) }
	deps.DefaultModel = chatModel.Model()
	deps.Embedder = newEmbedder(cfg.Embedding)

	a.Registry = session.NewRegistry(session.Options{
		TTL:           cfg.SessionTTL(),
		SweepInterval: cfg.SweepInterval(),
		MaxSessions:   cfg.Session.MaxSessions,
		Logger:        logger.With("component", "session_registry"),
	})
	a.Registry.Start(ctx)
	deps.Registry = a.Registry
	deps.Extractors = extract.NewRegistry(cfg.Upload.TempDir)

	a.Service = app.NewDocQAService(deps, app.DocQAOptions{
		ChunkSize:        cfg.RAG.ChunkSize,
		ChunkOverlap:     cfg.RAG.ChunkOverlap,
		TopK:             cfg.RAG.TopK,
		MaxHistoryTurns:  cfg.RAG.MaxHistoryTurns,
		CondenseQuestion: cfg.RAG.CondenseQuestion,
		RequestTimeout:   cfg.RequestTimeout(),
		MaxUploadBytes:   cfg.MaxUploadBytes(),
	})

	logger.Info("application ready",
		"llm_model", cfg.LLM.Model,
		"embedding_provider", cfg.Embedding.Provider,
		"redis", cfg.Redis.Enabled,
		"audit", cfg.Audit.Enabled,
	)
	return a, nil
}

// startAudit connects MySQL and RabbitMQ and starts the transcript worker.
func (a *App) startAudit(ctx context.Context, deps *app.DocQADeps) error {
	cfg := a.Config
	mysqlDB, err := mysqlClient.New(ctx, mysqlClient.Options{
		DSN:             cfg.MySQLDSN(),
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		ConnMaxLifetime: time.Duration(cfg.MySQL.ConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(cfg.MySQL.ConnMaxIdleMinutes) * time.Minute,
		PingTimeout:     time.Duration(cfg.MySQL.PingTimeoutSeconds) * time.Second,
		LogLevel:        cfg.MySQL.LogLevel,
		Logger:          a.Logger,
	})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(&model.TranscriptEntry{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	transcriptRepo := repository.NewTranscriptRepository(mysqlDB)
	a.TranscriptWorker = worker.NewTranscriptPersistWorker(mqConn, transcriptRepo, cfg.RabbitMQ.TranscriptQueue, a.Logger)
	if err := a.TranscriptWorker.Start(ctx); err != nil {
		return fmt.Errorf("start transcript worker failed: %w", err)
	}

	deps.Publisher = rabbitmqClient.NewTranscriptPublisher(mqConn, cfg.RabbitMQ.TranscriptQueue)
	deps.Transcripts = transcriptRepo
	return nil
}

func newEmbedder(cfg config.EmbeddingConfig) rag.Embedder {
	if cfg.Provider == "hash" {
		return ai.NewHashEmbedder(cfg.Dimension)
	}
	client := ai.NewOpenAICompatibleClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	return ai.NewEmbeddingClient(
		client,
		ai.EmbeddingConfig{BaseURL: cfg.BaseURL, APIKey: cfg.APIKey, Model: cfg.Model},
		cfg.BatchSize,
		ai.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Backoff:    time.Duration(cfg.RetryBackoffMS) * time.Millisecond,
		},
		cfg.RequestsPerSecond,
	)
}

func (a *App) Close() error {
	var closeErr error
	if a.Registry != nil {
		a.Registry.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.TranscriptWorker != nil {
		a.TranscriptWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
