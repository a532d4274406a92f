package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cloudpdf/internal/ai"
	"cloudpdf/internal/app"
	"cloudpdf/internal/cache"
	"cloudpdf/internal/config"
	"cloudpdf/internal/pkg/logger"
	"cloudpdf/internal/pkg/pdfextract"
	mysqlClient "cloudpdf/internal/platform/mysql"
	rabbitmqClient "cloudpdf/internal/platform/rabbitmq"
	redisClient "cloudpdf/internal/platform/redis"
	"cloudpdf/internal/repository"
	"cloudpdf/internal/storage"
	"cloudpdf/internal/storage/gcs"
	"cloudpdf/internal/storage/local"
	"cloudpdf/internal/worker"
)

type Options struct {
	// StartWorkers starts the file cleanup consumer. The CLI leaves it off
	// and relies on the server's consumer.
	StartWorkers bool
}

type App struct {
	Config        *config.Config
	Logger        *logrus.Logger
	MySQL         *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	Store         storage.FileStore
	CleanupWorker *worker.FileCleanupWorker

	AuthService   *app.AuthService
	ThesisService *app.ThesisService

	closers   []io.Closer
	StartedAt time.Time
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log := logger.New(cfg.App.Env)

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		if closeErr := a.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("close partially started resources failed")
		}
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), cfg.App.Env == "dev")
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlClient.Migrate(ctx, mysqlDB); err != nil {
		return err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.FileCleanupQueue)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	store, err := a.newStore(ctx)
	if err != nil {
		return err
	}
	a.Store = store

	completer, err := a.newCompleter(ctx)
	if err != nil {
		return err
	}

	if opts.StartWorkers {
		cleanupWorker := worker.NewFileCleanupWorker(mqConn, store, cfg.RabbitMQ.FileCleanupQueue, a.Logger)
		if err := cleanupWorker.Start(ctx); err != nil {
			return fmt.Errorf("start file cleanup worker failed: %w", err)
		}
		a.CleanupWorker = cleanupWorker
	}

	userRepo := repository.NewUserRepository(mysqlDB)
	thesisRepo := repository.NewThesisRepository(mysqlDB)

	a.AuthService = app.NewAuthService(
		userRepo,
		cache.NewTokenDenylist(redisCli),
		cfg.Auth.JWTSecret,
		cfg.JWTExpiration(),
	)
	a.ThesisService = app.NewThesisService(app.ThesisDeps{
		Repo:      thesisRepo,
		Store:     store,
		Extractor: pdfextract.New(),
		Analyzer:  ai.NewThesisAnalyzer(completer),
		Cache:     cache.NewThesisListCache(redisCli, cfg.ThesisListTTL()),
		Orphans:   rabbitmqClient.NewCleanupPublisher(mqConn, cfg.RabbitMQ.FileCleanupQueue),
		Logger:    a.Logger,
	}, app.ThesisServiceConfig{
		MaxBytes:         cfg.Upload.MaxBytes,
		PromptChars:      cfg.Upload.PromptChars,
		AnonymousOwnerID: cfg.Upload.AnonymousOwnerID,
	})
	return nil
}

func (a *App) newStore(ctx context.Context) (storage.FileStore, error) {
	switch a.Config.Storage.Driver {
	case "gcs":
		store, err := gcs.New(ctx, a.Config.Storage.GCSBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	default:
		return local.New(a.Config.Storage.LocalDir)
	}
}

func (a *App) newCompleter(ctx context.Context) (ai.Completer, error) {
	llm := a.Config.LLM
	var base ai.Completer
	switch llm.Provider {
	case "gemini":
		client, err := ai.NewGeminiClient(ctx, llm.APIKey, llm.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		base = client
	case "vertex":
		client, err := ai.NewVertexClient(ctx, llm.VertexProject, llm.VertexRegion, llm.Model)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client)
		base = client
	default:
		base = ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL: llm.BaseURL,
			APIKey:  llm.APIKey,
			Model:   llm.Model,
		})
	}
	return ai.NewRetryingCompleter(base, llm.MaxAttempts, a.Config.LLMRetryBaseDelay(), a.Config.LLMTimeout(), a.Logger), nil
}

func (a *App) Close() error {
	var closeErr error
	if a.CleanupWorker != nil {
		a.CleanupWorker.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
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
