package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"guide_sync/internal/browse"
	"guide_sync/internal/config"
	"guide_sync/internal/domain"
	"guide_sync/internal/httpapi"
	"guide_sync/internal/product"
	"guide_sync/internal/publisher"
	"guide_sync/internal/scheduler"
	"guide_sync/internal/service"
	"guide_sync/internal/source/halo"
	"guide_sync/internal/storage/memory"
	"guide_sync/internal/storage/postgres"
	"guide_sync/migrations"
)

type categoryStore interface {
	service.CategoryStore
	Get(ctx context.Context, id int64) (*domain.Category, error)
	GetByRemoteID(ctx context.Context, remoteID int64) (*domain.Category, error)
}

type guideStore interface {
	service.GuideStore
	ListPublished(ctx context.Context) ([]domain.Guide, error)
	GetByExternalID(ctx context.Context, externalID int64) (*domain.Guide, error)
}

type runStore interface {
	service.SyncRunStore
	Last(ctx context.Context) (*domain.SyncRun, error)
}

type storage struct {
	categories categoryStore
	guides     guideStore
	runs       runStore
	txManager  service.TransactionManager
	locker     service.Locker
	close      func()
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err, "driver", cfg.Storage.Driver)
		os.Exit(1)
	}
	defer store.close()

	haloSource, err := halo.New(halo.Config{
		BaseURL:        cfg.API.BaseURL,
		ArticleCount:   cfg.API.ArticleCount,
		Timeout:        cfg.API.Timeout,
		MaxAttempts:    cfg.API.Retry.MaxAttempts,
		InitialBackoff: cfg.API.Retry.InitialBackoff,
		MaxBackoff:     cfg.API.Retry.MaxBackoff,
	}, logger)
	if err != nil {
		logger.Error("failed to create halo source", "error", err)
		os.Exit(1)
	}

	var events service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		events = rabbitMQ
	} else {
		logger.Info("rabbitmq url not set, guide events disabled")
	}

	syncService := service.NewSyncService(
		haloSource,
		store.categories,
		store.guides,
		store.runs,
		store.txManager,
		store.locker,
		events,
		logger,
		cfg.Sync,
	)

	if *once {
		report, err := syncService.Sync(ctx)
		if err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
		logger.Info(report.Message(), "run_id", report.RunID, "status", report.Status())
		if report.Status() == domain.RunFailed {
			os.Exit(1)
		}
		return
	}

	rules := product.NewRules(cfg.Products, cfg.ProductOrder, cfg.DefaultProduct)
	resolver := product.NewResolver(store.categories, store.guides, rules)
	browser := browse.NewBrowser(store.categories, store.guides, rules)

	handler := httpapi.NewHandler(
		syncService,
		store.categories,
		store.guides,
		store.runs,
		resolver,
		browser,
		cfg.HTTP.AdminToken,
		cfg.Sync.Timeout,
		logger,
	)
	server := httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewEngine(handler, logger), logger)

	go func() {
		if err := server.Run(ctx); err != nil {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	logger.Info("starting guide syncer",
		"source", haloSource.Name(),
		"storage", cfg.Storage.Driver,
		"interval", cfg.Sync.Interval,
		"addr", cfg.HTTP.Addr,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.Timeout, logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		logger.Warn("using in-memory storage, data is lost on exit")
		mem := memory.New()
		return &storage{
			categories: mem.Categories(),
			guides:     mem.Guides(),
			runs:       mem.Runs(),
			txManager:  mem,
			locker:     &memory.Locker{},
			close:      func() {},
		}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(ctx, db.DB); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("connected to database")

	return &storage{
		categories: postgres.NewCategoryStore(db),
		guides:     postgres.NewGuideStore(db),
		runs:       postgres.NewSyncRunStore(db),
		txManager:  postgres.NewTransactionManager(db),
		locker:     postgres.NewAdvisoryLocker(db, logger),
		close:      func() { db.Close() },
	}, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
