package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/report-router/internal/api/chat"
	httptransport "github.com/spec-kit/report-router/internal/api/http"
	"github.com/spec-kit/report-router/internal/api/http/handlers"
	"github.com/spec-kit/report-router/internal/config"
	"github.com/spec-kit/report-router/internal/events"
	"github.com/spec-kit/report-router/internal/observability"
	"github.com/spec-kit/report-router/internal/persistence"
	"github.com/spec-kit/report-router/internal/repository"
	"github.com/spec-kit/report-router/internal/service"
	"github.com/spec-kit/report-router/internal/session"
	"github.com/spec-kit/report-router/internal/transport/telegram"
	"github.com/spec-kit/report-router/internal/worker"
)

func main() {
	var envFile string
	var migrateOnly bool

	flagSet := pflag.NewFlagSet("report-router", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "optional env file loaded before reading the environment")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply postgres migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("parse flags: %v", err)
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if migrateOnly {
		if err := migrate(ctx, cfg, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	probes := map[string]handlers.Pinger{}

	tickets, closeStore, err := openStore(ctx, cfg, logger, probes)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, closeSessions, err := openSessions(ctx, cfg, logger, probes)
	if err != nil {
		return err
	}
	defer closeSessions()

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger, metrics))

	bot, err := telegram.NewBot(cfg.Telegram, logger)
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}
	username, err := bot.Username(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	logger.Info("bot authorized", zap.String("username", username))

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: tickets,
		Poster:     bot,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	router := chat.NewRouter(chat.RouterDependencies{
		Tickets:   ticketService,
		Sessions:  sessions,
		Messenger: bot,
		Metrics:   metrics,
		Logger:    logger,
		Settings: chat.Settings{
			SupportChatID:   cfg.Telegram.SupportChatID,
			IntentLabel:     cfg.Telegram.IntentLabel,
			BotUsername:     username,
			Operator:        cfg.Telegram.Operator,
			SupportChatLink: cfg.Telegram.SupportChatLink,
		},
	})

	if cfg.HTTP.Enabled {
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		httptransport.RegisterMiddlewares(app, logger, metrics, cfg.HTTP.RequestTimeout())
		httptransport.RegisterRoutes(app, httptransport.RouteConfig{
			Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, probes),
			Tickets: handlers.NewTicketsHandler(ticketService),
			Metrics: handlers.NewMetricsHandler(metrics),
		})

		go func() {
			if err := app.Listen(cfg.HTTP.Addr()); err != nil {
				logger.Error("fiber listen", zap.Error(err))
			}
		}()
		defer func() { _ = app.Shutdown() }()
	}

	pool := worker.NewPool(cfg.Telegram.Workers, router.Handle, logger)
	defer pool.Close()

	return bot.Run(ctx, pool)
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, probes map[string]handlers.Pinger) (repository.TicketRepository, func(), error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				pg.Close()
				return nil, nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		probes["postgres"] = pg
		return repository.NewTicketRepository(pg.PoolHandle()), pg.Close, nil
	case config.StoreDriverSQLite:
		db, err := persistence.NewSQLite(ctx, cfg.SQLite, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		probes["sqlite"] = db
		return repository.NewSQLiteTicketRepository(db.DB), db.Close, nil
	default:
		logger.Warn("using in-memory ticket store; tickets are lost on restart")
		return repository.NewMemoryTicketRepository(), func() {}, nil
	}
}

func openSessions(ctx context.Context, cfg *config.Config, logger *zap.Logger, probes map[string]handlers.Pinger) (session.Tracker, func(), error) {
	if cfg.Session.Backend != config.SessionBackendRedis {
		return session.NewMemoryTracker(), func() {}, nil
	}
	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}
	probes["redis"] = redis
	return session.NewRedisTracker(redis.Client, cfg.Session.KeyPrefix, cfg.Session.TTL), redis.Close, nil
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Postgres.DSN == "" {
		return errors.New("POSTGRES_DSN is required to run migrations")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	return persistence.RunMigrations(ctx, pg.PoolHandle(), logger)
}
