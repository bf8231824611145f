package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/clock"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), persistence.DefaultMigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis, err := persistence.NewRedis(ctx, cfg.Redis, logger, persistence.RedisRequired(cfg))
	if err != nil {
		logger.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redis.Close()

	pool := pg.PoolHandle()
	ticketRepo := repository.NewTicketRepository(pool)
	auditRepo := repository.NewAuditRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	var sequence repository.SequenceStore
	switch cfg.Sequence.Backend {
	case "redis":
		sequence = repository.NewRedisSequenceStore(redis.Client)
	case "memory":
		logger.Warn("using process-local ticket sequence; numbers are not unique across replicas")
		sequence = repository.NewMemorySequenceStore()
	default:
		sequence = repository.NewPostgresSequenceStore(pool)
	}

	policy := sla.DefaultPolicy()
	if cfg.SLA.PolicyFile != "" {
		policy, err = sla.LoadPolicy(cfg.SLA.PolicyFile)
		if err != nil {
			logger.Fatal("failed to load SLA policy", zap.String("path", cfg.SLA.PolicyFile), zap.Error(err))
		}
	}
	clk := clock.Real()
	calculator := sla.NewCalculator(policy, clk)
	metrics := observability.NewMetrics()
	directory := service.NewDirectory(userRepo, cfg.Directory, logger)

	dispatcher := events.NewAsyncDispatcher(logger, cfg.Notification.QueueSize, cfg.Notification.Workers)
	dispatcher.OnDrop(func(events.Event) { metrics.Inc(observability.MetricEventsDropped) })
	if cfg.Notification.PublishToRedis {
		events.NewRedisPublisher(redis.Client, cfg.Notification.RedisChannel).SubscribeAll(dispatcher)
	}
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	stopNotifications := worker.StartNotificationWorker(notificationService, dispatcher)

	lockRegistry := locks.NewRegistry()
	ticketService, err := service.NewTicketService(service.TicketDependencies{
		TicketRepo:         ticketRepo,
		AuditRepo:          auditRepo,
		SequenceRepo:       sequence,
		Directory:          directory,
		Calculator:         calculator,
		Dispatcher:         dispatcher,
		Clock:              clk,
		Logger:             logger,
		Metrics:            metrics,
		Locks:              lockRegistry,
		SystemActorID:      cfg.Escalation.SystemActorID,
		RecomputeDeadlines: cfg.Escalation.RecomputeDeadlines,
	})
	if err != nil {
		logger.Fatal("failed to build ticket service", zap.Error(err))
	}
	escalationService, err := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:    ticketRepo,
		TicketService: ticketService,
		Clock:         clk,
		Logger:        logger,
		Metrics:       metrics,
		Config:        cfg.Escalation,
		Locks:         lockRegistry,
	})
	if err != nil {
		logger.Fatal("failed to build escalation service", zap.Error(err))
	}

	escalationWorker := worker.NewEscalationWorker(escalationService, clk, cfg.Escalation.Interval(), logger)
	if cfg.Escalation.Enabled {
		escalationWorker.Start(ctx)
	} else {
		logger.Info("escalation sweep disabled")
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, 0)
	authMiddleware := auth.NewAuthMiddleware(tokens, directory)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"postgres": pg,
		"redis":    redis,
	}, directory)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         healthHandler,
		Users:          handlers.NewUsersHandler(),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		StaffTickets:   handlers.NewStaffTicketsHandler(ticketService, escalationService),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	escalationWorker.Stop()
	lockRegistry.Close()
	if err := stopNotifications(shutdownCtx); err != nil {
		logger.Warn("notification queue not drained", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
