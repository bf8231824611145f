package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/locks"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/sla"
)

func newSweepCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one escalation sweep against the database",
		Long: `Run one breach sweep and print the summary as JSON.

--at evaluates breaches at a given instant instead of now, which is useful
for previewing what the next scheduled sweep will escalate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configLoader()
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			result, err := runSweep(cmd.Context(), cfg, logger, now)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate breaches at this RFC3339 instant")
	return cmd
}

func runSweep(ctx context.Context, cfg *config.Config, logger *zap.Logger, now time.Time) (service.SweepResult, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return service.SweepResult{}, err
	}
	defer pg.Close()
	pool := pg.PoolHandle()

	policy, err := loadPolicy(cfg.SLA.PolicyFile)
	if err != nil {
		return service.SweepResult{}, err
	}
	ticketRepo := repository.NewTicketRepository(pool)
	dispatcher := events.NewInMemoryDispatcher(logger)
	service.NewNotificationService(dispatcher, logger, cfg.Notification).RegisterHandlers()
	if cfg.Notification.PublishToRedis {
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger, true)
		if err != nil {
			return service.SweepResult{}, err
		}
		defer redis.Close()
		events.NewRedisPublisher(redis.Client, cfg.Notification.RedisChannel).SubscribeAll(dispatcher)
	}

	registry := locks.NewRegistry()
	defer registry.Close()
	ticketService, err := service.NewTicketService(service.TicketDependencies{
		TicketRepo:         ticketRepo,
		AuditRepo:          repository.NewAuditRepository(pool),
		SequenceRepo:       repository.NewPostgresSequenceStore(pool),
		Directory:          service.NewDirectory(repository.NewUserRepository(pool), cfg.Directory, logger),
		Calculator:         sla.NewCalculator(policy, nil),
		Dispatcher:         dispatcher,
		Logger:             logger,
		Metrics:            observability.NewMetrics(),
		Locks:              registry,
		SystemActorID:      cfg.Escalation.SystemActorID,
		RecomputeDeadlines: cfg.Escalation.RecomputeDeadlines,
	})
	if err != nil {
		return service.SweepResult{}, err
	}
	sweeper, err := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:    ticketRepo,
		TicketService: ticketService,
		Logger:        logger,
		Config:        cfg.Escalation,
		Locks:         registry,
	})
	if err != nil {
		return service.SweepResult{}, err
	}
	return sweeper.RunEscalationSweep(ctx, now)
}

func newMigrateCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configLoader()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			return persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), dir, logger)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", persistence.DefaultMigrationsDir, "migrations directory")
	return cmd
}
