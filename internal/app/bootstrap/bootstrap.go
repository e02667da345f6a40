package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	proxygraph "boardroom/contexts/meeting-governance/proxy-graph"
	proxypostgres "boardroom/contexts/meeting-governance/proxy-graph/adapters/postgres"
	proxyworkers "boardroom/contexts/meeting-governance/proxy-graph/application/workers"
	resolutionregistry "boardroom/contexts/meeting-governance/resolution-registry"
	resolutionpostgres "boardroom/contexts/meeting-governance/resolution-registry/adapters/postgres"
	resolutionworkers "boardroom/contexts/meeting-governance/resolution-registry/application/workers"
	roleregistry "boardroom/contexts/meeting-governance/role-registry"
	rolepostgres "boardroom/contexts/meeting-governance/role-registry/adapters/postgres"
	votingsession "boardroom/contexts/meeting-governance/voting-session"
	votingpostgres "boardroom/contexts/meeting-governance/voting-session/adapters/postgres"
	votingworkers "boardroom/contexts/meeting-governance/voting-session/application/workers"
	workflowengine "boardroom/contexts/meeting-governance/workflow-engine"
	workflowpostgres "boardroom/contexts/meeting-governance/workflow-engine/adapters/postgres"
	workflowworkers "boardroom/contexts/meeting-governance/workflow-engine/application/workers"
	"boardroom/internal/platform/config"
	"boardroom/internal/platform/db"
	"boardroom/internal/platform/httpserver"
	"boardroom/internal/platform/messaging"
)

// Package bootstrap is the composition root. Modules never import each
// other; the glue adapters below implement one module's consumer-side
// ports on top of another module's use cases, and all wiring stays here.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	logger   *slog.Logger
}

type WorkerApp struct {
	postgres        *db.Postgres
	proxyExpirer    proxyworkers.ExpirySweeper
	deadlineSweeper votingworkers.DeadlineSweeper
	proxyRelay      proxyworkers.OutboxRelay
	workflowRelay   workflowworkers.OutboxRelay
	votingRelay     votingworkers.OutboxRelay
	resolutionRelay resolutionworkers.OutboxRelay
	relayEnabled    bool
	sweepEnabled    bool
	pollInterval    time.Duration
	logger          *slog.Logger
}

// Modules bundles the wired governance modules for the HTTP server and for
// in-process integration tests.
type Modules struct {
	Roles       roleregistry.Module
	Proxies     proxygraph.Module
	Workflow    workflowengine.Module
	Voting      votingsession.Module
	Resolutions resolutionregistry.Module
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	modules := buildModules(pg, logger)
	server := httpserver.New(
		modules.Workflow,
		modules.Proxies,
		modules.Voting,
		modules.Resolutions,
		logger,
		normalizeAddr(cfg.HTTPPort),
	)
	return &APIApp{
		server:   server,
		postgres: pg,
		logger:   logger,
	}, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	modules := buildModules(pg, logger)
	proxyRepo := proxypostgres.NewRepository(pg.DB, logger)
	workflowRepo := workflowpostgres.NewRepository(pg.DB, logger)
	votingRepo := votingpostgres.NewRepository(pg.DB, logger)
	resolutionRepo := resolutionpostgres.NewRepository(pg.DB, logger)

	return &WorkerApp{
		postgres: pg,
		proxyExpirer: proxyworkers.ExpirySweeper{
			Grants: modules.Proxies.Grants,
			Clock:  proxypostgres.SystemClock{},
			Logger: logger,
		},
		deadlineSweeper: votingworkers.DeadlineSweeper{
			Sessions: modules.Voting.Sessions,
			Clock:    votingpostgres.SystemClock{},
			Logger:   logger,
		},
		proxyRelay: proxyworkers.OutboxRelay{
			Outbox:    proxyRepo,
			Publisher: proxyPublisher{bus: kafka},
			Clock:     proxypostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		workflowRelay: workflowworkers.OutboxRelay{
			Outbox:    workflowRepo,
			Publisher: workflowPublisher{bus: kafka},
			Clock:     workflowpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		votingRelay: votingworkers.OutboxRelay{
			Outbox:    votingRepo,
			Publisher: votingPublisher{bus: kafka},
			Clock:     votingpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		resolutionRelay: resolutionworkers.OutboxRelay{
			Outbox:    resolutionRepo,
			Publisher: resolutionPublisher{bus: kafka},
			Clock:     resolutionpostgres.SystemClock{},
			BatchSize: 100,
			Logger:    logger,
		},
		relayEnabled: cfg.EnableOutboxRelay,
		sweepEnabled: cfg.EnableProxyExpirySweep,
		pollInterval: 2 * time.Second,
		logger:       logger,
	}, nil
}

func buildModules(pg *db.Postgres, logger *slog.Logger) Modules {
	roleRepo := rolepostgres.NewRepository(pg.DB, logger)
	roleModule := roleregistry.NewModule(roleregistry.Dependencies{
		Roles:  roleRepo,
		Logger: logger,
	})

	proxyRepo := proxypostgres.NewRepository(pg.DB, logger)
	proxyModule := proxygraph.NewModule(proxygraph.Dependencies{
		Grants:         proxyRepo,
		Idempotency:    proxyRepo,
		Outbox:         proxyRepo,
		Clock:          proxypostgres.SystemClock{},
		IDGen:          proxypostgres.UUIDGenerator{},
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})

	workflowRepo := workflowpostgres.NewRepository(pg.DB, logger)
	workflowModule := workflowengine.NewModule(workflowengine.Dependencies{
		Workflows: workflowRepo,
		Outbox:    workflowRepo,
		Clock:     workflowpostgres.SystemClock{},
		IDGen:     workflowpostgres.UUIDGenerator{},
		Logger:    logger,
	})

	resolutionRepo := resolutionpostgres.NewRepository(pg.DB, logger)
	resolutionModule := resolutionregistry.NewModule(resolutionregistry.Dependencies{
		Resolutions: resolutionRepo,
		Outbox:      resolutionRepo,
		Clock:       resolutionpostgres.SystemClock{},
		IDGen:       resolutionpostgres.UUIDGenerator{},
		Logger:      logger,
	})

	votingRepo := votingpostgres.NewRepository(pg.DB, logger)
	votingModule := votingsession.NewModule(votingsession.Dependencies{
		Sessions:       votingRepo,
		Idempotency:    votingRepo,
		Gate:           WorkflowGateAdapter{Engine: workflowModule.Engine},
		Roles:          RoleDirectoryAdapter{Weights: roleModule.Weights},
		Proxies:        ProxyResolverAdapter{Grants: proxyModule.Grants, Resolve: proxyModule.Resolve},
		Resolutions:    ResolutionRecorderAdapter{Registry: resolutionModule.Registry},
		Outbox:         votingRepo,
		Clock:          votingpostgres.SystemClock{},
		IDGen:          votingpostgres.UUIDGenerator{},
		IdempotencyTTL: 7 * 24 * time.Hour,
		Logger:         logger,
	})

	return Modules{
		Roles:       roleModule,
		Proxies:     proxyModule,
		Workflow:    workflowModule,
		Voting:      votingModule,
		Resolutions: resolutionModule,
	}
}

func (a *APIApp) Run(_ context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	return a.server.Start()
}

func (a *APIApp) Close() error {
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (w *WorkerApp) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)

	for {
		if w.sweepEnabled {
			if err := w.proxyExpirer.RunOnce(ctx); err != nil {
				return err
			}
		}
		if _, err := w.deadlineSweeper.RunOnce(ctx); err != nil {
			return err
		}
		if w.relayEnabled {
			if err := w.proxyRelay.RunOnce(ctx); err != nil {
				return err
			}
			if _, err := w.workflowRelay.RunOnce(ctx); err != nil {
				return err
			}
			if _, err := w.votingRelay.RunOnce(ctx); err != nil {
				return err
			}
			if _, err := w.resolutionRelay.RunOnce(ctx); err != nil {
				return err
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
