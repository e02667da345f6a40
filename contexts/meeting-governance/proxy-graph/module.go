package proxygraph

import (
	"log/slog"
	"time"

	httpadapter "boardroom/contexts/meeting-governance/proxy-graph/adapters/http"
	"boardroom/contexts/meeting-governance/proxy-graph/adapters/memory"
	"boardroom/contexts/meeting-governance/proxy-graph/application/commands"
	"boardroom/contexts/meeting-governance/proxy-graph/application/queries"
	"boardroom/contexts/meeting-governance/proxy-graph/domain/entities"
	"boardroom/contexts/meeting-governance/proxy-graph/ports"
)

type Module struct {
	Handler httpadapter.Handler
	Grants  commands.GrantUseCase
	Resolve queries.ResolveUseCase
	Store   *memory.Store
}

type Dependencies struct {
	Grants         ports.GrantRepository
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	grantUseCase := commands.GrantUseCase{
		Grants:         deps.Grants,
		Idempotency:    deps.Idempotency,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	resolveUseCase := queries.ResolveUseCase{
		Grants: deps.Grants,
		Logger: deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Grants:  grantUseCase,
			Resolve: resolveUseCase,
			Logger:  deps.Logger,
		},
		Grants:  grantUseCase,
		Resolve: resolveUseCase,
	}
}

func NewInMemoryModule(seed []entities.ProxyGrant, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Grants:         store,
		Idempotency:    store,
		Outbox:         store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
