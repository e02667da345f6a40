package votingsession

import (
	"log/slog"
	"time"

	httpadapter "boardroom/contexts/meeting-governance/voting-session/adapters/http"
	"boardroom/contexts/meeting-governance/voting-session/adapters/memory"
	"boardroom/contexts/meeting-governance/voting-session/application/commands"
	"boardroom/contexts/meeting-governance/voting-session/application/queries"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Sessions commands.SessionUseCase
	Results  queries.ResultsUseCase
	Store    *memory.Store
}

type Dependencies struct {
	Sessions       ports.SessionRepository
	Idempotency    ports.IdempotencyStore
	Gate           ports.WorkflowGate
	Roles          ports.RoleDirectory
	Proxies        ports.ProxyResolver
	Resolutions    ports.ResolutionRecorder
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

func NewModule(deps Dependencies) Module {
	sessionUseCase := commands.SessionUseCase{
		Sessions:       deps.Sessions,
		Idempotency:    deps.Idempotency,
		Gate:           deps.Gate,
		Roles:          deps.Roles,
		Proxies:        deps.Proxies,
		Resolutions:    deps.Resolutions,
		Outbox:         deps.Outbox,
		Clock:          deps.Clock,
		IDGen:          deps.IDGen,
		IdempotencyTTL: deps.IdempotencyTTL,
		Logger:         deps.Logger,
	}
	resultsUseCase := queries.ResultsUseCase{
		Sessions: deps.Sessions,
		Logger:   deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Sessions: sessionUseCase,
			Results:  resultsUseCase,
			Logger:   deps.Logger,
		},
		Sessions: sessionUseCase,
		Results:  resultsUseCase,
	}
}

// NewInMemoryModule wires the module against the in-process store. The
// cross-module ports still come from the caller; tests supply fakes and the
// composition root supplies glue over the sibling modules.
func NewInMemoryModule(gate ports.WorkflowGate, roles ports.RoleDirectory, proxies ports.ProxyResolver, resolutions ports.ResolutionRecorder, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Sessions:       store,
		Idempotency:    store,
		Gate:           gate,
		Roles:          roles,
		Proxies:        proxies,
		Resolutions:    resolutions,
		Outbox:         store,
		Clock:          store,
		IDGen:          store,
		IdempotencyTTL: 24 * time.Hour,
		Logger:         logger,
	})
	module.Store = store
	return module
}
