package resolutionregistry

import (
	"log/slog"

	httpadapter "boardroom/contexts/meeting-governance/resolution-registry/adapters/http"
	"boardroom/contexts/meeting-governance/resolution-registry/adapters/memory"
	"boardroom/contexts/meeting-governance/resolution-registry/application/commands"
	"boardroom/contexts/meeting-governance/resolution-registry/application/queries"
	"boardroom/contexts/meeting-governance/resolution-registry/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Registry commands.RegistryUseCase
	Queries  queries.RegistryUseCase
	Store    *memory.Store
}

type Dependencies struct {
	Resolutions ports.ResolutionRepository
	Outbox      ports.OutboxWriter
	Clock       ports.Clock
	IDGen       ports.IDGenerator
	Logger      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	registryUseCase := commands.RegistryUseCase{
		Resolutions: deps.Resolutions,
		Outbox:      deps.Outbox,
		Clock:       deps.Clock,
		IDGen:       deps.IDGen,
		Logger:      deps.Logger,
	}
	queryUseCase := queries.RegistryUseCase{
		Resolutions: deps.Resolutions,
		Logger:      deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Registry: registryUseCase,
			Queries:  queryUseCase,
			Logger:   deps.Logger,
		},
		Registry: registryUseCase,
		Queries:  queryUseCase,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Resolutions: store,
		Outbox:      store,
		Clock:       store,
		IDGen:       store,
		Logger:      logger,
	})
	module.Store = store
	return module
}
