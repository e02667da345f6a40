package workflowengine

import (
	"log/slog"

	httpadapter "boardroom/contexts/meeting-governance/workflow-engine/adapters/http"
	"boardroom/contexts/meeting-governance/workflow-engine/adapters/memory"
	"boardroom/contexts/meeting-governance/workflow-engine/application/commands"
	"boardroom/contexts/meeting-governance/workflow-engine/application/queries"
	"boardroom/contexts/meeting-governance/workflow-engine/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Engine    commands.EngineUseCase
	Instances queries.InstanceUseCase
	Store     *memory.Store
}

type Dependencies struct {
	Workflows ports.WorkflowRepository
	Outbox    ports.OutboxWriter
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	engineUseCase := commands.EngineUseCase{
		Workflows: deps.Workflows,
		Outbox:    deps.Outbox,
		Clock:     deps.Clock,
		IDGen:     deps.IDGen,
		Logger:    deps.Logger,
	}
	instanceUseCase := queries.InstanceUseCase{
		Workflows: deps.Workflows,
		Logger:    deps.Logger,
	}
	return Module{
		Handler: httpadapter.Handler{
			Engine:    engineUseCase,
			Instances: instanceUseCase,
			Logger:    deps.Logger,
		},
		Engine:    engineUseCase,
		Instances: instanceUseCase,
	}
}

func NewInMemoryModule(logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Workflows: store,
		Outbox:    store,
		Clock:     store,
		IDGen:     store,
		Logger:    logger,
	})
	module.Store = store
	return module
}
