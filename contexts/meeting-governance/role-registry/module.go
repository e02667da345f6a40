package roleregistry

import (
	"log/slog"

	"boardroom/contexts/meeting-governance/role-registry/adapters/memory"
	"boardroom/contexts/meeting-governance/role-registry/application/commands"
	"boardroom/contexts/meeting-governance/role-registry/application/queries"
	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
	"boardroom/contexts/meeting-governance/role-registry/ports"
)

type Module struct {
	Weights    queries.WeightUseCase
	Projection commands.ProjectionUseCase
	Store      *memory.Store
}

type Dependencies struct {
	Roles     ports.RoleRepository
	Directory ports.MembershipDirectory
	OrgID     string
	Logger    *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Weights: queries.WeightUseCase{
			Roles:     deps.Roles,
			Directory: deps.Directory,
			OrgID:     deps.OrgID,
			Logger:    deps.Logger,
		},
		Projection: commands.ProjectionUseCase{
			Roles:  deps.Roles,
			Logger: deps.Logger,
		},
	}
}

func NewInMemoryModule(seed []entities.MeetingRole, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	module := NewModule(Dependencies{
		Roles:  store,
		Logger: logger,
	})
	module.Store = store
	return module
}
