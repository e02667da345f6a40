package workers

import (
	"context"
	"log/slog"
	"time"

	application "boardroom/contexts/meeting-governance/proxy-graph/application"
	"boardroom/contexts/meeting-governance/proxy-graph/application/commands"
	"boardroom/contexts/meeting-governance/proxy-graph/ports"
)

// ExpirySweeper periodically expires grants whose effective window elapsed.
// The sweep replaces the source system's background trigger with an explicit,
// idempotent batch call.
type ExpirySweeper struct {
	Grants commands.GrantUseCase
	Clock  ports.Clock
	Logger *slog.Logger
}

func (s ExpirySweeper) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	expired, err := s.Grants.ExpireSweep(ctx, now)
	if err != nil {
		logger.Error("proxy expiry sweep failed",
			"event", "proxy_expiry_sweep_failed",
			"module", "meeting-governance/proxy-graph",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}
	if expired > 0 {
		logger.Info("proxy expiry sweep cycle completed",
			"event", "proxy_expiry_sweep_cycle_completed",
			"module", "meeting-governance/proxy-graph",
			"layer", "worker",
			"expired_count", expired,
		)
	}
	return nil
}
