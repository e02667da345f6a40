package workers

import (
	"context"
	"log/slog"

	"boardroom/contexts/meeting-governance/voting-session/application"
	"boardroom/contexts/meeting-governance/voting-session/application/commands"
	"boardroom/contexts/meeting-governance/voting-session/ports"
)

// DeadlineSweeper flags open sessions whose voting deadline has passed. The
// deadline stops ballot acceptance on its own; closing stays an explicit,
// authorized action, so the sweep only publishes a deadline-reached event for
// each session it has not flagged before.
type DeadlineSweeper struct {
	Sessions commands.SessionUseCase
	Clock    ports.Clock
	Logger   *slog.Logger
}

func (s DeadlineSweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)

	notified, err := s.Sessions.SweepDeadlines(ctx, s.Clock.Now())
	if err != nil {
		logger.ErrorContext(ctx, "deadline sweep failed",
			slog.String("event", "voting_deadline_sweep_failed"),
			slog.String("module", "voting-session"),
			slog.String("layer", "worker"),
			slog.String("error", err.Error()),
		)
		return notified, err
	}
	if notified > 0 {
		logger.InfoContext(ctx, "session deadlines reached",
			slog.String("event", "voting_deadline_sweep_completed"),
			slog.String("module", "voting-session"),
			slog.String("layer", "worker"),
			slog.Int("notified", notified),
		)
	}
	return notified, nil
}
