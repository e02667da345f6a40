package resolutionregistry_test

import (
	"context"
	"errors"
	"testing"

	resolutionregistry "boardroom/contexts/meeting-governance/resolution-registry"
	"boardroom/contexts/meeting-governance/resolution-registry/application/commands"
	"boardroom/contexts/meeting-governance/resolution-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/resolution-registry/domain/errors"
)

func proposeCmd(title string) commands.ProposeCommand {
	return commands.ProposeCommand{
		MeetingID:  "meeting-1",
		Title:      title,
		Text:       "be it resolved",
		Category:   "finance",
		ProposedBy: "member-a",
		SecondedBy: "member-b",
	}
}

func TestProposeRequiresDistinctSecond(t *testing.T) {
	module := resolutionregistry.NewInMemoryModule(nil)

	cmd := proposeCmd("adopt budget")
	cmd.SecondedBy = ""
	if _, err := module.Registry.Propose(context.Background(), cmd); !errors.Is(err, domainerrors.ErrSecondRequired) {
		t.Fatalf("expected second requirement, got %v", err)
	}

	cmd.SecondedBy = "member-a"
	if _, err := module.Registry.Propose(context.Background(), cmd); !errors.Is(err, domainerrors.ErrInvalidResolutionInput) {
		t.Fatalf("expected self-second rejection, got %v", err)
	}

	resolution, err := module.Registry.Propose(context.Background(), proposeCmd("adopt budget"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	if resolution.Status != entities.ResolutionStatusProposed {
		t.Fatalf("expected proposed status, got %s", resolution.Status)
	}
}

func TestRecordOutcomeOncePerRound(t *testing.T) {
	module := resolutionregistry.NewInMemoryModule(nil)
	resolution, err := module.Registry.Propose(context.Background(), proposeCmd("adopt budget"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	passed, err := module.Registry.RecordOutcome(context.Background(), commands.RecordOutcomeCommand{
		ResolutionID:  resolution.ResolutionID,
		Round:         1,
		SessionID:     "session-1",
		ForWeight:     5,
		AgainstWeight: 2,
		Passed:        true,
	})
	if err != nil {
		t.Fatalf("record outcome failed: %v", err)
	}
	if passed.Status != entities.ResolutionStatusPassed {
		t.Fatalf("expected passed, got %s", passed.Status)
	}

	_, err = module.Registry.RecordOutcome(context.Background(), commands.RecordOutcomeCommand{
		ResolutionID: resolution.ResolutionID,
		Round:        1,
		SessionID:    "session-1",
		Passed:       false,
	})
	if !errors.Is(err, domainerrors.ErrResolutionSettled) {
		t.Fatalf("expected settled rejection for second round-1 outcome, got %v", err)
	}

	history, err := module.Queries.History(context.Background(), resolution.ResolutionID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(history) != 1 || history[0].ForWeight != 5 || !history[0].Passed {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestRecordOutcomeRejectedResolutionStaysSettled(t *testing.T) {
	module := resolutionregistry.NewInMemoryModule(nil)
	resolution, err := module.Registry.Propose(context.Background(), proposeCmd("adopt budget"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	rejected, err := module.Registry.RecordOutcome(context.Background(), commands.RecordOutcomeCommand{
		ResolutionID:  resolution.ResolutionID,
		Round:         1,
		SessionID:     "session-1",
		ForWeight:     1,
		AgainstWeight: 4,
		Passed:        false,
	})
	if err != nil {
		t.Fatalf("record outcome failed: %v", err)
	}
	if rejected.Status != entities.ResolutionStatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}

	if _, err := module.Registry.Withdraw(context.Background(), resolution.ResolutionID, "member-a"); !errors.Is(err, domainerrors.ErrResolutionSettled) {
		t.Fatalf("expected settled rejection on withdraw, got %v", err)
	}
}

func TestTabledResolutionStaysOpen(t *testing.T) {
	module := resolutionregistry.NewInMemoryModule(nil)
	resolution, err := module.Registry.Propose(context.Background(), proposeCmd("defer me"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	tabled, err := module.Registry.Table(context.Background(), resolution.ResolutionID, "chair-1")
	if err != nil {
		t.Fatalf("table failed: %v", err)
	}
	if tabled.Status != entities.ResolutionStatusTabled {
		t.Fatalf("expected tabled, got %s", tabled.Status)
	}

	// A tabled resolution can still be decided in a later round.
	passed, err := module.Registry.RecordOutcome(context.Background(), commands.RecordOutcomeCommand{
		ResolutionID: resolution.ResolutionID,
		Round:        2,
		SessionID:    "session-2",
		ForWeight:    3,
		Passed:       true,
	})
	if err != nil {
		t.Fatalf("record outcome on tabled resolution failed: %v", err)
	}
	if passed.Status != entities.ResolutionStatusPassed {
		t.Fatalf("expected passed status after tabling, got %s", passed.Status)
	}
}

func TestSupersedeRules(t *testing.T) {
	module := resolutionregistry.NewInMemoryModule(nil)
	old, err := module.Registry.Propose(context.Background(), proposeCmd("old policy"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}
	replacement, err := module.Registry.Propose(context.Background(), proposeCmd("new policy"))
	if err != nil {
		t.Fatalf("propose failed: %v", err)
	}

	if _, err := module.Registry.Supersede(context.Background(), old.ResolutionID, old.ResolutionID); !errors.Is(err, domainerrors.ErrSelfSupersedeForbidden) {
		t.Fatalf("expected self-supersede rejection, got %v", err)
	}
	if _, err := module.Registry.Supersede(context.Background(), old.ResolutionID, "missing"); !errors.Is(err, domainerrors.ErrResolutionNotFound) {
		t.Fatalf("expected missing replacement rejection, got %v", err)
	}

	amended, err := module.Registry.Supersede(context.Background(), old.ResolutionID, replacement.ResolutionID)
	if err != nil {
		t.Fatalf("supersede failed: %v", err)
	}
	if amended.Status != entities.ResolutionStatusAmended || amended.SupersededBy != replacement.ResolutionID {
		t.Fatalf("unexpected amended resolution %+v", amended)
	}

	if _, err := module.Registry.RecordOutcome(context.Background(), commands.RecordOutcomeCommand{
		ResolutionID: old.ResolutionID,
		Round:        1,
		SessionID:    "session-1",
		Passed:       true,
	}); !errors.Is(err, domainerrors.ErrResolutionSettled) {
		t.Fatalf("expected settled rejection after supersede, got %v", err)
	}
}

func TestListByMeetingOrdersByCreation(t *testing.T) {
	module := resolutionregistry.NewInMemoryModule(nil)
	for _, title := range []string{"first", "second", "third"} {
		if _, err := module.Registry.Propose(context.Background(), proposeCmd(title)); err != nil {
			t.Fatalf("propose %s failed: %v", title, err)
		}
	}

	listed, err := module.Queries.ListByMeeting(context.Background(), "meeting-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 resolutions, got %d", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i].CreatedAt.Before(listed[i-1].CreatedAt) {
			t.Fatalf("resolutions out of creation order at %d", i)
		}
	}
}
