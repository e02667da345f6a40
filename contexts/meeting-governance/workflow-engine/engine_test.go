package workflowengine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	workflowengine "boardroom/contexts/meeting-governance/workflow-engine"
	"boardroom/contexts/meeting-governance/workflow-engine/application/commands"
	"boardroom/contexts/meeting-governance/workflow-engine/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/workflow-engine/domain/errors"
)

func TestOpenMeetingDefaultSequenceAndReplay(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)

	first, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-1",
		QuorumRequired: 3,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}
	if len(first.StageSequence) != 10 {
		t.Fatalf("expected default stage sequence, got %d stages", len(first.StageSequence))
	}
	if first.CurrentStage() != entities.StagePreMeeting {
		t.Fatalf("expected pre_meeting start, got %s", first.CurrentStage())
	}
	if first.Status != entities.InstanceStatusInProgress {
		t.Fatalf("expected in_progress, got %s", first.Status)
	}

	second, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-1",
		QuorumRequired: 5,
		ControllerID:   "chair-2",
	})
	if err != nil {
		t.Fatalf("replay open failed: %v", err)
	}
	if second.InstanceID != first.InstanceID {
		t.Fatalf("expected same instance on replay, got %s and %s", first.InstanceID, second.InstanceID)
	}
}

func TestAdvanceBlockedAtQuorumCheck(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-2",
		QuorumRequired: 3,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	// pre_meeting -> opening -> roll_call -> quorum_check
	for i := 0; i < 3; i++ {
		if _, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
			InstanceID:         instance.InstanceID,
			RequestedBy:        "chair-1",
			ExpectedStageIndex: -1,
		}); err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
	}
	current, err := module.Instances.GetInstance(context.Background(), instance.InstanceID)
	if err != nil {
		t.Fatalf("get instance failed: %v", err)
	}
	if current.CurrentStage() != entities.StageQuorumCheck {
		t.Fatalf("expected quorum_check, got %s", current.CurrentStage())
	}

	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrQuorumNotMet) {
		t.Fatalf("expected quorum gate, got %v", err)
	}

	if _, err := module.Engine.RecordQuorum(context.Background(), commands.RecordQuorumCommand{
		InstanceID:      instance.InstanceID,
		AttendanceCount: 2,
		RecordedBy:      "secretary-1",
	}); err != nil {
		t.Fatalf("record quorum failed: %v", err)
	}
	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrQuorumNotMet) {
		t.Fatalf("expected quorum gate after short attendance, got %v", err)
	}

	if _, err := module.Engine.RecordQuorum(context.Background(), commands.RecordQuorumCommand{
		InstanceID:      instance.InstanceID,
		AttendanceCount: 4,
		RecordedBy:      "secretary-1",
	}); err != nil {
		t.Fatalf("record quorum failed: %v", err)
	}
	transition, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if err != nil {
		t.Fatalf("advance past quorum_check failed: %v", err)
	}
	if transition.ToStage != entities.StageAgendaApproval {
		t.Fatalf("expected agenda_approval, got %s", transition.ToStage)
	}

	transitions, err := module.Instances.ListTransitions(context.Background(), instance.InstanceID)
	if err != nil {
		t.Fatalf("list transitions failed: %v", err)
	}
	if len(transitions) != 5 {
		t.Fatalf("expected 5 transitions, got %d", len(transitions))
	}
	for i := 1; i < len(transitions); i++ {
		if transitions[i].OccurredAt.Before(transitions[i-1].OccurredAt) {
			t.Fatalf("transitions out of order at %d", i)
		}
	}
}

func TestAdvanceRequiresController(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-3",
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "member-2",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrNotController) {
		t.Fatalf("expected controller check, got %v", err)
	}
}

func TestEnterVotingStageRequiresRecordedQuorum(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-4",
		StageSequence:  []string{entities.StageOpening, entities.StageVotingSession, entities.StageClosing},
		QuorumRequired: 2,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrQuorumNotRecorded) {
		t.Fatalf("expected quorum-not-recorded, got %v", err)
	}

	if _, err := module.Engine.RecordQuorum(context.Background(), commands.RecordQuorumCommand{
		InstanceID:      instance.InstanceID,
		AttendanceCount: 2,
		RecordedBy:      "secretary-1",
	}); err != nil {
		t.Fatalf("record quorum failed: %v", err)
	}
	transition, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if err != nil {
		t.Fatalf("advance into voting failed: %v", err)
	}
	if transition.ToStage != entities.StageVotingSession {
		t.Fatalf("expected voting_session, got %s", transition.ToStage)
	}
}

func TestConcurrentAdvanceSingleWinner(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-5",
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
				InstanceID:         instance.InstanceID,
				RequestedBy:        "chair-1",
				ExpectedStageIndex: 0,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domainerrors.ErrStaleInstance):
			losses++
		default:
			t.Fatalf("unexpected advance error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one stale loser, got %d/%d", wins, losses)
	}

	current, err := module.Instances.GetInstance(context.Background(), instance.InstanceID)
	if err != nil {
		t.Fatalf("get instance failed: %v", err)
	}
	if current.CurrentStageIndex != 1 {
		t.Fatalf("expected single stage advance, got index %d", current.CurrentStageIndex)
	}
}

func TestFailRecoverOnce(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-6",
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	failed, err := module.Engine.Fail(context.Background(), commands.FailCommand{
		InstanceID:  instance.InstanceID,
		Reason:      "projector on fire",
		RequestedBy: "chair-1",
	})
	if err != nil {
		t.Fatalf("fail failed: %v", err)
	}
	if failed.Status != entities.InstanceStatusFailed || !failed.ErrorState {
		t.Fatalf("expected failed state, got %s", failed.Status)
	}
	if failed.CurrentStage() != entities.StagePreMeeting {
		t.Fatalf("expected stage cursor kept, got %s", failed.CurrentStage())
	}

	// Failing an already failed instance is a no-op.
	if _, err := module.Engine.Fail(context.Background(), commands.FailCommand{
		InstanceID:  instance.InstanceID,
		Reason:      "again",
		RequestedBy: "chair-1",
	}); err != nil {
		t.Fatalf("repeat fail should be idempotent: %v", err)
	}

	recovered, err := module.Engine.Recover(context.Background(), instance.InstanceID, "chair-1")
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if recovered.Status != entities.InstanceStatusInProgress || recovered.RecoveryAttempts != 1 {
		t.Fatalf("expected recovered instance, got %s attempts=%d", recovered.Status, recovered.RecoveryAttempts)
	}

	if _, err := module.Engine.Fail(context.Background(), commands.FailCommand{
		InstanceID:  instance.InstanceID,
		Reason:      "second failure",
		RequestedBy: "chair-1",
	}); err != nil {
		t.Fatalf("second fail failed: %v", err)
	}
	_, err = module.Engine.Recover(context.Background(), instance.InstanceID, "chair-1")
	if !errors.Is(err, domainerrors.ErrRecoveryExhausted) {
		t.Fatalf("expected recovery exhausted, got %v", err)
	}
}

func TestBeginVotingLocksStage(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-7",
		StageSequence:  []string{entities.StageOpening, entities.StageVotingSession, entities.StageClosing},
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	if err := module.Engine.BeginVoting(context.Background(), instance.InstanceID, "session-1"); !errors.Is(err, domainerrors.ErrInvalidStage) {
		t.Fatalf("expected invalid stage outside voting, got %v", err)
	}

	if _, err := module.Engine.RecordQuorum(context.Background(), commands.RecordQuorumCommand{
		InstanceID:      instance.InstanceID,
		AttendanceCount: 2,
		RecordedBy:      "secretary-1",
	}); err != nil {
		t.Fatalf("record quorum failed: %v", err)
	}
	if _, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	}); err != nil {
		t.Fatalf("advance into voting failed: %v", err)
	}

	if err := module.Engine.BeginVoting(context.Background(), instance.InstanceID, "session-1"); err != nil {
		t.Fatalf("begin voting failed: %v", err)
	}
	locked, err := module.Instances.GetInstance(context.Background(), instance.InstanceID)
	if err != nil {
		t.Fatalf("get instance failed: %v", err)
	}
	if locked.Status != entities.InstanceStatusWaiting || locked.ActiveVotingSessionID != "session-1" {
		t.Fatalf("expected waiting with attached session, got %s/%s", locked.Status, locked.ActiveVotingSessionID)
	}

	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrStageLocked) {
		t.Fatalf("expected stage lock during voting, got %v", err)
	}

	if err := module.Engine.BeginVoting(context.Background(), instance.InstanceID, "session-1"); err != nil {
		t.Fatalf("reattaching same session should be a no-op: %v", err)
	}
	if err := module.Engine.BeginVoting(context.Background(), instance.InstanceID, "session-2"); !errors.Is(err, domainerrors.ErrStageLocked) {
		t.Fatalf("expected lock against second session, got %v", err)
	}
	if err := module.Engine.EndVoting(context.Background(), instance.InstanceID, "session-2"); !errors.Is(err, domainerrors.ErrSessionMismatch) {
		t.Fatalf("expected session mismatch, got %v", err)
	}

	if err := module.Engine.EndVoting(context.Background(), instance.InstanceID, "session-1"); err != nil {
		t.Fatalf("end voting failed: %v", err)
	}
	if err := module.Engine.EndVoting(context.Background(), instance.InstanceID, "session-1"); err != nil {
		t.Fatalf("repeated end voting should be a no-op: %v", err)
	}
	unlocked, err := module.Instances.GetInstance(context.Background(), instance.InstanceID)
	if err != nil {
		t.Fatalf("get instance failed: %v", err)
	}
	if unlocked.Status != entities.InstanceStatusInProgress || unlocked.ActiveVotingSessionID != "" {
		t.Fatalf("expected unlocked instance, got %s/%s", unlocked.Status, unlocked.ActiveVotingSessionID)
	}
}

// An attached session blocks leaving voting territory, not movement inside
// it. A runoff stage can follow the first ballot round while the session
// still runs; only the step out to a non-voting stage waits for it to end.
func TestAdvanceDuringVotingOnlyWithinVotingStages(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-9",
		StageSequence:  []string{entities.StageOpening, entities.StageVotingSession, "voting_runoff", entities.StageClosing},
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}
	if _, err := module.Engine.RecordQuorum(context.Background(), commands.RecordQuorumCommand{
		InstanceID:      instance.InstanceID,
		AttendanceCount: 2,
		RecordedBy:      "secretary-1",
	}); err != nil {
		t.Fatalf("record quorum failed: %v", err)
	}
	if _, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	}); err != nil {
		t.Fatalf("advance into voting failed: %v", err)
	}
	if err := module.Engine.BeginVoting(context.Background(), instance.InstanceID, "session-1"); err != nil {
		t.Fatalf("begin voting failed: %v", err)
	}

	transition, err := module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if err != nil {
		t.Fatalf("advance to runoff during voting failed: %v", err)
	}
	if transition.ToStage != "voting_runoff" {
		t.Fatalf("expected voting_runoff, got %s", transition.ToStage)
	}

	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrStageLocked) {
		t.Fatalf("expected lock leaving voting territory, got %v", err)
	}

	if err := module.Engine.EndVoting(context.Background(), instance.InstanceID, "session-1"); err != nil {
		t.Fatalf("end voting failed: %v", err)
	}
	transition, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if err != nil {
		t.Fatalf("advance after end voting failed: %v", err)
	}
	if transition.ToStage != entities.StageClosing {
		t.Fatalf("expected closing, got %s", transition.ToStage)
	}
}

func TestCancelIsFinal(t *testing.T) {
	module := workflowengine.NewInMemoryModule(nil)
	instance, err := module.Engine.OpenMeeting(context.Background(), commands.OpenMeetingCommand{
		MeetingID:      "meeting-8",
		QuorumRequired: 1,
		ControllerID:   "chair-1",
	})
	if err != nil {
		t.Fatalf("open meeting failed: %v", err)
	}

	cancelled, err := module.Engine.Cancel(context.Background(), instance.InstanceID, "chair-1")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != entities.InstanceStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	_, err = module.Engine.Advance(context.Background(), commands.AdvanceCommand{
		InstanceID:         instance.InstanceID,
		RequestedBy:        "chair-1",
		ExpectedStageIndex: -1,
	})
	if !errors.Is(err, domainerrors.ErrTerminalState) {
		t.Fatalf("expected terminal state, got %v", err)
	}
	if _, err := module.Engine.Recover(context.Background(), instance.InstanceID, "chair-1"); !errors.Is(err, domainerrors.ErrNotFailed) {
		t.Fatalf("expected not-failed on cancelled recover, got %v", err)
	}
}
