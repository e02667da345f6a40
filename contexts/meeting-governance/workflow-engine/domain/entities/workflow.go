package entities

import (
	"strings"
	"time"
)

type InstanceStatus string

const (
	InstanceStatusNotStarted InstanceStatus = "not_started"
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusWaiting    InstanceStatus = "waiting"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusFailed     InstanceStatus = "failed"
	InstanceStatusCancelled  InstanceStatus = "cancelled"
)

// Stage tags of the default board procedure. Alternate procedures (AGM,
// emergency, committee) supply their own sequence at meeting open.
const (
	StagePreMeeting      = "pre_meeting"
	StageOpening         = "opening"
	StageRollCall        = "roll_call"
	StageQuorumCheck     = "quorum_check"
	StageAgendaApproval  = "agenda_approval"
	StageRegularBusiness = "regular_business"
	StageVotingSession   = "voting_session"
	StageNewBusiness     = "new_business"
	StageClosing         = "closing"
	StagePostMeeting     = "post_meeting"
)

// DefaultStageSequence returns the standard board meeting procedure. Callers
// get a fresh slice each time so stored sequences cannot alias.
func DefaultStageSequence() []string {
	return []string{
		StagePreMeeting,
		StageOpening,
		StageRollCall,
		StageQuorumCheck,
		StageAgendaApproval,
		StageRegularBusiness,
		StageVotingSession,
		StageNewBusiness,
		StageClosing,
		StagePostMeeting,
	}
}

// IsVotingStage reports whether a stage tag permits opening voting sessions.
// Custom sequences mark their voting stages by tag convention.
func IsVotingStage(tag string) bool {
	return strings.Contains(strings.ToLower(strings.TrimSpace(tag)), "voting")
}

type WorkflowInstance struct {
	InstanceID            string
	MeetingID             string
	StageSequence         []string
	CurrentStageIndex     int
	Status                InstanceStatus
	QuorumRequired        int
	QuorumAchieved        bool
	QuorumRecorded        bool
	ActiveVotingSessionID string
	ControllerID          string
	AutoProgression       bool
	ErrorState            bool
	ErrorMessage          string
	RecoveryAttempts      int
	Version               int64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (w WorkflowInstance) CurrentStage() string {
	if w.CurrentStageIndex < 0 || w.CurrentStageIndex >= len(w.StageSequence) {
		return ""
	}
	return w.StageSequence[w.CurrentStageIndex]
}

func (w WorkflowInstance) AtFinalStage() bool {
	return w.CurrentStageIndex == len(w.StageSequence)-1
}

func (w WorkflowInstance) Terminal() bool {
	return w.Status == InstanceStatusCompleted || w.Status == InstanceStatusCancelled
}

// StageTransition is the immutable audit record of one stage change.
type StageTransition struct {
	TransitionID  string
	InstanceID    string
	FromStage     string
	ToStage       string
	TriggeredBy   string
	ConditionsMet bool
	Note          string
	OccurredAt    time.Time
}
