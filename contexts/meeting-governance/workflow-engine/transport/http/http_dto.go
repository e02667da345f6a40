package http

import "time"

type OpenMeetingRequest struct {
	MeetingID       string   `json:"meeting_id"`
	StageSequence   []string `json:"stage_sequence,omitempty"`
	QuorumRequired  int      `json:"quorum_required"`
	ControllerID    string   `json:"controller_id"`
	AutoProgression bool     `json:"auto_progression"`
}

type AdvanceRequest struct {
	RequestedBy        string `json:"requested_by"`
	ExpectedStageIndex *int   `json:"expected_stage_index,omitempty"`
}

type RecordQuorumRequest struct {
	AttendanceCount int    `json:"attendance_count"`
	RecordedBy      string `json:"recorded_by"`
}

type FailRequest struct {
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
}

type RecoverRequest struct {
	RequestedBy string `json:"requested_by"`
}

type InstanceResponse struct {
	InstanceID            string   `json:"instance_id"`
	MeetingID             string   `json:"meeting_id"`
	StageSequence         []string `json:"stage_sequence"`
	CurrentStage          string   `json:"current_stage"`
	CurrentStageIndex     int      `json:"current_stage_index"`
	Status                string   `json:"status"`
	QuorumRequired        int      `json:"quorum_required"`
	QuorumAchieved        bool     `json:"quorum_achieved"`
	ActiveVotingSessionID string   `json:"active_voting_session_id,omitempty"`
	ControllerID          string   `json:"controller_id"`
	RecoveryAttempts      int      `json:"recovery_attempts"`
}

type TransitionResponse struct {
	FromStage     string    `json:"from_stage"`
	ToStage       string    `json:"to_stage"`
	TriggeredBy   string    `json:"triggered_by"`
	ConditionsMet bool      `json:"conditions_met"`
	Note          string    `json:"note,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type TransitionListResponse struct {
	InstanceID  string               `json:"instance_id"`
	Transitions []TransitionResponse `json:"transitions"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
