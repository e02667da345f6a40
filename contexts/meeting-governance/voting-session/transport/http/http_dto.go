package http

import "time"

type OpenSessionItemRequest struct {
	ResolutionID string `json:"resolution_id,omitempty"`
	Title        string `json:"title"`
}

type OpenSessionRequest struct {
	MeetingID            string                   `json:"meeting_id"`
	WorkflowInstanceID   string                   `json:"workflow_instance_id"`
	Title                string                   `json:"title"`
	Items                []OpenSessionItemRequest `json:"items"`
	Anonymity            string                   `json:"anonymity,omitempty"`
	QuorumRequired       int                      `json:"quorum_required"`
	PassThresholdPercent float64                  `json:"pass_threshold_percent"`
	Round                int                      `json:"round,omitempty"`
	Deadline             *time.Time               `json:"deadline,omitempty"`
	OpenedBy             string                   `json:"opened_by"`
}

type CastBallotRequest struct {
	ItemID  string `json:"item_id"`
	VoterID string `json:"voter_id"`
	Choice  string `json:"choice"`
}

type CloseSessionRequest struct {
	ClosedBy string `json:"closed_by"`
}

type CancelSessionRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

type SessionItemResponse struct {
	ItemID        string  `json:"item_id"`
	ResolutionID  string  `json:"resolution_id,omitempty"`
	Title         string  `json:"title"`
	Ordinal       int     `json:"ordinal"`
	ForWeight     float64 `json:"for_weight"`
	AgainstWeight float64 `json:"against_weight"`
	AbstainWeight float64 `json:"abstain_weight"`
	VoterCount    int     `json:"voter_count"`
	QuorumMet     bool    `json:"quorum_met"`
	Passed        bool    `json:"passed"`
	Decided       bool    `json:"decided"`
}

type SessionResponse struct {
	SessionID            string                `json:"session_id"`
	MeetingID            string                `json:"meeting_id"`
	WorkflowInstanceID   string                `json:"workflow_instance_id"`
	Title                string                `json:"title,omitempty"`
	Status               string                `json:"status"`
	Anonymity            string                `json:"anonymity"`
	QuorumRequired       int                   `json:"quorum_required"`
	EligibleVoterCount   int                   `json:"eligible_voter_count"`
	PassThresholdPercent float64               `json:"pass_threshold_percent"`
	Round                int                   `json:"round"`
	Deadline             *time.Time            `json:"deadline,omitempty"`
	Items                []SessionItemResponse `json:"items"`
}

type CastBallotResponse struct {
	BallotID    string   `json:"ballot_id"`
	OwnWeight   float64  `json:"own_weight"`
	ProxyWeight float64  `json:"proxy_weight"`
	TotalWeight float64  `json:"total_weight"`
	GrantIDs    []string `json:"grant_ids,omitempty"`
	Replayed    bool     `json:"replayed,omitempty"`
}

type BallotResponse struct {
	BallotID    string  `json:"ballot_id"`
	ItemID      string  `json:"item_id"`
	VoterID     string  `json:"voter_id"`
	Choice      string  `json:"choice,omitempty"`
	TotalWeight float64 `json:"total_weight"`
	Round       int     `json:"round"`
}

type BallotListResponse struct {
	SessionID string           `json:"session_id"`
	Ballots   []BallotResponse `json:"ballots"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
