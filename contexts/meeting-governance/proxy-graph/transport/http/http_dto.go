package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type GrantProxyRequest struct {
	MeetingID       string     `json:"meeting_id"`
	GrantorID       string     `json:"grantor_id"`
	HolderID        string     `json:"holder_id"`
	Scope           string     `json:"scope,omitempty"`
	VotingWeight    float64    `json:"voting_weight,omitempty"`
	MaxVotesAllowed int        `json:"max_votes_allowed,omitempty"`
	EffectiveFrom   *time.Time `json:"effective_from,omitempty"`
	EffectiveUntil  *time.Time `json:"effective_until,omitempty"`
	CanSubDelegate  bool       `json:"can_sub_delegate,omitempty"`
	ParentGrantID   string     `json:"parent_grant_id,omitempty"`
}

type GrantResponse struct {
	GrantID        string     `json:"grant_id"`
	MeetingID      string     `json:"meeting_id"`
	GrantorID      string     `json:"grantor_id"`
	HolderID       string     `json:"holder_id"`
	Status         string     `json:"status"`
	VotingWeight   float64    `json:"voting_weight"`
	ChainDepth     int        `json:"chain_depth"`
	EffectiveUntil *time.Time `json:"effective_until,omitempty"`
	SupersededID   string     `json:"superseded_grant_id,omitempty"`
	Replayed       bool       `json:"replayed"`
}

type RevokeProxyRequest struct {
	Reason string `json:"reason,omitempty"`
}

type ResolveHolderResponse struct {
	MeetingID       string `json:"meeting_id"`
	GrantorID       string `json:"grantor_id"`
	EffectiveHolder string `json:"effective_holder"`
	ChainLength     int    `json:"chain_length"`
}
