package http

import "time"

type ProposeResolutionRequest struct {
	MeetingID  string `json:"meeting_id"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Category   string `json:"category,omitempty"`
	ProposedBy string `json:"proposed_by"`
	SecondedBy string `json:"seconded_by"`
}

type WithdrawResolutionRequest struct {
	RequestedBy string `json:"requested_by"`
}

type TableResolutionRequest struct {
	RequestedBy string `json:"requested_by"`
}

type SupersedeResolutionRequest struct {
	SupersededByID string `json:"superseded_by_id"`
}

type ResolutionResponse struct {
	ResolutionID string `json:"resolution_id"`
	MeetingID    string `json:"meeting_id"`
	Title        string `json:"title"`
	Text         string `json:"text,omitempty"`
	Category     string `json:"category,omitempty"`
	ProposedBy   string `json:"proposed_by"`
	SecondedBy   string `json:"seconded_by"`
	Status       string `json:"status"`
	SupersededBy string `json:"superseded_by,omitempty"`
}

type RoundOutcomeResponse struct {
	Round         int       `json:"round"`
	SessionID     string    `json:"session_id"`
	ForWeight     float64   `json:"for_weight"`
	AgainstWeight float64   `json:"against_weight"`
	AbstainWeight float64   `json:"abstain_weight"`
	Passed        bool      `json:"passed"`
	RecordedAt    time.Time `json:"recorded_at"`
}

type ResolutionDetailResponse struct {
	Resolution ResolutionResponse     `json:"resolution"`
	Outcomes   []RoundOutcomeResponse `json:"outcomes"`
}

type ResolutionListResponse struct {
	MeetingID   string               `json:"meeting_id"`
	Resolutions []ResolutionResponse `json:"resolutions"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
