package entities

import "time"

type ResolutionStatus string

const (
	ResolutionStatusProposed  ResolutionStatus = "proposed"
	ResolutionStatusPassed    ResolutionStatus = "passed"
	ResolutionStatusRejected  ResolutionStatus = "rejected"
	ResolutionStatusWithdrawn ResolutionStatus = "withdrawn"
	ResolutionStatusTabled    ResolutionStatus = "tabled"
	// Amended marks a resolution replaced by a successor via supersession.
	ResolutionStatusAmended ResolutionStatus = "amended"
)

// Settled statuses accept no further outcome, withdrawal, or tabling.
func (s ResolutionStatus) Settled() bool {
	switch s {
	case ResolutionStatusPassed, ResolutionStatusRejected,
		ResolutionStatusWithdrawn, ResolutionStatusAmended:
		return true
	}
	return false
}

type Resolution struct {
	ResolutionID string
	MeetingID    string
	Title        string
	Text         string
	Category     string
	ProposedBy   string
	SecondedBy   string
	Status       ResolutionStatus
	SupersededBy string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RoundOutcome is the immutable record of one voting round on a resolution.
// At most one outcome exists per (resolution, round).
type RoundOutcome struct {
	ResolutionID  string
	Round         int
	SessionID     string
	ForWeight     float64
	AgainstWeight float64
	AbstainWeight float64
	Passed        bool
	RecordedAt    time.Time
}
