package entities

import "time"

// Capability flags carried by a meeting role.
const (
	CapabilityVote    = "vote"
	CapabilityPreside = "preside"
	CapabilitySecond  = "second"
)

type MeetingRole struct {
	MeetingID    string
	UserID       string
	RoleTag      string
	VotingWeight float64
	Capabilities []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r MeetingRole) HasCapability(capability string) bool {
	for _, item := range r.Capabilities {
		if item == capability {
			return true
		}
	}
	return false
}

// EligibleVoter is the snapshot row handed to a voting session at open time.
type EligibleVoter struct {
	UserID string
	Weight float64
}
