package entities

import "time"

type GrantStatus string

const (
	GrantStatusActive   GrantStatus = "active"
	GrantStatusRevoked  GrantStatus = "revoked"
	GrantStatusExpired  GrantStatus = "expired"
	GrantStatusExecuted GrantStatus = "executed"
)

// MaxChainDepth bounds sub-delegation. A direct grant has depth 1.
const MaxChainDepth = 5

// RevocationReasonSuperseded marks grants auto-revoked by a newer grant from
// the same grantor.
const RevocationReasonSuperseded = "superseded"

type ProxyGrant struct {
	GrantID          string
	MeetingID        string
	GrantorID        string
	HolderID         string
	Scope            string
	VotingWeight     float64
	MaxVotesAllowed  int
	VotesCast        int
	EffectiveFrom    time.Time
	EffectiveUntil   *time.Time
	Status           GrantStatus
	RevokedBy        string
	RevocationReason string
	CanSubDelegate   bool
	ParentGrantID    string
	ChainDepth       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActiveAt reports whether the grant conveys authority at the given instant.
// Status gates a grant even inside its window; an expired window gates an
// active grant that the sweep has not yet visited.
func (g ProxyGrant) ActiveAt(at time.Time) bool {
	if g.Status != GrantStatusActive {
		return false
	}
	if !g.EffectiveFrom.IsZero() && at.Before(g.EffectiveFrom) {
		return false
	}
	if g.EffectiveUntil != nil && !at.Before(g.EffectiveUntil.UTC()) {
		return false
	}
	return true
}

// Exhausted reports whether a resolution-scoped vote budget is used up.
func (g ProxyGrant) Exhausted() bool {
	return g.MaxVotesAllowed > 0 && g.VotesCast >= g.MaxVotesAllowed
}

// HeldGrant is a resolved delegation endpoint: the holder may cast the
// grantor's weight as part of their own single ballot.
type HeldGrant struct {
	GrantID   string
	GrantorID string
	Weight    float64
}
