package entities

import "time"

type SessionStatus string

const (
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusCounting  SessionStatus = "counting"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

type AnonymityLevel string

// Anonymity governs what ballot detail leaves the module. Public sessions
// expose voter and choice, internal sessions expose who voted but not how,
// secret sessions expose only tallies.
const (
	AnonymityPublic   AnonymityLevel = "public"
	AnonymityInternal AnonymityLevel = "internal"
	AnonymitySecret   AnonymityLevel = "secret"
)

func ValidAnonymity(level AnonymityLevel) bool {
	switch level {
	case AnonymityPublic, AnonymityInternal, AnonymitySecret:
		return true
	}
	return false
}

type BallotChoice string

// An absent ballot records the roll call without participating: it carries
// no tally weight and does not count toward the quorum.
const (
	ChoiceFor     BallotChoice = "for"
	ChoiceAgainst BallotChoice = "against"
	ChoiceAbstain BallotChoice = "abstain"
	ChoiceAbsent  BallotChoice = "absent"
)

func ValidChoice(choice BallotChoice) bool {
	switch choice {
	case ChoiceFor, ChoiceAgainst, ChoiceAbstain, ChoiceAbsent:
		return true
	}
	return false
}

type VotingSession struct {
	SessionID          string
	MeetingID          string
	WorkflowInstanceID string
	Title              string
	Status             SessionStatus
	Anonymity          AnonymityLevel
	QuorumRequired     int
	// EligibleVoterCount is snapshotted from the role directory at open
	// time; later membership changes do not alter an open session's
	// electorate, and no item may ever collect more ballots than this.
	EligibleVoterCount   int
	PassThresholdPercent float64
	Round                int
	Deadline             *time.Time
	DeadlineNotified     bool
	OpenedBy             string
	OpenedAt             time.Time
	ClosedAt             *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (s VotingSession) Terminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}

// PastDeadline reports whether ballot acceptance has closed. A nil deadline
// keeps the session open until explicitly closed.
func (s VotingSession) PastDeadline(at time.Time) bool {
	return s.Deadline != nil && at.After(*s.Deadline)
}

// SessionItem is one question put to the vote. Tally fields stay zero until
// the session is counted.
type SessionItem struct {
	ItemID        string
	SessionID     string
	ResolutionID  string
	Title         string
	Ordinal       int
	ForWeight     float64
	AgainstWeight float64
	AbstainWeight float64
	VoterCount    int
	QuorumMet     bool
	Passed        bool
	Decided       bool
}

// Passes applies the threshold to the tally. Abstentions never count toward
// or against; a round with no for or against weight cannot pass.
func (i SessionItem) Passes(quorumRequired int, thresholdPercent float64) bool {
	if i.VoterCount < quorumRequired {
		return false
	}
	decisive := i.ForWeight + i.AgainstWeight
	if decisive <= 0 {
		return false
	}
	return i.ForWeight/decisive*100 >= thresholdPercent
}

// Ballot is one voter's recorded position on one item. A holder voting with
// proxies casts a single ballot whose weight aggregates every represented
// grantor; ProxyGrantIDs keeps the audit trail of which grants contributed.
type Ballot struct {
	BallotID    string
	SessionID   string
	ItemID      string
	VoterID     string
	Choice      BallotChoice
	OwnWeight   float64
	ProxyWeight float64
	Round       int
	// IdempotencyKey is the caller's key from the original cast, kept on
	// the row so a retry that lost its idempotency record can still be
	// recognized as a replay instead of a duplicate.
	IdempotencyKey string
	ProxyGrantIDs  []string
	CastAt         time.Time
}

func (b Ballot) TotalWeight() float64 {
	return b.OwnWeight + b.ProxyWeight
}
