package ports

import (
	"context"
	"encoding/json"
	"time"

	"boardroom/contexts/meeting-governance/voting-session/domain/entities"
)

type SessionRepository interface {
	CreateSession(ctx context.Context, session entities.VotingSession, items []entities.SessionItem) error
	GetSession(ctx context.Context, sessionID string) (entities.VotingSession, error)
	// UpdateSessionStatus applies the transition only when the stored
	// status still matches expected, so close and cancel cannot race.
	UpdateSessionStatus(ctx context.Context, sessionID string, expected, next entities.SessionStatus, closedAt *time.Time, updatedAt time.Time) error
	ListItems(ctx context.Context, sessionID string) ([]entities.SessionItem, error)
	GetItem(ctx context.Context, itemID string) (entities.SessionItem, error)
	SaveItemTally(ctx context.Context, item entities.SessionItem) error
	// SaveBallot inserts atomically against the (item, voter, round)
	// uniqueness rule and returns ErrDuplicateBallot on a second cast.
	SaveBallot(ctx context.Context, ballot entities.Ballot) error
	ListBallotsByItem(ctx context.Context, itemID string) ([]entities.Ballot, error)
	ListBallotsBySession(ctx context.Context, sessionID string) ([]entities.Ballot, error)
	// ListOpenSessionsPastDeadline returns open sessions whose deadline
	// has passed and that have not yet been flagged by the sweeper.
	ListOpenSessionsPastDeadline(ctx context.Context, at time.Time) ([]entities.VotingSession, error)
	MarkDeadlineNotified(ctx context.Context, sessionID string, at time.Time) error
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	BallotID    string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	PutIdempotency(ctx context.Context, record IdempotencyRecord) error
}

// WorkflowGate attaches and detaches voting sessions on the meeting
// workflow. BeginVoting fails unless the meeting sits in a voting stage
// with achieved quorum and no other session attached.
type WorkflowGate interface {
	BeginVoting(ctx context.Context, instanceID string, sessionID string) error
	EndVoting(ctx context.Context, instanceID string, sessionID string) error
}

type EligibleVoter struct {
	UserID string
	Weight float64
}

// RoleDirectory answers voter eligibility and weight for a meeting.
type RoleDirectory interface {
	ResolveVotingWeight(ctx context.Context, meetingID string, userID string) (float64, bool, error)
	ListEligibleVoters(ctx context.Context, meetingID string) ([]EligibleVoter, error)
}

type HeldGrant struct {
	GrantID   string
	GrantorID string
	Weight    float64
}

// ProxyResolver exposes the delegation graph to ballot casting.
type ProxyResolver interface {
	EffectiveHolder(ctx context.Context, meetingID string, grantorID string, at time.Time) (string, error)
	HeldGrants(ctx context.Context, meetingID string, holderID string, at time.Time) ([]HeldGrant, error)
	MarkVotesCast(ctx context.Context, grantID string) error
}

type OutcomeRecord struct {
	ResolutionID  string
	Round         int
	SessionID     string
	ForWeight     float64
	AgainstWeight float64
	AbstainWeight float64
	Passed        bool
}

// ResolutionRecorder persists the decided outcome of a session item.
type ResolutionRecorder interface {
	RecordOutcome(ctx context.Context, record OutcomeRecord) error
}

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SourceService string          `json:"source_service"`
	OccurredAt    time.Time       `json:"occurred_at"`
	SchemaVersion int             `json:"schema_version"`
	PartitionKey  string          `json:"partition_key"`
	Data          json.RawMessage `json:"data"`
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
