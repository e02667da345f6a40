package outbox

// Row lifecycle shared by every module's outbox table. Adapters write
// StatusPending inside the same transaction as the state change; the worker
// relays flip rows to StatusPublished after the bus accepts them.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Message is the canonical outbox row shape. Module adapters keep their own
// gorm models but must stay field-compatible with this contract.
type Message struct {
	ID         string
	EventType  string
	Payload    []byte
	Status     string
	RetryCount int
}
