package checkpoint

import "context"

// Role identifies who produced a decoded turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Step names inside a record's metadata.writes map. These are imposed by the
// agent runtime's checkpoint format and must match exactly.
const (
	StepStart = "__start__"
	StepAgent = "agent"
)

// Turn is one decoded conversational utterance. Turns are derived from
// checkpoint records and never stored on their own.
type Turn struct {
	Role          Role   `json:"role"`
	Text          string `json:"text"`
	SequenceIndex int    `json:"sequence_index"`
}

// Record is one persisted checkpoint for a thread. Writes maps a logical step
// name to the binary-encoded message batch that step produced. Seq is an
// explicit monotonic sequence so decoding never depends on store retrieval
// order.
type Record struct {
	ID       string
	ThreadID string
	Seq      int64
	Redacted bool
	Writes   map[string][]byte
}

// Store is the narrow read/write interface over the checkpoint persistence
// layer. Find returns records for one thread ("" means all threads) sorted by
// Seq ascending. Append assigns the next Seq for the record's thread.
type Store interface {
	Find(ctx context.Context, threadID string) ([]Record, error)
	Append(ctx context.Context, rec Record) error
	Close(ctx context.Context) error
}
