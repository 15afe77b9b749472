package checkpoint

import (
	"context"
	"fmt"

	"github.com/anvh/mentora/internal/policy"
)

// Writer appends completed exchanges to the checkpoint store in the same wire
// shape the agent runtime's own checkpointer produces, so the digger can
// round-trip them.
type Writer struct {
	store     Store
	codec     PayloadCodec
	redactPII bool
}

func NewWriter(store Store, redactPII bool) *Writer {
	return &Writer{store: store, codec: JSONCodec{}, redactPII: redactPII}
}

// AppendExchange persists one user/assistant exchange as a single record with
// both step writes populated.
func (w *Writer) AppendExchange(ctx context.Context, threadID, userText, agentText string) error {
	redacted := false
	if w.redactPII {
		var userChanged, agentChanged bool
		userText, userChanged = policy.RedactPII(userText)
		agentText, agentChanged = policy.RedactPII(agentText)
		redacted = userChanged || agentChanged
	}

	userData, err := w.codec.EncodeUser(userText)
	if err != nil {
		return err
	}
	agentData, err := w.codec.EncodeAgent(agentText)
	if err != nil {
		return err
	}

	rec := Record{
		ThreadID: threadID,
		Redacted: redacted,
		Writes: map[string][]byte{
			StepStart: userData,
			StepAgent: agentData,
		},
	}
	if err := w.store.Append(ctx, rec); err != nil {
		return fmt.Errorf("append checkpoint: %w", err)
	}
	return nil
}
