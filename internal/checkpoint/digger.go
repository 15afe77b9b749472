package checkpoint

import (
	"context"
	"fmt"

	"github.com/anvh/mentora/internal/observability"
)

// Digger scans the checkpoint store and decodes raw records into an ordered
// sequence of plain conversational turns. Decode failures are isolated per
// record and per role: a corrupt user batch never drops the agent batch from
// the same record, and a fully corrupt record contributes nothing.
type Digger struct {
	store   Store
	codec   PayloadCodec
	metrics *observability.Metrics
}

func NewDigger(store Store, metrics *observability.Metrics) *Digger {
	return &Digger{store: store, codec: JSONCodec{}, metrics: metrics}
}

// Decode returns the decoded turns for one thread ("" means all threads) in
// checkpoint sequence order. It is a pure read: the store is never mutated.
func (d *Digger) Decode(ctx context.Context, threadID string) ([]Turn, error) {
	recs, err := d.store.Find(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("scan checkpoints: %w", err)
	}

	var turns []Turn
	for _, rec := range recs {
		if data, ok := rec.Writes[StepStart]; ok {
			text, err := d.codec.DecodeUser(data)
			if err != nil {
				d.countFailure(RoleUser)
			} else if text != "" {
				turns = append(turns, Turn{Role: RoleUser, Text: text, SequenceIndex: len(turns)})
			}
		}
		if data, ok := rec.Writes[StepAgent]; ok {
			text, err := d.codec.DecodeAgent(data)
			if err != nil {
				d.countFailure(RoleAssistant)
			} else if text != "" {
				turns = append(turns, Turn{Role: RoleAssistant, Text: text, SequenceIndex: len(turns)})
			}
		}
	}
	return turns, nil
}

func (d *Digger) countFailure(role Role) {
	if d.metrics != nil {
		d.metrics.DecodeFailures.WithLabelValues(string(role)).Inc()
	}
}
