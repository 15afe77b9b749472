package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore is a process-local checkpoint store for local/dev use and
// tests. Records are kept per thread in append order; Seq is assigned on
// Append.
type InMemoryStore struct {
	mu      sync.RWMutex
	byThrd  map[string][]Record
	nextSeq map[string]int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byThrd:  make(map[string][]Record),
		nextSeq: make(map[string]int64),
	}
}

func (s *InMemoryStore) Find(_ context.Context, threadID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	if threadID != "" {
		out = append(out, s.byThrd[threadID]...)
		return out, nil
	}
	for _, recs := range s.byThrd {
		out = append(out, recs...)
	}
	// Seq numbers repeat across threads; break ties by thread so the
	// all-threads view does not depend on map iteration order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq < out[j].Seq
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out, nil
}

func (s *InMemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	s.nextSeq[rec.ThreadID]++
	rec.Seq = s.nextSeq[rec.ThreadID]
	// Copy the writes map so callers cannot mutate stored payloads.
	writes := make(map[string][]byte, len(rec.Writes))
	for step, data := range rec.Writes {
		buf := make([]byte, len(data))
		copy(buf, data)
		writes[step] = buf
	}
	rec.Writes = writes
	s.byThrd[rec.ThreadID] = append(s.byThrd[rec.ThreadID], rec)
	return nil
}

func (s *InMemoryStore) Close(context.Context) error { return nil }
