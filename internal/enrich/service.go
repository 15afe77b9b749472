// Package enrich runs the checkpoint-to-profile pipeline after a chat reply
// has already been returned: count the exchange, and on a cadence boundary
// decode the thread's history, extract profile information, and merge it into
// the stored profile. All of it is best-effort: failures are logged and
// counted, never surfaced to the chat caller.
package enrich

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/anvh/mentora/internal/observability"
	"github.com/anvh/mentora/internal/profile"
	"github.com/anvh/mentora/internal/registry"
	"github.com/anvh/mentora/internal/turncount"
)

type Service struct {
	registry  *registry.Registry
	profiles  profile.Store
	extractor *profile.Extractor
	turns     *turncount.Accumulator
	metrics   *observability.Metrics
	timeout   time.Duration

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
	wg        sync.WaitGroup
}

func New(
	reg *registry.Registry,
	profiles profile.Store,
	extractor *profile.Extractor,
	turns *turncount.Accumulator,
	metrics *observability.Metrics,
	timeout time.Duration,
) *Service {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Service{
		registry:  reg,
		profiles:  profiles,
		extractor: extractor,
		turns:     turns,
		metrics:   metrics,
		timeout:   timeout,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// ObserveExchange records one completed exchange and, when the count lands on
// a cadence boundary, launches a detached extraction pass. It returns
// immediately; the reply already sent to the user is never delayed.
func (s *Service) ObserveExchange(userID, threadID string) {
	count := s.turns.RecordTurn(userID, threadID)
	if !s.turns.Boundary(count) {
		return
	}

	log.Printf("enrich: cadence hit for user=%s thread=%s count=%d", userID, threadID, count)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runExtraction(userID, threadID)
	}()
}

func (s *Service) runExtraction(userID, threadID string) {
	s.metrics.ActiveEnrichments.Inc()
	defer s.metrics.ActiveEnrichments.Dec()
	start := time.Now()

	// Detached from the request context: the caller's cancellation must not
	// abort an in-flight pass, only this bounded timeout does.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	unlock := s.lockUser(userID)
	defer unlock()

	outcome := s.extractAndMerge(ctx, userID, threadID)
	s.metrics.ExtractionRuns.WithLabelValues(outcome).Inc()
	s.metrics.ObserveExtractionLatency(time.Since(start))
}

func (s *Service) extractAndMerge(ctx context.Context, userID, threadID string) (outcome string) {
	res, err := s.registry.Get(ctx, userID)
	if err != nil {
		log.Printf("enrich: resources unavailable for user=%s: %v", userID, err)
		return "resource_error"
	}

	turns, err := res.Digger.Decode(ctx, threadID)
	if err != nil {
		log.Printf("enrich: decode failed for user=%s thread=%s: %v", userID, threadID, err)
		return "decode_error"
	}
	if len(turns) == 0 {
		return "empty_window"
	}

	prev, err := s.profiles.FindOne(ctx, userID)
	if err != nil {
		log.Printf("enrich: profile read failed for user=%s: %v", userID, err)
		return "store_error"
	}

	ext, err := s.extractor.Extract(ctx, turns, prev)
	if err != nil {
		if errors.Is(err, profile.ErrNoMatch) {
			log.Printf("enrich: extraction output rejected for user=%s: %v", userID, err)
			return "parse_error"
		}
		log.Printf("enrich: extraction call failed for user=%s: %v", userID, err)
		return "llm_error"
	}

	merged, changed := profile.Merge(userID, prev, ext, time.Now().UTC())
	if !changed {
		return "unchanged"
	}
	if err := s.profiles.Upsert(ctx, merged); err != nil {
		log.Printf("enrich: profile write failed for user=%s: %v", userID, err)
		return "store_error"
	}
	s.metrics.ProfileWrites.Inc()
	return "merged"
}

// lockUser serializes extraction passes per user. The profile document is
// keyed by user_id alone, so cadence boundaries firing on two threads of the
// same user must not interleave their read-merge-write sections: the loser
// would overwrite the winner's merge.
func (s *Service) lockUser(userID string) func() {
	s.mu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Drain waits for in-flight extraction passes, up to the context deadline.
// Abandoning a pass at shutdown is acceptable: the next cadence boundary
// reprocesses the same or newer window.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
