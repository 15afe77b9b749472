package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anvh/mentora/internal/checkpoint"
	"github.com/anvh/mentora/internal/llm"
	"github.com/anvh/mentora/internal/observability"
	"github.com/anvh/mentora/internal/profile"
	"github.com/anvh/mentora/internal/registry"
	"github.com/anvh/mentora/internal/turncount"
)

// countingStore wraps the in-memory profile store to observe writes.
type countingStore struct {
	profile.Store
	upserts atomic.Int64
}

func (s *countingStore) Upsert(ctx context.Context, p profile.Profile) error {
	s.upserts.Add(1)
	return s.Store.Upsert(ctx, p)
}

type fixture struct {
	svc      *Service
	store    *checkpoint.InMemoryStore
	writer   *checkpoint.Writer
	profiles *countingStore
	llm      *llm.MockClient
}

func newFixture(t *testing.T, mode profile.Mode) *fixture {
	t.Helper()

	store := checkpoint.NewInMemoryStore()
	reg := registry.New(func(_ context.Context, userID string) (*registry.Resources, error) {
		return &registry.Resources{
			Checkpoints: store,
			Digger:      checkpoint.NewDigger(store, nil),
			Writer:      checkpoint.NewWriter(store, false),
		}, nil
	})

	profiles := &countingStore{Store: profile.NewInMemoryStore()}
	mock := llm.NewMockClient()
	metrics := observability.NewMetrics(fmt.Sprintf("test_enrich_%d", time.Now().UnixNano()))
	extractor := profile.NewExtractor(mock, mode, 10)
	svc := New(reg, profiles, extractor, turncount.NewAccumulator(5), metrics, 5*time.Second)

	return &fixture{
		svc:      svc,
		store:    store,
		writer:   checkpoint.NewWriter(store, false),
		profiles: profiles,
		llm:      mock,
	}
}

func (f *fixture) exchange(t *testing.T, userID, threadID, message, reply string) {
	t.Helper()
	if err := f.writer.AppendExchange(context.Background(), threadID, message, reply); err != nil {
		t.Fatalf("AppendExchange() error = %v", err)
	}
	f.svc.ObserveExchange(userID, threadID)
}

func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.svc.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

func TestPipelineExtractsOnFifthExchange(t *testing.T) {
	f := newFixture(t, profile.ModeStructured)
	f.llm.Reply = func(string) (string, error) {
		return "Name: Dung, ChatStyle: casual, Topics: programming, history", nil
	}

	for i := 1; i <= 4; i++ {
		f.exchange(t, "u1", "t1", fmt.Sprintf("message %d", i), fmt.Sprintf("reply %d", i))
	}
	f.drain(t)
	if got := len(f.llm.Calls()); got != 0 {
		t.Fatalf("llm calls before cadence boundary = %d, want 0", got)
	}

	f.exchange(t, "u1", "t1", "message 5", "reply 5")
	f.drain(t)

	prof, err := f.profiles.FindOne(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if prof == nil {
		t.Fatalf("profile missing after 5th exchange")
	}
	if prof.Name != "Dung" || prof.Style != "casual" {
		t.Fatalf("profile = %+v, want extracted scalars", prof)
	}
	if len(prof.Topics) != 2 {
		t.Fatalf("Topics = %v, want [programming history]", prof.Topics)
	}
	if got := f.profiles.upserts.Load(); got != 1 {
		t.Fatalf("upserts = %d, want 1", got)
	}
}

func TestPipelineSkipsRedundantWriteAtNextBoundary(t *testing.T) {
	f := newFixture(t, profile.ModeStructured)
	f.llm.Reply = func(string) (string, error) {
		return "Name: Dung, ChatStyle: casual, Topics: programming, history", nil
	}

	for i := 1; i <= 10; i++ {
		f.exchange(t, "u1", "t1", "same message", "same reply")
		f.drain(t)
	}

	// Extraction ran at 5 and 10; only the first pass changed anything.
	if got := len(f.llm.Calls()); got != 2 {
		t.Fatalf("llm calls = %d, want 2 (exchanges 5 and 10)", got)
	}
	if got := f.profiles.upserts.Load(); got != 1 {
		t.Fatalf("upserts = %d, want 1 (second extraction is idempotent)", got)
	}
}

func TestPipelineLeavesProfileUntouchedOnBadGrammar(t *testing.T) {
	f := newFixture(t, profile.ModeStructured)
	f.llm.Reply = func(string) (string, error) {
		return "I could not figure out a profile, sorry.", nil
	}

	for i := 1; i <= 5; i++ {
		f.exchange(t, "u1", "t1", "message", "reply")
	}
	f.drain(t)

	prof, err := f.profiles.FindOne(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if prof != nil {
		t.Fatalf("profile = %+v, want none after grammar mismatch", prof)
	}
	if got := f.profiles.upserts.Load(); got != 0 {
		t.Fatalf("upserts = %d, want 0", got)
	}
}

func TestPipelineSurvivesLLMFailure(t *testing.T) {
	f := newFixture(t, profile.ModeStructured)
	f.llm.Reply = func(string) (string, error) {
		return "", fmt.Errorf("model timeout")
	}

	for i := 1; i <= 5; i++ {
		f.exchange(t, "u1", "t1", "message", "reply")
	}
	f.drain(t)

	if got := f.profiles.upserts.Load(); got != 0 {
		t.Fatalf("upserts = %d, want 0 after llm failure", got)
	}
}

func TestPipelineNarrativeMode(t *testing.T) {
	f := newFixture(t, profile.ModeNarrative)
	f.llm.Reply = func(prompt string) (string, error) {
		if !strings.Contains(prompt, "User: message 5") {
			return "The user likes history.", nil
		}
		return "The user likes history and asked five questions.", nil
	}

	for i := 1; i <= 5; i++ {
		f.exchange(t, "u1", "t1", fmt.Sprintf("message %d", i), fmt.Sprintf("reply %d", i))
	}
	f.drain(t)

	prof, err := f.profiles.FindOne(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if prof == nil {
		t.Fatalf("profile missing after narrative extraction")
	}
	if prof.Description == "" {
		t.Fatalf("Description empty, want narrative text")
	}
}

func TestPipelineMergesFromConcurrentThreadsAreNotLost(t *testing.T) {
	f := newFixture(t, profile.ModeStructured)
	f.llm.Reply = func(prompt string) (string, error) {
		// Slow completions widen the overlap between the two passes.
		time.Sleep(100 * time.Millisecond)
		if strings.Contains(prompt, "alpha") {
			return "Name: Dung, ChatStyle: casual, Topics: alpha", nil
		}
		return "Name: Dung, ChatStyle: casual, Topics: beta", nil
	}

	// Bring both threads one exchange short of the boundary, then land the
	// fifth exchange on each back to back so both passes run at once. The
	// profile is keyed by user alone; the later merge must see the earlier
	// one's write, not a stale read.
	for i := 1; i <= 4; i++ {
		f.exchange(t, "u1", "t1", "tell me about alpha", "reply")
		f.exchange(t, "u1", "t2", "tell me about beta", "reply")
	}
	f.exchange(t, "u1", "t1", "tell me about alpha", "reply")
	f.exchange(t, "u1", "t2", "tell me about beta", "reply")
	f.drain(t)

	prof, err := f.profiles.FindOne(context.Background(), "u1")
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if prof == nil {
		t.Fatalf("profile missing after both extraction passes")
	}
	topics := make(map[string]bool, len(prof.Topics))
	for _, topic := range prof.Topics {
		topics[topic] = true
	}
	if !topics["alpha"] || !topics["beta"] {
		t.Fatalf("Topics = %v, want the union of both passes", prof.Topics)
	}
	if got := f.profiles.upserts.Load(); got != 2 {
		t.Fatalf("upserts = %d, want 2", got)
	}
}

func TestPipelineThreadsAreIndependent(t *testing.T) {
	f := newFixture(t, profile.ModeStructured)
	f.llm.Reply = func(string) (string, error) {
		return "Name: Dung, ChatStyle: casual, Topics: math", nil
	}

	// Spread 5 exchanges over two threads: neither hits the cadence.
	for i := 1; i <= 3; i++ {
		f.exchange(t, "u1", "t1", "message", "reply")
	}
	for i := 1; i <= 2; i++ {
		f.exchange(t, "u1", "t2", "message", "reply")
	}
	f.drain(t)

	if got := len(f.llm.Calls()); got != 0 {
		t.Fatalf("llm calls = %d, want 0 (no thread reached the cadence)", got)
	}
}
