package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockClient provides deterministic local completions when no real provider
// is configured. Tests script it through Reply.
type MockClient struct {
	mu sync.Mutex

	// Reply overrides the default echo behavior when set.
	Reply func(prompt string) (string, error)

	calls []string
}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Complete(ctx context.Context, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	c.mu.Lock()
	c.calls = append(c.calls, prompt)
	reply := c.Reply
	c.mu.Unlock()

	if reply != nil {
		return reply(prompt)
	}

	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		last = "I am listening."
	}
	return fmt.Sprintf("I heard you: %s", last), nil
}

// Calls returns a copy of every prompt this client has seen.
func (c *MockClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}
