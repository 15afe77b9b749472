// Package agent produces the assistant's reply for one chat message,
// personalized by the stored user profile.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anvh/mentora/internal/llm"
	"github.com/anvh/mentora/internal/profile"
)

const unknownField = "unknown"

// Agent wraps the language model with the profile-prefixed system context.
type Agent struct {
	llm llm.Client
}

func New(client llm.Client) *Agent {
	return &Agent{llm: client}
}

// Reply generates the assistant's answer for one user message. A nil profile
// means no information has been extracted yet; the prefix then carries
// unknown placeholders, matching the prompt contract the extractor expects.
func (a *Agent) Reply(ctx context.Context, prof *profile.Profile, message string) (string, error) {
	prompt := fmt.Sprintf("%s\nUser: %s", profilePrefix(prof), message)
	reply, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("agent reply: %w", err)
	}
	return reply, nil
}

func profilePrefix(prof *profile.Profile) string {
	name, style, topics := unknownField, unknownField, unknownField
	if prof != nil {
		if prof.Name != "" {
			name = prof.Name
		}
		if prof.Style != "" {
			style = prof.Style
		}
		if len(prof.Topics) > 0 {
			topics = strings.Join(prof.Topics, ", ")
		}
		// Narrative deployments carry the whole profile as one description.
		if prof.Description != "" {
			return fmt.Sprintf("User Profile -> %s\nUse this profile to personalize the reply; do not ask the user for it again.", prof.Description)
		}
	}
	return fmt.Sprintf(
		"User Profile -> Name: %s; ChatStyle: %s; Topics: %s.\nUse this profile to personalize the reply; do not ask the user for it again.",
		name, style, topics,
	)
}
