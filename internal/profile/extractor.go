package profile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/anvh/mentora/internal/checkpoint"
	"github.com/anvh/mentora/internal/llm"
)

// Mode selects the profile representation the extractor produces.
type Mode string

const (
	// ModeStructured asks for one line of discrete fields parsed with a
	// strict grammar.
	ModeStructured Mode = "structured"
	// ModeNarrative asks for a free-text description that subsumes the
	// previous one.
	ModeNarrative Mode = "narrative"
)

// ErrNoMatch reports that the model's output did not match the one-line
// extraction grammar. The caller leaves the profile untouched.
var ErrNoMatch = errors.New("extraction output does not match the expected line format")

const unknownSentinel = "unknown"

var structuredLine = regexp.MustCompile(`^Name:\s*(.*?),\s*ChatStyle:\s*(.*?),\s*Topics:\s*(.*)$`)

// Extractor derives profile information from a bounded window of decoded
// turns via one summarization call.
type Extractor struct {
	llm    llm.Client
	mode   Mode
	window int
}

// NewExtractor builds an extractor; window bounds how many trailing turns
// feed a narrative pass (paired into window/2 exchanges).
func NewExtractor(client llm.Client, mode Mode, window int) *Extractor {
	if window <= 0 {
		window = 10
	}
	return &Extractor{llm: client, mode: mode, window: window}
}

func (e *Extractor) Mode() Mode { return e.mode }

// Extract runs one extraction pass over the turn window. The previous profile
// feeds the narrative prompt; structured mode looks only at the most recent
// exchange.
func (e *Extractor) Extract(ctx context.Context, turns []checkpoint.Turn, prev *Profile) (Extraction, error) {
	if len(turns) == 0 {
		return Extraction{}, errors.New("empty turn window")
	}

	switch e.mode {
	case ModeNarrative:
		return e.extractNarrative(ctx, turns, prev)
	default:
		return e.extractStructured(ctx, turns)
	}
}

func (e *Extractor) extractStructured(ctx context.Context, turns []checkpoint.Turn) (Extraction, error) {
	userText, agentText := lastExchange(turns)

	prompt := fmt.Sprintf(`You are a chat analysis tool. From the following exchange between a user and an assistant:
---
User: %s
Assistant: %s
---
Return exactly one line in the format:
Name: <user name or 'unknown'>, ChatStyle: <chat style or 'unknown'>, Topics: <comma-separated topics or 'unknown'>
If something cannot be determined, write 'unknown'.
Output only that single line, no quotes, no line breaks, no explanation.`, userText, agentText)

	raw, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return Extraction{}, fmt.Errorf("extraction call: %w", err)
	}
	return ParseStructuredLine(raw)
}

func (e *Extractor) extractNarrative(ctx context.Context, turns []checkpoint.Turn, prev *Profile) (Extraction, error) {
	prevDescription := unknownSentinel
	if prev != nil && strings.TrimSpace(prev.Description) != "" {
		prevDescription = prev.Description
	}

	history := strings.Join(pairWindow(turns, e.window), "\n")
	prompt := fmt.Sprintf(`You are a user-profile maintenance tool. Below is the user's current profile and a recent conversation between the user and an assistant:
---
Current profile: %s
Conversation:
%s
---
Update the profile with the new information. The profile must at least cover: the user's name, who the user is, the topics the user cares about, and the user's learning goal.
Keep only communication and study related facts; ignore incidental details such as dates or times.
Output a single updated profile description, nothing else.`, prevDescription, history)

	raw, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return Extraction{}, fmt.Errorf("extraction call: %w", err)
	}
	description := strings.TrimSpace(raw)
	if description == "" {
		return Extraction{}, errors.New("extraction returned an empty description")
	}
	return Extraction{Description: description}, nil
}

// ParseStructuredLine applies the strict one-line grammar and converts the
// "unknown" sentinel to absent values at this boundary, so merge logic never
// sees it.
func ParseStructuredLine(raw string) (Extraction, error) {
	m := structuredLine.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Extraction{}, fmt.Errorf("%w: %q", ErrNoMatch, raw)
	}

	ext := Extraction{
		Name:  dropSentinel(m[1]),
		Style: dropSentinel(m[2]),
	}
	for _, t := range strings.Split(m[3], ",") {
		if topic := dropSentinel(t); topic != "" {
			ext.Topics = append(ext.Topics, topic)
		}
	}
	return ext, nil
}

// dropSentinel trims the value and maps the sentinel to "no information". The
// case fold applies only to the sentinel check; stored values keep their
// original casing.
func dropSentinel(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, unknownSentinel) {
		return ""
	}
	return v
}

// lastExchange returns the most recent user/assistant texts in the window.
func lastExchange(turns []checkpoint.Turn) (userText, agentText string) {
	for i := len(turns) - 1; i >= 0; i-- {
		switch turns[i].Role {
		case checkpoint.RoleAssistant:
			if agentText == "" {
				agentText = turns[i].Text
			}
		case checkpoint.RoleUser:
			if userText == "" {
				userText = turns[i].Text
			}
		}
		if userText != "" && agentText != "" {
			return userText, agentText
		}
	}
	return userText, agentText
}

// pairWindow takes the trailing window of turns and renders them as
// "User/Assistant" exchange blocks, most recent last.
func pairWindow(turns []checkpoint.Turn, window int) []string {
	if len(turns) > window {
		turns = turns[len(turns)-window:]
	}
	var out []string
	for i := 0; i+1 < len(turns); i += 2 {
		out = append(out, fmt.Sprintf("User: %s\nAssistant: %s", turns[i].Text, turns[i+1].Text))
	}
	return out
}
