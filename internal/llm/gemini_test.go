package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const geminiBody = `{
	"candidates": [
		{
			"content": {"parts": [{"text": "Name: Dung, ChatStyle: "}, {"text": "casual, Topics: history"}]},
			"finishReason": "STOP"
		}
	]
}`

func TestGeminiCompleteParsesParts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q, want generateContent endpoint", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q, want %q", r.URL.Query().Get("key"), "test-key")
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Errorf("request contents = %+v, want one part", req.Contents)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiBody))
	}))
	defer ts.Close()

	c := NewGeminiClient("test-key", "gemini-2.0-flash", ts.URL)
	got, err := c.Complete(context.Background(), "analyze this chat")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	want := "Name: Dung, ChatStyle: casual, Topics: history"
	if got != want {
		t.Fatalf("Complete() = %q, want %q", got, want)
	}
}

func TestGeminiCompleteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiBody))
	}))
	defer ts.Close()

	c := NewGeminiClient("test-key", "", ts.URL)
	if _, err := c.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("Complete() error = %v, want retry to succeed", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("upstream calls = %d, want 2", got)
	}
}

func TestGeminiCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer ts.Close()

	c := NewGeminiClient("test-key", "", ts.URL)
	if _, err := c.Complete(context.Background(), "prompt"); err == nil {
		t.Fatalf("Complete() error = nil, want failure")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1 (400 is not retryable)", got)
	}
}

func TestNewClientModeSelection(t *testing.T) {
	c, err := NewClient(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewClient(auto) error = %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("auto without key = %T, want *MockClient", c)
	}

	c, err = NewClient(Config{Mode: "auto", GeminiAPIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient(auto+key) error = %v", err)
	}
	if _, ok := c.(*GeminiClient); !ok {
		t.Fatalf("auto with key = %T, want *GeminiClient", c)
	}

	if _, err := NewClient(Config{Mode: "gemini"}); err == nil {
		t.Fatalf("NewClient(gemini) without key error = nil, want error")
	}
	if _, err := NewClient(Config{Mode: "banana"}); err == nil {
		t.Fatalf("NewClient(banana) error = nil, want error")
	}
}
