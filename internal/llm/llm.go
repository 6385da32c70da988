package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
)

// ErrNotConfigured is returned by Disabled and by callers with no completion backend.
var ErrNotConfigured = errors.New("llm: no completion backend configured")

// Prompt is a single system + user chat exchange.
type Prompt struct {
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Completer returns the model's raw text reply to a prompt.
// Replies are untrusted: callers parse them defensively.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, p Prompt) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// Disabled is the Completer used when no API key is configured.
type Disabled struct{}

func (Disabled) Complete(context.Context, Prompt) (string, error) {
	return "", ErrNotConfigured
}

// Stub is a deterministic Completer that replays a fixed reply or error and
// records every prompt it receives.
type Stub struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls []Prompt
}

func (s *Stub) Complete(_ context.Context, p Prompt) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, p)
	s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.Reply, nil
}

// Calls returns the prompts received so far.
func (s *Stub) Calls() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Prompt, len(s.calls))
	copy(out, s.calls)
	return out
}

var codeFence = regexp.MustCompile("```(?:json|JSON)?\\s*")

// StripCodeFence removes markdown code fences a model may wrap around JSON.
func StripCodeFence(s string) string {
	return strings.TrimSpace(codeFence.ReplaceAllString(s, ""))
}
