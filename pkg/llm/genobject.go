package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CallError is a model-call failure that still incurred spend. Budget
// enforcement must see the partial cost even when the call is unusable.
type CallError struct {
	UsdCost float64
	Err     error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("model call failed after $%.4f: %v", e.UsdCost, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// CostFromError extracts the partial spend carried by err, or 0.
func CostFromError(err error) float64 {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.UsdCost
	}
	return 0
}

// ObjectRequest asks a model for a single JSON object.
type ObjectRequest struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Object carries a parsed structured response plus the spend of the call.
type Object[T any] struct {
	Data    T
	UsdCost float64
}

// GenObject sends a structured-output request and parses the reply into T.
// A reply that cannot be parsed returns a CallError carrying the spend.
func GenObject[T any](ctx context.Context, c Client, req ObjectRequest) (*Object[T], error) {
	system := req.System
	if system != "" {
		system += "\n\n"
	}
	system += "Respond with a single JSON object and nothing else. No prose, no markdown fences."

	resp, err := c.SendAI(ctx, Request{
		Model: req.Model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	raw := extractJSON(resp.Content)
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &CallError{UsdCost: resp.UsdCost, Err: fmt.Errorf("parse structured response: %w", err)}
	}
	return &Object[T]{Data: out, UsdCost: resp.UsdCost}, nil
}

// extractJSON tolerates models that wrap the object in markdown fences or
// surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	var end int
	if s[start] == '{' {
		end = strings.LastIndex(s, "}")
	} else {
		end = strings.LastIndex(s, "]")
	}
	if end <= start {
		return s[start:]
	}
	return s[start : end+1]
}
