// Package completion sends composed prompts to a chat-completion model and
// returns the raw text. Upstream failures are returned as-is; nothing here
// retries.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/reliability"
)

// Persona fixes the system instruction and sampling for one kind of call.
type Persona struct {
	Kind        string
	System      string
	Temperature float64
	MaxTokens   int
}

var (
	CharacterPersona = Persona{
		Kind:        "character",
		System:      "あなたは指定されたキャラクターになりきって、自然で親しみやすい台詞だけを話すアシスタントです。",
		Temperature: 0.8,
		MaxTokens:   150,
	}
	OptionsPersona = Persona{
		Kind:        "options",
		System:      "あなたはキャラクターと会話する主人公として、指定された形式で4つの返答候補だけを生成するアシスタントです。",
		Temperature: 1.0,
		MaxTokens:   200,
	}
	DialoguePersona = Persona{
		Kind:        "dialogue",
		System:      "あなたは指定されたキャラクターになりきって、自然で親しみやすいメッセージと、それに対する4つの選択肢を生成するアシスタントです。",
		Temperature: 0.8,
		MaxTokens:   300,
	}
)

// Client is a single request/response round trip to a language model.
type Client interface {
	Complete(ctx context.Context, prompt string, persona Persona) (string, error)
}

type responseError struct {
	msg string
	err error
}

func (e *responseError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *responseError) Unwrap() error     { return e.err }
func (e *responseError) BadResponse() bool { return true }

// ErrEmptyCompletion is returned when the model produced no choices or only whitespace.
var ErrEmptyCompletion error = &responseError{msg: "empty completion"}

// APIError is a non-2xx answer from the completion API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("completion api status %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("completion api status %d: %s", e.Status, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.Status }

// IsEmpty reports whether err is or wraps ErrEmptyCompletion.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmptyCompletion)
}

type instrumented struct {
	next    Client
	metrics *observability.Metrics
}

// WithMetrics records latency and a reliability code for every call.
func WithMetrics(next Client, metrics *observability.Metrics) Client {
	if metrics == nil {
		return next
	}
	return &instrumented{next: next, metrics: metrics}
}

func (c *instrumented) Complete(ctx context.Context, prompt string, persona Persona) (string, error) {
	start := time.Now()
	text, err := c.next.Complete(ctx, prompt, persona)
	c.metrics.ObserveCompletion(persona.Kind, reliability.Classify(err), time.Since(start))
	return text, err
}

func normalizeMode(mode string) string {
	return strings.ToLower(strings.TrimSpace(mode))
}
