package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Newrona-pi/textgame-chatapp/internal/config"
	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/reliability"
)

func TestOpenAIClientSendsPersona(t *testing.T) {
	var got chatRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  やっほー！  "}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "sk-test", Model: "gpt-4o-mini", Timeout: time.Second})
	text, err := c.Complete(context.Background(), "prompt body", OptionsPersona)
	require.NoError(t, err)

	assert.Equal(t, "やっほー！", text)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.InDelta(t, 1.0, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, OptionsPersona.System, got.Messages[0].Content)
	assert.Equal(t, "prompt body", got.Messages[1].Content)
}

func TestPersonaSampling(t *testing.T) {
	assert.Greater(t, OptionsPersona.Temperature, CharacterPersona.Temperature)
	assert.Equal(t, 300, DialoguePersona.MaxTokens)
	assert.NotEqual(t, CharacterPersona.System, OptionsPersona.System)
}

func TestOpenAIClientErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		code   string
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, reliability.CodeRateLimited},
		{"server error", http.StatusBadGateway, `upstream gone`, reliability.CodeUpstreamUnavailable},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, reliability.CodeClientError},
		{"no choices", http.StatusOK, `{"choices":[]}`, reliability.CodeBadResponse},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"   "}}]}`, reliability.CodeBadResponse},
		{"not json", http.StatusOK, `<html>`, reliability.CodeBadResponse},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Timeout: time.Second}).
				Complete(context.Background(), "p", CharacterPersona)
			require.Error(t, err)
			assert.Equal(t, tc.code, reliability.Classify(err))
			assert.EqualValues(t, 1, calls.Load(), "no retries")
		})
	}
}

func TestOpenAIClientAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Timeout: time.Second}).Complete(context.Background(), "p", CharacterPersona)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "quota", apiErr.Message)
	assert.Equal(t, "insufficient_quota", apiErr.Type)
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}).Complete(ctx, "p", CharacterPersona)
	require.Error(t, err)
	assert.Equal(t, reliability.CodeTimeout, reliability.Classify(err))
}

func TestMockClient(t *testing.T) {
	c := NewMockClient()
	for _, p := range []Persona{CharacterPersona, OptionsPersona, DialoguePersona} {
		text, err := c.Complete(context.Background(), "x", p)
		require.NoError(t, err)
		assert.NotEmpty(t, text)
	}
	_, err := c.Complete(context.Background(), "x", Persona{Kind: "other"})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Complete(ctx, "x", CharacterPersona)
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(config.Config{CompletionMode: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockClient{}, c)

	c, err = NewClient(config.Config{CompletionMode: "OpenAI", OpenAIAPIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = NewClient(config.Config{CompletionMode: "local"})
	require.Error(t, err)
}

func TestWithMetricsPassesThrough(t *testing.T) {
	m := observability.NewMetrics("completion_test")
	c := WithMetrics(NewMockClient(), m)
	text, err := c.Complete(context.Background(), "x", CharacterPersona)
	require.NoError(t, err)
	assert.Equal(t, mockCharacterLine, text)

}
