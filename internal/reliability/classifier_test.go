package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type badPayload struct{}

func (badPayload) Error() string     { return "no choices" }
func (badPayload) BadResponse() bool { return true }

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, CodeOK},
		{"canceled", fmt.Errorf("send: %w", context.Canceled), CodeCanceled},
		{"deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), CodeTimeout},
		{"rate limited", fmt.Errorf("wrap: %w", statusErr(429)), CodeRateLimited},
		{"server error", statusErr(502), CodeUpstreamUnavailable},
		{"client error", statusErr(401), CodeClientError},
		{"bad payload", fmt.Errorf("decode: %w", badPayload{}), CodeBadResponse},
		{"other", errors.New("boom"), CodeUnknown},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("%s: Classify() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(statusErr(503)) {
		t.Fatalf("503 should be retryable")
	}
	if Retryable(statusErr(400)) {
		t.Fatalf("400 should not be retryable")
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Fatalf("timeouts should be retryable")
	}
}
