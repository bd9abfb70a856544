package reliability

import (
	"context"
	"errors"
	"net"
)

// Failure codes reported for upstream calls.
const (
	CodeOK                  = "ok"
	CodeRateLimited         = "rate_limited"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeTimeout             = "timeout"
	CodeCanceled            = "canceled"
	CodeBadResponse         = "bad_response"
	CodeClientError         = "client_error"
	CodeUnknown             = "unknown"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// BadResponse marks errors caused by an unusable upstream payload.
type BadResponse interface {
	BadResponse() bool
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Classify maps an upstream error to a stable failure code. Callers only
// report the code; nothing in this service retries.
func Classify(err error) string {
	if err == nil {
		return CodeOK
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		switch {
		case code == 429:
			return CodeRateLimited
		case code >= 500:
			return CodeUpstreamUnavailable
		case code >= 400:
			return CodeClientError
		}
	}

	var br BadResponse
	if errors.As(err, &br) && br.BadResponse() {
		return CodeBadResponse
	}
	return CodeUnknown
}

// Retryable reports whether a failure of this kind would be worth retrying.
func Retryable(err error) bool {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatus())
	}
	return Classify(err) == CodeTimeout
}
