package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrKind classifies a dispatch failure.
type ErrKind string

const (
	KindAuth        ErrKind = "auth"
	KindBadRequest  ErrKind = "bad_request"
	KindRateLimited ErrKind = "rate_limited"
	KindUnavailable ErrKind = "unavailable"
	KindTimeout     ErrKind = "timeout"
	KindCanceled    ErrKind = "canceled"
)

// ErrDispatchTimeout matches any DispatchError whose kind is timeout.
var ErrDispatchTimeout = errors.New("dispatch timed out")

// DispatchError is the terminal failure of a dispatch, inclusive of
// retries.
type DispatchError struct {
	Kind     ErrKind
	Attempts int
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch failed (%s, %d attempts): %v", e.Kind, e.Attempts, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func (e *DispatchError) Is(target error) bool {
	return target == ErrDispatchTimeout && e.Kind == KindTimeout
}

// Transient reports whether the failure kind is worth retrying.
func (k ErrKind) Transient() bool {
	switch k {
	case KindRateLimited, KindUnavailable, KindTimeout:
		return true
	default:
		return false
	}
}

// classify maps a provider error to a failure kind. Auth and malformed
// requests are permanent; timeouts, rate limits and 5xx are transient.
func classify(err error) ErrKind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return KindTimeout
	case strings.Contains(msg, "rate limit"):
		return KindRateLimited
	case strings.Contains(msg, "connection"):
		return KindUnavailable
	default:
		return KindBadRequest
	}
}

func classifyStatus(status int) ErrKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 408:
		return KindTimeout
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindUnavailable
	default:
		return KindBadRequest
	}
}
