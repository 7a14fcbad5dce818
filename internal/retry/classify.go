// Package retry classifies worker failures into a small set of kinds, decides
// which kinds are worth another attempt, and computes backoff delays.
//
// It also tracks per-task attempt state for callers that run their own
// bounded retry loops, such as the engine's quality-gate feedback loop.
package retry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/ensemble/internal/errors"
)

// Kind is the classified category of a failure.
type Kind string

const (
	KindRateLimited      Kind = "rate_limited"
	KindTimeout          Kind = "timeout"
	KindTransient        Kind = "transient"
	KindModelBusy        Kind = "model_busy"
	KindNetworkError     Kind = "network_error"
	KindCancelled        Kind = "cancelled"
	KindOffTopic         Kind = "off_topic"
	KindModelUnavailable Kind = "model_unavailable"
	KindLMError          Kind = "lm_error"
	KindUnknown          Kind = "unknown"
)

// Retryable reports whether another attempt may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindCancelled, KindOffTopic, KindModelUnavailable:
		return false
	default:
		return true
	}
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error's kind is retryable.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// IsRetryable lets errors.IsRetryable see through wrapped classified errors.
func (e *Error) IsRetryable() bool {
	return e.Retryable()
}

// Is matches errors.ErrCanceled for cancelled errors.
func (e *Error) Is(target error) bool {
	return e.Kind == KindCancelled && target == errors.ErrCanceled
}

// NewError creates a classified error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Cancelled returns the error a session carries after Cancel.
func Cancelled() *Error {
	return NewError(KindCancelled, "session cancelled", errors.ErrCanceled)
}

// coder is implemented by errors that carry a structured code.
type coder interface {
	Code() string
}

// codeKinds maps structured codes, and common aliases, to kinds.
var codeKinds = map[string]Kind{
	"429":               KindRateLimited,
	"rate_limit":        KindRateLimited,
	"rate_limit_error":  KindRateLimited,
	"too_many_requests": KindRateLimited,
	"408":               KindTimeout,
	"deadline_exceeded": KindTimeout,
	"500":               KindTransient,
	"502":               KindTransient,
	"504":               KindTransient,
	"internal":          KindTransient,
	"503":               KindModelBusy,
	"529":               KindModelBusy,
	"overloaded":        KindModelBusy,
	"overloaded_error":  KindModelBusy,
	"econnreset":        KindNetworkError,
	"econnrefused":      KindNetworkError,
	"canceled":          KindCancelled,
	"aborted":           KindCancelled,
	"content_filter":    KindOffTopic,
	"blocked":           KindOffTopic,
	"404":               KindModelUnavailable,
	"not_found":         KindModelUnavailable,
	"model_not_found":   KindModelUnavailable,
	"no_permissions":    KindModelUnavailable,
	"lm_error":          KindLMError,
	"invalid_request":   KindLMError,
}

// heuristics are checked in order against the lower-cased error message.
var heuristics = []struct {
	kind    Kind
	needles []string
}{
	{KindRateLimited, []string{"429", "rate limit", "rate_limit", "too many requests"}},
	{KindCancelled, []string{"cancel", "abort"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindModelBusy, []string{"busy", "overloaded", "503"}},
	{KindNetworkError, []string{"network", "connection", "econnreset", "econnrefused", "dns", "broken pipe"}},
	{KindOffTopic, []string{"off topic", "off-topic", "blocked"}},
	{KindModelUnavailable, []string{"unavailable", "not found", "no model"}},
	{KindTransient, []string{"temporar", "500", "502", "504"}},
}

// Classify maps err to a classified Error. A structured code, anywhere in the
// chain, takes precedence over message heuristics. Returns nil for nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, errors.ErrCanceled):
		return NewError(KindCancelled, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, err.Error(), err)
	}

	var c coder
	if errors.As(err, &c) {
		code := strings.ToLower(strings.TrimSpace(c.Code()))
		if kind, ok := codeKinds[code]; ok {
			return NewError(kind, err.Error(), err)
		}
		if kind := Kind(code); isKnown(kind) {
			return NewError(kind, err.Error(), err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, h := range heuristics {
		for _, needle := range h.needles {
			if strings.Contains(msg, needle) {
				return NewError(h.kind, err.Error(), err)
			}
		}
	}
	return NewError(KindUnknown, err.Error(), err)
}

func isKnown(k Kind) bool {
	switch k {
	case KindRateLimited, KindTimeout, KindTransient, KindModelBusy, KindNetworkError,
		KindCancelled, KindOffTopic, KindModelUnavailable, KindLMError, KindUnknown:
		return true
	}
	return false
}
