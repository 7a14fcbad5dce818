// Package worker defines the narrow contract ensemble needs from a generative
// model backend: send a prompt, receive a stream of text chunks.
//
// Two implementations are provided. Registry is an in-memory Provider that
// selects registered workers by vendor and family. CommandWorker runs an agent
// CLI (claude, codex, or any configured command) and streams its stdout.
package worker

import (
	"context"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn sent to a worker.
type Message struct {
	Role    string
	Content string
}

// UserMessage returns a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Options tune a single request. Zero values mean the worker's defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Selector describes which workers may serve a role.
type Selector struct {
	Vendor string `mapstructure:"vendor" json:"vendor"`
	Family string `mapstructure:"family" json:"family,omitempty"`
}

// String returns "vendor" or "vendor/family".
func (s Selector) String() string {
	if s.Family == "" {
		return s.Vendor
	}
	return s.Vendor + "/" + s.Family
}

// Matches reports whether w satisfies the selector. Vendor is compared
// case-insensitively; an empty Family matches any family.
func (s Selector) Matches(w Worker) bool {
	if !strings.EqualFold(s.Vendor, w.Vendor()) {
		return false
	}
	return s.Family == "" || strings.EqualFold(s.Family, w.Family())
}

// Stream yields response text incrementally. Recv returns io.EOF after the
// last chunk. Close releases the underlying request and may be called at any
// time, including after Recv returned an error.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Worker sends requests to one model backend.
type Worker interface {
	ID() string
	Vendor() string
	Family() string
	SendRequest(ctx context.Context, messages []Message, opts Options) (Stream, error)
}

// Provider returns the workers that match a selector. An empty result with a
// nil error means no worker is available.
type Provider interface {
	SelectWorkers(ctx context.Context, sel Selector) ([]Worker, error)
}

// CodedError is a worker failure carrying a structured code, such as an HTTP
// status or a backend error type.
type CodedError struct {
	code    string
	message string
	cause   error
}

// NewCodedError creates a CodedError.
func NewCodedError(code, message string, cause error) *CodedError {
	return &CodedError{code: code, message: message, cause: cause}
}

// Error returns the formatted error message.
func (e *CodedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %v", e.message, e.code, e.cause)
	}
	return fmt.Sprintf("%s (%s)", e.message, e.code)
}

// Code returns the structured code.
func (e *CodedError) Code() string { return e.code }

// Unwrap returns the underlying cause.
func (e *CodedError) Unwrap() error { return e.cause }
