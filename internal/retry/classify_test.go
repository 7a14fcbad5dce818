package retry

import (
	"context"
	"fmt"
	"testing"

	"github.com/Iron-Ham/ensemble/internal/errors"
)

type codedError struct {
	code string
	msg  string
}

func (e codedError) Error() string { return e.msg }
func (e codedError) Code() string  { return e.code }

func TestKindRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindRateLimited, true},
		{KindTimeout, true},
		{KindTransient, true},
		{KindModelBusy, true},
		{KindNetworkError, true},
		{KindLMError, true},
		{KindUnknown, true},
		{KindCancelled, false},
		{KindOffTopic, false},
		{KindModelUnavailable, false},
	}
	for _, tt := range tests {
		if got := tt.kind.Retryable(); got != tt.want {
			t.Errorf("%s.Retryable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"context canceled", context.Canceled, KindCancelled},
		{"wrapped context canceled", fmt.Errorf("stream: %w", context.Canceled), KindCancelled},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"ensemble canceled", errors.ErrCanceled, KindCancelled},
		{"code 429", codedError{code: "429", msg: "slow down"}, KindRateLimited},
		{"code overloaded", codedError{code: "overloaded_error", msg: "try later"}, KindModelBusy},
		{"code kind name", codedError{code: "off_topic", msg: "refused"}, KindOffTopic},
		{"code wins over message", codedError{code: "not_found", msg: "rate limit 429"}, KindModelUnavailable},
		{"unknown code falls back to message", codedError{code: "weird", msg: "connection reset"}, KindNetworkError},
		{"wrapped code", fmt.Errorf("send: %w", codedError{code: "503", msg: "x"}), KindModelBusy},
		{"message 429", errors.New("HTTP 429 Too Many Requests"), KindRateLimited},
		{"message rate limit", errors.New("Rate limit exceeded"), KindRateLimited},
		{"message abort", errors.New("request aborted by user"), KindCancelled},
		{"message timeout", errors.New("upstream timed out"), KindTimeout},
		{"message busy", errors.New("model is busy"), KindModelBusy},
		{"message network", errors.New("dial tcp: lookup api: dns failure"), KindNetworkError},
		{"message off-topic", errors.New("response blocked by filter"), KindOffTopic},
		{"message unavailable", errors.New("model claude-x not found"), KindModelUnavailable},
		{"message transient", errors.New("temporary failure"), KindTransient},
		{"message 502", errors.New("bad gateway 502"), KindTransient},
		{"unknown", errors.New("something odd"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatal("Classify() = nil")
			}
			if got.Kind != tt.want {
				t.Errorf("Classify(%q).Kind = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error should wrap the original")
			}
		})
	}
}

func TestClassify_HeuristicOrder(t *testing.T) {
	// A message matching several heuristics takes the first kind in order.
	got := Classify(errors.New("429: connection timed out"))
	if got.Kind != KindRateLimited {
		t.Errorf("Kind = %s, want %s", got.Kind, KindRateLimited)
	}
	got = Classify(errors.New("cancelled after timeout"))
	if got.Kind != KindCancelled {
		t.Errorf("Kind = %s, want %s", got.Kind, KindCancelled)
	}
}

func TestClassify_NilAndClassified(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
	original := NewError(KindLMError, "bad output", nil)
	if got := Classify(fmt.Errorf("wrap: %w", original)); got != original {
		t.Errorf("Classify() = %v, want the existing classified error", got)
	}
}

func TestCancelled(t *testing.T) {
	err := Cancelled()
	if err.Kind != KindCancelled || err.Retryable() {
		t.Errorf("Cancelled() = %+v, want non-retryable cancelled", err)
	}
	if !errors.Is(err, errors.ErrCanceled) {
		t.Error("Cancelled() should match ErrCanceled")
	}
	if errors.IsRetryable(err) {
		t.Error("errors.IsRetryable(Cancelled()) = true, want false")
	}
}
