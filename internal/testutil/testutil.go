// Package testutil provides fakes and helpers for ensemble tests: scripted
// workers that stream canned chunks, a provider over them, and filesystem
// fixtures.
package testutil

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Iron-Ham/ensemble/internal/worker"
)

// Attempt is the scripted outcome of one SendRequest call.
type Attempt struct {
	// SendErr fails SendRequest itself.
	SendErr error
	Chunks  []string
	// Err is returned by Recv after the chunks; nil means io.EOF.
	Err error
	// Gate, when set, must deliver a value before each chunk is returned.
	Gate <-chan struct{}
}

// ErrScriptExhausted is returned when a worker runs out of scripted attempts.
var ErrScriptExhausted = errors.New("testutil: script exhausted")

// ScriptedWorker replays attempts in order. When Respond is set it is used
// instead of Script and receives the prompt and zero-based call number.
type ScriptedWorker struct {
	WorkerID     string
	WorkerVendor string
	WorkerFamily string
	Script       []Attempt
	Respond      func(prompt string, call int) Attempt

	mu      sync.Mutex
	calls   int
	prompts []string
}

// NewScriptedWorker creates a worker for vendor replaying attempts.
func NewScriptedWorker(vendor string, attempts ...Attempt) *ScriptedWorker {
	return &ScriptedWorker{WorkerID: vendor, WorkerVendor: vendor, Script: attempts}
}

// Succeed returns an attempt streaming chunks and ending cleanly.
func Succeed(chunks ...string) Attempt {
	return Attempt{Chunks: chunks}
}

// Fail returns an attempt streaming chunks and then failing with err.
func Fail(err error, chunks ...string) Attempt {
	return Attempt{Chunks: chunks, Err: err}
}

func (w *ScriptedWorker) ID() string     { return w.WorkerID }
func (w *ScriptedWorker) Vendor() string { return w.WorkerVendor }
func (w *ScriptedWorker) Family() string { return w.WorkerFamily }

// SendRequest records the prompt and returns the next scripted stream.
func (w *ScriptedWorker) SendRequest(ctx context.Context, messages []worker.Message, _ worker.Options) (worker.Stream, error) {
	prompt := worker.RenderPrompt(messages)

	w.mu.Lock()
	call := w.calls
	w.calls++
	w.prompts = append(w.prompts, prompt)
	var attempt Attempt
	switch {
	case w.Respond != nil:
		attempt = w.Respond(prompt, call)
	case call < len(w.Script):
		attempt = w.Script[call]
	default:
		w.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	w.mu.Unlock()

	if attempt.SendErr != nil {
		return nil, attempt.SendErr
	}
	return &scriptedStream{ctx: ctx, attempt: attempt}, nil
}

// Calls returns how many requests were sent.
func (w *ScriptedWorker) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// Prompts returns the prompts received, in order.
func (w *ScriptedWorker) Prompts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.prompts...)
}

type scriptedStream struct {
	ctx     context.Context
	attempt Attempt
	next    int
}

func (s *scriptedStream) Recv() (string, error) {
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.next < len(s.attempt.Chunks) {
		if s.attempt.Gate != nil {
			select {
			case <-s.attempt.Gate:
			case <-s.ctx.Done():
				return "", s.ctx.Err()
			}
		}
		chunk := s.attempt.Chunks[s.next]
		s.next++
		return chunk, nil
	}
	if s.attempt.Err != nil {
		return "", s.attempt.Err
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error { return nil }

// Provider is a worker.Provider over a fixed set of workers. Errs fails
// selection for a vendor.
type Provider struct {
	mu      sync.Mutex
	workers []worker.Worker
	Errs    map[string]error
	calls   int
}

// NewProvider creates a provider over workers.
func NewProvider(workers ...worker.Worker) *Provider {
	return &Provider{workers: workers, Errs: make(map[string]error)}
}

// SelectWorkers returns the workers matching sel.
func (p *Provider) SelectWorkers(_ context.Context, sel worker.Selector) ([]worker.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.Errs[sel.Vendor]; err != nil {
		return nil, err
	}
	var out []worker.Worker
	for _, w := range p.workers {
		if sel.Matches(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

// Calls returns how many times SelectWorkers ran.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// WriteFiles writes files, keyed by slash-separated relative path, under dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		fullPath := filepath.Join(dir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// ReadFile returns the content of a file under dir, failing the test if it
// cannot be read.
func ReadFile(t *testing.T, dir, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
