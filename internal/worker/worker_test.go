package worker

import (
	"context"
	"errors"
	"io"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/Iron-Ham/ensemble/internal/config"
)

type stubWorker struct {
	id, vendor, family string
}

func (s stubWorker) ID() string     { return s.id }
func (s stubWorker) Vendor() string { return s.vendor }
func (s stubWorker) Family() string { return s.family }
func (s stubWorker) SendRequest(context.Context, []Message, Options) (Stream, error) {
	return nil, errors.New("not implemented")
}

func TestSelectorMatches(t *testing.T) {
	w := stubWorker{id: "w", vendor: "Anthropic", family: "claude-sonnet"}
	tests := []struct {
		sel  Selector
		want bool
	}{
		{Selector{Vendor: "anthropic"}, true},
		{Selector{Vendor: "anthropic", Family: "CLAUDE-SONNET"}, true},
		{Selector{Vendor: "anthropic", Family: "claude-opus"}, false},
		{Selector{Vendor: "openai"}, false},
	}
	for _, tt := range tests {
		if got := tt.sel.Matches(w); got != tt.want {
			t.Errorf("%s.Matches() = %v, want %v", tt.sel, got, tt.want)
		}
	}
	if got := (Selector{Vendor: "a", Family: "b"}).String(); got != "a/b" {
		t.Errorf("String() = %q, want a/b", got)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(
		stubWorker{id: "one", vendor: "anthropic", family: "sonnet"},
		stubWorker{id: "two", vendor: "openai", family: "gpt"},
	)
	r.Register(stubWorker{id: "three", vendor: "anthropic", family: "opus"})
	r.Register(stubWorker{id: "one", vendor: "anthropic", family: "haiku"})

	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	got, err := r.SelectWorkers(context.Background(), Selector{Vendor: "anthropic"})
	if err != nil {
		t.Fatal(err)
	}
	var gotIDs []string
	for _, w := range got {
		gotIDs = append(gotIDs, w.ID()+":"+w.Family())
	}
	if want := []string{"one:haiku", "three:opus"}; !slices.Equal(gotIDs, want) {
		t.Errorf("SelectWorkers() = %v, want %v", gotIDs, want)
	}

	none, err := r.SelectWorkers(context.Background(), Selector{Vendor: "mistral"})
	if err != nil || len(none) != 0 {
		t.Errorf("SelectWorkers(mistral) = %v, %v, want empty", none, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.SelectWorkers(ctx, Selector{Vendor: "anthropic"}); !errors.Is(err, context.Canceled) {
		t.Errorf("SelectWorkers(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestDefaultCommand(t *testing.T) {
	tests := []struct {
		name BackendName
		skip bool
		want []string
	}{
		{BackendClaude, false, []string{"claude", "--print"}},
		{BackendClaude, true, []string{"claude", "--print", "--dangerously-skip-permissions"}},
		{BackendCodex, false, []string{"codex", "exec", "--full-auto", "-"}},
		{"CODEX", true, []string{"codex", "exec", "--dangerously-bypass-approvals-and-sandbox", "-"}},
	}
	for _, tt := range tests {
		got, err := DefaultCommand(tt.name, tt.skip)
		if err != nil {
			t.Fatalf("DefaultCommand(%s) error = %v", tt.name, err)
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("DefaultCommand(%s, %v) = %v, want %v", tt.name, tt.skip, got, tt.want)
		}
	}
	if _, err := DefaultCommand("gemini", false); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("DefaultCommand(gemini) error = %v, want ErrUnknownBackend", err)
	}
}

func TestRenderPrompt(t *testing.T) {
	if got := RenderPrompt([]Message{UserMessage("do it")}); got != "do it" {
		t.Errorf("RenderPrompt(single) = %q", got)
	}
	got := RenderPrompt([]Message{
		{Role: RoleAssistant, Content: "previous"},
		UserMessage("next"),
	})
	if want := "[assistant]\nprevious\n\nnext"; got != want {
		t.Errorf("RenderPrompt() = %q, want %q", got, want)
	}
}

func TestCodedError(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := NewCodedError("529", "overloaded", cause)
	if err.Code() != "529" {
		t.Errorf("Code() = %q", err.Code())
	}
	if !errors.Is(err, cause) {
		t.Error("CodedError should unwrap to its cause")
	}
	if got := err.Error(); got != "overloaded (529): unexpected EOF" {
		t.Errorf("Error() = %q", got)
	}
}

func drain(t *testing.T, s Stream) (string, error) {
	t.Helper()
	defer s.Close()
	var b strings.Builder
	for {
		chunk, err := s.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
}

func TestCommandWorker_StreamsStdout(t *testing.T) {
	requireShell(t)
	w, err := NewCommandWorker(CommandConfig{
		Vendor:  "local",
		Command: []string{"sh", "-c", "cat; echo; echo done"},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.ID() != "local" {
		t.Errorf("ID() = %q, want local", w.ID())
	}

	s, err := w.SendRequest(context.Background(), []Message{UserMessage("line one\nline two")}, Options{})
	if err != nil {
		t.Fatalf("SendRequest() error = %v", err)
	}
	got, err := drain(t, s)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if want := "line one\nline two\ndone\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestCommandWorker_PromptPlaceholder(t *testing.T) {
	requireShell(t)
	w, _ := NewCommandWorker(CommandConfig{
		Vendor:  "local",
		Command: []string{"sh", "-c", `printf '%s\n' "$1"`, "sh", PromptPlaceholder},
	}, nil)
	s, err := w.SendRequest(context.Background(), []Message{UserMessage("via args")}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := drain(t, s); got != "via args\n" {
		t.Errorf("output = %q, want %q", got, "via args\n")
	}
}

func TestCommandWorker_FailureCarriesStderr(t *testing.T) {
	requireShell(t)
	w, _ := NewCommandWorker(CommandConfig{
		Vendor:  "local",
		Command: []string{"sh", "-c", "echo partial; echo 'HTTP 429 rate limited' >&2; exit 3"},
	}, nil)
	s, err := w.SendRequest(context.Background(), []Message{UserMessage("x")}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := drain(t, s)
	if got != "partial\n" {
		t.Errorf("output = %q, want partial", got)
	}
	if err == nil || !strings.Contains(err.Error(), "429 rate limited") {
		t.Errorf("Recv() error = %v, want stderr tail", err)
	}
}

func TestCommandWorker_Cancel(t *testing.T) {
	requireShell(t)
	w, _ := NewCommandWorker(CommandConfig{
		Vendor:  "local",
		Command: []string{"sh", "-c", "echo started; exec sleep 30"},
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := w.SendRequest(ctx, []Message{UserMessage("x")}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if chunk, err := s.Recv(); err != nil || chunk != "started\n" {
		t.Fatalf("first Recv() = %q, %v", chunk, err)
	}
	cancel()
	for {
		_, err := s.Recv()
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Recv() after cancel = %v, want context.Canceled", err)
		}
		break
	}
}

func TestCommandWorker_PTY(t *testing.T) {
	requireShell(t)
	w, _ := NewCommandWorker(CommandConfig{
		Vendor:  "local",
		Command: []string{"sh", "-c", `if [ -t 1 ]; then echo tty; else echo pipe; fi`},
		PTY:     true,
	}, nil)
	s, err := w.SendRequest(context.Background(), []Message{UserMessage("x")}, Options{})
	if err != nil {
		t.Skipf("pty unavailable: %v", err)
	}
	got, err := drain(t, s)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if got != "tty\n" {
		t.Errorf("output = %q, want tty", got)
	}
}

func TestNewCommandWorker_Defaults(t *testing.T) {
	w, err := NewCommandWorker(CommandConfig{Vendor: "claude", Family: "sonnet"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.ID() != "claude/sonnet" {
		t.Errorf("ID() = %q, want claude/sonnet", w.ID())
	}
	if got := w.Command(); !slices.Equal(got, []string{"claude", "--print"}) {
		t.Errorf("Command() = %v", got)
	}
	if _, err := NewCommandWorker(CommandConfig{Vendor: "unknown"}, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("NewCommandWorker(unknown) error = %v, want ErrUnknownBackend", err)
	}
}

func TestBuiltInBackendsMatchConfig(t *testing.T) {
	for _, vendor := range config.ValidVendors() {
		if _, err := DefaultCommand(BackendName(vendor), false); err != nil {
			t.Errorf("config vendor %q has no default command: %v", vendor, err)
		}
	}
	for _, b := range []BackendName{BackendClaude, BackendCodex} {
		if !slices.Contains(config.ValidVendors(), string(b)) {
			t.Errorf("backend %q missing from config.ValidVendors()", b)
		}
	}
}
