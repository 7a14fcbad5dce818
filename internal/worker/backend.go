package worker

import (
	"fmt"
	"strings"
)

// BackendName identifies a supported agent CLI.
type BackendName string

const (
	BackendClaude BackendName = "claude"
	BackendCodex  BackendName = "codex"
)

// ErrUnknownBackend is returned when no default command exists for a vendor.
var ErrUnknownBackend = fmt.Errorf("unknown agent backend")

// PromptPlaceholder in a command argument is replaced by the prompt text.
// Without it the prompt is written to the command's stdin.
const PromptPlaceholder = "{prompt}"

// DefaultCommand returns the one-shot, print-only invocation for a backend.
// The prompt is read from stdin.
func DefaultCommand(name BackendName, skipPermissions bool) ([]string, error) {
	switch BackendName(strings.ToLower(string(name))) {
	case BackendClaude:
		cmd := []string{"claude", "--print"}
		if skipPermissions {
			cmd = append(cmd, "--dangerously-skip-permissions")
		}
		return cmd, nil
	case BackendCodex:
		cmd := []string{"codex", "exec"}
		if skipPermissions {
			cmd = append(cmd, "--dangerously-bypass-approvals-and-sandbox")
		} else {
			cmd = append(cmd, "--full-auto")
		}
		return append(cmd, "-"), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}

// modelArgs returns the flags selecting a model for a known backend.
func modelArgs(name BackendName, model string) []string {
	if model == "" {
		return nil
	}
	switch BackendName(strings.ToLower(string(name))) {
	case BackendClaude, BackendCodex:
		return []string{"--model", model}
	default:
		return nil
	}
}

// RenderPrompt flattens messages into the single prompt text a CLI accepts.
// A lone user message is passed through unchanged.
func RenderPrompt(messages []Message) string {
	if len(messages) == 1 && messages[0].Role == RoleUser {
		return messages[0].Content
	}
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if m.Role != RoleUser {
			fmt.Fprintf(&b, "[%s]\n", m.Role)
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
