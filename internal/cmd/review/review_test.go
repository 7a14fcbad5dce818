package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/ensemble/internal/cmd/output"
	appconfig "github.com/Iron-Ham/ensemble/internal/config"
	"github.com/Iron-Ham/ensemble/internal/conflict"
	"github.com/Iron-Ham/ensemble/internal/plan"
)

func newResolver() *conflict.Resolver {
	return conflict.NewResolver(conflict.Config{ArchitectRole: "claude"}, nil, nil)
}

func fileOutputs() []plan.AgentOutput {
	return []plan.AgentOutput{
		{TaskID: "t1", Agent: "codex", Output: "Update `src/app.ts`:\n```ts\nconsole.log(1)\n```\n"},
		{TaskID: "t2", Agent: "claude", Output: "Update `src/app.ts`:\n```ts\nconsole.log(2)\n```\n"},
	}
}

func TestAnalyze_NoConflicts(t *testing.T) {
	rep := Analyze(newResolver(), []plan.AgentOutput{{TaskID: "t1", Agent: "claude", Output: "done"}})
	if rep.Detected != 0 || len(rep.Pending) != 0 {
		t.Fatalf("Analyze() = %+v, want nothing detected", rep)
	}

	var buf bytes.Buffer
	Render(&buf, rep, true)
	if !strings.Contains(buf.String(), "No conflicts between agent outputs") {
		t.Errorf("Render() = %q", buf.String())
	}
}

func TestAnalyze_FileMergeNeedsDecision(t *testing.T) {
	rep := Analyze(newResolver(), fileOutputs())

	if rep.Detected != 1 || len(rep.Pending) != 1 {
		t.Fatalf("Analyze() detected %d, pending %d, want 1 and 1", rep.Detected, len(rep.Pending))
	}
	got := rep.Pending[0]
	if got.Type != conflict.TypeFileMerge {
		t.Errorf("Type = %s, want %s", got.Type, conflict.TypeFileMerge)
	}
	if got.TaskIDs != [2]string{"t1", "t2"} {
		t.Errorf("TaskIDs = %v", got.TaskIDs)
	}
	if len(got.Options) != 3 {
		t.Errorf("Options = %d, want 3", len(got.Options))
	}
	if !strings.Contains(got.Diff, "-console.log(1)") || !strings.Contains(got.Diff, "+console.log(2)") {
		t.Errorf("Diff = %q", got.Diff)
	}
}

func TestRender_Diff(t *testing.T) {
	rep := Analyze(newResolver(), fileOutputs())

	tests := []struct {
		name     string
		showDiff bool
		want     bool
	}{
		{"with diff", true, true},
		{"without diff", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Render(&buf, rep, tt.showDiff)
			out := buf.String()
			for _, want := range []string{"1 detected, 0 resolved automatically, 1 need a decision", "Needs a decision", "1. Accept t1"} {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q:\n%s", want, out)
				}
			}
			if got := strings.Contains(out, "+console.log(2)"); got != tt.want {
				t.Errorf("diff shown = %v, want %v:\n%s", got, tt.want, out)
			}
		})
	}
}

func TestAnalyze_LowSeverityResolvesAutomatically(t *testing.T) {
	rep := Analyze(newResolver(), []plan.AgentOutput{
		{TaskID: "t1", Agent: "claude", Output: "ok", Declarations: []plan.Declaration{{Domain: "db", Key: "engine", Value: "postgres"}}},
		{TaskID: "t2", Agent: "codex", Output: "ok", Declarations: []plan.Declaration{{Domain: "db", Key: "engine", Value: "mysql"}}},
	})

	if len(rep.Pending) != 0 || len(rep.Resolutions) != 1 {
		t.Fatalf("Analyze() = %+v, want one automatic resolution", rep)
	}
	if rep.Resolutions[0].Strategy != conflict.StrategyFlagForReview {
		t.Errorf("Strategy = %s, want %s", rep.Resolutions[0].Strategy, conflict.StrategyFlagForReview)
	}

	var buf bytes.Buffer
	Render(&buf, rep, true)
	if !strings.Contains(buf.String(), "Resolved") || !strings.Contains(buf.String(), "flag-for-review") {
		t.Errorf("Render() = %q", buf.String())
	}
}

func setupConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	appconfig.SetDefaults()
	t.Cleanup(func() {
		conflictsJSON, conflictsDiff, conflictsCheckpoint, conflictsArchitect = false, true, "", ""
	})
}

func writeOutputs(t *testing.T, outputs []plan.AgentOutput) string {
	t.Helper()
	data, err := json.Marshal(outputs)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "outputs.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunConflicts_PendingIsSilentError(t *testing.T) {
	setupConfig(t)
	conflictsJSON = true
	path := writeOutputs(t, []plan.AgentOutput{
		{TaskID: "login", Agent: "claude", Declarations: []plan.Declaration{{Domain: "auth", Key: "method", Value: "session"}}},
		{TaskID: "tokens", Agent: "codex", Declarations: []plan.Declaration{{Domain: "auth", Key: "method", Value: "jwt"}}},
	})

	var buf bytes.Buffer
	conflictsCmd.SetOut(&buf)
	err := runConflicts(conflictsCmd, []string{path})

	var silent *output.SilentError
	if !errors.As(err, &silent) {
		t.Fatalf("runConflicts() error = %v, want SilentError", err)
	}
	var rep struct {
		Pending []struct {
			Severity conflict.Severity `json:"severity"`
		} `json:"pending"`
	}
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("output is not a report: %v\n%s", err, buf.String())
	}
	if len(rep.Pending) != 1 || rep.Pending[0].Severity != conflict.SeverityHigh {
		t.Errorf("pending = %+v, want one high severity contradiction", rep.Pending)
	}
}

func TestRunConflicts_Clean(t *testing.T) {
	setupConfig(t)
	path := writeOutputs(t, []plan.AgentOutput{{TaskID: "a", Agent: "claude", Output: "fine"}})

	var buf bytes.Buffer
	conflictsCmd.SetOut(&buf)
	if err := runConflicts(conflictsCmd, []string{path}); err != nil {
		t.Fatalf("runConflicts() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No conflicts") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRunConflicts_Arguments(t *testing.T) {
	setupConfig(t)

	if err := runConflicts(conflictsCmd, nil); err == nil {
		t.Error("runConflicts() without input succeeded, want an error")
	}
	conflictsCheckpoint = "shop"
	if err := runConflicts(conflictsCmd, []string{"outputs.json"}); err == nil {
		t.Error("runConflicts() with a file and --checkpoint succeeded, want an error")
	}
}

func TestLoadOutputs_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOutputs(path); err == nil {
		t.Error("LoadOutputs() error = nil, want a parse error")
	}
	if _, err := LoadOutputs(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadOutputs() error = nil for a missing file")
	}
}
