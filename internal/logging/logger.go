package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level names accepted by NewLogger and the logging.level setting.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// FileName is the log file written inside the logging directory.
const FileName = "debug.log"

var levels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// Levels lists the accepted level names from most to least verbose.
func Levels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// sink owns the file behind a Logger and every child derived from it.
type sink struct {
	mu   sync.Mutex
	file *os.File
}

func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", f.Name(), err)
	}
	return f.Close()
}

// Logger writes JSON records through log/slog. Children created with the
// With helpers share the parent's output. A nil *Logger discards everything.
type Logger struct {
	slog *slog.Logger
	sink *sink
}

// NewLogger appends JSON records to dir/debug.log, creating dir if needed.
// An empty dir logs to stderr. Unknown level names fall back to info.
func NewLogger(dir, level string) (*Logger, error) {
	if dir == "" {
		return NewWithWriter(os.Stderr, level), nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := NewWithWriter(f, level)
	l.sink.file = f
	return l, nil
}

// NewWithWriter returns a Logger writing JSON records to w.
func NewWithWriter(w io.Writer, level string) *Logger {
	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	return &Logger{slog: slog.New(h), sink: &sink{}}
}

// NopLogger returns a Logger that drops every record.
func NopLogger() *Logger {
	return &Logger{slog: slog.New(slog.DiscardHandler), sink: &sink{}}
}

// With returns a child that adds the given key-value pairs to every record.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || len(args) == 0 {
		return l
	}
	return &Logger{slog: l.slog.With(args...), sink: l.sink}
}

func (l *Logger) WithPlan(planID string) *Logger       { return l.With("plan_id", planID) }
func (l *Logger) WithPhase(phaseID string) *Logger     { return l.With("phase", phaseID) }
func (l *Logger) WithBatch(index int) *Logger          { return l.With("batch", index) }
func (l *Logger) WithTask(taskID string) *Logger       { return l.With("task_id", taskID) }
func (l *Logger) WithAgent(role string) *Logger        { return l.With("agent", role) }
func (l *Logger) WithSession(sessionID string) *Logger { return l.With("session_id", sessionID) }

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if l == nil || l.slog == nil {
		return
	}
	l.slog.Log(context.Background(), level, msg, args...)
}

// Close syncs and closes the log file. Loggers writing elsewhere have
// nothing to close. Closing a child closes the shared file.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.close()
}
