package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/creack/pty"

	"github.com/Iron-Ham/ensemble/internal/logging"
)

// stderrTail bounds how much stderr is kept for error messages.
const stderrTail = 4096

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren after the process is gone.
const waitDelay = 2 * time.Second

// CommandConfig describes an agent CLI.
type CommandConfig struct {
	ID     string
	Vendor string
	Family string
	// Command is the argv to run. Empty means DefaultCommand(Vendor).
	Command []string
	Dir     string
	Env     []string // Appended to the current environment
	// PTY runs the command under a pseudo-terminal. Many CLIs only stream
	// unbuffered output when attached to a TTY.
	PTY             bool
	SkipPermissions bool
}

// CommandWorker runs one process per request and streams its stdout line by
// line. A non-zero exit becomes an error carrying the tail of stderr.
type CommandWorker struct {
	cfg    CommandConfig
	logger *logging.Logger
}

// NewCommandWorker validates cfg and fills in the default command.
func NewCommandWorker(cfg CommandConfig, logger *logging.Logger) (*CommandWorker, error) {
	if len(cfg.Command) == 0 {
		cmd, err := DefaultCommand(BackendName(cfg.Vendor), cfg.SkipPermissions)
		if err != nil {
			return nil, err
		}
		cfg.Command = cmd
	}
	if cfg.ID == "" {
		cfg.ID = cfg.Vendor
		if cfg.Family != "" {
			cfg.ID += "/" + cfg.Family
		}
	}
	return &CommandWorker{cfg: cfg, logger: logger}, nil
}

func (w *CommandWorker) ID() string     { return w.cfg.ID }
func (w *CommandWorker) Vendor() string { return w.cfg.Vendor }
func (w *CommandWorker) Family() string { return w.cfg.Family }

// Command returns the argv used for a request, without the prompt.
func (w *CommandWorker) Command() []string {
	return slices.Clone(w.cfg.Command)
}

// SendRequest starts the command and returns a stream over its output.
// Cancelling ctx kills the process.
func (w *CommandWorker) SendRequest(ctx context.Context, messages []Message, opts Options) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prompt := RenderPrompt(messages)

	args := slices.Clone(w.cfg.Command[1:])
	args = append(args, modelArgs(BackendName(w.cfg.Vendor), opts.Model)...)
	promptInArgs := false
	for i, a := range args {
		if strings.Contains(a, PromptPlaceholder) {
			args[i] = strings.ReplaceAll(a, PromptPlaceholder, prompt)
			promptInArgs = true
		}
	}

	cmd := exec.CommandContext(ctx, w.cfg.Command[0], args...)
	cmd.Dir = w.cfg.Dir
	cmd.WaitDelay = waitDelay
	if len(w.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), w.cfg.Env...)
	}

	s := &processStream{
		ctx:    ctx,
		name:   w.cfg.Command[0],
		cmd:    cmd,
		chunks: make(chan string),
		stop:   make(chan struct{}),
		stderr: &tailBuffer{max: stderrTail},
	}

	if !promptInArgs {
		cmd.Stdin = strings.NewReader(prompt)
	}

	var out io.Reader
	if w.cfg.PTY {
		// Only stdout and stderr are attached to the terminal so the prompt
		// is not echoed back into the output.
		ptmx, tty, err := pty.Open()
		if err != nil {
			return nil, fmt.Errorf("open pty for %s: %w", s.name, err)
		}
		cmd.Stdout = tty
		cmd.Stderr = tty
		if err := cmd.Start(); err != nil {
			_ = ptmx.Close()
			_ = tty.Close()
			return nil, fmt.Errorf("start %s: %w", s.name, err)
		}
		_ = tty.Close()
		s.tty = ptmx
		s.pty = true
		out = ptmx
	} else {
		cmd.Stderr = s.stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("stdout pipe for %s: %w", s.name, err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", s.name, err)
		}
		out = stdout
	}

	w.logger.Debug("worker process started", "worker", w.cfg.ID, "command", s.name, "pty", w.cfg.PTY)
	go s.read(out)
	return s, nil
}

// processStream delivers a running command's output as line chunks.
type processStream struct {
	ctx    context.Context
	name   string
	cmd    *exec.Cmd
	tty    *os.File
	pty    bool
	chunks chan string
	stop   chan struct{}
	stderr *tailBuffer

	stopOnce sync.Once
	waitOnce sync.Once
	waitErr  error
}

func (s *processStream) read(r io.Reader) {
	defer close(s.chunks)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if s.pty {
				line = ansi.Strip(strings.ReplaceAll(line, "\r\n", "\n"))
			}
			select {
			case s.chunks <- line:
			case <-s.stop:
				return
			}
		}
		// A pty returns EIO instead of EOF once the child exits.
		if err != nil {
			return
		}
	}
}

// Recv returns the next line of output, io.EOF after a clean exit, or an
// error describing a failed exit.
func (s *processStream) Recv() (string, error) {
	select {
	case chunk, ok := <-s.chunks:
		if ok {
			return chunk, nil
		}
	case <-s.ctx.Done():
		_ = s.Close()
		return "", fmt.Errorf("%s interrupted: %w", s.name, s.ctx.Err())
	}
	if err := s.wait(); err != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s interrupted: %w", s.name, ctxErr)
		}
		if tail := strings.TrimSpace(s.stderr.String()); tail != "" {
			return "", fmt.Errorf("%s failed: %w: %s", s.name, err, tail)
		}
		return "", fmt.Errorf("%s failed: %w", s.name, err)
	}
	return "", io.EOF
}

// Close stops reading, kills the process if it is still running, and reaps it.
func (s *processStream) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.cmd.ProcessState == nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.wait()
	return nil
}

func (s *processStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		if s.tty != nil {
			_ = s.tty.Close()
		}
	})
	return s.waitErr
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
