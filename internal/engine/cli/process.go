// Package cli runs agent command-line tools that print one JSON event per
// line and exposes their output as an engine stream.
package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	maxLineBytes   = 16 << 20
	maxStderrBytes = 64 << 10
	waitDelay      = 5 * time.Second
)

// Spec describes one invocation.
type Spec struct {
	Command string
	Args    []string
	Dir     string
	// Env is added to the current process environment for the child only.
	Env   map[string]string
	Stdin string
}

// Environ returns the child environment: the current environment with Env
// applied over it.
func (s Spec) Environ() []string {
	if len(s.Env) == 0 {
		return os.Environ()
	}
	env := make([]string, 0, len(os.Environ())+len(s.Env))
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := s.Env[k]; ok {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// Decoder turns one output line into a native event. ok=false skips the line.
type Decoder[E any] func(line []byte) (ev E, ok bool)

// Stream is a running child process whose stdout is decoded line by line.
type Stream[E any] struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stdout  io.ReadCloser
	stderr  *tailBuffer
	decode  Decoder[E]

	current E
	err     error

	closeOnce sync.Once
	waitErr   error
	waited    bool
}

// Start launches the process. The process is killed when ctx is done.
func Start[E any](ctx context.Context, spec Spec, decode Decoder[E]) (*Stream[E], error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Environ()
	cmd.WaitDelay = waitDelay
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	stderr := newTailBuffer(maxStderrBytes)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}
	slog.Debug("Started agent process", "command", spec.Command, "args", spec.Args, "dir", spec.Dir, "pid", cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	return &Stream[E]{
		cmd:     cmd,
		scanner: scanner,
		stdout:  stdout,
		stderr:  stderr,
		decode:  decode,
	}, nil
}

func (s *Stream[E]) Next() bool {
	if s.err != nil {
		return false
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, ok := s.decode(line)
		if !ok {
			slog.Debug("Skipping undecodable line", "line", string(line))
			continue
		}
		s.current = ev
		return true
	}

	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("read output: %w", err)
		s.wait()
		return false
	}
	if err := s.wait(); err != nil {
		s.err = err
	}
	return false
}

func (s *Stream[E]) Current() E {
	return s.current
}

func (s *Stream[E]) Err() error {
	return s.err
}

// wait reaps the process and decorates a failed exit with its stderr.
func (s *Stream[E]) wait() error {
	if s.waited {
		return s.waitErr
	}
	s.waited = true

	err := s.cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, lastLines(msg, 5))
		}
	}
	s.waitErr = err
	return err
}

// Interrupt sends SIGINT so the agent can stop cleanly.
func (s *Stream[E]) Interrupt() error {
	if runtime.GOOS == "windows" {
		return errors.New("interrupt not supported on windows")
	}
	if s.cmd.Process == nil {
		return errors.New("process not started")
	}
	return s.cmd.Process.Signal(os.Interrupt)
}

// Close kills the process if it is still running and releases it.
func (s *Stream[E]) Close() error {
	s.closeOnce.Do(func() {
		if s.waited {
			return
		}
		_ = s.cmd.Process.Kill()
		_ = s.stdout.Close()
		_ = s.wait()
	})
	return nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.ToValidUTF8(string(b.buf), "")
}
