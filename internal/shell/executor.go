// Package shell runs external commands behind an interface so that the git
// and process-listing collaborators can be tested without executing anything.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
)

// CommandExecutor abstracts command execution for testability.
type CommandExecutor interface {
	// Run executes a command and returns combined output.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

	// RunQuiet executes a command and returns only the error.
	RunQuiet(ctx context.Context, dir string, name string, args ...string) error

	// RunStreaming executes a command, calling onLine for every line or
	// carriage-return-terminated segment written to stderr, and returns the
	// combined output once the command exits.
	RunStreaming(ctx context.Context, dir string, onLine func(string), name string, args ...string) ([]byte, error)
}

// Starter launches a program without waiting for it to exit.
type Starter interface {
	Start(dir string, name string, args ...string) error
}

// CLICommandExecutor executes commands using os/exec.
type CLICommandExecutor struct {
	// Env is appended to the current environment when non-empty.
	Env []string
}

// NewCLICommandExecutor creates a new CLI command executor.
func NewCLICommandExecutor() *CLICommandExecutor {
	return &CLICommandExecutor{}
}

func (e *CLICommandExecutor) command(ctx context.Context, dir, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	hideWindow(cmd)
	return cmd
}

// Run executes a command and returns combined output.
func (e *CLICommandExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	return e.command(ctx, dir, name, args...).CombinedOutput()
}

// RunQuiet executes a command and returns only the error.
func (e *CLICommandExecutor) RunQuiet(ctx context.Context, dir string, name string, args ...string) error {
	return e.command(ctx, dir, name, args...).Run()
}

// RunStreaming executes a command and feeds its stderr to onLine as it arrives.
func (e *CLICommandExecutor) RunStreaming(ctx context.Context, dir string, onLine func(string), name string, args ...string) ([]byte, error) {
	cmd := e.command(ctx, dir, name, args...)

	var (
		mu  sync.Mutex
		out bytes.Buffer
	)
	cmd.Stdout = &lockedWriter{mu: &mu, w: &out}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(io.TeeReader(stderr, &lockedWriter{mu: &mu, w: &out}))
	scanner.Split(ScanProgressLines)
	for scanner.Scan() {
		if onLine != nil {
			onLine(scanner.Text())
		}
	}

	err = cmd.Wait()

	mu.Lock()
	defer mu.Unlock()
	return out.Bytes(), err
}

// Start launches a program detached from any context. The child is reaped
// in the background.
func (e *CLICommandExecutor) Start(dir string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// ScanProgressLines is a bufio.SplitFunc that splits on '\n' and on '\r',
// which progress meters use to redraw a line in place.
func ScanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, bytes.TrimRight(data[:i], "\r\n"), nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
