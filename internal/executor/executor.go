// Package executor spawns and supervises external helper processes.
//
// Synchronous invocations redirect combined output to a uniquely named temp
// file instead of a pipe, so a helper that leaves a grandchild holding its
// stdout open cannot wedge the caller. Every spawned process is recorded in a
// PID table so the whole set can be torn down with DestroyAll.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"
)

var (
	ErrEmptyCommand      = errors.New("empty command")
	ErrMissingWorkingDir = errors.New("working directory does not exist")
	ErrUnknownEncoding   = errors.New("unknown encoding")
)

// killGrace bounds how long we wait for a killed process to be reaped.
const killGrace = 2 * time.Second

// Outcome classifies how a synchronous invocation ended
type Outcome int

const (
	OK Outcome = iota
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case TimedOut:
		return "timed out"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Request describes one process invocation
type Request struct {
	Argv           []string
	Dir            string            // Working directory, empty inherits ours
	Env            map[string]string // Merged over the inherited environment
	Timeout        time.Duration     // <= 0 waits indefinitely
	InputEncoding  string            // Encoding applied to argv, empty means UTF-8
	OutputEncoding string            // Encoding of the combined output, empty means UTF-8
	PTY            bool              // ExecuteAsync only: run on a pseudo terminal
}

// Result is the outcome of Execute. Output is decoded and trimmed.
type Result struct {
	Outcome Outcome
	Output  string
	Err     error
}

// ExecError is returned when a process ran but exited unsuccessfully
type ExecError struct {
	Argv     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("%s exited with code %d: %v", e.Argv[0], e.ExitCode, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Config configures an Executor
type Config struct {
	Name    string // Prefix for temp files and log lines
	TempDir string // Defaults to os.TempDir()
	Logger  *slog.Logger
}

// Executor runs processes one at a time and remembers every PID it spawned
type Executor struct {
	name    string
	tempDir string
	logger  *slog.Logger

	runMu sync.Mutex // Serializes Execute

	mu    sync.Mutex
	procs map[int]*os.Process
}

// New creates an Executor
func New(cfg Config) *Executor {
	if cfg.Name == "" {
		cfg.Name = "exec"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		name:    cfg.Name,
		tempDir: cfg.TempDir,
		logger:  cfg.Logger.With("executor", cfg.Name),
		procs:   make(map[int]*os.Process),
	}
}

// Execute runs req to completion and returns its combined output.
//
// On timeout the process tree is destroyed and the result is TimedOut with
// whatever output was produced so far. Cancelling ctx destroys the tree and
// yields Failed with the context error.
func (e *Executor) Execute(ctx context.Context, req Request) Result {
	cmd, err := e.command(req)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	outEnc, err := lookupEncoding(req.OutputEncoding)
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()

	out, err := e.createOutputFile()
	if err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	defer e.removeOutputFile(out)

	cmd.Stdout = out
	cmd.Stderr = out

	e.logger.Debug("Running command", "argv", req.Argv, "timeout", req.Timeout)
	if err := cmd.Start(); err != nil {
		return Result{Outcome: Failed, Err: fmt.Errorf("failed to start %s: %w", req.Argv[0], err)}
	}
	pid := cmd.Process.Pid
	e.track(pid, cmd.Process)

	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		e.untrack(pid)
		done <- err
	}()

	var timeout <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case waitErr := <-done:
		output, err := readOutput(out.Name(), outEnc)
		if err != nil {
			return Result{Outcome: Failed, Err: err}
		}
		if waitErr != nil {
			return Result{Outcome: Failed, Output: output, Err: newExecError(req.Argv, output, waitErr)}
		}
		return Result{Outcome: OK, Output: output}

	case <-timeout:
		e.logger.Warn(fmt.Sprintf("Command %s timed out after %v, destroying process tree", req.Argv[0], req.Timeout),
			"pid", pid)
		e.killTree(pid)
		e.awaitExit(done, pid)
		output, _ := readOutput(out.Name(), outEnc)
		return Result{Outcome: TimedOut, Output: output}

	case <-ctx.Done():
		e.logger.Debug("Command cancelled, destroying process tree", "argv", req.Argv, "pid", pid)
		e.killTree(pid)
		e.awaitExit(done, pid)
		return Result{Outcome: Failed, Err: ctx.Err()}
	}
}

// Handle controls a process started with ExecuteAsync
type Handle struct {
	Pid    int
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Stop destroys the process tree. It does not wait for exit.
func (h *Handle) Stop() {
	h.cancel()
}

// Done is closed once the process has exited and all output was delivered
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits. It returns the context error if the
// process was stopped, otherwise the process's own exit error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// ExecuteAsync starts req and delivers its combined output to onLine, one
// line at a time, from a background goroutine. The process runs until it
// exits, Stop is called, or ctx is cancelled. req.Timeout is ignored.
func (e *Executor) ExecuteAsync(ctx context.Context, req Request, onLine func(string)) (*Handle, error) {
	cmd, err := e.command(req)
	if err != nil {
		return nil, err
	}
	outEnc, err := lookupEncoding(req.OutputEncoding)
	if err != nil {
		return nil, err
	}
	if onLine == nil {
		onLine = func(string) {}
	}

	output, err := startStreaming(cmd, req.PTY)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Argv[0], err)
	}
	pid := cmd.Process.Pid
	e.track(pid, cmd.Process)
	e.logger.Debug("Started background command", "argv", req.Argv, "pid", pid, "pty", req.PTY)

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{Pid: pid, cancel: cancel, done: make(chan struct{})}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		scanLines(output, outEnc, onLine)
	}()

	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			e.killTree(pid)
		case <-exited:
		}
	}()

	go func() {
		defer close(h.done)
		defer cancel()

		waitErr := cmd.Wait()
		e.untrack(pid)
		close(exited)

		// A grandchild may still hold the write side open.
		select {
		case <-readerDone:
		case <-time.After(time.Second):
		}
		output.Close()
		<-readerDone

		if ctx.Err() != nil {
			h.err = ctx.Err()
		} else {
			h.err = waitErr
		}
		e.logger.Debug("Background command exited", "pid", pid, "error", h.err)
	}()

	return h, nil
}

// DestroyAll kills every tracked process and its descendants. It returns
// the number of tracked processes destroyed and is safe to call repeatedly.
func (e *Executor) DestroyAll() int {
	e.mu.Lock()
	pids := make([]int, 0, len(e.procs))
	for pid := range e.procs {
		pids = append(pids, pid)
	}
	clear(e.procs)
	e.mu.Unlock()

	for _, pid := range pids {
		e.killTree(pid)
	}
	if len(pids) > 0 {
		e.logger.Info(fmt.Sprintf("Destroyed %d tracked process tree(s)", len(pids)))
	}
	return len(pids)
}

// Tracked returns the PIDs currently in the process table, sorted
func (e *Executor) Tracked() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	pids := make([]int, 0, len(e.procs))
	for pid := range e.procs {
		pids = append(pids, pid)
	}
	slices.Sort(pids)
	return pids
}

func (e *Executor) command(req Request) (*exec.Cmd, error) {
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return nil, ErrEmptyCommand
	}
	if req.Dir != "" {
		info, err := os.Stat(req.Dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrMissingWorkingDir, req.Dir)
		}
	}

	argv, err := encodeArgs(req.Argv, req.InputEncoding)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), req.Env)
	}
	if !req.PTY {
		setProcAttr(cmd)
	}
	return cmd, nil
}

func (e *Executor) createOutputFile() (*os.File, error) {
	name := filepath.Join(e.tempDir, fmt.Sprintf("%s-%s.out", e.name, uuid.NewString()))
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

func (e *Executor) removeOutputFile(f *os.File) {
	f.Close()
	if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("Failed to delete output file", "path", f.Name(), "error", err)
	}
}

func (e *Executor) awaitExit(done <-chan error, pid int) {
	select {
	case <-done:
	case <-time.After(killGrace):
		e.logger.Warn("Process did not exit after kill", "pid", pid)
	}
}

func (e *Executor) track(pid int, p *os.Process) {
	e.mu.Lock()
	e.procs[pid] = p
	e.mu.Unlock()
}

func (e *Executor) untrack(pid int) {
	e.mu.Lock()
	delete(e.procs, pid)
	e.mu.Unlock()
}

func readOutput(path string, enc encoding.Encoding) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read output file: %w", err)
	}
	decoded, err := decode(data, enc)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(decoded), nil
}

func newExecError(argv []string, output string, err error) *ExecError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &ExecError{Argv: argv, ExitCode: code, Output: output, Err: err}
}

func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
