// Package mirror supervises screen mirroring sessions, one background
// process per device.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/executor"
)

// Streamer starts background processes
type Streamer interface {
	ExecuteAsync(ctx context.Context, req executor.Request, onLine func(string)) (*executor.Handle, error)
}

// Options tune one session
type Options struct {
	ExtraArgs []string
	OnLine    func(serial, line string) // Receives the tool's output
}

// Session is a running mirroring process
type Session struct {
	Serial  string
	Pid     int
	Started time.Time

	handle *executor.Handle
}

// Done is closed when the mirroring process has exited
func (s *Session) Done() <-chan struct{} {
	return s.handle.Done()
}

// Wait blocks until the process exits and returns its exit error
func (s *Session) Wait() error {
	return s.handle.Wait()
}

// Manager tracks the active sessions by serial
type Manager struct {
	runner Streamer
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func New(runner Streamer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		runner:   runner,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Start mirrors dev. A session already running for the same serial is
// stopped first.
func (m *Manager) Start(ctx context.Context, dev device.Device, opts Options) (*Session, error) {
	spec, err := dev.MirrorCommand(opts.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("cannot mirror %s: %w", dev.Serial, err)
	}
	m.Stop(dev.Serial)

	serial := dev.Serial
	logger := m.logger.With("serial", serial)
	onLine := func(line string) {
		logger.Debug("Mirror output", "line", line)
		if opts.OnLine != nil {
			opts.OnLine(serial, line)
		}
	}

	handle, err := m.runner.ExecuteAsync(ctx, executor.Request{Argv: spec.Argv, Env: spec.Env, PTY: true}, onLine)
	if err != nil {
		return nil, fmt.Errorf("failed to start mirroring %s: %w", serial, err)
	}
	s := &Session{Serial: serial, Pid: handle.Pid, Started: time.Now(), handle: handle}

	m.mu.Lock()
	m.sessions[serial] = s
	m.mu.Unlock()
	logger.Info("Mirroring started", "pid", s.Pid, "command", strings.Join(spec.Argv, " "))

	go m.reap(s)
	return s, nil
}

// reap forgets s once its process exits on its own
func (m *Manager) reap(s *Session) {
	err := s.handle.Wait()

	m.mu.Lock()
	if m.sessions[s.Serial] == s {
		delete(m.sessions, s.Serial)
	}
	m.mu.Unlock()

	m.logger.Info("Mirroring ended", "serial", s.Serial, "pid", s.Pid, "error", err)
}

// Stop ends the session of serial and waits for its process to exit. It
// reports whether a session was running.
func (m *Manager) Stop(serial string) bool {
	m.mu.Lock()
	s, ok := m.sessions[serial]
	delete(m.sessions, serial)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.handle.Stop()
	<-s.handle.Done()
	return true
}

// StopAll ends every session and returns how many were running
func (m *Manager) StopAll() int {
	m.mu.Lock()
	serials := make([]string, 0, len(m.sessions))
	for serial := range m.sessions {
		serials = append(serials, serial)
	}
	m.mu.Unlock()

	n := 0
	for _, serial := range serials {
		if m.Stop(serial) {
			n++
		}
	}
	return n
}

// Active returns the running sessions ordered by serial
func (m *Manager) Active() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Session) int { return strings.Compare(a.Serial, b.Serial) })
	return out
}
