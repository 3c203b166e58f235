// Package netcheck tests whether a network device answers ICMP echo
// requests using the system ping binary.
package netcheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"time"

	"go.olrik.dev/devhub/internal/executor"
)

// ErrUnreachable is returned when the host did not answer in time
var ErrUnreachable = errors.New("host unreachable")

// Runner is the subset of *executor.Executor the pinger needs
type Runner interface {
	Execute(ctx context.Context, req executor.Request) executor.Result
}

// Pinger sends a single echo request per check
type Pinger struct {
	runner Runner
	path   string
	goos   string
	logger *slog.Logger
}

// New creates a Pinger using the ping binary from PATH
func New(runner Runner, logger *slog.Logger) *Pinger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pinger{runner: runner, path: "ping", goos: runtime.GOOS, logger: logger}
}

// Ping returns nil when host answered within timeout
func (p *Pinger) Ping(ctx context.Context, host string, timeout time.Duration) error {
	argv := append([]string{p.path}, pingArgs(p.goos, host, timeout)...)

	// The process timeout only guards against a wedged ping binary
	res := p.runner.Execute(ctx, executor.Request{Argv: argv, Timeout: timeout + time.Second})
	switch res.Outcome {
	case executor.OK:
		return nil
	case executor.TimedOut:
		p.logger.Debug("Ping timed out", "host", host)
		return fmt.Errorf("%w: %s", ErrUnreachable, host)
	default:
		p.logger.Debug("Ping failed", "host", host, "error", res.Err, "output", res.Output)
		return fmt.Errorf("%w: %s", ErrUnreachable, host)
	}
}

// pingArgs builds a single-probe argument list for goos
func pingArgs(goos, host string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		ms := max(timeout.Milliseconds(), 1)
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), host}
	case "darwin", "freebsd", "openbsd", "netbsd":
		// -t is the overall deadline in whole seconds on BSD ping
		return []string{"-c", "1", "-t", seconds(timeout), host}
	default:
		return []string{"-c", "1", "-W", seconds(timeout), host}
	}
}

func seconds(d time.Duration) string {
	s := int64(math.Ceil(d.Seconds()))
	return strconv.FormatInt(max(s, 1), 10)
}
