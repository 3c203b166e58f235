// Package bridge wraps the adb and hdc command-line tools.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.olrik.dev/devhub/internal/executor"
)

// Runner is the subset of *executor.Executor a Client needs
type Runner interface {
	Execute(ctx context.Context, req executor.Request) executor.Result
	ExecuteAsync(ctx context.Context, req executor.Request, onLine func(string)) (*executor.Handle, error)
	DestroyAll() int
}

// InvokeOptions overrides the tool defaults for a single invocation
type InvokeOptions struct {
	Timeout  time.Duration
	Encoding string
}

// Client runs commands against one bridge tool. The tool's server daemon is
// started lazily before the first invocation.
type Client struct {
	tool   Tool
	runner Runner
	logger *slog.Logger

	mu      sync.Mutex
	started bool
}

// NewClient creates a Client for tool backed by runner
func NewClient(tool Tool, runner Runner, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		tool:   tool,
		runner: runner,
		logger: logger.With("tool", tool.Name),
	}
}

// Tool returns the descriptor this client was built with
func (c *Client) Tool() Tool {
	return c.tool
}

// Invoke runs the tool with args and returns its trimmed output.
// A timed out invocation yields empty output and no error. When the tool
// exits unsuccessfully its output is returned together with the error.
func (c *Client) Invoke(ctx context.Context, args []string, opts InvokeOptions) (string, error) {
	c.StartServer(ctx)
	return c.run(ctx, args, opts)
}

// InvokeDevice runs the tool against the device identified by serial
func (c *Client) InvokeDevice(ctx context.Context, serial string, args []string, opts InvokeOptions) (string, error) {
	full := make([]string, 0, len(args)+2)
	full = append(full, c.tool.SerialFlag, serial)
	full = append(full, args...)
	return c.Invoke(ctx, full, opts)
}

// Shell runs command in the device shell
func (c *Client) Shell(ctx context.Context, serial, command string, opts InvokeOptions) (string, error) {
	return c.InvokeDevice(ctx, serial, []string{"shell", command}, opts)
}

// Stream runs a long-lived tool command, delivering output line by line
func (c *Client) Stream(ctx context.Context, args []string, onLine func(string)) (*executor.Handle, error) {
	c.StartServer(ctx)
	return c.runner.ExecuteAsync(ctx, c.request(args, InvokeOptions{}), onLine)
}

// StartServer starts the tool's server daemon once per client lifetime and
// logs its version.
func (c *Client) StartServer(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true

	if _, err := c.run(ctx, c.tool.StartServerArgs, InvokeOptions{}); err != nil {
		c.logger.Warn(fmt.Sprintf("Failed to start %s server", c.tool.Name), "error", err)
		return
	}
	version, err := c.run(ctx, c.tool.VersionArgs, InvokeOptions{})
	if err != nil {
		c.logger.Debug("Failed to query server version", "error", err)
		return
	}
	first, _, _ := strings.Cut(version, "\n")
	c.logger.Info(fmt.Sprintf("%s server started", c.tool.Name), "version", strings.TrimSpace(first))
}

// KillServer stops the server daemon if this client started it.
// It is safe to call more than once.
func (c *Client) KillServer(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false

	if _, err := c.run(ctx, c.tool.KillServerArgs, InvokeOptions{}); err != nil {
		return fmt.Errorf("failed to kill %s server: %w", c.tool.Name, err)
	}
	c.logger.Info(fmt.Sprintf("%s server stopped", c.tool.Name))
	return nil
}

// Shutdown optionally kills the server daemon, then destroys every process
// this client spawned. It returns the number of process trees destroyed.
func (c *Client) Shutdown(ctx context.Context, killServer bool) int {
	if killServer {
		if err := c.KillServer(ctx); err != nil {
			c.logger.Warn("Kill server failed during shutdown", "error", err)
		}
	}
	return c.runner.DestroyAll()
}

func (c *Client) run(ctx context.Context, args []string, opts InvokeOptions) (string, error) {
	res := c.runner.Execute(ctx, c.request(args, opts))
	switch res.Outcome {
	case executor.OK:
		return res.Output, nil
	case executor.TimedOut:
		c.logger.Debug("Invocation timed out, treating as empty output", "args", args)
		return "", nil
	default:
		return res.Output, fmt.Errorf("%s %s: %w", c.tool.Name, strings.Join(args, " "), res.Err)
	}
}

func (c *Client) request(args []string, opts InvokeOptions) executor.Request {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.tool.DefaultTimeout
	}
	enc := opts.Encoding
	if enc == "" {
		enc = c.tool.Encoding
	}
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, c.tool.Executable)
	argv = append(argv, args...)
	return executor.Request{
		Argv:           argv,
		Dir:            c.tool.WorkingDir,
		Timeout:        timeout,
		InputEncoding:  enc,
		OutputEncoding: enc,
	}
}
