package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/daemon"
	"go.olrik.dev/devhub/internal/manager"
)

// errFailed exits with status 1 after the failure was already reported
var errFailed = errors.New("operation failed")

// runWithApp builds the App for the loaded configuration, runs fn and shuts
// the App down before exiting on error
func runWithApp(fn func(ctx context.Context, app *daemon.App) error) {
	app, err := daemon.New(core.Config, nil)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = fn(ctx, app)
	cancel()
	app.Shutdown(false)

	if err != nil {
		if !errors.Is(err, errFailed) {
			slog.Error(err.Error())
		}
		os.Exit(1)
	}
}

// report prints the messages of resp and turns a failed response into
// errFailed
func report(resp manager.Response) error {
	resp.LogMessages(daemon.ConsoleLogger())
	if resp.Failed() {
		return errFailed
	}
	return nil
}

// parseAddress splits "ip[:port]", using defaultPort when no port is given
func parseAddress(addr string, defaultPort int) (string, int, error) {
	if addr == "" {
		return "", 0, errors.New("empty address")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port, or a bare IPv6 address
		if ip := net.ParseIP(addr); ip != nil {
			return addr, defaultPort, nil
		}
		if _, _, splitErr := net.SplitHostPort(addr + ":0"); splitErr == nil {
			return addr, defaultPort, nil
		}
		return "", 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid address %q: missing host", addr)
	}
	return host, port, nil
}
