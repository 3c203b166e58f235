// Package platform implements device discovery, connection and the per
// platform device capabilities on top of the bridge command clients.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.olrik.dev/devhub/internal/bridge"
	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/parser"
	"go.olrik.dev/devhub/internal/repair"
)

// Commander is the subset of *bridge.Client the backends use
type Commander interface {
	Invoke(ctx context.Context, args []string, opts bridge.InvokeOptions) (string, error)
	InvokeDevice(ctx context.Context, serial string, args []string, opts bridge.InvokeOptions) (string, error)
	Shell(ctx context.Context, serial, command string, opts bridge.InvokeOptions) (string, error)
}

// Scanner enumerates the devices of one platform
type Scanner interface {
	Platform() device.Platform
	Scan(ctx context.Context) ([]device.Device, error)
}

// Connector manages network connections of one platform
type Connector interface {
	Platform() device.Platform
	Connect(ctx context.Context, host string, port int) error
	Disconnect(ctx context.Context, serial string) error
	DisconnectAll(ctx context.Context) error
	RepairSteps(port int) []repair.Step
}

// Backend is a platform that can both scan and connect
type Backend interface {
	Scanner
	Connector
}

// ConnectError is returned when the bridge does not report a connection
type ConnectError struct {
	Platform device.Platform
	Address  string
	Output   string
	Err      error
}

func (e *ConnectError) Error() string {
	switch {
	case e.Output != "":
		return fmt.Sprintf("failed to connect to %s: %s", e.Address, e.Output)
	case e.Err != nil:
		return fmt.Sprintf("failed to connect to %s: %v", e.Address, e.Err)
	default:
		return fmt.Sprintf("failed to connect to %s: no response", e.Address)
	}
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Aggregator merges the device lists of several scanners in order
type Aggregator struct {
	scanners []Scanner
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator polling scanners in the given order
func NewAggregator(logger *slog.Logger, scanners ...Scanner) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{scanners: scanners, logger: logger}
}

// Scan polls every scanner and labels the devices from descriptions.
// A failing scanner is logged and contributes no devices.
func (a *Aggregator) Scan(ctx context.Context, descriptions map[string]string) []device.Device {
	var all []device.Device
	for _, s := range a.scanners {
		list, err := s.Scan(ctx)
		if err != nil {
			a.logger.Warn("Device scan failed", "platform", s.Platform(), "error", err)
			continue
		}
		for _, d := range list {
			d.Description = descriptions[d.Serial]
			all = append(all, d)
		}
	}
	return all
}

// shellQuote quotes s for the device shell
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// property reads a single system property through getter, empty on failure
func property(ctx context.Context, cmd Commander, serial, getter, key string) string {
	out, err := cmd.Shell(ctx, serial, getter+" "+key, bridge.InvokeOptions{})
	if err != nil {
		return ""
	}
	return parser.ParseProperty(out)
}

// listFolder runs ls on the device. ls exits non-zero on permission errors,
// so its output is parsed whenever there is any.
func listFolder(ctx context.Context, cmd Commander, serial, dir string) ([]device.FileEntry, error) {
	out, err := cmd.Shell(ctx, serial, "ls -h -g -L "+shellQuote(dir), bridge.InvokeOptions{})
	if err != nil && out == "" {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return parser.ParseListing(dir, out), nil
}
