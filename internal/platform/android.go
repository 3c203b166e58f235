package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"go.olrik.dev/devhub/internal/bridge"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/parser"
	"go.olrik.dev/devhub/internal/repair"
)

const installTimeout = 2 * time.Minute

// Android drives adb
type Android struct {
	cmd     Commander
	adbPath string
	mirror  core.MirrorConfig
	logger  *slog.Logger
	caps    *device.Capabilities
}

// NewAndroid creates the Android backend. adbPath is exported to the
// mirroring tool so it talks to the same adb server.
func NewAndroid(cmd Commander, adbPath string, mirror core.MirrorConfig, logger *slog.Logger) *Android {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Android{cmd: cmd, adbPath: adbPath, mirror: mirror, logger: logger.With("platform", "android")}
	a.caps = &device.Capabilities{Folder: a, Process: a, Mirror: a, Aux: a}
	return a
}

func (a *Android) Platform() device.Platform {
	return device.Android
}

// Scan lists adb devices and reads version properties from the online ones
func (a *Android) Scan(ctx context.Context) ([]device.Device, error) {
	out, err := a.cmd.Invoke(ctx, []string{"devices", "-l"}, bridge.InvokeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list adb devices: %w", err)
	}

	records := parser.ParseADBDevices(out)
	devices := make([]device.Device, 0, len(records))
	for _, r := range records {
		d := device.New(device.Android, a.caps, r.Serial, r.Status)
		d.Model = r.Model
		d.Product = r.Product
		d.DeviceCodeName = r.Device
		d.Transport = r.Transport
		if d.IsOnline() {
			d.Version = property(ctx, a.cmd, r.Serial, "getprop", "ro.build.version.release")
			d.APIVersion = property(ctx, a.cmd, r.Serial, "getprop", "ro.build.version.sdk")
			if d.Model == "" {
				d.Model = property(ctx, a.cmd, r.Serial, "getprop", "ro.product.model")
			}
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Connect drops any stale connection to host:port and connects again
func (a *Android) Connect(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if _, err := a.cmd.Invoke(ctx, []string{"disconnect", addr}, bridge.InvokeOptions{}); err != nil {
		a.logger.Debug("Disconnect before connect failed", "address", addr, "error", err)
	}

	out, err := a.cmd.Invoke(ctx, []string{"connect", addr}, bridge.InvokeOptions{})
	if parser.ADBConnectSucceeded(out) {
		return nil
	}
	return &ConnectError{Platform: device.Android, Address: addr, Output: out, Err: err}
}

func (a *Android) Disconnect(ctx context.Context, serial string) error {
	_, err := a.cmd.Invoke(ctx, []string{"disconnect", serial}, bridge.InvokeOptions{})
	return err
}

func (a *Android) DisconnectAll(ctx context.Context) error {
	_, err := a.cmd.Invoke(ctx, []string{"disconnect"}, bridge.InvokeOptions{})
	return err
}

func (a *Android) RepairSteps(port int) []repair.Step {
	return repair.AndroidSteps(port)
}

func (a *Android) List(ctx context.Context, serial, dir string) ([]device.FileEntry, error) {
	return listFolder(ctx, a.cmd, serial, dir)
}

// Processes lists application processes. The verbose form reads the full
// activity manager dump including ABI and attributes.
func (a *Android) Processes(ctx context.Context, serial string, verbose bool) ([]device.Process, error) {
	if verbose {
		out, err := a.cmd.Shell(ctx, serial, "dumpsys activity processes", bridge.InvokeOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to dump processes: %w", err)
		}
		return parser.ParseProcessDump(out), nil
	}
	out, err := a.cmd.Shell(ctx, serial, "dumpsys activity processes | grep ProcessRecord", bridge.InvokeOptions{})
	if err != nil && out == "" {
		// grep exits 1 when nothing matched
		return nil, nil
	}
	return parser.ParseProcessRecords(out), nil
}

func (a *Android) ForceStop(ctx context.Context, serial, packageName string) error {
	_, err := a.cmd.Shell(ctx, serial, "am force-stop "+shellQuote(packageName), bridge.InvokeOptions{})
	return err
}

// MirrorCommand builds the scrcpy command line for serial
func (a *Android) MirrorCommand(serial string, extraArgs []string) (device.MirrorSpec, error) {
	if a.mirror.Path == "" {
		return device.MirrorSpec{}, fmt.Errorf("no mirroring tool configured")
	}
	argv := []string{a.mirror.Path, "-s", serial, "--window-title", serial}
	argv = append(argv, a.mirror.Args...)
	argv = append(argv, extraArgs...)

	spec := device.MirrorSpec{Argv: argv}
	if a.adbPath != "" {
		spec.Env = map[string]string{"ADB": a.adbPath}
	}
	return spec, nil
}

func (a *Android) Reboot(ctx context.Context, serial string) error {
	_, err := a.cmd.InvokeDevice(ctx, serial, []string{"reboot"}, bridge.InvokeOptions{})
	return err
}

// Install installs or replaces an APK
func (a *Android) Install(ctx context.Context, serial, packagePath string) error {
	out, err := a.cmd.InvokeDevice(ctx, serial, []string{"install", "-r", packagePath}, bridge.InvokeOptions{Timeout: installTimeout})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", packagePath, err)
	}
	if strings.Contains(out, "Failure") || !strings.Contains(out, "Success") {
		return fmt.Errorf("failed to install %s: %s", packagePath, out)
	}
	return nil
}
