package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"go.olrik.dev/devhub/internal/bridge"
	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/parser"
	"go.olrik.dev/devhub/internal/repair"
)

// Harmony drives hdc. Screen mirroring is not available.
type Harmony struct {
	cmd    Commander
	logger *slog.Logger
	caps   *device.Capabilities
}

// NewHarmony creates the OpenHarmony backend
func NewHarmony(cmd Commander, logger *slog.Logger) *Harmony {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Harmony{cmd: cmd, logger: logger.With("platform", "harmony")}
	h.caps = &device.Capabilities{Folder: h, Process: h, Aux: h}
	return h
}

func (h *Harmony) Platform() device.Platform {
	return device.OpenHarmony
}

// Scan lists hdc targets and reads version parameters from the online ones
func (h *Harmony) Scan(ctx context.Context) ([]device.Device, error) {
	out, err := h.cmd.Invoke(ctx, []string{"list", "targets", "-v"}, bridge.InvokeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list hdc targets: %w", err)
	}

	records := parser.ParseHDCTargets(out)
	devices := make([]device.Device, 0, len(records))
	for _, r := range records {
		d := device.New(device.OpenHarmony, h.caps, r.Serial, r.Status)
		d.Transport = r.Transport
		if d.IsOnline() {
			d.Version = property(ctx, h.cmd, r.Serial, "param get", "const.product.software.version")
			d.APIVersion = property(ctx, h.cmd, r.Serial, "param get", "const.ohos.apiversion")
			d.Model = property(ctx, h.cmd, r.Serial, "param get", "const.product.model")
		}
		devices = append(devices, d)
	}
	return devices, nil
}

func (h *Harmony) Connect(ctx context.Context, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	out, err := h.cmd.Invoke(ctx, []string{"tconn", addr}, bridge.InvokeOptions{})
	if parser.HDCConnectSucceeded(out) {
		return nil
	}
	return &ConnectError{Platform: device.OpenHarmony, Address: addr, Output: out, Err: err}
}

func (h *Harmony) Disconnect(ctx context.Context, serial string) error {
	out, err := h.cmd.Invoke(ctx, []string{"tconn", serial, "-remove"}, bridge.InvokeOptions{})
	if err != nil {
		return err
	}
	if strings.Contains(out, "[Fail]") {
		return fmt.Errorf("failed to disconnect %s: %s", serial, out)
	}
	return nil
}

// DisconnectAll removes every network target, hdc has no bulk form
func (h *Harmony) DisconnectAll(ctx context.Context) error {
	out, err := h.cmd.Invoke(ctx, []string{"list", "targets", "-v"}, bridge.InvokeOptions{})
	if err != nil {
		return fmt.Errorf("failed to list hdc targets: %w", err)
	}
	var errs []string
	for _, r := range parser.ParseHDCTargets(out) {
		if !strings.Contains(r.Serial, ":") {
			continue
		}
		if err := h.Disconnect(ctx, r.Serial); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to disconnect targets: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (h *Harmony) RepairSteps(port int) []repair.Step {
	return repair.HarmonySteps(port)
}

func (h *Harmony) List(ctx context.Context, serial, dir string) ([]device.FileEntry, error) {
	return listFolder(ctx, h.cmd, serial, dir)
}

// Processes lists processes with ps. The verbose form asks for user, uid and
// the full command line.
func (h *Harmony) Processes(ctx context.Context, serial string, verbose bool) ([]device.Process, error) {
	command := "ps -ef"
	if verbose {
		command = "ps -A -o USER,UID,PID,PPID,NAME,ARGS"
	}
	out, err := h.cmd.Shell(ctx, serial, command, bridge.InvokeOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}
	return parser.ParseHarmonyPS(out), nil
}

func (h *Harmony) ForceStop(ctx context.Context, serial, packageName string) error {
	_, err := h.cmd.Shell(ctx, serial, "aa force-stop "+shellQuote(packageName), bridge.InvokeOptions{})
	return err
}

func (h *Harmony) Reboot(ctx context.Context, serial string) error {
	_, err := h.cmd.InvokeDevice(ctx, serial, []string{"target", "boot"}, bridge.InvokeOptions{})
	return err
}

// Install installs or replaces a HAP
func (h *Harmony) Install(ctx context.Context, serial, packagePath string) error {
	out, err := h.cmd.InvokeDevice(ctx, serial, []string{"install", "-r", packagePath}, bridge.InvokeOptions{Timeout: installTimeout})
	if err != nil {
		return fmt.Errorf("failed to install %s: %w", packagePath, err)
	}
	// An empty reply is a timed out install
	if strings.Contains(out, "[Fail]") || !strings.Contains(out, "install bundle successfully") {
		return fmt.Errorf("failed to install %s: %s", packagePath, out)
	}
	return nil
}
