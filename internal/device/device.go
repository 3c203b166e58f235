// Package device holds the device, process and file records shared by the
// backends and the connection manager.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported is returned by capabilities a platform does not offer
var ErrUnsupported = errors.New("not supported on this platform")

// Platform identifies the debug bridge a device is reached through
type Platform int

const (
	Android Platform = iota
	OpenHarmony
)

func (p Platform) String() string {
	switch p {
	case Android:
		return "android"
	case OpenHarmony:
		return "harmony"
	default:
		return fmt.Sprintf("Platform(%d)", int(p))
	}
}

func (p Platform) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParsePlatform accepts the names printed by String plus a few aliases
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(s) {
	case "android", "adb":
		return Android, nil
	case "harmony", "openharmony", "ohos", "hdc":
		return OpenHarmony, nil
	}
	return 0, fmt.Errorf("unknown platform %q", s)
}

// Capabilities are the per-platform operation tables attached to a device
// when it is constructed.
type Capabilities struct {
	Folder  FolderOps
	Process ProcessOps
	Mirror  MirrorOps
	Aux     AuxOps
}

// FolderOps lists directories on a device
type FolderOps interface {
	List(ctx context.Context, serial, path string) ([]FileEntry, error)
}

// ProcessOps inspects and controls device processes
type ProcessOps interface {
	Processes(ctx context.Context, serial string, verbose bool) ([]Process, error)
	ForceStop(ctx context.Context, serial, packageName string) error
}

// MirrorSpec is the command line of a screen mirroring session
type MirrorSpec struct {
	Argv []string
	Env  map[string]string
}

// MirrorOps builds screen mirroring commands
type MirrorOps interface {
	MirrorCommand(serial string, extraArgs []string) (MirrorSpec, error)
}

// AuxOps are assorted device operations
type AuxOps interface {
	Reboot(ctx context.Context, serial string) error
	Install(ctx context.Context, serial, packagePath string) error
}

// Device is an immutable snapshot of one device as seen in a discovery poll.
// Two snapshots are equal when every field is equal.
type Device struct {
	Platform       Platform
	Serial         string
	Model          string
	Product        string
	DeviceCodeName string
	Transport      string
	Status         string
	Version        string
	APIVersion     string
	Description    string

	caps *Capabilities
}

// New creates a device bound to the capability table of its platform
func New(platform Platform, caps *Capabilities, serial, status string) Device {
	return Device{Platform: platform, Serial: serial, Status: status, caps: caps}
}

// IsOnline reports whether the backend considers the device usable
func (d Device) IsOnline() bool {
	switch d.Platform {
	case Android:
		return d.Status == "device"
	case OpenHarmony:
		return d.Status == "Connected"
	default:
		return false
	}
}

// Name is the best human readable label for the device
func (d Device) Name() string {
	if d.Description != "" {
		return d.Description
	}
	if d.Model != "" {
		return d.Model
	}
	return d.Serial
}

// Capabilities returns the device's operation tables, never nil
func (d Device) Capabilities() *Capabilities {
	if d.caps == nil {
		return &Capabilities{}
	}
	return d.caps
}

// ListFiles lists path on the device
func (d Device) ListFiles(ctx context.Context, path string) ([]FileEntry, error) {
	ops := d.Capabilities().Folder
	if ops == nil {
		return nil, ErrUnsupported
	}
	return ops.List(ctx, d.Serial, path)
}

// Processes lists the device's processes
func (d Device) Processes(ctx context.Context, verbose bool) ([]Process, error) {
	ops := d.Capabilities().Process
	if ops == nil {
		return nil, ErrUnsupported
	}
	return ops.Processes(ctx, d.Serial, verbose)
}

// ForceStop stops every process of packageName
func (d Device) ForceStop(ctx context.Context, packageName string) error {
	ops := d.Capabilities().Process
	if ops == nil {
		return ErrUnsupported
	}
	return ops.ForceStop(ctx, d.Serial, packageName)
}

// MirrorCommand builds the mirroring tool invocation for the device
func (d Device) MirrorCommand(extraArgs []string) (MirrorSpec, error) {
	ops := d.Capabilities().Mirror
	if ops == nil {
		return MirrorSpec{}, ErrUnsupported
	}
	return ops.MirrorCommand(d.Serial, extraArgs)
}

// Reboot restarts the device
func (d Device) Reboot(ctx context.Context) error {
	ops := d.Capabilities().Aux
	if ops == nil {
		return ErrUnsupported
	}
	return ops.Reboot(ctx, d.Serial)
}

// Install installs a package file on the device
func (d Device) Install(ctx context.Context, packagePath string) error {
	ops := d.Capabilities().Aux
	if ops == nil {
		return ErrUnsupported
	}
	return ops.Install(ctx, d.Serial, packagePath)
}

// Find returns the device with serial from list
func Find(list []Device, serial string) (Device, bool) {
	for _, d := range list {
		if d.Serial == serial {
			return d, true
		}
	}
	return Device{}, false
}

// Equal reports whether two device lists hold the same snapshots in order
func Equal(a, b []Device) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
