package cmd

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/db"
	"go.olrik.dev/devhub/internal/device"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		addr     string
		wantIP   string
		wantPort int
		wantErr  bool
	}{
		{"192.168.1.20", "192.168.1.20", 5555, false},
		{"192.168.1.20:8710", "192.168.1.20", 8710, false},
		{"phone.local", "phone.local", 5555, false},
		{"[fe80::1]:5555", "fe80::1", 5555, false},
		{"fe80::1", "fe80::1", 5555, false},
		{"192.168.1.20:abc", "", 0, true},
		{"192.168.1.20:70000", "", 0, true},
		{":5555", "", 0, true},
		{"", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			ip, port, err := parseAddress(tt.addr, 5555)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseAddress(%q) expected error, got %s:%d", tt.addr, ip, port)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAddress(%q) error: %v", tt.addr, err)
			}
			if ip != tt.wantIP || port != tt.wantPort {
				t.Errorf("parseAddress(%q) = %s:%d, want %s:%d", tt.addr, ip, port, tt.wantIP, tt.wantPort)
			}
		})
	}
}

func TestWriteDevices(t *testing.T) {
	a := device.New(device.Android, nil, "emulator-5554", "device")
	a.Model = "Pixel_7"
	a.Version = "14"
	a.APIVersion = "34"
	b := device.New(device.OpenHarmony, nil, "FMR0223", "Connected")
	b.Description = "lab tablet"

	var buf bytes.Buffer
	writeDevices(&buf, []device.Device{a, b}, &b)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "SERIAL") || !strings.Contains(lines[0], "DESCRIPTION") {
		t.Errorf("Unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "emulator-5554") || !strings.Contains(lines[1], "android") || !strings.Contains(lines[1], "Pixel_7") {
		t.Errorf("Unexpected android row %q", lines[1])
	}
	if strings.HasPrefix(lines[1], "*") {
		t.Errorf("Unselected device should not be marked: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "*") || !strings.Contains(lines[2], "harmony") || !strings.Contains(lines[2], "lab tablet") {
		t.Errorf("Unexpected selected harmony row %q", lines[2])
	}
}

func TestWriteDevicesEmpty(t *testing.T) {
	var buf bytes.Buffer
	writeDevices(&buf, nil, nil)
	if strings.TrimSpace(buf.String()) != "No devices found" {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestWriteFiles(t *testing.T) {
	dir := device.NewFileEntry("/sdcard", "Download", device.Directory)
	dir.Permissions = "drwxrwx--x"
	file := device.NewFileEntry("/sdcard", "foo.txt", device.File)
	file.Permissions = "-rw-r--r--"
	file.Size = "12.3KB"
	file.ModTime = "2024-01-01 10:00"

	var buf bytes.Buffer
	writeFiles(&buf, []device.FileEntry{dir, file})
	out := buf.String()
	if !strings.Contains(out, "Download/") {
		t.Errorf("Expected directories to end in '/', got:\n%s", out)
	}
	if !strings.Contains(out, "12.3KB") || !strings.Contains(out, "foo.txt") {
		t.Errorf("Expected file row, got:\n%s", out)
	}

	buf.Reset()
	writeFiles(&buf, []device.FileEntry{device.ErrorEntry("/root", "Permission denied")})
	if got := strings.TrimSpace(buf.String()); got != "error: Permission denied" {
		t.Errorf("Expected error message, got %q", got)
	}
}

func TestWriteProcesses(t *testing.T) {
	procs := []device.Process{
		device.AndroidProcess{
			UserName: "u0_a12",
			Uid:      10012,
			Pid:      4321,
			Name:     "com.example.app",
			Package:  "com.example.app",
			Abi:      "arm64-v8a",
			Attrs:    map[string]string{"pid": "4321", "adj": "0"},
		},
	}

	var buf bytes.Buffer
	writeProcesses(&buf, procs, false)
	if strings.Contains(buf.String(), "arm64-v8a") {
		t.Errorf("Plain listing should not include the ABI:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "4321") {
		t.Errorf("Expected pid in listing:\n%s", buf.String())
	}

	buf.Reset()
	writeProcesses(&buf, procs, true)
	if !strings.Contains(buf.String(), "arm64-v8a") || !strings.Contains(buf.String(), "adj=0 pid=4321") {
		t.Errorf("Long listing should include ABI and sorted attributes:\n%s", buf.String())
	}
}

func TestFormatAttributes(t *testing.T) {
	if got := formatAttributes(nil); got != "" {
		t.Errorf("formatAttributes(nil) = %q", got)
	}
	got := formatAttributes(map[string]string{"b": "2", "a": "1"})
	if got != "a=1 b=2" {
		t.Errorf("formatAttributes() = %q, want 'a=1 b=2'", got)
	}
}

func TestWriteHistory(t *testing.T) {
	list := []device.HistoryDevice{
		{IP: "10.0.0.2", Port: 5555, TimeMs: 2000, Tagged: true},
		{IP: "10.0.0.1", Port: 5555, TimeMs: 1000},
	}

	var buf bytes.Buffer
	writeHistory(&buf, list)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[1], "*") || !strings.Contains(lines[1], "10.0.0.2:5555") {
		t.Errorf("Expected tagged entry first, got %q", lines[1])
	}

	buf.Reset()
	writeHistory(&buf, nil)
	if strings.TrimSpace(buf.String()) != "No connection history" {
		t.Errorf("Unexpected empty output %q", buf.String())
	}
}

func TestWriteEvents(t *testing.T) {
	events := []db.DeviceEvent{
		{Serial: "10.0.0.1:5555", EventType: "connected", Timestamp: time.Now()},
		{Serial: "10.0.0.1:5555", EventType: "connect_failed", Details: "connection refused", Timestamp: time.Now()},
	}

	var buf bytes.Buffer
	writeEvents(&buf, events)
	if !strings.Contains(buf.String(), "connection refused") || !strings.Contains(buf.String(), "connected") {
		t.Errorf("Unexpected events output:\n%s", buf.String())
	}
}

func TestRootCommandVersion(t *testing.T) {
	old := slog.Default()
	oldConfig := core.Config
	t.Cleanup(func() {
		slog.SetDefault(old)
		core.Config = oldConfig
	})

	root := NewRootCommand()
	root.SetArgs([]string{"--config-path", t.TempDir(), "version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if core.Config == nil {
		t.Fatal("Expected configuration to be loaded before running the command")
	}
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	old := slog.Default()
	oldConfig := core.Config
	t.Cleanup(func() {
		slog.SetDefault(old)
		core.Config = oldConfig
	})

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte("discovery {\n  interval = \"later\"\n}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	root := NewRootCommand()
	root.SetArgs([]string{"--config-path", dir, "version"})
	if err := root.Execute(); err == nil {
		t.Error("Expected an invalid config file to fail the command")
	}
}
