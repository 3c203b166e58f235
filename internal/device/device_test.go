package device

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestIsOnline(t *testing.T) {
	tests := []struct {
		platform Platform
		status   string
		want     bool
	}{
		{Android, "device", true},
		{Android, "offline", false},
		{Android, "unauthorized", false},
		{Android, "Connected", false},
		{OpenHarmony, "Connected", true},
		{OpenHarmony, "Offline", false},
		{OpenHarmony, "device", false},
	}

	for _, tt := range tests {
		d := New(tt.platform, nil, "serial", tt.status)
		if got := d.IsOnline(); got != tt.want {
			t.Errorf("%v/%q IsOnline() = %v, want %v", tt.platform, tt.status, got, tt.want)
		}
	}
}

func TestDeviceValueEquality(t *testing.T) {
	caps := &Capabilities{}
	a := New(Android, caps, "emulator-5554", "device")
	b := New(Android, caps, "emulator-5554", "device")
	if a != b {
		t.Error("expected identical snapshots to be equal")
	}

	b.Version = "14"
	if a == b {
		t.Error("expected snapshots with different versions to differ")
	}

	if !Equal([]Device{a}, []Device{a}) || Equal([]Device{a}, []Device{b}) || Equal(nil, []Device{a}) {
		t.Error("Equal returned an unexpected result")
	}
}

func TestMissingCapabilitiesAreUnsupported(t *testing.T) {
	d := New(OpenHarmony, &Capabilities{}, "127.0.0.1:5555", "Connected")
	ctx := context.Background()

	if _, err := d.ListFiles(ctx, "/"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("ListFiles: expected ErrUnsupported, got %v", err)
	}
	if _, err := d.Processes(ctx, false); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Processes: expected ErrUnsupported, got %v", err)
	}
	if _, err := d.MirrorCommand(nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("MirrorCommand: expected ErrUnsupported, got %v", err)
	}
	if err := d.Reboot(ctx); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Reboot: expected ErrUnsupported, got %v", err)
	}
}

func TestName(t *testing.T) {
	d := New(Android, nil, "R58M12345", "device")
	if d.Name() != "R58M12345" {
		t.Errorf("expected serial fallback, got %q", d.Name())
	}
	d.Model = "SM_G973F"
	if d.Name() != "SM_G973F" {
		t.Errorf("expected model, got %q", d.Name())
	}
	d.Description = "Test phone"
	if d.Name() != "Test phone" {
		t.Errorf("expected description, got %q", d.Name())
	}
}

func TestParsePlatform(t *testing.T) {
	for _, s := range []string{"android", "ADB"} {
		if p, err := ParsePlatform(s); err != nil || p != Android {
			t.Errorf("ParsePlatform(%q) = %v, %v", s, p, err)
		}
	}
	for _, s := range []string{"harmony", "OpenHarmony", "hdc"} {
		if p, err := ParsePlatform(s); err != nil || p != OpenHarmony {
			t.Errorf("ParsePlatform(%q) = %v, %v", s, p, err)
		}
	}
	if _, err := ParsePlatform("ios"); err == nil {
		t.Error("expected error for unknown platform")
	}
}

func TestSortHistory(t *testing.T) {
	list := []HistoryDevice{
		{IP: "a", Port: 5555, TimeMs: 100, Tagged: false},
		{IP: "b", Port: 5555, TimeMs: 50, Tagged: true},
	}
	SortHistory(list)
	if list[0].IP != "b" || list[1].IP != "a" {
		t.Errorf("expected tagged entry first, got %+v", list)
	}

	list = []HistoryDevice{
		{IP: "old", TimeMs: 100},
		{IP: "tagged-old", TimeMs: 50, Tagged: true},
		{IP: "new", TimeMs: 300},
		{IP: "tagged-new", TimeMs: 200, Tagged: true},
	}
	SortHistory(list)
	want := []string{"tagged-new", "tagged-old", "new", "old"}
	for i, ip := range want {
		if list[i].IP != ip {
			t.Errorf("position %d: got %q, want %q", i, list[i].IP, ip)
		}
	}
}

func TestHarmonyPackageName(t *testing.T) {
	p := HarmonyProcess{Name: "com.example.app:remote"}
	if p.PackageName() != "com.example.app" {
		t.Errorf("got %q", p.PackageName())
	}
	p.Name = "foundation"
	if p.PackageName() != "foundation" {
		t.Errorf("got %q", p.PackageName())
	}
}

func TestPlatformMarshalsAsName(t *testing.T) {
	d := New(OpenHarmony, nil, "FMR0223", "Connected")
	out, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(out), `"Platform":"harmony"`) {
		t.Errorf("Expected platform name in JSON, got %s", out)
	}
}
