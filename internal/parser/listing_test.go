package parser

import (
	"testing"

	"go.olrik.dev/devhub/internal/device"
)

func TestParseListingBasicLine(t *testing.T) {
	entries := ParseListing("/sdcard", "-rw-r--r-- 1 root root 12.3K 2024-01-01 10:00 foo.txt")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d: %+v", len(entries), entries)
	}
	e := entries[0]
	if e.Name != "foo.txt" || e.Path != "/sdcard/foo.txt" || e.ParentPath != "/sdcard" {
		t.Errorf("unexpected naming %+v", e)
	}
	if e.Type != device.File {
		t.Errorf("expected file type, got %v", e.Type)
	}
	if e.Size != "12.3KB" {
		t.Errorf("expected size 12.3KB, got %q", e.Size)
	}
	if e.ModTime != "2024-01-01 10:00" {
		t.Errorf("unexpected mod time %q", e.ModTime)
	}
	if e.Permissions != "-rw-r--r--" {
		t.Errorf("unexpected permissions %q", e.Permissions)
	}
}

func TestParseListingLayouts(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		entry   string
		typ     device.FileType
		size    string
		modTime string
	}{
		{
			name:    "group only",
			line:    "drwxrwx--x 5 sdcard_rw 3.4K 2024-03-02 08:15 Download",
			entry:   "Download",
			typ:     device.Directory,
			size:    "3.4KB",
			modTime: "2024-03-02 08:15",
		},
		{
			name:    "no owner columns",
			line:    "-rw-rw---- 1 512 2024-03-02 08:15 notes.md",
			entry:   "notes.md",
			typ:     device.File,
			size:    "512B",
			modTime: "2024-03-02 08:15",
		},
		{
			name:    "full iso timestamp with zone",
			line:    "-rw-r--r-- 1 root root 1.0M 2024-01-01 10:00:00.000000000 +0800 big.bin",
			entry:   "big.bin",
			typ:     device.File,
			size:    "1.0MB",
			modTime: "2024-01-01 10:00:00.000000000 +0800",
		},
		{
			name:    "month day time",
			line:    "-rw-r--r--  1 shell shell  42 Jan  1 10:00 hello.txt",
			entry:   "hello.txt",
			typ:     device.File,
			size:    "42B",
			modTime: "Jan 1 10:00",
		},
		{
			name:    "month day year",
			line:    "-rw-r--r--  1 shell 42 Dec 31 2023 old.txt",
			entry:   "old.txt",
			typ:     device.File,
			size:    "42B",
			modTime: "Dec 31 2023",
		},
		{
			name:    "weekday long form",
			line:    "drwxr-xr-x 2 root root 4.0K Mon Jan  1 10:00:00 2024 etc",
			entry:   "etc",
			typ:     device.Directory,
			size:    "4.0KB",
			modTime: "Mon Jan 1 10:00:00 2024",
		},
		{
			name:    "name with spaces",
			line:    "-rw-r--r-- 1 root root 2.0G 2024-01-01 10:00 My  Holiday Video.mp4",
			entry:   "My  Holiday Video.mp4",
			typ:     device.File,
			size:    "2.0GB",
			modTime: "2024-01-01 10:00",
		},
		{
			name:    "character device",
			line:    "crw-rw-rw- 1 root root 0 2024-01-01 10:00 null",
			entry:   "null",
			typ:     device.Other,
			size:    "0B",
			modTime: "2024-01-01 10:00",
		},
		{
			name:    "character device with major and minor",
			line:    "crw-rw-rw- 1 root root 1,   3 2024-01-01 10:00 null",
			entry:   "null",
			typ:     device.Other,
			size:    "1, 3",
			modTime: "2024-01-01 10:00",
		},
		{
			name:    "block device without group",
			line:    "brw------- 1 root 253,   0 Jan  1 10:00 dm-0",
			entry:   "dm-0",
			typ:     device.Other,
			size:    "253, 0",
			modTime: "Jan 1 10:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := ParseListing("/data", tt.line)
			if len(entries) != 1 {
				t.Fatalf("expected 1 entry, got %d: %+v", len(entries), entries)
			}
			e := entries[0]
			if e.Name != tt.entry {
				t.Errorf("name = %q, want %q", e.Name, tt.entry)
			}
			if e.Type != tt.typ {
				t.Errorf("type = %v, want %v", e.Type, tt.typ)
			}
			if e.Size != tt.size {
				t.Errorf("size = %q, want %q", e.Size, tt.size)
			}
			if e.ModTime != tt.modTime {
				t.Errorf("mod time = %q, want %q", e.ModTime, tt.modTime)
			}
		})
	}
}

func TestParseListingKeepsDeviceNodes(t *testing.T) {
	out := "crw-rw-rw- 1 root root 1,   3 2024-01-01 10:00 null\n" +
		"-rw-r--r-- 1 root root 12.3K 2024-01-01 10:00 foo.txt\n"
	entries := ParseListing("/dev", out)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "null" || entries[1].Name != "foo.txt" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestParseListingSkipsNoise(t *testing.T) {
	output := `total 24
drwxrwx--x  4 root  3.4K 2024-01-01 10:00 .
drwxr-xr-x 20 root  4.0K 2024-01-01 10:00 ..
lrwxrwxrwx  1 root    21 2024-01-01 10:00 sdcard -> /storage/self/primary
drwxrwx--x  2 root  3.4K 2024-01-01 10:00 Music
ls: /data/broken: No such file or directory
-rw-rw----  1 root   128 2024-01-01 10:00 a.txt
`
	entries := ParseListing("/data", output)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "Music" || !entries[0].IsDir() {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Name != "a.txt" {
		t.Errorf("unexpected second entry %+v", entries[1])
	}
}

func TestParseListingPermissionDenied(t *testing.T) {
	entries := ParseListing("/root", "ls: /root: Permission denied")
	if len(entries) != 1 {
		t.Fatalf("expected a single entry, got %d", len(entries))
	}
	if entries[0].Type != device.Error {
		t.Errorf("expected error entry, got %v", entries[0].Type)
	}
	if entries[0].Message != PermissionDenied {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if entries[0].Path != "/root" {
		t.Errorf("expected error entry to point at /root, got %q", entries[0].Path)
	}
}

func TestParseListingEmptyDirectory(t *testing.T) {
	entries := ParseListing("/sdcard/Empty", "total 0\n")
	if len(entries) != 0 {
		t.Errorf("expected empty listing, got %+v", entries)
	}
}

func TestParseListingBackendNotReady(t *testing.T) {
	entries := ParseListing("/data", "[Fail]ExecuteCommand need connect-key? please confirm a device by help info")
	if len(entries) != 1 || entries[0].Type != device.Tip {
		t.Fatalf("expected a single tip entry, got %+v", entries)
	}
}

func TestNormalizeSize(t *testing.T) {
	tests := map[string]string{
		"12.3K": "12.3KB",
		"512":   "512B",
		"1G":    "1GB",
		"4.0KB": "4.0KB",
		"?":     "?",
	}
	for in, want := range tests {
		if got := normalizeSize(in); got != want {
			t.Errorf("normalizeSize(%q) = %q, want %q", in, got, want)
		}
	}
}
