package core

import (
	"runtime/debug"
	"testing"
)

func TestFormatVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"v0.4.0", "0.4.0"},
		{"0.4.0", "0.4.0"},
		{"devel-1a2b3c4", "devel-1a2b3c4"},
		{"devel", "devel"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := FormatVersion(tt.input); got != tt.want {
			t.Errorf("FormatVersion(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestIsPseudoVersion(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"v0.0.0-20261014093000-0123456789ab", true},
		{"v0.0.0-20261014093000-0123456789ab+dirty", true},
		{"v0.3.1-0.20261014093000-0123456789ab", true},
		{"v0.3.0", false},
		{"v1.0.0-beta1", false},
		{"v0.0.0-20261014093000-0123456789AB", false},
		{"(devel)", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isPseudoVersion(tt.input); got != tt.want {
			t.Errorf("isPseudoVersion(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestVersionFromBuildInfo(t *testing.T) {
	tests := []struct {
		name string
		info debug.BuildInfo
		want string
	}{
		{
			name: "tagged module version",
			info: debug.BuildInfo{Main: debug.Module{Version: "v0.4.0"}},
			want: "v0.4.0",
		},
		{
			name: "local build with revision",
			info: debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "1a2b3c4d5e6f7a8b"},
					{Key: "vcs.modified", Value: "false"},
				},
			},
			want: "devel-1a2b3c4",
		},
		{
			name: "pseudo version with dirty tree",
			info: debug.BuildInfo{
				Main: debug.Module{Version: "v0.0.0-20261014093000-0123456789ab"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abcdef0123456789"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			want: "devel-abcdef0-dirty",
		},
		{
			name: "no vcs info",
			info: debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: "devel",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := versionFromBuildInfo(&tt.info); got != tt.want {
				t.Errorf("versionFromBuildInfo() = %q, want %q", got, tt.want)
			}
		})
	}
}
