package bridge

import (
	"time"

	"go.olrik.dev/devhub/internal/core"
)

// Tool describes a debug bridge command-line tool
type Tool struct {
	Name            string
	Executable      string
	WorkingDir      string
	Encoding        string
	SerialFlag      string // Flag that selects a device, "-s" for adb and "-t" for hdc
	StartServerArgs []string
	KillServerArgs  []string
	VersionArgs     []string
	DefaultTimeout  time.Duration
}

// ADB returns the Android Debug Bridge descriptor
func ADB(cfg core.ToolConfig) Tool {
	return Tool{
		Name:            "adb",
		Executable:      orDefault(cfg.Path, "adb"),
		WorkingDir:      cfg.WorkingDir,
		Encoding:        cfg.Encoding,
		SerialFlag:      "-s",
		StartServerArgs: []string{"start-server"},
		KillServerArgs:  []string{"kill-server"},
		VersionArgs:     []string{"version"},
		DefaultTimeout:  cfg.Timeout,
	}
}

// HDC returns the OpenHarmony Device Connector descriptor
func HDC(cfg core.ToolConfig) Tool {
	return Tool{
		Name:            "hdc",
		Executable:      orDefault(cfg.Path, "hdc"),
		WorkingDir:      cfg.WorkingDir,
		Encoding:        cfg.Encoding,
		SerialFlag:      "-t",
		StartServerArgs: []string{"start"},
		KillServerArgs:  []string{"kill"},
		VersionArgs:     []string{"version"},
		DefaultTimeout:  cfg.Timeout,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
