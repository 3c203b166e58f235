package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.hcl")

	hclConfig := `# Test configuration
verbose = 2

discovery {
  auto_refresh = false
  interval     = "3s"
  ping_timeout = "250ms"
}

adb {
  path        = "/opt/platform-tools/adb"
  encoding    = "GBK"
  timeout     = "20s"
  port        = 5037
}

hdc {
  path = "/opt/ohos/hdc"
}

ssh {
  user        = "shell"
  password    = "secret"
  key_files   = ["/keys/id_ed25519", "/keys/id_rsa"]
  port        = 2222
  timeout     = "4s"
}

mirror {
  path = "/usr/local/bin/scrcpy"
  args = ["--stay-awake", "--turn-screen-off"]
}
`

	err := os.WriteFile(configPath, []byte(hclConfig), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load HCL config: %v", err)
	}

	if config.ConfigPath != tmpDir {
		t.Errorf("Expected config path %q, got %q", tmpDir, config.ConfigPath)
	}
	if config.Verbose != 2 {
		t.Errorf("Expected verbose=2, got %v", config.Verbose)
	}

	// Discovery
	if config.Discovery.AutoRefresh {
		t.Error("Expected auto_refresh=false")
	}
	if config.Discovery.Interval != 3*time.Second {
		t.Errorf("Expected interval 3s, got %v", config.Discovery.Interval)
	}
	if config.Discovery.PingTimeout != 250*time.Millisecond {
		t.Errorf("Expected ping timeout 250ms, got %v", config.Discovery.PingTimeout)
	}

	// ADB
	if config.ADB.Path != "/opt/platform-tools/adb" {
		t.Errorf("Unexpected adb path %q", config.ADB.Path)
	}
	if config.ADB.Encoding != "GBK" {
		t.Errorf("Expected adb encoding GBK, got %q", config.ADB.Encoding)
	}
	if config.ADB.Timeout != 20*time.Second {
		t.Errorf("Expected adb timeout 20s, got %v", config.ADB.Timeout)
	}
	if config.ADB.Port != 5037 {
		t.Errorf("Expected adb port 5037, got %d", config.ADB.Port)
	}

	// HDC keeps defaults for everything but the path
	if config.HDC.Path != "/opt/ohos/hdc" {
		t.Errorf("Unexpected hdc path %q", config.HDC.Path)
	}
	if config.HDC.Encoding != DefaultEncoding {
		t.Errorf("Expected default hdc encoding, got %q", config.HDC.Encoding)
	}
	if config.HDC.Port != DefaultDebugPort {
		t.Errorf("Expected default hdc port, got %d", config.HDC.Port)
	}

	// SSH
	if config.SSH.User != "shell" || config.SSH.Password != "secret" {
		t.Errorf("Unexpected ssh credentials %q/%q", config.SSH.User, config.SSH.Password)
	}
	if len(config.SSH.KeyFiles) != 2 || config.SSH.KeyFiles[1] != "/keys/id_rsa" {
		t.Errorf("Unexpected key files %v", config.SSH.KeyFiles)
	}
	if config.SSH.Port != 2222 {
		t.Errorf("Expected ssh port 2222, got %d", config.SSH.Port)
	}
	if config.SSH.Timeout != 4*time.Second {
		t.Errorf("Expected ssh timeout 4s, got %v", config.SSH.Timeout)
	}

	// Mirror
	if config.Mirror.Path != "/usr/local/bin/scrcpy" {
		t.Errorf("Unexpected mirror path %q", config.Mirror.Path)
	}
	if len(config.Mirror.Args) != 2 {
		t.Errorf("Expected 2 mirror args, got %v", config.Mirror.Args)
	}
}

func TestLoadConfigEmptyFileUsesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.hcl")
	if err := os.WriteFile(configPath, []byte(""), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load HCL config: %v", err)
	}

	def := GetDefaultConfig()
	if config.Discovery != def.Discovery {
		t.Errorf("Expected default discovery %+v, got %+v", def.Discovery, config.Discovery)
	}
	if config.ADB != def.ADB || config.HDC != def.HDC {
		t.Errorf("Expected default tool config, got %+v / %+v", config.ADB, config.HDC)
	}
	if config.SSH.User != "root" || config.SSH.Port != DefaultSSHPort {
		t.Errorf("Unexpected ssh defaults %+v", config.SSH)
	}
	if config.Mirror.Path != "scrcpy" {
		t.Errorf("Expected default mirror path, got %q", config.Mirror.Path)
	}
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.hcl")
	content := `discovery {
  interval = "soon"
}
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "discovery.interval") {
		t.Errorf("Expected error to name the field, got %v", err)
	}
}

func TestLoadConfigSyntaxError(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.hcl")
	if err := os.WriteFile(configPath, []byte("adb {\n  path = \n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/.ssh/id_rsa"); got != filepath.Join(home, ".ssh/id_rsa") {
		t.Errorf("ExpandHome(~/.ssh/id_rsa) = %q", got)
	}
	if got := ExpandHome("/etc/hosts"); got != "/etc/hosts" {
		t.Errorf("ExpandHome should not touch absolute paths, got %q", got)
	}
	if got := ExpandHome(""); got != "" {
		t.Errorf("ExpandHome(\"\") = %q", got)
	}
}

func TestConfigExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.hcl")

	if ConfigExists(path) {
		t.Error("Expected ConfigExists to be false before file is written")
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if !ConfigExists(path) {
		t.Error("Expected ConfigExists to be true after file is written")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ConfigPath != dir {
		t.Errorf("Expected ConfigPath %q, got %q", dir, cfg.ConfigPath)
	}
	if !cfg.Discovery.AutoRefresh {
		t.Error("Expected auto refresh to default to on")
	}
	if cfg.ADB.Path != "adb" || cfg.HDC.Path != "hdc" {
		t.Errorf("Unexpected tool paths %q and %q", cfg.ADB.Path, cfg.HDC.Path)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "discovery {\n  auto_refresh = false\n}\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Discovery.AutoRefresh {
		t.Error("Expected auto refresh to be off")
	}
	if cfg.ConfigPath != dir {
		t.Errorf("Expected ConfigPath %q, got %q", dir, cfg.ConfigPath)
	}
}
