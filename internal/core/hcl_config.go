package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the global configuration instance
var Config *Configuration

// Default values applied when the config file omits a setting.
const (
	DefaultInterval    = 10 * time.Second
	DefaultPingTimeout = time.Second
	DefaultToolTimeout = 15 * time.Second
	DefaultSSHTimeout  = 10 * time.Second
	DefaultDebugPort   = 5555
	DefaultSSHPort     = 22
	DefaultEncoding    = "UTF-8"
)

const (
	BaseDirName    = ".config/devhub" // Relative to the user's home directory
	ConfigFileName = "config.hcl"
	DBFileName     = "devhub.db"
)

// Configuration represents the complete devhub configuration
type Configuration struct {
	ConfigPath string // Directory containing config files
	Verbose    int    // Verbosity level
	Discovery  DiscoveryConfig
	ADB        ToolConfig
	HDC        ToolConfig
	SSH        SSHConfig
	Mirror     MirrorConfig
}

// DiscoveryConfig controls the device poll loop
type DiscoveryConfig struct {
	AutoRefresh bool
	Interval    time.Duration
	PingTimeout time.Duration
}

// ToolConfig describes how to invoke one debug bridge executable
type ToolConfig struct {
	Path       string
	WorkingDir string
	Encoding   string
	Timeout    time.Duration
	Port       int // Default TCP debug port used when connecting by IP
}

// SSHConfig holds remote-repair connection settings
type SSHConfig struct {
	User       string
	Password   string // Empty means look it up in the keyring
	KeyFiles   []string
	Port       int
	Timeout    time.Duration
	KnownHosts string // Empty accepts any host key
}

// MirrorConfig describes the screen mirroring tool
type MirrorConfig struct {
	Path string
	Args []string
}

// HCL parsing structs

type hclConfig struct {
	Verbose   int           `hcl:"verbose,optional"`
	Discovery *hclDiscovery `hcl:"discovery,block"`
	ADB       *hclTool      `hcl:"adb,block"`
	HDC       *hclTool      `hcl:"hdc,block"`
	SSH       *hclSSH       `hcl:"ssh,block"`
	Mirror    *hclMirror    `hcl:"mirror,block"`
}

type hclDiscovery struct {
	AutoRefresh *bool  `hcl:"auto_refresh,optional"`
	Interval    string `hcl:"interval,optional"`
	PingTimeout string `hcl:"ping_timeout,optional"`
}

type hclTool struct {
	Path       string `hcl:"path,optional"`
	WorkingDir string `hcl:"working_dir,optional"`
	Encoding   string `hcl:"encoding,optional"`
	Timeout    string `hcl:"timeout,optional"`
	Port       int    `hcl:"port,optional"`
}

type hclSSH struct {
	User       string   `hcl:"user,optional"`
	Password   string   `hcl:"password,optional"`
	KeyFiles   []string `hcl:"key_files,optional"`
	Port       int      `hcl:"port,optional"`
	Timeout    string   `hcl:"timeout,optional"`
	KnownHosts string   `hcl:"known_hosts,optional"`
}

type hclMirror struct {
	Path string   `hcl:"path,optional"`
	Args []string `hcl:"args,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.ConfigPath = filepath.Dir(filename)
	cfg.Verbose = hclCfg.Verbose

	if d := hclCfg.Discovery; d != nil {
		if d.AutoRefresh != nil {
			cfg.Discovery.AutoRefresh = *d.AutoRefresh
		}
		if cfg.Discovery.Interval, err = parseDuration("discovery.interval", d.Interval, DefaultInterval); err != nil {
			return nil, err
		}
		if cfg.Discovery.PingTimeout, err = parseDuration("discovery.ping_timeout", d.PingTimeout, DefaultPingTimeout); err != nil {
			return nil, err
		}
	}

	if cfg.ADB, err = convertTool("adb", hclCfg.ADB, cfg.ADB); err != nil {
		return nil, err
	}
	if cfg.HDC, err = convertTool("hdc", hclCfg.HDC, cfg.HDC); err != nil {
		return nil, err
	}

	if s := hclCfg.SSH; s != nil {
		if s.User != "" {
			cfg.SSH.User = s.User
		}
		cfg.SSH.Password = s.Password
		cfg.SSH.KnownHosts = ExpandHome(s.KnownHosts)
		for _, f := range s.KeyFiles {
			cfg.SSH.KeyFiles = append(cfg.SSH.KeyFiles, ExpandHome(f))
		}
		if s.Port != 0 {
			cfg.SSH.Port = s.Port
		}
		if cfg.SSH.Timeout, err = parseDuration("ssh.timeout", s.Timeout, DefaultSSHTimeout); err != nil {
			return nil, err
		}
	}

	if m := hclCfg.Mirror; m != nil {
		if m.Path != "" {
			cfg.Mirror.Path = m.Path
		}
		cfg.Mirror.Args = m.Args
	}

	return cfg, nil
}

func convertTool(name string, in *hclTool, def ToolConfig) (ToolConfig, error) {
	if in == nil {
		return def, nil
	}
	out := def
	if in.Path != "" {
		out.Path = ExpandHome(in.Path)
	}
	out.WorkingDir = ExpandHome(in.WorkingDir)
	if in.Encoding != "" {
		out.Encoding = in.Encoding
	}
	if in.Port != 0 {
		out.Port = in.Port
	}
	timeout, err := parseDuration(name+".timeout", in.Timeout, def.Timeout)
	if err != nil {
		return ToolConfig{}, err
	}
	out.Timeout = timeout
	return out, nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}

// ExpandHome replaces a leading "~/" with the user's home directory
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Verbose: 0,
		Discovery: DiscoveryConfig{
			AutoRefresh: true,
			Interval:    DefaultInterval,
			PingTimeout: DefaultPingTimeout,
		},
		ADB: ToolConfig{
			Path:     "adb",
			Encoding: DefaultEncoding,
			Timeout:  DefaultToolTimeout,
			Port:     DefaultDebugPort,
		},
		HDC: ToolConfig{
			Path:     "hdc",
			Encoding: DefaultEncoding,
			Timeout:  DefaultToolTimeout,
			Port:     DefaultDebugPort,
		},
		SSH: SSHConfig{
			User:    "root",
			Port:    DefaultSSHPort,
			Timeout: DefaultSSHTimeout,
		},
		Mirror: MirrorConfig{
			Path: "scrcpy",
		},
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}

// Load reads config.hcl from configPath. A missing file yields the defaults.
func Load(configPath string) (*Configuration, error) {
	filename := filepath.Join(configPath, ConfigFileName)
	if !ConfigExists(filename) {
		cfg := GetDefaultConfig()
		cfg.ConfigPath = configPath
		return cfg, nil
	}
	return LoadConfig(filename)
}
