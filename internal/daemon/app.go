// Package daemon wires the device core to its configuration, store and
// background monitors, and owns process-wide logging.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.olrik.dev/devhub/internal/bridge"
	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/db"
	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/executor"
	"go.olrik.dev/devhub/internal/keyring"
	"go.olrik.dev/devhub/internal/manager"
	"go.olrik.dev/devhub/internal/mirror"
	"go.olrik.dev/devhub/internal/netcheck"
	"go.olrik.dev/devhub/internal/platform"
	"go.olrik.dev/devhub/internal/repair"
	"go.olrik.dev/devhub/internal/wake"
)

// shutdownTimeout bounds a graceful shutdown before processes are force
// destroyed
const shutdownTimeout = 5 * time.Second

// App holds every long-lived component of one devhub process
type App struct {
	logger *slog.Logger
	logs   *LogBroadcaster

	cfgMu sync.Mutex
	cfg   *core.Configuration

	store      *db.DB
	adb        *bridge.Client
	hdc        *bridge.Client
	android    *platform.Android
	harmony    *platform.Harmony
	pingExec   *executor.Executor
	mirrorExec *executor.Executor
	manager    *manager.Manager
	mirrors    *mirror.Manager

	resolvePassword func(user, configured string) string

	shutdownOnce sync.Once
}

// New builds an App from cfg. The store is opened in cfg.ConfigPath.
// logs may be nil.
func New(cfg *core.Configuration, logs *LogBroadcaster) (*App, error) {
	store, err := db.Open(filepath.Join(cfg.ConfigPath, core.DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return newApp(cfg, logs, store, keyring.ResolvePassword), nil
}

func newApp(cfg *core.Configuration, logs *LogBroadcaster, store *db.DB, resolvePassword func(user, configured string) string) *App {
	logger := slog.Default()

	adbTool := bridge.ADB(cfg.ADB)
	hdcTool := bridge.HDC(cfg.HDC)

	a := &App{
		logger:          logger,
		logs:            logs,
		cfg:             cfg,
		store:           store,
		pingExec:        executor.New(executor.Config{Name: "ping", Logger: logger}),
		mirrorExec:      executor.New(executor.Config{Name: "mirror", Logger: logger}),
		resolvePassword: resolvePassword,
	}
	a.adb = bridge.NewClient(adbTool, executor.New(executor.Config{Name: "adb", Logger: logger}), logger)
	a.hdc = bridge.NewClient(hdcTool, executor.New(executor.Config{Name: "hdc", Logger: logger}), logger)
	a.android = platform.NewAndroid(a.adb, adbTool.Executable, cfg.Mirror, logger)
	a.harmony = platform.NewHarmony(a.hdc, logger)

	a.manager = manager.New(manager.Config{
		Scanner:    platform.NewAggregator(logger, a.android, a.harmony),
		Connectors: []platform.Connector{a.android, a.harmony},
		Pinger:     netcheck.New(a.pingExec, logger),
		Repairer: repair.New(repair.Config{
			Port:       cfg.SSH.Port,
			Timeout:    cfg.SSH.Timeout,
			KnownHosts: cfg.SSH.KnownHosts,
			Logger:     logger,
		}),
		Store:       store,
		Events:      store,
		Interval:    cfg.Discovery.Interval,
		PingTimeout: cfg.Discovery.PingTimeout,
		AutoRefresh: cfg.Discovery.AutoRefresh,
		Credentials: a.credentialsFor(cfg),
		Logger:      logger,
	})
	a.mirrors = mirror.New(a.mirrorExec, logger)

	return a
}

// Manager returns the device connection manager
func (a *App) Manager() *manager.Manager {
	return a.manager
}

// Mirrors returns the mirroring session manager
func (a *App) Mirrors() *mirror.Manager {
	return a.mirrors
}

// Store returns the SQLite store
func (a *App) Store() *db.DB {
	return a.store
}

// Logs returns the log broadcaster, nil when logging is not broadcast
func (a *App) Logs() *LogBroadcaster {
	return a.logs
}

// Config returns the active configuration
func (a *App) Config() *core.Configuration {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.cfg
}

// DefaultPort returns the configured debug port for platform p
func (a *App) DefaultPort(p device.Platform) int {
	cfg := a.Config()
	if p == device.OpenHarmony {
		return cfg.HDC.Port
	}
	return cfg.ADB.Port
}

// Credentials returns the SSH credentials for the active configuration
func (a *App) Credentials() repair.Credentials {
	return a.credentialsFor(a.Config())
}

func (a *App) credentialsFor(cfg *core.Configuration) repair.Credentials {
	return repair.Credentials{
		User:     cfg.SSH.User,
		Password: a.resolvePassword(cfg.SSH.User, cfg.SSH.Password),
		KeyFiles: cfg.SSH.KeyFiles,
	}
}

// ApplyConfig makes cfg the active configuration and pushes the settings
// that can change at runtime into the manager. Tool paths, ports and the
// poll interval take effect on the next start.
func (a *App) ApplyConfig(cfg *core.Configuration) {
	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()

	a.manager.SetCredentials(a.credentialsFor(cfg))
	a.manager.SetAutoRefresh(cfg.Discovery.AutoRefresh)
}

// reloadConfig re-reads config.hcl. On a parse error the previous
// configuration stays active.
func (a *App) reloadConfig() error {
	path := a.Config().ConfigPath
	cfg, err := core.Load(path)
	if err != nil {
		a.logger.Error("Failed to reload configuration, keeping previous settings", "error", err)
		return err
	}
	a.ApplyConfig(cfg)
	return nil
}

// Device returns the device with serial from the latest list, refreshing
// once if it is not there yet
func (a *App) Device(ctx context.Context, serial string) (device.Device, error) {
	if d, ok := device.Find(a.manager.Devices().Get(), serial); ok {
		return d, nil
	}
	a.manager.Refresh(ctx)
	if d, ok := device.Find(a.manager.Devices().Get(), serial); ok {
		return d, nil
	}
	return device.Device{}, fmt.Errorf("device %s not found", serial)
}

// Run starts discovery, the config watcher and the wake monitor, and blocks
// until ctx is done or SIGINT/SIGTERM arrives. SIGHUP reloads the
// configuration. The caller shuts the App down afterwards.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.manager.Start(ctx)

	configFile := filepath.Join(a.Config().ConfigPath, core.ConfigFileName)
	if core.ConfigExists(configFile) {
		if err := watchConfig(ctx, configFile, reloadDebounce, a.logger, a.reloadConfig); err != nil {
			a.logger.Warn("Configuration hot reload disabled", "error", err)
		}
	}

	monitor := wake.NewMonitor(a.logger, wake.DefaultGrace, func() {
		a.logger.Info("System woke up, refreshing devices")
		a.manager.Refresh(ctx)
	})
	monitor.Start(ctx)

	shutdownChan := make(chan os.Signal, 1)
	hupChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	signal.Notify(hupChan, syscall.SIGHUP)
	defer signal.Stop(shutdownChan)
	defer signal.Stop(hupChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdownChan:
			a.logger.Info("Shutdown signal received")
			return
		case <-hupChan:
			a.logger.Info("SIGHUP received, reloading configuration")
			a.reloadConfig()
		}
	}
}

// Shutdown stops mirror sessions and background loops, optionally kills the
// bridge servers, destroys every spawned process and closes the store.
// After shutdownTimeout the remaining processes are destroyed without
// waiting for the graceful path. It is safe to call more than once.
func (a *App) Shutdown(killServers bool) {
	a.shutdownOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.shutdown(killServers)
		}()

		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			a.logger.Warn("Shutdown timed out, destroying remaining processes")
			a.destroyAll()
		}
	})
}

func (a *App) shutdown(killServers bool) {
	if n := a.mirrors.StopAll(); n > 0 {
		a.logger.Info("Stopped mirroring sessions", "count", n)
	}
	a.manager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	destroyed := a.adb.Shutdown(ctx, killServers) + a.hdc.Shutdown(ctx, killServers)
	destroyed += a.pingExec.DestroyAll() + a.mirrorExec.DestroyAll()
	if destroyed > 0 {
		a.logger.Info("Destroyed leftover processes", "count", destroyed)
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
}

func (a *App) destroyAll() {
	a.adb.Shutdown(context.Background(), false)
	a.hdc.Shutdown(context.Background(), false)
	a.pingExec.DestroyAll()
	a.mirrorExec.DestroyAll()
}
