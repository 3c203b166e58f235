package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/db"
	"go.olrik.dev/devhub/internal/device"
)

func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.Level(99)})))
	t.Cleanup(func() { slog.SetDefault(old) })
}

func testConfig(t *testing.T) *core.Configuration {
	t.Helper()
	cfg := core.GetDefaultConfig()
	cfg.ConfigPath = t.TempDir()
	cfg.Discovery.AutoRefresh = false
	return cfg
}

// fakeKeyring resolves every user without a configured password to
// "from-keyring"
func fakeKeyring(user, configured string) string {
	if configured != "" {
		return configured
	}
	return "from-keyring"
}

func newTestApp(t *testing.T, cfg *core.Configuration) *App {
	t.Helper()
	quietLogger(t)
	store, err := db.Open(filepath.Join(cfg.ConfigPath, core.DBFileName))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	a := newApp(cfg, nil, store, fakeKeyring)
	t.Cleanup(func() { a.Shutdown(false) })
	return a
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, core.ConfigFileName), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestNewOpensStore(t *testing.T) {
	quietLogger(t)
	cfg := testConfig(t)
	cfg.SSH.Password = "configured"

	a, err := New(cfg, NewLogBroadcaster(10))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.Shutdown(false)

	if _, err := os.Stat(filepath.Join(cfg.ConfigPath, core.DBFileName)); err != nil {
		t.Errorf("Expected store file to exist: %v", err)
	}
	if a.Logs() == nil {
		t.Error("Expected log broadcaster to be kept")
	}
	if got := a.Credentials().Password; got != "configured" {
		t.Errorf("Expected configured password, got %q", got)
	}
}

func TestCredentialsFallBackToKeyring(t *testing.T) {
	cfg := testConfig(t)
	cfg.SSH.User = "shell"
	cfg.SSH.KeyFiles = []string{"/keys/id_ed25519"}
	a := newTestApp(t, cfg)

	creds := a.Credentials()
	if creds.User != "shell" {
		t.Errorf("Expected user 'shell', got %q", creds.User)
	}
	if creds.Password != "from-keyring" {
		t.Errorf("Expected keyring password, got %q", creds.Password)
	}
	if len(creds.KeyFiles) != 1 || creds.KeyFiles[0] != "/keys/id_ed25519" {
		t.Errorf("Unexpected key files %v", creds.KeyFiles)
	}
}

func TestApplyConfigPushesSettings(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	if a.Manager().AutoRefresh().Get() {
		t.Fatal("Expected auto refresh to start off")
	}

	next := testConfig(t)
	next.ConfigPath = cfg.ConfigPath
	next.Discovery.AutoRefresh = true
	next.SSH.User = "admin"
	a.ApplyConfig(next)

	if !a.Manager().AutoRefresh().Get() {
		t.Error("Expected auto refresh to be pushed into the manager")
	}
	if a.Config() != next {
		t.Error("Expected new configuration to be active")
	}
	if a.Credentials().User != "admin" {
		t.Errorf("Expected credentials for 'admin', got %q", a.Credentials().User)
	}
}

func TestReloadConfigKeepsPreviousOnError(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	writeConfig(t, cfg.ConfigPath, "discovery {\n  interval = \"soon\"\n}\n")
	if err := a.reloadConfig(); err == nil {
		t.Fatal("Expected reload of an invalid config to fail")
	}
	if a.Config() != cfg {
		t.Error("Expected previous configuration to stay active")
	}
}

func TestReloadConfigApplies(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	writeConfig(t, cfg.ConfigPath, "ssh {\n  user = \"shell\"\n}\ndiscovery {\n  auto_refresh = false\n}\n")
	if err := a.reloadConfig(); err != nil {
		t.Fatalf("reloadConfig() error: %v", err)
	}
	if a.Config().SSH.User != "shell" {
		t.Errorf("Expected reloaded ssh user 'shell', got %q", a.Config().SSH.User)
	}
	if a.Credentials().User != "shell" {
		t.Errorf("Expected credentials to follow the reload, got %q", a.Credentials().User)
	}
}

func TestDefaultPort(t *testing.T) {
	cfg := testConfig(t)
	cfg.ADB.Port = 5555
	cfg.HDC.Port = 8710
	a := newTestApp(t, cfg)

	if got := a.DefaultPort(device.Android); got != 5555 {
		t.Errorf("Expected android port 5555, got %d", got)
	}
	if got := a.DefaultPort(device.OpenHarmony); got != 8710 {
		t.Errorf("Expected harmony port 8710, got %d", got)
	}
}

func TestRunReturnsWhenContextDone(t *testing.T) {
	cfg := testConfig(t)
	writeConfig(t, cfg.ConfigPath, "discovery {\n  auto_refresh = false\n}\n")
	a := newTestApp(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context was cancelled")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	a := newTestApp(t, cfg)

	start := time.Now()
	a.Shutdown(true)
	a.Shutdown(true)
	if time.Since(start) >= shutdownTimeout {
		t.Error("Expected graceful shutdown to finish before the forced deadline")
	}
	if len(a.Mirrors().Active()) != 0 {
		t.Error("Expected no active mirroring sessions")
	}
}
