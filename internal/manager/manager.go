// Package manager owns the device list and the current selection. Every
// mutating operation runs under one lock, and a background loop keeps the
// list fresh while auto-refresh is on.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"go.olrik.dev/devhub/internal/core"
	"go.olrik.dev/devhub/internal/device"
	"go.olrik.dev/devhub/internal/observable"
	"go.olrik.dev/devhub/internal/platform"
	"go.olrik.dev/devhub/internal/repair"
)

// Phase is what the manager is currently doing
type Phase int

const (
	Idle Phase = iota
	Refreshing
	Connecting
	Disconnecting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Refreshing:
		return "refreshing"
	case Connecting:
		return "connecting"
	case Disconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Collaborator stores the data the manager reads and writes outside of the
// device list
type Collaborator interface {
	Descriptions() (map[string]string, error)
	SetDescription(serial, text string) error
	RecordHistory(ip string, port int, at time.Time) error
}

// EventLogger records connection outcomes
type EventLogger interface {
	LogDeviceEvent(serial, eventType, details string) error
}

// Scanner produces one merged device list per call
type Scanner interface {
	Scan(ctx context.Context, descriptions map[string]string) []device.Device
}

// Pinger checks network reachability
type Pinger interface {
	Ping(ctx context.Context, host string, timeout time.Duration) error
}

// Repairer runs the remote repair procedure
type Repairer interface {
	Repair(ctx context.Context, host string, creds repair.Credentials, steps []repair.Step) error
}

// Config wires a Manager to its collaborators
type Config struct {
	Scanner    Scanner
	Connectors []platform.Connector
	Pinger     Pinger
	Repairer   Repairer
	Store      Collaborator
	Events     EventLogger // Optional

	Interval    time.Duration // Poll interval, core.DefaultInterval if zero
	PingTimeout time.Duration // core.DefaultPingTimeout if zero
	AutoRefresh bool
	Credentials repair.Credentials
	Logger      *slog.Logger
}

// Manager is the single writer of the device list and selection
type Manager struct {
	mu sync.Mutex

	scanner     Scanner
	connectors  map[device.Platform]platform.Connector
	pinger      Pinger
	repairer    Repairer
	store       Collaborator
	events      EventLogger
	interval    time.Duration
	pingTimeout time.Duration
	logger      *slog.Logger

	credsMu sync.Mutex
	creds   repair.Credentials

	devices     *observable.Value[[]device.Device]
	selection   *observable.Value[*device.Device]
	phase       *observable.Value[Phase]
	busy        *observable.Value[bool]
	autoRefresh *observable.Value[bool]

	now func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Manager. Call Start to begin background discovery.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = core.DefaultInterval
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = core.DefaultPingTimeout
	}

	connectors := make(map[device.Platform]platform.Connector, len(cfg.Connectors))
	for _, c := range cfg.Connectors {
		connectors[c.Platform()] = c
	}

	return &Manager{
		scanner:     cfg.Scanner,
		connectors:  connectors,
		pinger:      cfg.Pinger,
		repairer:    cfg.Repairer,
		store:       cfg.Store,
		events:      cfg.Events,
		interval:    interval,
		pingTimeout: pingTimeout,
		logger:      logger,
		creds:       cfg.Credentials,
		devices:     observable.New[[]device.Device](nil, device.Equal),
		selection:   observable.New[*device.Device](nil, sameSelection),
		phase:       observable.NewComparable(Idle),
		busy:        observable.NewComparable(false),
		autoRefresh: observable.NewComparable(cfg.AutoRefresh),
		now:         time.Now,
	}
}

func sameSelection(a, b *device.Device) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Devices is the latest merged device list
func (m *Manager) Devices() observable.Reader[[]device.Device] {
	return m.devices
}

// Selection is the selected device, nil when nothing is selected
func (m *Manager) Selection() observable.Reader[*device.Device] {
	return m.selection
}

// Busy is true while any operation holds the manager
func (m *Manager) Busy() observable.Reader[bool] {
	return m.busy
}

func (m *Manager) Phase() observable.Reader[Phase] {
	return m.phase
}

func (m *Manager) AutoRefresh() observable.Reader[bool] {
	return m.autoRefresh
}

// SetAutoRefresh turns periodic discovery on or off. Turning it on triggers
// an immediate refresh once Start has been called.
func (m *Manager) SetAutoRefresh(enabled bool) {
	m.autoRefresh.Set(enabled)
}

// SetCredentials replaces the SSH credentials used for repairs
func (m *Manager) SetCredentials(creds repair.Credentials) {
	m.credsMu.Lock()
	m.creds = creds
	m.credsMu.Unlock()
}

func (m *Manager) credentials() repair.Credentials {
	m.credsMu.Lock()
	defer m.credsMu.Unlock()
	return m.creds
}

// Start runs the poll loop and the auto-refresh watcher until ctx is done or
// Stop is called
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(2)
	go m.pollLoop(ctx)
	go m.watchAutoRefresh(ctx)
}

// Stop cancels the background goroutines and waits for them
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.autoRefresh.Get() {
				continue
			}
			// A manual operation is in flight, it refreshes on its own
			if !m.mu.TryLock() {
				m.logger.Debug("Skipping discovery poll, manager busy")
				continue
			}
			m.withPhase(Refreshing, func() { m.refreshLocked(ctx) })
			m.mu.Unlock()
		}
	}
}

// watchAutoRefresh refreshes whenever auto-refresh turns on, including at
// startup when it is already on
func (m *Manager) watchAutoRefresh(ctx context.Context) {
	defer m.wg.Done()

	ch, cancel := m.autoRefresh.Subscribe()
	defer cancel()

	enabled := false
	for {
		select {
		case <-ctx.Done():
			return
		case on := <-ch:
			if on && !enabled {
				m.Refresh(ctx)
			}
			enabled = on
		}
	}
}

// withPhase publishes phase and busy for the duration of fn. Callers hold
// m.mu.
func (m *Manager) withPhase(phase Phase, fn func()) {
	m.phase.Set(phase)
	defer m.phase.Set(Idle)
	m.withBusy(fn)
}

// withBusy raises busy for the duration of fn, leaving the phase alone.
// Callers hold m.mu.
func (m *Manager) withBusy(fn func()) {
	m.busy.Set(true)
	defer m.busy.Set(false)
	fn()
}

// Refresh rediscovers devices now
func (m *Manager) Refresh(ctx context.Context) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp Response
	m.withPhase(Refreshing, func() {
		list := m.refreshLocked(ctx)
		resp.Infof("Found %d device(s)", len(list))
		resp.AddData(list)
	})
	return resp
}

// refreshLocked scans, publishes the new list and fixes up the selection
func (m *Manager) refreshLocked(ctx context.Context) []device.Device {
	descriptions, err := m.store.Descriptions()
	if err != nil {
		m.logger.Warn("Failed to read device descriptions", "error", err)
	}

	list := m.scanner.Scan(ctx, descriptions)
	if ctx.Err() != nil {
		// Scanners give up on cancellation, keep what was published
		m.logger.Debug("Discovery cancelled, keeping device list", "error", ctx.Err())
		return m.devices.Get()
	}
	m.devices.Set(list)
	m.reselect(list)
	m.logger.Debug("Device list refreshed", "devices", len(list))
	return list
}

// reselect keeps the selected serial if it is still present, using the new
// snapshot, and otherwise falls back to the first online device
func (m *Manager) reselect(list []device.Device) {
	if prev := m.selection.Get(); prev != nil {
		if d, ok := device.Find(list, prev.Serial); ok {
			m.selection.Set(&d)
			return
		}
	}
	for _, d := range list {
		if d.IsOnline() {
			m.selection.Set(&d)
			return
		}
	}
	m.selection.Set(nil)
}

// SelectDevice makes serial the current device
func (m *Manager) SelectDevice(serial string) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp Response
	m.withBusy(func() {
		d, ok := device.Find(m.devices.Get(), serial)
		if !ok {
			resp.Warnf("Device '%s' not found", serial)
			return
		}
		m.selection.Set(&d)
		resp.Infof("Selected %s", d.Name())
	})
	return resp
}

// UpdateCurrentDescription stores text as the label of the selected device
// and republishes the list with it
func (m *Manager) UpdateCurrentDescription(text string) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp Response
	m.withBusy(func() { m.updateDescriptionLocked(&resp, text) })
	return resp
}

func (m *Manager) updateDescriptionLocked(resp *Response, text string) {
	sel := m.selection.Get()
	if sel == nil {
		resp.Warnf("No device selected")
		return
	}
	if err := m.store.SetDescription(sel.Serial, text); err != nil {
		m.logger.Error("Failed to store description", "serial", sel.Serial, "error", err)
		resp.Errorf("Failed to store description for %s: %v", sel.Serial, err)
		return
	}

	current := m.devices.Get()
	list := make([]device.Device, len(current))
	copy(list, current)
	for i := range list {
		if list[i].Serial == sel.Serial {
			list[i].Description = text
		}
	}
	m.devices.Set(list)
	m.reselect(list)

	resp.Infof("Description of %s updated", sel.Serial)
}

// Connect connects to a network device. When the bridge cannot connect, the
// debug daemon is re-enabled over SSH and the connect is tried once more.
// The device list is refreshed afterwards whatever the outcome.
func (m *Manager) Connect(ctx context.Context, p device.Platform, ip string, port int) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp Response
	m.withPhase(Connecting, func() {
		defer m.refreshLocked(ctx)
		m.connectLocked(ctx, &resp, p, ip, port)
	})
	return resp
}

func (m *Manager) connectLocked(ctx context.Context, resp *Response, p device.Platform, ip string, port int) {
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	logger := m.logger.With("platform", p, "address", addr)

	connector, ok := m.connectors[p]
	if !ok {
		resp.Errorf("No %s backend configured", p)
		return
	}

	if err := m.pinger.Ping(ctx, ip, m.pingTimeout); err != nil {
		logger.Warn("Device unreachable", "error", err)
		resp.Warnf("%s is not reachable", ip)
		m.logEvent(addr, "unreachable", err.Error())
		return
	}

	err := connector.Connect(ctx, ip, port)
	if err == nil {
		m.connected(resp, logger, ip, port, addr)
		return
	}
	logger.Warn("Direct connect failed", "error", err)
	resp.Warnf("Direct connect to %s failed: %v", addr, err)
	m.logEvent(addr, "connect_failed", err.Error())

	if err := m.repairer.Repair(ctx, ip, m.credentials(), connector.RepairSteps(port)); err != nil {
		logger.Warn("Remote repair failed", "error", err)
		resp.Warnf("Remote repair of %s failed: %v", ip, describeRepairError(err))
		m.logEvent(addr, "repair_failed", err.Error())
		return
	}
	logger.Info("Remote repair succeeded, retrying connect")
	m.logEvent(addr, "repaired", "")

	if err := connector.Connect(ctx, ip, port); err != nil {
		logger.Warn("Connect after repair failed", "error", err)
		resp.Warnf("Connect to %s failed after repair: %v", addr, err)
		m.logEvent(addr, "connect_failed", err.Error())
		return
	}
	m.connected(resp, logger, ip, port, addr)
}

func (m *Manager) connected(resp *Response, logger *slog.Logger, ip string, port int, addr string) {
	logger.Info("Connected")
	resp.Infof("Connected to %s", addr)
	if err := m.store.RecordHistory(ip, port, m.now()); err != nil {
		logger.Warn("Failed to record connection history", "error", err)
	}
	m.logEvent(addr, "connected", "")
}

func describeRepairError(err error) error {
	switch {
	case errors.Is(err, repair.ErrAuth):
		return fmt.Errorf("ssh authentication rejected")
	case errors.Is(err, repair.ErrNoAuthMethod):
		return fmt.Errorf("no ssh password or key configured")
	default:
		return err
	}
}

// Disconnect drops the network connection of serial
func (m *Manager) Disconnect(ctx context.Context, serial string) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp Response
	m.withPhase(Disconnecting, func() {
		defer m.refreshLocked(ctx)

		d, ok := device.Find(m.devices.Get(), serial)
		if !ok {
			resp.Warnf("Device '%s' not found", serial)
			return
		}
		connector, ok := m.connectors[d.Platform]
		if !ok {
			resp.Errorf("No %s backend configured", d.Platform)
			return
		}
		if err := connector.Disconnect(ctx, serial); err != nil {
			m.logger.Warn("Disconnect failed", "serial", serial, "error", err)
			resp.Warnf("Failed to disconnect %s: %v", serial, err)
			return
		}
		resp.Infof("Disconnected %s", serial)
		m.logEvent(serial, "disconnected", "")
	})
	return resp
}

// DisconnectAll drops every network connection on every backend
func (m *Manager) DisconnectAll(ctx context.Context) Response {
	m.mu.Lock()
	defer m.mu.Unlock()

	var resp Response
	m.withPhase(Disconnecting, func() {
		defer m.refreshLocked(ctx)

		for _, p := range []device.Platform{device.Android, device.OpenHarmony} {
			connector, ok := m.connectors[p]
			if !ok {
				continue
			}
			if err := connector.DisconnectAll(ctx); err != nil {
				m.logger.Warn("Disconnect all failed", "platform", p, "error", err)
				resp.Warnf("Failed to disconnect %s devices: %v", p, err)
				continue
			}
			resp.Infof("Disconnected all %s devices", p)
		}
	})
	return resp
}

func (m *Manager) logEvent(serial, eventType, details string) {
	if m.events == nil {
		return
	}
	if err := m.events.LogDeviceEvent(serial, eventType, details); err != nil {
		m.logger.Debug("Failed to log device event", "error", err)
	}
}
