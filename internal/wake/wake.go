// Package wake notices when the machine resumes from sleep so the device
// list can be refreshed. USB devices re-enumerate and network connections
// drop across a suspend.
package wake

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGrace is how long after a wake the callback waits for USB and
// Wi-Fi to settle
const DefaultGrace = 3 * time.Second

// Monitor tracks sleep state and calls onWake once the grace period after a
// resume has passed
type Monitor struct {
	mu       sync.Mutex
	sleeping bool
	wakeTime time.Time
	grace    time.Duration
	timer    *time.Timer
	logger   *slog.Logger
	onWake   func()
}

// NewMonitor creates a Monitor. grace <= 0 uses DefaultGrace.
func NewMonitor(logger *slog.Logger, grace time.Duration, onWake func()) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Monitor{grace: grace, logger: logger, onWake: onWake}
}

// IsSleeping returns true if the system is currently marked as sleeping
func (m *Monitor) IsSleeping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sleeping
}

// LastWake returns when the system last resumed, zero if never
func (m *Monitor) LastWake() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wakeTime
}

func (m *Monitor) markSleep() {
	m.mu.Lock()
	m.sleeping = true
	// Going back to sleep before the grace period ended
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	m.logger.Info("System entering sleep")
}

func (m *Monitor) markWake() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sleeping {
		return
	}
	m.sleeping = false
	m.wakeTime = time.Now()
	m.logger.Info("System waking up", "refresh_in", m.grace)

	if m.onWake != nil {
		m.timer = time.AfterFunc(m.grace, m.onWake)
	}
}

// stop cancels a pending wake callback
func (m *Monitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}
