//go:build !linux

package wake

import "context"

// Start is a no-op where no sleep notification source is wired up
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Debug("Wake monitor not available on this platform")
	go func() {
		<-ctx.Done()
		m.stop()
	}()
}
