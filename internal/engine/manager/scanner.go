package manager

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// scan periodically flushes idle and oversized flows and refreshes the
// pipeline gauges.
func (m *Manager) scan(s *session) {
	defer close(s.scannerDone)
	ticker := time.NewTicker(m.cfg.Flow.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.scanOnce(s)
		case <-s.done:
			log.Debug("Expiry scanner stopped")
			return
		}
	}
}

func (m *Manager) scanOnce(s *session) {
	keys := s.table.SnapshotIdleOrOversized(m.now(s), m.cfg.Flow.IdleTimeout, m.cfg.Flow.PacketThreshold)
	if len(keys) > 0 {
		m.flush(s, keys, "expired")
	}
	m.metrics.FlowsActive.Set(float64(s.table.Size()))
	m.metrics.QueueDepth.Set(float64(s.queue.Len()))
}
