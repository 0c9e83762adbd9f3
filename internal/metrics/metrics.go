// Package metrics aggregates counters for a transfer (client side) or for
// a long-running listener (server side), and exposes them both as
// in-process snapshots (for GUI/CLI progress displays) and as Prometheus
// gauges/counters (for ops dashboards).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TransferMetrics tracks one client's view of a single transfer.
type TransferMetrics struct {
	BytesReceived    uint64
	SegmentsReceived uint64
	ChecksumFailures uint64
	Timeouts         uint64
	RetransmitRounds uint64

	StartTime time.Time
	EndTime   time.Time

	PeakSpeed float64 // bytes/second

	mu           sync.RWMutex
	speedHistory []SpeedPoint
}

// SpeedPoint is one sample in a transfer's speed history.
type SpeedPoint struct {
	Timestamp time.Time
	Speed     float64
}

// NewTransferMetrics starts a fresh set of counters.
func NewTransferMetrics() *TransferMetrics {
	return &TransferMetrics{StartTime: time.Now()}
}

func (m *TransferMetrics) AddBytesReceived(n uint64)    { atomic.AddUint64(&m.BytesReceived, n); ReceiverBytes.Add(float64(n)) }
func (m *TransferMetrics) AddSegmentReceived()          { atomic.AddUint64(&m.SegmentsReceived, 1); ReceiverSegments.Inc() }
func (m *TransferMetrics) AddChecksumFailure()          { atomic.AddUint64(&m.ChecksumFailures, 1); ReceiverChecksumFailures.Inc() }
func (m *TransferMetrics) AddTimeout()                  { atomic.AddUint64(&m.Timeouts, 1); ReceiverTimeouts.Inc() }
func (m *TransferMetrics) AddRetransmitRound()          { atomic.AddUint64(&m.RetransmitRounds, 1); ReceiverRetransmitRounds.Inc() }

// TransferSnapshot is a point-in-time, race-free copy of TransferMetrics'
// counters, for polling from a GUI ticker while a transfer is in flight.
type TransferSnapshot struct {
	BytesReceived    uint64
	SegmentsReceived uint64
	ChecksumFailures uint64
	Timeouts         uint64
	RetransmitRounds uint64
}

// Snapshot returns a race-free copy of the counters.
func (m *TransferMetrics) Snapshot() TransferSnapshot {
	return TransferSnapshot{
		BytesReceived:    atomic.LoadUint64(&m.BytesReceived),
		SegmentsReceived: atomic.LoadUint64(&m.SegmentsReceived),
		ChecksumFailures: atomic.LoadUint64(&m.ChecksumFailures),
		Timeouts:         atomic.LoadUint64(&m.Timeouts),
		RetransmitRounds: atomic.LoadUint64(&m.RetransmitRounds),
	}
}

// RecordSpeed appends an instantaneous rate sample, keeping the last 1000.
func (m *TransferMetrics) RecordSpeed(bytesPerSecond float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.speedHistory = append(m.speedHistory, SpeedPoint{Timestamp: time.Now(), Speed: bytesPerSecond})
	if len(m.speedHistory) > 1000 {
		m.speedHistory = m.speedHistory[len(m.speedHistory)-1000:]
	}
	if bytesPerSecond > m.PeakSpeed {
		m.PeakSpeed = bytesPerSecond
	}
}

// SpeedHistory returns a copy of the recorded speed samples.
func (m *TransferMetrics) SpeedHistory() []SpeedPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SpeedPoint(nil), m.speedHistory...)
}

// Finish stamps the end time.
func (m *TransferMetrics) Finish() { m.EndTime = time.Now() }

// ServerMetrics tracks a sender's lifetime counters across all clients.
type ServerMetrics struct {
	BytesSent       uint64
	SegmentsSent    uint64
	Retransmissions uint64
	RetransmitReqs  uint64
	ActiveClients   int64
}

// Snapshot returns a point-in-time copy of the counters.
func (m *ServerMetrics) Snapshot() ServerMetrics {
	return ServerMetrics{
		BytesSent:       atomic.LoadUint64(&m.BytesSent),
		SegmentsSent:    atomic.LoadUint64(&m.SegmentsSent),
		Retransmissions: atomic.LoadUint64(&m.Retransmissions),
		RetransmitReqs:  atomic.LoadUint64(&m.RetransmitReqs),
		ActiveClients:   atomic.LoadInt64(&m.ActiveClients),
	}
}

func (m *ServerMetrics) AddBytesSent(n uint64) {
	atomic.AddUint64(&m.BytesSent, n)
	SenderBytes.Add(float64(n))
}
func (m *ServerMetrics) AddSegmentSent() {
	atomic.AddUint64(&m.SegmentsSent, 1)
	SenderSegments.Inc()
}
func (m *ServerMetrics) AddRetransmission() {
	atomic.AddUint64(&m.Retransmissions, 1)
	SenderRetransmissions.Inc()
}
func (m *ServerMetrics) AddRetransmitRequest() {
	atomic.AddUint64(&m.RetransmitReqs, 1)
	SenderRetransmitRequests.Inc()
}
func (m *ServerMetrics) ClientStarted() {
	active := atomic.AddInt64(&m.ActiveClients, 1)
	SenderActiveClients.Set(float64(active))
}
func (m *ServerMetrics) ClientFinished() {
	active := atomic.AddInt64(&m.ActiveClients, -1)
	if active < 0 {
		atomic.StoreInt64(&m.ActiveClients, 0)
		active = 0
	}
	SenderActiveClients.Set(float64(active))
}
