package netcode

import (
	"time"

	"github.com/google/uuid"

	"warp-rally/netcode/internal/proto"
)

// LatencyMonitor measures per-peer round-trip time with nonce-correlated
// ping/pong exchanges. It runs on the controller's tick goroutine only, so
// it keeps no lock; every method takes the tick's clock reading.
type LatencyMonitor struct {
	directory *Directory
	counters  *telemetryCounters
	interval  time.Duration
	eviction  time.Duration

	pending   map[string]pendingPing
	lastRound time.Time
}

type pendingPing struct {
	target string
	sentAt time.Time
}

func NewLatencyMonitor(directory *Directory, counters *telemetryCounters, interval, eviction time.Duration) *LatencyMonitor {
	return &LatencyMonitor{
		directory: directory,
		counters:  counters,
		interval:  interval,
		eviction:  eviction,
		pending:   make(map[string]pendingPing),
	}
}

// StartRound reports whether a new ping round is due and, when it is, stamps
// the round so the next one waits a full interval. The first call always
// starts a round.
func (m *LatencyMonitor) StartRound(now time.Time) bool {
	if !m.lastRound.IsZero() && now.Sub(m.lastRound) < m.interval {
		return false
	}
	m.lastRound = now
	return true
}

// NewPing registers a fresh nonce for target and returns the payload to send.
func (m *LatencyMonitor) NewPing(target string, now time.Time) proto.PingPayload {
	nonce := uuid.NewString()
	m.pending[nonce] = pendingPing{target: target, sentAt: now}
	return proto.PingPayload{Nonce: nonce}
}

// HandlePing builds the echo for an inbound ping. Pongs travel point-to-point
// back to the sender, never broadcast.
func (m *LatencyMonitor) HandlePing(payload proto.PingPayload) proto.PongPayload {
	return proto.PongPayload{Nonce: payload.Nonce}
}

// HandlePong resolves an echoed nonce into a round-trip measurement and
// records it against the sender's directory entry. Unknown nonces, and
// nonces echoed by a peer other than the one pinged, are dropped.
func (m *LatencyMonitor) HandlePong(senderID string, payload proto.PongPayload, now time.Time) (float64, bool) {
	entry, ok := m.pending[payload.Nonce]
	if !ok || entry.target != senderID {
		return 0, false
	}
	delete(m.pending, payload.Nonce)
	ms := float64(now.Sub(entry.sentAt)) / float64(time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	m.directory.UpdateLatency(senderID, ms)
	return ms, true
}

// Sweep drops pending pings that have gone unanswered past the eviction
// window and returns how many were evicted.
func (m *LatencyMonitor) Sweep(now time.Time) int {
	evicted := 0
	for nonce, entry := range m.pending {
		if now.Sub(entry.sentAt) < m.eviction {
			continue
		}
		delete(m.pending, nonce)
		m.counters.IncrementPingEvicted()
		evicted++
	}
	return evicted
}

// Forget clears pending pings aimed at a departed peer so they are not
// reported as evictions later.
func (m *LatencyMonitor) Forget(target string) int {
	removed := 0
	for nonce, entry := range m.pending {
		if entry.target != target {
			continue
		}
		delete(m.pending, nonce)
		removed++
	}
	return removed
}

// PendingCount reports outstanding pings awaiting an echo.
func (m *LatencyMonitor) PendingCount() int {
	return len(m.pending)
}

// Reset drops all pending probes and round bookkeeping for a fresh session.
func (m *LatencyMonitor) Reset() {
	m.pending = make(map[string]pendingPing)
	m.lastRound = time.Time{}
}
