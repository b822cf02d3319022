package netcode

import (
	"testing"
	"time"

	"warp-rally/netcode/internal/proto"
)

func newTestMonitor(t *testing.T) (*LatencyMonitor, *Directory, *telemetryCounters) {
	t.Helper()
	d := newSessionDirectory(t)
	d.AddPeer("host-1", "Vega")
	d.AddPeer("peer-2", "Rigel")
	counters := newTelemetryCounters()
	return NewLatencyMonitor(d, counters, pingInterval, pingEvictionAfter), d, counters
}

func TestStartRoundHonorsInterval(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	base := time.Unix(2000, 0)

	if !m.StartRound(base) {
		t.Fatalf("first round should always start")
	}
	if m.StartRound(base.Add(500 * time.Millisecond)) {
		t.Fatalf("round started again inside the interval")
	}
	if !m.StartRound(base.Add(pingInterval)) {
		t.Fatalf("round should start once the interval elapsed")
	}
}

func TestHandlePongRecordsLatency(t *testing.T) {
	m, d, _ := newTestMonitor(t)
	sentAt := time.Unix(2000, 0)

	ping := m.NewPing("peer-2", sentAt)
	if ping.Nonce == "" {
		t.Fatalf("ping must carry a nonce")
	}

	ms, ok := m.HandlePong("peer-2", proto.PongPayload{Nonce: ping.Nonce}, sentAt.Add(80*time.Millisecond))
	if !ok {
		t.Fatalf("pong with a known nonce was dropped")
	}
	if ms != 80 {
		t.Fatalf("expected 80ms round trip, got %v", ms)
	}
	if m.PendingCount() != 0 {
		t.Fatalf("answered ping should leave the pending set")
	}

	entry, _ := d.Peer("peer-2")
	if entry.LatencyMS != 80 {
		t.Fatalf("directory entry latency = %v, want 80", entry.LatencyMS)
	}
}

func TestHandlePongFromHostUpdatesSessionBadge(t *testing.T) {
	m, d, _ := newTestMonitor(t)
	sentAt := time.Unix(2000, 0)

	ping := m.NewPing("host-1", sentAt)
	if _, ok := m.HandlePong("host-1", proto.PongPayload{Nonce: ping.Nonce}, sentAt.Add(42*time.Millisecond)); !ok {
		t.Fatalf("host pong was dropped")
	}
	if got := d.Session().LatencyMS; got != 42 {
		t.Fatalf("session latency = %v, want 42", got)
	}
}

func TestHandlePongUnknownNonceIsDropped(t *testing.T) {
	m, d, _ := newTestMonitor(t)

	if _, ok := m.HandlePong("peer-2", proto.PongPayload{Nonce: "never-issued"}, time.Unix(2000, 1)); ok {
		t.Fatalf("unknown nonce must be dropped")
	}
	entry, _ := d.Peer("peer-2")
	if entry.LatencyMS != 0 {
		t.Fatalf("dropped pong must not touch latency, got %v", entry.LatencyMS)
	}
}

func TestHandlePongFromWrongPeerIsDropped(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	sentAt := time.Unix(2000, 0)

	ping := m.NewPing("peer-2", sentAt)
	if _, ok := m.HandlePong("host-1", proto.PongPayload{Nonce: ping.Nonce}, sentAt.Add(time.Millisecond)); ok {
		t.Fatalf("nonce echoed by the wrong peer must be dropped")
	}
	if m.PendingCount() != 1 {
		t.Fatalf("mismatched pong must not consume the nonce")
	}
}

func TestHandlePongClampsClockSkew(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	sentAt := time.Unix(2000, 0)

	ping := m.NewPing("peer-2", sentAt)
	ms, ok := m.HandlePong("peer-2", proto.PongPayload{Nonce: ping.Nonce}, sentAt.Add(-time.Second))
	if !ok || ms != 0 {
		t.Fatalf("skewed pong should clamp to 0ms, got %v ok=%v", ms, ok)
	}
}

func TestHandlePingEchoesNonce(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	pong := m.HandlePing(proto.PingPayload{Nonce: "n-17"})
	if pong.Nonce != "n-17" {
		t.Fatalf("pong must echo the ping nonce, got %q", pong.Nonce)
	}
}

func TestSweepEvictsOnlyStalePings(t *testing.T) {
	m, _, counters := newTestMonitor(t)
	base := time.Unix(2000, 0)

	m.NewPing("host-1", base)
	m.NewPing("peer-2", base)
	m.NewPing("peer-2", base.Add(5*time.Second))

	if evicted := m.Sweep(base.Add(pingEvictionAfter)); evicted != 2 {
		t.Fatalf("expected 2 evictions, got %d", evicted)
	}
	if m.PendingCount() != 1 {
		t.Fatalf("fresh ping must survive the sweep, pending=%d", m.PendingCount())
	}
	if got := counters.Snapshot().PingEvictions; got != 2 {
		t.Fatalf("telemetry recorded %d evictions, want 2", got)
	}
}

func TestForgetDropsPingsForDepartedPeer(t *testing.T) {
	m, _, counters := newTestMonitor(t)
	base := time.Unix(2000, 0)

	m.NewPing("peer-2", base)
	m.NewPing("peer-2", base.Add(time.Millisecond))
	m.NewPing("host-1", base)

	if removed := m.Forget("peer-2"); removed != 2 {
		t.Fatalf("expected 2 pings forgotten, got %d", removed)
	}
	if m.PendingCount() != 1 {
		t.Fatalf("unrelated ping must remain pending")
	}
	if got := counters.Snapshot().PingEvictions; got != 0 {
		t.Fatalf("forgetting a peer must not count as eviction, got %d", got)
	}
}
