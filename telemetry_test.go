package netcode

import (
	"testing"
	"time"
)

func TestRecordBroadcastClampsNegatives(t *testing.T) {
	counters := newTelemetryCounters()
	counters.RecordBroadcast(-10, -3)

	snapshot := counters.Snapshot()
	if snapshot.EnvelopesSent != 0 || snapshot.BytesSent != 0 {
		t.Fatalf("negative inputs must clamp to zero, got %+v", snapshot)
	}
}

func TestRecordBroadcastAccountsPerRecipient(t *testing.T) {
	counters := newTelemetryCounters()
	counters.RecordBroadcast(100, 3)
	counters.RecordBroadcast(50, 1)

	snapshot := counters.Snapshot()
	if snapshot.EnvelopesSent != 4 {
		t.Fatalf("expected 4 envelopes, got %d", snapshot.EnvelopesSent)
	}
	if snapshot.BytesSent != 350 {
		t.Fatalf("expected 350 bytes, got %d", snapshot.BytesSent)
	}
	if snapshot.LastBroadcastSize != 50 {
		t.Fatalf("expected last broadcast 50 bytes, got %d", snapshot.LastBroadcastSize)
	}
}

func TestSnapshotReflectsIncrements(t *testing.T) {
	counters := newTelemetryCounters()
	counters.IncrementFullStates()
	counters.IncrementDeltaStates()
	counters.IncrementDeltaStates()
	counters.IncrementStaleInputs()
	counters.IncrementPingEvicted()
	counters.RecordReceive()
	counters.RecordTickDuration(7 * time.Millisecond)

	snapshot := counters.Snapshot()
	if snapshot.FullStatesSent != 1 {
		t.Fatalf("expected 1 full state, got %d", snapshot.FullStatesSent)
	}
	if snapshot.DeltaStatesSent != 2 {
		t.Fatalf("expected 2 delta states, got %d", snapshot.DeltaStatesSent)
	}
	if snapshot.StaleInputs != 1 || snapshot.PingEvictions != 1 {
		t.Fatalf("unexpected drop counters %+v", snapshot)
	}
	if snapshot.EnvelopesReceived != 1 {
		t.Fatalf("expected 1 received, got %d", snapshot.EnvelopesReceived)
	}
	if snapshot.TickDurationMs != 7 {
		t.Fatalf("expected tick duration 7ms, got %d", snapshot.TickDurationMs)
	}
}

func TestRecordTickDurationClampsNegative(t *testing.T) {
	counters := newTelemetryCounters()
	counters.RecordTickDuration(-5 * time.Millisecond)
	if got := counters.Snapshot().TickDurationMs; got != 0 {
		t.Fatalf("negative duration must clamp to zero, got %d", got)
	}
}
