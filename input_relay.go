package netcode

import (
	"time"

	"warp-rally/netcode/internal/proto"
)

// InputRelay turns captured control state into wire-ready, replayable input
// records. Peer role only: the host reads local controls directly and never
// relays input over the wire.
//
// Records live in a ring sized for about one second of history at the
// capture rate; slots are addressed seq % capacity and validate the stored
// sequence on lookup, so an overwritten slot reads as a miss rather than a
// stale record. The relay is confined to the controller's tick goroutine and
// needs no lock.
type InputRelay struct {
	localID string
	clock   func() time.Time

	ring           []proto.InputPayload
	next           uint64
	evictedThrough uint64

	// isHost reports the local role at send time, so a mid-race host
	// migration silences the relay without reconstructing it.
	isHost   func() bool
	transmit func(proto.InputPayload) bool
}

// NewInputRelay builds a relay for the local player. isHost and transmit may
// be nil, which silences Send; the controller wires both.
func NewInputRelay(localID string, capacity int, clock func() time.Time, isHost func() bool, transmit func(proto.InputPayload) bool) *InputRelay {
	if capacity <= 0 {
		capacity = inputRingCapacity
	}
	if clock == nil {
		clock = time.Now
	}
	return &InputRelay{
		localID:  localID,
		clock:    clock,
		ring:     make([]proto.InputPayload, capacity),
		next:     1,
		isHost:   isHost,
		transmit: transmit,
	}
}

// Capture stamps the controls with the current time and the next sequence
// number, stores the record for reconciliation, and returns it. Sequence
// numbers are strictly increasing for the lifetime of the relay, even after
// the ring evicts old records.
func (r *InputRelay) Capture(controls proto.ControlState) proto.InputPayload {
	seq := r.next
	r.next++

	input := proto.InputPayload{
		ID:        r.localID,
		Seq:       seq,
		Timestamp: float64(r.clock().UnixNano()) / float64(time.Millisecond),
		Controls:  controls,
	}
	r.ring[seq%uint64(len(r.ring))] = input
	return input
}

// Send forwards an input record to the host. A no-op when the local peer
// holds the host role. Reports whether the record was handed to the
// transport.
func (r *InputRelay) Send(input proto.InputPayload) bool {
	if r.isHost != nil && r.isHost() {
		return false
	}
	if r.transmit == nil {
		return false
	}
	return r.transmit(input)
}

// Lookup retrieves a stored record by sequence number. Misses when the slot
// was overwritten or the record was evicted.
func (r *InputRelay) Lookup(seq uint64) (proto.InputPayload, bool) {
	if seq == 0 || seq <= r.evictedThrough || seq >= r.next {
		return proto.InputPayload{}, false
	}
	record := r.ring[seq%uint64(len(r.ring))]
	if record.Seq != seq {
		return proto.InputPayload{}, false
	}
	return record, true
}

// EvictUpTo drops acknowledged history at and below seq.
func (r *InputRelay) EvictUpTo(seq uint64) {
	if seq > r.evictedThrough {
		r.evictedThrough = seq
	}
}

// PendingAfter returns the retained records with sequence numbers above seq,
// in ascending order. Used to replay unacknowledged inputs after an
// authoritative correction.
func (r *InputRelay) PendingAfter(seq uint64) []proto.InputPayload {
	if seq < r.evictedThrough {
		seq = r.evictedThrough
	}
	var pending []proto.InputPayload
	for s := seq + 1; s < r.next; s++ {
		if record, ok := r.Lookup(s); ok {
			pending = append(pending, record)
		}
	}
	return pending
}

// LastSeq reports the most recently assigned sequence number, zero when
// nothing was captured yet.
func (r *InputRelay) LastSeq() uint64 {
	return r.next - 1
}
