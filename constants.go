package netcode

import "time"

const (
	fullStateInterval = 100 * time.Millisecond   // self-healing snapshot cadence
	deltaInterval     = 16700 * time.Microsecond // reduced broadcast, once per 60 Hz frame
	inputSendInterval = 16700 * time.Microsecond // peer input capture cadence (60 Hz)
	pingInterval      = 2 * time.Second
	pingEvictionAfter = 10 * time.Second // pending pings older than this are dropped

	inputRingCapacity = 60 // ≈1 s of input history at the capture rate
	inboxCapacity     = 256
	snapshotRingSize  = 10

	// reconcileBlend is the lerp factor pulling the predicted local position
	// toward the authoritative one. Corrections converge over a few frames
	// instead of snapping.
	reconcileBlend = 0.15

	// staleAfter marks a peer mirror stale when no state or delta has
	// arrived for several full-state intervals.
	staleAfter = 3 * fullStateInterval

	// Kinematic step applied to a sender's directory entry when the host
	// integrates an inbound input frame.
	shipThrust      = 40.0  // units per second² along facing
	shipBrakeDecel  = 60.0  // units per second² against velocity
	shipTurnRate    = 1.8   // radians per second
	shipMaxSpeed    = 120.0 // units per second
	boostMultiplier = 1.8

	defaultRendezvousURL = "http://localhost:3001"
	defaultStunServer    = "stun:stun.l.google.com:19302"
)
