package netcode

import (
	"time"

	"warp-rally/netcode/internal/proto"
)

// SessionInfo is the directory's record of the session itself. Read by the
// lobby and HUD; written only through Directory mutations.
type SessionInfo struct {
	Code      string
	HostID    string
	LocalID   string
	LocalName string
	Connected bool
	LatencyMS float64
}

// PeerEntry is the last-known record of one session member. State mirrors
// whatever the most recent full or delta broadcast carried; LastUpdate backs
// staleness and interpolation decisions.
type PeerEntry struct {
	ID         string
	Name       string
	IsHost     bool
	Connected  bool
	LatencyMS  float64
	State      proto.PlayerState
	LastUpdate time.Time
}

// Stale reports whether no state has arrived for this peer within the
// staleness window.
func (e PeerEntry) Stale(now time.Time) bool {
	if e.LastUpdate.IsZero() {
		return false
	}
	return now.Sub(e.LastUpdate) > staleAfter
}

// PlayerStateUpdate merges a reduced set of fields into a mirrored player
// state. Nil fields are left untouched, so a delta carrying only transforms
// never clobbers health or race standing.
type PlayerStateUpdate struct {
	Position    *proto.Vec3
	Orientation *proto.Quat
	Velocity    *proto.Vec3
	Speed       *float64
	Boosting    *bool
	Health      *float64
	Ammo        *int
	Rank        *int
	FinishTime  *float64
	Respawning  *bool
}

func (u PlayerStateUpdate) applyTo(state *proto.PlayerState) {
	if u.Position != nil {
		state.Position = *u.Position
	}
	if u.Orientation != nil {
		state.Orientation = *u.Orientation
	}
	if u.Velocity != nil {
		state.Velocity = *u.Velocity
	}
	if u.Speed != nil {
		state.Speed = *u.Speed
	}
	if u.Boosting != nil {
		state.Boosting = *u.Boosting
	}
	if u.Health != nil {
		state.Health = *u.Health
	}
	if u.Ammo != nil {
		state.Ammo = *u.Ammo
	}
	if u.Rank != nil {
		state.Rank = *u.Rank
	}
	if u.FinishTime != nil {
		t := *u.FinishTime
		state.FinishTime = &t
	}
	if u.Respawning != nil {
		state.Respawning = *u.Respawning
	}
}

// transformUpdate converts a wire transform into the merge form.
func transformUpdate(t proto.PlayerTransform) PlayerStateUpdate {
	pos, orient, vel := t.Position, t.Orientation, t.Velocity
	speed, boosting := t.Speed, t.Boosting
	return PlayerStateUpdate{
		Position:    &pos,
		Orientation: &orient,
		Velocity:    &vel,
		Speed:       &speed,
		Boosting:    &boosting,
	}
}
