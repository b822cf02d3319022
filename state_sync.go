package netcode

import (
	"context"
	"time"

	"warp-rally/netcode/internal/proto"
	"warp-rally/netcode/logging"
	lognet "warp-rally/netcode/logging/network"
)

// ReceivedState pairs an applied authoritative snapshot with its arrival
// time. The renderer reads the recent window to interpolate remote motion
// between broadcasts.
type ReceivedState struct {
	At    time.Time
	State proto.FullStatePayload
}

// StateSync owns the continuous state stream: it builds the host's outbound
// snapshots and applies inbound ones to the directory. All methods run on
// the controller's tick goroutine.
type StateSync struct {
	directory *Directory
	world     LocalSim
	counters  *telemetryCounters
	pub       logging.Publisher
	tick      func() uint64
	blend     float64

	// lastInput holds the per-sender input high-water mark; inputs at or
	// below it are stale and dropped.
	lastInput map[string]uint64

	recent     [snapshotRingSize]ReceivedState
	recentNext int
	recentLen  int

	dirty bool
}

func NewStateSync(directory *Directory, world LocalSim, counters *telemetryCounters, pub logging.Publisher, tick func() uint64, blend float64) *StateSync {
	if tick == nil {
		tick = func() uint64 { return 0 }
	}
	return &StateSync{
		directory: directory,
		world:     world,
		counters:  counters,
		pub:       pub,
		tick:      tick,
		blend:     blend,
		lastInput: make(map[string]uint64),
	}
}

// BuildFullState assembles the host's self-healing snapshot: the local
// simulation's view of itself, AI, projectiles and race, plus the directory
// mirrors the host maintains for every remote ship.
func (s *StateSync) BuildFullState() proto.FullStatePayload {
	localID := s.directory.LocalID()
	session := s.directory.Session()

	local := s.world.LocalPlayerState()
	if local.ID == "" {
		local.ID = localID
	}
	if local.Name == "" {
		local.Name = session.LocalName
	}

	players := []proto.PlayerState{local}
	for _, peer := range s.directory.Peers() {
		if peer.ID == localID {
			continue
		}
		state := peer.State
		state.ID = peer.ID
		if state.Name == "" {
			state.Name = peer.Name
		}
		players = append(players, state)
	}

	return proto.FullStatePayload{
		Players:     players,
		AIShips:     s.world.AIStates(),
		Projectiles: s.world.ProjectileStates(),
		Race:        s.world.RaceStatus(),
	}
}

// BuildDelta assembles the reduced per-frame broadcast: the local transform
// plus live AI transforms. It is not a diff; the full state remains the
// healing mechanism for anything a delta misses.
func (s *StateSync) BuildDelta() proto.DeltaStatePayload {
	local := s.world.LocalPlayerState()
	transform := proto.PlayerTransform{
		ID:          local.ID,
		Position:    local.Position,
		Orientation: local.Orientation,
		Velocity:    local.Velocity,
		Speed:       local.Speed,
		Boosting:    local.Boosting,
	}
	if transform.ID == "" {
		transform.ID = s.directory.LocalID()
	}

	delta := proto.DeltaStatePayload{Player: &transform}
	for _, ship := range s.world.AIStates() {
		if ship.Destroyed {
			continue
		}
		delta.AIShips = append(delta.AIShips, proto.AITransform{
			ID:          ship.ID,
			Position:    ship.Position,
			Orientation: ship.Orientation,
		})
	}
	return delta
}

// ApplyFullState overwrites the directory from an authoritative snapshot.
// The race status lands unconditionally; every remote player entry replaces
// its mirror (creating it when the join notification was lost); the local
// player entry blends into the prediction instead of snapping. The host
// never applies inbound state, and neither does anyone else unless it came
// from the member holding the host role.
func (s *StateSync) ApplyFullState(senderID string, payload proto.FullStatePayload, now time.Time) bool {
	if s.directory.IsLocalHost() || !s.fromHost(senderID) {
		return false
	}

	s.directory.SetRace(payload.Race)

	localID := s.directory.LocalID()
	for _, player := range payload.Players {
		if player.ID == localID {
			s.world.ReconcileLocalPlayer(player, s.blend)
			continue
		}
		s.directory.SetPeerState(player.ID, player)
	}

	s.directory.SetAIStates(payload.AIShips)
	s.directory.SetProjectiles(payload.Projectiles)

	s.recent[s.recentNext] = ReceivedState{At: now, State: payload}
	s.recentNext = (s.recentNext + 1) % snapshotRingSize
	if s.recentLen < snapshotRingSize {
		s.recentLen++
	}

	s.counters.IncrementStatesApplied()
	return true
}

// ApplyDelta merges a reduced broadcast into the directory. Unknown player
// ids are skipped rather than upserted; a transform alone cannot seed a
// meaningful mirror, and the next full state carries the whole entry.
func (s *StateSync) ApplyDelta(senderID string, payload proto.DeltaStatePayload) bool {
	if s.directory.IsLocalHost() || !s.fromHost(senderID) {
		return false
	}

	if payload.Player != nil && payload.Player.ID != s.directory.LocalID() {
		s.directory.UpdatePeer(payload.Player.ID, transformUpdate(*payload.Player))
	}
	if len(payload.AIShips) > 0 {
		s.directory.ApplyAITransforms(payload.AIShips)
	}

	s.counters.IncrementStatesApplied()
	return true
}

// ApplyInput integrates a remote control frame into the sender's directory
// mirror. Host role only: the host is the final arbiter of remote position
// for damage and finish detection. Sequences must strictly increase per
// sender; anything at or below the high-water mark is dropped as stale.
func (s *StateSync) ApplyInput(senderID string, payload proto.InputPayload) bool {
	if !s.directory.IsLocalHost() {
		return false
	}

	id := senderID
	if id == "" {
		id = payload.ID
	}
	if id == "" || id == s.directory.LocalID() {
		return false
	}

	if last := s.lastInput[id]; payload.Seq <= last {
		lognet.StaleInput(context.Background(), s.pub, s.tick(),
			logging.EntityRef{ID: id, Kind: logging.EntityKindPeer},
			lognet.StaleInputPayload{Seq: payload.Seq, Latest: last}, nil)
		s.counters.IncrementStaleInputs()
		return false
	}
	s.lastInput[id] = payload.Seq

	entry, ok := s.directory.Peer(id)
	if !ok {
		// Input raced ahead of the join push; register the member and let
		// the push fill in the name.
		s.directory.AddPeer(id, "")
		entry, _ = s.directory.Peer(id)
	}

	s.directory.UpdatePeer(id, integrateControls(entry.State, payload.Controls))
	s.counters.IncrementInputsApplied()
	return true
}

// MarkDirty requests an immediate full-state broadcast, used when the local
// player is promoted to host so peers converge without waiting a full
// interval.
func (s *StateSync) MarkDirty() {
	s.dirty = true
}

// TakeDirty reports and clears the pending immediate-broadcast request.
func (s *StateSync) TakeDirty() bool {
	dirty := s.dirty
	s.dirty = false
	return dirty
}

// RecentSnapshots returns the applied authoritative snapshots oldest first.
// Read it from the goroutine that drives Tick.
func (s *StateSync) RecentSnapshots() []ReceivedState {
	out := make([]ReceivedState, 0, s.recentLen)
	start := s.recentNext - s.recentLen
	for i := 0; i < s.recentLen; i++ {
		out = append(out, s.recent[((start+i)%snapshotRingSize+snapshotRingSize)%snapshotRingSize])
	}
	return out
}

// ForgetSender drops the input high-water mark for a departed member so a
// rejoining peer starts a fresh sequence.
func (s *StateSync) ForgetSender(id string) {
	delete(s.lastInput, id)
}

// Reset clears per-session synchronizer state on teardown.
func (s *StateSync) Reset() {
	s.lastInput = make(map[string]uint64)
	s.recentNext = 0
	s.recentLen = 0
	s.dirty = false
}

func (s *StateSync) fromHost(senderID string) bool {
	hostID := s.directory.HostID()
	return hostID == "" || senderID == hostID
}
