package netcode

import (
	"sort"
	"sync"
	"time"

	"warp-rally/netcode/internal/proto"
)

// Directory is the single source of truth for who is in the session and what
// we last know about them. The controller's dispatch path is the only writer;
// the rendering layer reads copies at frame boundaries. The lock exists
// because network callbacks and the render loop run on different goroutines.
type Directory struct {
	mu    sync.RWMutex
	clock func() time.Time

	session     SessionInfo
	peers       map[string]*PeerEntry
	ai          map[int]*proto.AIState
	projectiles map[string]proto.ProjectileState
	race        proto.RaceStatus
}

// NewDirectory creates an empty directory. clock defaults to time.Now and is
// injectable for tests.
func NewDirectory(clock func() time.Time) *Directory {
	if clock == nil {
		clock = time.Now
	}
	return &Directory{
		clock:       clock,
		peers:       make(map[string]*PeerEntry),
		ai:          make(map[int]*proto.AIState),
		projectiles: make(map[string]proto.ProjectileState),
	}
}

// BeginSession initializes the directory for a fresh session and registers
// the local player as its first member.
func (d *Directory) BeginSession(code, localID, localName, hostID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.resetLocked()
	d.session = SessionInfo{
		Code:      code,
		HostID:    hostID,
		LocalID:   localID,
		LocalName: localName,
		Connected: true,
	}
	d.peers[localID] = &PeerEntry{
		ID:        localID,
		Name:      localName,
		IsHost:    hostID == localID,
		Connected: true,
	}
	d.race = proto.RaceStatus{Phase: proto.PhaseLobby}
}

// Session returns a copy of the session record.
func (d *Directory) Session() SessionInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session
}

// LocalID reports the rendezvous-assigned identity of the local player.
func (d *Directory) LocalID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session.LocalID
}

// HostID reports which member currently holds the host role.
func (d *Directory) HostID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session.HostID
}

// IsLocalHost reports whether the local player holds the host role.
func (d *Directory) IsLocalHost() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.session.LocalID != "" && d.session.LocalID == d.session.HostID
}

// SetConnected flips the session-level connectivity flag.
func (d *Directory) SetConnected(connected bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session.Connected = connected
}

// AddPeer registers a member on a join notification. Re-adding an existing
// id only refreshes the display name.
func (d *Directory) AddPeer(id, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if entry, ok := d.peers[id]; ok {
		if name != "" {
			entry.Name = name
		}
		return
	}
	d.peers[id] = &PeerEntry{
		ID:        id,
		Name:      name,
		IsHost:    d.session.HostID == id,
		Connected: true,
	}
}

// RemovePeer drops a member on a leave notification.
func (d *Directory) RemovePeer(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.peers, id)
}

// Peer returns a copy of one member's record.
func (d *Directory) Peer(id string) (PeerEntry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.peers[id]
	if !ok {
		return PeerEntry{}, false
	}
	return *entry, true
}

// Peers returns copies of every member record, sorted by id so callers
// iterate deterministically.
func (d *Directory) Peers() []PeerEntry {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.peersLocked()
}

func (d *Directory) peersLocked() []PeerEntry {
	entries := make([]PeerEntry, 0, len(d.peers))
	for _, entry := range d.peers {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// UpdatePeer merges the present fields into a member's mirror and stamps the
// update time. Unknown ids are reported back so the caller can decide
// whether that warrants a warning; the next full state heals the roster.
func (d *Directory) UpdatePeer(id string, update PlayerStateUpdate) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.peers[id]
	if !ok {
		return false
	}
	update.applyTo(&entry.State)
	entry.LastUpdate = d.clock()
	return true
}

// SetPeerState overwrites a member's mirror wholesale. Members missing from
// the directory are created: a full state may name a player whose join
// notification was lost, and the snapshot is authoritative.
func (d *Directory) SetPeerState(id string, state proto.PlayerState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.peers[id]
	if !ok {
		entry = &PeerEntry{
			ID:        id,
			IsHost:    d.session.HostID == id,
			Connected: true,
		}
		d.peers[id] = entry
	}
	if state.Name != "" {
		entry.Name = state.Name
	}
	entry.State = state
	entry.LastUpdate = d.clock()
}

// SetHost moves the host role to the named member. Exactly one member holds
// the role afterward regardless of prior state.
func (d *Directory) SetHost(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.session.HostID = id
	for _, entry := range d.peers {
		entry.IsHost = entry.ID == id
	}
}

// SetPeerConnected updates a member's connection status.
func (d *Directory) SetPeerConnected(id string, connected bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.peers[id]
	if !ok {
		return false
	}
	entry.Connected = connected
	return true
}

// UpdateLatency records a fresh round-trip estimate for a member. The
// session-level latency tracks the host link, which is what the HUD badge
// shows.
func (d *Directory) UpdateLatency(id string, ms float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.peers[id]
	if !ok {
		return false
	}
	entry.LatencyMS = ms
	if id == d.session.HostID {
		d.session.LatencyMS = ms
	}
	return true
}

// SetPeerHealth overwrites a member's mirrored health fact.
func (d *Directory) SetPeerHealth(id string, health float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.peers[id]
	if !ok {
		return false
	}
	entry.State.Health = health
	entry.LastUpdate = d.clock()
	return true
}

// SetRace overwrites the shared race clock and phase.
func (d *Directory) SetRace(race proto.RaceStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.race = race
}

// Race returns the shared race status.
func (d *Directory) Race() proto.RaceStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.race
}

// SetAIStates replaces the AI mirror set wholesale. The host's simulation is
// the sole writer of AI truth; this mirror only ever reflects it.
func (d *Directory) SetAIStates(states []proto.AIState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ai = make(map[int]*proto.AIState, len(states))
	for _, state := range states {
		copied := state
		d.ai[state.ID] = &copied
	}
}

// ApplyAITransforms merges delta transforms into existing AI mirrors.
// Unknown ids are skipped; the next full state carries the whole entry.
func (d *Directory) ApplyAITransforms(transforms []proto.AITransform) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range transforms {
		entry, ok := d.ai[t.ID]
		if !ok {
			continue
		}
		entry.Position = t.Position
		entry.Orientation = t.Orientation
	}
}

// AIShip returns a copy of one AI mirror.
func (d *Directory) AIShip(id int) (proto.AIState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entry, ok := d.ai[id]
	if !ok {
		return proto.AIState{}, false
	}
	return *entry, true
}

// AIShips returns copies of every AI mirror, sorted by id.
func (d *Directory) AIShips() []proto.AIState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ships := make([]proto.AIState, 0, len(d.ai))
	for _, entry := range d.ai {
		ships = append(ships, *entry)
	}
	sort.Slice(ships, func(i, j int) bool { return ships[i].ID < ships[j].ID })
	return ships
}

// SetAIHealth overwrites one AI mirror's health fact.
func (d *Directory) SetAIHealth(id int, health float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.ai[id]
	if !ok {
		return false
	}
	entry.Health = health
	if health > 0 {
		entry.Destroyed = false
	}
	return true
}

// MarkAIDestroyed zeroes an AI mirror's health and flags it destroyed.
// Applying it twice leaves the same state, so replayed destroy facts are
// harmless.
func (d *Directory) MarkAIDestroyed(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.ai[id]
	if !ok {
		return false
	}
	entry.Health = 0
	entry.Destroyed = true
	return true
}

// RespawnAI brings a destroyed AI mirror back at a position.
func (d *Directory) RespawnAI(id int, position proto.Vec3, health float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.ai[id]
	if !ok {
		return false
	}
	entry.Position = position
	entry.Health = health
	entry.Destroyed = false
	return true
}

// SetProjectiles replaces the projectile mirror set wholesale.
func (d *Directory) SetProjectiles(projectiles []proto.ProjectileState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.projectiles = make(map[string]proto.ProjectileState, len(projectiles))
	for _, p := range projectiles {
		d.projectiles[p.ID] = p
	}
}

// AddProjectile records one fired projectile for peer-side visuals.
func (d *Directory) AddProjectile(p proto.ProjectileState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.projectiles[p.ID] = p
}

// RemoveProjectile drops a projectile mirror after an impact.
func (d *Directory) RemoveProjectile(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.projectiles[id]; !ok {
		return false
	}
	delete(d.projectiles, id)
	return true
}

// Projectiles returns copies of the projectile mirrors, sorted by id.
func (d *Directory) Projectiles() []proto.ProjectileState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	projectiles := make([]proto.ProjectileState, 0, len(d.projectiles))
	for _, p := range d.projectiles {
		projectiles = append(projectiles, p)
	}
	sort.Slice(projectiles, func(i, j int) bool { return projectiles[i].ID < projectiles[j].ID })
	return projectiles
}

// Reset clears all session state. Used on leave and teardown.
func (d *Directory) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Directory) resetLocked() {
	d.session = SessionInfo{}
	d.peers = make(map[string]*PeerEntry)
	d.ai = make(map[int]*proto.AIState)
	d.projectiles = make(map[string]proto.ProjectileState)
	d.race = proto.RaceStatus{}
}
