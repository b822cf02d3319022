package netcode

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"warp-rally/netcode/internal/proto"
	"warp-rally/netcode/internal/signal"
	"warp-rally/netcode/internal/telemetry"
	"warp-rally/netcode/logging"
	lognet "warp-rally/netcode/logging/network"
	logsession "warp-rally/netcode/logging/session"
)

// ErrSessionActive is returned when a session operation requires a clean
// controller but one is already connected.
var ErrSessionActive = errors.New("netcode: session already active")

// peerConn is the slice of the transport surface the controller drives.
type peerConn interface {
	RemoteID() string
	Open() bool
	Initiate() (json.RawMessage, error)
	Accept(offer json.RawMessage) (json.RawMessage, error)
	Complete(answer json.RawMessage) error
	AddRemoteCandidate(candidate json.RawMessage) error
	Send(label string, data []byte) bool
	Close()
}

// signalBroker is the slice of the rendezvous client the controller drives.
type signalBroker interface {
	Dial(ctx context.Context) error
	PlayerID() string
	CreateRoom(ctx context.Context, name string) (signal.CreateRoomAck, error)
	JoinRoom(ctx context.Context, roomID, name string) (signal.JoinRoomAck, error)
	SendOffer(targetID string, body json.RawMessage) error
	SendAnswer(targetID string, body json.RawMessage) error
	SendCandidate(targetID string, body json.RawMessage) error
	LeaveRoom() error
	Close() error
}

type inboundKind int

const (
	inboundFrame inboundKind = iota
	inboundOpened
	inboundClosed
	inboundErrored
	inboundJoined
	inboundLeft
	inboundBrokerLost
)

// inboundEvent funnels everything that happens on foreign goroutines into
// the tick loop. Frames are droppable under pressure; roster and lifecycle
// events are not.
type inboundEvent struct {
	kind     inboundKind
	remoteID string
	name     string
	data     []byte
	err      error
	wasHost  bool
	newHost  string
}

// Controller coordinates one multiplayer session: it owns the signaling
// link, the per-peer transports, and the synchronizers, and multiplexes all
// inbound traffic onto a single frame-driven Tick. The embedding game calls
// Tick once per rendered frame from one goroutine; session setup and
// teardown happen off that loop and are the only blocking operations.
type Controller struct {
	cfg      ControllerConfig
	logger   telemetry.Logger
	pub      logging.Publisher
	clock    func() time.Time
	counters *telemetryCounters

	directory *Directory
	world     LocalSim
	states    *StateSync
	combat    *CombatSync
	latency   *LatencyMonitor

	// newPeer and newSignal exist so tests can stand in for the network.
	newPeer   func(remoteID string) (peerConn, error)
	newSignal func(url string, events signal.Events, logger telemetry.Logger) (signalBroker, error)

	inbox chan inboundEvent

	mu          sync.Mutex
	signal      signalBroker
	peers       map[string]peerConn
	sessionDone chan struct{}

	// Tick-confined state below; no lock needed.
	relay     *InputRelay
	controls  proto.ControlState
	tickCount uint64
	lastFull  time.Time
	lastDelta time.Time
	lastInput time.Time
}

// NewController wires a session stack around the embedding game's
// simulation. effects may be nil when no listener is wired yet.
func NewController(world LocalSim, effects EffectsListener, cfg ControllerConfig) *Controller {
	cfg = cfg.normalized()
	c := &Controller{
		cfg:         cfg,
		logger:      cfg.Logger,
		pub:         cfg.Publisher,
		clock:       cfg.Clock,
		counters:    newTelemetryCounters(),
		directory:   NewDirectory(cfg.Clock),
		world:       world,
		inbox:       make(chan inboundEvent, cfg.InboxCapacity),
		peers:       make(map[string]peerConn),
		sessionDone: make(chan struct{}),
	}
	c.states = NewStateSync(c.directory, world, c.counters, c.pub, c.currentTick, cfg.ReconcileBlend)
	c.combat = NewCombatSync(c.directory, effects, c.pub, c.currentTick)
	c.latency = NewLatencyMonitor(c.directory, c.counters, cfg.PingInterval, cfg.PingEviction)
	c.newPeer = c.dialPeer
	c.newSignal = func(url string, events signal.Events, logger telemetry.Logger) (signalBroker, error) {
		return signal.NewClient(url, events, logger)
	}
	return c
}

// Directory exposes the session roster and mirrors for the rendering layer.
func (c *Controller) Directory() *Directory {
	return c.directory
}

// TelemetrySnapshot returns the current counter values for the HUD.
func (c *Controller) TelemetrySnapshot() TelemetrySnapshot {
	return c.counters.Snapshot()
}

// RecentSnapshots exposes the applied authoritative snapshots, oldest first.
// Call it from the goroutine that drives Tick.
func (c *Controller) RecentSnapshots() []ReceivedState {
	return c.states.RecentSnapshots()
}

// SetControls records the control state the input cadence will capture.
// Call it from the goroutine that drives Tick.
func (c *Controller) SetControls(controls proto.ControlState) {
	c.controls = controls
}

func (c *Controller) currentTick() uint64 {
	return c.tickCount
}

// Tick drains the inbox and drives the send cadences. It must be called
// once per rendered frame from a single goroutine; everything downstream of
// it is confined to that goroutine.
func (c *Controller) Tick() {
	started := time.Now()
	now := c.clock()
	c.tickCount++

	c.drainInbox(now)

	if c.directory.Session().Code != "" {
		c.driveCadences(now)
	}

	c.counters.RecordTickDuration(time.Since(started))
}

func (c *Controller) drainInbox(now time.Time) {
	// Bounded per tick so a flood cannot starve the frame.
	for i := 0; i < c.cfg.InboxCapacity; i++ {
		select {
		case ev := <-c.inbox:
			c.dispatch(ev, now)
		default:
			return
		}
	}
}

func (c *Controller) dispatch(ev inboundEvent, now time.Time) {
	switch ev.kind {
	case inboundFrame:
		c.handleFrame(ev.remoteID, ev.data, now)
	case inboundOpened:
		c.directory.SetPeerConnected(ev.remoteID, true)
		c.sendTo(ev.remoteID, proto.KindJoin, proto.JoinPayload{
			ID:   c.directory.LocalID(),
			Name: c.directory.Session().LocalName,
		}, now)
	case inboundClosed:
		c.directory.SetPeerConnected(ev.remoteID, false)
		c.latency.Forget(ev.remoteID)
	case inboundErrored:
		c.logger.Printf("controller: channel error from %s: %v", ev.remoteID, ev.err)
	case inboundJoined:
		c.directory.AddPeer(ev.remoteID, ev.name)
	case inboundLeft:
		c.handleMemberLeft(ev.remoteID, ev.wasHost, ev.newHost)
	case inboundBrokerLost:
		if ev.err != nil {
			c.logger.Printf("controller: rendezvous link lost: %v", ev.err)
		}
		c.directory.SetConnected(false)
	}
}

func (c *Controller) handleFrame(remoteID string, data []byte, now time.Time) {
	env, err := proto.DecodeEnvelope(data)
	if err != nil {
		actor := logging.EntityRef{ID: remoteID, Kind: logging.EntityKindPeer}
		if errors.Is(err, proto.ErrUnknownKind) {
			c.counters.IncrementUnknownKind()
			lognet.UnknownKind(context.Background(), c.pub, c.tickCount, actor,
				lognet.UnknownKindPayload{Kind: int(env.Type)}, nil)
		} else {
			c.counters.IncrementDecodeFailed()
			lognet.DecodeFailed(context.Background(), c.pub, c.tickCount, actor,
				lognet.DecodeFailedPayload{Error: err.Error()}, nil)
		}
		return
	}
	// The receiving side stamps identity; whatever the envelope claims is
	// ignored.
	env.SenderID = remoteID
	c.counters.RecordReceive()

	switch env.Type {
	case proto.KindJoin:
		var payload proto.JoinPayload
		if c.decodeData(env, &payload) {
			c.directory.AddPeer(remoteID, payload.Name)
		}
	case proto.KindLeave:
		var payload proto.LeavePayload
		if c.decodeData(env, &payload) {
			c.directory.SetPeerConnected(remoteID, false)
		}
	case proto.KindPlayerList:
		var payload proto.PlayerListPayload
		if c.decodeData(env, &payload) && c.fromHost(remoteID) {
			for _, member := range payload.Players {
				if member.ID == c.directory.LocalID() {
					continue
				}
				c.directory.AddPeer(member.ID, member.Name)
			}
			if payload.HostID != "" {
				c.directory.SetHost(payload.HostID)
			}
		}
	case proto.KindGameStart:
		var payload proto.GameStartPayload
		if c.decodeData(env, &payload) && c.fromHost(remoteID) && !c.directory.IsLocalHost() {
			c.world.BeginCountdown(payload.Countdown, payload.AIShips)
			c.directory.SetRace(proto.RaceStatus{Phase: proto.PhaseCountdown, Countdown: payload.Countdown})
		}
	case proto.KindInput:
		var payload proto.InputPayload
		if c.decodeData(env, &payload) {
			c.states.ApplyInput(remoteID, payload)
		}
	case proto.KindFullState:
		var payload proto.FullStatePayload
		if c.decodeData(env, &payload) {
			c.states.ApplyFullState(remoteID, payload, now)
		}
	case proto.KindDeltaState:
		var payload proto.DeltaStatePayload
		if c.decodeData(env, &payload) {
			c.states.ApplyDelta(remoteID, payload)
		}
	case proto.KindProjectileFired:
		var payload proto.ProjectileFiredPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyProjectileFired(remoteID, payload)
		}
	case proto.KindProjectileImpact:
		var payload proto.ProjectileImpactPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyProjectileImpact(remoteID, payload)
		}
	case proto.KindShipDamaged:
		var payload proto.ShipDamagedPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyShipDamaged(remoteID, payload)
		}
	case proto.KindShipDestroyed:
		var payload proto.ShipDestroyedPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyShipDestroyed(remoteID, payload)
		}
	case proto.KindShipRespawn:
		var payload proto.ShipRespawnPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyShipRespawn(remoteID, payload)
		}
	case proto.KindBoosterCollected:
		var payload proto.BoosterCollectedPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyBoosterCollected(remoteID, payload)
		}
	case proto.KindPlayerFinished:
		var payload proto.PlayerFinishedPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyPlayerFinished(remoteID, payload)
		}
	case proto.KindRaceOver:
		var payload proto.RaceOverPayload
		if c.decodeData(env, &payload) {
			c.combat.ApplyRaceOver(remoteID, payload)
		}
	case proto.KindPing:
		var payload proto.PingPayload
		if c.decodeData(env, &payload) {
			c.sendTo(remoteID, proto.KindPong, c.latency.HandlePing(payload), now)
		}
	case proto.KindPong:
		var payload proto.PongPayload
		if c.decodeData(env, &payload) {
			c.latency.HandlePong(remoteID, payload, now)
		}
	}
}

func (c *Controller) decodeData(env proto.Envelope, v any) bool {
	if err := env.UnmarshalData(v); err != nil {
		c.counters.IncrementDecodeFailed()
		lognet.DecodeFailed(context.Background(), c.pub, c.tickCount,
			logging.EntityRef{ID: env.SenderID, Kind: logging.EntityKindPeer},
			lognet.DecodeFailedPayload{Kind: int(env.Type), Error: err.Error()}, nil)
		return false
	}
	return true
}

func (c *Controller) fromHost(senderID string) bool {
	hostID := c.directory.HostID()
	return hostID == "" || senderID == hostID
}

func (c *Controller) driveCadences(now time.Time) {
	if c.directory.IsLocalHost() {
		if c.states.TakeDirty() || now.Sub(c.lastFull) >= c.cfg.FullStateInterval {
			c.lastFull = now
			payload := c.states.BuildFullState()
			// The host HUD reads the same mirrors peers do, so keep them in
			// lockstep with what just went out.
			c.directory.SetRace(payload.Race)
			c.directory.SetAIStates(payload.AIShips)
			c.directory.SetProjectiles(payload.Projectiles)
			c.broadcast(proto.KindFullState, payload, now)
			c.counters.IncrementFullStates()
		}
		if now.Sub(c.lastDelta) >= c.cfg.DeltaInterval {
			c.lastDelta = now
			c.broadcast(proto.KindDeltaState, c.states.BuildDelta(), now)
			c.counters.IncrementDeltaStates()
		}
	} else if c.relay != nil && now.Sub(c.lastInput) >= c.cfg.InputInterval {
		c.lastInput = now
		c.relay.Send(c.relay.Capture(c.controls))
	}

	if c.latency.StartRound(now) {
		for _, id := range c.pingTargets() {
			c.sendTo(id, proto.KindPing, c.latency.NewPing(id, now), now)
		}
		c.latency.Sweep(now)
	}
}

// pingTargets follows the protocol's asymmetry: the host measures every
// peer, a peer measures only its host link.
func (c *Controller) pingTargets() []string {
	if c.directory.IsLocalHost() {
		var ids []string
		for _, link := range c.snapshotPeers() {
			if link.Open() {
				ids = append(ids, link.RemoteID())
			}
		}
		return ids
	}
	hostID := c.directory.HostID()
	if link := c.peerLink(hostID); link != nil && link.Open() {
		return []string{hostID}
	}
	return nil
}

func (c *Controller) handleMemberLeft(id string, wasHost bool, newHost string) {
	c.directory.RemovePeer(id)
	c.closePeer(id)
	c.latency.Forget(id)
	c.states.ForgetSender(id)

	if !wasHost || newHost == "" {
		return
	}
	c.directory.SetHost(newHost)
	if newHost == c.directory.LocalID() {
		// Promotion happens mid-race without dropping anyone: the next tick
		// starts broadcasting and the input relay turns itself off.
		c.states.MarkDirty()
		c.logger.Printf("controller: promoted to host of %s", c.directory.Session().Code)
	}
}

// StartRace flips the session into the countdown phase and announces it.
// Host role only.
func (c *Controller) StartRace(countdownSeconds float64, aiShips int) bool {
	if !c.directory.IsLocalHost() {
		return false
	}
	now := c.clock()
	c.world.BeginCountdown(countdownSeconds, aiShips)
	c.directory.SetRace(proto.RaceStatus{Phase: proto.PhaseCountdown, Countdown: countdownSeconds})
	c.broadcast(proto.KindGameStart, proto.GameStartPayload{Countdown: countdownSeconds, AIShips: aiShips}, now)
	c.states.MarkDirty()
	logsession.RaceStarted(context.Background(), c.pub, c.tickCount,
		logging.EntityRef{ID: c.directory.LocalID(), Kind: logging.EntityKindPlayer},
		c.directory.Session().Code,
		logsession.RaceStartedPayload{Players: len(c.directory.Peers()), AIShips: aiShips}, nil)
	return true
}

// The Announce methods are how the host simulation publishes its combat and
// race resolutions after applying them locally. Each mirrors the fact into
// the directory and broadcasts it; on a non-host they do nothing and report
// false. Call them from the goroutine that drives Tick.

func (c *Controller) AnnounceProjectileFired(p proto.ProjectileState) bool {
	payload, ok := c.combat.EmitProjectileFired(p)
	if !ok {
		return false
	}
	c.broadcast(proto.KindProjectileFired, payload, c.clock())
	return true
}

func (c *Controller) AnnounceProjectileImpact(projectileID string, position proto.Vec3, target *proto.TargetRef) bool {
	payload, ok := c.combat.EmitProjectileImpact(projectileID, position, target)
	if !ok {
		return false
	}
	c.broadcast(proto.KindProjectileImpact, payload, c.clock())
	return true
}

func (c *Controller) AnnounceShipDamaged(target proto.TargetRef, health float64, attacker string) bool {
	payload, ok := c.combat.EmitShipDamaged(target, health, attacker)
	if !ok {
		return false
	}
	c.broadcast(proto.KindShipDamaged, payload, c.clock())
	return true
}

func (c *Controller) AnnounceShipDestroyed(target proto.TargetRef, destroyedBy string) bool {
	payload, ok := c.combat.EmitShipDestroyed(target, destroyedBy)
	if !ok {
		return false
	}
	c.broadcast(proto.KindShipDestroyed, payload, c.clock())
	return true
}

func (c *Controller) AnnounceShipRespawn(target proto.TargetRef, position proto.Vec3, health float64) bool {
	payload, ok := c.combat.EmitShipRespawn(target, position, health)
	if !ok {
		return false
	}
	c.broadcast(proto.KindShipRespawn, payload, c.clock())
	return true
}

func (c *Controller) AnnounceBoosterCollected(boosterID, playerID string) bool {
	payload, ok := c.combat.EmitBoosterCollected(boosterID, playerID)
	if !ok {
		return false
	}
	c.broadcast(proto.KindBoosterCollected, payload, c.clock())
	return true
}

func (c *Controller) AnnouncePlayerFinished(playerID string, finishTime float64, rank int) bool {
	payload, ok := c.combat.EmitPlayerFinished(playerID, finishTime, rank)
	if !ok {
		return false
	}
	c.broadcast(proto.KindPlayerFinished, payload, c.clock())
	logsession.PlayerFinished(context.Background(), c.pub, c.tickCount,
		logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		c.directory.Session().Code,
		logsession.PlayerFinishedPayload{Placement: rank}, nil)
	return true
}

func (c *Controller) AnnounceRaceOver(rankings []proto.RaceRanking) bool {
	payload, ok := c.combat.EmitRaceOver(rankings)
	if !ok {
		return false
	}
	c.broadcast(proto.KindRaceOver, payload, c.clock())
	ordered := make([]string, 0, len(rankings))
	for _, ranking := range rankings {
		ordered = append(ordered, ranking.PlayerID)
	}
	logsession.RaceOver(context.Background(), c.pub, c.tickCount,
		logging.EntityRef{ID: c.directory.LocalID(), Kind: logging.EntityKindPlayer},
		c.directory.Session().Code,
		logsession.RaceOverPayload{Rankings: ordered}, nil)
	return true
}

// AnnounceRoster broadcasts the host's member list so late joiners and peers
// with lost join pushes converge on the same roster.
func (c *Controller) AnnounceRoster() bool {
	if !c.directory.IsLocalHost() {
		return false
	}
	payload := proto.PlayerListPayload{HostID: c.directory.HostID()}
	for _, peer := range c.directory.Peers() {
		payload.Players = append(payload.Players, proto.PlayerMeta{ID: peer.ID, Name: peer.Name})
	}
	c.broadcast(proto.KindPlayerList, payload, c.clock())
	return true
}

func (c *Controller) broadcast(kind proto.Kind, payload any, now time.Time) {
	raw, err := proto.EncodeEnvelope(kind, payload, now)
	if err != nil {
		c.logger.Printf("controller: encode %s broadcast: %v", kind, err)
		return
	}
	delivered := 0
	for _, link := range c.snapshotPeers() {
		if link.Send(kind.String(), raw) {
			delivered++
		} else {
			c.counters.IncrementSendFailed()
		}
	}
	c.counters.RecordBroadcast(len(raw), delivered)
}

func (c *Controller) sendTo(id string, kind proto.Kind, payload any, now time.Time) bool {
	link := c.peerLink(id)
	if link == nil {
		return false
	}
	raw, err := proto.EncodeEnvelope(kind, payload, now)
	if err != nil {
		c.logger.Printf("controller: encode %s for %s: %v", kind, id, err)
		return false
	}
	if !link.Send(kind.String(), raw) {
		c.counters.IncrementSendFailed()
		return false
	}
	c.counters.RecordBroadcast(len(raw), 1)
	return true
}

func (c *Controller) sendToHost(kind proto.Kind, payload any) bool {
	return c.sendTo(c.directory.HostID(), kind, payload, c.clock())
}

func (c *Controller) snapshotPeers() []peerConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	links := make([]peerConn, 0, len(c.peers))
	for _, link := range c.peers {
		links = append(links, link)
	}
	return links
}

func (c *Controller) peerLink(id string) peerConn {
	if id == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[id]
}

func (c *Controller) closePeer(id string) {
	c.mu.Lock()
	link := c.peers[id]
	delete(c.peers, id)
	c.mu.Unlock()
	if link != nil {
		link.Close()
	}
}
