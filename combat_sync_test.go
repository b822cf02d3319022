package netcode

import (
	"context"
	"testing"

	"warp-rally/netcode/internal/proto"
	"warp-rally/netcode/logging"
	logcombat "warp-rally/netcode/logging/combat"
)

// recordedEffects captures listener callbacks for assertions.
type recordedEffects struct {
	fired     []proto.ProjectileFiredPayload
	impacts   []proto.ProjectileImpactPayload
	damaged   []proto.ShipDamagedPayload
	destroyed []proto.ShipDestroyedPayload
	respawned []proto.ShipRespawnPayload
	boosters  []proto.BoosterCollectedPayload
	finished  []proto.PlayerFinishedPayload
	raceOver  []proto.RaceOverPayload
}

func (r *recordedEffects) ProjectileFired(p proto.ProjectileFiredPayload) { r.fired = append(r.fired, p) }
func (r *recordedEffects) ProjectileImpact(p proto.ProjectileImpactPayload) {
	r.impacts = append(r.impacts, p)
}
func (r *recordedEffects) ShipDamaged(p proto.ShipDamagedPayload) { r.damaged = append(r.damaged, p) }
func (r *recordedEffects) ShipDestroyed(p proto.ShipDestroyedPayload) {
	r.destroyed = append(r.destroyed, p)
}
func (r *recordedEffects) ShipRespawned(p proto.ShipRespawnPayload) {
	r.respawned = append(r.respawned, p)
}
func (r *recordedEffects) BoosterCollected(p proto.BoosterCollectedPayload) {
	r.boosters = append(r.boosters, p)
}
func (r *recordedEffects) PlayerFinished(p proto.PlayerFinishedPayload) {
	r.finished = append(r.finished, p)
}
func (r *recordedEffects) RaceOver(p proto.RaceOverPayload) { r.raceOver = append(r.raceOver, p) }

// eventRecorder collects published log events synchronously.
type eventRecorder struct {
	events []logging.Event
}

func (r *eventRecorder) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		r.events = append(r.events, event)
	})
}

func newPeerCombat(t *testing.T) (*CombatSync, *Directory, *recordedEffects) {
	t.Helper()
	d := newSessionDirectory(t)
	d.AddPeer("host-1", "Vega")
	effects := &recordedEffects{}
	return NewCombatSync(d, effects, nil, nil), d, effects
}

func newHostCombat(t *testing.T) (*CombatSync, *Directory, *recordedEffects) {
	t.Helper()
	d := NewDirectory(nil)
	d.BeginSession("ABCDEF", "host-1", "Vega", "host-1")
	effects := &recordedEffects{}
	return NewCombatSync(d, effects, nil, nil), d, effects
}

func TestApplyShipDamagedUpdatesPeerMirror(t *testing.T) {
	sync, d, effects := newPeerCombat(t)

	payload := proto.ShipDamagedPayload{Target: proto.PlayerTarget("host-1"), Health: 64, Attacker: "local-1"}
	if !sync.ApplyShipDamaged("host-1", payload) {
		t.Fatalf("damage fact from the host was rejected")
	}

	entry, _ := d.Peer("host-1")
	if entry.State.Health != 64 {
		t.Fatalf("mirror health = %v, want 64", entry.State.Health)
	}
	if len(effects.damaged) != 1 || effects.damaged[0].Health != 64 {
		t.Fatalf("effects listener not notified: %+v", effects.damaged)
	}
}

func TestApplyShipDamagedAITarget(t *testing.T) {
	sync, d, _ := newPeerCombat(t)
	d.SetAIStates([]proto.AIState{{ID: 3, Health: 50, MaxHealth: 50}})

	payload := proto.ShipDamagedPayload{Target: proto.AITarget(3), Health: 20}
	if !sync.ApplyShipDamaged("host-1", payload) {
		t.Fatalf("AI damage fact rejected")
	}
	if ship, _ := d.AIShip(3); ship.Health != 20 {
		t.Fatalf("AI health = %v, want 20", ship.Health)
	}
}

func TestApplyShipDamagedUnknownTargetWarnsAndDrops(t *testing.T) {
	recorder := &eventRecorder{}
	d := newSessionDirectory(t)
	d.AddPeer("host-1", "Vega")
	effects := &recordedEffects{}
	sync := NewCombatSync(d, effects, recorder.publisher(), func() uint64 { return 7 })

	payload := proto.ShipDamagedPayload{Target: proto.PlayerTarget("ghost-9"), Health: 10}
	if sync.ApplyShipDamaged("host-1", payload) {
		t.Fatalf("unknown target must be dropped")
	}
	if len(effects.damaged) != 0 {
		t.Fatalf("dropped fact must not reach the effects listener")
	}

	if len(recorder.events) != 1 {
		t.Fatalf("expected one log event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.Type != logcombat.EventUnknownTarget {
		t.Fatalf("expected %s, got %s", logcombat.EventUnknownTarget, event.Type)
	}
	if event.Severity != logging.SeverityWarn {
		t.Fatalf("unknown target should log at warn, got %s", event.Severity)
	}
	if event.Tick != 7 {
		t.Fatalf("event should carry the dispatch tick, got %d", event.Tick)
	}
	body, ok := event.Payload.(logcombat.UnknownTargetPayload)
	if !ok || body.TargetID != "ghost-9" || body.Fact != "ship-damaged" {
		t.Fatalf("unexpected payload %+v", event.Payload)
	}
}

func TestApplyShipDestroyedIsIdempotent(t *testing.T) {
	sync, d, effects := newPeerCombat(t)
	d.SetAIStates([]proto.AIState{{ID: 3, Health: 50}})

	payload := proto.ShipDestroyedPayload{Target: proto.AITarget(3), DestroyedBy: "host-1"}
	if !sync.ApplyShipDestroyed("host-1", payload) {
		t.Fatalf("first destroy rejected")
	}
	first, _ := d.AIShip(3)

	if !sync.ApplyShipDestroyed("host-1", payload) {
		t.Fatalf("replayed destroy should still apply cleanly")
	}
	second, _ := d.AIShip(3)

	if first != second {
		t.Fatalf("replayed destroy changed state: %+v vs %+v", first, second)
	}
	if !second.Destroyed || second.Health != 0 {
		t.Fatalf("ship should be destroyed with zero health: %+v", second)
	}
	if len(effects.destroyed) != 2 {
		t.Fatalf("listener should hear each applied fact, got %d", len(effects.destroyed))
	}
}

func TestApplyShipDestroyedPlayerZeroesHealth(t *testing.T) {
	sync, d, _ := newPeerCombat(t)
	d.SetPeerState("host-1", proto.PlayerState{ID: "host-1", Health: 77})

	if !sync.ApplyShipDestroyed("host-1", proto.ShipDestroyedPayload{Target: proto.PlayerTarget("host-1")}) {
		t.Fatalf("player destroy rejected")
	}
	if entry, _ := d.Peer("host-1"); entry.State.Health != 0 {
		t.Fatalf("destroyed player health = %v, want 0", entry.State.Health)
	}
}

func TestApplyShipRespawnRestoresAI(t *testing.T) {
	sync, d, effects := newPeerCombat(t)
	d.SetAIStates([]proto.AIState{{ID: 2, Health: 0, Destroyed: true}})

	payload := proto.ShipRespawnPayload{Target: proto.AITarget(2), Position: proto.Vec3{X: 5, Z: -12}, Health: 100}
	if !sync.ApplyShipRespawn("host-1", payload) {
		t.Fatalf("respawn rejected")
	}

	ship, _ := d.AIShip(2)
	if ship.Destroyed || ship.Health != 100 || ship.Position.X != 5 {
		t.Fatalf("respawn not applied: %+v", ship)
	}
	if len(effects.respawned) != 1 {
		t.Fatalf("listener should hear the respawn")
	}
}

func TestApplyShipRespawnPlayerClearsRespawning(t *testing.T) {
	sync, d, _ := newPeerCombat(t)
	d.SetPeerState("host-1", proto.PlayerState{ID: "host-1", Health: 0, Respawning: true})

	payload := proto.ShipRespawnPayload{Target: proto.PlayerTarget("host-1"), Position: proto.Vec3{Y: 3}, Health: 100}
	if !sync.ApplyShipRespawn("host-1", payload) {
		t.Fatalf("player respawn rejected")
	}
	entry, _ := d.Peer("host-1")
	if entry.State.Respawning || entry.State.Health != 100 || entry.State.Position.Y != 3 {
		t.Fatalf("respawn not merged: %+v", entry.State)
	}
}

func TestProjectileLifecycle(t *testing.T) {
	sync, d, effects := newPeerCombat(t)

	projectile := proto.ProjectileState{ID: "proj-1", Owner: proto.PlayerTarget("host-1"), PlayerOwned: true}
	if !sync.ApplyProjectileFired("host-1", proto.ProjectileFiredPayload{Projectile: projectile}) {
		t.Fatalf("fired fact rejected")
	}
	if got := d.Projectiles(); len(got) != 1 || got[0].ID != "proj-1" {
		t.Fatalf("projectile not mirrored: %+v", got)
	}

	impact := proto.ProjectileImpactPayload{ProjectileID: "proj-1", Position: proto.Vec3{Z: -30}}
	if !sync.ApplyProjectileImpact("host-1", impact) {
		t.Fatalf("impact fact rejected")
	}
	if got := d.Projectiles(); len(got) != 0 {
		t.Fatalf("impact should remove the mirror: %+v", got)
	}
	if !sync.ApplyProjectileImpact("host-1", impact) {
		t.Fatalf("replayed impact should stay harmless")
	}
	if len(effects.fired) != 1 || len(effects.impacts) != 2 {
		t.Fatalf("listener counts wrong: fired=%d impacts=%d", len(effects.fired), len(effects.impacts))
	}
}

func TestApplyPlayerFinishedSetsStanding(t *testing.T) {
	sync, d, effects := newPeerCombat(t)

	payload := proto.PlayerFinishedPayload{PlayerID: "host-1", FinishTime: 93.2, Rank: 1}
	if !sync.ApplyPlayerFinished("host-1", payload) {
		t.Fatalf("finish fact rejected")
	}
	entry, _ := d.Peer("host-1")
	if entry.State.Rank != 1 || entry.State.FinishTime == nil || *entry.State.FinishTime != 93.2 {
		t.Fatalf("standing not recorded: %+v", entry.State)
	}
	if len(effects.finished) != 1 {
		t.Fatalf("listener should hear the finish")
	}

	if sync.ApplyPlayerFinished("host-1", proto.PlayerFinishedPayload{PlayerID: "ghost-9", Rank: 2}) {
		t.Fatalf("finish for an unknown player must drop")
	}
}

func TestApplyRaceOverFlipsPhaseAndRanks(t *testing.T) {
	sync, d, effects := newPeerCombat(t)
	d.SetRace(proto.RaceStatus{Phase: proto.PhaseRacing, Clock: 120.5})

	finish := 93.2
	payload := proto.RaceOverPayload{Rankings: []proto.RaceRanking{
		{PlayerID: "host-1", Rank: 1, FinishTime: &finish},
		{PlayerID: "local-1", Rank: 2},
	}}
	if !sync.ApplyRaceOver("host-1", payload) {
		t.Fatalf("race-over rejected")
	}

	race := d.Race()
	if race.Phase != proto.PhaseFinished {
		t.Fatalf("phase = %q, want finished", race.Phase)
	}
	if race.Clock != 120.5 {
		t.Fatalf("race-over must keep the final clock, got %v", race.Clock)
	}
	host, _ := d.Peer("host-1")
	if host.State.Rank != 1 {
		t.Fatalf("host rank = %d, want 1", host.State.Rank)
	}
	local, _ := d.Peer("local-1")
	if local.State.Rank != 2 {
		t.Fatalf("local rank = %d, want 2", local.State.Rank)
	}
	if len(effects.raceOver) != 1 {
		t.Fatalf("listener should hear race-over once")
	}
}

func TestPeerCombatRejectsNonHostSender(t *testing.T) {
	sync, d, effects := newPeerCombat(t)
	d.AddPeer("peer-2", "Rigel")
	d.SetAIStates([]proto.AIState{{ID: 1, Health: 50}})

	payload := proto.ShipDamagedPayload{Target: proto.AITarget(1), Health: 5}
	if sync.ApplyShipDamaged("peer-2", payload) {
		t.Fatalf("combat facts must only be accepted from the host")
	}
	if ship, _ := d.AIShip(1); ship.Health != 50 {
		t.Fatalf("non-host fact leaked into the mirror: %+v", ship)
	}
	if len(effects.damaged) != 0 {
		t.Fatalf("non-host fact must not reach the listener")
	}
}

func TestHostIgnoresInboundCombatFacts(t *testing.T) {
	sync, d, effects := newHostCombat(t)
	d.AddPeer("peer-2", "Rigel")

	payload := proto.ShipDamagedPayload{Target: proto.PlayerTarget("peer-2"), Health: 1}
	if sync.ApplyShipDamaged("peer-2", payload) {
		t.Fatalf("the host never applies inbound combat facts")
	}
	if len(effects.damaged) != 0 {
		t.Fatalf("host listener must stay quiet for inbound facts")
	}
}

func TestEmittersRequireHostRole(t *testing.T) {
	sync, _, _ := newPeerCombat(t)

	if _, ok := sync.EmitShipDamaged(proto.AITarget(1), 10, "local-1"); ok {
		t.Fatalf("a peer must not originate damage facts")
	}
	if _, ok := sync.EmitProjectileFired(proto.ProjectileState{ID: "p"}); ok {
		t.Fatalf("a peer must not originate fire facts")
	}
	if _, ok := sync.EmitRaceOver(nil); ok {
		t.Fatalf("a peer must not originate race results")
	}
}

func TestEmitShipDestroyedMirrorsBeforePayload(t *testing.T) {
	sync, d, _ := newHostCombat(t)
	d.SetAIStates([]proto.AIState{{ID: 3, Health: 50}})

	payload, ok := sync.EmitShipDestroyed(proto.AITarget(3), "host-1")
	if !ok {
		t.Fatalf("host emit rejected")
	}
	if payload.Target.Key() != "ai-3" || payload.DestroyedBy != "host-1" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if ship, _ := d.AIShip(3); !ship.Destroyed {
		t.Fatalf("mirror must update before the payload is broadcast")
	}
}

func TestEmitProjectileFiredMirrors(t *testing.T) {
	sync, d, _ := newHostCombat(t)

	projectile := proto.ProjectileState{ID: "proj-9", Owner: proto.AITarget(1)}
	payload, ok := sync.EmitProjectileFired(projectile)
	if !ok {
		t.Fatalf("host emit rejected")
	}
	if payload.Projectile.ID != "proj-9" {
		t.Fatalf("payload should carry the projectile: %+v", payload)
	}
	if got := d.Projectiles(); len(got) != 1 {
		t.Fatalf("projectile not mirrored on the host: %+v", got)
	}
}
