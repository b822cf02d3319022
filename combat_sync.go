package netcode

import (
	"context"

	"warp-rally/netcode/internal/proto"
	"warp-rally/netcode/logging"
	logcombat "warp-rally/netcode/logging/combat"
)

// CombatSync layers discrete combat and race facts over the continuous state
// stream. On the host it turns local resolutions into broadcastable payloads
// after mirroring them in the directory; on a peer it applies inbound facts
// and fans them out to the effects listener. Facts carry results (health=X),
// never intents (damage=Y), so applying them twice or out of order cannot
// diverge. All methods run on the controller's tick goroutine.
type CombatSync struct {
	directory *Directory
	effects   EffectsListener
	pub       logging.Publisher
	tick      func() uint64
}

func NewCombatSync(directory *Directory, effects EffectsListener, pub logging.Publisher, tick func() uint64) *CombatSync {
	if effects == nil {
		effects = NopEffects{}
	}
	if tick == nil {
		tick = func() uint64 { return 0 }
	}
	return &CombatSync{directory: directory, effects: effects, pub: pub, tick: tick}
}

// --- host emitters ---
//
// Each emitter is called after the host simulation has already applied the
// resolution, mirrors the resulting fact into the directory, and returns the
// payload for broadcast. Non-hosts get (zero, false): peers never originate
// combat resolutions.

func (c *CombatSync) EmitProjectileFired(p proto.ProjectileState) (proto.ProjectileFiredPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.ProjectileFiredPayload{}, false
	}
	c.directory.AddProjectile(p)
	c.logFired(p)
	return proto.ProjectileFiredPayload{Projectile: p}, true
}

func (c *CombatSync) EmitProjectileImpact(projectileID string, position proto.Vec3, target *proto.TargetRef) (proto.ProjectileImpactPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.ProjectileImpactPayload{}, false
	}
	c.directory.RemoveProjectile(projectileID)
	return proto.ProjectileImpactPayload{ProjectileID: projectileID, Position: position, Target: target}, true
}

func (c *CombatSync) EmitShipDamaged(target proto.TargetRef, health float64, attacker string) (proto.ShipDamagedPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.ShipDamagedPayload{}, false
	}
	// Best effort: the sim already holds the truth, and the mirror heals on
	// the next full broadcast if the entry is not known yet.
	c.applyHealth(target, health)
	c.logDamage(target, health, attacker)
	return proto.ShipDamagedPayload{Target: target, Health: health, Attacker: attacker}, true
}

func (c *CombatSync) EmitShipDestroyed(target proto.TargetRef, destroyedBy string) (proto.ShipDestroyedPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.ShipDestroyedPayload{}, false
	}
	c.applyDestroyed(target)
	c.logDestroyed(target, destroyedBy)
	return proto.ShipDestroyedPayload{Target: target, DestroyedBy: destroyedBy}, true
}

func (c *CombatSync) EmitShipRespawn(target proto.TargetRef, position proto.Vec3, health float64) (proto.ShipRespawnPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.ShipRespawnPayload{}, false
	}
	c.applyRespawn(target, position, health)
	c.logRespawn(target, position)
	return proto.ShipRespawnPayload{Target: target, Position: position, Health: health}, true
}

func (c *CombatSync) EmitBoosterCollected(boosterID, playerID string) (proto.BoosterCollectedPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.BoosterCollectedPayload{}, false
	}
	return proto.BoosterCollectedPayload{BoosterID: boosterID, PlayerID: playerID}, true
}

func (c *CombatSync) EmitPlayerFinished(playerID string, finishTime float64, rank int) (proto.PlayerFinishedPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.PlayerFinishedPayload{}, false
	}
	c.applyFinish(playerID, finishTime, rank)
	return proto.PlayerFinishedPayload{PlayerID: playerID, FinishTime: finishTime, Rank: rank}, true
}

func (c *CombatSync) EmitRaceOver(rankings []proto.RaceRanking) (proto.RaceOverPayload, bool) {
	if !c.directory.IsLocalHost() {
		return proto.RaceOverPayload{}, false
	}
	c.applyRaceOver(rankings)
	return proto.RaceOverPayload{Rankings: rankings}, true
}

// --- peer appliers ---
//
// Inbound facts are accepted from the member holding the host role and
// applied directory-first, so the effects listener always observes the
// updated mirrors. The host ignores inbound combat facts entirely; it is
// their only legitimate origin.

func (c *CombatSync) ApplyProjectileFired(senderID string, payload proto.ProjectileFiredPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	c.directory.AddProjectile(payload.Projectile)
	c.logFired(payload.Projectile)
	c.effects.ProjectileFired(payload)
	return true
}

func (c *CombatSync) ApplyProjectileImpact(senderID string, payload proto.ProjectileImpactPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	// Removing an already-gone projectile is a no-op, which keeps replayed
	// impacts harmless.
	c.directory.RemoveProjectile(payload.ProjectileID)
	c.effects.ProjectileImpact(payload)
	return true
}

func (c *CombatSync) ApplyShipDamaged(senderID string, payload proto.ShipDamagedPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	if !c.applyHealth(payload.Target, payload.Health) {
		c.logUnknownTarget(senderID, payload.Target, proto.KindShipDamaged)
		return false
	}
	c.logDamage(payload.Target, payload.Health, payload.Attacker)
	c.effects.ShipDamaged(payload)
	return true
}

func (c *CombatSync) ApplyShipDestroyed(senderID string, payload proto.ShipDestroyedPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	if !c.applyDestroyed(payload.Target) {
		c.logUnknownTarget(senderID, payload.Target, proto.KindShipDestroyed)
		return false
	}
	c.logDestroyed(payload.Target, payload.DestroyedBy)
	c.effects.ShipDestroyed(payload)
	return true
}

func (c *CombatSync) ApplyShipRespawn(senderID string, payload proto.ShipRespawnPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	if !c.applyRespawn(payload.Target, payload.Position, payload.Health) {
		c.logUnknownTarget(senderID, payload.Target, proto.KindShipRespawn)
		return false
	}
	c.logRespawn(payload.Target, payload.Position)
	c.effects.ShipRespawned(payload)
	return true
}

func (c *CombatSync) ApplyBoosterCollected(senderID string, payload proto.BoosterCollectedPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	c.effects.BoosterCollected(payload)
	return true
}

func (c *CombatSync) ApplyPlayerFinished(senderID string, payload proto.PlayerFinishedPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	if !c.applyFinish(payload.PlayerID, payload.FinishTime, payload.Rank) {
		c.logUnknownTarget(senderID, proto.PlayerTarget(payload.PlayerID), proto.KindPlayerFinished)
		return false
	}
	c.effects.PlayerFinished(payload)
	return true
}

func (c *CombatSync) ApplyRaceOver(senderID string, payload proto.RaceOverPayload) bool {
	if !c.acceptFact(senderID) {
		return false
	}
	c.applyRaceOver(payload.Rankings)
	c.effects.RaceOver(payload)
	return true
}

func (c *CombatSync) acceptFact(senderID string) bool {
	if c.directory.IsLocalHost() {
		return false
	}
	hostID := c.directory.HostID()
	return hostID == "" || senderID == hostID
}

// --- shared directory application ---

func (c *CombatSync) applyHealth(target proto.TargetRef, health float64) bool {
	if target.IsAI() {
		return c.directory.SetAIHealth(target.AIID, health)
	}
	return c.directory.SetPeerHealth(target.PlayerID, health)
}

func (c *CombatSync) applyDestroyed(target proto.TargetRef) bool {
	if target.IsAI() {
		return c.directory.MarkAIDestroyed(target.AIID)
	}
	return c.directory.SetPeerHealth(target.PlayerID, 0)
}

func (c *CombatSync) applyRespawn(target proto.TargetRef, position proto.Vec3, health float64) bool {
	if target.IsAI() {
		return c.directory.RespawnAI(target.AIID, position, health)
	}
	pos, hp, respawning := position, health, false
	return c.directory.UpdatePeer(target.PlayerID, PlayerStateUpdate{
		Position:   &pos,
		Health:     &hp,
		Respawning: &respawning,
	})
}

func (c *CombatSync) applyFinish(playerID string, finishTime float64, rank int) bool {
	ft, r := finishTime, rank
	return c.directory.UpdatePeer(playerID, PlayerStateUpdate{FinishTime: &ft, Rank: &r})
}

func (c *CombatSync) applyRaceOver(rankings []proto.RaceRanking) {
	race := c.directory.Race()
	race.Phase = proto.PhaseFinished
	race.Countdown = 0
	c.directory.SetRace(race)

	for _, ranking := range rankings {
		r := ranking.Rank
		update := PlayerStateUpdate{Rank: &r}
		if ranking.FinishTime != nil {
			ft := *ranking.FinishTime
			update.FinishTime = &ft
		}
		c.directory.UpdatePeer(ranking.PlayerID, update)
	}
}

// --- structured log taps ---

func (c *CombatSync) logFired(p proto.ProjectileState) {
	logcombat.ProjectileFired(context.Background(), c.pub, c.tick(), targetEntity(p.Owner),
		logcombat.ProjectileFiredPayload{ProjectileID: p.ID}, nil)
}

func (c *CombatSync) logDamage(target proto.TargetRef, health float64, attacker string) {
	logcombat.Damage(context.Background(), c.pub, c.tick(),
		logging.EntityRef{ID: attacker, Kind: logging.EntityKindPeer}, targetEntity(target),
		logcombat.DamagePayload{Remaining: health}, nil)
}

func (c *CombatSync) logDestroyed(target proto.TargetRef, destroyedBy string) {
	logcombat.Destroyed(context.Background(), c.pub, c.tick(),
		logging.EntityRef{ID: destroyedBy, Kind: logging.EntityKindPeer}, targetEntity(target),
		logcombat.DestroyedPayload{Cause: destroyedBy}, nil)
}

func (c *CombatSync) logRespawn(target proto.TargetRef, position proto.Vec3) {
	logcombat.Respawn(context.Background(), c.pub, c.tick(), targetEntity(target),
		logcombat.RespawnPayload{X: position.X, Y: position.Y, Z: position.Z}, nil)
}

func (c *CombatSync) logUnknownTarget(senderID string, target proto.TargetRef, fact proto.Kind) {
	logcombat.UnknownTarget(context.Background(), c.pub, c.tick(),
		logging.EntityRef{ID: senderID, Kind: logging.EntityKindPeer},
		logcombat.UnknownTargetPayload{TargetID: target.Key(), Fact: fact.String()}, nil)
}

func targetEntity(t proto.TargetRef) logging.EntityRef {
	if t.IsAI() {
		return logging.EntityRef{ID: t.Key(), Kind: logging.EntityKindAI}
	}
	return logging.EntityRef{ID: t.PlayerID, Kind: logging.EntityKindPeer}
}
