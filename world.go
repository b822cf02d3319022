package netcode

import "warp-rally/netcode/internal/proto"

// StateProvider exposes the local simulation's current view. The host reads
// all of it when building full-state snapshots; every peer reads the local
// player slice when building deltas. Calls arrive on the controller's tick
// goroutine, so implementations can read frame state without locking as long
// as Tick runs inside the game loop.
type StateProvider interface {
	LocalPlayerState() proto.PlayerState
	AIStates() []proto.AIState
	ProjectileStates() []proto.ProjectileState
	RaceStatus() proto.RaceStatus
}

// LocalSim is the surface the embedding game hands to the controller. The
// session layer never steps the simulation itself; it reads state out and
// pushes corrections and phase changes back in.
type LocalSim interface {
	StateProvider

	// BeginCountdown flips the simulation into the pre-race countdown.
	// AI ship count comes from the host so every peer spawns the same set.
	BeginCountdown(seconds float64, aiShips int)

	// ReconcileLocalPlayer blends the locally predicted player toward the
	// authoritative snapshot. blend is the per-application lerp factor;
	// small values converge over several frames instead of snapping.
	ReconcileLocalPlayer(authoritative proto.PlayerState, blend float64)
}

// EffectsListener receives combat and race resolutions after the directory
// has been updated. Implementations drive visuals and audio; they must not
// mutate session state or block.
type EffectsListener interface {
	ProjectileFired(proto.ProjectileFiredPayload)
	ProjectileImpact(proto.ProjectileImpactPayload)
	ShipDamaged(proto.ShipDamagedPayload)
	ShipDestroyed(proto.ShipDestroyedPayload)
	ShipRespawned(proto.ShipRespawnPayload)
	BoosterCollected(proto.BoosterCollectedPayload)
	PlayerFinished(proto.PlayerFinishedPayload)
	RaceOver(proto.RaceOverPayload)
}

// NopEffects discards every notification. It stands in wherever the embedder
// has no listener wired yet.
type NopEffects struct{}

func (NopEffects) ProjectileFired(proto.ProjectileFiredPayload)   {}
func (NopEffects) ProjectileImpact(proto.ProjectileImpactPayload) {}
func (NopEffects) ShipDamaged(proto.ShipDamagedPayload)           {}
func (NopEffects) ShipDestroyed(proto.ShipDestroyedPayload)       {}
func (NopEffects) ShipRespawned(proto.ShipRespawnPayload)         {}
func (NopEffects) BoosterCollected(proto.BoosterCollectedPayload) {}
func (NopEffects) PlayerFinished(proto.PlayerFinishedPayload)     {}
func (NopEffects) RaceOver(proto.RaceOverPayload)                 {}
