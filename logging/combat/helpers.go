package combat

import (
	"context"

	"warp-rally/netcode/logging"
)

const (
	// EventProjectileFired is emitted when a fire fact is applied to the directory.
	EventProjectileFired logging.EventType = "combat.projectile_fired"
	// EventDamage is emitted when a damage fact lands on a ship.
	EventDamage logging.EventType = "combat.damage"
	// EventDestroyed is emitted when a ship is marked destroyed.
	EventDestroyed logging.EventType = "combat.destroyed"
	// EventRespawn is emitted when a destroyed ship comes back.
	EventRespawn logging.EventType = "combat.respawn"
	// EventUnknownTarget is emitted when a combat fact names an entity the directory does not know.
	EventUnknownTarget logging.EventType = "combat.unknown_target"
)

// ProjectileFiredPayload captures the shot parameters worth logging.
type ProjectileFiredPayload struct {
	ProjectileID string `json:"projectileId"`
	Weapon       string `json:"weapon,omitempty"`
}

// DamagePayload captures the amount dealt to a single target.
type DamagePayload struct {
	Amount    float64 `json:"amount"`
	Remaining float64 `json:"remaining"`
}

// DestroyedPayload describes the fatal hit.
type DestroyedPayload struct {
	Cause string `json:"cause,omitempty"`
}

// RespawnPayload records where the ship came back.
type RespawnPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// UnknownTargetPayload names the missing entity and the fact that referenced it.
type UnknownTargetPayload struct {
	TargetID string `json:"targetId"`
	Fact     string `json:"fact"`
}

// ProjectileFired publishes a projectile spawn event.
func ProjectileFired(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ProjectileFiredPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventProjectileFired,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Damage publishes a damage event for a single target.
func Damage(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DamagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDamage,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Destroyed publishes a destruction event for the eliminated ship.
func Destroyed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DestroyedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDestroyed,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// Respawn publishes a respawn event for a recovered ship.
func Respawn(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RespawnPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRespawn,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}

// UnknownTarget publishes a warning for a combat fact aimed at a missing entity.
func UnknownTarget(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload UnknownTargetPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnknownTarget,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	})
}
