package proto

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// Version tracks the wire-protocol revision expected by peers. Envelopes
	// without a ver field are treated as version 1.
	Version = 1
)

// ErrUnknownKind marks envelopes whose kind is outside the closed enumeration.
var ErrUnknownKind = errors.New("unknown message kind")

// Envelope is the data-channel wire frame. SenderID is filled in by the
// receiving side after decode, never by the sender.
type Envelope struct {
	Ver       int             `json:"ver,omitempty"`
	Type      Kind            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp float64         `json:"timestamp"`
	SenderID  string          `json:"senderId,omitempty"`
}

// EncodeEnvelope wraps a payload in a versioned envelope and renders it.
func EncodeEnvelope(kind Kind, payload any, sentAt time.Time) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w %d", ErrUnknownKind, int(kind))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	env := Envelope{
		Ver:       Version,
		Type:      kind,
		Data:      data,
		Timestamp: float64(sentAt.UnixNano()) / float64(time.Millisecond),
	}
	return json.Marshal(env)
}

// DecodeEnvelope converts raw channel payloads into a structured envelope.
func DecodeEnvelope(payload []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, err
	}
	if env.Ver == 0 {
		env.Ver = Version
	}
	if env.Ver != Version {
		return env, fmt.Errorf("unsupported protocol version %d", env.Ver)
	}
	if !env.Type.Valid() {
		return env, fmt.Errorf("%w %d", ErrUnknownKind, int(env.Type))
	}
	return env, nil
}

// UnmarshalData decodes the kind-specific payload into v.
func (e Envelope) UnmarshalData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s envelope carries no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// JoinPayload announces a peer over the data channel after the rendezvous
// handshake completed.
type JoinPayload struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// LeavePayload announces an orderly departure.
type LeavePayload struct {
	ID string `json:"id"`
}

// PlayerMeta is the identity pair carried by the player list.
type PlayerMeta struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// PlayerListPayload is broadcast by the host so late joiners learn the
// current roster.
type PlayerListPayload struct {
	Players []PlayerMeta `json:"players"`
	HostID  string       `json:"hostId"`
}

// GameStartPayload flips every peer into the countdown phase.
type GameStartPayload struct {
	Countdown float64 `json:"countdown"`
	AIShips   int     `json:"aiShips,omitempty"`
}

// ControlState is the captured control snapshot for one frame.
type ControlState struct {
	Up           bool `json:"up,omitempty"`
	Down         bool `json:"down,omitempty"`
	Left         bool `json:"left,omitempty"`
	Right        bool `json:"right,omitempty"`
	Shoot        bool `json:"shoot,omitempty"`
	Boost        bool `json:"boost,omitempty"`
	Brake        bool `json:"brake,omitempty"`
	CameraToggle bool `json:"cameraToggle,omitempty"`
}

// InputPayload carries one sequence-stamped control snapshot to the host.
type InputPayload struct {
	ID        string       `json:"id"`
	Seq       uint64       `json:"seq"`
	Timestamp float64      `json:"timestamp"`
	Controls  ControlState `json:"controls"`
}

// FullStatePayload is the host's periodic self-healing snapshot.
type FullStatePayload struct {
	Players     []PlayerState     `json:"players"`
	AIShips     []AIState         `json:"aiShips,omitempty"`
	Projectiles []ProjectileState `json:"projectiles,omitempty"`
	Race        RaceStatus        `json:"race"`
}

// PlayerTransform is the reduced per-frame slice of a player state.
type PlayerTransform struct {
	ID          string  `json:"id"`
	Position    Vec3    `json:"position"`
	Orientation Quat    `json:"orientation"`
	Velocity    Vec3    `json:"velocity"`
	Speed       float64 `json:"speed"`
	Boosting    bool    `json:"boosting,omitempty"`
}

// AITransform is the reduced per-frame slice of an AI state.
type AITransform struct {
	ID          int  `json:"id"`
	Position    Vec3 `json:"position"`
	Orientation Quat `json:"orientation"`
}

// DeltaStatePayload is the high-frequency reduced-payload broadcast. It is
// not a diff against a previous snapshot; the periodic full state remains
// the healing mechanism for anything a delta misses.
type DeltaStatePayload struct {
	Player  *PlayerTransform `json:"player,omitempty"`
	AIShips []AITransform    `json:"aiShips,omitempty"`
}

// ProjectileFiredPayload carries the spawned projectile fact.
type ProjectileFiredPayload struct {
	Projectile ProjectileState `json:"projectile"`
}

// ProjectileImpactPayload reports where a projectile ended.
type ProjectileImpactPayload struct {
	ProjectileID string     `json:"projectileId"`
	Position     Vec3       `json:"position"`
	Target       *TargetRef `json:"target,omitempty"`
}

// ShipDamagedPayload carries the resulting health fact, not the requested
// damage amount.
type ShipDamagedPayload struct {
	Target   TargetRef `json:"target"`
	Health   float64   `json:"health"`
	Attacker string    `json:"attacker,omitempty"`
}

// ShipDestroyedPayload marks a ship destroyed.
type ShipDestroyedPayload struct {
	Target      TargetRef `json:"target"`
	DestroyedBy string    `json:"destroyedBy,omitempty"`
}

// ShipRespawnPayload brings a destroyed ship back at a position.
type ShipRespawnPayload struct {
	Target   TargetRef `json:"target"`
	Position Vec3      `json:"position"`
	Health   float64   `json:"health"`
}

// BoosterCollectedPayload records a pickup claimed by a player.
type BoosterCollectedPayload struct {
	BoosterID string `json:"boosterId"`
	PlayerID  string `json:"playerId"`
}

// PlayerFinishedPayload records a finish-line crossing.
type PlayerFinishedPayload struct {
	PlayerID   string  `json:"playerId"`
	FinishTime float64 `json:"finishTime"`
	Rank       int     `json:"rank"`
}

// RaceRanking is one row of the final standings.
type RaceRanking struct {
	PlayerID   string   `json:"playerId"`
	Name       string   `json:"name,omitempty"`
	FinishTime *float64 `json:"finishTime,omitempty"`
	Rank       int      `json:"rank"`
}

// RaceOverPayload publishes the final standings.
type RaceOverPayload struct {
	Rankings []RaceRanking `json:"rankings"`
}

// PingPayload carries a correlation nonce for round-trip measurement.
type PingPayload struct {
	Nonce string `json:"nonce"`
}

// PongPayload echoes the nonce of the ping it answers.
type PongPayload struct {
	Nonce string `json:"nonce"`
}
