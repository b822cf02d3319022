package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Vec3 mirrors the browser client's three-component vectors.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat carries an orientation as a quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// TargetKind discriminates the two entity namespaces combat facts can name.
type TargetKind string

const (
	TargetPlayer TargetKind = "player"
	TargetAI     TargetKind = "ai"
)

// TargetRef identifies a player or an AI ship. On the wire it is an object
// `{kind, id | aiId}`; the legacy composite string form ("ai-3" or a bare
// player id) is still accepted on decode for older clients.
type TargetRef struct {
	Kind     TargetKind
	PlayerID string
	AIID     int
}

// PlayerTarget builds a reference to a player ship.
func PlayerTarget(id string) TargetRef {
	return TargetRef{Kind: TargetPlayer, PlayerID: id}
}

// AITarget builds a reference to an AI ship.
func AITarget(id int) TargetRef {
	return TargetRef{Kind: TargetAI, AIID: id}
}

// ParseTargetKey decodes the composite string form. Strings shaped
// "ai-<number>" become AI references; anything else is a player id.
func ParseTargetKey(key string) TargetRef {
	if suffix, ok := strings.CutPrefix(key, "ai-"); ok {
		if id, err := strconv.Atoi(suffix); err == nil {
			return AITarget(id)
		}
	}
	return PlayerTarget(key)
}

// Key renders the composite string form used for map keys and logging.
func (t TargetRef) Key() string {
	if t.Kind == TargetAI {
		return "ai-" + strconv.Itoa(t.AIID)
	}
	return t.PlayerID
}

// IsAI reports whether the reference names an AI ship.
func (t TargetRef) IsAI() bool {
	return t.Kind == TargetAI
}

type wireTarget struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
	AIID int        `json:"aiId,omitempty"`
}

func (t TargetRef) MarshalJSON() ([]byte, error) {
	wire := wireTarget{Kind: t.Kind}
	switch t.Kind {
	case TargetAI:
		wire.AIID = t.AIID
	default:
		wire.ID = t.PlayerID
	}
	return json.Marshal(wire)
}

func (t *TargetRef) UnmarshalJSON(data []byte) error {
	var wire wireTarget
	if err := json.Unmarshal(data, &wire); err == nil {
		switch wire.Kind {
		case TargetPlayer:
			*t = PlayerTarget(wire.ID)
			return nil
		case TargetAI:
			*t = AITarget(wire.AIID)
			return nil
		case "":
			return fmt.Errorf("target ref missing kind")
		default:
			return fmt.Errorf("target ref kind %q unknown", wire.Kind)
		}
	}
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("target ref: %w", err)
	}
	*t = ParseTargetKey(key)
	return nil
}

// PlayerState is the mirrored snapshot of one player ship.
type PlayerState struct {
	ID             string   `json:"id"`
	Name           string   `json:"name,omitempty"`
	Position       Vec3     `json:"position"`
	Orientation    Quat     `json:"orientation"`
	Velocity       Vec3     `json:"velocity"`
	Health         float64  `json:"health"`
	MaxHealth      float64  `json:"maxHealth"`
	Ammo           int      `json:"ammo"`
	MaxAmmo        int      `json:"maxAmmo"`
	Speed          float64  `json:"speed"`
	Invulnerable   bool     `json:"invulnerable,omitempty"`
	Boosting       bool     `json:"boosting,omitempty"`
	Respawning     bool     `json:"respawning,omitempty"`
	DistanceToGoal float64  `json:"distanceToGoal"`
	Rank           int      `json:"rank,omitempty"`
	FinishTime     *float64 `json:"finishTime,omitempty"`
	SizeClass      string   `json:"sizeClass,omitempty"`
}

// AIState is the host-authoritative mirror of one AI ship. Peers only ever
// overwrite it wholesale from inbound messages.
type AIState struct {
	ID             int     `json:"id"`
	Position       Vec3    `json:"position"`
	Orientation    Quat    `json:"orientation"`
	Health         float64 `json:"health"`
	MaxHealth      float64 `json:"maxHealth"`
	Destroyed      bool    `json:"destroyed,omitempty"`
	Invulnerable   bool    `json:"invulnerable,omitempty"`
	DistanceToGoal float64 `json:"distanceToGoal"`
	SizeClass      string  `json:"sizeClass,omitempty"`
}

// ProjectileState describes an in-flight projectile for peer-side visuals.
// Hit resolution always happens on the host.
type ProjectileState struct {
	ID          string    `json:"id"`
	Position    Vec3      `json:"position"`
	Direction   Vec3      `json:"direction"`
	Owner       TargetRef `json:"owner"`
	PlayerOwned bool      `json:"playerOwned,omitempty"`
}

// RacePhase tracks where the session is in its lifecycle.
type RacePhase string

const (
	PhaseLobby     RacePhase = "lobby"
	PhaseCountdown RacePhase = "countdown"
	PhaseRacing    RacePhase = "racing"
	PhaseFinished  RacePhase = "finished"
)

// RaceStatus carries the shared race clock and phase.
type RaceStatus struct {
	Phase     RacePhase `json:"phase"`
	Clock     float64   `json:"clock"`
	Countdown float64   `json:"countdown,omitempty"`
}
