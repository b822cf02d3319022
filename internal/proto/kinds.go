package proto

// Kind discriminates the payload carried by a data-channel envelope. The
// numeric values are shared with the browser client and must not be
// reordered.
type Kind int

const (
	KindJoin Kind = iota
	KindLeave
	KindPlayerList
	KindGameStart
	KindInput
	KindFullState
	KindDeltaState
	KindProjectileFired
	KindProjectileImpact
	KindShipDamaged
	KindShipDestroyed
	KindShipRespawn
	KindBoosterCollected
	KindPlayerFinished
	KindRaceOver
	KindPing
	KindPong
)

var kindNames = map[Kind]string{
	KindJoin:             "join",
	KindLeave:            "leave",
	KindPlayerList:       "player-list",
	KindGameStart:        "game-start",
	KindInput:            "input",
	KindFullState:        "full-state",
	KindDeltaState:       "delta-state",
	KindProjectileFired:  "projectile-fired",
	KindProjectileImpact: "projectile-impact",
	KindShipDamaged:      "ship-damaged",
	KindShipDestroyed:    "ship-destroyed",
	KindShipRespawn:      "ship-respawn",
	KindBoosterCollected: "booster-collected",
	KindPlayerFinished:   "player-finished",
	KindRaceOver:         "race-over",
	KindPing:             "ping",
	KindPong:             "pong",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether the kind belongs to the closed wire enumeration.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}
