package netcode

import (
	"strings"
	"time"

	"warp-rally/netcode/internal/telemetry"
	"warp-rally/netcode/logging"
)

// ControllerConfig captures the knobs for one multiplayer session stack.
// Zero values fall back to the defaults; construct with
// DefaultControllerConfig and override what you need.
type ControllerConfig struct {
	// RendezvousURL is the broker endpoint, http(s) or ws(s).
	RendezvousURL string
	// DisplayName is shown to other players in the lobby.
	DisplayName string
	// STUNServers seed ICE gathering for the peer transports.
	STUNServers []string

	FullStateInterval time.Duration
	DeltaInterval     time.Duration
	InputInterval     time.Duration
	PingInterval      time.Duration
	PingEviction      time.Duration

	InputRingCapacity int
	InboxCapacity     int
	ReconcileBlend    float64

	Logger    telemetry.Logger
	Publisher logging.Publisher
	Clock     func() time.Time
}

// DefaultControllerConfig returns the tuning the browser client ships with.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		RendezvousURL:     defaultRendezvousURL,
		STUNServers:       []string{defaultStunServer},
		FullStateInterval: fullStateInterval,
		DeltaInterval:     deltaInterval,
		InputInterval:     inputSendInterval,
		PingInterval:      pingInterval,
		PingEviction:      pingEvictionAfter,
		InputRingCapacity: inputRingCapacity,
		InboxCapacity:     inboxCapacity,
		ReconcileBlend:    reconcileBlend,
	}
}

// normalized returns a config with defaults applied to every zero field.
func (cfg ControllerConfig) normalized() ControllerConfig {
	normalized := cfg
	normalized.RendezvousURL = strings.TrimSpace(normalized.RendezvousURL)
	if normalized.RendezvousURL == "" {
		normalized.RendezvousURL = defaultRendezvousURL
	}
	if len(normalized.STUNServers) == 0 {
		normalized.STUNServers = []string{defaultStunServer}
	}
	if normalized.FullStateInterval <= 0 {
		normalized.FullStateInterval = fullStateInterval
	}
	if normalized.DeltaInterval <= 0 {
		normalized.DeltaInterval = deltaInterval
	}
	if normalized.InputInterval <= 0 {
		normalized.InputInterval = inputSendInterval
	}
	if normalized.PingInterval <= 0 {
		normalized.PingInterval = pingInterval
	}
	if normalized.PingEviction <= 0 {
		normalized.PingEviction = pingEvictionAfter
	}
	if normalized.InputRingCapacity <= 0 {
		normalized.InputRingCapacity = inputRingCapacity
	}
	if normalized.InboxCapacity <= 0 {
		normalized.InboxCapacity = inboxCapacity
	}
	if normalized.ReconcileBlend <= 0 || normalized.ReconcileBlend > 1 {
		normalized.ReconcileBlend = reconcileBlend
	}
	if normalized.Logger == nil {
		normalized.Logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if normalized.Publisher == nil {
		normalized.Publisher = logging.NopPublisher()
	}
	if normalized.Clock == nil {
		normalized.Clock = time.Now
	}
	return normalized
}
