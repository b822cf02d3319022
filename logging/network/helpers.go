package network

import (
	"context"

	"warp-rally/netcode/logging"
)

const (
	// EventPeerConnected is emitted when a data channel to a peer opens.
	EventPeerConnected logging.EventType = "network.peer_connected"
	// EventPeerDisconnected is emitted when a data channel to a peer closes.
	EventPeerDisconnected logging.EventType = "network.peer_disconnected"
	// EventSendWhileClosed is emitted when a send is attempted before the channel is open.
	EventSendWhileClosed logging.EventType = "network.send_while_closed"
	// EventDecodeFailed is emitted when an inbound frame cannot be decoded.
	EventDecodeFailed logging.EventType = "network.decode_failed"
	// EventUnknownKind is emitted when an inbound envelope carries an unrecognized kind.
	EventUnknownKind logging.EventType = "network.unknown_kind"
	// EventNegotiationFailed is emitted when WebRTC offer/answer exchange fails.
	EventNegotiationFailed logging.EventType = "network.negotiation_failed"
	// EventStaleInput is emitted when an input frame arrives at or below the stored sequence.
	EventStaleInput logging.EventType = "network.stale_input"
)

// PeerConnectedPayload captures how the channel was established.
type PeerConnectedPayload struct {
	Channel   string `json:"channel"`
	Initiator bool   `json:"initiator"`
}

// PeerDisconnectedPayload captures why the channel went away.
type PeerDisconnectedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// SendWhileClosedPayload identifies the discarded message.
type SendWhileClosedPayload struct {
	Kind string `json:"kind"`
}

// DecodeFailedPayload captures the decode failure details.
type DecodeFailedPayload struct {
	Kind  int    `json:"kind,omitempty"`
	Error string `json:"error"`
}

// UnknownKindPayload carries the unrecognized kind value.
type UnknownKindPayload struct {
	Kind int `json:"kind"`
}

// NegotiationFailedPayload captures the stage at which negotiation broke down.
type NegotiationFailedPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// StaleInputPayload compares the arriving sequence with the newest stored one.
type StaleInputPayload struct {
	Seq    uint64 `json:"seq"`
	Latest uint64 `json:"latest"`
}

// PeerConnected publishes a channel-open event.
func PeerConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// PeerDisconnected publishes a channel-close event.
func PeerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PeerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// SendWhileClosed publishes a warning for a message dropped on a closed channel.
func SendWhileClosed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendWhileClosedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventSendWhileClosed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// DecodeFailed publishes a warning for an undecodable inbound frame.
func DecodeFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DecodeFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventDecodeFailed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// UnknownKind publishes a warning for an unrecognized envelope kind.
func UnknownKind(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload UnknownKindPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventUnknownKind,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// NegotiationFailed publishes an error for a failed WebRTC negotiation.
func NegotiationFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload NegotiationFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventNegotiationFailed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityError,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// StaleInput publishes a debug event for a discarded out-of-order input frame.
func StaleInput(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StaleInputPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventStaleInput,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}
