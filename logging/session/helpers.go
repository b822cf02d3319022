package session

import (
	"context"

	"warp-rally/netcode/logging"
)

const (
	// EventRoomCreated is emitted when the rendezvous service opens a room.
	EventRoomCreated logging.EventType = "session.room_created"
	// EventPeerJoined is emitted when a peer enters the session.
	EventPeerJoined logging.EventType = "session.peer_joined"
	// EventPeerLeft is emitted when a peer leaves or times out.
	EventPeerLeft logging.EventType = "session.peer_left"
	// EventHostMigrated is emitted when host authority moves to another peer.
	EventHostMigrated logging.EventType = "session.host_migrated"
	// EventRoomSwept is emitted when the idle-room sweeper destroys a room.
	EventRoomSwept logging.EventType = "session.room_swept"
	// EventRaceStarted is emitted when the host starts the race.
	EventRaceStarted logging.EventType = "session.race_started"
	// EventPlayerFinished is emitted when a player crosses the finish line.
	EventPlayerFinished logging.EventType = "session.player_finished"
	// EventRaceOver is emitted when the final rankings are published.
	EventRaceOver logging.EventType = "session.race_over"
)

// RoomCreatedPayload captures the room parameters.
type RoomCreatedPayload struct {
	Code     string `json:"code"`
	Capacity int    `json:"capacity"`
}

// PeerJoinedPayload captures the join metadata.
type PeerJoinedPayload struct {
	Name  string `json:"name,omitempty"`
	Count int    `json:"count"`
}

// PeerLeftPayload captures why the peer went away.
type PeerLeftPayload struct {
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count"`
}

// HostMigratedPayload records the authority handoff.
type HostMigratedPayload struct {
	Previous string `json:"previous"`
	Next     string `json:"next"`
}

// RaceStartedPayload captures the starting grid.
type RaceStartedPayload struct {
	Players int `json:"players"`
	AIShips int `json:"aiShips"`
}

// PlayerFinishedPayload records the placement of a finisher.
type PlayerFinishedPayload struct {
	Placement int `json:"placement"`
}

// RaceOverPayload carries the final ordering.
type RaceOverPayload struct {
	Rankings []string `json:"rankings"`
}

// RoomSweptPayload captures why the room aged out.
type RoomSweptPayload struct {
	IdleSeconds int64 `json:"idleSeconds"`
}

// RoomCreated publishes a room creation event.
func RoomCreated(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RoomCreatedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRoomCreated,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     payload.Code,
	})
}

// PeerJoined publishes a peer join event.
func PeerJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, room string, payload PeerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}

// PeerLeft publishes a peer departure event.
func PeerLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, room string, payload PeerLeftPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}

// HostMigrated publishes a host authority handoff event.
func HostMigrated(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, room string, payload HostMigratedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventHostMigrated,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}

// RoomSwept publishes an idle-room teardown event.
func RoomSwept(ctx context.Context, pub logging.Publisher, tick uint64, room string, payload RoomSweptPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRoomSwept,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: room, Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}

// RaceStarted publishes a race start event.
func RaceStarted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, room string, payload RaceStartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRaceStarted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}

// PlayerFinished publishes a finish line event.
func PlayerFinished(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, room string, payload PlayerFinishedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerFinished,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}

// RaceOver publishes the final rankings event.
func RaceOver(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, room string, payload RaceOverPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRaceOver,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategorySession,
		Payload:  payload,
		Extra:    extra,
		Room:     room,
	})
}
