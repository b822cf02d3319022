package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame is one JSON text frame on the rendezvous socket. Requests carry a
// correlation id that the service echoes on the matching ack; pushes carry
// none.
type Frame struct {
	CID   uint64          `json:"cid,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client-originated events.
const (
	EventCreateRoom = "create-room"
	EventJoinRoom   = "join-room"
	EventRoomInfo   = "get-room-info"
	EventLeaveRoom  = "leave-room"
	EventOffer      = "webrtc-offer"
	EventAnswer     = "webrtc-answer"
	EventCandidate  = "webrtc-ice-candidate"
)

// Service-originated pushes.
const (
	EventWelcome      = "welcome"
	EventPlayerJoined = "player-joined"
	EventPlayerLeft   = "player-left"
)

// Machine-readable error codes carried in ack payloads.
const (
	CodeRoomNotFound = "room-not-found"
	CodeRoomFull     = "room-full"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomFull           = errors.New("room full")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	ErrClosed             = errors.New("signaling connection closed")
)

// ErrorFromCode maps an ack error code onto the exported sentinels.
func ErrorFromCode(code string) error {
	switch code {
	case "":
		return nil
	case CodeRoomNotFound:
		return ErrRoomNotFound
	case CodeRoomFull:
		return ErrRoomFull
	default:
		return fmt.Errorf("rendezvous error %q", code)
	}
}

// WelcomePayload delivers the service-assigned identity right after the
// socket opens.
type WelcomePayload struct {
	PlayerID string `json:"playerId"`
}

// RoomMember pairs an identity with its display name.
type RoomMember struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// CreateRoomRequest opens a fresh room with the requester as host.
type CreateRoomRequest struct {
	Name string `json:"name,omitempty"`
}

// CreateRoomAck answers a create-room request.
type CreateRoomAck struct {
	RoomID string `json:"roomId"`
	IsHost bool   `json:"isHost"`
	Error  string `json:"error,omitempty"`
}

// JoinRoomRequest asks to enter an existing room by code.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name,omitempty"`
}

// JoinRoomAck answers a join-room request.
type JoinRoomAck struct {
	RoomID  string       `json:"roomId,omitempty"`
	IsHost  bool         `json:"isHost"`
	HostID  string       `json:"hostId,omitempty"`
	Players []RoomMember `json:"players,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// RoomInfoRequest looks a room up without joining it.
type RoomInfoRequest struct {
	RoomID string `json:"roomId"`
}

// RoomInfoAck answers a get-room-info request.
type RoomInfoAck struct {
	Exists      bool   `json:"exists"`
	PlayerCount int    `json:"playerCount,omitempty"`
	HostID      string `json:"hostId,omitempty"`
}

// PlayerJoinedPush tells room members about a new arrival.
type PlayerJoinedPush struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name,omitempty"`
	PlayerCount int    `json:"playerCount"`
}

// PlayerLeftPush tells room members about a departure. NewHostID is set when
// the departure triggered a host migration.
type PlayerLeftPush struct {
	PlayerID  string `json:"playerId"`
	WasHost   bool   `json:"wasHost"`
	NewHostID string `json:"newHostId,omitempty"`
}

// SignalPayload is a relayed negotiation message. The service never inspects
// Body; it only rewrites TargetID into SenderID on the way through.
type SignalPayload struct {
	TargetID string          `json:"targetId,omitempty"`
	SenderID string          `json:"senderId,omitempty"`
	Body     json.RawMessage `json:"body"`
}
