package rendezvous

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"warp-rally/netcode/internal/signal"
	"warp-rally/netcode/internal/telemetry"
	"warp-rally/netcode/logging"
	logsession "warp-rally/netcode/logging/session"
)

const writeWait = 10 * time.Second

// Service brokers rooms and relays opaque negotiation payloads between
// clients. It never decodes the payloads it forwards; game traffic flows
// peer-to-peer and never touches this process.
type Service struct {
	registry *Registry
	logger   telemetry.Logger
	pub      logging.Publisher
	clock    func() time.Time
	started  time.Time

	mu      sync.Mutex
	clients map[string]*client

	relayed      atomic.Uint64
	relayDropped atomic.Uint64
}

// client is one connected websocket with a buffered outbound queue, so a
// slow reader cannot stall room-wide pushes.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(id string, conn *websocket.Conn) *client {
	return &client{
		id:   id,
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		}
	}
}

// NewService wires a broker around the given registry. logger and pub may be
// nil; both default to no-ops.
func NewService(registry *Registry, logger telemetry.Logger, pub logging.Publisher) *Service {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Service{
		registry: registry,
		logger:   logger,
		pub:      pub,
		clock:    time.Now,
		started:  time.Now(),
		clients:  make(map[string]*client),
	}
}

// Registry exposes the room registry for the sweeper and diagnostics.
func (s *Service) Registry() *Registry {
	return s.registry
}

// ServeConn owns a freshly upgraded websocket: it assigns the connection its
// identity, pushes the welcome frame, and runs the read loop until the socket
// dies. The caller's goroutine is consumed.
func (s *Service) ServeConn(conn *websocket.Conn) {
	id := uuid.NewString()
	c := newClient(id, conn)

	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()

	go c.writePump()

	s.push(c, signal.EventWelcome, signal.WelcomePayload{PlayerID: id})
	s.readLoop(c)
}

func (s *Service) readLoop(c *client) {
	defer s.dropClient(c, "socket closed")
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame signal.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Printf("rendezvous: discarding malformed frame from %s: %v", c.id, err)
			continue
		}

		if code, ok := s.registry.RoomOf(c.id); ok {
			s.registry.Touch(code)
		}

		switch frame.Event {
		case signal.EventCreateRoom:
			s.handleCreateRoom(c, frame)
		case signal.EventJoinRoom:
			s.handleJoinRoom(c, frame)
		case signal.EventRoomInfo:
			s.handleRoomInfo(c, frame)
		case signal.EventLeaveRoom:
			s.handleLeave(c, "left room")
		case signal.EventOffer, signal.EventAnswer, signal.EventCandidate:
			s.handleRelay(c, frame)
		default:
			s.logger.Printf("rendezvous: unknown event %q from %s", frame.Event, c.id)
		}
	}
}

func (s *Service) handleCreateRoom(c *client, frame signal.Frame) {
	var req signal.CreateRoomRequest
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.logger.Printf("rendezvous: malformed create-room from %s: %v", c.id, err)
			return
		}
	}

	code := s.registry.CreateRoom(Member{ID: c.id, Name: req.Name})
	s.ack(c, frame.CID, signal.EventCreateRoom, signal.CreateRoomAck{RoomID: code, IsHost: true})

	logsession.RoomCreated(context.Background(), s.pub, 0,
		logging.EntityRef{ID: c.id, Kind: logging.EntityKindPlayer},
		logsession.RoomCreatedPayload{Code: code, Capacity: RoomCapacity}, nil)
}

func (s *Service) handleJoinRoom(c *client, frame signal.Frame) {
	var req signal.JoinRoomRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.logger.Printf("rendezvous: malformed join-room from %s: %v", c.id, err)
		return
	}

	result, err := s.registry.JoinRoom(req.RoomID, Member{ID: c.id, Name: req.Name})
	if err != nil {
		s.ack(c, frame.CID, signal.EventJoinRoom, signal.JoinRoomAck{Error: errorCode(err)})
		return
	}

	players := make([]signal.RoomMember, 0, len(result.Members))
	for _, m := range result.Members {
		players = append(players, signal.RoomMember{ID: m.ID, Name: m.Name})
	}
	s.ack(c, frame.CID, signal.EventJoinRoom, signal.JoinRoomAck{
		RoomID:  result.Code,
		IsHost:  false,
		HostID:  result.HostID,
		Players: players,
	})

	count := len(result.Members) + 1
	joined := signal.PlayerJoinedPush{PlayerID: c.id, Name: req.Name, PlayerCount: count}
	for _, m := range result.Members {
		s.pushTo(m.ID, signal.EventPlayerJoined, joined)
	}

	logsession.PeerJoined(context.Background(), s.pub, 0,
		logging.EntityRef{ID: c.id, Kind: logging.EntityKindPlayer},
		result.Code, logsession.PeerJoinedPayload{Name: req.Name, Count: count}, nil)
}

func (s *Service) handleRoomInfo(c *client, frame signal.Frame) {
	var req signal.RoomInfoRequest
	if err := json.Unmarshal(frame.Data, &req); err != nil {
		s.logger.Printf("rendezvous: malformed get-room-info from %s: %v", c.id, err)
		return
	}
	status := s.registry.RoomInfo(req.RoomID)
	s.ack(c, frame.CID, signal.EventRoomInfo, signal.RoomInfoAck{
		Exists:      status.Exists,
		PlayerCount: status.MemberCount,
		HostID:      status.HostID,
	})
}

// handleRelay forwards a negotiation payload to its named target. The body
// is never inspected; only the routing envelope is rewritten so the receiver
// learns who sent it. A missing target is a silent no-op.
func (s *Service) handleRelay(c *client, frame signal.Frame) {
	var payload signal.SignalPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		s.logger.Printf("rendezvous: malformed %s from %s: %v", frame.Event, c.id, err)
		return
	}
	if payload.TargetID == "" {
		s.logger.Printf("rendezvous: %s from %s names no target", frame.Event, c.id)
		return
	}

	forwarded := signal.SignalPayload{SenderID: c.id, Body: payload.Body}
	if s.pushTo(payload.TargetID, frame.Event, forwarded) {
		s.relayed.Add(1)
	} else {
		s.relayDropped.Add(1)
	}
}

func (s *Service) handleLeave(c *client, reason string) {
	result, ok := s.registry.Leave(c.id)
	if !ok {
		return
	}

	left := signal.PlayerLeftPush{PlayerID: c.id, WasHost: result.WasHost, NewHostID: result.NewHostID}
	for _, m := range result.Remaining {
		s.pushTo(m.ID, signal.EventPlayerLeft, left)
	}

	ctx := context.Background()
	actor := logging.EntityRef{ID: c.id, Kind: logging.EntityKindPlayer}
	logsession.PeerLeft(ctx, s.pub, 0, actor, result.Code,
		logsession.PeerLeftPayload{Reason: reason, Count: len(result.Remaining)}, nil)
	if result.NewHostID != "" {
		logsession.HostMigrated(ctx, s.pub, 0,
			logging.EntityRef{ID: result.NewHostID, Kind: logging.EntityKindPlayer},
			result.Code, logsession.HostMigratedPayload{Previous: c.id, Next: result.NewHostID}, nil)
	}
}

func (s *Service) dropClient(c *client, reason string) {
	s.mu.Lock()
	if current, ok := s.clients[c.id]; !ok || current != c {
		s.mu.Unlock()
		c.close()
		return
	}
	delete(s.clients, c.id)
	s.mu.Unlock()

	s.handleLeave(c, reason)
	c.close()
}

func (s *Service) lookup(id string) (*client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *Service) ack(c *client, cid uint64, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("rendezvous: failed to encode %s ack: %v", event, err)
		return
	}
	s.send(c, signal.Frame{CID: cid, Event: event, Data: raw})
}

func (s *Service) push(c *client, event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("rendezvous: failed to encode %s push: %v", event, err)
		return
	}
	s.send(c, signal.Frame{Event: event, Data: raw})
}

func (s *Service) pushTo(id string, event string, data any) bool {
	c, ok := s.lookup(id)
	if !ok {
		return false
	}
	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Printf("rendezvous: failed to encode %s push: %v", event, err)
		return false
	}
	s.send(c, signal.Frame{Event: event, Data: raw})
	return true
}

func (s *Service) send(c *client, frame signal.Frame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		s.logger.Printf("rendezvous: failed to encode frame: %v", err)
		return
	}
	if !c.enqueue(raw) {
		s.logger.Printf("rendezvous: backlog full, dropping %s frame for %s", frame.Event, c.id)
	}
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRoomNotFound):
		return signal.CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return signal.CodeRoomFull
	default:
		return "internal"
	}
}
