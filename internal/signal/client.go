package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"warp-rally/netcode/internal/telemetry"
)

// Events receives pushes from the rendezvous service. Each client has
// exactly one subscriber, registered at construction time.
type Events interface {
	HandleWelcome(WelcomePayload)
	HandlePlayerJoined(PlayerJoinedPush)
	HandlePlayerLeft(PlayerLeftPush)
	HandleOffer(SignalPayload)
	HandleAnswer(SignalPayload)
	HandleCandidate(SignalPayload)
	HandleDisconnect(err error)
}

// Client speaks the rendezvous wire protocol over a single websocket.
// Requests are correlated to acks through the frame cid; pushes are
// dispatched to the Events subscriber from the read loop.
type Client struct {
	endpoint string
	events   Events
	logger   telemetry.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan Frame
	nextCID   atomic.Uint64

	idMu     sync.RWMutex
	playerID string

	closed atomic.Bool
	done   chan struct{}
}

func NewClient(rawURL string, events Events, logger telemetry.Logger) (*Client, error) {
	endpoint, err := wsEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	return &Client{
		endpoint: endpoint,
		events:   events,
		logger:   logger,
		pending:  make(map[uint64]chan Frame),
		done:     make(chan struct{}),
	}, nil
}

// wsEndpoint normalizes the configured rendezvous URL into the websocket
// endpoint. http(s) schemes are rewritten to ws(s) and the /ws path is
// appended when missing.
func wsEndpoint(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("rendezvous url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("rendezvous url scheme %q unsupported", parsed.Scheme)
	}
	if !strings.HasSuffix(parsed.Path, "/ws") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/ws"
	}
	return parsed.String(), nil
}

// Dial connects to the rendezvous service and starts the read loop. The
// service pushes a welcome frame with the assigned identity immediately
// after the upgrade.
func (c *Client) Dial(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial rendezvous: %w", err)
	}
	c.conn = conn
	go c.readLoop()
	return nil
}

// PlayerID returns the identity assigned by the welcome push, or empty
// before it arrives.
func (c *Client) PlayerID() string {
	c.idMu.RLock()
	defer c.idMu.RUnlock()
	return c.playerID
}

// CreateRoom opens a fresh room with this client as host.
func (c *Client) CreateRoom(ctx context.Context, name string) (CreateRoomAck, error) {
	var ack CreateRoomAck
	frame, err := c.request(ctx, EventCreateRoom, CreateRoomRequest{Name: name})
	if err != nil {
		return ack, err
	}
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		return ack, fmt.Errorf("decode create-room ack: %w", err)
	}
	if err := ErrorFromCode(ack.Error); err != nil {
		return ack, err
	}
	return ack, nil
}

// JoinRoom enters an existing room by code.
func (c *Client) JoinRoom(ctx context.Context, roomID, name string) (JoinRoomAck, error) {
	var ack JoinRoomAck
	frame, err := c.request(ctx, EventJoinRoom, JoinRoomRequest{RoomID: roomID, Name: name})
	if err != nil {
		return ack, err
	}
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		return ack, fmt.Errorf("decode join-room ack: %w", err)
	}
	if err := ErrorFromCode(ack.Error); err != nil {
		return ack, err
	}
	return ack, nil
}

// RoomInfo looks up a room without joining it.
func (c *Client) RoomInfo(ctx context.Context, roomID string) (RoomInfoAck, error) {
	var ack RoomInfoAck
	frame, err := c.request(ctx, EventRoomInfo, RoomInfoRequest{RoomID: roomID})
	if err != nil {
		return ack, err
	}
	if err := json.Unmarshal(frame.Data, &ack); err != nil {
		return ack, fmt.Errorf("decode room-info ack: %w", err)
	}
	return ack, nil
}

// SendOffer relays a negotiation offer to the target. Fire-and-forget.
func (c *Client) SendOffer(targetID string, body json.RawMessage) error {
	return c.notify(EventOffer, SignalPayload{TargetID: targetID, Body: body})
}

// SendAnswer relays a negotiation answer to the target. Fire-and-forget.
func (c *Client) SendAnswer(targetID string, body json.RawMessage) error {
	return c.notify(EventAnswer, SignalPayload{TargetID: targetID, Body: body})
}

// SendCandidate relays a discovered network path to the target.
// Fire-and-forget.
func (c *Client) SendCandidate(targetID string, body json.RawMessage) error {
	return c.notify(EventCandidate, SignalPayload{TargetID: targetID, Body: body})
}

// LeaveRoom announces an orderly departure. The service also detects
// unannounced departures through the socket close.
func (c *Client) LeaveRoom() error {
	return c.notify(EventLeaveRoom, struct{}{})
}

// Close tears the socket down. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) request(ctx context.Context, event string, data any) (Frame, error) {
	cid := c.nextCID.Add(1)
	ch := make(chan Frame, 1)
	c.pendingMu.Lock()
	c.pending[cid] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, cid)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(cid, event, data); err != nil {
		return Frame{}, err
	}
	select {
	case frame := <-ch:
		return frame, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Frame{}, fmt.Errorf("%s: %w", event, ErrNegotiationTimeout)
		}
		return Frame{}, ctx.Err()
	case <-c.done:
		return Frame{}, ErrClosed
	}
}

func (c *Client) notify(event string, data any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.writeFrame(0, event, data)
}

func (c *Client) writeFrame(cid uint64, event string, data any) error {
	if c.conn == nil {
		return ErrClosed
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(Frame{CID: cid, Event: event, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

func (c *Client) readLoop() {
	var loopErr error
	defer func() {
		close(c.done)
		if c.events != nil {
			c.events.HandleDisconnect(loopErr)
		}
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				loopErr = err
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Printf("signal: dropping malformed frame: %v", err)
			continue
		}
		if frame.CID != 0 {
			c.deliverAck(frame)
			continue
		}
		c.dispatchPush(frame)
	}
}

func (c *Client) deliverAck(frame Frame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.CID]
	if ok {
		delete(c.pending, frame.CID)
	}
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Printf("signal: ack for unknown cid %d", frame.CID)
		return
	}
	ch <- frame
}

func (c *Client) dispatchPush(frame Frame) {
	if c.events == nil {
		return
	}
	switch frame.Event {
	case EventWelcome:
		var payload WelcomePayload
		if !c.decodePush(frame, &payload) {
			return
		}
		c.idMu.Lock()
		c.playerID = payload.PlayerID
		c.idMu.Unlock()
		c.events.HandleWelcome(payload)
	case EventPlayerJoined:
		var payload PlayerJoinedPush
		if c.decodePush(frame, &payload) {
			c.events.HandlePlayerJoined(payload)
		}
	case EventPlayerLeft:
		var payload PlayerLeftPush
		if c.decodePush(frame, &payload) {
			c.events.HandlePlayerLeft(payload)
		}
	case EventOffer:
		var payload SignalPayload
		if c.decodePush(frame, &payload) {
			c.events.HandleOffer(payload)
		}
	case EventAnswer:
		var payload SignalPayload
		if c.decodePush(frame, &payload) {
			c.events.HandleAnswer(payload)
		}
	case EventCandidate:
		var payload SignalPayload
		if c.decodePush(frame, &payload) {
			c.events.HandleCandidate(payload)
		}
	default:
		c.logger.Printf("signal: unknown push event %q", frame.Event)
	}
}

func (c *Client) decodePush(frame Frame, v any) bool {
	if err := json.Unmarshal(frame.Data, v); err != nil {
		c.logger.Printf("signal: dropping malformed %s push: %v", frame.Event, err)
		return false
	}
	return true
}
