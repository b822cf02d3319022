package netcode

import (
	"context"
	"encoding/json"
	"time"

	"warp-rally/netcode/internal/proto"
	"warp-rally/netcode/internal/signal"
	"warp-rally/netcode/internal/transport"
	"warp-rally/netcode/logging"
	lognet "warp-rally/netcode/logging/network"
)

// Session lifecycle. CreateSession and JoinSession block on the rendezvous
// round trip and are meant to be called from the same goroutine that drives
// Tick, between frames. Everything the service and the transports push back
// afterwards lands in the inbox and is handled by Tick.

// CreateSession opens a rendezvous connection and hosts a fresh room.
func (c *Controller) CreateSession(ctx context.Context) (SessionInfo, error) {
	broker, err := c.connect(ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	ack, err := broker.CreateRoom(ctx, c.cfg.DisplayName)
	if err != nil {
		c.abortConnect(broker)
		return SessionInfo{}, err
	}
	localID := broker.PlayerID()
	c.beginSession(ack.RoomID, localID, localID)
	c.logger.Printf("session: hosting room %s as %s", ack.RoomID, localID)
	return c.directory.Session(), nil
}

// JoinSession enters an existing room by code and starts negotiating a
// data channel with every member already inside. The joiner always
// initiates; existing members only answer.
func (c *Controller) JoinSession(ctx context.Context, code string) (SessionInfo, error) {
	broker, err := c.connect(ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	ack, err := broker.JoinRoom(ctx, code, c.cfg.DisplayName)
	if err != nil {
		c.abortConnect(broker)
		return SessionInfo{}, err
	}
	localID := broker.PlayerID()
	hostID := ack.HostID
	if hostID == "" {
		hostID = localID
	}
	c.beginSession(ack.RoomID, localID, hostID)
	c.logger.Printf("session: joined room %s as %s (host %s)", ack.RoomID, localID, hostID)
	for _, member := range ack.Players {
		if member.ID == localID {
			continue
		}
		c.directory.AddPeer(member.ID, member.Name)
		c.openTo(member.ID)
	}
	return c.directory.Session(), nil
}

// LeaveSession says goodbye on the data channels, tears down every
// transport and the rendezvous link, and clears all session state. Safe to
// call when no session is active.
func (c *Controller) LeaveSession() {
	if c.brokerRef() == nil {
		return
	}
	code := c.directory.Session().Code
	c.broadcast(proto.KindLeave, proto.LeavePayload{ID: c.directory.LocalID()}, c.clock())

	c.mu.Lock()
	broker := c.signal
	c.signal = nil
	links := make([]peerConn, 0, len(c.peers))
	for _, link := range c.peers {
		links = append(links, link)
	}
	c.peers = make(map[string]peerConn)
	done := c.sessionDone
	c.mu.Unlock()

	close(done)
	for _, link := range links {
		link.Close()
	}
	if broker != nil {
		if err := broker.LeaveRoom(); err != nil {
			c.logger.Printf("session: leave-room: %v", err)
		}
		broker.Close()
	}

	c.directory.Reset()
	c.states.Reset()
	c.latency.Reset()
	c.relay = nil
	c.discardInbox()
	c.logger.Printf("session: left room %s", code)
}

func (c *Controller) connect(ctx context.Context) (signalBroker, error) {
	if c.brokerRef() != nil {
		return nil, ErrSessionActive
	}
	broker, err := c.newSignal(c.cfg.RendezvousURL, c, c.logger)
	if err != nil {
		return nil, err
	}
	if err := broker.Dial(ctx); err != nil {
		broker.Close()
		return nil, err
	}
	c.mu.Lock()
	c.signal = broker
	c.sessionDone = make(chan struct{})
	c.mu.Unlock()
	return broker, nil
}

func (c *Controller) abortConnect(broker signalBroker) {
	broker.Close()
	c.mu.Lock()
	if c.signal == broker {
		c.signal = nil
	}
	c.mu.Unlock()
}

func (c *Controller) beginSession(code, localID, hostID string) {
	c.directory.BeginSession(code, localID, c.cfg.DisplayName, hostID)
	c.states.Reset()
	c.latency.Reset()
	c.relay = NewInputRelay(localID, c.cfg.InputRingCapacity, c.clock, c.directory.IsLocalHost,
		func(input proto.InputPayload) bool {
			return c.sendToHost(proto.KindInput, input)
		})
	// Zero stamps make the first tick in the session fire every cadence.
	c.lastFull, c.lastDelta, c.lastInput = time.Time{}, time.Time{}, time.Time{}
}

func (c *Controller) brokerRef() signalBroker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

func (c *Controller) dialPeer(remoteID string) (peerConn, error) {
	return transport.NewPeer(remoteID, transport.Config{
		STUNServers: c.cfg.STUNServers,
		Logger:      c.logger,
		Publisher:   c.pub,
	}, c)
}

// ensurePeer returns the transport for remoteID, creating one on first use.
// Creation happens outside the lock; a racing duplicate is closed.
func (c *Controller) ensurePeer(remoteID string) (peerConn, error) {
	c.mu.Lock()
	if link, ok := c.peers[remoteID]; ok {
		c.mu.Unlock()
		return link, nil
	}
	c.mu.Unlock()

	link, err := c.newPeer(remoteID)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if existing, ok := c.peers[remoteID]; ok {
		c.mu.Unlock()
		link.Close()
		return existing, nil
	}
	c.peers[remoteID] = link
	c.mu.Unlock()
	return link, nil
}

func (c *Controller) openTo(remoteID string) {
	link, err := c.ensurePeer(remoteID)
	if err != nil {
		c.negotiationFailed(remoteID, "create", err)
		return
	}
	offer, err := link.Initiate()
	if err != nil {
		c.negotiationFailed(remoteID, "offer", err)
		c.closePeer(remoteID)
		return
	}
	broker := c.brokerRef()
	if broker == nil {
		return
	}
	if err := broker.SendOffer(remoteID, offer); err != nil {
		c.negotiationFailed(remoteID, "offer-send", err)
	}
}

func (c *Controller) negotiationFailed(remoteID, stage string, err error) {
	c.logger.Printf("session: negotiation with %s failed at %s: %v", remoteID, stage, err)
	lognet.NegotiationFailed(context.Background(), c.pub, 0,
		logging.EntityRef{ID: remoteID, Kind: logging.EntityKindPeer},
		lognet.NegotiationFailedPayload{Stage: stage, Error: err.Error()}, nil)
}

func (c *Controller) discardInbox() {
	for {
		select {
		case <-c.inbox:
		default:
			return
		}
	}
}

// enqueueControl delivers roster and lifecycle events that must not be
// dropped. It blocks until the tick loop makes room, or gives up when the
// session is torn down.
func (c *Controller) enqueueControl(ev inboundEvent) {
	c.mu.Lock()
	done := c.sessionDone
	c.mu.Unlock()
	select {
	case c.inbox <- ev:
	case <-done:
	}
}

// signal.Events, called from the rendezvous read loop.

func (c *Controller) HandleWelcome(w signal.WelcomePayload) {
	c.logger.Printf("session: rendezvous assigned identity %s", w.PlayerID)
}

func (c *Controller) HandlePlayerJoined(p signal.PlayerJoinedPush) {
	c.enqueueControl(inboundEvent{kind: inboundJoined, remoteID: p.PlayerID, name: p.Name})
}

func (c *Controller) HandlePlayerLeft(p signal.PlayerLeftPush) {
	c.enqueueControl(inboundEvent{kind: inboundLeft, remoteID: p.PlayerID, wasHost: p.WasHost, newHost: p.NewHostID})
}

func (c *Controller) HandleOffer(sp signal.SignalPayload) {
	link, err := c.ensurePeer(sp.SenderID)
	if err != nil {
		c.negotiationFailed(sp.SenderID, "create", err)
		return
	}
	answer, err := link.Accept(sp.Body)
	if err != nil {
		c.negotiationFailed(sp.SenderID, "answer", err)
		c.closePeer(sp.SenderID)
		return
	}
	broker := c.brokerRef()
	if broker == nil {
		return
	}
	if err := broker.SendAnswer(sp.SenderID, answer); err != nil {
		c.negotiationFailed(sp.SenderID, "answer-send", err)
	}
}

func (c *Controller) HandleAnswer(sp signal.SignalPayload) {
	link := c.peerLink(sp.SenderID)
	if link == nil {
		c.logger.Printf("session: answer from unknown peer %s", sp.SenderID)
		return
	}
	if err := link.Complete(sp.Body); err != nil {
		c.negotiationFailed(sp.SenderID, "complete", err)
	}
}

func (c *Controller) HandleCandidate(sp signal.SignalPayload) {
	link := c.peerLink(sp.SenderID)
	if link == nil {
		return
	}
	if err := link.AddRemoteCandidate(sp.Body); err != nil {
		c.logger.Printf("session: candidate from %s: %v", sp.SenderID, err)
	}
}

func (c *Controller) HandleDisconnect(err error) {
	c.enqueueControl(inboundEvent{kind: inboundBrokerLost, err: err})
}

// transport.Observer, called from pion's goroutines.

func (c *Controller) PeerOpened(remoteID string) {
	c.enqueueControl(inboundEvent{kind: inboundOpened, remoteID: remoteID})
}

// PeerMessage forwards a frame to the tick loop. Frames are the one event
// class allowed to drop under pressure; the next full state heals whatever
// a dropped frame carried.
func (c *Controller) PeerMessage(remoteID string, data []byte) {
	select {
	case c.inbox <- inboundEvent{kind: inboundFrame, remoteID: remoteID, data: data}:
	default:
		c.counters.IncrementInboxDropped()
	}
}

func (c *Controller) PeerClosed(remoteID string) {
	c.enqueueControl(inboundEvent{kind: inboundClosed, remoteID: remoteID})
}

func (c *Controller) PeerError(remoteID string, err error) {
	select {
	case c.inbox <- inboundEvent{kind: inboundErrored, remoteID: remoteID, err: err}:
	default:
	}
}

func (c *Controller) LocalCandidate(remoteID string, candidate json.RawMessage) {
	broker := c.brokerRef()
	if broker == nil {
		return
	}
	if err := broker.SendCandidate(remoteID, candidate); err != nil {
		c.logger.Printf("session: trickle candidate to %s: %v", remoteID, err)
	}
}
