// Package transport maintains one unreliable, unordered WebRTC data channel
// per remote peer. Negotiation payloads (offer, answer, ICE candidates) pass
// through as opaque JSON so the signaling layer never depends on WebRTC
// types, and the browser's RTCPeerConnection speaks the same shapes.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"warp-rally/netcode/internal/telemetry"
	"warp-rally/netcode/logging"
	lognet "warp-rally/netcode/logging/network"
)

// channelLabel names the single game data channel on every peer connection.
const channelLabel = "game"

// Observer receives peer lifecycle and traffic events. Exactly one observer
// is registered per Peer, at construction; callbacks arrive on the WebRTC
// stack's goroutines and must not block.
type Observer interface {
	// PeerOpened fires once when the data channel becomes usable.
	PeerOpened(remoteID string)
	// PeerMessage delivers one raw inbound datagram.
	PeerMessage(remoteID string, data []byte)
	// PeerClosed fires at most once when the channel or connection dies.
	PeerClosed(remoteID string)
	// PeerError reports a channel-level error; the peer may still close after.
	PeerError(remoteID string, err error)
	// LocalCandidate surfaces a discovered network path for relaying to the
	// remote side via the rendezvous service.
	LocalCandidate(remoteID string, candidate json.RawMessage)
}

// Config carries the knobs a Peer needs beyond its remote identity.
type Config struct {
	// STUNServers lists ICE server URLs; empty means host candidates only.
	STUNServers []string
	Logger      telemetry.Logger
	Publisher   logging.Publisher
}

// Peer wraps one RTCPeerConnection and its single data channel. Ordering and
// retransmission are disabled on the channel; every message above this layer
// is self-contained and timestamped, so loss and reordering are tolerated in
// exchange for minimum latency.
type Peer struct {
	remoteID string
	obs      Observer
	logger   telemetry.Logger
	pub      logging.Publisher

	pc *webrtc.PeerConnection

	mu            sync.Mutex
	dc            *webrtc.DataChannel
	remoteDescSet bool
	pending       []webrtc.ICECandidateInit
	open          bool
	initiator     bool

	closeOnce  sync.Once
	closedNote sync.Once
}

// NewPeer builds the connection shell for one remote peer. No negotiation
// happens until Initiate or Accept is called.
func NewPeer(remoteID string, cfg Config, obs Observer) (*Peer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(func(string, ...any) {})
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}

	var rtcCfg webrtc.Configuration
	if len(cfg.STUNServers) > 0 {
		rtcCfg.ICEServers = []webrtc.ICEServer{{URLs: cfg.STUNServers}}
	}
	pc, err := webrtc.NewPeerConnection(rtcCfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection for %s: %w", remoteID, err)
	}

	p := &Peer{
		remoteID: remoteID,
		obs:      obs,
		logger:   logger,
		pub:      pub,
		pc:       pc,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := json.Marshal(c.ToJSON())
		if err != nil {
			p.logger.Printf("transport: encode candidate for %s: %v", p.remoteID, err)
			return
		}
		p.obs.LocalCandidate(p.remoteID, raw)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			p.markClosed(state.String())
		}
	})

	// The answering side learns about the channel from the offerer.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.bindChannel(dc)
	})

	return p, nil
}

// RemoteID reports which peer this transport talks to.
func (p *Peer) RemoteID() string {
	return p.remoteID
}

// Open reports whether the data channel is currently usable.
func (p *Peer) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Initiate creates the data channel and produces the local offer. The caller
// relays the returned description to the remote peer via the rendezvous
// service.
func (p *Peer) Initiate() (json.RawMessage, error) {
	ordered := false
	retransmits := uint16(0)
	dc, err := p.pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		return nil, fmt.Errorf("create data channel for %s: %w", p.remoteID, err)
	}
	p.mu.Lock()
	p.initiator = true
	p.mu.Unlock()
	p.bindChannel(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer for %s: %w", p.remoteID, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("apply local offer for %s: %w", p.remoteID, err)
	}
	raw, err := json.Marshal(offer)
	if err != nil {
		return nil, fmt.Errorf("encode offer for %s: %w", p.remoteID, err)
	}
	return raw, nil
}

// Accept applies a remote offer and produces the local answer. Buffered
// remote candidates are applied once the remote description lands.
func (p *Peer) Accept(remoteOffer json.RawMessage) (json.RawMessage, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(remoteOffer, &offer); err != nil {
		return nil, fmt.Errorf("decode offer from %s: %w", p.remoteID, err)
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("apply remote offer from %s: %w", p.remoteID, err)
	}
	p.flushPendingCandidates()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer for %s: %w", p.remoteID, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("apply local answer for %s: %w", p.remoteID, err)
	}
	raw, err := json.Marshal(answer)
	if err != nil {
		return nil, fmt.Errorf("encode answer for %s: %w", p.remoteID, err)
	}
	return raw, nil
}

// Complete finalizes negotiation on the initiating side once the remote
// answer is relayed back.
func (p *Peer) Complete(remoteAnswer json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(remoteAnswer, &answer); err != nil {
		return fmt.Errorf("decode answer from %s: %w", p.remoteID, err)
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("apply remote answer from %s: %w", p.remoteID, err)
	}
	p.flushPendingCandidates()
	return nil
}

// AddRemoteCandidate feeds one discovered network path into the connection.
// Candidates may arrive before the remote description; those are buffered
// and applied when Accept or Complete lands it.
func (p *Peer) AddRemoteCandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode candidate from %s: %w", p.remoteID, err)
	}

	p.mu.Lock()
	if !p.remoteDescSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("apply candidate from %s: %w", p.remoteID, err)
	}
	return nil
}

func (p *Peer) flushPendingCandidates() {
	p.mu.Lock()
	p.remoteDescSet = true
	buffered := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, init := range buffered {
		if err := p.pc.AddICECandidate(init); err != nil {
			p.logger.Printf("transport: apply buffered candidate from %s: %v", p.remoteID, err)
		}
	}
}

// Send enqueues one datagram, best effort. When the channel is not open the
// message is dropped with a warning; the protocol above resends state
// periodically, so a dropped frame heals on its own. label names the message
// kind for diagnostics only. Reports whether the message was handed to the
// channel.
func (p *Peer) Send(label string, data []byte) bool {
	p.mu.Lock()
	dc, open := p.dc, p.open
	p.mu.Unlock()

	if !open || dc == nil {
		p.logger.Printf("transport: dropping %s for %s, channel not open", label, p.remoteID)
		lognet.SendWhileClosed(context.Background(), p.pub, 0,
			logging.EntityRef{ID: p.remoteID, Kind: logging.EntityKindPeer},
			lognet.SendWhileClosedPayload{Kind: label}, nil)
		return false
	}
	if err := dc.Send(data); err != nil {
		p.logger.Printf("transport: send %s to %s: %v", label, p.remoteID, err)
		return false
	}
	return true
}

// Close tears the connection down. Idempotent; pending unsent messages are
// discarded.
func (p *Peer) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		dc := p.dc
		p.open = false
		p.mu.Unlock()

		if dc != nil {
			if err := dc.Close(); err != nil {
				p.logger.Printf("transport: close channel to %s: %v", p.remoteID, err)
			}
		}
		if err := p.pc.Close(); err != nil {
			p.logger.Printf("transport: close connection to %s: %v", p.remoteID, err)
		}
	})
}

func (p *Peer) bindChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	initiator := p.initiator
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		p.open = true
		p.mu.Unlock()

		lognet.PeerConnected(context.Background(), p.pub, 0,
			logging.EntityRef{ID: p.remoteID, Kind: logging.EntityKindPeer},
			lognet.PeerConnectedPayload{Channel: dc.Label(), Initiator: initiator}, nil)
		p.obs.PeerOpened(p.remoteID)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.obs.PeerMessage(p.remoteID, msg.Data)
	})

	dc.OnClose(func() {
		p.markClosed("channel closed")
	})

	dc.OnError(func(err error) {
		p.logger.Printf("transport: channel error from %s: %v", p.remoteID, err)
		p.obs.PeerError(p.remoteID, err)
	})
}

// markClosed flips the peer into the closed state and notifies the observer
// exactly once regardless of how many lifecycle signals report the death.
func (p *Peer) markClosed(reason string) {
	p.closedNote.Do(func() {
		p.mu.Lock()
		p.open = false
		p.mu.Unlock()

		lognet.PeerDisconnected(context.Background(), p.pub, 0,
			logging.EntityRef{ID: p.remoteID, Kind: logging.EntityKindPeer},
			lognet.PeerDisconnectedPayload{Reason: reason}, nil)
		p.obs.PeerClosed(p.remoteID)
	})
}
