// Package session implements the per-Zork-connection state machine: mode
// selection, the give/get init protocols, signaling dispatch, heartbeat
// handoff, and data-channel routing.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/proxybridge/zorktun/internal/command"
	"github.com/proxybridge/zorktun/internal/config"
	"github.com/proxybridge/zorktun/internal/framer"
	"github.com/proxybridge/zorktun/internal/heartbeat"
	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/registry"
	"github.com/proxybridge/zorktun/internal/rtc"
	"github.com/proxybridge/zorktun/internal/signaling"
	"github.com/proxybridge/zorktun/internal/socksbridge"
	"github.com/proxybridge/zorktun/internal/socksserver"
)

// Mode is a session's monotone mode latch.
type Mode int

const (
	ModeUnset Mode = iota
	ModeGive
	ModeGet
)

// Session holds all per-connection state for one inbound Zork control
// connection. Every mutable field is guarded by mu: pion's callbacks run
// on pion's own goroutines, and this is this package's rendering of
// "confine one session's state to a single logical executor" as a mutex
// over the session rather than a dedicated goroutine-per-session, since
// the callback surface here (OnICECandidate, OnDataChannel, OnMessage) is
// inherently invoked from outside this session's own read-loop goroutine.
type Session struct {
	mu sync.Mutex

	clientID string
	mode     Mode
	legacy   bool

	conn    net.Conn
	control *framer.Framer
	logger  *logx.Logger

	cfg *config.Config
	reg *registry.Registry

	peer           *webrtc.PeerConnection
	remoteReceived bool
	pendingICE     []webrtc.ICECandidateInit

	transformerName   string
	transformerConfig string

	heartbeatMonitor *heartbeat.Monitor
	socksSessions    map[string]*socksbridge.Session

	socksListener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Session for a freshly accepted control connection.
func New(ctx context.Context, clientID string, conn net.Conn, cfg *config.Config, reg *registry.Registry) *Session {
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		clientID:      clientID,
		conn:          conn,
		control:       framer.New(conn),
		logger:        logx.New(clientID),
		cfg:           cfg,
		reg:           reg,
		socksSessions: make(map[string]*socksbridge.Session),
		ctx:           sctx,
		cancel:        cancel,
	}
}

// Run drives the session's control-channel read loop until the connection
// closes, "quit" is received, or the heartbeat channel opens (at which
// point the control transport is closed by design — the handoff is
// complete).
func (s *Session) Run() {
	defer s.teardown()
	for {
		line, err := s.control.Next()
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("control read ended: %v", err)
			}
			return
		}
		if s.currentMode() == ModeUnset {
			s.dispatchCommand(line)
		} else {
			s.dispatchSignaling(line)
		}
		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) currentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) reply(line string) {
	if _, err := io.WriteString(s.conn, line+"\n"); err != nil {
		s.logger.Debug("reply write failed: %v", err)
	}
}

// dispatchCommand implements §4.2's verb table.
func (s *Session) dispatchCommand(line string) {
	handlers := map[string]command.Handler{
		"ping": func(string, []string) (string, bool) { return "ping", true },
		"xyzzy": func(string, []string) (string, bool) { return "Nothing happens.", true },
		"version": func(string, []string) (string, bool) { return command.ProtocolVersion, true },
		"quit": func(string, []string) (string, bool) {
			s.cancel()
			s.conn.Close()
			return "", false
		},
		"getters": func(string, []string) (string, bool) {
			return command.FormatGetters(s.reg.NumGetters()), true
		},
		"transform": func(line string, tokens []string) (string, bool) {
			return s.handleTransform(line, tokens)
		},
		"give": func(string, []string) (string, bool) {
			s.beginGive()
			return "", false
		},
		"get": func(string, []string) (string, bool) {
			s.beginGet()
			return "", false
		},
	}
	reply, ok := command.Dispatch(line, handlers)
	if ok {
		s.reply(reply)
	}
}

const transformConfigMarker = " config "

func (s *Session) handleTransform(line string, tokens []string) (string, bool) {
	if len(tokens) >= 3 && tokens[1] == "with" {
		s.mu.Lock()
		s.transformerName = tokens[2]
		s.mu.Unlock()
		return "", false
	}
	if idx := indexOf(line, transformConfigMarker); idx >= 0 {
		s.mu.Lock()
		s.transformerConfig = line[idx+len(transformConfigMarker):]
		s.mu.Unlock()
		return "", false
	}
	return "usage: transform with <name> | transform config <blob>", true
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func (m Mode) String() string {
	switch m {
	case ModeGive:
		return "give"
	case ModeGet:
		return "get"
	default:
		return "unset"
	}
}

func (s *Session) setMode(m Mode) bool {
	s.mu.Lock()
	if s.mode != ModeUnset {
		s.mu.Unlock()
		return false
	}
	s.mode = m
	legacy := s.legacy
	s.mu.Unlock()

	s.reg.PutSession(registry.SessionInfo{ClientID: s.clientID, Mode: m.String(), Legacy: legacy})
	return true
}

func (s *Session) isLegacy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.legacy
}

func (s *Session) setLegacy() {
	s.mu.Lock()
	s.legacy = true
	mode := s.mode
	s.mu.Unlock()

	if mode != ModeUnset {
		s.reg.PutSession(registry.SessionInfo{ClientID: s.clientID, Mode: mode.String(), Legacy: true})
	}
}

// dispatchSignaling implements §4.3's envelope dispatch rules.
func (s *Session) dispatchSignaling(line string) {
	env, err := signaling.Parse([]byte(line))
	if err != nil {
		s.logger.Warn("signaling protocol error: %v", err)
		s.cancel()
		s.conn.Close()
		return
	}
	if env.Legacy {
		s.setLegacy()
	}

	switch env.Kind {
	case signaling.KindCandidate:
		s.handleCandidate(*env.Candidate)
	case signaling.KindOffer:
		if s.currentMode() == ModeGive {
			s.handleOffer(*env.SDP)
		}
	case signaling.KindAnswer:
		if s.currentMode() == ModeGet {
			s.handleAnswer(*env.SDP)
		}
	default:
		s.logger.Debug("ignoring unrecognized signaling message")
	}
}

func (s *Session) handleCandidate(c webrtc.ICECandidateInit) {
	s.mu.Lock()
	received := s.remoteReceived
	peer := s.peer
	if !received {
		s.pendingICE = append(s.pendingICE, c)
	}
	s.mu.Unlock()

	if received && peer != nil {
		if err := peer.AddICECandidate(c); err != nil {
			s.logger.Warn("AddICECandidate failed: %v", err)
		}
	}
}

func (s *Session) flushPendingICE() {
	s.mu.Lock()
	pending := s.pendingICE
	s.pendingICE = nil
	peer := s.peer
	s.mu.Unlock()

	for _, c := range pending {
		if err := peer.AddICECandidate(c); err != nil {
			s.logger.Warn("AddICECandidate (flushed) failed: %v", err)
		}
	}
}

func (s *Session) handleOffer(offer webrtc.SessionDescription) {
	s.mu.Lock()
	s.remoteReceived = true
	peer := s.peer
	s.mu.Unlock()

	if peer == nil {
		s.logger.Error("received offer before peer connection existed")
		return
	}
	if err := peer.SetRemoteDescription(offer); err != nil {
		s.logger.Error("SetRemoteDescription(offer) failed: %v", err)
		return
	}
	s.flushPendingICE()

	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		s.logger.Error("CreateAnswer failed: %v", err)
		return
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		s.logger.Error("SetLocalDescription(answer) failed: %v", err)
		return
	}

	raw, err := signaling.EncodeAnswer(answer, s.isLegacy())
	if err != nil {
		s.logger.Error("EncodeAnswer failed: %v", err)
		return
	}
	s.reply(string(raw))
}

func (s *Session) handleAnswer(answer webrtc.SessionDescription) {
	s.mu.Lock()
	s.remoteReceived = true
	peer := s.peer
	s.mu.Unlock()

	if peer == nil {
		s.logger.Error("received answer before peer connection existed")
		return
	}
	if err := peer.SetRemoteDescription(answer); err != nil {
		s.logger.Error("SetRemoteDescription(answer) failed: %v", err)
		return
	}
	s.flushPendingICE()
}

// beginGive implements the give-init protocol (§4.4).
func (s *Session) beginGive() {
	if !s.setMode(ModeGive) {
		return
	}
	peer, err := rtc.NewPeerConnection(s.cfg.STUNServers)
	if err != nil {
		s.logger.Error("failed to create peer connection: %v", err)
		return
	}
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()

	s.wireOutgoingICE(peer)
	peer.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.handleGiverDataChannel(dc)
	})
}

func (s *Session) wireOutgoingICE(peer *webrtc.PeerConnection) {
	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		raw, err := signaling.EncodeCandidate(c.ToJSON(), s.isLegacy())
		if err != nil {
			s.logger.Warn("EncodeCandidate failed: %v", err)
			return
		}
		s.reply(string(raw))
	})
}

// handleGiverDataChannel routes an incoming channel by label, per §4.4/4.6/4.7.
func (s *Session) handleGiverDataChannel(dc *webrtc.DataChannel) {
	if dc.Label() == rtc.HeartbeatLabel {
		s.onHeartbeatChannelOpen(dc)
		return
	}
	s.onProxyChannelOpen(dc)
}

// onHeartbeatChannelOpen implements the giver side of §4.6: closing the
// control transport, incrementing the getter count, and arming the
// timeout monitor.
func (s *Session) onHeartbeatChannelOpen(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		s.conn.Close()
		s.cancel()
		s.reg.IncGetters()

		monitor := heartbeat.NewMonitor(s.cfg.HeartbeatTimeout, func() {
			if _, clamped := s.reg.DecGetters(); clamped {
				s.logger.Error("num_getters clamped at zero on heartbeat timeout")
			}
		})
		s.mu.Lock()
		s.heartbeatMonitor = monitor
		s.mu.Unlock()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		s.mu.Lock()
		monitor := s.heartbeatMonitor
		s.mu.Unlock()
		if monitor != nil {
			monitor.Reset()
		}
	})
}

// onProxyChannelOpen implements §4.7: construct a SOCKS bridge keyed by
// channel label, wired to the channel's send/receive paths.
func (s *Session) onProxyChannelOpen(dc *webrtc.DataChannel) {
	label := dc.Label()

	sender := &dataChannelSender{dc: dc}
	bridge := socksbridge.New(s.clientID, label, s.isLegacy(), sender, s.cfg.DrainInterval, s.logger)

	s.mu.Lock()
	s.socksSessions[label] = bridge
	s.mu.Unlock()

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		bridge.HandleMessage(msg.Data, msg.IsString)
	})
	dc.OnClose(func() {
		s.mu.Lock()
		delete(s.socksSessions, label)
		s.mu.Unlock()
		bridge.Close()
	})
}

// dataChannelSender adapts *webrtc.DataChannel to socksbridge.Sender.
type dataChannelSender struct{ dc *webrtc.DataChannel }

func (d *dataChannelSender) SendBinary(data []byte) error { return d.dc.Send(data) }
func (d *dataChannelSender) SendText(data string) error   { return d.dc.SendText(data) }
func (d *dataChannelSender) BufferedAmount() uint64       { return d.dc.BufferedAmount() }

// beginGet implements the get-init protocol (§4.5).
func (s *Session) beginGet() {
	if !s.setMode(ModeGet) {
		return
	}

	ln, err := socksserver.Listen(s.reg, s.cfg.SocksPort)
	if err != nil {
		s.logger.Error("failed to bind local SOCKS listener: %v", err)
		return
	}
	s.mu.Lock()
	s.socksListener = ln
	s.mu.Unlock()

	peer, err := rtc.NewPeerConnection(s.cfg.STUNServers)
	if err != nil {
		s.logger.Error("failed to create peer connection: %v", err)
		return
	}
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()

	s.wireOutgoingICE(peer)
	peer.OnDataChannel(func(dc *webrtc.DataChannel) {
		// Getters do not expect giver-created channels (§4.9): close and
		// log, a defensive path only.
		s.logger.Error("unexpected giver-created data channel %q in getter mode", dc.Label())
		dc.Close()
	})

	hbChan, err := rtc.NewHeartbeatChannel(peer)
	if err != nil {
		s.logger.Error("failed to create heartbeat channel: %v", err)
		return
	}
	go heartbeat.Sender(s.ctx, s.cfg.HeartbeatInterval, func(payload string) error {
		return hbChan.SendText(payload)
	}, func(err error) {
		s.logger.Debug("heartbeat send stopped: %v", err)
	})

	go socksserver.Serve(s.ctx, ln, &channelFactory{peer: peer}, s.nextSessionID, s.logger)

	offer, err := peer.CreateOffer(nil)
	if err != nil {
		s.logger.Error("CreateOffer failed: %v", err)
		return
	}
	if err := peer.SetLocalDescription(offer); err != nil {
		s.logger.Error("SetLocalDescription(offer) failed: %v", err)
		return
	}
	s.emitOffer(offer)
}

// emitOffer writes the getter's initial SDP offer onto the control
// transport. Unlike answers, offers are never produced on the legacy
// path (a legacy peer's offer arrives from the peer, not from us), so
// this always uses the modern {type, sdp} shape.
func (s *Session) emitOffer(offer webrtc.SessionDescription) {
	payload := struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{Type: "offer", SDP: offer.SDP}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode offer: %v", err)
		return
	}
	s.reply(string(raw))
}

var sessionCounter struct {
	mu sync.Mutex
	n  uint64
}

func (s *Session) nextSessionID() string {
	sessionCounter.mu.Lock()
	defer sessionCounter.mu.Unlock()
	sessionCounter.n++
	return fmt.Sprintf("%s-s%d", s.clientID, sessionCounter.n)
}

// channelFactory adapts a *webrtc.PeerConnection to socksserver.ChannelFactory.
type channelFactory struct{ peer *webrtc.PeerConnection }

func (f *channelFactory) NewChannel(sessionID string) (socksserver.Channel, error) {
	dc, err := rtc.NewProxyChannel(f.peer, sessionID)
	if err != nil {
		return nil, err
	}
	return &proxyChannel{dc: dc}, nil
}

type proxyChannel struct{ dc *webrtc.DataChannel }

func (c *proxyChannel) Send(data []byte) error { return c.dc.Send(data) }
func (c *proxyChannel) OnMessage(cb func([]byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) { cb(msg.Data) })
}

func (s *Session) teardown() {
	s.cancel()
	s.conn.Close()
	s.reg.RemoveSession(s.clientID)

	s.mu.Lock()
	peer := s.peer
	monitor := s.heartbeatMonitor
	listener := s.socksListener
	sessions := s.socksSessions
	s.socksSessions = nil
	s.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	for _, bridge := range sessions {
		bridge.Close()
	}
	if listener != nil {
		listener.Close()
	}
	if peer != nil {
		peer.Close()
	}
}

