// Package socksbridge implements the giver-side proxy data-channel handler:
// for each getter-opened data channel it runs a SOCKS5 session bound to an
// outbound forwarding socket, applying backpressure between the two.
package socksbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/armon/go-socks5"

	"github.com/proxybridge/zorktun/internal/dcnet"
	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/rtc"
)

// Sender abstracts sending a message on the owning data channel, either as
// a binary frame or (legacy only) a text frame.
type Sender interface {
	SendBinary(data []byte) error
	SendText(data string) error
	BufferedAmount() uint64
}

// Session is one giver-side proxy data-channel bridge, registered under its
// channel label in the owning session's socksSessions map.
type Session struct {
	clientID string
	label    string
	legacy   bool

	sender  Sender
	logger  *logx.Logger
	drainer *rtc.Drainer

	firstOutboundSent bool

	// modern path
	conn       *dcnet.Conn
	modernConn atomic.Pointer[pausableConn]

	// legacy path
	fwd *forwardingSocket
}

// New constructs a giver-side bridge for a newly opened non-heartbeat data
// channel. For modern peers it immediately starts a go-socks5 server
// driven off the channel; for legacy peers it waits for the JSON request
// message that HandleMessage will deliver.
func New(clientID, label string, legacy bool, sender Sender, drainInterval time.Duration, logger *logx.Logger) *Session {
	s := &Session{
		clientID: clientID,
		label:    label,
		legacy:   legacy,
		sender:   sender,
		logger:   logger,
	}
	s.drainer = rtc.NewDrainer(bufferedAmounterFunc(sender.BufferedAmount), pauseResumer{s}, 500_000, drainInterval)

	if !legacy {
		s.startModern()
	}
	return s
}

type bufferedAmounterFunc func() uint64

func (f bufferedAmounterFunc) BufferedAmount() uint64 { return f() }

// pauseResumer adapts Session to rtc.ForwardingSocket for the drainer,
// forwarding to whichever backing forwarding socket is currently active:
// the legacy hand-rolled forwardingSocket, or the modern path's dialed
// target connection (go-socks5 drives that one's read loop itself, so it
// must be reachable here too or backpressure only ever throttles legacy
// sessions).
type pauseResumer struct{ s *Session }

func (p pauseResumer) Pause() {
	if p.s.fwd != nil {
		p.s.fwd.Pause()
	}
	if pc := p.s.modernConn.Load(); pc != nil {
		pc.Pause()
	}
}

func (p pauseResumer) Resume() {
	if p.s.fwd != nil {
		p.s.fwd.Resume()
	}
	if pc := p.s.modernConn.Load(); pc != nil {
		pc.Resume()
	}
}

func (s *Session) startModern() {
	s.conn = dcnet.NewConn(s.label, func(b []byte) error {
		return s.sendData(b)
	})
	server, err := socks5.New(&socks5.Config{
		Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			pc := newPausableConn(conn)
			s.modernConn.Store(pc)
			return pc, nil
		},
	})
	if err != nil {
		s.logger.Error("socksbridge: failed to construct go-socks5 server for %s: %v", s.label, err)
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("socksbridge: modern session %s panicked: %v", s.label, r)
			}
		}()
		if err := server.ServeConn(s.conn); err != nil {
			s.logger.Debug("socksbridge: modern session %s ended: %v", s.label, err)
		}
	}()
}

// sendData is the data-for-socks-client path (§4.7.4): send bytes to the
// getter, applying the legacy first-packet {data:...} wrapping rule, then
// run the backpressure check.
func (s *Session) sendData(b []byte) error {
	var err error
	if s.legacy && !s.firstOutboundSent {
		s.firstOutboundSent = true
		wrapped, marshalErr := json.Marshal(struct {
			Data string `json:"data"`
		}{Data: string(b)})
		if marshalErr != nil {
			return marshalErr
		}
		err = s.sender.SendText(string(wrapped))
	} else {
		err = s.sender.SendBinary(b)
	}
	if err != nil {
		return err
	}
	s.drainer.AfterSend()
	return nil
}

// controlMessage is the legacy pool-control sub-protocol envelope.
type controlMessage struct {
	Control string          `json:"control"`
	Data    json.RawMessage `json:"data"`
}

// HandleMessage processes one inbound channel message (§4.7.5).
func (s *Session) HandleMessage(data []byte, isText bool) {
	if !s.legacy || !isText {
		s.handleRawData(data)
		return
	}

	text := string(data)
	if text == "heartbeat" {
		if err := s.sender.SendText("heartbeat"); err != nil {
			s.logger.Warn("socksbridge: %s: failed heartbeat echo: %v", s.label, err)
		}
		return
	}

	var ctrl controlMessage
	if err := json.Unmarshal(data, &ctrl); err == nil && ctrl.Control != "" {
		switch ctrl.Control {
		case "OPEN":
			s.reset()
		case "CLOSE":
			// Ignored: per the asymmetric close contract, the giver never
			// tears down a channel from its own side.
		default:
			s.logger.Error("socksbridge: %s: unknown control value %q", s.label, ctrl.Control)
		}
		return
	}

	if s.fwd != nil {
		// Already established: this legacy channel is mid-session, so a
		// string payload that isn't heartbeat/control is unexpected.
		s.logger.Warn("socksbridge: %s: unexpected text payload after session start", s.label)
		return
	}

	var env struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Error("socksbridge: %s: malformed legacy request envelope: %v", s.label, err)
		return
	}
	s.startLegacy([]byte(env.Data))
}

func (s *Session) handleRawData(data []byte) {
	switch {
	case !s.legacy:
		s.conn.Feed(data)
	case s.fwd != nil:
		if _, err := s.fwd.conn.Write(data); err != nil {
			s.logger.Warn("socksbridge: %s: forwarding socket write failed: %v", s.label, err)
		}
	default:
		s.logger.Warn("socksbridge: %s: binary data before legacy request established", s.label)
	}
}

func (s *Session) startLegacy(rawRequest []byte) {
	frame, err := decodeLegacyRequest(rawRequest)
	if err != nil {
		s.logger.Error("socksbridge: %s: %v", s.label, err)
		return
	}
	req, err := parseRequestFrame(frame)
	if err != nil {
		s.logger.Error("socksbridge: %s: %v", s.label, err)
		return
	}

	target := fmt.Sprintf("%s:%d", req.Addr, req.Port)
	var d net.Dialer
	conn, err := d.DialContext(context.Background(), "tcp", target)
	if err != nil {
		s.logger.Warn("socksbridge: %s: dial %s failed: %v", s.label, target, err)
		_ = s.sendData(encodeReplyFrame(0x05))
		return
	}

	if err := s.sendData(encodeReplyFrame(replySucceeded)); err != nil {
		s.logger.Warn("socksbridge: %s: failed to send legacy reply: %v", s.label, err)
		conn.Close()
		return
	}

	s.fwd = newForwardingSocket(conn, func(b []byte) {
		if err := s.sendData(b); err != nil {
			s.logger.Warn("socksbridge: %s: send failed: %v", s.label, err)
		}
	})
	go s.fwd.pump()
}

// reset replaces the current SOCKS session with a fresh one for the same
// registration slot, per the legacy OPEN control message.
func (s *Session) reset() {
	s.Close()
	s.firstOutboundSent = false
	if !s.legacy {
		s.startModern()
	}
}

// Close tears down any forwarding socket or modern connection this bridge
// owns.
func (s *Session) Close() {
	s.drainer.Stop()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.modernConn.Store(nil)
	if s.fwd != nil {
		s.fwd.Close()
		s.fwd = nil
	}
}
