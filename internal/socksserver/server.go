// Package socksserver runs the getter-side local SOCKS5 listener. It does
// not itself speak SOCKS5: the real protocol runs end-to-end between the
// local client and the giver's bridge, relayed transparently over a data
// channel per accepted connection.
package socksserver

import (
	"context"
	"fmt"
	"net"

	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/registry"
)

// Channel is the subset of a proxy data channel this package needs: send
// bytes from the local client, and register a handler for bytes destined
// for the local client.
type Channel interface {
	Send(data []byte) error
	OnMessage(func(data []byte))
}

// ChannelFactory creates a new proxy data channel labeled with an opaque
// session id, on first use by an accepted local client.
type ChannelFactory interface {
	NewChannel(sessionID string) (Channel, error)
}

// Listen binds the local SOCKS5 listener: the first call for a given
// registry claims the well-known port; subsequent concurrent getters in
// the same process get an OS-assigned ephemeral port instead (§4.8, §8
// boundary behavior 9).
func Listen(reg *registry.Registry, port int) (net.Listener, error) {
	bindPort := 0
	if reg.ClaimSocksPort() {
		bindPort = port
	}
	addr := fmt.Sprintf("0.0.0.0:%d", bindPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("socksserver: listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts local SOCKS5 clients until ctx is cancelled, spawning one
// goroutine per connection. nextSessionID mints the opaque id used both as
// the channel label and for log correlation.
func Serve(ctx context.Context, ln net.Listener, factory ChannelFactory, nextSessionID func() string, logger *logx.Logger) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logger.Error("socksserver: accept failed: %v", err)
				return
			}
		}
		sessionID := nextSessionID()
		go serveConn(conn, sessionID, factory, logger)
	}
}

// serveConn implements the four-method adapter (§4.8): data from the local
// SOCKS client is sent on a fresh data channel; data arriving on the
// channel is written back to the client. Disconnection is logged only —
// the getter never closes the channel from this side, since the giver may
// still be mid-flight on a legacy client's pooled channel.
func serveConn(conn net.Conn, sessionID string, factory ChannelFactory, logger *logx.Logger) {
	ch, err := factory.NewChannel(sessionID)
	if err != nil {
		logger.Error("socksserver: %s: failed to open data channel: %v", sessionID, err)
		conn.Close()
		return
	}

	ch.OnMessage(func(data []byte) {
		if _, err := conn.Write(data); err != nil {
			logger.Warn("socksserver: %s: write to local client failed: %v", sessionID, err)
		}
	})

	buf := make([]byte, 16*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if sendErr := ch.Send(buf[:n]); sendErr != nil {
				logger.Warn("socksserver: %s: send on channel failed: %v", sessionID, sendErr)
				break
			}
		}
		if err != nil {
			break
		}
	}

	// handle_disconnect(): log only, do not close the channel.
	logger.Debug("socksserver: %s: local client disconnected", sessionID)
}
