// Package zork runs the control-protocol TCP listener: one accepted
// connection becomes one session.Session, run to completion on its own
// goroutine.
package zork

import (
	"context"
	"fmt"
	"net"

	"github.com/proxybridge/zorktun/internal/config"
	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/registry"
	"github.com/proxybridge/zorktun/internal/session"
)

// Listen binds the Zork control port.
func Listen(port int) (net.Listener, error) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("zork: listen on %s: %w", addr, err)
	}
	return ln, nil
}

// Serve accepts control connections until ctx is cancelled, minting a
// client id and a Session per connection (§4.10).
func Serve(ctx context.Context, ln net.Listener, cfg *config.Config, reg *registry.Registry, logger *logx.Logger) {
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
				logger.Error("zork: accept failed: %v", err)
				return
			}
		}

		clientID := reg.NextClientID()
		logger.Info("zork: accepted connection %s from %s", clientID, conn.RemoteAddr())

		sess := session.New(ctx, clientID, conn, cfg, reg)
		go func() {
			sess.Run()
			logger.Debug("zork: session %s ended", clientID)
		}()
	}
}
