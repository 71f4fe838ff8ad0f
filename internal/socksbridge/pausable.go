package socksbridge

import (
	"net"
	"sync"
)

// pausableConn wraps a net.Conn so that reads from it can be paused and
// resumed, mirroring forwardingSocket's Pause/Resume contract for the
// modern path: go-socks5 drives the copy loop between the data channel and
// this connection itself, so throttling the target-facing socket here is
// the only way to apply backpressure to it once the data channel's
// outbound buffer crosses the water mark.
type pausableConn struct {
	net.Conn

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func newPausableConn(conn net.Conn) *pausableConn {
	return &pausableConn{Conn: conn}
}

// Pause blocks any Read in progress or about to start until Resume is
// called.
func (p *pausableConn) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		return
	}
	p.paused = true
	p.resumeCh = make(chan struct{})
}

// Resume releases a paused Read.
func (p *pausableConn) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		return
	}
	p.paused = false
	close(p.resumeCh)
}

func (p *pausableConn) waitIfPaused() {
	p.mu.Lock()
	paused := p.paused
	resumeCh := p.resumeCh
	p.mu.Unlock()
	if paused {
		<-resumeCh
	}
}

func (p *pausableConn) Read(b []byte) (int, error) {
	p.waitIfPaused()
	return p.Conn.Read(b)
}
