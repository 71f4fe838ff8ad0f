package socksbridge

import (
	"net"
	"sync"
)

// forwardingSocket is the giver's outbound TCP connection to the
// Internet, for the legacy path where this package drives the copy loop
// itself instead of delegating to go-socks5. It implements the Pause/
// Resume contract the backpressure Drainer expects: pausing blocks the
// read pump between reads, so data stops being pulled off the Internet
// side until the data channel's outbound buffer has drained.
type forwardingSocket struct {
	conn    net.Conn
	onData  func([]byte)
	closeCh chan struct{}
	once    sync.Once

	mu       sync.Mutex
	paused   bool
	resumeCh chan struct{}
}

func newForwardingSocket(conn net.Conn, onData func([]byte)) *forwardingSocket {
	return &forwardingSocket{
		conn:    conn,
		onData:  onData,
		closeCh: make(chan struct{}),
	}
}

// Pause stops the read pump from issuing further reads until Resume is
// called.
func (f *forwardingSocket) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused {
		return
	}
	f.paused = true
	f.resumeCh = make(chan struct{})
}

// Resume releases a paused read pump.
func (f *forwardingSocket) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.paused {
		return
	}
	f.paused = false
	close(f.resumeCh)
}

func (f *forwardingSocket) waitIfPaused() bool {
	f.mu.Lock()
	paused := f.paused
	resumeCh := f.resumeCh
	f.mu.Unlock()
	if !paused {
		return true
	}
	select {
	case <-resumeCh:
		return true
	case <-f.closeCh:
		return false
	}
}

// pump reads from the Internet-facing connection and delivers each chunk
// to onData, honoring Pause/Resume between reads.
func (f *forwardingSocket) pump() {
	buf := make([]byte, 16*1024)
	for {
		if !f.waitIfPaused() {
			return
		}
		n, err := f.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			f.onData(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (f *forwardingSocket) Close() {
	f.once.Do(func() {
		close(f.closeCh)
		f.conn.Close()
	})
}
