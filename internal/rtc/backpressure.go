package rtc

import (
	"sync"
	"time"
)

// BufferedAmounter is the subset of *webrtc.DataChannel this package needs,
// kept as an interface so tests can fake a channel's buffered-amount
// without standing up a real peer connection.
type BufferedAmounter interface {
	BufferedAmount() uint64
}

// ForwardingSocket is the external collaborator a Drainer pauses and
// resumes: the giver's outbound TCP connection to the Internet.
type ForwardingSocket interface {
	Pause()
	Resume()
}

// Drainer applies the giver-side backpressure rule from the proxy
// data-channel handler: after every send, if the channel's buffered
// amount has reached the water mark and no drain timer is running yet,
// pause the forwarding socket and start a polling timer; the timer
// resumes the socket and clears itself once the buffer drops back under
// the mark. High and low water marks are intentionally equal — hysteresis
// comes from the timer's dwell time, not from mark separation.
type Drainer struct {
	mu         sync.Mutex
	channel    BufferedAmounter
	socket     ForwardingSocket
	mark       uint64
	interval   time.Duration
	draining   bool
	stopDrainC chan struct{}
}

// NewDrainer returns a Drainer bound to a channel/socket pair with the
// given water mark and drain-timer poll interval.
func NewDrainer(channel BufferedAmounter, socket ForwardingSocket, mark uint64, interval time.Duration) *Drainer {
	return &Drainer{channel: channel, socket: socket, mark: mark, interval: interval}
}

// AfterSend must be called once after each outbound send on the channel.
func (d *Drainer) AfterSend() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return
	}
	if d.channel.BufferedAmount() < d.mark {
		return
	}
	d.draining = true
	d.socket.Pause()
	d.stopDrainC = make(chan struct{})
	go d.pollDrain(d.stopDrainC)
}

func (d *Drainer) pollDrain(stop chan struct{}) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.mu.Lock()
			if d.channel.BufferedAmount() < d.mark {
				d.draining = false
				d.socket.Resume()
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
		}
	}
}

// Stop cancels any in-flight drain timer without resuming the socket;
// callers use this during session teardown.
func (d *Drainer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining && d.stopDrainC != nil {
		close(d.stopDrainC)
		d.draining = false
	}
}
