// Package heartbeat implements the getter-side periodic sender and the
// giver-side timeout-based liveness monitor over the reserved HEARTBEAT
// data channel.
package heartbeat

import (
	"context"
	"time"
)

// Literal is the fixed payload sent on every heartbeat tick.
const Literal = "heartbeat"

// Sender fires on the given interval, invoking send with the heartbeat
// literal, until ctx is cancelled or send fails (the send error is passed
// to onErr and the loop ends). It is meant to be run in its own
// goroutine; the caller's ctx cancellation is what stops it, closing the
// leaked-timer issue the getter side historically had.
func Sender(ctx context.Context, interval time.Duration, send func(string) error, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(Literal); err != nil {
				onErr(err)
				return
			}
		}
	}
}

// Monitor is the giver-side single-shot timeout liveness tracker: it
// expects to be Reset on every inbound heartbeat message, and invokes
// onTimeout when the configured timeout (15s by default) elapses without a
// Reset. A Reset after onTimeout has fired re-arms the timer for a new
// period. Stop cancels it permanently, e.g. on session teardown.
type Monitor struct {
	timeout time.Duration
	timer   *time.Timer
	onFire  func()
}

// NewMonitor creates an armed Monitor; onTimeout fires in its own
// goroutine the first time the timer elapses without an intervening
// Reset.
func NewMonitor(timeout time.Duration, onTimeout func()) *Monitor {
	m := &Monitor{timeout: timeout, onFire: onTimeout}
	m.timer = time.AfterFunc(timeout, onTimeout)
	return m
}

// Reset cancels the pending timeout and re-arms it for another full
// interval, called on every inbound heartbeat message.
func (m *Monitor) Reset() {
	m.timer.Stop()
	m.timer.Reset(m.timeout)
}

// Stop cancels the timeout permanently.
func (m *Monitor) Stop() {
	m.timer.Stop()
}
