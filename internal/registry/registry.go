// Package registry holds the process-scoped counters and latches that the
// zork listener and every session share, in place of package-level globals.
package registry

import (
	"strconv"
	"sync"
)

// SessionInfo is a live per-session summary for operators, as surfaced by
// the admin endpoint.
type SessionInfo struct {
	ClientID string
	Mode     string
	Legacy   bool
}

// Registry tracks connection counters and one-shot latches for a single
// running daemon. Callers construct one Registry per process (or per test
// harness instance) and pass it explicitly; it is never a package global.
type Registry struct {
	mu sync.Mutex

	nextClientID       uint64
	numZorkConnections uint64
	numGetters         int64
	startedSocksServer bool
	sessions           map[string]SessionInfo
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]SessionInfo)}
}

// NextClientID mints a unique, monotonically increasing client tag of the
// form "zc<n>" and bumps NumZorkConnections.
func (r *Registry) NextClientID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextClientID++
	r.numZorkConnections++
	return clientIDPrefix + strconv.FormatUint(r.nextClientID, 10)
}

const clientIDPrefix = "zc"

// NumZorkConnections returns the total number of control connections
// accepted so far.
func (r *Registry) NumZorkConnections() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numZorkConnections
}

// NumGetters returns the current count of active giver-side tunnels.
func (r *Registry) NumGetters() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numGetters
}

// IncGetters increments the active-getter count.
func (r *Registry) IncGetters() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numGetters++
	return r.numGetters
}

// DecGetters decrements the active-getter count, clamping at zero.
// clamped reports whether the decrement would have gone negative and was
// clamped instead; callers are expected to log an error when it is true.
func (r *Registry) DecGetters() (value int64, clamped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numGetters <= 0 {
		r.numGetters = 0
		return 0, true
	}
	r.numGetters--
	return r.numGetters, false
}

// ClaimSocksPort reports whether this call is the first to claim the
// well-known SOCKS port; subsequent callers get false and must bind an
// ephemeral port instead.
func (r *Registry) ClaimSocksPort() (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startedSocksServer {
		return false
	}
	r.startedSocksServer = true
	return true
}

// StartedSocksServer reports whether the well-known SOCKS port has already
// been claimed by some getter in this process.
func (r *Registry) StartedSocksServer() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startedSocksServer
}

// PutSession records or updates the live summary for clientID. Sessions call
// this once their mode (and, once known, legacy-ness) is decided; calling it
// again with the same clientID overwrites the previous summary in place.
func (r *Registry) PutSession(info SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[info.ClientID] = info
}

// RemoveSession drops clientID's summary, typically on session teardown. It
// is a no-op if clientID was never registered.
func (r *Registry) RemoveSession(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
}

// Sessions returns a snapshot of every currently live session summary.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, info)
	}
	return out
}
