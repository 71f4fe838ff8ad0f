// Package rtc wraps pion/webrtc peer-connection construction and the
// data-channel backpressure scheme used by the giver-side SOCKS bridge.
package rtc

import (
	"github.com/pion/webrtc/v4"
)

// HeartbeatLabel is the reserved data-channel label used for the
// liveness/accounting channel. Every other label is a SOCKS-session id.
const HeartbeatLabel = "HEARTBEAT"

// NewPeerConnection creates a PeerConnection configured with the given STUN
// server URLs.
func NewPeerConnection(stunServers []string) (*webrtc.PeerConnection, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	}
	return webrtc.NewPeerConnection(config)
}

// NewHeartbeatChannel creates the ordered, reliable heartbeat data channel.
// It must exist before CreateOffer is called on the getter side, or ICE
// gathering never has a channel to associate with.
func NewHeartbeatChannel(pc *webrtc.PeerConnection) (*webrtc.DataChannel, error) {
	return pc.CreateDataChannel(HeartbeatLabel, nil)
}

// NewProxyChannel creates an ordered, reliable data channel labeled with a
// SOCKS session id, used by the getter-side local SOCKS server.
func NewProxyChannel(pc *webrtc.PeerConnection, label string) (*webrtc.DataChannel, error) {
	return pc.CreateDataChannel(label, nil)
}
