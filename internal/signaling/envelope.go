// Package signaling models the Zork signaling wire shapes — modern and
// legacy — as a single tagged union, parsed once at the boundary.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind discriminates the parsed envelope variants.
type Kind int

const (
	KindUnknown Kind = iota
	KindOffer
	KindAnswer
	KindCandidate
)

// ErrMultiMessageLegacy is returned when a legacy envelope's PLAIN array
// does not carry exactly one inner message.
var ErrMultiMessageLegacy = errors.New("signaling: legacy PLAIN envelope must carry exactly one message")

// ErrUnsupportedSignalsChannel is returned for any legacy channel other
// than PLAIN.
var ErrUnsupportedSignalsChannel = errors.New("signaling: only the PLAIN signals channel is supported")

// Envelope is the parsed, typed representation of one signaling message,
// regardless of which wire shape it arrived in.
type Envelope struct {
	Kind      Kind
	SDP       *webrtc.SessionDescription
	Candidate *webrtc.ICECandidateInit
	Legacy    bool
}

// modern wire shapes.
type modernSDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type modernCandidate struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// legacy wire shapes.
type legacyEnvelope struct {
	Signals struct {
		PLAIN json.RawMessage `json:"PLAIN"`
	} `json:"signals"`
}

type legacyOther struct {
	Signals map[string]json.RawMessage `json:"signals"`
}

type legacyInner struct {
	Type        int                      `json:"type"`
	Description *modernSDP               `json:"description,omitempty"`
	Candidate   *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

const (
	legacyTypeOffer     = 0
	legacyTypeAnswer    = 1
	legacyTypeCandidate = 2
)

// Parse parses one signaling line into an Envelope. It recognizes both the
// modern shape (a bare SDP or candidate object) and the legacy
// {signals:{PLAIN:[...]}} shape. Any signals channel other than PLAIN is a
// fatal protocol error, as is a PLAIN array with other than exactly one
// element.
func Parse(raw []byte) (*Envelope, error) {
	var probe struct {
		Signals json.RawMessage `json:"signals"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("signaling: invalid JSON: %w", err)
	}
	if probe.Signals != nil {
		return parseLegacy(raw)
	}
	return parseModern(raw)
}

func parseLegacy(raw []byte) (*Envelope, error) {
	var other legacyOther
	if err := json.Unmarshal(raw, &other); err != nil {
		return nil, fmt.Errorf("signaling: invalid legacy envelope: %w", err)
	}
	if _, ok := other.Signals["PLAIN"]; !ok {
		return nil, ErrUnsupportedSignalsChannel
	}
	for channel := range other.Signals {
		if channel != "PLAIN" {
			return nil, ErrUnsupportedSignalsChannel
		}
	}

	var env legacyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("signaling: invalid legacy envelope: %w", err)
	}

	var inner []legacyInner
	if err := json.Unmarshal(env.Signals.PLAIN, &inner); err != nil {
		return nil, fmt.Errorf("signaling: invalid legacy PLAIN array: %w", err)
	}
	if len(inner) != 1 {
		return nil, ErrMultiMessageLegacy
	}
	msg := inner[0]

	switch msg.Type {
	case legacyTypeOffer:
		if msg.Description == nil {
			return nil, fmt.Errorf("signaling: legacy offer missing description")
		}
		return &Envelope{
			Kind:   KindOffer,
			Legacy: true,
			SDP: &webrtc.SessionDescription{
				Type: webrtc.SDPTypeOffer,
				SDP:  msg.Description.SDP,
			},
		}, nil
	case legacyTypeCandidate:
		if msg.Candidate == nil {
			return nil, fmt.Errorf("signaling: legacy candidate message missing candidate")
		}
		return &Envelope{Kind: KindCandidate, Legacy: true, Candidate: msg.Candidate}, nil
	default:
		return &Envelope{Kind: KindUnknown, Legacy: true}, nil
	}
}

func parseModern(raw []byte) (*Envelope, error) {
	var sdp modernSDP
	if err := json.Unmarshal(raw, &sdp); err == nil && sdp.Type != "" {
		var t webrtc.SDPType
		switch sdp.Type {
		case "offer":
			t = webrtc.SDPTypeOffer
		case "answer":
			t = webrtc.SDPTypeAnswer
		default:
			return &Envelope{Kind: KindUnknown}, nil
		}
		kind := KindOffer
		if t == webrtc.SDPTypeAnswer {
			kind = KindAnswer
		}
		return &Envelope{
			Kind: kind,
			SDP:  &webrtc.SessionDescription{Type: t, SDP: sdp.SDP},
		}, nil
	}

	var cand modernCandidate
	if err := json.Unmarshal(raw, &cand); err == nil && cand.Candidate.Candidate != "" {
		c := cand.Candidate
		return &Envelope{Kind: KindCandidate, Candidate: &c}, nil
	}

	return &Envelope{Kind: KindUnknown}, nil
}

// EncodeAnswer serializes an SDP answer for the wire, in either the modern
// or legacy shape.
func EncodeAnswer(answer webrtc.SessionDescription, legacy bool) ([]byte, error) {
	if !legacy {
		return json.Marshal(modernSDP{Type: "answer", SDP: answer.SDP})
	}
	payload := struct {
		Signals struct {
			PLAIN []legacyInner `json:"PLAIN"`
		} `json:"signals"`
	}{}
	payload.Signals.PLAIN = []legacyInner{{
		Type:        legacyTypeAnswer,
		Description: &modernSDP{Type: "answer", SDP: answer.SDP},
	}}
	return json.Marshal(payload)
}

// EncodeCandidate serializes a locally-originated ICE candidate for the
// wire, in either the modern or legacy shape.
func EncodeCandidate(candidate webrtc.ICECandidateInit, legacy bool) ([]byte, error) {
	if !legacy {
		return json.Marshal(modernCandidate{Candidate: candidate})
	}
	payload := struct {
		Signals struct {
			PLAIN []legacyInner `json:"PLAIN"`
		} `json:"signals"`
	}{}
	payload.Signals.PLAIN = []legacyInner{{
		Type:      legacyTypeCandidate,
		Candidate: &candidate,
	}}
	return json.Marshal(payload)
}
