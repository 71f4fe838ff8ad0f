package signaling

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseModernOffer(t *testing.T) {
	raw := []byte(`{"type":"offer","sdp":"v=0..."}`)
	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.Kind != KindOffer || env.Legacy {
		t.Fatalf("got Kind=%v Legacy=%v, want KindOffer, non-legacy", env.Kind, env.Legacy)
	}
	if env.SDP.SDP != "v=0..." {
		t.Errorf("SDP = %q", env.SDP.SDP)
	}
}

func TestParseModernCandidate(t *testing.T) {
	raw := []byte(`{"candidate":{"candidate":"candidate:1 1 UDP 1 0.0.0.0 1 typ host"}}`)
	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.Kind != KindCandidate || env.Legacy {
		t.Fatalf("got Kind=%v Legacy=%v", env.Kind, env.Legacy)
	}
}

func TestParseLegacyOfferSetsLatch(t *testing.T) {
	raw := []byte(`{"signals":{"PLAIN":[{"type":0,"description":{"type":"offer","sdp":"v=0..."}}]}}`)
	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.Kind != KindOffer || !env.Legacy {
		t.Fatalf("got Kind=%v Legacy=%v, want KindOffer, legacy", env.Kind, env.Legacy)
	}
	if env.SDP.SDP != "v=0..." {
		t.Errorf("SDP = %q", env.SDP.SDP)
	}
}

func TestParseLegacyCandidate(t *testing.T) {
	raw := []byte(`{"signals":{"PLAIN":[{"type":2,"candidate":{"candidate":"candidate:1 1 UDP 1 0.0.0.0 1 typ host"}}]}}`)
	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if env.Kind != KindCandidate || !env.Legacy {
		t.Fatalf("got Kind=%v Legacy=%v", env.Kind, env.Legacy)
	}
}

func TestParseLegacyMultiMessageIsFatal(t *testing.T) {
	raw := []byte(`{"signals":{"PLAIN":[{"type":0},{"type":2}]}}`)
	_, err := Parse(raw)
	if err != ErrMultiMessageLegacy {
		t.Fatalf("err = %v, want ErrMultiMessageLegacy", err)
	}
}

func TestParseLegacyNonPlainChannelIsFatal(t *testing.T) {
	raw := []byte(`{"signals":{"ENCRYPTED":[{"type":0}]}}`)
	_, err := Parse(raw)
	if err != ErrUnsupportedSignalsChannel {
		t.Fatalf("err = %v, want ErrUnsupportedSignalsChannel", err)
	}
}

func TestEncodeAnswerRoundTripLegacy(t *testing.T) {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0...answer"}
	raw, err := EncodeAnswer(answer, true)
	if err != nil {
		t.Fatalf("EncodeAnswer: %v", err)
	}
	var decoded struct {
		Signals struct {
			PLAIN []struct {
				Type        int `json:"type"`
				Description struct {
					Type string `json:"type"`
					SDP  string `json:"sdp"`
				} `json:"description"`
			} `json:"PLAIN"`
		} `json:"signals"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal encoded answer: %v", err)
	}
	if len(decoded.Signals.PLAIN) != 1 {
		t.Fatalf("expected exactly one PLAIN message, got %d", len(decoded.Signals.PLAIN))
	}
	got := decoded.Signals.PLAIN[0]
	if got.Type != legacyTypeAnswer || got.Description.Type != "answer" || got.Description.SDP != answer.SDP {
		t.Errorf("unexpected encoded answer: %+v", got)
	}
}

func TestEncodeAnswerModern(t *testing.T) {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0...answer"}
	raw, err := EncodeAnswer(answer, false)
	if err != nil {
		t.Fatalf("EncodeAnswer: %v", err)
	}
	env, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse round trip: %v", err)
	}
	if env.Kind != KindAnswer || env.Legacy {
		t.Fatalf("round trip got Kind=%v Legacy=%v", env.Kind, env.Legacy)
	}
}
