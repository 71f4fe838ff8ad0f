package socksbridge

import "testing"

func TestEncodeDecodeRequestFrameIPv4(t *testing.T) {
	raw, err := decodeLegacyRequest([]byte(`{"cmd":1,"atyp":1,"addr":"93.184.216.34","port":80}`))
	if err != nil {
		t.Fatalf("decodeLegacyRequest: %v", err)
	}
	parsed, err := parseRequestFrame(raw)
	if err != nil {
		t.Fatalf("parseRequestFrame: %v", err)
	}
	if parsed.Cmd != 1 || parsed.Addr != "93.184.216.34" || parsed.Port != 80 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestEncodeDecodeRequestFrameDomain(t *testing.T) {
	raw, err := decodeLegacyRequest([]byte(`{"cmd":1,"atyp":3,"addr":"example.com","port":443}`))
	if err != nil {
		t.Fatalf("decodeLegacyRequest: %v", err)
	}
	parsed, err := parseRequestFrame(raw)
	if err != nil {
		t.Fatalf("parseRequestFrame: %v", err)
	}
	if parsed.Addr != "example.com" || parsed.Port != 443 {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestParseRequestFrameTooShort(t *testing.T) {
	if _, err := parseRequestFrame([]byte{0x05, 0x01}); err == nil {
		t.Fatal("expected error for truncated frame")
	}
}

func TestEncodeReplyFrameSucceeded(t *testing.T) {
	frame := encodeReplyFrame(replySucceeded)
	if len(frame) != 10 || frame[0] != socks5Version || frame[1] != replySucceeded {
		t.Errorf("reply frame = %v", frame)
	}
}
