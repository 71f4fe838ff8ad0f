package zork

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/proxybridge/zorktun/internal/config"
	"github.com/proxybridge/zorktun/internal/logx"
	"github.com/proxybridge/zorktun/internal/registry"
)

func TestServeAcceptsAndMintsClientIDs(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := config.Default()
	reg := registry.New()

	go Serve(ctx, ln, &cfg, reg, logx.Default)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Write([]byte("ping\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 32)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "ping\n" {
		t.Fatalf("got %q, want %q", buf[:n], "ping\n")
	}

	if reg.NumZorkConnections() != 1 {
		t.Fatalf("NumZorkConnections = %d, want 1", reg.NumZorkConnections())
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.Default()
	reg := registry.New()

	done := make(chan struct{})
	go func() {
		Serve(ctx, ln, &cfg, reg, logx.Default)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
