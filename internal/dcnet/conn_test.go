package dcnet

import (
	"bytes"
	"io"
	"testing"
)

func TestConnReadDeliversFedMessages(t *testing.T) {
	c := NewConn("test", func([]byte) error { return nil })
	c.Feed([]byte("hello"))

	buf := make([]byte, 16)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Errorf("Read = %q, want %q", buf[:n], "hello")
	}
}

func TestConnReadAcrossShortBuffer(t *testing.T) {
	c := NewConn("test", func([]byte) error { return nil })
	c.Feed([]byte("hello world"))

	first := make([]byte, 5)
	n, err := c.Read(first)
	if err != nil || string(first[:n]) != "hello" {
		t.Fatalf("first read = %q, %v", first[:n], err)
	}

	second := make([]byte, 16)
	n, err = c.Read(second)
	if err != nil || string(second[:n]) != " world" {
		t.Fatalf("second read = %q, %v", second[:n], err)
	}
}

func TestConnWriteInvokesSend(t *testing.T) {
	var got []byte
	c := NewConn("test", func(p []byte) error {
		got = append([]byte(nil), p...)
		return nil
	})
	n, err := c.Write([]byte("out"))
	if err != nil || n != 3 {
		t.Fatalf("Write = (%d, %v)", n, err)
	}
	if string(got) != "out" {
		t.Errorf("send received %q, want %q", got, "out")
	}
}

func TestConnCloseUnblocksRead(t *testing.T) {
	c := NewConn("test", func([]byte) error { return nil })
	done := make(chan error, 1)
	go func() {
		_, err := c.Read(make([]byte, 4))
		done <- err
	}()
	c.Close()
	if err := <-done; err != io.EOF {
		t.Fatalf("Read after Close = %v, want io.EOF", err)
	}
}

func TestConnWriteAfterCloseFails(t *testing.T) {
	c := NewConn("test", func([]byte) error { return nil })
	c.Close()
	if _, err := c.Write([]byte("x")); err == nil {
		t.Fatal("expected error writing to closed Conn")
	}
}
