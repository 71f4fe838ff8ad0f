package framer

import (
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, f *Framer) []string {
	t.Helper()
	var got []string
	for {
		msg, err := f.Next()
		if msg != "" {
			got = append(got, msg)
		}
		if err != nil {
			if err != io.EOF {
				t.Fatalf("unexpected error: %v", err)
			}
			return got
		}
	}
}

func TestFramerSplitsOnLFAndCRLF(t *testing.T) {
	f := New(strings.NewReader("ping\nxyzzy\r\nversion\n"))
	got := readAll(t, f)
	want := []string{"ping", "xyzzy", "version"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFramerDropsEmptyMessages(t *testing.T) {
	f := New(strings.NewReader("a\n\n\nb\n"))
	got := readAll(t, f)
	want := []string{"a", "b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFramerDropsUnterminatedTrailingFragment(t *testing.T) {
	f := New(strings.NewReader("complete\nincomplete"))
	got := readAll(t, f)
	if len(got) != 1 || got[0] != "complete" {
		t.Fatalf("got %v, want [complete]", got)
	}
}

// chunkedReader feeds data in small, caller-chosen pieces to simulate
// partial reads arriving in arbitrary splits across calls.
type chunkedReader struct {
	chunks [][]byte
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestFramerReassemblesAcrossArbitraryChunks(t *testing.T) {
	full := "ping\nxyzzy\r\nversion\nquit\n"
	splits := [][]int{{1, 3, 7, 100}, {5, 1, 1, 1, 1, 100}}
	for _, split := range splits {
		var chunks [][]byte
		rest := []byte(full)
		for _, n := range split {
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
			if len(rest) == 0 {
				break
			}
		}
		f := New(&chunkedReader{chunks: chunks})
		got := readAll(t, f)
		want := []string{"ping", "xyzzy", "version", "quit"}
		if len(got) != len(want) {
			t.Fatalf("split %v: got %v, want %v", split, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("split %v: message %d = %q, want %q", split, i, got[i], want[i])
			}
		}
	}
}
