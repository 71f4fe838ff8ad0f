package rtc

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeChannel struct {
	amount atomic.Uint64
}

func (f *fakeChannel) BufferedAmount() uint64 { return f.amount.Load() }

type fakeSocket struct {
	mu      sync.Mutex
	paused  bool
	pauses  int
	resumes int
}

func (f *fakeSocket) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	f.pauses++
}

func (f *fakeSocket) Resume() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	f.resumes++
}

func (f *fakeSocket) snapshot() (bool, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused, f.pauses, f.resumes
}

func TestDrainerPausesAtMarkAndResumesBelow(t *testing.T) {
	ch := &fakeChannel{}
	sock := &fakeSocket{}
	d := NewDrainer(ch, sock, 500_000, 5*time.Millisecond)

	ch.amount.Store(500_000)
	d.AfterSend()

	paused, pauses, _ := sock.snapshot()
	if !paused || pauses != 1 {
		t.Fatalf("after crossing mark: paused=%v pauses=%d, want true/1", paused, pauses)
	}

	// A second AfterSend while still draining must not pause again.
	ch.amount.Store(600_000)
	d.AfterSend()
	if _, pauses, _ := sock.snapshot(); pauses != 1 {
		t.Fatalf("pauses = %d while already draining, want 1", pauses)
	}

	ch.amount.Store(0)
	deadline := time.After(time.Second)
	for {
		if _, _, resumes := sock.snapshot(); resumes == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("drain timer never resumed the socket")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestDrainerNoPauseBelowMark(t *testing.T) {
	ch := &fakeChannel{}
	sock := &fakeSocket{}
	d := NewDrainer(ch, sock, 500_000, 5*time.Millisecond)

	ch.amount.Store(100)
	d.AfterSend()

	if paused, pauses, _ := sock.snapshot(); paused || pauses != 0 {
		t.Fatalf("paused=%v pauses=%d, want false/0", paused, pauses)
	}
}
