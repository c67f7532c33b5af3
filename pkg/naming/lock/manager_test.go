package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corfid/namingd/pkg/dfs"
)

// lockNow acquires a lock that is expected to be immediately available.
func lockNow(t *testing.T, m *Manager, path string, exclusive bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Lock(ctx, dfs.MustParse(path), exclusive); err != nil {
		t.Fatalf("Lock(%s, exclusive=%v): %v", path, exclusive, err)
	}
}

// tryLock attempts an acquisition with a short deadline and reports whether
// it was granted.
func tryLock(m *Manager, path string, exclusive bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	return m.Lock(ctx, dfs.MustParse(path), exclusive) == nil
}

func TestSharedLocksCoexist(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	var held atomic.Int32
	var peak atomic.Int32
	release := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Lock(context.Background(), dfs.MustParse("/a/b"), false); err != nil {
				t.Errorf("shared Lock: %v", err)
				return
			}
			n := held.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			<-release
			held.Add(-1)
			m.Unlock(dfs.MustParse("/a/b"), false)
		}()
	}

	// All eight must be holding simultaneously before release.
	deadline := time.After(time.Second)
	for held.Load() != 8 {
		select {
		case <-deadline:
			t.Fatalf("only %d of 8 shared holders acquired", held.Load())
		case <-time.After(time.Millisecond):
		}
	}
	close(release)
	wg.Wait()

	if peak.Load() != 8 {
		t.Errorf("peak concurrent shared holders = %d, want 8", peak.Load())
	}
}

func TestExclusiveExcludesChain(t *testing.T) {
	m := NewManager()
	lockNow(t, m, "/a", true)

	// Shared locks anywhere on the same root chain must not complete.
	for _, path := range []string{"/a", "/a/b", "/"} {
		if tryLock(m, path, false) {
			t.Errorf("shared lock on %s completed while /a is held exclusively", path)
		}
	}

	// An unrelated path completes immediately.
	if !tryLock(m, "/x", false) {
		t.Error("shared lock on /x blocked by exclusive lock on /a")
	}

	m.Unlock(dfs.MustParse("/a"), true)
	if !tryLock(m, "/a/b", false) {
		t.Error("shared lock on /a/b still blocked after unlock")
	}
}

func TestExclusiveOnDescendantAllowsSiblings(t *testing.T) {
	m := NewManager()
	lockNow(t, m, "/a/b", true)
	defer m.Unlock(dfs.MustParse("/a/b"), true)

	if !tryLock(m, "/x", false) {
		t.Error("shared lock on /x blocked by exclusive lock on /a/b")
	}
	if !tryLock(m, "/a/c", false) {
		t.Error("shared lock on sibling /a/c blocked by exclusive lock on /a/b")
	}
}

func TestExclusiveWaitsForExclusiveOnDescendant(t *testing.T) {
	m := NewManager()
	lockNow(t, m, "/a", true)

	acquired := make(chan struct{})
	go func() {
		if err := m.Lock(context.Background(), dfs.MustParse("/a/b"), true); err != nil {
			t.Errorf("exclusive Lock(/a/b): %v", err)
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("exclusive /a/b completed while exclusive /a is held")
	case <-time.After(50 * time.Millisecond):
	}

	m.Unlock(dfs.MustParse("/a"), true)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("exclusive /a/b not granted after /a was unlocked")
	}
	m.Unlock(dfs.MustParse("/a/b"), true)
}

func TestFIFOKeepsWritersAheadOfLaterReaders(t *testing.T) {
	m := NewManager()
	lockNow(t, m, "/a", false)

	// A writer queues behind the reader...
	writerDone := make(chan struct{})
	go func() {
		if err := m.Lock(context.Background(), dfs.MustParse("/a"), true); err != nil {
			t.Errorf("exclusive Lock(/a): %v", err)
		}
		close(writerDone)
	}()
	time.Sleep(20 * time.Millisecond)

	// ...so a reader arriving after the writer must wait too, even though
	// it would be compatible with the current holder.
	if tryLock(m, "/a", false) {
		t.Fatal("late reader overtook a queued writer")
	}

	m.Unlock(dfs.MustParse("/a"), false)
	select {
	case <-writerDone:
	case <-time.After(time.Second):
		t.Fatal("writer not granted after reader unlocked")
	}
	m.Unlock(dfs.MustParse("/a"), true)

	if !tryLock(m, "/a", false) {
		t.Error("reader still blocked after writer unlocked")
	}
}

func TestCancelledWaiterLeavesQueue(t *testing.T) {
	m := NewManager()
	lockNow(t, m, "/a", true)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Lock(ctx, dfs.MustParse("/a"), true)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("cancelled waiter returned %v, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}

	// The abandoned request must not block later requests after unlock.
	m.Unlock(dfs.MustParse("/a"), true)
	if !tryLock(m, "/a", true) {
		t.Error("queue still blocked by a cancelled waiter")
	}
}

func TestCloseCancelsWaiters(t *testing.T) {
	m := NewManager()
	lockNow(t, m, "/a", true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Lock(context.Background(), dfs.MustParse("/a"), false)
	}()
	time.Sleep(20 * time.Millisecond)

	m.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrCancelled) {
			t.Fatalf("waiter returned %v after Close, want ErrCancelled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter did not return after Close")
	}

	if err := m.Lock(context.Background(), dfs.MustParse("/b"), false); !errors.Is(err, ErrClosed) {
		t.Errorf("Lock after Close returned %v, want ErrClosed", err)
	}
}

func TestUnlockWakesBlockedDescendant(t *testing.T) {
	// T1 holds exclusive /a; T2 requests exclusive /a/b and must block
	// until T1 unlocks. Verified by timing.
	m := NewManager()
	lockNow(t, m, "/a", true)

	start := time.Now()
	go func() {
		time.Sleep(100 * time.Millisecond)
		m.Unlock(dfs.MustParse("/a"), true)
	}()

	if err := m.Lock(context.Background(), dfs.MustParse("/a/b"), true); err != nil {
		t.Fatalf("Lock(/a/b): %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("lock granted after %v, want it to wait for the unlock", elapsed)
	}
	m.Unlock(dfs.MustParse("/a/b"), true)
}
