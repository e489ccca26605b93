package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestMutexMapSerializesPerKey(t *testing.T) {
	m := NewMutexMap()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("ses_a")
			counter++
			m.Unlock("ses_a")
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestMutexMapIndependentKeys(t *testing.T) {
	m := NewMutexMap()
	m.Lock("ses_a")
	defer m.Unlock("ses_a")

	// A different key must not block.
	done := make(chan struct{})
	go func() {
		m.Lock("ses_b")
		m.Unlock("ses_b")
		close(done)
	}()
	<-done
}

func TestFileLockExcludesSecondHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.lock")

	first := NewFileLock(path)
	if err := first.TryLock(); err != nil {
		t.Fatalf("first TryLock: %v", err)
	}

	second := NewFileLock(path)
	if err := second.TryLock(); err == nil {
		second.Unlock()
		t.Fatal("second TryLock should fail while first holds the lock")
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if err := second.TryLock(); err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	second.Unlock()
}

func TestFileLockRecordsHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.lock")
	fl := NewFileLock(path)
	if err := fl.TryLock(); err != nil {
		t.Fatal(err)
	}
	defer fl.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("pid: %d\n", os.Getpid())
	if !strings.HasPrefix(string(content), want) {
		t.Errorf("lock file %q does not start with %q", content, want)
	}
	if !strings.Contains(string(content), "acquired_at: ") {
		t.Errorf("lock file %q missing acquisition time", content)
	}
}

func TestFileLockUnlockIdempotent(t *testing.T) {
	fl := NewFileLock(filepath.Join(t.TempDir(), "engine.lock"))
	if err := fl.TryLock(); err != nil {
		t.Fatal(err)
	}
	if err := fl.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := fl.Unlock(); err != nil {
		t.Errorf("second Unlock should be a no-op, got %v", err)
	}
}
