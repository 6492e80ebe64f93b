package runlock

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func readLockPID(t *testing.T, dir string) int {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	if err != nil {
		t.Fatalf("failed to read lock file: %v", err)
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		t.Fatalf("failed to parse PID from lock file: %v", err)
	}
	return pid
}

func TestLock_Acquire_Success(t *testing.T) {
	tmpDir := t.TempDir()

	lock := New(tmpDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pid := readLockPID(t, tmpDir); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestLock_Acquire_AlreadyLocked(t *testing.T) {
	tmpDir := t.TempDir()

	// A lock file carrying our own PID simulates another live holder.
	lockPath := filepath.Join(tmpDir, lockFileName)
	if err := os.WriteFile(lockPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	lock := New(tmpDir)
	err := lock.Acquire()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.HasPrefix(err.Error(), "another run is already active") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLock_Acquire_StaleLock(t *testing.T) {
	tmpDir := t.TempDir()

	// PID 99999999 is unlikely to exist.
	lockPath := filepath.Join(tmpDir, lockFileName)
	if err := os.WriteFile(lockPath, []byte("99999999"), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	lock := New(tmpDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pid := readLockPID(t, tmpDir); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestLock_Acquire_InvalidLockFile(t *testing.T) {
	tmpDir := t.TempDir()

	lockPath := filepath.Join(tmpDir, lockFileName)
	if err := os.WriteFile(lockPath, []byte("not-a-pid"), 0644); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	lock := New(tmpDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pid := readLockPID(t, tmpDir); pid != os.Getpid() {
		t.Errorf("lock file PID mismatch: got %d, want %d", pid, os.Getpid())
	}
}

func TestLock_Acquire_RaceCondition(t *testing.T) {
	tmpDir := t.TempDir()

	const numGoroutines = 10
	var wg sync.WaitGroup
	var successCount atomic.Int32

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := New(tmpDir)
			if err := lock.Acquire(); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if count := successCount.Load(); count != 1 {
		t.Errorf("expected exactly 1 successful acquire, got %d", count)
	}
}

func TestLock_Release(t *testing.T) {
	tmpDir := t.TempDir()

	lock := New(tmpDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, lockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after release")
	}
}

func TestLock_Release_NotHeld(t *testing.T) {
	lock := New(t.TempDir())
	if err := lock.Release(); err != nil {
		t.Errorf("unexpected error when releasing unheld lock: %v", err)
	}
}

func TestLock_AcquireAfterRelease(t *testing.T) {
	tmpDir := t.TempDir()

	lock := New(tmpDir)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("failed to release lock: %v", err)
	}
	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to re-acquire lock after release: %v", err)
	}
}

func TestLock_IsLocked(t *testing.T) {
	tmpDir := t.TempDir()
	lock := New(tmpDir)

	locked, err := lock.IsLocked()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if locked {
		t.Error("fresh directory should not be locked")
	}

	if err := lock.Acquire(); err != nil {
		t.Fatalf("failed to acquire lock: %v", err)
	}

	locked, err = lock.IsLocked()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !locked {
		t.Error("acquired lock should report locked")
	}
}
