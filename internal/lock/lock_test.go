package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emrlift.lock")

	if err := Acquire(path); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	held, pid, err := IsHeld(path)
	if err != nil {
		t.Fatal(err)
	}
	if !held || pid != os.Getpid() {
		t.Errorf("IsHeld = %v, %d", held, pid)
	}

	if err := Acquire(path); err != nil {
		t.Errorf("re-acquiring own lock: %v", err)
	}

	if err := Release(path); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := Release(path); err != nil {
		t.Errorf("releasing twice: %v", err)
	}
}

func TestAcquireStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emrlift.lock")
	// PIDs near the int32 limit are not in use on any test machine.
	if err := os.WriteFile(path, []byte(strconv.Itoa(2147483000)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Acquire(path); err != nil {
		t.Fatalf("stale lock should be taken over: %v", err)
	}
}

func TestAcquireHeldByOther(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emrlift.lock")
	ppid := os.Getppid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(ppid)), 0o644); err != nil {
		t.Fatal(err)
	}
	if !isProcessRunning(ppid) {
		t.Skip("parent process not signalable")
	}
	if err := Acquire(path); err == nil {
		t.Fatal("expected error while another process holds the lock")
	}
}
