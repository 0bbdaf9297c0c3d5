package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "run-1", "alice", nil)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if lock.PID != os.Getpid() || lock.RunID != "run-1" || lock.ClientID != "alice" {
		t.Errorf("lock = %+v", lock)
	}

	if _, err := AcquireLock(dir, "run-2", "alice", nil); !errors.Is(err, ErrDaemonRunning) {
		t.Errorf("second AcquireLock() error = %v, want ErrDaemonRunning", err)
	}

	running, ok := RunningDaemon(dir)
	if !ok || running.RunID != "run-1" {
		t.Errorf("RunningDaemon() = %+v, %v", running, ok)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
	if _, ok := RunningDaemon(dir); ok {
		t.Error("RunningDaemon() should be false after release")
	}
}

func TestAcquireLock_ReplacesStaleLock(t *testing.T) {
	dir := t.TempDir()
	stale := Lock{RunID: "old", PID: 0, Hostname: "gone", StartedAt: time.Now().Add(-time.Hour)}
	data, err := json.Marshal(stale)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, LockFileName), data, 0644); err != nil {
		t.Fatal(err)
	}

	lock, err := AcquireLock(dir, "new", "alice", nil)
	if err != nil {
		t.Fatalf("AcquireLock() over stale lock error = %v", err)
	}
	defer lock.Release()

	got, err := ReadLock(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "new" {
		t.Errorf("RunID = %q, want new", got.RunID)
	}
}

func TestRelease_KeepsForeignLock(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, "run-1", "alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	lock.PID = lock.PID + 1

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Error("Release must not remove a lock owned by another PID")
	}
}

func TestReadLock_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadLock(path); err == nil {
		t.Error("expected parse error")
	}
}
