package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/logging"
)

// LockFileName is the name of the daemon lock file within the state directory.
const LockFileName = "sharedsave.lock"

// ErrDaemonRunning is returned when another daemon already holds the lock.
var ErrDaemonRunning = errors.New("another sharedsave daemon is running")

// Lock is the single-instance lock of the local daemon. It is unrelated to
// the remote presence lock: it only keeps two daemons on one machine from
// driving the same clone.
type Lock struct {
	RunID     string    `json:"run_id"`
	ClientID  string    `json:"client_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	lockFile string
	logger   *logging.Logger
}

// AcquireLock takes the daemon lock in stateDir. A lock left behind by a
// dead process is replaced. The logger may be nil.
func AcquireLock(stateDir, runID, clientID string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	lockPath := filepath.Join(stateDir, LockFileName)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			logger.Error("failed to acquire daemon lock", "pid", existing.PID, "hostname", existing.Hostname)
			return nil, fmt.Errorf("%w: PID %d on %s", ErrDaemonRunning, existing.PID, existing.Hostname)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale daemon lock cleaned", "old_pid", existing.PID)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		RunID:     runID,
		ClientID:  clientID,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL loses the race cleanly against a daemon starting concurrently.
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			if existing, readErr := ReadLock(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: PID %d on %s", ErrDaemonRunning, existing.PID, existing.Hostname)
			}
			return nil, ErrDaemonRunning
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Info("daemon lock acquired", "pid", lock.PID, "run_id", runID)
	return lock, nil
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadLock(l.lockFile)
	if err != nil || existing.PID != l.PID {
		return nil
	}
	if err := os.Remove(l.lockFile); err != nil {
		return err
	}
	if l.logger != nil {
		l.logger.Info("daemon lock released", "run_id", l.RunID)
	}
	return nil
}

// ReadLock reads a lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// RunningDaemon returns the lock of a live daemon using stateDir, if any.
func RunningDaemon(stateDir string) (*Lock, bool) {
	lock, err := ReadLock(filepath.Join(stateDir, LockFileName))
	if err != nil || !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}
