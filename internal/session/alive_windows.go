//go:build windows

package session

import "os"

// isProcessAlive checks if a process with the given PID is still running.
// On Windows FindProcess opens a handle and fails for unknown PIDs.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = process.Release()
	return true
}
