//go:build !windows

package session

import (
	"os"
	"syscall"
)

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without affecting the process.
	return process.Signal(syscall.Signal(0)) == nil
}
