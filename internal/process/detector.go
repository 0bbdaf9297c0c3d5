// Package process tracks whether the target application is running and
// launches it on request.
package process

import (
	"context"
	"path/filepath"
	"strings"

	gopsprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/Iron-Ham/sharedsave/internal/errors"
)

// linuxCommLen is the length at which Linux truncates process names.
const linuxCommLen = 15

// Detector reports whether the target application is running.
type Detector interface {
	IsTargetRunning(ctx context.Context) (bool, error)
}

// Lister returns the names of the running processes.
type Lister func(ctx context.Context) ([]string, error)

// ListDetector enumerates processes and matches one by executable name.
type ListDetector struct {
	name string
	list Lister
}

var _ Detector = (*ListDetector)(nil)

// NewListDetector creates a ListDetector for the executable name backed
// by the system process table.
func NewListDetector(name string) *ListDetector {
	return NewListDetectorWithLister(name, SystemProcesses)
}

// NewListDetectorWithLister creates a ListDetector with a custom process
// source. This is primarily useful for testing.
func NewListDetectorWithLister(name string, list Lister) *ListDetector {
	return &ListDetector{name: normalize(name), list: list}
}

// IsTargetRunning lists processes and reports whether one matches.
func (d *ListDetector) IsTargetRunning(ctx context.Context) (bool, error) {
	names, err := d.list(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if Matches(d.name, n) {
			return true, nil
		}
	}
	return false, nil
}

// SystemProcesses lists process names from the operating system. A name
// at the Linux truncation length is supplemented with the executable path.
// Processes that exit or deny access while being inspected are skipped.
func SystemProcesses(ctx context.Context) ([]string, error) {
	procs, err := gopsprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list processes")
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		names = append(names, name)
		if len(name) == linuxCommLen {
			if exe, err := p.ExeWithContext(ctx); err == nil && exe != "" {
				names = append(names, exe)
			}
		}
	}
	return names, nil
}

// Matches reports whether the listed process name refers to target.
// Comparison is by base name, case-insensitive, ignoring a trailing ".exe".
// A listed name of exactly the Linux truncation length also matches a
// longer target it prefixes.
func Matches(target, listed string) bool {
	target = normalize(target)
	listed = normalize(listed)
	if target == "" || listed == "" {
		return false
	}
	if target == listed {
		return true
	}
	return len(listed) == linuxCommLen && strings.HasPrefix(target, listed)
}

func normalize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.ToLower(filepath.Base(filepath.FromSlash(name)))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(name, ".exe")
}
