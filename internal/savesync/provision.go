package savesync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/reposync"
)

// Provisioner creates the local clone.
type Provisioner struct {
	repo     *reposync.Repo
	url      string
	progress reposync.ProgressFunc
	logger   *logging.Logger
}

// NewProvisioner creates a Provisioner cloning url into repo's directory.
func NewProvisioner(repo *reposync.Repo, url string, progress reposync.ProgressFunc, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Provisioner{repo: repo, url: url, progress: progress, logger: logger.WithComponent("provision")}
}

// Provision clones the repository unless a working copy already exists.
// A non-empty directory that is not a working copy is left untouched and
// reported as ErrProvisionFailed.
func (p *Provisioner) Provision(ctx context.Context) error {
	dir := p.repo.Dir()
	if p.repo.IsRepository(ctx) {
		p.logger.Debug("already provisioned", "dir", dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	switch {
	case err == nil && len(entries) > 0:
		return errors.NewDependencyFailure("provision "+dir,
			fmt.Errorf("%w: directory exists: %w", errors.ErrProvisionFailed, errors.ErrNotRepository))
	case err == nil:
		if err := os.Remove(dir); err != nil {
			return errors.NewDependencyFailure("provision "+dir, err)
		}
	case !os.IsNotExist(err):
		return errors.NewDependencyFailure("provision "+dir, err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return errors.NewDependencyFailure("provision "+dir, err)
	}
	if err := p.repo.Clone(ctx, p.url, p.progress); err != nil {
		return err
	}
	if err := p.repo.EnsureSafeDirectory(ctx); err != nil {
		p.logger.Warn("could not mark clone as safe directory", "error", err.Error())
	}

	p.logger.Info("provisioned", "dir", dir)
	return nil
}

// RootMonitor emits RootMissing when the clone directory disappears.
type RootMonitor struct {
	path     string
	interval time.Duration
	sink     event.Sink
	logger   *logging.Logger
}

// NewRootMonitor creates a RootMonitor polling path every interval.
func NewRootMonitor(path string, interval time.Duration, sink event.Sink, logger *logging.Logger) *RootMonitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &RootMonitor{path: path, interval: interval, sink: sink, logger: logger.WithComponent("root_monitor")}
}

// Run polls until ctx is cancelled. Only an exists to missing transition
// emits; the monitor re-arms once the path exists again.
func (m *RootMonitor) Run(ctx context.Context) error {
	existed := exists(m.path)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := exists(m.path)
			if existed && !now {
				m.logger.Warn("root path disappeared", "path", m.path)
				m.sink.Emit(event.NewRootMissingEvent(m.path))
			}
			existed = now
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
