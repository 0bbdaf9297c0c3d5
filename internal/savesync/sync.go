// Package savesync moves shared saves between the game and the git clone
// at the session boundaries: pull before the player enters, push after the
// player leaves, and push whenever a save changes while active. It also
// provisions the clone and watches that it keeps existing.
package savesync

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/reposync"
)

// Trigger is the synchronization collaborator of the session machine.
// Every error it returns classifies as a dependency failure.
type Trigger interface {
	// PullBeforeEntry brings the game's saves up to date with the remote.
	PullBeforeEntry(ctx context.Context) error
	// PushAfterExit publishes the game's saves and clears the game-side copy.
	PushAfterExit(ctx context.Context) error
	// PushChanges publishes the game's saves while the session continues.
	PushChanges(ctx context.Context) error
	// HasLocalChanges reports uncommitted changes in the clone.
	HasLocalChanges(ctx context.Context) (bool, error)
}

// Options configures a Sync.
type Options struct {
	// SavesDir is the directory the game reads shared saves from.
	SavesDir string
	// RepoSubdir is the folder inside the clone mirrored to SavesDir.
	RepoSubdir string
	// Ignore holds patterns never copied in either direction.
	Ignore *Matcher
	// ClearOnExit removes SavesDir after a successful push on exit.
	ClearOnExit bool
	// Progress receives push and pull transfer progress.
	Progress reposync.ProgressFunc
	// Now returns the time used in commit messages. Defaults to time.Now.
	Now func() time.Time
}

// Sync implements Trigger on top of a git clone.
type Sync struct {
	repo   *reposync.Repo
	opts   Options
	logger *logging.Logger

	// mu serializes repository operations.
	mu sync.Mutex
}

var _ Trigger = (*Sync)(nil)

// New creates a Sync.
func New(repo *reposync.Repo, opts Options, logger *logging.Logger) *Sync {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Sync{repo: repo, opts: opts, logger: logger.WithComponent("sync")}
}

func (s *Sync) repoSaves() string {
	return filepath.Join(s.repo.Dir(), filepath.FromSlash(s.opts.RepoSubdir))
}

// PullBeforeEntry commits anything left over from an earlier session whose
// push failed, pulls, republishes those leftovers, then mirrors the
// repository saves into the game's saves directory.
func (s *Sync) PullBeforeEntry(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.commit(ctx, "leftover"); err != nil {
		return errors.Wrap(err, "pull before entry")
	}
	if err := s.repo.Pull(ctx, s.opts.Progress); err != nil {
		return errors.Wrap(err, "pull before entry")
	}
	if err := s.pushIfAhead(ctx); err != nil {
		return errors.Wrap(err, "pull before entry")
	}

	if err := os.MkdirAll(s.repoSaves(), 0755); err != nil {
		return errors.NewDependencyFailure("create repository saves dir", err)
	}
	if err := MirrorDir(s.repoSaves(), s.opts.SavesDir, s.opts.Ignore); err != nil {
		return errors.NewDependencyFailure("mirror saves into game", err)
	}
	s.logger.Info("saves ready", "saves_dir", s.opts.SavesDir)
	return nil
}

// PushAfterExit mirrors, commits and pushes, then clears the game-side
// copy when configured to and the push succeeded.
func (s *Sync) PushAfterExit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.push(ctx); err != nil {
		return errors.Wrap(err, "push after exit")
	}
	if s.opts.ClearOnExit {
		if err := os.RemoveAll(s.opts.SavesDir); err != nil {
			return errors.NewDependencyFailure("clear game saves", err)
		}
		s.logger.Debug("game saves cleared", "saves_dir", s.opts.SavesDir)
	}
	return nil
}

// PushChanges mirrors, commits and pushes.
func (s *Sync) PushChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Wrap(s.push(ctx), "push changes")
}

// HasLocalChanges reports uncommitted changes in the clone.
func (s *Sync) HasLocalChanges(ctx context.Context) (bool, error) {
	return s.repo.HasLocalChanges(ctx)
}

func (s *Sync) push(ctx context.Context) error {
	if _, err := os.Stat(s.opts.SavesDir); err != nil {
		// Mirroring a missing directory would delete every shared save.
		s.logger.Warn("saves dir missing, nothing to push", "saves_dir", s.opts.SavesDir)
		return s.pushIfAhead(ctx)
	}
	if err := MirrorDir(s.opts.SavesDir, s.repoSaves(), s.opts.Ignore); err != nil {
		return errors.NewDependencyFailure("mirror game saves into repository", err)
	}
	if _, err := s.commit(ctx, ""); err != nil {
		return err
	}
	return s.pushIfAhead(ctx)
}

func (s *Sync) commit(ctx context.Context, label string) (bool, error) {
	changed, err := s.repo.HasLocalChanges(ctx)
	if err != nil || !changed {
		return false, err
	}
	msg := s.opts.Now().Format(time.RFC3339)
	if label != "" {
		msg += " (" + label + ")"
	}
	return s.repo.CommitAll(ctx, msg)
}

func (s *Sync) pushIfAhead(ctx context.Context) error {
	ahead, err := s.repo.AheadCount(ctx)
	if err != nil {
		return err
	}
	if ahead == 0 {
		return nil
	}
	return s.repo.Push(ctx, s.opts.Progress)
}
