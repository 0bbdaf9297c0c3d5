// Package reposync wraps the git command line to keep a local clone of the
// shared save repository in step with its remote: clone, pull, commit and
// push, with transfer progress reported as a percentage.
package reposync

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/shell"
)

// ProgressFunc receives transfer progress from 0 to 100.
type ProgressFunc func(percent int)

// progressRegex matches git's object transfer meter on stderr.
var progressRegex = regexp.MustCompile(`(?:Receiving|Writing) objects:\s+(\d+)%`)

// ParseProgress extracts the percentage from a git progress line.
func ParseProgress(line string) (int, bool) {
	m := progressRegex.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// Repo is a git working copy driven through the CLI.
type Repo struct {
	dir      string
	git      string
	executor shell.CommandExecutor
	logger   *logging.Logger

	authorName  string
	authorEmail string
}

// NewRepo creates a Repo for dir using the git binary gitBinary.
func NewRepo(dir, gitBinary string, logger *logging.Logger) *Repo {
	return NewRepoWithExecutor(dir, gitBinary, shell.NewCLICommandExecutor(), logger)
}

// NewRepoWithExecutor creates a Repo with a custom executor.
// This is primarily useful for testing.
func NewRepoWithExecutor(dir, gitBinary string, executor shell.CommandExecutor, logger *logging.Logger) *Repo {
	if gitBinary == "" {
		gitBinary = "git"
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Repo{
		dir:      dir,
		git:      gitBinary,
		executor: executor,
		logger:   logger.WithComponent("git"),
	}
}

// WithIdentity makes commits use the given author instead of git's
// configured user. Empty values leave git's configuration in charge.
func (r *Repo) WithIdentity(name, email string) *Repo {
	r.authorName = name
	r.authorEmail = email
	return r
}

// Dir returns the working copy path.
func (r *Repo) Dir() string {
	return r.dir
}

func (r *Repo) syncError(op, message string, err error, output []byte) *errors.SyncError {
	return errors.NewSyncError(message, err).
		WithOperation(op).
		WithRepository(r.dir).
		WithGitOutput(strings.TrimSpace(string(output)))
}

func (r *Repo) stream(ctx context.Context, dir string, progress ProgressFunc, args ...string) ([]byte, error) {
	last := -1
	onLine := func(line string) {
		pct, ok := ParseProgress(line)
		if !ok || pct == last {
			return
		}
		last = pct
		if progress != nil {
			progress(pct)
		}
	}
	return r.executor.RunStreaming(ctx, dir, onLine, r.git, args...)
}

// Clone clones url into the Repo directory. The parent directory must exist
// and the Repo directory must not, or be empty.
func (r *Repo) Clone(ctx context.Context, url string, progress ProgressFunc) error {
	r.logger.Info("cloning", "url", url, "dir", r.dir)
	output, err := r.stream(ctx, filepath.Dir(r.dir), progress, "clone", "--progress", url, r.dir)
	if err != nil {
		return r.syncError("clone", "failed to clone repository", err, output)
	}
	r.logger.Info("cloned")
	return nil
}

// Pull merges the upstream branch into the working copy. On a merge
// conflict the merge is aborted and the error lists the conflicting files.
func (r *Repo) Pull(ctx context.Context, progress ProgressFunc) error {
	r.logger.Info("pulling")
	output, err := r.stream(ctx, r.dir, progress, "pull", "--progress", "--no-rebase", "--no-edit")
	if err == nil {
		r.logger.Info("pulled")
		return nil
	}

	conflicts, cerr := r.ConflictingFiles(ctx)
	if cerr == nil && len(conflicts) > 0 {
		if aerr := r.AbortMerge(ctx); aerr != nil {
			r.logger.Error("merge abort failed", "error", aerr.Error())
		}
		return r.syncError("pull", "pull produced conflicts", errors.ErrMergeConflict, output).
			WithConflicts(conflicts)
	}
	return r.syncError("pull", "failed to pull", err, output)
}

// Push publishes the current branch to its upstream.
func (r *Repo) Push(ctx context.Context, progress ProgressFunc) error {
	r.logger.Info("pushing")
	output, err := r.stream(ctx, r.dir, progress, "push", "--progress")
	if err != nil {
		return r.syncError("push", "failed to push", err, output)
	}
	r.logger.Info("pushed")
	return nil
}

// CommitAll stages and commits all changes with the given message.
// It reports false when there was nothing to commit.
func (r *Repo) CommitAll(ctx context.Context, message string) (bool, error) {
	output, err := r.executor.Run(ctx, r.dir, r.git, "add", "-A")
	if err != nil {
		return false, r.syncError("commit", "failed to stage changes", err, output)
	}

	var args []string
	if r.authorName != "" {
		args = append(args, "-c", "user.name="+r.authorName)
	}
	if r.authorEmail != "" {
		args = append(args, "-c", "user.email="+r.authorEmail)
	}
	args = append(args, "commit", "-m", message)

	output, err = r.executor.Run(ctx, r.dir, r.git, args...)
	if err != nil {
		if strings.Contains(string(output), "nothing to commit") {
			return false, nil
		}
		return false, r.syncError("commit", "failed to commit changes", err, output)
	}
	r.logger.Debug("committed", "message", message)
	return true, nil
}

// HasLocalChanges returns true if the working copy has uncommitted changes.
func (r *Repo) HasLocalChanges(ctx context.Context) (bool, error) {
	output, err := r.executor.Run(ctx, r.dir, r.git, "status", "--porcelain")
	if err != nil {
		return false, r.syncError("status", "failed to check git status", err, output)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// AheadCount returns how many local commits the upstream does not have.
func (r *Repo) AheadCount(ctx context.Context) (int, error) {
	output, err := r.executor.Run(ctx, r.dir, r.git, "rev-list", "--count", "@{upstream}..HEAD")
	if err != nil {
		return 0, r.syncError("status", "failed to count unpushed commits", err, output)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		return 0, r.syncError("status", "unexpected rev-list output", err, output)
	}
	return n, nil
}

// ConflictingFiles returns files with unresolved merge conflicts.
func (r *Repo) ConflictingFiles(ctx context.Context) ([]string, error) {
	output, err := r.executor.Run(ctx, r.dir, r.git, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, r.syncError("status", "failed to get conflicting files", err, output)
	}

	lines := strings.TrimSpace(string(output))
	if lines == "" {
		return []string{}, nil
	}
	return strings.Split(lines, "\n"), nil
}

// AbortMerge abandons an in-progress merge.
func (r *Repo) AbortMerge(ctx context.Context) error {
	output, err := r.executor.Run(ctx, r.dir, r.git, "merge", "--abort")
	if err != nil {
		return r.syncError("pull", "failed to abort merge", err, output)
	}
	return nil
}

// IsRepository reports whether the directory exists and is a git work tree.
func (r *Repo) IsRepository(ctx context.Context) bool {
	if _, err := os.Stat(r.dir); err != nil {
		return false
	}
	output, err := r.executor.Run(ctx, r.dir, r.git, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(output)) == "true"
}

// EnsureSafeDirectory adds the Repo directory to git's global
// safe.directory list unless it is already there. Clones made by a service
// account are otherwise refused by git for interactive users.
func (r *Repo) EnsureSafeDirectory(ctx context.Context) error {
	output, err := r.executor.Run(ctx, "", r.git, "config", "--global", "--get-all", "safe.directory")
	if err == nil {
		for _, line := range strings.Split(string(output), "\n") {
			if strings.TrimSpace(line) == r.dir {
				return nil
			}
		}
	}

	output, err = r.executor.Run(ctx, "", r.git, "config", "--global", "--add", "safe.directory", r.dir)
	if err != nil {
		return r.syncError("config", "failed to mark directory safe", err, output)
	}
	return nil
}
