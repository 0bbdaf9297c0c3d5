// Package testutil provides git fixtures for sharedsave tests.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// gitEnv pins the identity used by fixture commits.
var gitEnv = []string{
	"GIT_AUTHOR_NAME=sharedsave test",
	"GIT_AUTHOR_EMAIL=test@sharedsave.invalid",
	"GIT_COMMITTER_NAME=sharedsave test",
	"GIT_COMMITTER_EMAIL=test@sharedsave.invalid",
}

// GitEnv returns the environment fixture commits are made with.
func GitEnv() []string {
	return append([]string(nil), gitEnv...)
}

// SkipIfNoGit skips the test if git is not installed.
func SkipIfNoGit(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not found in PATH, skipping test")
	}
}

// RunGit runs git in dir and fails the test on error.
func RunGit(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), gitEnv...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, output)
	}
	return string(output)
}

// SetupRemote creates a bare repository on branch main whose first commit
// holds the given files, and returns its path.
func SetupRemote(t *testing.T, files map[string]string) string {
	t.Helper()

	remote := t.TempDir()
	RunGit(t, remote, "init", "--bare")
	RunGit(t, remote, "symbolic-ref", "HEAD", "refs/heads/main")

	seed := t.TempDir()
	RunGit(t, seed, "init")
	RunGit(t, seed, "checkout", "-b", "main")
	if len(files) == 0 {
		files = map[string]string{"README.md": "# shared saves\n"}
	}
	for path, content := range files {
		WriteFile(t, seed, path, content)
	}
	RunGit(t, seed, "add", "-A")
	RunGit(t, seed, "commit", "-m", "Initial commit")
	RunGit(t, seed, "remote", "add", "origin", remote)
	RunGit(t, seed, "push", "-u", "origin", "main")

	return remote
}

// Clone clones remote into a fresh directory and returns its path.
func Clone(t *testing.T, remote string) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "clone")
	RunGit(t, filepath.Dir(dir), "clone", remote, dir)
	return dir
}

// CommitFile writes a file in repoDir, commits it and pushes when push is true.
func CommitFile(t *testing.T, repoDir, path, content, message string, push bool) {
	t.Helper()

	WriteFile(t, repoDir, path, content)
	RunGit(t, repoDir, "add", path)
	RunGit(t, repoDir, "commit", "-m", message)
	if push {
		RunGit(t, repoDir, "push")
	}
}

// WriteFile creates or overwrites dir/path, creating parent directories.
func WriteFile(t *testing.T, dir, path, content string) {
	t.Helper()

	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}

// ReadFile returns the content of dir/path or fails the test.
func ReadFile(t *testing.T, dir, path string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, path))
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
