package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/notify"
	"github.com/Iron-Ham/sharedsave/internal/reposync"
	"github.com/Iron-Ham/sharedsave/internal/savesync"
	"github.com/Iron-Ham/sharedsave/internal/session"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Clone the shared save repository",
	Long: `Prepare this machine for sharedsave: create the state directory, clone
the shared save repository and create the game's saves directory.

Setup is idempotent; an existing clone is left untouched. The daemon
performs the same steps on start and whenever the clone disappears.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Sync.RepoURL == "" {
		return fmt.Errorf("sync.repo_url is not set\nRun 'sharedsave config set sync.repo_url <url>' first")
	}

	stateDir := cfg.Paths.ResolveStateDir()
	if lock, running := session.RunningDaemon(stateDir); running {
		return fmt.Errorf("%w (PID %d); stop it before running setup", session.ErrDaemonRunning, lock.PID)
	}

	out := cmd.OutOrStdout()
	terminal := notify.NewTerminal(out)
	progress := func(percent int) { terminal.Progress("clone", percent) }

	root := cfg.ResolveRootDir()
	repo := reposync.NewRepo(root, cfg.Sync.GitBinary, nil)
	if err := savesync.NewProvisioner(repo, cfg.Sync.RepoURL, progress, nil).Provision(cmd.Context()); err != nil {
		return err
	}

	if saves := cfg.ResolveSavesDir(); saves != "" {
		if err := os.MkdirAll(saves, 0755); err != nil {
			return fmt.Errorf("failed to create saves directory: %w", err)
		}
		fmt.Fprintf(out, "Saves directory: %s\n", saves)
	}
	fmt.Fprintf(out, "Repository: %s\n", root)
	fmt.Fprintln(out, "Setup complete. Start the daemon with 'sharedsave run'.")
	return nil
}
