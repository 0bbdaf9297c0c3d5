package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sharedsave daemon",
	Long: `Run the sharedsave daemon in the foreground.

The daemon watches for the game process. When it starts, sharedsave pulls
the shared saves and claims the save with a heartbeat. When it exits, the
saves are pushed and the claim lapses. Stop the daemon with Ctrl+C; an
active session publishes its saves before exiting.`,
	RunE: runDaemon,
}

var runVerbose bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print state transitions")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if errs := cfg.ValidateForRun(); len(errs) > 0 {
		return fmt.Errorf("%w\nRun 'sharedsave config set <key> <value>' to fix", config.ValidationErrors(errs))
	}

	stateDir := cfg.Paths.ResolveStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	logger, err := logging.NewLogger(stateDir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer logger.Close()

	clientID := cfg.ResolveClientID()
	runID := uuid.NewString()
	logger = logger.WithClient(clientID).WithSession(runID)

	lock, err := session.AcquireLock(stateDir, runID, clientID, logger)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	d, err := newDaemon(ctx, cfg, clientID, runID, out, logger)
	if err != nil {
		return err
	}

	if runVerbose {
		d.bus.Subscribe(event.TypeStateChanged, func(e event.Event) {
			sc, ok := e.(event.StateChangedEvent)
			if !ok {
				return
			}
			fmt.Fprintf(out, "%s -> %s (offline mode: %v, cause: %s)\n", sc.PreviousRole, sc.Role, sc.OfflineMode, sc.Cause)
		})
	}

	logger.Info("daemon starting",
		"process", cfg.Process.Name,
		"saves_dir", cfg.ResolveSavesDir(),
		"root_dir", cfg.ResolveRootDir(),
		"remote", cfg.Remote.RedactedRedisURL(),
	)
	fmt.Fprintf(out, "sharedsave running as %s, waiting for %s (Ctrl+C to stop)\n", clientID, cfg.Process.Name)

	if err := d.run(ctx); err != nil {
		logger.Error("daemon stopped with error", "error", err.Error())
		return err
	}
	logger.Info("daemon stopped")
	return nil
}
