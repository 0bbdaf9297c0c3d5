package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/remote"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Show or switch the shared server's health flag",
	Long: `Operators use the server health flag to take the shared save offline,
for example during maintenance. While the flag is offline every client
treats the remote store as unreachable and plays in offline mode.`,
	RunE: runServerShow,
}

var serverShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the health flag and the current presence record",
	RunE:  runServerShow,
}

var serverOnlineCmd = &cobra.Command{
	Use:   "online",
	Short: "Mark the server online",
	RunE:  func(cmd *cobra.Command, args []string) error { return setServerHealth(cmd, true) },
}

var serverOfflineCmd = &cobra.Command{
	Use:   "offline",
	Short: "Mark the server offline",
	RunE:  func(cmd *cobra.Command, args []string) error { return setServerHealth(cmd, false) },
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverShowCmd)
	serverCmd.AddCommand(serverOnlineCmd)
	serverCmd.AddCommand(serverOfflineCmd)
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, store remote.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("remote store unreachable at %s: %w", cfg.Remote.RedactedRedisURL(), err)
	}
	return fn(cmd.Context(), cfg, store)
}

func setServerHealth(cmd *cobra.Command, online bool) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config, store remote.Store) error {
		if err := store.WriteHealth(ctx, remote.ServerHealth{Online: online}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Server marked %s\n", onlineLabel(online))
		return nil
	})
}

func runServerShow(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, cfg *config.Config, store remote.Store) error {
		return printServerState(ctx, cmd, cfg, store, time.Now())
	})
}

func printServerState(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store remote.Store, now time.Time) error {
	out := cmd.OutOrStdout()

	health, err := store.ReadHealth(ctx)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		fmt.Fprintln(out, "Health:   not set (clients treat this as offline)")
	case err != nil:
		return err
	default:
		fmt.Fprintf(out, "Health:   %s\n", onlineLabel(health.Online))
	}

	rec, err := store.ReadPresence(ctx)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		fmt.Fprintln(out, "Presence: never written")
		return nil
	case err != nil:
		return err
	}

	state := "stale"
	if rec.Fresh(now, cfg.Presence.FreshnessWindow()) {
		state = "active"
	}
	fmt.Fprintf(out, "Presence: %s (%s, last heartbeat %s ago)\n",
		rec.OwnerID, state, rec.Age(now).Truncate(time.Second))
	return nil
}

func onlineLabel(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
