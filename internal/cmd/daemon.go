package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/notify"
	"github.com/Iron-Ham/sharedsave/internal/presence"
	"github.com/Iron-Ham/sharedsave/internal/process"
	"github.com/Iron-Ham/sharedsave/internal/remote"
	"github.com/Iron-Ham/sharedsave/internal/repair"
	"github.com/Iron-Ham/sharedsave/internal/reposync"
	"github.com/Iron-Ham/sharedsave/internal/savesync"
	"github.com/Iron-Ham/sharedsave/internal/session"
	"github.com/Iron-Ham/sharedsave/internal/statusapi"
	"github.com/Iron-Ham/sharedsave/internal/watcher"
)

// openStore builds the remote store selected by remote.backend. The memory
// backend starts with the server marked online so dry runs can acquire.
func openStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote.Backend {
	case "memory":
		store := remote.NewMemoryStore()
		if err := store.WriteHealth(ctx, remote.ServerHealth{Online: true}); err != nil {
			return nil, err
		}
		return store, nil
	case "redis", "":
		return remote.NewRedisStore(remote.RedisOptions{
			URL:         cfg.Remote.RedisURL,
			DB:          cfg.Remote.RedisDB,
			PresenceKey: cfg.Remote.PresenceKey,
			HealthKey:   cfg.Remote.HealthKey,
			Timeout:     cfg.Remote.Timeout(),
		})
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

// notifierReporter is a Notifier that can also draw sync progress.
type notifierReporter interface {
	notify.Notifier
	notify.ProgressReporter
}

// buildNotifier assembles the configured notification channels. The
// terminal always receives progress; notifications can be switched off.
func buildNotifier(cfg *config.Config, out io.Writer, logger *logging.Logger) notifierReporter {
	terminal := notify.NewTerminal(out)
	if !cfg.Notifications.Enabled {
		return progressOnly{terminal}
	}

	var bell io.Writer
	if cfg.Notifications.Bell {
		bell = out
	}
	if cfg.Notifications.Desktop {
		return notify.Multi{terminal, notify.NewDesktop(bell, logger)}
	}
	return terminal
}

// progressOnly drops notifications but keeps progress output.
type progressOnly struct {
	*notify.Terminal
}

func (progressOnly) Notify(context.Context, notify.Notification) error { return nil }

// daemon is the wired set of collaborators behind `sharedsave run`.
type daemon struct {
	cfg         *config.Config
	logger      *logging.Logger
	store       remote.Store
	bus         *event.Bus
	machine     *session.Machine
	presence    *presence.Coordinator
	saves       *watcher.Watcher
	procs       *process.Watcher
	root        *savesync.RootMonitor
	status      *statusapi.Server
	provisioner *savesync.Provisioner
}

// newDaemon wires every collaborator. Nothing runs until run is called.
func newDaemon(ctx context.Context, cfg *config.Config, clientID, runID string, out io.Writer, logger *logging.Logger) (*daemon, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := &daemon{cfg: cfg, logger: logger, store: store, bus: event.NewBus(logger)}

	// Collaborators emit into the machine, which is created last.
	sink := event.SinkFunc(func(e event.Event) { d.machine.Emit(e) })

	notifier := buildNotifier(cfg, out, logger)
	progress := func(percent int) { notifier.Progress("sync", percent) }

	matcher, err := savesync.NewMatcher(cfg.Sync.Ignore)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	repo := reposync.NewRepo(cfg.ResolveRootDir(), cfg.Sync.GitBinary, logger)
	syncer := savesync.New(repo, savesync.Options{
		SavesDir:    cfg.ResolveSavesDir(),
		RepoSubdir:  cfg.Sync.RepoSubdir,
		Ignore:      matcher,
		ClearOnExit: cfg.Sync.ClearOnExit,
		Progress:    progress,
	}, logger)
	d.provisioner = savesync.NewProvisioner(repo, cfg.Sync.RepoURL, progress, logger)

	d.presence = presence.NewCoordinator(
		store,
		presence.NewTCPProber(cfg.Presence.ProbeAddress, cfg.Presence.ProbeTimeout()),
		clientID,
		presence.Options{
			FreshnessWindow:   cfg.Presence.FreshnessWindow(),
			SettleDelay:       cfg.Presence.SettleDelay(),
			HeartbeatInterval: cfg.Presence.HeartbeatInterval(),
			PollInterval:      cfg.Presence.PollInterval(),
		},
		sink,
		logger,
	)

	policy := repair.NewPolicy(cfg.Repair.MaxAttempts, cfg.Repair.Interval(), func(ctx context.Context) bool {
		return d.presence.TestConnectivity(ctx) == presence.ConnectivityOnline
	}, logger)

	if err := os.MkdirAll(cfg.ResolveSavesDir(), 0755); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create saves dir: %w", err)
	}
	d.saves, err = watcher.New(cfg.ResolveSavesDir(), watcher.Options{
		Debounce: cfg.Sync.Debounce(),
		Ignore:   matcher,
	}, sink, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	d.procs = process.NewWatcher(cfg.Process.Name, process.NewListDetector(cfg.Process.Name), cfg.Process.PollInterval(), sink, logger)
	d.root = savesync.NewRootMonitor(cfg.ResolveRootDir(), cfg.Process.PollInterval(), sink, logger)

	deps := session.Deps{
		Presence:    d.presence,
		Sync:        syncer,
		Repair:      policy,
		Notifier:    notifier,
		Watcher:     d.saves,
		Provisioner: d.provisioner,
		Bus:         d.bus,
		Logger:      logger,
	}
	if cfg.Process.LaunchPath != "" {
		deps.Launcher = process.NewLauncher(cfg.Process.LaunchPath, logger)
	}
	d.machine = session.NewMachine(deps, session.Options{
		ClientID:             clientID,
		RunID:                runID,
		Tick:                 cfg.Session.Tick(),
		SuppressOnlineNotice: cfg.Notifications.SuppressOnlineNotice,
	})

	if cfg.Status.Listen != "" {
		d.status = statusapi.NewServer(d.machine, d.machine, logger)
	}
	return d, nil
}

// run provisions the clone if needed, then runs every loop until ctx is
// cancelled. It returns once the machine has completed its shutdown.
func (d *daemon) run(ctx context.Context) error {
	defer d.store.Close()

	if err := d.provisioner.Provision(ctx); err != nil {
		return err
	}

	// The machine is stopped by ctx; the other loops outlive it so its
	// final push still sees live connectivity.
	loopCtx, cancelLoops := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLoops()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(loopCtx); err != nil {
				d.logger.Error("loop exited", "loop", name, "error", err.Error())
			}
		}()
	}

	start("presence", d.presence.Run)
	start("saves", d.saves.Run)
	start("process", d.procs.Run)
	start("root", d.root.Run)
	if d.status != nil {
		start("status", func(ctx context.Context) error {
			return d.status.ListenAndServe(ctx, d.cfg.Status.Listen)
		})
	}

	err := d.machine.Run(ctx)
	cancelLoops()
	wg.Wait()
	return err
}
