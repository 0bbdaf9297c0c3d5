package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/notify"
	"github.com/Iron-Ham/sharedsave/internal/presence"
	"github.com/Iron-Ham/sharedsave/internal/repair"
	"github.com/Iron-Ham/sharedsave/internal/savesync"
)

// ErrStopped is returned by Run once the machine has shut down.
var ErrStopped = errors.New("session machine stopped")

// DefaultShutdownTimeout bounds the final push performed on shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// Presence is the soft-lock capability the machine drives.
type Presence interface {
	Acquire(ctx context.Context) presence.AcquireResult
	Release()
	Connectivity() presence.Connectivity
	Available() bool
	CompetingOwner() string
}

// Repairer classifies and repairs failures.
type Repairer interface {
	Attempt(ctx context.Context, err error) repair.Outcome
	History() []repair.Record
}

// SaveWatcher is armed while the client is active.
type SaveWatcher interface {
	Arm() error
	Disarm()
}

// Provisioner recreates the local clone.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// Launcher starts the target application.
type Launcher interface {
	Open() error
}

// Deps are the collaborators of a Machine. Presence, Sync, Repair and
// Notifier are required; the rest may be nil.
type Deps struct {
	Presence    Presence
	Sync        savesync.Trigger
	Repair      Repairer
	Notifier    notify.Notifier
	Watcher     SaveWatcher
	Provisioner Provisioner
	Launcher    Launcher
	// Bus receives StateChanged and Escalated events.
	Bus    *event.Bus
	Logger *logging.Logger
}

// Options configures a Machine.
type Options struct {
	ClientID string
	RunID    string
	// Tick is the interval at which pending signals are re-evaluated.
	Tick time.Duration
	// SuppressOnlineNotice starts with online_available notices disabled.
	SuppressOnlineNotice bool
	ShutdownTimeout      time.Duration
	Now                  func() time.Time
}

// pending holds signals received but not yet acted on.
type pending struct {
	entry     bool
	exit      bool
	lost      bool
	restored  bool
	root      bool
	save      bool
	stop      bool
	responses []notify.Token
}

// Machine is the session state machine.
type Machine struct {
	deps   Deps
	opts   Options
	logger *logging.Logger
	queue  *event.Queue

	mu    sync.RWMutex
	state State
	// suppressOnline disables online_available notices.
	suppressOnline bool
	updatedAt      time.Time

	// Owned by the control loop.
	pending         pending
	notifiedOffline bool

	ran atomic.Bool
}

// NewMachine creates a Machine in the initial state.
func NewMachine(deps Deps, opts Options) *Machine {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Machine{
		deps:           deps,
		opts:           opts,
		logger:         logger.WithComponent("session"),
		queue:          event.NewQueue(),
		suppressOnline: opts.SuppressOnlineNotice,
		updatedAt:      opts.Now(),
	}
}

// Emit queues a signal for the control loop. It never blocks and may be
// called from any goroutine.
func (m *Machine) Emit(e event.Event) {
	m.queue.Emit(e)
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the status view of the current state.
func (m *Machine) Snapshot() Snapshot {
	var last *repair.Record
	if h := m.deps.Repair.History(); len(h) > 0 {
		last = &h[len(h)-1]
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		ClientID:             m.opts.ClientID,
		RunID:                m.opts.RunID,
		Connectivity:         m.state.Connectivity.String(),
		Role:                 m.state.Role.String(),
		OfflineMode:          m.state.OfflineMode,
		Available:            m.state.Available,
		ProcessRunning:       m.state.ProcessRunning,
		LastConnectionLossAt: m.state.LastConnectionLossAt,
		SuppressOnlineNotice: m.suppressOnline,
		LastRepair:           last,
		UpdatedAt:            m.updatedAt,
	}
}

// Run is the control loop. It processes signals as they arrive and
// re-evaluates pending work every tick until ctx is cancelled or a
// StopRequested signal arrives, then shuts down. Run cannot be restarted.
func (m *Machine) Run(ctx context.Context) error {
	if !m.ran.CompareAndSwap(false, true) {
		return ErrStopped
	}
	defer m.queue.Close()

	m.logger.Info("control loop started", "tick", m.opts.Tick.String())

	ticker := time.NewTicker(m.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown(ctx, "context cancelled")
			return nil
		case <-m.queue.Ready():
		case <-ticker.C:
		}
		if m.Step(ctx) {
			m.shutdown(ctx, "stop requested")
			return nil
		}
	}
}

// Step drains queued signals and acts on every pending one. It reports
// whether a stop was requested. Step must only be called from the
// goroutine that owns the machine.
func (m *Machine) Step(ctx context.Context) bool {
	for _, e := range m.queue.Drain() {
		m.absorb(e)
	}
	m.refresh()

	if m.pending.stop {
		return true
	}

	if m.pending.root {
		m.pending.root = false
		m.handleRootMissing(ctx)
	}
	if m.pending.entry {
		m.pending.entry = false
		m.handleEntry(ctx, event.TypeProcessStarted)
	}
	if m.pending.exit {
		m.pending.exit = false
		m.handleExit(ctx)
	}
	if m.pending.lost {
		m.pending.lost = false
		m.handleLost(ctx)
	}
	if m.pending.restored {
		m.pending.restored = false
		m.handleRestored(ctx)
	}
	if m.pending.save {
		m.pending.save = false
		m.handleSaveChanged(ctx)
	}
	if len(m.pending.responses) > 0 {
		responses := m.pending.responses
		m.pending.responses = nil
		for _, tok := range responses {
			m.handleResponse(ctx, tok)
		}
	}
	return false
}

// absorb turns a signal into pending work. Start and stop of the target
// cancel each other when both arrive before a step.
func (m *Machine) absorb(e event.Event) {
	switch ev := e.(type) {
	case event.ProcessStartedEvent:
		m.update(e.EventType(), func(s *State) { s.ProcessRunning = true })
		m.pending.entry = true
		m.pending.exit = false
		m.notifiedOffline = false
	case event.ProcessStoppedEvent:
		m.update(e.EventType(), func(s *State) { s.ProcessRunning = false })
		m.pending.exit = true
		m.pending.entry = false
	case event.PresenceLostEvent:
		m.pending.lost = true
	case event.PresenceRestoredEvent:
		m.pending.restored = true
	case event.RootMissingEvent:
		m.pending.root = true
	case event.SaveChangedEvent:
		m.pending.save = true
	case event.UserResponseEvent:
		tok, err := notify.ParseToken(ev.Token)
		if err != nil {
			m.logger.Warn("ignoring response", "error", err.Error())
			return
		}
		m.pending.responses = append(m.pending.responses, tok)
	case event.StopRequestedEvent:
		m.logger.Info("stop requested", "reason", ev.Reason)
		m.pending.stop = true
	default:
		m.logger.Debug("ignoring signal", "type", e.EventType())
	}
}

// refresh copies the coordinator's derived view into the state.
func (m *Machine) refresh() {
	conn := m.deps.Presence.Connectivity()
	avail := m.deps.Presence.Available()
	m.mu.Lock()
	m.state.Connectivity = conn
	m.state.Available = avail
	m.mu.Unlock()
}

// update mutates the state and publishes StateChanged when the role or
// offline mode changed.
func (m *Machine) update(cause string, fn func(*State)) {
	m.mu.Lock()
	before := m.state
	fn(&m.state)
	after := m.state
	m.updatedAt = m.opts.Now()
	m.mu.Unlock()

	if before.Role == after.Role && before.OfflineMode == after.OfflineMode {
		return
	}
	m.logger.Info("state changed",
		"from", before.Role.String(),
		"to", after.Role.String(),
		"offline_mode", after.OfflineMode,
		"cause", cause,
	)
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(event.NewStateChangedEvent(before.Role.String(), after.Role.String(), after.OfflineMode, cause))
	}
}

func (m *Machine) setRole(cause string, role Role) {
	m.update(cause, func(s *State) { s.Role = role })
}

func (m *Machine) notify(ctx context.Context, n notify.Notification) {
	if err := m.deps.Notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("notification failed", "kind", string(n.Kind), "error", err.Error())
	}
}

// escalate runs err through the repair policy. It reports true when the
// failure was repaired and the caller may continue past it; otherwise the
// failure has been turned into exactly one outward notification.
func (m *Machine) escalate(ctx context.Context, err error) bool {
	outcome := m.deps.Repair.Attempt(ctx, err)
	if outcome.Continued() {
		return true
	}

	kind := outcome.Kind()
	m.logger.Warn("failure escalated",
		"kind", kind.String(),
		"severity", errors.GetSeverity(err).String(),
		"error", err.Error())
	if m.deps.Bus != nil {
		m.deps.Bus.Publish(event.NewEscalatedEvent(kind.String(), errors.IsFatal(err), err))
	}

	switch kind {
	case errors.KindConnection:
		m.offlineNotice(ctx)
	case errors.KindLostConnection:
		m.notify(ctx, notify.New(notify.KindLostConnection))
	case errors.KindAlreadyOwned:
		m.notify(ctx, notify.New(notify.KindSomeoneAlreadyPlaying))
	default:
		m.notify(ctx, notify.New(notify.KindSyncFailed).WithDetail(err.Error()))
	}
	return false
}

// handleEntry tries to become the active client.
func (m *Machine) handleEntry(ctx context.Context, cause string) {
	st := m.State()
	if st.Role != RoleIdle {
		m.logger.Debug("entry ignored", "role", st.Role.String())
		return
	}
	if !st.ProcessRunning {
		return
	}

	m.setRole(cause, RoleConnecting)
	fallBack := func() {
		m.update(cause, func(s *State) {
			s.Role = RoleIdle
			s.OfflineMode = true
		})
	}

	result := m.deps.Presence.Acquire(ctx)
	if result == presence.DeniedOffline {
		if !m.escalate(ctx, errors.NewConnectionError("acquire: "+result.String())) {
			fallBack()
			return
		}
		// Connectivity came back within the repair window: continue from
		// the acquisition that failed. It is not repaired a second time.
		result = m.deps.Presence.Acquire(ctx)
		if result == presence.DeniedOffline {
			m.offlineNotice(ctx)
			fallBack()
			return
		}
	}
	if result == presence.DeniedOwnedElsewhere {
		owned := errors.NewAlreadyOwnedError(m.deps.Presence.CompetingOwner()).WithClientID(m.opts.ClientID)
		m.escalate(ctx, owned)
		fallBack()
		return
	}

	if err := m.deps.Sync.PullBeforeEntry(ctx); err != nil {
		// Playing on saves that may be stale would overwrite the remote on
		// exit, so the lock is given back.
		m.deps.Presence.Release()
		m.escalate(ctx, errors.NewDependencyFailure("pull before entry", err))
		fallBack()
		return
	}

	if m.deps.Watcher != nil {
		if err := m.deps.Watcher.Arm(); err != nil {
			m.logger.Warn("save watcher not armed", "error", err.Error())
		}
	}
	m.update(cause, func(s *State) {
		s.Role = RoleActive
		s.OfflineMode = false
	})
	m.notify(ctx, notify.New(notify.KindConnected))
}

// offlineNotice sends offline_mode at most once per run of the target.
func (m *Machine) offlineNotice(ctx context.Context) {
	if m.notifiedOffline {
		m.logger.Debug("offline notice already sent for this run")
		return
	}
	m.notifiedOffline = true
	m.notify(ctx, notify.New(notify.KindOfflineMode))
}

// handleExit ends an active session after the target stopped.
func (m *Machine) handleExit(ctx context.Context) {
	if m.State().Role != RoleActive {
		m.logger.Debug("exit while not active")
		return
	}

	m.setRole(event.TypeProcessStopped, RoleDisconnecting)
	if m.deps.Watcher != nil {
		m.deps.Watcher.Disarm()
	}
	m.deps.Presence.Release()

	err := m.deps.Sync.PushAfterExit(ctx)
	m.update(event.TypeProcessStopped, func(s *State) { s.Role = RoleIdle })
	if err != nil {
		m.escalate(ctx, errors.NewDependencyFailure("push after exit", err))
		return
	}
	m.notify(ctx, notify.New(notify.KindDisconnected))
}

// handleLost degrades an active session. The target keeps running and
// local saves continue; nothing is repaired here.
func (m *Machine) handleLost(ctx context.Context) {
	now := m.opts.Now()
	st := m.State()
	m.update(event.TypePresenceLost, func(s *State) {
		s.LastConnectionLossAt = &now
		if st.Role == RoleActive {
			s.OfflineMode = true
		}
	})
	if st.Role != RoleActive {
		return
	}
	m.escalate(ctx, errors.NewLostConnectionError("presence lost while active"))
}

// handleRestored reacts to the shared resource becoming available again.
// Only a client that fell back to offline mode acts on it.
func (m *Machine) handleRestored(ctx context.Context) {
	st := m.State()
	if !st.OfflineMode {
		return
	}

	if st.ProcessRunning {
		switch st.Role {
		case RoleActive:
			// Still holding: a no-op acquire confirms, without a second pull.
			if m.deps.Presence.Acquire(ctx) == presence.Granted {
				m.update(event.TypePresenceRestored, func(s *State) { s.OfflineMode = false })
			}
		case RoleIdle:
			m.handleEntry(ctx, event.TypePresenceRestored)
		}
		return
	}

	m.mu.RLock()
	suppressed := m.suppressOnline
	m.mu.RUnlock()
	if !suppressed {
		m.notify(ctx, notify.New(notify.KindOnlineAvailable))
	}
	m.update(event.TypePresenceRestored, func(s *State) { s.OfflineMode = false })
}

func (m *Machine) handleRootMissing(ctx context.Context) {
	if m.deps.Provisioner == nil {
		m.logger.Warn("root missing and no provisioner configured")
		return
	}
	if err := m.deps.Provisioner.Provision(ctx); err != nil {
		m.escalate(ctx, errors.NewDependencyFailure("re-provision", err))
		return
	}
	m.logger.Info("root re-provisioned, resuming")
}

func (m *Machine) handleSaveChanged(ctx context.Context) {
	if m.State().Role != RoleActive {
		return
	}
	if err := m.deps.Sync.PushChanges(ctx); err != nil {
		m.escalate(ctx, errors.NewDependencyFailure("push changes", err))
		return
	}
	m.notify(ctx, notify.New(notify.KindSaveComplete))
}

func (m *Machine) handleResponse(ctx context.Context, tok notify.Token) {
	m.logger.Info("user response", "token", string(tok))

	switch tok {
	case notify.TokenEnterOfflineMode:
		m.enterOfflineMode(ctx)
	case notify.TokenSuppressOnlineNotice:
		m.mu.Lock()
		m.suppressOnline = true
		m.mu.Unlock()
	case notify.TokenOpenApplication:
		if m.deps.Launcher == nil {
			m.logger.Warn("no launcher configured")
			return
		}
		if err := m.deps.Launcher.Open(); err != nil {
			m.logger.Warn("launch failed", "error", err.Error())
		}
	}
}

// enterOfflineMode leaves an active session on the user's request: the
// current saves are published and the lock is released, but the game-side
// saves stay in place for offline play.
func (m *Machine) enterOfflineMode(ctx context.Context) {
	cause := event.TypeUserResponse
	if m.State().Role != RoleActive {
		m.update(cause, func(s *State) { s.OfflineMode = true })
		return
	}

	m.setRole(cause, RoleDisconnecting)
	if m.deps.Watcher != nil {
		m.deps.Watcher.Disarm()
	}
	err := m.deps.Sync.PushChanges(ctx)
	m.deps.Presence.Release()
	m.update(cause, func(s *State) {
		s.Role = RoleIdle
		s.OfflineMode = true
	})
	if err != nil {
		m.escalate(ctx, errors.NewDependencyFailure("push before offline mode", err))
	}
}

// shutdown is the terminal transition. An active session publishes its
// saves with a bounded context that survives cancellation of ctx.
func (m *Machine) shutdown(ctx context.Context, reason string) {
	cause := event.TypeStopRequested
	wasActive := m.State().Role == RoleActive

	m.setRole(cause, RoleDisconnecting)
	if m.deps.Watcher != nil {
		m.deps.Watcher.Disarm()
	}
	m.deps.Presence.Release()

	if wasActive {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.ShutdownTimeout)
		if err := m.deps.Sync.PushChanges(pushCtx); err != nil {
			m.logger.Error("final push failed", "error", err.Error())
		}
		cancel()
	}

	m.setRole(cause, RoleIdle)
	m.logger.Info("control loop stopped", "reason", reason)
}
