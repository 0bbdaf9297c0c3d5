package presence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/logging"
	"github.com/Iron-Ham/sharedsave/internal/remote"
)

// ErrAlreadyRunning is returned by Run when the poller is already active.
var ErrAlreadyRunning = errors.New("presence poller already running")

// Coordinator owns this client's view of the remote store: connectivity,
// availability of the shared resource and the heartbeat.
//
// Connectivity and availability are written only by a check, and checks
// are serialized: either the poller runs them or, when the poller is not
// running, the caller runs them inline under the same lock.
type Coordinator struct {
	store  remote.Store
	prober Prober
	self   string
	opts   Options
	sink   event.Sink
	logger *logging.Logger

	// checkMu serializes connectivity checks and heartbeat publishing.
	checkMu sync.Mutex

	mu            sync.RWMutex
	connectivity  Connectivity
	available     bool
	holding       bool
	lastHeartbeat time.Time
	competitor    string
	loopDone      chan struct{}

	running  atomic.Bool
	checkReq chan chan Connectivity
}

// NewCoordinator creates a Coordinator for the client identified by self.
// A nil sink discards presence events; a nil logger discards logs.
func NewCoordinator(store remote.Store, prober Prober, self string, opts Options, sink event.Sink, logger *logging.Logger) *Coordinator {
	if sink == nil {
		sink = event.SinkFunc(func(event.Event) {})
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Coordinator{
		store:    store,
		prober:   prober,
		self:     self,
		opts:     opts.withDefaults(),
		sink:     sink,
		logger:   logger.WithComponent("presence"),
		checkReq: make(chan chan Connectivity),
	}
}

// Connectivity returns the last observed connectivity.
func (c *Coordinator) Connectivity() Connectivity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectivity
}

// Available reports whether the last check found the client online and
// either holding or facing no fresh competing heartbeat.
func (c *Coordinator) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

// Holding reports whether this client currently publishes heartbeats.
func (c *Coordinator) Holding() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holding
}

// CompetingOwner returns the owner of the fresh competing heartbeat seen by
// the last availability read, or "" when there was none or it was unreadable.
func (c *Coordinator) CompetingOwner() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.competitor
}

// LastHeartbeat returns when the last heartbeat was successfully published.
func (c *Coordinator) LastHeartbeat() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHeartbeat
}

// TestConnectivity probes the network and reads the server health flag.
// A failed probe returns Offline without contacting the store.
func (c *Coordinator) TestConnectivity(ctx context.Context) Connectivity {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	conn := c.probe(ctx)
	c.setConnectivity(conn)
	return conn
}

func (c *Coordinator) probe(ctx context.Context) Connectivity {
	if err := c.prober.Probe(ctx); err != nil {
		c.logger.Debug("reachability probe failed", "error", err.Error())
		return ConnectivityOffline
	}

	health, err := c.store.ReadHealth(ctx)
	if err != nil {
		c.logger.Debug("server health read failed", "error", err.Error())
		return ConnectivityOffline
	}
	if !health.Online {
		c.logger.Debug("server marked offline")
		return ConnectivityOffline
	}
	return ConnectivityOnline
}

// setConnectivity records conn and emits PresenceLost on an
// Online to Offline transition.
func (c *Coordinator) setConnectivity(conn Connectivity) {
	c.mu.Lock()
	prev := c.connectivity
	c.connectivity = conn
	if conn != ConnectivityOnline {
		c.available = false
	}
	c.mu.Unlock()

	if prev == conn {
		return
	}
	c.logger.Info("connectivity changed", "from", prev.String(), "to", conn.String())
	if prev == ConnectivityOnline && conn == ConnectivityOffline {
		c.sink.Emit(event.NewPresenceLostEvent())
	}
}

// setAvailable records avail and emits PresenceRestored when the shared
// resource becomes available again.
func (c *Coordinator) setAvailable(avail bool) {
	c.mu.Lock()
	prev := c.available
	c.available = avail
	c.mu.Unlock()

	if !prev && avail {
		c.logger.Info("shared resource available")
		c.sink.Emit(event.NewPresenceRestoredEvent())
	}
}

// IsSomeoneElseActive reports whether another client holds a fresh
// heartbeat. Read and decode failures count as "someone else may be
// active"; a record that was never written does not.
func (c *Coordinator) IsSomeoneElseActive(ctx context.Context) bool {
	owner, taken := c.competingHeartbeat(ctx)
	c.mu.Lock()
	c.competitor = owner
	c.mu.Unlock()
	return taken
}

func (c *Coordinator) competingHeartbeat(ctx context.Context) (owner string, taken bool) {
	rec, err := c.store.ReadPresence(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return "", false
		}
		c.logger.Warn("presence read failed, assuming resource is taken", "error", err.Error())
		return "", true
	}
	if rec.OwnerID == c.self || !rec.Fresh(c.opts.Now(), c.opts.FreshnessWindow) {
		return "", false
	}
	return rec.OwnerID, true
}

// PublishHeartbeat overwrites the presence record with this client and
// the current time.
func (c *Coordinator) PublishHeartbeat(ctx context.Context) error {
	now := c.opts.Now()
	if err := c.store.WritePresence(ctx, remote.PresenceRecord{UpdatedAt: now, OwnerID: c.self}); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrHeartbeatFailed, err)
	}

	c.mu.Lock()
	c.lastHeartbeat = now
	c.mu.Unlock()

	c.logger.Debug("heartbeat published", "at", now.Format(time.RFC3339))
	return nil
}

// Acquire tries to make this client the active one. It forces a fresh
// connectivity check, waits the settle delay, then decides. On Granted the
// first heartbeat has been written and the poller keeps publishing.
// Calling Acquire while already holding returns Granted without any
// remote call.
func (c *Coordinator) Acquire(ctx context.Context) AcquireResult {
	if c.Holding() {
		c.logger.Debug("acquire while holding")
		return Granted
	}

	c.requestCheck(ctx)

	if c.opts.SettleDelay > 0 {
		timer := time.NewTimer(c.opts.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return DeniedOffline
		case <-timer.C:
		}
	}

	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	if c.Connectivity() != ConnectivityOnline {
		c.logger.Info("acquire denied", "result", DeniedOffline.String())
		return DeniedOffline
	}
	if c.IsSomeoneElseActive(ctx) {
		c.setAvailable(false)
		c.logger.Info("acquire denied", "result", DeniedOwnedElsewhere.String())
		return DeniedOwnedElsewhere
	}

	if err := c.PublishHeartbeat(ctx); err != nil {
		c.logger.Warn("first heartbeat failed", "error", err.Error())
		// Cleared so the next successful check emits PresenceRestored.
		c.setAvailable(false)
		return DeniedOffline
	}

	c.mu.Lock()
	c.holding = true
	c.mu.Unlock()
	c.setAvailable(true)

	c.logger.Info("acquired", "owner", c.self)
	return Granted
}

// Release stops heartbeat publishing. The remote record is left to go stale.
func (c *Coordinator) Release() {
	c.mu.Lock()
	was := c.holding
	c.holding = false
	c.mu.Unlock()

	if was {
		c.logger.Info("released")
	}
}

// requestCheck runs a check through the poller, or inline when the poller
// is not running.
func (c *Coordinator) requestCheck(ctx context.Context) Connectivity {
	c.mu.RLock()
	done := c.loopDone
	c.mu.RUnlock()

	if done == nil {
		return c.check(ctx)
	}

	reply := make(chan Connectivity, 1)
	select {
	case c.checkReq <- reply:
	case <-done:
		return c.check(ctx)
	case <-ctx.Done():
		return c.Connectivity()
	}

	select {
	case conn := <-reply:
		return conn
	case <-done:
		return c.check(ctx)
	case <-ctx.Done():
		return c.Connectivity()
	}
}

// check is one poller iteration: connectivity, then either a due
// heartbeat while holding or the availability of the shared resource.
func (c *Coordinator) check(ctx context.Context) Connectivity {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	conn := c.probe(ctx)
	c.setConnectivity(conn)
	if conn != ConnectivityOnline {
		return conn
	}

	c.mu.RLock()
	holding := c.holding
	due := holding && c.opts.Now().Sub(c.lastHeartbeat) >= c.opts.HeartbeatInterval
	c.mu.RUnlock()

	if !holding {
		c.setAvailable(!c.IsSomeoneElseActive(ctx))
		return conn
	}

	// While holding, heartbeats overwrite the record unconditionally:
	// the last writer wins.
	c.setAvailable(true)
	if due {
		if err := c.PublishHeartbeat(ctx); err != nil {
			c.logger.Warn("heartbeat failed", "error", err.Error())
		}
	}
	return conn
}

// Run is the connectivity and presence poller. It checks immediately, then
// every PollInterval or whenever Acquire asks for a fresh check, until ctx
// is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	done := make(chan struct{})
	c.mu.Lock()
	c.loopDone = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loopDone = nil
		c.mu.Unlock()
		close(done)
	}()

	c.logger.Info("presence poller started", "interval", c.opts.PollInterval.String())
	c.check(ctx)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("presence poller stopped")
			return nil
		case <-ticker.C:
			c.check(ctx)
		case reply := <-c.checkReq:
			reply <- c.check(ctx)
		}
	}
}
