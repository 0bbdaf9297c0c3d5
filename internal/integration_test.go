// Package internal contains integration tests that run several clients
// against one shared store: real presence coordinators and session machines,
// with the git-backed sync replaced by a no-op.
package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/event"
	"github.com/Iron-Ham/sharedsave/internal/notify"
	"github.com/Iron-Ham/sharedsave/internal/presence"
	"github.com/Iron-Ham/sharedsave/internal/remote"
	"github.com/Iron-Ham/sharedsave/internal/repair"
	"github.com/Iron-Ham/sharedsave/internal/session"
)

type nopTrigger struct {
	mu     sync.Mutex
	pulls  int
	pushes int
}

func (n *nopTrigger) PullBeforeEntry(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pulls++
	return nil
}

func (n *nopTrigger) PushAfterExit(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pushes++
	return nil
}

func (n *nopTrigger) PushChanges(context.Context) error { return nil }

func (n *nopTrigger) HasLocalChanges(context.Context) (bool, error) { return false, nil }

// clock is a settable time source shared by every client.
type clock struct{ now atomic.Int64 }

func newClock(t time.Time) *clock {
	c := &clock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *clock) Now() time.Time          { return time.Unix(0, c.now.Load()).UTC() }
func (c *clock) Advance(d time.Duration) { c.now.Add(int64(d)) }

type client struct {
	id       string
	presence *presence.Coordinator
	machine  *session.Machine
	notes    *notify.Recorder
	sync     *nopTrigger
	cancel   context.CancelFunc
	done     chan struct{}
}

func newClient(t *testing.T, id string, store remote.Store, clk *clock) *client {
	t.Helper()
	c := &client{id: id, notes: &notify.Recorder{}, sync: &nopTrigger{}}

	sink := event.SinkFunc(func(e event.Event) { c.machine.Emit(e) })
	c.presence = presence.NewCoordinator(store, presence.ProberFunc(func(context.Context) error { return nil }), id, presence.Options{
		FreshnessWindow:   5 * time.Minute,
		SettleDelay:       0,
		HeartbeatInterval: time.Minute,
		PollInterval:      5 * time.Millisecond,
		Now:               clk.Now,
	}, sink, nil)

	policy := repair.NewPolicy(3, time.Millisecond, func(ctx context.Context) bool {
		return c.presence.TestConnectivity(ctx) == presence.ConnectivityOnline
	}, nil)

	c.machine = session.NewMachine(session.Deps{
		Presence: c.presence,
		Sync:     c.sync,
		Repair:   policy,
		Notifier: c.notes,
	}, session.Options{ClientID: id, RunID: id + "-run", Tick: time.Hour})
	return c
}

// startPresence runs the client's poller until the test ends.
func (c *client) startPresence(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		_ = c.presence.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-c.done
	})
}

// stepUntil steps the machine until cond holds.
func (c *client) stepUntil(t *testing.T, what string, cond func(session.State) bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.machine.Step(context.Background())
		if cond(c.machine.State()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s: timed out waiting for %s, state = %+v", c.id, what, c.machine.State())
}

func isActive(s session.State) bool { return s.Role == session.RoleActive }

func TestTwoClientsHandOver(t *testing.T) {
	store := remote.NewMemoryStore()
	ctx := context.Background()
	if err := store.WriteHealth(ctx, remote.ServerHealth{Online: true}); err != nil {
		t.Fatal(err)
	}
	clk := newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	alice := newClient(t, "alice", store, clk)
	bob := newClient(t, "bob", store, clk)

	alice.startPresence(t)
	alice.machine.Emit(event.NewProcessStartedEvent("factorio"))
	alice.stepUntil(t, "alice active", isActive)

	rec, err := store.ReadPresence(ctx)
	if err != nil || rec.OwnerID != "alice" {
		t.Fatalf("presence = %+v, %v; want owner alice", rec, err)
	}

	bob.startPresence(t)
	bob.machine.Emit(event.NewProcessStartedEvent("factorio"))
	bob.stepUntil(t, "bob falls back to offline mode", func(s session.State) bool {
		return s.Role == session.RoleIdle && s.OfflineMode
	})
	if got := bob.notes.Count(notify.KindSomeoneAlreadyPlaying); got != 1 {
		t.Errorf("bob someone_already_playing notifications = %d, want 1", got)
	}
	if bob.sync.pulls != 0 {
		t.Error("bob must not pull while alice is active")
	}
	if !isActive(alice.machine.State()) {
		t.Fatal("alice lost the session to a competing client")
	}

	alice.machine.Emit(event.NewProcessStoppedEvent("factorio"))
	alice.stepUntil(t, "alice idle", func(s session.State) bool { return s.Role == session.RoleIdle })
	if alice.sync.pushes != 1 {
		t.Errorf("alice pushes = %d, want 1", alice.sync.pushes)
	}

	// Alice's last heartbeat goes stale; bob's poller notices and bob takes over.
	clk.Advance(6 * time.Minute)
	bob.stepUntil(t, "bob active", isActive)

	rec, err = store.ReadPresence(ctx)
	if err != nil || rec.OwnerID != "bob" {
		t.Fatalf("presence = %+v, %v; want owner bob", rec, err)
	}
	if isActive(alice.machine.State()) {
		t.Error("both clients active")
	}
	if bob.machine.State().OfflineMode {
		t.Error("bob should have left offline mode")
	}
}

func TestServerOfflineWhileActive(t *testing.T) {
	store := remote.NewMemoryStore()
	ctx := context.Background()
	if err := store.WriteHealth(ctx, remote.ServerHealth{Online: true}); err != nil {
		t.Fatal(err)
	}
	clk := newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	alice := newClient(t, "alice", store, clk)
	alice.startPresence(t)
	alice.machine.Emit(event.NewProcessStartedEvent("factorio"))
	alice.stepUntil(t, "alice active", isActive)

	if err := store.WriteHealth(ctx, remote.ServerHealth{Online: false}); err != nil {
		t.Fatal(err)
	}
	alice.stepUntil(t, "offline mode", func(s session.State) bool { return s.OfflineMode })

	st := alice.machine.State()
	if st.Role != session.RoleActive {
		t.Errorf("role = %s, want active (the game keeps running)", st.Role)
	}
	if st.LastConnectionLossAt == nil {
		t.Error("LastConnectionLossAt not recorded")
	}
	if got := alice.notes.Count(notify.KindLostConnection); got != 1 {
		t.Errorf("lost_connection notifications = %d, want 1", got)
	}

	if err := store.WriteHealth(ctx, remote.ServerHealth{Online: true}); err != nil {
		t.Fatal(err)
	}
	alice.stepUntil(t, "online again", func(s session.State) bool { return !s.OfflineMode })
	if !isActive(alice.machine.State()) {
		t.Error("alice should still be active")
	}
}

func TestActiveClientKeepsHeartbeatOverCompetingRecord(t *testing.T) {
	store := remote.NewMemoryStore()
	ctx := context.Background()
	if err := store.WriteHealth(ctx, remote.ServerHealth{Online: true}); err != nil {
		t.Fatal(err)
	}
	clk := newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	alice := newClient(t, "alice", store, clk)
	alice.startPresence(t)
	alice.machine.Emit(event.NewProcessStartedEvent("factorio"))
	alice.stepUntil(t, "alice active", isActive)

	if err := store.WritePresence(ctx, remote.PresenceRecord{UpdatedAt: clk.Now(), OwnerID: "bob"}); err != nil {
		t.Fatal(err)
	}
	clk.Advance(2 * time.Minute)

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec, err := store.ReadPresence(ctx)
		if err == nil && rec.OwnerID == "alice" && rec.UpdatedAt.Equal(clk.Now()) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("presence = %+v, %v; want a fresh heartbeat from alice", rec, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	alice.machine.Step(ctx)
	st := alice.machine.State()
	if st.Role != session.RoleActive || st.OfflineMode {
		t.Errorf("state = %+v, want active and online", st)
	}
	if got := alice.notes.Count(notify.KindLostConnection); got != 0 {
		t.Errorf("lost_connection notifications = %d, want 0", got)
	}
}

// unreadablePresence fails presence reads on demand; health reads and all
// writes still reach the wrapped store.
type unreadablePresence struct {
	*remote.MemoryStore
	failing atomic.Bool
}

func (s *unreadablePresence) ReadPresence(ctx context.Context) (remote.PresenceRecord, error) {
	if s.failing.Load() {
		return remote.PresenceRecord{}, errors.New("decode presence: invalid character 'x'")
	}
	return s.MemoryStore.ReadPresence(ctx)
}

func TestActiveClientSurvivesUnreadablePresence(t *testing.T) {
	mem := remote.NewMemoryStore()
	ctx := context.Background()
	if err := mem.WriteHealth(ctx, remote.ServerHealth{Online: true}); err != nil {
		t.Fatal(err)
	}
	store := &unreadablePresence{MemoryStore: mem}
	clk := newClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	alice := newClient(t, "alice", store, clk)
	alice.startPresence(t)
	alice.machine.Emit(event.NewProcessStartedEvent("factorio"))
	alice.stepUntil(t, "alice active", isActive)

	store.failing.Store(true)
	writes := mem.PresenceWrites()
	for i := 0; i < 3; i++ {
		clk.Advance(2 * time.Minute)
		want := writes + i + 1
		deadline := time.Now().Add(5 * time.Second)
		for mem.PresenceWrites() < want {
			if time.Now().After(deadline) {
				t.Fatalf("heartbeat %d not published, writes = %d", i+1, mem.PresenceWrites())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	alice.machine.Step(ctx)
	st := alice.machine.State()
	if st.Role != session.RoleActive || st.OfflineMode || !st.Available {
		t.Errorf("state = %+v, want active, online and available", st)
	}
	if got := alice.notes.Count(notify.KindLostConnection); got != 0 {
		t.Errorf("lost_connection notifications = %d, want 0", got)
	}
}
