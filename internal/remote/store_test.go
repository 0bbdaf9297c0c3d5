package remote

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.ReadPresence(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadPresence on empty store = %v, want ErrNotFound", err)
	}
	if _, err := s.ReadHealth(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadHealth on empty store = %v, want ErrNotFound", err)
	}

	rec := PresenceRecord{UpdatedAt: time.Now().UTC().Truncate(time.Millisecond), OwnerID: "alice"}
	if err := s.WritePresence(ctx, rec); err != nil {
		t.Fatalf("WritePresence failed: %v", err)
	}
	got, err := s.ReadPresence(ctx)
	if err != nil {
		t.Fatalf("ReadPresence failed: %v", err)
	}
	if got.OwnerID != "alice" || !got.UpdatedAt.Equal(rec.UpdatedAt) {
		t.Errorf("ReadPresence = %+v, want %+v", got, rec)
	}

	// Overwrite is unconditional.
	rec2 := PresenceRecord{UpdatedAt: rec.UpdatedAt.Add(time.Second), OwnerID: "bob"}
	if err := s.WritePresence(ctx, rec2); err != nil {
		t.Fatalf("WritePresence failed: %v", err)
	}
	if got, _ := s.ReadPresence(ctx); got.OwnerID != "bob" {
		t.Errorf("owner after overwrite = %q, want bob", got.OwnerID)
	}

	if err := s.WriteHealth(ctx, ServerHealth{Online: true}); err != nil {
		t.Fatalf("WriteHealth failed: %v", err)
	}
	h, err := s.ReadHealth(ctx)
	if err != nil || !h.Online {
		t.Errorf("ReadHealth = %+v, %v", h, err)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	boom := errors.New("unreachable")

	m.SetWriteError(boom)
	if err := m.WritePresence(ctx, PresenceRecord{OwnerID: "a"}); !errors.Is(err, boom) {
		t.Errorf("WritePresence = %v, want injected error", err)
	}
	if m.PresenceWrites() != 0 {
		t.Errorf("PresenceWrites() = %d, want 0", m.PresenceWrites())
	}
	m.SetWriteError(nil)
	if err := m.WritePresence(ctx, PresenceRecord{OwnerID: "a"}); err != nil {
		t.Fatal(err)
	}

	m.SetReadError(boom)
	if _, err := m.ReadPresence(ctx); !errors.Is(err, boom) {
		t.Errorf("ReadPresence = %v, want injected error", err)
	}
	if err := m.Ping(ctx); !errors.Is(err, boom) {
		t.Errorf("Ping = %v, want injected error", err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryStore().ReadPresence(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadPresence = %v, want context.Canceled", err)
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore(RedisOptions{URL: "http://not-redis"}); err == nil {
		t.Error("expected error for non-redis URL")
	}
}

// TestRedisStore runs against a real server when SHAREDSAVE_TEST_REDIS_URL is set.
func TestRedisStore(t *testing.T) {
	url := os.Getenv("SHAREDSAVE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SHAREDSAVE_TEST_REDIS_URL not set")
	}

	suffix := time.Now().Format("20060102150405.000000000")
	s, err := NewRedisStore(RedisOptions{
		URL:         url,
		PresenceKey: "sharedsave:test:presence:" + suffix,
		HealthKey:   "sharedsave:test:health:" + suffix,
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		s.client.Del(ctx, s.opts.PresenceKey, s.opts.HealthKey)
		_ = s.Close()
	})

	exerciseStore(t, s)
}
