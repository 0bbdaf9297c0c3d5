package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Iron-Ham/sharedsave/internal/errors"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	URL         string
	DB          int // Overrides the URL database when non-zero
	PresenceKey string
	HealthKey   string
	Timeout     time.Duration // Per-call timeout; zero means no extra bound
}

// RedisStore keeps both documents as JSON string values.
type RedisStore struct {
	client *redis.Client
	opts   RedisOptions
}

// NewRedisStore parses the URL and builds a client. It does not contact
// the server; call Ping to verify the connection.
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if opts.DB != 0 {
		opt.DB = opts.DB
	}
	if opts.Timeout > 0 {
		opt.DialTimeout = opts.Timeout
		opt.ReadTimeout = opts.Timeout
		opt.WriteTimeout = opts.Timeout
	}
	// Connectivity is decided by the caller; go-redis retries would only
	// stretch each failed call.
	opt.MaxRetries = -1

	return NewRedisStoreWithClient(redis.NewClient(opt), opts), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, opts RedisOptions) *RedisStore {
	return &RedisStore{client: client, opts: opts}
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// ReadPresence fetches and decodes the presence record.
func (s *RedisStore) ReadPresence(ctx context.Context) (PresenceRecord, error) {
	var rec PresenceRecord
	if err := s.get(ctx, s.opts.PresenceKey, &rec); err != nil {
		return PresenceRecord{}, err
	}
	return rec, nil
}

// WritePresence overwrites the presence record.
func (s *RedisStore) WritePresence(ctx context.Context, rec PresenceRecord) error {
	return s.set(ctx, s.opts.PresenceKey, rec)
}

// ReadHealth fetches the server health flag.
func (s *RedisStore) ReadHealth(ctx context.Context) (ServerHealth, error) {
	var h ServerHealth
	if err := s.get(ctx, s.opts.HealthKey, &h); err != nil {
		return ServerHealth{}, err
	}
	return h, nil
}

// WriteHealth overwrites the server health flag.
func (s *RedisStore) WriteHealth(ctx context.Context, h ServerHealth) error {
	return s.set(ctx, s.opts.HealthKey, h)
}

// Ping checks that the server answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close releases the client's connections.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) get(ctx context.Context, key string, v any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
