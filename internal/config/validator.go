package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "presence.settle_delay_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found.
// Fields that are only needed by the daemon (repository URL, saves
// directory, process name) are checked by ValidateForRun.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateRemote()...)
	errors = append(errors, c.validatePresence()...)
	errors = append(errors, c.validateRepair()...)
	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validateSync()...)
	errors = append(errors, c.validateProcess()...)
	errors = append(errors, c.validateStatus()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

// ValidateForRun checks the fields the daemon cannot start without.
func (c *Config) ValidateForRun() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Sync.RepoURL) == "" {
		errors = append(errors, ValidationError{
			Field:   "sync.repo_url",
			Value:   c.Sync.RepoURL,
			Message: "is required",
		})
	}
	if strings.TrimSpace(c.Sync.SavesDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "sync.saves_dir",
			Value:   c.Sync.SavesDir,
			Message: "is required",
		})
	}
	if strings.TrimSpace(c.Process.Name) == "" {
		errors = append(errors, ValidationError{
			Field:   "process.name",
			Value:   c.Process.Name,
			Message: "is required",
		})
	}

	return errors
}

func (c *Config) validateRemote() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Remote.Backend) {
		errors = append(errors, ValidationError{
			Field:   "remote.backend",
			Value:   c.Remote.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if c.Remote.Backend == "redis" {
		u, err := url.Parse(c.Remote.RedisURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			errors = append(errors, ValidationError{
				Field:   "remote.redis_url",
				Value:   redactURL(c.Remote.RedisURL),
				Message: "must be a redis://, rediss:// or unix:// URL",
			})
		}
	}

	if c.Remote.RedisDB < 0 {
		errors = append(errors, ValidationError{
			Field:   "remote.redis_db",
			Value:   c.Remote.RedisDB,
			Message: "must be non-negative",
		})
	}

	if strings.TrimSpace(c.Remote.PresenceKey) == "" {
		errors = append(errors, ValidationError{
			Field:   "remote.presence_key",
			Value:   c.Remote.PresenceKey,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Remote.HealthKey) == "" {
		errors = append(errors, ValidationError{
			Field:   "remote.health_key",
			Value:   c.Remote.HealthKey,
			Message: "must not be empty",
		})
	}
	if c.Remote.PresenceKey != "" && c.Remote.PresenceKey == c.Remote.HealthKey {
		errors = append(errors, ValidationError{
			Field:   "remote.health_key",
			Value:   c.Remote.HealthKey,
			Message: "must differ from remote.presence_key",
		})
	}

	if c.Remote.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "remote.timeout_ms",
			Value:   c.Remote.TimeoutMs,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validatePresence() []ValidationError {
	var errors []ValidationError
	p := c.Presence

	if p.FreshnessWindowSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "presence.freshness_window_seconds",
			Value:   p.FreshnessWindowSeconds,
			Message: "must be positive",
		})
	}
	if p.HeartbeatIntervalSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "presence.heartbeat_interval_seconds",
			Value:   p.HeartbeatIntervalSeconds,
			Message: "must be positive",
		})
	}

	// A heartbeat slower than the freshness window lets an active session
	// look abandoned between two writes.
	if p.FreshnessWindowSeconds > 0 && p.HeartbeatIntervalSeconds >= p.FreshnessWindowSeconds {
		errors = append(errors, ValidationError{
			Field:   "presence.heartbeat_interval_seconds",
			Value:   p.HeartbeatIntervalSeconds,
			Message: fmt.Sprintf("must be less than presence.freshness_window_seconds (%d)", p.FreshnessWindowSeconds),
		})
	}

	if p.SettleDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "presence.settle_delay_ms",
			Value:   p.SettleDelayMs,
			Message: "must be non-negative",
		})
	}

	const minPollMs = 50
	if p.PollIntervalMs < minPollMs {
		errors = append(errors, ValidationError{
			Field:   "presence.poll_interval_ms",
			Value:   p.PollIntervalMs,
			Message: fmt.Sprintf("must be at least %d", minPollMs),
		})
	}

	if _, _, err := net.SplitHostPort(p.ProbeAddress); err != nil {
		errors = append(errors, ValidationError{
			Field:   "presence.probe_address",
			Value:   p.ProbeAddress,
			Message: "must be host:port",
		})
	}

	if p.ProbeTimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "presence.probe_timeout_ms",
			Value:   p.ProbeTimeoutMs,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateRepair() []ValidationError {
	var errors []ValidationError

	if c.Repair.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "repair.max_attempts",
			Value:   c.Repair.MaxAttempts,
			Message: "must be at least 1",
		})
	}
	const maxAttempts = 1000
	if c.Repair.MaxAttempts > maxAttempts {
		errors = append(errors, ValidationError{
			Field:   "repair.max_attempts",
			Value:   c.Repair.MaxAttempts,
			Message: fmt.Sprintf("exceeds maximum of %d", maxAttempts),
		})
	}
	if c.Repair.IntervalMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "repair.interval_ms",
			Value:   c.Repair.IntervalMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateSession() []ValidationError {
	const minTickMs = 50
	if c.Session.TickMs < minTickMs {
		return []ValidationError{{
			Field:   "session.tick_ms",
			Value:   c.Session.TickMs,
			Message: fmt.Sprintf("must be at least %d", minTickMs),
		}}
	}
	return nil
}

func (c *Config) validateSync() []ValidationError {
	var errors []ValidationError

	sub := c.Sync.RepoSubdir
	if sub == "" || strings.HasPrefix(sub, "/") || slices.Contains(strings.Split(sub, "/"), "..") {
		errors = append(errors, ValidationError{
			Field:   "sync.repo_subdir",
			Value:   sub,
			Message: "must be a relative path inside the repository",
		})
	}

	if strings.TrimSpace(c.Sync.GitBinary) == "" {
		errors = append(errors, ValidationError{
			Field:   "sync.git_binary",
			Value:   c.Sync.GitBinary,
			Message: "must not be empty",
		})
	}

	if c.Sync.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.debounce_ms",
			Value:   c.Sync.DebounceMs,
			Message: "must be non-negative",
		})
	}

	for i, pattern := range c.Sync.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sync.ignore[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	for _, field := range []struct{ name, path string }{
		{"sync.root_dir", c.Sync.RootDir},
		{"sync.saves_dir", c.Sync.SavesDir},
	} {
		if strings.ContainsRune(field.path, '\x00') {
			errors = append(errors, ValidationError{
				Field:   field.name,
				Value:   field.path,
				Message: "path contains invalid null character",
			})
		}
	}

	return errors
}

func (c *Config) validateProcess() []ValidationError {
	const minPollMs = 100
	if c.Process.PollIntervalMs < minPollMs {
		return []ValidationError{{
			Field:   "process.poll_interval_ms",
			Value:   c.Process.PollIntervalMs,
			Message: fmt.Sprintf("must be at least %d", minPollMs),
		}}
	}
	return nil
}

func (c *Config) validateStatus() []ValidationError {
	if c.Status.Listen == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(c.Status.Listen)
	if err != nil {
		return []ValidationError{{
			Field:   "status.listen",
			Value:   c.Status.Listen,
			Message: "must be host:port",
		}}
	}
	// The status API accepts user responses without authentication.
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return []ValidationError{{
			Field:   "status.listen",
			Value:   c.Status.Listen,
			Message: "must be a loopback address",
		}}
	}
	return nil
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	path := c.Paths.StateDir
	if path == "" {
		return nil
	}

	var errors []ValidationError
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "paths.state_dir",
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   "paths.state_dir",
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}
	return errors
}

// redactURL hides the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}

// RedactedRedisURL returns the configured Redis URL with its password masked.
func (c *RemoteConfig) RedactedRedisURL() string {
	return redactURL(c.RedisURL)
}
