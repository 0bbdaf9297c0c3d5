package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config represents the complete sharedsave configuration
type Config struct {
	Client        ClientConfig        `mapstructure:"client"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Presence      PresenceConfig      `mapstructure:"presence"`
	Repair        RepairConfig        `mapstructure:"repair"`
	Session       SessionConfig       `mapstructure:"session"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Process       ProcessConfig       `mapstructure:"process"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Status        StatusConfig        `mapstructure:"status"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Paths         PathsConfig         `mapstructure:"paths"`
}

// ClientConfig identifies this installation
type ClientConfig struct {
	// ID is written as the heartbeat owner. Empty means user@host.
	ID string `mapstructure:"id"`
}

// RemoteConfig selects and configures the remote document store
type RemoteConfig struct {
	// Backend is "redis" or "memory" (memory is for dry runs and tests)
	Backend string `mapstructure:"backend"`
	// RedisURL is a redis:// or rediss:// URL, credentials included
	RedisURL string `mapstructure:"redis_url"`
	// RedisDB overrides the database number in the URL when non-zero
	RedisDB int `mapstructure:"redis_db"`
	// PresenceKey holds the shared heartbeat document
	PresenceKey string `mapstructure:"presence_key"`
	// HealthKey holds the operator's server health flag
	HealthKey string `mapstructure:"health_key"`
	// TimeoutMs bounds every remote read and write
	TimeoutMs int `mapstructure:"timeout_ms"`
}

// PresenceConfig controls the soft-lock protocol timing
type PresenceConfig struct {
	// FreshnessWindowSeconds is the age after which a heartbeat is stale (default: 300)
	FreshnessWindowSeconds int `mapstructure:"freshness_window_seconds"`
	// SettleDelayMs is the pause between the connectivity check and the
	// availability decision on acquisition (default: 4000)
	SettleDelayMs int `mapstructure:"settle_delay_ms"`
	// HeartbeatIntervalSeconds is how often the active client rewrites its heartbeat (default: 60)
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
	// PollIntervalMs is the connectivity poller tick (default: 1000)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// ProbeAddress is the host:port dialed to test internet reachability
	ProbeAddress string `mapstructure:"probe_address"`
	// ProbeTimeoutMs bounds the reachability probe (default: 3000)
	ProbeTimeoutMs int `mapstructure:"probe_timeout_ms"`
}

// RepairConfig controls ConnectionError recovery
type RepairConfig struct {
	// MaxAttempts is how many times connectivity is polled before escalating (default: 10)
	MaxAttempts int `mapstructure:"max_attempts"`
	// IntervalMs is the pause between attempts (default: 1000)
	IntervalMs int `mapstructure:"interval_ms"`
}

// SessionConfig controls the control loop
type SessionConfig struct {
	// TickMs is the control loop tick (default: 1000)
	TickMs int `mapstructure:"tick_ms"`
}

// SyncConfig controls the save repository
type SyncConfig struct {
	// RepoURL is the remote git repository holding the shared saves
	RepoURL string `mapstructure:"repo_url"`
	// RootDir is the local clone. Empty means {state_dir}/repo.
	RootDir string `mapstructure:"root_dir"`
	// RepoSubdir is the folder inside the clone that mirrors the saves dir (default: "saves")
	RepoSubdir string `mapstructure:"repo_subdir"`
	// SavesDir is the folder the game reads shared saves from
	SavesDir string `mapstructure:"saves_dir"`
	// GitBinary is the git executable (default: "git")
	GitBinary string `mapstructure:"git_binary"`
	// DebounceMs coalesces bursts of save-file events (default: 500)
	DebounceMs int `mapstructure:"debounce_ms"`
	// Ignore lists glob patterns (relative to the saves dir) that never trigger a push
	Ignore []string `mapstructure:"ignore"`
	// ClearOnExit removes the game-side copy of the shared saves after a
	// successful push, so they cannot be played while another client is active (default: true)
	ClearOnExit bool `mapstructure:"clear_on_exit"`
}

// ProcessConfig describes the target application
type ProcessConfig struct {
	// Name is the executable name to look for, e.g. "factorio" or "factorio.exe"
	Name string `mapstructure:"name"`
	// LaunchPath is started by the open_application response; empty disables it
	LaunchPath string `mapstructure:"launch_path"`
	// PollIntervalMs is the process poller tick (default: 1000)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// NotificationsConfig controls user notifications
type NotificationsConfig struct {
	// Enabled turns all notifications on or off (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Desktop additionally sends desktop notifications (default: true)
	Desktop bool `mapstructure:"desktop"`
	// Bell rings the terminal bell on warnings (default: false)
	Bell bool `mapstructure:"bell"`
	// SuppressOnlineNotice starts with "online available" notices muted (default: false)
	SuppressOnlineNotice bool `mapstructure:"suppress_online_notice"`
}

// StatusConfig controls the local status API
type StatusConfig struct {
	// Listen is the loopback address of the status API; empty disables it
	Listen string `mapstructure:"listen"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// PathsConfig controls where sharedsave stores its own data
type PathsConfig struct {
	// StateDir holds the log file, the daemon lock and the default clone.
	// Empty means $XDG_STATE_HOME/sharedsave or ~/.local/state/sharedsave.
	// Supports ~ for home directory expansion.
	StateDir string `mapstructure:"state_dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Backend:     "redis",
			RedisURL:    "redis://localhost:6379/0",
			PresenceKey: "sharedsave:presence",
			HealthKey:   "sharedsave:server_health",
			TimeoutMs:   3000,
		},
		Presence: PresenceConfig{
			FreshnessWindowSeconds:   300,
			SettleDelayMs:            4000,
			HeartbeatIntervalSeconds: 60,
			PollIntervalMs:           1000,
			ProbeAddress:             "8.8.8.8:53",
			ProbeTimeoutMs:           3000,
		},
		Repair: RepairConfig{
			MaxAttempts: 10,
			IntervalMs:  1000,
		},
		Session: SessionConfig{
			TickMs: 1000,
		},
		Sync: SyncConfig{
			RepoSubdir:  "saves",
			GitBinary:   "git",
			DebounceMs:  500,
			Ignore:      []string{"*.tmp", "*.swp", "**/.DS_Store"},
			ClearOnExit: true,
		},
		Process: ProcessConfig{
			PollIntervalMs: 1000,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Desktop: true,
		},
		Status: StatusConfig{
			Listen: "127.0.0.1:47600",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// FreshnessWindow returns the heartbeat freshness window
func (c *PresenceConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

// SettleDelay returns the acquisition settle delay
func (c *PresenceConfig) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat publish interval
func (c *PresenceConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalSeconds) * time.Second
}

// PollInterval returns the connectivity poller tick
func (c *PresenceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// ProbeTimeout returns the reachability probe timeout
func (c *PresenceConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// Interval returns the pause between repair attempts
func (c *RepairConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Tick returns the control loop tick
func (c *SessionConfig) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Debounce returns the save watcher debounce window
func (c *SyncConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// PollInterval returns the process poller tick
func (c *ProcessConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout returns the per-call remote timeout
func (c *RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ResolveStateDir returns the absolute state directory.
func (p *PathsConfig) ResolveStateDir() string {
	if p.StateDir != "" {
		return expandHome(p.StateDir)
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharedsave")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sharedsave"
	}
	return filepath.Join(home, ".local", "state", "sharedsave")
}

// ResolveRootDir returns the local clone directory.
func (c *Config) ResolveRootDir() string {
	if c.Sync.RootDir != "" {
		return expandHome(c.Sync.RootDir)
	}
	return filepath.Join(c.Paths.ResolveStateDir(), "repo")
}

// ResolveSavesDir returns the game's shared saves directory.
func (c *Config) ResolveSavesDir() string {
	return expandHome(c.Sync.SavesDir)
}

// ResolveClientID returns the configured client ID, or user@host, or a
// random UUID when neither the user nor the host can be determined.
func (c *Config) ResolveClientID() string {
	if id := strings.TrimSpace(c.Client.ID); id != "" {
		return id
	}

	name := ""
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	host, _ := os.Hostname()

	switch {
	case name != "" && host != "":
		return fmt.Sprintf("%s@%s", name, host)
	case name != "":
		return name
	case host != "":
		return host
	}
	return uuid.NewString()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	d := Default()

	viper.SetDefault("client.id", d.Client.ID)

	viper.SetDefault("remote.backend", d.Remote.Backend)
	viper.SetDefault("remote.redis_url", d.Remote.RedisURL)
	viper.SetDefault("remote.redis_db", d.Remote.RedisDB)
	viper.SetDefault("remote.presence_key", d.Remote.PresenceKey)
	viper.SetDefault("remote.health_key", d.Remote.HealthKey)
	viper.SetDefault("remote.timeout_ms", d.Remote.TimeoutMs)

	viper.SetDefault("presence.freshness_window_seconds", d.Presence.FreshnessWindowSeconds)
	viper.SetDefault("presence.settle_delay_ms", d.Presence.SettleDelayMs)
	viper.SetDefault("presence.heartbeat_interval_seconds", d.Presence.HeartbeatIntervalSeconds)
	viper.SetDefault("presence.poll_interval_ms", d.Presence.PollIntervalMs)
	viper.SetDefault("presence.probe_address", d.Presence.ProbeAddress)
	viper.SetDefault("presence.probe_timeout_ms", d.Presence.ProbeTimeoutMs)

	viper.SetDefault("repair.max_attempts", d.Repair.MaxAttempts)
	viper.SetDefault("repair.interval_ms", d.Repair.IntervalMs)

	viper.SetDefault("session.tick_ms", d.Session.TickMs)

	viper.SetDefault("sync.repo_url", d.Sync.RepoURL)
	viper.SetDefault("sync.root_dir", d.Sync.RootDir)
	viper.SetDefault("sync.repo_subdir", d.Sync.RepoSubdir)
	viper.SetDefault("sync.saves_dir", d.Sync.SavesDir)
	viper.SetDefault("sync.git_binary", d.Sync.GitBinary)
	viper.SetDefault("sync.debounce_ms", d.Sync.DebounceMs)
	viper.SetDefault("sync.ignore", d.Sync.Ignore)
	viper.SetDefault("sync.clear_on_exit", d.Sync.ClearOnExit)

	viper.SetDefault("process.name", d.Process.Name)
	viper.SetDefault("process.launch_path", d.Process.LaunchPath)
	viper.SetDefault("process.poll_interval_ms", d.Process.PollIntervalMs)

	viper.SetDefault("notifications.enabled", d.Notifications.Enabled)
	viper.SetDefault("notifications.desktop", d.Notifications.Desktop)
	viper.SetDefault("notifications.bell", d.Notifications.Bell)
	viper.SetDefault("notifications.suppress_online_notice", d.Notifications.SuppressOnlineNotice)

	viper.SetDefault("status.listen", d.Status.Listen)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	viper.SetDefault("logging.compress", d.Logging.Compress)

	viper.SetDefault("paths.state_dir", d.Paths.StateDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sharedsave")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sharedsave"
	}
	return filepath.Join(home, ".config", "sharedsave")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnvFile returns the path of the optional .env file holding credentials
func EnvFile() string {
	return filepath.Join(ConfigDir(), ".env")
}

// ValidBackends returns the list of valid remote backends
func ValidBackends() []string {
	return []string{"redis", "memory"}
}
