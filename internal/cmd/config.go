package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sharedsave/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify sharedsave configuration",
	Long: `View or modify sharedsave configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  sharedsave config set client.id alice
  sharedsave config set sync.repo_url git@github.com:friends/saves.git
  sharedsave config set sync.saves_dir ~/factorio/saves
  sharedsave config set process.name factorio
  sharedsave config set sync.ignore "*.tmp,*.bak"

Run 'sharedsave config show' to see every key.`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return settableKeyNames(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at $XDG_CONFIG_HOME/sharedsave/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

type keyType int

const (
	keyString keyType = iota
	keyInt
	keyBool
	keyList
)

// settableKeys lists every key `config set` accepts.
var settableKeys = map[string]keyType{
	"client.id": keyString,

	"remote.backend":      keyString,
	"remote.redis_url":    keyString,
	"remote.redis_db":     keyInt,
	"remote.presence_key": keyString,
	"remote.health_key":   keyString,
	"remote.timeout_ms":   keyInt,

	"presence.freshness_window_seconds":   keyInt,
	"presence.settle_delay_ms":            keyInt,
	"presence.heartbeat_interval_seconds": keyInt,
	"presence.poll_interval_ms":           keyInt,
	"presence.probe_address":              keyString,
	"presence.probe_timeout_ms":           keyInt,

	"repair.max_attempts": keyInt,
	"repair.interval_ms":  keyInt,

	"session.tick_ms": keyInt,

	"sync.repo_url":      keyString,
	"sync.root_dir":      keyString,
	"sync.repo_subdir":   keyString,
	"sync.saves_dir":     keyString,
	"sync.git_binary":    keyString,
	"sync.debounce_ms":   keyInt,
	"sync.ignore":        keyList,
	"sync.clear_on_exit": keyBool,

	"process.name":             keyString,
	"process.launch_path":      keyString,
	"process.poll_interval_ms": keyInt,

	"notifications.enabled":                keyBool,
	"notifications.desktop":                keyBool,
	"notifications.bell":                   keyBool,
	"notifications.suppress_online_notice": keyBool,

	"status.listen": keyString,

	"logging.level":       keyString,
	"logging.max_size_mb": keyInt,
	"logging.max_backups": keyInt,
	"logging.compress":    keyBool,

	"paths.state_dir": keyString,
}

// parseValue converts raw to the type of key.
func parseValue(key, raw string) (any, error) {
	kt, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'sharedsave config show' to see valid keys", key)
	}

	switch kt {
	case keyBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return b, nil
	case keyInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		return n, nil
	case keyList:
		var items []string
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	default:
		return raw, nil
	}
}

// setInFile writes key=value into the YAML file at path, keeping every
// other key the file already has. Missing parents are created.
func setInFile(path, key string, value any) error {
	doc := make(map[string]any)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if doc == nil {
			doc = make(map[string]any)
		}
	case !os.IsNotExist(err):
		return err
	}

	parts := strings.Split(key, ".")
	node := doc
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, out, 0644)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	settings := viper.AllSettings()
	delete(settings, "config")
	if remoteSettings, ok := settings["remote"].(map[string]any); ok {
		if url, ok := remoteSettings["redis_url"].(string); ok {
			r := config.RemoteConfig{RedisURL: url}
			remoteSettings["redis_url"] = r.RedactedRedisURL()
		}
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]
	value, err := parseValue(key, raw)
	if err != nil {
		return err
	}

	// Validate against the effective configuration before touching the file.
	viper.Set(key, value)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	path := viper.ConfigFileUsed()
	if path == "" {
		path = config.ConfigFile()
	}
	if err := setInFile(path, key, value); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", key, value)
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", path)
	return nil
}

const configTemplate = `# sharedsave configuration
# Values can be overridden with SHAREDSAVE_* environment variables,
# e.g. SHAREDSAVE_REMOTE_REDIS_URL. Secrets may go in a .env file next
# to this one.

client:
  # Written as the heartbeat owner. Empty means user@host.
  id: ""

remote:
  # "redis" or "memory" (memory only works within a single process)
  backend: redis
  redis_url: redis://localhost:6379/0
  presence_key: sharedsave:presence
  health_key: sharedsave:server_health
  timeout_ms: 3000

presence:
  # A heartbeat older than this no longer blocks other players
  freshness_window_seconds: 300
  # Pause between the connectivity check and claiming the save
  settle_delay_ms: 4000
  heartbeat_interval_seconds: 60
  poll_interval_ms: 1000
  # host:port dialed to test internet reachability
  probe_address: 8.8.8.8:53
  probe_timeout_ms: 3000

repair:
  # Connectivity is re-checked this many times before going offline
  max_attempts: 10
  interval_ms: 1000

session:
  tick_ms: 1000

sync:
  # Git repository holding the shared saves (required)
  repo_url: ""
  # Local clone; empty means <state_dir>/repo
  root_dir: ""
  # Folder inside the repository mirrored to saves_dir
  repo_subdir: saves
  # Folder the game loads shared saves from (required)
  saves_dir: ""
  git_binary: git
  debounce_ms: 500
  ignore:
    - "*.tmp"
    - "*.swp"
    - "**/.DS_Store"
  # Remove the game-side saves after pushing so they are not played offline by mistake
  clear_on_exit: true

process:
  # Executable name of the game, e.g. factorio or factorio.exe (required)
  name: ""
  # Started by 'sharedsave respond open_application'
  launch_path: ""
  poll_interval_ms: 1000

notifications:
  enabled: true
  desktop: true
  bell: false
  suppress_online_notice: false

status:
  # Loopback address for 'sharedsave status' and 'respond'; empty disables
  listen: 127.0.0.1:47600

logging:
  # debug, info, warn or error
  level: info
  max_size_mb: 10
  max_backups: 3
  compress: false

paths:
  # Logs, daemon lock and the default clone. Empty means $XDG_STATE_HOME/sharedsave
  state_dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'sharedsave config set' to modify values", configFile)
	}
	if err := os.MkdirAll(config.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Set sync.repo_url, sync.saves_dir and process.name, then run 'sharedsave setup'.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", config.ConfigFile())
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nCredentials file: %s\n", config.EnvFile())
	fmt.Fprintln(out, "Environment variables: SHAREDSAVE_* (e.g., SHAREDSAVE_SYNC_SAVES_DIR)")
	return nil
}

// settableKeyNames returns the settable keys in sorted order.
func settableKeyNames() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
