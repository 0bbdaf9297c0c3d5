package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sharedsave/internal/config"
	sserrors "github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/notify"
	"github.com/Iron-Ham/sharedsave/internal/remote"
	"github.com/Iron-Ham/sharedsave/internal/repair"
	"github.com/Iron-Ham/sharedsave/internal/session"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// isolate points config and state at temp dirs and resets viper.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "sharedsave" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "sharedsave")
	}

	expectedCmds := []string{"run", "setup", "status", "respond", "config", "server", "logs"}
	cmdMap := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		key     string
		raw     string
		want    any
		wantErr bool
	}{
		{"client.id", "alice", "alice", false},
		{"repair.max_attempts", "5", 5, false},
		{"repair.max_attempts", "five", nil, true},
		{"notifications.bell", "true", true, false},
		{"notifications.bell", "maybe", nil, true},
		{"sync.ignore", "*.tmp, *.bak,,", []string{"*.tmp", "*.bak"}, false},
		{"tui.theme", "dark", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.raw, func(t *testing.T) {
			got, err := parseValue(tt.key, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseValue() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseValue() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSettableKeysHaveDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	config.SetDefaults()

	known := make(map[string]bool)
	for _, k := range viper.AllKeys() {
		known[k] = true
	}
	for _, k := range settableKeyNames() {
		if !known[k] {
			t.Errorf("settable key %q has no default", k)
		}
	}
}

func TestSetInFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := setInFile(path, "client.id", "alice"); err != nil {
		t.Fatalf("setInFile() error = %v", err)
	}
	if err := setInFile(path, "sync.ignore", []string{"*.tmp"}); err != nil {
		t.Fatalf("setInFile() error = %v", err)
	}
	if err := setInFile(path, "client.id", "bob"); err != nil {
		t.Fatalf("setInFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Client struct {
			ID string `yaml:"id"`
		} `yaml:"client"`
		Sync struct {
			Ignore []string `yaml:"ignore"`
		} `yaml:"sync"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Client.ID != "bob" {
		t.Errorf("client.id = %q, want bob", doc.Client.ID)
	}
	if !reflect.DeepEqual(doc.Sync.Ignore, []string{"*.tmp"}) {
		t.Errorf("sync.ignore = %v", doc.Sync.Ignore)
	}
}

func TestConfigTemplateIsValid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		t.Fatal(err)
	}
	config.SetDefaults()
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("template does not validate: %v", err)
	}
	if !reflect.DeepEqual(cfg, config.Default()) {
		t.Errorf("template differs from defaults:\n got  %+v\n want %+v", cfg, config.Default())
	}
}

func TestConfigInitAndPath(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init error = %v\n%s", err, out)
	}
	if _, err := os.Stat(config.ConfigFile()); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should fail")
	}

	out, err = executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "SHAREDSAVE_") {
		t.Errorf("config path output missing env hint:\n%s", out)
	}
}

func TestRespond_InvalidToken(t *testing.T) {
	isolate(t)

	_, err := executeCommand(rootCmd, "respond", "format_disk")
	if err == nil || !strings.Contains(err.Error(), "unknown response token") {
		t.Errorf("respond error = %v", err)
	}
}

func TestRenderStatus(t *testing.T) {
	lost := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := session.Snapshot{
		ClientID:             "alice",
		Connectivity:         "online",
		Role:                 "active",
		ProcessRunning:       true,
		LastConnectionLossAt: &lost,
		SuppressOnlineNotice: true,
		LastRepair:           &repair.Record{Kind: sserrors.KindConnection, Attempts: 3, Resolved: true},
	}

	got := renderStatus(snap, false)
	for _, want := range []string{"alice", "online", "active", "Game running", "Last lost", "muted", "ConnectionError, resolved after 3 checks"} {
		if !strings.Contains(got, want) {
			t.Errorf("renderStatus() missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "\x1b[") {
		t.Error("plain rendering should not contain escape codes")
	}
}

func TestBuildLogFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	f, err := buildLogFilter("warn", "1h", "heart.*", "presence", now)
	if err != nil {
		t.Fatalf("buildLogFilter() error = %v", err)
	}
	if !f.Since.Equal(now.Add(-time.Hour)) {
		t.Errorf("Since = %v", f.Since)
	}
	if f.Pattern == nil || !f.Pattern.MatchString("heartbeat failed") {
		t.Error("Pattern not compiled")
	}

	for _, tc := range []struct{ level, since, grep string }{
		{"verbose", "", ""},
		{"", "yesterday", ""},
		{"", "", "[unclosed"},
	} {
		if _, err := buildLogFilter(tc.level, tc.since, tc.grep, "", now); err == nil {
			t.Errorf("buildLogFilter(%q, %q, %q) should fail", tc.level, tc.since, tc.grep)
		}
	}
}

func TestDisplayLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sharedsave.log")
	lines := strings.Join([]string{
		`{"time":"2026-03-01T12:00:00Z","level":"INFO","msg":"acquired","component":"presence"}`,
		`not json`,
		`{"time":"2026-03-01T12:00:01Z","level":"WARN","msg":"heartbeat failed","component":"presence"}`,
		`{"time":"2026-03-01T12:00:02Z","level":"ERROR","msg":"push failed","component":"sync"}`,
	}, "\n")
	if err := os.WriteFile(path, []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	f, err := buildLogFilter("warn", "", "", "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := displayLogs(&buf, path, 1, f); err != nil {
		t.Fatalf("displayLogs() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "push failed") || strings.Contains(out, "heartbeat failed") || strings.Contains(out, "acquired") {
		t.Errorf("displayLogs() tail/filter wrong:\n%s", out)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Remote.Backend = "memory"
	store, err := openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore(memory) error = %v", err)
	}
	health, err := store.ReadHealth(ctx)
	if err != nil || !health.Online {
		t.Errorf("memory store health = %+v, %v; want online", health, err)
	}

	cfg.Remote.Backend = "redis"
	cfg.Remote.RedisURL = "redis://localhost:6379/0"
	store, err = openStore(ctx, cfg)
	if err != nil {
		t.Fatalf("openStore(redis) error = %v", err)
	}
	_ = store.Close()

	cfg.Remote.Backend = "etcd"
	if _, err := openStore(ctx, cfg); err == nil {
		t.Error("openStore(etcd) should fail")
	}
}

func TestPrintServerState(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.Default()

	tests := []struct {
		name  string
		setup func(*remote.MemoryStore)
		want  []string
	}{
		{
			name:  "empty store",
			setup: func(*remote.MemoryStore) {},
			want:  []string{"not set", "never written"},
		},
		{
			name: "fresh heartbeat",
			setup: func(s *remote.MemoryStore) {
				_ = s.WriteHealth(ctx, remote.ServerHealth{Online: true})
				_ = s.WritePresence(ctx, remote.PresenceRecord{OwnerID: "alice", UpdatedAt: now.Add(-30 * time.Second)})
			},
			want: []string{"Health:   online", "alice (active, last heartbeat 30s ago)"},
		},
		{
			name: "stale heartbeat",
			setup: func(s *remote.MemoryStore) {
				_ = s.WriteHealth(ctx, remote.ServerHealth{Online: false})
				_ = s.WritePresence(ctx, remote.PresenceRecord{OwnerID: "bob", UpdatedAt: now.Add(-10 * time.Minute)})
			},
			want: []string{"Health:   offline", "bob (stale"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := remote.NewMemoryStore()
			tt.setup(store)

			var buf bytes.Buffer
			c := &cobra.Command{}
			c.SetOut(&buf)
			if err := printServerState(ctx, c, cfg, store, now); err != nil {
				t.Fatalf("printServerState() error = %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestBuildNotifier(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()

	cfg.Notifications.Enabled = false
	n := buildNotifier(cfg, &buf, nil)
	if err := n.Notify(context.Background(), notify.New(notify.KindConnected)); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("disabled notifier wrote %q", buf.String())
	}

	cfg.Notifications.Enabled = true
	cfg.Notifications.Desktop = false
	n = buildNotifier(cfg, &buf, nil)
	if _, ok := n.(*notify.Terminal); !ok {
		t.Errorf("buildNotifier() = %T, want *notify.Terminal", n)
	}
	if err := n.Notify(context.Background(), notify.New(notify.KindConnected)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "connected") {
		t.Errorf("terminal output = %q", buf.String())
	}

	cfg.Notifications.Desktop = true
	if _, ok := buildNotifier(cfg, &buf, nil).(notify.Multi); !ok {
		t.Error("desktop notifications should fan out through notify.Multi")
	}
}
