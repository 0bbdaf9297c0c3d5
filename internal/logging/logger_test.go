package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in state directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logger.Info("hello")
		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("expected no closer when dir is empty")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelWarn)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), buf.String())
	}
}

func TestLogger_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, LevelDebug)

	child := root.WithClient("alice").WithSession("run-1").WithComponent("presence").With("attempt", 3)
	child.Info("heartbeat published", "owner", "alice")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	want := map[string]any{
		"msg":        "heartbeat published",
		"client_id":  "alice",
		"session_id": "run-1",
		"component":  "presence",
		"owner":      "alice",
		"attempt":    float64(3),
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}

	buf.Reset()
	root.Info("plain")
	if strings.Contains(buf.String(), "client_id") {
		t.Error("parent logger must not inherit child attributes")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRotatingWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	for i := 0; i < 3; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("expected at most 2 backups")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), FileName), DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed writer")
	}
}

func TestReadEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LevelDebug)
	logger.WithComponent("presence").Debug("probe ok")
	logger.WithComponent("session").Warn("connection lost", "owner", "bob")
	logger.WithComponent("sync").Error("push failed")
	buf.WriteString("not json\n")

	all, err := ReadEntries(bytes.NewReader(buf.Bytes()), Filter{})
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}

	warn, _ := ReadEntries(bytes.NewReader(buf.Bytes()), Filter{Level: "warn"})
	if len(warn) != 2 {
		t.Errorf("level filter: got %d entries, want 2", len(warn))
	}

	comp, _ := ReadEntries(bytes.NewReader(buf.Bytes()), Filter{Component: "session"})
	if len(comp) != 1 || comp[0].Attrs["owner"] != "bob" {
		t.Errorf("component filter: got %+v", comp)
	}

	grep, _ := ReadEntries(bytes.NewReader(buf.Bytes()), Filter{Pattern: regexp.MustCompile("push|probe")})
	if len(grep) != 2 {
		t.Errorf("pattern filter: got %d entries, want 2", len(grep))
	}

	future, _ := ReadEntries(bytes.NewReader(buf.Bytes()), Filter{Since: time.Now().Add(time.Hour)})
	if len(future) != 0 {
		t.Errorf("since filter: got %d entries, want 0", len(future))
	}
}
