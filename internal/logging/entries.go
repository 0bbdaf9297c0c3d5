package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// Entry is one parsed JSON log line.
type Entry struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	ClientID  string
	SessionID string
	Attrs     map[string]any
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Level     string
	Since     time.Time
	Component string
	Pattern   *regexp.Regexp
}

var levelRank = map[string]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.Level != "" && levelRank[ParseLevel(e.Level)] < levelRank[ParseLevel(f.Level)] {
		return false
	}
	if !f.Since.IsZero() && e.Time.Before(f.Since) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(e.Component, f.Component) {
		return false
	}
	if f.Pattern != nil && !f.Pattern.MatchString(e.Message) {
		return false
	}
	return true
}

// ParseEntry decodes a single JSON log line.
func ParseEntry(line string) (Entry, error) {
	raw := make(map[string]any)
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, err
	}

	e := Entry{Attrs: make(map[string]any)}
	for k, v := range raw {
		s, _ := v.(string)
		switch k {
		case "time":
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return Entry{}, fmt.Errorf("invalid time %q: %w", s, err)
			}
			e.Time = t
		case "level":
			e.Level = s
		case "msg":
			e.Message = s
		case "component":
			e.Component = s
		case "client_id":
			e.ClientID = s
		case "session_id":
			e.SessionID = s
		default:
			e.Attrs[k] = v
		}
	}
	return e, nil
}

// ReadEntries parses every valid line of r that matches f.
// Malformed lines are skipped.
func ReadEntries(r io.Reader, f Filter) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var entries []Entry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		e, err := ParseEntry(line)
		if err != nil {
			continue
		}
		if f.Match(e) {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}

// ReadFile is ReadEntries over the log file at path.
func ReadFile(path string, f Filter) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadEntries(file, f)
}

// Format renders e as a single human-readable line.
func (e Entry) Format() string {
	var sb strings.Builder
	sb.WriteString(e.Time.Local().Format("2006-01-02 15:04:05"))
	sb.WriteString(fmt.Sprintf(" %-5s", e.Level))
	if e.Component != "" {
		sb.WriteString(" [" + e.Component + "]")
	}
	sb.WriteString(" " + e.Message)
	for k, v := range e.Attrs {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}
	return sb.String()
}
