package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/sharedsave/internal/config"
	"github.com/Iron-Ham/sharedsave/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View daemon logs",
	Long: `View and filter the daemon log.

Examples:
  # Show the last 50 entries
  sharedsave logs

  # Follow logs in real-time
  sharedsave logs -f

  # Only warnings and errors from the last hour
  sharedsave logs --level warn --since 1h

  # Only the presence component
  sharedsave logs --component presence

  # Search messages
  sharedsave logs --grep "heartbeat|acquire"`,
	RunE: runLogs,
}

var (
	logsTail      int
	logsFollow    bool
	logsLevel     string
	logsSince     string
	logsGrep      string
	logsComponent string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter messages matching pattern (regex)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component (presence, session, sync, git, ...)")
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
	logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
	logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
}

// buildLogFilter turns the command's flags into a logging.Filter.
func buildLogFilter(level, since, pattern, component string, now time.Time) (logging.Filter, error) {
	f := logging.Filter{Level: level, Component: component}
	if level != "" && !isValidLevel(level) {
		return f, fmt.Errorf("invalid level %q (valid: %s)", level, strings.Join(config.ValidLogLevels(), ", "))
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.Since = now.Add(-d)
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.Pattern = re
	}
	return f, nil
}

func isValidLevel(level string) bool {
	for _, l := range config.ValidLogLevels() {
		if strings.EqualFold(l, level) {
			return true
		}
	}
	return false
}

func formatEntry(e logging.Entry) string {
	line := e.Format()
	style, ok := levelStyles[logging.ParseLevel(e.Level)]
	if !ok {
		return line
	}
	return style.Render(line)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logPath := filepath.Join(cfg.Paths.ResolveStateDir(), logging.FileName)

	out := cmd.OutOrStdout()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No logs found.")
		fmt.Fprintln(out, "Logs are stored at:", logPath)
		return nil
	}

	filter, err := buildLogFilter(logsLevel, logsSince, logsGrep, logsComponent, time.Now())
	if err != nil {
		return err
	}

	if logsFollow {
		return followLogs(cmd.Context(), out, logPath, filter)
	}
	return displayLogs(out, logPath, logsTail, filter)
}

// displayLogs prints the last tail entries matching filter.
func displayLogs(out io.Writer, logPath string, tail int, filter logging.Filter) error {
	entries, err := logging.ReadFile(logPath, filter)
	if err != nil {
		return fmt.Errorf("error reading log file: %w", err)
	}
	if tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatEntry(e))
	}
	return nil
}

// followLogs implements tail -f behavior for the log file
func followLogs(ctx context.Context, out io.Writer, logPath string, filter logging.Filter) error {
	file, err := os.Open(logPath)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	fmt.Fprintf(out, "Following logs... (Ctrl+C to stop)\n\n")

	reader := bufio.NewReader(file)
	var partial string
	for {
		chunk, err := reader.ReadString('\n')
		partial += chunk
		if err == io.EOF {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}

		line := strings.TrimSpace(partial)
		partial = ""
		if line == "" {
			continue
		}
		e, err := logging.ParseEntry(line)
		if err != nil {
			fmt.Fprintln(out, line)
			continue
		}
		if filter.Match(e) {
			fmt.Fprintln(out, formatEntry(e))
		}
	}
}
