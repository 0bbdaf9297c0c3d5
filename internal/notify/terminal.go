package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	okColor    = lipgloss.Color("#10B981")
	warnColor  = lipgloss.Color("#F59E0B")
	errorColor = lipgloss.Color("#F87171")
	mutedColor = lipgloss.Color("#9CA3AF")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)

	titleStyle  = lipgloss.NewStyle().Bold(true)
	actionStyle = lipgloss.NewStyle().Foreground(mutedColor).Italic(true)
)

// colorFor picks the border color of a kind.
func colorFor(kind Kind) lipgloss.Color {
	switch kind {
	case KindConnected, KindSaveComplete, KindOnlineAvailable, KindDisconnected:
		return okColor
	case KindSyncFailed:
		return errorColor
	default:
		return warnColor
	}
}

// Terminal prints notifications to a writer, boxed and colored when the
// writer is a terminal.
type Terminal struct {
	w      io.Writer
	styled bool

	mu           sync.Mutex
	lastProgress string
}

// NewTerminal creates a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Terminal{w: w, styled: styled}
}

// Render formats n the way Notify prints it.
func (t *Terminal) Render(n Notification) string {
	var b strings.Builder
	if t.styled {
		b.WriteString(titleStyle.Foreground(colorFor(n.Kind)).Render(n.Title))
	} else {
		b.WriteString("[" + string(n.Kind) + "] " + n.Title)
	}
	if n.Message != "" {
		b.WriteString("\n" + n.Message)
	}
	if n.Action != nil {
		hint := fmt.Sprintf("%s: sharedsave respond %s", n.Action.Label, n.Action.Token)
		if t.styled {
			hint = actionStyle.Render(hint)
		}
		b.WriteString("\n" + hint)
	}

	if !t.styled {
		return b.String()
	}
	return boxStyle.BorderForeground(colorFor(n.Kind)).Render(b.String())
}

// Notify implements Notifier.
func (t *Terminal) Notify(_ context.Context, n Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.endProgress()
	_, err := fmt.Fprintln(t.w, t.Render(n))
	return err
}

// Progress implements ProgressReporter. On a terminal the line is redrawn
// in place; otherwise only completion is printed.
func (t *Terminal) Progress(operation string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	line := fmt.Sprintf("%s %3d%%", operation, percent)
	if !t.styled {
		if percent >= 100 {
			_, _ = fmt.Fprintln(t.w, line)
		}
		return
	}

	bar := progressBar(percent, 20)
	_, _ = fmt.Fprintf(t.w, "\r%s %s", bar, line)
	t.lastProgress = line
	if percent >= 100 {
		t.endProgress()
	}
}

// endProgress terminates a redrawn progress line. Callers hold mu.
func (t *Terminal) endProgress() {
	if t.lastProgress != "" {
		_, _ = fmt.Fprintln(t.w)
		t.lastProgress = ""
	}
}

func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100
	return lipgloss.NewStyle().Foreground(okColor).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(mutedColor).Render(strings.Repeat("░", width-filled))
}
