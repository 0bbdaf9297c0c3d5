// Package notify delivers one-way user notifications from a fixed
// vocabulary. Interactive notifications carry a single response token that
// the user can send back with `sharedsave respond <token>`.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"

	"github.com/Iron-Ham/sharedsave/internal/errors"
)

// MaxDetailWidth bounds the detail appended by WithDetail, in display columns.
const MaxDetailWidth = 200

// Kind identifies a notification in the fixed vocabulary.
type Kind string

const (
	KindConnected             Kind = "connected"
	KindDisconnected          Kind = "disconnected"
	KindLostConnection        Kind = "lost_connection"
	KindOfflineMode           Kind = "offline_mode"
	KindSomeoneAlreadyPlaying Kind = "someone_already_playing"
	KindOnlineAvailable       Kind = "online_available"
	KindSaveComplete          Kind = "save_complete"
	KindSyncFailed            Kind = "sync_failed"
)

// Kinds returns every notification kind.
func Kinds() []Kind {
	return []Kind{
		KindConnected,
		KindDisconnected,
		KindLostConnection,
		KindOfflineMode,
		KindSomeoneAlreadyPlaying,
		KindOnlineAvailable,
		KindSaveComplete,
		KindSyncFailed,
	}
}

// Token is a user response routed back into the control loop.
type Token string

const (
	TokenEnterOfflineMode     Token = "enter_offline_mode"
	TokenSuppressOnlineNotice Token = "suppress_online_notice"
	TokenOpenApplication      Token = "open_application"
)

// Tokens returns every valid response token.
func Tokens() []Token {
	return []Token{TokenEnterOfflineMode, TokenSuppressOnlineNotice, TokenOpenApplication}
}

// ParseToken validates a response token.
func ParseToken(s string) (Token, error) {
	for _, t := range Tokens() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown response token %q", errors.ErrInvalidInput, s)
}

// Action is the optional response offered by a notification.
type Action struct {
	Label string
	Token Token
}

// Notification is a rendered message.
type Notification struct {
	Kind    Kind
	Title   string
	Message string
	Action  *Action
	// Urgent notifications ring the terminal bell when enabled.
	Urgent bool
}

// New returns the default notification for kind.
func New(kind Kind) Notification {
	switch kind {
	case KindConnected:
		return Notification{
			Kind:    kind,
			Title:   "Connected",
			Message: "You are the active player and your saves are up to date.",
			Action:  &Action{Label: "Play offline instead", Token: TokenEnterOfflineMode},
		}
	case KindDisconnected:
		return Notification{
			Kind:    kind,
			Title:   "Disconnected",
			Message: "Your session ended and the shared saves are free for others.",
		}
	case KindLostConnection:
		return Notification{
			Kind:    kind,
			Title:   "Connection lost",
			Message: "The shared save server is unreachable. Keep playing, but progress may conflict with other players.",
			Urgent:  true,
		}
	case KindOfflineMode:
		return Notification{
			Kind:    kind,
			Title:   "Offline mode",
			Message: "Could not reach the shared save server. You will be told when it is back.",
			Urgent:  true,
		}
	case KindSomeoneAlreadyPlaying:
		return Notification{
			Kind:    kind,
			Title:   "Someone else is playing",
			Message: "The shared saves are in use. Entering offline mode.",
			Action:  &Action{Label: "Stop telling me when it is free", Token: TokenSuppressOnlineNotice},
			Urgent:  true,
		}
	case KindOnlineAvailable:
		return Notification{
			Kind:    kind,
			Title:   "Shared saves available",
			Message: "Nobody else is playing right now.",
			Action:  &Action{Label: "Start the game", Token: TokenOpenApplication},
		}
	case KindSaveComplete:
		return Notification{
			Kind:    kind,
			Title:   "Progress saved",
			Message: "Your save was uploaded.",
		}
	case KindSyncFailed:
		return Notification{
			Kind:    kind,
			Title:   "Sync failed",
			Message: "Your saves could not be synchronized. Check the log for details.",
			Urgent:  true,
		}
	default:
		return Notification{Kind: kind, Title: string(kind)}
	}
}

// WithDetail returns a copy of n with detail appended to the message.
// Whitespace in detail is collapsed and the result is cut to MaxDetailWidth
// display columns.
func (n Notification) WithDetail(detail string) Notification {
	detail = strings.Join(strings.Fields(detail), " ")
	if detail == "" {
		return n
	}
	n.Message = n.Message + " " + ansi.Truncate(detail, MaxDetailWidth, "...")
	return n
}

// Notifier delivers notifications. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ProgressReporter shows transfer progress of a long-running operation.
type ProgressReporter interface {
	Progress(operation string, percent int)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

// Notify delivers to every notifier and joins their errors.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Progress forwards to every notifier that reports progress.
func (m Multi) Progress(operation string, percent int) {
	for _, notifier := range m {
		if p, ok := notifier.(ProgressReporter); ok {
			p.Progress(operation, percent)
		}
	}
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) error { return nil }

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	sent  []Notification
	err   error
	progr []int
}

// SetError makes subsequent Notify calls fail after recording.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

// Progress implements ProgressReporter.
func (r *Recorder) Progress(_ string, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progr = append(r.progr, percent)
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// Kinds returns the kinds sent so far, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.sent))
	for i, n := range r.sent {
		kinds[i] = n.Kind
	}
	return kinds
}

// Count returns how many notifications of kind were sent.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// ProgressValues returns the reported progress values.
func (r *Recorder) ProgressValues() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.progr...)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
	r.progr = nil
}
