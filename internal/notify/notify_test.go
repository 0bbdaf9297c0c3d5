package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	sserrors "github.com/Iron-Ham/sharedsave/internal/errors"
)

func TestNew_Vocabulary(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			n := New(kind)
			if n.Kind != kind {
				t.Errorf("Kind = %q, want %q", n.Kind, kind)
			}
			if n.Title == "" || n.Message == "" {
				t.Errorf("notification %q lacks title or message: %+v", kind, n)
			}
		})
	}
}

func TestNew_Actions(t *testing.T) {
	tests := []struct {
		kind Kind
		want Token
	}{
		{KindConnected, TokenEnterOfflineMode},
		{KindSomeoneAlreadyPlaying, TokenSuppressOnlineNotice},
		{KindOnlineAvailable, TokenOpenApplication},
		{KindSaveComplete, ""},
		{KindOfflineMode, ""},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n := New(tt.kind)
			var got Token
			if n.Action != nil {
				got = n.Action.Token
			}
			if got != tt.want {
				t.Errorf("action token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	for _, tok := range Tokens() {
		got, err := ParseToken(string(tok))
		if err != nil || got != tok {
			t.Errorf("ParseToken(%q) = %q, %v", tok, got, err)
		}
	}

	_, err := ParseToken("format_disk")
	if !errors.Is(err, sserrors.ErrInvalidInput) {
		t.Errorf("ParseToken(unknown) error = %v, want ErrInvalidInput", err)
	}
}

func TestWithDetail(t *testing.T) {
	n := New(KindSyncFailed).WithDetail("merge conflict in slot1.sav")
	if !strings.HasSuffix(n.Message, "merge conflict in slot1.sav") {
		t.Errorf("Message = %q", n.Message)
	}
	if New(KindSyncFailed).WithDetail(" \n ").Message != New(KindSyncFailed).Message {
		t.Error("blank detail should not change the message")
	}

	multi := New(KindSyncFailed).WithDetail("error: failed to push\n\thint: pull first")
	if !strings.HasSuffix(multi.Message, "error: failed to push hint: pull first") {
		t.Errorf("whitespace not collapsed: %q", multi.Message)
	}

	long := New(KindSyncFailed).WithDetail(strings.Repeat("x", 1000))
	base := New(KindSyncFailed).Message
	detail := strings.TrimPrefix(long.Message, base+" ")
	if len(detail) != MaxDetailWidth || !strings.HasSuffix(detail, "...") {
		t.Errorf("detail not truncated to %d columns: len=%d", MaxDetailWidth, len(detail))
	}
}

type failing struct{ err error }

func (f failing) Notify(context.Context, Notification) error { return f.err }

func TestMulti(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	boom := errors.New("boom")
	m := Multi{a, failing{boom}, b}

	err := m.Notify(context.Background(), New(KindConnected))
	if !errors.Is(err, boom) {
		t.Errorf("Notify() error = %v, want boom", err)
	}
	if a.Count(KindConnected) != 1 || b.Count(KindConnected) != 1 {
		t.Error("every notifier should receive the notification despite failures")
	}

	m.Progress("push", 50)
	if got := a.ProgressValues(); len(got) != 1 || got[0] != 50 {
		t.Errorf("progress = %v", got)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()
	_ = r.Notify(ctx, New(KindConnected))
	_ = r.Notify(ctx, New(KindSaveComplete))
	_ = r.Notify(ctx, New(KindSaveComplete))

	kinds := r.Kinds()
	if len(kinds) != 3 || kinds[0] != KindConnected {
		t.Errorf("Kinds() = %v", kinds)
	}
	if r.Count(KindSaveComplete) != 2 {
		t.Errorf("Count(save_complete) = %d", r.Count(KindSaveComplete))
	}

	r.SetError(errors.New("down"))
	if err := r.Notify(ctx, New(KindConnected)); err == nil {
		t.Error("SetError should make Notify fail")
	}

	r.Reset()
	if len(r.Sent()) != 0 {
		t.Error("Reset should clear notifications")
	}
}

func TestTerminal_Plain(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	if err := term.Notify(context.Background(), New(KindOnlineAvailable)); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[online_available]", "Shared saves available", "sharedsave respond open_application"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTerminal_ProgressPlain(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf)

	term.Progress("push", 10)
	term.Progress("push", 60)
	if buf.Len() != 0 {
		t.Errorf("intermediate progress should not print when not a terminal: %q", buf.String())
	}
	term.Progress("push", 100)
	if got := strings.TrimSpace(buf.String()); got != "push 100%" {
		t.Errorf("output = %q", got)
	}
}

func TestTerminal_Styled(t *testing.T) {
	var buf bytes.Buffer
	term := &Terminal{w: &buf, styled: true}

	term.Progress("pull", 40)
	if err := term.Notify(context.Background(), New(KindConnected)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "pull  40%") {
		t.Errorf("progress line missing:\n%q", out)
	}
	if !strings.Contains(out, "Connected") {
		t.Errorf("title missing:\n%q", out)
	}
	if !strings.Contains(out, "\n") {
		t.Error("pending progress line should be terminated before a notification")
	}
}

// sentNotification records what a Desktop handed to its sender.
type sentNotification struct {
	title   string
	message string
}

func TestDesktop(t *testing.T) {
	tests := []struct {
		kind        Kind
		wantBell    string
		wantInBody  string
		wantNoReply bool
	}{
		{KindSomeoneAlreadyPlaying, "\a", "sharedsave respond suppress_online_notice", false},
		{KindSaveComplete, "", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var sent []sentNotification
			var bell bytes.Buffer
			d := NewDesktopWithSender(func(title, message string) error {
				sent = append(sent, sentNotification{title, message})
				return nil
			}, &bell, nil)

			n := New(tt.kind)
			if err := d.Notify(context.Background(), n); err != nil {
				t.Fatalf("Notify() error = %v", err)
			}
			if bell.String() != tt.wantBell {
				t.Errorf("bell = %q, want %q", bell.String(), tt.wantBell)
			}
			if len(sent) != 1 || sent[0].title != n.Title {
				t.Fatalf("sent = %+v, want one notification titled %q", sent, n.Title)
			}
			if !strings.HasPrefix(sent[0].message, n.Message) {
				t.Errorf("message = %q, want prefix %q", sent[0].message, n.Message)
			}
			if tt.wantInBody != "" && !strings.Contains(sent[0].message, tt.wantInBody) {
				t.Errorf("message %q missing %q", sent[0].message, tt.wantInBody)
			}
			if tt.wantNoReply && strings.Contains(sent[0].message, "sharedsave respond") {
				t.Errorf("message %q should not offer a response", sent[0].message)
			}
		})
	}
}

func TestDesktop_Error(t *testing.T) {
	d := NewDesktopWithSender(func(string, string) error {
		return errors.New("no notification daemon")
	}, nil, nil)
	if err := d.Notify(context.Background(), New(KindSaveComplete)); err == nil {
		t.Error("expected error from failing sender")
	}
}

func TestDesktop_CancelledContext(t *testing.T) {
	called := false
	d := NewDesktopWithSender(func(string, string) error {
		called = true
		return nil
	}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Notify(ctx, New(KindConnected)); !errors.Is(err, context.Canceled) {
		t.Errorf("Notify() = %v, want context.Canceled", err)
	}
	if called {
		t.Error("sender called after cancellation")
	}
}
