package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKind_Classification(t *testing.T) {
	tests := []struct {
		kind       Kind
		name       string
		fatal      bool
		repairable bool
	}{
		{KindConnection, "ConnectionError", false, true},
		{KindLostConnection, "LostConnectionError", false, false},
		{KindAlreadyOwned, "AlreadyOwnedError", false, false},
		{KindDependencyFailure, "DependencyFailure", true, false},
		{KindUnknown, "Unknown", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.name {
				t.Errorf("String() = %q, want %q", got, tt.name)
			}
			if got := tt.kind.Fatal(); got != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got, tt.fatal)
			}
			if got := tt.kind.Repairable(); got != tt.repairable {
				t.Errorf("Repairable() = %v, want %v", got, tt.repairable)
			}
		})
	}
}

func TestSessionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SessionError
		want string
	}{
		{
			name: "connection",
			err:  NewConnectionError("entry attempt"),
			want: "ConnectionError: entry attempt: remote store offline",
		},
		{
			name: "already owned with context",
			err:  NewAlreadyOwnedError("bob").WithClientID("alice"),
			want: "AlreadyOwnedError [client=alice, owner=bob]: session owned by another client",
		},
		{
			name: "dependency failure",
			err:  NewDependencyFailure("pull failed", fmt.Errorf("exit status 1")),
			want: "DependencyFailure: pull failed: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError_Is(t *testing.T) {
	err := NewAlreadyOwnedError("bob")

	if !Is(err, &SessionError{}) {
		t.Error("Is(&SessionError{}) = false, want true")
	}
	if !Is(err, ErrOwnedElsewhere) {
		t.Error("Is(ErrOwnedElsewhere) = false, want true")
	}
	if Is(err, ErrOffline) {
		t.Error("Is(ErrOffline) = true, want false")
	}
	if !Is(NewConnectionError("x"), ErrOffline) {
		t.Error("connection error should wrap ErrOffline")
	}
}

func TestSyncError_Error(t *testing.T) {
	err := NewSyncError("pull failed", ErrMergeConflict).
		WithOperation("pull").
		WithRepository("/repo").
		WithConflicts([]string{"a.zip", "b.zip"}).
		WithGitOutput("CONFLICT (content)\n")

	want := "sync error [op=pull, repo=/repo, conflicts=2]: pull failed: merge conflict\ngit output: CONFLICT (content)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !Is(err, ErrMergeConflict) {
		t.Error("Is(ErrMergeConflict) = false, want true")
	}
	if !Is(err, &SyncError{}) {
		t.Error("Is(&SyncError{}) = false, want true")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"connection", NewConnectionError("x"), KindConnection},
		{"lost", NewLostConnectionError("x"), KindLostConnection},
		{"owned", NewAlreadyOwnedError(""), KindAlreadyOwned},
		{"dependency", NewDependencyFailure("x", nil), KindDependencyFailure},
		{"sync", NewSyncError("push failed", nil), KindDependencyFailure},
		{"wrapped sync", Wrap(NewSyncError("push failed", nil), "exit"), KindDependencyFailure},
		{"bare offline sentinel", Wrap(ErrOffline, "probe"), KindConnection},
		{"plain error", errors.New("boom"), KindDependencyFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Error("IsFatal(nil) = true")
	}
	if IsFatal(NewConnectionError("x")) {
		t.Error("connection errors must not be fatal")
	}
	if !IsFatal(NewSyncError("x", nil)) {
		t.Error("sync errors must be fatal")
	}
	if !IsFatal(errors.New("unexpected")) {
		t.Error("unclassified errors must be fatal")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewConnectionError("x")) {
		t.Error("connection errors should be retryable")
	}
	if IsRetryable(NewAlreadyOwnedError("bob")) {
		t.Error("already-owned errors should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true")
	}
}

func TestGetSeverity(t *testing.T) {
	if got := GetSeverity(NewDependencyFailure("x", nil)); got != SeverityError {
		t.Errorf("GetSeverity(dependency) = %v, want error", got)
	}
	if got := GetSeverity(NewConnectionError("x")); got != SeverityWarning {
		t.Errorf("GetSeverity(connection) = %v, want warning", got)
	}
	if got := GetSeverity(errors.New("x")); got != SeverityError {
		t.Errorf("GetSeverity(plain) = %v, want error", got)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrRootMissing, "checking %s", "/root")
	if err.Error() != "checking /root: root directory missing" {
		t.Errorf("Wrapf() = %q", err.Error())
	}
	if !Is(err, ErrRootMissing) {
		t.Error("wrapped error should match sentinel")
	}
}
