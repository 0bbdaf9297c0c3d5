// Package errors provides the error taxonomy for sharedsave. It defines the
// error kinds the session state machine classifies and repairs, the
// domain-specific error types that carry them, and classification helpers.
//
// # Error Kinds
//
// Every failure that reaches the session control loop is classified into one
// of four kinds:
//
//   - KindConnection: the remote store could not be reached during an entry
//     attempt. Recoverable: the repair policy polls connectivity for a bounded
//     window before giving up.
//   - KindLostConnection: the remote store went from reachable to unreachable
//     while this client held the soft lock. Not repaired synchronously.
//   - KindAlreadyOwned: another client holds a fresh heartbeat. Not repaired;
//     acquisition is retried only on the next external trigger.
//   - KindDependencyFailure: anything unexpected from the repository sync or
//     provisioning collaborators. Fatal for the operation, never for the loop.
//
// # Usage
//
//	err := errors.NewAlreadyOwnedError("bob")
//	switch errors.KindOf(err) {
//	case errors.KindAlreadyOwned:
//	    ...
//	}
//
//	var syncErr *errors.SyncError
//	if errors.As(err, &syncErr) && len(syncErr.Conflicts) > 0 { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Kind classifies a session failure.
type Kind int

const (
	// KindUnknown is the zero value; it is never produced by KindOf for a
	// non-nil error.
	KindUnknown Kind = iota
	// KindConnection means the remote store was unreachable on entry.
	KindConnection
	// KindLostConnection means the remote store became unreachable while active.
	KindLostConnection
	// KindAlreadyOwned means another client holds a fresh heartbeat.
	KindAlreadyOwned
	// KindDependencyFailure means a sync or provisioning collaborator failed.
	KindDependencyFailure
)

// String returns the identifier used in logs.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "ConnectionError"
	case KindLostConnection:
		return "LostConnectionError"
	case KindAlreadyOwned:
		return "AlreadyOwnedError"
	case KindDependencyFailure:
		return "DependencyFailure"
	default:
		return "Unknown"
	}
}

// Fatal reports whether the kind aborts the operation that raised it.
func (k Kind) Fatal() bool {
	return k == KindDependencyFailure || k == KindUnknown
}

// Repairable reports whether the repair policy attempts automatic recovery.
func (k Kind) Repairable() bool {
	return k == KindConnection
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Presence-related sentinel errors
var (
	// ErrOffline indicates that the network probe or health flag reported offline.
	ErrOffline = New("remote store offline")
	// ErrConnectionLost indicates that connectivity dropped while active.
	ErrConnectionLost = New("connection lost")
	// ErrOwnedElsewhere indicates that another client holds the soft lock.
	ErrOwnedElsewhere = New("session owned by another client")
	// ErrHeartbeatFailed indicates that the heartbeat write failed.
	ErrHeartbeatFailed = New("heartbeat publish failed")
)

// Sync-related sentinel errors
var (
	// ErrNotRepository indicates that the sync directory is not a git repository.
	ErrNotRepository = New("not a git repository")
	// ErrMergeConflict indicates that a pull produced merge conflicts.
	ErrMergeConflict = New("merge conflict")
	// ErrRootMissing indicates that the local root directory disappeared.
	ErrRootMissing = New("root directory missing")
	// ErrProvisionFailed indicates that first-run provisioning failed.
	ErrProvisionFailed = New("provisioning failed")
)

// ErrInvalidInput indicates that input validation failed.
var ErrInvalidInput = New("invalid input")

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ClassifiedError is the base interface for all sharedsave errors.
type ClassifiedError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Kind returns the session failure kind.
	Kind() Kind

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	kind       Kind
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Kind returns the failure kind.
func (e *baseError) Kind() Kind {
	return e.kind
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// -----------------------------------------------------------------------------
// Session Errors
// -----------------------------------------------------------------------------

// SessionError represents a classified failure of the presence protocol.
//
// Example:
//
//	err := errors.NewAlreadyOwnedError("bob").WithClientID("alice")
//	fmt.Println(err) // "AlreadyOwnedError [client=alice, owner=bob]: session owned by another client"
type SessionError struct {
	baseError
	ClientID string
	Owner    string
}

func newSessionError(kind Kind, message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			kind:       kind,
			severity:   SeverityWarning,
			retryable:  kind.Repairable(),
			userFacing: true,
		},
	}
}

// NewConnectionError creates a recoverable ConnectionError.
func NewConnectionError(message string) *SessionError {
	return newSessionError(KindConnection, message, ErrOffline)
}

// NewLostConnectionError creates a LostConnectionError.
func NewLostConnectionError(message string) *SessionError {
	return newSessionError(KindLostConnection, message, ErrConnectionLost)
}

// NewAlreadyOwnedError creates an AlreadyOwnedError naming the current owner.
// owner may be empty when the record could not be read.
func NewAlreadyOwnedError(owner string) *SessionError {
	e := newSessionError(KindAlreadyOwned, "session owned by another client", nil)
	e.Owner = owner
	return e
}

// NewDependencyFailure creates a fatal DependencyFailure wrapping cause.
func NewDependencyFailure(message string, cause error) *SessionError {
	e := newSessionError(KindDependencyFailure, message, cause)
	e.severity = SeverityError
	return e
}

// WithClientID adds the local client identity to the error context.
func (e *SessionError) WithClientID(id string) *SessionError {
	e.ClientID = id
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.ClientID != "" {
		parts = append(parts, fmt.Sprintf("client=%s", e.ClientID))
	}
	if e.Owner != "" {
		parts = append(parts, fmt.Sprintf("owner=%s", e.Owner))
	}

	prefix := e.kind.String()
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if t, ok := target.(*SessionError); ok {
		return t.kind == KindUnknown || t.kind == e.kind
	}
	if e.kind == KindAlreadyOwned && errors.Is(target, ErrOwnedElsewhere) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Sync Errors
// -----------------------------------------------------------------------------

// SyncError represents a failure of the repository sync or provisioning
// collaborators. It always classifies as KindDependencyFailure.
//
// Example:
//
//	err := errors.NewSyncError("pull failed", errors.ErrMergeConflict).
//	    WithRepository("/home/me/.local/share/sharedsave/repo").
//	    WithConflicts([]string{"saves/world.zip"})
type SyncError struct {
	baseError
	Operation  string
	Repository string
	GitOutput  string
	Conflicts  []string
}

// NewSyncError creates a new SyncError.
func NewSyncError(message string, cause error) *SyncError {
	return &SyncError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			kind:       KindDependencyFailure,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithOperation records which sync operation failed (clone, pull, push...).
func (e *SyncError) WithOperation(op string) *SyncError {
	e.Operation = op
	return e
}

// WithRepository adds a repository path to the error context.
func (e *SyncError) WithRepository(path string) *SyncError {
	e.Repository = path
	return e
}

// WithGitOutput adds git command output to the error context.
func (e *SyncError) WithGitOutput(output string) *SyncError {
	e.GitOutput = strings.TrimSpace(output)
	return e
}

// WithConflicts records the files left conflicted by a pull.
func (e *SyncError) WithConflicts(files []string) *SyncError {
	e.Conflicts = files
	return e
}

// Error returns the formatted error message.
func (e *SyncError) Error() string {
	var parts []string
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Operation))
	}
	if e.Repository != "" {
		parts = append(parts, fmt.Sprintf("repo=%s", e.Repository))
	}
	if len(e.Conflicts) > 0 {
		parts = append(parts, fmt.Sprintf("conflicts=%d", len(e.Conflicts)))
	}

	prefix := "sync error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("sync error [%s]", strings.Join(parts, ", "))
	}

	msg := e.message
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	if e.GitOutput != "" {
		msg = fmt.Sprintf("%s\ngit output: %s", msg, e.GitOutput)
	}

	return fmt.Sprintf("%s: %s", prefix, msg)
}

// Is checks if this error matches the target.
func (e *SyncError) Is(target error) bool {
	if _, ok := target.(*SyncError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// KindOf classifies err. Errors that do not carry a kind are treated as
// dependency failures so that nothing escapes classification.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.Kind()
	}

	switch {
	case Is(err, ErrOffline):
		return KindConnection
	case Is(err, ErrConnectionLost):
		return KindLostConnection
	case Is(err, ErrOwnedElsewhere):
		return KindAlreadyOwned
	}
	return KindDependencyFailure
}

// IsFatal reports whether err aborts the operation that raised it.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err).Fatal()
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.IsRetryable()
	}
	return Is(err, ErrOffline)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ClassifiedError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var classified ClassifiedError
	if As(err, &classified) {
		return classified.Severity()
	}
	return SeverityError
}

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
