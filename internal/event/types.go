// Package event defines the signals exchanged between the sharedsave
// observers (process poller, presence poller, root monitor, save watcher,
// status API) and the session control loop.
//
// Observers never touch session state. They emit events into a [Queue],
// which has exactly one consumer: the control loop. State transitions are
// then republished on a [Bus] for logging and status readers.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "process.started", "presence.lost")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Sink accepts events. Emit must not block.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Event type identifiers.
const (
	TypeProcessStarted   = "process.started"
	TypeProcessStopped   = "process.stopped"
	TypePresenceLost     = "presence.lost"
	TypePresenceRestored = "presence.restored"
	TypeSaveChanged      = "save.changed"
	TypeRootMissing      = "root.missing"
	TypeUserResponse     = "user.response"
	TypeStopRequested    = "session.stop_requested"
	TypeStateChanged     = "session.state_changed"
	TypeEscalated        = "session.escalated"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Process lifecycle
// -----------------------------------------------------------------------------

// ProcessStartedEvent is emitted when the target application is first seen running.
type ProcessStartedEvent struct {
	baseEvent
	Name string // Executable name that matched
}

// NewProcessStartedEvent creates a ProcessStartedEvent.
func NewProcessStartedEvent(name string) ProcessStartedEvent {
	return ProcessStartedEvent{baseEvent: newBaseEvent(TypeProcessStarted), Name: name}
}

// ProcessStoppedEvent is emitted when the target application is no longer running.
type ProcessStoppedEvent struct {
	baseEvent
	Name string
}

// NewProcessStoppedEvent creates a ProcessStoppedEvent.
func NewProcessStoppedEvent(name string) ProcessStoppedEvent {
	return ProcessStoppedEvent{baseEvent: newBaseEvent(TypeProcessStopped), Name: name}
}

// -----------------------------------------------------------------------------
// Presence
// -----------------------------------------------------------------------------

// PresenceLostEvent is emitted when connectivity drops from Online to Offline.
type PresenceLostEvent struct {
	baseEvent
}

// NewPresenceLostEvent creates a PresenceLostEvent.
func NewPresenceLostEvent() PresenceLostEvent {
	return PresenceLostEvent{baseEvent: newBaseEvent(TypePresenceLost)}
}

// PresenceRestoredEvent is emitted when the client is online and the shared
// resource is available again after a loss.
type PresenceRestoredEvent struct {
	baseEvent
}

// NewPresenceRestoredEvent creates a PresenceRestoredEvent.
func NewPresenceRestoredEvent() PresenceRestoredEvent {
	return PresenceRestoredEvent{baseEvent: newBaseEvent(TypePresenceRestored)}
}

// -----------------------------------------------------------------------------
// Filesystem
// -----------------------------------------------------------------------------

// SaveChangedEvent is emitted after a debounced burst of writes in the saves directory.
type SaveChangedEvent struct {
	baseEvent
	Paths []string // Changed paths, relative to the saves directory
}

// NewSaveChangedEvent creates a SaveChangedEvent.
func NewSaveChangedEvent(paths []string) SaveChangedEvent {
	return SaveChangedEvent{baseEvent: newBaseEvent(TypeSaveChanged), Paths: paths}
}

// RootMissingEvent is emitted when the local repository root disappears.
type RootMissingEvent struct {
	baseEvent
	Path string
}

// NewRootMissingEvent creates a RootMissingEvent.
func NewRootMissingEvent(path string) RootMissingEvent {
	return RootMissingEvent{baseEvent: newBaseEvent(TypeRootMissing), Path: path}
}

// -----------------------------------------------------------------------------
// User and lifecycle
// -----------------------------------------------------------------------------

// UserResponseEvent carries a response token chosen on a notification.
type UserResponseEvent struct {
	baseEvent
	Token string
}

// NewUserResponseEvent creates a UserResponseEvent.
func NewUserResponseEvent(token string) UserResponseEvent {
	return UserResponseEvent{baseEvent: newBaseEvent(TypeUserResponse), Token: token}
}

// StopRequestedEvent asks the control loop to shut down.
type StopRequestedEvent struct {
	baseEvent
	Reason string
}

// NewStopRequestedEvent creates a StopRequestedEvent.
func NewStopRequestedEvent(reason string) StopRequestedEvent {
	return StopRequestedEvent{baseEvent: newBaseEvent(TypeStopRequested), Reason: reason}
}

// StateChangedEvent is published on the Bus after the control loop changes
// the session role or offline mode.
type StateChangedEvent struct {
	baseEvent
	PreviousRole string
	Role         string
	OfflineMode  bool
	Cause        string // Event type that caused the change
}

// NewStateChangedEvent creates a StateChangedEvent.
func NewStateChangedEvent(previousRole, role string, offlineMode bool, cause string) StateChangedEvent {
	return StateChangedEvent{
		baseEvent:    newBaseEvent(TypeStateChanged),
		PreviousRole: previousRole,
		Role:         role,
		OfflineMode:  offlineMode,
		Cause:        cause,
	}
}

// EscalatedEvent is published on the Bus when the repair policy gives up on an error.
type EscalatedEvent struct {
	baseEvent
	Kind  string
	Fatal bool
	Err   error
}

// NewEscalatedEvent creates an EscalatedEvent.
func NewEscalatedEvent(kind string, fatal bool, err error) EscalatedEvent {
	return EscalatedEvent{
		baseEvent: newBaseEvent(TypeEscalated),
		Kind:      kind,
		Fatal:     fatal,
		Err:       err,
	}
}
