// Package presence implements the heartbeat soft lock. A Coordinator
// decides whether this client may become the active one, publishes its
// heartbeat while it is, and watches connectivity so the session can react
// when the remote store drops away or comes back.
//
// The protocol is deliberately probabilistic: the settle delay before the
// availability decision lets a competitor's fresh heartbeat become visible,
// and the freshness window bounds how long an abandoned heartbeat blocks
// everyone else. There is no compare-and-swap.
package presence

import "time"

// Connectivity is the last observed reachability of the remote store.
type Connectivity int

const (
	ConnectivityUnknown Connectivity = iota
	ConnectivityOnline
	ConnectivityOffline
)

// String returns the human-readable name for the connectivity.
func (c Connectivity) String() string {
	switch c {
	case ConnectivityOnline:
		return "online"
	case ConnectivityOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// AcquireResult is the outcome of an acquisition attempt.
type AcquireResult int

const (
	Granted AcquireResult = iota
	DeniedOwnedElsewhere
	DeniedOffline
)

// String returns the human-readable name for the result.
func (r AcquireResult) String() string {
	switch r {
	case Granted:
		return "granted"
	case DeniedOwnedElsewhere:
		return "denied_owned_elsewhere"
	case DeniedOffline:
		return "denied_offline"
	default:
		return "unknown"
	}
}

// Options holds the protocol timings.
type Options struct {
	// FreshnessWindow is the age after which a heartbeat no longer asserts ownership.
	FreshnessWindow time.Duration
	// SettleDelay separates the forced connectivity check from the availability decision.
	SettleDelay time.Duration
	// HeartbeatInterval is the period of heartbeat publishing while holding.
	HeartbeatInterval time.Duration
	// PollInterval is the poller tick.
	PollInterval time.Duration
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the standard protocol timings.
func DefaultOptions() Options {
	return Options{
		FreshnessWindow:   5 * time.Minute,
		SettleDelay:       4 * time.Second,
		HeartbeatInterval: time.Minute,
		PollInterval:      time.Second,
		Now:               time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FreshnessWindow <= 0 {
		o.FreshnessWindow = d.FreshnessWindow
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}
