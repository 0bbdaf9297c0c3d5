// Package repair decides, at the point where a classified error is raised,
// whether execution may continue past the failure or the error must be
// escalated to the caller.
//
// The decision is an explicit Outcome returned from Attempt. Only
// connection errors are repaired, by polling connectivity for a bounded
// window; every other kind escalates immediately.
package repair

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
	"github.com/Iron-Ham/sharedsave/internal/logging"
)

// Outcome is the result of a repair attempt.
type Outcome struct {
	escalate bool
	kind     errors.Kind
}

// Continue returns the outcome for a repaired error.
func Continue() Outcome {
	return Outcome{}
}

// Escalate returns the outcome for an error the caller must handle.
func Escalate(kind errors.Kind) Outcome {
	return Outcome{escalate: true, kind: kind}
}

// Continued reports whether the error was repaired.
func (o Outcome) Continued() bool {
	return !o.escalate
}

// Kind returns the escalated kind. It is KindUnknown for Continue.
func (o Outcome) Kind() errors.Kind {
	return o.kind
}

// String returns "continue" or "escalate(<kind>)".
func (o Outcome) String() string {
	if !o.escalate {
		return "continue"
	}
	return "escalate(" + o.kind.String() + ")"
}

// ConnectivityCheck reports whether the remote store is currently reachable.
type ConnectivityCheck func(ctx context.Context) bool

// Record is one entry of the repair history.
type Record struct {
	Kind     errors.Kind `json:"kind"`
	Attempts int         `json:"attempts"`
	Resolved bool        `json:"resolved"`
	Error    string      `json:"error,omitempty"`
	At       time.Time   `json:"at"`
}

// maxHistory bounds the in-memory repair history.
const maxHistory = 50

// Policy is the bounded repair policy. It is safe for concurrent use.
type Policy struct {
	maxAttempts int
	interval    time.Duration
	online      ConnectivityCheck
	logger      *logging.Logger

	mu      sync.RWMutex
	history []Record
}

// NewPolicy creates a Policy that polls online up to maxAttempts times,
// interval apart, before escalating a connection error.
func NewPolicy(maxAttempts int, interval time.Duration, online ConnectivityCheck, logger *logging.Logger) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Policy{
		maxAttempts: maxAttempts,
		interval:    interval,
		online:      online,
		logger:      logger.WithComponent("repair"),
	}
}

// Attempt classifies err and tries to repair it. A nil error continues.
// Errors without a kind are treated as dependency failures.
func (p *Policy) Attempt(ctx context.Context, err error) Outcome {
	if err == nil {
		return Continue()
	}

	kind := errors.KindOf(err)
	if kind == errors.KindUnknown {
		kind = errors.KindDependencyFailure
	}

	if !kind.Repairable() {
		p.record(Record{Kind: kind, Error: err.Error()})
		p.logger.Warn("escalating", "kind", kind.String(), "error", err.Error())
		return Escalate(kind)
	}

	p.logger.Info("repairing", "kind", kind.String(), "max_attempts", p.maxAttempts)
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if p.online != nil && p.online(ctx) {
			p.record(Record{Kind: kind, Attempts: attempt, Resolved: true, Error: err.Error()})
			p.logger.Info("repaired", "kind", kind.String(), "attempts", attempt)
			return Continue()
		}
		if attempt == p.maxAttempts {
			break
		}
		if !sleep(ctx, p.interval) {
			break
		}
	}

	p.record(Record{Kind: kind, Attempts: p.maxAttempts, Error: err.Error()})
	p.logger.Warn("repair failed", "kind", kind.String(), "attempts", p.maxAttempts)
	return Escalate(kind)
}

// History returns a copy of the recent repair records, oldest first.
func (p *Policy) History() []Record {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Record, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Policy) record(r Record) {
	r.At = time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, r)
	if len(p.history) > maxHistory {
		p.history = p.history[len(p.history)-maxHistory:]
	}
}

// sleep waits d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
