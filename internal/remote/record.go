// Package remote provides the remote document store that sharedsave clients
// coordinate through. Two documents live there: the shared presence record
// (who last published a heartbeat, and when) and the operator-controlled
// server health flag.
package remote

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/errors"
)

// ErrNotFound is returned when a document has never been written.
var ErrNotFound = errors.New("record not found")

// PresenceRecord is the shared heartbeat document. A single record exists
// per shared resource; every active client overwrites it.
type PresenceRecord struct {
	UpdatedAt time.Time
	OwnerID   string
}

type presenceWire struct {
	UpdatedAt string `json:"updatedAt"`
	OwnerID   string `json:"ownerId"`
}

// MarshalJSON encodes the record as {"updatedAt": ISO-8601, "ownerId": ...}.
func (r PresenceRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(presenceWire{
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339Nano),
		OwnerID:   r.OwnerID,
	})
}

// UnmarshalJSON decodes the wire form. The owner must be present and the
// timestamp must parse.
func (r *PresenceRecord) UnmarshalJSON(data []byte) error {
	var w presenceWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if strings.TrimSpace(w.OwnerID) == "" {
		return fmt.Errorf("presence record has no owner")
	}
	t, err := ParseTimestamp(w.UpdatedAt)
	if err != nil {
		return err
	}
	r.UpdatedAt = t
	r.OwnerID = w.OwnerID
	return nil
}

// Age returns how long ago the record was written, relative to now.
// A timestamp in the future (clock skew) has a negative age.
func (r PresenceRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.UpdatedAt)
}

// Fresh reports whether the record is within window of now.
func (r PresenceRecord) Fresh(now time.Time, window time.Duration) bool {
	return r.Age(now) <= window
}

// ServerHealth is the operator switch. Clients only read it.
type ServerHealth struct {
	Online bool `json:"online"`
}

// timestampLayouts are tried in order. Zone-less layouts are interpreted in
// local time, which is how older clients wrote them.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp with or without zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
