// Package session drives one client's participation in the shared save:
// it reacts to the target application starting and stopping and to
// presence signals, acquires and releases the remote soft lock, triggers
// synchronization and notifies the user.
//
// All state is owned by the control loop in Machine.Run. Observers running
// on other goroutines only emit signals into the machine's queue; status
// readers get a copy through Snapshot.
package session

import (
	"time"

	"github.com/Iron-Ham/sharedsave/internal/presence"
	"github.com/Iron-Ham/sharedsave/internal/repair"
)

// Role is the client's position in the session lifecycle.
type Role int

const (
	RoleIdle Role = iota
	RoleConnecting
	RoleActive
	RoleDisconnecting
)

// String returns the human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "idle"
	case RoleConnecting:
		return "connecting"
	case RoleActive:
		return "active"
	case RoleDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// State is the client session state.
type State struct {
	Connectivity presence.Connectivity
	Role         Role
	// OfflineMode is set when the client plays without the remote guarantee.
	OfflineMode bool
	// Available mirrors the presence coordinator: online and no fresh
	// competing heartbeat.
	Available            bool
	ProcessRunning       bool
	LastConnectionLossAt *time.Time
}

// Snapshot is the JSON view of the session served by the status API.
type Snapshot struct {
	ClientID             string     `json:"client_id"`
	RunID                string     `json:"run_id"`
	Connectivity         string     `json:"connectivity"`
	Role                 string     `json:"role"`
	OfflineMode          bool       `json:"offline_mode"`
	Available            bool       `json:"available"`
	ProcessRunning       bool       `json:"process_running"`
	LastConnectionLossAt *time.Time `json:"last_connection_loss_at,omitempty"`
	SuppressOnlineNotice bool       `json:"suppress_online_notice"`

	// LastRepair is the most recent failure seen by the repair policy.
	LastRepair *repair.Record `json:"last_repair,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
