package model

import "time"

// InstanceStatus represents the lifecycle state of a circuit instance.
//
// The state machine is:
//
//	Connecting -> Ready | Error    (startup or renewal outcome)
//	Ready      -> Connecting       (renewal triggered by rotation)
//	Error      -> Connecting       (explicit renewal or pool restart only)
//	any        -> Stopped          (pool stop; terminal)
//
// There is no automatic retry out of Error; an errored instance waits for
// the next rotation that targets it.
type InstanceStatus int

// Instance lifecycle states.
const (
	// StatusConnecting means the Tor process is launching or rebuilding
	// its circuit and is not yet usable for traffic.
	StatusConnecting InstanceStatus = iota

	// StatusReady means the circuit is built and identity resolution
	// through the SOCKS endpoint succeeded.
	StatusReady

	// StatusError means the process failed to launch, died, or identity
	// resolution failed. The last known-good IP/country are kept cached.
	StatusError

	// StatusStopped is terminal and only reached via pool stop.
	StatusStopped
)

// String returns the human-readable status name shown in the instance table.
func (s InstanceStatus) String() string {
	switch s {
	case StatusConnecting:
		return "Connecting"
	case StatusReady:
		return "Ready"
	case StatusError:
		return "Error"
	case StatusStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// InstanceView is a point-in-time, read-only copy of one pool slot.
// It is built from cached fields only; producing a view never performs
// network I/O.
type InstanceView struct {
	// ID is the stable slot identifier, 0..poolSize-1.
	ID int `json:"id"`

	// SocksPort is the instance's SOCKS5 listener port.
	SocksPort int `json:"socks_port"`

	// ControlPort is the instance's Tor control port.
	ControlPort int `json:"control_port"`

	// Status is the instance's lifecycle state at snapshot time.
	Status InstanceStatus `json:"-"`

	// StatusText is the string form of Status, for JSON consumers.
	StatusText string `json:"status"`

	// CurrentIP is the last successfully resolved exit IP. Empty until
	// the first resolution; kept stale when a later resolution fails.
	CurrentIP string `json:"current_ip,omitempty"`

	// CountryCode is the ISO 3166-1 alpha-2 code of the exit IP.
	CountryCode string `json:"country_code,omitempty"`

	// CountryName is the English display name for CountryCode.
	CountryName string `json:"country_name,omitempty"`

	// Active reports whether this instance currently carries new traffic.
	Active bool `json:"active"`

	// LastChange is when the instance last changed status.
	LastChange time.Time `json:"last_change"`
}

// ActiveInfo describes the active instance after a successful rotation.
// It is the response body shape of the proxy's /rotate control endpoint.
type ActiveInfo struct {
	// ID is the active instance's slot identifier.
	ID int `json:"id"`

	// IP is the active instance's current exit IP.
	IP string `json:"ip"`

	// Country is the ISO country code of the exit IP.
	Country string `json:"country"`
}

// RotationTrigger identifies what initiated a rotation.
type RotationTrigger string

// Rotation triggers recorded in the history store.
const (
	// TriggerManual is a rotation requested by an operator, either via
	// the CLI or the proxy's /rotate endpoint.
	TriggerManual RotationTrigger = "manual"

	// TriggerScheduled is a rotation fired by the auto-rotation timer.
	TriggerScheduled RotationTrigger = "scheduled"
)

// RotationRecord is one row of rotation history.
type RotationRecord struct {
	// InstanceID is the instance that became active.
	InstanceID int `json:"instance_id"`

	// OldIP is the exit IP before the rotation, if known.
	OldIP string `json:"old_ip,omitempty"`

	// NewIP is the exit IP after the rotation, if known.
	NewIP string `json:"new_ip,omitempty"`

	// Country is the country code of the new exit IP.
	Country string `json:"country,omitempty"`

	// Trigger records what initiated the rotation.
	Trigger RotationTrigger `json:"trigger"`

	// RotatedAt is when the rotation completed.
	RotatedAt time.Time `json:"rotated_at"`
}
