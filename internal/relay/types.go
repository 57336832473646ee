package relay

// ConnectionID is an opaque handle identifying one open socket connection.
// Assigned at accept time, unique for the process lifetime.
type ConnectionID string

// RoleClass enumerates the coarse connection roles.
type RoleClass int

// Connection role classes.
const (
	// RoleUnclassified is the initial role of every connection. A
	// connection that never registers as a device is treated as a
	// dashboard observer.
	RoleUnclassified RoleClass = iota

	// RoleDashboard is an observer connection that receives state
	// broadcasts but reports no device telemetry.
	RoleDashboard

	// RoleDevice is an embedded endpoint reporting telemetry and events
	// for a specific device kind.
	RoleDevice
)

// Role is the single source of truth for what an open connection is.
// A connection gets at most one role transition: once classified as a
// device it cannot be reclassified.
type Role struct {
	Class RoleClass
	// Kind is the device kind identifier (e.g. "node-proxmox",
	// "node-main-light"). Set only when Class is RoleDevice.
	Kind string
}

// Unclassified returns the initial role of a fresh connection.
func Unclassified() Role { return Role{Class: RoleUnclassified} }

// Dashboard returns the observer role.
func Dashboard() Role { return Role{Class: RoleDashboard} }

// Device returns the device role for the given kind.
func Device(kind string) Role { return Role{Class: RoleDevice, Kind: kind} }

// IsDevice reports whether the role is a device role.
func (r Role) IsDevice() bool { return r.Class == RoleDevice }

// String returns a human-readable role name for logging.
func (r Role) String() string {
	switch r.Class {
	case RoleDashboard:
		return "dashboard"
	case RoleDevice:
		return "device(" + r.Kind + ")"
	default:
		return "unclassified"
	}
}

// RolePredicate selects the subset of connections a broadcast targets.
type RolePredicate func(Role) bool

// IsDashboardAudience matches every connection not classified as a device:
// explicit dashboards and connections that never registered.
func IsDashboardAudience() RolePredicate {
	return func(r Role) bool { return r.Class != RoleDevice }
}

// IsDeviceKind matches connections classified as the given device kind.
// Used for targeted command delivery.
func IsDeviceKind(kind string) RolePredicate {
	return func(r Role) bool { return r.Class == RoleDevice && r.Kind == kind }
}

// DeviceState is the canonical state of one device kind, as last derived
// from inbound device messages. One row exists per distinct kind ever
// registered; rows are never deleted for the process lifetime.
type DeviceState struct {
	Kind        string `json:"kind"`
	DisplayName string `json:"displayName"`

	// Online is the authoritative post-debounce connectivity flag. A
	// device inside its disconnect grace window is still online.
	Online bool `json:"online"`

	// Status is the free-form status label last reported by the device
	// (e.g. "online", "waiting", "error").
	Status string `json:"status"`

	// Most recent numeric telemetry. Always non-negative.
	LastLatencyMs      int `json:"lastLatencyMs"`
	LastSignalStrength int `json:"lastSignalStrength"`
}

// Sender delivers one outbound message to a single connection. Delivery is
// best-effort: an error means this connection missed the message (socket
// closing, buffer full) and is logged and skipped by the broadcast router.
//
// Implementations must preserve call order within one connection's stream.
type Sender interface {
	Send(data []byte) error
}

// Logger defines the logging interface used by the relay core.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
