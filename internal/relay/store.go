package relay

import (
	"fmt"
	"sort"
)

// Store holds the canonical state of every device kind ever registered.
// Rows are created on first registration and kept for the process lifetime;
// there is no persistence across restarts.
//
// Like the Registry, the Store relies on the Core's handler serialization
// and carries no lock of its own.
type Store struct {
	devices map[string]*DeviceState
}

// NewStore creates an empty device state store.
func NewStore() *Store {
	return &Store{
		devices: make(map[string]*DeviceState),
	}
}

// Ensure returns the state row for kind, creating it on first registration
// with online=true, the given display name, and zeroed telemetry. The
// second return value reports whether a new row was created.
func (s *Store) Ensure(kind, displayName string) (DeviceState, bool) {
	if existing, ok := s.devices[kind]; ok {
		return *existing, false
	}

	state := &DeviceState{
		Kind:        kind,
		DisplayName: displayName,
		Online:      true,
	}
	s.devices[kind] = state
	return *state, true
}

// UpdateTelemetry replaces the stored status and telemetry fields for kind
// and returns the full updated row for broadcast.
//
// The input is rejected and prior state retained if the kind has never
// registered (ErrUnknownDevice) or a telemetry value is negative
// (ErrInvalidTelemetry). Non-numeric input never reaches the store: the
// message boundary already rejects it as malformed.
func (s *Store) UpdateTelemetry(kind, status string, latencyMs, signalStrength int) (DeviceState, error) {
	state, ok := s.devices[kind]
	if !ok {
		return DeviceState{}, fmt.Errorf("%w: %s", ErrUnknownDevice, kind)
	}
	if latencyMs < 0 {
		return DeviceState{}, fmt.Errorf("%w: latency %d", ErrInvalidTelemetry, latencyMs)
	}
	if signalStrength < 0 {
		return DeviceState{}, fmt.Errorf("%w: signal strength %d", ErrInvalidTelemetry, signalStrength)
	}

	state.Status = status
	state.LastLatencyMs = latencyMs
	state.LastSignalStrength = signalStrength
	return *state, nil
}

// SetOnline sets the post-debounce online flag and reports whether the
// value actually changed. Callers use the changed flag to suppress
// duplicate notifications. Unknown kinds report no change.
func (s *Store) SetOnline(kind string, online bool) bool {
	state, ok := s.devices[kind]
	if !ok || state.Online == online {
		return false
	}
	state.Online = online
	return true
}

// Get returns the state row for kind.
func (s *Store) Get(kind string) (DeviceState, bool) {
	if state, ok := s.devices[kind]; ok {
		return *state, true
	}
	return DeviceState{}, false
}

// List returns all state rows sorted by kind for stable output.
func (s *Store) List() []DeviceState {
	states := make([]DeviceState, 0, len(s.devices))
	for _, state := range s.devices {
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Kind < states[j].Kind })
	return states
}
