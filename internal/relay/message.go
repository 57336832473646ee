package relay

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Inbound message type tags.
const (
	MsgTypeRegisterDevice = "register-device"
	MsgTypeTelemetry      = "telemetry"
	MsgTypeEvent          = "event"
	MsgTypePushToken      = "push-token"
)

// Outbound message type tags.
const (
	MsgTypeDeviceState   = "device-state"
	MsgTypeDeviceOnline  = "device-online"
	MsgTypeDeviceOffline = "device-offline"
)

// Message is the tagged union of all inbound relay messages. Payloads are
// parsed and validated at the boundary; anything that does not decode into
// exactly one of the variants is a single well-defined malformed-message
// rejection.
type Message interface {
	isMessage()
}

// RegisterDevice classifies the sending connection as a device endpoint.
type RegisterDevice struct {
	Kind        string
	DisplayName string
}

// Telemetry carries a device's periodic status report.
type Telemetry struct {
	Kind    string
	Status  string
	Latency int
	RSSI    int
}

// Event carries a discrete device-reported event (e.g. "server_on").
type Event struct {
	Kind string
	Data string
}

// PushToken registers a push notification token for an observer.
type PushToken struct {
	Token string
}

func (RegisterDevice) isMessage() {}
func (Telemetry) isMessage()      {}
func (Event) isMessage()          {}
func (PushToken) isMessage()      {}

// flexInt decodes a JSON value that devices send as either a bare number or
// a numeric string ("42" and 42 are equivalent). Fractional input is
// truncated toward zero, matching how the original firmware consumers
// parsed these fields. Anything non-numeric is a decode error.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		return fmt.Errorf("empty numeric value")
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing %q as number: %w", s, err)
	}
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("non-finite numeric value %q", s)
	}

	*f = flexInt(int(math.Trunc(val)))
	return nil
}

// Wire shapes for inbound payloads. Field names match the JSON protocol.
type (
	registerDeviceWire struct {
		Kind        string `json:"kind"`
		DisplayName string `json:"displayName"`
	}

	telemetryWire struct {
		Kind    string  `json:"kind"`
		Status  string  `json:"status"`
		Latency flexInt `json:"latency"`
		RSSI    flexInt `json:"rssi"`
	}

	eventWire struct {
		Kind string `json:"kind"`
		Data string `json:"data"`
	}

	pushTokenWire struct {
		Token string `json:"token"`
	}
)

// ParseMessage decodes one inbound relay payload into its typed form.
//
// All failure modes (unparseable JSON, unknown type tag, missing required
// field, non-numeric telemetry value) collapse into ErrMalformedMessage so
// callers have exactly one rejection path.
func ParseMessage(data []byte) (Message, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch envelope.Type {
	case MsgTypeRegisterDevice:
		var w registerDeviceWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		if w.Kind == "" {
			return nil, fmt.Errorf("%w: register-device requires kind", ErrMalformedMessage)
		}
		if w.DisplayName == "" {
			// Devices that don't announce a name fall back to their kind.
			w.DisplayName = w.Kind
		}
		return RegisterDevice{Kind: w.Kind, DisplayName: w.DisplayName}, nil

	case MsgTypeTelemetry:
		var w telemetryWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		if w.Kind == "" {
			return nil, fmt.Errorf("%w: telemetry requires kind", ErrMalformedMessage)
		}
		return Telemetry{
			Kind:    w.Kind,
			Status:  w.Status,
			Latency: int(w.Latency),
			RSSI:    int(w.RSSI),
		}, nil

	case MsgTypeEvent:
		var w eventWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		if w.Kind == "" {
			return nil, fmt.Errorf("%w: event requires kind", ErrMalformedMessage)
		}
		return Event{Kind: w.Kind, Data: w.Data}, nil

	case MsgTypePushToken:
		var w pushTokenWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
		}
		if w.Token == "" {
			return nil, fmt.Errorf("%w: push-token requires token", ErrMalformedMessage)
		}
		return PushToken{Token: w.Token}, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, envelope.Type)
	}
}

// Outbound wire shapes.
type deviceStateMessage struct {
	Type string      `json:"type"`
	Kind string      `json:"kind"`
	Data DeviceState `json:"data"`
}

type deviceOnlineMessage struct {
	Type string `json:"type"`
	Kind string `json:"kind"`
}

// newDeviceStateMessage builds the full-state broadcast for dashboards.
func newDeviceStateMessage(state DeviceState) deviceStateMessage {
	return deviceStateMessage{Type: MsgTypeDeviceState, Kind: state.Kind, Data: state}
}

// newPresenceMessage builds a device-online or device-offline broadcast.
func newPresenceMessage(kind string, online bool) deviceOnlineMessage {
	msgType := MsgTypeDeviceOffline
	if online {
		msgType = MsgTypeDeviceOnline
	}
	return deviceOnlineMessage{Type: msgType, Kind: kind}
}
