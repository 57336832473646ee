package relay

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultGracePeriod is the disconnect debounce window used when the
// options carry none.
const DefaultGracePeriod = 10 * time.Second

// TokenSink receives push notification tokens registered over the socket.
// Implementations handle (and log) their own storage failures.
type TokenSink interface {
	RegisterToken(token string)
}

// StatePublisher mirrors canonical device state to an external bus on
// every state change. Implementations must not block the caller; the relay
// holds its handler lock while publishing.
type StatePublisher interface {
	PublishDeviceState(kind string, payload []byte)
}

// TelemetryWriter records accepted telemetry samples to a time-series
// sink. Writes must be non-blocking (batched/asynchronous).
type TelemetryWriter interface {
	WriteDeviceMetric(deviceID, measurement string, value float64)
}

// Options holds the dependencies and tuning for a Core. Only Logger is
// commonly required; every collaborator is optional and nil disables it.
type Options struct {
	// GracePeriod is the disconnect debounce window. Zero selects
	// DefaultGracePeriod.
	GracePeriod time.Duration

	Notifier        Notifier
	Tokens          TokenSink
	StatePublisher  StatePublisher
	TelemetryWriter TelemetryWriter
	Logger          Logger
}

// Core wires the registry, store, debouncer, and notification trigger
// together and is the single entry point for the transport layer: one
// handler call per socket event, each fully serialized.
type Core struct {
	mu sync.Mutex

	registry *Registry
	store    *Store
	debounce *Debouncer
	trigger  *Trigger

	tokens TokenSink
	mirror StatePublisher
	tsdb   TelemetryWriter
	logger Logger
}

// NewCore creates a relay core from the given options.
func NewCore(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	c := &Core{
		registry: NewRegistry(logger),
		store:    NewStore(),
		trigger:  NewTrigger(opts.Notifier, logger),
		tokens:   opts.Tokens,
		mirror:   opts.StatePublisher,
		tsdb:     opts.TelemetryWriter,
		logger:   logger,
	}
	c.debounce = NewDebouncer(grace, c.handleGraceExpired)
	return c
}

// HandleConnect registers a freshly accepted connection and returns its
// handle. The new connection immediately receives one device-state message
// per known device kind so dashboards start from a consistent view.
func (c *Core) HandleConnect(sender Sender) ConnectionID {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.registry.Add(sender)

	for _, state := range c.store.List() {
		c.send(id, sender, newDeviceStateMessage(state))
	}
	return id
}

// HandleMessage processes one inbound payload from the given connection.
// Malformed payloads are dropped with a log entry; the connection stays
// open and prior state is unchanged. No error is ever reported back over
// the socket.
func (c *Core) HandleMessage(id ConnectionID, raw []byte) {
	msg, err := ParseMessage(raw)
	if err != nil {
		c.logger.Debug("dropping malformed message", "connection_id", id, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case RegisterDevice:
		c.handleRegister(id, m)
	case Telemetry:
		c.handleTelemetry(id, m)
	case Event:
		c.handleEvent(id, m)
	case PushToken:
		c.handlePushToken(id, m)
	}
}

// HandleDisconnect removes a closed connection. If it held a device role
// and the device is still considered online, the disconnect debouncer is
// armed instead of reporting offline immediately.
func (c *Core) HandleDisconnect(id ConnectionID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	role, ok := c.registry.Remove(id)
	if !ok || !role.IsDevice() {
		return
	}

	if state, ok := c.store.Get(role.Kind); ok && state.Online {
		c.debounce.Arm(role.Kind)
		c.logger.Info("device socket closed, grace timer armed",
			"kind", role.Kind,
			"connection_id", id,
		)
	}
}

// BroadcastCommand delivers a raw command payload to every connection
// classified as the given device kind and returns the number of targets.
// The relay does not validate command semantics, only delivery.
func (c *Core) BroadcastCommand(kind string, payload []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	sent := 0
	c.registry.Each(IsDeviceKind(kind), func(id ConnectionID, sender Sender) {
		if err := sender.Send(payload); err != nil {
			c.logger.Debug("skipping undeliverable connection", "connection_id", id, "error", err)
			return
		}
		sent++
	})
	c.logger.Debug("command relayed", "kind", kind, "recipients", sent)
	return sent
}

// DeviceStates returns a snapshot of all known device state rows.
func (c *Core) DeviceStates() []DeviceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.List()
}

// DeviceStateFor returns the state row for one device kind.
func (c *Core) DeviceStateFor(kind string) (DeviceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(kind)
}

// ConnectionCount returns the number of open connections.
func (c *Core) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Count()
}

// Close cancels all outstanding grace timers. Pending disconnects are
// discarded without emitting offline transitions; the process is going
// away anyway.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debounce.StopAll()
}

// handleRegister classifies the connection as a device endpoint and
// settles the online transition. Must be called under c.mu.
func (c *Core) handleRegister(id ConnectionID, msg RegisterDevice) {
	role := c.registry.RoleOf(id)
	if role.IsDevice() && role.Kind == msg.Kind {
		// Duplicate registration on the same socket.
		return
	}

	if err := c.registry.Classify(id, Device(msg.Kind)); err != nil {
		c.logger.Warn("rejecting connection reclassification", "connection_id", id, "error", err)
		return
	}

	// A pending disconnect for this kind means the device bounced within
	// its grace window: cancel the timer and stay silent, the dashboards
	// never observed an offline transition.
	reconnected := c.debounce.Cancel(msg.Kind)
	state, created := c.store.Ensure(msg.Kind, msg.DisplayName)

	if reconnected {
		c.logger.Info("device reconnected within grace window", "kind", msg.Kind)
		return
	}

	changed := c.store.SetOnline(msg.Kind, true)
	state, _ = c.store.Get(msg.Kind)

	c.broadcast(IsDashboardAudience(), newPresenceMessage(msg.Kind, true))
	c.broadcast(IsDashboardAudience(), newDeviceStateMessage(state))
	c.publishState(state)

	if created || changed {
		c.trigger.DeviceOnline(state.DisplayName)
	}
	c.logger.Info("device online", "kind", msg.Kind, "display_name", state.DisplayName)
}

// handleTelemetry applies a device status report. Must be called under c.mu.
func (c *Core) handleTelemetry(id ConnectionID, msg Telemetry) {
	role := c.registry.RoleOf(id)
	if !role.IsDevice() || role.Kind != msg.Kind {
		c.logger.Warn("dropping telemetry from unregistered sender",
			"connection_id", id,
			"sender_role", role.String(),
			"kind", msg.Kind,
		)
		return
	}

	state, err := c.store.UpdateTelemetry(msg.Kind, msg.Status, msg.Latency, msg.RSSI)
	if err != nil {
		c.logger.Warn("rejecting telemetry", "kind", msg.Kind, "error", err)
		return
	}

	c.broadcast(IsDashboardAudience(), newDeviceStateMessage(state))
	c.publishState(state)

	if c.tsdb != nil {
		c.tsdb.WriteDeviceMetric(msg.Kind, "latency_ms", float64(state.LastLatencyMs))
		c.tsdb.WriteDeviceMetric(msg.Kind, "signal_strength", float64(state.LastSignalStrength))
	}
}

// handleEvent routes a discrete device event to the notification trigger.
// Must be called under c.mu.
func (c *Core) handleEvent(id ConnectionID, msg Event) {
	role := c.registry.RoleOf(id)
	if !role.IsDevice() || role.Kind != msg.Kind {
		c.logger.Warn("dropping event from unregistered sender",
			"connection_id", id,
			"sender_role", role.String(),
			"kind", msg.Kind,
		)
		return
	}

	c.logger.Info("device event", "kind", msg.Kind, "event", msg.Data)
	c.trigger.DeviceEvent(msg.Kind, msg.Data)
}

// handlePushToken hands an observer's push token to the token registry.
// Must be called under c.mu.
func (c *Core) handlePushToken(id ConnectionID, msg PushToken) {
	if c.tokens == nil {
		c.logger.Debug("ignoring push token, no token registry configured", "connection_id", id)
		return
	}
	c.tokens.RegisterToken(msg.Token)
}

// handleGraceExpired fires when a device's grace window elapses with no
// reconnect. It runs on a timer goroutine and re-enters the serialized
// handler path through c.mu; Confirm discards expiries that lost the race
// against a concurrent re-registration.
func (c *Core) handleGraceExpired(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.debounce.Confirm(kind) {
		return
	}
	if !c.store.SetOnline(kind, false) {
		return
	}

	state, _ := c.store.Get(kind)
	c.broadcast(IsDashboardAudience(), newPresenceMessage(kind, false))
	c.broadcast(IsDashboardAudience(), newDeviceStateMessage(state))
	c.publishState(state)
	c.trigger.DeviceOffline(state.DisplayName)

	c.logger.Info("device offline", "kind", kind, "display_name", state.DisplayName)
}

// broadcast fans a message out to every connection matching the predicate.
// Delivery failure on one connection is logged and skipped; it never
// aborts delivery to the rest or surfaces to the triggering handler.
// Must be called under c.mu.
func (c *Core) broadcast(pred RolePredicate, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("failed to marshal broadcast message", "error", err)
		return
	}

	c.registry.Each(pred, func(id ConnectionID, sender Sender) {
		if err := sender.Send(data); err != nil {
			c.logger.Debug("skipping undeliverable connection", "connection_id", id, "error", err)
		}
	})
}

// send delivers one message to a single connection, best-effort.
func (c *Core) send(id ConnectionID, sender Sender, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		c.logger.Error("failed to marshal message", "error", err)
		return
	}
	if err := sender.Send(data); err != nil {
		c.logger.Debug("skipping undeliverable connection", "connection_id", id, "error", err)
	}
}

// publishState mirrors a state change to the external bus, if configured.
func (c *Core) publishState(state DeviceState) {
	if c.mirror == nil {
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		c.logger.Error("failed to marshal device state for mirror", "error", err)
		return
	}
	c.mirror.PublishDeviceState(state.Kind, payload)
}
